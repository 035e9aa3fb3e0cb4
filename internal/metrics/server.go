package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Server holds the dev API collectors
type Server struct {
	Requests *prometheus.CounterVec
}

// NewServer creates the dev API collectors and registers them with reg
func NewServer(reg prometheus.Registerer) *Server {
	s := &Server{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "moduls",
			Subsystem: "devapi",
			Name:      "requests_total",
			Help:      "Dev API requests by route, method and status.",
		}, []string{"route", "method", "status"}),
	}

	if reg != nil {
		reg.MustRegister(s.Requests)
	}

	return s
}

// Request counts a served request. Unrouted paths share one label.
func (s *Server) Request(route, method string, status int) {
	if s == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	s.Requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
}
