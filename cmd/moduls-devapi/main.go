package main

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/layer-3/moduls/adapters/events"
	"github.com/layer-3/moduls/adapters/store"
	"github.com/layer-3/moduls/adapters/tokenizer"
	"github.com/layer-3/moduls/devapi"
	"github.com/layer-3/moduls/internal/config"
	"github.com/layer-3/moduls/ports"
	transport "github.com/layer-3/moduls/transport/http"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

func main() {
	log := logrus.New()

	if err := config.LoadEnv(); err != nil {
		log.Fatalf("Failed to load .env: %v", err)
	}
	cfg, err := config.LoadDevAPI()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.SetLevel(cfg.Level())
	if cfg.Level() < logrus.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}

	privateKey, err := signingKey(cfg.SigningKey)
	if err != nil {
		log.Fatalf("Failed to load signing key: %v", err)
	}
	if cfg.SigningKey == "" {
		log.Warn("DEVAPI_SIGNING_KEY not set, tokens will not survive a restart")
	}

	contracts, err := config.LoadContracts(cfg.ContractsFile)
	if err != nil {
		log.Fatalf("Failed to load contracts: %v", err)
	}

	kv, publisher, closeBackends, err := backends(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to set up storage: %v", err)
	}
	defer closeBackends()

	authService := devapi.NewAuthService(
		tokenizer.NewJWTTokenizer(privateKey),
		kv,
		events.NewWatermillPublisher(publisher),
		devapi.AuthConfig{Domain: cfg.Domain, NonceTTL: cfg.NonceTTL, AccessTTL: cfg.AccessTTL},
		logrus.NewEntry(log),
	)
	registry := devapi.NewRegistry(contracts)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	router := transport.SetupRouter(authService, registry, reg, logrus.NewEntry(log))
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	log.WithField("addr", cfg.Addr).Info("dev API listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// signingKey reads a PEM encoded P-256 key, or generates one when path is empty
func signingKey(path string) (*ecdsa.PrivateKey, error) {
	if path == "" {
		return ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return jwt.ParseECPrivateKeyFromPEM(data)
}

// backends uses redis for nonces, revocations and logout events when
// redisURL is set, and in-process equivalents otherwise
func backends(redisURL string) (ports.Store, message.Publisher, func(), error) {
	logger := watermill.NewStdLogger(false, false)

	if redisURL == "" {
		pubSub := gochannel.NewGoChannel(gochannel.Config{}, logger)
		return store.NewMemoryStore(), pubSub, func() { _ = pubSub.Close() }, nil
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, nil, nil, err
	}
	redisClient := redis.NewClient(opts)

	publisher, err := redisstream.NewPublisher(
		redisstream.PublisherConfig{
			Client: redisClient,
		},
		logger,
	)
	if err != nil {
		_ = redisClient.Close()
		return nil, nil, nil, err
	}

	closeAll := func() {
		_ = publisher.Close()
		_ = redisClient.Close()
	}
	return store.NewRedisStore(redisClient, "moduls:devapi:"), publisher, closeAll, nil
}
