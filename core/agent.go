package core

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// AgentStatus is the lifecycle status of an agent token
type AgentStatus string

const (
	AgentStatusPending  AgentStatus = "pending"
	AgentStatusDeployed AgentStatus = "deployed"
	AgentStatusFailed   AgentStatus = "failed"
)

// Agent is a token launched on the platform
type Agent struct {
	ID              string      `json:"id"`
	Name            string      `json:"name"`
	Symbol          string      `json:"symbol"`
	Description     string      `json:"description,omitempty"`
	ContractAddress string      `json:"contract_address,omitempty"`
	Creator         string      `json:"creator"`
	ChainID         int64       `json:"chain_id"`
	Status          AgentStatus `json:"status"`
	CreatedAt       time.Time   `json:"created_at"`
}

// CreateAgentRequest is the input for creating an agent
type CreateAgentRequest struct {
	Name        string `json:"name"`
	Symbol      string `json:"symbol"`
	Description string `json:"description,omitempty"`
	ChainID     int64  `json:"chain_id"`
}

var symbolPattern = regexp.MustCompile(`^[A-Z0-9]{2,10}$`)

// Validate checks the request fields before it is sent
func (r *CreateAgentRequest) Validate() error {
	r.Name = strings.TrimSpace(r.Name)
	r.Symbol = strings.ToUpper(strings.TrimSpace(r.Symbol))

	switch {
	case r.Name == "":
		return ValidationError{Field: "name", Message: "is required"}
	case len(r.Name) > 64:
		return ValidationError{Field: "name", Message: "must be at most 64 characters"}
	case !symbolPattern.MatchString(r.Symbol):
		return ValidationError{Field: "symbol", Message: "must be 2-10 letters or digits"}
	case len(r.Description) > 1000:
		return ValidationError{Field: "description", Message: "must be at most 1000 characters"}
	case r.ChainID <= 0:
		return ValidationError{Field: "chain_id", Message: "is required"}
	}
	return nil
}

// TradingMetrics are the market figures of an agent token
type TradingMetrics struct {
	Token       string          `json:"token"`
	Price       decimal.Decimal `json:"price"`
	MarketCap   decimal.Decimal `json:"market_cap"`
	Volume24h   decimal.Decimal `json:"volume_24h"`
	Holders     int             `json:"holders"`
	Trades24h   int             `json:"trades_24h"`
	LastTradeAt time.Time       `json:"last_trade_at,omitempty"`
}

// Holder is a balance entry of an agent token
type Holder struct {
	Address string          `json:"address"`
	Balance decimal.Decimal `json:"balance"`
	Share   decimal.Decimal `json:"share"`
}

// WebhookStatus reports the backend's chain event ingestion
type WebhookStatus struct {
	Healthy       bool      `json:"healthy"`
	LastEventAt   time.Time `json:"last_event_at,omitempty"`
	PendingEvents int       `json:"pending_events"`
}

// AgentPage is one page of the agent listing
type AgentPage struct {
	Agents []Agent `json:"agents"`
	Total  int     `json:"total"`
	Page   int     `json:"page"`
	Limit  int     `json:"limit"`
}
