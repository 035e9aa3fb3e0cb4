package devapi

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/layer-3/moduls/core"
	"github.com/layer-3/moduls/internal/config"
	"github.com/shopspring/decimal"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

// Trade is a buy or sell reported by the chain event webhook
type Trade struct {
	Token  string          `json:"token"`
	Trader string          `json:"trader"`
	Side   string          `json:"side"` // buy or sell
	Amount decimal.Decimal `json:"amount"`
	Price  decimal.Decimal `json:"price"`
	At     time.Time       `json:"at,omitempty"`
}

type agentBook struct {
	agent    core.Agent
	balances map[string]decimal.Decimal
	supply   decimal.Decimal
	metrics  core.TradingMetrics
	trades   []time.Time
}

// Registry keeps agents, balances and trading figures in memory
type Registry struct {
	contracts config.ContractBook
	now       func() time.Time

	mu          sync.RWMutex
	agents      []*agentBook
	deployments map[int64]uint64
	lastEvent   time.Time
}

// NewRegistry creates an empty registry deploying through contracts
func NewRegistry(contracts config.ContractBook) *Registry {
	return &Registry{
		contracts:   contracts,
		now:         time.Now,
		deployments: make(map[int64]uint64),
	}
}

// Create registers an agent for creator and assigns the address its token
// contract gets from the chain's deployer.
func (r *Registry) Create(creator string, req core.CreateAgentRequest) (*core.Agent, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	contracts, err := r.contracts.For(req.ChainID)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, b := range r.agents {
		if b.agent.ChainID == req.ChainID && b.agent.Symbol == req.Symbol {
			return nil, core.ValidationError{Field: "symbol", Message: "is already taken"}
		}
	}

	r.deployments[req.ChainID]++
	contract := crypto.CreateAddress(contracts.Deployer, r.deployments[req.ChainID])

	agent := core.Agent{
		ID:              uuid.New().String(),
		Name:            req.Name,
		Symbol:          req.Symbol,
		Description:     req.Description,
		ContractAddress: contract.Hex(),
		Creator:         common.HexToAddress(creator).Hex(),
		ChainID:         req.ChainID,
		Status:          core.AgentStatusDeployed,
		CreatedAt:       r.now().UTC(),
	}

	r.agents = append(r.agents, &agentBook{
		agent:    agent,
		balances: make(map[string]decimal.Decimal),
		metrics:  core.TradingMetrics{Token: agent.ContractAddress},
	})
	r.lastEvent = agent.CreatedAt

	return &agent, nil
}

// List returns one page of agents, newest first
func (r *Registry) List(page, limit int) core.AgentPage {
	page, limit = normalizePage(page, limit)

	r.mu.RLock()
	defer r.mu.RUnlock()

	all := r.newestFirst(func(*agentBook) bool { return true })
	start := (page - 1) * limit
	if start > len(all) {
		start = len(all)
	}
	end := start + limit
	if end > len(all) {
		end = len(all)
	}

	return core.AgentPage{Agents: all[start:end], Total: len(all), Page: page, Limit: limit}
}

// Mine returns the agents created by address
func (r *Registry) Mine(address string) []core.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.newestFirst(func(b *agentBook) bool {
		return strings.EqualFold(b.agent.Creator, address)
	})
}

// Get returns one agent by id
func (r *Registry) Get(id string) (*core.Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, b := range r.agents {
		if b.agent.ID == id {
			agent := b.agent
			return &agent, nil
		}
	}
	return nil, core.ErrNotFound
}

// Search matches name, symbol or contract address, case-insensitively
func (r *Registry) Search(query string) []core.Agent {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return []core.Agent{}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.newestFirst(func(b *agentBook) bool {
		return strings.Contains(strings.ToLower(b.agent.Name), query) ||
			strings.Contains(strings.ToLower(b.agent.Symbol), query) ||
			strings.EqualFold(b.agent.ContractAddress, query)
	})
}

// Metrics returns the trading figures of a token
func (r *Registry) Metrics(token string) (*core.TradingMetrics, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b := r.find(token)
	if b == nil {
		return nil, core.ErrNotFound
	}

	metrics := b.metrics
	metrics.Holders = len(b.balances)
	metrics.Trades24h = 0
	since := r.now().Add(-24 * time.Hour)
	for _, at := range b.trades {
		if at.After(since) {
			metrics.Trades24h++
		}
	}
	return &metrics, nil
}

// Holders returns the token balances, largest first
func (r *Registry) Holders(token string) ([]core.Holder, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b := r.find(token)
	if b == nil {
		return nil, core.ErrNotFound
	}

	holders := make([]core.Holder, 0, len(b.balances))
	for address, balance := range b.balances {
		share := decimal.Zero
		if b.supply.IsPositive() {
			share = balance.Div(b.supply)
		}
		holders = append(holders, core.Holder{Address: address, Balance: balance, Share: share})
	}
	sort.Slice(holders, func(i, j int) bool {
		if c := holders[i].Balance.Cmp(holders[j].Balance); c != 0 {
			return c > 0
		}
		return holders[i].Address < holders[j].Address
	})
	return holders, nil
}

// RecordTrade applies a trade event to balances and metrics
func (r *Registry) RecordTrade(trade Trade) error {
	if !trade.Amount.IsPositive() {
		return core.ValidationError{Field: "amount", Message: "must be positive"}
	}
	if trade.Price.IsNegative() {
		return core.ValidationError{Field: "price", Message: "must not be negative"}
	}
	if !common.IsHexAddress(trade.Trader) {
		return core.ValidationError{Field: "trader", Message: "must be a hex address"}
	}
	if trade.At.IsZero() {
		trade.At = r.now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	b := r.find(trade.Token)
	if b == nil {
		return core.ErrNotFound
	}

	trader := common.HexToAddress(trade.Trader).Hex()
	balance := b.balances[trader]

	switch trade.Side {
	case "buy":
		balance = balance.Add(trade.Amount)
		b.supply = b.supply.Add(trade.Amount)
	case "sell":
		if balance.LessThan(trade.Amount) {
			return core.ValidationError{Field: "amount", Message: "exceeds balance"}
		}
		balance = balance.Sub(trade.Amount)
		b.supply = b.supply.Sub(trade.Amount)
	default:
		return core.ValidationError{Field: "side", Message: "must be buy or sell"}
	}

	if balance.IsZero() {
		delete(b.balances, trader)
	} else {
		b.balances[trader] = balance
	}

	b.metrics.Price = trade.Price
	b.metrics.MarketCap = trade.Price.Mul(b.supply)
	b.metrics.Volume24h = b.metrics.Volume24h.Add(trade.Amount.Mul(trade.Price))
	b.metrics.LastTradeAt = trade.At.UTC()
	b.trades = append(b.trades, trade.At)
	r.lastEvent = trade.At.UTC()

	return nil
}

// WebhookStatus reports event ingestion
func (r *Registry) WebhookStatus() core.WebhookStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return core.WebhookStatus{Healthy: true, LastEventAt: r.lastEvent}
}

// find resolves a token by agent id, symbol or contract address; mu must be held
func (r *Registry) find(token string) *agentBook {
	for _, b := range r.agents {
		if b.agent.ID == token ||
			strings.EqualFold(b.agent.Symbol, token) ||
			strings.EqualFold(b.agent.ContractAddress, token) {
			return b
		}
	}
	return nil
}

// newestFirst returns matching agents in reverse creation order; mu must be held
func (r *Registry) newestFirst(match func(*agentBook) bool) []core.Agent {
	agents := []core.Agent{}
	for i := len(r.agents) - 1; i >= 0; i-- {
		if match(r.agents[i]) {
			agents = append(agents, r.agents[i].agent)
		}
	}
	return agents
}

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	switch {
	case limit < 1:
		limit = defaultLimit
	case limit > maxLimit:
		limit = maxLimit
	}
	return page, limit
}

func (t Trade) String() string {
	return fmt.Sprintf("%s %s %s @ %s", t.Side, t.Amount, t.Token, t.Price)
}
