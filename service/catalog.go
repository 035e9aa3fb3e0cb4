package service

import (
	"context"
	"strconv"

	"github.com/layer-3/moduls/adapters/cache"
	"github.com/layer-3/moduls/core"
)

// ResourceAPI is the read side of the remote API
type ResourceAPI interface {
	ListAgents(ctx context.Context, page, limit int) (*core.AgentPage, error)
	GetAgent(ctx context.Context, id string) (*core.Agent, error)
	MyAgents(ctx context.Context) ([]core.Agent, error)
	CreateAgent(ctx context.Context, req core.CreateAgentRequest) (*core.Agent, error)
	Search(ctx context.Context, query string) ([]core.Agent, error)
	Metrics(ctx context.Context, token string) (*core.TradingMetrics, error)
	Holders(ctx context.Context, token string) ([]core.Holder, error)
	WebhookStatus(ctx context.Context) (*core.WebhookStatus, error)
}

// Catalog serves API reads through the query cache
type Catalog struct {
	api     ResourceAPI
	cache   *cache.QueryCache
	session *Authenticator
}

// NewCatalog creates a catalog; session scopes the user's own queries
func NewCatalog(api ResourceAPI, queries *cache.QueryCache, session *Authenticator) *Catalog {
	return &Catalog{api: api, cache: queries, session: session}
}

func (c *Catalog) Agents(ctx context.Context, page, limit int) (*core.AgentPage, error) {
	key := cache.Key("agents", strconv.Itoa(page), strconv.Itoa(limit))
	return cache.Fetch(ctx, c.cache, key, func(ctx context.Context) (*core.AgentPage, error) {
		return c.api.ListAgents(ctx, page, limit)
	})
}

func (c *Catalog) Agent(ctx context.Context, id string) (*core.Agent, error) {
	return cache.Fetch(ctx, c.cache, cache.Key("agent", id), func(ctx context.Context) (*core.Agent, error) {
		return c.api.GetAgent(ctx, id)
	})
}

// MyAgents lists the connected user's agents
func (c *Catalog) MyAgents(ctx context.Context) ([]core.Agent, error) {
	snap := c.session.Snapshot()
	if !snap.Connected {
		return nil, core.ErrNotConnected
	}

	key := cache.UserKey(core.AddressKey(snap.Address), "agents")
	return cache.Fetch(ctx, c.cache, key, c.api.MyAgents)
}

// CreateAgent creates an agent and drops the listings it changes
func (c *Catalog) CreateAgent(ctx context.Context, req core.CreateAgentRequest) (*core.Agent, error) {
	agent, err := c.api.CreateAgent(ctx, req)
	if err != nil {
		return nil, err
	}

	c.RefreshAgents()
	if snap := c.session.Snapshot(); snap.Connected {
		c.cache.Invalidate(cache.UserKey(core.AddressKey(snap.Address), "agents"))
	}
	return agent, nil
}

func (c *Catalog) Search(ctx context.Context, query string) ([]core.Agent, error) {
	return cache.Fetch(ctx, c.cache, cache.Key("search", query), func(ctx context.Context) ([]core.Agent, error) {
		return c.api.Search(ctx, query)
	})
}

func (c *Catalog) Metrics(ctx context.Context, token string) (*core.TradingMetrics, error) {
	return cache.Fetch(ctx, c.cache, cache.Key("metrics", token), func(ctx context.Context) (*core.TradingMetrics, error) {
		return c.api.Metrics(ctx, token)
	})
}

func (c *Catalog) Holders(ctx context.Context, token string) ([]core.Holder, error) {
	return cache.Fetch(ctx, c.cache, cache.Key("holders", token), func(ctx context.Context) ([]core.Holder, error) {
		return c.api.Holders(ctx, token)
	})
}

func (c *Catalog) WebhookStatus(ctx context.Context) (*core.WebhookStatus, error) {
	return cache.Fetch(ctx, c.cache, cache.Key("webhooks"), c.api.WebhookStatus)
}

// Refresh drops a cached query so the next read reloads it
func (c *Catalog) Refresh(key string) {
	c.cache.Invalidate(key)
}

// RefreshAgents drops every cached agent listing
func (c *Catalog) RefreshAgents() {
	c.cache.InvalidatePrefix("agents:")
}
