package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/layer-3/moduls/adapters/cache"
	"github.com/layer-3/moduls/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResources struct {
	mu    sync.Mutex
	calls map[string]int
}

func newFakeResources() *fakeResources {
	return &fakeResources{calls: make(map[string]int)}
}

func (f *fakeResources) hit(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[name]++
}

func (f *fakeResources) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeResources) ListAgents(ctx context.Context, page, limit int) (*core.AgentPage, error) {
	f.hit("list")
	return &core.AgentPage{Agents: []core.Agent{{ID: "a1", Symbol: "ALPHA"}}, Total: 1, Page: page, Limit: limit}, nil
}

func (f *fakeResources) GetAgent(ctx context.Context, id string) (*core.Agent, error) {
	f.hit("get")
	if id == "missing" {
		return nil, core.ErrNotFound
	}
	return &core.Agent{ID: id}, nil
}

func (f *fakeResources) MyAgents(ctx context.Context) ([]core.Agent, error) {
	f.hit("mine")
	return []core.Agent{{ID: "a1"}}, nil
}

func (f *fakeResources) CreateAgent(ctx context.Context, req core.CreateAgentRequest) (*core.Agent, error) {
	f.hit("create")
	return &core.Agent{ID: "a2", Name: req.Name, Symbol: req.Symbol}, nil
}

func (f *fakeResources) Search(ctx context.Context, query string) ([]core.Agent, error) {
	f.hit("search")
	return nil, nil
}

func (f *fakeResources) Metrics(ctx context.Context, token string) (*core.TradingMetrics, error) {
	f.hit("metrics")
	return &core.TradingMetrics{}, nil
}

func (f *fakeResources) Holders(ctx context.Context, token string) ([]core.Holder, error) {
	f.hit("holders")
	return nil, nil
}

func (f *fakeResources) WebhookStatus(ctx context.Context) (*core.WebhookStatus, error) {
	f.hit("webhooks")
	return &core.WebhookStatus{}, nil
}

func TestCatalog_CachesReads(t *testing.T) {
	s := newTestSession(t)
	res := newFakeResources()
	catalog := NewCatalog(res, cache.NewQueryCache(32, time.Minute), s.auth)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		page, err := catalog.Agents(ctx, 1, 20)
		require.NoError(t, err)
		assert.Len(t, page.Agents, 1)

		_, err = catalog.Search(ctx, "alpha")
		require.NoError(t, err)
		_, err = catalog.Metrics(ctx, "0xtoken")
		require.NoError(t, err)
		_, err = catalog.Holders(ctx, "0xtoken")
		require.NoError(t, err)
		_, err = catalog.WebhookStatus(ctx)
		require.NoError(t, err)
	}

	for _, name := range []string{"list", "search", "metrics", "holders", "webhooks"} {
		assert.Equal(t, 1, res.count(name), name)
	}

	// Different pages are different queries
	_, err := catalog.Agents(ctx, 2, 20)
	require.NoError(t, err)
	assert.Equal(t, 2, res.count("list"))

	catalog.Refresh(cache.Key("search", "alpha"))
	_, err = catalog.Search(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, 2, res.count("search"))
}

func TestCatalog_ErrorsAreNotCached(t *testing.T) {
	s := newTestSession(t)
	res := newFakeResources()
	catalog := NewCatalog(res, cache.NewQueryCache(32, time.Minute), s.auth)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := catalog.Agent(ctx, "missing")
		assert.ErrorIs(t, err, core.ErrNotFound)
	}
	assert.Equal(t, 2, res.count("get"))
}

func TestCatalog_MyAgentsRequiresSession(t *testing.T) {
	s := newTestSession(t)
	res := newFakeResources()
	catalog := NewCatalog(res, cache.NewQueryCache(32, time.Minute), s.auth)

	_, err := catalog.MyAgents(context.Background())
	assert.ErrorIs(t, err, core.ErrNotConnected)
	assert.Zero(t, res.count("mine"))
}

func TestCatalog_UserDataDroppedOnLogout(t *testing.T) {
	queries := cache.NewQueryCache(32, time.Minute)

	s := newTestSession(t)
	s.auth.cache = queries
	res := newFakeResources()
	catalog := NewCatalog(res, queries, s.auth)
	ctx := context.Background()

	require.NoError(t, s.auth.Connect(ctx, identity(addrA)))

	_, err := catalog.MyAgents(ctx)
	require.NoError(t, err)
	_, err = catalog.Agents(ctx, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, 2, queries.Len())

	require.NoError(t, s.auth.Logout(ctx))

	// Public listings survive, user data does not
	assert.Equal(t, 1, queries.Len())
	_, err = catalog.MyAgents(ctx)
	assert.ErrorIs(t, err, core.ErrNotConnected)
}

func TestCatalog_CreateAgentInvalidatesListings(t *testing.T) {
	s := newTestSession(t)
	res := newFakeResources()
	queries := cache.NewQueryCache(32, time.Minute)
	catalog := NewCatalog(res, queries, s.auth)
	ctx := context.Background()

	require.NoError(t, s.auth.Connect(ctx, identity(addrA)))

	_, err := catalog.Agents(ctx, 1, 20)
	require.NoError(t, err)
	_, err = catalog.MyAgents(ctx)
	require.NoError(t, err)
	_, err = catalog.Search(ctx, "alpha")
	require.NoError(t, err)

	agent, err := catalog.CreateAgent(ctx, core.CreateAgentRequest{Name: "Beta", Symbol: "BETA", ChainID: 1})
	require.NoError(t, err)
	assert.Equal(t, "a2", agent.ID)

	assert.Equal(t, 1, queries.Len())

	_, err = catalog.Agents(ctx, 1, 20)
	require.NoError(t, err)
	_, err = catalog.MyAgents(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.count("list"))
	assert.Equal(t, 2, res.count("mine"))
}
