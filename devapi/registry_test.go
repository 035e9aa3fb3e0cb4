package devapi

import (
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/layer-3/moduls/core"
	"github.com/layer-3/moduls/internal/config"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	creator = "0x0000000000000000000000000000000000000abc"
	trader  = "0x0000000000000000000000000000000000000def"
)

func newTestRegistry(t *testing.T, n int) (*Registry, []*core.Agent) {
	t.Helper()

	r := NewRegistry(config.DefaultContracts())
	var agents []*core.Agent
	for i := 0; i < n; i++ {
		agent, err := r.Create(creator, core.CreateAgentRequest{
			Name:    fmt.Sprintf("Agent %d", i),
			Symbol:  fmt.Sprintf("AG%d", i),
			ChainID: 31337,
		})
		require.NoError(t, err)
		agents = append(agents, agent)
	}
	return r, agents
}

func TestRegistry_Create(t *testing.T) {
	r, agents := newTestRegistry(t, 2)

	deployer := config.DefaultContracts()[31337].Deployer
	assert.Equal(t, crypto.CreateAddress(deployer, 1).Hex(), agents[0].ContractAddress)
	assert.Equal(t, crypto.CreateAddress(deployer, 2).Hex(), agents[1].ContractAddress)
	assert.Equal(t, core.AgentStatusDeployed, agents[0].Status)

	_, err := r.Create(creator, core.CreateAgentRequest{Name: "Dup", Symbol: "ag0", ChainID: 31337})
	var verr core.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "symbol", verr.Field)

	_, err = r.Create(creator, core.CreateAgentRequest{Name: "Elsewhere", Symbol: "ELSE", ChainID: 1})
	assert.ErrorIs(t, err, core.ErrUnknownChain)

	_, err = r.Create(creator, core.CreateAgentRequest{Name: "", Symbol: "X1", ChainID: 31337})
	assert.ErrorAs(t, err, &verr)
}

func TestRegistry_ListPages(t *testing.T) {
	r, agents := newTestRegistry(t, 5)

	page := r.List(1, 2)
	assert.Equal(t, 5, page.Total)
	require.Len(t, page.Agents, 2)
	assert.Equal(t, agents[4].ID, page.Agents[0].ID)

	page = r.List(3, 2)
	require.Len(t, page.Agents, 1)
	assert.Equal(t, agents[0].ID, page.Agents[0].ID)

	page = r.List(9, 2)
	assert.Empty(t, page.Agents)

	page = r.List(0, 0)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, defaultLimit, page.Limit)
}

func TestRegistry_Lookups(t *testing.T) {
	r, agents := newTestRegistry(t, 3)

	got, err := r.Get(agents[1].ID)
	require.NoError(t, err)
	assert.Equal(t, "AG1", got.Symbol)

	_, err = r.Get("missing")
	assert.ErrorIs(t, err, core.ErrNotFound)

	assert.Len(t, r.Mine(creator), 3)
	assert.Empty(t, r.Mine(trader))

	assert.Len(t, r.Search("agent"), 3)
	assert.Len(t, r.Search("ag2"), 1)
	assert.Len(t, r.Search(agents[0].ContractAddress), 1)
	assert.Empty(t, r.Search("  "))
}

func TestRegistry_Trades(t *testing.T) {
	r, agents := newTestRegistry(t, 1)
	token := agents[0].ContractAddress

	require.NoError(t, r.RecordTrade(Trade{Token: token, Trader: trader, Side: "buy", Amount: decimal.NewFromInt(300), Price: decimal.RequireFromString("0.01")}))
	require.NoError(t, r.RecordTrade(Trade{Token: "AG0", Trader: creator, Side: "buy", Amount: decimal.NewFromInt(100), Price: decimal.RequireFromString("0.02")}))
	require.NoError(t, r.RecordTrade(Trade{Token: agents[0].ID, Trader: trader, Side: "sell", Amount: decimal.NewFromInt(100), Price: decimal.RequireFromString("0.015")}))

	metrics, err := r.Metrics(token)
	require.NoError(t, err)
	assert.Equal(t, 2, metrics.Holders)
	assert.Equal(t, 3, metrics.Trades24h)
	assert.True(t, metrics.Price.Equal(decimal.RequireFromString("0.015")))
	assert.True(t, metrics.MarketCap.Equal(decimal.RequireFromString("4.5")))
	assert.True(t, metrics.Volume24h.Equal(decimal.RequireFromString("6.5")))

	holders, err := r.Holders(token)
	require.NoError(t, err)
	require.Len(t, holders, 2)
	assert.True(t, holders[0].Balance.Equal(decimal.NewFromInt(200)))
	assert.True(t, holders[0].Share.Equal(decimal.RequireFromString("0.6666666666666667")))

	err = r.RecordTrade(Trade{Token: token, Trader: creator, Side: "sell", Amount: decimal.NewFromInt(101), Price: decimal.NewFromInt(1)})
	assert.ErrorAs(t, err, new(core.ValidationError))

	err = r.RecordTrade(Trade{Token: "NOPE", Trader: creator, Side: "buy", Amount: decimal.NewFromInt(1), Price: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, core.ErrNotFound)

	status := r.WebhookStatus()
	assert.True(t, status.Healthy)
	assert.False(t, status.LastEventAt.IsZero())
}
