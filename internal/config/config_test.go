package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/layer-3/moduls/core"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:9000", cfg.APIURL)
	assert.Equal(t, int64(31337), cfg.ChainID)
	assert.Equal(t, StoreFile, cfg.Store)
	assert.Equal(t, 3, cfg.HTTPRetryMax)
	assert.Equal(t, 30*time.Second, cfg.QueryTTL)
	assert.Equal(t, time.Minute, cfg.FreshnessInterval)
	assert.NotEmpty(t, cfg.StorePath)
	assert.Equal(t, logrus.InfoLevel, cfg.Level())
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("MODULS_API_URL", "https://api.moduls.test/")
	t.Setenv("MODULS_CHAIN_ID", "8453")
	t.Setenv("MODULS_STORE", "memory")
	t.Setenv("MODULS_POLL_INTERVAL", "2s")
	t.Setenv("MODULS_LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://api.moduls.test", cfg.APIURL)
	assert.Equal(t, int64(8453), cfg.ChainID)
	assert.Equal(t, StoreMemory, cfg.Store)
	assert.Equal(t, 2*time.Second, cfg.PollInterval)
	assert.Equal(t, logrus.DebugLevel, cfg.Level())
}

func TestLoad_Invalid(t *testing.T) {
	t.Run("store", func(t *testing.T) {
		t.Setenv("MODULS_STORE", "cookies")
		_, err := Load()
		assert.Error(t, err)
	})
	t.Run("redis without url", func(t *testing.T) {
		t.Setenv("MODULS_STORE", "redis")
		t.Setenv("REDIS_URL", "")
		_, err := Load()
		assert.Error(t, err)
	})
	t.Run("chain", func(t *testing.T) {
		t.Setenv("MODULS_CHAIN_ID", "0")
		_, err := Load()
		assert.Error(t, err)
	})
}

func TestLoadEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("MODULS_DOMAIN=from-dotenv.test\n"), 0o600))

	t.Setenv("MODULS_DOMAIN", "")
	require.NoError(t, os.Unsetenv("MODULS_DOMAIN"))

	require.NoError(t, LoadEnv(path, filepath.Join(t.TempDir(), "missing.env")))
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv.test", cfg.Domain)
}

func TestLoadDevAPI(t *testing.T) {
	t.Setenv("DEVAPI_ADDR", ":9999")

	cfg, err := LoadDevAPI()
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.Addr)
	assert.Equal(t, 5*time.Minute, cfg.NonceTTL)
}

func TestContracts(t *testing.T) {
	book, err := LoadContracts("")
	require.NoError(t, err)

	local, err := book.For(31337)
	require.NoError(t, err)
	assert.NotEqual(t, common.Address{}, local.SalesManager)

	_, err = book.For(1)
	assert.ErrorIs(t, err, core.ErrUnknownChain)
}

func TestLoadContracts_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "contracts.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
chains:
  "8453":
    salesManager: "0x1111111111111111111111111111111111111111"
    deployer: "0x2222222222222222222222222222222222222222"
`), 0o600))

	book, err := LoadContracts(path)
	require.NoError(t, err)

	base, err := book.For(8453)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0x1111111111111111111111111111111111111111"), base.SalesManager)
	assert.Equal(t, common.HexToAddress("0x2222222222222222222222222222222222222222"), base.Deployer)

	// Defaults are kept
	_, err = book.For(31337)
	assert.NoError(t, err)
}

func TestLoadContracts_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "contracts.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
chains:
  "8453":
    salesManager: "nope"
    deployer: "0x2222222222222222222222222222222222222222"
`), 0o600))

	_, err := LoadContracts(path)
	assert.Error(t, err)

	_, err = LoadContracts(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
