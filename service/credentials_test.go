package service

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"testing"
	"time"

	"github.com/layer-3/moduls/adapters/store"
	"github.com/layer-3/moduls/adapters/tokenizer"
	"github.com/layer-3/moduls/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func accessToken(t *testing.T, key *ecdsa.PrivateKey, subject string) string {
	t.Helper()

	now := time.Now()
	token, err := tokenizer.NewJWTTokenizer(key).SessionToAccessToken(&core.Session{
		ID:        "s1",
		Address:   subject,
		ChainID:   1,
		IssuedAt:  now,
		ExpiresAt: now.Add(time.Hour),
	})
	require.NoError(t, err)
	return token
}

func TestCredentialStore_SaveLoadRemove(t *testing.T) {
	ctx := context.Background()
	creds := NewCredentialStore(store.NewMemoryStore())

	_, err := creds.Load(ctx, addrA)
	assert.ErrorIs(t, err, core.ErrNoCredential)

	saved, err := creds.Save(ctx, addrA, "T")
	require.NoError(t, err)
	assert.Equal(t, core.AddressKey(addrA), saved.Address)

	loaded, err := creds.Load(ctx, addrA)
	require.NoError(t, err)
	assert.Equal(t, "T", loaded.Token)

	// Other addresses are isolated
	_, err = creds.Load(ctx, addrB)
	assert.ErrorIs(t, err, core.ErrNoCredential)

	require.NoError(t, creds.Remove(ctx, addrA))
	_, err = creds.Load(ctx, addrA)
	assert.ErrorIs(t, err, core.ErrNoCredential)

	// Removing twice is fine
	require.NoError(t, creds.Remove(ctx, addrA))
}

func TestCredentialStore_SaveReplaces(t *testing.T) {
	ctx := context.Background()
	creds := NewCredentialStore(store.NewMemoryStore())

	_, err := creds.Save(ctx, addrA, "T1")
	require.NoError(t, err)
	_, err = creds.Save(ctx, addrA, "T2")
	require.NoError(t, err)

	loaded, err := creds.Load(ctx, addrA)
	require.NoError(t, err)
	assert.Equal(t, "T2", loaded.Token)
}

func TestCredentialStore_DiscardsForeignCredential(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryStore()
	creds := NewCredentialStore(kv)

	key := CredentialPrefix + core.AddressKey(addrA)
	require.NoError(t, kv.Set(ctx, key, `{"address":"`+core.AddressKey(addrB)+`","token":"T"}`, 0))

	_, err := creds.Load(ctx, addrA)
	assert.ErrorIs(t, err, core.ErrNoCredential)

	_, err = kv.Get(ctx, key)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestCredentialStore_DiscardsCorruptCredential(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryStore()
	creds := NewCredentialStore(kv)

	key := CredentialPrefix + core.AddressKey(addrA)
	require.NoError(t, kv.Set(ctx, key, "not json", 0))

	_, err := creds.Load(ctx, addrA)
	assert.ErrorIs(t, err, core.ErrNoCredential)
	assert.Zero(t, kv.Len())
}

func TestCredentialStore_ChecksTokenSubject(t *testing.T) {
	ctx := context.Background()
	creds := NewCredentialStore(store.NewMemoryStore())

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	_, err = creds.Save(ctx, addrA, accessToken(t, key, addrA.Hex()))
	require.NoError(t, err)
	_, err = creds.Load(ctx, addrA)
	require.NoError(t, err)

	_, err = creds.Save(ctx, addrA, accessToken(t, key, addrB.Hex()))
	require.NoError(t, err)
	_, err = creds.Load(ctx, addrA)
	assert.ErrorIs(t, err, core.ErrNoCredential)
}
