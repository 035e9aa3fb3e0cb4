package devapi

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/layer-3/moduls/adapters/events"
	"github.com/layer-3/moduls/adapters/store"
	"github.com/layer-3/moduls/adapters/tokenizer"
	"github.com/layer-3/moduls/core"
	"github.com/layer-3/moduls/internal/eth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testAuth struct {
	svc    *AuthService
	kv     *store.MemoryStore
	pubSub *gochannel.GoChannel
}

func newTestAuth(t *testing.T) *testAuth {
	t.Helper()

	signKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	t.Cleanup(func() { _ = pubSub.Close() })

	kv := store.NewMemoryStore()
	svc := NewAuthService(
		tokenizer.NewJWTTokenizer(signKey),
		kv,
		events.NewWatermillPublisher(pubSub),
		AuthConfig{Domain: "moduls.test", NonceTTL: time.Minute, AccessTTL: time.Hour},
		nil,
	)
	return &testAuth{svc: svc, kv: kv, pubSub: pubSub}
}

// signIn builds and signs a message the way a wallet would
func signIn(t *testing.T, key *ecdsa.PrivateKey, domain, nonce string) (string, string) {
	t.Helper()

	msg := eth.NewMessage(domain, crypto.PubkeyToAddress(key.PublicKey), "Sign in", "https://moduls.test", 1, nonce, time.Now())
	text := msg.String()
	sig, err := eth.SignText(key, text)
	require.NoError(t, err)
	return text, hexutil.Encode(sig)
}

func TestAuthService_SignIn(t *testing.T) {
	a := newTestAuth(t)
	ctx := context.Background()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	address := crypto.PubkeyToAddress(key.PublicKey)

	nonce, err := a.svc.Nonce(ctx, address.Hex())
	require.NoError(t, err)
	require.NotEmpty(t, nonce)

	text, sig := signIn(t, key, "moduls.test", nonce)
	token, user, err := a.svc.Verify(ctx, text, sig)
	require.NoError(t, err)
	assert.Equal(t, address.Hex(), user.Address)

	session, err := a.svc.ValidateAccessToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, address.Hex(), session.Address)
	assert.Equal(t, int64(1), session.ChainID)

	me, err := a.svc.Me(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, user.CreatedAt, me.CreatedAt)

	info, err := tokenizer.Inspect(token)
	require.NoError(t, err)
	assert.Equal(t, address.Hex(), info.Subject)
}

func TestAuthService_NonceIsSingleUse(t *testing.T) {
	a := newTestAuth(t)
	ctx := context.Background()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	nonce, err := a.svc.Nonce(ctx, crypto.PubkeyToAddress(key.PublicKey).Hex())
	require.NoError(t, err)

	text, sig := signIn(t, key, "moduls.test", nonce)
	_, _, err = a.svc.Verify(ctx, text, sig)
	require.NoError(t, err)

	_, _, err = a.svc.Verify(ctx, text, sig)
	assert.ErrorIs(t, err, core.ErrInvalidNonce)
}

func TestAuthService_RejectsBadMessages(t *testing.T) {
	a := newTestAuth(t)
	ctx := context.Background()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	other, err := crypto.GenerateKey()
	require.NoError(t, err)
	address := crypto.PubkeyToAddress(key.PublicKey).Hex()

	t.Run("unknown nonce", func(t *testing.T) {
		text, sig := signIn(t, key, "moduls.test", "deadbeefdeadbeef")
		_, _, err := a.svc.Verify(ctx, text, sig)
		assert.ErrorIs(t, err, core.ErrInvalidNonce)
	})

	t.Run("wrong domain", func(t *testing.T) {
		nonce, err := a.svc.Nonce(ctx, address)
		require.NoError(t, err)
		text, sig := signIn(t, key, "evil.test", nonce)
		_, _, err = a.svc.Verify(ctx, text, sig)
		assert.ErrorIs(t, err, core.ErrInvalidMessage)
	})

	t.Run("nonce for another address", func(t *testing.T) {
		nonce, err := a.svc.Nonce(ctx, crypto.PubkeyToAddress(other.PublicKey).Hex())
		require.NoError(t, err)
		text, sig := signIn(t, key, "moduls.test", nonce)
		_, _, err = a.svc.Verify(ctx, text, sig)
		assert.ErrorIs(t, err, core.ErrInvalidNonce)
	})

	t.Run("signed by someone else", func(t *testing.T) {
		nonce, err := a.svc.Nonce(ctx, address)
		require.NoError(t, err)
		text, _ := signIn(t, key, "moduls.test", nonce)
		forged, err := eth.SignText(other, text)
		require.NoError(t, err)
		_, _, err = a.svc.Verify(ctx, text, hexutil.Encode(forged))
		assert.ErrorIs(t, err, core.ErrInvalidSignature)
	})

	t.Run("not a sign-in message", func(t *testing.T) {
		_, _, err := a.svc.Verify(ctx, "hello", "0x00")
		assert.ErrorIs(t, err, core.ErrInvalidMessage)
	})

	t.Run("bad address", func(t *testing.T) {
		_, err := a.svc.Nonce(ctx, "0x123")
		var verr core.ValidationError
		assert.ErrorAs(t, err, &verr)
	})
}

func TestAuthService_Logout(t *testing.T) {
	a := newTestAuth(t)
	ctx := context.Background()

	logouts, err := a.pubSub.Subscribe(ctx, events.LogoutTopic)
	require.NoError(t, err)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	address := crypto.PubkeyToAddress(key.PublicKey).Hex()

	nonce, err := a.svc.Nonce(ctx, address)
	require.NoError(t, err)
	text, sig := signIn(t, key, "moduls.test", nonce)
	token, _, err := a.svc.Verify(ctx, text, sig)
	require.NoError(t, err)

	require.NoError(t, a.svc.Logout(ctx, token))

	_, err = a.svc.ValidateAccessToken(ctx, token)
	assert.ErrorIs(t, err, core.ErrTokenInvalidated)
	_, err = a.svc.Me(ctx, token)
	assert.ErrorIs(t, err, core.ErrTokenInvalidated)

	select {
	case msg := <-logouts:
		msg.Ack()
		assert.Contains(t, string(msg.Payload), address)
	case <-time.After(time.Second):
		t.Fatal("no logout event")
	}

	assert.ErrorIs(t, a.svc.Logout(ctx, "garbage"), core.ErrInvalidToken)
}
