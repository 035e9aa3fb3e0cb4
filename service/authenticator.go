package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/layer-3/moduls/core"
	"github.com/layer-3/moduls/internal/eth"
	"github.com/layer-3/moduls/internal/metrics"
	"github.com/layer-3/moduls/ports"
	"github.com/sirupsen/logrus"
)

// SignInConfig describes the sign-in message presented to the wallet
type SignInConfig struct {
	Domain    string // Host requesting the signature
	URI       string // Resource the session is for
	Statement string // Human readable line shown in the wallet
}

// Snapshot is a point-in-time view of the session
type Snapshot struct {
	State     core.State
	Address   common.Address
	ChainID   int64
	Connected bool
	Err       error
}

// Authenticator runs the wallet sign-in lifecycle for the connected address.
//
// Session fields are guarded by mu, which is never held while waiting on the
// wallet or the network. Every flow run carries the generation it started in;
// once Connect, Disconnect, Logout or an expiry bumps the generation the run
// stops at its next step without touching state.
type Authenticator struct {
	wallet      ports.Wallet
	api         ports.AuthAPI
	credentials *CredentialStore
	cache       ports.UserCache
	events      ports.EventPublisher
	metrics     *metrics.Metrics
	log         *logrus.Entry
	signIn      SignInConfig
	now         func() time.Time

	mu         sync.Mutex
	state      core.State
	identity   core.WalletIdentity
	connected  bool
	token      string
	signature  *core.SignatureEntry
	lastErr    error
	generation uint64

	// persist orders credential writes against removals
	persist sync.Mutex
}

// Option configures an Authenticator
type Option func(*Authenticator)

// WithUserCache drops user-scoped query results on logout and disconnect
func WithUserCache(cache ports.UserCache) Option {
	return func(a *Authenticator) { a.cache = cache }
}

// WithEventPublisher publishes every state transition
func WithEventPublisher(events ports.EventPublisher) Option {
	return func(a *Authenticator) { a.events = events }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Authenticator) { a.metrics = m }
}

func WithLogger(log *logrus.Entry) Option {
	return func(a *Authenticator) { a.log = log }
}

func WithClock(now func() time.Time) Option {
	return func(a *Authenticator) { a.now = now }
}

// NewAuthenticator creates a disconnected session
func NewAuthenticator(wallet ports.Wallet, api ports.AuthAPI, credentials *CredentialStore, signIn SignInConfig, opts ...Option) *Authenticator {
	a := &Authenticator{
		wallet:      wallet,
		api:         api,
		credentials: credentials,
		signIn:      signIn,
		now:         time.Now,
		state:       core.StateDisconnected,
		log:         logrus.NewEntry(logrus.StandardLogger()),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.log = a.log.WithField("component", "authenticator")
	return a
}

// State returns the current state
func (a *Authenticator) State() core.State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Snapshot returns the current session view
func (a *Authenticator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	return Snapshot{
		State:     a.state,
		Address:   a.identity.Address,
		ChainID:   a.identity.ChainID,
		Connected: a.connected,
		Err:       a.lastErr,
	}
}

// Token returns the bearer credential while authenticated
func (a *Authenticator) Token(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state != core.StateAuthenticated || a.token == "" {
		return "", core.ErrNoCredential
	}
	return a.token, nil
}

// Connect starts the flow for the identity the wallet reported.
// A new address drops the cached signature.
func (a *Authenticator) Connect(ctx context.Context, identity core.WalletIdentity) error {
	gen := a.begin(ctx, identity, "wallet connected")
	return a.run(ctx, gen)
}

// Resume restores the session from a stored credential without prompting the
// wallet. Without a usable credential the session is left Failed with
// core.ErrNoCredential and stays connected, so Retry or Logout can follow.
func (a *Authenticator) Resume(ctx context.Context, identity core.WalletIdentity) error {
	gen := a.begin(ctx, identity, "resume")

	cred, err := a.credentials.Load(ctx, identity.Address)
	if err != nil {
		return a.fail(ctx, gen, err)
	}

	accepted, err := a.checkCredential(ctx, identity, cred.Token)
	if err != nil {
		return a.fail(ctx, gen, err)
	}
	if !accepted {
		return a.fail(ctx, gen, core.ErrNoCredential)
	}

	return a.authenticated(ctx, gen, cred.Token, "stored credential accepted")
}

// begin connects identity and enters Checking under a new generation
func (a *Authenticator) begin(ctx context.Context, identity core.WalletIdentity, reason string) uint64 {
	a.mu.Lock()
	if !a.connected || a.identity.Address != identity.Address {
		a.signature = nil
		a.token = ""
	}
	a.identity = identity
	a.connected = true
	a.lastErr = nil
	a.generation++
	gen := a.generation
	event, changed := a.transitionLocked(core.StateChecking, reason)
	a.mu.Unlock()

	a.publish(ctx, event, changed)
	return gen
}

// Retry restarts a failed flow for the connected address
func (a *Authenticator) Retry(ctx context.Context) error {
	a.mu.Lock()
	if !a.connected {
		a.mu.Unlock()
		return core.ErrNotConnected
	}
	if a.state != core.StateFailed {
		a.mu.Unlock()
		return nil
	}
	a.lastErr = nil
	a.generation++
	gen := a.generation
	event, changed := a.transitionLocked(core.StateChecking, "retry")
	a.mu.Unlock()

	a.publish(ctx, event, changed)
	return a.run(ctx, gen)
}

// HandleUnauthorized reacts to a 401 received for token. The credential is
// dropped and the flow restarts without disconnecting the wallet. Reports
// for a token that is no longer current are ignored.
func (a *Authenticator) HandleUnauthorized(ctx context.Context, token string) error {
	a.mu.Lock()
	if !a.connected || a.token == "" || token != a.token {
		a.mu.Unlock()
		return nil
	}
	identity := a.identity
	a.token = ""
	a.signature = nil
	a.generation++
	gen := a.generation
	event, changed := a.transitionLocked(core.StateChecking, "credential rejected")
	a.mu.Unlock()

	a.publish(ctx, event, changed)

	if err := a.removeCredential(ctx, identity.Address); err != nil {
		a.log.WithError(err).Warn("failed to remove rejected credential")
	}

	return a.run(ctx, gen)
}

// OnUnauthorized adapts HandleUnauthorized to the API client's 401 callback
func (a *Authenticator) OnUnauthorized(ctx context.Context, token string) {
	if err := a.HandleUnauthorized(ctx, token); err != nil && !errors.Is(err, core.ErrSuperseded) {
		a.log.WithError(err).Warn("re-authentication failed")
	}
}

// CheckFreshness asks the API whether the current credential is still accepted
func (a *Authenticator) CheckFreshness(ctx context.Context) error {
	a.mu.Lock()
	if a.state != core.StateAuthenticated {
		a.mu.Unlock()
		return nil
	}
	token := a.token
	a.mu.Unlock()

	_, err := a.api.Me(ctx, token)
	if errors.Is(err, core.ErrUnauthorized) {
		return a.HandleUnauthorized(ctx, token)
	}
	if err != nil {
		return fmt.Errorf("freshness check: %w", err)
	}
	return nil
}

// Logout revokes the credential, clears user data and disconnects the wallet
func (a *Authenticator) Logout(ctx context.Context) error {
	a.mu.Lock()
	if !a.connected {
		a.mu.Unlock()
		return core.ErrNotConnected
	}
	identity := a.identity
	token := a.token
	a.end()
	event, changed := a.transitionLocked(core.StateDisconnected, "logout")
	a.mu.Unlock()

	a.publish(ctx, event, changed)

	if token == "" {
		if cred, err := a.credentials.Load(ctx, identity.Address); err == nil {
			token = cred.Token
		}
	}
	if token != "" {
		if err := a.api.Logout(ctx, token); err != nil {
			a.log.WithError(err).Warn("server logout failed")
		}
	}

	return a.clear(ctx, identity.Address)
}

// Disconnect ends the session and disconnects the wallet
func (a *Authenticator) Disconnect(ctx context.Context) error {
	a.mu.Lock()
	identity := a.identity
	wasConnected := a.connected
	a.end()
	event, changed := a.transitionLocked(core.StateDisconnected, "wallet disconnected")
	a.mu.Unlock()

	a.publish(ctx, event, changed)

	if !wasConnected {
		return nil
	}
	return a.clear(ctx, identity.Address)
}

// end resets the session fields; mu must be held
func (a *Authenticator) end() {
	a.connected = false
	a.token = ""
	a.signature = nil
	a.lastErr = nil
	a.generation++
}

func (a *Authenticator) clear(ctx context.Context, address common.Address) error {
	err := a.removeCredential(ctx, address)
	if a.cache != nil {
		a.cache.InvalidateUser(core.AddressKey(address))
	}
	if disconnectErr := a.wallet.Disconnect(ctx); disconnectErr != nil {
		a.log.WithError(disconnectErr).Warn("wallet disconnect failed")
	}
	return err
}

// run performs Checking and, when needed, Signing and Verifying
func (a *Authenticator) run(ctx context.Context, gen uint64) error {
	identity, ok := a.current(gen)
	if !ok {
		return core.ErrSuperseded
	}

	cred, err := a.credentials.Load(ctx, identity.Address)
	switch {
	case err == nil:
		accepted, err := a.checkCredential(ctx, identity, cred.Token)
		if err != nil {
			return a.fail(ctx, gen, err)
		}
		if accepted {
			return a.authenticated(ctx, gen, cred.Token, "stored credential accepted")
		}
	case errors.Is(err, core.ErrNoCredential):
	default:
		return a.fail(ctx, gen, err)
	}

	return a.signAndVerify(ctx, gen, identity)
}

// checkCredential reports whether the API still accepts token. Only an
// explicit 401 counts as rejection; an unreachable API keeps the credential.
func (a *Authenticator) checkCredential(ctx context.Context, identity core.WalletIdentity, token string) (bool, error) {
	_, err := a.api.Me(ctx, token)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, core.ErrUnauthorized):
		if err := a.credentials.Remove(ctx, identity.Address); err != nil {
			return false, err
		}
		return false, nil
	case ctx.Err() != nil:
		return false, ctx.Err()
	default:
		a.log.WithError(err).Warn("could not check stored credential, keeping it")
		return true, nil
	}
}

func (a *Authenticator) signAndVerify(ctx context.Context, gen uint64, identity core.WalletIdentity) error {
	if !a.setState(ctx, gen, core.StateSigning, "signature required", nil) {
		return core.ErrSuperseded
	}

	entry := a.cachedSignature(gen, identity.Address)
	if entry == nil {
		nonce, err := a.api.Nonce(ctx, identity.Address.Hex())
		if err != nil {
			return a.fail(ctx, gen, fmt.Errorf("failed to get nonce: %w", err))
		}

		msg := eth.NewMessage(a.signIn.Domain, identity.Address, a.signIn.Statement, a.signIn.URI, identity.ChainID, nonce, a.now())
		text := msg.String()

		a.metrics.SignatureRequested()
		signature, err := a.wallet.SignMessage(ctx, text)
		if errors.Is(err, core.ErrSignatureRejected) {
			return a.rejected(ctx, gen, identity, err)
		}
		if err != nil {
			return a.fail(ctx, gen, fmt.Errorf("failed to sign: %w", err))
		}

		entry = &core.SignatureEntry{
			Address:   identity.Address,
			Message:   text,
			Signature: signature,
			SignedAt:  a.now(),
		}
		if !a.storeSignature(gen, entry) {
			return core.ErrSuperseded
		}
	}

	if !a.setState(ctx, gen, core.StateVerifying, "signature obtained", nil) {
		return core.ErrSuperseded
	}

	token, err := a.api.Verify(ctx, entry.Message, entry.Signature)
	if err != nil {
		// A 4xx answer means this signature is spent; transport and server
		// failures keep it for Retry.
		var apiErr *core.APIError
		if errors.As(err, &apiErr) && !apiErr.ServerError() {
			a.dropSignature(gen)
		}
		return a.fail(ctx, gen, fmt.Errorf("%w: %w", core.ErrVerificationFailed, err))
	}

	saved, err := a.saveCredential(ctx, gen, identity.Address, token)
	if err != nil {
		return a.fail(ctx, gen, err)
	}
	if !saved {
		return core.ErrSuperseded
	}

	return a.authenticated(ctx, gen, token, "signature verified")
}

// saveCredential stores token while gen is current. A removal issued after
// the generation moved on waits for the write and then deletes it.
func (a *Authenticator) saveCredential(ctx context.Context, gen uint64, address common.Address, token string) (bool, error) {
	a.persist.Lock()
	defer a.persist.Unlock()

	if _, ok := a.current(gen); !ok {
		return false, nil
	}
	if _, err := a.credentials.Save(ctx, address, token); err != nil {
		return false, err
	}
	return true, nil
}

func (a *Authenticator) removeCredential(ctx context.Context, address common.Address) error {
	a.persist.Lock()
	defer a.persist.Unlock()
	return a.credentials.Remove(ctx, address)
}

// rejected handles a declined signature prompt: the stored credential is
// removed and the wallet is disconnected so the flow does not loop on it.
func (a *Authenticator) rejected(ctx context.Context, gen uint64, identity core.WalletIdentity, cause error) error {
	if err := a.credentials.Remove(ctx, identity.Address); err != nil {
		a.log.WithError(err).Warn("failed to remove credential after rejection")
	}

	a.mu.Lock()
	if gen != a.generation {
		a.mu.Unlock()
		return core.ErrSuperseded
	}
	a.connected = false
	a.token = ""
	a.signature = nil
	a.lastErr = cause
	a.generation++
	event, changed := a.transitionLocked(core.StateFailed, "signature rejected")
	a.mu.Unlock()

	a.publish(ctx, event, changed)

	if err := a.wallet.Disconnect(ctx); err != nil {
		a.log.WithError(err).Warn("wallet disconnect failed")
	}

	return cause
}

func (a *Authenticator) authenticated(ctx context.Context, gen uint64, token, reason string) error {
	a.mu.Lock()
	if gen != a.generation {
		a.mu.Unlock()
		return core.ErrSuperseded
	}
	a.token = token
	a.lastErr = nil
	event, changed := a.transitionLocked(core.StateAuthenticated, reason)
	a.mu.Unlock()

	a.publish(ctx, event, changed)
	return nil
}

func (a *Authenticator) fail(ctx context.Context, gen uint64, err error) error {
	if !a.setState(ctx, gen, core.StateFailed, err.Error(), err) {
		return core.ErrSuperseded
	}
	return err
}

func (a *Authenticator) current(gen uint64) (core.WalletIdentity, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.identity, gen == a.generation && a.connected
}

func (a *Authenticator) cachedSignature(gen uint64, address common.Address) *core.SignatureEntry {
	a.mu.Lock()
	defer a.mu.Unlock()

	if gen != a.generation || a.signature == nil || a.signature.Address != address {
		return nil
	}
	return a.signature
}

func (a *Authenticator) storeSignature(gen uint64, entry *core.SignatureEntry) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if gen != a.generation {
		return false
	}
	a.signature = entry
	return true
}

func (a *Authenticator) dropSignature(gen uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if gen == a.generation {
		a.signature = nil
	}
}

// setState moves to state if gen is still current
func (a *Authenticator) setState(ctx context.Context, gen uint64, state core.State, reason string, err error) bool {
	a.mu.Lock()
	if gen != a.generation {
		a.mu.Unlock()
		return false
	}
	a.lastErr = err
	event, changed := a.transitionLocked(state, reason)
	a.mu.Unlock()

	a.publish(ctx, event, changed)
	return true
}

// transitionLocked records a state change; mu must be held
func (a *Authenticator) transitionLocked(to core.State, reason string) (core.SessionEvent, bool) {
	from := a.state
	if from == to {
		return core.SessionEvent{}, false
	}
	a.state = to

	a.metrics.Transition(string(from), string(to))
	a.log.WithFields(logrus.Fields{
		"address": a.identity.Address.Hex(),
		"from":    from,
		"to":      to,
		"reason":  reason,
	}).Info("session transition")

	return core.SessionEvent{
		Address: core.AddressKey(a.identity.Address),
		From:    from,
		To:      to,
		Reason:  reason,
		At:      a.now().UTC(),
	}, true
}

func (a *Authenticator) publish(ctx context.Context, event core.SessionEvent, changed bool) {
	if !changed || a.events == nil {
		return
	}
	if err := a.events.PublishSession(ctx, event); err != nil {
		a.log.WithError(err).Warn("failed to publish session event")
	}
}
