package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/layer-3/moduls/adapters/store"
	"github.com/layer-3/moduls/core"
	"github.com/layer-3/moduls/internal/eth"
)

// =============================================================================
// Wallet
// =============================================================================

type fakeWallet struct {
	mu          sync.Mutex
	signCalls   int
	disconnects int
	messages    []string
	reject      bool
	signErr     error
	blockFirst  chan struct{} // first SignMessage waits on it when set
	onSign      func()        // runs before the wallet answers
}

func (w *fakeWallet) Connect(ctx context.Context) (core.WalletIdentity, error) {
	return core.WalletIdentity{}, nil
}

func (w *fakeWallet) Disconnect(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.disconnects++
	return nil
}

func (w *fakeWallet) SignMessage(ctx context.Context, message string) (string, error) {
	w.mu.Lock()
	w.signCalls++
	call := w.signCalls
	w.messages = append(w.messages, message)
	block := w.blockFirst
	reject, signErr, onSign := w.reject, w.signErr, w.onSign
	w.mu.Unlock()

	if block != nil && call == 1 {
		select {
		case <-block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if onSign != nil {
		onSign()
	}
	if reject {
		return "", core.ErrSignatureRejected
	}
	if signErr != nil {
		return "", signErr
	}
	return fmt.Sprintf("0xsig%d", call), nil
}

func (w *fakeWallet) calls() (sign, disconnect int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.signCalls, w.disconnects
}

func (w *fakeWallet) set(fn func(w *fakeWallet)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fn(w)
}

// =============================================================================
// API
// =============================================================================

type fakeAPI struct {
	mu          sync.Mutex
	valid       map[string]string // token -> address
	nonces      int
	issued      int
	meCalls     int
	verifyCalls int
	meErr       error
	verifyErr   error
	logouts     []string
	verified    []*eth.Message
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{valid: make(map[string]string)}
}

func (f *fakeAPI) Nonce(ctx context.Context, address string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nonces++
	return fmt.Sprintf("nonce%04d", f.nonces), nil
}

func (f *fakeAPI) Verify(ctx context.Context, message, signature string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.verifyCalls++
	if f.verifyErr != nil {
		return "", f.verifyErr
	}

	msg, err := eth.ParseMessage(message)
	if err != nil {
		return "", &core.APIError{Status: 400, Message: err.Error()}
	}
	f.verified = append(f.verified, msg)

	f.issued++
	token := fmt.Sprintf("T%d", f.issued)
	f.valid[token] = strings.ToLower(msg.Address.Hex())
	return token, nil
}

func (f *fakeAPI) Me(ctx context.Context, token string) (*core.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.meCalls++
	if f.meErr != nil {
		return nil, f.meErr
	}
	address, ok := f.valid[token]
	if !ok {
		return nil, &core.APIError{Status: 401, Message: "token expired"}
	}
	return &core.User{Address: address}, nil
}

func (f *fakeAPI) Logout(ctx context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.valid, token)
	f.logouts = append(f.logouts, token)
	return nil
}

func (f *fakeAPI) accept(token, address string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.valid[token] = strings.ToLower(address)
}

func (f *fakeAPI) expire(token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.valid, token)
}

func (f *fakeAPI) set(fn func(f *fakeAPI)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

// =============================================================================
// Events and cache
// =============================================================================

type recordingPublisher struct {
	mu     sync.Mutex
	events []core.SessionEvent
}

func (p *recordingPublisher) PublishSession(ctx context.Context, event core.SessionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) path() []core.State {
	p.mu.Lock()
	defer p.mu.Unlock()

	var states []core.State
	for _, e := range p.events {
		states = append(states, e.To)
	}
	return states
}

type recordingCache struct {
	mu          sync.Mutex
	invalidated []string
}

func (c *recordingCache) InvalidateUser(address string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, address)
}

// gatedStore blocks Set until release is closed
type gatedStore struct {
	*store.MemoryStore
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGatedStore() *gatedStore {
	return &gatedStore{
		MemoryStore: store.NewMemoryStore(),
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
	}
}

func (s *gatedStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	s.once.Do(func() { close(s.entered) })
	<-s.release
	return s.MemoryStore.Set(ctx, key, value, ttl)
}
