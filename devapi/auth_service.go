// Package devapi is a local stand-in for the Moduls backend: it issues sign-in
// nonces, verifies signed messages, hands out access tokens and serves an
// in-memory agent registry.
package devapi

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/layer-3/moduls/core"
	"github.com/layer-3/moduls/internal/eth"
	"github.com/layer-3/moduls/ports"
	"github.com/sirupsen/logrus"
)

const (
	noncePrefix   = "nonce:"
	revokedPrefix = "revoked:"
	userPrefix    = "user:"

	// revoked tokens that already expired are remembered a little longer for clock skew
	expiredRevocationTTL = time.Hour
)

// AuthService handles sign-in for the development API
type AuthService struct {
	tokenizer ports.Tokenizer
	store     ports.Store
	eventPub  ports.LogoutPublisher
	log       *logrus.Entry

	domain    string
	nonceTTL  time.Duration
	accessTTL time.Duration
	now       func() time.Time

	nonceMu sync.Mutex
	usersMu sync.Mutex
	users   map[string]core.User
}

// AuthConfig holds the sign-in settings
type AuthConfig struct {
	Domain    string
	NonceTTL  time.Duration
	AccessTTL time.Duration
}

// NewAuthService creates a new authentication service
func NewAuthService(
	tokenizer ports.Tokenizer,
	store ports.Store,
	eventPub ports.LogoutPublisher,
	cfg AuthConfig,
	log *logrus.Entry,
) *AuthService {
	if cfg.NonceTTL <= 0 {
		cfg.NonceTTL = 5 * time.Minute
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = time.Hour
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	return &AuthService{
		tokenizer: tokenizer,
		store:     store,
		eventPub:  eventPub,
		log:       log.WithField("component", "devapi.auth"),
		domain:    cfg.Domain,
		nonceTTL:  cfg.NonceTTL,
		accessTTL: cfg.AccessTTL,
		now:       time.Now,
		users:     make(map[string]core.User),
	}
}

// Nonce issues a single-use nonce for address
func (s *AuthService) Nonce(ctx context.Context, address string) (string, error) {
	if address != "" && !common.IsHexAddress(address) {
		return "", core.ValidationError{Field: "address", Message: "must be a hex address"}
	}

	nonce, err := eth.GenerateNonce()
	if err != nil {
		return "", err
	}

	if err := s.store.Set(ctx, noncePrefix+nonce, strings.ToLower(address), s.nonceTTL); err != nil {
		return "", fmt.Errorf("failed to store nonce: %w", err)
	}

	return nonce, nil
}

// Verify checks a signed sign-in message and issues an access token
func (s *AuthService) Verify(ctx context.Context, text, signature string) (string, *core.User, error) {
	msg, err := eth.ParseMessage(text)
	if err != nil {
		return "", nil, err
	}

	now := s.now()
	if s.domain != "" && msg.Domain != s.domain {
		return "", nil, fmt.Errorf("domain %q: %w", msg.Domain, core.ErrInvalidMessage)
	}
	if msg.Expired(now) {
		return "", nil, fmt.Errorf("message expired: %w", core.ErrInvalidMessage)
	}

	if err := s.consumeNonce(ctx, msg.Nonce, msg.Address.Hex()); err != nil {
		return "", nil, err
	}

	if err := eth.VerifyText(text, signature, msg.Address); err != nil {
		return "", nil, fmt.Errorf("signature verification failed: %w", err)
	}

	session := &core.Session{
		ID:        uuid.New().String(),
		Address:   msg.Address.Hex(),
		ChainID:   msg.ChainID,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.accessTTL),
	}

	token, err := s.tokenizer.SessionToAccessToken(session)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create access token: %w", err)
	}

	user := s.user(session.Address, now)
	s.log.WithField("address", session.Address).Info("signed in")

	return token, &user, nil
}

// consumeNonce deletes the nonce and checks it was issued to address
func (s *AuthService) consumeNonce(ctx context.Context, nonce, address string) error {
	s.nonceMu.Lock()
	defer s.nonceMu.Unlock()

	key := noncePrefix + nonce
	issuedTo, err := s.store.Get(ctx, key)
	if errors.Is(err, core.ErrNotFound) {
		return core.ErrInvalidNonce
	}
	if err != nil {
		return fmt.Errorf("failed to load nonce: %w", err)
	}

	if err := s.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("failed to consume nonce: %w", err)
	}

	if issuedTo != "" && !strings.EqualFold(issuedTo, address) {
		return core.ErrInvalidNonce
	}
	return nil
}

// ValidateAccessToken returns the session of a valid, unrevoked token
func (s *AuthService) ValidateAccessToken(ctx context.Context, accessToken string) (*core.Session, error) {
	session, err := s.tokenizer.AccessTokenToSession(accessToken)
	if err != nil {
		return nil, err
	}

	revoked, err := s.isRevoked(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, core.ErrTokenInvalidated
	}

	return session, nil
}

// Logout revokes a token. Expired tokens are already unusable and succeed.
func (s *AuthService) Logout(ctx context.Context, accessToken string) error {
	session, err := s.tokenizer.AccessTokenToSession(accessToken)
	if errors.Is(err, core.ErrTokenExpired) {
		return nil
	}
	if err != nil {
		return err
	}

	if err := s.revoke(ctx, session); err != nil {
		return err
	}

	if s.eventPub != nil {
		if err := s.eventPub.PublishLogout(ctx, session.Address, session.ID); err != nil {
			// The revocation is already stored
			s.log.WithError(err).Warn("failed to publish logout event")
		}
	}

	s.log.WithField("address", session.Address).Info("signed out")
	return nil
}

// Me returns the user an access token belongs to
func (s *AuthService) Me(ctx context.Context, accessToken string) (*core.User, error) {
	session, err := s.ValidateAccessToken(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	user := s.user(session.Address, s.now())
	return &user, nil
}

func (s *AuthService) revoke(ctx context.Context, session *core.Session) error {
	ttl := session.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		ttl = expiredRevocationTTL
	}

	if err := s.store.Set(ctx, revokedPrefix+session.ID, "1", ttl); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}

func (s *AuthService) isRevoked(ctx context.Context, tokenID string) (bool, error) {
	_, err := s.store.Get(ctx, revokedPrefix+tokenID)
	if errors.Is(err, core.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check revocation: %w", err)
	}
	return true, nil
}

// user returns the account for address, creating it on first sign-in
func (s *AuthService) user(address string, now time.Time) core.User {
	key := userPrefix + strings.ToLower(address)

	s.usersMu.Lock()
	defer s.usersMu.Unlock()

	if user, ok := s.users[key]; ok {
		return user
	}
	user := core.User{Address: address, CreatedAt: now.UTC()}
	s.users[key] = user
	return user
}
