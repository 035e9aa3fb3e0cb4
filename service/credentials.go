package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/layer-3/moduls/adapters/tokenizer"
	"github.com/layer-3/moduls/core"
	"github.com/layer-3/moduls/ports"
)

// CredentialPrefix namespaces stored bearer tokens
const CredentialPrefix = "moduls:auth:"

// CredentialStore persists one bearer credential per wallet address
type CredentialStore struct {
	store ports.Store
	now   func() time.Time
}

// NewCredentialStore creates a credential store on top of a key/value store
func NewCredentialStore(store ports.Store) *CredentialStore {
	return &CredentialStore{store: store, now: time.Now}
}

func credentialKey(address common.Address) string {
	return CredentialPrefix + core.AddressKey(address)
}

// Save stores token for address, replacing any previous one
func (s *CredentialStore) Save(ctx context.Context, address common.Address, token string) (core.Credential, error) {
	cred := core.Credential{
		Address:  core.AddressKey(address),
		Token:    token,
		StoredAt: s.now().UTC(),
	}

	payload, err := json.Marshal(cred)
	if err != nil {
		return core.Credential{}, fmt.Errorf("failed to encode credential: %w", err)
	}
	if err := s.store.Set(ctx, credentialKey(address), string(payload), 0); err != nil {
		return core.Credential{}, fmt.Errorf("failed to save credential: %w", err)
	}

	return cred, nil
}

// Load returns the credential stored for address or core.ErrNoCredential.
// A credential whose token names a different address is removed.
func (s *CredentialStore) Load(ctx context.Context, address common.Address) (core.Credential, error) {
	payload, err := s.store.Get(ctx, credentialKey(address))
	if errors.Is(err, core.ErrNotFound) {
		return core.Credential{}, core.ErrNoCredential
	}
	if err != nil {
		return core.Credential{}, fmt.Errorf("failed to load credential: %w", err)
	}

	var cred core.Credential
	if err := json.Unmarshal([]byte(payload), &cred); err != nil || cred.Token == "" {
		_ = s.store.Delete(ctx, credentialKey(address))
		return core.Credential{}, core.ErrNoCredential
	}

	if !s.belongsTo(cred, address) {
		_ = s.store.Delete(ctx, credentialKey(address))
		return core.Credential{}, core.ErrNoCredential
	}

	return cred, nil
}

// Remove deletes the credential stored for address
func (s *CredentialStore) Remove(ctx context.Context, address common.Address) error {
	if err := s.store.Delete(ctx, credentialKey(address)); err != nil {
		return fmt.Errorf("failed to remove credential: %w", err)
	}
	return nil
}

// belongsTo checks the stored address and, for JWTs, the token subject.
// Opaque tokens are trusted on the stored address alone.
func (s *CredentialStore) belongsTo(cred core.Credential, address common.Address) bool {
	if cred.Address != core.AddressKey(address) {
		return false
	}

	info, err := tokenizer.Inspect(cred.Token)
	if err != nil || info.Subject == "" {
		return true
	}
	return strings.EqualFold(info.Subject, address.Hex())
}
