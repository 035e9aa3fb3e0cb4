package core

import (
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// State is a step of the wallet session lifecycle
type State string

const (
	StateDisconnected  State = "disconnected"
	StateChecking      State = "checking"
	StateSigning       State = "signing"
	StateVerifying     State = "verifying"
	StateAuthenticated State = "authenticated"
	StateFailed        State = "failed"
)

// WalletIdentity is what the wallet connector reports about the active account
type WalletIdentity struct {
	Address common.Address // Active account
	ChainID int64          // Active chain
}

// AddressKey normalises an address for use in storage and cache keys
func AddressKey(address common.Address) string {
	return strings.ToLower(address.Hex())
}

// Credential is a bearer token issued by the API for one address
type Credential struct {
	Address  string    `json:"address"`   // Address that signed for the token
	Token    string    `json:"token"`     // Opaque bearer token
	StoredAt time.Time `json:"stored_at"` // When the token was persisted
}

// SignatureEntry is the single cached SIWE signature of the session
type SignatureEntry struct {
	Address   common.Address
	Message   string
	Signature string
	SignedAt  time.Time
}

// SessionEvent describes a state transition of the session
type SessionEvent struct {
	Address string    `json:"address"`
	From    State     `json:"from"`
	To      State     `json:"to"`
	Reason  string    `json:"reason,omitempty"`
	At      time.Time `json:"at"`
}

// User is the account returned by the API for a valid credential
type User struct {
	Address   string    `json:"address"`
	Username  string    `json:"username,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}
