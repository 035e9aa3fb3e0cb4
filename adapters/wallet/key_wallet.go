package wallet

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/layer-3/moduls/core"
	"github.com/layer-3/moduls/internal/eth"
	"github.com/layer-3/moduls/ports"
)

// Approver decides whether a sign-in message may be signed.
// Returning false declines the request.
type Approver func(ctx context.Context, message string) (bool, error)

// AutoApprove signs every request
func AutoApprove(ctx context.Context, message string) (bool, error) {
	return true, nil
}

// KeyWallet is a wallet backed by a local secp256k1 key
type KeyWallet struct {
	approve Approver

	mu        sync.Mutex
	key       *ecdsa.PrivateKey
	chainID   int64
	connected bool
}

var _ ports.Wallet = (*KeyWallet)(nil)

// NewKeyWallet creates a wallet for key on chainID
func NewKeyWallet(key *ecdsa.PrivateKey, chainID int64, approve Approver) *KeyWallet {
	if approve == nil {
		approve = AutoApprove
	}
	return &KeyWallet{key: key, chainID: chainID, approve: approve}
}

// FromHex creates a wallet from a hex private key, with or without 0x
func FromHex(hexKey string, chainID int64, approve Approver) (*KeyWallet, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return NewKeyWallet(key, chainID, approve), nil
}

// FromKeystore decrypts a V3 keystore file
func FromKeystore(path, passphrase string, chainID int64, approve Approver) (*KeyWallet, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read keystore: %w", err)
	}

	key, err := keystore.DecryptKey(raw, passphrase)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt keystore: %w", err)
	}

	return NewKeyWallet(key.PrivateKey, chainID, approve), nil
}

func (w *KeyWallet) Connect(ctx context.Context) (core.WalletIdentity, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.connected = true
	return w.identityLocked(), nil
}

func (w *KeyWallet) Disconnect(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.connected = false
	return nil
}

// Connected reports whether the wallet is connected
func (w *KeyWallet) Connected() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.connected
}

// SwitchAccount replaces the active key and returns the new identity
func (w *KeyWallet) SwitchAccount(key *ecdsa.PrivateKey) core.WalletIdentity {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.key = key
	return w.identityLocked()
}

// SignMessage signs message after approval
func (w *KeyWallet) SignMessage(ctx context.Context, message string) (string, error) {
	w.mu.Lock()
	key, connected := w.key, w.connected
	w.mu.Unlock()

	if !connected {
		return "", core.ErrNotConnected
	}

	ok, err := w.approve(ctx, message)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", core.ErrSignatureRejected
	}

	sig, err := eth.SignText(key, message)
	if err != nil {
		return "", err
	}
	return hexutil.Encode(sig), nil
}

func (w *KeyWallet) identityLocked() core.WalletIdentity {
	return core.WalletIdentity{
		Address: crypto.PubkeyToAddress(w.key.PublicKey),
		ChainID: w.chainID,
	}
}
