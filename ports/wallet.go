package ports

import (
	"context"

	"github.com/layer-3/moduls/core"
)

// Wallet is the connector that owns the user's account
type Wallet interface {
	// Connect returns the active identity
	Connect(ctx context.Context) (core.WalletIdentity, error)

	// Disconnect drops the connection
	Disconnect(ctx context.Context) error

	// SignMessage returns a hex EIP-191 signature of message.
	// A user decline is reported as core.ErrSignatureRejected.
	SignMessage(ctx context.Context, message string) (string, error)
}
