package ports

import (
	"context"

	"github.com/layer-3/moduls/core"
)

// AuthAPI is the part of the remote API used by the session flow
type AuthAPI interface {
	Nonce(ctx context.Context, address string) (string, error)
	Verify(ctx context.Context, message, signature string) (string, error)
	Me(ctx context.Context, token string) (*core.User, error)
	Logout(ctx context.Context, token string) error
}

// UserCache holds query results scoped to a wallet address
type UserCache interface {
	InvalidateUser(address string)
}
