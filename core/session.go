package core

import "time"

// Session is an issued access grant
type Session struct {
	ID        string    // Token identifier, used for revocation
	Address   string    // Address that signed in
	ChainID   int64     // Chain the sign-in message named
	IssuedAt  time.Time // When the token was issued
	ExpiresAt time.Time // When the token expires
}
