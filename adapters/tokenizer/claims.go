package tokenizer

import "github.com/golang-jwt/jwt/v5"

// AccessClaims combines standard claims with the sign-in chain
type AccessClaims struct {
	jwt.RegisteredClaims
	ChainID int64 `json:"chain_id,omitempty"`
}
