package core

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotConnected       = errors.New("wallet not connected")
	ErrSignatureRejected  = errors.New("signature request rejected")
	ErrNoCredential       = errors.New("no stored credential")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrVerificationFailed = errors.New("signature verification failed")
	ErrInvalidSignature   = errors.New("invalid signature")
	ErrInvalidMessage     = errors.New("invalid sign-in message")
	ErrInvalidNonce       = errors.New("invalid nonce")
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token has expired")
	ErrTokenInvalidated   = errors.New("token has been invalidated")
	ErrNotFound           = errors.New("not found")
	ErrUnknownChain       = errors.New("unknown chain")
	ErrSuperseded         = errors.New("session flow superseded")
)

// ValidationError reports a field-level input problem
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// APIError is a non-success response from the remote API
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// ServerError reports a 5xx answer, which says nothing about the request itself
func (e *APIError) ServerError() bool {
	return e.Status >= http.StatusInternalServerError
}

// Is maps response statuses onto the sentinel errors
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Status == http.StatusUnauthorized
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	}
	return false
}
