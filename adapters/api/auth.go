package api

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/layer-3/moduls/core"
	"github.com/layer-3/moduls/ports"
)

var _ ports.AuthAPI = (*Client)(nil)

type nonceResponse struct {
	Nonce string `json:"nonce"`
}

// VerifyRequest carries a signed sign-in message
type VerifyRequest struct {
	Message   string `json:"message"`
	Signature string `json:"signature"`
}

// VerifyResponse is returned for an accepted signature
type VerifyResponse struct {
	Token       string     `json:"token,omitempty"`
	AccessToken string     `json:"access_token,omitempty"`
	User        *core.User `json:"user,omitempty"`
}

// Nonce asks the API for a sign-in nonce for address
func (c *Client) Nonce(ctx context.Context, address string) (string, error) {
	var resp nonceResponse
	path := PathNonce + "?" + url.Values{"address": {address}}.Encode()
	if err := c.do(ctx, http.MethodGet, path, "", nil, &resp); err != nil {
		return "", err
	}
	if resp.Nonce == "" {
		return "", errors.New("empty nonce response")
	}
	return resp.Nonce, nil
}

// Verify exchanges a signed message for a bearer token
func (c *Client) Verify(ctx context.Context, message, signature string) (string, error) {
	var resp VerifyResponse
	req := VerifyRequest{Message: message, Signature: signature}
	if err := c.do(ctx, http.MethodPost, PathVerify, "", req, &resp); err != nil {
		return "", err
	}

	token := resp.Token
	if token == "" {
		token = resp.AccessToken
	}
	if token == "" {
		return "", core.ErrInvalidToken
	}
	return token, nil
}

// Me returns the user a token belongs to.
// It never reports to the unauthorized handler.
func (c *Client) Me(ctx context.Context, token string) (*core.User, error) {
	var user core.User
	if err := c.do(ctx, http.MethodGet, PathMe, token, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Logout revokes token on the server
func (c *Client) Logout(ctx context.Context, token string) error {
	return c.do(ctx, http.MethodPost, PathLogout, token, nil, nil)
}
