// Package eth holds the Ethereum pieces of the sign-in flow: EIP-4361 messages
// and EIP-191 personal signatures.
package eth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/layer-3/moduls/core"
)

const (
	preambleSuffix = " wants you to sign in with your Ethereum account:"
	messageVersion = "1"

	uriTag            = "URI: "
	versionTag        = "Version: "
	chainIDTag        = "Chain ID: "
	nonceTag          = "Nonce: "
	issuedAtTag       = "Issued At: "
	expirationTimeTag = "Expiration Time: "
)

// Message is a Sign-In with Ethereum message
type Message struct {
	Domain         string
	Address        common.Address
	Statement      string
	URI            string
	Version        string
	ChainID        int64
	Nonce          string
	IssuedAt       time.Time
	ExpirationTime time.Time // zero when the message does not expire
}

// NewMessage builds a version 1 message issued at issuedAt
func NewMessage(domain string, address common.Address, statement, uri string, chainID int64, nonce string, issuedAt time.Time) *Message {
	return &Message{
		Domain:    domain,
		Address:   address,
		Statement: statement,
		URI:       uri,
		Version:   messageVersion,
		ChainID:   chainID,
		Nonce:     nonce,
		IssuedAt:  issuedAt.UTC(),
	}
}

// String renders the message in the EIP-4361 text format
func (m *Message) String() string {
	var b strings.Builder

	b.WriteString(m.Domain + preambleSuffix + "\n")
	b.WriteString(m.Address.Hex() + "\n")
	b.WriteString("\n")
	if m.Statement != "" {
		b.WriteString(m.Statement + "\n")
	}
	b.WriteString("\n")
	b.WriteString(uriTag + m.URI + "\n")
	b.WriteString(versionTag + m.Version + "\n")
	b.WriteString(chainIDTag + strconv.FormatInt(m.ChainID, 10) + "\n")
	b.WriteString(nonceTag + m.Nonce + "\n")
	b.WriteString(issuedAtTag + m.IssuedAt.Format(time.RFC3339))
	if !m.ExpirationTime.IsZero() {
		b.WriteString("\n" + expirationTimeTag + m.ExpirationTime.UTC().Format(time.RFC3339))
	}

	return b.String()
}

// Expired reports whether the message carries an expiration time before now
func (m *Message) Expired(now time.Time) bool {
	return !m.ExpirationTime.IsZero() && now.After(m.ExpirationTime)
}

// ParseMessage parses the EIP-4361 text format produced by String
func ParseMessage(text string) (*Message, error) {
	lines := strings.Split(text, "\n")
	if len(lines) < 8 {
		return nil, fmt.Errorf("message too short: %w", core.ErrInvalidMessage)
	}

	domain, ok := strings.CutSuffix(lines[0], preambleSuffix)
	if !ok || domain == "" {
		return nil, fmt.Errorf("missing preamble: %w", core.ErrInvalidMessage)
	}
	if !common.IsHexAddress(lines[1]) {
		return nil, fmt.Errorf("bad address %q: %w", lines[1], core.ErrInvalidMessage)
	}
	if lines[2] != "" {
		return nil, fmt.Errorf("missing blank line after address: %w", core.ErrInvalidMessage)
	}

	msg := &Message{
		Domain:  domain,
		Address: common.HexToAddress(lines[1]),
	}

	rest := lines[3:]
	if rest[0] != "" {
		msg.Statement = rest[0]
		rest = rest[1:]
	}
	if len(rest) == 0 || rest[0] != "" {
		return nil, fmt.Errorf("missing blank line after statement: %w", core.ErrInvalidMessage)
	}
	rest = rest[1:]

	var err error
	for _, line := range rest {
		switch {
		case strings.HasPrefix(line, uriTag):
			msg.URI = strings.TrimPrefix(line, uriTag)
		case strings.HasPrefix(line, versionTag):
			msg.Version = strings.TrimPrefix(line, versionTag)
		case strings.HasPrefix(line, chainIDTag):
			msg.ChainID, err = strconv.ParseInt(strings.TrimPrefix(line, chainIDTag), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("bad chain id: %w", core.ErrInvalidMessage)
			}
		case strings.HasPrefix(line, nonceTag):
			msg.Nonce = strings.TrimPrefix(line, nonceTag)
		case strings.HasPrefix(line, issuedAtTag):
			msg.IssuedAt, err = time.Parse(time.RFC3339, strings.TrimPrefix(line, issuedAtTag))
			if err != nil {
				return nil, fmt.Errorf("bad issued-at: %w", core.ErrInvalidMessage)
			}
		case strings.HasPrefix(line, expirationTimeTag):
			msg.ExpirationTime, err = time.Parse(time.RFC3339, strings.TrimPrefix(line, expirationTimeTag))
			if err != nil {
				return nil, fmt.Errorf("bad expiration time: %w", core.ErrInvalidMessage)
			}
		default:
			return nil, fmt.Errorf("unexpected line %q: %w", line, core.ErrInvalidMessage)
		}
	}

	if msg.URI == "" || msg.Version != messageVersion || msg.ChainID == 0 || len(msg.Nonce) < 8 || msg.IssuedAt.IsZero() {
		return nil, fmt.Errorf("missing required field: %w", core.ErrInvalidMessage)
	}

	return msg, nil
}

// GenerateNonce returns a random alphanumeric nonce
func GenerateNonce() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
