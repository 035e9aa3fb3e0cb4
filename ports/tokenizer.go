package ports

import "github.com/layer-3/moduls/core"

// Tokenizer converts between sessions and bearer tokens
type Tokenizer interface {
	SessionToAccessToken(session *core.Session) (string, error)
	AccessTokenToSession(token string) (*core.Session, error)
}
