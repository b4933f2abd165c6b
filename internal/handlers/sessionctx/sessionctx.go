package sessionctx

import (
	"context"

	"github.com/nkiryanov/eazynet/internal/service/authstate"
	"github.com/nkiryanov/eazynet/internal/service/session"
)

type ctxKey string

const sessionKey ctxKey = "session"

// Per request view of the visitor's session
type Session struct {
	Client *session.Client
	Auth   *authstate.Context
}

// Create a new context with the session
func New(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

// Extract the session from the context
func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(sessionKey).(*Session)
	return s, ok && s != nil
}
