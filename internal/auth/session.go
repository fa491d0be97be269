package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// MinTier is the lowest verification tier allowed to operate on the pool.
const MinTier = 1

var ErrAuthorizationRequired = errors.New("auth: authorization required")

// Session is an authorized actor as issued by the wallet/identity layer.
type Session struct {
	Identity string
	DID      string
	Tier     int
}

type sessionContextKey struct{}

// WithSession attaches a session to ctx.
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, s)
}

// SessionFrom returns the session attached to ctx.
func SessionFrom(ctx context.Context) (Session, bool) {
	if ctx == nil {
		return Session{}, false
	}
	s, ok := ctx.Value(sessionContextKey{}).(Session)
	return s, ok
}

// Authorize checks that ctx carries a session with a sufficient tier.
func Authorize(ctx context.Context) (Session, error) {
	s, ok := SessionFrom(ctx)
	if !ok {
		return Session{}, fmt.Errorf("%w: no active session", ErrAuthorizationRequired)
	}
	if strings.TrimSpace(s.Identity) == "" {
		return Session{}, fmt.Errorf("%w: session has no identity", ErrAuthorizationRequired)
	}
	if s.Tier < MinTier {
		return Session{}, fmt.Errorf("%w: verification tier %d below %d", ErrAuthorizationRequired, s.Tier, MinTier)
	}
	return s, nil
}
