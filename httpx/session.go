package httpx

import (
	"context"
	"strings"

	"github.com/go-chi/oauth"
)

// Session is the authenticated actor of a request.
type Session struct {
	Username string
	Roles    []string
}

type sessionKey struct{}

func (s Session) HasRole(role string) bool {
	for _, r := range s.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// SessionFromClaims builds the session of a request authorized by an OAuth
// bearer token.
func SessionFromClaims(ctx context.Context) (Session, bool) {
	username, _ := ctx.Value(oauth.CredentialContext).(string)
	claims, _ := ctx.Value(oauth.ClaimsContext).(map[string]string)
	if username == "" {
		return Session{}, false
	}

	s := Session{Username: username}
	if roles := claims["roles"]; roles != "" {
		s.Roles = strings.Split(roles, ",")
	}
	return s, true
}

func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

func SessionFrom(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(Session)
	return s, ok
}
