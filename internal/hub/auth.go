package hub

import (
	"github.com/roach88/amflow/internal/amflow"
)

// Authenticator resolves a token into the permission it grants.
type Authenticator interface {
	Authenticate(token string) (amflow.Permission, error)
}

// TokenTable is a static Authenticator mapping tokens to permissions.
type TokenTable map[string]amflow.Permission

// Authenticate returns the permission registered for token, or an
// AuthenticationFailure error.
func (t TokenTable) Authenticate(token string) (amflow.Permission, error) {
	perm, ok := t[token]
	if !ok {
		return amflow.Permission{}, amflow.NewError(amflow.KindAuthenticationFailure, amflow.OpAuthenticate, "unknown token")
	}
	return perm, nil
}

// AuthenticatorFunc adapts a function to Authenticator.
type AuthenticatorFunc func(token string) (amflow.Permission, error)

// Authenticate calls f.
func (f AuthenticatorFunc) Authenticate(token string) (amflow.Permission, error) {
	return f(token)
}
