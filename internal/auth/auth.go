// Package auth defines the authorization gate boundary. The gate verifies
// that the principal named in a request actually authorized the call; the
// engine itself only decides *which* principal each operation requires.
package auth

import (
	"crypto/subtle"
	"net/http"

	"github.com/stellarsave/savings-engine/internal/apperr"
)

// Headers carrying the caller's identity proof.
const (
	PrincipalHeader = "X-Principal"
	TokenHeader     = "X-Auth-Token"
)

// Gate approves or rejects a request on behalf of a claimed principal.
type Gate interface {
	// Require returns an authorization error unless the request proves it
	// was made by principal.
	Require(r *http.Request, principal string) error
}

// HeaderGate checks that the request's X-Principal header matches the
// claimed principal and, when a shared secret is configured, that
// X-Auth-Token matches it. Suitable behind a terminating proxy that has
// already authenticated the caller and stamped the headers.
type HeaderGate struct {
	secret string
}

// NewHeaderGate creates a gate with an optional shared secret.
func NewHeaderGate(secret string) *HeaderGate {
	return &HeaderGate{secret: secret}
}

func (g *HeaderGate) Require(r *http.Request, principal string) error {
	if principal == "" {
		return apperr.E(apperr.KindValidation, "InvalidPrincipal", "principal is required")
	}
	if r.Header.Get(PrincipalHeader) != principal {
		return apperr.Ef(apperr.KindAuthorization, "NotAuthorized",
			"request not authorized by %s", principal)
	}
	if g.secret != "" {
		token := r.Header.Get(TokenHeader)
		if subtle.ConstantTimeCompare([]byte(token), []byte(g.secret)) != 1 {
			return apperr.E(apperr.KindAuthorization, "NotAuthorized", "invalid auth token")
		}
	}
	return nil
}

// AllowAll approves every request. Development and tests only.
type AllowAll struct{}

func (AllowAll) Require(_ *http.Request, principal string) error {
	if principal == "" {
		return apperr.E(apperr.KindValidation, "InvalidPrincipal", "principal is required")
	}
	return nil
}
