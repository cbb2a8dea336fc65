package warden

import (
	"context"
	"net/http"
	"time"

	"github.com/warden-io/warden/flow"
)

// A Principal extracts the authenticated user from an authorize request. The
// function is expected to consult an opaque header or context value set by an
// upstream authentication layer and return an empty string if absent.
type Principal func(r *http.Request) string

// ContextPrincipal returns a principal that reads the user from the request
// context under the provided key.
func ContextPrincipal(key interface{}) Principal {
	return func(r *http.Request) string {
		str, _ := r.Context().Value(key).(string)
		return str
	}
}

// HeaderPrincipal returns a principal that reads the user from the named
// request header.
func HeaderPrincipal(name string) Principal {
	return func(r *http.Request) string {
		return r.Header.Get(name)
	}
}

// Policy configures the authorization server.
type Policy struct {
	// The universe of application scope strings.
	Scopes []string

	// The PKCE enforcement mode. Defaults to flow.PKCEAll.
	EnforcePKCE flow.PKCEMode

	// The lifespan of issued grants. Defaults to 10 minutes.
	GrantTTL time.Duration

	// The used token minter.
	Minter TokenMinter

	// VerifyRefreshToken may override the refresh token verification. If
	// absent the minter is used if it implements RefreshTokenVerifier.
	VerifyRefreshToken func(ctx context.Context, token string) (Claims, error)

	// VerifyAccessToken is used by the Authorizer middleware to verify
	// access tokens.
	VerifyAccessToken func(ctx context.Context, token string) (Claims, error)

	// CustomizeSessionUpsert may add claims to the session upsert arguments
	// before tokens are minted. The claims set by the endpoint itself are
	// reapplied afterwards and cannot be overridden.
	CustomizeSessionUpsert func(upsert *SessionUpsert)

	// Principal extracts the authenticated user from an authorize request.
	Principal Principal

	// Additional headers allowed on cross origin token requests.
	AllowedHeaders []string
}

// DefaultPolicy returns a policy backed by the provided minter.
func DefaultPolicy(scopes []string, minter *StandardMinter) *Policy {
	return &Policy{
		Scopes:             scopes,
		EnforcePKCE:        flow.PKCEAll,
		GrantTTL:           10 * time.Minute,
		Minter:             minter,
		VerifyRefreshToken: minter.VerifyRefreshToken,
		VerifyAccessToken:  minter.VerifyAccessToken,
		Principal:          HeaderPrincipal("X-User-ID"),
	}
}

// verifyRefreshToken selects the configured refresh token verifier.
func (p *Policy) verifyRefreshToken(ctx context.Context, token string) (Claims, error) {
	if p.VerifyRefreshToken != nil {
		return p.VerifyRefreshToken(ctx, token)
	}
	if verifier, ok := p.Minter.(RefreshTokenVerifier); ok {
		return verifier.VerifyRefreshToken(ctx, token)
	}

	return nil, ErrTokenInvalid.Wrap()
}
