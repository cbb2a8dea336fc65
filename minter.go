package warden

import (
	"context"
	"time"
)

// The token transport and session type used for tokens minted by the token
// endpoint. The dedicated session type keeps bulk operations on first-party
// sessions from severing third-party connections.
const (
	BearerTransport   = "bearer"
	OAuth2SessionType = "oauth2"
)

// Claims is a generic set of token claims.
type Claims map[string]interface{}

// SessionUpsert describes the session that backs a minted token pair.
type SessionUpsert struct {
	// The resource owner the session belongs to.
	UserID string

	// The transport of the minted tokens.
	TokenTransport string

	// The logical session namespace.
	SessionType string

	// Additional claims for the minted access and refresh tokens.
	AccessClaims  Claims
	RefreshClaims Claims
}

// TokenBundle is a pair of freshly minted tokens.
type TokenBundle struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// A TokenMinter mints access and refresh token pairs. Implementations are
// expected to persist a server side session per user and session type so that
// revoking one class of sessions does not disturb the others.
type TokenMinter interface {
	MintTokens(ctx context.Context, upsert SessionUpsert) (*TokenBundle, error)
}

// A RefreshTokenVerifier verifies a raw refresh token and returns its claims.
// The verifier is expected to tolerate a small grace window after a rotation
// to cope with clock skew and clients retrying near the boundary.
type RefreshTokenVerifier interface {
	VerifyRefreshToken(ctx context.Context, token string) (Claims, error)
}
