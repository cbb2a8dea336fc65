package warden

import (
	"context"
	"time"

	"dario.cat/mergo"
	"github.com/256dpi/xo"
	"github.com/golang-jwt/jwt/v4"

	"github.com/warden-io/warden/vault"
)

// ErrTokenInvalid is returned for tokens that are malformed, carry an invalid
// signature or miss required claims.
var ErrTokenInvalid = xo.BF("invalid token")

// ErrTokenExpired is returned for tokens that are expired but otherwise valid.
var ErrTokenExpired = xo.BF("expired token")

// ErrSessionUnknown is returned for tokens whose backing session is missing
// or has been replaced.
var ErrSessionUnknown = xo.BF("unknown session")

// ErrTokenReused is returned for refresh tokens that have been invalidated by
// a later rotation.
var ErrTokenReused = xo.BF("reused token")

var jwtSigningMethod = jwt.SigningMethodHS256

var jwtParser = &jwt.Parser{
	ValidMethods: []string{jwtSigningMethod.Name},
}

// StandardMinter mints HMAC signed bearer token pairs that are backed by
// server side sessions. Every mint rotates the session by incrementing its
// index, which invalidates earlier refresh tokens once the rotation grace
// window has passed.
type StandardMinter struct {
	// The token lifespans.
	AccessTokenLifespan  time.Duration
	RefreshTokenLifespan time.Duration

	// The window during which the refresh token of the previous rotation is
	// still accepted.
	RotationGrace time.Duration

	vault  *vault.Vault
	secret []byte
}

// NewStandardMinter creates a minter that persists sessions in the provided
// vault and signs tokens with the provided secret.
func NewStandardMinter(v *vault.Vault, secret []byte) *StandardMinter {
	return &StandardMinter{
		AccessTokenLifespan:  time.Hour,
		RefreshTokenLifespan: 7 * 24 * time.Hour,
		RotationGrace:        10 * time.Second,
		vault:                v,
		secret:               secret,
	}
}

// MintTokens implements the TokenMinter interface.
func (m *StandardMinter) MintTokens(ctx context.Context, upsert SessionUpsert) (*TokenBundle, error) {
	// rotate session
	session, err := m.vault.UpsertSession(ctx, upsert.UserID, upsert.SessionType)
	if err != nil {
		return nil, err
	}

	// get time
	now := time.Now()
	accessExpiry := now.Add(m.AccessTokenLifespan)
	refreshExpiry := now.Add(m.RefreshTokenLifespan)

	// sign access token
	accessToken, err := m.sign(upsert.AccessClaims, Claims{
		"sub":  upsert.UserID,
		"type": "access",
		"styp": upsert.SessionType,
		"sid":  session.ID,
		"idx":  session.Index,
		"iat":  now.Unix(),
		"nbf":  now.Unix(),
		"exp":  accessExpiry.Unix(),
	})
	if err != nil {
		return nil, err
	}

	// sign refresh token
	refreshToken, err := m.sign(upsert.RefreshClaims, Claims{
		"sub":  upsert.UserID,
		"type": "refresh",
		"styp": upsert.SessionType,
		"sid":  session.ID,
		"idx":  session.Index,
		"iat":  now.Unix(),
		"nbf":  now.Unix(),
		"exp":  refreshExpiry.Unix(),
	})
	if err != nil {
		return nil, err
	}

	return &TokenBundle{
		AccessToken:      accessToken,
		AccessExpiresAt:  accessExpiry,
		RefreshToken:     refreshToken,
		RefreshExpiresAt: refreshExpiry,
	}, nil
}

// VerifyRefreshToken implements the RefreshTokenVerifier interface. Beyond
// signature and validity window it requires the backing session to still
// exist and the token index to be current or within the rotation grace
// window of the previous rotation.
func (m *StandardMinter) VerifyRefreshToken(ctx context.Context, token string) (Claims, error) {
	// verify token
	claims, err := m.verify(token)
	if err != nil {
		return nil, err
	}

	// check claims
	typ, _ := claims["type"].(string)
	styp, _ := claims["styp"].(string)
	sub, _ := claims["sub"].(string)
	sid, _ := claims["sid"].(string)
	idx, hasIndex := claims["idx"].(float64)
	if typ != "refresh" || styp != OAuth2SessionType || sub == "" || sid == "" || !hasIndex {
		return nil, ErrTokenInvalid.Wrap()
	}

	// load session
	session, err := m.vault.GetSession(ctx, sub, styp)
	if err != nil {
		return nil, err
	} else if session == nil || session.ID != sid {
		return nil, ErrSessionUnknown.Wrap()
	}

	// check freshness
	if int64(idx) != session.Index {
		if int64(idx) != session.Index-1 || time.Since(session.RotatedAt) > m.RotationGrace {
			return nil, ErrTokenReused.Wrap()
		}
	}

	return claims, nil
}

// VerifyAccessToken verifies an access token. The backing session must still
// exist, which allows revocation of all outstanding tokens by deleting the
// session.
func (m *StandardMinter) VerifyAccessToken(ctx context.Context, token string) (Claims, error) {
	// verify token
	claims, err := m.verify(token)
	if err != nil {
		return nil, err
	}

	// check claims
	typ, _ := claims["type"].(string)
	styp, _ := claims["styp"].(string)
	sub, _ := claims["sub"].(string)
	sid, _ := claims["sid"].(string)
	if typ != "access" || styp == "" || sub == "" || sid == "" {
		return nil, ErrTokenInvalid.Wrap()
	}

	// load session
	session, err := m.vault.GetSession(ctx, sub, styp)
	if err != nil {
		return nil, err
	} else if session == nil || session.ID != sid {
		return nil, ErrSessionUnknown.Wrap()
	}

	return claims, nil
}

func (m *StandardMinter) sign(custom, core Claims) (string, error) {
	// merge claims with the core claims taking precedence
	claims := Claims{}
	for key, value := range custom {
		claims[key] = value
	}
	err := mergo.Merge(&claims, core, mergo.WithOverride)
	if err != nil {
		return "", xo.W(err)
	}

	// sign token
	str, err := jwt.NewWithClaims(jwtSigningMethod, jwt.MapClaims(claims)).SignedString(m.secret)
	if err != nil {
		return "", xo.W(err)
	}

	return str, nil
}

func (m *StandardMinter) verify(token string) (Claims, error) {
	// parse token
	tkn, err := jwtParser.Parse(token, func(*jwt.Token) (interface{}, error) {
		return m.secret, nil
	})
	if valErr, ok := err.(*jwt.ValidationError); ok {
		if valErr.Errors&jwt.ValidationErrorExpired != 0 {
			return nil, ErrTokenExpired.Wrap()
		}
		return nil, ErrTokenInvalid.Wrap()
	} else if err != nil {
		return nil, ErrTokenInvalid.Wrap()
	} else if !tkn.Valid {
		return nil, ErrTokenInvalid.Wrap()
	}

	// get claims
	claims, ok := tkn.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrTokenInvalid.Wrap()
	}

	return Claims(claims), nil
}
