package warden

import (
	"context"
	"errors"
	"net/http"

	"github.com/256dpi/oauth2/v2"

	"github.com/warden-io/warden/flow"
)

type contextKey int

// accessClaimsKey is used to store the verified access token claims.
const accessClaimsKey contextKey = iota

// AccessClaims returns the verified access token claims stored in the request
// context by the Authorizer middleware.
func AccessClaims(ctx context.Context) Claims {
	claims, _ := ctx.Value(accessClaimsKey).(Claims)
	return claims
}

// Authorizer returns a middleware that requires a bearer access token which
// grants the provided scope. The verified claims are stored in the request
// context.
func (a *Authenticator) Authorizer(scope string) func(http.Handler) http.Handler {
	// parse scope
	requiredScope := flow.ParseScope(scope)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// parse token
			tk, err := oauth2.ParseBearerToken(r)
			if err != nil {
				var oauth2Error *oauth2.Error
				if !errors.As(err, &oauth2Error) {
					oauth2Error = oauth2.ServerError("")
				}
				_ = oauth2.WriteBearerError(w, oauth2Error)
				return
			}

			// verify token
			claims, err := a.policy.VerifyAccessToken(r.Context(), tk)
			if err != nil {
				switch {
				case ErrTokenExpired.Is(err):
					_ = oauth2.WriteBearerError(w, oauth2.InvalidToken("expired access token"))
				case ErrTokenInvalid.Is(err):
					_ = oauth2.WriteBearerError(w, oauth2.InvalidToken("malformed access token"))
				case ErrSessionUnknown.Is(err):
					_ = oauth2.WriteBearerError(w, oauth2.InvalidToken("unknown session"))
				default:
					if a.reporter != nil {
						a.reporter(err)
					}
					_ = oauth2.WriteBearerError(w, oauth2.ServerError(""))
				}
				return
			}

			// check scope
			if !claimsScope(claims).Includes(requiredScope) {
				_ = oauth2.WriteBearerError(w, oauth2.InsufficientScope(requiredScope))
				return
			}

			// continue with claims
			r = r.WithContext(context.WithValue(r.Context(), accessClaimsKey, claims))
			next.ServeHTTP(w, r)
		})
	}
}

// claimsScope extracts the granted scope from token claims.
func claimsScope(claims Claims) oauth2.Scope {
	switch value := claims["scope"].(type) {
	case []string:
		return oauth2.Scope(value)
	case []interface{}:
		scope := make(oauth2.Scope, 0, len(value))
		for _, entry := range value {
			if str, ok := entry.(string); ok {
				scope = append(scope, str)
			}
		}
		return scope
	case string:
		return flow.ParseScope(value)
	}

	return nil
}
