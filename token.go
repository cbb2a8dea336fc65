package warden

import (
	"context"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"dario.cat/mergo"
	"github.com/256dpi/oauth2/v2"
	"github.com/256dpi/serve"
	"github.com/256dpi/xo"

	"github.com/warden-io/warden/flow"
	"github.com/warden-io/warden/seal"
	"github.com/warden-io/warden/vault"
)

// errInvalidBasicAuth marks client authentication failures of requests that
// carry basic credentials. Those yield a 401 instead of an OAuth2 error.
var errInvalidBasicAuth = xo.BF("invalid basic credentials")

// tokenResponse is the body of a successful token request. The non-standard
// refresh expiry is included for clients that want to schedule re-authorization.
type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	ExpiresIn        int64  `json:"expires_in"`
	RefreshToken     string `json:"refresh_token,omitempty"`
	RefreshExpiresIn int64  `json:"refresh_expires_in,omitempty"`
	Scope            string `json:"scope"`
	TokenType        string `json:"token_type"`
}

func (a *Authenticator) tokenEndpoint(w http.ResponseWriter, r *http.Request) error {
	// set cors headers
	w.Header().Set("Access-Control-Allow-Origin", "*")

	// handle preflight
	if r.Method == "OPTIONS" {
		headers := append([]string{"authorization", "content-type"}, a.policy.AllowedHeaders...)
		w.Header().Set("Access-Control-Allow-Methods", "POST")
		w.Header().Set("Access-Control-Allow-Headers", strings.Join(headers, ","))
		w.WriteHeader(http.StatusNoContent)
		return nil
	}

	// check method
	if r.Method != "POST" {
		w.WriteHeader(http.StatusNotFound)
		return nil
	}

	// set cache headers
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")

	// check content type
	contentType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if contentType != "application/x-www-form-urlencoded" {
		w.WriteHeader(http.StatusUnsupportedMediaType)
		return nil
	}

	// read limited body
	serve.LimitBody(w, r, serve.MustByteSize("1M"))
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return xo.W(err)
	}

	// check encoding
	if !utf8.Valid(body) {
		return oauth2.InvalidRequest("body: invalid encoding")
	}

	// parse form
	form, err := url.ParseQuery(string(body))
	if err != nil {
		return oauth2.InvalidRequest("body: is malformed")
	}

	// get request
	req := flow.ParseTokenRequest(form)

	// check grant type
	if err := flow.ValidateGrantType(req.GrantType); err != nil {
		return err
	}

	// authenticate client
	client, err := a.authenticateClient(r.Context(), r, req)
	if errInvalidBasicAuth.Is(err) {
		w.Header().Set("WWW-Authenticate", "Basic")
		http.Error(w, "invalid client credentials", http.StatusUnauthorized)
		return nil
	} else if err != nil {
		return err
	}

	// handle grant
	switch req.GrantType {
	case oauth2.AuthorizationCodeGrantType:
		return a.authorizationCodeGrant(w, r, client, req)
	case oauth2.RefreshTokenGrantType:
		return a.refreshTokenGrant(w, r, client, req)
	}

	return oauth2.UnsupportedGrantType("grant_type: not supported")
}

// authenticateClient resolves and authenticates the requesting client from
// basic credentials or the request body. Basic credentials take precedence
// and their failures are marked with errInvalidBasicAuth.
func (a *Authenticator) authenticateClient(ctx context.Context, r *http.Request, req flow.TokenRequest) (*vault.Client, error) {
	// prefer basic credentials
	clientID, clientSecret := req.ClientID, req.ClientSecret
	basic := false
	if id, secret, ok := r.BasicAuth(); ok {
		clientID, clientSecret, basic = id, secret, true
	}

	// prepare failure helper. failures of body credentials answer with a
	// plain 400 and no challenge
	fail := func(description string) error {
		if basic {
			return errInvalidBasicAuth.Wrap()
		}
		oauth2Error := oauth2.InvalidClient(description)
		oauth2Error.Status = http.StatusBadRequest
		oauth2Error.Headers = nil
		return oauth2Error
	}

	// resolve client
	if clientID == "" {
		return nil, fail("client_id: can't be blank")
	}
	client, err := a.vault.GetClient(ctx, clientID)
	if err != nil {
		return nil, err
	} else if client == nil {
		return nil, fail("client_id: does not exist")
	}

	// verify secret. confidential clients always need one, public clients
	// only when they send one anyway
	if client.Type == vault.Confidential || clientSecret != "" {
		if clientSecret == "" {
			return nil, fail("client_secret: can't be blank")
		}
		ok, err := a.vault.VerifyClientSecret(client, clientSecret)
		if err != nil {
			return nil, err
		} else if !ok {
			return nil, fail("client_secret: is invalid")
		}
	}

	return client, nil
}

func (a *Authenticator) authorizationCodeGrant(w http.ResponseWriter, r *http.Request, client *vault.Client, req flow.TokenRequest) error {
	// check code
	if req.Code == "" {
		return oauth2.InvalidRequest("code: can't be blank")
	}

	// lookup grant
	grant, authorization, err := a.vault.GetGrantByCode(r.Context(), req.Code)
	if err != nil {
		return err
	} else if grant == nil || grant.Type != vault.AuthorizationCode {
		return oauth2.InvalidGrant("code: not found")
	}

	// check expiry
	if grant.Expired(time.Now()) {
		return oauth2.InvalidGrant("code: expired")
	}

	// check ownership
	if authorization.ClientID != client.ID {
		return oauth2.InvalidGrant("client_id: does not match code")
	}

	// check grant type support
	if !client.SupportsGrantType(vault.AuthorizationCode) {
		return oauth2.UnauthorizedClient("grant_type: not allowed")
	}

	// check redirect uri
	if grant.RedirectURISpecified && req.RedirectURI == "" {
		return oauth2.InvalidRequest("redirect_uri: can't be blank")
	} else if req.RedirectURI != "" && req.RedirectURI != grant.RedirectURI {
		return oauth2.InvalidGrant("redirect_uri: does not match")
	}

	// check proof key
	challenge, err := a.vault.GrantChallenge(grant)
	if err != nil {
		return err
	}
	if challenge != "" {
		if req.CodeVerifier == "" {
			return oauth2.InvalidRequest("code_verifier: can't be blank")
		} else if !seal.VerifyS256(challenge, req.CodeVerifier) {
			return oauth2.InvalidGrant("code_verifier: is invalid")
		}
	} else if req.CodeVerifier != "" {
		return oauth2.InvalidRequest("code_verifier: no challenge issued")
	}

	// narrow scope
	scope, oauth2Error := flow.NarrowScope(req.Scope, oauth2.Scope(authorization.Scope))
	if oauth2Error != nil {
		return oauth2Error
	}

	// consume grant. the conditional delete gates issuance so concurrent
	// exchanges of the same code produce exactly one success
	ok, err := a.vault.DeleteGrant(r.Context(), grant.ID)
	if err != nil {
		return err
	} else if !ok {
		return oauth2.InvalidGrant("code: not found")
	}

	return a.mintAndRespond(r.Context(), w, client, grant.ResourceOwnerID, scope)
}

func (a *Authenticator) refreshTokenGrant(w http.ResponseWriter, r *http.Request, client *vault.Client, req flow.TokenRequest) error {
	// check token
	if req.RefreshToken == "" {
		return oauth2.InvalidRequest("refresh_token: can't be blank")
	}

	// verify token
	claims, err := a.policy.verifyRefreshToken(r.Context(), req.RefreshToken)
	if err != nil {
		switch {
		case ErrTokenExpired.Is(err):
			return oauth2.InvalidGrant("refresh_token: expired")
		case ErrTokenReused.Is(err):
			// reuse hints at a leaked token
			if a.reporter != nil {
				a.reporter(err)
			}
			return oauth2.InvalidGrant("refresh_token: is invalid")
		case ErrTokenInvalid.Is(err) || ErrSessionUnknown.Is(err):
			return oauth2.InvalidGrant("refresh_token: is invalid")
		}
		return err
	}

	// check ownership
	clientID, _ := claims["cid"].(string)
	if clientID != client.ID {
		return oauth2.InvalidGrant("client_id: does not match refresh token")
	}

	// the authorization is the revocation handle, it must still exist
	userID, _ := claims["sub"].(string)
	authorization, err := a.vault.GetAuthorization(r.Context(), client.ID, userID)
	if err != nil {
		return err
	} else if authorization == nil {
		return oauth2.InvalidGrant("authorization: does not exist")
	}

	// check grant type support
	if !client.SupportsGrantType(vault.RefreshToken) {
		return oauth2.UnauthorizedClient("grant_type: not allowed")
	}

	// narrow scope
	scope, oauth2Error := flow.NarrowScope(req.Scope, oauth2.Scope(authorization.Scope))
	if oauth2Error != nil {
		return oauth2Error
	}

	return a.mintAndRespond(r.Context(), w, client, userID, scope)
}

// mintAndRespond builds the session upsert arguments, applies the configured
// customization, mints a token bundle and writes the token response.
func (a *Authenticator) mintAndRespond(ctx context.Context, w http.ResponseWriter, client *vault.Client, userID string, scope oauth2.Scope) error {
	// prepare upsert arguments
	upsert := SessionUpsert{
		UserID:         userID,
		TokenTransport: BearerTransport,
		SessionType:    OAuth2SessionType,
		AccessClaims: Claims{
			"cid":   client.ID,
			"scope": []string(scope),
		},
		RefreshClaims: Claims{
			"cid": client.ID,
		},
	}

	// customize and reapply the reserved claims
	if a.policy.CustomizeSessionUpsert != nil {
		a.policy.CustomizeSessionUpsert(&upsert)
		err := mergo.Merge(&upsert.AccessClaims, Claims{
			"cid":   client.ID,
			"scope": []string(scope),
		}, mergo.WithOverride)
		if err != nil {
			return xo.W(err)
		}
		err = mergo.Merge(&upsert.RefreshClaims, Claims{
			"cid": client.ID,
		}, mergo.WithOverride)
		if err != nil {
			return xo.W(err)
		}
	}

	// mint tokens
	bundle, err := a.policy.Minter.MintTokens(ctx, upsert)
	if err != nil {
		return err
	}

	// write response
	response := tokenResponse{
		AccessToken: bundle.AccessToken,
		ExpiresIn:   int64(time.Until(bundle.AccessExpiresAt).Round(time.Second) / time.Second),
		Scope:       scope.String(),
		TokenType:   "bearer",
	}
	if bundle.RefreshToken != "" {
		response.RefreshToken = bundle.RefreshToken
		response.RefreshExpiresIn = int64(time.Until(bundle.RefreshExpiresAt).Round(time.Second) / time.Second)
	}

	return writeJSON(w, http.StatusOK, response)
}
