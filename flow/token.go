package flow

import (
	"net/url"

	"github.com/256dpi/oauth2/v2"
)

// TokenRequest holds the raw parameters of a token request.
type TokenRequest struct {
	GrantType    string
	Code         string
	RedirectURI  string
	ClientID     string
	ClientSecret string
	RefreshToken string
	CodeVerifier string
	Scope        string
}

// ParseTokenRequest extracts the token request parameters from the provided
// form values.
func ParseTokenRequest(form url.Values) TokenRequest {
	return TokenRequest{
		GrantType:    form.Get("grant_type"),
		Code:         form.Get("code"),
		RedirectURI:  form.Get("redirect_uri"),
		ClientID:     form.Get("client_id"),
		ClientSecret: form.Get("client_secret"),
		RefreshToken: form.Get("refresh_token"),
		CodeVerifier: form.Get("code_verifier"),
		Scope:        form.Get("scope"),
	}
}

// ValidateGrantType ensures the provided grant type is present and one of the
// implemented grant types.
func ValidateGrantType(grantType string) *oauth2.Error {
	// check presence
	if grantType == "" {
		return oauth2.InvalidRequest("grant_type: can't be blank")
	}

	// check support
	switch grantType {
	case oauth2.AuthorizationCodeGrantType, oauth2.RefreshTokenGrantType:
		return nil
	}

	return oauth2.UnsupportedGrantType("grant_type: not supported")
}
