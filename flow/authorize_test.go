package flow

import (
	"testing"

	"github.com/256dpi/oauth2/v2"
	"github.com/stretchr/testify/assert"

	"github.com/warden-io/warden/vault"
)

var testOptions = AuthorizeOptions{
	Scopes:      []string{"read", "write", "admin"},
	EnforcePKCE: PKCEOff,
}

func testClient() *vault.Client {
	return &vault.Client{
		ID:           "3b1c7c7d-7a62-4f44-8c5f-2b7c9a3f6e10",
		Name:         "App",
		RedirectURIs: []string{"https://app.example.com/cb"},
		Scope:        []string{"read", "write"},
		GrantTypes:   []string{"authorization_code", "refresh_token"},
		Type:         vault.Confidential,
	}
}

func testRequest(client *vault.Client) AuthorizeRequest {
	return AuthorizeRequest{
		ClientID:          client.ID,
		RedirectURI:       "https://app.example.com/cb",
		ResponseType:      "code",
		Scope:             "read",
		State:             "xyz",
		PermissionGranted: "true",
	}
}

func TestValidateAuthorize(t *testing.T) {
	client := testClient()

	req := testRequest(client)
	req.CodeChallenge = "challenge"
	req.CodeChallengeMethod = "S256"

	outcome := ValidateAuthorize(req, client, nil, testOptions)
	assert.Equal(t, KindAuthorize, outcome.Kind)
	assert.Equal(t, client, outcome.Client)
	assert.Equal(t, oauth2.Scope{"read"}, outcome.Scope)
	assert.Equal(t, "https://app.example.com/cb", outcome.RedirectURI)
	assert.True(t, outcome.RedirectURISpecified)
	assert.Equal(t, "xyz", outcome.State)
	assert.Equal(t, "challenge", outcome.CodeChallenge)
}

func TestValidateAuthorizeNoRedirect(t *testing.T) {
	client := testClient()

	// missing client id
	req := testRequest(client)
	req.ClientID = ""
	outcome := ValidateAuthorize(req, nil, nil, testOptions)
	assert.Equal(t, KindErrors, outcome.Kind)
	assert.Equal(t, []string{"can't be blank"}, outcome.Errors.Fields()["client_id"])

	// malformed client id
	req = testRequest(client)
	req.ClientID = "not-a-uuid"
	outcome = ValidateAuthorize(req, nil, nil, testOptions)
	assert.Equal(t, KindErrors, outcome.Kind)
	assert.Equal(t, []string{"invalid entry"}, outcome.Errors.Fields()["client_id"])

	// unknown client
	req = testRequest(client)
	outcome = ValidateAuthorize(req, nil, nil, testOptions)
	assert.Equal(t, KindErrors, outcome.Kind)
	assert.Equal(t, []string{"does not exist"}, outcome.Errors.Fields()["client_id"])

	// unregistered redirect uri
	req = testRequest(client)
	req.RedirectURI = "https://evil.example.com/cb"
	outcome = ValidateAuthorize(req, client, nil, testOptions)
	assert.Equal(t, KindErrors, outcome.Kind)
	assert.Equal(t, map[string][]string{
		"redirect_uri": {"invalid entry"},
	}, outcome.Errors.Fields())

	// missing consent flag
	req = testRequest(client)
	req.PermissionGranted = ""
	outcome = ValidateAuthorize(req, client, nil, testOptions)
	assert.Equal(t, KindErrors, outcome.Kind)
	assert.Equal(t, []string{"can't be blank"}, outcome.Errors.Fields()["permission_granted"])

	// malformed consent flag
	req = testRequest(client)
	req.PermissionGranted = "yes"
	outcome = ValidateAuthorize(req, client, nil, testOptions)
	assert.Equal(t, KindErrors, outcome.Kind)
	assert.Equal(t, []string{"invalid entry"}, outcome.Errors.Fields()["permission_granted"])

	// failures accumulate
	req = testRequest(client)
	req.ClientID = ""
	req.PermissionGranted = ""
	outcome = ValidateAuthorize(req, nil, nil, testOptions)
	assert.Equal(t, KindErrors, outcome.Kind)
	assert.Equal(t, "client_id: can't be blank, permission_granted: can't be blank", outcome.Errors.String())
}

func TestValidateAuthorizeRedirectURIResolution(t *testing.T) {
	// a single registered uri is resolved when omitted
	client := testClient()
	req := testRequest(client)
	req.RedirectURI = ""
	outcome := ValidateAuthorize(req, client, nil, testOptions)
	assert.Equal(t, KindAuthorize, outcome.Kind)
	assert.Equal(t, "https://app.example.com/cb", outcome.RedirectURI)
	assert.False(t, outcome.RedirectURISpecified)

	// multiple registered uris require a choice
	client.RedirectURIs = append(client.RedirectURIs, "https://app.example.com/cb2")
	outcome = ValidateAuthorize(req, client, nil, testOptions)
	assert.Equal(t, KindErrors, outcome.Kind)
	assert.Equal(t, []string{"can't be blank"}, outcome.Errors.Fields()["redirect_uri"])
}

func TestValidateAuthorizeRedirectErrors(t *testing.T) {
	client := testClient()

	// missing response type
	req := testRequest(client)
	req.ResponseType = ""
	outcome := ValidateAuthorize(req, client, nil, testOptions)
	assert.Equal(t, KindRedirect, outcome.Kind)
	assert.Equal(t, "invalid_request", outcome.ErrorCode)
	assert.Equal(t, "response_type: can't be blank", outcome.ErrorDescription)
	assert.Equal(t, "https://app.example.com/cb", outcome.RedirectURI)
	assert.Equal(t, "xyz", outcome.State)

	// unrecognized response type
	req = testRequest(client)
	req.ResponseType = "sms"
	outcome = ValidateAuthorize(req, client, nil, testOptions)
	assert.Equal(t, KindRedirect, outcome.Kind)
	assert.Equal(t, "invalid_request", outcome.ErrorCode)
	assert.Equal(t, "response_type: invalid entry", outcome.ErrorDescription)

	// recognized but unsupported response type
	req = testRequest(client)
	req.ResponseType = "token"
	outcome = ValidateAuthorize(req, client, nil, testOptions)
	assert.Equal(t, KindRedirect, outcome.Kind)
	assert.Equal(t, "unsupported_response_type", outcome.ErrorCode)

	// client without the authorization code grant
	restricted := testClient()
	restricted.GrantTypes = []string{"refresh_token"}
	req = testRequest(restricted)
	outcome = ValidateAuthorize(req, restricted, nil, testOptions)
	assert.Equal(t, KindRedirect, outcome.Kind)
	assert.Equal(t, "unauthorized_client", outcome.ErrorCode)

	// unknown scope
	req = testRequest(client)
	req.Scope = "banana"
	outcome = ValidateAuthorize(req, client, nil, testOptions)
	assert.Equal(t, KindRedirect, outcome.Kind)
	assert.Equal(t, "invalid_scope", outcome.ErrorCode)
	assert.Equal(t, "scope: invalid entry", outcome.ErrorDescription)

	// known scope beyond the client scope
	req = testRequest(client)
	req.Scope = "admin"
	outcome = ValidateAuthorize(req, client, nil, testOptions)
	assert.Equal(t, KindRedirect, outcome.Kind)
	assert.Equal(t, "access_denied", outcome.ErrorCode)
	assert.Equal(t, "scope: not allowed", outcome.ErrorDescription)

	// denied consent
	req = testRequest(client)
	req.PermissionGranted = "false"
	outcome = ValidateAuthorize(req, client, nil, testOptions)
	assert.Equal(t, KindRedirect, outcome.Kind)
	assert.Equal(t, "access_denied", outcome.ErrorCode)
	assert.Equal(t, "permission not granted", outcome.ErrorDescription)
}

func TestValidateAuthorizeScopeFallback(t *testing.T) {
	client := testClient()

	// the prior authorization scope is used when omitted
	req := testRequest(client)
	req.Scope = ""
	authorization := &vault.Authorization{Scope: []string{"read", "write"}}
	outcome := ValidateAuthorize(req, client, authorization, testOptions)
	assert.Equal(t, KindAuthorize, outcome.Kind)
	assert.Equal(t, oauth2.Scope{"read", "write"}, outcome.Scope)

	// without a prior authorization the scope is required
	outcome = ValidateAuthorize(req, client, nil, testOptions)
	assert.Equal(t, KindRedirect, outcome.Kind)
	assert.Equal(t, "invalid_request", outcome.ErrorCode)
	assert.Equal(t, "scope: can't be blank", outcome.ErrorDescription)
}

func TestValidateAuthorizePKCE(t *testing.T) {
	client := testClient()
	options := testOptions
	options.EnforcePKCE = PKCEAll

	// missing challenge and method
	req := testRequest(client)
	outcome := ValidateAuthorize(req, client, nil, options)
	assert.Equal(t, KindRedirect, outcome.Kind)
	assert.Equal(t, "invalid_request", outcome.ErrorCode)
	assert.Equal(t, "code_challenge: can't be blank (PKCE is required), code_challenge_method: can't be blank", outcome.ErrorDescription)
	assert.Equal(t, "xyz", outcome.State)

	// missing method only
	req.CodeChallenge = "challenge"
	outcome = ValidateAuthorize(req, client, nil, options)
	assert.Equal(t, KindRedirect, outcome.Kind)
	assert.Equal(t, "code_challenge_method: can't be blank", outcome.ErrorDescription)

	// unsupported method
	req.CodeChallengeMethod = "plain"
	outcome = ValidateAuthorize(req, client, nil, options)
	assert.Equal(t, KindRedirect, outcome.Kind)
	assert.Equal(t, "code_challenge_method: invalid entry", outcome.ErrorDescription)

	// complete proof key
	req.CodeChallengeMethod = "S256"
	outcome = ValidateAuthorize(req, client, nil, options)
	assert.Equal(t, KindAuthorize, outcome.Kind)

	// enforcement for public clients only
	options.EnforcePKCE = PKCEPublic
	req = testRequest(client)
	outcome = ValidateAuthorize(req, client, nil, options)
	assert.Equal(t, KindAuthorize, outcome.Kind)

	public := testClient()
	public.Type = vault.Public
	outcome = ValidateAuthorize(req, public, nil, options)
	assert.Equal(t, KindRedirect, outcome.Kind)
	assert.Equal(t, "invalid_request", outcome.ErrorCode)

	// a method without a challenge is caught even when not enforced
	options.EnforcePKCE = PKCEOff
	req = testRequest(client)
	req.CodeChallengeMethod = "S256"
	outcome = ValidateAuthorize(req, client, nil, options)
	assert.Equal(t, KindRedirect, outcome.Kind)
	assert.Equal(t, "code_challenge: can't be blank", outcome.ErrorDescription)
}
