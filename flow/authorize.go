package flow

import (
	"github.com/256dpi/oauth2/v2"
	"github.com/google/uuid"

	"github.com/warden-io/warden/vault"
)

// PKCEMode controls for which clients a proof key is required.
type PKCEMode string

// The supported PKCE modes.
const (
	PKCEAll    PKCEMode = "all"
	PKCEPublic PKCEMode = "public"
	PKCEOff    PKCEMode = "no"
)

// AuthorizeRequest holds the raw parameters of an authorize request.
type AuthorizeRequest struct {
	ClientID            string
	RedirectURI         string
	ResponseType        string
	Scope               string
	State               string
	CodeChallenge       string
	CodeChallengeMethod string
	PermissionGranted   string
}

// AuthorizeOptions configure the authorize validation.
type AuthorizeOptions struct {
	// The universe of application scopes.
	Scopes []string

	// The PKCE enforcement mode.
	EnforcePKCE PKCEMode
}

// OutcomeKind enumerates the three ways an authorize request can resolve.
type OutcomeKind int

// The possible outcome kinds.
const (
	// KindErrors rejects the request with a plain error map. The redirect
	// URI is not trusted at this point.
	KindErrors OutcomeKind = iota

	// KindRedirect relays an OAuth2 error to the validated redirect URI.
	KindRedirect

	// KindAuthorize continues with issuing a grant.
	KindAuthorize
)

// Outcome is the result of validating an authorize request.
type Outcome struct {
	// The outcome kind.
	Kind OutcomeKind

	// The per field failures if the kind is KindErrors.
	Errors *Errors

	// The OAuth2 error code and description if the kind is KindRedirect.
	ErrorCode        string
	ErrorDescription string

	// The resolved redirect URI and whether the request carried one.
	RedirectURI          string
	RedirectURISpecified bool

	// The echoed state.
	State string

	// The validated change set if the kind is KindAuthorize.
	Client        *vault.Client
	Scope         oauth2.Scope
	CodeChallenge string
}

// ValidateAuthorize validates an authorize request against the provided
// client and prior authorization. Both may be nil if missing. The validation
// runs in three stages: failures that must not leak to an untrusted redirect
// URI, lexical failures that redirect with "invalid_request" and the
// remaining checks that redirect with a specific error code. Failures within
// a stage are accumulated so one response can report multiple problems.
func ValidateAuthorize(req AuthorizeRequest, client *vault.Client, authorization *vault.Authorization, opts AuthorizeOptions) Outcome {
	// check client and redirect uri
	errs := &Errors{}
	if req.ClientID == "" {
		errs.Add("client_id", "can't be blank")
	} else if _, err := uuid.Parse(req.ClientID); err != nil {
		errs.Add("client_id", "invalid entry")
	} else if client == nil {
		errs.Add("client_id", "does not exist")
	}
	if client != nil {
		if req.RedirectURI == "" {
			if len(client.RedirectURIs) != 1 {
				errs.Add("redirect_uri", "can't be blank")
			}
		} else if !client.ValidRedirectURI(req.RedirectURI) {
			errs.Add("redirect_uri", "invalid entry")
		}
	}

	// check consent flag presence
	switch req.PermissionGranted {
	case "true", "false":
	case "":
		errs.Add("permission_granted", "can't be blank")
	default:
		errs.Add("permission_granted", "invalid entry")
	}

	// reject without redirect
	if !errs.Empty() {
		return Outcome{Kind: KindErrors, Errors: errs}
	}

	// resolve redirect uri
	redirectURI := req.RedirectURI
	specified := redirectURI != ""
	if !specified {
		redirectURI = client.RedirectURIs[0]
	}

	// prepare redirect outcome helper
	redirect := func(code, description string) Outcome {
		return Outcome{
			Kind:                 KindRedirect,
			ErrorCode:            code,
			ErrorDescription:     description,
			RedirectURI:          redirectURI,
			RedirectURISpecified: specified,
			State:                req.State,
		}
	}

	// check lexical validity of the typed parameters
	errs = &Errors{}
	if req.ResponseType == "" {
		errs.Add("response_type", "can't be blank")
	} else if !oauth2.KnownResponseType(req.ResponseType) {
		errs.Add("response_type", "invalid entry")
	}
	if req.CodeChallengeMethod != "" && req.CodeChallengeMethod != "S256" {
		errs.Add("code_challenge_method", "invalid entry")
	}
	if !errs.Empty() {
		return redirect("invalid_request", errs.String())
	}

	// check response type support
	if req.ResponseType != oauth2.CodeResponseType {
		return redirect("unsupported_response_type", "response_type: not supported")
	} else if !client.SupportsGrantType(vault.AuthorizationCode) {
		return redirect("unauthorized_client", "client_id: is not allowed to use this response type")
	}

	// determine scope
	var scope oauth2.Scope
	if requested := ParseScope(req.Scope); len(requested) > 0 {
		if !oauth2.Scope(opts.Scopes).Includes(requested) {
			return redirect("invalid_scope", "scope: invalid entry")
		} else if !oauth2.Scope(client.Scope).Includes(requested) {
			return redirect("access_denied", "scope: not allowed")
		}
		scope = requested
	} else if authorization != nil && len(authorization.Scope) > 0 {
		scope = oauth2.Scope(authorization.Scope)
	} else {
		errs.Add("scope", "can't be blank")
	}

	// check proof key
	required := opts.EnforcePKCE == PKCEAll || (opts.EnforcePKCE == PKCEPublic && client.Type == vault.Public)
	if required || req.CodeChallenge != "" || req.CodeChallengeMethod != "" {
		if req.CodeChallenge == "" {
			if required {
				errs.Add("code_challenge", "can't be blank (PKCE is required)")
			} else {
				errs.Add("code_challenge", "can't be blank")
			}
		}
		if req.CodeChallengeMethod == "" {
			errs.Add("code_challenge_method", "can't be blank")
		}
	}
	if !errs.Empty() {
		return redirect("invalid_request", errs.String())
	}

	// check consent
	if req.PermissionGranted != "true" {
		return redirect("access_denied", "permission not granted")
	}

	return Outcome{
		Kind:                 KindAuthorize,
		RedirectURI:          redirectURI,
		RedirectURISpecified: specified,
		State:                req.State,
		Client:               client,
		Scope:                scope,
		CodeChallenge:        req.CodeChallenge,
	}
}
