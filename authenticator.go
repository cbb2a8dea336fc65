// Package warden implements an embeddable OAuth 2.1 authorization server
// core. It provides the authorize and token endpoints of the authorization
// code and refresh token flows, persists clients, authorizations and grants
// through the vault package and delegates token minting to a pluggable
// minter.
package warden

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/256dpi/oauth2/v2"
	"github.com/256dpi/serve"
	"github.com/256dpi/xo"

	"github.com/warden-io/warden/flow"
	"github.com/warden-io/warden/vault"
)

// An Authenticator provides the authorize and token endpoints of the
// authorization server.
type Authenticator struct {
	vault    *vault.Vault
	policy   *Policy
	reporter func(error)
}

// NewAuthenticator creates an authenticator using the provided vault, policy
// and reporter.
func NewAuthenticator(vault *vault.Vault, policy *Policy, reporter func(error)) *Authenticator {
	// ensure defaults
	if policy.EnforcePKCE == "" {
		policy.EnforcePKCE = flow.PKCEAll
	}
	if policy.GrantTTL == 0 {
		policy.GrantTTL = 10 * time.Minute
	}

	return &Authenticator{
		vault:    vault,
		policy:   policy,
		reporter: reporter,
	}
}

// Endpoint returns a handler that serves the authorize and token endpoints
// at the provided prefix.
func (a *Authenticator) Endpoint(prefix string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// trim and split path
		segments := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/"), "/")
		if len(segments) != 1 {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		// route request
		var err error
		switch segments[0] {
		case "authorize":
			err = a.authorizeEndpoint(w, r)
		case "token":
			err = a.tokenEndpoint(w, r)
		case "":
			// only the cross origin preflight is served at the root
			if r.Method == "OPTIONS" {
				err = a.tokenEndpoint(w, r)
			} else {
				w.WriteHeader(http.StatusNotFound)
			}
		default:
			w.WriteHeader(http.StatusNotFound)
		}
		if err == nil {
			return
		}

		// write protocol errors
		var oauth2Error *oauth2.Error
		if errors.As(err, &oauth2Error) {
			_ = oauth2.WriteError(w, oauth2Error)
			return
		}

		// report and mask unexpected errors
		if a.reporter != nil {
			a.reporter(err)
		}
		_ = oauth2.WriteError(w, oauth2.ServerError(""))
	})
}

func (a *Authenticator) authorizeEndpoint(w http.ResponseWriter, r *http.Request) error {
	// set cache headers
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")

	// check method
	if r.Method != "POST" {
		w.WriteHeader(http.StatusNotFound)
		return nil
	}

	// get principal
	var userID string
	if a.policy.Principal != nil {
		userID = a.policy.Principal(r)
	}
	if userID == "" {
		return writeJSON(w, http.StatusUnauthorized, map[string]interface{}{
			"errors": map[string][]string{
				"user": {"not authenticated"},
			},
		})
	}

	// limit body
	serve.LimitBody(w, r, serve.MustByteSize("1M"))

	// parse request
	req, err := parseAuthorizeRequest(r)
	if err != nil {
		errs := &flow.Errors{}
		errs.Add("body", "is malformed")
		return writeErrors(w, errs)
	}

	// resolve client
	var client *vault.Client
	if req.ClientID != "" {
		client, err = a.vault.GetClient(r.Context(), req.ClientID)
		if err != nil {
			return err
		}
	}

	// resolve prior authorization
	var authorization *vault.Authorization
	if client != nil {
		authorization, err = a.vault.GetAuthorization(r.Context(), client.ID, userID)
		if err != nil {
			return err
		}
	}

	// validate request
	outcome := flow.ValidateAuthorize(req, client, authorization, flow.AuthorizeOptions{
		Scopes:      a.policy.Scopes,
		EnforcePKCE: a.policy.EnforcePKCE,
	})
	switch outcome.Kind {
	case flow.KindErrors:
		return writeErrors(w, outcome.Errors)
	case flow.KindRedirect:
		params := url.Values{}
		params.Set("error", outcome.ErrorCode)
		if outcome.ErrorDescription != "" {
			params.Set("error_description", outcome.ErrorDescription)
		}
		if outcome.State != "" {
			params.Set("state", outcome.State)
		}
		return writeRedirect(w, outcome.RedirectURI, params)
	}

	// upsert authorization
	authorization, err = a.vault.UpsertAuthorization(r.Context(), client.ID, userID, outcome.Scope)
	if err != nil {
		return err
	}

	// issue grant
	_, code, err := a.vault.InsertGrant(r.Context(), vault.GrantParams{
		AuthorizationID:      authorization.ID,
		ResourceOwnerID:      userID,
		Type:                 vault.AuthorizationCode,
		RedirectURI:          outcome.RedirectURI,
		RedirectURISpecified: outcome.RedirectURISpecified,
		CodeChallenge:        outcome.CodeChallenge,
		ExpiresAt:            time.Now().Add(a.policy.GrantTTL),
	})
	if err != nil {
		return err
	}

	// respond with the redirect envelope
	params := url.Values{}
	params.Set("code", code)
	if outcome.State != "" {
		params.Set("state", outcome.State)
	}

	return writeRedirect(w, outcome.RedirectURI, params)
}

// parseAuthorizeRequest extracts the authorize parameters from a form or
// JSON body.
func parseAuthorizeRequest(r *http.Request) (flow.AuthorizeRequest, error) {
	// collect values
	values := map[string]string{}
	contentType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if contentType == "application/json" {
		var body map[string]interface{}
		err := json.NewDecoder(r.Body).Decode(&body)
		if err != nil {
			return flow.AuthorizeRequest{}, xo.W(err)
		}
		for key, value := range body {
			switch value := value.(type) {
			case string:
				values[key] = value
			case bool:
				values[key] = strconv.FormatBool(value)
			case float64:
				values[key] = strconv.FormatFloat(value, 'f', -1, 64)
			}
		}
	} else {
		err := r.ParseForm()
		if err != nil {
			return flow.AuthorizeRequest{}, xo.W(err)
		}
		for key := range r.PostForm {
			values[key] = r.PostForm.Get(key)
		}
	}

	return flow.AuthorizeRequest{
		ClientID:            values["client_id"],
		RedirectURI:         values["redirect_uri"],
		ResponseType:        values["response_type"],
		Scope:               values["scope"],
		State:               values["state"],
		CodeChallenge:       values["code_challenge"],
		CodeChallengeMethod: values["code_challenge_method"],
		PermissionGranted:   values["permission_granted"],
	}, nil
}

func writeErrors(w http.ResponseWriter, errs *flow.Errors) error {
	return writeJSON(w, http.StatusBadRequest, map[string]interface{}{
		"errors": errs.Fields(),
	})
}

func writeRedirect(w http.ResponseWriter, base string, params url.Values) error {
	// append parameters to the redirect uri
	uri, err := url.Parse(base)
	if err != nil {
		return xo.W(err)
	}
	query := uri.Query()
	for key := range params {
		query.Set(key, params.Get(key))
	}
	uri.RawQuery = query.Encode()

	return writeJSON(w, http.StatusOK, map[string]string{
		"redirect_to": uri.String(),
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	return xo.W(json.NewEncoder(w).Encode(body))
}
