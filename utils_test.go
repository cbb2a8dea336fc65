package warden

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"

	"github.com/warden-io/warden/vault"
)

func seedClient(tester *Tester) (*vault.Client, string) {
	client := &vault.Client{
		Name:         "App",
		RedirectURIs: []string{"https://app.example.com/cb"},
		Scope:        []string{"read", "write"},
		GrantTypes:   []string{"authorization_code", "refresh_token"},
		Type:         vault.Confidential,
		OwnerID:      "7",
	}

	secret, err := tester.Vault.AddClient(nil, client, tester.Policy.Scopes)
	if err != nil {
		panic(err.Error())
	}

	return client, secret
}

func record(handler http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func authorize(tester *Tester, user string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", "/oauth2/authorize", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}
	return record(tester.Handler, req)
}

func token(tester *Tester, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", "/oauth2/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return record(tester.Handler, req)
}

func redirectQuery(redirectTo string) (string, url.Values) {
	uri, err := url.Parse(redirectTo)
	if err != nil {
		panic(err.Error())
	}

	query := uri.Query()
	uri.RawQuery = ""
	return uri.String(), query
}
