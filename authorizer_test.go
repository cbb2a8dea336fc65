package warden

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAuthorizer(t *testing.T) {
	tester := NewTester()
	defer tester.Close()

	bundle, err := tester.Minter.MintTokens(context.Background(), testUpsert())
	assert.NoError(t, err)

	// prepare protected endpoint
	var seen Claims
	endpoint := tester.Authenticator.Authorizer("read")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = AccessClaims(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	// missing token
	req := httptest.NewRequest("GET", "/posts", nil)
	res := record(endpoint, req)
	assert.Equal(t, 401, res.Code)

	// malformed token
	req = httptest.NewRequest("GET", "/posts", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	res = record(endpoint, req)
	assert.Equal(t, 401, res.Code)

	// valid token
	req = httptest.NewRequest("GET", "/posts", nil)
	req.Header.Set("Authorization", "Bearer "+bundle.AccessToken)
	res = record(endpoint, req)
	assert.Equal(t, 200, res.Code)
	assert.Equal(t, "42", seen["sub"])

	// insufficient scope
	protected := tester.Authenticator.Authorizer("admin")(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	req = httptest.NewRequest("GET", "/posts", nil)
	req.Header.Set("Authorization", "Bearer "+bundle.AccessToken)
	res = record(protected, req)
	assert.Equal(t, 403, res.Code)

	// revoked session
	err = tester.Vault.DeleteSession(nil, "42", OAuth2SessionType)
	assert.NoError(t, err)
	req = httptest.NewRequest("GET", "/posts", nil)
	req.Header.Set("Authorization", "Bearer "+bundle.AccessToken)
	res = record(endpoint, req)
	assert.Equal(t, 401, res.Code)
}
