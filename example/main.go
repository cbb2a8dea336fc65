package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/256dpi/serve"
	"github.com/256dpi/xo"

	"github.com/warden-io/warden"
	"github.com/warden-io/warden/flow"
	"github.com/warden-io/warden/seal"
	"github.com/warden-io/warden/vault"
)

var secret = seal.Secret("abcd1234abcd1234abcd1234abcd1234")

func main() {
	// connect store or fall back to an in-memory store
	var store *vault.Store
	if uri := os.Getenv("MONGODB_URI"); uri != "" {
		store = vault.MustConnect(uri)
	} else {
		store = vault.MustOpen(nil, "warden-example")
	}
	defer store.Close()

	// ensure indexes
	err := vault.EnsureIndexes(store)
	if err != nil {
		panic(err.Error())
	}

	// open vault
	v := vault.New(store, seal.MustKeyring(secret))

	// register demo client
	client := &vault.Client{
		Name:         "Demo",
		RedirectURIs: []string{"https://example.com/cb"},
		Scope:        []string{"read", "write"},
		GrantTypes:   []string{"authorization_code", "refresh_token"},
		Type:         vault.Confidential,
		OwnerID:      "1",
	}
	clientSecret, err := v.AddClient(nil, client, []string{"read", "write"})
	if err != nil {
		panic(err.Error())
	}
	fmt.Printf("==> client: %s, secret: %s\n", client.ID, clientSecret)

	// prepare reporter
	reporter := func(err error) {
		fmt.Printf("==> error: %s\n", err.Error())
	}

	// prepare minter and policy
	minter := warden.NewStandardMinter(v, secret)
	policy := warden.DefaultPolicy([]string{"read", "write"}, minter)
	policy.EnforcePKCE = flow.PKCEPublic

	// create authenticator
	authenticator := warden.NewAuthenticator(v, policy, reporter)

	// run reaper
	reaper := warden.NewReaper(v, 5*time.Minute, reporter)
	defer reaper.Close()

	// prepare protected endpoint
	hello := authenticator.Authorizer("read")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := warden.AccessClaims(r.Context())
		_, _ = fmt.Fprintf(w, "hello %v\n", claims["sub"])
	}))

	// mount endpoints
	mux := http.NewServeMux()
	mux.Handle("/oauth2/", authenticator.Endpoint("/oauth2"))
	mux.Handle("/api/hello", hello)

	// run server
	fmt.Println("==> listening on http://0.0.0.0:8000")
	err = http.ListenAndServe("0.0.0.0:8000", serve.Compose(xo.RootHandler(), mux))
	if err != nil {
		panic(err.Error())
	}
}
