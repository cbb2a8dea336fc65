package warden

import (
	"net/http"

	"github.com/256dpi/serve"
	"github.com/256dpi/xo"

	"github.com/warden-io/warden/vault"
)

// A Tester provides a complete in-memory authorization server for tests.
type Tester struct {
	*vault.Tester

	// The used policy and minter.
	Policy *Policy
	Minter *StandardMinter

	// The tested authenticator.
	Authenticator *Authenticator

	// The endpoint handler mounted at "/oauth2".
	Handler http.Handler

	// The errors reported by the authenticator.
	Reported []error
}

// NewTester will create and return a new tester.
func NewTester() *Tester {
	// prepare vault
	vaultTester := vault.NewTester()

	// prepare minter and policy
	minter := NewStandardMinter(vaultTester.Vault, []byte("0123456789abcdef0123456789abcdef"))
	policy := DefaultPolicy([]string{"read", "write", "admin"}, minter)

	// prepare tester
	tester := &Tester{
		Tester: vaultTester,
		Policy: policy,
		Minter: minter,
	}

	// prepare authenticator
	tester.Authenticator = NewAuthenticator(vaultTester.Vault, policy, func(err error) {
		tester.Reported = append(tester.Reported, err)
	})

	// prepare handler
	tester.Handler = serve.Compose(xo.RootHandler(), tester.Authenticator.Endpoint("/oauth2"))

	return tester
}
