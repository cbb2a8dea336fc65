package warden

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/warden-io/warden/vault"
)

func TestReaper(t *testing.T) {
	tester := NewTester()
	defer tester.Close()

	// insert one expired and one fresh grant
	_, _, err := tester.Vault.InsertGrant(nil, vault.GrantParams{
		AuthorizationID: "a1",
		ResourceOwnerID: "42",
		Type:            vault.AuthorizationCode,
		ExpiresAt:       time.Now().Add(-time.Minute),
	})
	assert.NoError(t, err)
	_, _, err = tester.Vault.InsertGrant(nil, vault.GrantParams{
		AuthorizationID: "a1",
		ResourceOwnerID: "42",
		Type:            vault.AuthorizationCode,
		ExpiresAt:       time.Now().Add(time.Minute),
	})
	assert.NoError(t, err)

	// run reaper
	reaper := NewReaper(tester.Vault, 10*time.Millisecond, nil)

	// wait for a sweep
	assert.Eventually(t, func() bool {
		return tester.Count(vault.GrantsColl) == 1
	}, time.Second, 10*time.Millisecond)

	// stop reaper
	reaper.Close()
}
