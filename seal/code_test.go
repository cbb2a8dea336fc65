package seal

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRand(t *testing.T) {
	bytes, err := Rand(16)
	assert.NoError(t, err)
	assert.Len(t, bytes, 16)
	assert.NotEqual(t, bytes, MustRand(16))
}

func TestCode(t *testing.T) {
	code := Code()
	assert.NotEqual(t, code, Code())

	bytes, err := base64.RawURLEncoding.DecodeString(code)
	assert.NoError(t, err)
	assert.Len(t, bytes, 32)
}

func TestHash(t *testing.T) {
	key := Secret("0123456789abcdef").Derive("test")

	hash := key.Hash("code")
	assert.Equal(t, hash, key.Hash("code"))
	assert.NotEqual(t, hash, key.Hash("other"))
	assert.NotContains(t, hash, "code")

	// a different key yields a different hash
	other := Secret("0123456789abcdef").Derive("other")
	assert.NotEqual(t, hash, other.Hash("code"))
}

func TestCompare(t *testing.T) {
	assert.True(t, Compare("foo", "foo"))
	assert.False(t, Compare("foo", "bar"))
	assert.False(t, Compare("foo", "fooo"))
}

func TestS256Challenge(t *testing.T) {
	challenge := S256Challenge("verifier!")
	assert.True(t, VerifyS256(challenge, "verifier!"))
	assert.False(t, VerifyS256(challenge, "verifier"))

	// rfc 7636 appendix b
	challenge = S256Challenge("dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk")
	assert.Equal(t, "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM", challenge)
}
