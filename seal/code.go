package seal

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"io"
)

// Rand will return n secure random bytes.
func Rand(n int) ([]byte, error) {
	// read from random generator
	bytes := make([]byte, n)
	_, err := io.ReadFull(rand.Reader, bytes)
	if err != nil {
		return nil, err
	}

	return bytes, nil
}

// MustRand will call Rand and panic on errors.
func MustRand(n int) []byte {
	// generate bytes
	bytes, err := Rand(n)
	if err != nil {
		panic(err.Error())
	}

	return bytes
}

// Code will return a fresh random code with 256 bits of entropy encoded
// using URL-safe base64.
func Code() string {
	return base64.RawURLEncoding.EncodeToString(MustRand(32))
}

// Hash will compute a keyed HMAC-SHA-256 hash of the provided value. The
// result is stable and can be used for exact match lookups.
func (k Key) Hash(value string) string {
	// compute hash
	mac := hmac.New(sha256.New, k)
	_, _ = mac.Write([]byte(value))

	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// Compare will compare the provided strings in constant time.
func Compare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// S256Challenge will compute the S256 code challenge for the provided
// verifier.
func S256Challenge(verifier string) string {
	// hash verifier
	sum := sha256.Sum256([]byte(verifier))

	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// VerifyS256 will verify in constant time that the provided verifier
// satisfies the challenge.
func VerifyS256(challenge, verifier string) bool {
	return Compare(challenge, S256Challenge(verifier))
}
