// Package seal implements the cryptographic primitives used to protect
// secrets at rest and to bind authorization codes to their requests.
package seal

import (
	"crypto/sha256"
	"io"

	"github.com/256dpi/xo"
	"golang.org/x/crypto/hkdf"
)

// Secret wraps a base secret to allow key derivation.
type Secret []byte

// Derive will derive a key using the provided salt.
func (s Secret) Derive(salt string) Key {
	return s.DeriveBytes([]byte(salt))
}

// DeriveBytes will derive a key using the provided salt.
func (s Secret) DeriveBytes(salt []byte) Key {
	// derive key
	key := make([]byte, 32)
	_, err := io.ReadFull(hkdf.New(sha256.New, s, salt, nil), key)
	if err != nil {
		panic(err.Error())
	}

	return Key(key)
}

// Key is a single derived 32-byte key.
type Key []byte

// Keyring holds the keys derived from the base secret. The keys are derived
// once at startup and are read-only for the process lifetime.
type Keyring struct {
	// The key used to encrypt client secrets.
	ClientSecret Key

	// The key used to encrypt code challenges.
	CodeChallenge Key

	// The key used to compute grant code hashes.
	GrantCode Key
}

// NewKeyring derives a keyring from the provided base secret. It will return
// an error if the secret is shorter than 16 bytes.
func NewKeyring(secret Secret) (*Keyring, error) {
	// check secret
	if len(secret) < 16 {
		return nil, xo.F("secret too small")
	}

	return &Keyring{
		ClientSecret:  secret.Derive("client-secret"),
		CodeChallenge: secret.Derive("code-challenge"),
		GrantCode:     secret.Derive("grant-code"),
	}, nil
}

// MustKeyring will call NewKeyring and panic on errors.
func MustKeyring(secret Secret) *Keyring {
	// derive keyring
	keyring, err := NewKeyring(secret)
	if err != nil {
		panic(err.Error())
	}

	return keyring
}
