package vault

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/warden-io/warden/seal"
)

// A Tester provides facilities to test vault backed code against an
// in-memory store.
type Tester struct {
	// The used store.
	Store *Store

	// The used keyring.
	Keyring *seal.Keyring

	// The tested vault.
	Vault *Vault
}

// NewTester will open an in-memory store, ensure the indexes and return a
// new tester.
func NewTester() *Tester {
	// open store
	store := MustOpen(nil, "test")

	// ensure indexes
	err := EnsureIndexes(store)
	if err != nil {
		panic(err.Error())
	}

	// derive keyring
	keyring := seal.MustKeyring(seal.Secret("0123456789abcdef0123456789abcdef"))

	return &Tester{
		Store:   store,
		Keyring: keyring,
		Vault:   New(store, keyring),
	}
}

// Clean will remove all documents from the managed collections.
func (t *Tester) Clean() {
	for _, coll := range []string{ClientsColl, AuthorizationsColl, GrantsColl, SessionsColl} {
		_, err := t.Store.C(coll).DeleteMany(context.Background(), bson.M{})
		if err != nil {
			panic(err.Error())
		}
	}
}

// Count will count the documents in the provided collection.
func (t *Tester) Count(coll string) int64 {
	n, err := t.Store.C(coll).CountDocuments(context.Background(), bson.M{})
	if err != nil {
		panic(err.Error())
	}

	return n
}

// Close will close the underlying store.
func (t *Tester) Close() {
	_ = t.Store.Close()
}
