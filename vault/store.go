// Package vault implements the persistent data model of the authorization
// server: clients, authorizations, grants and sessions.
package vault

import (
	"context"
	"net/url"
	"strings"

	"github.com/256dpi/lungo"
	"github.com/256dpi/xo"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Store manages the connection to a MongoDB compatible database.
type Store struct {
	// The client used by the store.
	Client lungo.IClient

	// The engine if the store is backed by lungo.
	Engine *lungo.Engine

	// The default database used by the store.
	DefaultDB string
}

// MustConnect will call Connect and panic on errors.
func MustConnect(uri string) *Store {
	// connect store
	store, err := Connect(uri)
	if err != nil {
		panic(err.Error())
	}

	return store
}

// Connect will connect to the database specified by the provided URI and
// return a new store.
func Connect(uri string) (*Store, error) {
	// parse url
	parsedURL, err := url.Parse(uri)
	if err != nil {
		return nil, xo.W(err)
	}

	// get default db
	defaultDB := strings.Trim(parsedURL.Path, "/")

	// create client
	client, err := lungo.Connect(nil, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, xo.W(err)
	}

	// ping server
	err = client.Ping(nil, nil)
	if err != nil {
		return nil, xo.W(err)
	}

	return &Store{
		Client:    client,
		DefaultDB: defaultDB,
	}, nil
}

// MustOpen will call Open and panic on errors.
func MustOpen(store lungo.Store, defaultDB string) *Store {
	// open store
	s, err := Open(store, defaultDB)
	if err != nil {
		panic(err.Error())
	}

	return s
}

// Open will open the database using the provided lungo store. If the store is
// missing an in-memory store is used.
func Open(store lungo.Store, defaultDB string) (*Store, error) {
	// ensure store
	if store == nil {
		store = lungo.NewMemoryStore()
	}

	// open database
	client, engine, err := lungo.Open(nil, lungo.Options{
		Store: store,
	})
	if err != nil {
		return nil, xo.W(err)
	}

	return &Store{
		Client:    client,
		Engine:    engine,
		DefaultDB: defaultDB,
	}, nil
}

// DB returns the default database used by the store.
func (s *Store) DB() lungo.IDatabase {
	return s.Client.Database(s.DefaultDB)
}

// C will return the named collection in the default database.
func (s *Store) C(name string) lungo.ICollection {
	return s.DB().Collection(name)
}

// T will run the provided callback inside a transaction. The transaction is
// aborted if the callback returns an error and committed otherwise.
func (s *Store) T(ctx context.Context, fn func(ctx context.Context) error) error {
	// ensure context
	if ctx == nil {
		ctx = context.Background()
	}

	return s.Client.UseSession(ctx, func(sc lungo.ISessionContext) error {
		// start transaction
		err := sc.StartTransaction()
		if err != nil {
			return xo.W(err)
		}

		// yield callback
		err = fn(sc)
		if err != nil {
			_ = sc.AbortTransaction(context.Background())
			return err
		}

		// commit transaction
		err = sc.CommitTransaction(context.Background())
		if err != nil {
			return xo.W(err)
		}

		return nil
	})
}

// Close will close the store and its underlying client.
func (s *Store) Close() error {
	// disconnect client
	err := s.Client.Disconnect(nil)
	if err != nil {
		return xo.W(err)
	}

	// close engine if available
	if s.Engine != nil {
		s.Engine.Close()
	}

	return nil
}

// IsMissing returns whether the provided error describes a missing document.
func IsMissing(err error) bool {
	return err == mongo.ErrNoDocuments || strings.Contains(err.Error(), mongo.ErrNoDocuments.Error())
}

// IsDuplicate returns whether the provided error describes a unique index
// conflict.
func IsDuplicate(err error) bool {
	return mongo.IsDuplicateKeyError(err) || strings.Contains(err.Error(), "duplicate")
}
