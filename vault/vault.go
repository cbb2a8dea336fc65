package vault

import (
	"context"
	"time"

	"github.com/256dpi/xo"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/warden-io/warden/seal"
)

// ErrNotFound is returned if a referenced document does not exist.
var ErrNotFound = xo.BF("not found")

// Vault binds a store and keyring and provides the typed operations used by
// the protocol endpoints. Secrets pass through the keyring on their way in
// and out of the store.
type Vault struct {
	store   *Store
	keyring *seal.Keyring
}

// New creates and returns a new vault.
func New(store *Store, keyring *seal.Keyring) *Vault {
	return &Vault{
		store:   store,
		keyring: keyring,
	}
}

// Store returns the underlying store.
func (v *Vault) Store() *Store {
	return v.store
}

// AddClient will generate a fresh secret for the provided client, encrypt it
// and insert the client. The plaintext secret is returned exactly once. A
// missing id is generated.
func (v *Vault) AddClient(ctx context.Context, client *Client, appScopes []string) (string, error) {
	// ensure id
	if client.ID == "" {
		client.ID = uuid.NewString()
	}

	// validate client
	err := client.Validate(appScopes)
	if err != nil {
		return "", err
	}

	// generate and encrypt secret
	secret := seal.Code()
	client.Secret, err = v.keyring.ClientSecret.Encrypt([]byte(secret))
	if err != nil {
		return "", err
	}

	// set timestamps
	now := time.Now()
	client.CreatedAt = now
	client.UpdatedAt = now

	// insert client
	_, err = v.store.C(ClientsColl).InsertOne(ctx, client)
	if err != nil {
		return "", xo.W(err)
	}

	return secret, nil
}

// GetClient will return the client with the provided id or nil if it does
// not exist.
func (v *Vault) GetClient(ctx context.Context, id string) (*Client, error) {
	// find client
	var client Client
	err := v.store.C(ClientsColl).FindOne(ctx, bson.M{
		"_id": id,
	}).Decode(&client)
	if err != nil && IsMissing(err) {
		return nil, nil
	} else if err != nil {
		return nil, xo.W(err)
	}

	return &client, nil
}

// VerifyClientSecret will decrypt the stored client secret and compare it in
// constant time with the provided secret.
func (v *Vault) VerifyClientSecret(client *Client, secret string) (bool, error) {
	// decrypt stored secret
	stored, err := v.keyring.ClientSecret.Decrypt(client.Secret)
	if err != nil {
		return false, err
	}

	return seal.Compare(string(stored), secret), nil
}

// UpdateClientScope will narrow the client scope and intersect the scope of
// every dependent authorization in the same transaction. Concurrent requests
// observe either the old or the new scope.
func (v *Vault) UpdateClientScope(ctx context.Context, clientID string, scope []string) error {
	return v.store.T(ctx, func(ctx context.Context) error {
		// update client scope
		res, err := v.store.C(ClientsColl).UpdateOne(ctx, bson.M{
			"_id": clientID,
		}, bson.M{
			"$set": bson.M{
				"scope":      scope,
				"updated_at": time.Now(),
			},
		})
		if err != nil {
			return xo.W(err)
		} else if res.MatchedCount == 0 {
			return ErrNotFound.Wrap()
		}

		// find dependent authorizations
		csr, err := v.store.C(AuthorizationsColl).Find(ctx, bson.M{
			"client_id": clientID,
		})
		if err != nil {
			return xo.W(err)
		}

		// decode authorizations
		var authorizations []Authorization
		err = csr.All(ctx, &authorizations)
		if err != nil {
			return xo.W(err)
		}

		// intersect authorization scopes
		for _, authorization := range authorizations {
			intersected := intersect(authorization.Scope, scope)
			if len(intersected) == len(authorization.Scope) {
				continue
			}

			_, err = v.store.C(AuthorizationsColl).UpdateOne(ctx, bson.M{
				"_id": authorization.ID,
			}, bson.M{
				"$set": bson.M{
					"scope":      intersected,
					"updated_at": time.Now(),
				},
			})
			if err != nil {
				return xo.W(err)
			}
		}

		return nil
	})
}

// DeleteClient will delete the client and cascade to its authorizations and
// their grants.
func (v *Vault) DeleteClient(ctx context.Context, id string) error {
	return v.store.T(ctx, func(ctx context.Context) error {
		// find dependent authorizations
		csr, err := v.store.C(AuthorizationsColl).Find(ctx, bson.M{
			"client_id": id,
		})
		if err != nil {
			return xo.W(err)
		}

		// decode authorizations
		var authorizations []Authorization
		err = csr.All(ctx, &authorizations)
		if err != nil {
			return xo.W(err)
		}

		// delete dependent grants
		for _, authorization := range authorizations {
			_, err = v.store.C(GrantsColl).DeleteMany(ctx, bson.M{
				"authorization_id": authorization.ID,
			})
			if err != nil {
				return xo.W(err)
			}
		}

		// delete authorizations
		_, err = v.store.C(AuthorizationsColl).DeleteMany(ctx, bson.M{
			"client_id": id,
		})
		if err != nil {
			return xo.W(err)
		}

		// delete client
		_, err = v.store.C(ClientsColl).DeleteOne(ctx, bson.M{
			"_id": id,
		})
		if err != nil {
			return xo.W(err)
		}

		return nil
	})
}

// GetAuthorization will return the authorization for the provided client and
// resource owner or nil if none exists. The unique index guarantees at most
// one match.
func (v *Vault) GetAuthorization(ctx context.Context, clientID, ownerID string) (*Authorization, error) {
	// find authorization
	var authorization Authorization
	err := v.store.C(AuthorizationsColl).FindOne(ctx, bson.M{
		"client_id":         clientID,
		"resource_owner_id": ownerID,
	}).Decode(&authorization)
	if err != nil && IsMissing(err) {
		return nil, nil
	} else if err != nil {
		return nil, xo.W(err)
	}

	return &authorization, nil
}

// UpsertAuthorization will insert an authorization with the provided scope or
// expand the scope of an existing authorization to the union of the old and
// new scope. An upsert race on the unique index is retried once as an update.
func (v *Vault) UpsertAuthorization(ctx context.Context, clientID, ownerID string, scope []string) (*Authorization, error) {
	// prepare filter and update
	now := time.Now()
	filter := bson.M{
		"client_id":         clientID,
		"resource_owner_id": ownerID,
	}
	update := bson.M{
		"$addToSet": bson.M{
			"scope": bson.M{
				"$each": scope,
			},
		},
		"$set": bson.M{
			"updated_at": now,
		},
		"$setOnInsert": bson.M{
			"_id":        uuid.NewString(),
			"created_at": now,
		},
	}

	// upsert authorization and retry once as a plain update if the upsert
	// raced with a concurrent insert
	_, err := v.store.C(AuthorizationsColl).UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil && IsDuplicate(err) {
		_, err = v.store.C(AuthorizationsColl).UpdateOne(ctx, filter, update)
	}
	if err != nil {
		return nil, xo.W(err)
	}

	return v.GetAuthorization(ctx, clientID, ownerID)
}

// DeleteAuthorization will delete the authorization between the provided
// client and resource owner and cascade to its grants.
func (v *Vault) DeleteAuthorization(ctx context.Context, clientID, ownerID string) error {
	// get authorization
	authorization, err := v.GetAuthorization(ctx, clientID, ownerID)
	if err != nil {
		return err
	} else if authorization == nil {
		return nil
	}

	// delete dependent grants
	_, err = v.store.C(GrantsColl).DeleteMany(ctx, bson.M{
		"authorization_id": authorization.ID,
	})
	if err != nil {
		return xo.W(err)
	}

	// delete authorization
	_, err = v.store.C(AuthorizationsColl).DeleteOne(ctx, bson.M{
		"_id": authorization.ID,
	})
	if err != nil {
		return xo.W(err)
	}

	return nil
}

// GrantParams describe a grant to be inserted.
type GrantParams struct {
	AuthorizationID      string
	ResourceOwnerID      string
	Type                 GrantType
	RedirectURI          string
	RedirectURISpecified bool
	CodeChallenge        string
	ExpiresAt            time.Time
}

// InsertGrant will generate a fresh code, store the grant with the keyed hash
// of the code and the encrypted challenge, and return the grant together with
// the plaintext code.
func (v *Vault) InsertGrant(ctx context.Context, params GrantParams) (*Grant, string, error) {
	// generate code
	code := seal.Code()

	// prepare grant
	grant := &Grant{
		ID:                   uuid.NewString(),
		AuthorizationID:      params.AuthorizationID,
		ResourceOwnerID:      params.ResourceOwnerID,
		Type:                 params.Type,
		Code:                 v.keyring.GrantCode.Hash(code),
		RedirectURI:          params.RedirectURI,
		RedirectURISpecified: params.RedirectURISpecified,
		ExpiresAt:            params.ExpiresAt,
		CreatedAt:            time.Now(),
	}

	// encrypt challenge if available
	if params.CodeChallenge != "" {
		challenge, err := v.keyring.CodeChallenge.Encrypt([]byte(params.CodeChallenge))
		if err != nil {
			return nil, "", err
		}
		grant.CodeChallenge = challenge
	}

	// insert grant
	_, err := v.store.C(GrantsColl).InsertOne(ctx, grant)
	if err != nil {
		return nil, "", xo.W(err)
	}

	return grant, code, nil
}

// GetGrantByCode will look up a grant by the keyed hash of the provided code
// and preload its parent authorization. It returns nil if no grant matches.
func (v *Vault) GetGrantByCode(ctx context.Context, code string) (*Grant, *Authorization, error) {
	// find grant by hashed code
	var grant Grant
	err := v.store.C(GrantsColl).FindOne(ctx, bson.M{
		"code": v.keyring.GrantCode.Hash(code),
	}).Decode(&grant)
	if err != nil && IsMissing(err) {
		return nil, nil, nil
	} else if err != nil {
		return nil, nil, xo.W(err)
	}

	// preload authorization
	var authorization Authorization
	err = v.store.C(AuthorizationsColl).FindOne(ctx, bson.M{
		"_id": grant.AuthorizationID,
	}).Decode(&authorization)
	if err != nil && IsMissing(err) {
		return nil, nil, nil
	} else if err != nil {
		return nil, nil, xo.W(err)
	}

	return &grant, &authorization, nil
}

// GrantChallenge will decrypt and return the stored code challenge of the
// provided grant.
func (v *Vault) GrantChallenge(grant *Grant) (string, error) {
	// check challenge
	if len(grant.CodeChallenge) == 0 {
		return "", nil
	}

	// decrypt challenge
	challenge, err := v.keyring.CodeChallenge.Decrypt(grant.CodeChallenge)
	if err != nil {
		return "", err
	}

	return string(challenge), nil
}

// DeleteGrant will delete the grant with the provided id. It reports whether
// a grant was deleted, which gates token issuance for concurrent exchanges of
// the same code.
func (v *Vault) DeleteGrant(ctx context.Context, id string) (bool, error) {
	// delete grant
	res, err := v.store.C(GrantsColl).DeleteOne(ctx, bson.M{
		"_id": id,
	})
	if err != nil {
		return false, xo.W(err)
	}

	return res.DeletedCount == 1, nil
}

// DeleteExpiredGrants will delete all expired grants. The sweep is idempotent.
func (v *Vault) DeleteExpiredGrants(ctx context.Context) (int64, error) {
	// delete expired grants
	res, err := v.store.C(GrantsColl).DeleteMany(ctx, bson.M{
		"expires_at": bson.M{
			"$lte": time.Now(),
		},
	})
	if err != nil {
		return 0, xo.W(err)
	}

	return res.DeletedCount, nil
}

// GetSession will return the session for the provided user and session type
// or nil if none exists.
func (v *Vault) GetSession(ctx context.Context, userID, sessionType string) (*Session, error) {
	// find session
	var session Session
	err := v.store.C(SessionsColl).FindOne(ctx, bson.M{
		"user_id":      userID,
		"session_type": sessionType,
	}).Decode(&session)
	if err != nil && IsMissing(err) {
		return nil, nil
	} else if err != nil {
		return nil, xo.W(err)
	}

	return &session, nil
}

// UpsertSession will insert or rotate the session for the provided user and
// session type. The token index is incremented on every call.
func (v *Vault) UpsertSession(ctx context.Context, userID, sessionType string) (*Session, error) {
	// prepare filter and update
	now := time.Now()
	filter := bson.M{
		"user_id":      userID,
		"session_type": sessionType,
	}
	update := bson.M{
		"$inc": bson.M{
			"index": int64(1),
		},
		"$set": bson.M{
			"rotated_at": now,
			"updated_at": now,
		},
		"$setOnInsert": bson.M{
			"_id":        uuid.NewString(),
			"created_at": now,
		},
	}

	// upsert session and retry once on a conflicting concurrent insert
	var session Session
	err := v.store.C(SessionsColl).FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&session)
	if err != nil && IsDuplicate(err) {
		err = v.store.C(SessionsColl).FindOneAndUpdate(ctx, filter, update,
			options.FindOneAndUpdate().SetReturnDocument(options.After),
		).Decode(&session)
	}
	if err != nil {
		return nil, xo.W(err)
	}

	return &session, nil
}

// DeleteSession will delete the session for the provided user and session
// type.
func (v *Vault) DeleteSession(ctx context.Context, userID, sessionType string) error {
	// delete session
	_, err := v.store.C(SessionsColl).DeleteMany(ctx, bson.M{
		"user_id":      userID,
		"session_type": sessionType,
	})
	if err != nil {
		return xo.W(err)
	}

	return nil
}

func intersect(a, b []string) []string {
	list := make([]string, 0, len(a))
	for _, item := range a {
		if contains(b, item) {
			list = append(list, item)
		}
	}

	return list
}
