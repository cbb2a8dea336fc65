package vault

import (
	"context"
	"net/url"
	"time"

	"github.com/256dpi/xo"
	"github.com/asaskevich/govalidator"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// The used collection names.
const (
	ClientsColl        = "clients"
	AuthorizationsColl = "authorizations"
	GrantsColl         = "grants"
	SessionsColl       = "sessions"
)

// ClientType describes whether a client can keep a secret.
type ClientType string

// The supported client types.
const (
	Confidential ClientType = "confidential"
	Public       ClientType = "public"
)

// Valid returns whether the client type is known.
func (t ClientType) Valid() bool {
	return t == Confidential || t == Public
}

// GrantType describes an OAuth2 grant type.
type GrantType string

// The supported grant types.
const (
	AuthorizationCode GrantType = "authorization_code"
	RefreshToken      GrantType = "refresh_token"
)

// Valid returns whether the grant type is known.
func (t GrantType) Valid() bool {
	return t == AuthorizationCode || t == RefreshToken
}

// Client is a registered third-party application.
type Client struct {
	ID           string     `bson:"_id"`
	Name         string     `bson:"name"`
	Description  string     `bson:"description"`
	Secret       []byte     `bson:"secret"`
	RedirectURIs []string   `bson:"redirect_uris"`
	Scope        []string   `bson:"scope"`
	GrantTypes   []string   `bson:"grant_types"`
	Type         ClientType `bson:"client_type"`
	OwnerID      string     `bson:"owner_id"`
	CreatedAt    time.Time  `bson:"created_at"`
	UpdatedAt    time.Time  `bson:"updated_at"`
}

// SupportsGrantType returns whether the client may use the provided grant
// type.
func (c *Client) SupportsGrantType(grantType GrantType) bool {
	for _, gt := range c.GrantTypes {
		if gt == string(grantType) {
			return true
		}
	}

	return false
}

// ValidRedirectURI returns whether the provided redirect URI exactly matches
// one of the registered redirect URIs. No normalization is applied.
func (c *Client) ValidRedirectURI(uri string) bool {
	for _, u := range c.RedirectURIs {
		if u == uri {
			return true
		}
	}

	return false
}

// Validate will validate the client fields. The configured application scopes
// are needed to verify the client scope.
func (c *Client) Validate(appScopes []string) error {
	// check name
	if c.Name == "" {
		return xo.SF("name: can't be blank")
	}

	// check redirect uris
	if len(c.RedirectURIs) == 0 {
		return xo.SF("redirect_uris: can't be blank")
	}
	for _, uri := range c.RedirectURIs {
		if !govalidator.IsRequestURL(uri) {
			return xo.SF("redirect_uris: invalid entry")
		}
		parsed, err := url.Parse(uri)
		if err != nil || parsed.Scheme != "https" || parsed.Fragment != "" || !parsed.IsAbs() {
			return xo.SF("redirect_uris: invalid entry")
		}
	}

	// check scope
	if len(c.Scope) == 0 {
		return xo.SF("scope: can't be blank")
	}
	for _, scope := range c.Scope {
		if !contains(appScopes, scope) {
			return xo.SF("scope: invalid entry")
		}
	}

	// check grant types
	if len(c.GrantTypes) == 0 {
		return xo.SF("grant_types: can't be blank")
	}
	for _, gt := range c.GrantTypes {
		if !GrantType(gt).Valid() {
			return xo.SF("grant_types: invalid entry")
		}
	}

	// check client type
	if !c.Type.Valid() {
		return xo.SF("client_type: invalid entry")
	}

	// check owner
	if c.OwnerID == "" {
		return xo.SF("owner_id: can't be blank")
	}

	return nil
}

// Authorization is a user's standing consent for a specific client. At most
// one authorization exists per client and resource owner pair.
type Authorization struct {
	ID              string    `bson:"_id"`
	ClientID        string    `bson:"client_id"`
	ResourceOwnerID string    `bson:"resource_owner_id"`
	Scope           []string  `bson:"scope"`
	CreatedAt       time.Time `bson:"created_at"`
	UpdatedAt       time.Time `bson:"updated_at"`
}

// Grant is a short-lived one-time code bound to an authorization. The code
// column stores a keyed hash of the issued code and the challenge is stored
// encrypted.
type Grant struct {
	ID                   string    `bson:"_id"`
	AuthorizationID      string    `bson:"authorization_id"`
	ResourceOwnerID      string    `bson:"resource_owner_id"`
	Type                 GrantType `bson:"type"`
	Code                 string    `bson:"code"`
	RedirectURI          string    `bson:"redirect_uri"`
	RedirectURISpecified bool      `bson:"redirect_uri_specified"`
	CodeChallenge        []byte    `bson:"code_challenge,omitempty"`
	ExpiresAt            time.Time `bson:"expires_at"`
	CreatedAt            time.Time `bson:"created_at"`
}

// Expired returns whether the grant is expired at the provided time. A grant
// exactly at its expiry is expired.
func (g *Grant) Expired(now time.Time) bool {
	return !now.Before(g.ExpiresAt)
}

// Session is a server-side session record maintained by the standard minter.
// One session exists per user and session type.
type Session struct {
	ID        string    `bson:"_id"`
	UserID    string    `bson:"user_id"`
	Type      string    `bson:"session_type"`
	Index     int64     `bson:"index"`
	RotatedAt time.Time `bson:"rotated_at"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// EnsureIndexes will create the indexes required by the data model on the
// provided store.
func EnsureIndexes(store *Store) error {
	// prepare context
	ctx := context.Background()

	// ensure authorization indexes
	_, err := store.C(AuthorizationsColl).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    orderedKeys("client_id", "resource_owner_id"),
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: orderedKeys("resource_owner_id"),
		},
	})
	if err != nil {
		return xo.W(err)
	}

	// ensure grant indexes
	_, err = store.C(GrantsColl).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    orderedKeys("code"),
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: orderedKeys("authorization_id"),
		},
		{
			Keys: orderedKeys("resource_owner_id"),
		},
	})
	if err != nil {
		return xo.W(err)
	}

	// ensure session indexes
	_, err = store.C(SessionsColl).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    orderedKeys("user_id", "session_type"),
			Options: options.Index().SetUnique(true),
		},
	})
	if err != nil {
		return xo.W(err)
	}

	return nil
}

func orderedKeys(keys ...string) bson.D {
	doc := make(bson.D, 0, len(keys))
	for _, key := range keys {
		doc = append(doc, bson.E{Key: key, Value: 1})
	}

	return doc
}

func contains(list []string, str string) bool {
	for _, item := range list {
		if item == str {
			return true
		}
	}

	return false
}
