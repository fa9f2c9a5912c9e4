// Package token implements the PowerAuth token store protocol: named
// access tokens persisted in a local database and the token based
// authorization headers computed from them. Network transport belongs to
// the host application, the store drives it through the RemoteProvider
// interface.
package token

import (
	"crypto/hmac"
	"encoding/base64"
	"fmt"
	"strconv"

	"github.com/milanoid/powerauth-mobile-sdk/internal/crypto"
	"github.com/milanoid/powerauth-mobile-sdk/pkg/powerauth/paerr"
)

const (
	// secretSize is the length of a token secret.
	secretSize = 16

	// headerName is the HTTP header tokens authorize requests with.
	headerName = "X-PowerAuth-Token"

	headerVersion = "3.1"
)

// Record is the persisted form of a token, serialized with CBOR into the
// local database.
type Record struct {
	Name       string `json:"1" cbor:"1,keyasint"`
	Identifier string `json:"2" cbor:"2,keyasint"`
	Secret     []byte `json:"3" cbor:"3,keyasint"`
}

// Check returns an error if the Record is invalid.
func (self Record) Check() error {
	if "" == self.Name {
		return paerr.New(paerr.WrongParam, "empty token name")
	}
	if "" == self.Identifier {
		return paerr.New(paerr.WrongParam, "empty token identifier")
	}
	if len(self.Secret) != secretSize {
		return paerr.New(paerr.WrongParam, "invalid token secret, length %d != %d", len(self.Secret), secretSize)
	}
	return nil
}

// Token is an access token handed out by a Store. It keeps a non owning
// handle to its store, a Token stays usable as a value after the store is
// closed but can no longer generate headers.
type Token struct {
	record Record
	store  uint64
}

// Name returns the symbolic token name.
func (self Token) Name() string {
	return self.record.Name
}

// Identifier returns the server side token identifier.
func (self Token) Identifier() string {
	return self.record.Identifier
}

// IsValid reports whether the token carries complete data.
func (self Token) IsValid() bool {
	return nil == self.record.Check()
}

// CanGenerateHeader reports whether GenerateHeader can succeed: the token
// is valid and its store is still alive and able to service tokens.
func (self Token) CanGenerateHeader() bool {
	store, found := lookupStore(self.store)
	return self.IsValid() && found && store.CanRequestForAccessToken()
}

// Equal reports whether both tokens carry the same data.
func (self Token) Equal(other Token) bool {
	return (self.record.Name == other.record.Name) &&
		(self.record.Identifier == other.record.Identifier) &&
		hmac.Equal(self.record.Secret, other.record.Secret)
}

// AuthorizationHeader is a complete HTTP header authorizing one request.
type AuthorizationHeader struct {
	Name  string
	Value string
}

// GenerateHeader computes a fresh token based authorization header:
//
//	nonce     = base64(random(16))
//	timestamp = unix epoch milliseconds
//	digest    = base64(HMAC-SHA256(secret, nonce || '&' || timestamp))
func (self Token) GenerateHeader() (AuthorizationHeader, error) {
	var rv AuthorizationHeader

	if !self.IsValid() {
		return rv, paerr.New(paerr.WrongState, "invalid token")
	}
	store, found := lookupStore(self.store)
	if !found || !store.CanRequestForAccessToken() {
		return rv, paerr.New(paerr.WrongState, "token store can not service tokens")
	}

	raw, err := crypto.RandomBytes(16)
	if nil != err {
		return rv, paerr.Wrap(paerr.Encryption, err, "failed nonce generation")
	}
	nonce := base64.StdEncoding.EncodeToString(raw)
	timestamp := strconv.FormatInt(store.clock().UnixMilli(), 10)

	data := nonce + "&" + timestamp
	digest := base64.StdEncoding.EncodeToString(crypto.HMACSHA256(self.record.Secret, []byte(data)))

	rv = AuthorizationHeader{
		Name: headerName,
		Value: fmt.Sprintf(
			"PowerAuth token_id=%q, token_digest=%q, nonce=%q, timestamp=%q, version=%q",
			self.record.Identifier, digest, nonce, timestamp, headerVersion,
		),
	}
	return rv, nil
}
