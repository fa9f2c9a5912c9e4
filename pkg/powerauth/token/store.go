package token

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/milanoid/powerauth-mobile-sdk/internal/observability"
	"github.com/milanoid/powerauth-mobile-sdk/internal/utils"
	"github.com/milanoid/powerauth-mobile-sdk/pkg/powerauth/paerr"
	"github.com/milanoid/powerauth-mobile-sdk/pkg/powerauth/signature"
)

// LocalStore is the local token database. Records reach it in clear,
// token secrets included; the in-memory store and the boltstore package
// keep them unencrypted. Implementations must be safe for concurrent use.
type LocalStore interface {
	// Save inserts or replaces the record under its name.
	Save(rec Record) error

	// Load returns the record stored under name and a bool indicating if
	// such a record exists.
	Load(name string) (Record, bool, error)

	// Remove deletes the record stored under name. It returns true if a
	// record was effectively removed.
	Remove(name string) (bool, error)

	// RemoveAll deletes every record.
	RemoveAll() error
}

// RemoteProvider issues the authenticated token endpoints calls. The host
// application implements it on top of its HTTP client, signing requests
// with the signature engine for the factor set it is given.
type RemoteProvider interface {
	// CreateToken obtains a new token from the server.
	CreateToken(ctx context.Context, name string, factor signature.Factor) (Record, error)

	// RemoveToken invalidates the token on the server.
	RemoveToken(ctx context.Context, name, identifier string) error
}

// storeRegistry resolves the non owning store handles carried by Token
// values.
var storeRegistry = utils.NewRegistry[uint64, *Store]()

var storeHandles atomic.Uint64

func lookupStore(handle uint64) (*Store, bool) {
	return utils.RegistryGet(storeRegistry, handle)
}

// StoreCfg configures a Store.
type StoreCfg struct {
	// Local is the token database. Required.
	Local LocalStore

	// Remote issues the network calls. A store without a remote provider
	// serves cached tokens only.
	Remote RemoteProvider

	// Now overrides the header timestamp clock, for tests. Defaults to
	// time.Now.
	Now func() time.Time
}

func (self StoreCfg) Check() error {
	if nil == self.Local {
		return paerr.New(paerr.WrongParam, "nil Local store")
	}
	return nil
}

// Store maps token names to access tokens. It is safe for concurrent
// use, requests for the same name are coalesced into one network call.
type Store struct {
	local  LocalStore
	remote RemoteProvider
	now    func() time.Time

	flight singleflight.Group
	handle uint64
	closed atomic.Bool
}

// NewStore returns a registered Store.
func NewStore(cfg StoreCfg) (*Store, error) {
	err := cfg.Check()
	if nil != err {
		return nil, err
	}

	rv := &Store{
		local:  cfg.Local,
		remote: cfg.Remote,
		now:    cfg.Now,
		handle: storeHandles.Add(1),
	}
	if nil == rv.now {
		rv.now = time.Now
	}
	err = utils.RegistrySet(storeRegistry, rv.handle, rv)
	if nil != err {
		return nil, paerr.Wrap(paerr.WrongState, err, "failed store registration")
	}
	return rv, nil
}

// Close deregisters the store. Tokens handed out earlier keep their data
// but can no longer generate headers.
func (self *Store) Close() {
	if self.closed.CompareAndSwap(false, true) {
		utils.RegistryDelete(storeRegistry, self.handle)
	}
}

func (self *Store) clock() time.Time {
	return self.now()
}

// CanRequestForAccessToken reports whether the store can obtain new
// tokens from the server.
func (self *Store) CanRequestForAccessToken() bool {
	return (nil != self.remote) && !self.closed.Load()
}

// HasLocalToken reports whether a token with name is cached in the local
// database.
func (self *Store) HasLocalToken(name string) bool {
	_, found, err := self.local.Load(name)
	return found && (nil == err)
}

// LocalToken returns the cached token with name, if any.
func (self *Store) LocalToken(name string) (Token, bool) {
	rec, found, err := self.local.Load(name)
	if !found || (nil != err) {
		return Token{}, false
	}
	return Token{record: rec, store: self.handle}, true
}

// RequestAccessToken returns the token named name, serving it from the
// local database when cached and requesting it from the server
// otherwise. Concurrent requests for the same name share one network
// call and its result.
func (self *Store) RequestAccessToken(ctx context.Context, name string, factor signature.Factor) (Token, error) {
	log := observability.GetObservability(ctx).Log().With("op", "RequestAccessToken", "token", name)

	if "" == name {
		return Token{}, paerr.New(paerr.WrongParam, "empty token name")
	}
	err := factor.Check()
	if nil != err {
		return Token{}, err
	}
	if tok, found := self.LocalToken(name); found {
		return tok, nil
	}
	if !self.CanRequestForAccessToken() {
		return Token{}, paerr.New(paerr.WrongState, "store can not request access tokens")
	}

	rec, err, shared := self.flight.Do(name, func() (any, error) {
		// another waiter may have stored the token in the meantime
		if rec, found, err := self.local.Load(name); found && (nil == err) {
			return rec, nil
		}

		log.Debug("requesting token from server")
		rec, err := self.remote.CreateToken(ctx, name, factor)
		if nil != err {
			return Record{}, paerr.Wrap(paerr.Encryption, err, "failed token creation")
		}
		if rec.Name != name {
			rec.Name = name
		}
		err = rec.Check()
		if nil != err {
			return Record{}, err
		}
		err = self.local.Save(rec)
		if nil != err {
			return Record{}, paerr.Wrap(paerr.Encryption, err, "failed token persistence")
		}
		return rec, nil
	})
	if nil != err {
		return Token{}, err
	}

	log.Debug("token available", "shared", shared)
	return Token{record: rec.(Record), store: self.handle}, nil
}

// RemoveAccessToken invalidates the token on the server, then deletes it
// locally. The local record survives a failed server call.
func (self *Store) RemoveAccessToken(ctx context.Context, name string) error {
	log := observability.GetObservability(ctx).Log().With("op", "RemoveAccessToken", "token", name)

	rec, found, err := self.local.Load(name)
	if nil != err {
		return paerr.Wrap(paerr.Encryption, err, "failed token lookup")
	}
	if !found {
		return paerr.New(paerr.WrongParam, "unknown token %q", name)
	}
	if !self.CanRequestForAccessToken() {
		return paerr.New(paerr.WrongState, "store can not remove access tokens")
	}

	err = self.remote.RemoveToken(ctx, name, rec.Identifier)
	if nil != err {
		return paerr.Wrap(paerr.Encryption, err, "failed server side token removal")
	}
	_, err = self.local.Remove(name)
	if nil != err {
		return paerr.Wrap(paerr.Encryption, err, "failed local token removal")
	}

	log.Info("token removed")
	return nil
}

// RemoveLocalToken deletes the record under name from the local database
// without contacting the server.
func (self *Store) RemoveLocalToken(name string) {
	self.local.Remove(name)
}

// RemoveAllLocalTokens clears the local database without contacting the
// server.
func (self *Store) RemoveAllLocalTokens() {
	self.local.RemoveAll()
}
