// Package boltstore provides a persistent token.LocalStore that keeps
// token records in a single file boltdb database.
package boltstore

import (
	"time"

	"github.com/fxamacker/cbor/v2"
	bolt "go.etcd.io/bbolt"

	"github.com/milanoid/powerauth-mobile-sdk/pkg/powerauth/token"
)

const (
	connectTimeout = 5 * time.Second

	tokenBucket = "tokenTbl"
)

type boltStore struct {
	dbpath string
}

// New returns a token.LocalStore backed by the boltdb file at dbpath. It
// errors if the database schema can not be created.
func New(dbpath string) (token.LocalStore, error) {
	store := boltStore{dbpath: dbpath}

	db, err := bolt.Open(dbpath, 0600, &bolt.Options{Timeout: connectTimeout})
	if nil != err {
		return nil, wrapError(err, "failed connecting to database")
	}
	defer db.Close()

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(tokenBucket))
		return wrapError(err, "failed %s bucket creation", tokenBucket)
	})
	if nil != err {
		return nil, wrapError(err, "failed db initialization")
	}

	return store, nil
}

// Save inserts or replaces the record under its name.
func (self boltStore) Save(rec token.Record) error {
	err := rec.Check()
	if nil != err {
		return wrapError(err, "record is invalid")
	}

	srzrec, err := cbor.Marshal(rec)
	if nil != err {
		return wrapError(err, "failed cbor.Marshal(rec)")
	}

	db, err := bolt.Open(self.dbpath, 0600, &bolt.Options{Timeout: connectTimeout})
	if nil != err {
		return wrapError(err, "failed connecting to database")
	}
	defer db.Close()

	err = db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(tokenBucket))
		if nil == bucket {
			return newError("missing %s bucket", tokenBucket)
		}
		return bucket.Put([]byte(rec.Name), srzrec)
	})

	return wrapError(err, "failed db.Update") // nil if err is nil
}

// Load returns the record stored under name.
func (self boltStore) Load(name string) (token.Record, bool, error) {
	var rec token.Record
	var found bool

	db, err := bolt.Open(self.dbpath, 0600, &bolt.Options{Timeout: connectTimeout})
	if nil != err {
		return rec, false, wrapError(err, "failed connecting to database")
	}
	defer db.Close()

	err = db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(tokenBucket))
		if nil == bucket {
			return newError("missing %s bucket", tokenBucket)
		}
		srzrec := bucket.Get([]byte(name))
		if nil == srzrec {
			return nil
		}
		found = true
		return wrapError(cbor.Unmarshal(srzrec, &rec), "failed cbor.Unmarshal(rec)")
	})

	return rec, found, wrapError(err, "failed db.View")
}

// Remove deletes the record stored under name.
func (self boltStore) Remove(name string) (bool, error) {
	var removed bool

	db, err := bolt.Open(self.dbpath, 0600, &bolt.Options{Timeout: connectTimeout})
	if nil != err {
		return false, wrapError(err, "failed connecting to database")
	}
	defer db.Close()

	err = db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(tokenBucket))
		if nil == bucket {
			return newError("missing %s bucket", tokenBucket)
		}
		if nil == bucket.Get([]byte(name)) {
			return nil
		}
		removed = true
		return bucket.Delete([]byte(name))
	})

	return removed, wrapError(err, "failed db.Update")
}

// RemoveAll deletes every record.
func (self boltStore) RemoveAll() error {
	db, err := bolt.Open(self.dbpath, 0600, &bolt.Options{Timeout: connectTimeout})
	if nil != err {
		return wrapError(err, "failed connecting to database")
	}
	defer db.Close()

	err = db.Update(func(tx *bolt.Tx) error {
		err := tx.DeleteBucket([]byte(tokenBucket))
		if nil != err {
			return wrapError(err, "failed %s bucket deletion", tokenBucket)
		}
		_, err = tx.CreateBucket([]byte(tokenBucket))
		return wrapError(err, "failed %s bucket recreation", tokenBucket)
	})

	return wrapError(err, "failed db.Update")
}

var _ token.LocalStore = boltStore{}
