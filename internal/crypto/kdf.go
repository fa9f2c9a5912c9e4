package crypto

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/binary"

	"golang.org/x/crypto/pbkdf2"
)

// KDFX963 implements the ANSI X9.63 key derivation function with SHA-256.
// It expands secret into length bytes, mixing sharedInfo into each hash
// round. PowerAuth uses it both for the activation master key derivations
// and for the ECIES envelope key.
func KDFX963(secret, sharedInfo []byte, length int) ([]byte, error) {
	if 0 == len(secret) {
		return nil, newError("empty KDF secret")
	}
	if (length <= 0) || (length > 255*sha256.Size) {
		return nil, newError("invalid KDF output length %d", length)
	}

	var counter [4]byte
	rv := make([]byte, 0, length)
	for round := uint32(1); len(rv) < length; round++ {
		binary.BigEndian.PutUint32(counter[:], round)
		h := sha256.New()
		h.Write(secret)
		h.Write(counter[:])
		h.Write(sharedInfo)
		rv = h.Sum(rv)
	}
	return rv[:length], nil
}

// PBKDF2SHA1 stretches a user password into a 16 byte key encryption key.
// The knowledge factor uses 10000 iterations over a random 16 byte salt.
func PBKDF2SHA1(password, salt []byte, iterations, length int) ([]byte, error) {
	if 0 == len(password) {
		return nil, newError("empty password")
	}
	if 0 == len(salt) {
		return nil, newError("empty salt")
	}
	if (iterations <= 0) || (length <= 0) {
		return nil, newError("invalid PBKDF2 parameters, iter %d length %d", iterations, length)
	}
	return pbkdf2.Key(password, salt, iterations, length, sha1.New), nil
}

// HMACSHA256 computes a SHA-256 HMAC of data under key.
func HMACSHA256(key, data []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}

// SHA256 returns the SHA-256 digest of data.
func SHA256(data []byte) []byte {
	digest := sha256.Sum256(data)
	return digest[:]
}
