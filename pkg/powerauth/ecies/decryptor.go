package ecies

import (
	"bytes"
	"crypto/ecdh"

	"github.com/milanoid/powerauth-mobile-sdk/internal/crypto"
	"github.com/milanoid/powerauth-mobile-sdk/pkg/powerauth/paerr"
)

// Decryptor is the server side of one ECIES exchange. The client library
// never needs it in production, tests and the vector generator do.
type Decryptor struct {
	privateKey  *ecdh.PrivateKey
	sharedInfo1 []byte
	sharedInfo2 []byte

	env envelope
}

// NewDecryptor builds a Decryptor from a raw P-256 private key scalar.
func NewDecryptor(privateKey, sharedInfo1, sharedInfo2 []byte) (*Decryptor, error) {
	priv, err := ecdh.P256().NewPrivateKey(privateKey)
	if nil != err {
		return nil, paerr.Wrap(paerr.Encryption, err, "invalid private key")
	}
	return &Decryptor{
		privateKey:  priv,
		sharedInfo1: bytes.Clone(sharedInfo1),
		sharedInfo2: bytes.Clone(sharedInfo2),
	}, nil
}

// DecryptRequest derives the envelope from the request ephemeral key and
// opens the request cryptogram. The envelope stays in the Decryptor to
// seal the matching response.
func (self *Decryptor) DecryptRequest(c Cryptogram) ([]byte, error) {
	if 0 == len(c.Key) {
		return nil, paerr.New(paerr.Encryption, "request cryptogram without ephemeral key")
	}
	ephemeral, _, err := crypto.ParseP256PublicKey(c.Key)
	if nil != err {
		return nil, paerr.Wrap(paerr.Encryption, err, "invalid ephemeral key")
	}
	secret, err := crypto.ECDHSharedSecret(self.privateKey, ephemeral)
	if nil != err {
		return nil, paerr.Wrap(paerr.Encryption, err, "failed key agreement")
	}
	env, err := deriveEnvelope(secret, self.sharedInfo1)
	if nil != err {
		return nil, err
	}

	plaintext, err := open(env, c, self.sharedInfo2, c.Key)
	if nil != err {
		return nil, err
	}
	self.env = env
	return plaintext, nil
}

// EncryptResponse seals plaintext under the envelope of the last
// decrypted request. The response carries no ephemeral key.
func (self *Decryptor) EncryptResponse(plaintext []byte) (Cryptogram, error) {
	if nil == self.env {
		return Cryptogram{}, paerr.New(paerr.WrongState, "no request decrypted yet")
	}
	return seal(self.env, plaintext, self.sharedInfo2, nil)
}
