// Package ecies implements the PowerAuth end to end encryption scheme:
// P-256 key agreement, X9.63 key derivation, AES-128-CBC with PKCS#7
// padding and HMAC-SHA256 authentication.
//
// The client side Encryptor produces request cryptograms and verifies
// response cryptograms under the same envelope key. The Decryptor is the
// server side counterpart, this module carries it for round trip testing
// and for generating cross implementation test vectors.
package ecies

import (
	"bytes"
	"crypto/hmac"

	"github.com/milanoid/powerauth-mobile-sdk/internal/crypto"
	"github.com/milanoid/powerauth-mobile-sdk/pkg/powerauth/paerr"
)

const (
	envelopeSize = 32
	nonceSize    = 16
	macSize      = 32
)

// Cryptogram is one encrypted message. On the wire its fields travel as
// Base64 JSON values, the JSON framing belongs to the host application.
type Cryptogram struct {
	// Body is the AES-CBC ciphertext.
	Body []byte

	// Mac authenticates the body together with the exchange parameters.
	Mac []byte

	// Key is the compressed ephemeral public key. Only request
	// cryptograms carry it, the response reuses the request envelope.
	Key []byte

	// Nonce is the fresh 16 byte IV derivation input of this message.
	Nonce []byte
}

// envelope is the derived key material of one ECIES exchange, split into
// the AES encryption key and the MAC key.
type envelope []byte

func (self envelope) encKey() []byte {
	return self[:16]
}

func (self envelope) macKey() []byte {
	return self[16:32]
}

// deriveEnvelope runs the X9.63 KDF over an ECDH shared secret.
func deriveEnvelope(secret, sharedInfo1 []byte) (envelope, error) {
	env, err := crypto.KDFX963(secret, sharedInfo1, envelopeSize)
	if nil != err {
		return nil, paerr.Wrap(paerr.Encryption, err, "failed envelope derivation")
	}
	return envelope(env), nil
}

// deriveIV expands the envelope and the message nonce into the AES IV, so
// request and response reuse the envelope without reusing an IV.
func deriveIV(env envelope, nonce []byte) ([]byte, error) {
	iv, err := crypto.KDFX963(env, nonce, 16)
	return iv, paerr.Wrap(paerr.Encryption, err, "failed IV derivation")
}

// seal encrypts plaintext and authenticates it together with
// sharedInfo2, the ephemeral key (requests only) and the nonce.
func seal(env envelope, plaintext, sharedInfo2, ephemeralKey []byte) (Cryptogram, error) {
	var rv Cryptogram

	nonce, err := crypto.RandomBytes(nonceSize)
	if nil != err {
		return rv, paerr.Wrap(paerr.Encryption, err, "failed nonce generation")
	}
	iv, err := deriveIV(env, nonce)
	if nil != err {
		return rv, err
	}
	body, err := crypto.AESCBCEncryptPad(env.encKey(), iv, plaintext)
	if nil != err {
		return rv, paerr.Wrap(paerr.Encryption, err, "failed encryption")
	}

	rv = Cryptogram{
		Body:  body,
		Mac:   crypto.HMACSHA256(env.macKey(), macData(body, sharedInfo2, ephemeralKey, nonce)),
		Key:   bytes.Clone(ephemeralKey),
		Nonce: nonce,
	}
	return rv, nil
}

// open verifies the cryptogram MAC and decrypts the body.
func open(env envelope, c Cryptogram, sharedInfo2, ephemeralKey []byte) ([]byte, error) {
	if (0 == len(c.Body)) || (len(c.Mac) != macSize) || (len(c.Nonce) != nonceSize) {
		return nil, paerr.New(paerr.Encryption, "malformed cryptogram")
	}
	expect := crypto.HMACSHA256(env.macKey(), macData(c.Body, sharedInfo2, ephemeralKey, c.Nonce))
	if !hmac.Equal(expect, c.Mac) {
		return nil, paerr.New(paerr.Encryption, "cryptogram MAC mismatch")
	}

	iv, err := deriveIV(env, c.Nonce)
	if nil != err {
		return nil, err
	}
	plaintext, err := crypto.AESCBCDecryptPad(env.encKey(), iv, c.Body)
	return plaintext, paerr.Wrap(paerr.Encryption, err, "failed decryption")
}

// macData builds the authenticated blob: body || sharedInfo2 ||
// ephemeralKey || nonce, with the ephemeral key absent on responses.
func macData(body, sharedInfo2, ephemeralKey, nonce []byte) []byte {
	rv := make([]byte, 0, len(body)+len(sharedInfo2)+len(ephemeralKey)+len(nonce))
	rv = append(rv, body...)
	rv = append(rv, sharedInfo2...)
	rv = append(rv, ephemeralKey...)
	rv = append(rv, nonce...)
	return rv
}

// Encryptor is the client side of one ECIES exchange.
type Encryptor struct {
	peerPublicKey []byte
	sharedInfo1   []byte
	sharedInfo2   []byte

	env          envelope
	ephemeralKey []byte
}

// NewEncryptor returns an Encryptor targeting the raw peer public key
// point, compressed or uncompressed. The key is validated on first use,
// an invalid point fails EncryptRequest with an Encryption error.
func NewEncryptor(peerPublicKey, sharedInfo1, sharedInfo2 []byte) *Encryptor {
	return &Encryptor{
		peerPublicKey: bytes.Clone(peerPublicKey),
		sharedInfo1:   bytes.Clone(sharedInfo1),
		sharedInfo2:   bytes.Clone(sharedInfo2),
	}
}

// EncryptRequest generates a fresh ephemeral key, derives the envelope
// and seals plaintext into a request cryptogram. The envelope stays in
// the Encryptor to verify and decrypt the matching response.
func (self *Encryptor) EncryptRequest(plaintext []byte) (Cryptogram, error) {
	var rv Cryptogram

	peer, _, err := crypto.ParseP256PublicKey(self.peerPublicKey)
	if nil != err {
		return rv, paerr.Wrap(paerr.Encryption, err, "invalid peer public key")
	}

	ephemeral, err := crypto.GenerateP256KeyPair()
	if nil != err {
		return rv, paerr.Wrap(paerr.Encryption, err, "failed ephemeral key generation")
	}
	secret, err := crypto.ECDHSharedSecret(ephemeral, peer)
	if nil != err {
		return rv, paerr.Wrap(paerr.Encryption, err, "failed key agreement")
	}
	env, err := deriveEnvelope(secret, self.sharedInfo1)
	if nil != err {
		return rv, err
	}
	ephemeralKey := crypto.CompressP256PublicKey(ephemeral.PublicKey())

	rv, err = seal(env, plaintext, self.sharedInfo2, ephemeralKey)
	if nil != err {
		return rv, err
	}

	self.env = env
	self.ephemeralKey = ephemeralKey
	return rv, nil
}

// CanDecryptResponse reports whether a request was encrypted, leaving an
// envelope to decrypt the response with.
func (self *Encryptor) CanDecryptResponse() bool {
	return nil != self.env
}

// DecryptResponse verifies and opens a response cryptogram under the
// envelope of the last encrypted request.
func (self *Encryptor) DecryptResponse(c Cryptogram) ([]byte, error) {
	if !self.CanDecryptResponse() {
		return nil, paerr.New(paerr.WrongState, "no request encrypted yet")
	}
	return open(self.env, c, self.sharedInfo2, nil)
}
