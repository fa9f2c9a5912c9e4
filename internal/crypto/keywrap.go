package crypto

import (
	"crypto/hmac"
	"crypto/rand"
	"io"
)

const (
	wrapIVSize  = 16
	wrapMacSize = 16

	// SymmetricKeySize is the length of every PowerAuth symmetric key:
	// signature factor keys, the transport key, unlock keys and the EEK.
	SymmetricKeySize = 16
)

// WrapKey protects key under the 16 byte key encryption key kek. The
// wrapped form is iv || AES-CBC-PKCS7 ciphertext || HMAC-SHA256 tag
// truncated to 16 bytes, computed over iv and ciphertext. UnwrapKey
// rejects any tampering or a wrong kek with a MAC failure before touching
// the ciphertext.
func WrapKey(kek, key []byte) ([]byte, error) {
	if len(kek) != SymmetricKeySize {
		return nil, newError("invalid wrapping key, length %d != %d", len(kek), SymmetricKeySize)
	}
	if 0 == len(key) {
		return nil, newError("empty key material")
	}

	iv := make([]byte, wrapIVSize)
	_, err := io.ReadFull(rand.Reader, iv)
	if nil != err {
		return nil, wrapError(err, "failed IV generation")
	}
	ciphertext, err := AESCBCEncryptPad(kek, iv, key)
	if nil != err {
		return nil, wrapError(err, "failed key encryption")
	}

	rv := make([]byte, 0, wrapIVSize+len(ciphertext)+wrapMacSize)
	rv = append(rv, iv...)
	rv = append(rv, ciphertext...)
	tag := HMACSHA256(kek, rv)
	rv = append(rv, tag[:wrapMacSize]...)

	return rv, nil
}

// UnwrapKey reverses WrapKey. It errors if wrapped is too short, if the
// authentication tag does not verify under kek or if the inner padding is
// malformed.
func UnwrapKey(kek, wrapped []byte) ([]byte, error) {
	if len(kek) != SymmetricKeySize {
		return nil, newError("invalid wrapping key, length %d != %d", len(kek), SymmetricKeySize)
	}
	if len(wrapped) < wrapIVSize+wrapMacSize+16 {
		return nil, newError("invalid wrapped key, length %d too short", len(wrapped))
	}

	authenticated := wrapped[:len(wrapped)-wrapMacSize]
	tag := HMACSHA256(kek, authenticated)
	if !hmac.Equal(tag[:wrapMacSize], wrapped[len(wrapped)-wrapMacSize:]) {
		return nil, newError("key unwrap MAC mismatch")
	}

	iv := authenticated[:wrapIVSize]
	ciphertext := authenticated[wrapIVSize:]
	key, err := AESCBCDecryptPad(kek, iv, ciphertext)
	return key, wrapError(err, "failed key decryption")
}

// RandomBytes fills a fresh buffer of size bytes from the system CSPRNG.
func RandomBytes(size int) ([]byte, error) {
	if size <= 0 {
		return nil, newError("invalid random size %d", size)
	}
	rv := make([]byte, size)
	_, err := io.ReadFull(rand.Reader, rv)
	if nil != err {
		return nil, wrapError(err, "failed random generation")
	}
	return rv, nil
}

// IsZeroFilled reports whether buf contains only zero bytes. Zero filled
// unlock keys are forbidden by the protocol.
func IsZeroFilled(buf []byte) bool {
	var acc byte
	for _, b := range buf {
		acc |= b
	}
	return 0 == acc
}
