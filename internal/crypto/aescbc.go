package crypto

import (
	"crypto/aes"
	"crypto/cipher"
)

// AESCBCEncryptPad encrypts plaintext with AES-CBC after applying PKCS#7
// padding. key length selects the AES variant, PowerAuth uses 16 bytes.
func AESCBCEncryptPad(key, iv, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if nil != err {
		return nil, wrapError(err, "failed AES cipher creation")
	}
	if len(iv) != block.BlockSize() {
		return nil, newError("invalid IV, length %d != %d", len(iv), block.BlockSize())
	}
	padded := pkcs7Pad(plaintext, block.BlockSize())
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)
	return ciphertext, nil
}

// AESCBCDecryptPad decrypts an AES-CBC ciphertext and removes PKCS#7
// padding. It errors if the ciphertext is not block aligned or the padding
// is malformed.
func AESCBCDecryptPad(key, iv, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if nil != err {
		return nil, wrapError(err, "failed AES cipher creation")
	}
	if len(iv) != block.BlockSize() {
		return nil, newError("invalid IV, length %d != %d", len(iv), block.BlockSize())
	}
	if (0 == len(ciphertext)) || (0 != len(ciphertext)%block.BlockSize()) {
		return nil, newError("invalid ciphertext, length %d not block aligned", len(ciphertext))
	}
	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)
	return pkcs7Unpad(plaintext, block.BlockSize())
}

// AESCBCEncrypt encrypts a block aligned plaintext with AES-CBC, no padding.
// The encrypted status blob uses this raw mode.
func AESCBCEncrypt(key, iv, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if nil != err {
		return nil, wrapError(err, "failed AES cipher creation")
	}
	if len(iv) != block.BlockSize() {
		return nil, newError("invalid IV, length %d != %d", len(iv), block.BlockSize())
	}
	if 0 != len(plaintext)%block.BlockSize() {
		return nil, newError("invalid plaintext, length %d not block aligned", len(plaintext))
	}
	ciphertext := make([]byte, len(plaintext))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, plaintext)
	return ciphertext, nil
}

// AESCBCDecrypt decrypts a block aligned AES-CBC ciphertext, no padding.
func AESCBCDecrypt(key, iv, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if nil != err {
		return nil, wrapError(err, "failed AES cipher creation")
	}
	if len(iv) != block.BlockSize() {
		return nil, newError("invalid IV, length %d != %d", len(iv), block.BlockSize())
	}
	if (0 == len(ciphertext)) || (0 != len(ciphertext)%block.BlockSize()) {
		return nil, newError("invalid ciphertext, length %d not block aligned", len(ciphertext))
	}
	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)
	return plaintext, nil
}

func pkcs7Pad(data []byte, blocksize int) []byte {
	padlen := blocksize - (len(data) % blocksize)
	padded := make([]byte, len(data)+padlen)
	copy(padded, data)
	for pos := len(data); pos < len(padded); pos++ {
		padded[pos] = byte(padlen)
	}
	return padded
}

func pkcs7Unpad(data []byte, blocksize int) ([]byte, error) {
	if 0 == len(data) {
		return nil, newError("empty padded data")
	}
	padlen := int(data[len(data)-1])
	if (padlen == 0) || (padlen > blocksize) || (padlen > len(data)) {
		return nil, newError("malformed PKCS7 padding")
	}
	for _, b := range data[len(data)-padlen:] {
		if int(b) != padlen {
			return nil, newError("malformed PKCS7 padding")
		}
	}
	return data[:len(data)-padlen], nil
}
