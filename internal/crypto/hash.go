package crypto

import (
	"crypto"

	_ "crypto/sha256"
	_ "golang.org/x/crypto/blake2s"

	"github.com/milanoid/powerauth-mobile-sdk/internal/utils"
)

// Hash algorithm names registered below. PowerAuth itself only ever signs
// and derives with SHA256, but the registry is kept general so alternate
// hash identifiers can be added without touching call sites.
const (
	HashSHA256  = "SHA256"
	HashBLAKE2S = "BLAKE2s"
)

var hashRegistry *utils.Registry[string, crypto.Hash]

func init() {
	hashRegistry = utils.NewRegistry[string, crypto.Hash]()
	MustRegisterHash(HashSHA256, crypto.SHA256)
	MustRegisterHash(HashBLAKE2S, crypto.BLAKE2s_256)
}

// MustRegisterHash adds hash to the Hash registry. It panics if name is
// already in use or hash is unavailable.
func MustRegisterHash(name string, hash crypto.Hash) {
	if err := RegisterHash(name, hash); err != nil {
		panic(err)
	}
}

// RegisterHash adds hash to the Hash registry.
func RegisterHash(name string, hash crypto.Hash) error {
	if !hash.Available() {
		return newError("missing implementation for Hash %s", name)
	}
	return wrapError(
		utils.RegistrySet(hashRegistry, name, hash),
		"failed registering Hash algorithm, %s", name,
	)
}

// GetHash loads a Hash implementation from the registry.
func GetHash(name string) (crypto.Hash, error) {
	hash, found := utils.RegistryGet(hashRegistry, name)
	if !found {
		return hash, newError("unsupported Hash algorithm, %s", name)
	}
	return hash, nil
}
