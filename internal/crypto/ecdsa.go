package crypto

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"math/big"
)

// SignP256 produces an ASN.1 DER ECDSA signature over the SHA-256 digest
// of data.
func SignP256(priv *ecdsa.PrivateKey, data []byte) ([]byte, error) {
	digest := sha256.Sum256(data)
	sig, err := ecdsa.SignASN1(rand.Reader, priv, digest[:])
	if nil != err {
		return nil, wrapError(err, "failed signing data")
	}
	return sig, nil
}

// VerifyP256 checks an ASN.1 DER ECDSA signature over the SHA-256 digest
// of data.
func VerifyP256(pub *ecdsa.PublicKey, data, sig []byte) bool {
	digest := sha256.Sum256(data)
	return ecdsa.VerifyASN1(pub, digest[:], sig)
}

// ECDSAPrivateKeyFromScalar rebuilds an ecdsa.PrivateKey from a raw P-256
// scalar. The device private key is stored as the 32 byte scalar produced
// by crypto/ecdh, the ECDSA view is needed for data signing.
func ECDSAPrivateKeyFromScalar(scalar []byte) (*ecdsa.PrivateKey, error) {
	curve := elliptic.P256()
	d := new(big.Int).SetBytes(scalar)
	if d.Sign() <= 0 || d.Cmp(curve.Params().N) >= 0 {
		return nil, newError("scalar out of range for P256")
	}
	x, y := curve.ScalarBaseMult(scalar)
	priv := &ecdsa.PrivateKey{
		PublicKey: ecdsa.PublicKey{Curve: curve, X: x, Y: y},
		D:         d,
	}
	return priv, nil
}
