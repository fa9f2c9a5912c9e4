package crypto

import (
	stdecdh "crypto/ecdh"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"math/big"

	"github.com/milanoid/powerauth-mobile-sdk/internal/utils"
)

// CurveP256 is the only named-curve algorithm identifier this module uses
// on the wire; the registry is deliberately narrowed to what PowerAuth v3
// actually signs and key-exchanges with.
const CurveP256 = "P256"

var curveRegistry *utils.Registry[string, stdecdh.Curve]

func init() {
	curveRegistry = utils.NewRegistry[string, stdecdh.Curve]()
	MustRegisterCurve(CurveP256, stdecdh.P256())
}

func MustRegisterCurve(name string, curve stdecdh.Curve) {
	if err := RegisterCurve(name, curve); err != nil {
		panic(err)
	}
}

func RegisterCurve(name string, curve stdecdh.Curve) error {
	if curve == nil {
		return newError("nil curve can not be registered")
	}
	return wrapError(
		utils.RegistrySet(curveRegistry, name, curve),
		"failed registering Curve algorithm, %s", name,
	)
}

func GetCurve(name string) (stdecdh.Curve, error) {
	curve, found := utils.RegistryGet(curveRegistry, name)
	if !found {
		return nil, newError("unsupported Curve algorithm, %s", name)
	}
	return curve, nil
}

// GenerateP256KeyPair returns a fresh device or ephemeral key pair on the
// P-256 curve.
func GenerateP256KeyPair() (*stdecdh.PrivateKey, error) {
	curve, err := GetCurve(CurveP256)
	if err != nil {
		return nil, err
	}
	priv, err := curve.GenerateKey(rand.Reader)
	if err != nil {
		return nil, wrapError(err, "failed generating P256 key pair")
	}
	return priv, nil
}

// ParseP256PublicKey decodes a SEC1 point, compressed or uncompressed,
// and validates that it lies on the curve and is not the point at
// infinity. It returns both the ECDH and ECDSA views of the same public
// key, since PowerAuth reuses a single EC key both for key agreement
// (ECIES) and signature verification (activation code /
// server-signed-data checks).
func ParseP256PublicKey(raw []byte) (*stdecdh.PublicKey, *ecdsa.PublicKey, error) {
	curve := elliptic.P256()
	var x, y *big.Int
	switch len(raw) {
	case 33:
		x, y = elliptic.UnmarshalCompressed(curve, raw)
	default:
		x, y = elliptic.Unmarshal(curve, raw)
	}
	if nil == x {
		return nil, nil, newError("invalid P256 public key encoding")
	}
	ecdhPub, err := stdecdh.P256().NewPublicKey(elliptic.Marshal(curve, x, y))
	if nil != err {
		return nil, nil, wrapError(err, "invalid P256 public key point")
	}
	ecdsaPub := &ecdsa.PublicKey{Curve: curve, X: x, Y: y}
	return ecdhPub, ecdsaPub, nil
}

// CompressP256PublicKey encodes an ECDH public key as a 33 byte
// compressed SEC1 point, the form PowerAuth ships ECIES ephemeral keys
// in.
func CompressP256PublicKey(pub *stdecdh.PublicKey) []byte {
	x, y := elliptic.Unmarshal(elliptic.P256(), pub.Bytes())
	return elliptic.MarshalCompressed(elliptic.P256(), x, y)
}

// ECDHSharedSecret performs a raw (non-KDF'd) P-256 Diffie-Hellman
// exchange, returning the shared X coordinate. Callers must run the
// result through a KDF (KDFX963 or PBKDF2) before using it as key
// material.
func ECDHSharedSecret(priv *stdecdh.PrivateKey, pub *stdecdh.PublicKey) ([]byte, error) {
	secret, err := priv.ECDH(pub)
	if err != nil {
		return nil, wrapError(err, "ECDH agreement failed")
	}
	return secret, nil
}

// MarshalP256PublicKey encodes an ECDSA public key as an uncompressed
// SEC1 point, the format used by crypto/ecdh and by the wire.
func MarshalP256PublicKey(pub *ecdsa.PublicKey) []byte {
	return elliptic.Marshal(elliptic.P256(), pub.X, pub.Y)
}
