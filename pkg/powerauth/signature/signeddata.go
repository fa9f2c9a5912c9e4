package signature

import (
	"encoding/base64"

	"github.com/milanoid/powerauth-mobile-sdk/internal/crypto"
	"github.com/milanoid/powerauth-mobile-sdk/pkg/powerauth/paerr"
	"github.com/milanoid/powerauth-mobile-sdk/pkg/powerauth/session"
)

// SigningKey selects the server key a signature is verified against.
type SigningKey int

const (
	// SigningKeyMasterServer verifies against the master server public
	// key from the session setup.
	SigningKeyMasterServer SigningKey = iota

	// SigningKeyPersonalized verifies against the personalized server
	// public key of the committed activation.
	SigningKeyPersonalized
)

// SignedData couples a payload with its ECDSA signature.
type SignedData struct {
	SigningKey SigningKey
	Data       []byte
	Signature  []byte
}

// DataBase64 returns the payload in Base64 form.
func (self SignedData) DataBase64() string {
	return base64.StdEncoding.EncodeToString(self.Data)
}

// SignatureBase64 returns the signature in Base64 form.
func (self SignedData) SignatureBase64() string {
	return base64.StdEncoding.EncodeToString(self.Signature)
}

// NewSignedDataFromBase64 decodes the dual Base64 representation.
func NewSignedDataFromBase64(key SigningKey, data, signature string) (SignedData, error) {
	rawData, err := base64.StdEncoding.DecodeString(data)
	if nil != err {
		return SignedData{}, paerr.Wrap(paerr.Encryption, err, "malformed data")
	}
	rawSig, err := base64.StdEncoding.DecodeString(signature)
	if nil != err {
		return SignedData{}, paerr.Wrap(paerr.Encryption, err, "malformed signature")
	}
	return SignedData{SigningKey: key, Data: rawData, Signature: rawSig}, nil
}

// SignDataWithDevicePrivateKey produces an ECDSA P-256 signature over the
// SHA-256 digest of data using the activation device private key.
func SignDataWithDevicePrivateKey(sess *session.Session, keys session.SignatureUnlockKeys, data []byte) ([]byte, error) {
	if 0 == len(data) {
		return nil, paerr.New(paerr.WrongParam, "empty data")
	}
	priv, err := sess.DevicePrivateKey(keys)
	if nil != err {
		return nil, err
	}
	sig, err := crypto.SignP256(priv, data)
	return sig, paerr.Wrap(paerr.Encryption, err, "failed data signing")
}

// VerifyServerSignedData checks the ECDSA signature of sd against the
// server key selected by sd.SigningKey.
func VerifyServerSignedData(sess *session.Session, sd SignedData) error {
	if (0 == len(sd.Data)) || (0 == len(sd.Signature)) {
		return paerr.New(paerr.WrongParam, "empty signed data")
	}

	var raw []byte
	var err error
	switch sd.SigningKey {
	case SigningKeyMasterServer:
		raw, err = sess.MasterServerPublicKey()
		if nil != err {
			return err
		}
	case SigningKeyPersonalized:
		raw = sess.ServerPublicKey()
		if 0 == len(raw) {
			return paerr.New(paerr.WrongState, "no valid activation")
		}
	default:
		return paerr.New(paerr.WrongParam, "unknown signing key %d", sd.SigningKey)
	}

	_, pub, err := crypto.ParseP256PublicKey(raw)
	if nil != err {
		return paerr.Wrap(paerr.Encryption, err, "invalid server public key")
	}
	if !crypto.VerifyP256(pub, sd.Data, sd.Signature) {
		return paerr.New(paerr.Encryption, "server signature mismatch")
	}
	return nil
}
