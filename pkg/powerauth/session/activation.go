package session

import (
	"bytes"
	"context"
	"crypto/ecdh"
	"encoding/base64"
	"math/big"

	"github.com/milanoid/powerauth-mobile-sdk/internal/crypto"
	"github.com/milanoid/powerauth-mobile-sdk/internal/observability"
	"github.com/milanoid/powerauth-mobile-sdk/pkg/powerauth/actcode"
	"github.com/milanoid/powerauth-mobile-sdk/pkg/powerauth/paerr"
)

// step1Data is the transient state between activation steps 1 and 2.
type step1Data struct {
	devicePrivateKey *ecdh.PrivateKey
}

// step2Data is the transient state between activation step 2 and commit.
type step2Data struct {
	activationID    string
	serverPublicKey []byte
	ctrData         []byte
	keys            workingKeys
	fingerprint     string
	recovery        *RecoveryData
}

// RecoveryData carries the recovery code and PUK optionally returned by
// the server during activation. The session validates but never persists
// it, the host application displays it to the user exactly once.
type RecoveryData struct {
	RecoveryCode string
	PUK          string
}

// Check validates the recovery code format and the PUK.
func (self RecoveryData) Check() error {
	_, err := actcode.ParseRecoveryCode(self.RecoveryCode)
	if nil != err {
		return paerr.Wrap(paerr.WrongParam, err, "invalid RecoveryCode")
	}
	if !actcode.ValidatePUK(self.PUK) {
		return paerr.New(paerr.WrongParam, "invalid PUK")
	}
	return nil
}

// IsEmpty reports whether the recovery data holds no values.
func (self RecoveryData) IsEmpty() bool {
	return ("" == self.RecoveryCode) && ("" == self.PUK)
}

// Step1Param holds parameters for the first activation step.
type Step1Param struct {
	// ActivationCode is the parsed activation code. It is optional, a
	// custom activation carries no code.
	ActivationCode *actcode.ActivationCode
}

// Step1Result is the outcome of the first activation step.
type Step1Result struct {
	// DevicePublicKey is the fresh device public key, Base64 encoded.
	DevicePublicKey string
}

// StartActivation runs the first activation step: it verifies the
// optional activation code signature against the master server public key
// and generates the device key pair.
func (self *Session) StartActivation(ctx context.Context, param Step1Param) (Step1Result, error) {
	log := observability.GetObservability(ctx).Log().With("op", "StartActivation")

	if lcEmpty != self.lc {
		return Step1Result{}, paerr.New(paerr.WrongState, "activation already started")
	}

	if (nil != param.ActivationCode) && param.ActivationCode.HasSignature() {
		log.Debug("verifying activation code signature")
		masterKey, err := self.setup.masterServerPublicKeyBytes()
		if nil != err {
			return Step1Result{}, err
		}
		_, ecdsaKey, err := crypto.ParseP256PublicKey(masterKey)
		if nil != err {
			return Step1Result{}, paerr.Wrap(paerr.Encryption, err, "invalid master server public key")
		}
		if !crypto.VerifyP256(ecdsaKey, param.ActivationCode.SignedBytes(), param.ActivationCode.Signature) {
			return Step1Result{}, paerr.New(paerr.Encryption, "activation code signature mismatch")
		}
	}

	log.Debug("generating device key pair")
	keypair, err := crypto.GenerateP256KeyPair()
	if nil != err {
		return Step1Result{}, paerr.Wrap(paerr.Encryption, err, "failed device key generation")
	}

	self.step1 = &step1Data{devicePrivateKey: keypair}
	self.lc = lcStep1Done

	log.Info("activation step 1 done")
	return Step1Result{
		DevicePublicKey: base64.StdEncoding.EncodeToString(keypair.PublicKey().Bytes()),
	}, nil
}

// Step2Param holds the server response to the activation request.
type Step2Param struct {
	// ActivationID is the server assigned activation identifier.
	ActivationID string

	// ServerPublicKey is the personalized server public key, Base64.
	ServerPublicKey string

	// CtrData is the Base64 encoded initial value of the hash based
	// counter, 16 bytes.
	CtrData string

	// ActivationRecovery optionally carries recovery data configured on
	// the server.
	ActivationRecovery *RecoveryData
}

// Step2Result is the outcome of the second activation step.
type Step2Result struct {
	// ActivationFingerprint is the short decimal code the user can
	// compare against the server out of band.
	ActivationFingerprint string

	// RecoveryData echoes the validated recovery data from the server,
	// nil when the server sent none. It is never persisted.
	RecoveryData *RecoveryData
}

// ValidateStep2 runs the second activation step: it derives the working
// keys from the ECDH shared secret and computes the activation
// fingerprint. The result becomes persistent only after
// CompleteActivation.
func (self *Session) ValidateStep2(ctx context.Context, param Step2Param) (Step2Result, error) {
	log := observability.GetObservability(ctx).Log().With("op", "ValidateStep2")

	if lcStep1Done != self.lc {
		return Step2Result{}, paerr.New(paerr.WrongState, "activation step 1 not done")
	}
	if "" == param.ActivationID {
		return Step2Result{}, paerr.New(paerr.WrongParam, "empty ActivationID")
	}

	serverPub, err := base64.StdEncoding.DecodeString(param.ServerPublicKey)
	if nil != err {
		return Step2Result{}, paerr.Wrap(paerr.Encryption, err, "malformed ServerPublicKey")
	}
	serverKey, _, err := crypto.ParseP256PublicKey(serverPub)
	if nil != err {
		return Step2Result{}, paerr.Wrap(paerr.Encryption, err, "invalid ServerPublicKey")
	}

	ctrData, err := base64.StdEncoding.DecodeString(param.CtrData)
	if nil != err {
		return Step2Result{}, paerr.Wrap(paerr.Encryption, err, "malformed CtrData")
	}
	if len(ctrData) != ctrDataSize {
		return Step2Result{}, paerr.New(paerr.WrongParam, "invalid CtrData, length %d != %d", len(ctrData), ctrDataSize)
	}

	var recovery *RecoveryData
	if nil != param.ActivationRecovery {
		err = param.ActivationRecovery.Check()
		if nil != err {
			return Step2Result{}, err
		}
		clone := *param.ActivationRecovery
		recovery = &clone
	}

	log.Debug("deriving working keys")
	secret, err := crypto.ECDHSharedSecret(self.step1.devicePrivateKey, serverKey)
	if nil != err {
		return Step2Result{}, paerr.Wrap(paerr.Encryption, err, "failed ECDH agreement")
	}
	keys, err := deriveWorkingKeys(secret)
	if nil != err {
		return Step2Result{}, err
	}

	devicePub := self.step1.devicePrivateKey.PublicKey().Bytes()
	fingerprint := activationFingerprint(devicePub, param.ActivationID, serverPub)

	self.step2 = &step2Data{
		activationID:    param.ActivationID,
		serverPublicKey: serverPub,
		ctrData:         ctrData,
		keys:            keys,
		fingerprint:     fingerprint,
		recovery:        recovery,
	}
	self.lc = lcStep2Done

	log.Info("activation step 2 done", "activationId", param.ActivationID)
	return Step2Result{ActivationFingerprint: fingerprint, RecoveryData: recovery}, nil
}

// CompleteActivation wraps the working keys under the supplied unlock
// keys and commits the persistent state. The same possession unlock key
// must be supplied on all subsequent signing operations. The biometry key
// is stored only when a biometry unlock key is present.
func (self *Session) CompleteActivation(ctx context.Context, keys SignatureUnlockKeys) error {
	log := observability.GetObservability(ctx).Log().With("op", "CompleteActivation")

	if lcStep2Done != self.lc {
		return paerr.New(paerr.WrongState, "activation step 2 not done")
	}
	err := checkUnlockKey(keys.PossessionUnlockKey, "PossessionUnlockKey")
	if nil != err {
		return err
	}
	if 0 == len(keys.Password) {
		return paerr.New(paerr.WrongParam, "missing Password")
	}
	withBiometry := len(keys.BiometryUnlockKey) > 0
	if withBiometry {
		err = checkUnlockKey(keys.BiometryUnlockKey, "BiometryUnlockKey")
		if nil != err {
			return err
		}
	}

	salt, err := crypto.RandomBytes(knowledgeSaltSize)
	if nil != err {
		return paerr.Wrap(paerr.Encryption, err, "failed salt generation")
	}
	kek, err := crypto.PBKDF2SHA1(keys.Password, salt, knowledgeIterations, crypto.SymmetricKeySize)
	if nil != err {
		return paerr.Wrap(paerr.Encryption, err, "failed knowledge key stretching")
	}

	log.Debug("wrapping activation keys")
	wk := self.step2.keys
	pd := &persistentData{
		activationID:    self.step2.activationID,
		serverPublicKey: self.step2.serverPublicKey,
		knowledgeSalt:   salt,
		ctrData:         bytes.Clone(self.step2.ctrData),
		version:         VersionV3,
		upgradeVersion:  VersionV3,
	}

	pd.possessionKeyWrapped, err = crypto.WrapKey(keys.PossessionUnlockKey, wk.possession)
	if nil != err {
		return paerr.Wrap(paerr.Encryption, err, "failed possession key wrap")
	}
	pd.knowledgeKeyWrapped, err = crypto.WrapKey(kek, wk.knowledge)
	if nil != err {
		return paerr.Wrap(paerr.Encryption, err, "failed knowledge key wrap")
	}
	if withBiometry {
		pd.biometryKeyWrapped, err = crypto.WrapKey(keys.BiometryUnlockKey, wk.biometry)
		if nil != err {
			return paerr.Wrap(paerr.Encryption, err, "failed biometry key wrap")
		}
	}
	pd.transportKeyWrapped, err = crypto.WrapKey(keys.PossessionUnlockKey, wk.transport)
	if nil != err {
		return paerr.Wrap(paerr.Encryption, err, "failed transport key wrap")
	}
	pd.devicePrivateKeyWrapped, err = crypto.WrapKey(keys.PossessionUnlockKey, self.step1.devicePrivateKey.Bytes())
	if nil != err {
		return paerr.Wrap(paerr.Encryption, err, "failed device key wrap")
	}

	// chain the EEK layer over the signature keys and the device key
	if self.HasExternalEncryptionKey() {
		for _, slot := range []*[]byte{
			&pd.devicePrivateKeyWrapped,
			&pd.possessionKeyWrapped,
			&pd.knowledgeKeyWrapped,
			&pd.biometryKeyWrapped,
		} {
			if 0 == len(*slot) {
				continue
			}
			*slot, err = crypto.WrapKey(self.eek, *slot)
			if nil != err {
				return paerr.Wrap(paerr.Encryption, err, "failed EEK wrap")
			}
		}
		pd.eekUsed = true
	}

	self.pd = pd
	self.step1 = nil
	self.step2 = nil
	self.lc = lcActive

	log.Info("activation committed", "activationId", pd.activationID, "eek", pd.eekUsed, "biometry", withBiometry)
	return nil
}

// ActivationFingerprint returns the fingerprint computed during step 2.
// It is available until CompleteActivation or ResetSession and is the
// empty string otherwise; the fingerprint of a committed activation is
// recomputed with ComputeActivationFingerprint.
func (self *Session) ActivationFingerprint() string {
	if nil != self.step2 {
		return self.step2.fingerprint
	}
	return ""
}

// ComputeActivationFingerprint recomputes the activation fingerprint of a
// committed activation. It needs the possession unlock key to recover the
// device public key from the wrapped private key.
func (self *Session) ComputeActivationFingerprint(keys SignatureUnlockKeys) (string, error) {
	priv, err := self.DevicePrivateKey(keys)
	if nil != err {
		return "", err
	}
	devicePub := crypto.MarshalP256PublicKey(&priv.PublicKey)
	return activationFingerprint(devicePub, self.pd.activationID, self.pd.serverPublicKey), nil
}

// activationFingerprint computes the human comparable decimal code from
// the activation key material: the first 8 decimal digits of
// SHA256(devicePub || activationID || serverPub) read as an unsigned
// integer, grouped by 4.
func activationFingerprint(devicePub []byte, activationID string, serverPub []byte) string {
	data := make([]byte, 0, len(devicePub)+len(activationID)+len(serverPub))
	data = append(data, devicePub...)
	data = append(data, activationID...)
	data = append(data, serverPub...)
	digest := crypto.SHA256(data)

	digits := new(big.Int).SetBytes(digest).String()
	for len(digits) < 8 {
		digits = "0" + digits
	}
	return digits[0:4] + "-" + digits[4:8]
}
