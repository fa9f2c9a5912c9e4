// Package session implements the PowerAuth client session: the activation
// state machine, the encrypted persistent state and the key material
// accessors consumed by the signature and ECIES engines.
//
// A Session is not safe for concurrent use. Counter advancement and state
// serialization are inherently sequential, callers must serialize access
// to a Session instance externally.
package session

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/base64"

	"github.com/milanoid/powerauth-mobile-sdk/internal/crypto"
	"github.com/milanoid/powerauth-mobile-sdk/pkg/powerauth/paerr"
)

// ProtocolVersion identifies a PowerAuth protocol generation. V3 replaced
// the linear signature counter with a hash based one and moved all end to
// end encryption to ECIES. V2 is supported for signature computation only,
// to let legacy activations sign requests until they upgrade.
type ProtocolVersion byte

const (
	VersionNA ProtocolVersion = 0
	VersionV2 ProtocolVersion = 2
	VersionV3 ProtocolVersion = 3

	// MaxSupportedVersion is the highest protocol version this module can
	// upgrade an activation to.
	MaxSupportedVersion = VersionV3
)

func (self ProtocolVersion) String() string {
	switch self {
	case VersionV2:
		return "2.1"
	case VersionV3:
		return "3.1"
	default:
		return "NA"
	}
}

// SessionSetup holds the immutable constants of a session.
type SessionSetup struct {
	// ApplicationKey identifies the application to the server.
	ApplicationKey string

	// ApplicationSecret is the shared secret mixed into every signature
	// normalization.
	ApplicationSecret string

	// MasterServerPublicKey is the Base64 encoded P-256 master server
	// public key. It verifies signed activation codes and server signed
	// data, and anchors application scoped ECIES.
	MasterServerPublicKey string

	// SessionIdentifier is an optional host assigned tag, useful in multi
	// session environments. The session itself never reads it.
	SessionIdentifier uint32

	// ExternalEncryptionKey is an optional 16 byte key adding one more
	// wrapping layer over the signature keys and the device private key.
	// Once an activation is created with an EEK, the same EEK is required
	// for every subsequent unlock of those keys. The transport key is not
	// EEK wrapped.
	ExternalEncryptionKey []byte
}

// Check validates the setup.
func (self SessionSetup) Check() error {
	if "" == self.ApplicationKey {
		return paerr.New(paerr.WrongParam, "empty ApplicationKey")
	}
	if "" == self.ApplicationSecret {
		return paerr.New(paerr.WrongParam, "empty ApplicationSecret")
	}
	_, err := self.masterServerPublicKeyBytes()
	if nil != err {
		return err
	}
	if nil != self.ExternalEncryptionKey {
		err = checkEEK(self.ExternalEncryptionKey)
		if nil != err {
			return err
		}
	}
	return nil
}

func (self SessionSetup) masterServerPublicKeyBytes() ([]byte, error) {
	if "" == self.MasterServerPublicKey {
		return nil, paerr.New(paerr.WrongParam, "empty MasterServerPublicKey")
	}
	raw, err := base64.StdEncoding.DecodeString(self.MasterServerPublicKey)
	if nil != err {
		return nil, paerr.Wrap(paerr.Encryption, err, "malformed MasterServerPublicKey")
	}
	return raw, nil
}

func checkEEK(eek []byte) error {
	if len(eek) != crypto.SymmetricKeySize {
		return paerr.New(paerr.WrongParam, "invalid EEK, length %d != %d", len(eek), crypto.SymmetricKeySize)
	}
	if crypto.IsZeroFilled(eek) {
		return paerr.New(paerr.WrongParam, "zero filled EEK")
	}
	return nil
}

// SignatureUnlockKeys carries the per call keys that unlock the wrapped
// signature key material. The keys are never stored by the session.
type SignatureUnlockKeys struct {
	// PossessionUnlockKey is the 16 byte device bound key, required by
	// every operation.
	PossessionUnlockKey []byte

	// BiometryUnlockKey is the 16 byte key released by the platform
	// biometry engine. Required only for biometry factor operations.
	BiometryUnlockKey []byte

	// Password is the user's knowledge factor. Required only for
	// knowledge factor operations.
	Password []byte
}

// GenerateSignatureUnlockKey returns a fresh random 16 byte unlock key,
// suitable for the biometry factor.
func GenerateSignatureUnlockKey() ([]byte, error) {
	key, err := crypto.RandomBytes(crypto.SymmetricKeySize)
	return key, paerr.Wrap(paerr.Encryption, err, "failed unlock key generation")
}

// NormalizeSignatureUnlockKey converts arbitrary device bound data (a
// hardware identifier, for example) into a well formed 16 byte unlock
// key.
func NormalizeSignatureUnlockKey(data []byte) ([]byte, error) {
	if 0 == len(data) {
		return nil, paerr.New(paerr.WrongParam, "empty unlock key data")
	}
	return crypto.SHA256(data)[:crypto.SymmetricKeySize], nil
}

func checkUnlockKey(key []byte, name string) error {
	if len(key) != crypto.SymmetricKeySize {
		return paerr.New(paerr.WrongParam, "invalid %s, length %d != %d", name, len(key), crypto.SymmetricKeySize)
	}
	if crypto.IsZeroFilled(key) {
		return paerr.New(paerr.WrongParam, "zero filled %s", name)
	}
	return nil
}

// lifecycle tracks the activation state machine position.
type lifecycle int

const (
	lcEmpty lifecycle = iota
	lcStep1Done
	lcStep2Done
	lcActive
)

// Session is the PowerAuth client session core.
type Session struct {
	setup SessionSetup
	eek   []byte

	lc    lifecycle
	step1 *step1Data
	step2 *step2Data
	pd    *persistentData
}

// NewSession returns a Session in the empty state.
func NewSession(setup SessionSetup) (*Session, error) {
	err := setup.Check()
	if nil != err {
		return nil, paerr.Wrap(paerr.WrongParam, err, "invalid SessionSetup")
	}
	rv := &Session{setup: setup}
	if nil != setup.ExternalEncryptionKey {
		rv.eek = bytes.Clone(setup.ExternalEncryptionKey)
	}
	return rv, nil
}

// Setup returns the immutable session setup.
func (self *Session) Setup() SessionSetup {
	return self.setup
}

// HasValidActivation reports whether the session holds a committed
// activation.
func (self *Session) HasValidActivation() bool {
	return (lcActive == self.lc) && (nil != self.pd)
}

// HasPendingActivation reports whether an activation is in progress but
// not committed yet.
func (self *Session) HasPendingActivation() bool {
	return (lcStep1Done == self.lc) || (lcStep2Done == self.lc)
}

// ActivationIdentifier returns the server assigned activation ID, or the
// empty string when the session has no valid activation.
func (self *Session) ActivationIdentifier() string {
	if !self.HasValidActivation() {
		return ""
	}
	return self.pd.activationID
}

// ProtocolVersion returns the protocol version of the committed
// activation, VersionNA otherwise.
func (self *Session) ProtocolVersion() ProtocolVersion {
	if !self.HasValidActivation() {
		return VersionNA
	}
	return self.pd.version
}

// ServerPublicKey returns the personalized server public key point, nil
// when the session has no valid activation.
func (self *Session) ServerPublicKey() []byte {
	if !self.HasValidActivation() {
		return nil
	}
	return bytes.Clone(self.pd.serverPublicKey)
}

// MasterServerPublicKey returns the decoded master server public key
// point from the setup.
func (self *Session) MasterServerPublicKey() ([]byte, error) {
	return self.setup.masterServerPublicKeyBytes()
}

// ResetSession destroys any activation, pending or committed, returning
// the session to the empty state. The setup is kept.
func (self *Session) ResetSession() {
	self.lc = lcEmpty
	self.step1 = nil
	self.step2 = nil
	self.pd = nil
}

// CounterData returns a copy of the v3 hash based counter, nil for v2
// activations.
func (self *Session) CounterData() []byte {
	if !self.HasValidActivation() {
		return nil
	}
	return bytes.Clone(self.pd.ctrData)
}

// CounterLong returns the v2 linear counter value.
func (self *Session) CounterLong() uint64 {
	if !self.HasValidActivation() {
		return 0
	}
	return self.pd.ctrLong
}

// AdvanceCounter moves the signature counter one step forward. The
// signature engine calls it exactly once after a signature has been fully
// constructed, never on failure.
func (self *Session) AdvanceCounter() error {
	if !self.HasValidActivation() {
		return paerr.New(paerr.WrongState, "no valid activation")
	}
	switch self.pd.version {
	case VersionV3:
		self.pd.ctrData = nextCtrData(self.pd.ctrData)
	case VersionV2:
		self.pd.ctrLong += 1
	default:
		return paerr.New(paerr.WrongState, "unknown protocol version %d", self.pd.version)
	}
	return nil
}

// nextCtrData computes one hash chain iteration of the counter.
func nextCtrData(ctr []byte) []byte {
	return crypto.SHA256(ctr)[:ctrDataSize]
}

// DevicePrivateKey unwraps the stored device private key and returns its
// ECDSA view, for data signing.
func (self *Session) DevicePrivateKey(keys SignatureUnlockKeys) (*ecdsa.PrivateKey, error) {
	if !self.HasValidActivation() {
		return nil, paerr.New(paerr.WrongState, "no valid activation")
	}
	err := checkUnlockKey(keys.PossessionUnlockKey, "PossessionUnlockKey")
	if nil != err {
		return nil, err
	}
	wrapped, err := self.removeEEKLayer(self.pd.devicePrivateKeyWrapped)
	if nil != err {
		return nil, err
	}
	scalar, err := crypto.UnwrapKey(keys.PossessionUnlockKey, wrapped)
	if nil != err {
		return nil, paerr.Wrap(paerr.Encryption, err, "failed device key unwrap")
	}
	priv, err := crypto.ECDSAPrivateKeyFromScalar(scalar)
	return priv, paerr.Wrap(paerr.Encryption, err, "failed device key decoding")
}

// TransportKey unwraps the stored transport key, used for activation
// scoped ECIES and for status blob decryption.
func (self *Session) TransportKey(keys SignatureUnlockKeys) ([]byte, error) {
	if !self.HasValidActivation() {
		return nil, paerr.New(paerr.WrongState, "no valid activation")
	}
	err := checkUnlockKey(keys.PossessionUnlockKey, "PossessionUnlockKey")
	if nil != err {
		return nil, err
	}
	key, err := crypto.UnwrapKey(keys.PossessionUnlockKey, self.pd.transportKeyWrapped)
	return key, paerr.Wrap(paerr.Encryption, err, "failed transport key unwrap")
}

// SignatureBaseKeys holds the unwrapped per factor signature keys for one
// signing operation. The buffers never outlive the call that requested
// them.
type SignatureBaseKeys struct {
	Possession []byte
	Knowledge  []byte
	Biometry   []byte
}

// UnwrapSignatureKeys recovers the stored signature keys selected by the
// withKnowledge and withBiometry switches. The possession key is always
// unwrapped.
func (self *Session) UnwrapSignatureKeys(keys SignatureUnlockKeys, withKnowledge, withBiometry bool) (SignatureBaseKeys, error) {
	var rv SignatureBaseKeys
	if !self.HasValidActivation() {
		return rv, paerr.New(paerr.WrongState, "no valid activation")
	}

	err := checkUnlockKey(keys.PossessionUnlockKey, "PossessionUnlockKey")
	if nil != err {
		return rv, err
	}
	wrapped, err := self.removeEEKLayer(self.pd.possessionKeyWrapped)
	if nil != err {
		return rv, err
	}
	rv.Possession, err = crypto.UnwrapKey(keys.PossessionUnlockKey, wrapped)
	if nil != err {
		return SignatureBaseKeys{}, paerr.Wrap(paerr.Encryption, err, "failed possession key unwrap")
	}

	if withKnowledge {
		if 0 == len(keys.Password) {
			return SignatureBaseKeys{}, paerr.New(paerr.WrongParam, "missing Password for knowledge factor")
		}
		kek, err := crypto.PBKDF2SHA1(keys.Password, self.pd.knowledgeSalt, knowledgeIterations, crypto.SymmetricKeySize)
		if nil != err {
			return SignatureBaseKeys{}, paerr.Wrap(paerr.WrongParam, err, "failed knowledge key stretching")
		}
		wrapped, err = self.removeEEKLayer(self.pd.knowledgeKeyWrapped)
		if nil != err {
			return SignatureBaseKeys{}, err
		}
		rv.Knowledge, err = crypto.UnwrapKey(kek, wrapped)
		if nil != err {
			return SignatureBaseKeys{}, paerr.Wrap(paerr.Encryption, err, "failed knowledge key unwrap")
		}
	}

	if withBiometry {
		if 0 == len(self.pd.biometryKeyWrapped) {
			return SignatureBaseKeys{}, paerr.New(paerr.WrongState, "activation has no biometry key")
		}
		err = checkUnlockKey(keys.BiometryUnlockKey, "BiometryUnlockKey")
		if nil != err {
			return SignatureBaseKeys{}, err
		}
		wrapped, err = self.removeEEKLayer(self.pd.biometryKeyWrapped)
		if nil != err {
			return SignatureBaseKeys{}, err
		}
		rv.Biometry, err = crypto.UnwrapKey(keys.BiometryUnlockKey, wrapped)
		if nil != err {
			return SignatureBaseKeys{}, paerr.Wrap(paerr.Encryption, err, "failed biometry key unwrap")
		}
	}

	return rv, nil
}

// HasBiometryFactor reports whether the committed activation stores a
// biometry signature key.
func (self *Session) HasBiometryFactor() bool {
	return self.HasValidActivation() && (len(self.pd.biometryKeyWrapped) > 0)
}
