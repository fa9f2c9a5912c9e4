package session

import (
	"bytes"

	"github.com/milanoid/powerauth-mobile-sdk/internal/crypto"
	"github.com/milanoid/powerauth-mobile-sdk/pkg/powerauth/paerr"
)

const (
	// ctrDataSize is the length of the v3 hash based counter.
	ctrDataSize = 16

	// knowledgeSaltSize is the length of the PBKDF2 salt stored with the
	// wrapped knowledge key.
	knowledgeSaltSize = 16

	// knowledgeIterations is the PBKDF2 iteration count stretching the
	// user password into the knowledge key encryption key.
	knowledgeIterations = 10000
)

// KDF info strings separating the working keys derived from the
// activation ECDH shared secret. Changing any of these breaks
// compatibility with every existing activation.
var (
	kdfInfoPossession = []byte("PA3-KEY-POSSESSION")
	kdfInfoKnowledge  = []byte("PA3-KEY-KNOWLEDGE")
	kdfInfoBiometry   = []byte("PA3-KEY-BIOMETRY")
	kdfInfoTransport  = []byte("PA3-KEY-TRANSPORT")
	kdfInfoMaster     = []byte("PA3-KEY-MASTER")
)

// workingKeys holds the five keys derived from the activation shared
// secret. They exist only between activation step 2 and commit.
type workingKeys struct {
	possession []byte
	knowledge  []byte
	biometry   []byte
	transport  []byte
	master     []byte
}

// deriveWorkingKeys expands the ECDH shared secret into the five working
// keys with distinct KDF info strings.
func deriveWorkingKeys(secret []byte) (workingKeys, error) {
	var rv workingKeys
	var err error

	derivations := []struct {
		info []byte
		dst  *[]byte
	}{
		{info: kdfInfoPossession, dst: &rv.possession},
		{info: kdfInfoKnowledge, dst: &rv.knowledge},
		{info: kdfInfoBiometry, dst: &rv.biometry},
		{info: kdfInfoTransport, dst: &rv.transport},
		{info: kdfInfoMaster, dst: &rv.master},
	}
	for _, d := range derivations {
		*d.dst, err = crypto.KDFX963(secret, d.info, crypto.SymmetricKeySize)
		if nil != err {
			return workingKeys{}, paerr.Wrap(paerr.Encryption, err, "failed working key derivation")
		}
	}
	return rv, nil
}

// HasExternalEncryptionKey reports whether the session currently holds an
// EEK, supplied either in the setup or via SetExternalEncryptionKey.
func (self *Session) HasExternalEncryptionKey() bool {
	return len(self.eek) == crypto.SymmetricKeySize
}

// SetExternalEncryptionKey provides the EEK to a session restored from a
// state that was activated with one. It errors if the session already
// holds a different EEK.
func (self *Session) SetExternalEncryptionKey(eek []byte) error {
	err := checkEEK(eek)
	if nil != err {
		return err
	}
	if self.HasExternalEncryptionKey() && !bytes.Equal(self.eek, eek) {
		return paerr.New(paerr.WrongState, "session already holds a different EEK")
	}
	self.eek = bytes.Clone(eek)
	return nil
}

// AddExternalEncryptionKey binds eek to a committed activation that was
// created without one, rewrapping the signature keys and the device
// private key with the additional layer.
func (self *Session) AddExternalEncryptionKey(eek []byte) error {
	if !self.HasValidActivation() {
		return paerr.New(paerr.WrongState, "no valid activation")
	}
	if self.pd.eekUsed {
		return paerr.New(paerr.WrongState, "activation is already EEK bound")
	}
	err := checkEEK(eek)
	if nil != err {
		return err
	}

	rewrapped := make([][]byte, 0, 4)
	for _, wrapped := range [][]byte{
		self.pd.devicePrivateKeyWrapped,
		self.pd.possessionKeyWrapped,
		self.pd.knowledgeKeyWrapped,
		self.pd.biometryKeyWrapped,
	} {
		if 0 == len(wrapped) {
			rewrapped = append(rewrapped, nil)
			continue
		}
		outer, err := crypto.WrapKey(eek, wrapped)
		if nil != err {
			return paerr.Wrap(paerr.Encryption, err, "failed EEK wrapping")
		}
		rewrapped = append(rewrapped, outer)
	}

	self.pd.devicePrivateKeyWrapped = rewrapped[0]
	self.pd.possessionKeyWrapped = rewrapped[1]
	self.pd.knowledgeKeyWrapped = rewrapped[2]
	self.pd.biometryKeyWrapped = rewrapped[3]
	self.pd.eekUsed = true
	self.eek = bytes.Clone(eek)

	return nil
}

// RemoveExternalEncryptionKey strips the EEK layer from a committed EEK
// bound activation. The currently held EEK must unwrap every layer, a
// wrong key fails with an Encryption error and leaves the state intact.
func (self *Session) RemoveExternalEncryptionKey() error {
	if !self.HasValidActivation() {
		return paerr.New(paerr.WrongState, "no valid activation")
	}
	if !self.pd.eekUsed {
		return paerr.New(paerr.WrongState, "activation is not EEK bound")
	}
	if !self.HasExternalEncryptionKey() {
		return paerr.New(paerr.WrongParam, "missing EEK")
	}

	unwrapped := make([][]byte, 0, 4)
	for _, wrapped := range [][]byte{
		self.pd.devicePrivateKeyWrapped,
		self.pd.possessionKeyWrapped,
		self.pd.knowledgeKeyWrapped,
		self.pd.biometryKeyWrapped,
	} {
		if 0 == len(wrapped) {
			unwrapped = append(unwrapped, nil)
			continue
		}
		inner, err := crypto.UnwrapKey(self.eek, wrapped)
		if nil != err {
			return paerr.Wrap(paerr.Encryption, err, "failed EEK unwrapping")
		}
		unwrapped = append(unwrapped, inner)
	}

	self.pd.devicePrivateKeyWrapped = unwrapped[0]
	self.pd.possessionKeyWrapped = unwrapped[1]
	self.pd.knowledgeKeyWrapped = unwrapped[2]
	self.pd.biometryKeyWrapped = unwrapped[3]
	self.pd.eekUsed = false

	return nil
}

// removeEEKLayer peels the outer EEK wrap from a stored key blob. An EEK
// bound activation requires the EEK for every unlock. For a non bound
// activation wrapped is returned unchanged, whether or not the session
// holds an EEK.
func (self *Session) removeEEKLayer(wrapped []byte) ([]byte, error) {
	if !self.pd.eekUsed {
		return wrapped, nil
	}
	if !self.HasExternalEncryptionKey() {
		return nil, paerr.New(paerr.WrongParam, "activation is EEK bound, missing EEK")
	}
	inner, err := crypto.UnwrapKey(self.eek, wrapped)
	return inner, paerr.Wrap(paerr.Encryption, err, "failed EEK layer unwrap")
}
