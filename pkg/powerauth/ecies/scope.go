package ecies

import (
	"github.com/milanoid/powerauth-mobile-sdk/pkg/powerauth/paerr"
	"github.com/milanoid/powerauth-mobile-sdk/pkg/powerauth/session"
)

// Scope selects the key material anchoring an ECIES exchange.
type Scope int

const (
	// ScopeApplication encrypts against the master server public key and
	// needs no activation.
	ScopeApplication Scope = iota

	// ScopeActivation encrypts against the personalized server public
	// key, mixing the activation transport key into the key derivation.
	// It requires a committed activation.
	ScopeActivation
)

// NewEncryptorForSession builds an Encryptor scoped to sess. For the
// activation scope the signature unlock keys must unwrap the transport
// key, the application scope ignores them.
func NewEncryptorForSession(sess *session.Session, scope Scope, keys session.SignatureUnlockKeys, sharedInfo1, sharedInfo2 []byte) (*Encryptor, error) {
	switch scope {
	case ScopeApplication:
		peer, err := sess.MasterServerPublicKey()
		if nil != err {
			return nil, err
		}
		return NewEncryptor(peer, sharedInfo1, sharedInfo2), nil

	case ScopeActivation:
		if !sess.HasValidActivation() {
			return nil, paerr.New(paerr.WrongState, "activation scope needs a valid activation")
		}
		transport, err := sess.TransportKey(keys)
		if nil != err {
			return nil, err
		}
		// the transport key binds the exchange to this activation
		info1 := make([]byte, 0, len(sharedInfo1)+len(transport))
		info1 = append(info1, sharedInfo1...)
		info1 = append(info1, transport...)
		return NewEncryptor(sess.ServerPublicKey(), info1, sharedInfo2), nil

	default:
		return nil, paerr.New(paerr.WrongParam, "unknown scope %d", scope)
	}
}
