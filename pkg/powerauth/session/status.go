package session

import (
	"bytes"

	"github.com/milanoid/powerauth-mobile-sdk/internal/crypto"
	"github.com/milanoid/powerauth-mobile-sdk/pkg/powerauth/paerr"
)

// ActivationState enumerates the server side states of an activation.
type ActivationState int

const (
	StateCreated ActivationState = 1
	StateOTPUsed ActivationState = 2
	StateActive  ActivationState = 3
	StateBlocked ActivationState = 4
	StateRemoved ActivationState = 5
)

func (self ActivationState) String() string {
	switch self {
	case StateCreated:
		return "Created"
	case StateOTPUsed:
		return "OTP_Used"
	case StateActive:
		return "Active"
	case StateBlocked:
		return "Blocked"
	case StateRemoved:
		return "Removed"
	default:
		return "Unknown"
	}
}

// ActivationStatus is the decoded content of the encrypted status blob
// periodically fetched from the server.
type ActivationStatus struct {
	State          ActivationState
	CurrentVersion ProtocolVersion
	UpgradeVersion ProtocolVersion
	FailCount      uint32
	MaxFailCount   uint32
	CtrByte        byte
}

// RemainingAttempts returns how many authentication failures the server
// still tolerates. It is zero unless the activation is active.
func (self ActivationStatus) RemainingAttempts() uint32 {
	if StateActive != self.State {
		return 0
	}
	if self.FailCount >= self.MaxFailCount {
		return 0
	}
	return self.MaxFailCount - self.FailCount
}

// IsProtocolUpgradeAvailable reports whether the server offers a protocol
// upgrade this module can perform.
func (self ActivationStatus) IsProtocolUpgradeAvailable() bool {
	if StateActive == self.State {
		if self.CurrentVersion < self.UpgradeVersion {
			return self.UpgradeVersion <= MaxSupportedVersion
		}
	}
	return false
}

const (
	// statusBlobSize is IV(16) plus two AES blocks of ciphertext.
	statusBlobSize = 48

	statusPlaintextSize = 32

	// counterLookAhead bounds the status driven counter resynchronization
	// window. If the server is further ahead than this many signatures,
	// the local counter is left untouched and the activation needs to be
	// re-created.
	counterLookAhead = 10
)

// status blob plaintext layout offsets
const (
	statusOffState = iota
	statusOffCurrentVersion
	statusOffUpgradeVersion
	statusOffFailCount
	statusOffMaxFailCount
	statusOffCtrByte
	statusOffCtrDataHash = 16
)

// DecodeActivationStatus decrypts the 48 byte status blob with the
// transport key and synchronizes the local hash based counter with the
// server within a bounded lookahead window.
func (self *Session) DecodeActivationStatus(blob []byte, keys SignatureUnlockKeys) (ActivationStatus, error) {
	var rv ActivationStatus

	if !self.HasValidActivation() {
		return rv, paerr.New(paerr.WrongState, "no valid activation")
	}
	if len(blob) != statusBlobSize {
		return rv, paerr.New(paerr.WrongParam, "invalid status blob, length %d != %d", len(blob), statusBlobSize)
	}

	transport, err := self.TransportKey(keys)
	if nil != err {
		return rv, err
	}
	plaintext, err := crypto.AESCBCDecrypt(transport, blob[:16], blob[16:])
	if nil != err {
		return rv, paerr.Wrap(paerr.Encryption, err, "failed status blob decryption")
	}

	state := ActivationState(plaintext[statusOffState])
	if (state < StateCreated) || (state > StateRemoved) {
		return rv, paerr.New(paerr.Encryption, "invalid activation state %d", plaintext[statusOffState])
	}
	rv = ActivationStatus{
		State:          state,
		CurrentVersion: ProtocolVersion(plaintext[statusOffCurrentVersion]),
		UpgradeVersion: ProtocolVersion(plaintext[statusOffUpgradeVersion]),
		FailCount:      uint32(plaintext[statusOffFailCount]),
		MaxFailCount:   uint32(plaintext[statusOffMaxFailCount]),
		CtrByte:        plaintext[statusOffCtrByte],
	}

	if VersionV3 == self.pd.version {
		self.synchronizeCounter(plaintext[statusOffCtrDataHash:statusPlaintextSize])
	}

	return rv, nil
}

// synchronizeCounter scans forward from the local counter looking for the
// value whose hash the server reported. A match at offset zero means both
// sides agree, a match further out means the server observed signatures
// this client never learned about.
func (self *Session) synchronizeCounter(ctrDataHash []byte) {
	ctr := bytes.Clone(self.pd.ctrData)
	for step := 0; step <= counterLookAhead; step++ {
		if bytes.Equal(crypto.SHA256(ctr)[:ctrDataSize], ctrDataHash) {
			self.pd.ctrData = ctr
			return
		}
		ctr = nextCtrData(ctr)
	}
}

// encodeStatusBlob builds an encrypted status blob the way the server
// does. Tests and the vector generator use it, the client itself only
// decodes.
func encodeStatusBlob(status ActivationStatus, ctrData, transportKey []byte) ([]byte, error) {
	plaintext := make([]byte, statusPlaintextSize)
	plaintext[statusOffState] = byte(status.State)
	plaintext[statusOffCurrentVersion] = byte(status.CurrentVersion)
	plaintext[statusOffUpgradeVersion] = byte(status.UpgradeVersion)
	plaintext[statusOffFailCount] = byte(status.FailCount)
	plaintext[statusOffMaxFailCount] = byte(status.MaxFailCount)
	plaintext[statusOffCtrByte] = status.CtrByte
	copy(plaintext[statusOffCtrDataHash:], crypto.SHA256(ctrData)[:ctrDataSize])

	iv, err := crypto.RandomBytes(16)
	if nil != err {
		return nil, err
	}
	ciphertext, err := crypto.AESCBCEncrypt(transportKey, iv, plaintext)
	if nil != err {
		return nil, err
	}
	return append(iv, ciphertext...), nil
}
