package session

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"io"

	"github.com/milanoid/powerauth-mobile-sdk/internal/utils"
	"github.com/milanoid/powerauth-mobile-sdk/pkg/powerauth/paerr"
)

// Persistent state blob framing:
//
//	magic(4) || version(1) || length(uvarint) || payload(length) || crc32(4)
//
// The payload is a flat sequence of length prefixed fields in a fixed
// schema order. The CRC covers everything before it. Version 1 is the
// legacy schema of linear counter activations, it is upgraded in place on
// load and re-serialized as version 2.
var stateMagic = [4]byte{'P', 'A', '2', 'S'}

const (
	stateVersion1 = 1
	stateVersion2 = 2
)

// flag bit positions inside the payload flags Bitset
const (
	flagEEKUsed = iota
	flagHasBiometry
	flagPendingUpgrade
)

// persistentData is the serializable part of a committed activation.
type persistentData struct {
	activationID            string
	serverPublicKey         []byte
	devicePrivateKeyWrapped []byte
	possessionKeyWrapped    []byte
	knowledgeKeyWrapped     []byte
	knowledgeSalt           []byte
	biometryKeyWrapped      []byte
	transportKeyWrapped     []byte
	ctrData                 []byte
	ctrLong                 uint64
	version                 ProtocolVersion
	upgradeVersion          ProtocolVersion
	pendingUpgrade          bool
	eekUsed                 bool
}

// SaveState serializes the committed activation into an opaque blob owned
// by the caller. It errors with WrongState when the session has no valid
// activation.
func (self *Session) SaveState() ([]byte, error) {
	if !self.HasValidActivation() {
		return nil, paerr.New(paerr.WrongState, "no valid activation")
	}
	pd := self.pd

	flags := utils.NewBitset(make([]bool, 8))
	if pd.eekUsed {
		flags.SetBit(flagEEKUsed)
	}
	if len(pd.biometryKeyWrapped) > 0 {
		flags.SetBit(flagHasBiometry)
	}
	if pd.pendingUpgrade {
		flags.SetBit(flagPendingUpgrade)
	}

	var payload []byte
	for _, field := range [][]byte{
		[]byte(pd.activationID),
		pd.serverPublicKey,
		pd.devicePrivateKeyWrapped,
		pd.possessionKeyWrapped,
		pd.knowledgeKeyWrapped,
		pd.knowledgeSalt,
		pd.biometryKeyWrapped,
		pd.transportKeyWrapped,
		pd.ctrData,
	} {
		payload = appendField(payload, field)
	}
	payload = binary.AppendUvarint(payload, pd.ctrLong)
	payload = append(payload, byte(pd.version), byte(pd.upgradeVersion))
	payload = append(payload, flags...)

	rv := make([]byte, 0, len(payload)+16)
	rv = append(rv, stateMagic[:]...)
	rv = append(rv, stateVersion2)
	rv = binary.AppendUvarint(rv, uint64(len(payload)))
	rv = append(rv, payload...)
	rv = binary.BigEndian.AppendUint32(rv, crc32.ChecksumIEEE(rv))

	return rv, nil
}

// LoadState replaces the session activation with the one serialized in
// blob. Any parsing or integrity failure leaves the session untouched and
// reports an Encryption error.
func (self *Session) LoadState(blob []byte) error {
	pd, err := parseState(blob)
	if nil != err {
		return err
	}
	self.step1 = nil
	self.step2 = nil
	self.pd = pd
	self.lc = lcActive
	return nil
}

func parseState(blob []byte) (*persistentData, error) {
	if len(blob) < len(stateMagic)+1+1+4 {
		return nil, paerr.New(paerr.Encryption, "state blob too short")
	}
	if !bytes.Equal(blob[:4], stateMagic[:]) {
		return nil, paerr.New(paerr.Encryption, "bad state magic")
	}

	body := blob[:len(blob)-4]
	crc := binary.BigEndian.Uint32(blob[len(blob)-4:])
	if crc32.ChecksumIEEE(body) != crc {
		return nil, paerr.New(paerr.Encryption, "state CRC mismatch")
	}

	version := body[4]
	rd := bytes.NewReader(body[5:])
	length, err := binary.ReadUvarint(rd)
	if nil != err {
		return nil, paerr.Wrap(paerr.Encryption, err, "malformed state length")
	}
	if uint64(rd.Len()) != length {
		return nil, paerr.New(paerr.Encryption, "state length mismatch")
	}

	switch version {
	case stateVersion1:
		return parseStateV1(rd)
	case stateVersion2:
		return parseStateV2(rd)
	default:
		return nil, paerr.New(paerr.Encryption, "unsupported state version %d", version)
	}
}

func parseStateV2(rd *bytes.Reader) (*persistentData, error) {
	pd := &persistentData{}
	fields := []*[]byte{
		nil, // activationID handled below
		&pd.serverPublicKey,
		&pd.devicePrivateKeyWrapped,
		&pd.possessionKeyWrapped,
		&pd.knowledgeKeyWrapped,
		&pd.knowledgeSalt,
		&pd.biometryKeyWrapped,
		&pd.transportKeyWrapped,
		&pd.ctrData,
	}
	activationID, err := readField(rd)
	if nil != err {
		return nil, err
	}
	pd.activationID = string(activationID)
	for _, dst := range fields[1:] {
		*dst, err = readField(rd)
		if nil != err {
			return nil, err
		}
	}

	pd.ctrLong, err = binary.ReadUvarint(rd)
	if nil != err {
		return nil, paerr.Wrap(paerr.Encryption, err, "malformed counter field")
	}

	tail := make([]byte, 3)
	_, err = io.ReadFull(rd, tail)
	if (nil != err) || (rd.Len() != 0) {
		return nil, paerr.New(paerr.Encryption, "malformed state tail")
	}
	pd.version = ProtocolVersion(tail[0])
	pd.upgradeVersion = ProtocolVersion(tail[1])

	flags := utils.Bitset(tail[2:3])
	pd.eekUsed, _ = flags.GetBit(flagEEKUsed)
	hasBiometry, _ := flags.GetBit(flagHasBiometry)
	pd.pendingUpgrade, _ = flags.GetBit(flagPendingUpgrade)

	return pd, checkParsedState(pd, hasBiometry)
}

// parseStateV1 reads the legacy schema: no hash counter, no upgrade
// bookkeeping. The loaded activation reports protocol V2 and becomes
// eligible for the protocol upgrade flow.
func parseStateV1(rd *bytes.Reader) (*persistentData, error) {
	pd := &persistentData{version: VersionV2, upgradeVersion: VersionV2}
	fields := []*[]byte{
		&pd.serverPublicKey,
		&pd.devicePrivateKeyWrapped,
		&pd.possessionKeyWrapped,
		&pd.knowledgeKeyWrapped,
		&pd.knowledgeSalt,
		&pd.biometryKeyWrapped,
		&pd.transportKeyWrapped,
	}
	activationID, err := readField(rd)
	if nil != err {
		return nil, err
	}
	pd.activationID = string(activationID)
	for _, dst := range fields {
		*dst, err = readField(rd)
		if nil != err {
			return nil, err
		}
	}

	pd.ctrLong, err = binary.ReadUvarint(rd)
	if nil != err {
		return nil, paerr.Wrap(paerr.Encryption, err, "malformed counter field")
	}

	tail := make([]byte, 1)
	_, err = io.ReadFull(rd, tail)
	if (nil != err) || (rd.Len() != 0) {
		return nil, paerr.New(paerr.Encryption, "malformed state tail")
	}
	flags := utils.Bitset(tail)
	pd.eekUsed, _ = flags.GetBit(flagEEKUsed)
	hasBiometry, _ := flags.GetBit(flagHasBiometry)

	return pd, checkParsedState(pd, hasBiometry)
}

func checkParsedState(pd *persistentData, hasBiometry bool) error {
	if "" == pd.activationID {
		return paerr.New(paerr.Encryption, "state has empty activation ID")
	}
	if hasBiometry != (len(pd.biometryKeyWrapped) > 0) {
		return paerr.New(paerr.Encryption, "inconsistent biometry flag")
	}
	switch pd.version {
	case VersionV2:
		// linear counter only
	case VersionV3:
		if len(pd.ctrData) != ctrDataSize {
			return paerr.New(paerr.Encryption, "invalid counter data length %d", len(pd.ctrData))
		}
	default:
		return paerr.New(paerr.Encryption, "invalid protocol version %d", pd.version)
	}
	return nil
}

func appendField(dst, field []byte) []byte {
	dst = binary.AppendUvarint(dst, uint64(len(field)))
	return append(dst, field...)
}

func readField(rd *bytes.Reader) ([]byte, error) {
	length, err := binary.ReadUvarint(rd)
	if nil != err {
		return nil, paerr.Wrap(paerr.Encryption, err, "malformed field length")
	}
	if length == 0 {
		return nil, nil
	}
	if length > uint64(rd.Len()) {
		return nil, paerr.New(paerr.Encryption, "field length %d exceeds payload", length)
	}
	field := make([]byte, length)
	_, err = rd.Read(field)
	if nil != err {
		return nil, paerr.Wrap(paerr.Encryption, err, "truncated field")
	}
	return field, nil
}
