package signature

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/milanoid/powerauth-mobile-sdk/internal/crypto"
	"github.com/milanoid/powerauth-mobile-sdk/internal/observability"
	"github.com/milanoid/powerauth-mobile-sdk/pkg/powerauth/paerr"
	"github.com/milanoid/powerauth-mobile-sdk/pkg/powerauth/session"
)

// RequestSignature is the result of a request signing operation, carrying
// every field of the PowerAuth authorization header.
type RequestSignature struct {
	// Version is the protocol version string, empty for legacy v2
	// signatures whose header carries no version field.
	Version string

	// ActivationID is the activation this signature belongs to.
	ActivationID string

	// ApplicationKey is copied from the session setup.
	ApplicationKey string

	// Nonce is the Base64 signature nonce.
	Nonce string

	// FactorLabel names the factor combination, e.g. "possession_knowledge".
	FactorLabel string

	// Signature is the dash separated decimal signature value.
	Signature string
}

// AuthHeaderValue assembles the complete X-PowerAuth-Authorization header
// value.
func (self RequestSignature) AuthHeaderValue() string {
	var sb strings.Builder
	sb.WriteString("PowerAuth ")
	if "" != self.Version {
		fmt.Fprintf(&sb, "pa_version=%q, ", self.Version)
	}
	fmt.Fprintf(&sb, "pa_activation_id=%q, ", self.ActivationID)
	fmt.Fprintf(&sb, "pa_application_key=%q, ", self.ApplicationKey)
	fmt.Fprintf(&sb, "pa_nonce=%q, ", self.Nonce)
	fmt.Fprintf(&sb, "pa_signature_type=%q, ", self.FactorLabel)
	fmt.Fprintf(&sb, "pa_signature=%q", self.Signature)
	return sb.String()
}

// SignHTTPRequest computes a multi factor signature over rd. The session
// counter advances exactly once on success, a failure of any kind leaves
// the session untouched. For offline requests with rd.DryRun set, the
// signature is computed without advancing the counter.
func SignHTTPRequest(ctx context.Context, sess *session.Session, rd RequestData, factor Factor, keys session.SignatureUnlockKeys) (RequestSignature, error) {
	log := observability.GetObservability(ctx).Log().With("op", "SignHTTPRequest")
	var rv RequestSignature

	err := rd.Check()
	if nil != err {
		return rv, err
	}
	err = factor.Check()
	if nil != err {
		return rv, err
	}
	if !sess.HasValidActivation() {
		return rv, paerr.New(paerr.WrongState, "no valid activation")
	}

	base, err := sess.UnwrapSignatureKeys(keys, factor.HasKnowledge(), factor.HasBiometry())
	if nil != err {
		return rv, err
	}

	nonce, err := rd.nonceBytes()
	if nil != err {
		return rv, err
	}
	if nil == nonce {
		nonce, err = crypto.RandomBytes(16)
		if nil != err {
			return rv, paerr.Wrap(paerr.Encryption, err, "failed nonce generation")
		}
	}

	data := normalizedData(rd, nonce, sess.Setup().ApplicationSecret)

	var ctr []byte
	version := sess.ProtocolVersion()
	switch version {
	case session.VersionV3:
		ctr = sess.CounterData()
	case session.VersionV2:
		ctr = make([]byte, 16)
		binary.BigEndian.PutUint64(ctr[8:], sess.CounterLong())
	default:
		return rv, paerr.New(paerr.WrongState, "unknown protocol version")
	}

	value := signatureValue(data, ctr, base)

	rv = RequestSignature{
		ActivationID:   sess.ActivationIdentifier(),
		ApplicationKey: sess.Setup().ApplicationKey,
		Nonce:          base64.StdEncoding.EncodeToString(nonce),
		FactorLabel:    factor.Label(),
		Signature:      value,
	}
	if session.VersionV3 == version {
		rv.Version = version.String()
	}

	// the signature is fully constructed, the counter may advance now
	if !(rd.IsOffline() && rd.DryRun) {
		err = sess.AdvanceCounter()
		if nil != err {
			return RequestSignature{}, err
		}
	}

	log.Debug("request signed", "factor", rv.FactorLabel, "offline", rd.IsOffline())
	return rv, nil
}

// signatureValue derives one per request key per enabled factor and joins
// the truncated decimal codes in canonical factor order. The factor
// selection is encoded in which base keys were unwrapped.
func signatureValue(data, ctr []byte, base session.SignatureBaseKeys) string {
	codes := make([]string, 0, 3)
	for _, baseKey := range [][]byte{base.Possession, base.Knowledge, base.Biometry} {
		if 0 == len(baseKey) {
			continue
		}
		factorKey := crypto.HMACSHA256(baseKey, ctr)[:16]
		mac := crypto.HMACSHA256(factorKey, data)
		codes = append(codes, fmt.Sprintf("%08d", dynamicTruncate(mac)%100000000))
	}
	return strings.Join(codes, "-")
}

// dynamicTruncate applies the RFC 4226 HOTP truncation to a full MAC.
func dynamicTruncate(mac []byte) uint32 {
	offset := mac[len(mac)-1] & 0x0F
	return binary.BigEndian.Uint32(mac[offset:offset+4]) & 0x7FFFFFFF
}
