package signature

import (
	"encoding/base64"
	"slices"

	"github.com/milanoid/powerauth-mobile-sdk/pkg/powerauth/paerr"
)

// offlineNonceLength is 16 bytes in Base64 form.
const offlineNonceLength = 24

var allowedMethods = []string{"GET", "POST", "HEAD", "PUT", "DELETE"}

// RequestData describes one HTTP request to be signed.
type RequestData struct {
	// Body is the POST body or the normalized GET parameter blob. It may
	// be empty.
	Body []byte

	// Method is the HTTP method, one of GET, POST, HEAD, PUT, DELETE.
	Method string

	// URI is the relative request URI.
	URI string

	// OfflineNonce optionally carries an externally generated nonce for
	// offline signing, 16 bytes in Base64 form.
	OfflineNonce string

	// DryRun computes an offline signature without advancing the
	// signature counter. It is ignored for online requests.
	DryRun bool
}

// Check validates the request data.
func (self RequestData) Check() error {
	if !slices.Contains(allowedMethods, self.Method) {
		return paerr.New(paerr.WrongParam, "invalid HTTP method %q", self.Method)
	}
	if "" == self.URI {
		return paerr.New(paerr.WrongParam, "empty URI")
	}
	if "" != self.OfflineNonce {
		if len(self.OfflineNonce) != offlineNonceLength {
			return paerr.New(paerr.WrongParam, "invalid offline nonce, length %d != %d", len(self.OfflineNonce), offlineNonceLength)
		}
	}
	return nil
}

// IsOffline reports whether the request carries an external nonce.
func (self RequestData) IsOffline() bool {
	return "" != self.OfflineNonce
}

// nonceBytes returns the signature nonce: the decoded offline nonce, or
// nil when a fresh random nonce must be generated.
func (self RequestData) nonceBytes() ([]byte, error) {
	if !self.IsOffline() {
		return nil, nil
	}
	nonce, err := base64.StdEncoding.DecodeString(self.OfflineNonce)
	if nil != err {
		return nil, paerr.Wrap(paerr.Encryption, err, "malformed offline nonce")
	}
	if 16 != len(nonce) {
		return nil, paerr.New(paerr.WrongParam, "invalid offline nonce, %d bytes != 16", len(nonce))
	}
	return nonce, nil
}

// normalizedData builds the byte blob covered by the request signature:
//
//	method || '&' || BASE64(uri) || '&' || BASE64(nonce) || '&' || BASE64(body) || '&' || secret
func normalizedData(rd RequestData, nonce []byte, applicationSecret string) []byte {
	b64 := base64.StdEncoding
	rv := make([]byte, 0, 64+b64.EncodedLen(len(rd.URI))+b64.EncodedLen(len(rd.Body))+len(applicationSecret))
	rv = append(rv, rd.Method...)
	rv = append(rv, '&')
	rv = appendB64Encode(b64, rv, []byte(rd.URI))
	rv = append(rv, '&')
	rv = appendB64Encode(b64, rv, nonce)
	rv = append(rv, '&')
	rv = appendB64Encode(b64, rv, rd.Body)
	rv = append(rv, '&')
	rv = append(rv, applicationSecret...)
	return rv
}

// appendB64Encode appends the base64 encoding of src to dst, returning the extended slice.
func appendB64Encode(enc *base64.Encoding, dst []byte, src []byte) []byte {
	n := len(dst)
	dst = append(dst, make([]byte, enc.EncodedLen(len(src)))...)
	enc.Encode(dst[n:], src)
	return dst
}
