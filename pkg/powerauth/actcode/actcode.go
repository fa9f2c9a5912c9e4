// Package actcode parses and validates PowerAuth activation and recovery
// codes.
//
// An activation code has the text form XXXXX-XXXXX-XXXXX-XXXXX where each
// group holds 5 characters from the Base32 alphabet A-Z2-7. The last
// character is a mod-10 check digit computed over the numeric value of the
// 19 preceding characters. An optional detached ECDSA signature may
// accompany the code, it is verified against the master server public key
// by the session during activation step 1.
package actcode

import (
	"encoding/base64"
	"strings"

	"github.com/milanoid/powerauth-mobile-sdk/pkg/powerauth/paerr"
)

const (
	base32Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ234567"

	// CodeLength is the length of the canonical dash separated form.
	CodeLength = 23

	codeChars  = 20
	groupChars = 5

	// recoveryCodePrefix may prepend a recovery code scanned from a QR code.
	recoveryCodePrefix = "R:"

	pukLength = 10
)

// ActivationCode is a parsed activation code with its optional detached
// signature.
type ActivationCode struct {
	// Code is the canonical XXXXX-XXXXX-XXXXX-XXXXX form.
	Code string

	// Signature holds the raw ECDSA signature bytes over Code, or nil when
	// the code came without a signature.
	Signature []byte
}

// HasSignature reports whether the code carries a detached signature.
func (self ActivationCode) HasSignature() bool {
	return len(self.Signature) > 0
}

// SignedBytes returns the bytes covered by the detached signature.
func (self ActivationCode) SignedBytes() []byte {
	return []byte(self.Code)
}

// ParseActivationCode validates the structure and check digit of code.
func ParseActivationCode(code string) (ActivationCode, error) {
	canonical, err := checkCode(code)
	if nil != err {
		return ActivationCode{}, err
	}
	return ActivationCode{Code: canonical}, nil
}

// ParseActivationCodeWithSignature validates code and decodes its detached
// Base64 signature. The signature is not verified here, signature
// verification needs the master server public key held by the session.
func ParseActivationCodeWithSignature(code, signature string) (ActivationCode, error) {
	rv, err := ParseActivationCode(code)
	if nil != err {
		return ActivationCode{}, err
	}
	if "" == signature {
		return ActivationCode{}, paerr.New(paerr.WrongParam, "empty activation code signature")
	}
	sig, err := base64.StdEncoding.DecodeString(signature)
	if nil != err {
		return ActivationCode{}, paerr.Wrap(paerr.Encryption, err, "malformed activation code signature")
	}
	rv.Signature = sig
	return rv, nil
}

// RecoveryCode is a parsed recovery code. It shares the activation code
// format but never carries a signature.
type RecoveryCode struct {
	Code string
}

// ParseRecoveryCode validates code, accepting the optional "R:" prefix
// used in recovery QR codes.
func ParseRecoveryCode(code string) (RecoveryCode, error) {
	code = strings.TrimPrefix(code, recoveryCodePrefix)
	canonical, err := checkCode(code)
	if nil != err {
		return RecoveryCode{}, err
	}
	return RecoveryCode{Code: canonical}, nil
}

// ValidatePUK reports whether puk is a well formed recovery PUK, a string
// of exactly 10 decimal digits.
func ValidatePUK(puk string) bool {
	if len(puk) != pukLength {
		return false
	}
	for _, c := range puk {
		if (c < '0') || (c > '9') {
			return false
		}
	}
	return true
}

// checkCode validates the dash layout, the alphabet and the check digit,
// returning the canonical form.
func checkCode(code string) (string, error) {
	if len(code) != CodeLength {
		return "", paerr.New(paerr.WrongParam, "invalid code length %d != %d", len(code), CodeLength)
	}

	compact := make([]byte, 0, codeChars)
	for pos, group := range strings.Split(code, "-") {
		if len(group) != groupChars {
			return "", paerr.New(paerr.WrongParam, "invalid code group #%d", pos)
		}
		compact = append(compact, group...)
	}
	if len(compact) != codeChars {
		return "", paerr.New(paerr.WrongParam, "invalid code layout")
	}

	values := make([]int, codeChars)
	for pos, c := range compact {
		val := strings.IndexByte(base32Alphabet, c)
		if val < 0 {
			return "", paerr.New(paerr.WrongParam, "invalid code character at %d", pos)
		}
		values[pos] = val
	}

	// The first 19 characters form a base-32 number, its value mod 10 must
	// match the value of the check character mod 10.
	var acc int
	for _, val := range values[:codeChars-1] {
		acc = (acc*32 + val) % 10
	}
	if acc != values[codeChars-1]%10 {
		return "", paerr.New(paerr.Encryption, "activation code check digit mismatch")
	}

	return code, nil
}
