// Package paerr implements the PowerAuth core error taxonomy.
//
// Every operation exposed by pkg/powerauth/{session,signature,ecies,token}
// returns either nil or an error carrying a Kind: Encryption, WrongState or
// WrongParam. An error that wraps another PowerAuth error carries the Kind
// of each layer. Callers that need the numeric code compatible with the
// original PA2CoreErrorCode enumeration use CodeOf, which resolves such an
// error to a single Code.
package paerr

import (
	"errors"

	"github.com/milanoid/powerauth-mobile-sdk/internal/utils"
)

// Kind classifies a PowerAuth core error. It mirrors PA2CoreErrorCode from
// the original SDK, restricted to the subset this module raises itself
// (NetworkError and other transport-layer codes belong to the host SDK,
// not to this core).
type Kind string

// Error implements the error interface so a Kind can be used directly as
// an errors.Is target.
func (k Kind) Error() string {
	return string(k)
}

func (k Kind) Unwrap() error {
	return nil
}

const (
	// Ok is never attached to a returned error; it exists only so Code can
	// report it for a nil error.
	Ok = Kind("paerr: ok")

	// Encryption marks failures in the ECIES, signature or key-derivation
	// primitives: invalid curve points, MAC mismatches, malformed
	// cryptograms, corrupted persistent state.
	Encryption = Kind("paerr: encryption")

	// WrongState marks calls made against a Session or Token in an
	// incompatible lifecycle state, e.g. signing before activation commit,
	// or committing an activation that was never started.
	WrongState = Kind("paerr: wrong state")

	// WrongParam marks invalid caller-supplied arguments: malformed
	// activation codes, wrong-length keys, nil required fields.
	WrongParam = Kind("paerr: wrong param")
)

// Code is the PA2CoreErrorCode-compatible numeric form of a Kind, useful
// when bridging into a host SDK that expects the original ordinal values.
type Code int

const (
	CodeOk Code = iota
	CodeEncryption
	CodeWrongState
	CodeWrongParam
)

// New returns a RaisedErr flagged with kind, recording the caller's file
// and line.
func New(kind Kind, msg string, args ...any) error {
	return utils.NewError(1, kind, msg, args...)
}

// Wrap returns a RaisedErr flagged with kind wrapping cause. It returns nil
// if cause is nil, matching utils.WrapError.
func Wrap(kind Kind, cause error, msg string, args ...any) error {
	return utils.WrapError(cause, 1, kind, msg, args...)
}

// Is reports whether err carries kind anywhere in its error chain.
func Is(err error, kind Kind) bool {
	return errors.Is(err, kind)
}

// CodeOf recovers the Code equivalent of err's Kind. It returns CodeOk for
// a nil error and CodeEncryption for a non-nil error that carries none of
// the known Kind flags (treated as the most conservative failure mode).
func CodeOf(err error) Code {
	if err == nil {
		return CodeOk
	}
	switch {
	case errors.Is(err, WrongParam):
		return CodeWrongParam
	case errors.Is(err, WrongState):
		return CodeWrongState
	default:
		return CodeEncryption
	}
}
