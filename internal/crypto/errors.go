package crypto

import (
	"github.com/milanoid/powerauth-mobile-sdk/internal/utils"
)

type errorFlag string

const Error = errorFlag("crypto: error")

func (self errorFlag) Error() string {
	return string(self)
}

func (self errorFlag) Unwrap() error {
	return nil
}

func newError(msg string, args ...any) error {
	return utils.NewError(1, Error, msg, args...)
}

func wrapError(cause error, msg string, args ...any) error {
	return utils.WrapError(cause, 1, Error, msg, args...)
}
