package utils

import (
	"encoding/hex"
)

type HexBinary []byte

func (self *HexBinary) UnmarshalText(text []byte) error {
	var dst []byte
	hxsz := hex.DecodedLen(len(text))
	if cap([]byte(*self)) >= hxsz {
		dst = []byte(*self)[:hxsz]
	} else {
		dst = make([]byte, hxsz)
	}

	n, err := hex.Decode(dst, text)
	if nil != err {
		return err
	}

	*self = HexBinary(dst[:n])
	return nil
}

func (self HexBinary) MarshalText() ([]byte, error) {
	dst := make([]byte, hex.EncodedLen(len(self)))
	hex.Encode(dst, []byte(self))
	return dst, nil
}
