package mfcrypto

import "encoding/binary"

func u32le(x uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, x)
	return b
}
