package mailbox

import "encoding/binary"

// wireSize is the on-the-wire size of one Message on the pipe
// transport: a 32-bit id, 4 bytes of padding, and two 64-bit words.
// This module targets 64-bit platforms, so the record is a fixed 24
// bytes.
const wireSize = 24

func encodeMessage(m Message, out *[wireSize]byte) {
	binary.LittleEndian.PutUint32(out[0:4], m.ID)
	binary.LittleEndian.PutUint64(out[8:16], uint64(m.Arg1))
	binary.LittleEndian.PutUint64(out[16:24], uint64(m.Arg2))
}

func decodeMessage(b []byte) Message {
	return Message{
		ID:   binary.LittleEndian.Uint32(b[0:4]),
		Arg1: uintptr(binary.LittleEndian.Uint64(b[8:16])),
		Arg2: uintptr(binary.LittleEndian.Uint64(b[16:24])),
	}
}
