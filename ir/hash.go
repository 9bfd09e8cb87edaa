package ir

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

const (
	tagConstant byte = iota + 1
	tagVariable
	tagOperation
)

type hasher struct {
	d   *xxhash.Digest
	buf [8]byte
}

func newHasher(tag byte) *hasher {
	h := &hasher{d: xxhash.New()}
	h.d.Write([]byte{tag})
	return h
}

func (h *hasher) write(b []byte) {
	h.d.Write(b)
}

func (h *hasher) writeUint64(v uint64) {
	binary.LittleEndian.PutUint64(h.buf[:], v)
	h.d.Write(h.buf[:])
}

func (h *hasher) writeBool(b bool) {
	if b {
		h.d.Write([]byte{1})
	} else {
		h.d.Write([]byte{0})
	}
}

func (h *hasher) writeSort(s Sort) {
	h.writeUint64(uint64(s.kind)<<32 | uint64(s.width))
}

func (h *hasher) sum() uint64 {
	return h.d.Sum64()
}
