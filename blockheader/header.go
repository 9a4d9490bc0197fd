// Package blockheader implements the fixed little-endian block header
// layout hashed by the miner, and the Argon2d digest computed over it.
package blockheader

import (
	"encoding/binary"
	"fmt"
)

const (
	// PackedSize is the encoded length of every field except the nonce.
	PackedSize = 92

	// CandidateSize is PackedSize plus the 8-byte nonce; the unit hashed
	// on every attempt.
	CandidateSize = PackedSize + 8
)

type Header struct {
	Version          uint16
	TransactionCount uint16
	Number           uint64
	PreviousBlock    [32]byte
	MerkleRoot       [32]byte
	Timestamp        uint64
	Difficulty       [8]byte
	Nonce            [8]byte
}

// Pack encodes the header without its nonce:
//
//	 0  2 version            u16 LE
//	 2  2 transaction count  u16 LE
//	 4  8 number             u64 LE
//	12 32 previous block     raw
//	44 32 merkle root        raw
//	76  8 timestamp          u64 LE
//	84  8 difficulty         raw
func (h *Header) Pack() []byte {
	buf := make([]byte, 0, CandidateSize)
	buf = binary.LittleEndian.AppendUint16(buf, h.Version)
	buf = binary.LittleEndian.AppendUint16(buf, h.TransactionCount)
	buf = binary.LittleEndian.AppendUint64(buf, h.Number)
	buf = append(buf, h.PreviousBlock[:]...)
	buf = append(buf, h.MerkleRoot[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, h.Timestamp)
	buf = append(buf, h.Difficulty[:]...)
	return buf
}

// StartNonce is the nonce field read as a little-endian u64.
func (h *Header) StartNonce() uint64 {
	return binary.LittleEndian.Uint64(h.Nonce[:])
}

// AppendNonce returns a new CandidateSize buffer holding packed followed by
// the little-endian nonce. packed is not modified.
func AppendNonce(packed []byte, nonce uint64) []byte {
	buf := make([]byte, len(packed), len(packed)+8)
	copy(buf, packed)
	return binary.LittleEndian.AppendUint64(buf, nonce)
}

// SetNonce overwrites the trailing nonce of a candidate in place.
func SetNonce(candidate []byte, nonce uint64) {
	binary.LittleEndian.PutUint64(candidate[PackedSize:CandidateSize], nonce)
}

// Unpack reads a header back from its packed or candidate encoding. The
// nonce is zero when b holds only PackedSize bytes.
func Unpack(b []byte) (*Header, error) {
	if len(b) != PackedSize && len(b) != CandidateSize {
		return nil, fmt.Errorf("header length %d, want %d or %d", len(b), PackedSize, CandidateSize)
	}
	h := &Header{
		Version:          binary.LittleEndian.Uint16(b[0:2]),
		TransactionCount: binary.LittleEndian.Uint16(b[2:4]),
		Number:           binary.LittleEndian.Uint64(b[4:12]),
		Timestamp:        binary.LittleEndian.Uint64(b[76:84]),
	}
	copy(h.PreviousBlock[:], b[12:44])
	copy(h.MerkleRoot[:], b[44:76])
	copy(h.Difficulty[:], b[84:92])
	if len(b) == CandidateSize {
		copy(h.Nonce[:], b[92:100])
	}
	return h, nil
}
