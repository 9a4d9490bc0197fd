package blockheader

import (
	argon2 "github.com/tvdburgt/go-argon2"
)

// DigestSize is the length of a block digest in bytes.
const DigestSize = 32

// remote verifiers recompute the digest, so these must not change
const (
	digestMode        = argon2.ModeArgon2d
	digestMemory      = 1 << 17 // KiB, 128 MiB
	digestIterations  = 4
	digestParallelism = 1
	digestVersion     = argon2.Version13
)

// Digest hashes a candidate using it as both password and salt.
func Digest(candidate []byte) ([]byte, error) {
	context := &argon2.Context{
		Iterations:  digestIterations,
		Memory:      digestMemory,
		Parallelism: digestParallelism,
		HashLen:     DigestSize,
		Mode:        digestMode,
		Version:     digestVersion,
	}
	return argon2.Hash(context, candidate, candidate)
}

// Qualifies reports whether the most significant byte of the digest, read
// as a little-endian 256-bit number, is zero. Difficulty is judged by the
// remote service.
func Qualifies(digest []byte) bool {
	return len(digest) == DigestSize && digest[DigestSize-1] == 0
}
