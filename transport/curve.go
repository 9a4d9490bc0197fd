package transport

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/cloudflare/circl/dh/x25519"
	zmq "github.com/pebbe/zmq4"
)

// KeyPair is a client's CURVE identity.
type KeyPair struct {
	Public x25519.Key
	Secret x25519.Key
}

func GenerateKeyPair() (*KeyPair, error) {
	var kp KeyPair
	if _, err := io.ReadFull(rand.Reader, kp.Secret[:]); err != nil {
		return nil, err
	}
	x25519.KeyGen(&kp.Public, &kp.Secret)
	return &kp, nil
}

// KeyPairFromHex loads a key pair and checks that the public half belongs
// to the secret half.
func KeyPairFromHex(public, secret string) (*KeyPair, error) {
	var kp KeyPair
	if err := decodeKey(kp.Public[:], public); err != nil {
		return nil, fmt.Errorf("public key: %w", err)
	}
	if err := decodeKey(kp.Secret[:], secret); err != nil {
		return nil, fmt.Errorf("secret key: %w", err)
	}
	var derived x25519.Key
	x25519.KeyGen(&derived, &kp.Secret)
	if !bytes.Equal(derived[:], kp.Public[:]) {
		return nil, errors.New("public key does not match secret key")
	}
	return &kp, nil
}

func (kp *KeyPair) PublicHex() string { return hex.EncodeToString(kp.Public[:]) }
func (kp *KeyPair) SecretHex() string { return hex.EncodeToString(kp.Secret[:]) }

func decodeKey(dst []byte, s string) error {
	key, err := hex.DecodeString(s)
	if err != nil {
		return err
	}
	if len(key) != len(dst) {
		return fmt.Errorf("length %d, want %d", len(key), len(dst))
	}
	copy(dst, key)
	return nil
}

// z85 is the text form libzmq expects for CURVE keys.
func z85(key []byte) string {
	return zmq.Z85encode(string(key))
}
