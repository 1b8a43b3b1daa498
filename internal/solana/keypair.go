package solana

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// ErrInvalidKeypair is returned when a secret key cannot be decoded into a usable keypair.
var ErrInvalidKeypair = errors.New("invalid keypair")

// Keypair is an ed25519 signing key. The private half never leaves the struct.
type Keypair struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

// KeypairFromBase58 decodes a base58 secret key. Both the 64-byte form
// (seed followed by public key) and a bare 32-byte seed are accepted.
func KeypairFromBase58(secret string) (*Keypair, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, fmt.Errorf("%w: empty secret", ErrInvalidKeypair)
	}

	raw, err := base58.Decode(secret)
	if err != nil {
		return nil, fmt.Errorf("%w: base58: %v", ErrInvalidKeypair, err)
	}

	var priv ed25519.PrivateKey
	switch len(raw) {
	case ed25519.SeedSize:
		priv = ed25519.NewKeyFromSeed(raw)
	case ed25519.PrivateKeySize:
		priv = ed25519.NewKeyFromSeed(raw[:ed25519.SeedSize])
		derived := priv.Public().(ed25519.PublicKey)
		if !derived.Equal(ed25519.PublicKey(raw[ed25519.SeedSize:])) {
			return nil, fmt.Errorf("%w: public key does not match seed", ErrInvalidKeypair)
		}
	default:
		return nil, fmt.Errorf("%w: unexpected length %d", ErrInvalidKeypair, len(raw))
	}

	pub := priv.Public().(ed25519.PublicKey)
	if !IsOnCurve(pub) {
		return nil, fmt.Errorf("%w: public key not on curve", ErrInvalidKeypair)
	}

	return &Keypair{priv: priv, pub: pub}, nil
}

// PublicKey returns the base58 wallet address.
func (k *Keypair) PublicKey() string {
	return base58.Encode(k.pub)
}

// PublicKeyBytes returns a copy of the raw 32-byte public key.
func (k *Keypair) PublicKeyBytes() []byte {
	out := make([]byte, len(k.pub))
	copy(out, k.pub)
	return out
}

// Sign signs msg with the private key.
func (k *Keypair) Sign(msg []byte) []byte {
	return ed25519.Sign(k.priv, msg)
}

// String hides the secret.
func (k *Keypair) String() string {
	return "Keypair(" + k.PublicKey() + ")"
}

// IsOnCurve checks if a 32-byte point is a valid ed25519 curve point.
func IsOnCurve(point []byte) bool {
	if len(point) != 32 {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}

// ValidateAddress checks that s decodes to a 32-byte public key.
func ValidateAddress(s string) error {
	raw, err := base58.Decode(s)
	if err != nil {
		return fmt.Errorf("decode address: %w", err)
	}
	if len(raw) != 32 {
		return fmt.Errorf("address must be 32 bytes, got %d", len(raw))
	}
	return nil
}
