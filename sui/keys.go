package sui

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/blake2b"

	"github.com/jmcleod/suilink/internal/util"
)

// Signature scheme flags prefixed to public keys and signatures.
const (
	FlagEd25519 byte = 0x00
	FlagZkLogin byte = 0x05
)

// IntentScope distinguishes what a signature commits to.
type IntentScope byte

const (
	IntentTransactionData IntentScope = 0
	IntentPersonalMessage IntentScope = 3
)

// Keypair is an Ed25519 signing key.
type Keypair struct {
	priv ed25519.PrivateKey
}

// GenerateKeypair creates a fresh random keypair.
func GenerateKeypair() (*Keypair, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating ed25519 key: %w", err)
	}
	return &Keypair{priv: priv}, nil
}

// KeypairFromSeed rebuilds a keypair from its 32-byte seed.
func KeypairFromSeed(seed []byte) (*Keypair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("ed25519 seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	return &Keypair{priv: ed25519.NewKeyFromSeed(seed)}, nil
}

// Seed returns a copy of the private seed.
func (k *Keypair) Seed() []byte {
	return util.CopyBytes(k.priv.Seed())
}

func (k *Keypair) PublicKey() ed25519.PublicKey {
	return k.priv.Public().(ed25519.PublicKey)
}

// SuiPublicKey returns flag || public key.
func (k *Keypair) SuiPublicKey() []byte {
	return append([]byte{FlagEd25519}, k.PublicKey()...)
}

// Destroy zeroes the private key.
func (k *Keypair) Destroy() {
	util.WipeBytes(k.priv)
}

// SignTransaction signs transaction data bytes and returns the serialized
// user signature (flag || signature || public key).
func (k *Keypair) SignTransaction(txBytes []byte) []byte {
	return k.signWithIntent(IntentTransactionData, txBytes)
}

// SignPersonalMessage signs an arbitrary message under the personal
// message intent.
func (k *Keypair) SignPersonalMessage(msg []byte) []byte {
	var e Encoder
	e.Bytes(msg)
	return k.signWithIntent(IntentPersonalMessage, e.Result())
}

func (k *Keypair) signWithIntent(scope IntentScope, msg []byte) []byte {
	digest := IntentDigest(scope, msg)
	sig := ed25519.Sign(k.priv, digest[:])
	out := make([]byte, 0, 1+len(sig)+ed25519.PublicKeySize)
	out = append(out, FlagEd25519)
	out = append(out, sig...)
	return append(out, k.PublicKey()...)
}

// IntentDigest hashes intent || msg with blake2b-256.
func IntentDigest(scope IntentScope, msg []byte) [32]byte {
	buf := make([]byte, 0, 3+len(msg))
	buf = append(buf, byte(scope), 0, 0)
	buf = append(buf, msg...)
	return blake2b.Sum256(buf)
}

// VerifyUserSignature checks a serialized Ed25519 user signature.
func VerifyUserSignature(scope IntentScope, msg, serialized []byte) bool {
	if len(serialized) != 1+ed25519.SignatureSize+ed25519.PublicKeySize || serialized[0] != FlagEd25519 {
		return false
	}
	sig := serialized[1 : 1+ed25519.SignatureSize]
	pub := ed25519.PublicKey(serialized[1+ed25519.SignatureSize:])
	if scope == IntentPersonalMessage {
		var e Encoder
		e.Bytes(msg)
		msg = e.Result()
	}
	digest := IntentDigest(scope, msg)
	return ed25519.Verify(pub, digest[:], sig)
}
