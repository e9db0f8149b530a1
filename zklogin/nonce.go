package zklogin

import (
	"crypto/ed25519"
	"fmt"
	"math/big"

	"github.com/iden3/go-iden3-crypto/poseidon"

	"github.com/jmcleod/suilink/internal/util"
	"github.com/jmcleod/suilink/sui"
)

const (
	randomnessBytes = 16
	nonceBytes      = 20
	// NonceLength is the length of an encoded nonce.
	NonceLength = 27
)

// GenerateRandomness returns a fresh 128-bit value as a decimal string.
func GenerateRandomness() (string, error) {
	b, err := util.RandomBytes(randomnessBytes)
	if err != nil {
		return "", err
	}
	return util.DecimalString(b), nil
}

// GenerateNonce binds an ephemeral public key, its validity bound and the
// randomness into the nonce embedded in the identity token request.
func GenerateNonce(pub ed25519.PublicKey, maxEpoch uint64, randomness string) (string, error) {
	if len(pub) != ed25519.PublicKeySize {
		return "", fmt.Errorf("ephemeral public key must be %d bytes", ed25519.PublicKeySize)
	}
	r, err := util.ParseDecimal(randomness)
	if err != nil {
		return "", fmt.Errorf("invalid randomness: %w", err)
	}
	pk := new(big.Int).SetBytes(append([]byte{sui.FlagEd25519}, pub...))
	two128 := new(big.Int).Lsh(big.NewInt(1), 128)
	hi, lo := new(big.Int).QuoRem(pk, two128, new(big.Int))

	h, err := poseidon.Hash([]*big.Int{hi, lo, new(big.Int).SetUint64(maxEpoch), r})
	if err != nil {
		return "", fmt.Errorf("hashing nonce: %w", err)
	}
	b := util.LeftPad(h.Bytes(), 32)
	nonce := util.Base64URLEncode(b[len(b)-nonceBytes:])
	if len(nonce) != NonceLength {
		return "", fmt.Errorf("nonce has length %d, want %d", len(nonce), NonceLength)
	}
	return nonce, nil
}

// ExtendedEphemeralPublicKey encodes flag || public key in base64, the form
// the proving service expects.
func ExtendedEphemeralPublicKey(pub ed25519.PublicKey) string {
	return util.Base64Encode(append([]byte{sui.FlagEd25519}, pub...))
}
