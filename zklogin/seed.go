package zklogin

import (
	"fmt"
	"math/big"

	"github.com/iden3/go-iden3-crypto/poseidon"
)

// Maximum claim lengths the circuit accepts.
const (
	MaxKeyClaimNameLength  = 32
	MaxKeyClaimValueLength = 115
	MaxAudValueLength      = 145
)

// packWidth is the number of bytes packed into one field element.
const packWidth = 31

// HashASCIIStrToField zero-pads s to maxLen bytes, packs it into 31-byte
// big-endian field elements aligned to the end of the buffer, and hashes
// them with Poseidon.
func HashASCIIStrToField(s string, maxLen int) (*big.Int, error) {
	if len(s) > maxLen {
		return nil, fmt.Errorf("string %q is longer than %d bytes", s, maxLen)
	}
	for i := 0; i < len(s); i++ {
		if s[i] == 0 || s[i] > 0x7f {
			return nil, fmt.Errorf("string %q contains a non-ASCII byte at %d", s, i)
		}
	}
	padded := make([]byte, maxLen)
	copy(padded, s)

	var chunks []*big.Int
	first := len(padded) % packWidth
	if first > 0 {
		chunks = append(chunks, new(big.Int).SetBytes(padded[:first]))
	}
	for off := first; off < len(padded); off += packWidth {
		chunks = append(chunks, new(big.Int).SetBytes(padded[off:off+packWidth]))
	}
	return poseidon.Hash(chunks)
}

// GenAddressSeed combines the reduced salt with a key claim and audience
// into the address seed the circuit and the network both reconstruct.
func GenAddressSeed(salt *big.Int, name, value, aud string) (*big.Int, error) {
	nameF, err := HashASCIIStrToField(name, MaxKeyClaimNameLength)
	if err != nil {
		return nil, fmt.Errorf("claim name: %w", err)
	}
	valueF, err := HashASCIIStrToField(value, MaxKeyClaimValueLength)
	if err != nil {
		return nil, fmt.Errorf("claim value: %w", err)
	}
	audF, err := HashASCIIStrToField(aud, MaxAudValueLength)
	if err != nil {
		return nil, fmt.Errorf("audience: %w", err)
	}
	saltF, err := poseidon.Hash([]*big.Int{salt})
	if err != nil {
		return nil, fmt.Errorf("hashing salt: %w", err)
	}
	return poseidon.Hash([]*big.Int{nameF, valueF, audF, saltF})
}

// SubjectAddressSeed is GenAddressSeed over the "sub" claim with a raw
// decimal salt.
func SubjectAddressSeed(salt, subject, aud string) (*big.Int, error) {
	s, err := ReduceSalt(salt)
	if err != nil {
		return nil, err
	}
	return GenAddressSeed(s, "sub", subject, aud)
}
