// Package zklogin implements the client-side zkLogin primitives: salt
// reduction, address seeds, address derivation, nonces, and the composite
// signature accepted by the network.
package zklogin

import (
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/jmcleod/suilink/internal/util"
)

// FieldModulus is the BN254 scalar field prime used by the zkLogin circuit.
var FieldModulus = fr.Modulus()

// ReduceSalt parses a decimal salt and reduces it into the scalar field.
// A salt that reduces to zero is replaced with one.
func ReduceSalt(salt string) (*big.Int, error) {
	n, err := util.ParseDecimal(salt)
	if err != nil {
		return nil, fmt.Errorf("invalid salt: %w", err)
	}
	n.Mod(n, FieldModulus)
	if n.Sign() == 0 {
		n.SetInt64(1)
	}
	return n, nil
}
