package zklogin

import (
	"fmt"
	"math/big"

	"golang.org/x/crypto/blake2b"

	"github.com/jmcleod/suilink/internal/util"
	"github.com/jmcleod/suilink/sui"
)

const googleIssuer = "accounts.google.com"

// ComputeAddressFromSeed derives the account address for an address seed
// and issuer.
func ComputeAddressFromSeed(seed *big.Int, iss string) (sui.Address, error) {
	if seed.Sign() < 0 || seed.BitLen() > 256 {
		return sui.Address{}, fmt.Errorf("address seed out of range")
	}
	if iss == googleIssuer {
		iss = "https://" + googleIssuer
	}
	if len(iss) > 255 {
		return sui.Address{}, fmt.Errorf("issuer %q is too long", iss)
	}
	buf := make([]byte, 0, 2+len(iss)+32)
	buf = append(buf, sui.FlagZkLogin, byte(len(iss)))
	buf = append(buf, iss...)
	buf = append(buf, util.LeftPad(seed.Bytes(), 32)...)
	return sui.Address(blake2b.Sum256(buf)), nil
}

// ParseAddressSeed parses a decimal address seed.
func ParseAddressSeed(s string) (*big.Int, error) {
	n, err := util.ParseDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("invalid address seed: %w", err)
	}
	return n, nil
}

// JWTToAddress derives the address for an identity token and salt without
// any proof, using the "sub" claim.
func JWTToAddress(jwt, salt string) (sui.Address, error) {
	claims, err := DecodeClaims(jwt)
	if err != nil {
		return sui.Address{}, err
	}
	seed, err := SubjectAddressSeed(salt, claims.Subject, claims.Audience)
	if err != nil {
		return sui.Address{}, err
	}
	return ComputeAddressFromSeed(seed, claims.Issuer)
}
