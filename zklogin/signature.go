package zklogin

import (
	"errors"
	"fmt"

	"github.com/jmcleod/suilink/internal/util"
	"github.com/jmcleod/suilink/sui"
)

// ProofPoints are the Groth16 proof points as decimal strings.
type ProofPoints struct {
	A []string   `json:"a"`
	B [][]string `json:"b"`
	C []string   `json:"c"`
}

// IssBase64Details locates the issuer claim inside the token payload.
type IssBase64Details struct {
	Value     string `json:"value"`
	IndexMod4 uint8  `json:"indexMod4"`
}

// Proof is the proving service's output. AddressSeed may be empty, in which
// case it is derived from the salt and claims.
type Proof struct {
	ProofPoints      ProofPoints      `json:"proofPoints"`
	IssBase64Details IssBase64Details `json:"issBase64Details"`
	HeaderBase64     string           `json:"headerBase64"`
	AddressSeed      string           `json:"addressSeed,omitempty"`
}

// WithAddressSeed returns a copy of p carrying seed.
func (p Proof) WithAddressSeed(seed string) Proof {
	p.AddressSeed = seed
	return p
}

// Signature is a decoded composite zkLogin signature.
type Signature struct {
	Inputs        Proof
	MaxEpoch      uint64
	UserSignature []byte
}

// SerializeSignature combines a proof with an ephemeral user signature into
// base64(0x05 || BCS(signature)).
func SerializeSignature(proof Proof, maxEpoch uint64, userSignature []byte) (string, error) {
	if proof.AddressSeed == "" {
		return "", errors.New("proof has no address seed")
	}
	var e sui.Encoder
	e.U8(sui.FlagZkLogin)
	encodeStrings(&e, proof.ProofPoints.A)
	e.ULEB128(uint64(len(proof.ProofPoints.B)))
	for _, row := range proof.ProofPoints.B {
		encodeStrings(&e, row)
	}
	encodeStrings(&e, proof.ProofPoints.C)
	e.Str(proof.IssBase64Details.Value)
	e.U8(proof.IssBase64Details.IndexMod4)
	e.Str(proof.HeaderBase64)
	e.Str(proof.AddressSeed)
	e.U64(maxEpoch)
	e.Bytes(userSignature)
	return util.Base64Encode(e.Result()), nil
}

// ParseSignature decodes a serialized zkLogin signature.
func ParseSignature(s string) (*Signature, error) {
	raw, err := util.Base64Decode(s)
	if err != nil {
		return nil, err
	}
	d := sui.NewDecoder(raw)
	if flag := d.U8(); d.Err() == nil && flag != sui.FlagZkLogin {
		return nil, fmt.Errorf("signature flag %#x is not zklogin", flag)
	}
	var sig Signature
	p := &sig.Inputs
	p.ProofPoints.A = decodeStrings(d)
	n := d.Len()
	for i := 0; i < n && d.Err() == nil; i++ {
		p.ProofPoints.B = append(p.ProofPoints.B, decodeStrings(d))
	}
	p.ProofPoints.C = decodeStrings(d)
	p.IssBase64Details.Value = d.Str()
	p.IssBase64Details.IndexMod4 = d.U8()
	p.HeaderBase64 = d.Str()
	p.AddressSeed = d.Str()
	sig.MaxEpoch = d.U64()
	sig.UserSignature = d.Bytes()
	if err := d.Done(); err != nil {
		return nil, fmt.Errorf("decoding zklogin signature: %w", err)
	}
	return &sig, nil
}

func encodeStrings(e *sui.Encoder, ss []string) {
	e.ULEB128(uint64(len(ss)))
	for _, s := range ss {
		e.Str(s)
	}
}

func decodeStrings(d *sui.Decoder) []string {
	n := d.Len()
	out := make([]string, 0, n)
	for i := 0; i < n && d.Err() == nil; i++ {
		out = append(out, d.Str())
	}
	return out
}
