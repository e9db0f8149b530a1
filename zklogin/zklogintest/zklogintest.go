// Package zklogintest builds identity tokens and proofs for tests.
package zklogintest

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jmcleod/suilink/zklogin"
)

// Issuer is the issuer used by Token when none is given.
const Issuer = "https://id.twitch.tv/oauth2"

// Token returns an HS256-signed identity token with the given claims. The
// signature is irrelevant since tokens are decoded unverified.
func Token(t testing.TB, claims map[string]any) string {
	t.Helper()
	mc := jwt.MapClaims{"iss": Issuer}
	for k, v := range claims {
		if v == nil {
			delete(mc, k)
			continue
		}
		mc[k] = v
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, mc).SignedString([]byte("test-signing-key"))
	if err != nil {
		t.Fatalf("signing test token: %v", err)
	}
	return s
}

// Proof returns a structurally valid proof with placeholder points.
func Proof() zklogin.Proof {
	return zklogin.Proof{
		ProofPoints: zklogin.ProofPoints{
			A: []string{"1", "2", "1"},
			B: [][]string{{"3", "4"}, {"5", "6"}, {"1", "0"}},
			C: []string{"7", "8", "1"},
		},
		IssBase64Details: zklogin.IssBase64Details{Value: "yJpc3MiOiJodHRwczovL2lkLnR3aXRjaC50di9vYXV0aDIiLC", IndexMod4: 1},
		HeaderBase64:     "eyJhbGciOiJSUzI1NiIsInR5cCI6IkpXVCJ9",
	}
}
