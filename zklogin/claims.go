package zklogin

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// ErrMissingClaim is returned when an identity token lacks sub, aud or iss.
var ErrMissingClaim = errors.New("identity token is missing a required claim")

// Claims are the identity token claims used for address derivation.
type Claims struct {
	Subject  string
	Audience string
	Issuer   string
	Nonce    string
}

// DecodeClaims reads the claims of an identity token without verifying its
// signature. An audience list is reduced to its first entry.
func DecodeClaims(token string) (*Claims, error) {
	mc := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, mc); err != nil {
		return nil, fmt.Errorf("decoding identity token: %w", err)
	}
	sub, err := mc.GetSubject()
	if err != nil {
		return nil, fmt.Errorf("decoding identity token: %w", err)
	}
	iss, err := mc.GetIssuer()
	if err != nil {
		return nil, fmt.Errorf("decoding identity token: %w", err)
	}
	aud, err := mc.GetAudience()
	if err != nil {
		return nil, fmt.Errorf("decoding identity token: %w", err)
	}

	c := &Claims{Subject: sub, Issuer: iss}
	if len(aud) > 0 {
		c.Audience = aud[0]
	}
	if nonce, ok := mc["nonce"].(string); ok {
		c.Nonce = nonce
	}
	switch {
	case c.Subject == "":
		return nil, fmt.Errorf("%w: sub", ErrMissingClaim)
	case c.Audience == "":
		return nil, fmt.Errorf("%w: aud", ErrMissingClaim)
	case c.Issuer == "":
		return nil, fmt.Errorf("%w: iss", ErrMissingClaim)
	}
	return c, nil
}
