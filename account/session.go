// Package account persists zkLogin sessions and the user configuration.
package account

import (
	"time"

	"github.com/jmcleod/suilink/zklogin"
)

// Session is one linked identity. It is replaced wholesale, never patched.
type Session struct {
	Address    string        `json:"address"`
	Provider   string        `json:"provider"`
	Subject    string        `json:"sub"`
	Audience   string        `json:"aud"`
	MaxEpoch   uint64        `json:"maxEpoch"`
	CreatedAt  time.Time     `json:"createdAt"`
	Salt       string        `json:"salt"`
	Randomness string        `json:"randomness"`
	JWT        string        `json:"jwt"`
	Proof      zklogin.Proof `json:"proof"`
	// EphemeralPrivateKey is the base64 Ed25519 seed matching the nonce.
	EphemeralPrivateKey string `json:"ephemeralPrivateKey"`
}

// PublicData is the projection of a Session that may leave the daemon.
type PublicData struct {
	Address   string    `json:"address"`
	Provider  string    `json:"provider"`
	Subject   string    `json:"sub"`
	Audience  string    `json:"aud"`
	CreatedAt time.Time `json:"createdAt"`
	MaxEpoch  uint64    `json:"maxEpoch"`
}

func (s *Session) Public() PublicData {
	return PublicData{
		Address:   s.Address,
		Provider:  s.Provider,
		Subject:   s.Subject,
		Audience:  s.Audience,
		CreatedAt: s.CreatedAt,
		MaxEpoch:  s.MaxEpoch,
	}
}

// PublicList projects every session, preserving order.
func PublicList(sessions []Session) []PublicData {
	out := make([]PublicData, 0, len(sessions))
	for i := range sessions {
		out = append(out, sessions[i].Public())
	}
	return out
}
