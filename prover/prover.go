// Package prover requests zkLogin proofs from a remote proving service.
package prover

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/jmcleod/suilink/internal/remote"
	"github.com/jmcleod/suilink/zklogin"
)

// JWTHeader carries the identity token to the proving service.
const JWTHeader = "zklogin-jwt"

var requiredFields = []string{"proofPoints", "issBase64Details", "headerBase64"}

// ErrInvalidURL is returned for prover URLs that are not absolute http(s).
var ErrInvalidURL = errors.New("prover URL must be an absolute http(s) URL")

// MissingFieldsError reports a response without the required proof fields.
// Present lists the top-level keys that were returned.
type MissingFieldsError struct {
	Missing []string
	Present []string
}

func (e *MissingFieldsError) Error() string {
	return fmt.Sprintf("prover response missing %s (present keys: %s)",
		strings.Join(e.Missing, ", "), strings.Join(e.Present, ", "))
}

// Request holds everything the proving service needs.
type Request struct {
	ProverURL string
	JWT       string
	// AuthToken, when set, is sent as a bearer token.
	AuthToken          string
	Network            string
	MaxEpoch           uint64
	Randomness         string
	EphemeralPublicKey string
}

type proofBody struct {
	Network            string `json:"network"`
	EphemeralPublicKey string `json:"ephemeralPublicKey"`
	MaxEpoch           uint64 `json:"maxEpoch"`
	Randomness         string `json:"randomness"`
}

// Requestor calls the proving service.
type Requestor struct {
	http   *http.Client
	logger *slog.Logger
}

type Option func(*Requestor)

func WithHTTPClient(c *http.Client) Option {
	return func(r *Requestor) { r.http = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Requestor) { r.logger = l }
}

func NewRequestor(opts ...Option) *Requestor {
	r := &Requestor{http: remote.NewHTTPClient(), logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "prover")
	return r
}

// Request obtains a proof. The returned proof carries an address seed only
// when the service supplied one.
func (r *Requestor) Request(ctx context.Context, req Request) (zklogin.Proof, error) {
	u, err := url.Parse(strings.TrimSpace(req.ProverURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return zklogin.Proof{}, fmt.Errorf("%w: %q", ErrInvalidURL, req.ProverURL)
	}

	header := http.Header{}
	header.Set(JWTHeader, req.JWT)
	if req.AuthToken != "" {
		header.Set("Authorization", "Bearer "+req.AuthToken)
	}

	var raw map[string]json.RawMessage
	err = remote.Do(ctx, r.http, remote.Request{
		Service: "prover",
		Method:  http.MethodPost,
		URL:     u.String(),
		Header:  header,
		Body: proofBody{
			Network:            req.Network,
			EphemeralPublicKey: req.EphemeralPublicKey,
			MaxEpoch:           req.MaxEpoch,
			Randomness:         req.Randomness,
		},
	}, &raw)
	if err != nil {
		return zklogin.Proof{}, err
	}
	proof, err := parseProof(raw)
	if err != nil {
		return zklogin.Proof{}, err
	}
	r.logger.Debug("proof received", "max_epoch", req.MaxEpoch, "has_address_seed", proof.AddressSeed != "")
	return proof, nil
}

func parseProof(raw map[string]json.RawMessage) (zklogin.Proof, error) {
	if _, ok := raw[requiredFields[0]]; !ok {
		if nested, ok := raw["data"]; ok {
			var inner map[string]json.RawMessage
			if err := json.Unmarshal(nested, &inner); err == nil && inner != nil {
				raw = inner
			}
		}
	}

	var missing []string
	for _, f := range requiredFields {
		if v, ok := raw[f]; !ok || string(v) == "null" {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		present := make([]string, 0, len(raw))
		for k := range raw {
			present = append(present, k)
		}
		slices.Sort(present)
		return zklogin.Proof{}, &MissingFieldsError{Missing: missing, Present: present}
	}

	var proof zklogin.Proof
	if err := json.Unmarshal(raw["proofPoints"], &proof.ProofPoints); err != nil {
		return zklogin.Proof{}, fmt.Errorf("prover response proofPoints: %w", err)
	}
	if err := json.Unmarshal(raw["issBase64Details"], &proof.IssBase64Details); err != nil {
		return zklogin.Proof{}, fmt.Errorf("prover response issBase64Details: %w", err)
	}
	if err := json.Unmarshal(raw["headerBase64"], &proof.HeaderBase64); err != nil {
		return zklogin.Proof{}, fmt.Errorf("prover response headerBase64: %w", err)
	}
	if seed, ok := raw["addressSeed"]; ok && string(seed) != "null" {
		s, err := decimalSeed(seed)
		if err != nil {
			return zklogin.Proof{}, err
		}
		proof.AddressSeed = s
	}
	return proof, nil
}

// decimalSeed accepts a JSON number or a decimal/0x-hex string.
func decimalSeed(v json.RawMessage) (string, error) {
	var text string
	if err := json.Unmarshal(v, &text); err != nil {
		var n json.Number
		if err := json.Unmarshal(v, &n); err != nil {
			return "", fmt.Errorf("prover response addressSeed %s is not a number", v)
		}
		text = n.String()
	}
	text = strings.TrimSpace(text)
	base := 10
	if hex, found := strings.CutPrefix(strings.ToLower(text), "0x"); found {
		text, base = hex, 16
	}
	n, ok := new(big.Int).SetString(text, base)
	if !ok || n.Sign() < 0 {
		return "", fmt.Errorf("prover response addressSeed %q is not a non-negative integer", text)
	}
	return n.String(), nil
}
