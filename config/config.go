// Package config defines the user-facing extension configuration and its
// layered defaults.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

// Extension is the process-wide configuration consumed by the login
// pipeline and the signer.
type Extension struct {
	// ClientID is the identity provider's OAuth client identifier.
	ClientID        string `json:"clientId,omitempty"`
	SaltServiceURL  string `json:"saltServiceUrl,omitempty"`
	ProverURL       string `json:"proverUrl,omitempty"`
	ProverAuthToken string `json:"proverAuthToken,omitempty"`
	// BackendURL receives a best-effort registration POST after login.
	BackendURL     string `json:"backendUrl,omitempty"`
	AssetUploadURL string `json:"assetUploadUrl,omitempty"`
	Network        string `json:"network,omitempty"`
}

// Builtin returns the compiled-in defaults, the lowest-priority layer.
func Builtin() Extension {
	return Extension{
		SaltServiceURL: DummySaltResource,
		ProverURL:      "https://api.enoki.mystenlabs.com/v1/zklogin/zkp",
		Network:        "testnet",
	}
}

// Merge overlays every non-empty field of over onto base.
func Merge(base, over Extension) Extension {
	pick := func(b, o string) string {
		if strings.TrimSpace(o) != "" {
			return o
		}
		return b
	}
	return Extension{
		ClientID:        pick(base.ClientID, over.ClientID),
		SaltServiceURL:  pick(base.SaltServiceURL, over.SaltServiceURL),
		ProverURL:       pick(base.ProverURL, over.ProverURL),
		ProverAuthToken: pick(base.ProverAuthToken, over.ProverAuthToken),
		BackendURL:      pick(base.BackendURL, over.BackendURL),
		AssetUploadURL:  pick(base.AssetUploadURL, over.AssetUploadURL),
		Network:         pick(base.Network, over.Network),
	}
}

// Validate checks that every configured URL parses. The prover must be an
// absolute http(s) URL; the salt service may name a bundled resource.
func (c Extension) Validate() error {
	if c.ProverURL != "" {
		if err := requireAbsoluteHTTP("proverUrl", c.ProverURL); err != nil {
			return err
		}
	}
	for name, raw := range map[string]string{
		"backendUrl":     c.BackendURL,
		"assetUploadUrl": c.AssetUploadURL,
	} {
		if raw == "" {
			continue
		}
		if err := requireAbsoluteHTTP(name, raw); err != nil {
			return err
		}
	}
	if c.SaltServiceURL != "" {
		if _, err := url.Parse(c.SaltServiceURL); err != nil {
			return fmt.Errorf("%w: saltServiceUrl: %w", ErrInvalid, err)
		}
	}
	return nil
}

// Redacted returns a copy safe to show in logs.
func (c Extension) Redacted() Extension {
	if c.ProverAuthToken != "" {
		c.ProverAuthToken = "***"
	}
	return c
}

func requireAbsoluteHTTP(name, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalid, name, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %s must be an absolute http(s) URL, got %q", ErrInvalid, name, raw)
	}
	return nil
}
