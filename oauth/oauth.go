// Package oauth drives the identity provider's implicit id_token flow.
package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Provider is the identity provider tag recorded on sessions.
const Provider = "twitch"

const authorizeEndpoint = "https://id.twitch.tv/oauth2/authorize"

var (
	// ErrNoRedirect is returned when the flow ends without a redirect,
	// typically because the user closed it.
	ErrNoRedirect = errors.New("no redirect URL returned")
	ErrNoIDToken  = errors.New("redirect URL carries no id_token")
)

// Launcher opens an authorization URL and waits for the final redirect.
type Launcher interface {
	// RedirectURL is the redirect URI registered with the provider.
	RedirectURL() string
	// Launch returns the full redirect URL, fragment included.
	Launch(ctx context.Context, authURL string) (string, error)
}

// AuthorizeURL builds the implicit-flow authorization URL requesting an
// id_token bound to nonce.
func AuthorizeURL(clientID, redirectURL, nonce string) string {
	q := url.Values{}
	q.Set("client_id", clientID)
	q.Set("redirect_uri", redirectURL)
	q.Set("response_type", "id_token")
	q.Set("scope", "openid")
	q.Set("nonce", nonce)
	return authorizeEndpoint + "?" + q.Encode()
}

// ProviderError is an error reported by the provider in the redirect.
type ProviderError struct {
	Code        string
	Description string
}

func (e *ProviderError) Error() string {
	if e.Description == "" {
		return "identity provider returned " + e.Code
	}
	return fmt.Sprintf("identity provider returned %s: %s", e.Code, e.Description)
}

// IDTokenFromRedirect extracts the id_token from the redirect URL fragment.
func IDTokenFromRedirect(redirect string) (string, error) {
	u, err := url.Parse(redirect)
	if err != nil {
		return "", fmt.Errorf("parsing redirect URL: %w", err)
	}
	params, err := url.ParseQuery(strings.TrimPrefix(u.Fragment, "#"))
	if err != nil {
		return "", fmt.Errorf("parsing redirect fragment: %w", err)
	}
	if code := firstNonEmpty(params.Get("error"), u.Query().Get("error")); code != "" {
		return "", &ProviderError{
			Code:        code,
			Description: firstNonEmpty(params.Get("error_description"), u.Query().Get("error_description")),
		}
	}
	token := params.Get("id_token")
	if token == "" {
		return "", ErrNoIDToken
	}
	return token, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
