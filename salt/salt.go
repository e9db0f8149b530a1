// Package salt obtains the per-identity blinding salt from a salt backend or
// a fallback source.
package salt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/jmcleod/suilink/config"
	"github.com/jmcleod/suilink/internal/remote"
	"github.com/jmcleod/suilink/internal/util"
)

// backendMarker in a URL path selects the salt-management backend.
const backendMarker = "/salts"

var (
	ErrNoService   = errors.New("salt service URL is not configured")
	ErrMissingSalt = errors.New("salt service response has no salt")
)

// Resolver fetches salts. It is safe for concurrent use.
type Resolver struct {
	http   *http.Client
	assets fs.FS
	logger *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

func WithHTTPClient(c *http.Client) Option {
	return func(r *Resolver) { r.http = c }
}

// WithAssets overrides where relative resource names are read from.
func WithAssets(fsys fs.FS) Option {
	return func(r *Resolver) { r.assets = fsys }
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// NewResolver returns a Resolver reading relative resources from the
// bundled config assets.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		http:   remote.NewHTTPClient(),
		assets: config.Assets(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "salt")
	return r
}

type saltResponse struct {
	Salt *string `json:"salt"`
}

// Resolve returns the decimal salt for subject.
//
// A service URL whose path contains "/salts" is a salt backend: the token
// and subject are POSTed to its "ensure" endpoint. Any other URL is a
// fallback: the bundled dummy salt is read or fetched with GET, and every
// other target receives a POST of the token.
func (r *Resolver) Resolve(ctx context.Context, serviceURL, subject, jwt string) (string, error) {
	serviceURL = strings.TrimSpace(serviceURL)
	if serviceURL == "" {
		return "", ErrNoService
	}
	u, err := url.Parse(serviceURL)
	if err != nil {
		return "", fmt.Errorf("salt service URL: %w", err)
	}

	var res saltResponse
	switch {
	case strings.Contains(u.Path, backendMarker):
		ensure := *u
		ensure.Path = u.Path[:strings.Index(u.Path, backendMarker)] + backendMarker + "/ensure"
		ensure.RawQuery = ""
		r.logger.Debug("resolving salt from backend", "url", ensure.String())
		err = remote.Do(ctx, r.http, remote.Request{
			Service: "salt backend",
			Method:  http.MethodPost,
			URL:     ensure.String(),
			Body:    map[string]string{"jwt": jwt, "subject": subject},
		}, &res)

	case !u.IsAbs():
		err = r.readAsset(u.Path, &res)

	case path.Base(u.Path) == config.DummySaltResource:
		r.logger.Debug("fetching dummy salt", "url", serviceURL)
		err = remote.Do(ctx, r.http, remote.Request{
			Service: "salt service",
			Method:  http.MethodGet,
			URL:     serviceURL,
		}, &res)

	default:
		err = remote.Do(ctx, r.http, remote.Request{
			Service: "salt service",
			Method:  http.MethodPost,
			URL:     serviceURL,
			Body:    map[string]string{"jwt": jwt},
		}, &res)
	}
	if err != nil {
		return "", err
	}
	return validSalt(res)
}

func (r *Resolver) readAsset(name string, res *saltResponse) error {
	name = strings.TrimPrefix(path.Clean(name), "/")
	if path.Base(name) != config.DummySaltResource {
		return fmt.Errorf("salt service URL %q is relative and does not name a bundled resource", name)
	}
	r.logger.Warn("using bundled dummy salt; addresses are not private")
	data, err := fs.ReadFile(r.assets, config.DummySaltResource)
	if err != nil {
		return fmt.Errorf("reading bundled salt: %w", err)
	}
	if err := json.Unmarshal(data, res); err != nil {
		return fmt.Errorf("decoding bundled salt: %w", err)
	}
	return nil
}

func validSalt(res saltResponse) (string, error) {
	if res.Salt == nil || strings.TrimSpace(*res.Salt) == "" {
		return "", ErrMissingSalt
	}
	s := strings.TrimSpace(*res.Salt)
	if _, err := util.ParseDecimal(s); err != nil {
		return "", fmt.Errorf("salt service returned an invalid salt: %w", err)
	}
	return s, nil
}
