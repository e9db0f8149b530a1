package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/exec"
	"runtime"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// ErrFlowInProgress is returned when a second flow starts before the first
// one finished.
var ErrFlowInProgress = errors.New("an authorization flow is already in progress")

const callbackPath = "/callback"

// The fragment never reaches the server, so the callback page posts its
// own location back.
const callbackPage = `<!doctype html>
<html><head><meta charset="utf-8"><title>suilink</title></head>
<body><p id="status">Completing login…</p>
<script>
fetch("/callback/complete", {
  method: "POST",
  headers: {"Content-Type": "application/json"},
  body: JSON.stringify({url: window.location.href})
}).then(function (r) {
  document.getElementById("status").textContent = r.ok
    ? "Login complete. You can close this window."
    : "Login failed. Return to the application and try again.";
});
</script></body></html>
`

// Opener shows url to the user, usually in a browser.
type Opener func(url string) error

// Loopback is a Launcher that receives the redirect on a local HTTP
// listener.
type Loopback struct {
	addr   string
	open   Opener
	logger *slog.Logger

	mu      sync.Mutex
	ln      net.Listener
	srv     *http.Server
	pending chan string
}

type LoopbackOption func(*Loopback)

// WithOpener replaces the system browser launcher.
func WithOpener(o Opener) LoopbackOption {
	return func(l *Loopback) { l.open = o }
}

func WithLogger(logger *slog.Logger) LoopbackOption {
	return func(l *Loopback) { l.logger = logger }
}

// NewLoopback returns a launcher listening on addr once started, e.g.
// "127.0.0.1:8765".
func NewLoopback(addr string, opts ...LoopbackOption) *Loopback {
	l := &Loopback{addr: addr, open: OpenBrowser, logger: slog.Default()}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With("component", "oauth")
	return l
}

// Start binds the listener and serves the callback routes.
func (l *Loopback) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ln != nil {
		return nil
	}
	ln, err := net.Listen("tcp", l.addr)
	if err != nil {
		return fmt.Errorf("oauth callback listener: %w", err)
	}
	srv := &http.Server{Handler: l.router(), ReadHeaderTimeout: 10 * time.Second}
	l.ln, l.srv = ln, srv
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.logger.Error("oauth callback server stopped", "error", err)
		}
	}()
	return nil
}

// Close stops the listener.
func (l *Loopback) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := l.srv.Shutdown(ctx)
	// Shutdown only closes listeners Serve has already picked up.
	l.ln.Close()
	l.srv, l.ln = nil, nil
	return err
}

func (l *Loopback) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.NoCache)
	r.Get(callbackPath, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Write([]byte(callbackPage))
	})
	r.Post(callbackPath+"/complete", l.handleComplete)
	return r
}

func (l *Loopback) handleComplete(w http.ResponseWriter, r *http.Request) {
	var body struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&body); err != nil || body.URL == "" {
		http.Error(w, "invalid callback", http.StatusBadRequest)
		return
	}
	l.mu.Lock()
	pending := l.pending
	l.mu.Unlock()
	if pending == nil {
		http.Error(w, "no login in progress", http.StatusConflict)
		return
	}
	select {
	case pending <- body.URL:
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "login already completed", http.StatusConflict)
	}
}

// RedirectURL returns the callback URL. It is only meaningful after Start
// when addr uses an ephemeral port.
func (l *Loopback) RedirectURL() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	host := l.addr
	if l.ln != nil {
		host = l.ln.Addr().String()
	}
	return "http://" + host + callbackPath
}

// Launch opens authURL and blocks until the callback page reports the
// redirect or ctx ends.
func (l *Loopback) Launch(ctx context.Context, authURL string) (string, error) {
	if err := l.Start(); err != nil {
		return "", err
	}
	ch := make(chan string, 1)
	l.mu.Lock()
	if l.pending != nil {
		l.mu.Unlock()
		return "", ErrFlowInProgress
	}
	l.pending = ch
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		l.pending = nil
		l.mu.Unlock()
	}()

	l.logger.Info("opening identity provider", "redirect", l.RedirectURL())
	if err := l.open(authURL); err != nil {
		return "", fmt.Errorf("opening authorization URL: %w", err)
	}

	select {
	case u := <-ch:
		return u, nil
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %w", ErrNoRedirect, ctx.Err())
	}
}

// OpenBrowser opens url with the platform's default handler.
func OpenBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}
