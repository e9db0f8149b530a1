package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmcleod/suilink/account"
	"github.com/jmcleod/suilink/config"
	"github.com/jmcleod/suilink/gas"
	"github.com/jmcleod/suilink/internal/remote"
	"github.com/jmcleod/suilink/internal/util"
	"github.com/jmcleod/suilink/login"
	"github.com/jmcleod/suilink/prover"
	"github.com/jmcleod/suilink/salt"
	"github.com/jmcleod/suilink/signer"
	"github.com/jmcleod/suilink/sui"
	"github.com/jmcleod/suilink/zklogin"
)

// Error codes let clients pick a remediation without parsing messages.
const (
	CodeInvalidRequest    = "invalid_request"
	CodeNoSession         = "no_session"
	CodeConfiguration     = "configuration"
	CodeTransport         = "transport"
	CodeProtocol          = "protocol"
	CodeInsufficientFunds = "insufficient_funds"
	CodeInternal          = "internal"
)

// Response is the envelope returned for every request.
type Response struct {
	Type  Type   `json:"type"`
	OK    bool   `json:"ok"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
	Code  string `json:"code,omitempty"`
}

// Store is the subset of account.Store the dispatcher uses.
type Store interface {
	Load(ctx context.Context) ([]account.Session, error)
	Remove(ctx context.Context, address string) ([]account.Session, error)
	Clear(ctx context.Context) error
	LoadConfig(ctx context.Context) (config.Extension, error)
	SaveConfig(ctx context.Context, cfg config.Extension) (config.Extension, error)
	OverlayEnabled(ctx context.Context) (bool, error)
	SetOverlayEnabled(ctx context.Context, enabled bool) error
}

type Logins interface {
	Login(ctx context.Context) (*account.Session, error)
}

type Signer interface {
	SignAndExecute(ctx context.Context, address string, intent signer.Intent) (string, error)
	SignPersonalMessage(ctx context.Context, address string, msg []byte) (string, error)
}

// Dispatcher routes requests to the login orchestrator, the signer and the
// session store.
type Dispatcher struct {
	store   Store
	logins  Logins
	signer  Signer
	network string
	logger  *slog.Logger
}

type Option func(*Dispatcher)

func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// WithActiveNetwork names the network the running process is bound to.
// SAVE_CONFIG reports when a saved network differs from it, since the
// change only applies after a restart.
func WithActiveNetwork(name string) Option {
	return func(d *Dispatcher) { d.network = name }
}

func New(store Store, logins Logins, s Signer, opts ...Option) *Dispatcher {
	d := &Dispatcher{store: store, logins: logins, signer: s, logger: slog.Default()}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With("component", "dispatch")
	return d
}

// DispatchJSON decodes raw and dispatches it. Decoding failures are answered
// with a failure envelope.
func (d *Dispatcher) DispatchJSON(ctx context.Context, raw []byte) Response {
	t, req, err := Decode(raw)
	if err != nil {
		return Response{Type: t, Error: err.Error(), Code: CodeInvalidRequest}
	}
	return d.Dispatch(ctx, req)
}

// Dispatch runs req. It never panics across the boundary and never returns
// an error other than inside the envelope.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (resp Response) {
	resp.Type = req.Type()
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("request panicked", "type", resp.Type, "panic", r)
			resp = Response{Type: req.Type(), Error: "internal error", Code: CodeInternal}
		}
	}()

	if err := req.validate(); err != nil {
		return d.fail(resp.Type, err)
	}
	data, err := d.handle(ctx, req)
	if err != nil {
		return d.fail(resp.Type, err)
	}
	resp.OK = true
	resp.Data = data
	return resp
}

func (d *Dispatcher) fail(t Type, err error) Response {
	code := Classify(err)
	d.logger.Warn("request failed", "type", t, "code", code, "error", err)
	return Response{Type: t, Error: err.Error(), Code: code}
}

func (d *Dispatcher) handle(ctx context.Context, req Request) (any, error) {
	switch r := req.(type) {
	case StartLogin:
		sess, err := d.logins.Login(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]any{"account": sess.Public()}, nil

	case LogoutAccount:
		remaining, err := d.store.Remove(ctx, r.Address)
		if err != nil {
			return nil, err
		}
		return map[string]any{"accounts": account.PublicList(remaining)}, nil

	case SignAndExecute:
		intent, err := r.Intent.signerIntent()
		if err != nil {
			return nil, err
		}
		digest, err := d.signer.SignAndExecute(ctx, r.Address, intent)
		if err != nil {
			return nil, err
		}
		return map[string]any{"digest": digest}, nil

	case SignPersonalMessage:
		msg, err := util.Base64Decode(r.MessageBytesBase64)
		if err != nil {
			return nil, fmt.Errorf("%w: messageBytesBase64 is not base64: %w", ErrMissingField, err)
		}
		sig, err := d.signer.SignPersonalMessage(ctx, r.Address, msg)
		if err != nil {
			return nil, err
		}
		return map[string]any{"signature": sig}, nil

	case GetState:
		return d.state(ctx)

	case GetConfig:
		cfg, err := d.store.LoadConfig(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]any{"config": cfg}, nil

	case SaveConfig:
		cfg, err := d.store.SaveConfig(ctx, r.Config)
		if err != nil {
			return nil, err
		}
		data := map[string]any{"config": cfg}
		if d.network != "" {
			restart := cfg.Network != d.network
			data["activeNetwork"] = d.network
			data["restartRequired"] = restart
			if restart {
				d.logger.Info("network change saved; takes effect after restart", "active", d.network, "saved", cfg.Network)
			}
		}
		return data, nil

	case SetOverlayEnabled:
		if err := d.store.SetOverlayEnabled(ctx, r.Enabled); err != nil {
			return nil, err
		}
		return map[string]any{"enabled": r.Enabled}, nil

	case ClearSessions:
		if err := d.store.Clear(ctx); err != nil {
			return nil, err
		}
		return map[string]any{"accounts": []account.PublicData{}}, nil
	}
	return nil, ErrUnknownType
}

// State is the GET_STATE payload.
type State struct {
	OverlayEnabled bool                 `json:"overlayEnabled"`
	Accounts       []account.PublicData `json:"accounts"`
}

func (d *Dispatcher) state(ctx context.Context) (State, error) {
	sessions, err := d.store.Load(ctx)
	if err != nil {
		return State{}, err
	}
	enabled, err := d.store.OverlayEnabled(ctx)
	if err != nil {
		return State{}, err
	}
	return State{OverlayEnabled: enabled, Accounts: account.PublicList(sessions)}, nil
}

// State returns the same payload as a GET_STATE request.
func (d *Dispatcher) State(ctx context.Context) (State, error) {
	return d.state(ctx)
}

// Classify maps an error to a response code.
func Classify(err error) string {
	var (
		status   *remote.StatusError
		missing  *prover.MissingFieldsError
		funds    *gas.InsufficientFundsError
		loginErr *login.Error
	)
	switch {
	case errors.Is(err, signer.ErrNoSession), errors.Is(err, account.ErrSessionNotFound):
		return CodeNoSession
	case errors.As(err, &funds):
		return CodeInsufficientFunds
	case errors.Is(err, login.ErrMissingClientID), errors.Is(err, salt.ErrNoService),
		errors.Is(err, prover.ErrInvalidURL), errors.Is(err, config.ErrInvalid):
		return CodeConfiguration
	case errors.As(err, &status):
		return CodeTransport
	case errors.As(err, &missing), errors.Is(err, zklogin.ErrMissingClaim), errors.Is(err, salt.ErrMissingSalt):
		return CodeProtocol
	case errors.Is(err, ErrUnknownType), errors.Is(err, ErrUnknownIntent), errors.Is(err, ErrMissingField),
		errors.Is(err, signer.ErrMissingRecipient), errors.Is(err, signer.ErrSenderMismatch),
		errors.Is(err, sui.ErrInvalidAmount), errors.Is(err, sui.ErrInvalidAddress):
		return CodeInvalidRequest
	case errors.As(err, &loginErr):
		// Unclassified login failures are usually the provider flow.
		return CodeTransport
	}
	return CodeInternal
}
