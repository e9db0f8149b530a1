// Package login runs the zkLogin pipeline: provider redirect, salt, proof,
// address derivation and session persistence.
package login

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/jmcleod/suilink/account"
	"github.com/jmcleod/suilink/config"
	"github.com/jmcleod/suilink/internal/util"
	"github.com/jmcleod/suilink/oauth"
	"github.com/jmcleod/suilink/prover"
	"github.com/jmcleod/suilink/sui"
	"github.com/jmcleod/suilink/zklogin"
)

// EpochOffset is added to the current epoch to bound the ephemeral key's
// validity.
const EpochOffset = 2

// State is a step of the login pipeline.
type State string

const (
	StateIdle                     State = "idle"
	StateAwaitingProviderRedirect State = "awaiting_provider_redirect"
	StateTokenReceived            State = "token_received"
	StateSaltResolved             State = "salt_resolved"
	StateProofReceived            State = "proof_received"
	StateSessionPersisted         State = "session_persisted"
	StateFailed                   State = "failed"
)

var ErrMissingClientID = errors.New("identity provider client ID is not configured")

// Error is a failed login. State is the last state reached before the
// failure.
type Error struct {
	State State
	Err   error
}

func (e *Error) Error() string { return e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

// Store is the session store as seen by the orchestrator.
type Store interface {
	LoadConfig(ctx context.Context) (config.Extension, error)
	Upsert(ctx context.Context, s account.Session) ([]account.Session, error)
}

type EpochSource interface {
	LatestEpoch(ctx context.Context) (uint64, error)
}

type SaltResolver interface {
	Resolve(ctx context.Context, serviceURL, subject, jwt string) (string, error)
}

type ProofRequester interface {
	Request(ctx context.Context, req prover.Request) (zklogin.Proof, error)
}

// Dependencies are the collaborators of an Orchestrator.
type Dependencies struct {
	Store    Store
	Chain    EpochSource
	Launcher oauth.Launcher
	Salts    SaltResolver
	Prover   ProofRequester
	// Network is sent to the prover and must match Chain.
	Network string
}

// Observer is told about every state transition.
type Observer func(from, to State)

type Orchestrator struct {
	deps      Dependencies
	registrar *Registrar
	observe   Observer
	timeout   time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

type Option func(*Orchestrator)

// WithRegistrar enables the post-login registration webhook.
func WithRegistrar(r *Registrar) Option {
	return func(o *Orchestrator) { o.registrar = r }
}

func WithObserver(fn Observer) Option {
	return func(o *Orchestrator) { o.observe = fn }
}

// WithTimeout bounds a whole login, including the time the user spends at
// the provider.
func WithTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.timeout = d }
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

func NewOrchestrator(deps Dependencies, opts ...Option) *Orchestrator {
	o := &Orchestrator{deps: deps, now: time.Now, logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.With("component", "login")
	return o
}

// attempt tracks one run of the pipeline.
type attempt struct {
	o     *Orchestrator
	state State
}

func (a *attempt) to(next State) {
	a.o.logger.Debug("login state", "from", a.state, "to", next)
	if a.o.observe != nil {
		a.o.observe(a.state, next)
	}
	a.state = next
}

func (a *attempt) fail(err error) error {
	failed := &Error{State: a.state, Err: err}
	a.o.logger.Warn("login failed", "state", a.state, "error", err)
	a.to(StateFailed)
	return failed
}

// Login runs the whole pipeline and returns the persisted session. Nothing
// is persisted unless every step succeeds.
func (o *Orchestrator) Login(ctx context.Context) (*account.Session, error) {
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}
	a := &attempt{o: o, state: StateIdle}

	cfg, err := o.deps.Store.LoadConfig(ctx)
	if err != nil {
		return nil, a.fail(fmt.Errorf("loading config: %w", err))
	}
	if cfg.ClientID == "" {
		return nil, a.fail(ErrMissingClientID)
	}

	epoch, err := o.deps.Chain.LatestEpoch(ctx)
	if err != nil {
		return nil, a.fail(fmt.Errorf("fetching current epoch: %w", err))
	}
	maxEpoch := epoch + EpochOffset

	kp, err := sui.GenerateKeypair()
	if err != nil {
		return nil, a.fail(err)
	}
	defer kp.Destroy()
	randomness, err := zklogin.GenerateRandomness()
	if err != nil {
		return nil, a.fail(err)
	}
	nonce, err := zklogin.GenerateNonce(kp.PublicKey(), maxEpoch, randomness)
	if err != nil {
		return nil, a.fail(err)
	}

	a.to(StateAwaitingProviderRedirect)
	authURL := oauth.AuthorizeURL(cfg.ClientID, o.deps.Launcher.RedirectURL(), nonce)
	redirect, err := o.deps.Launcher.Launch(ctx, authURL)
	if err != nil {
		return nil, a.fail(err)
	}
	if redirect == "" {
		return nil, a.fail(oauth.ErrNoRedirect)
	}
	jwt, err := oauth.IDTokenFromRedirect(redirect)
	if err != nil {
		return nil, a.fail(err)
	}
	claims, err := zklogin.DecodeClaims(jwt)
	if err != nil {
		return nil, a.fail(err)
	}
	if claims.Nonce != "" && claims.Nonce != nonce {
		o.logger.Warn("identity token nonce does not match the requested nonce")
	}
	a.to(StateTokenReceived)

	rawSalt, err := o.deps.Salts.Resolve(ctx, cfg.SaltServiceURL, claims.Subject, jwt)
	if err != nil {
		return nil, a.fail(err)
	}
	salt, err := zklogin.ReduceSalt(rawSalt)
	if err != nil {
		return nil, a.fail(err)
	}
	a.to(StateSaltResolved)

	proof, err := o.deps.Prover.Request(ctx, prover.Request{
		ProverURL:          cfg.ProverURL,
		JWT:                jwt,
		AuthToken:          cfg.ProverAuthToken,
		Network:            o.deps.Network,
		MaxEpoch:           maxEpoch,
		Randomness:         randomness,
		EphemeralPublicKey: zklogin.ExtendedEphemeralPublicKey(kp.PublicKey()),
	})
	if err != nil {
		return nil, a.fail(err)
	}
	a.to(StateProofReceived)

	address, err := o.deriveAddress(proof, salt.String(), claims, jwt)
	if err != nil {
		return nil, a.fail(err)
	}

	sess := account.Session{
		Address:             address.String(),
		Provider:            oauth.Provider,
		Subject:             claims.Subject,
		Audience:            claims.Audience,
		MaxEpoch:            maxEpoch,
		CreatedAt:           o.now().UTC(),
		Salt:                salt.String(),
		Randomness:          randomness,
		JWT:                 jwt,
		Proof:               proof,
		EphemeralPrivateKey: util.Base64Encode(kp.Seed()),
	}
	if _, err := o.deps.Store.Upsert(ctx, sess); err != nil {
		return nil, a.fail(fmt.Errorf("persisting session: %w", err))
	}
	a.to(StateSessionPersisted)
	o.logger.Info("login complete", "address", sess.Address, "max_epoch", maxEpoch)

	if cfg.BackendURL != "" && o.registrar != nil {
		o.registrar.Enqueue(cfg.BackendURL, Registration{
			Address:      sess.Address,
			Provider:     sess.Provider,
			Subject:      sess.Subject,
			Audience:     sess.Audience,
			RegisteredAt: sess.CreatedAt,
		})
	}
	return &sess, nil
}

// deriveAddress uses the proof's address seed when present and falls back to
// the salt and claims. The token-derived address is only a consistency
// check: on mismatch the proof-derived address wins.
func (o *Orchestrator) deriveAddress(proof zklogin.Proof, salt string, claims *zklogin.Claims, jwt string) (sui.Address, error) {
	var (
		seed *big.Int
		err  error
	)
	if proof.AddressSeed != "" {
		seed, err = zklogin.ParseAddressSeed(proof.AddressSeed)
	} else {
		seed, err = zklogin.SubjectAddressSeed(salt, claims.Subject, claims.Audience)
	}
	if err != nil {
		return sui.Address{}, err
	}
	address, err := zklogin.ComputeAddressFromSeed(seed, claims.Issuer)
	if err != nil {
		return sui.Address{}, err
	}

	check, err := zklogin.JWTToAddress(jwt, salt)
	switch {
	case err != nil:
		o.logger.Warn("could not derive address from identity token", "error", err)
	case check != address:
		o.logger.Warn("address derived from proof differs from token-derived address",
			"proof_address", address.String(), "token_address", check.String())
	}
	return address, nil
}
