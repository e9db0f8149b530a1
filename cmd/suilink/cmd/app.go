package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.etcd.io/bbolt"

	"github.com/jmcleod/suilink/account"
	"github.com/jmcleod/suilink/api"
	"github.com/jmcleod/suilink/config"
	"github.com/jmcleod/suilink/dispatch"
	"github.com/jmcleod/suilink/gas"
	"github.com/jmcleod/suilink/internal/remote"
	"github.com/jmcleod/suilink/login"
	"github.com/jmcleod/suilink/oauth"
	"github.com/jmcleod/suilink/prover"
	"github.com/jmcleod/suilink/salt"
	"github.com/jmcleod/suilink/signer"
	"github.com/jmcleod/suilink/storage"
	bboltstorage "github.com/jmcleod/suilink/storage/bbolt"
	"github.com/jmcleod/suilink/storage/memory"
	"github.com/jmcleod/suilink/storage/postgres"
	"github.com/jmcleod/suilink/sui"
)

// appOptions are the process settings taken from flags.
type appOptions struct {
	dataDir      string
	postgresDSN  string
	defaultsFile string
	network      string
	rpcURL       string
	apiToken     string
	oauthAddr    string
	loginTimeout time.Duration
	// launcher replaces the loopback OAuth launcher.
	launcher oauth.Launcher
}

// app is the wired daemon.
type app struct {
	store   *account.Store
	network sui.Network
	handler http.Handler
	closers []func() error
}

// openDurable opens the repository for the local and sync regions. An empty
// data directory keeps everything in memory.
func openDurable(ctx context.Context, dataDir, dsn string) (storage.Repository, func() error, error) {
	switch {
	case dsn != "":
		repo, err := postgres.NewRepositoryFromDSN(ctx, dsn)
		if err != nil {
			return nil, nil, err
		}
		return repo, func() error { repo.Close(); return nil }, nil
	case dataDir != "":
		if err := os.MkdirAll(dataDir, 0o700); err != nil {
			return nil, nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		repo, err := bboltstorage.NewRepositoryFromFile(filepath.Join(dataDir, "suilink.db"), &bbolt.Options{Timeout: time.Second})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open storage: %w", err)
		}
		return repo, repo.Close, nil
	default:
		return memory.NewRepository(), func() error { return nil }, nil
	}
}

// openStore returns the account store over durable settings and in-memory
// sessions.
func openStore(ctx context.Context, opts appOptions, logger *slog.Logger) (*account.Store, func() error, error) {
	durable, closeFn, err := openDurable(ctx, opts.dataDir, opts.postgresDSN)
	if err != nil {
		return nil, nil, err
	}
	repo := storage.Mux{
		storage.RegionLocal:   durable,
		storage.RegionSync:    durable,
		storage.RegionSession: memory.NewRepository(),
	}
	var defaults *config.Defaults
	if opts.defaultsFile != "" {
		defaults = config.NewDefaults(os.DirFS(filepath.Dir(opts.defaultsFile)), filepath.Base(opts.defaultsFile), logger)
	} else {
		defaults = config.NewDefaults(nil, "", logger)
	}
	store, err := account.NewStore(repo, defaults, account.WithLogger(logger))
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return store, closeFn, nil
}

func newApp(ctx context.Context, opts appOptions, logger *slog.Logger) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	store, closeStore, err := openStore(ctx, opts, logger)
	if err != nil {
		return nil, err
	}
	a.store = store
	a.closers = append(a.closers, closeStore)

	cfg, err := store.LoadConfig(ctx)
	if err != nil {
		return nil, err
	}
	name := opts.network
	if name == "" {
		name = cfg.Network
	}
	network, err := sui.LookupNetwork(name)
	if err != nil {
		return nil, err
	}
	if opts.rpcURL != "" {
		network.RPCURL = opts.rpcURL
	}
	a.network = network

	httpClient := remote.NewHTTPClient()
	chain := sui.NewClient(network.RPCURL, sui.WithHTTPClient(httpClient))
	gasOpts := []gas.Option{gas.WithLogger(logger)}
	if network.FaucetEnabled() {
		gasOpts = append(gasOpts, gas.WithFaucet(sui.NewFaucet(network.FaucetURL, httpClient)))
	}

	launcher := opts.launcher
	if launcher == nil {
		lb := oauth.NewLoopback(opts.oauthAddr, oauth.WithLogger(logger))
		if err := lb.Start(); err != nil {
			return nil, err
		}
		a.closers = append(a.closers, lb.Close)
		launcher = lb
	}

	registrar := login.NewRegistrar(httpClient, logger)
	a.closers = append(a.closers, func() error { registrar.Close(); return nil })

	orchestrator := login.NewOrchestrator(login.Dependencies{
		Store:    store,
		Chain:    chain,
		Launcher: launcher,
		Salts:    salt.NewResolver(salt.WithHTTPClient(httpClient), salt.WithLogger(logger)),
		Prover:   prover.NewRequestor(prover.WithHTTPClient(httpClient), prover.WithLogger(logger)),
		Network:  network.Name,
	}, login.WithRegistrar(registrar), login.WithTimeout(opts.loginTimeout), login.WithLogger(logger))

	sgn := signer.New(store, gas.NewProvisioner(chain, gasOpts...), chain, signer.WithLogger(logger))
	d := dispatch.New(store, orchestrator, sgn, dispatch.WithActiveNetwork(network.Name), dispatch.WithLogger(logger))

	apiOpts := []api.Option{
		api.WithLogger(logger),
		api.WithAlertFunc(func(e api.AlertEvent) {
			logger.Warn("alert", "type", e.Type, "message", e.Message, "count", e.Count, "threshold", e.Threshold)
		}),
	}
	if opts.apiToken != "" {
		apiOpts = append(apiOpts, api.WithToken(opts.apiToken))
	}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Mount("/", api.New(d, apiOpts...).Router())
	a.handler = r
	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
