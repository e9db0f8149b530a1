// Package gas makes sure an account holds enough SUI to pay for a
// transaction, topping it up from a faucet on test networks.
package gas

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/jmcleod/suilink/sui"
)

const (
	// GasBuffer is reserved on top of the transfer amount for fees.
	GasBuffer = 50_000_000
	// GasBudget is the budget set on transactions built by the signer.
	GasBudget = 10_000_000
	// MaxGasCoins bounds the coins attached as gas payment.
	MaxGasCoins = 32
)

// DefaultBackoff is the balance polling schedule after a faucet request.
var DefaultBackoff = []time.Duration{
	700 * time.Millisecond,
	1500 * time.Millisecond,
	2500 * time.Millisecond,
	4 * time.Second,
	6 * time.Second,
}

// InsufficientFundsError reports a balance that cannot cover a transaction.
// ForTransfer is set when the balance does not even cover the transfer
// amount; otherwise only the fee buffer is short.
type InsufficientFundsError struct {
	Required    uint64
	Available   uint64
	ForTransfer bool
	AfterFaucet bool
}

func (e *InsufficientFundsError) Error() string {
	what := "gas fees"
	if e.ForTransfer {
		what = "the transfer amount"
	}
	msg := fmt.Sprintf("insufficient balance for %s: need %s SUI, have %s SUI",
		what, sui.FormatAmount(e.Required), sui.FormatAmount(e.Available))
	if e.AfterFaucet {
		msg += " after requesting faucet funds"
	}
	return msg
}

// Chain is the subset of the node client the provisioner needs.
type Chain interface {
	AllCoins(ctx context.Context, owner sui.Address, coinType string) ([]sui.Coin, error)
	Balance(ctx context.Context, owner sui.Address, coinType string) (uint64, error)
}

// Faucet requests test funds.
type Faucet interface {
	Request(ctx context.Context, recipient sui.Address) error
}

// Provisioner selects gas coins, requesting faucet funds when short.
type Provisioner struct {
	chain   Chain
	faucet  Faucet
	backoff []time.Duration
	sleep   func(context.Context, time.Duration) error
	logger  *slog.Logger
}

type Option func(*Provisioner)

// WithFaucet enables top-ups. Without it a shortfall fails immediately.
func WithFaucet(f Faucet) Option {
	return func(p *Provisioner) { p.faucet = f }
}

func WithBackoff(schedule []time.Duration) Option {
	return func(p *Provisioner) { p.backoff = schedule }
}

// WithSleep replaces the wait between balance polls.
func WithSleep(fn func(context.Context, time.Duration) error) Option {
	return func(p *Provisioner) { p.sleep = fn }
}

func WithLogger(l *slog.Logger) Option {
	return func(p *Provisioner) { p.logger = l }
}

func NewProvisioner(chain Chain, opts ...Option) *Provisioner {
	p := &Provisioner{
		chain:   chain,
		backoff: DefaultBackoff,
		sleep:   sleepContext,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", "gas")
	return p
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// EnsureFunds returns up to MaxGasCoins of owner's largest SUI coins once
// their total covers amount plus GasBuffer.
func (p *Provisioner) EnsureFunds(ctx context.Context, owner sui.Address, amount uint64) ([]sui.ObjectRef, error) {
	if amount > math.MaxUint64-GasBuffer {
		return nil, errors.New("transfer amount too large")
	}
	required := amount + GasBuffer

	coins, total, err := p.spendable(ctx, owner)
	if err != nil {
		return nil, err
	}
	if total >= required {
		return p.selectCoins(coins, required), nil
	}
	if p.faucet == nil {
		return nil, shortfall(amount, required, total, false)
	}

	p.logger.Info("balance short, requesting faucet funds", "address", owner.String(), "required", required, "available", total)
	if err := p.faucet.Request(ctx, owner); err != nil {
		return nil, fmt.Errorf("requesting faucet funds: %w", err)
	}

	before := total
	for attempt, delay := range p.backoff {
		if err := p.sleep(ctx, delay); err != nil {
			return nil, err
		}
		bal, err := p.chain.Balance(ctx, owner, sui.CoinTypeSUI)
		if err != nil {
			return nil, fmt.Errorf("polling balance: %w", err)
		}
		p.logger.Debug("polled balance", "attempt", attempt+1, "balance", bal)
		if bal <= before {
			continue
		}
		// The faucet may credit in several coins; keep polling until they
		// cover the requirement.
		before = bal
		coins, total, err = p.spendable(ctx, owner)
		if err != nil {
			return nil, err
		}
		if total >= required {
			return p.selectCoins(coins, required), nil
		}
	}
	return nil, shortfall(amount, required, total, true)
}

func shortfall(amount, required, available uint64, afterFaucet bool) error {
	return &InsufficientFundsError{
		Required:    required,
		Available:   available,
		ForTransfer: available < amount,
		AfterFaucet: afterFaucet,
	}
}

type spendableCoin struct {
	ref     sui.ObjectRef
	balance uint64
}

// spendable lists non-empty SUI coins, largest first.
func (p *Provisioner) spendable(ctx context.Context, owner sui.Address) ([]spendableCoin, uint64, error) {
	listed, err := p.chain.AllCoins(ctx, owner, sui.CoinTypeSUI)
	if err != nil {
		return nil, 0, fmt.Errorf("listing coins: %w", err)
	}
	var coins []spendableCoin
	var total uint64
	for _, c := range listed {
		bal, err := c.Amount()
		if err != nil {
			return nil, 0, fmt.Errorf("coin %s balance: %w", c.CoinObjectID, err)
		}
		if bal == 0 {
			continue
		}
		ref, err := c.Ref()
		if err != nil {
			return nil, 0, err
		}
		coins = append(coins, spendableCoin{ref: ref, balance: bal})
		if total > math.MaxUint64-bal {
			total = math.MaxUint64
		} else {
			total += bal
		}
	}
	sort.SliceStable(coins, func(i, j int) bool { return coins[i].balance > coins[j].balance })
	return coins, total, nil
}

func (p *Provisioner) selectCoins(coins []spendableCoin, required uint64) []sui.ObjectRef {
	n := min(len(coins), MaxGasCoins)
	refs := make([]sui.ObjectRef, 0, n)
	var selected uint64
	for _, c := range coins[:n] {
		refs = append(refs, c.ref)
		selected += c.balance
	}
	if selected < required {
		p.logger.Warn("largest coins do not cover the requirement", "coins", n, "selected", selected, "required", required)
	}
	return refs
}
