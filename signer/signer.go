// Package signer turns transaction intents into zkLogin-signed transactions
// and submits them.
package signer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/awnumar/memguard"

	"github.com/jmcleod/suilink/account"
	"github.com/jmcleod/suilink/gas"
	"github.com/jmcleod/suilink/internal/util"
	"github.com/jmcleod/suilink/sui"
	"github.com/jmcleod/suilink/zklogin"
)

var (
	// ErrNoSession means the caller must authenticate again; retrying will
	// not help.
	ErrNoSession        = errors.New("no active session — log in again")
	ErrMissingRecipient = errors.New("transfer recipient is required")
	ErrSenderMismatch   = errors.New("transaction sender does not match the session address")
)

// Intent is a high-level description of a transaction.
type Intent interface {
	intent()
}

// TransferIntent sends Amount SUI (display units, e.g. "1.5") to Recipient.
type TransferIntent struct {
	Amount    string
	Recipient string
}

// CustomIntent carries pre-built BCS bytes, either full TransactionData or
// a bare TransactionKind. Gas payment is always replaced.
type CustomIntent struct {
	TxBytes []byte
}

func (TransferIntent) intent() {}
func (CustomIntent) intent()   {}

// Sessions looks up stored sessions.
type Sessions interface {
	Find(ctx context.Context, address string) (*account.Session, error)
}

// Funder supplies gas payment coins.
type Funder interface {
	EnsureFunds(ctx context.Context, owner sui.Address, amount uint64) ([]sui.ObjectRef, error)
}

// Chain submits transactions.
type Chain interface {
	ReferenceGasPrice(ctx context.Context) (uint64, error)
	ExecuteTransaction(ctx context.Context, txBytes []byte, signatures []string) (string, error)
}

type Signer struct {
	sessions Sessions
	funds    Funder
	chain    Chain
	logger   *slog.Logger
}

type Option func(*Signer)

func WithLogger(l *slog.Logger) Option {
	return func(s *Signer) { s.logger = l }
}

func New(sessions Sessions, funds Funder, chain Chain, opts ...Option) *Signer {
	s := &Signer{sessions: sessions, funds: funds, chain: chain, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "signer")
	return s
}

func (s *Signer) session(ctx context.Context, address string) (*account.Session, sui.Address, error) {
	sess, err := s.sessions.Find(ctx, address)
	if errors.Is(err, account.ErrSessionNotFound) {
		return nil, sui.Address{}, ErrNoSession
	}
	if err != nil {
		return nil, sui.Address{}, err
	}
	sender, err := sui.ParseAddress(sess.Address)
	if err != nil {
		return nil, sui.Address{}, fmt.Errorf("stored session address: %w", err)
	}
	return sess, sender, nil
}

// SignAndExecute builds, signs and submits the transaction described by
// intent on behalf of address, returning its digest.
func (s *Signer) SignAndExecute(ctx context.Context, address string, intent Intent) (string, error) {
	sess, sender, err := s.session(ctx, address)
	if err != nil {
		return "", err
	}

	var (
		kind   *sui.ProgrammableTransaction
		amount uint64
		base   *sui.TransactionData
	)
	switch in := intent.(type) {
	case TransferIntent:
		amount, err = sui.ParseAmount(in.Amount)
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(in.Recipient) == "" {
			return "", ErrMissingRecipient
		}
		recipient, err := sui.ParseAddress(in.Recipient)
		if err != nil {
			return "", fmt.Errorf("recipient: %w", err)
		}
		kind = sui.TransferSui(recipient, amount)
	case CustomIntent:
		base, kind, err = decodeCustom(in.TxBytes, sender)
		if err != nil {
			return "", err
		}
	default:
		return "", fmt.Errorf("unsupported intent %T", intent)
	}

	payment, err := s.funds.EnsureFunds(ctx, sender, amount)
	if err != nil {
		return "", err
	}
	price, err := s.chain.ReferenceGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("reference gas price: %w", err)
	}

	td := &sui.TransactionData{
		Kind:   kind,
		Sender: sender,
		Gas: sui.GasData{
			Payment: payment,
			Owner:   sender,
			Price:   price,
			Budget:  gas.GasBudget,
		},
	}
	if base != nil {
		td.ExpirationEpoch = base.ExpirationEpoch
		td.Gas.Price = max(price, base.Gas.Price)
		if base.Gas.Budget > 0 {
			td.Gas.Budget = base.Gas.Budget
		}
	}
	txBytes := td.Bytes()

	sig, err := s.zkSign(sess, func(kp *sui.Keypair) []byte { return kp.SignTransaction(txBytes) })
	if err != nil {
		return "", err
	}
	digest, err := s.chain.ExecuteTransaction(ctx, txBytes, []string{sig})
	if err != nil {
		return digest, err
	}
	s.logger.Info("transaction executed", "address", sess.Address, "digest", digest)
	return digest, nil
}

// SignPersonalMessage signs msg under the personal message intent and
// returns the zkLogin signature.
func (s *Signer) SignPersonalMessage(ctx context.Context, address string, msg []byte) (string, error) {
	sess, _, err := s.session(ctx, address)
	if err != nil {
		return "", err
	}
	return s.zkSign(sess, func(kp *sui.Keypair) []byte { return kp.SignPersonalMessage(msg) })
}

// zkSign signs with the session's ephemeral key and wraps the result in a
// zkLogin signature, deriving the address seed when the proof lacks one.
func (s *Signer) zkSign(sess *account.Session, sign func(*sui.Keypair) []byte) (string, error) {
	seed, err := util.Base64Decode(sess.EphemeralPrivateKey)
	if err != nil {
		return "", fmt.Errorf("ephemeral key: %w", err)
	}
	buf := memguard.NewBufferFromBytes(seed)
	defer buf.Destroy()
	kp, err := sui.KeypairFromSeed(buf.Bytes())
	if err != nil {
		return "", fmt.Errorf("ephemeral key: %w", err)
	}
	userSig := sign(kp)
	kp.Destroy()

	proof := sess.Proof
	if proof.AddressSeed == "" {
		addrSeed, err := zklogin.SubjectAddressSeed(sess.Salt, sess.Subject, sess.Audience)
		if err != nil {
			return "", fmt.Errorf("deriving address seed: %w", err)
		}
		proof = proof.WithAddressSeed(addrSeed.String())
	}
	return zklogin.SerializeSignature(proof, sess.MaxEpoch, userSig)
}

func decodeCustom(b []byte, sender sui.Address) (*sui.TransactionData, *sui.ProgrammableTransaction, error) {
	if len(b) == 0 {
		return nil, nil, errors.New("custom transaction bytes are empty")
	}
	td, dataErr := sui.DecodeTransactionData(b)
	if dataErr == nil {
		if !td.Sender.IsZero() && td.Sender != sender {
			return nil, nil, fmt.Errorf("%w: %s", ErrSenderMismatch, td.Sender)
		}
		return td, td.Kind, nil
	}
	kind, kindErr := sui.DecodeTransactionKind(b)
	if kindErr != nil {
		return nil, nil, fmt.Errorf("custom transaction bytes are not a valid transaction: %w", errors.Join(dataErr, kindErr))
	}
	return nil, kind, nil
}
