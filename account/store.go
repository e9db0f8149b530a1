package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/awnumar/memguard"

	"github.com/jmcleod/suilink/config"
	"github.com/jmcleod/suilink/internal/util"
	"github.com/jmcleod/suilink/storage"
	"github.com/jmcleod/suilink/sui"
)

const (
	sessionRecordType = "SESSIONS"
	sessionRecordID   = "all"
	sessionAAD        = "suilink:sessions:v1"
	sessionKeyInfo    = "suilink:session-record-key:v1"

	configRecordType = "CONFIG"
	configRecordID   = "user"

	settingsRecordType = "SETTINGS"
	overlayRecordID    = "overlayEnabled"
)

// ErrSessionNotFound is returned by Find when no session exists for the
// address.
var ErrSessionNotFound = errors.New("session not found")

// Store owns the session list, the saved configuration and UI settings.
//
// The session list lives in the session region, sealed with AES-256-GCM
// under a key generated per process and held in a memguard enclave. Records
// written by an earlier process cannot be opened and read as empty.
type Store struct {
	repo     storage.Repository
	defaults *config.Defaults
	rootKey  *memguard.Enclave
	logger   *slog.Logger
}

type Option func(*Store)

func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// NewStore returns a Store over repo, which must serve the local, sync and
// session regions.
func NewStore(repo storage.Repository, defaults *config.Defaults, opts ...Option) (*Store, error) {
	root, err := util.RandomBytes(util.AESKeySize)
	if err != nil {
		return nil, fmt.Errorf("generating session key: %w", err)
	}
	s := &Store{
		repo:     repo,
		defaults: defaults,
		rootKey:  memguard.NewEnclave(root),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.defaults == nil {
		s.defaults = config.NewDefaults(nil, "", s.logger)
	}
	s.logger = s.logger.With("component", "account")
	return s, nil
}

func (s *Store) recordKey() ([]byte, error) {
	buf, err := s.rootKey.Open()
	if err != nil {
		return nil, fmt.Errorf("opening session key: %w", err)
	}
	defer buf.Destroy()
	return util.HKDF(buf.Bytes(), nil, sessionKeyInfo)
}

// Load returns every session, newest first.
func (s *Store) Load(ctx context.Context) ([]Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	env, err := s.repo.Get(storage.RegionSession, sessionRecordType, sessionRecordID)
	if storage.IsNotFound(err) {
		return []Session{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading sessions: %w", err)
	}
	key, err := s.recordKey()
	if err != nil {
		return nil, err
	}
	defer util.WipeBytes(key)

	var sessions []Session
	if err := storage.OpenJSON(key, env, []byte(sessionAAD), &sessions); err != nil {
		s.logger.Warn("discarding unreadable session records", "error", err)
		return []Session{}, nil
	}
	if sessions == nil {
		sessions = []Session{}
	}
	return sessions, nil
}

// Save replaces the whole session list in one write.
func (s *Store) Save(ctx context.Context, sessions []Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if sessions == nil {
		sessions = []Session{}
	}
	key, err := s.recordKey()
	if err != nil {
		return err
	}
	defer util.WipeBytes(key)

	env, err := storage.SealJSON(key, sessions, []byte(sessionAAD))
	if err != nil {
		return fmt.Errorf("sealing sessions: %w", err)
	}
	if err := s.repo.Put(storage.RegionSession, sessionRecordType, sessionRecordID, env); err != nil {
		return fmt.Errorf("saving sessions: %w", err)
	}
	return nil
}

// Upsert puts sess at the front, replacing any session with the same
// address, and returns the new list.
func (s *Store) Upsert(ctx context.Context, sess Session) ([]Session, error) {
	sessions, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	next := make([]Session, 0, len(sessions)+1)
	next = append(next, sess)
	for _, existing := range sessions {
		if !sameAddress(existing.Address, sess.Address) {
			next = append(next, existing)
		}
	}
	if err := s.Save(ctx, next); err != nil {
		return nil, err
	}
	return next, nil
}

// Remove drops the session for address, if any, and returns the remaining
// list.
func (s *Store) Remove(ctx context.Context, address string) ([]Session, error) {
	sessions, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	next := make([]Session, 0, len(sessions))
	for _, existing := range sessions {
		if !sameAddress(existing.Address, address) {
			next = append(next, existing)
		}
	}
	if len(next) == len(sessions) {
		return sessions, nil
	}
	if err := s.Save(ctx, next); err != nil {
		return nil, err
	}
	return next, nil
}

// Find returns the session for address.
func (s *Store) Find(ctx context.Context, address string) (*Session, error) {
	sessions, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	for i := range sessions {
		if sameAddress(sessions[i].Address, address) {
			return &sessions[i], nil
		}
	}
	return nil, fmt.Errorf("%s: %w", address, ErrSessionNotFound)
}

// Clear removes every session.
func (s *Store) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.repo.Delete(storage.RegionSession, sessionRecordType, sessionRecordID)
	if err != nil && !storage.IsNotFound(err) {
		return fmt.Errorf("clearing sessions: %w", err)
	}
	return nil
}

// UserConfig returns the saved overrides without defaults applied.
func (s *Store) UserConfig(ctx context.Context) (config.Extension, error) {
	if err := ctx.Err(); err != nil {
		return config.Extension{}, err
	}
	var user config.Extension
	env, err := s.repo.Get(storage.RegionLocal, configRecordType, configRecordID)
	if storage.IsNotFound(err) {
		return user, nil
	}
	if err != nil {
		return user, fmt.Errorf("loading config: %w", err)
	}
	if err := storage.OpenJSON(nil, env, nil, &user); err != nil {
		return user, fmt.Errorf("decoding config: %w", err)
	}
	return user, nil
}

// LoadConfig returns built-in defaults < bundled defaults < saved overrides.
func (s *Store) LoadConfig(ctx context.Context) (config.Extension, error) {
	user, err := s.UserConfig(ctx)
	if err != nil {
		return config.Extension{}, err
	}
	return s.defaults.Resolve(user), nil
}

// SaveConfig validates and stores cfg as the user overrides, returning the
// resolved configuration.
func (s *Store) SaveConfig(ctx context.Context, cfg config.Extension) (config.Extension, error) {
	if err := ctx.Err(); err != nil {
		return config.Extension{}, err
	}
	if err := s.defaults.Resolve(cfg).Validate(); err != nil {
		return config.Extension{}, err
	}
	env, err := storage.PlainJSON(cfg)
	if err != nil {
		return config.Extension{}, err
	}
	if err := s.repo.Put(storage.RegionLocal, configRecordType, configRecordID, env); err != nil {
		return config.Extension{}, fmt.Errorf("saving config: %w", err)
	}
	return s.defaults.Resolve(cfg), nil
}

// OverlayEnabled reports the overlay toggle; it defaults to on.
func (s *Store) OverlayEnabled(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	env, err := s.repo.Get(storage.RegionSync, settingsRecordType, overlayRecordID)
	if storage.IsNotFound(err) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("loading overlay setting: %w", err)
	}
	var enabled bool
	if err := storage.OpenJSON(nil, env, nil, &enabled); err != nil {
		return false, fmt.Errorf("decoding overlay setting: %w", err)
	}
	return enabled, nil
}

func (s *Store) SetOverlayEnabled(ctx context.Context, enabled bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	env, err := storage.PlainJSON(enabled)
	if err != nil {
		return err
	}
	if err := s.repo.Put(storage.RegionSync, settingsRecordType, overlayRecordID, env); err != nil {
		return fmt.Errorf("saving overlay setting: %w", err)
	}
	return nil
}

// sameAddress compares addresses in canonical form, so 0x2 and its padded
// 64-hex spelling match. Unparseable input falls back to a plain comparison.
func sameAddress(a, b string) bool {
	na, errA := sui.NormalizeAddress(a)
	nb, errB := sui.NormalizeAddress(b)
	if errA == nil && errB == nil {
		return na == nb
	}
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
