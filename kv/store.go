// Package kv implements the throttled small-value store.
//
// A [Store] binds one namespace to a [media.Gateway]. Values are framed by
// the frame package, so every load is length-, version- and
// checksum-validated; a record that fails any check is reported as a typed
// error and treated as absent — nothing is reset or rewritten on the
// caller's behalf. Saves are rate limited per store instance to bound
// media wear; ForceSave bypasses the limiter for must-persist moments
// (shutdown, explicit user action).
package kv

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/nvkit/nvkit/frame"
	"github.com/nvkit/nvkit/media"
)

const (
	// MaxNamespaceLen bounds namespace identifiers, matching the key-value
	// drivers of small embedded platforms.
	MaxNamespaceLen = 15

	// MaxRecordSize is the capacity ceiling for one framed record. Saves
	// exceeding it are rejected before any media I/O.
	MaxRecordSize = 3000

	// DefaultMinSaveInterval is the initial throttle window.
	DefaultMinSaveInterval = time.Second
)

// Store is a namespace-scoped small-value store. It is safe for
// concurrent use. Load and Save are package-level generic functions so a
// single namespace can hold records of different types.
type Store struct {
	ns     string
	gw     media.Gateway
	logger *slog.Logger

	mu      sync.Mutex
	limiter *rate.Limiter
	now     func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithLogger wires store telemetry to l. Without it the store is silent.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithClock substitutes the time source, for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates a store over gw scoped to namespace. The namespace is
// fixed for the store's lifetime; it must be 1 to MaxNamespaceLen bytes
// and contain no path separators.
func NewStore(gw media.Gateway, namespace string, opts ...Option) (*Store, error) {
	if namespace == "" || len(namespace) > MaxNamespaceLen {
		return nil, fmt.Errorf("kv: namespace %q must be 1 to %d bytes", namespace, MaxNamespaceLen)
	}
	if strings.ContainsAny(namespace, "/\\.") {
		return nil, fmt.Errorf("kv: namespace %q contains reserved characters", namespace)
	}
	s := &Store{
		ns:      namespace,
		gw:      gw,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		limiter: rate.NewLimiter(rate.Every(DefaultMinSaveInterval), 1),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Namespace returns the store's namespace.
func (s *Store) Namespace() string {
	return s.ns
}

// SetMinSaveInterval reconfigures the throttle window. It takes effect on
// the next save.
func (s *Store) SetMinSaveInterval(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.limiter.SetLimitAt(s.now(), rate.Every(d))
}

// Exists reports whether a record is stored under key.
func (s *Store) Exists(key string) bool {
	_, err := s.gw.StatBlob(s.blobID(key))
	return err == nil
}

// Remove deletes the record under key, reporting whether a record was
// actually removed.
func (s *Store) Remove(key string) bool {
	if err := s.gw.DeleteBlob(s.blobID(key)); err != nil {
		return false
	}
	s.logger.Info("kv: removed", "namespace", s.ns, "key", key)
	return true
}

// Clear deletes every record in the store's namespace.
func (s *Store) Clear() error {
	ids, err := s.gw.ListBlobs(s.ns + "/")
	if err != nil {
		return fmt.Errorf("kv: clear %s: %w", s.ns, err)
	}
	var errs []error
	for _, id := range ids {
		if err := s.gw.DeleteBlob(id); err != nil && !errors.Is(err, media.ErrNotFound) {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("kv: clear %s: %w", s.ns, err)
	}
	s.logger.Info("kv: namespace cleared", "namespace", s.ns, "records", len(ids))
	return nil
}

func (s *Store) blobID(key string) string {
	return s.ns + "/" + key
}

// Load reads and validates the record stored under key. The record must
// have been written with the same format version; any framing failure
// passes through as a typed error (see the frame package) and the caller
// decides whether to fall back to defaults. Absent keys yield
// [ErrNotFound]. Nothing is mutated on failure.
func Load[T any](s *Store, key string, expectedVersion uint8) (*T, error) {
	raw, err := s.gw.ReadBlob(s.blobID(key))
	if err != nil {
		if errors.Is(err, media.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, s.ns, key)
		}
		return nil, fmt.Errorf("kv: read %s/%s: %w", s.ns, key, err)
	}
	out := new(T)
	if err := frame.Decode(raw, expectedVersion, out); err != nil {
		s.logger.Warn("kv: invalid record", "namespace", s.ns, "key", key, "err", err)
		return nil, err
	}
	s.logger.Debug("kv: loaded", "namespace", s.ns, "key", key, "version", expectedVersion)
	return out, nil
}

// Save frames value and writes it under key, subject to two gates checked
// in order: the framed size must not exceed [MaxRecordSize]
// ([ErrTooLarge]), and at least the configured minimum interval must have
// elapsed since the last successful save on this store instance
// ([ErrThrottled]). A rejected or failed save leaves the key's prior
// on-media content unchanged.
func Save[T any](s *Store, key string, value *T, version uint8) error {
	return save(s, key, value, version, false)
}

// ForceSave is Save without the rate limit. The size gate still applies.
func ForceSave[T any](s *Store, key string, value *T, version uint8) error {
	return save(s, key, value, version, true)
}

func save[T any](s *Store, key string, value *T, version uint8, force bool) error {
	framed, err := frame.Encode(value, version)
	if err != nil {
		return err
	}
	if len(framed) > MaxRecordSize {
		return fmt.Errorf("%w: %s/%s: %d bytes, max %d", ErrTooLarge, s.ns, key, len(framed), MaxRecordSize)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Reserve a throttle token up front but refund it unless the write
	// fully succeeds, so the interval measures successful saves only.
	var res *rate.Reservation
	if !force {
		now := s.now()
		res = s.limiter.ReserveN(now, 1)
		if !res.OK() || res.DelayFrom(now) > 0 {
			if res.OK() {
				res.CancelAt(now)
			}
			s.logger.Warn("kv: save throttled", "namespace", s.ns, "key", key)
			return fmt.Errorf("%w: %s/%s", ErrThrottled, s.ns, key)
		}
	}

	n, err := s.gw.WriteBlob(s.blobID(key), framed)
	if err == nil && n != len(framed) {
		err = fmt.Errorf("wrote %d of %d bytes", n, len(framed))
	}
	if err != nil {
		if res != nil {
			res.CancelAt(s.now())
		}
		s.logger.Error("kv: save failed", "namespace", s.ns, "key", key, "err", err)
		return fmt.Errorf("kv: write %s/%s: %w", s.ns, key, err)
	}
	s.logger.Debug("kv: saved", "namespace", s.ns, "key", key, "version", version, "bytes", n)
	return nil
}
