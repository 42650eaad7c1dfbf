// Package record implements the debounced large-record store.
//
// A [Store] owns the persistence of one application value: mutations
// happen in memory, [Store.MarkChanged] flags them, and a periodic
// [Store.Tick] from the host's main loop writes the value out once no
// further change has occurred for the debounce interval. Coalescing many
// mutations into one flash write bounds wear and latency, at the cost of a
// bounded window of data loss on power failure — a deliberate tradeoff,
// not a bug.
//
// Every write first consults a [Gate] shared across stores, so a firmware
// upgrade can inhibit all flash traffic, then checks mount state and free
// space. Records are framed by the frame package; a record that fails
// validation at load is replaced by caller-supplied defaults and rewritten,
// so the in-memory value is always in a defined state.
package record

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/nvkit/nvkit/frame"
	"github.com/nvkit/nvkit/media"
)

const (
	// DefaultDebounceInterval is the quiet window before a dirty record
	// is written.
	DefaultDebounceInterval = 5 * time.Second

	// SpaceMargin is the extra free space required beyond the framed
	// record size before a write proceeds, so the store never fills the
	// media to exhaustion.
	SpaceMargin = 512
)

// Store persists one in-memory value of type T at a fixed media path. The
// value is owned by the application and borrowed by the store; the store
// reads it on save and writes into it on load. Safe for concurrent use.
type Store[T any] struct {
	gw         media.Gateway
	path       string
	data       *T
	version    uint8
	framedSize int
	gate       *Gate
	logger     *slog.Logger
	now        func() time.Time

	mu         sync.Mutex
	dirty      bool
	lastChange time.Time
	interval   time.Duration
	debounce   bool
}

type settings struct {
	gate     *Gate
	logger   *slog.Logger
	now      func() time.Time
	interval time.Duration
	debounce bool
}

// Option configures a Store.
type Option func(*settings)

// WithGate wires the store to a gate other than [Shared], so tests and
// multi-partition hosts can scope the write-inhibit signal.
func WithGate(g *Gate) Option {
	return func(st *settings) { st.gate = g }
}

// WithLogger wires store telemetry to l. Without it the store is silent.
func WithLogger(l *slog.Logger) Option {
	return func(st *settings) { st.logger = l }
}

// WithClock substitutes the time source, for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(st *settings) { st.now = now }
}

// WithDebounceInterval sets the quiet window before a dirty record is
// written.
func WithDebounceInterval(d time.Duration) Option {
	return func(st *settings) { st.interval = d }
}

// WithDebounce enables or disables write coalescing. With debouncing
// disabled, MarkChanged writes immediately.
func WithDebounce(enabled bool) Option {
	return func(st *settings) { st.debounce = enabled }
}

// New binds a store to path and the application value data, then attempts
// to load the stored record into it.
//
// If the load fails for any reason — record absent, size, version or
// checksum mismatch, media unmounted — reset is invoked to populate data
// with defaults, a best-effort immediate save follows, and the load
// failure is returned alongside a usable store. The returned store is
// valid whenever err satisfies errors.Is against the frame sentinels,
// [ErrNotFound] or [ErrNotMounted]; data then holds defaults.
func New[T any](gw media.Gateway, path string, data *T, version uint8, reset func(*T), opts ...Option) (*Store[T], error) {
	framedSize, err := frame.Size[T]()
	if err != nil {
		return nil, err
	}
	st := settings{
		gate:     Shared,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:      time.Now,
		interval: DefaultDebounceInterval,
		debounce: true,
	}
	for _, opt := range opts {
		opt(&st)
	}
	s := &Store[T]{
		gw:         gw,
		path:       path,
		data:       data,
		version:    version,
		framedSize: framedSize,
		gate:       st.gate,
		logger:     st.logger,
		now:        st.now,
		interval:   st.interval,
		debounce:   st.debounce,
	}
	if err := s.load(); err != nil {
		s.logger.Warn("record: load failed, populating defaults", "path", path, "err", err)
		if reset != nil {
			reset(data)
		}
		s.mu.Lock()
		s.dirty = true
		s.lastChange = s.now()
		if saveErr := s.saveLocked(); saveErr != nil {
			s.logger.Warn("record: default rewrite failed", "path", path, "err", saveErr)
		}
		s.mu.Unlock()
		return s, err
	}
	s.logger.Debug("record: loaded", "path", path, "version", version)
	return s, nil
}

// load reads and validates the stored record into the borrowed value. It
// is side-effect-free: on failure the value is untouched and nothing is
// rewritten; self-healing belongs to the constructor.
func (s *Store[T]) load() error {
	if !s.gw.Mounted() {
		return fmt.Errorf("%w: %s", ErrNotMounted, s.path)
	}
	raw, err := s.gw.ReadBlob(s.path)
	if err != nil {
		if errors.Is(err, media.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, s.path)
		}
		return fmt.Errorf("record: read %s: %w", s.path, err)
	}
	return frame.Decode(raw, s.version, s.data)
}

// MarkChanged flags the in-memory value as ahead of the media and stamps
// the change time. With debouncing disabled it writes immediately; the
// outcome then surfaces through the logger and a later Flush.
func (s *Store[T]) MarkChanged() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirty = true
	s.lastChange = s.now()
	if !s.debounce {
		if err := s.saveLocked(); err != nil {
			s.logger.Warn("record: immediate save failed", "path", s.path, "err", err)
		}
	}
}

// Tick drives the debounce timer; the host calls it periodically from its
// main loop. Once the record has been dirty and quiet for the debounce
// interval, Tick attempts the write. A failed write stays dirty, so the
// next Tick retries.
func (s *Store[T]) Tick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.debounce || !s.dirty {
		return
	}
	if s.now().Sub(s.lastChange) < s.interval {
		return
	}
	if err := s.saveLocked(); err != nil {
		s.logger.Warn("record: debounced save failed", "path", s.path, "err", err)
	}
}

// Flush writes the record out now if it is dirty, ignoring the debounce
// timer. The gate and space checks still apply. A clean store is a no-op.
func (s *Store[T]) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirty {
		return nil
	}
	return s.saveLocked()
}

// Save writes the current in-memory value unconditionally, dirty or not.
func (s *Store[T]) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

// saveLocked is the single write path. Preconditions are checked in
// order, each with a distinct error: gate, mount state, free space. Only a
// byte-exact write confirmation clears the dirty flag. The caller holds
// s.mu for the whole check-then-write sequence so a gate set concurrently
// cannot interleave with an in-flight write decision.
func (s *Store[T]) saveLocked() error {
	if s.gate.Blocked() {
		return fmt.Errorf("%w: %s", ErrBlocked, s.path)
	}
	if !s.gw.Mounted() {
		return fmt.Errorf("%w: %s", ErrNotMounted, s.path)
	}
	if free := s.gw.FreeBytes(); free < int64(s.framedSize)+SpaceMargin {
		return fmt.Errorf("%w: %s: free %d, need %d", ErrNoSpace, s.path, free, int64(s.framedSize)+SpaceMargin)
	}
	framed, err := frame.Encode(s.data, s.version)
	if err != nil {
		return err
	}
	n, err := s.gw.WriteBlob(s.path, framed)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrWriteFailed, s.path, err)
	}
	if n != len(framed) {
		return fmt.Errorf("%w: %s: wrote %d of %d bytes", ErrWriteFailed, s.path, n, len(framed))
	}
	s.dirty = false
	s.logger.Debug("record: saved", "path", s.path, "bytes", n)
	return nil
}

// Dirty reports whether the in-memory value is ahead of the media.
func (s *Store[T]) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// Path returns the store's media path.
func (s *Store[T]) Path() string {
	return s.path
}

// DebounceInterval returns the configured quiet window.
func (s *Store[T]) DebounceInterval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

// SetDebounce enables or disables write coalescing.
func (s *Store[T]) SetDebounce(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.debounce = enabled
}

// Exists reports whether a record is stored at the store's path.
func (s *Store[T]) Exists() bool {
	_, err := s.gw.StatBlob(s.path)
	return err == nil
}

// Remove deletes the stored record and clears the dirty flag. The
// in-memory value is untouched.
func (s *Store[T]) Remove() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.gw.DeleteBlob(s.path); err != nil {
		if errors.Is(err, media.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, s.path)
		}
		return fmt.Errorf("record: remove %s: %w", s.path, err)
	}
	s.dirty = false
	return nil
}
