package media

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
)

// Mem is an in-memory [Gateway] for tests and RAM-only hosts.
//
// Beyond the Gateway contract it offers fault injection: forced free-space
// readings, unmount simulation, write errors and short writes, plus a
// counter of write attempts. The zero value is not usable; call [NewMem].
type Mem struct {
	mu         sync.Mutex
	blobs      map[string][]byte
	mounted    bool
	capacity   int64
	forcedFree int64 // -1 when accounting is in effect
	writeErr   error
	shortWrite bool
	writes     int
}

// NewMem returns a mounted, unbounded in-memory gateway.
func NewMem() *Mem {
	return &Mem{
		blobs:      make(map[string][]byte),
		mounted:    true,
		forcedFree: -1,
	}
}

// SetMounted simulates media (un)availability.
func (m *Mem) SetMounted(mounted bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mounted = mounted
}

// SetCapacity bounds the media size; zero restores unbounded.
func (m *Mem) SetCapacity(capacity int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.capacity = capacity
}

// SetFreeBytes forces FreeBytes to return free regardless of content.
// A negative value restores normal accounting.
func (m *Mem) SetFreeBytes(free int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forcedFree = free
}

// SetWriteError makes every subsequent WriteBlob fail with err before
// touching stored content. Pass nil to clear.
func (m *Mem) SetWriteError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeErr = err
}

// SetShortWrite makes WriteBlob store and report only half of each
// payload, simulating an interrupted transfer.
func (m *Mem) SetShortWrite(short bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shortWrite = short
}

// Writes returns the number of WriteBlob calls so far, including failed
// and short ones.
func (m *Mem) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// ResetWrites zeroes the write counter, typically after test seeding.
func (m *Mem) ResetWrites() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes = 0
}

// Mounted implements [Gateway].
func (m *Mem) Mounted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mounted
}

// FreeBytes implements [Gateway].
func (m *Mem) FreeBytes() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.forcedFree >= 0 {
		return m.forcedFree
	}
	if m.capacity <= 0 {
		return math.MaxInt64
	}
	var used int64
	for _, b := range m.blobs {
		used += int64(len(b))
	}
	if used >= m.capacity {
		return 0
	}
	return m.capacity - used
}

// ReadBlob implements [Gateway].
func (m *Mem) ReadBlob(id string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.blobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// WriteBlob implements [Gateway].
func (m *Mem) WriteBlob(id string, data []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	if m.writeErr != nil {
		return 0, m.writeErr
	}
	n := len(data)
	if m.shortWrite {
		n = len(data) / 2
	}
	stored := make([]byte, n)
	copy(stored, data[:n])
	m.blobs[id] = stored
	return n, nil
}

// StatBlob implements [Gateway].
func (m *Mem) StatBlob(id string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.blobs[id]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return int64(len(data)), nil
}

// DeleteBlob implements [Gateway].
func (m *Mem) DeleteBlob(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.blobs[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(m.blobs, id)
	return nil
}

// ListBlobs implements [Gateway].
func (m *Mem) ListBlobs(prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for id := range m.blobs {
		if strings.HasPrefix(id, prefix) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// EraseAll implements [Gateway].
func (m *Mem) EraseAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs = make(map[string][]byte)
	return nil
}
