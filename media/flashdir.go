package media

import (
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strings"
)

// MountOptions configures [Mount].
type MountOptions struct {
	// FormatOnFailure recreates the directory from scratch when it cannot
	// be opened as-is (for example the path exists but is a regular file),
	// mirroring a mount-or-format bootstrap. Existing content is lost.
	FormatOnFailure bool

	// Capacity is the usable size of the media in bytes, standing in for
	// the flash partition size. Zero means unbounded.
	Capacity int64
}

// FlashDir is a [Gateway] backed by a directory, one file per blob.
//
// Free space is accounted against the configured capacity using the sum of
// stored blob sizes, so hosts can emulate a small flash partition on a
// large disk. Writes are plain in-place truncate-and-write; see the
// package comment for why.
type FlashDir struct {
	dir      string
	capacity int64
}

// Mount opens dir as media, creating it if absent.
func Mount(dir string, opts MountOptions) (*FlashDir, error) {
	if err := ensureDir(dir); err != nil {
		if !opts.FormatOnFailure {
			return nil, fmt.Errorf("media: mount %s: %w", dir, err)
		}
		if err := os.RemoveAll(dir); err != nil {
			return nil, fmt.Errorf("media: format %s: %w", dir, err)
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("media: format %s: %w", dir, err)
		}
	}
	return &FlashDir{dir: dir, capacity: opts.Capacity}, nil
}

// Dir returns the backing directory.
func (d *FlashDir) Dir() string {
	return d.dir
}

// Mounted implements [Gateway]. A FlashDir is mounted for its lifetime;
// mount failures surface as errors from [Mount] instead.
func (d *FlashDir) Mounted() bool {
	return true
}

// FreeBytes implements [Gateway].
func (d *FlashDir) FreeBytes() int64 {
	if d.capacity <= 0 {
		return math.MaxInt64
	}
	used, err := d.usedBytes()
	if err != nil || used >= d.capacity {
		return 0
	}
	return d.capacity - used
}

// Stats returns usage accounting for the media.
func (d *FlashDir) Stats() Stats {
	used, _ := d.usedBytes()
	s := Stats{TotalBytes: d.capacity, UsedBytes: used}
	if d.capacity > 0 {
		if used < d.capacity {
			s.FreeBytes = d.capacity - used
		}
		s.UsedPercent = 100 * float64(used) / float64(d.capacity)
	} else {
		s.FreeBytes = math.MaxInt64
	}
	return s
}

// ReadBlob implements [Gateway].
func (d *FlashDir) ReadBlob(id string) ([]byte, error) {
	path, err := d.pathFor(id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("media: read %s: %w", id, err)
	}
	return data, nil
}

// WriteBlob implements [Gateway]. The blob is truncated and rewritten in
// place; the bytes written are returned even on error so callers can
// detect short writes.
func (d *FlashDir) WriteBlob(id string, data []byte) (int, error) {
	path, err := d.pathFor(id)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, fmt.Errorf("media: write %s: %w", id, err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, fmt.Errorf("media: write %s: %w", id, err)
	}
	n, err := f.Write(data)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, fmt.Errorf("media: write %s: %w", id, err)
	}
	return n, nil
}

// StatBlob implements [Gateway].
func (d *FlashDir) StatBlob(id string) (int64, error) {
	path, err := d.pathFor(id)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return 0, fmt.Errorf("media: stat %s: %w", id, err)
	}
	return info.Size(), nil
}

// DeleteBlob implements [Gateway].
func (d *FlashDir) DeleteBlob(id string) error {
	path, err := d.pathFor(id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return fmt.Errorf("media: delete %s: %w", id, err)
	}
	// Drop namespace directories left empty, back up to the root.
	dir := filepath.Dir(path)
	for dir != d.dir {
		if err := os.Remove(dir); err != nil {
			break
		}
		dir = filepath.Dir(dir)
	}
	return nil
}

// ListBlobs implements [Gateway].
func (d *FlashDir) ListBlobs(prefix string) ([]string, error) {
	var ids []string
	err := filepath.WalkDir(d.dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == d.dir {
				return fs.SkipAll
			}
			return err
		}
		if entry.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(d.dir, path)
		if err != nil {
			return err
		}
		if id := filepath.ToSlash(rel); strings.HasPrefix(id, prefix) {
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("media: list %q: %w", prefix, err)
	}
	return ids, nil
}

// EraseAll implements [Gateway]. It is equivalent to reformatting.
func (d *FlashDir) EraseAll() error {
	if err := os.RemoveAll(d.dir); err != nil {
		return fmt.Errorf("media: erase: %w", err)
	}
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return fmt.Errorf("media: erase: %w", err)
	}
	return nil
}

// Backup copies a blob to backupID, replacing any previous backup. An
// empty backupID appends ".bak" to the source id.
func (d *FlashDir) Backup(id, backupID string) error {
	if backupID == "" {
		backupID = id + ".bak"
	}
	srcPath, err := d.pathFor(id)
	if err != nil {
		return err
	}
	dstPath, err := d.pathFor(backupID)
	if err != nil {
		return err
	}
	src, err := os.Open(srcPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return fmt.Errorf("media: backup %s: %w", id, err)
	}
	defer func() {
		_ = src.Close()
	}()
	if err := os.MkdirAll(filepath.Dir(dstPath), 0o755); err != nil {
		return fmt.Errorf("media: backup %s: %w", id, err)
	}
	dst, err := os.Create(dstPath)
	if err != nil {
		return fmt.Errorf("media: backup %s: %w", id, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		_ = os.Remove(dstPath)
		return fmt.Errorf("media: backup %s: %w", id, err)
	}
	if err := dst.Close(); err != nil {
		return fmt.Errorf("media: backup %s: %w", id, err)
	}
	return nil
}

func (d *FlashDir) usedBytes() (int64, error) {
	var used int64
	err := filepath.WalkDir(d.dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == d.dir {
				return fs.SkipAll
			}
			return err
		}
		if entry.IsDir() {
			return nil
		}
		info, err := entry.Info()
		if err != nil {
			return err
		}
		used += info.Size()
		return nil
	})
	return used, err
}

func (d *FlashDir) pathFor(id string) (string, error) {
	if err := validateID(id); err != nil {
		return "", err
	}
	return filepath.Join(d.dir, filepath.FromSlash(id)), nil
}

func ensureDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return os.MkdirAll(dir, 0o755)
		}
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("not a directory")
	}
	return nil
}

// validateID rejects ids that would escape the media root.
func validateID(id string) error {
	if id == "" || strings.HasPrefix(id, "/") || strings.Contains(id, "\\") {
		return fmt.Errorf("media: invalid blob id %q", id)
	}
	for _, part := range strings.Split(id, "/") {
		if part == "" || part == "." || part == ".." {
			return fmt.Errorf("media: invalid blob id %q", id)
		}
	}
	return nil
}
