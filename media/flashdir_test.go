package media

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func TestMountCreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "flash")
	d, err := Mount(dir, MountOptions{})
	if err != nil {
		t.Fatalf("Mount failed: %v", err)
	}
	if !d.Mounted() {
		t.Fatal("Mounted = false")
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		t.Fatalf("backing directory missing: %v", err)
	}
}

func TestMountFormatOnFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flash")
	if err := os.WriteFile(path, []byte("junk"), 0o644); err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	if _, err := Mount(path, MountOptions{}); err == nil {
		t.Fatal("Mount succeeded over a regular file")
	}

	d, err := Mount(path, MountOptions{FormatOnFailure: true})
	if err != nil {
		t.Fatalf("Mount with FormatOnFailure failed: %v", err)
	}
	ids, err := d.ListBlobs("")
	if err != nil {
		t.Fatalf("ListBlobs failed: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("formatted media not empty: %v", ids)
	}
}

func TestBlobLifecycle(t *testing.T) {
	d, err := Mount(t.TempDir(), MountOptions{})
	if err != nil {
		t.Fatalf("Mount failed: %v", err)
	}

	content := []byte("framed bytes")
	n, err := d.WriteBlob("settings/wifi", content)
	if err != nil {
		t.Fatalf("WriteBlob failed: %v", err)
	}
	if n != len(content) {
		t.Fatalf("WriteBlob wrote %d, want %d", n, len(content))
	}

	got, err := d.ReadBlob("settings/wifi")
	if err != nil {
		t.Fatalf("ReadBlob failed: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Fatalf("ReadBlob = %q, want %q", got, content)
	}

	size, err := d.StatBlob("settings/wifi")
	if err != nil || size != int64(len(content)) {
		t.Fatalf("StatBlob = %d, %v; want %d, nil", size, err, len(content))
	}

	if err := d.DeleteBlob("settings/wifi"); err != nil {
		t.Fatalf("DeleteBlob failed: %v", err)
	}
	if _, err := d.ReadBlob("settings/wifi"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("ReadBlob after delete = %v, want ErrNotFound", err)
	}
	if err := d.DeleteBlob("settings/wifi"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("DeleteBlob twice = %v, want ErrNotFound", err)
	}
	// The emptied namespace directory is pruned.
	if _, err := os.Stat(filepath.Join(d.Dir(), "settings")); !os.IsNotExist(err) {
		t.Fatalf("namespace directory not pruned: %v", err)
	}
}

func TestInvalidBlobIDs(t *testing.T) {
	d, err := Mount(t.TempDir(), MountOptions{})
	if err != nil {
		t.Fatalf("Mount failed: %v", err)
	}
	for _, id := range []string{"", "/abs", "a//b", "../escape", "ns/..", ".", "a\\b"} {
		if _, err := d.WriteBlob(id, []byte("x")); err == nil {
			t.Errorf("WriteBlob accepted id %q", id)
		}
		if _, err := d.ReadBlob(id); err == nil {
			t.Errorf("ReadBlob accepted id %q", id)
		}
	}
}

func TestListBlobs(t *testing.T) {
	d, err := Mount(t.TempDir(), MountOptions{})
	if err != nil {
		t.Fatalf("Mount failed: %v", err)
	}
	for _, id := range []string{"settings/wifi", "settings/mqtt", "state/telemetry"} {
		if _, err := d.WriteBlob(id, []byte("x")); err != nil {
			t.Fatalf("WriteBlob %s failed: %v", id, err)
		}
	}

	ids, err := d.ListBlobs("settings/")
	if err != nil {
		t.Fatalf("ListBlobs failed: %v", err)
	}
	slices.Sort(ids)
	want := []string{"settings/mqtt", "settings/wifi"}
	if !slices.Equal(ids, want) {
		t.Fatalf("ListBlobs = %v, want %v", ids, want)
	}

	all, err := d.ListBlobs("")
	if err != nil {
		t.Fatalf("ListBlobs failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("ListBlobs(\"\") = %v, want 3 ids", all)
	}
}

func TestCapacityAccounting(t *testing.T) {
	d, err := Mount(t.TempDir(), MountOptions{Capacity: 100})
	if err != nil {
		t.Fatalf("Mount failed: %v", err)
	}
	if free := d.FreeBytes(); free != 100 {
		t.Fatalf("FreeBytes = %d, want 100", free)
	}
	if _, err := d.WriteBlob("a", make([]byte, 60)); err != nil {
		t.Fatalf("WriteBlob failed: %v", err)
	}
	if free := d.FreeBytes(); free != 40 {
		t.Fatalf("FreeBytes = %d, want 40", free)
	}

	s := d.Stats()
	if s.TotalBytes != 100 || s.UsedBytes != 60 || s.FreeBytes != 40 {
		t.Fatalf("Stats = %+v", s)
	}
	if s.UsedPercent != 60 {
		t.Fatalf("UsedPercent = %v, want 60", s.UsedPercent)
	}

	// Overfilled media reports zero free, never negative.
	if _, err := d.WriteBlob("b", make([]byte, 60)); err != nil {
		t.Fatalf("WriteBlob failed: %v", err)
	}
	if free := d.FreeBytes(); free != 0 {
		t.Fatalf("FreeBytes = %d, want 0", free)
	}
}

func TestEraseAll(t *testing.T) {
	d, err := Mount(t.TempDir(), MountOptions{})
	if err != nil {
		t.Fatalf("Mount failed: %v", err)
	}
	if _, err := d.WriteBlob("settings/wifi", []byte("x")); err != nil {
		t.Fatalf("WriteBlob failed: %v", err)
	}
	if err := d.EraseAll(); err != nil {
		t.Fatalf("EraseAll failed: %v", err)
	}
	ids, err := d.ListBlobs("")
	if err != nil {
		t.Fatalf("ListBlobs failed: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("media not empty after erase: %v", ids)
	}
	// Still usable after erase.
	if _, err := d.WriteBlob("settings/wifi", []byte("y")); err != nil {
		t.Fatalf("WriteBlob after erase failed: %v", err)
	}
}

func TestBackup(t *testing.T) {
	d, err := Mount(t.TempDir(), MountOptions{})
	if err != nil {
		t.Fatalf("Mount failed: %v", err)
	}
	content := []byte("precious")
	if _, err := d.WriteBlob("state/cfg", content); err != nil {
		t.Fatalf("WriteBlob failed: %v", err)
	}

	t.Run("defaultName", func(t *testing.T) {
		if err := d.Backup("state/cfg", ""); err != nil {
			t.Fatalf("Backup failed: %v", err)
		}
		got, err := d.ReadBlob("state/cfg.bak")
		if err != nil || !bytes.Equal(got, content) {
			t.Fatalf("backup content = %q, %v; want %q", got, err, content)
		}
	})

	t.Run("explicitName", func(t *testing.T) {
		if err := d.Backup("state/cfg", "backup/cfg"); err != nil {
			t.Fatalf("Backup failed: %v", err)
		}
		got, err := d.ReadBlob("backup/cfg")
		if err != nil || !bytes.Equal(got, content) {
			t.Fatalf("backup content = %q, %v; want %q", got, err, content)
		}
	})

	t.Run("replacesPrevious", func(t *testing.T) {
		if _, err := d.WriteBlob("state/cfg", []byte("newer")); err != nil {
			t.Fatalf("WriteBlob failed: %v", err)
		}
		if err := d.Backup("state/cfg", "backup/cfg"); err != nil {
			t.Fatalf("Backup failed: %v", err)
		}
		got, err := d.ReadBlob("backup/cfg")
		if err != nil || !bytes.Equal(got, []byte("newer")) {
			t.Fatalf("backup content = %q, %v; want %q", got, err, "newer")
		}
	})

	t.Run("missingSource", func(t *testing.T) {
		if err := d.Backup("state/absent", ""); !errors.Is(err, ErrNotFound) {
			t.Fatalf("Backup = %v, want ErrNotFound", err)
		}
	})
}
