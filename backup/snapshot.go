package backup

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/kjk/phonebook/log"
)

const snapshotPrefix = "phone-book-"

// Source is what we take snapshots of, implemented by *rowstore.Store
type Source interface {
	Snapshot(w io.Writer) (int64, error)
}

// SnapshotName returns a file name for a snapshot taken at t
// e.g. phone-book-2024-03-07_101500.csv.zst
func SnapshotName(t time.Time, ext string) string {
	return snapshotPrefix + t.UTC().Format("2006-01-02_150405") + ".csv" + ext
}

// Snapshot writes a consistent copy of src to dstPath, compressed
// according to dstPath extension (.zst, .br, .gz or none).
// dstPath is only created if the whole snapshot was written.
func Snapshot(src Source, dstPath string) (int64, error) {
	ext := compressionExt(dstPath)
	dir := filepath.Dir(dstPath)
	tmp, err := os.CreateTemp(dir, filepath.Base(dstPath)+".tmp-*")
	if err != nil {
		return 0, err
	}
	tmpPath := tmp.Name()
	failed := func(err error) (int64, error) {
		tmp.Close()
		os.Remove(tmpPath)
		log.Errorf("backup: Snapshot('%s') failed with '%s'\n", dstPath, err)
		return 0, err
	}

	w, err := newCompressingWriter(tmp, ext)
	if err != nil {
		return failed(err)
	}
	n, err := src.Snapshot(w)
	if err != nil {
		return failed(err)
	}
	if err = w.Close(); err != nil {
		return failed(err)
	}
	if err = tmp.Sync(); err != nil {
		return failed(err)
	}
	if err = tmp.Close(); err != nil {
		return failed(err)
	}
	if err = os.Rename(tmpPath, dstPath); err != nil {
		return failed(err)
	}
	log.Verbosef("backup: wrote '%s' (%d bytes uncompressed)\n", dstPath, n)
	return n, nil
}

// ListSnapshots returns paths of snapshots in dir, oldest first
func ListSnapshots(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var res []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, snapshotPrefix) || strings.Contains(name, ".tmp-") {
			continue
		}
		res = append(res, filepath.Join(dir, name))
	}
	// names sort by time
	sort.Strings(res)
	return res, nil
}

// pruneSnapshots deletes all but the newest keep snapshots in dir.
// keep <= 0 means keep everything.
func pruneSnapshots(dir string, keep int) error {
	if keep <= 0 {
		return nil
	}
	paths, err := ListSnapshots(dir)
	if err != nil {
		return err
	}
	if len(paths) <= keep {
		return nil
	}
	for _, path := range paths[:len(paths)-keep] {
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("failed to delete old snapshot: %w", err)
		}
		log.Verbosef("backup: deleted old snapshot '%s'\n", path)
	}
	return nil
}
