// Package disk implements backend.Enumerator against a local directory tree
// laid out as basedir/prefix/storage_index/shnum, the same layout this
// codebase's other local storage backends use for content-addressed blobs.
package disk

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/marmos91/sharelease/internal/logger"
	"github.com/marmos91/sharelease/pkg/backend"
)

// Enumerator is a backend.Enumerator backed by a local directory tree.
type Enumerator struct {
	basedir string
}

// New returns an Enumerator rooted at basedir. basedir must already exist.
func New(basedir string) *Enumerator {
	return &Enumerator{basedir: basedir}
}

func (e *Enumerator) bucketDir(prefix, storageIndexB32 string) string {
	return filepath.Join(e.basedir, prefix, storageIndexB32)
}

// ListPrefix returns the storage indices with a bucket directory under prefix.
func (e *Enumerator) ListPrefix(ctx context.Context, prefix string) ([]string, error) {
	dir := filepath.Join(e.basedir, prefix)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("disk backend: list prefix %q: %w", prefix, err)
	}

	indices := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			indices = append(indices, entry.Name())
		}
	}
	return indices, nil
}

// ListBucket returns the share numbers present under a storage index's bucket
// directory. Non-numeric filenames are skipped rather than failing the scan.
func (e *Enumerator) ListBucket(ctx context.Context, prefix, storageIndexB32 string) ([]int, error) {
	dir := e.bucketDir(prefix, storageIndexB32)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("disk backend: list bucket %q: %w", dir, err)
	}

	shnums := make([]int, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		shnum, err := strconv.Atoi(entry.Name())
		if err != nil {
			logger.Warn("disk backend: skipping non-numeric share filename", "path", filepath.Join(dir, entry.Name()))
			continue
		}
		shnums = append(shnums, shnum)
	}
	return shnums, nil
}

// UsedSpace stats the share file and returns its size in bytes.
func (e *Enumerator) UsedSpace(ctx context.Context, prefix, storageIndexB32 string, shnum int) (int64, error) {
	path := filepath.Join(e.bucketDir(prefix, storageIndexB32), strconv.Itoa(shnum))
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, backend.ErrNotFound
		}
		return 0, fmt.Errorf("disk backend: stat %q: %w", path, err)
	}
	return info.Size(), nil
}

// Delete unlinks the share file and prunes now-empty parent directories.
func (e *Enumerator) Delete(ctx context.Context, prefix, storageIndexB32 string, shnum int) error {
	bucketDir := e.bucketDir(prefix, storageIndexB32)
	path := filepath.Join(bucketDir, strconv.Itoa(shnum))

	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("disk backend: delete %q: %w", path, err)
	}

	// Best-effort prune: ignore errors, a non-empty directory simply stays.
	_ = os.Remove(bucketDir)
	_ = os.Remove(filepath.Join(e.basedir, prefix))

	return nil
}
