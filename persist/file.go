// ABOUTME: File-system persistence backend storing one JSON document per saved revision.
// ABOUTME: Revisions are named by ULID so the latest sorts last; writes are atomic.
package persist

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/2389-research/clusterdesigner/internal/atomicfile"
)

const snapshotExt = ".json"

// FileStore keeps snapshots under Dir/<name>/<revision>.json.
type FileStore struct {
	dir string
}

// NewFileStore returns a store rooted at dir. The directory is created on
// first save.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

func (f *FileStore) nameDir(name string) (string, error) {
	clean := filepath.Clean(strings.TrimSpace(name))
	if clean == "." || !filepath.IsLocal(clean) || strings.ContainsAny(clean, `/\`) {
		return "", fmt.Errorf("invalid snapshot name %q", name)
	}
	return filepath.Join(f.dir, clean), nil
}

// Save writes a new revision.
func (f *FileStore) Save(ctx context.Context, name string, snap *Snapshot) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	dir, err := f.nameDir(name)
	if err != nil {
		return "", err
	}
	data, err := Marshal(snap)
	if err != nil {
		return "", err
	}
	rev := NewRevision()
	if err := atomicfile.Write(filepath.Join(dir, rev+snapshotExt), data); err != nil {
		return "", fmt.Errorf("save snapshot %s: %w", name, err)
	}
	return fmt.Sprintf("saved %s revision %s", name, rev), nil
}

// Load reads the latest revision.
func (f *FileStore) Load(ctx context.Context, name string) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	revs, err := f.Revisions(name)
	if err != nil {
		return nil, err
	}
	if len(revs) == 0 {
		return nil, ErrNothingToLoad
	}
	dir, _ := f.nameDir(name)
	data, err := os.ReadFile(filepath.Join(dir, revs[len(revs)-1]+snapshotExt))
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w", name, err)
	}
	return Unmarshal(data)
}

// Revisions lists saved revisions of name, oldest first.
func (f *FileStore) Revisions(name string) ([]string, error) {
	dir, err := f.nameDir(name)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot dir: %w", err)
	}
	var revs []string
	for _, e := range entries {
		n := e.Name()
		if e.IsDir() || strings.HasPrefix(n, ".") || !strings.HasSuffix(n, snapshotExt) {
			continue
		}
		revs = append(revs, strings.TrimSuffix(n, snapshotExt))
	}
	sort.Strings(revs)
	return revs, nil
}
