// ABOUTME: File-system sink that writes an exported configuration under a base directory.
// ABOUTME: The cluster's export path setting selects a subdirectory; escaping the base directory is refused.
package nodeconfig

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/2389-research/clusterdesigner/internal/atomicfile"
	"github.com/2389-research/clusterdesigner/topology"
)

// Exporter delivers a built document somewhere and reports a status message.
type Exporter interface {
	Export(ctx context.Context, doc *Document, s topology.Settings) (string, error)
}

// FileSink writes documents to disk.
type FileSink struct {
	Dir    string
	Format Format
}

// Path returns where a document for these settings will be written.
func (f *FileSink) Path(s topology.Settings) (string, error) {
	dir := f.Dir
	if sub := strings.TrimSpace(s.ExportPath); sub != "" {
		sub = filepath.Clean(sub)
		if !filepath.IsLocal(sub) {
			return "", fmt.Errorf("export path %q must stay inside the export directory", s.ExportPath)
		}
		dir = filepath.Join(dir, sub)
	}
	return filepath.Join(dir, FileName(s, f.Format)), nil
}

// Export encodes doc and writes it atomically.
func (f *FileSink) Export(ctx context.Context, doc *Document, s topology.Settings) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	path, err := f.Path(s)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := Write(&buf, doc, f.Format); err != nil {
		return "", err
	}
	if err := atomicfile.Write(path, buf.Bytes()); err != nil {
		return "", fmt.Errorf("export %s: %w", path, err)
	}
	return fmt.Sprintf("exported successfully to %s", path), nil
}
