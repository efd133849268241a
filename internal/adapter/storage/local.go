package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Workspace is the dump directory on the mounted backup volume.
type Workspace struct {
	basePath string
}

// NewWorkspace places the dump directory dumpDir below mountPath. dumpDir
// must be a plain relative path so Clean can never reach outside the mount.
func NewWorkspace(mountPath, dumpDir string) (*Workspace, error) {
	clean := filepath.Clean(dumpDir)
	if dumpDir == "" || clean == "." || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
		return nil, fmt.Errorf("dump directory %q must be a relative path inside the mount", dumpDir)
	}
	return &Workspace{basePath: filepath.Join(mountPath, clean)}, nil
}

// Clean removes everything left by previous runs and recreates the empty
// dump directory.
func (w *Workspace) Clean() error {
	if err := os.RemoveAll(w.basePath); err != nil {
		return fmt.Errorf("failed to remove previous dump: %w", err)
	}
	if err := os.MkdirAll(w.basePath, 0750); err != nil {
		return fmt.Errorf("failed to create dump directory: %w", err)
	}
	return nil
}

func (w *Workspace) ArchiveDir(archive string) string {
	return filepath.Join(w.basePath, archive)
}

func (w *Workspace) Path() string {
	return w.basePath
}

// Size returns the total size in bytes of the files below dir.
func (w *Workspace) Size(dir string) (int64, error) {
	var total int64
	err := filepath.WalkDir(dir, func(_ string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to measure %s: %w", dir, err)
	}
	return total, nil
}
