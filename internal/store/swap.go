package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/google/uuid"
)

const (
	stagingInfix = "staging-"
	retiredInfix = "old-"
)

// SiblingPrefix returns the path prefix shared by the staging and retired
// directories created next to target: "<parent>/.<base>.".
func SiblingPrefix(target string) string {
	target = filepath.Clean(target)
	return filepath.Join(filepath.Dir(target), "."+filepath.Base(target)) + "."
}

// StagingDir returns a fresh sibling directory name for building a
// replacement of target.
func StagingDir(target string) string {
	return siblingName(target, stagingInfix)
}

func siblingName(target, infix string) string {
	return SiblingPrefix(target) + infix + uuid.NewString()
}

// Swap replaces target with staging. An existing target is first renamed
// aside, then staging is renamed into place, then the old contents are
// deleted. If the second rename fails the old target is restored.
func Swap(staging, target string) error {
	target = filepath.Clean(target)

	var retired string
	switch _, err := os.Lstat(target); {
	case err == nil:
		retired = siblingName(target, retiredInfix)
		if err := os.Rename(target, retired); err != nil {
			return fmt.Errorf("move old index aside: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return fmt.Errorf("stat index directory: %w", err)
	}

	if err := os.Rename(staging, target); err != nil {
		if retired != "" {
			if restoreErr := os.Rename(retired, target); restoreErr != nil {
				return errors.Join(fmt.Errorf("install new index: %w", err),
					fmt.Errorf("restore old index from %s: %w", retired, restoreErr))
			}
		}
		return fmt.Errorf("install new index: %w", err)
	}

	if err := syncDir(filepath.Dir(target)); err != nil {
		return err
	}

	if retired != "" {
		if err := os.RemoveAll(retired); err != nil {
			return fmt.Errorf("remove old index: %w", err)
		}
	}
	return nil
}

// CleanStale removes staging and retired siblings of target left behind by
// interrupted runs. Callers must hold the DirLock.
func CleanStale(target string) ([]string, error) {
	target = filepath.Clean(target)
	parent := filepath.Dir(target)
	prefix := filepath.Base(SiblingPrefix(target))

	entries, err := os.ReadDir(parent)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", parent, err)
	}

	var removed []string
	for _, e := range entries {
		name := e.Name()
		rest, ok := strings.CutPrefix(name, prefix)
		if !ok || !(strings.HasPrefix(rest, stagingInfix) || strings.HasPrefix(rest, retiredInfix)) {
			continue
		}
		path := filepath.Join(parent, name)
		if err := os.RemoveAll(path); err != nil {
			return removed, fmt.Errorf("remove %s: %w", path, err)
		}
		removed = append(removed, path)
	}
	return removed, nil
}

// syncDir fsyncs a directory so renames inside it are durable.
func syncDir(dir string) error {
	// Windows cannot fsync a directory handle.
	if runtime.GOOS == "windows" {
		return nil
	}
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("open %s: %w", dir, err)
	}
	defer func() { _ = d.Close() }()

	if err := d.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", dir, err)
	}
	return nil
}
