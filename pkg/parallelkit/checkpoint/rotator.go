package checkpoint

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

const (
	currentSuffix = "_checkpoint"
	versionSuffix = "_checkpoint_v"
)

var versionPattern = regexp.MustCompile(`^(.+)_checkpoint_v([0-9]+)$`)

// Rotator manages the chain current, v1 .. vK of one logical name inside
// one directory. It does no locking; Manager serializes access.
//
// A failure part way through Rotate can leave the chain with a gap or a
// duplicate. Nothing is rolled back.
type Rotator struct {
	dir string
	ext string
}

// NewRotator creates a rotator for files with extension ext in dir.
func NewRotator(dir, ext string) *Rotator {
	return &Rotator{dir: dir, ext: ext}
}

// PathFor returns the file for version of name. Version 0 is the current
// file; version n >= 1 is the n-th most recent predecessor.
func (r *Rotator) PathFor(name string, version int) string {
	if version <= 0 {
		return filepath.Join(r.dir, name+currentSuffix+r.ext)
	}
	return filepath.Join(r.dir, fmt.Sprintf("%s%s%d%s", name, versionSuffix, version, r.ext))
}

// Rotate frees the current slot. It deletes versions from retention upward
// until the first missing one, shifts v(retention-1) .. v1 up by one
// (highest first), then moves current to v1.
func (r *Rotator) Rotate(name string, retention int) error {
	for v := retention; ; v++ {
		path := r.PathFor(name, v)
		ok, err := exists(path)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("prune %s: %w", filepath.Base(path), err)
		}
	}

	for v := retention - 1; v >= 1; v-- {
		if err := r.shift(name, v, v+1); err != nil {
			return err
		}
	}

	return r.shift(name, 0, 1)
}

// Remove unlinks the current file and v1 .. v(retention) and reports how
// many files existed.
func (r *Rotator) Remove(name string, retention int) (int, error) {
	removed := 0
	for v := 0; v <= retention; v++ {
		err := os.Remove(r.PathFor(name, v))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return removed, fmt.Errorf("remove %s: %w", filepath.Base(r.PathFor(name, v)), err)
		}
		removed++
	}
	return removed, nil
}

// Versions returns the existing versions of name in ascending order,
// 0 (current) first. Gaps are skipped rather than ending the scan.
func (r *Rotator) Versions(name string, retention int) ([]int, error) {
	var versions []int
	for v := 0; v <= retention; v++ {
		ok, err := exists(r.PathFor(name, v))
		if err != nil {
			return nil, err
		}
		if ok {
			versions = append(versions, v)
		}
	}
	return versions, nil
}

// Names returns the distinct logical names that have at least one file in
// the directory, sorted.
func (r *Rotator) Names() ([]string, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}

	seen := make(map[string]struct{})
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if name, ok := r.logicalName(entry.Name()); ok {
			seen[name] = struct{}{}
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// logicalName strips the extension and the current/version suffix.
func (r *Rotator) logicalName(filename string) (string, bool) {
	base, ok := strings.CutSuffix(filename, r.ext)
	if !ok {
		return "", false
	}
	if m := versionPattern.FindStringSubmatch(base); m != nil {
		return m[1], true
	}
	if name, ok := strings.CutSuffix(base, currentSuffix); ok && name != "" {
		return name, true
	}
	return "", false
}

func (r *Rotator) shift(name string, from, to int) error {
	src := r.PathFor(name, from)
	ok, err := exists(src)
	if err != nil || !ok {
		return err
	}
	if err := os.Rename(src, r.PathFor(name, to)); err != nil {
		return fmt.Errorf("rotate %s: %w", filepath.Base(src), err)
	}
	return nil
}

func exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("stat %s: %w", filepath.Base(path), err)
}
