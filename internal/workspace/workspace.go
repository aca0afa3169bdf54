// Package workspace finds the publishable packages in a monorepo.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/git-pkgs/pubcheck/internal/core"
	"github.com/git-pkgs/pubcheck/internal/manifest"
)

// DefaultPatterns are the globs searched when none are configured.
var DefaultPatterns = []string{"packages/*"}

// ErrPrivate is returned by FromPaths for packages marked private.
var ErrPrivate = errors.New("package is private")

// Discover expands patterns relative to root and returns one target per
// directory holding a named, versioned, non-private package.json, sorted by
// name. When no pattern matches a package, a publishable manifest at root
// itself is returned so single-package repositories work unchanged.
func Discover(root string, patterns []string) ([]core.PackageTarget, error) {
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}

	seen := make(map[string]bool)
	var targets []core.PackageTarget
	for _, pattern := range patterns {
		matches, err := filepath.Glob(filepath.Join(root, pattern))
		if err != nil {
			return nil, fmt.Errorf("bad workspace pattern %q: %w", pattern, err)
		}
		for _, dir := range matches {
			if seen[dir] {
				continue
			}
			seen[dir] = true

			target, ok, err := load(dir)
			if err != nil {
				return nil, err
			}
			if ok {
				targets = append(targets, target)
			}
		}
	}

	if len(targets) == 0 {
		target, ok, err := load(root)
		if err != nil {
			return nil, err
		}
		if ok {
			targets = append(targets, target)
		}
	}

	sort.SliceStable(targets, func(i, j int) bool {
		if targets[i].Name != targets[j].Name {
			return targets[i].Name < targets[j].Name
		}
		return targets[i].Path < targets[j].Path
	})
	return targets, nil
}

// load returns the target in dir, or ok=false when dir is not a publishable
// package.
func load(dir string) (core.PackageTarget, bool, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return core.PackageTarget{}, false, nil
	}

	m, err := manifest.Read(dir)
	if errors.Is(err, manifest.ErrNotFound) {
		return core.PackageTarget{}, false, nil
	}
	if err != nil {
		return core.PackageTarget{}, false, err
	}
	if m.Private || m.Name == "" || m.Version == "" {
		return core.PackageTarget{}, false, nil
	}
	return core.PackageTarget{Name: m.Name, Version: m.Version, Path: dir}, true, nil
}

// FromPaths builds targets for explicitly named package directories, keeping
// the given order. Unlike Discover it fails on anything unpublishable.
func FromPaths(paths []string) ([]core.PackageTarget, error) {
	targets := make([]core.PackageTarget, 0, len(paths))
	for _, dir := range paths {
		m, err := manifest.Read(dir)
		if err != nil {
			return nil, err
		}
		if m.Private {
			return nil, fmt.Errorf("%s: %w", m.Name, ErrPrivate)
		}
		if m.Name == "" || m.Version == "" {
			return nil, fmt.Errorf("%s: manifest needs both name and version", m.Path)
		}
		targets = append(targets, core.PackageTarget{Name: m.Name, Version: m.Version, Path: dir})
	}
	return targets, nil
}
