// Package oracle implements the supplementary checks that run once the
// registry has found no conflict. Each oracle inspects one aspect of a local
// package and reports a confidence; none of them can declare a conflict.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/github/go-spdx/v2/spdxexp"

	"github.com/git-pkgs/pubcheck/internal/core"
	"github.com/git-pkgs/pubcheck/internal/manifest"
	"github.com/git-pkgs/pubcheck/internal/semver"
)

const (
	NameManifest      = "local-manifest"
	NameBuildArtifact = "build-artifact"
	NameSemver        = "semver-format"
)

// WarningThreshold is the confidence below which an oracle signal is a warning.
const WarningThreshold = 0.7

// DefaultBuildDirs are the build output directories checked by default.
var DefaultBuildDirs = []string{"dist"}

// Oracle is a supplementary check on a local package.
type Oracle interface {
	Name() string
	Check(ctx context.Context, target core.PackageTarget) (core.OracleSignal, error)
}

// Defaults returns the three standard oracles in their reporting order.
func Defaults(buildDirs []string) []Oracle {
	return []Oracle{
		ManifestOracle{},
		NewBuildArtifactOracle(buildDirs...),
		SemverOracle{},
	}
}

// ManifestOracle checks that package.json exists and parses.
type ManifestOracle struct{}

func (ManifestOracle) Name() string { return NameManifest }

// Check reports 0.9 for a readable manifest and 0.8 when there is none. A
// manifest that exists but does not parse is an error.
func (o ManifestOracle) Check(ctx context.Context, target core.PackageTarget) (core.OracleSignal, error) {
	if err := ctx.Err(); err != nil {
		return core.OracleSignal{OracleName: o.Name()}, err
	}

	m, err := manifest.Read(target.Path)
	if errors.Is(err, manifest.ErrNotFound) {
		return core.OracleSignal{
			OracleName: o.Name(),
			Success:    true,
			Confidence: 0.8,
			Data:       map[string]any{"exists": false},
		}, nil
	}
	if err != nil {
		return core.OracleSignal{OracleName: o.Name()}, err
	}

	data := map[string]any{
		"exists":      true,
		"valid":       true,
		"name":        m.Name,
		"version":     m.Version,
		"nameMatches": m.Name == target.Name,
	}
	if m.License != "" {
		valid, _ := spdxexp.ValidateLicenses([]string{m.License})
		data["license"] = m.License
		data["licenseValid"] = valid
	}

	return core.OracleSignal{
		OracleName: o.Name(),
		Success:    true,
		Confidence: 0.9,
		Data:       data,
	}, nil
}

// BuildArtifactOracle checks for a build output directory.
type BuildArtifactOracle struct {
	Dirs []string
}

// NewBuildArtifactOracle creates an oracle looking for any of dirs, or
// DefaultBuildDirs when none are given.
func NewBuildArtifactOracle(dirs ...string) BuildArtifactOracle {
	if len(dirs) == 0 {
		dirs = DefaultBuildDirs
	}
	return BuildArtifactOracle{Dirs: dirs}
}

func (BuildArtifactOracle) Name() string { return NameBuildArtifact }

// Check reports 0.8 when a build directory is present and 0.6 otherwise.
func (o BuildArtifactOracle) Check(ctx context.Context, target core.PackageTarget) (core.OracleSignal, error) {
	if err := ctx.Err(); err != nil {
		return core.OracleSignal{OracleName: o.Name()}, err
	}

	dirs := o.Dirs
	if len(dirs) == 0 {
		dirs = DefaultBuildDirs
	}

	for _, dir := range dirs {
		info, err := os.Stat(filepath.Join(target.Path, dir))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return core.OracleSignal{OracleName: o.Name()}, fmt.Errorf("checking %s: %w", dir, err)
		}
		if info.IsDir() {
			return core.OracleSignal{
				OracleName: o.Name(),
				Success:    true,
				Confidence: 0.8,
				Data:       map[string]any{"exists": true, "dir": dir},
			}, nil
		}
	}

	return core.OracleSignal{
		OracleName: o.Name(),
		Success:    true,
		Confidence: 0.6,
		Data:       map[string]any{"exists": false},
	}, nil
}

// SemverOracle checks that the version is strict semver.
type SemverOracle struct{}

func (SemverOracle) Name() string { return NameSemver }

// Check reports 0.9 for a well-formed version and 0.3 otherwise. versionType
// is the approximate classification from semver.Classify.
func (o SemverOracle) Check(ctx context.Context, target core.PackageTarget) (core.OracleSignal, error) {
	if err := ctx.Err(); err != nil {
		return core.OracleSignal{OracleName: o.Name()}, err
	}

	valid := semver.Valid(target.Version)
	confidence := 0.3
	if valid {
		confidence = 0.9
	}
	return core.OracleSignal{
		OracleName: o.Name(),
		Success:    true,
		Confidence: confidence,
		Data: map[string]any{
			"valid":       valid,
			"versionType": string(semver.Classify(target.Version)),
		},
	}, nil
}
