// Package pubcheck detects version conflicts between npm packages and the
// registry they are published to, before `npm publish` fails halfway through a
// workspace.
//
// Basic usage:
//
//	import (
//		"context"
//		"github.com/git-pkgs/pubcheck"
//	)
//
//	reg := pubcheck.NewRegistryOracle(pubcheck.RegistryOptions{})
//	defer reg.Close()
//
//	targets, err := pubcheck.Discover(".", nil)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	batch := pubcheck.NewAnalyzer(reg).AnalyzeMultiple(context.Background(), targets)
//	fmt.Println(batch.Recommendation)
//
// Conflicts can then be bumped in package.json with NewResolver.
package pubcheck

import (
	"github.com/git-pkgs/pubcheck/client"
	"github.com/git-pkgs/pubcheck/internal/analyzer"
	"github.com/git-pkgs/pubcheck/internal/core"
	"github.com/git-pkgs/pubcheck/internal/npm"
	"github.com/git-pkgs/pubcheck/internal/oracle"
	"github.com/git-pkgs/pubcheck/internal/resolver"
	"github.com/git-pkgs/pubcheck/internal/semver"
	"github.com/git-pkgs/pubcheck/internal/workspace"
)

// Re-export types from internal/core
type (
	// PackageTarget identifies one publishable package.
	PackageTarget = core.PackageTarget

	// RegistryCheckResult answers whether a version is published.
	RegistryCheckResult = core.RegistryCheckResult

	// VersionList is the set of published versions of a package.
	VersionList = core.VersionList

	// VersionAnalysis is a registry check with conflict information.
	VersionAnalysis = core.VersionAnalysis

	// OracleSignal is one oracle's belief about a package.
	OracleSignal = core.OracleSignal

	// PackageAnalysis is the verdict for one package.
	PackageAnalysis = core.PackageAnalysis

	// BatchAnalysis is the verdict for a set of packages.
	BatchAnalysis = core.BatchAnalysis

	Recommendation      = core.Recommendation
	BatchRecommendation = core.BatchRecommendation
	Status              = core.Status
)

// Re-export constants
const (
	StatusSafe     = core.StatusSafe
	StatusWarning  = core.StatusWarning
	StatusConflict = core.StatusConflict
	StatusError    = core.StatusError

	BatchCanPublish       = core.BatchCanPublish
	BatchResolveConflicts = core.BatchResolveConflicts
	BatchManualVerify     = core.BatchManualVerify
)

type (
	// RegistryOracle queries the npm registry through the npm CLI with an
	// HTTP fallback.
	RegistryOracle = npm.Oracle

	// RegistryOptions configures a RegistryOracle.
	RegistryOptions = npm.Options

	// Oracle is a supplementary check run for packages without a conflict.
	Oracle = oracle.Oracle

	Analyzer       = analyzer.Analyzer
	AnalyzerOption = analyzer.Option

	Resolver          = resolver.Resolver
	ResolverOptions   = resolver.Options
	Resolution        = resolver.Resolution
	ResolutionReport  = resolver.Report
	Prompter          = resolver.Prompter
	ResolveCategories = resolver.Categories

	// Client is the HTTP client used for the registry fallback.
	Client = client.Client
)

// Re-export errors
var (
	ErrCancelled = resolver.ErrCancelled
	ErrPrivate   = workspace.ErrPrivate
	ErrNotFound  = core.ErrNotFound
)

// NewRegistryOracle creates a registry oracle. Zero options select npm on the
// PATH and the public registry.
func NewRegistryOracle(opts RegistryOptions) *RegistryOracle {
	return npm.New(opts)
}

// NewAnalyzer creates an analyzer running the default supplementary oracles.
func NewAnalyzer(reg *RegistryOracle, opts ...AnalyzerOption) *Analyzer {
	return analyzer.New(reg, opts...)
}

// DefaultOracles returns the manifest, build artifact and semver oracles.
// buildDirs defaults to "dist".
func DefaultOracles(buildDirs ...string) []Oracle {
	return oracle.Defaults(buildDirs)
}

var (
	WithOracles          = analyzer.WithOracles
	WithWarningThreshold = analyzer.WithWarningThreshold
	WithLogger           = analyzer.WithLogger
)

// NewResolver creates a conflict resolver.
func NewResolver(opts ResolverOptions) *Resolver {
	return resolver.New(opts)
}

// Categorize partitions a batch into new packages, version bumps, conflicts
// and packages ready to publish.
func Categorize(batch BatchAnalysis) ResolveCategories {
	return resolver.Categorize(batch)
}

// Discover finds publishable packages under root. patterns defaults to
// "packages/*".
func Discover(root string, patterns []string) ([]PackageTarget, error) {
	return workspace.Discover(root, patterns)
}

// FromPaths loads the packages in the given directories.
func FromPaths(paths ...string) ([]PackageTarget, error) {
	return workspace.FromPaths(paths)
}

// SuggestNext proposes the next patch, minor or major version after current
// that is not in published.
func SuggestNext(current string, published []string) string {
	return semver.SuggestNext(current, published)
}

// BuildURLs returns a map of all non-empty URLs for a package.
// Keys are "registry", "download", "website", and "purl".
func BuildURLs(reg *RegistryOracle, name, version string) map[string]string {
	return client.BuildURLs(reg.URLs(), name, version)
}
