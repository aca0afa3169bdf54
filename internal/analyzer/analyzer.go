// Package analyzer combines the registry verdict with the supplementary
// oracles into one PackageAnalysis per package.
//
// The registry is authoritative. A confirmed conflict short-circuits the
// supplementary oracles, and a registry check that could not reach a verdict
// is an ERROR that must be verified by hand. Only a confirmed absence lets the
// supplementary oracles decide between SAFE_TO_PUBLISH and WARNING.
package analyzer

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/git-pkgs/pubcheck/internal/core"
	"github.com/git-pkgs/pubcheck/internal/oracle"
)

// RegistrySignalName is the OracleName of the registry signal.
const RegistrySignalName = "npm-registry"

// RegistryOracle is the authoritative registry lookup.
type RegistryOracle interface {
	AnalyzePackageVersion(ctx context.Context, name, version string) (core.VersionAnalysis, error)
}

// Reporter receives progress as packages are analyzed.
type Reporter interface {
	Checking(target core.PackageTarget)
	Analyzed(analysis core.PackageAnalysis)
}

// Analyzer runs the registry oracle and the supplementary oracles.
type Analyzer struct {
	registry  RegistryOracle
	oracles   []oracle.Oracle
	threshold float64
	reporter  Reporter
	logger    *zap.Logger
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithOracles replaces the supplementary oracles.
func WithOracles(oracles ...oracle.Oracle) Option {
	return func(a *Analyzer) {
		a.oracles = oracles
	}
}

// WithWarningThreshold sets the confidence below which a supplementary
// signal becomes a warning.
func WithWarningThreshold(t float64) Option {
	return func(a *Analyzer) {
		a.threshold = t
	}
}

// WithReporter sets the progress reporter.
func WithReporter(r Reporter) Option {
	return func(a *Analyzer) {
		a.reporter = r
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *Analyzer) {
		a.logger = l
	}
}

// New creates an Analyzer backed by registry.
func New(registry RegistryOracle, opts ...Option) *Analyzer {
	a := &Analyzer{
		registry:  registry,
		oracles:   oracle.Defaults(nil),
		threshold: oracle.WarningThreshold,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// AnalyzePackage checks one package against the real registry and returns
// its verdict. It never fails; registry and oracle failures are reflected in
// the returned analysis. A conflict's version bump is auto-resolvable only
// when the suggested version is not itself published.
func (a *Analyzer) AnalyzePackage(ctx context.Context, target core.PackageTarget) core.PackageAnalysis {
	if a.reporter != nil {
		a.reporter.Checking(target)
	}
	analysis := a.analyze(ctx, target)
	if a.reporter != nil {
		a.reporter.Analyzed(analysis)
	}
	a.logger.Info("package analyzed",
		zap.String("package", target.Name),
		zap.String("version", target.Version),
		zap.String("status", string(analysis.OverallStatus)),
		zap.Float64("confidence", analysis.Confidence))
	return analysis
}

func (a *Analyzer) analyze(ctx context.Context, target core.PackageTarget) core.PackageAnalysis {
	analysis := core.PackageAnalysis{
		PackageName:     target.Name,
		Version:         target.Version,
		Path:            target.Path,
		PURL:            target.PURL(),
		ConflictType:    core.ConflictNone,
		OracleResults:   []core.OracleSignal{},
		Recommendations: []core.Recommendation{},
	}

	va, err := a.registry.AnalyzePackageVersion(ctx, target.Name, target.Version)
	analysis.OracleResults = append(analysis.OracleResults, registrySignal(va, err))
	analysis.PublishedVersions = va.Published
	analysis.LatestVersion = va.LatestVersion

	if err != nil || !va.Determinate() {
		return registryFailed(analysis, va, err)
	}
	if va.Conflict {
		return versionConflict(analysis, va)
	}

	var warned []string
	for _, o := range a.oracles {
		sig := a.runOracle(ctx, o, target)
		analysis.OracleResults = append(analysis.OracleResults, sig)
		if !sig.Success || sig.Confidence < a.threshold {
			warned = append(warned, sig.OracleName)
			analysis.Warnings = append(analysis.Warnings, signalWarning(sig))
		}
	}

	analysis.Confidence = meanConfidence(analysis.OracleResults)

	if len(warned) == 0 {
		analysis.OverallStatus = core.StatusSafe
		analysis.Recommendations = append(analysis.Recommendations, core.Recommendation{
			Action:  core.ActionPublish,
			Message: fmt.Sprintf("%s@%s is not published yet and can be published", target.Name, target.Version),
			Urgency: core.UrgencyNormal,
		})
		return analysis
	}

	analysis.OverallStatus = core.StatusWarning
	analysis.Recommendations = append(analysis.Recommendations, core.Recommendation{
		Action:  core.ActionReviewWarnings,
		Message: "Review low-confidence checks: " + strings.Join(warned, ", "),
		Urgency: core.UrgencyMedium,
	})
	return analysis
}

// runOracle isolates one oracle so that its error or panic only affects its
// own signal.
func (a *Analyzer) runOracle(ctx context.Context, o oracle.Oracle, target core.PackageTarget) (sig core.OracleSignal) {
	name := o.Name()
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("oracle panicked", zap.String("oracle", name), zap.Any("panic", r))
			sig = core.OracleSignal{OracleName: name, Error: fmt.Sprintf("panic: %v", r)}
		}
	}()

	sig, err := o.Check(ctx, target)
	if err != nil {
		a.logger.Warn("oracle failed", zap.String("oracle", name), zap.String("package", target.Name), zap.Error(err))
		return core.OracleSignal{OracleName: name, Error: err.Error()}
	}
	sig.OracleName = name
	sig.Critical = false
	return sig
}

func registrySignal(va core.VersionAnalysis, err error) core.OracleSignal {
	sig := core.OracleSignal{
		OracleName: RegistrySignalName,
		Critical:   true,
	}
	if err != nil {
		sig.Confidence = core.ConfidenceRegistryError
		sig.Error = err.Error()
		return sig
	}

	sig.Success = va.Determinate()
	sig.Confidence = va.Confidence
	sig.Data = map[string]any{
		"exists":       va.Exists,
		"source":       string(va.Source),
		"conflict":     va.Conflict,
		"conflictType": string(va.ConflictType),
	}
	if va.SuggestedVersion != "" {
		sig.Data["suggestedVersion"] = va.SuggestedVersion
	}
	if !sig.Success {
		sig.Error = va.PackageInfo.Reason
	}
	return sig
}

func registryFailed(analysis core.PackageAnalysis, va core.VersionAnalysis, err error) core.PackageAnalysis {
	reason := va.PackageInfo.Reason
	if err != nil {
		reason = err.Error()
	}

	analysis.OverallStatus = core.StatusError
	analysis.ConflictType = core.ConflictRegistryCheckFailed
	analysis.Confidence = core.ConfidenceRegistryError
	if va.Warning != "" {
		analysis.Warnings = append(analysis.Warnings, va.Warning)
	}
	msg := fmt.Sprintf("Could not confirm whether %s@%s is published", analysis.PackageName, analysis.Version)
	if reason != "" {
		msg += " (" + reason + ")"
	}
	analysis.Recommendations = append(analysis.Recommendations, core.Recommendation{
		Action:  core.ActionManualVerify,
		Message: msg + "; verify manually before publishing",
		Urgency: core.UrgencyHigh,
	})
	return analysis
}

// versionConflict marks analysis as a CONFLICT and recommends the suggested
// bump. AutoResolvable is false when the suggestion is already published.
func versionConflict(analysis core.PackageAnalysis, va core.VersionAnalysis) core.PackageAnalysis {
	analysis.OverallStatus = core.StatusConflict
	analysis.Conflict = true
	analysis.ConflictType = core.ConflictVersionExists
	analysis.Confidence = va.Confidence

	// The major fallback is not checked against the registry.
	auto := va.SuggestedVersion != "" && !va.Published.Contains(va.SuggestedVersion)
	analysis.Recommendations = append(analysis.Recommendations, core.Recommendation{
		Action:           core.ActionVersionBump,
		Message:          fmt.Sprintf("Version %s of %s is already published; bump to %s", analysis.Version, analysis.PackageName, va.SuggestedVersion),
		SuggestedVersion: va.SuggestedVersion,
		AutoResolvable:   auto,
		Urgency:          core.UrgencyHigh,
	})
	return analysis
}

func signalWarning(sig core.OracleSignal) string {
	if !sig.Success {
		return fmt.Sprintf("%s failed: %s", sig.OracleName, sig.Error)
	}
	return fmt.Sprintf("%s reported low confidence (%.1f)", sig.OracleName, sig.Confidence)
}

func meanConfidence(signals []core.OracleSignal) float64 {
	var sum float64
	var n int
	for _, s := range signals {
		if s.Success {
			sum += s.Confidence
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// AnalyzeMultiple analyzes targets one after another, in order, and
// summarizes the batch. Packages are never analyzed concurrently so registry
// queries happen in a deterministic order.
func (a *Analyzer) AnalyzeMultiple(ctx context.Context, targets []core.PackageTarget) core.BatchAnalysis {
	batch := core.BatchAnalysis{
		Packages: make([]core.PackageAnalysis, 0, len(targets)),
	}

	for _, target := range targets {
		analysis := a.AnalyzePackage(ctx, target)
		batch.Packages = append(batch.Packages, analysis)

		switch analysis.OverallStatus {
		case core.StatusConflict:
			batch.Summary.Conflicts++
		case core.StatusSafe:
			batch.Summary.Safe++
		case core.StatusWarning:
			batch.Summary.Warnings++
		case core.StatusError:
			batch.Summary.Errors++
		}
	}
	batch.Summary.Total = len(batch.Packages)
	batch.Recommendation = Recommend(batch.Summary)
	return batch
}

// Recommend derives the batch verdict from its summary.
func Recommend(s core.BatchSummary) core.BatchRecommendation {
	switch {
	case s.Conflicts > 0:
		return core.BatchResolveConflicts
	case s.Errors > 0:
		return core.BatchManualVerify
	default:
		return core.BatchCanPublish
	}
}
