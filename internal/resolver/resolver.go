// Package resolver turns a batch analysis into applied version bumps.
//
// Conflicted packages first go through an auto pass that offers the analyzer's
// suggested version for confirmation. Whatever is left goes through a manual
// pass where the operator bumps, enters a custom version, skips the package or
// cancels the whole run. Accepted resolutions are then written to the package
// manifests in order, stopping at the first failed write.
package resolver

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/git-pkgs/pubcheck/internal/core"
	"github.com/git-pkgs/pubcheck/internal/manifest"
	"github.com/git-pkgs/pubcheck/internal/semver"
)

// InvalidVersionMessage is shown when a custom version is not x.y.z.
const InvalidVersionMessage = "Please enter a valid semantic version (x.y.z)"

var (
	// ErrCancelled is returned when the operator cancels the workflow.
	ErrCancelled = errors.New("resolution cancelled")

	// ErrNoPrompter is returned when a conflict needs a decision and no
	// prompter is configured.
	ErrNoPrompter = errors.New("conflict needs an interactive decision")
)

// Prompter asks the operator questions.
type Prompter interface {
	Confirm(msg string, def bool) (bool, error)
	Select(msg string, choices []Choice) (string, error)
	Input(msg, def string) (string, error)
}

// Choice is one option offered by Select. Select returns its Value.
type Choice struct {
	Label string
	Value string
}

const (
	ChoiceBump   = "bump"
	ChoiceCustom = "custom"
	ChoiceSkip   = "skip"
	ChoiceCancel = "cancel"
)

// Kind records how a resolution was decided.
type Kind string

const (
	KindAuto   Kind = "auto-version-bump"
	KindManual Kind = "manual-version-bump"
	KindCustom Kind = "custom-version-bump"
)

// Resolution is an accepted version change for one package.
type Resolution struct {
	Package    core.PackageTarget `json:"package" yaml:"package"`
	From       string             `json:"from" yaml:"from"`
	To         string             `json:"to" yaml:"to"`
	Resolution Kind               `json:"resolution" yaml:"resolution"`

	// Action applies the resolution.
	Action func(ctx context.Context) error `json:"-" yaml:"-"`
}

// Categories partitions a batch for review. A package can appear in more
// than one of NewPackages, VersionBumps and Conflicts.
type Categories struct {
	NewPackages    []core.PackageAnalysis
	VersionBumps   []core.PackageAnalysis
	Conflicts      []core.PackageAnalysis
	ReadyToPublish []core.PackageAnalysis
	Downgrades     []core.PackageAnalysis
	Unverified     []core.PackageAnalysis
}

// Categorize sorts the analyses of batch into review categories. Packages
// whose registry state could not be verified are only listed as Unverified.
func Categorize(batch core.BatchAnalysis) Categories {
	var c Categories
	for _, a := range batch.Packages {
		if a.OverallStatus == core.StatusError {
			c.Unverified = append(c.Unverified, a)
			continue
		}

		latest := a.LatestVersion
		if a.PublishedVersions.Known() && len(a.PublishedVersions.Versions) == 0 {
			c.NewPackages = append(c.NewPackages, a)
		}
		if latest != "" && a.Version != latest {
			c.VersionBumps = append(c.VersionBumps, a)
		}

		switch {
		case a.Conflict:
			c.Conflicts = append(c.Conflicts, a)
		case latest != "" && semver.Compare(a.Version, latest) < 0:
			c.Downgrades = append(c.Downgrades, a)
		default:
			c.ReadyToPublish = append(c.ReadyToPublish, a)
		}
	}
	return c
}

// Report summarizes a resolution run.
type Report struct {
	AutoResolved     int                  `json:"autoResolved" yaml:"autoResolved"`
	ManuallyResolved int                  `json:"manuallyResolved" yaml:"manuallyResolved"`
	Skipped          int                  `json:"skipped" yaml:"skipped"`
	AlreadyReady     int                  `json:"alreadyReady" yaml:"alreadyReady"`
	Unverified       int                  `json:"unverified" yaml:"unverified"`
	Downgrades       int                  `json:"downgrades" yaml:"downgrades"`
	DryRun           bool                 `json:"dryRun" yaml:"dryRun"`
	Resolutions      []Resolution         `json:"resolutions" yaml:"resolutions"`
	ReadyToPublish   []core.PackageTarget `json:"readyToPublish" yaml:"readyToPublish"`
}

// Reporter receives resolver progress.
type Reporter interface {
	ConflictResolved(r Resolution)
	PackageSkipped(a core.PackageAnalysis)
	ResolutionApplied(r Resolution, dryRun bool)
}

// Options configures a Resolver.
type Options struct {
	// DryRun computes and reports resolutions without writing manifests.
	DryRun bool
	// AssumeYes accepts every auto-resolvable suggestion without asking.
	AssumeYes bool

	Prompter Prompter
	Reporter Reporter
	Logger   *zap.Logger

	// WriteVersion updates a package manifest. Defaults to manifest.WriteVersion.
	WriteVersion func(dir, version string) error
}

// Resolver resolves version conflicts.
type Resolver struct {
	opts Options
}

// New creates a Resolver.
func New(opts Options) *Resolver {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.WriteVersion == nil {
		opts.WriteVersion = manifest.WriteVersion
	}
	return &Resolver{opts: opts}
}

// Resolve categorizes batch, collects a decision for every conflict and
// applies the accepted resolutions. ErrCancelled is returned when the operator
// cancels, in which case nothing is written. A failed manifest write stops the
// run; resolutions already applied stay applied.
func (r *Resolver) Resolve(ctx context.Context, batch core.BatchAnalysis) (Report, error) {
	cats := Categorize(batch)
	report := Report{
		AlreadyReady: len(cats.ReadyToPublish),
		Unverified:   len(cats.Unverified),
		Downgrades:   len(cats.Downgrades),
		DryRun:       r.opts.DryRun,
		Resolutions:  []Resolution{},
	}
	for _, a := range cats.ReadyToPublish {
		report.ReadyToPublish = append(report.ReadyToPublish, a.Target())
	}
	for _, a := range cats.Unverified {
		r.opts.Logger.Warn("package not verified against registry, leaving untouched",
			zap.String("package", a.PackageName), zap.String("version", a.Version))
	}

	var unresolved []core.PackageAnalysis
	for _, a := range cats.Conflicts {
		res, ok, err := r.autoResolve(a)
		if err != nil {
			return report, err
		}
		if !ok {
			unresolved = append(unresolved, a)
			continue
		}
		r.accept(&report, res)
		report.AutoResolved++
	}

	for _, a := range unresolved {
		res, ok, err := r.manualResolve(a)
		if err != nil {
			return report, err
		}
		if !ok {
			report.Skipped++
			if r.opts.Reporter != nil {
				r.opts.Reporter.PackageSkipped(a)
			}
			continue
		}
		r.accept(&report, res)
		report.ManuallyResolved++
	}

	if err := r.apply(ctx, report.Resolutions); err != nil {
		return report, err
	}
	for _, res := range report.Resolutions {
		target := res.Package
		target.Version = res.To
		report.ReadyToPublish = append(report.ReadyToPublish, target)
	}
	return report, nil
}

func (r *Resolver) accept(report *Report, res Resolution) {
	report.Resolutions = append(report.Resolutions, res)
	r.opts.Logger.Info("conflict resolved",
		zap.String("package", res.Package.Name),
		zap.String("from", res.From),
		zap.String("to", res.To),
		zap.String("resolution", string(res.Resolution)))
	if r.opts.Reporter != nil {
		r.opts.Reporter.ConflictResolved(res)
	}
}

// autoResolve offers the suggested version when the analyzer marked it as
// auto-resolvable.
func (r *Resolver) autoResolve(a core.PackageAnalysis) (Resolution, bool, error) {
	rec, ok := a.SuggestedVersion()
	if !ok {
		return Resolution{}, false, nil
	}

	if !r.opts.AssumeYes {
		if r.opts.Prompter == nil {
			return Resolution{}, false, nil
		}
		msg := fmt.Sprintf("%s@%s is already published. Bump to %s?", a.PackageName, a.Version, rec.SuggestedVersion)
		yes, err := r.opts.Prompter.Confirm(msg, true)
		if err != nil {
			return Resolution{}, false, promptErr(err)
		}
		if !yes {
			return Resolution{}, false, nil
		}
	}
	return r.resolution(a, rec.SuggestedVersion, KindAuto), true, nil
}

// manualResolve asks the operator what to do with a conflict. ok is false
// when the package is skipped.
func (r *Resolver) manualResolve(a core.PackageAnalysis) (Resolution, bool, error) {
	if r.opts.Prompter == nil {
		return Resolution{}, false, fmt.Errorf("%s@%s: %w", a.PackageName, a.Version, ErrNoPrompter)
	}

	suggested := suggestion(a)
	if a.PublishedVersions.Contains(suggested) {
		suggested = ""
	}
	var choices []Choice
	if suggested != "" {
		choices = append(choices, Choice{Label: "Bump to " + suggested, Value: ChoiceBump})
	}
	choices = append(choices,
		Choice{Label: "Enter a custom version", Value: ChoiceCustom},
		Choice{Label: "Skip publishing " + a.PackageName, Value: ChoiceSkip},
		Choice{Label: "Cancel", Value: ChoiceCancel},
	)

	msg := fmt.Sprintf("How should %s@%s be resolved?", a.PackageName, a.Version)
	choice, err := r.opts.Prompter.Select(msg, choices)
	if err != nil {
		return Resolution{}, false, promptErr(err)
	}

	switch choice {
	case ChoiceBump:
		if suggested == "" {
			return Resolution{}, false, fmt.Errorf("no suggested version for %s", a.PackageName)
		}
		return r.resolution(a, suggested, KindManual), true, nil
	case ChoiceCustom:
		v, err := r.customVersion(a, suggested)
		if err != nil {
			return Resolution{}, false, err
		}
		return r.resolution(a, v, KindCustom), true, nil
	case ChoiceSkip:
		return Resolution{}, false, nil
	case ChoiceCancel:
		return Resolution{}, false, ErrCancelled
	default:
		return Resolution{}, false, fmt.Errorf("unknown choice %q", choice)
	}
}

// customVersion prompts until the operator enters an unpublished x.y.z version.
func (r *Resolver) customVersion(a core.PackageAnalysis, def string) (string, error) {
	msg := fmt.Sprintf("New version for %s:", a.PackageName)
	for {
		v, err := r.opts.Prompter.Input(msg, def)
		if err != nil {
			return "", promptErr(err)
		}
		switch {
		case !semver.ValidCore(v):
			msg = InvalidVersionMessage
		case v == a.Version || a.PublishedVersions.Contains(v):
			msg = fmt.Sprintf("Version %s of %s is already published. Enter another version:", v, a.PackageName)
		default:
			return v, nil
		}
	}
}

func (r *Resolver) resolution(a core.PackageAnalysis, to string, kind Kind) Resolution {
	target := a.Target()
	write := r.opts.WriteVersion
	return Resolution{
		Package:    target,
		From:       a.Version,
		To:         to,
		Resolution: kind,
		Action: func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return write(target.Path, to)
		},
	}
}

// apply runs resolutions in order and stops at the first failure.
func (r *Resolver) apply(ctx context.Context, resolutions []Resolution) error {
	for _, res := range resolutions {
		if !r.opts.DryRun {
			if err := res.Action(ctx); err != nil {
				r.opts.Logger.Error("applying resolution failed",
					zap.String("package", res.Package.Name), zap.String("to", res.To), zap.Error(err))
				return fmt.Errorf("updating %s to %s: %w", res.Package.Name, res.To, err)
			}
		}
		if r.opts.Reporter != nil {
			r.opts.Reporter.ResolutionApplied(res, r.opts.DryRun)
		}
	}
	return nil
}

func suggestion(a core.PackageAnalysis) string {
	for _, rec := range a.Recommendations {
		if rec.Action == core.ActionVersionBump && rec.SuggestedVersion != "" {
			return rec.SuggestedVersion
		}
	}
	return ""
}

// promptErr keeps ErrCancelled recognisable when a prompter reports it.
func promptErr(err error) error {
	if errors.Is(err, ErrCancelled) {
		return err
	}
	return fmt.Errorf("prompt: %w", err)
}
