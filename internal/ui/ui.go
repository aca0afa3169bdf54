// Package ui prints human-readable status lines to stderr.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/git-pkgs/pubcheck/internal/core"
	"github.com/git-pkgs/pubcheck/internal/manifest"
	"github.com/git-pkgs/pubcheck/internal/resolver"
)

type Printer struct {
	out io.Writer
}

func New() *Printer {
	return &Printer{out: os.Stderr}
}

// NewWithWriter creates a Printer writing to w.
func NewWithWriter(w io.Writer) *Printer {
	return &Printer{out: w}
}

func (p *Printer) Info(msg string) {
	fmt.Fprintln(p.out, styleMuted.Render(msg))
}

func (p *Printer) Error(msg string) {
	fmt.Fprintln(p.out, styleDanger.Render("error:")+" "+msg)
}

func (p *Printer) Warn(msg string) {
	fmt.Fprintln(p.out, styleWarning.Render(iconWarning)+" "+msg)
}

// Checking is printed before a package is analyzed.
func (p *Printer) Checking(t core.PackageTarget) {
	fmt.Fprintln(p.out, styleMuted.Render("checking "+t.String()+"..."))
}

// Analyzed prints the verdict for one package with its reason.
func (p *Printer) Analyzed(a core.PackageAnalysis) {
	id := styleBold.Render(a.PackageName + "@" + a.Version)
	switch a.OverallStatus {
	case core.StatusSafe:
		fmt.Fprintf(p.out, "%s %s safe to publish %s\n",
			styleSuccess.Render(iconSafe), id, styleMuted.Render(fmt.Sprintf("(confidence %.2f)", a.Confidence)))
	case core.StatusConflict:
		suggested := ""
		if len(a.Recommendations) > 0 {
			suggested = a.Recommendations[0].SuggestedVersion
		}
		fmt.Fprintf(p.out, "%s %s conflict: version %s is already published, suggested %s\n",
			styleDanger.Render(iconConflict), id, a.Version, styleBold.Render(suggested))
	case core.StatusWarning:
		fmt.Fprintf(p.out, "%s %s can be published with warnings\n", styleWarning.Render(iconWarning), id)
		for _, w := range a.Warnings {
			fmt.Fprintf(p.out, "  %s %s\n", styleWarning.Render(iconBullet), w)
		}
	case core.StatusError:
		fmt.Fprintf(p.out, "%s %s registry check failed\n", styleDanger.Render(iconError), id)
		for _, r := range a.Recommendations {
			fmt.Fprintf(p.out, "  %s %s\n", styleDanger.Render(iconBullet), r.Message)
		}
	}
}

// BatchSummary prints the totals and verdict of a batch analysis.
func (p *Printer) BatchSummary(b core.BatchAnalysis) {
	s := b.Summary
	fmt.Fprintln(p.out)
	fmt.Fprintln(p.out, styleHeading.Render("summary"))
	fmt.Fprintf(p.out, "  packages:   %d\n", s.Total)
	fmt.Fprintf(p.out, "  safe:       %d\n", s.Safe)
	fmt.Fprintf(p.out, "  warnings:   %d\n", s.Warnings)
	fmt.Fprintf(p.out, "  conflicts:  %d\n", s.Conflicts)
	fmt.Fprintf(p.out, "  unverified: %d\n", s.Errors)

	switch b.Recommendation {
	case core.BatchCanPublish:
		fmt.Fprintln(p.out, styleSuccess.Render(iconSafe+" ready to publish"))
	case core.BatchResolveConflicts:
		fmt.Fprintln(p.out, styleDanger.Render(iconConflict+" resolve conflicts before publishing")+
			styleMuted.Render(" (run pubcheck resolve)"))
	case core.BatchManualVerify:
		fmt.Fprintln(p.out, styleWarning.Render(iconWarning+" verify unconfirmed packages manually before publishing"))
	}
}

func (p *Printer) ConflictResolved(r resolver.Resolution) {
	fmt.Fprintf(p.out, "%s %s %s %s %s\n",
		styleSuccess.Render(iconSafe), styleBold.Render(r.Package.Name), r.From, styleMuted.Render("→"), r.To)
}

func (p *Printer) PackageSkipped(a core.PackageAnalysis) {
	fmt.Fprintf(p.out, "%s %s skipped, will not be published\n", styleMuted.Render(iconSkipped), styleBold.Render(a.PackageName))
}

func (p *Printer) ResolutionApplied(r resolver.Resolution, dryRun bool) {
	if dryRun {
		fmt.Fprintf(p.out, "%s would set %s to %s\n", styleMuted.Render("dry run:"), r.Package.Name, r.To)
		return
	}
	fmt.Fprintf(p.out, "%s updated %s to %s\n", styleSuccess.Render(iconSafe), manifest.Path(r.Package.Path), r.To)
}

// ResolveSummary prints the outcome of a resolution run.
func (p *Printer) ResolveSummary(r resolver.Report) {
	fmt.Fprintln(p.out)
	title := "resolution complete"
	if r.DryRun {
		title += " (dry run, no files changed)"
	}
	fmt.Fprintln(p.out, styleHeading.Render(title))
	fmt.Fprintf(p.out, "  auto-resolved:     %d\n", r.AutoResolved)
	fmt.Fprintf(p.out, "  manually resolved: %d\n", r.ManuallyResolved)
	fmt.Fprintf(p.out, "  skipped:           %d\n", r.Skipped)
	fmt.Fprintf(p.out, "  already ready:     %d\n", r.AlreadyReady)
	if r.Unverified > 0 {
		fmt.Fprintf(p.out, "  unverified:        %s\n", styleWarning.Render(fmt.Sprint(r.Unverified)))
	}
	if r.Downgrades > 0 {
		fmt.Fprintf(p.out, "  downgrades:        %s\n", styleWarning.Render(fmt.Sprint(r.Downgrades)))
	}

	if len(r.ReadyToPublish) == 0 {
		fmt.Fprintln(p.out, styleMuted.Render("nothing ready to publish"))
		return
	}
	names := make([]string, 0, len(r.ReadyToPublish))
	for _, t := range r.ReadyToPublish {
		names = append(names, t.String())
	}
	fmt.Fprintln(p.out, styleSuccess.Render("ready to publish:")+" "+strings.Join(names, ", "))
}

// Versions lists the published versions of a package, newest last.
func (p *Printer) Versions(l core.VersionList, latest string) {
	if !l.Known() {
		p.Warn(fmt.Sprintf("could not list versions of %s", l.Name))
		return
	}
	if len(l.Versions) == 0 {
		fmt.Fprintf(p.out, "%s has never been published\n", styleBold.Render(l.Name))
		return
	}
	fmt.Fprintf(p.out, "%s %s\n", styleHeading.Render(l.Name), styleMuted.Render(fmt.Sprintf("(%d versions, source %s)", len(l.Versions), l.Source)))
	for _, v := range l.Versions {
		if v == latest {
			fmt.Fprintf(p.out, "  %s %s\n", v, styleSuccess.Render("latest"))
			continue
		}
		fmt.Fprintf(p.out, "  %s\n", v)
	}
}
