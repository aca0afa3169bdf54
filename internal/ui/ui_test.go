package ui

import (
	"bytes"
	"strings"
	"testing"

	"github.com/git-pkgs/pubcheck/internal/core"
	"github.com/git-pkgs/pubcheck/internal/resolver"
)

func assertContains(t *testing.T, output string, substrs ...string) {
	t.Helper()
	for _, s := range substrs {
		if !strings.Contains(output, s) {
			t.Errorf("expected output to contain %q, got:\n%s", s, output)
		}
	}
}

func TestAnalyzed(t *testing.T) {
	tests := []struct {
		name     string
		analysis core.PackageAnalysis
		want     []string
	}{
		{
			name:     "safe",
			analysis: core.PackageAnalysis{PackageName: "a", Version: "1.1.0", OverallStatus: core.StatusSafe, Confidence: 0.85},
			want:     []string{"a@1.1.0", "safe to publish", "confidence 0.85"},
		},
		{
			name: "conflict shows offending and suggested version",
			analysis: core.PackageAnalysis{
				PackageName: "a", Version: "1.0.0", OverallStatus: core.StatusConflict,
				Recommendations: []core.Recommendation{{Action: core.ActionVersionBump, SuggestedVersion: "1.0.1"}},
			},
			want: []string{"a@1.0.0", "version 1.0.0 is already published", "1.0.1"},
		},
		{
			name: "warning lists reasons",
			analysis: core.PackageAnalysis{
				PackageName: "a", Version: "1.0.0", OverallStatus: core.StatusWarning,
				Warnings: []string{"build-artifact reported low confidence (0.6)"},
			},
			want: []string{"with warnings", "build-artifact reported low confidence"},
		},
		{
			name: "error asks for manual verification",
			analysis: core.PackageAnalysis{
				PackageName: "a", Version: "1.0.0", OverallStatus: core.StatusError,
				Recommendations: []core.Recommendation{{Action: core.ActionManualVerify, Message: "verify manually before publishing"}},
			},
			want: []string{"registry check failed", "verify manually"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			NewWithWriter(&buf).Analyzed(tt.analysis)
			assertContains(t, buf.String(), tt.want...)
		})
	}
}

func TestBatchSummary(t *testing.T) {
	var buf bytes.Buffer
	NewWithWriter(&buf).BatchSummary(core.BatchAnalysis{
		Summary:        core.BatchSummary{Total: 3, Conflicts: 1, Safe: 1, Errors: 1},
		Recommendation: core.BatchResolveConflicts,
	})

	assertContains(t, buf.String(), "packages:   3", "conflicts:  1", "unverified: 1", "resolve conflicts")
}

func TestResolveSummary(t *testing.T) {
	var buf bytes.Buffer
	NewWithWriter(&buf).ResolveSummary(resolver.Report{
		AutoResolved:   1,
		Skipped:        1,
		AlreadyReady:   2,
		Unverified:     1,
		DryRun:         true,
		ReadyToPublish: []core.PackageTarget{{Name: "a", Version: "1.0.1"}, {Name: "b", Version: "2.0.0"}},
	})

	assertContains(t, buf.String(),
		"dry run",
		"auto-resolved:     1",
		"skipped:           1",
		"already ready:     2",
		"unverified:",
		"a@1.0.1, b@2.0.0",
	)
}

func TestResolveSummaryNothingReady(t *testing.T) {
	var buf bytes.Buffer
	NewWithWriter(&buf).ResolveSummary(resolver.Report{Skipped: 1})
	assertContains(t, buf.String(), "nothing ready to publish")
}

func TestResolutionApplied(t *testing.T) {
	r := resolver.Resolution{Package: core.PackageTarget{Name: "a", Path: "/repo/a"}, From: "1.0.0", To: "1.0.1"}

	var buf bytes.Buffer
	p := NewWithWriter(&buf)
	p.ConflictResolved(r)
	p.ResolutionApplied(r, false)
	p.ResolutionApplied(r, true)

	assertContains(t, buf.String(), "1.0.0", "1.0.1", "package.json", "would set a to 1.0.1")
}

func TestVersions(t *testing.T) {
	var buf bytes.Buffer
	p := NewWithWriter(&buf)

	p.Versions(core.VersionList{Name: "a", Versions: []string{"1.0.0", "1.1.0"}, Source: core.SourceCLI}, "1.1.0")
	p.Versions(core.VersionList{Name: "fresh", Versions: []string{}, Source: core.SourceCLI}, "")
	p.Versions(core.VersionList{Name: "down", Versions: []string{}, Source: core.SourceFailed}, "")

	assertContains(t, buf.String(), "2 versions", "1.1.0", "latest", "fresh has never been published", "could not list versions of down")
}
