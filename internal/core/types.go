// Package core provides the shared data model for registry checks, oracle
// signals and package analyses.
package core

import "time"

// PackageTarget identifies one publishable unit in the workspace.
type PackageTarget struct {
	Name    string `json:"name" yaml:"name"`
	Version string `json:"version" yaml:"version"`
	Path    string `json:"path" yaml:"path"`
}

// Source records which method produced a registry answer.
type Source string

const (
	SourceCLI        Source = "registry-cli"
	SourceHTTP       Source = "registry-http"
	SourceHTTPFailed Source = "registry-http-failed"
	SourceFailed     Source = "registry-failed"
)

// Confidence levels for each registry check method.
const (
	ConfidenceCLI           = 1.0
	ConfidenceHTTP          = 0.9
	ConfidenceHTTPFailed    = 0.3
	ConfidenceRegistryError = 0.2
)

// ManualVerificationWarning is attached to results that could not be confirmed.
const ManualVerificationWarning = "Manual verification recommended"

// PackageInfo carries the publication state reported by the registry.
type PackageInfo struct {
	Published bool   `json:"published" yaml:"published"`
	Reason    string `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// RegistryCheckResult is the answer to "has name@version been published".
type RegistryCheckResult struct {
	Exists      bool        `json:"exists" yaml:"exists"`
	Version     string      `json:"version" yaml:"version"`
	Confidence  float64     `json:"confidence" yaml:"confidence"`
	Source      Source      `json:"source" yaml:"source"`
	LastChecked time.Time   `json:"lastChecked" yaml:"lastChecked"`
	PackageInfo PackageInfo `json:"packageInfo" yaml:"packageInfo"`
	Warning     string      `json:"warning,omitempty" yaml:"warning,omitempty"`
}

// Determinate reports whether the check produced a usable answer. A failed
// HTTP fallback reports exists=false but proves nothing.
func (r RegistryCheckResult) Determinate() bool {
	return r.Source == SourceCLI || r.Source == SourceHTTP
}

// VersionList is the set of published versions for a package.
type VersionList struct {
	Name        string    `json:"name" yaml:"name"`
	Versions    []string  `json:"versions" yaml:"versions"`
	Source      Source    `json:"source" yaml:"source"`
	LastChecked time.Time `json:"lastChecked" yaml:"lastChecked"`
}

// Known reports whether the list reflects registry state. An empty list from a
// failed lookup means "no information", not "never published".
func (l VersionList) Known() bool {
	return l.Source != SourceFailed
}

// Contains reports whether v is in the list.
func (l VersionList) Contains(v string) bool {
	for _, have := range l.Versions {
		if have == v {
			return true
		}
	}
	return false
}

// ConflictType classifies why a version cannot be published as-is.
type ConflictType string

const (
	ConflictNone                ConflictType = "none"
	ConflictVersionExists       ConflictType = "version-exists"
	ConflictRegistryCheckFailed ConflictType = "registry-check-failed"
)

// Severity of a conflict.
type Severity string

const (
	SeverityNone Severity = "none"
	SeverityHigh Severity = "high"
)

// VersionAnalysis extends a registry check with conflict information.
type VersionAnalysis struct {
	RegistryCheckResult `yaml:",inline"`

	Conflict         bool         `json:"conflict" yaml:"conflict"`
	ConflictType     ConflictType `json:"conflictType" yaml:"conflictType"`
	ConflictSeverity Severity     `json:"conflictSeverity" yaml:"conflictSeverity"`
	SuggestedVersion string       `json:"suggestedVersion,omitempty" yaml:"suggestedVersion,omitempty"`

	// Published and LatestVersion come from the version list lookup.
	Published     VersionList `json:"published" yaml:"published"`
	LatestVersion string      `json:"latestVersion,omitempty" yaml:"latestVersion,omitempty"`
}

// OracleSignal is one oracle's belief about a package.
type OracleSignal struct {
	OracleName string         `json:"oracleName" yaml:"oracleName"`
	Success    bool           `json:"success" yaml:"success"`
	Confidence float64        `json:"confidence" yaml:"confidence"`
	Data       map[string]any `json:"data,omitempty" yaml:"data,omitempty"`
	Critical   bool           `json:"critical" yaml:"critical"`
	Error      string         `json:"error,omitempty" yaml:"error,omitempty"`
}

// Status is the overall verdict for a package.
type Status string

const (
	StatusSafe     Status = "SAFE_TO_PUBLISH"
	StatusWarning  Status = "WARNING"
	StatusConflict Status = "CONFLICT"
	StatusError    Status = "ERROR"
)

// Action is what a recommendation asks the operator to do.
type Action string

const (
	ActionPublish        Action = "publish"
	ActionVersionBump    Action = "version-bump"
	ActionManualVerify   Action = "manual-verify"
	ActionReviewWarnings Action = "review-warnings"
)

// Urgency of a recommendation.
type Urgency string

const (
	UrgencyNormal Urgency = "normal"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
)

// Recommendation is a suggested next step for a package.
type Recommendation struct {
	Action           Action  `json:"action" yaml:"action"`
	Message          string  `json:"message" yaml:"message"`
	SuggestedVersion string  `json:"suggestedVersion,omitempty" yaml:"suggestedVersion,omitempty"`
	AutoResolvable   bool    `json:"autoResolvable" yaml:"autoResolvable"`
	Urgency          Urgency `json:"urgency" yaml:"urgency"`
}

// PackageAnalysis is the analyzer's verdict for one package.
type PackageAnalysis struct {
	PackageName     string           `json:"packageName" yaml:"packageName"`
	Version         string           `json:"version" yaml:"version"`
	Path            string           `json:"path" yaml:"path"`
	PURL            string           `json:"purl,omitempty" yaml:"purl,omitempty"`
	OverallStatus   Status           `json:"overallStatus" yaml:"overallStatus"`
	Conflict        bool             `json:"conflict" yaml:"conflict"`
	ConflictType    ConflictType     `json:"conflictType" yaml:"conflictType"`
	Confidence      float64          `json:"confidence" yaml:"confidence"`
	OracleResults   []OracleSignal   `json:"oracleResults" yaml:"oracleResults"`
	Recommendations []Recommendation `json:"recommendations" yaml:"recommendations"`
	Warnings        []string         `json:"warnings,omitempty" yaml:"warnings,omitempty"`

	// PublishedVersions and LatestVersion are carried through from the registry
	// so the resolver can tell new packages and downgrades apart.
	PublishedVersions VersionList `json:"publishedVersions" yaml:"publishedVersions"`
	LatestVersion     string      `json:"latestVersion,omitempty" yaml:"latestVersion,omitempty"`
}

// Target returns the package target the analysis was computed for.
func (a PackageAnalysis) Target() PackageTarget {
	return PackageTarget{Name: a.PackageName, Version: a.Version, Path: a.Path}
}

// SuggestedVersion returns the first auto-resolvable suggestion, if any.
func (a PackageAnalysis) SuggestedVersion() (Recommendation, bool) {
	for _, r := range a.Recommendations {
		if r.SuggestedVersion != "" && r.AutoResolvable {
			return r, true
		}
	}
	return Recommendation{}, false
}

// BatchRecommendation is the verdict for a whole set of packages.
type BatchRecommendation string

const (
	BatchResolveConflicts BatchRecommendation = "resolve-conflicts"
	BatchManualVerify     BatchRecommendation = "manual-verify"
	BatchCanPublish       BatchRecommendation = "can-publish"
)

// BatchSummary counts package verdicts in a batch.
type BatchSummary struct {
	Total     int `json:"total" yaml:"total"`
	Conflicts int `json:"conflicts" yaml:"conflicts"`
	Safe      int `json:"safe" yaml:"safe"`
	Warnings  int `json:"warnings" yaml:"warnings"`
	Errors    int `json:"errors" yaml:"errors"`
}

// BatchAnalysis is the result of analyzing several packages in order.
type BatchAnalysis struct {
	Packages       []PackageAnalysis   `json:"packages" yaml:"packages"`
	Summary        BatchSummary        `json:"summary" yaml:"summary"`
	Recommendation BatchRecommendation `json:"recommendation" yaml:"recommendation"`
}
