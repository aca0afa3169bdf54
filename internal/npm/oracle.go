// Package npm answers whether a package version has been published to an npm
// registry. It asks the npm CLI first and falls back to the registry's REST API
// when the CLI cannot give a definite answer. Answers are cached per oracle.
package npm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/git-pkgs/pubcheck/client"
	"github.com/git-pkgs/pubcheck/internal/core"
	"github.com/git-pkgs/pubcheck/internal/semver"
	"github.com/git-pkgs/pubcheck/internal/ttlcache"
)

const (
	DefaultCLIPath     = "npm"
	DefaultCLITimeout  = 10 * time.Second
	DefaultHTTPTimeout = 10 * time.Second
	DefaultCacheTTL    = 5 * time.Minute
)

// transientMarkers are npm error codes that mean the registry was not reached.
var transientMarkers = []string{
	"ETIMEDOUT",
	"ESOCKETTIMEDOUT",
	"ECONNRESET",
	"ECONNREFUSED",
	"ENOTFOUND",
	"EAI_AGAIN",
	"ENETUNREACH",
	"EHOSTUNREACH",
}

// Options configures an Oracle. Zero values select the defaults.
type Options struct {
	CLIPath     string
	CLITimeout  time.Duration
	HTTPTimeout time.Duration
	CacheTTL    time.Duration
	RegistryURL string

	Runner Runner
	HTTP   *client.Client
	Now    func() time.Time
	Logger *zap.Logger
}

// Oracle checks package versions against one registry and memoizes the answers
// for CacheTTL. An Oracle owns its cache; separate instances never share one.
type Oracle struct {
	cliPath     string
	cliTimeout  time.Duration
	httpTimeout time.Duration
	urls        *client.URLs
	registryURL string

	runner     Runner
	http       *client.Client
	ownsClient bool
	now        func() time.Time
	logger     *zap.Logger

	checks   *ttlcache.Cache[core.RegistryCheckResult]
	versions *ttlcache.Cache[core.VersionList]
	group    singleflight.Group
}

// New creates an Oracle.
func New(opts Options) *Oracle {
	o := &Oracle{
		cliPath:     opts.CLIPath,
		cliTimeout:  opts.CLITimeout,
		httpTimeout: opts.HTTPTimeout,
		urls:        client.NewURLs(opts.RegistryURL),
		registryURL: opts.RegistryURL,
		runner:      opts.Runner,
		http:        opts.HTTP,
		now:         opts.Now,
		logger:      opts.Logger,
	}
	if o.cliPath == "" {
		o.cliPath = DefaultCLIPath
	}
	if o.cliTimeout <= 0 {
		o.cliTimeout = DefaultCLITimeout
	}
	if o.httpTimeout <= 0 {
		o.httpTimeout = DefaultHTTPTimeout
	}
	if o.runner == nil {
		o.runner = ExecRunner{}
	}
	if o.http == nil {
		o.http = client.NewClient(client.WithTimeout(o.httpTimeout))
		o.ownsClient = true
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	o.checks = ttlcache.New[core.RegistryCheckResult](ttl, ttlcache.WithClock(o.now))
	o.versions = ttlcache.New[core.VersionList](ttl, ttlcache.WithClock(o.now))
	return o
}

// Close releases the HTTP client if the Oracle created it.
func (o *Oracle) Close() error {
	if o.ownsClient {
		return o.http.Close()
	}
	return nil
}

// URLs returns the URL builder for the configured registry.
func (o *Oracle) URLs() *client.URLs {
	return o.urls
}

// CheckPackageExists reports whether name@version is published. It only
// returns an error for names that cannot be queried safely; registry failures
// produce a low-confidence result instead.
func (o *Oracle) CheckPackageExists(ctx context.Context, name, version string) (core.RegistryCheckResult, error) {
	if err := validateName(name); err != nil {
		return core.RegistryCheckResult{}, err
	}
	if version == "" || strings.HasPrefix(version, "-") {
		return core.RegistryCheckResult{}, fmt.Errorf("npm: invalid version %q for %s", version, name)
	}

	key := name + "@" + version
	if cached, ok := o.checks.Get(key); ok {
		o.logger.Debug("registry check cache hit", zap.String("package", key), zap.String("source", string(cached.Source)))
		return cached, nil
	}

	v, _, _ := o.group.Do("check:"+key, func() (any, error) {
		res := o.queryVersion(ctx, name, version)
		if res.Determinate() {
			o.checks.Set(key, res, res.LastChecked)
		}
		return res, nil
	})
	return v.(core.RegistryCheckResult), nil
}

type outcome int

const (
	outcomeFound outcome = iota
	outcomeNotFound
	outcomeTransient
)

func (o *Oracle) queryVersion(ctx context.Context, name, version string) core.RegistryCheckResult {
	checkedAt := o.now()
	key := name + "@" + version

	out, stdout, err := o.view(ctx, key, "version")
	switch out {
	case outcomeFound:
		// A spec that is not an exact version ("1.0", "^1.0.0", a dist-tag)
		// makes npm print whatever it resolves to.
		printed := payloadVersions(stdout)
		if !slices.Contains(printed, version) {
			o.logger.Debug("npm view resolved to other versions",
				zap.String("package", key), zap.Strings("printed", printed))
			return core.RegistryCheckResult{
				Exists:      false,
				Version:     version,
				Confidence:  core.ConfidenceCLI,
				Source:      core.SourceCLI,
				LastChecked: checkedAt,
				PackageInfo: core.PackageInfo{
					Published: false,
					Reason:    fmt.Sprintf("npm view resolved %s to %s, not an exact match", version, strings.Join(printed, ", ")),
				},
			}
		}
		o.logger.Debug("version published", zap.String("package", key), zap.String("source", string(core.SourceCLI)))
		return core.RegistryCheckResult{
			Exists:      true,
			Version:     version,
			Confidence:  core.ConfidenceCLI,
			Source:      core.SourceCLI,
			LastChecked: checkedAt,
			PackageInfo: core.PackageInfo{Published: true, Reason: "npm view returned " + version},
		}
	case outcomeNotFound:
		o.logger.Debug("version not published", zap.String("package", key), zap.String("source", string(core.SourceCLI)))
		return core.RegistryCheckResult{
			Exists:      false,
			Version:     version,
			Confidence:  core.ConfidenceCLI,
			Source:      core.SourceCLI,
			LastChecked: checkedAt,
			PackageInfo: core.PackageInfo{Published: false, Reason: "not found in registry"},
		}
	}

	o.logger.Debug("npm view failed, falling back to registry HTTP", zap.String("package", key), zap.Error(err))
	return o.headVersion(ctx, name, version, checkedAt)
}

// headVersion is the single, unretried HTTP fallback.
func (o *Oracle) headVersion(ctx context.Context, name, version string, checkedAt time.Time) core.RegistryCheckResult {
	ctx, cancel := context.WithTimeout(ctx, o.httpTimeout)
	defer cancel()

	url := o.urls.Version(name, version)
	if _, err := o.http.Head(ctx, url); err != nil {
		o.logger.Warn("registry HTTP check failed",
			zap.String("package", name+"@"+version),
			zap.String("url", url),
			zap.Int("status", client.StatusCode(err)),
			zap.Error(err))
		return core.RegistryCheckResult{
			Exists:      false,
			Version:     version,
			Confidence:  core.ConfidenceHTTPFailed,
			Source:      core.SourceHTTPFailed,
			LastChecked: checkedAt,
			PackageInfo: core.PackageInfo{Published: false, Reason: err.Error()},
			Warning:     core.ManualVerificationWarning,
		}
	}

	return core.RegistryCheckResult{
		Exists:      true,
		Version:     version,
		Confidence:  core.ConfidenceHTTP,
		Source:      core.SourceHTTP,
		LastChecked: checkedAt,
		PackageInfo: core.PackageInfo{Published: true, Reason: "registry HEAD succeeded"},
	}
}

// GetAllVersions lists every published version of name, oldest first. A
// failed lookup yields an empty list with Source registry-failed, which means
// "unknown" rather than "never published".
func (o *Oracle) GetAllVersions(ctx context.Context, name string) (core.VersionList, error) {
	if err := validateName(name); err != nil {
		return core.VersionList{}, err
	}

	key := name + "_versions"
	if cached, ok := o.versions.Get(key); ok {
		o.logger.Debug("version list cache hit", zap.String("package", name))
		return cached, nil
	}

	v, _, _ := o.group.Do("versions:"+key, func() (any, error) {
		list := o.queryVersions(ctx, name)
		if list.Known() {
			o.versions.Set(key, list, list.LastChecked)
		}
		return list, nil
	})
	return v.(core.VersionList), nil
}

func (o *Oracle) queryVersions(ctx context.Context, name string) core.VersionList {
	checkedAt := o.now()
	list := core.VersionList{Name: name, Versions: []string{}, LastChecked: checkedAt}

	out, stdout, err := o.view(ctx, name, "versions")
	switch out {
	case outcomeFound:
		list.Versions = parseVersionsPayload(stdout)
		list.Source = core.SourceCLI
		return list
	case outcomeNotFound:
		list.Source = core.SourceCLI
		return list
	}

	o.logger.Debug("npm view versions failed, falling back to registry HTTP", zap.String("package", name), zap.Error(err))

	ctx, cancel := context.WithTimeout(ctx, o.httpTimeout)
	defer cancel()

	var doc packument
	if err := o.http.GetJSON(ctx, o.urls.Packument(name), &doc); err != nil {
		if client.IsNotFound(err) {
			list.Source = core.SourceHTTP
			return list
		}
		o.logger.Warn("registry version list unavailable", zap.String("package", name), zap.Error(err))
		list.Source = core.SourceFailed
		return list
	}

	if dep := doc.deprecated(); len(dep) > 0 {
		o.logger.Debug("deprecated versions", zap.String("package", name), zap.Strings("versions", dep))
	}
	list.Versions = doc.versionNumbers()
	list.Source = core.SourceHTTP
	return list
}

// AnalyzePackageVersion combines the existence check with the published
// version list. A published version is a high-severity conflict with a
// suggested replacement; an indeterminate check is flagged, never a conflict.
func (o *Oracle) AnalyzePackageVersion(ctx context.Context, name, version string) (core.VersionAnalysis, error) {
	check, err := o.CheckPackageExists(ctx, name, version)
	if err != nil {
		return core.VersionAnalysis{}, err
	}
	list, err := o.GetAllVersions(ctx, name)
	if err != nil {
		return core.VersionAnalysis{}, err
	}

	analysis := core.VersionAnalysis{
		RegistryCheckResult: check,
		ConflictType:        core.ConflictNone,
		ConflictSeverity:    core.SeverityNone,
		Published:           list,
		LatestVersion:       semver.Latest(list.Versions),
	}

	if !check.Determinate() {
		analysis.ConflictType = core.ConflictRegistryCheckFailed
		return analysis, nil
	}

	if check.Exists {
		analysis.Conflict = true
		analysis.ConflictType = core.ConflictVersionExists
		analysis.ConflictSeverity = core.SeverityHigh
		analysis.SuggestedVersion = semver.SuggestNext(version, list.Versions)
	}
	return analysis, nil
}

// view runs `npm view <spec> <field> --json` and classifies the outcome.
func (o *Oracle) view(ctx context.Context, spec, field string) (outcome, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, o.cliTimeout)
	defer cancel()

	args := o.viewArgs(spec, field)
	res, err := o.runner.Run(ctx, o.cliPath, args...)
	if err != nil {
		return outcomeTransient, nil, &core.CommandError{
			Command:  o.cliPath,
			Args:     args,
			ExitCode: res.ExitCode,
			Stderr:   string(res.Stderr),
			Err:      err,
		}
	}

	if res.ExitCode == 0 {
		if len(bytes.TrimSpace(res.Stdout)) == 0 {
			// npm prints nothing for an unknown version of a known package.
			return outcomeNotFound, nil, nil
		}
		return outcomeFound, res.Stdout, nil
	}

	cmdErr := &core.CommandError{Command: o.cliPath, Args: args, ExitCode: res.ExitCode, Stderr: string(res.Stderr)}
	return classifyFailure(res), nil, cmdErr
}

func (o *Oracle) viewArgs(spec, field string) []string {
	args := []string{"view", spec, field, "--json"}
	if o.registryURL != "" {
		args = append(args, "--registry", o.urls.Base())
	}
	return args
}

// classifyFailure interprets a non-zero npm exit. An explicit 404 or a plain
// exit status 1 means "not published"; network error codes and other statuses
// mean the registry was not reached.
func classifyFailure(res Result) outcome {
	stderr := string(res.Stderr) + string(res.Stdout)
	if strings.Contains(stderr, "E404") || strings.Contains(stderr, "404 Not Found") {
		return outcomeNotFound
	}
	for _, marker := range transientMarkers {
		if strings.Contains(stderr, marker) {
			return outcomeTransient
		}
	}
	if res.ExitCode == 1 {
		return outcomeNotFound
	}
	return outcomeTransient
}

// payloadVersions reads the version strings printed by npm view --json: a
// bare string for one match, an array for several.
func payloadVersions(b []byte) []string {
	b = bytes.TrimSpace(b)
	versions := []string{}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		if s := strings.Trim(string(b), `"`); s != "" {
			versions = append(versions, s)
		}
		return versions
	}
	switch t := v.(type) {
	case string:
		versions = append(versions, t)
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok {
				versions = append(versions, s)
			}
		}
	}
	return versions
}

// parseVersionsPayload reads the `versions` field, sorted by precedence.
func parseVersionsPayload(b []byte) []string {
	versions := payloadVersions(b)
	sortVersions(versions)
	return versions
}

var errInvalidName = errors.New("invalid package name")

// validateName rejects names that npm would read as flags or that are empty.
func validateName(name string) error {
	if name == "" || strings.HasPrefix(name, "-") || strings.ContainsAny(name, " \t\n") {
		return fmt.Errorf("npm: %w: %q", errInvalidName, name)
	}
	return nil
}
