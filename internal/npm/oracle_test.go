package npm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/git-pkgs/pubcheck/client"
	"github.com/git-pkgs/pubcheck/internal/core"
)

type fakeRunner struct {
	mu      sync.Mutex
	calls   [][]string
	respond func(args []string) (Result, error)
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string{name}, args...))
	f.mu.Unlock()
	return f.respond(args)
}

func (f *fakeRunner) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// byField answers `npm view <spec> version` and `npm view <name> versions`
// with separate handlers.
func byField(version, versions func() (Result, error)) func([]string) (Result, error) {
	return func(args []string) (Result, error) {
		if args[2] == "versions" {
			return versions()
		}
		return version()
	}
}

func ok(stdout string) func() (Result, error) {
	return func() (Result, error) { return Result{Stdout: []byte(stdout)}, nil }
}

func exit(code int, stderr string) func() (Result, error) {
	return func() (Result, error) { return Result{ExitCode: code, Stderr: []byte(stderr)}, nil }
}

func timeout() func() (Result, error) {
	return func() (Result, error) { return Result{ExitCode: -1}, context.DeadlineExceeded }
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestOracle(t *testing.T, runner Runner, registryURL string, clock *fakeClock) *Oracle {
	t.Helper()
	if clock == nil {
		clock = &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	}
	httpClient := client.NewClient(client.WithTimeout(2 * time.Second))
	t.Cleanup(func() { _ = httpClient.Close() })
	return New(Options{
		Runner:      runner,
		HTTP:        httpClient,
		RegistryURL: registryURL,
		CacheTTL:    5 * time.Minute,
		Now:         clock.Now,
	})
}

func TestCheckPackageExistsCLIFound(t *testing.T) {
	runner := &fakeRunner{respond: byField(ok(`"1.0.0"`), ok(`["1.0.0"]`))}
	o := newTestOracle(t, runner, "", nil)

	res, err := o.CheckPackageExists(context.Background(), "a", "1.0.0")
	if err != nil {
		t.Fatalf("CheckPackageExists failed: %v", err)
	}
	if !res.Exists {
		t.Error("expected Exists = true")
	}
	if res.Confidence != 1.0 {
		t.Errorf("Confidence = %v, want 1.0", res.Confidence)
	}
	if res.Source != core.SourceCLI {
		t.Errorf("Source = %q, want %q", res.Source, core.SourceCLI)
	}

	want := []string{"npm", "view", "a@1.0.0", "version", "--json"}
	if got := runner.calls[0]; strings.Join(got, " ") != strings.Join(want, " ") {
		t.Errorf("command = %v, want %v", got, want)
	}
}

func TestCheckPackageExistsCachedWithinTTL(t *testing.T) {
	runner := &fakeRunner{respond: byField(ok(`"1.0.0"`), ok(`[]`))}
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	o := newTestOracle(t, runner, "", clock)
	ctx := context.Background()

	first, _ := o.CheckPackageExists(ctx, "a", "1.0.0")
	clock.Advance(4 * time.Minute)
	second, _ := o.CheckPackageExists(ctx, "a", "1.0.0")

	if runner.count() != 1 {
		t.Errorf("registry queries = %d, want 1", runner.count())
	}
	if !second.LastChecked.Equal(first.LastChecked) {
		t.Errorf("cached LastChecked = %v, want %v", second.LastChecked, first.LastChecked)
	}
}

func TestCheckPackageExistsRequeriesAfterTTL(t *testing.T) {
	runner := &fakeRunner{respond: byField(ok(`"1.0.0"`), ok(`[]`))}
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	o := newTestOracle(t, runner, "", clock)
	ctx := context.Background()

	_, _ = o.CheckPackageExists(ctx, "a", "1.0.0")
	clock.Advance(5*time.Minute + time.Second)
	res, _ := o.CheckPackageExists(ctx, "a", "1.0.0")

	if runner.count() != 2 {
		t.Errorf("registry queries = %d, want 2", runner.count())
	}
	if !res.LastChecked.Equal(clock.Now()) {
		t.Errorf("LastChecked = %v, want fresh timestamp %v", res.LastChecked, clock.Now())
	}
}

func TestCheckPackageExistsCLINegative(t *testing.T) {
	tests := []struct {
		name    string
		respond func() (Result, error)
	}{
		{"empty output", ok("")},
		{"E404", exit(1, "npm ERR! code E404\nnpm ERR! 404 Not Found - GET https://registry.npmjs.org/a - Not found")},
		{"404 in json stdout", func() (Result, error) {
			return Result{ExitCode: 1, Stdout: []byte(`{"error":{"code":"E404","summary":"Not Found"}}`)}, nil
		}},
		{"plain exit 1", exit(1, "npm ERR! something odd")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{respond: byField(tt.respond, ok(`[]`))}
			o := newTestOracle(t, runner, "", nil)

			res, err := o.CheckPackageExists(context.Background(), "a", "9.9.9")
			if err != nil {
				t.Fatalf("CheckPackageExists failed: %v", err)
			}
			if res.Exists {
				t.Error("expected Exists = false")
			}
			if res.Confidence != 1.0 || res.Source != core.SourceCLI {
				t.Errorf("got confidence %v source %q, want 1.0 %q", res.Confidence, res.Source, core.SourceCLI)
			}
		})
	}
}

func TestCheckPackageExistsInexactSpec(t *testing.T) {
	tests := []struct {
		name    string
		version string
		stdout  string
	}{
		{"partial version", "1.0", `["1.0.1","1.0.2"]`},
		{"caret range", "^1.0.0", `["1.0.1","1.2.0"]`},
		{"dist-tag", "next", `"2.0.0-rc.1"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{respond: byField(ok(tt.stdout), ok(`["1.0.1","1.0.2","1.2.0","2.0.0-rc.1"]`))}
			o := newTestOracle(t, runner, "", nil)

			a, err := o.AnalyzePackageVersion(context.Background(), "a", tt.version)
			if err != nil {
				t.Fatalf("AnalyzePackageVersion failed: %v", err)
			}
			if a.Exists || a.Conflict {
				t.Errorf("got exists=%v conflict=%v, want false false", a.Exists, a.Conflict)
			}
			if a.Source != core.SourceCLI || a.Confidence != 1.0 {
				t.Errorf("got source %q confidence %v, want %q 1.0", a.Source, a.Confidence, core.SourceCLI)
			}
			if a.SuggestedVersion != "" {
				t.Errorf("SuggestedVersion = %q, want empty", a.SuggestedVersion)
			}
			if a.ConflictType != core.ConflictNone {
				t.Errorf("ConflictType = %q, want %q", a.ConflictType, core.ConflictNone)
			}
		})
	}
}

func TestCheckPackageExistsExactMatchInArray(t *testing.T) {
	runner := &fakeRunner{respond: byField(ok(`["1.0.0","1.0.1"]`), ok(`[]`))}
	o := newTestOracle(t, runner, "", nil)

	res, err := o.CheckPackageExists(context.Background(), "a", "1.0.1")
	if err != nil {
		t.Fatalf("CheckPackageExists failed: %v", err)
	}
	if !res.Exists {
		t.Error("expected Exists = true when the exact version is among the printed ones")
	}
}

func TestCheckPackageExistsHTTPFallback(t *testing.T) {
	var headPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			t.Errorf("expected HEAD, got %s", r.Method)
		}
		headPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	runner := &fakeRunner{respond: byField(timeout(), timeout())}
	o := newTestOracle(t, runner, server.URL, nil)

	res, err := o.CheckPackageExists(context.Background(), "a", "1.0.0")
	if err != nil {
		t.Fatalf("CheckPackageExists failed: %v", err)
	}
	if !res.Exists || res.Confidence != 0.9 || res.Source != core.SourceHTTP {
		t.Errorf("got exists=%v confidence=%v source=%q, want true 0.9 %q", res.Exists, res.Confidence, res.Source, core.SourceHTTP)
	}
	if headPath != "/a/1.0.0" {
		t.Errorf("HEAD path = %q, want /a/1.0.0", headPath)
	}
}

func TestCheckPackageExistsNetworkMarkerFallsBack(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	runner := &fakeRunner{respond: byField(exit(1, "npm ERR! code ETIMEDOUT"), ok(`[]`))}
	o := newTestOracle(t, runner, server.URL, nil)

	res, _ := o.CheckPackageExists(context.Background(), "a", "1.0.0")
	if res.Source != core.SourceHTTP {
		t.Errorf("Source = %q, want %q", res.Source, core.SourceHTTP)
	}
}

func TestCheckPackageExistsHTTPFailureIsNotCached(t *testing.T) {
	var heads int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		heads++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	runner := &fakeRunner{respond: byField(timeout(), timeout())}
	o := newTestOracle(t, runner, server.URL, nil)
	ctx := context.Background()

	res, err := o.CheckPackageExists(ctx, "a", "1.0.0")
	if err != nil {
		t.Fatalf("CheckPackageExists failed: %v", err)
	}
	if res.Exists {
		t.Error("expected fail-open Exists = false")
	}
	if res.Confidence != 0.3 || res.Source != core.SourceHTTPFailed {
		t.Errorf("got confidence %v source %q, want 0.3 %q", res.Confidence, res.Source, core.SourceHTTPFailed)
	}
	if res.Warning != core.ManualVerificationWarning {
		t.Errorf("Warning = %q, want %q", res.Warning, core.ManualVerificationWarning)
	}
	if res.Determinate() {
		t.Error("failed HTTP check must not be determinate")
	}

	_, _ = o.CheckPackageExists(ctx, "a", "1.0.0")
	if runner.count() != 2 || heads != 2 {
		t.Errorf("runner calls = %d, HEAD calls = %d, want 2 and 2", runner.count(), heads)
	}
}

func TestCheckPackageExistsRejectsFlagLikeNames(t *testing.T) {
	runner := &fakeRunner{respond: byField(ok(`"1.0.0"`), ok(`[]`))}
	o := newTestOracle(t, runner, "", nil)

	for _, name := range []string{"", "--registry=http://evil", "a b"} {
		if _, err := o.CheckPackageExists(context.Background(), name, "1.0.0"); !errors.Is(err, errInvalidName) {
			t.Errorf("CheckPackageExists(%q) = %v, want errInvalidName", name, err)
		}
	}
	if _, err := o.CheckPackageExists(context.Background(), "a", "--json"); err == nil {
		t.Error("expected error for flag-like version")
	}
	if runner.count() != 0 {
		t.Errorf("runner calls = %d, want 0", runner.count())
	}
}

func TestViewArgsWithRegistry(t *testing.T) {
	runner := &fakeRunner{respond: byField(ok(`"1.0.0"`), ok(`[]`))}
	o := newTestOracle(t, runner, "https://npm.internal.example/", nil)

	_, _ = o.CheckPackageExists(context.Background(), "@acme/widgets", "1.0.0")

	want := "npm view @acme/widgets@1.0.0 version --json --registry https://npm.internal.example"
	if got := strings.Join(runner.calls[0], " "); got != want {
		t.Errorf("command = %q, want %q", got, want)
	}
}

func TestGetAllVersionsCLI(t *testing.T) {
	tests := []struct {
		name   string
		stdout string
		want   []string
	}{
		{"array", `["1.0.0","1.10.0","1.2.0"]`, []string{"1.0.0", "1.2.0", "1.10.0"}},
		{"single string", `"0.1.0"`, []string{"0.1.0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{respond: byField(ok(""), ok(tt.stdout))}
			o := newTestOracle(t, runner, "", nil)

			list, err := o.GetAllVersions(context.Background(), "a")
			if err != nil {
				t.Fatalf("GetAllVersions failed: %v", err)
			}
			if strings.Join(list.Versions, ",") != strings.Join(tt.want, ",") {
				t.Errorf("Versions = %v, want %v", list.Versions, tt.want)
			}
			if list.Source != core.SourceCLI {
				t.Errorf("Source = %q, want %q", list.Source, core.SourceCLI)
			}
		})
	}
}

func TestGetAllVersionsNeverPublished(t *testing.T) {
	runner := &fakeRunner{respond: byField(ok(""), exit(1, "npm ERR! code E404"))}
	o := newTestOracle(t, runner, "", nil)

	list, err := o.GetAllVersions(context.Background(), "brand-new")
	if err != nil {
		t.Fatalf("GetAllVersions failed: %v", err)
	}
	if len(list.Versions) != 0 || !list.Known() {
		t.Errorf("got %v known=%v, want empty known list", list.Versions, list.Known())
	}
}

func TestGetAllVersionsHTTPFallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{
			"_id":       "a",
			"name":      "a",
			"dist-tags": map[string]string{"latest": "1.1.0"},
			"versions": map[string]any{
				"1.0.0": map[string]any{"version": "1.0.0", "deprecated": "use 1.1.0"},
				"1.1.0": map[string]any{"version": "1.1.0"},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	runner := &fakeRunner{respond: byField(timeout(), timeout())}
	o := newTestOracle(t, runner, server.URL, nil)

	list, err := o.GetAllVersions(context.Background(), "a")
	if err != nil {
		t.Fatalf("GetAllVersions failed: %v", err)
	}
	if strings.Join(list.Versions, ",") != "1.0.0,1.1.0" {
		t.Errorf("Versions = %v, want [1.0.0 1.1.0]", list.Versions)
	}
	if list.Source != core.SourceHTTP {
		t.Errorf("Source = %q, want %q", list.Source, core.SourceHTTP)
	}
}

func TestGetAllVersionsFailureIsUnknownAndUncached(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	runner := &fakeRunner{respond: byField(timeout(), timeout())}
	o := newTestOracle(t, runner, server.URL, nil)
	ctx := context.Background()

	list, err := o.GetAllVersions(ctx, "a")
	if err != nil {
		t.Fatalf("GetAllVersions failed: %v", err)
	}
	if list.Source != core.SourceFailed || list.Known() {
		t.Errorf("Source = %q known=%v, want %q unknown", list.Source, list.Known(), core.SourceFailed)
	}
	if list.Versions == nil || len(list.Versions) != 0 {
		t.Errorf("Versions = %#v, want empty non-nil slice", list.Versions)
	}

	_, _ = o.GetAllVersions(ctx, "a")
	if runner.count() != 2 {
		t.Errorf("runner calls = %d, want 2", runner.count())
	}
}

func TestAnalyzePackageVersionConflict(t *testing.T) {
	runner := &fakeRunner{respond: byField(ok(`"1.2.3"`), ok(`["1.2.2","1.2.3","1.2.4"]`))}
	o := newTestOracle(t, runner, "", nil)

	a, err := o.AnalyzePackageVersion(context.Background(), "a", "1.2.3")
	if err != nil {
		t.Fatalf("AnalyzePackageVersion failed: %v", err)
	}
	if !a.Conflict {
		t.Fatal("expected conflict")
	}
	if a.ConflictType != core.ConflictVersionExists || a.ConflictSeverity != core.SeverityHigh {
		t.Errorf("got %q/%q, want version-exists/high", a.ConflictType, a.ConflictSeverity)
	}
	if a.SuggestedVersion != "1.3.0" {
		t.Errorf("SuggestedVersion = %q, want 1.3.0", a.SuggestedVersion)
	}
	if a.LatestVersion != "1.2.4" {
		t.Errorf("LatestVersion = %q, want 1.2.4", a.LatestVersion)
	}
}

func TestAnalyzePackageVersionNoConflict(t *testing.T) {
	runner := &fakeRunner{respond: byField(ok(""), ok(`["1.0.0"]`))}
	o := newTestOracle(t, runner, "", nil)

	a, err := o.AnalyzePackageVersion(context.Background(), "a", "1.1.0")
	if err != nil {
		t.Fatalf("AnalyzePackageVersion failed: %v", err)
	}
	if a.Conflict || a.ConflictType != core.ConflictNone {
		t.Errorf("got conflict=%v type=%q, want no conflict", a.Conflict, a.ConflictType)
	}
	if a.SuggestedVersion != "" {
		t.Errorf("SuggestedVersion = %q, want empty", a.SuggestedVersion)
	}
}

func TestAnalyzePackageVersionIndeterminate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	runner := &fakeRunner{respond: byField(timeout(), timeout())}
	o := newTestOracle(t, runner, server.URL, nil)

	a, err := o.AnalyzePackageVersion(context.Background(), "a", "1.0.0")
	if err != nil {
		t.Fatalf("AnalyzePackageVersion failed: %v", err)
	}
	if a.Conflict {
		t.Error("indeterminate check must not be a conflict")
	}
	if a.ConflictType != core.ConflictRegistryCheckFailed {
		t.Errorf("ConflictType = %q, want %q", a.ConflictType, core.ConflictRegistryCheckFailed)
	}
}

func TestClassifyFailure(t *testing.T) {
	tests := []struct {
		name string
		res  Result
		want outcome
	}{
		{"E404", Result{ExitCode: 1, Stderr: []byte("npm ERR! code E404")}, outcomeNotFound},
		{"ENOTFOUND", Result{ExitCode: 1, Stderr: []byte("npm ERR! code ENOTFOUND")}, outcomeTransient},
		{"ECONNRESET", Result{ExitCode: 1, Stderr: []byte("npm ERR! code ECONNRESET")}, outcomeTransient},
		{"exit 1", Result{ExitCode: 1}, outcomeNotFound},
		{"killed", Result{ExitCode: 137}, outcomeTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyFailure(tt.res); got != tt.want {
				t.Errorf("classifyFailure = %v, want %v", got, tt.want)
			}
		})
	}
}
