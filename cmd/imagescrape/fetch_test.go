package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nao1215/imagescrape/internal/config"
	"github.com/nao1215/imagescrape/internal/database"
	"github.com/nao1215/imagescrape/internal/model"
	"github.com/nao1215/imagescrape/internal/pipeline"
	"github.com/nao1215/imagescrape/internal/report"
)

// roundTripFunc serves requests without touching the network.
type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

const fakeSearchPage = `<html><body>
<img src="https://encrypted-tbn0.gstatic.com/images/thumb.jpg">
<img src="https://img.example.com/photos/a.jpg">
<a href="https://img.example.com/photos/b.png">b</a>
<div data-src="https://img.example.com/photos/c.gif"></div>
</body></html>`

// fakeImageSearch answers search requests with fakeSearchPage and image
// requests with a small payload. Paths in missing answer 404 and paths in
// broken fail before any response.
type fakeImageSearch struct {
	mu       sync.Mutex
	requests []*http.Request
	missing  map[string]bool
	broken   map[string]bool
}

var errConnectionReset = errors.New("connection reset by peer")

func (f *fakeImageSearch) RoundTrip(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if f.broken[req.URL.Path] {
		return nil, errConnectionReset
	}

	resp := &http.Response{
		StatusCode: http.StatusOK,
		Header:     make(http.Header),
		Request:    req,
	}

	switch {
	case req.URL.Host == "search.example.com":
		resp.Header.Set("Content-Type", "text/html; charset=utf-8")
		resp.Body = io.NopCloser(strings.NewReader(fakeSearchPage))
	case req.URL.Host == "img.example.com" && !f.missing[req.URL.Path]:
		resp.Header.Set("Content-Type", "application/octet-stream")
		resp.Body = io.NopCloser(strings.NewReader("image bytes of " + req.URL.Path))
	default:
		resp.StatusCode = http.StatusNotFound
		resp.Body = io.NopCloser(strings.NewReader("not found"))
	}
	return resp, nil
}

func (f *fakeImageSearch) searchRequests() []*http.Request {
	f.mu.Lock()
	defer f.mu.Unlock()

	var reqs []*http.Request
	for _, r := range f.requests {
		if r.URL.Host == "search.example.com" {
			reqs = append(reqs, r)
		}
	}
	return reqs
}

func newTestConfig(t *testing.T, queries ...string) *config.Config {
	t.Helper()

	tmpDir := t.TempDir()
	cfg := config.NewConfig()
	cfg.Queries = queries
	cfg.DataDir = filepath.Join(tmpDir, "data")
	cfg.DBDir = filepath.Join(tmpDir, "db")
	cfg.SearchEndpoint = "https://search.example.com/search"
	cfg.ReverseEndpoint = "https://search.example.com/searchbyimage"
	cfg.Timeout = 5 * time.Second
	return cfg
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBuildConfig(t *testing.T) {
	t.Parallel()

	t.Run("builds config with default values", func(t *testing.T) {
		t.Parallel()

		cmd := NewRootCmd()
		if err := cmd.ParseFlags([]string{"-q", "cute cats"}); err != nil {
			t.Fatalf("failed to parse flags: %v", err)
		}

		cfg, err := buildConfig(cmd)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(cfg.Queries) != 1 || cfg.Queries[0] != "cute cats" {
			t.Errorf("expected queries [cute cats], got %v", cfg.Queries)
		}
		if cfg.NumExplicit {
			t.Error("expected NumExplicit to be false")
		}
		if cfg.BatchSize != config.DefaultBatchSize {
			t.Errorf("expected batch size %d, got %d", config.DefaultBatchSize, cfg.BatchSize)
		}
		if !cfg.SaveHistory {
			t.Error("expected SaveHistory to be true")
		}
		if cfg.Reverse || cfg.KeepGoing || cfg.UseTor {
			t.Error("expected boolean flags to default to false")
		}
	})

	t.Run("applies flags", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		cmd := NewRootCmd()
		args := []string{
			"-q", "cats", "-q", "dogs",
			"-n", "7",
			"-D", dir,
			"-t", "15s",
			"-x", "127.0.0.1:9150",
			"-b", "3",
			"-k",
			"--json",
			"-o", "out.json",
			"--no-history",
			"--log-json",
			"-v",
		}
		if err := cmd.ParseFlags(args); err != nil {
			t.Fatalf("failed to parse flags: %v", err)
		}

		cfg, err := buildConfig(cmd)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if len(cfg.Queries) != 2 || cfg.Queries[1] != "dogs" {
			t.Errorf("expected two queries, got %v", cfg.Queries)
		}
		if cfg.Num != 7 || !cfg.NumExplicit {
			t.Errorf("expected explicit num 7, got %d (explicit=%v)", cfg.Num, cfg.NumExplicit)
		}
		if cfg.DataDir != dir {
			t.Errorf("expected DataDir %q, got %q", dir, cfg.DataDir)
		}
		if cfg.Timeout != 15*time.Second {
			t.Errorf("expected timeout 15s, got %v", cfg.Timeout)
		}
		if cfg.ProxyAddress != "127.0.0.1:9150" {
			t.Errorf("expected proxy 127.0.0.1:9150, got %q", cfg.ProxyAddress)
		}
		if cfg.BatchSize != 3 {
			t.Errorf("expected batch size 3, got %d", cfg.BatchSize)
		}
		if !cfg.KeepGoing || !cfg.JSONReport || cfg.MarkdownReport {
			t.Error("unexpected report or keep-going settings")
		}
		if cfg.ReportFile != "out.json" {
			t.Errorf("expected report file out.json, got %q", cfg.ReportFile)
		}
		if cfg.SaveHistory {
			t.Error("expected SaveHistory to be false")
		}
		if !cfg.LogJSON || !cfg.Verbose {
			t.Error("expected LogJSON and Verbose to be true")
		}
	})

	t.Run("config file values apply unless a flag overrides them", func(t *testing.T) {
		t.Parallel()

		tmpDir := t.TempDir()
		configFile := filepath.Join(tmpDir, ".imagescrape")
		configContent := `data_dir: "` + filepath.ToSlash(filepath.Join(tmpDir, "images")) + `"
timeout: 30s
defaults:
  num: 12
  blocked_hosts:
    - thumbs.example.com
queries:
  cats:
    num: 4
`
		if err := os.WriteFile(configFile, []byte(configContent), 0o600); err != nil {
			t.Fatalf("failed to create config file: %v", err)
		}

		cmd := NewRootCmd()
		if err := cmd.ParseFlags([]string{"--config", configFile, "-q", "cats", "-t", "10s"}); err != nil {
			t.Fatalf("failed to parse flags: %v", err)
		}

		cfg, err := buildConfig(cmd)
		if err != nil {
			t.Fatalf("buildConfig() error = %v", err)
		}

		if cfg.Num != 12 || cfg.NumExplicit {
			t.Errorf("expected num 12 from defaults, got %d (explicit=%v)", cfg.Num, cfg.NumExplicit)
		}
		if cfg.DataDir != filepath.Join(tmpDir, "images") {
			t.Errorf("expected DataDir from file, got %q", cfg.DataDir)
		}
		if cfg.Timeout != 10*time.Second {
			t.Errorf("expected flag timeout 10s, got %v", cfg.Timeout)
		}
		if len(cfg.BlockedHosts) != 1 || cfg.BlockedHosts[0] != "thumbs.example.com" {
			t.Errorf("expected blocked hosts from file, got %v", cfg.BlockedHosts)
		}
		if got := cfg.File.GetQueryConfig("cats").Num; got != 4 {
			t.Errorf("expected per-query num 4, got %d", got)
		}
	})

	t.Run("returns error for missing explicit config file", func(t *testing.T) {
		t.Parallel()

		cmd := NewRootCmd()
		missing := filepath.Join(t.TempDir(), "missing.yaml")
		if err := cmd.ParseFlags([]string{"--config", missing}); err != nil {
			t.Fatalf("failed to parse flags: %v", err)
		}

		_, err := buildConfig(cmd)
		if !errors.Is(err, config.ErrConfigNotFound) {
			t.Errorf("expected ErrConfigNotFound, got %v", err)
		}
	})

	t.Run("returns error for invalid config file", func(t *testing.T) {
		t.Parallel()

		configFile := filepath.Join(t.TempDir(), ".imagescrape")
		if err := os.WriteFile(configFile, []byte("invalid: yaml: content: ["), 0o600); err != nil {
			t.Fatalf("failed to create config file: %v", err)
		}

		cmd := NewRootCmd()
		if err := cmd.ParseFlags([]string{"--config", configFile}); err != nil {
			t.Fatalf("failed to parse flags: %v", err)
		}

		if _, err := buildConfig(cmd); err == nil {
			t.Error("expected error for invalid config file")
		}
	})
}

func TestBuildRuns(t *testing.T) {
	t.Parallel()

	t.Run("creates one run per query", func(t *testing.T) {
		t.Parallel()

		cfg := newTestConfig(t, "cute cats", "sleepy/dogs")
		cfg.Num = 5

		runs, err := buildRuns(cfg)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(runs) != 2 {
			t.Fatalf("expected 2 runs, got %d", len(runs))
		}

		wantDirs := []string{
			filepath.Join(cfg.DataDir, "cute-cats"),
			filepath.Join(cfg.DataDir, "sleepy-dogs"),
		}
		for i, run := range runs {
			if run.Directory != wantDirs[i] {
				t.Errorf("run %d: expected directory %q, got %q", i, wantDirs[i], run.Directory)
			}
			if run.Requested != 5 {
				t.Errorf("run %d: expected 5 requested, got %d", i, run.Requested)
			}
			if run.Query.Mode != model.ModeTextSearch {
				t.Errorf("run %d: expected text search mode", i)
			}
		}
		if runs[0].ID == runs[1].ID {
			t.Error("expected unique run IDs")
		}
	})

	t.Run("rejects empty query", func(t *testing.T) {
		t.Parallel()

		cfg := newTestConfig(t, "   ")
		if _, err := buildRuns(cfg); err == nil {
			t.Error("expected error for blank query")
		}
	})

	t.Run("reverse mode needs image URLs", func(t *testing.T) {
		t.Parallel()

		cfg := newTestConfig(t, "not a url")
		cfg.Reverse = true
		if _, err := buildRuns(cfg); !errors.Is(err, errInvalidImageURL) {
			t.Errorf("expected errInvalidImageURL, got %v", err)
		}

		cfg = newTestConfig(t, "https://img.example.com/cat.jpg")
		cfg.Reverse = true
		runs, err := buildRuns(cfg)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if runs[0].Query.Mode != model.ModeReverseImageSearch {
			t.Error("expected reverse image search mode")
		}
	})

	t.Run("per-query num applies unless num is explicit", func(t *testing.T) {
		t.Parallel()

		cfg := newTestConfig(t, "cats", "dogs")
		cfg.File.Queries["cats"] = config.QueryConfig{Num: 3}

		runs, err := buildRuns(cfg)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if runs[0].Requested != 3 {
			t.Errorf("expected per-query num 3, got %d", runs[0].Requested)
		}
		if runs[1].Requested != config.DefaultNum {
			t.Errorf("expected default num %d, got %d", config.DefaultNum, runs[1].Requested)
		}

		cfg.Num = 9
		cfg.NumExplicit = true
		runs, err = buildRuns(cfg)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if runs[0].Requested != 9 {
			t.Errorf("expected explicit num 9, got %d", runs[0].Requested)
		}
	})
}

func TestValidateImageURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw     string
		wantErr bool
	}{
		{"https://example.com/a.jpg", false},
		{"http://example.com/a.png", false},
		{"ftp://example.com/a.jpg", true},
		{"example.com/a.jpg", true},
		{"https://", true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			t.Parallel()
			err := validateImageURL(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateImageURL(%q) error = %v, wantErr %v", tt.raw, err, tt.wantErr)
			}
		})
	}
}

func TestJoinRunErrors(t *testing.T) {
	t.Parallel()

	mkRun := func(text string) *model.Run {
		q, err := model.NewQuery(text, model.ModeTextSearch)
		if err != nil {
			t.Fatalf("NewQuery: %v", err)
		}
		return model.NewRun(q, 1, t.TempDir())
	}

	t.Run("no failures returns batch error", func(t *testing.T) {
		t.Parallel()
		runs := []*model.Run{mkRun("cats")}
		if err := joinRunErrors(runs, nil); err != nil {
			t.Errorf("expected nil, got %v", err)
		}
		if err := joinRunErrors(runs, context.Canceled); !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})

	t.Run("joins run errors", func(t *testing.T) {
		t.Parallel()
		errBoom := errors.New("boom")
		a, b, c := mkRun("cats"), mkRun("dogs"), mkRun("birds")
		a.SetError(errBoom)
		c.ErrorMessage = "stored failure"

		err := joinRunErrors([]*model.Run{a, b, c}, nil)
		if !errors.Is(err, errBoom) {
			t.Errorf("expected wrapped errBoom, got %v", err)
		}
		msg := err.Error()
		for _, want := range []string{`query "cats"`, `query "birds": stored failure`} {
			if !strings.Contains(msg, want) {
				t.Errorf("expected %q in %q", want, msg)
			}
		}
		if strings.Contains(msg, "dogs") {
			t.Errorf("successful run reported: %q", msg)
		}
	})
}

func TestSetupLogger(t *testing.T) {
	t.Parallel()

	t.Run("text logger", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		logger := setupLogger(&buf, false, false)
		logger.Warn("hello", "token", "s3cr3t")
		out := buf.String()
		if !strings.Contains(out, "msg=hello") {
			t.Errorf("expected text output, got %q", out)
		}
		if strings.Contains(out, "s3cr3t") {
			t.Errorf("expected token to be masked, got %q", out)
		}
	})

	t.Run("json logger", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		logger := setupLogger(&buf, true, true)
		logger.Debug("hello")
		var entry map[string]any
		if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
			t.Fatalf("expected JSON output: %v (%q)", err, buf.String())
		}
		if entry["msg"] != "hello" {
			t.Errorf("expected msg hello, got %v", entry["msg"])
		}
	})

	t.Run("quiet by default", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		setupLogger(&buf, false, false).Info("hidden")
		if buf.Len() != 0 {
			t.Errorf("expected info to be filtered, got %q", buf.String())
		}
	})
}

func TestOutputReport(t *testing.T) {
	t.Parallel()

	newRuns := func(t *testing.T) []*model.Run {
		t.Helper()
		q, err := model.NewQuery("cute cats", model.ModeTextSearch)
		if err != nil {
			t.Fatalf("NewQuery: %v", err)
		}
		run := model.NewRun(q, 2, t.TempDir())
		run.AddImage(model.NewImageRecord(q, "https://img.example.com/a.jpg", time.Now()))
		run.Finish()
		return []*model.Run{run}
	}

	t.Run("simple format to stdout", func(t *testing.T) {
		t.Parallel()
		cfg := config.NewConfig()
		var buf bytes.Buffer
		if err := outputReport(cfg, newRuns(t), &buf); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "cute cats") {
			t.Errorf("expected query in output, got %q", buf.String())
		}
	})

	t.Run("json format", func(t *testing.T) {
		t.Parallel()
		cfg := config.NewConfig()
		cfg.JSONReport = true
		var buf bytes.Buffer
		if err := outputReport(cfg, newRuns(t), &buf); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var out struct {
			Runs []*model.Run `json:"runs"`
		}
		if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if len(out.Runs) != 1 || out.Runs[0].Query.Text != "cute cats" {
			t.Errorf("unexpected runs: %+v", out.Runs)
		}
	})

	t.Run("markdown format to file with a plain summary on stdout", func(t *testing.T) {
		t.Parallel()
		cfg := config.NewConfig()
		cfg.MarkdownReport = true
		cfg.ReportFile = filepath.Join(t.TempDir(), "reports", "summary.md")

		var stdout bytes.Buffer
		if err := outputReport(cfg, newRuns(t), &stdout); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(stdout.String(), "cute cats") || strings.Contains(stdout.String(), "# imagescrape Report") {
			t.Errorf("expected a plain summary on stdout, got %q", stdout.String())
		}

		content, err := os.ReadFile(cfg.ReportFile)
		if err != nil {
			t.Fatalf("failed to read report: %v", err)
		}
		if !strings.Contains(string(content), "# imagescrape Report") {
			t.Errorf("expected markdown heading, got %q", string(content))
		}
	})
}

func TestSaveRunWithoutDatabase(t *testing.T) {
	t.Parallel()

	q, err := model.NewQuery("cats", model.ModeTextSearch)
	if err != nil {
		t.Fatalf("NewQuery: %v", err)
	}
	if err := saveRun(context.Background(), nil, model.NewRun(q, 1, t.TempDir()), discardLogger()); err != nil {
		t.Errorf("expected nil db to be a no-op, got %v", err)
	}
}

func TestRunFetch(t *testing.T) {
	t.Parallel()

	t.Run("fetches, records and remembers a query", func(t *testing.T) {
		t.Parallel()

		cfg := newTestConfig(t, "cute cats")
		cfg.Num = 2
		fake := &fakeImageSearch{}
		var stdout, stderr bytes.Buffer

		err := runFetch(context.Background(), cfg, discardLogger(), fetchEnv{
			stdout:       &stdout,
			stderr:       &stderr,
			roundTripper: fake,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		reqs := fake.searchRequests()
		if len(reqs) != 1 {
			t.Fatalf("expected 1 search request, got %d", len(reqs))
		}
		if got := reqs[0].URL.Query().Get("q"); got != "cute cats" {
			t.Errorf("expected q=cute cats, got %q", got)
		}
		if got := reqs[0].Header.Get("User-Agent"); got != config.DefaultUserAgent {
			t.Errorf("expected default user agent, got %q", got)
		}

		dir := filepath.Join(cfg.DataDir, "cute-cats")
		f, err := os.Open(filepath.Join(dir, pipeline.SidecarFilename))
		if err != nil {
			t.Fatalf("failed to open sidecar: %v", err)
		}
		defer f.Close() //nolint:errcheck // test
		records, err := report.ReadSidecar(f)
		if err != nil {
			t.Fatalf("failed to read sidecar: %v", err)
		}
		if len(records) != 2 {
			t.Fatalf("expected 2 records, got %d", len(records))
		}
		for _, r := range records {
			if strings.Contains(r.SourceURL, "gstatic") {
				t.Errorf("blocked host downloaded: %s", r.SourceURL)
			}
			data, err := os.ReadFile(filepath.Join(dir, r.Filename))
			if err != nil {
				t.Errorf("image %s not written: %v", r.Filename, err)
				continue
			}
			if !strings.HasPrefix(string(data), "image bytes of /photos/") {
				t.Errorf("unexpected content for %s: %q", r.Filename, data)
			}
		}

		if !strings.Contains(stdout.String(), "cute cats") {
			t.Errorf("expected summary on stdout, got %q", stdout.String())
		}
		if !strings.Contains(stderr.String(), "[1/1] cute cats: saved 2 of 2 requested images") {
			t.Errorf("expected progress line on stderr, got %q", stderr.String())
		}

		db, err := database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open history: %v", err)
		}
		defer db.Close() //nolint:errcheck // test
		runs, err := db.ListRuns(context.Background(), "", 0)
		if err != nil {
			t.Fatalf("ListRuns: %v", err)
		}
		if len(runs) != 1 {
			t.Fatalf("expected 1 run in history, got %d", len(runs))
		}
		if runs[0].Query != "cute cats" || runs[0].Saved != 2 || runs[0].Candidates != 3 {
			t.Errorf("unexpected history entry: %+v", runs[0])
		}
	})

	t.Run("no history leaves no database", func(t *testing.T) {
		t.Parallel()

		cfg := newTestConfig(t, "cats")
		cfg.Num = 1
		cfg.SaveHistory = false

		err := runFetch(context.Background(), cfg, discardLogger(), fetchEnv{
			stdout:       io.Discard,
			stderr:       io.Discard,
			roundTripper: &fakeImageSearch{},
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := os.Stat(filepath.Join(cfg.DBDir, database.Filename)); !os.IsNotExist(err) {
			t.Errorf("expected no history database, stat error = %v", err)
		}
	})

	t.Run("missing image is skipped", func(t *testing.T) {
		t.Parallel()

		cfg := newTestConfig(t, "cats")
		cfg.Num = 3
		fake := &fakeImageSearch{missing: map[string]bool{"/photos/b.png": true}}

		err := runFetch(context.Background(), cfg, discardLogger(), fetchEnv{
			stdout:       io.Discard,
			stderr:       io.Discard,
			roundTripper: fake,
		})
		if err != nil {
			t.Fatalf("a 404 must not fail the run: %v", err)
		}

		for _, name := range []string{"a.jpg", "c.gif"} {
			if _, err := os.Stat(filepath.Join(cfg.DataDir, "cats", name)); err != nil {
				t.Errorf("expected %s on disk: %v", name, err)
			}
		}

		db, err := database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open history: %v", err)
		}
		defer db.Close() //nolint:errcheck // test
		runs, err := db.ListRuns(context.Background(), "cats", 0)
		if err != nil {
			t.Fatalf("ListRuns: %v", err)
		}
		if len(runs) != 1 || runs[0].Error != "" || runs[0].Saved != 2 || runs[0].Failed != 1 {
			t.Fatalf("expected 2 saved and 1 failed, got %+v", runs)
		}
	})

	t.Run("transport failure aborts the run", func(t *testing.T) {
		t.Parallel()

		cfg := newTestConfig(t, "cats")
		cfg.Num = 3
		fake := &fakeImageSearch{broken: map[string]bool{"/photos/b.png": true}}

		err := runFetch(context.Background(), cfg, discardLogger(), fetchEnv{
			stdout:       io.Discard,
			stderr:       io.Discard,
			roundTripper: fake,
		})
		if !errors.Is(err, errConnectionReset) {
			t.Fatalf("expected connection error, got %v", err)
		}
		if !strings.Contains(err.Error(), `query "cats"`) {
			t.Errorf("expected query in error, got %v", err)
		}

		db, err := database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open history: %v", err)
		}
		defer db.Close() //nolint:errcheck // test
		runs, err := db.ListRuns(context.Background(), "cats", 0)
		if err != nil {
			t.Fatalf("ListRuns: %v", err)
		}
		if len(runs) != 1 || runs[0].Error == "" {
			t.Fatalf("expected failed run in history, got %+v", runs)
		}
		if runs[0].Saved > 2 {
			t.Errorf("expected at most 2 saved images, got %d", runs[0].Saved)
		}
	})

	t.Run("zero images searches but downloads nothing", func(t *testing.T) {
		t.Parallel()

		cfg := newTestConfig(t, "cats")
		cfg.Num = 0
		cfg.NumExplicit = true
		fake := &fakeImageSearch{}

		err := runFetch(context.Background(), cfg, discardLogger(), fetchEnv{
			stdout:       io.Discard,
			stderr:       io.Discard,
			roundTripper: fake,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := len(fake.searchRequests()); got != 1 {
			t.Errorf("expected 1 search request, got %d", got)
		}
		fake.mu.Lock()
		total := len(fake.requests)
		fake.mu.Unlock()
		if total != 1 {
			t.Errorf("expected no image requests, got %d requests in total", total)
		}
		if _, err := os.Stat(filepath.Join(cfg.DataDir, "cats")); !os.IsNotExist(err) {
			t.Errorf("expected no output directory, stat error = %v", err)
		}
	})

	t.Run("keep going records failures", func(t *testing.T) {
		t.Parallel()

		cfg := newTestConfig(t, "cats")
		cfg.Num = 3
		cfg.KeepGoing = true
		cfg.JSONReport = true
		fake := &fakeImageSearch{broken: map[string]bool{"/photos/b.png": true}}
		var stdout bytes.Buffer

		err := runFetch(context.Background(), cfg, discardLogger(), fetchEnv{
			stdout:       &stdout,
			stderr:       io.Discard,
			roundTripper: fake,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		var out struct {
			Runs []*model.Run `json:"runs"`
		}
		if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
			t.Fatalf("invalid JSON summary: %v", err)
		}
		if len(out.Runs) != 1 {
			t.Fatalf("expected 1 run, got %d", len(out.Runs))
		}
		run := out.Runs[0]
		if len(run.Images) != 2 || len(run.Failures) != 1 {
			t.Errorf("expected 2 images and 1 failure, got %d and %d", len(run.Images), len(run.Failures))
		}
		if len(run.Failures) == 1 && run.Failures[0].URL != "https://img.example.com/photos/b.png" {
			t.Errorf("unexpected failure: %+v", run.Failures[0])
		}
	})

	t.Run("cancelled context marks runs cancelled", func(t *testing.T) {
		t.Parallel()

		cfg := newTestConfig(t, "cats")
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := runFetch(ctx, cfg, discardLogger(), fetchEnv{
			stdout:       io.Discard,
			stderr:       io.Discard,
			roundTripper: &fakeImageSearch{},
		})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}

		db, err := database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open history: %v", err)
		}
		defer db.Close() //nolint:errcheck // test
		runs, err := db.ListRuns(context.Background(), "", 0)
		if err != nil {
			t.Fatalf("ListRuns: %v", err)
		}
		if len(runs) != 1 || !runs[0].Cancelled {
			t.Errorf("expected one cancelled run, got %+v", runs)
		}
	})

	t.Run("invalid reverse query fails before any request", func(t *testing.T) {
		t.Parallel()

		cfg := newTestConfig(t, "cats")
		cfg.Reverse = true
		fake := &fakeImageSearch{}

		err := runFetch(context.Background(), cfg, discardLogger(), fetchEnv{
			stdout:       io.Discard,
			stderr:       io.Discard,
			roundTripper: fake,
		})
		if !errors.Is(err, errInvalidImageURL) {
			t.Errorf("expected errInvalidImageURL, got %v", err)
		}
		if len(fake.requests) != 0 {
			t.Errorf("expected no requests, got %d", len(fake.requests))
		}
	})
}
