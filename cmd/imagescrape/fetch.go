package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nao1215/imagescrape/internal/config"
	"github.com/nao1215/imagescrape/internal/database"
	"github.com/nao1215/imagescrape/internal/download"
	"github.com/nao1215/imagescrape/internal/inspect"
	"github.com/nao1215/imagescrape/internal/log"
	"github.com/nao1215/imagescrape/internal/model"
	"github.com/nao1215/imagescrape/internal/pipeline"
	"github.com/nao1215/imagescrape/internal/report"
	"github.com/nao1215/imagescrape/internal/search"
	"github.com/nao1215/imagescrape/internal/tor"
)

// errInvalidImageURL is returned for a reverse search query that is not an
// absolute http(s) URL.
var errInvalidImageURL = errors.New("reverse image search needs an http or https image URL")

// addFetchFlags registers the flags of the fetch operation on cmd.
func addFetchFlags(cmd *cobra.Command) {
	// Query flags
	cmd.Flags().StringArrayP("query", "q", nil,
		"Search query; repeat to fetch several queries")
	cmd.Flags().IntP("num", "n", config.DefaultNum,
		"Target number of images per query")
	cmd.Flags().BoolP("reverse", "r", false,
		"Treat each query as an image URL and search for similar images")
	cmd.Flags().StringP("dir", "D", "",
		"Root directory for downloaded images (default: XDG data directory)")

	// Transport flags
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Timeout for each request")
	cmd.Flags().StringP("proxy", "x", "",
		"Route traffic through a SOCKS5 proxy (e.g., 127.0.0.1:9050)")
	cmd.Flags().Bool("tor", false,
		"Start an embedded Tor daemon and route traffic through it")
	cmd.Flags().Duration("tor-timeout", config.DefaultTorStartupTimeout,
		"Timeout for embedded Tor startup")

	// Processing flags
	cmd.Flags().IntP("batch", "b", config.DefaultBatchSize,
		"Number of queries processed concurrently")
	cmd.Flags().BoolP("keep-going", "k", false,
		"Record network and disk errors and continue instead of stopping")

	// Configuration file
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .imagescrape in current or home directory)")

	// Report flags
	cmd.Flags().BoolP("json", "j", false,
		"Output a JSON summary (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output a Markdown summary (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "",
		"Write the summary to the specified file (a short summary is still printed)")
	cmd.Flags().Bool("no-history", false,
		"Do not record runs in the history database")
	cmd.Flags().Bool("log-json", false,
		"Write logs as JSON")
}

// runFetchCmd executes the fetch operation of the root command.
func runFetchCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := setupLogger(cmd.ErrOrStderr(), cfg.Verbose, cfg.LogJSON)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			logger.Warn("received shutdown signal, cancelling...")
			cancel()
		case <-ctx.Done():
		}
	}()

	return runFetch(ctx, cfg, logger, fetchEnv{
		stdout: cmd.OutOrStdout(),
		stderr: cmd.ErrOrStderr(),
	})
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// buildConfig creates a Config from the configuration file and the flags.
// Flags that the file can also set only override it when given explicitly.
func buildConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.NewConfig()
	flags := cmd.Flags()

	var err error
	cfg.ConfigFilePath, err = flags.GetString("config")
	if err != nil {
		return nil, err
	}

	// An explicit path must exist; an implicit miss means no file.
	configPath := config.FindConfigFile(cfg.ConfigFilePath)
	if configPath != "" {
		file, err := config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
		cfg.ApplyFile(file)
	} else if cfg.ConfigFilePath != "" {
		return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, cfg.ConfigFilePath)
	}

	if cfg.Queries, err = flags.GetStringArray("query"); err != nil {
		return nil, err
	}
	if cfg.Reverse, err = flags.GetBool("reverse"); err != nil {
		return nil, err
	}

	if flags.Changed("num") {
		if cfg.Num, err = flags.GetInt("num"); err != nil {
			return nil, err
		}
		cfg.NumExplicit = true
	}
	if flags.Changed("dir") {
		if cfg.DataDir, err = flags.GetString("dir"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("timeout") {
		if cfg.Timeout, err = flags.GetDuration("timeout"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("proxy") {
		if cfg.ProxyAddress, err = flags.GetString("proxy"); err != nil {
			return nil, err
		}
	}

	if cfg.UseTor, err = flags.GetBool("tor"); err != nil {
		return nil, err
	}
	if cfg.TorStartupTimeout, err = flags.GetDuration("tor-timeout"); err != nil {
		return nil, err
	}
	if cfg.BatchSize, err = flags.GetInt("batch"); err != nil {
		return nil, err
	}
	if cfg.KeepGoing, err = flags.GetBool("keep-going"); err != nil {
		return nil, err
	}
	if cfg.JSONReport, err = flags.GetBool("json"); err != nil {
		return nil, err
	}
	if cfg.MarkdownReport, err = flags.GetBool("markdown"); err != nil {
		return nil, err
	}
	if cfg.ReportFile, err = flags.GetString("output"); err != nil {
		return nil, err
	}

	noHistory, err := flags.GetBool("no-history")
	if err != nil {
		return nil, err
	}
	cfg.SaveHistory = !noHistory

	if cfg.LogJSON, err = flags.GetBool("log-json"); err != nil {
		return nil, err
	}
	cfg.Verbose = getVerboseFlag(cmd)

	return cfg, nil
}

// setupLogger creates the secure logger for the given settings.
func setupLogger(w io.Writer, verbose, jsonFormat bool) *slog.Logger {
	if jsonFormat {
		return log.NewSecureJSONLogger(w, verbose)
	}
	return log.NewSecureLogger(w, verbose)
}

// fetchEnv holds the I/O endpoints of runFetch.
type fetchEnv struct {
	stdout io.Writer
	stderr io.Writer

	// roundTripper replaces the network transport when set.
	roundTripper http.RoundTripper
}

// runFetch fetches images for every query in cfg, prints the summary and
// stores the runs in the history database. The returned error joins the
// errors of all failed runs.
func runFetch(ctx context.Context, cfg *config.Config, logger *slog.Logger, env fetchEnv) error {
	runs, err := buildRuns(cfg)
	if err != nil {
		return err
	}

	logger.Info("starting fetch",
		"queries", len(runs),
		"num", cfg.Num,
		"reverse", cfg.Reverse,
		"dataDir", cfg.DataDir,
		"batchSize", cfg.BatchSize,
	)

	var db *database.HistoryDB
	if cfg.SaveHistory {
		db, err = database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			return fmt.Errorf("failed to open history database: %w", err)
		}
		defer db.Close() //nolint:errcheck // read-only after the run
		logger.Info("history database opened", "path", db.Path())
	}

	dialer, stopDialer, err := setupDialer(ctx, cfg, logger, env.stderr)
	if err != nil {
		return err
	}
	defer stopDialer()

	clientOpts := []search.Option{
		search.WithTimeout(cfg.Timeout),
		search.WithMaxConns(cfg.MaxConns),
		search.WithMaxPageSize(cfg.MaxPageSize),
		search.WithMaxImageSize(cfg.MaxImageSize),
		search.WithLogger(logger),
	}
	if dialer != nil {
		clientOpts = append(clientOpts, search.WithDialer(dialer))
	}
	if env.roundTripper != nil {
		clientOpts = append(clientOpts, search.WithRoundTripper(env.roundTripper))
	}
	client := search.NewClient(clientOpts...)
	defer client.Close()

	inspector := inspect.New(inspect.WithLogger(logger))
	progress := download.NewProgressBar(env.stderr)

	bp := pipeline.NewBatchProcessor(
		func(run *model.Run) *pipeline.Pipeline {
			return createPipelineForRun(client, cfg, run, inspector, progress, logger)
		},
		pipeline.WithConcurrency(cfg.BatchSize),
		pipeline.WithBatchLogger(logger),
	)

	batchErr := bp.ProcessBatchWithCallback(ctx, runs, func(run *model.Run, index int) {
		fmt.Fprintf(env.stderr, "[%d/%d] %s: saved %d of %d requested images into %s\n",
			index+1, len(runs), run.Query.Text, run.SuccessCount(), run.Requested, run.Directory)

		// Partial runs are recorded even after cancellation.
		if err := saveRun(context.WithoutCancel(ctx), db, run, logger); err != nil {
			logger.Error("failed to save run", "query", run.Query.Text, "error", err)
		}
	})

	if err := outputReport(cfg, runs, env.stdout); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}

	return joinRunErrors(runs, batchErr)
}

// buildRuns creates one run per query. The output directory of each run is
// the data directory joined with the query's directory name.
func buildRuns(cfg *config.Config) ([]*model.Run, error) {
	mode := model.ModeTextSearch
	if cfg.Reverse {
		mode = model.ModeReverseImageSearch
	}

	runs := make([]*model.Run, 0, len(cfg.Queries))
	for _, raw := range cfg.Queries {
		q, err := model.NewQuery(raw, mode)
		if err != nil {
			return nil, fmt.Errorf("invalid query %q: %w", raw, err)
		}
		if mode == model.ModeReverseImageSearch {
			if err := validateImageURL(q.Text); err != nil {
				return nil, err
			}
		}

		num := cfg.Num
		if !cfg.NumExplicit && cfg.File != nil {
			if qc := cfg.File.GetQueryConfig(q.Text); qc.Num > 0 {
				num = qc.Num
			}
		}

		runs = append(runs, model.NewRun(q, num, filepath.Join(cfg.DataDir, q.DirName())))
	}
	return runs, nil
}

func validateImageURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q", errInvalidImageURL, raw)
	}
	return nil
}

// createPipelineForRun creates the pipeline for one run, applying the
// per-query headers and blocked hosts of the configuration file.
func createPipelineForRun(
	client pipeline.Fetcher,
	cfg *config.Config,
	run *model.Run,
	inspector download.Inspector,
	progress download.ProgressFunc,
	logger *slog.Logger,
) *pipeline.Pipeline {
	var qc config.QueryConfig
	if cfg.File != nil {
		qc = cfg.File.GetQueryConfig(run.Query.Text)
	}

	blockedHosts := cfg.BlockedHosts
	if len(qc.BlockedHosts) > 0 {
		blockedHosts = qc.BlockedHosts
	}

	// Later steps still run after a failure so the images written before an
	// aborted download get their records.
	pipelineOpts := []pipeline.Option{
		pipeline.WithLogger(logger),
		pipeline.WithContinueOnError(true),
	}

	p := pipeline.DefaultPipeline(client, pipelineOpts,
		pipeline.WithPipelineEndpoints(search.Endpoints{
			Search:  cfg.SearchEndpoint,
			Reverse: cfg.ReverseEndpoint,
		}),
		pipeline.WithPipelineHeader(search.MergeHeader(
			search.DefaultHeader(cfg.UserAgent, cfg.Referer),
			qc.Headers,
		)),
		pipeline.WithPipelineBlockedHosts(blockedHosts),
		pipeline.WithPipelineKeepGoing(cfg.KeepGoing),
		pipeline.WithPipelineProgress(progress),
		pipeline.WithPipelineInspector(inspector),
	)
	logger.Debug("pipeline ready",
		"query", run.Query.Text,
		"step_count", p.StepCount(),
		"steps", strings.Join(p.StepNames(), ","),
		"blocked_hosts", len(blockedHosts),
	)
	return p
}

// setupDialer returns the proxy dialer for cfg, or nil for direct
// connections, along with a function releasing it.
func setupDialer(ctx context.Context, cfg *config.Config, logger *slog.Logger, out io.Writer) (search.ContextDialer, func(), error) {
	switch {
	case cfg.ProxyAddress != "":
		dialer, err := tor.NewDialer(cfg.ProxyAddress)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create proxy dialer: %w", err)
		}
		if status := tor.CheckProxy(ctx, cfg.ProxyAddress); status != tor.ProxyStatusOK {
			return nil, nil, fmt.Errorf("proxy check failed for %s: %w", cfg.ProxyAddress, status.Error())
		}
		logger.Info("proxy connection verified", "address", cfg.ProxyAddress)
		return dialer, func() {}, nil

	case cfg.UseTor:
		fmt.Fprintln(out, "Starting embedded Tor daemon...")
		fmt.Fprintf(out, "This may take 1-3 minutes while Tor bootstraps and connects to the network.\n\n")

		embeddedTor := tor.NewEmbeddedTor(tor.WithStartupTimeout(cfg.TorStartupTimeout))
		if err := embeddedTor.Start(ctx); err != nil {
			return nil, nil, fmt.Errorf("failed to start embedded Tor: %w", err)
		}

		dialer, err := embeddedTor.NewDialer()
		if err != nil {
			_ = embeddedTor.Stop() //nolint:errcheck // best effort cleanup
			return nil, nil, fmt.Errorf("failed to create Tor dialer: %w", err)
		}
		logger.Info("embedded Tor daemon started", "socksAddr", embeddedTor.SocksAddr())

		stop := func() {
			logger.Info("stopping embedded Tor daemon...")
			if err := embeddedTor.Stop(); err != nil {
				logger.Error("failed to stop embedded Tor", "error", err)
			}
		}
		return dialer, stop, nil

	default:
		return nil, func() {}, nil
	}
}

// outputReport writes the summary of runs in the requested format. With a
// report file the full summary goes to the file and a short plain summary
// is still printed to stdout.
func outputReport(cfg *config.Config, runs []*model.Run, stdout io.Writer) error {
	output := stdout
	if cfg.ReportFile != "" {
		dir := filepath.Dir(cfg.ReportFile)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
		}

		f, err := os.OpenFile(cfg.ReportFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close() //nolint:errcheck // write errors are reported by the writer
		output = f
	}

	var w report.Writer
	switch {
	case cfg.JSONReport:
		w = report.NewJSONWriter(output, report.WithPrettyPrint(), report.WithVersion(getVersion()))
	case cfg.MarkdownReport:
		w = report.NewMarkdownWriter(output)
	default:
		w = report.NewSimpleWriter(output, report.WithVerbose(cfg.Verbose))
	}

	if cfg.ReportFile != "" {
		w = report.NewMultiWriter(w, report.NewSimpleWriter(stdout))
	}

	_, err := w.WriteBatch(runs)
	return err
}

// saveRun stores run in the history database. A nil db is a no-op.
func saveRun(ctx context.Context, db *database.HistoryDB, run *model.Run, logger *slog.Logger) error {
	if db == nil {
		return nil
	}
	if err := db.SaveRun(ctx, run); err != nil {
		return err
	}
	logger.Info("run saved to history", "query", run.Query.Text, "id", run.ID)
	return nil
}

// joinRunErrors returns the errors of all failed runs, or batchErr when no
// run carries one.
func joinRunErrors(runs []*model.Run, batchErr error) error {
	errs := make([]error, 0)
	for _, run := range runs {
		switch {
		case run.Error != nil:
			errs = append(errs, fmt.Errorf("query %q: %w", run.Query.Text, run.Error))
		case run.ErrorMessage != "":
			errs = append(errs, fmt.Errorf("query %q: %s", run.Query.Text, run.ErrorMessage))
		}
	}
	if len(errs) == 0 {
		return batchErr
	}
	return errors.Join(errs...)
}
