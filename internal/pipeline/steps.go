package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"path/filepath"

	"github.com/nao1215/imagescrape/internal/download"
	"github.com/nao1215/imagescrape/internal/extract"
	"github.com/nao1215/imagescrape/internal/model"
	"github.com/nao1215/imagescrape/internal/report"
	"github.com/nao1215/imagescrape/internal/search"
	"github.com/nao1215/imagescrape/internal/selector"
)

// SidecarFilename is the JSON-lines file of image records in each output directory.
const SidecarFilename = "records.jsonl"

// PageFetcher performs the search request.
type PageFetcher interface {
	FetchPage(ctx context.Context, req search.Request) (string, error)
}

// Fetcher performs both the search request and the image downloads.
// *search.Client satisfies it.
type Fetcher interface {
	PageFetcher
	download.ImageFetcher
}

// SearchStep dispatches the search request and extracts candidate URLs.
type SearchStep struct {
	fetcher   PageFetcher
	endpoints search.Endpoints
	header    http.Header
	extractor *extract.Extractor
	logger    *slog.Logger
}

// SearchStepOption configures a SearchStep.
type SearchStepOption func(*SearchStep)

// WithSearchHeader sets the headers sent with the search request.
func WithSearchHeader(header http.Header) SearchStepOption {
	return func(s *SearchStep) {
		s.header = header
	}
}

// WithExtractor sets the extractor used on the search response.
func WithExtractor(e *extract.Extractor) SearchStepOption {
	return func(s *SearchStep) {
		s.extractor = e
	}
}

// WithSearchLogger sets a custom logger for the search step.
func WithSearchLogger(logger *slog.Logger) SearchStepOption {
	return func(s *SearchStep) {
		s.logger = logger
	}
}

// NewSearchStep creates the search step.
func NewSearchStep(fetcher PageFetcher, endpoints search.Endpoints, opts ...SearchStepOption) *SearchStep {
	s := &SearchStep{
		fetcher:   fetcher,
		endpoints: endpoints,
		extractor: extract.New(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the step name.
func (s *SearchStep) Name() string {
	return "search"
}

// Do executes the search step.
func (s *SearchStep) Do(ctx context.Context, run *model.Run) error {
	req, err := search.BuildRequest(run.Query, s.endpoints, s.header)
	if err != nil {
		return err
	}

	page, err := s.fetcher.FetchPage(ctx, req)
	if err != nil {
		return fmt.Errorf("search request failed: %w", err)
	}

	run.Candidates = s.extractor.Extract(page)
	s.logger.Info("search completed",
		"query", run.Query.Text,
		"mode", run.Query.Mode.String(),
		"candidates", len(run.Candidates),
	)
	return nil
}

// SelectStep samples the candidates down to the requested count.
type SelectStep struct {
	rng *rand.Rand
}

// NewSelectStep creates the select step. A nil rng uses the global source.
func NewSelectStep(rng *rand.Rand) *SelectStep {
	return &SelectStep{rng: rng}
}

// Name returns the step name.
func (s *SelectStep) Name() string {
	return "select"
}

// Do executes the select step. Fewer candidates than requested is not an error.
func (s *SelectStep) Do(_ context.Context, run *model.Run) error {
	run.Selected = selector.Select(s.rng, run.Candidates, run.Requested)
	return nil
}

// DownloadStep writes the selected images into the run's directory.
type DownloadStep struct {
	downloader *download.Downloader
}

// NewDownloadStep creates the download step.
func NewDownloadStep(downloader *download.Downloader) *DownloadStep {
	return &DownloadStep{downloader: downloader}
}

// Name returns the step name.
func (s *DownloadStep) Name() string {
	return "download"
}

// Do executes the download step. Images written before a failure stay in run.
func (s *DownloadStep) Do(ctx context.Context, run *model.Run) error {
	result, err := s.downloader.Download(ctx, run.Query, run.Directory, run.Selected)
	for _, record := range result.Records {
		run.AddImage(record)
	}
	for _, f := range result.Failures {
		run.AddFailure(f.URL, f.Err)
	}
	return err
}

// SidecarStep appends the run's image records to records.jsonl.
type SidecarStep struct {
	logger *slog.Logger
}

// NewSidecarStep creates the sidecar step.
func NewSidecarStep(logger *slog.Logger) *SidecarStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &SidecarStep{logger: logger}
}

// Name returns the step name.
func (s *SidecarStep) Name() string {
	return "sidecar"
}

// Do executes the sidecar step. A run without images writes nothing.
func (s *SidecarStep) Do(_ context.Context, run *model.Run) error {
	if len(run.Images) == 0 {
		return nil
	}

	path := filepath.Join(run.Directory, SidecarFilename)
	if err := report.AppendSidecar(path, run.Images); err != nil {
		return fmt.Errorf("failed to write image records: %w", err)
	}

	s.logger.Debug("image records written", "path", path, "count", len(run.Images))
	return nil
}

// DefaultPipelineConfig holds the settings of DefaultPipeline.
type DefaultPipelineConfig struct {
	// Endpoints are the search URLs per query mode.
	Endpoints search.Endpoints

	// Header is sent with the search request.
	Header http.Header

	// BlockedHosts are host substrings discarded by the extractor.
	BlockedHosts []string

	// KeepGoing records network and filesystem failures instead of aborting
	// the download.
	KeepGoing bool

	// Progress displays download progress. Nil shows nothing.
	Progress download.ProgressFunc

	// Inspector attaches image metadata to each record. Nil skips inspection.
	Inspector download.Inspector

	// Rand drives the random selection. Nil uses the global source.
	Rand *rand.Rand

	// Sidecar enables writing records.jsonl.
	Sidecar bool
}

// DefaultPipelineOption configures a DefaultPipelineConfig.
type DefaultPipelineOption func(*DefaultPipelineConfig)

// WithPipelineEndpoints sets the search endpoints.
func WithPipelineEndpoints(endpoints search.Endpoints) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.Endpoints = endpoints
	}
}

// WithPipelineHeader sets the search request headers.
func WithPipelineHeader(header http.Header) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.Header = header
	}
}

// WithPipelineBlockedHosts sets the host substrings to discard.
func WithPipelineBlockedHosts(hosts []string) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.BlockedHosts = hosts
	}
}

// WithPipelineKeepGoing records per-image failures and continues.
func WithPipelineKeepGoing(keepGoing bool) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.KeepGoing = keepGoing
	}
}

// WithPipelineProgress sets the download progress display.
func WithPipelineProgress(progress download.ProgressFunc) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.Progress = progress
	}
}

// WithPipelineInspector sets the image inspector.
func WithPipelineInspector(inspector download.Inspector) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.Inspector = inspector
	}
}

// WithPipelineRand sets the random source of the selection.
func WithPipelineRand(rng *rand.Rand) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.Rand = rng
	}
}

// WithPipelineSidecar enables or disables records.jsonl.
func WithPipelineSidecar(enabled bool) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.Sidecar = enabled
	}
}

// DefaultPipeline assembles search, select, download and, unless disabled,
// sidecar around one shared fetcher.
func DefaultPipeline(fetcher Fetcher, pipelineOpts []Option, configOpts ...DefaultPipelineOption) *Pipeline {
	p := New(pipelineOpts...)

	cfg := &DefaultPipelineConfig{
		BlockedHosts: extract.DefaultBlockedHosts,
		Sidecar:      true,
	}
	for _, opt := range configOpts {
		opt(cfg)
	}

	extractor := extract.New(
		extract.WithBlockedHosts(cfg.BlockedHosts),
		extract.WithLogger(p.logger),
	)

	downloadOpts := []download.Option{
		download.WithContinueOnError(cfg.KeepGoing),
		download.WithLogger(p.logger),
	}
	if cfg.Progress != nil {
		downloadOpts = append(downloadOpts, download.WithProgress(cfg.Progress))
	}
	if cfg.Inspector != nil {
		downloadOpts = append(downloadOpts, download.WithInspector(cfg.Inspector))
	}

	p.AddSteps(
		NewSearchStep(fetcher, cfg.Endpoints,
			WithSearchHeader(cfg.Header),
			WithExtractor(extractor),
			WithSearchLogger(p.logger),
		),
		NewSelectStep(cfg.Rand),
		NewDownloadStep(download.New(fetcher, downloadOpts...)),
	)
	if cfg.Sidecar {
		p.AddStep(NewSidecarStep(p.logger))
	}

	return p
}
