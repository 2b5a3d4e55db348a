package pipeline

import (
	"context"
	"log/slog"

	"github.com/nao1215/imagescrape/internal/model"
)

// Step is one stage of a run. Steps run in order and share the run, so a
// later step sees everything earlier ones recorded (the select step reads
// the candidates the search step extracted).
//
// Steps are an interface rather than plain functions so that each one can
// carry its own collaborators, such as the fetcher, extractor or downloader,
// and report a Name for logs and PerformedSteps.
type Step interface {
	// Do executes the step. Non-critical problems are recorded in run and
	// nil is returned; an error stops the pipeline unless it continues on error.
	Do(ctx context.Context, run *model.Run) error

	// Name returns the step's name for logging and PerformedSteps.
	Name() string
}

// Pipeline executes steps in order.
type Pipeline struct {
	steps           []Step
	logger          *slog.Logger
	continueOnError bool
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets a custom logger for the pipeline.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithContinueOnError keeps executing the remaining steps after one fails.
// The default stops at the first failing step.
//
// The failure is still recorded on the run, but Execute returns nil and
// callers read run.Error instead. The CLI relies on this so the
// sidecar step writes records for the images that were saved before a
// download aborted.
func WithContinueOnError(continueOnError bool) Option {
	return func(p *Pipeline) {
		p.continueOnError = continueOnError
	}
}

// New creates an empty Pipeline.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{steps: make([]Step, 0)}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// AddStep appends a step to the pipeline.
func (p *Pipeline) AddStep(step Step) {
	p.steps = append(p.steps, step)
}

// AddSteps appends multiple steps to the pipeline.
func (p *Pipeline) AddSteps(steps ...Step) {
	p.steps = append(p.steps, steps...)
}

// Execute runs every step against run. Cancellation is checked before each
// step; a step that is already running handles the context itself.
// run is marked finished when Execute returns.
func (p *Pipeline) Execute(ctx context.Context, run *model.Run) error {
	defer run.Finish()

	for _, step := range p.steps {
		select {
		case <-ctx.Done():
			p.logger.Warn("pipeline cancelled",
				"step", step.Name(),
				"query", run.Query.Text,
				"reason", ctx.Err(),
			)
			run.Cancelled = true
			run.SetError(ctx.Err())
			return ctx.Err()
		default:
		}

		p.logger.Debug("executing step",
			"step", step.Name(),
			"query", run.Query.Text,
		)

		if err := step.Do(ctx, run); err != nil {
			p.logger.Error("step failed",
				"step", step.Name(),
				"query", run.Query.Text,
				"error", err,
			)
			run.SetError(err)
			if ctx.Err() != nil {
				run.Cancelled = true
			}
			if !p.continueOnError {
				return err
			}
		}

		run.PerformedSteps = append(run.PerformedSteps, step.Name())
	}

	return nil
}

// StepCount returns the number of steps in the pipeline.
func (p *Pipeline) StepCount() int {
	return len(p.steps)
}

// StepNames returns the names of all steps in execution order.
func (p *Pipeline) StepNames() []string {
	names := make([]string, len(p.steps))
	for i, step := range p.steps {
		names[i] = step.Name()
	}
	return names
}
