package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"data_digest/internal/config"
	"data_digest/internal/domain"
	"data_digest/internal/metrics"
	"data_digest/internal/output"
	"data_digest/internal/processor"
)

type Pipeline struct {
	fetcher  Fetcher
	writer   Writer
	recorder RunRecorder
	notifier Notifier
	metrics  *metrics.Collector
	textfile string
	settings config.Settings
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string
}

type Option func(*Pipeline)

// WithRecorder stores every successful run.
func WithRecorder(r RunRecorder) Option {
	return func(p *Pipeline) { p.recorder = r }
}

// WithNotifier announces every successful run.
func WithNotifier(n Notifier) Option {
	return func(p *Pipeline) { p.notifier = n }
}

// WithMetrics updates c on every run and, if textfile is set, exports it
// there once the run ends.
func WithMetrics(c *metrics.Collector, textfile string) Option {
	return func(p *Pipeline) {
		p.metrics = c
		p.textfile = textfile
	}
}

func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(p *Pipeline) { p.newID = newID }
}

func NewPipeline(
	fetcher Fetcher,
	writer Writer,
	settings config.Settings,
	logger *slog.Logger,
	opts ...Option,
) *Pipeline {
	p := &Pipeline{
		fetcher:  fetcher,
		writer:   writer,
		settings: settings,
		logger:   logger.With("component", "pipeline"),
		now:      time.Now,
		newID:    func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes fetch, process, write-raw and write-summary once each. The
// first failure aborts the run and is returned as a *StageError; no later
// stage is attempted.
func (p *Pipeline) Run(ctx context.Context) (*domain.RunReport, error) {
	startedAt := p.now()
	report := &domain.RunReport{
		RunID:     p.newID(),
		Timestamp: output.Timestamp(startedAt),
		StartedAt: startedAt,
	}
	logger := p.logger.With("run_id", report.RunID)
	defer p.exportMetrics(logger)

	logger.Info("starting run",
		"data_folder", p.settings.DataFolder,
		"output_prefix", p.settings.OutputPrefix,
		"timestamp", report.Timestamp,
	)

	var data domain.Dataset
	err := p.stage(logger, StageFetch, func() error {
		var err error
		data, err = p.fetcher.Fetch(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	if data == nil {
		data = domain.Dataset{}
	}
	if p.metrics != nil {
		p.metrics.SetItemsFetched(len(data))
	}

	if err := p.stage(logger, StageProcess, func() error {
		// Nothing has been written yet, so a cancelled run stops here.
		if err := ctx.Err(); err != nil {
			return err
		}
		report.Summary = processor.Summarize(data, p.now())
		return nil
	}); err != nil {
		return nil, err
	}
	logger.Info("processed data",
		"items", report.Summary.TotalItems,
		"unique_users", report.Summary.UniqueUsers,
		"average_title_length", report.Summary.AverageTitleLength,
	)

	rawPath := output.FilePath(p.settings.DataFolder, p.settings.OutputPrefix, output.KindRaw, report.Timestamp)
	if err := p.stage(logger, StageWriteRaw, func() error {
		return p.writer.Write(rawPath, data)
	}); err != nil {
		return nil, err
	}
	report.Files.Raw = rawPath
	logger.Info("raw data saved", "path", rawPath)

	summaryPath := output.FilePath(p.settings.DataFolder, p.settings.OutputPrefix, output.KindSummary, report.Timestamp)
	if err := p.stage(logger, StageWriteSummary, func() error {
		return p.writer.Write(summaryPath, report.Summary)
	}); err != nil {
		return nil, err
	}
	report.Files.Summary = summaryPath
	logger.Info("summary saved", "path", summaryPath)

	report.Duration = p.now().Sub(startedAt)
	if p.metrics != nil {
		p.metrics.RunSucceeded(p.now())
	}

	logger.Info("run completed",
		"state", StateDone.String(),
		"raw", report.Files.Raw,
		"summary", report.Files.Summary,
		"duration", report.Duration,
	)

	p.runSinks(ctx, logger, report)

	return report, nil
}

func (p *Pipeline) stage(logger *slog.Logger, stage Stage, fn func() error) error {
	start := time.Now()
	err := fn()
	if p.metrics != nil {
		p.metrics.ObserveStage(string(stage), time.Since(start))
	}

	if err != nil {
		logger.Error("run failed",
			"state", StateFailed.String(),
			"stage", stage,
			"error", err,
		)
		if p.metrics != nil {
			p.metrics.RunFailed(string(stage))
		}
		return &StageError{Stage: stage, Err: err}
	}

	logger.Debug("stage completed", "stage", stage, "state", stage.next().String())
	return nil
}

// runSinks delivers a successful run to the optional recorder and notifier.
// Their failures are reported on the run but do not fail it.
func (p *Pipeline) runSinks(ctx context.Context, logger *slog.Logger, report *domain.RunReport) {
	if p.recorder != nil {
		if err := p.recorder.Record(ctx, report); err != nil {
			logger.Error("failed to record run", "error", err)
			report.SinkErrors = append(report.SinkErrors, fmt.Errorf("record run: %w", err))
		}
	}

	if p.notifier != nil {
		if err := p.notifier.Notify(ctx, report); err != nil {
			logger.Error("failed to publish run", "error", err)
			report.SinkErrors = append(report.SinkErrors, fmt.Errorf("publish run: %w", err))
		}
	}
}

func (p *Pipeline) exportMetrics(logger *slog.Logger) {
	if p.metrics == nil || p.textfile == "" {
		return
	}
	if err := p.metrics.WriteTextfile(p.textfile); err != nil {
		logger.Warn("failed to export metrics", "path", p.textfile, "error", err)
	}
}
