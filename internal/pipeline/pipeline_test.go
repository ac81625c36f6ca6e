package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"data_digest/internal/config"
	"data_digest/internal/domain"
	"data_digest/internal/metrics"
	"data_digest/internal/pipeline/mocks"
	"data_digest/internal/processor"
)

type PipelineTestSuite struct {
	suite.Suite
	ctrl *gomock.Controller

	fetcher  *mocks.MockFetcher
	writer   *mocks.MockWriter
	recorder *mocks.MockRunRecorder
	notifier *mocks.MockNotifier

	settings config.Settings
	logger   *slog.Logger
	now      time.Time

	rawPath     string
	summaryPath string
}

func (s *PipelineTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())

	s.fetcher = mocks.NewMockFetcher(s.ctrl)
	s.writer = mocks.NewMockWriter(s.ctrl)
	s.recorder = mocks.NewMockRunRecorder(s.ctrl)
	s.notifier = mocks.NewMockNotifier(s.ctrl)

	s.settings = config.Settings{
		APIURL:       "https://example.com/posts",
		APITimeout:   30 * time.Second,
		DataFolder:   "out",
		OutputPrefix: "processed_",
		LogLevel:     config.LogLevelInfo,
	}
	s.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	s.now = time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)

	s.rawPath = filepath.Join("out", "processed_raw_20240309_140507.json")
	s.summaryPath = filepath.Join("out", "processed_summary_20240309_140507.json")
}

func (s *PipelineTestSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestPipelineTestSuite(t *testing.T) {
	suite.Run(t, new(PipelineTestSuite))
}

func (s *PipelineTestSuite) newPipeline(opts ...Option) *Pipeline {
	base := []Option{
		WithClock(func() time.Time { return s.now }),
		WithIDGenerator(func() string { return "run-1" }),
	}
	return NewPipeline(s.fetcher, s.writer, s.settings, s.logger, append(base, opts...)...)
}

func sampleData() domain.Dataset {
	return domain.Dataset{
		{"userId": json.Number("1"), "title": "abc"},
		{"userId": json.Number("1"), "title": "de"},
	}
}

func (s *PipelineTestSuite) TestRun_Success() {
	ctx := context.Background()
	data := sampleData()
	summary := processor.Summarize(data, s.now)

	s.fetcher.EXPECT().Fetch(ctx).Return(data, nil)
	gomock.InOrder(
		s.writer.EXPECT().Write(s.rawPath, data).Return(nil),
		s.writer.EXPECT().Write(s.summaryPath, summary).Return(nil),
	)
	s.recorder.EXPECT().Record(ctx, gomock.Any()).Return(nil)
	s.notifier.EXPECT().Notify(ctx, gomock.Any()).Return(nil)

	report, err := s.newPipeline(WithRecorder(s.recorder), WithNotifier(s.notifier)).Run(ctx)

	s.Require().NoError(err)
	s.Equal("run-1", report.RunID)
	s.Equal("20240309_140507", report.Timestamp)
	s.Equal(s.rawPath, report.Files.Raw)
	s.Equal(s.summaryPath, report.Files.Summary)
	s.Equal(2, report.Summary.TotalItems)
	s.Equal(1, report.Summary.UniqueUsers)
	s.Equal(map[string]int{"1": 2}, report.Summary.ItemsByUser)
	s.Equal(2.5, report.Summary.AverageTitleLength)
	s.Empty(report.SinkErrors)
}

func (s *PipelineTestSuite) TestRun_EmptyDataset() {
	ctx := context.Background()

	s.fetcher.EXPECT().Fetch(ctx).Return(nil, nil)
	s.writer.EXPECT().Write(s.rawPath, domain.Dataset{}).Return(nil)
	s.writer.EXPECT().Write(s.summaryPath, gomock.Any()).Return(nil)

	report, err := s.newPipeline().Run(ctx)

	s.Require().NoError(err)
	s.Zero(report.Summary.TotalItems)
	s.Empty(report.Summary.ItemsByUser)
}

func (s *PipelineTestSuite) TestRun_FetchError() {
	ctx := context.Background()
	fetchErr := errors.New("unexpected status: 500")

	s.fetcher.EXPECT().Fetch(ctx).Return(nil, fetchErr)

	report, err := s.newPipeline(WithRecorder(s.recorder), WithNotifier(s.notifier)).Run(ctx)

	s.Nil(report)
	var stageErr *StageError
	s.Require().ErrorAs(err, &stageErr)
	s.Equal(StageFetch, stageErr.Stage)
	s.ErrorIs(err, fetchErr)
	s.Equal(1, ExitCode(err))
}

func (s *PipelineTestSuite) TestRun_CancelledAfterFetchWritesNothing() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.fetcher.EXPECT().Fetch(ctx).DoAndReturn(func(context.Context) (domain.Dataset, error) {
		cancel()
		return sampleData(), nil
	})

	report, err := s.newPipeline(WithRecorder(s.recorder), WithNotifier(s.notifier)).Run(ctx)

	s.Nil(report)
	var stageErr *StageError
	s.Require().ErrorAs(err, &stageErr)
	s.Equal(StageProcess, stageErr.Stage)
	s.ErrorIs(err, context.Canceled)
	s.Equal(1, ExitCode(err))
}

func (s *PipelineTestSuite) TestRun_RawWriteErrorSkipsSummary() {
	ctx := context.Background()
	data := sampleData()
	writeErr := errors.New("permission denied")

	s.fetcher.EXPECT().Fetch(ctx).Return(data, nil)
	s.writer.EXPECT().Write(s.rawPath, data).Return(writeErr)

	report, err := s.newPipeline(WithRecorder(s.recorder)).Run(ctx)

	s.Nil(report)
	var stageErr *StageError
	s.Require().ErrorAs(err, &stageErr)
	s.Equal(StageWriteRaw, stageErr.Stage)
	s.ErrorIs(err, writeErr)
}

func (s *PipelineTestSuite) TestRun_SummaryWriteError() {
	ctx := context.Background()
	data := sampleData()

	s.fetcher.EXPECT().Fetch(ctx).Return(data, nil)
	s.writer.EXPECT().Write(s.rawPath, data).Return(nil)
	s.writer.EXPECT().Write(s.summaryPath, gomock.Any()).Return(errors.New("disk full"))

	_, err := s.newPipeline(WithNotifier(s.notifier)).Run(ctx)

	var stageErr *StageError
	s.Require().ErrorAs(err, &stageErr)
	s.Equal(StageWriteSummary, stageErr.Stage)
	s.Contains(err.Error(), "stage write-summary: disk full")
}

func (s *PipelineTestSuite) TestRun_SinkErrorsDoNotFailRun() {
	ctx := context.Background()
	data := sampleData()

	s.fetcher.EXPECT().Fetch(ctx).Return(data, nil)
	s.writer.EXPECT().Write(gomock.Any(), gomock.Any()).Return(nil).Times(2)
	s.recorder.EXPECT().Record(ctx, gomock.Any()).Return(errors.New("db down"))
	s.notifier.EXPECT().Notify(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, report *domain.RunReport) error {
			s.Equal(s.summaryPath, report.Files.Summary)
			return errors.New("broker down")
		},
	)

	report, err := s.newPipeline(WithRecorder(s.recorder), WithNotifier(s.notifier)).Run(ctx)

	s.Require().NoError(err)
	s.Len(report.SinkErrors, 2)
	s.Contains(report.SinkErrors[0].Error(), "record run: db down")
	s.Contains(report.SinkErrors[1].Error(), "publish run: broker down")
	s.Equal(0, ExitCode(err))
}

func (s *PipelineTestSuite) TestRun_RecordReceivesReport() {
	ctx := context.Background()
	data := sampleData()

	s.fetcher.EXPECT().Fetch(ctx).Return(data, nil)
	s.writer.EXPECT().Write(gomock.Any(), gomock.Any()).Return(nil).Times(2)
	s.recorder.EXPECT().Record(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, report *domain.RunReport) error {
			s.Equal("run-1", report.RunID)
			s.Equal(s.now, report.StartedAt)
			s.Equal(s.rawPath, report.Files.Raw)
			s.Equal(2, report.Summary.TotalItems)
			return nil
		},
	)

	_, err := s.newPipeline(WithRecorder(s.recorder)).Run(ctx)
	s.NoError(err)
}

func (s *PipelineTestSuite) TestRun_MetricsTextfile() {
	ctx := context.Background()
	textfile := filepath.Join(s.T().TempDir(), "digest.prom")
	collector := metrics.NewCollector()

	s.fetcher.EXPECT().Fetch(ctx).Return(nil, errors.New("timeout"))

	_, err := s.newPipeline(WithMetrics(collector, textfile)).Run(ctx)
	s.Error(err)

	data, readErr := os.ReadFile(textfile)
	s.Require().NoError(readErr)
	s.Contains(string(data), `digest_runs_total{status="failure"} 1`)
	s.Contains(string(data), `digest_stage_failures_total{stage="fetch"} 1`)
}

func (s *PipelineTestSuite) TestRun_UniqueRunIDs() {
	ctx := context.Background()

	s.fetcher.EXPECT().Fetch(ctx).Return(sampleData(), nil).Times(2)
	s.writer.EXPECT().Write(gomock.Any(), gomock.Any()).Return(nil).Times(4)

	p := NewPipeline(s.fetcher, s.writer, s.settings, s.logger)
	first, err := p.Run(ctx)
	s.Require().NoError(err)
	second, err := p.Run(ctx)
	s.Require().NoError(err)

	s.NotEmpty(first.RunID)
	s.NotEqual(first.RunID, second.RunID)
}

func TestStateString(t *testing.T) {
	cases := map[State]string{
		StateStart:          "start",
		StateFetched:        "fetched",
		StateSummaryWritten: "summary-written",
		StateDone:           "done",
		State(42):           "state(42)",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", int(state), got, want)
		}
	}
}

func TestStageNext(t *testing.T) {
	if got := StageWriteRaw.next(); got != StateRawWritten {
		t.Errorf("write-raw next = %s, want %s", got, StateRawWritten)
	}
	if got := StageConfig.next(); got != StateConfigResolved {
		t.Errorf("config next = %s, want %s", got, StateConfigResolved)
	}
}
