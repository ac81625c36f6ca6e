package pipeline

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"data_digest/internal/domain"
)

type Fetcher interface {
	Fetch(ctx context.Context) (domain.Dataset, error)
}

type Writer interface {
	Write(path string, payload any) error
}

// RunRecorder stores completed runs.
type RunRecorder interface {
	Record(ctx context.Context, report *domain.RunReport) error
}

// Notifier announces completed runs.
type Notifier interface {
	Notify(ctx context.Context, report *domain.RunReport) error
}
