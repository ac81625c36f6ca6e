package domain

import "time"

// RunFiles are the two artifacts written by one run.
type RunFiles struct {
	Raw     string `json:"raw"`
	Summary string `json:"summary"`
}

// RunReport describes a completed pipeline run.
type RunReport struct {
	RunID      string
	Timestamp  string // shared by both file names
	StartedAt  time.Time
	Duration   time.Duration
	Summary    Summary
	Files      RunFiles
	SinkErrors []error
}

// RunRecord is a run as stored in the ledger.
type RunRecord struct {
	RunID              string         `db:"run_id"`
	FileTimestamp      string         `db:"file_timestamp"`
	StartedAt          time.Time      `db:"started_at"`
	TotalItems         int            `db:"total_items"`
	UniqueUsers        int            `db:"unique_users"`
	AverageTitleLength float64        `db:"average_title_length"`
	RawPath            string         `db:"raw_path"`
	SummaryPath        string         `db:"summary_path"`
	ItemsByUser        map[string]int `db:"-"`
}
