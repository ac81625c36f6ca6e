package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"

	"data_digest/internal/domain"
)

var ErrRunNotFound = errors.New("run not found")

// RunStore keeps a history of completed pipeline runs.
type RunStore struct {
	db *sqlx.DB
}

func NewRunStore(db *sqlx.DB) *RunStore {
	return &RunStore{db: db}
}

// Record stores a completed run and its per-user counts atomically.
func (s *RunStore) Record(ctx context.Context, report *domain.RunReport) error {
	return inTx(ctx, s.db, func(tx *sqlx.Tx) error {
		query := s.db.Rebind(`
			INSERT INTO digest_runs (
				run_id, file_timestamp, started_at, total_items, unique_users,
				average_title_length, raw_path, summary_path
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)

		_, err := tx.ExecContext(ctx, query,
			report.RunID,
			report.Timestamp,
			report.StartedAt.UTC(),
			report.Summary.TotalItems,
			report.Summary.UniqueUsers,
			report.Summary.AverageTitleLength,
			report.Files.Raw,
			report.Files.Summary,
		)
		if err != nil {
			return fmt.Errorf("insert run: %w", err)
		}

		if err := s.insertUserCounts(ctx, tx, report.RunID, report.Summary.ItemsByUser); err != nil {
			return fmt.Errorf("insert user counts: %w", err)
		}

		return nil
	})
}

func (s *RunStore) insertUserCounts(ctx context.Context, exec sqlx.ExtContext, runID string, counts map[string]int) error {
	if len(counts) == 0 {
		return nil
	}

	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString("INSERT INTO digest_run_users (run_id, user_key, item_count) VALUES ")
	args := make([]interface{}, 0, len(keys)*3)

	for i, k := range keys {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(?, ?, ?)")
		args = append(args, runID, k, counts[k])
	}

	_, err := exec.ExecContext(ctx, s.db.Rebind(sb.String()), args...)
	return err
}

// Get loads a run by ID.
func (s *RunStore) Get(ctx context.Context, runID string) (*domain.RunRecord, error) {
	var rec domain.RunRecord
	query := s.db.Rebind(`
		SELECT run_id, file_timestamp, started_at, total_items, unique_users,
			average_title_length, raw_path, summary_path
		FROM digest_runs
		WHERE run_id = ?`)

	if err := s.db.GetContext(ctx, &rec, query, runID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}

	return s.withUserCounts(ctx, &rec)
}

// Latest returns the most recently started run.
func (s *RunStore) Latest(ctx context.Context) (*domain.RunRecord, error) {
	var rec domain.RunRecord
	query := `
		SELECT run_id, file_timestamp, started_at, total_items, unique_users,
			average_title_length, raw_path, summary_path
		FROM digest_runs
		ORDER BY started_at DESC
		LIMIT 1`

	if err := s.db.GetContext(ctx, &rec, query); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}

	return s.withUserCounts(ctx, &rec)
}

func (s *RunStore) withUserCounts(ctx context.Context, rec *domain.RunRecord) (*domain.RunRecord, error) {
	var rows []struct {
		UserKey   string `db:"user_key"`
		ItemCount int    `db:"item_count"`
	}
	query := s.db.Rebind(`SELECT user_key, item_count FROM digest_run_users WHERE run_id = ?`)

	if err := s.db.SelectContext(ctx, &rows, query, rec.RunID); err != nil {
		return nil, fmt.Errorf("select user counts: %w", err)
	}

	rec.ItemsByUser = make(map[string]int, len(rows))
	for _, r := range rows {
		rec.ItemsByUser[r.UserKey] = r.ItemCount
	}
	return rec, nil
}
