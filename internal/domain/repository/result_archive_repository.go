package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"smartai/internal/common"
	"smartai/internal/domain/model"
	"time"
)

// ResultArchiveRepository keeps the final results of finished jobs after
// they leave the in-memory registry.
type ResultArchiveRepository interface {
	SaveJobResults(ctx context.Context, res *model.JobResults) error
	GetJobResults(ctx context.Context, jobID string) (*model.JobResults, error)
	ListJobSummaries(ctx context.Context, limit int) ([]model.JobSummary, error)
}

type sqlResultArchiveRepository struct {
	db     *sql.DB
	driver string
}

// NewSQLResultArchiveRepository works on either the "pgx" or the "sqlite3"
// driver. Queries are written with $N placeholders.
func NewSQLResultArchiveRepository(db *sql.DB, driver string) ResultArchiveRepository {
	return &sqlResultArchiveRepository{db: db, driver: driver}
}

var placeholder = regexp.MustCompile(`\$\d+`)

func (r *sqlResultArchiveRepository) rebind(query string) string {
	if r.driver != "sqlite3" {
		return query
	}
	return placeholder.ReplaceAllString(query, "?")
}

func (r *sqlResultArchiveRepository) SaveJobResults(ctx context.Context, res *model.JobResults) error {
	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("sqlResultArchiveRepository.SaveJobResults: marshal: %w", err)
	}
	query := `INSERT INTO grading_job_results
	              (job_id, label, status, student_count, question_count, graded_count, failed_count, results, created_at, finished_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	          ON CONFLICT (job_id) DO UPDATE SET
	              status = excluded.status,
	              graded_count = excluded.graded_count,
	              failed_count = excluded.failed_count,
	              results = excluded.results,
	              finished_at = excluded.finished_at`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		res.JobID, res.Label, string(res.Status), len(res.Students), res.Stats.Total,
		res.Stats.Graded, res.Stats.Failed, string(payload), res.CreatedAt.UTC(), res.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("sqlResultArchiveRepository.SaveJobResults: %w", err)
	}
	return nil
}

func (r *sqlResultArchiveRepository) GetJobResults(ctx context.Context, jobID string) (*model.JobResults, error) {
	query := `SELECT results FROM grading_job_results WHERE job_id = $1`

	var payload string
	err := r.db.QueryRowContext(ctx, r.rebind(query), jobID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.Errorf("archived job %s: %w", jobID, common.ErrNotFound)
		}
		return nil, fmt.Errorf("sqlResultArchiveRepository.GetJobResults: %w", err)
	}

	res := &model.JobResults{}
	if err := json.Unmarshal([]byte(payload), res); err != nil {
		return nil, fmt.Errorf("sqlResultArchiveRepository.GetJobResults: decode %s: %w", jobID, err)
	}
	res.Archived = true
	return res, nil
}

// ListJobSummaries returns the most recently created archived jobs first.
func (r *sqlResultArchiveRepository) ListJobSummaries(ctx context.Context, limit int) ([]model.JobSummary, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT job_id, label, status, student_count, question_count, graded_count, failed_count, created_at, finished_at
	          FROM grading_job_results
	          ORDER BY created_at DESC, job_id
	          LIMIT $1`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), limit)
	if err != nil {
		return nil, fmt.Errorf("sqlResultArchiveRepository.ListJobSummaries: %w", err)
	}
	defer rows.Close()

	var out []model.JobSummary
	for rows.Next() {
		var s model.JobSummary
		var status string
		var createdAt, finishedAt time.Time
		if err := rows.Scan(&s.JobID, &s.Label, &status, &s.StudentCount, &s.QuestionCount,
			&s.Graded, &s.Failed, &createdAt, &finishedAt); err != nil {
			return nil, fmt.Errorf("sqlResultArchiveRepository.ListJobSummaries: scan: %w", err)
		}
		s.Status = model.JobStatus(status)
		s.Pending = s.QuestionCount - s.Graded - s.Failed
		s.CreatedAt = createdAt.UTC()
		s.UpdatedAt = finishedAt.UTC()
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlResultArchiveRepository.ListJobSummaries: %w", err)
	}
	return out, nil
}
