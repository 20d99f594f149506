package repository

import (
	"context"
	"smartai/internal/common"
	"smartai/internal/domain/model"
	"smartai/internal/platform/database"
	"testing"
	"time"

	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
)

func newSQLiteArchive(t *testing.T) ResultArchiveRepository {
	t.Helper()
	ctx := context.Background()
	db, err := database.Connect(ctx, database.DriverSQLite, ":memory:")
	assert.NilError(t, err)
	t.Cleanup(func() { db.Close() })
	assert.NilError(t, database.Migrate(ctx, db))
	return NewSQLResultArchiveRepository(db, database.DriverSQLite)
}

func results(id string, created time.Time, status model.JobStatus) *model.JobResults {
	score, maxScore := 7.0, 10.0
	return &model.JobResults{
		JobID:     id,
		Label:     "HW " + id,
		Status:    status,
		CreatedAt: created,
		UpdatedAt: created.Add(time.Minute),
		Students: []model.StudentResults{{
			StudentID: "alice",
			Status:    model.StudentStatusCompleted,
			Questions: []model.QuestionResult{{
				Index: 0, QuestionID: "q1", QuestionType: model.QuestionProof,
				State: model.ResultGraded, Score: &score, MaxScore: &maxScore, Feedback: "fine",
			}},
		}},
		Stats: model.RollupStats{Total: 2, Graded: 1, Failed: 1},
	}
}

func TestArchiveRoundTrip(t *testing.T) {
	repo := newSQLiteArchive(t)
	ctx := context.Background()
	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	assert.NilError(t, repo.SaveJobResults(ctx, results("job-1", created, model.JobStatusPartiallyFailed)))

	got, err := repo.GetJobResults(ctx, "job-1")
	assert.NilError(t, err)
	assert.Assert(t, got.Archived)
	assert.Equal(t, got.Label, "HW job-1")
	assert.Equal(t, got.Status, model.JobStatusPartiallyFailed)
	assert.Assert(t, got.CreatedAt.Equal(created))
	assert.Assert(t, is.Len(got.Students, 1))
	assert.Equal(t, *got.Students[0].Questions[0].Score, 7.0)
	assert.Equal(t, got.Students[0].Questions[0].Feedback, "fine")
}

func TestArchiveSaveIsUpsert(t *testing.T) {
	repo := newSQLiteArchive(t)
	ctx := context.Background()
	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	assert.NilError(t, repo.SaveJobResults(ctx, results("job-1", created, model.JobStatusFailed)))
	assert.NilError(t, repo.SaveJobResults(ctx, results("job-1", created, model.JobStatusCompleted)))

	got, err := repo.GetJobResults(ctx, "job-1")
	assert.NilError(t, err)
	assert.Equal(t, got.Status, model.JobStatusCompleted)

	list, err := repo.ListJobSummaries(ctx, 10)
	assert.NilError(t, err)
	assert.Assert(t, is.Len(list, 1))
}

func TestArchiveMissingJob(t *testing.T) {
	repo := newSQLiteArchive(t)
	_, err := repo.GetJobResults(context.Background(), "nope")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestArchiveListNewestFirst(t *testing.T) {
	repo := newSQLiteArchive(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		assert.NilError(t, repo.SaveJobResults(ctx, results(id, base.Add(time.Duration(i)*time.Hour), model.JobStatusCompleted)))
	}

	list, err := repo.ListJobSummaries(ctx, 2)
	assert.NilError(t, err)
	assert.Assert(t, is.Len(list, 2))
	assert.Equal(t, list[0].JobID, "c")
	assert.Equal(t, list[1].JobID, "b")
	assert.Equal(t, list[0].StudentCount, 1)
	assert.Equal(t, list[0].QuestionCount, 2)
	assert.Equal(t, list[0].Graded, 1)
	assert.Equal(t, list[0].Failed, 1)
	assert.Equal(t, list[0].Pending, 0)
	assert.Assert(t, list[0].CreatedAt.Equal(base.Add(2*time.Hour)))
}
