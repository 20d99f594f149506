package service

import (
	"context"
	"smartai/internal/app/grader"
	"smartai/internal/app/registry"
	"smartai/internal/app/runner"
	"smartai/internal/common"
	"smartai/internal/domain/model"
	"smartai/internal/domain/repository"
	"smartai/internal/platform/database"
	"smartai/internal/platform/telemetry"
	"testing"
	"time"

	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
)

type harness struct {
	svc     *GradingService
	reg     *registry.Registry
	runner  *runner.Runner
	archive repository.ResultArchiveRepository
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	db, err := database.Connect(ctx, database.DriverSQLite, ":memory:")
	assert.NilError(t, err)
	t.Cleanup(func() { db.Close() })
	assert.NilError(t, database.Migrate(ctx, db))
	archive := repository.NewSQLResultArchiveRepository(db, database.DriverSQLite)

	logger := telemetry.Discard()
	reg := registry.NewRegistry(logger)
	archiver := NewResultArchiver(archive, logger)
	run := runner.NewRunner(reg, grader.NewMockGrader(0), runner.Config{
		MaxConcurrent: 2,
		MaxRetries:    1,
		BaseDelay:     time.Millisecond,
		MaxDelay:      time.Millisecond,
		CallTimeout:   time.Second,
	}, logger, runner.WithOnFinished(archiver.Archive))
	t.Cleanup(func() { run.Shutdown(context.Background()) })

	return &harness{
		svc:     NewGradingService(reg, run, archive, logger),
		reg:     reg,
		runner:  run,
		archive: archive,
	}
}

func submission(label string) SubmitJobRequest {
	return SubmitJobRequest{
		Label: label,
		Students: []model.StudentBatch{
			{StudentID: "alice", Questions: []model.QuestionInput{
				{QuestionID: "q1", QuestionType: "计算题", QuestionText: "2+2", AnswerText: "4"},
				{QuestionID: "q2", QuestionType: "Proof", QuestionText: "prove it", AnswerText: "no " + grader.MarkerFail},
			}},
			{StudentID: "bob", Questions: []model.QuestionInput{
				{QuestionID: "q1", QuestionType: "Computational", QuestionText: "2+2", AnswerText: "four"},
			}},
		},
	}
}

func TestSubmitAndPollResults(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	job, err := h.svc.SubmitJob(ctx, submission("HW1"))
	assert.NilError(t, err)
	assert.Equal(t, job.Label, "HW1")
	h.runner.Wait()

	res, err := h.svc.GetResults(ctx, job.ID)
	assert.NilError(t, err)
	assert.Equal(t, res.Status, model.JobStatusPartiallyFailed)
	assert.Assert(t, !res.Archived)
	assert.Equal(t, res.Students[0].Questions[0].State, model.ResultGraded)
	assert.Equal(t, res.Students[0].Questions[1].State, model.ResultFailed)
	assert.Equal(t, res.Students[1].Status, model.StudentStatusCompleted)

	again, err := h.svc.GetResults(ctx, job.ID)
	assert.NilError(t, err)
	assert.DeepEqual(t, res, again)
}

func TestSubmitRejectsInvalidBatch(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.SubmitJob(context.Background(), SubmitJobRequest{})
	assert.ErrorIs(t, err, common.ErrInvalidInput)
	assert.Assert(t, is.Len(h.reg.ListJobs(), 0))
}

func TestResultsServedFromArchiveAfterEviction(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	job, err := h.svc.SubmitJob(ctx, submission("HW2"))
	assert.NilError(t, err)
	h.runner.Wait()

	live, err := h.svc.GetResults(ctx, job.ID)
	assert.NilError(t, err)

	assert.DeepEqual(t, h.reg.Evict(-time.Hour), []string{job.ID})
	_, err = h.reg.GetJob(job.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)

	restored, err := h.svc.GetJob(ctx, job.ID)
	assert.NilError(t, err)
	assert.Equal(t, restored.ID, job.ID)
	assert.Equal(t, restored.Status, live.Status)
	assert.Assert(t, is.Len(restored.Students, 2))
	assert.Equal(t, restored.Students[0].Questions[1].State(), model.QuestionFailedToGrade)

	archived, err := h.svc.GetResults(ctx, job.ID)
	assert.NilError(t, err)
	assert.Assert(t, archived.Archived)
	assert.Equal(t, archived.Status, live.Status)
	assert.Equal(t, archived.Stats.Graded, live.Stats.Graded)
	assert.Equal(t, *archived.Stats.MeanScore, *live.Stats.MeanScore)

	list, err := h.svc.ListJobs(ctx, 10)
	assert.NilError(t, err)
	assert.Assert(t, is.Len(list, 1))
	assert.Equal(t, list[0].JobID, job.ID)
	assert.Equal(t, list[0].Label, "HW2")
}

func TestListJobsDoesNotDuplicateArchivedLiveJobs(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for _, label := range []string{"a", "b"} {
		_, err := h.svc.SubmitJob(ctx, submission(label))
		assert.NilError(t, err)
	}
	h.runner.Wait()

	list, err := h.svc.ListJobs(ctx, 0)
	assert.NilError(t, err)
	assert.Assert(t, is.Len(list, 2))

	list, err = h.svc.ListJobs(ctx, 1)
	assert.NilError(t, err)
	assert.Assert(t, is.Len(list, 1))
}

func TestResultsUnknownJob(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.GetResults(context.Background(), "missing")
	assert.ErrorIs(t, err, common.ErrNotFound)
	_, err = h.svc.CancelJob(context.Background(), "missing")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestSubmitAfterShutdownClosesOutJob(t *testing.T) {
	h := newHarness(t)
	assert.NilError(t, h.runner.Shutdown(context.Background()))

	_, err := h.svc.SubmitJob(context.Background(), submission("late"))
	assert.ErrorIs(t, err, common.ErrRunnerStopped)

	list := h.reg.ListJobs()
	assert.Assert(t, is.Len(list, 1))
	assert.Equal(t, list[0].Status, model.JobStatusFailed)
	assert.Equal(t, list[0].Pending, 0)
}
