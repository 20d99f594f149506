package service

import (
	"context"
	"errors"
	"log/slog"
	"smartai/internal/app/aggregate"
	"smartai/internal/common"
	"smartai/internal/domain/model"
	"smartai/internal/domain/repository"
	"sort"
	"time"
)

// JobRegistry is what the service reads and creates jobs through.
type JobRegistry interface {
	CreateJob(label string, batches []model.StudentBatch) (string, error)
	GetJob(jobID string) (*model.Job, error)
	ListJobs() []model.JobSummary
}

// JobScheduler runs and cancels grading work.
type JobScheduler interface {
	Start(jobID string) error
	Cancel(jobID string) error
}

type GradingService struct {
	registry  JobRegistry
	scheduler JobScheduler
	archive   repository.ResultArchiveRepository // nil when archiving is off
	logger    *slog.Logger
}

func NewGradingService(
	registry JobRegistry,
	scheduler JobScheduler,
	archive repository.ResultArchiveRepository,
	logger *slog.Logger,
) *GradingService {
	return &GradingService{
		registry:  registry,
		scheduler: scheduler,
		archive:   archive,
		logger:    logger,
	}
}

type SubmitJobRequest struct {
	Label    string               `json:"label,omitempty"`
	Students []model.StudentBatch `json:"students"`
}

// SubmitJob creates the job and hands it to the scheduler. It returns as soon
// as the job exists; grading happens in the background.
func (s *GradingService) SubmitJob(ctx context.Context, req SubmitJobRequest) (*model.Job, error) {
	jobID, err := s.registry.CreateJob(req.Label, req.Students)
	if err != nil {
		return nil, err
	}

	if err := s.scheduler.Start(jobID); err != nil {
		s.logger.Error("failed to schedule grading job", "job_id", jobID, "error", err)
		if cErr := s.scheduler.Cancel(jobID); cErr != nil {
			s.logger.Error("failed to close out unscheduled job", "job_id", jobID, "error", cErr)
		}
		return nil, common.Errorf("job %s could not be scheduled: %w", jobID, err)
	}

	return s.registry.GetJob(jobID)
}

// GetJob returns the live job, or one rebuilt from the archive after
// eviction. Rebuilt jobs carry outcomes but no question or answer texts.
func (s *GradingService) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	job, err := s.registry.GetJob(jobID)
	if err == nil || !errors.Is(err, common.ErrNotFound) || s.archive == nil {
		return job, err
	}
	res, err := s.archive.GetJobResults(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return aggregate.Restore(res), nil
}

// GetResults aggregates the live job, or serves the archived copy once the
// job has been evicted from memory.
func (s *GradingService) GetResults(ctx context.Context, jobID string) (*model.JobResults, error) {
	job, err := s.registry.GetJob(jobID)
	if err == nil {
		return aggregate.Aggregate(job), nil
	}
	if !errors.Is(err, common.ErrNotFound) || s.archive == nil {
		return nil, err
	}
	return s.archive.GetJobResults(ctx, jobID)
}

func (s *GradingService) CancelJob(ctx context.Context, jobID string) (*model.Job, error) {
	if err := s.scheduler.Cancel(jobID); err != nil {
		return nil, err
	}
	return s.registry.GetJob(jobID)
}

// ListJobs lists in-memory jobs plus archived ones no longer held in memory,
// newest first.
func (s *GradingService) ListJobs(ctx context.Context, limit int) ([]model.JobSummary, error) {
	jobs := s.registry.ListJobs()
	if s.archive != nil {
		archived, err := s.archive.ListJobSummaries(ctx, limit)
		if err != nil {
			s.logger.Warn("failed to list archived jobs", "error", err)
		} else {
			live := make(map[string]struct{}, len(jobs))
			for _, j := range jobs {
				live[j.JobID] = struct{}{}
			}
			for _, a := range archived {
				if _, ok := live[a.JobID]; !ok {
					jobs = append(jobs, a)
				}
			}
		}
	}

	sort.SliceStable(jobs, func(i, k int) bool {
		return jobs[i].CreatedAt.After(jobs[k].CreatedAt)
	})
	if limit > 0 && len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

// ResultArchiver persists the aggregated results of finished jobs. Failures
// are logged and never touch the in-memory job.
type ResultArchiver struct {
	archive repository.ResultArchiveRepository
	timeout time.Duration
	logger  *slog.Logger
}

func NewResultArchiver(archive repository.ResultArchiveRepository, logger *slog.Logger) *ResultArchiver {
	return &ResultArchiver{archive: archive, timeout: 10 * time.Second, logger: logger}
}

func (a *ResultArchiver) Archive(job *model.Job) {
	if a == nil || a.archive == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()
	if err := a.archive.SaveJobResults(ctx, aggregate.Aggregate(job)); err != nil {
		a.logger.Error("failed to archive job results", "job_id", job.ID, "error", err)
		return
	}
	a.logger.Info("job results archived", "job_id", job.ID, "status", job.Status)
}
