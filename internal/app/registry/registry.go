package registry

import (
	"log/slog"
	"math"
	"smartai/internal/common"
	"smartai/internal/domain/model"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Registry is the single source of truth for grading job state. The map lock
// only guards membership; each job has its own lock so writers grading
// different jobs never contend.
type Registry struct {
	mu     sync.RWMutex
	jobs   map[string]*jobEntry
	now    func() time.Time
	logger *slog.Logger
}

type jobEntry struct {
	mu  sync.Mutex
	job *model.Job
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		jobs:   make(map[string]*jobEntry),
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger,
	}
}

// CreateJob validates the batch and stores a new Pending job.
func (r *Registry) CreateJob(label string, batches []model.StudentBatch) (string, error) {
	if len(batches) == 0 {
		return "", common.Errorf("batch has no students: %w", common.ErrInvalidInput)
	}

	now := r.now()
	job := &model.Job{
		ID:        uuid.NewString(),
		Label:     strings.TrimSpace(label),
		Status:    model.JobStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
		Students:  make([]model.StudentTask, 0, len(batches)),
	}

	seen := make(map[string]struct{}, len(batches))
	for i, b := range batches {
		if b.StudentID == "" {
			return "", common.Errorf("student %d has an empty id: %w", i, common.ErrInvalidInput)
		}
		if _, dup := seen[b.StudentID]; dup {
			return "", common.Errorf("duplicate student id %q: %w", b.StudentID, common.ErrInvalidInput)
		}
		seen[b.StudentID] = struct{}{}
		if len(b.Questions) == 0 {
			return "", common.Errorf("student %q has no questions: %w", b.StudentID, common.ErrInvalidInput)
		}

		task := model.StudentTask{
			StudentID:   b.StudentID,
			StudentName: b.StudentName,
			Status:      model.StudentStatusPending,
			Questions:   make([]model.QuestionItem, 0, len(b.Questions)),
		}
		for k, q := range b.Questions {
			qt, err := model.ParseQuestionType(string(q.QuestionType))
			if err != nil {
				return "", common.Errorf("student %q question %d: %v: %w", b.StudentID, k, err, common.ErrInvalidInput)
			}
			if q.MaxScore < 0 || math.IsNaN(q.MaxScore) || math.IsInf(q.MaxScore, 0) {
				return "", common.Errorf("student %q question %d: max score %v: %w", b.StudentID, k, q.MaxScore, common.ErrInvalidInput)
			}
			task.Questions = append(task.Questions, model.QuestionItem{
				QuestionID:   q.QuestionID,
				Number:       q.Number,
				QuestionType: qt,
				QuestionText: q.QuestionText,
				AnswerText:   q.AnswerText,
				Rubric:       q.Rubric,
				MaxScore:     q.MaxScore,
			})
		}
		job.Students = append(job.Students, task)
	}

	r.mu.Lock()
	r.jobs[job.ID] = &jobEntry{job: job}
	r.mu.Unlock()

	r.logger.Info("grading job created", "job_id", job.ID, "students", len(job.Students))
	return job.ID, nil
}

func (r *Registry) entry(jobID string) (*jobEntry, error) {
	r.mu.RLock()
	e, ok := r.jobs[jobID]
	r.mu.RUnlock()
	if !ok {
		return nil, common.Errorf("job %s: %w", jobID, common.ErrNotFound)
	}
	return e, nil
}

// GetJob returns a deep copy of the job. Callers may do anything with it.
func (r *Registry) GetJob(jobID string) (*model.Job, error) {
	e, err := r.entry(jobID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.job.Clone(), nil
}

// UpdateQuestionOutcome applies the single terminal write for one question and
// recomputes the derived statuses under the same lock, so no reader ever sees
// a question written but its student status stale.
func (r *Registry) UpdateQuestionOutcome(jobID, studentID string, index int, out model.Outcome) (model.JobEvent, error) {
	if (out.Result == nil) == (out.Err == nil) {
		return model.JobEvent{}, common.Errorf("outcome must carry exactly one of result or error: %w", common.ErrInvalidInput)
	}

	e, err := r.entry(jobID)
	if err != nil {
		return model.JobEvent{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	st := findStudent(e.job, studentID)
	if st == nil {
		return model.JobEvent{}, common.Errorf("student %s in job %s: %w", studentID, jobID, common.ErrNotFound)
	}
	if index < 0 || index >= len(st.Questions) {
		return model.JobEvent{}, common.Errorf("question %d of student %s: %w", index, studentID, common.ErrNotFound)
	}
	q := &st.Questions[index]
	if q.State() != model.QuestionNotGraded {
		return model.JobEvent{}, common.Errorf("question %d of student %s is %s: %w", index, studentID, q.State(), common.ErrAlreadyGraded)
	}

	if out.Result != nil {
		res := *out.Result
		q.Outcome = &res
	} else {
		gErr := *out.Err
		q.GradingError = &gErr
	}

	e.job.Recompute()
	e.job.UpdatedAt = r.now()

	ev := model.JobEvent{
		JobID:         e.job.ID,
		JobStatus:     e.job.Status,
		StudentID:     st.StudentID,
		StudentStatus: st.Status,
		QuestionIndex: index,
		QuestionState: q.State(),
		At:            e.job.UpdatedAt,
	}
	sum := e.job.Summary()
	ev.Graded, ev.Failed, ev.Pending = sum.Graded, sum.Failed, sum.Pending
	ev.Seq = sum.Graded + sum.Failed
	return ev, nil
}

// RecomputeStatus re-derives every student and job status from the current
// question states. Running it twice in a row changes nothing.
func (r *Registry) RecomputeStatus(jobID string) (model.JobStatus, error) {
	e, err := r.entry(jobID)
	if err != nil {
		return "", err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.job.Recompute()
	return e.job.Status, nil
}

// MarkCancelRequested flags the job. It reports whether the job was already
// terminal, in which case the flag is left untouched.
func (r *Registry) MarkCancelRequested(jobID string) (bool, error) {
	e, err := r.entry(jobID)
	if err != nil {
		return false, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.job.Status.IsTerminal() {
		return true, nil
	}
	if !e.job.CancelRequested {
		e.job.CancelRequested = true
		e.job.UpdatedAt = r.now()
	}
	return false, nil
}

// ListJobs returns one summary per job, newest first.
func (r *Registry) ListJobs() []model.JobSummary {
	r.mu.RLock()
	entries := make([]*jobEntry, 0, len(r.jobs))
	for _, e := range r.jobs {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	out := make([]model.JobSummary, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.job.Summary())
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, k int) bool {
		if !out[i].CreatedAt.Equal(out[k].CreatedAt) {
			return out[i].CreatedAt.After(out[k].CreatedAt)
		}
		return out[i].JobID < out[k].JobID
	})
	return out
}

// Evict removes terminal jobs whose last update is older than maxAge and
// returns their ids. Jobs still grading are never evicted.
func (r *Registry) Evict(maxAge time.Duration) []string {
	cutoff := r.now().Add(-maxAge)

	r.mu.Lock()
	defer r.mu.Unlock()

	var evicted []string
	for id, e := range r.jobs {
		e.mu.Lock()
		expired := e.job.Status.IsTerminal() && e.job.UpdatedAt.Before(cutoff)
		e.mu.Unlock()
		if expired {
			delete(r.jobs, id)
			evicted = append(evicted, id)
		}
	}
	if len(evicted) > 0 {
		r.logger.Info("evicted expired grading jobs", "count", len(evicted))
	}
	sort.Strings(evicted)
	return evicted
}

// Len is the number of jobs currently held.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}

func findStudent(job *model.Job, studentID string) *model.StudentTask {
	for i := range job.Students {
		if job.Students[i].StudentID == studentID {
			return &job.Students[i]
		}
	}
	return nil
}
