package runner

import (
	"context"
	"errors"
	"log/slog"
	"smartai/internal/app/grader"
	"smartai/internal/common"
	"smartai/internal/domain/model"
	"smartai/internal/platform/telemetry"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/semaphore"
)

// JobStore is the part of the job registry the runner writes through.
type JobStore interface {
	GetJob(jobID string) (*model.Job, error)
	UpdateQuestionOutcome(jobID, studentID string, index int, out model.Outcome) (model.JobEvent, error)
	MarkCancelRequested(jobID string) (bool, error)
}

// EventPublisher receives one event per question-level write.
type EventPublisher interface {
	Publish(ctx context.Context, ev model.JobEvent) error
}

type Config struct {
	MaxConcurrent int           // grader calls in flight across all jobs
	MaxRetries    int           // extra attempts after a transient failure
	BaseDelay     time.Duration // first retry delay, doubled per attempt
	MaxDelay      time.Duration
	CallTimeout   time.Duration // per grader call, 0 means none
}

type Option func(*Runner)

func WithEventPublisher(p EventPublisher) Option {
	return func(r *Runner) { r.events = p }
}

// WithOnFinished registers fn to run once with the final snapshot of every
// job that reaches a terminal status.
func WithOnFinished(fn func(job *model.Job)) Option {
	return func(r *Runner) { r.onFinished = fn }
}

func WithMetrics(m *telemetry.GradingMetrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// Runner grades every question of a job in the background. A single weighted
// semaphore caps concurrent grader calls across all jobs; it is held only for
// the duration of a call, never while backing off.
type Runner struct {
	store      JobStore
	grader     grader.Grader
	cfg        Config
	sem        *semaphore.Weighted
	logger     *slog.Logger
	metrics    *telemetry.GradingMetrics
	events     EventPublisher
	onFinished func(job *model.Job)

	rootCtx context.Context
	stopAll context.CancelFunc
	wg      sync.WaitGroup

	mu      sync.Mutex
	stopped bool
	running map[string]context.CancelFunc

	pubMu     sync.Mutex
	published map[string]*publishCursor
}

// publishCursor serializes event publishing for one job and remembers the
// highest Seq handed to the publisher.
type publishCursor struct {
	mu  sync.Mutex
	seq int
}

func NewRunner(store JobStore, g grader.Grader, cfg Config, logger *slog.Logger, opts ...Option) *Runner {
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	rootCtx, stopAll := context.WithCancel(context.Background())
	r := &Runner{
		store:   store,
		grader:  g,
		cfg:     cfg,
		sem:     semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		logger:  logger,
		rootCtx: rootCtx,
		stopAll: stopAll,
		running: make(map[string]context.CancelFunc),

		published: make(map[string]*publishCursor),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.metrics == nil {
		m, err := telemetry.NewGradingMetrics()
		if err != nil {
			logger.Warn("grading metrics unavailable", "error", err)
		}
		r.metrics = m
	}
	return r
}

// Start schedules every ungraded question of the job and returns at once.
func (r *Runner) Start(jobID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		return common.ErrRunnerStopped
	}
	if _, ok := r.running[jobID]; ok {
		return common.Errorf("job %s: %w", jobID, common.ErrJobAlreadyScheduled)
	}
	job, err := r.store.GetJob(jobID)
	if err != nil {
		return err
	}
	if job.CancelRequested {
		r.logger.Info("grading job cancelled before start", "job_id", jobID)
		return nil
	}

	jobCtx, cancel := context.WithCancel(r.rootCtx)
	var jobWG sync.WaitGroup
	scheduled := 0
	for i := range job.Students {
		st := &job.Students[i]
		for k := range st.Questions {
			q := &st.Questions[k]
			if q.State() != model.QuestionNotGraded {
				continue
			}
			req := model.GradeRequest{
				JobID:        job.ID,
				StudentID:    st.StudentID,
				QuestionID:   q.QuestionID,
				QuestionType: q.QuestionType,
				QuestionText: q.QuestionText,
				AnswerText:   q.AnswerText,
				Rubric:       q.Rubric,
				MaxScore:     q.MaxScore,
			}
			jobWG.Add(1)
			r.wg.Add(1)
			scheduled++
			go func(index int) {
				defer r.wg.Done()
				defer jobWG.Done()
				r.gradeQuestion(jobCtx, req, index)
			}(k)
		}
	}
	if scheduled == 0 {
		cancel()
		return nil
	}

	r.running[jobID] = cancel
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		jobWG.Wait()
		r.finish(jobID)
	}()

	r.logger.Info("grading job started", "job_id", jobID, "questions", scheduled)
	return nil
}

// Cancel stops scheduling for the job. Questions already handed to the
// grader, or backing off between attempts, run to completion; every other
// ungraded question is recorded as cancelled.
func (r *Runner) Cancel(jobID string) error {
	terminal, err := r.store.MarkCancelRequested(jobID)
	if err != nil {
		return err
	}
	if terminal {
		return nil
	}

	r.mu.Lock()
	cancel, ok := r.running[jobID]
	r.mu.Unlock()
	if ok {
		cancel()
		r.logger.Info("grading job cancellation requested", "job_id", jobID)
		return nil
	}

	// never started, so nothing else will close out its questions
	job, err := r.store.GetJob(jobID)
	if err != nil {
		return err
	}
	for i := range job.Students {
		st := &job.Students[i]
		for k := range st.Questions {
			if st.Questions[k].State() != model.QuestionNotGraded {
				continue
			}
			req := model.GradeRequest{JobID: jobID, StudentID: st.StudentID, QuestionType: st.Questions[k].QuestionType}
			r.record(req, k, model.Outcome{Err: r.cancelledError(0)})
		}
	}
	r.forgetPublished(jobID)
	if final, err := r.store.GetJob(jobID); err == nil && final.Status.IsTerminal() && r.onFinished != nil {
		r.onFinished(final)
	}
	r.logger.Info("unstarted grading job cancelled", "job_id", jobID)
	return nil
}

func (r *Runner) gradeQuestion(jobCtx context.Context, req model.GradeRequest, index int) {
	log := r.logger.With("job_id", req.JobID, "student_id", req.StudentID, "question_index", index)

	for attempt := 1; ; attempt++ {
		// Once a question has been dispatched it is in flight and only a
		// runner shutdown may stop it.
		acquireCtx := jobCtx
		if attempt > 1 {
			acquireCtx = r.rootCtx
		}
		if err := r.sem.Acquire(acquireCtx, 1); err != nil {
			r.record(req, index, model.Outcome{Err: r.cancelledError(attempt - 1)})
			return
		}
		if attempt == 1 && jobCtx.Err() != nil {
			r.sem.Release(1)
			r.record(req, index, model.Outcome{Err: r.cancelledError(0)})
			return
		}

		res, err := r.callGrader(req, attempt)
		r.sem.Release(1)

		if err == nil {
			r.record(req, index, model.Outcome{Result: res})
			return
		}

		switch {
		case errors.Is(err, context.Canceled) && r.rootCtx.Err() != nil:
			r.record(req, index, model.Outcome{Err: r.cancelledError(attempt)})
			return
		case !common.IsTransient(err):
			log.Warn("question failed to grade", "attempt", attempt, "error", err)
			r.record(req, index, model.Outcome{Err: gradingError(model.GradingErrorPermanent, err, attempt)})
			return
		case attempt > r.cfg.MaxRetries:
			log.Warn("question failed to grade after retries", "attempts", attempt, "error", err)
			r.record(req, index, model.Outcome{Err: gradingError(model.GradingErrorRetriesExhausted, err, attempt)})
			return
		}

		delay := BackoffDelay(attempt, r.cfg.BaseDelay, r.cfg.MaxDelay)
		r.metrics.Retried(r.rootCtx, string(req.QuestionType))
		log.Info("retrying question after transient failure", "attempt", attempt, "delay", delay, "error", err)
		if err := sleepCtx(r.rootCtx, delay); err != nil {
			r.record(req, index, model.Outcome{Err: r.cancelledError(attempt)})
			return
		}
	}
}

func (r *Runner) callGrader(req model.GradeRequest, attempt int) (*model.GradeResult, error) {
	ctx := r.rootCtx
	if r.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.CallTimeout)
		defer cancel()
	}
	ctx, span := telemetry.Tracer().Start(ctx, "grader.Grade")
	defer span.End()
	span.SetAttributes(
		attribute.String("job_id", req.JobID),
		attribute.String("student_id", req.StudentID),
		attribute.String("question_type", string(req.QuestionType)),
		attribute.Int("attempt", attempt),
	)

	qt := string(req.QuestionType)
	r.metrics.CallStarted(ctx, qt)
	start := time.Now()
	res, err := r.grader.Grade(ctx, req)
	r.metrics.CallFinished(ctx, qt, time.Since(start).Seconds())

	if err == nil && (res == nil || strings.TrimSpace(res.Feedback) == "") {
		err = common.Errorf("grader returned no feedback: %w", common.ErrPermanentGrading)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return res, nil
}

// record writes the terminal outcome and publishes the resulting event.
// Neither failure is fatal to the job; both are logged.
func (r *Runner) record(req model.GradeRequest, index int, out model.Outcome) {
	ev, err := r.store.UpdateQuestionOutcome(req.JobID, req.StudentID, index, out)
	if err != nil {
		r.logger.Error("failed to record question outcome",
			"job_id", req.JobID, "student_id", req.StudentID, "question_index", index, "error", err)
		return
	}
	if out.Err != nil {
		r.metrics.Failed(r.rootCtx, string(req.QuestionType), string(out.Err.Kind))
	}
	r.publish(ev)
}

// publish hands ev to the publisher unless a later event of the same job has
// already gone out.
func (r *Runner) publish(ev model.JobEvent) {
	if r.events == nil {
		return
	}
	r.pubMu.Lock()
	cur, ok := r.published[ev.JobID]
	if !ok {
		cur = &publishCursor{}
		r.published[ev.JobID] = cur
	}
	r.pubMu.Unlock()

	cur.mu.Lock()
	defer cur.mu.Unlock()
	if ev.Seq <= cur.seq {
		r.logger.Debug("dropping stale job event", "job_id", ev.JobID, "seq", ev.Seq, "published_seq", cur.seq)
		return
	}
	cur.seq = ev.Seq

	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.rootCtx), 2*time.Second)
	defer cancel()
	if err := r.events.Publish(ctx, ev); err != nil {
		r.logger.Warn("failed to publish job event", "job_id", ev.JobID, "seq", ev.Seq, "error", err)
	}
}

func (r *Runner) forgetPublished(jobID string) {
	r.pubMu.Lock()
	delete(r.published, jobID)
	r.pubMu.Unlock()
}

func (r *Runner) finish(jobID string) {
	r.mu.Lock()
	cancel := r.running[jobID]
	delete(r.running, jobID)
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	r.forgetPublished(jobID)

	job, err := r.store.GetJob(jobID)
	if err != nil {
		r.logger.Error("finished job vanished from registry", "job_id", jobID, "error", err)
		return
	}
	r.logger.Info("grading job finished", "job_id", jobID, "status", job.Status)
	if job.Status.IsTerminal() && r.onFinished != nil {
		r.onFinished(job)
	}
}

func (r *Runner) cancelledError(attempts int) *model.GradingError {
	msg := "job cancelled before grading started"
	r.mu.Lock()
	if r.stopped {
		msg = "grading stopped by shutdown"
	}
	r.mu.Unlock()
	return &model.GradingError{
		Kind:     model.GradingErrorCancelled,
		Message:  msg,
		Attempts: attempts,
		FailedAt: time.Now().UTC(),
	}
}

func gradingError(kind model.GradingErrorKind, err error, attempts int) *model.GradingError {
	return &model.GradingError{
		Kind:     kind,
		Message:  err.Error(),
		Attempts: attempts,
		FailedAt: time.Now().UTC(),
	}
}

// Running reports how many jobs currently have work scheduled.
func (r *Runner) Running() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.running)
}

// Wait blocks until every scheduled question has been recorded.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Shutdown stops scheduling new questions and waits for in-flight ones. If ctx
// expires first the in-flight calls are aborted too.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.stopped = true
	cancels := make([]context.CancelFunc, 0, len(r.running))
	for _, c := range r.running {
		cancels = append(cancels, c)
	}
	r.mu.Unlock()
	for _, c := range cancels {
		c()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.stopAll()
		return nil
	case <-ctx.Done():
		r.stopAll()
		return ctx.Err()
	}
}

// BackoffDelay is base doubled once per failed attempt, capped at maxDelay.
func BackoffDelay(attempt int, base, maxDelay time.Duration) time.Duration {
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if maxDelay > 0 && delay >= maxDelay {
			break
		}
	}
	if maxDelay > 0 && delay > maxDelay {
		return maxDelay
	}
	return delay
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
