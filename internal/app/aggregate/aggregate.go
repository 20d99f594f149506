// Package aggregate builds the read-only results view of a grading job.
package aggregate

import (
	"smartai/internal/domain/model"
)

// Aggregate turns a job snapshot into its results view. It reads nothing but
// job, so two calls on the same snapshot return identical data.
func Aggregate(job *model.Job) *model.JobResults {
	res := &model.JobResults{
		JobID:           job.ID,
		Label:           job.Label,
		Status:          job.Status,
		CancelRequested: job.CancelRequested,
		CreatedAt:       job.CreatedAt,
		UpdatedAt:       job.UpdatedAt,
		Students:        make([]model.StudentResults, 0, len(job.Students)),
	}

	var jobAcc accumulator
	byType := make(map[model.QuestionType]*accumulator, len(model.QuestionTypes))

	for i := range job.Students {
		st := &job.Students[i]
		sr := model.StudentResults{
			StudentID:   st.StudentID,
			StudentName: st.StudentName,
			Status:      st.Status,
			Questions:   make([]model.QuestionResult, 0, len(st.Questions)),
		}
		if st.Error != nil {
			msg := *st.Error
			sr.Error = &msg
		}

		var acc accumulator
		for k := range st.Questions {
			qr := questionResult(k, &st.Questions[k])
			sr.Questions = append(sr.Questions, qr)

			acc.add(qr)
			jobAcc.add(qr)
			ta, ok := byType[qr.QuestionType]
			if !ok {
				ta = &accumulator{}
				byType[qr.QuestionType] = ta
			}
			ta.add(qr)
		}
		sr.Stats = acc.stats()
		res.Students = append(res.Students, sr)

		switch st.Status {
		case model.StudentStatusPending:
			res.StudentCounts.Pending++
		case model.StudentStatusRunning:
			res.StudentCounts.Running++
		case model.StudentStatusCompleted:
			res.StudentCounts.Completed++
		case model.StudentStatusFailed:
			res.StudentCounts.Failed++
		}
	}

	res.Stats = jobAcc.stats()
	res.ByType = make([]model.TypeStats, 0, len(byType))
	for _, qt := range model.QuestionTypes {
		if ta, ok := byType[qt]; ok {
			res.ByType = append(res.ByType, model.TypeStats{QuestionType: qt, Stats: ta.stats()})
		}
	}
	return res
}

func questionResult(index int, q *model.QuestionItem) model.QuestionResult {
	qr := model.QuestionResult{
		Index:        index,
		QuestionID:   q.QuestionID,
		Number:       q.Number,
		QuestionType: q.QuestionType,
		State:        model.ResultPending,
	}
	switch {
	case q.Outcome != nil:
		score, maxScore, conf := q.Outcome.Score, q.Outcome.MaxScore, q.Outcome.Confidence
		gradedAt := q.Outcome.GradedAt
		qr.State = model.ResultGraded
		qr.Score = &score
		qr.MaxScore = &maxScore
		qr.Confidence = &conf
		qr.Feedback = q.Outcome.Feedback
		qr.GradedAt = &gradedAt
	case q.GradingError != nil:
		qr.State = model.ResultFailed
		qr.Error = q.GradingError.Message
		qr.ErrorKind = q.GradingError.Kind
	}
	return qr
}

type accumulator struct {
	total, graded, failed, pending int
	sum, maxSum                    float64
}

func (a *accumulator) add(qr model.QuestionResult) {
	a.total++
	switch qr.State {
	case model.ResultGraded:
		a.graded++
		a.sum += *qr.Score
		a.maxSum += *qr.MaxScore
	case model.ResultFailed:
		a.failed++
	default:
		a.pending++
	}
}

func (a *accumulator) stats() model.RollupStats {
	s := model.RollupStats{
		Total:         a.total,
		Graded:        a.graded,
		Failed:        a.failed,
		Pending:       a.pending,
		TotalScore:    a.sum,
		TotalMaxScore: a.maxSum,
	}
	if a.graded > 0 {
		mean := a.sum / float64(a.graded)
		s.MeanScore = &mean
	}
	return s
}

// Restore rebuilds a job snapshot from an archived results view. Question and
// answer texts, rubrics and attempt counts are not archived and come back
// empty.
func Restore(res *model.JobResults) *model.Job {
	job := &model.Job{
		ID:              res.JobID,
		Label:           res.Label,
		Status:          res.Status,
		CancelRequested: res.CancelRequested,
		CreatedAt:       res.CreatedAt,
		UpdatedAt:       res.UpdatedAt,
		Students:        make([]model.StudentTask, 0, len(res.Students)),
	}
	for _, sr := range res.Students {
		st := model.StudentTask{
			StudentID:   sr.StudentID,
			StudentName: sr.StudentName,
			Status:      sr.Status,
			Questions:   make([]model.QuestionItem, 0, len(sr.Questions)),
		}
		if sr.Error != nil {
			msg := *sr.Error
			st.Error = &msg
		}
		for _, qr := range sr.Questions {
			st.Questions = append(st.Questions, restoreQuestion(qr))
		}
		job.Students = append(job.Students, st)
	}
	return job
}

func restoreQuestion(qr model.QuestionResult) model.QuestionItem {
	q := model.QuestionItem{
		QuestionID:   qr.QuestionID,
		Number:       qr.Number,
		QuestionType: qr.QuestionType,
	}
	switch qr.State {
	case model.ResultGraded:
		out := &model.GradeResult{Feedback: qr.Feedback}
		if qr.Score != nil {
			out.Score = *qr.Score
		}
		if qr.MaxScore != nil {
			out.MaxScore = *qr.MaxScore
		}
		if qr.Confidence != nil {
			out.Confidence = *qr.Confidence
		}
		if qr.GradedAt != nil {
			out.GradedAt = *qr.GradedAt
		}
		q.Outcome = out
	case model.ResultFailed:
		q.GradingError = &model.GradingError{Kind: qr.ErrorKind, Message: qr.Error}
	}
	return q
}
