package model

import "fmt"

// DeriveStudentStatus computes a student's status from its questions alone.
// The result depends only on the multiset of question states, never on the
// order in which they were written.
func DeriveStudentStatus(questions []QuestionItem) StudentStatus {
	var graded, failed, notGraded int
	for i := range questions {
		switch questions[i].State() {
		case QuestionGraded:
			graded++
		case QuestionFailedToGrade:
			failed++
		default:
			notGraded++
		}
	}

	switch {
	case notGraded == len(questions):
		return StudentStatusPending
	case notGraded > 0:
		return StudentStatusRunning
	case failed > 0:
		return StudentStatusFailed
	default:
		return StudentStatusCompleted
	}
}

// DeriveJobStatus computes a job's status from its students' statuses.
func DeriveJobStatus(students []StudentTask) JobStatus {
	var pending, completed, failed int
	for i := range students {
		switch students[i].Status {
		case StudentStatusPending:
			pending++
		case StudentStatusCompleted:
			completed++
		case StudentStatusFailed:
			failed++
		}
	}

	switch {
	case pending == len(students):
		return JobStatusPending
	case completed+failed < len(students):
		return JobStatusRunning
	case failed == 0:
		return JobStatusCompleted
	case completed == 0:
		return JobStatusFailed
	default:
		return JobStatusPartiallyFailed
	}
}

// studentFailureSummary is the StudentTask.Error text for a failed student.
func studentFailureSummary(questions []QuestionItem) *string {
	failed := 0
	var first *QuestionItem
	for i := range questions {
		if questions[i].GradingError != nil {
			if first == nil {
				first = &questions[i]
			}
			failed++
		}
	}
	if failed == 0 {
		return nil
	}
	label := first.QuestionID
	if label == "" {
		label = first.Number
	}
	msg := fmt.Sprintf("%d of %d questions failed to grade", failed, len(questions))
	if label != "" {
		msg += fmt.Sprintf(" (first: %s, %s)", label, first.GradingError.Message)
	} else {
		msg += fmt.Sprintf(" (first: %s)", first.GradingError.Message)
	}
	return &msg
}

// Recompute refreshes every derived status on j in place.
func (j *Job) Recompute() {
	for i := range j.Students {
		st := &j.Students[i]
		st.Status = DeriveStudentStatus(st.Questions)
		if st.Status == StudentStatusFailed {
			st.Error = studentFailureSummary(st.Questions)
		} else {
			st.Error = nil
		}
	}
	j.Status = DeriveJobStatus(j.Students)
}
