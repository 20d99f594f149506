package model

import "time"

// ResultState is the per-question marker in the results view.
type ResultState string

const (
	ResultPending ResultState = "pending"
	ResultGraded  ResultState = "graded"
	ResultFailed  ResultState = "failed"
)

type QuestionResult struct {
	Index        int              `json:"index"`
	QuestionID   string           `json:"question_id,omitempty"`
	Number       string           `json:"number,omitempty"`
	QuestionType QuestionType     `json:"question_type"`
	State        ResultState      `json:"state"`
	Score        *float64         `json:"score,omitempty"`
	MaxScore     *float64         `json:"max_score,omitempty"`
	Confidence   *float64         `json:"confidence,omitempty"`
	Feedback     string           `json:"feedback,omitempty"`
	GradedAt     *time.Time       `json:"graded_at,omitempty"`
	Error        string           `json:"error,omitempty"`
	ErrorKind    GradingErrorKind `json:"error_kind,omitempty"`
}

// RollupStats counts question outcomes. MeanScore is over graded questions
// only and is nil when none are graded.
type RollupStats struct {
	Total         int      `json:"total"`
	Graded        int      `json:"graded"`
	Failed        int      `json:"failed"`
	Pending       int      `json:"pending"`
	MeanScore     *float64 `json:"mean_score"`
	TotalScore    float64  `json:"total_score"`
	TotalMaxScore float64  `json:"total_max_score"`
}

type StudentResults struct {
	StudentID   string           `json:"student_id"`
	StudentName string           `json:"student_name,omitempty"`
	Status      StudentStatus    `json:"status"`
	Error       *string          `json:"error,omitempty"`
	Questions   []QuestionResult `json:"questions"`
	Stats       RollupStats      `json:"stats"`
}

type StudentCounts struct {
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

type TypeStats struct {
	QuestionType QuestionType `json:"question_type"`
	Stats        RollupStats  `json:"stats"`
}

type JobResults struct {
	JobID           string           `json:"job_id"`
	Label           string           `json:"label,omitempty"`
	Status          JobStatus        `json:"status"`
	CancelRequested bool             `json:"cancel_requested"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
	Students        []StudentResults `json:"students"`
	StudentCounts   StudentCounts    `json:"student_counts"`
	Stats           RollupStats      `json:"stats"`
	ByType          []TypeStats      `json:"by_type"`
	Archived        bool             `json:"archived,omitempty"`
}

// JobSummary is the row shape for job listings.
type JobSummary struct {
	JobID         string    `json:"job_id"`
	Label         string    `json:"label,omitempty"`
	Status        JobStatus `json:"status"`
	StudentCount  int       `json:"student_count"`
	QuestionCount int       `json:"question_count"`
	Graded        int       `json:"graded"`
	Failed        int       `json:"failed"`
	Pending       int       `json:"pending"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Summary builds the listing row for j.
func (j *Job) Summary() JobSummary {
	s := JobSummary{
		JobID:        j.ID,
		Label:        j.Label,
		Status:       j.Status,
		StudentCount: len(j.Students),
		CreatedAt:    j.CreatedAt,
		UpdatedAt:    j.UpdatedAt,
	}
	for i := range j.Students {
		for k := range j.Students[i].Questions {
			s.QuestionCount++
			switch j.Students[i].Questions[k].State() {
			case QuestionGraded:
				s.Graded++
			case QuestionFailedToGrade:
				s.Failed++
			default:
				s.Pending++
			}
		}
	}
	return s
}

// JobEvent is published after every question-level write. Seq is the number
// of terminal questions in the job after the write, so it grows by one per
// event and orders the events of one job.
type JobEvent struct {
	JobID         string        `json:"job_id"`
	Seq           int           `json:"seq"`
	JobStatus     JobStatus     `json:"job_status"`
	StudentID     string        `json:"student_id"`
	StudentStatus StudentStatus `json:"student_status"`
	QuestionIndex int           `json:"question_index"`
	QuestionState QuestionState `json:"question_state"`
	Graded        int           `json:"graded"`
	Failed        int           `json:"failed"`
	Pending       int           `json:"pending"`
	At            time.Time     `json:"at"`
}
