package model

import (
	"fmt"
	"smartai/internal/common"
	"strings"
	"time"
)

type QuestionType string

const (
	QuestionComputational QuestionType = "Computational"
	QuestionConceptual    QuestionType = "Conceptual"
	QuestionProof         QuestionType = "Proof"
	QuestionProgramming   QuestionType = "Programming"
)

// QuestionTypes lists the tags in display order.
var QuestionTypes = []QuestionType{QuestionComputational, QuestionConceptual, QuestionProof, QuestionProgramming}

var questionTypeAliases = map[string]QuestionType{
	"computational": QuestionComputational,
	"calculation":   QuestionComputational,
	"conceptual":    QuestionConceptual,
	"concept":       QuestionConceptual,
	"proof":         QuestionProof,
	"reasoning":     QuestionProof,
	"programming":   QuestionProgramming,

	// labels emitted by the segmenter
	"计算题": QuestionComputational,
	"概念题": QuestionConceptual,
	"其他":  QuestionConceptual,
	"其它":  QuestionConceptual,
	"证明题": QuestionProof,
	"推理题": QuestionProof,
	"编程题": QuestionProgramming,
}

// ParseQuestionType accepts the canonical names case-insensitively plus the
// labels produced by the segmenter.
func ParseQuestionType(s string) (QuestionType, error) {
	if qt, ok := questionTypeAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return qt, nil
	}
	return "", fmt.Errorf("unknown question type %q", s)
}

type JobStatus string

const (
	JobStatusPending         JobStatus = "Pending"
	JobStatusRunning         JobStatus = "Running"
	JobStatusCompleted       JobStatus = "Completed"
	JobStatusFailed          JobStatus = "Failed"
	JobStatusPartiallyFailed JobStatus = "PartiallyFailed"
)

func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusPartiallyFailed
}

type StudentStatus string

const (
	StudentStatusPending   StudentStatus = "Pending"
	StudentStatusRunning   StudentStatus = "Running"
	StudentStatusCompleted StudentStatus = "Completed"
	StudentStatusFailed    StudentStatus = "Failed"
)

func (s StudentStatus) IsTerminal() bool {
	return s == StudentStatusCompleted || s == StudentStatusFailed
}

type QuestionState string

const (
	QuestionNotGraded     QuestionState = "NotGraded"
	QuestionGraded        QuestionState = "Graded"
	QuestionFailedToGrade QuestionState = "FailedToGrade"
)

type GradingErrorKind string

const (
	GradingErrorPermanent        GradingErrorKind = "permanent"
	GradingErrorRetriesExhausted GradingErrorKind = "retries_exhausted"
	GradingErrorCancelled        GradingErrorKind = "cancelled"
)

// DefaultMaxScore is used when the grader does not report a scale.
const DefaultMaxScore = 10.0

type GradeResult struct {
	Score      float64   `json:"score"`
	MaxScore   float64   `json:"max_score"`
	Feedback   string    `json:"feedback"`
	Confidence float64   `json:"confidence"`
	GradedAt   time.Time `json:"graded_at"`
}

type GradingError struct {
	Kind     GradingErrorKind `json:"kind"`
	Message  string           `json:"message"`
	Attempts int              `json:"attempts"`
	FailedAt time.Time        `json:"failed_at"`
}

func (e *GradingError) Error() string {
	return string(e.Kind) + ": " + e.Message
}

// Unwrap maps the kind onto the common grading sentinels so callers can use
// errors.Is on a recorded failure.
func (e *GradingError) Unwrap() error {
	switch e.Kind {
	case GradingErrorCancelled:
		return common.ErrCancelled
	case GradingErrorRetriesExhausted:
		return common.ErrTransientGrading
	default:
		return common.ErrPermanentGrading
	}
}

type QuestionItem struct {
	QuestionID   string        `json:"question_id,omitempty"` // segmenter id, e.g. "q1"
	Number       string        `json:"number,omitempty"`      // printed number, e.g. "1.2"
	QuestionType QuestionType  `json:"question_type"`
	QuestionText string        `json:"question_text"`
	AnswerText   string        `json:"answer_text"`
	Rubric       string        `json:"rubric,omitempty"`
	MaxScore     float64       `json:"max_score,omitempty"` // 0 lets the grader pick the scale
	Outcome      *GradeResult  `json:"outcome,omitempty"`
	GradingError *GradingError `json:"grading_error,omitempty"`
}

func (q *QuestionItem) State() QuestionState {
	switch {
	case q.Outcome != nil:
		return QuestionGraded
	case q.GradingError != nil:
		return QuestionFailedToGrade
	default:
		return QuestionNotGraded
	}
}

type StudentTask struct {
	StudentID   string         `json:"student_id"`
	StudentName string         `json:"student_name,omitempty"`
	Status      StudentStatus  `json:"status"`
	Questions   []QuestionItem `json:"questions"`
	Error       *string        `json:"error,omitempty"` // set only when Status is Failed
}

type Job struct {
	ID              string        `json:"job_id"`
	Label           string        `json:"label,omitempty"`
	Status          JobStatus     `json:"status"`
	CancelRequested bool          `json:"cancel_requested"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
	Students        []StudentTask `json:"students"`
}

// Clone returns a deep copy that shares no mutable state with j.
func (j *Job) Clone() *Job {
	cp := *j
	cp.Students = make([]StudentTask, len(j.Students))
	for i, st := range j.Students {
		stCopy := st
		if st.Error != nil {
			msg := *st.Error
			stCopy.Error = &msg
		}
		stCopy.Questions = make([]QuestionItem, len(st.Questions))
		for k, q := range st.Questions {
			qCopy := q
			if q.Outcome != nil {
				outcome := *q.Outcome
				qCopy.Outcome = &outcome
			}
			if q.GradingError != nil {
				gErr := *q.GradingError
				qCopy.GradingError = &gErr
			}
			stCopy.Questions[k] = qCopy
		}
		cp.Students[i] = stCopy
	}
	return &cp
}

// QuestionInput is one segmented (question, type, answer) tuple.
type QuestionInput struct {
	QuestionID   string       `json:"question_id,omitempty"`
	Number       string       `json:"number,omitempty"`
	QuestionType QuestionType `json:"question_type"`
	QuestionText string       `json:"question_text"`
	AnswerText   string       `json:"answer_text"`
	Rubric       string       `json:"rubric,omitempty"`
	MaxScore     float64      `json:"max_score,omitempty"`
}

// StudentBatch is one student's segmented submission.
type StudentBatch struct {
	StudentID   string          `json:"student_id"`
	StudentName string          `json:"student_name,omitempty"`
	Questions   []QuestionInput `json:"questions"`
}

// Outcome is a terminal write for one question. Exactly one field is set.
type Outcome struct {
	Result *GradeResult
	Err    *GradingError
}

// GradeRequest is what the grader adapter receives for one question.
type GradeRequest struct {
	JobID        string       `json:"job_id"`
	StudentID    string       `json:"student_id"`
	QuestionID   string       `json:"question_id,omitempty"`
	QuestionType QuestionType `json:"question_type"`
	QuestionText string       `json:"question_text"`
	AnswerText   string       `json:"answer_text"`
	Rubric       string       `json:"rubric,omitempty"`
	MaxScore     float64      `json:"max_score,omitempty"`
}
