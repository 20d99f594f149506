package grader

import (
	"context"
	"fmt"
	"hash/fnv"
	"smartai/internal/common"
	"smartai/internal/domain/model"
	"strings"
	"sync"
	"time"
)

const (
	// MarkerFail makes the mock grader reject the answer permanently.
	MarkerFail = "[[fail]]"
	// MarkerFlaky makes the mock grader fail transiently on the first attempt only.
	MarkerFlaky = "[[flaky]]"
)

// MockGrader scores answers deterministically from their text. It stands in
// for the grading service in local runs and tests.
type MockGrader struct {
	latency time.Duration

	mu    sync.Mutex
	flaky map[string]bool
}

func NewMockGrader(latency time.Duration) *MockGrader {
	return &MockGrader{latency: latency, flaky: make(map[string]bool)}
}

var mockFeedback = map[model.QuestionType]string{
	model.QuestionComputational: "Calculation steps checked against the expected result.",
	model.QuestionConceptual:    "Key concepts identified and explained.",
	model.QuestionProof:         "Proof structure reviewed step by step.",
	model.QuestionProgramming:   "Code reviewed for correctness and style.",
}

func (m *MockGrader) Grade(ctx context.Context, req model.GradeRequest) (*model.GradeResult, error) {
	if m.latency > 0 {
		t := time.NewTimer(m.latency)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
		}
	}

	if strings.Contains(req.AnswerText, MarkerFail) {
		return nil, common.Errorf("answer rejected by grader: %w", common.ErrPermanentGrading)
	}
	if strings.Contains(req.AnswerText, MarkerFlaky) {
		key := req.JobID + "/" + req.StudentID + "/" + req.QuestionID + "/" + req.QuestionText
		m.mu.Lock()
		seen := m.flaky[key]
		m.flaky[key] = true
		m.mu.Unlock()
		if !seen {
			return nil, common.Errorf("grader temporarily overloaded: %w", common.ErrTransientGrading)
		}
	}

	answer := strings.TrimSpace(req.AnswerText)
	if answer == "" {
		return finalize(&model.GradeResult{
			Score:      0,
			Feedback:   "No answer provided.",
			Confidence: 1,
		}, req, time.Now().UTC())
	}

	h := fnv.New32a()
	h.Write([]byte(string(req.QuestionType) + "\x00" + answer))
	sum := h.Sum32()

	feedback, ok := mockFeedback[req.QuestionType]
	if !ok {
		feedback = "Answer reviewed."
	}
	if req.Rubric != "" {
		feedback += " Checked against the rubric."
	}
	maxScore := requestMaxScore(req)
	score := float64(4+sum%7) * maxScore / model.DefaultMaxScore
	return finalize(&model.GradeResult{
		Score:      score,
		MaxScore:   maxScore,
		Feedback:   fmt.Sprintf("%s Score %g/%g.", feedback, score, maxScore),
		Confidence: 0.6 + float64(sum%40)/100,
	}, req, time.Now().UTC())
}
