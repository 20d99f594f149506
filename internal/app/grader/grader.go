// Package grader is the boundary to whatever actually scores an answer.
package grader

import (
	"context"
	"math"
	"smartai/internal/common"
	"smartai/internal/domain/model"
	"strings"
	"time"
)

// Grader grades one question. Errors wrapping common.ErrTransientGrading or
// context.DeadlineExceeded may be retried; anything else is final.
type Grader interface {
	Grade(ctx context.Context, req model.GradeRequest) (*model.GradeResult, error)
}

// GraderFunc adapts a plain function to Grader.
type GraderFunc func(ctx context.Context, req model.GradeRequest) (*model.GradeResult, error)

func (f GraderFunc) Grade(ctx context.Context, req model.GradeRequest) (*model.GradeResult, error) {
	return f(ctx, req)
}

// finalize applies the result rules every adapter shares: a score never comes
// without feedback, max score falls back to the request's max score and then
// to model.DefaultMaxScore, score is clamped into [0, max] and confidence
// into [0, 1].
func finalize(res *model.GradeResult, req model.GradeRequest, now time.Time) (*model.GradeResult, error) {
	if res == nil || strings.TrimSpace(res.Feedback) == "" {
		return nil, common.Errorf("grader returned a score without feedback: %w", common.ErrPermanentGrading)
	}
	if math.IsNaN(res.Score) || math.IsNaN(res.MaxScore) || math.IsNaN(res.Confidence) {
		return nil, common.Errorf("grader returned a non-numeric score: %w", common.ErrPermanentGrading)
	}
	out := *res
	if out.MaxScore <= 0 {
		out.MaxScore = requestMaxScore(req)
	}
	out.Score = math.Min(math.Max(out.Score, 0), out.MaxScore)
	out.Confidence = math.Min(math.Max(out.Confidence, 0), 1)
	if out.GradedAt.IsZero() {
		out.GradedAt = now
	}
	return &out, nil
}

func requestMaxScore(req model.GradeRequest) float64 {
	if req.MaxScore > 0 {
		return req.MaxScore
	}
	return model.DefaultMaxScore
}
