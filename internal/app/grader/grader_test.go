package grader

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"smartai/internal/common"
	"smartai/internal/domain/model"
	"testing"
	"time"

	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
)

func request(answer string) model.GradeRequest {
	return model.GradeRequest{
		JobID:        "job",
		StudentID:    "alice",
		QuestionID:   "q1",
		QuestionType: model.QuestionProof,
		QuestionText: "Prove that sqrt(2) is irrational.",
		AnswerText:   answer,
	}
}

func TestHTTPGraderSuccess(t *testing.T) {
	var got model.GradeRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Check(t, is.Equal(r.Method, http.MethodPost))
		assert.Check(t, is.Equal(r.Header.Get("Authorization"), "Bearer secret"))
		assert.Check(t, r.Header.Get("X-Request-ID") != "")
		assert.Check(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"score": 12, "max_score": 10, "feedback": "clean proof", "confidence": 0.8}`))
	}))
	defer srv.Close()

	g := NewHTTPGrader(srv.URL, "secret")
	res, err := g.Grade(context.Background(), request("Assume p/q in lowest terms..."))
	assert.NilError(t, err)
	assert.Equal(t, got.QuestionID, "q1")
	assert.Equal(t, got.QuestionType, model.QuestionProof)
	assert.Equal(t, res.Score, 10.0) // clamped to max
	assert.Equal(t, res.MaxScore, 10.0)
	assert.Equal(t, res.Feedback, "clean proof")
	assert.Equal(t, res.Confidence, 0.8)
	assert.Assert(t, !res.GradedAt.IsZero())
}

func TestHTTPGraderDefaultsMaxScore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"score": 6, "feedback": "ok", "confidence": 3}`))
	}))
	defer srv.Close()

	res, err := NewHTTPGrader(srv.URL, "").Grade(context.Background(), request("x"))
	assert.NilError(t, err)
	assert.Equal(t, res.MaxScore, model.DefaultMaxScore)
	assert.Equal(t, res.Score, 6.0)
	assert.Equal(t, res.Confidence, 1.0)
}

func TestHTTPGraderSendsRubricAndMaxScore(t *testing.T) {
	var got model.GradeRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Check(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"score": 30, "feedback": "partial credit"}`))
	}))
	defer srv.Close()

	req := request("Assume p/q in lowest terms...")
	req.Rubric = "2 pts setup, 3 pts contradiction"
	req.MaxScore = 5
	res, err := NewHTTPGrader(srv.URL, "").Grade(context.Background(), req)
	assert.NilError(t, err)
	assert.Equal(t, got.Rubric, "2 pts setup, 3 pts contradiction")
	assert.Equal(t, got.MaxScore, 5.0)
	assert.Equal(t, res.MaxScore, 5.0)
	assert.Equal(t, res.Score, 5.0)
}

func TestFinalizeMaxScoreFallback(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	cases := []struct {
		name     string
		reported float64
		asked    float64
		want     float64
	}{
		{"grader scale wins", 20, 5, 20},
		{"request scale", 0, 5, 5},
		{"default scale", 0, 0, model.DefaultMaxScore},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := request("x")
			req.MaxScore = tc.asked
			res, err := finalize(&model.GradeResult{Score: 1, MaxScore: tc.reported, Feedback: "ok"}, req, now)
			assert.NilError(t, err)
			assert.Equal(t, res.MaxScore, tc.want)
			assert.Equal(t, res.GradedAt, now)
		})
	}
}

func TestHTTPGraderErrorClassification(t *testing.T) {
	cases := []struct {
		name      string
		status    int
		body      string
		transient bool
	}{
		{"rate limited", http.StatusTooManyRequests, `{"error":"slow down"}`, true},
		{"server error", http.StatusBadGateway, `bad gateway`, true},
		{"request timeout", http.StatusRequestTimeout, ``, true},
		{"bad request", http.StatusBadRequest, `{"error":"malformed question"}`, false},
		{"unauthorized", http.StatusUnauthorized, ``, false},
		{"garbage body", http.StatusOK, `not json`, false},
		{"missing score", http.StatusOK, `{"feedback":"hm"}`, false},
		{"missing feedback", http.StatusOK, `{"score":3}`, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			_, err := NewHTTPGrader(srv.URL, "").Grade(context.Background(), request("x"))
			assert.Assert(t, err != nil)
			assert.Equal(t, common.IsTransient(err), tc.transient, "error: %v", err)
		})
	}
}

func TestHTTPGraderUnreachableIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewHTTPGrader(url, "").Grade(context.Background(), request("x"))
	assert.ErrorIs(t, err, common.ErrTransientGrading)
}

func TestHTTPGraderDeadlineIsTransient(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := NewHTTPGrader(srv.URL, "").Grade(ctx, request("x"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Assert(t, common.IsTransient(err))
}

func TestMockGraderIsDeterministic(t *testing.T) {
	g := NewMockGrader(0)
	a, err := g.Grade(context.Background(), request("by contradiction"))
	assert.NilError(t, err)
	b, err := g.Grade(context.Background(), request("by contradiction"))
	assert.NilError(t, err)

	assert.Equal(t, a.Score, b.Score)
	assert.Equal(t, a.Feedback, b.Feedback)
	assert.Assert(t, a.Score >= 4 && a.Score <= 10)
	assert.Assert(t, a.Confidence >= 0.6 && a.Confidence < 1)
	assert.Assert(t, is.Contains(a.Feedback, "Proof structure"))
}

func TestMockGraderUsesRequestScale(t *testing.T) {
	req := request("by contradiction")
	req.MaxScore = 20
	req.Rubric = "full marks for a complete argument"
	res, err := NewMockGrader(0).Grade(context.Background(), req)
	assert.NilError(t, err)
	assert.Equal(t, res.MaxScore, 20.0)
	assert.Assert(t, res.Score >= 8 && res.Score <= 20)
	assert.Assert(t, is.Contains(res.Feedback, "rubric"))
}

func TestMockGraderBlankAnswer(t *testing.T) {
	res, err := NewMockGrader(0).Grade(context.Background(), request("   "))
	assert.NilError(t, err)
	assert.Equal(t, res.Score, 0.0)
	assert.Equal(t, res.Feedback, "No answer provided.")
}

func TestMockGraderMarkers(t *testing.T) {
	g := NewMockGrader(0)

	_, err := g.Grade(context.Background(), request("nope "+MarkerFail))
	assert.ErrorIs(t, err, common.ErrPermanentGrading)
	assert.Assert(t, !common.IsTransient(err))

	_, err = g.Grade(context.Background(), request("maybe "+MarkerFlaky))
	assert.ErrorIs(t, err, common.ErrTransientGrading)
	res, err := g.Grade(context.Background(), request("maybe "+MarkerFlaky))
	assert.NilError(t, err)
	assert.Assert(t, res.Feedback != "")
}

func TestMockGraderHonoursContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := NewMockGrader(time.Minute).Grade(ctx, request("x"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
