package grader

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"smartai/internal/common"
	"smartai/internal/domain/model"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// HTTPGrader posts each question to an external grading service.
type HTTPGrader struct {
	client *http.Client
	url    string
	apiKey string
}

func NewHTTPGrader(url, apiKey string) *HTTPGrader {
	return &HTTPGrader{
		client: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		url:    url,
		apiKey: apiKey,
	}
}

// gradeServiceResponse is what the grading service answers with.
type gradeServiceResponse struct {
	Score      *float64 `json:"score"`
	MaxScore   float64  `json:"max_score"`
	Feedback   string   `json:"feedback"`
	Confidence float64  `json:"confidence"`
}

func (g *HTTPGrader) Grade(ctx context.Context, req model.GradeRequest) (*model.GradeResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, common.Errorf("failed to marshal grade request: %v: %w", err, common.ErrPermanentGrading)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(body))
	if err != nil {
		return nil, common.Errorf("failed to build grade request: %v: %w", err, common.ErrPermanentGrading)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Request-ID", uuid.NewString())
	if g.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, common.Errorf("grading service timed out: %w", err)
		}
		return nil, common.Errorf("grading service unreachable: %v: %w", err, common.ErrTransientGrading)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		msg := fmt.Sprintf("grading service returned %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
		if retryableStatus(resp.StatusCode) {
			return nil, common.Errorf("%s: %w", msg, common.ErrTransientGrading)
		}
		return nil, common.Errorf("%s: %w", msg, common.ErrPermanentGrading)
	}

	var out gradeServiceResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, common.Errorf("undecodable grading response: %v: %w", err, common.ErrPermanentGrading)
	}
	if out.Score == nil {
		return nil, common.Errorf("grading response has no score: %w", common.ErrPermanentGrading)
	}
	return finalize(&model.GradeResult{
		Score:      *out.Score,
		MaxScore:   out.MaxScore,
		Feedback:   out.Feedback,
		Confidence: out.Confidence,
	}, req, time.Now().UTC())
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout, http.StatusTooEarly, http.StatusTooManyRequests:
		return true
	}
	return code >= 500
}
