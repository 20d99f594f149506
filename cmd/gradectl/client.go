package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"smartai/internal/common"
	"smartai/internal/domain/model"
	"strconv"
	"strings"
	"time"
)

// apiClient talks to the grading server's /api/v1/jobs endpoints.
type apiClient struct {
	baseURL string
	http    *http.Client
}

func newAPIClient(server string, timeout time.Duration) *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(server, "/") + "/api/v1/jobs",
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *apiClient) Submit(body []byte) (*model.Job, error) {
	var job model.Job
	if err := c.do(http.MethodPost, "/", bytes.NewReader(body), &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (c *apiClient) Job(jobID string) (*model.Job, error) {
	var job model.Job
	if err := c.do(http.MethodGet, "/"+url.PathEscape(jobID), nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (c *apiClient) Results(jobID string) (*model.JobResults, error) {
	var res model.JobResults
	if err := c.do(http.MethodGet, "/"+url.PathEscape(jobID)+"/results", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *apiClient) Cancel(jobID string) (*model.Job, error) {
	var job model.Job
	if err := c.do(http.MethodPost, "/"+url.PathEscape(jobID)+"/cancel", nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (c *apiClient) List(limit int) ([]model.JobSummary, error) {
	var out struct {
		Jobs []model.JobSummary `json:"jobs"`
	}
	if err := c.do(http.MethodGet, "/?limit="+strconv.Itoa(limit), nil, &out); err != nil {
		return nil, err
	}
	return out.Jobs, nil
}

// Export streams the CSV export into w.
func (c *apiClient) Export(jobID string, w io.Writer) error {
	resp, err := c.http.Get(c.baseURL + "/" + url.PathEscape(jobID) + "/export.csv")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	_, err = io.Copy(w, resp.Body)
	return err
}

func (c *apiClient) do(method, path string, body io.Reader, out interface{}) error {
	req, err := http.NewRequest(method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return apiError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func apiError(resp *http.Response) error {
	var body common.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Error == "" {
		return fmt.Errorf("server returned %s", resp.Status)
	}
	return fmt.Errorf("server returned %s: %s", resp.Status, body.Error)
}
