package client

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sandeepprukmani-maker/jobstream/internal/job"
	"github.com/sandeepprukmani-maker/jobstream/internal/runner"
)

// ErrNotFound means the job is not known to the store yet. Pollers treat it
// as non-terminal, not as a failure.
var ErrNotFound = errors.New("job not found")

// APIClient makes REST calls to the jobstream server.
type APIClient struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewAPIClient creates a client targeting the given base URL
// (e.g. "http://127.0.0.1:8080").
func NewAPIClient(baseURL, token string) *APIClient {
	return &APIClient{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// GetJob fetches the current snapshot of one job.
func (c *APIClient) GetJob(id string) (*job.Record, error) {
	var rec job.Record
	if err := c.get("/api/jobs/"+id, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListJobs fetches /api/jobs.
func (c *APIClient) ListJobs() ([]*job.Record, error) {
	var out []*job.Record
	if err := c.get("/api/jobs", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SubmitJob sends POST /api/jobs and returns the created record.
func (c *APIClient) SubmitJob(req runner.Request) (*job.Record, error) {
	var rec job.Record
	if err := c.post("/api/jobs", req, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (c *APIClient) get(path string, out interface{}) error {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	c.setAuth(req)
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("GET %s: %d %s", path, resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *APIClient) post(path string, body interface{}, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.setAuth(req)
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("POST %s: %d %s", path, resp.StatusCode, string(respBody))
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *APIClient) setAuth(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}
