package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// errAPI is wrapped by every non-2xx answer of the server.
var errAPI = errors.New("api error")

type apiClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func newAPIClient(baseURL, token string, timeout time.Duration) *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

// do sends body as JSON to path under /api/v1 and returns the raw answer.
func (c *apiClient) do(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/api/v1"+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return nil, fmt.Errorf("%w: %d %s", errAPI, resp.StatusCode, apiErr.Error)
		}
		return nil, fmt.Errorf("%w: %d", errAPI, resp.StatusCode)
	}
	return data, nil
}

type jobStatus struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// waitJob polls the job until it leaves the pending and running states.
func (c *apiClient) waitJob(ctx context.Context, id string, every time.Duration) ([]byte, error) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		data, err := c.do(ctx, http.MethodGet, "/jobs/"+id, nil)
		if err != nil {
			return nil, err
		}
		var job jobStatus
		if err := json.Unmarshal(data, &job); err != nil {
			return nil, fmt.Errorf("failed to decode job: %w", err)
		}
		if job.Status != "pending" && job.Status != "running" {
			return data, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
