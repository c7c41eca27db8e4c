package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// DefaultRESTURL is the provider's stable REST endpoint.
const DefaultRESTURL = "https://rest.runpod.io/v1"

// The provider rate-limits aggressively; a client-side limiter keeps polls
// and retries under the ceiling instead of burning attempts on 429s.
const (
	requestsPerSecond = 4
	requestBurst      = 8
)

// RESTClient talks to the REST API generation.
type RESTClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewRESTClient creates a client for the REST generation. baseURL may be
// empty to use the production endpoint. timeout bounds each request so one
// hung call cannot block the poll loop indefinitely.
func NewRESTClient(baseURL, apiKey string, timeout time.Duration) *RESTClient {
	if baseURL == "" {
		baseURL = DefaultRESTURL
	}
	return &RESTClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), requestBurst),
	}
}

type restCreateRequest struct {
	Name              string            `json:"name"`
	CloudType         string            `json:"cloudType"`
	GPUTypeIDs        []string          `json:"gpuTypeIds"`
	GPUCount          int               `json:"gpuCount"`
	VolumeInGb        int               `json:"volumeInGb"`
	ContainerDiskInGb int               `json:"containerDiskInGb"`
	ImageName         string            `json:"imageName"`
	Env               map[string]string `json:"env,omitempty"`
	StartCommand      string            `json:"startCommand,omitempty"`
}

type restCreateResponse struct {
	ID string `json:"id"`
}

type restStatusResponse struct {
	ID       string   `json:"id"`
	Phase    *string  `json:"phase"`
	Runtime  *float64 `json:"runtime"`
	ExitCode *int     `json:"exitCode"`
}

// Create implements Client.Create via POST /pods.
func (c *RESTClient) Create(ctx context.Context, req JobRequest) (string, error) {
	payload := restCreateRequest{
		Name:              req.Name,
		CloudType:         req.CloudType,
		GPUTypeIDs:        []string{req.GPUTypeID},
		GPUCount:          req.GPUCount,
		VolumeInGb:        req.VolumeGB,
		ContainerDiskInGb: req.VolumeGB,
		ImageName:         req.Image,
		Env:               req.Env,
		StartCommand:      req.StartCommand,
	}

	body, err := c.do(ctx, http.MethodPost, c.baseURL+"/pods", payload)
	if err != nil {
		return "", err
	}

	var result restCreateResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", &ParseError{Field: "create response", Cause: err}
	}
	if result.ID == "" {
		return "", ErrMissingPodID
	}
	return result.ID, nil
}

// Status implements Client.Status via GET /pods/{id}.
func (c *RESTClient) Status(ctx context.Context, podID string) (Status, error) {
	body, err := c.do(ctx, http.MethodGet, fmt.Sprintf("%s/pods/%s", c.baseURL, podID), nil)
	if err != nil {
		return Status{}, err
	}

	var result restStatusResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return Status{}, &ParseError{Field: "status response", Cause: err}
	}
	if result.Phase == nil || *result.Phase == "" {
		return Status{}, &ParseError{Field: "phase"}
	}

	return Status{
		Phase:          NormalizePhase(*result.Phase, result.ExitCode),
		RawPhase:       *result.Phase,
		RuntimeSeconds: result.Runtime,
		ExitCode:       result.ExitCode,
	}, nil
}

// Logs implements Client.Logs via GET /pods/{id}/logs. The endpoint returns
// the full cumulative log text as plain text.
func (c *RESTClient) Logs(ctx context.Context, podID string) (string, error) {
	body, err := c.do(ctx, http.MethodGet, fmt.Sprintf("%s/pods/%s/logs", c.baseURL, podID), nil)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// Terminate implements Client.Terminate via DELETE /pods/{id}.
func (c *RESTClient) Terminate(ctx context.Context, podID string) error {
	_, err := c.do(ctx, http.MethodDelete, fmt.Sprintf("%s/pods/%s", c.baseURL, podID), nil)
	return err
}

func (c *RESTClient) do(ctx context.Context, method, url string, payload any) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: truncateBody(string(body))}
	}
	return body, nil
}
