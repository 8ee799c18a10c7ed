package kling

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

	"github.com/rs/zerolog"

	"server/internal/infra"
)

// ErrMissingAPIKey indicates that the client was configured without credentials.
var ErrMissingAPIKey = errors.New("kling: api key is required")

// SubmissionError is a provider-level rejection of a task submission. It is
// fatal for the submission: the orchestrator never retries it automatically.
type SubmissionError struct {
	Code    string
	Message string
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("kling: submission rejected: %s (%s)", e.Message, e.Code)
}

// Task states reported by the provider.
const (
	StateProcessing = "processing"
	StateSuccess    = "success"
	StateFail       = "fail"
)

// TaskStatus is the normalized provider-side view of one task.
type TaskStatus struct {
	TaskID     string
	State      string
	SubState   string // provider-internal phase, e.g. "rendering"
	ResultURLs []string
	FailCode   string
	FailMsg    string
}

// Terminal reports whether the provider considers the task finished.
func (s *TaskStatus) Terminal() bool {
	return s.State == StateSuccess || s.State == StateFail
}

// Options configures the Kling task API client.
type Options struct {
	APIKey         string
	BaseURL        string
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// Client performs HTTP calls against the Kling asynchronous task API.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *infra.Logger
}

type createTaskRequest struct {
	Payload     json.RawMessage `json:"payload"`
	CallbackURL string          `json:"callback_url"`
}

type createTaskResponse struct {
	TaskID  string `json:"task_id"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type queryTaskResponse struct {
	TaskID     string   `json:"task_id"`
	State      string   `json:"state"`
	SubState   string   `json:"sub_state"`
	ResultURLs []string `json:"result_urls"`
	FailCode   string   `json:"fail_code"`
	FailMsg    string   `json:"fail_msg"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) (*Client, error) {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.klingai.com/v1"
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Client{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// HasCredentials reports whether the client can perform remote calls.
func (c *Client) HasCredentials() bool {
	return c.apiKey != ""
}

// CreateTask submits a generation task and returns the provider task id. A
// 4xx/5xx provider response yields a *SubmissionError; transport failures are
// returned as-is. CreateTask never mutates orchestrator state.
func (c *Client) CreateTask(ctx context.Context, payload json.RawMessage, callbackURL string) (string, error) {
	if !c.HasCredentials() {
		return "", ErrMissingAPIKey
	}
	if len(payload) == 0 {
		return "", errors.New("kling: payload is required")
	}
	body, err := json.Marshal(createTaskRequest{Payload: payload, CallbackURL: callbackURL})
	if err != nil {
		return "", fmt.Errorf("kling: encode request: %w", err)
	}
	raw, status, err := c.do(ctx, http.MethodPost, c.baseURL+"/tasks", body)
	if err != nil {
		return "", err
	}
	if status >= 300 {
		var detail errorResponse
		if err := json.Unmarshal(raw, &detail); err == nil && detail.Message != "" {
			return "", &SubmissionError{Code: detail.Code, Message: detail.Message}
		}
		return "", &SubmissionError{
			Code:    fmt.Sprintf("http_%d", status),
			Message: strings.TrimSpace(string(raw)),
		}
	}
	var decoded createTaskResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("kling: decode response: %w", err)
	}
	if decoded.Code != "" && decoded.Code != "0" {
		return "", &SubmissionError{Code: decoded.Code, Message: decoded.Message}
	}
	if decoded.TaskID == "" {
		return "", errors.New("kling: empty task id")
	}
	c.logger.Debug().Str("task_id", decoded.TaskID).Msg("kling: task created")
	return decoded.TaskID, nil
}

// QueryTask fetches the current provider-side status of a task. Errors from
// QueryTask are transient from the orchestrator's point of view; the polling
// controller decides when repeated failures become terminal.
func (c *Client) QueryTask(ctx context.Context, taskID string) (*TaskStatus, error) {
	if !c.HasCredentials() {
		return nil, ErrMissingAPIKey
	}
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return nil, errors.New("kling: task id is required")
	}
	raw, status, err := c.do(ctx, http.MethodGet, c.baseURL+"/tasks/"+taskID, nil)
	if err != nil {
		return nil, err
	}
	if status >= 300 {
		var detail errorResponse
		if err := json.Unmarshal(raw, &detail); err == nil && detail.Message != "" {
			return nil, fmt.Errorf("kling: query task: %s (%s)", detail.Message, detail.Code)
		}
		return nil, fmt.Errorf("kling: query task: status %d: %s", status, strings.TrimSpace(string(raw)))
	}
	var decoded queryTaskResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("kling: decode response: %w", err)
	}
	if decoded.State == "" {
		return nil, errors.New("kling: query response missing state")
	}
	return &TaskStatus{
		TaskID:     decoded.TaskID,
		State:      decoded.State,
		SubState:   decoded.SubState,
		ResultURLs: decoded.ResultURLs,
		FailCode:   decoded.FailCode,
		FailMsg:    decoded.FailMsg,
	}, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body []byte) ([]byte, int, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("kling: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("kling: http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("kling: read response: %w", err)
	}
	return raw, resp.StatusCode, nil
}
