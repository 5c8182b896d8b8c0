// Package client talks to the taskify REST API. The CLI uses it to log in
// and fetch tasks.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"taskify/backend/internal/models"
	"taskify/backend/internal/services"

	"github.com/cenkalti/backoff/v5"
	"github.com/gofrs/uuid"
	"go.uber.org/zap"
)

// APIError is a non-2xx response. Message carries the server's "error"
// field when the body had one.
type APIError struct {
	StatusCode int
	Message    string
	Fields     map[string]string
}

func (e *APIError) Error() string {
	if len(e.Fields) > 0 {
		return fmt.Sprintf("api error %d: %s %v", e.StatusCode, e.Message, e.Fields)
	}
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized
}

type Config struct {
	BaseURL string
	Timeout time.Duration
	// MaxTries bounds attempts for GET requests that fail with a network
	// error or a 5xx. Writes are never retried.
	MaxTries       uint
	InitialBackoff time.Duration
	HTTPClient     *http.Client
	Logger         *zap.Logger
}

func DefaultConfig() Config {
	return Config{
		BaseURL:        "http://localhost:8080",
		Timeout:        10 * time.Second,
		MaxTries:       3,
		InitialBackoff: 200 * time.Millisecond,
	}
}

type Client struct {
	baseURL string
	http    *http.Client
	cfg     Config
	logger  *zap.Logger
	token   string
}

func New(cfg Config) *Client {
	if cfg.MaxTries == 0 {
		cfg.MaxTries = 1
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 200 * time.Millisecond
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    httpClient,
		cfg:     cfg,
		logger:  logger,
	}
}

// SetToken sets the bearer token sent with every request.
func (c *Client) SetToken(token string) { c.token = token }

func (c *Client) Token() string { return c.token }

// Login exchanges credentials for a token pair and keeps the access token
// for later calls.
func (c *Client) Login(ctx context.Context, username, password string) (services.TokenPair, error) {
	var resp services.LoginResponse
	err := c.do(ctx, http.MethodPost, "/api/v1/auth/login", nil,
		services.LoginRequest{Username: username, Password: password}, &resp)
	if err != nil {
		return services.TokenPair{}, fmt.Errorf("login: %w", err)
	}
	c.token = resp.AccessToken
	return resp.TokenPair, nil
}

// ListTasks fetches GET /api/v1/tasks. params may carry status, priority,
// sortBy, order, page and pageSize.
func (c *Client) ListTasks(ctx context.Context, params url.Values) (services.TaskPage, error) {
	var page services.TaskPage
	err := c.do(ctx, http.MethodGet, "/api/v1/tasks", params, nil, &page)
	return page, err
}

func (c *Client) ListTasksByAssignee(ctx context.Context, assigneeID int64, params url.Values) (services.TaskPage, error) {
	var page services.TaskPage
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/v1/tasks/assignee/%d", assigneeID), params, nil, &page)
	return page, err
}

func (c *Client) MyTasks(ctx context.Context, params url.Values) (services.TaskPage, error) {
	var page services.TaskPage
	err := c.do(ctx, http.MethodGet, "/api/v1/me/tasks", params, nil, &page)
	return page, err
}

func (c *Client) GetTask(ctx context.Context, id uuid.UUID) (models.Task, error) {
	var task models.Task
	err := c.do(ctx, http.MethodGet, "/api/v1/tasks/"+id.String(), nil, nil, &task)
	return task, err
}

func (c *Client) CreateTask(ctx context.Context, input services.TaskInput) (models.Task, error) {
	var task models.Task
	err := c.do(ctx, http.MethodPost, "/api/v1/tasks", nil, input, &task)
	return task, err
}

func (c *Client) UpdateTask(ctx context.Context, id uuid.UUID, input services.TaskInput) (models.Task, error) {
	var task models.Task
	err := c.do(ctx, http.MethodPut, "/api/v1/tasks/"+id.String(), nil, input, &task)
	return task, err
}

func (c *Client) DeleteTask(ctx context.Context, id uuid.UUID) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/tasks/"+id.String(), nil, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, params url.Values, body, out interface{}) error {
	target := c.baseURL + path
	if len(params) > 0 {
		target += "?" + params.Encode()
	}

	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
	}

	tries := uint(1)
	if method == http.MethodGet {
		tries = c.cfg.MaxTries
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.InitialBackoff

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, c.attempt(ctx, method, target, payload, out)
	}, backoff.WithBackOff(b), backoff.WithMaxTries(tries))
	return err
}

// attempt performs one round trip. Client errors are permanent; network
// errors and 5xx responses may be retried.
func (c *Client) attempt(ctx context.Context, method, target string, payload []byte, out interface{}) error {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reqBody)
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("request failed", zap.String("method", method), zap.String("url", target), zap.Error(err))
		return err
	}
	defer resp.Body.Close()

	c.logger.Debug("request",
		zap.String("method", method),
		zap.String("url", target),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)))

	if resp.StatusCode >= 400 {
		apiErr := decodeError(resp)
		if resp.StatusCode >= 500 {
			return apiErr
		}
		return backoff.Permanent(apiErr)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return backoff.Permanent(fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func decodeError(resp *http.Response) *APIError {
	apiErr := &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var body struct {
		Error  string            `json:"error"`
		Fields map[string]string `json:"fields"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		apiErr.Message = body.Error
		apiErr.Fields = body.Fields
	} else if text := strings.TrimSpace(string(raw)); text != "" {
		apiErr.Message = text
	}
	return apiErr
}
