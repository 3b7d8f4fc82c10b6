// Package client - HTTP-клиент к REST API обращений
package client

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

	"github.com/shenikar/civic_issue_reporter/internal/models"
)

// DefaultTimeout ограничивает любой запрос, пересекающий границу доверия
const DefaultTimeout = 8 * time.Second

// ErrNetwork - запрос не дошел до сервера или ответ не прочитан
var ErrNetwork = errors.New("network failure")

// StatusError - сервер ответил не 2xx
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d: %s", e.Method, e.Path, e.Code, e.Body)
}

// IssueClient обращается к /api
type IssueClient struct {
	baseURL    string
	httpClient *http.Client
}

func New(baseURL string, timeout time.Duration) *IssueClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return NewWithHTTPClient(baseURL, &http.Client{Timeout: timeout})
}

func NewWithHTTPClient(baseURL string, httpClient *http.Client) *IssueClient {
	return &IssueClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// CreateIssue отправляет POST /api/issues
func (c *IssueClient) CreateIssue(ctx context.Context, payload models.CreateIssuePayload) (*models.Issue, error) {
	var issue models.Issue
	if err := c.do(ctx, http.MethodPost, "/api/issues", payload, &issue); err != nil {
		return nil, err
	}
	return &issue, nil
}

// ListIssues возвращает все обращения
func (c *IssueClient) ListIssues(ctx context.Context) ([]models.Issue, error) {
	var resp struct {
		Issues []models.Issue `json:"issues"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/issues", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Issues, nil
}

// ListCommunityEvents возвращает мероприятия сообщества
func (c *IssueClient) ListCommunityEvents(ctx context.Context) ([]models.CommunityEvent, error) {
	var resp struct {
		Events []models.CommunityEvent `json:"events"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/community-events", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Events, nil
}

// Ping проверяет доступность API
func (c *IssueClient) Ping(ctx context.Context) error {
	var resp struct {
		Message string `json:"message"`
	}
	return c.do(ctx, http.MethodGet, "/api/ping", nil, &resp)
}

func (c *IssueClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrNetwork, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s %s: %v", ErrNetwork, method, path, err)
	}
	return nil
}
