// Package client talks to the connections API and its realtime channel on
// behalf of one authenticated user.
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
	"strconv"
	"strings"
	"time"

	"github.com/curasync-homepage/curasync-web-app/internal/models"
)

// APIError is a non-2xx response. It unwraps to the matching taxonomy error.
type APIError struct {
	Status    int
	Code      string
	Message   string
	Retryable bool
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api %d %s: %s", e.Status, e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	if err := models.ErrorForCode(e.Code); err != nil {
		return err
	}
	if e.Status == http.StatusServiceUnavailable || e.Status == http.StatusTooManyRequests {
		return models.ErrUnavailable
	}
	if e.Status == http.StatusNotFound {
		return models.ErrNotFound
	}
	return nil
}

type Client struct {
	baseURL *url.URL
	token   string
	http    *http.Client
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.http = httpClient
	}
}

func New(baseURL string, token string, opts ...Option) (*Client, error) {
	parsed, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", parsed.Scheme)
	}
	c := &Client{
		baseURL: parsed,
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) ListPending(ctx context.Context) (models.RequestPartitions, error) {
	partitions := models.NewRequestPartitions()
	err := c.do(ctx, http.MethodGet, "/api/v1/requests/pending", nil, &partitions)
	return partitions, err
}

func (c *Client) ListAccepted(ctx context.Context) (models.RequestPartitions, error) {
	partitions := models.NewRequestPartitions()
	err := c.do(ctx, http.MethodGet, "/api/v1/requests/accepted", nil, &partitions)
	return partitions, err
}

func (c *Client) CreateRequest(ctx context.Context, targetID string, targetRole models.Role) (*models.ConnectionRequest, error) {
	var out struct {
		Request models.ConnectionRequest `json:"request"`
	}
	body := map[string]string{"targetId": targetID, "targetRole": string(targetRole)}
	if err := c.do(ctx, http.MethodPost, "/api/v1/requests", body, &out); err != nil {
		return nil, err
	}
	return &out.Request, nil
}

// Accept returns the accepted request carrying the server's acceptance stamp.
func (c *Client) Accept(ctx context.Context, requestID string) (*models.RequestView, error) {
	var out struct {
		Request models.RequestView `json:"request"`
	}
	path := "/api/v1/requests/" + url.PathEscape(requestID) + "/accept"
	if err := c.do(ctx, http.MethodPost, path, nil, &out); err != nil {
		return nil, err
	}
	return &out.Request, nil
}

func (c *Client) Contacts(ctx context.Context, query string, page int, limit int) ([]models.Contact, models.PaginationMeta, error) {
	values := url.Values{}
	if query != "" {
		values.Set("q", query)
	}
	if page > 0 {
		values.Set("page", strconv.Itoa(page))
	}
	if limit > 0 {
		values.Set("limit", strconv.Itoa(limit))
	}
	var out struct {
		Contacts   []models.Contact      `json:"contacts"`
		Pagination models.PaginationMeta `json:"pagination"`
	}
	path := "/api/v1/contacts"
	if encoded := values.Encode(); encoded != "" {
		path += "?" + encoded
	}
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out.Contacts, out.Pagination, err
}

// FetchHistory returns the conversation with counterpartID in store order.
func (c *Client) FetchHistory(ctx context.Context, counterpartID string) ([]models.Message, error) {
	var out struct {
		ConversationKey string           `json:"conversationKey"`
		Messages        []models.Message `json:"messages"`
	}
	path := "/api/v1/conversations/" + url.PathEscape(counterpartID) + "/messages"
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

type SendRequest struct {
	ConversationKey string          `json:"conversationKey,omitempty"`
	CounterpartID   string          `json:"counterpartId,omitempty"`
	Kind            models.Kind     `json:"kind"`
	Data            json.RawMessage `json:"data"`
	SentDate        string          `json:"sentDate"`
	SentTime        string          `json:"sentTime"`
}

// SendResult carries the acknowledgement and the stored copy of the message.
type SendResult struct {
	Ack     models.Ack     `json:"ack"`
	Message models.Message `json:"message"`
}

func (c *Client) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	var out SendResult
	if err := c.do(ctx, http.MethodPost, "/api/v1/messages", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method string, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return fmt.Errorf("%w: %w", models.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %w", models.ErrUnavailable, err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) *APIError {
	apiErr := &APIError{Status: resp.StatusCode}
	var payload struct {
		Error     string `json:"error"`
		Code      string `json:"code"`
		Retryable bool   `json:"retryable"`
	}
	if resp.Body != nil {
		if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<10)).Decode(&payload); err == nil {
			apiErr.Code = payload.Code
			apiErr.Message = payload.Error
			apiErr.Retryable = payload.Retryable
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}
