// Package upstream talks to the order, promotions, wallet and delivery APIs.
// Every endpoint answers with the envelope {success, data?, error?}; a
// success=false answer is treated exactly like a transport error.
package upstream

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

	"github.com/ariefcatur/storefront-checkout/internal/checkout"
	"go.uber.org/zap"
)

const maxBody = 1 << 20

// APIError is a failed call that reached the service.
type APIError struct {
	Service string
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s returned %d (%s): %s", e.Service, e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("%s returned %d: %s", e.Service, e.Status, e.Message)
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   json.RawMessage `json:"error,omitempty"`
}

// Client is a JSON client for one upstream service.
type Client struct {
	service    string
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewClient(service, baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		service:    service,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With(zap.String("upstream", service)),
	}
}

type call struct {
	method  string
	path    string
	query   url.Values
	body    any
	headers map[string]string
}

func (c *Client) do(ctx context.Context, in call, out any) error {
	if c.baseURL == "" {
		return fmt.Errorf("%s client not configured: base URL required", c.service)
	}
	u := c.baseURL + in.path
	if len(in.query) > 0 {
		u += "?" + in.query.Encode()
	}

	var body io.Reader
	if in.body != nil {
		b, err := json.Marshal(in.body)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", c.service, err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, in.method, u, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range in.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("request failed", zap.String("method", in.method), zap.String("path", in.path), zap.Error(err))
		return err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return fmt.Errorf("read %s response: %w", c.service, err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		if resp.StatusCode >= 300 {
			return &APIError{Service: c.service, Status: resp.StatusCode, Message: snippet(raw)}
		}
		return fmt.Errorf("decode %s envelope: %w", c.service, err)
	}
	if resp.StatusCode >= 300 || !env.Success {
		apiErr := &APIError{Service: c.service, Status: resp.StatusCode}
		apiErr.Code, apiErr.Message = parseErrorField(env.Error)
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		c.logger.Debug("upstream rejected call",
			zap.String("path", in.path), zap.Int("status", resp.StatusCode), zap.String("message", apiErr.Message))
		return apiErr
	}
	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode %s data: %w", c.service, err)
	}
	return nil
}

// parseErrorField accepts "message" or {"code": "...", "message": "..."}.
func parseErrorField(raw json.RawMessage) (code, msg string) {
	if len(raw) == 0 {
		return "", ""
	}
	if err := json.Unmarshal(raw, &msg); err == nil {
		return "", msg
	}
	var obj struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.Code, obj.Message
	}
	return "", snippet(raw)
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}

// mapStatus turns well-known HTTP answers into checkout errors.
func mapStatus(err error, resource, id string) error {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	switch apiErr.Status {
	case http.StatusNotFound:
		return &checkout.NotFoundError{Resource: resource, ID: id}
	case http.StatusConflict:
		return &checkout.InvalidOrderStateError{OrderID: id, Op: "modify"}
	}
	return err
}
