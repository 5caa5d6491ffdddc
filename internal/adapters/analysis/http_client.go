// Package analysis implements the AnalysisClient port over the analysis
// service's HTTP interface: a single multipart POST carrying the raw message
// bytes in a "file" field.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/mailscope/mailscope/internal/core"
)

// maxErrorBodySize bounds how much of an error body is read for a message.
const maxErrorBodySize = 8 * 1024

// Client submits message files to the analysis service over HTTP.
type Client struct {
	httpClient     *http.Client
	endpoint       string
	healthEndpoint string
	logger         *zap.Logger
}

// NewClient creates a new analysis service client. Timeouts are governed by
// the caller's context, not the http.Client.
func NewClient(endpoint string, healthEndpoint string, logger *zap.Logger) *Client {
	return &Client{
		httpClient:     &http.Client{},
		endpoint:       endpoint,
		healthEndpoint: healthEndpoint,
		logger:         logger,
	}
}

// Analyze posts the file as a multipart form and returns the raw JSON body.
// Connection failures come back as *core.NetworkError, non-2xx answers as
// *core.ServiceError with the body's message when one is present, and
// cancellation or deadline errors propagate from the context.
func (c *Client) Analyze(ctx context.Context, file *core.SelectedFile) ([]byte, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", file.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to build multipart body: %w", err)
	}
	if _, err := part.Write(file.Data); err != nil {
		return nil, fmt.Errorf("failed to write file data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, &body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Context errors surface as-is so the controller can tell a
		// timeout from a connection failure.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("analysis request aborted: %w", ctxErr)
		}
		return nil, &core.NetworkError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &core.ServiceError{
			StatusCode: resp.StatusCode,
			Message:    extractErrorMessage(resp.Body),
		}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("analysis response aborted: %w", ctxErr)
		}
		return nil, &core.NetworkError{Err: err}
	}

	c.logger.Debug("Received analysis response",
		zap.Int("status", resp.StatusCode),
		zap.Int("body_size", len(raw)))
	return raw, nil
}

// Health probes the service's health endpoint.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.healthEndpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to build health request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &core.NetworkError{Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &core.ServiceError{StatusCode: resp.StatusCode, Message: extractErrorMessage(resp.Body)}
	}
	return nil
}

// extractErrorMessage pulls a message out of an error body, which may be a
// JSON object with an "error" key or plain text.
func extractErrorMessage(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, maxErrorBodySize))
	if err != nil || len(data) == 0 {
		return ""
	}

	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &payload); err == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Message != "" {
			return payload.Message
		}
		return ""
	}

	return strings.TrimSpace(string(data))
}
