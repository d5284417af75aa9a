// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package agentmail sends outbound replies through the AgentMail REST API.
package agentmail

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/belphia/autoreply/internal/models"
)

const (
	// DefaultBaseURL is the public AgentMail API root.
	DefaultBaseURL = "https://api.agentmail.to/v0"

	// DefaultTimeout bounds a single send request.
	DefaultTimeout = 10 * time.Second

	// maxErrorBody caps how much of an error response is read.
	maxErrorBody = 64 << 10
)

// APIError is a non-2xx response from the API.
type APIError struct {
	StatusCode int
	Name       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("agentmail API returned HTTP %d (%s): %s", e.StatusCode, e.Name, e.Message)
	}
	return fmt.Sprintf("agentmail API returned HTTP %d: %s", e.StatusCode, e.Message)
}

// IsRejected reports whether err is the provider refusing the recipient
// because it previously bounced or complained.
func IsRejected(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.Name == "MessageRejectedError" {
		return true
	}
	return strings.Contains(strings.ToLower(apiErr.Message), "bounced or complained")
}

// Client posts messages to AgentMail on behalf of one API key.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a client that authenticates every request with apiKey as
// a bearer token.
func NewClient(ctx context.Context, apiKey, baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	httpClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: apiKey,
		TokenType:   "Bearer",
	}))
	httpClient.Timeout = timeout

	return NewClientWithHTTP(httpClient, baseURL)
}

// NewClientWithHTTP creates a client around an already-authenticated
// http.Client.
func NewClientWithHTTP(httpClient *http.Client, baseURL string) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// errorBody is the provider's error envelope.
type errorBody struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

// SendReply sends msg from inboxID. It makes exactly one request.
func (c *Client) SendReply(ctx context.Context, inboxID string, msg models.OutboundMessage) (models.SendResult, error) {
	endpoint := fmt.Sprintf("%s/inboxes/%s/messages/send", c.baseURL, url.PathEscape(inboxID))

	payload, err := json.Marshal(msg)
	if err != nil {
		return models.SendResult{}, fmt.Errorf("marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return models.SendResult{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return models.SendResult{}, fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := decodeError(resp)
		if IsRejected(apiErr) {
			slog.Warn("recipient rejected by provider",
				"to", msg.To,
				"status", resp.StatusCode,
			)
		}
		return models.SendResult{}, apiErr
	}

	var result models.SendResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil && !errors.Is(err, io.EOF) {
		return models.SendResult{}, fmt.Errorf("decode send response: %w", err)
	}

	return result, nil
}

func decodeError(resp *http.Response) *APIError {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil || len(bytes.TrimSpace(raw)) == 0 {
		apiErr.Message = http.StatusText(resp.StatusCode)
		return apiErr
	}

	var body errorBody
	if json.Unmarshal(raw, &body) != nil {
		apiErr.Message = strings.TrimSpace(string(raw))
		return apiErr
	}

	apiErr.Name = body.Name
	apiErr.Message = body.Message
	if apiErr.Message == "" {
		apiErr.Message = body.Error
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}
