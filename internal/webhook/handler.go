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

// Package webhook serves the HTTP surface of the auto-reply service. The
// mail provider POSTs inbound-message events to the webhook endpoint, which
// runs them through the triage pipeline and reports the outcome. The site's
// contact form posts to a second endpoint that forwards submissions to Redis.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/belphia/autoreply/internal/metrics"
	"github.com/belphia/autoreply/internal/models"
	"github.com/belphia/autoreply/internal/queue"
)

// maxBodyBytes caps request bodies on every endpoint.
const maxBodyBytes = 1 << 20

// Processor runs one webhook body through the triage pipeline.
// *triage.Pipeline implements it.
type Processor interface {
	Process(ctx context.Context, raw []byte) models.Outcome
}

// ContactPublisher forwards contact-form submissions. *queue.Publisher
// implements it.
type ContactPublisher interface {
	PublishContact(ctx context.Context, requestID string, sub queue.ContactSubmission) (string, error)
}

// Handler serves the webhook and contact endpoints.
type Handler struct {
	pipeline Processor
	contacts ContactPublisher
	limiter  *IPLimiter
}

// NewHandler creates the HTTP handler. contacts and limiter may be nil, in
// which case the contact endpoint answers 500 and is not rate limited.
func NewHandler(pipeline Processor, contacts ContactPublisher, limiter *IPLimiter) *Handler {
	return &Handler{
		pipeline: pipeline,
		contacts: contacts,
		limiter:  limiter,
	}
}

// Routes returns the mux with middleware applied.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/webhooks/agentmail", postOnly(http.HandlerFunc(h.ServeWebhook)))
	mux.Handle("/api/agentmail-webhook", postOnly(http.HandlerFunc(h.ServeWebhook)))
	mux.Handle("/api/contact", postOnly(http.HandlerFunc(h.ServeContact)))

	return withRequestID(withRecover(mux))
}

// ServeWebhook handles a provider event. The caller only ever sees 200 for
// handled events (including intentional no-ops) or 500.
func (h *Handler) ServeWebhook(w http.ResponseWriter, r *http.Request) {
	requestID := RequestID(r.Context())

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		slog.Error("failed to read webhook body", "request_id", requestID, "error", err)
		writeError(w, http.StatusInternalServerError, failureMessage(models.FailureMalformedPayload))
		return
	}

	outcome := h.pipeline.Process(r.Context(), body)

	switch outcome.Status {
	case models.StatusSent:
		slog.Info("webhook handled",
			"request_id", requestID,
			"status", outcome.Status.String(),
			"category", outcome.Category.String(),
		)
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "sent": true})
	case models.StatusIgnored:
		slog.Info("webhook handled",
			"request_id", requestID,
			"status", outcome.Status.String(),
			"reason", outcome.Reason.String(),
		)
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "ignored": true, "reason": outcome.Reason.String()})
	default:
		slog.Error("webhook failed",
			"request_id", requestID,
			"failure", outcome.Failure.String(),
		)
		writeError(w, http.StatusInternalServerError, failureMessage(outcome.Failure))
	}
}

// contactRequest is the contact form body.
type contactRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Company string `json:"company"`
	Urgency string `json:"urgency"`
	Message string `json:"message"`
}

const (
	errContactRequired    = "Name, email, and message are required."
	errContactEmail       = "A valid email address is required."
	errContactUnavailable = "Unable to submit form right now."
	errRateLimited        = "Rate limit exceeded. Please try again later."
)

// ServeContact validates a contact-form submission and forwards it.
func (h *Handler) ServeContact(w http.ResponseWriter, r *http.Request) {
	requestID := RequestID(r.Context())

	if h.limiter != nil && !h.limiter.Allow(clientIP(r)) {
		metrics.IncrementContact("rate_limited")
		writeError(w, http.StatusTooManyRequests, errRateLimited)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		slog.Error("failed to read contact body", "request_id", requestID, "error", err)
		metrics.IncrementContact("error")
		writeError(w, http.StatusInternalServerError, errContactUnavailable)
		return
	}

	var req contactRequest
	if len(strings.TrimSpace(string(body))) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			slog.Error("contact form error", "request_id", requestID, "error", err)
			metrics.IncrementContact("error")
			writeError(w, http.StatusInternalServerError, errContactUnavailable)
			return
		}
	}

	sub, msg := validateContact(req)
	if msg != "" {
		metrics.IncrementContact("invalid")
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	if h.contacts == nil {
		slog.Error("contact publisher not configured", "request_id", requestID)
		metrics.IncrementContact("error")
		writeError(w, http.StatusInternalServerError, errContactUnavailable)
		return
	}

	if _, err := h.contacts.PublishContact(r.Context(), requestID, sub); err != nil {
		slog.Error("failed to forward contact submission", "request_id", requestID, "error", err)
		metrics.IncrementContact("error")
		writeError(w, http.StatusInternalServerError, errContactUnavailable)
		return
	}

	metrics.IncrementContact("accepted")
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// validateContact trims the submission and returns the user-facing error
// message when it is not acceptable.
func validateContact(req contactRequest) (queue.ContactSubmission, string) {
	sub := queue.ContactSubmission{
		Name:    strings.TrimSpace(req.Name),
		Email:   strings.TrimSpace(req.Email),
		Company: strings.TrimSpace(req.Company),
		Urgency: strings.TrimSpace(req.Urgency),
		Message: strings.TrimSpace(req.Message),
	}

	if sub.Name == "" || sub.Email == "" || sub.Message == "" {
		return sub, errContactRequired
	}

	addr, err := mail.ParseAddress(sub.Email)
	if err != nil || addr.Name != "" {
		return sub, errContactEmail
	}
	sub.Email = strings.ToLower(addr.Address)

	return sub, ""
}

func failureMessage(kind models.FailureKind) string {
	switch kind {
	case models.FailureMalformedPayload:
		return "Invalid webhook payload"
	case models.FailureMissingCredential:
		return "Outbound email is not configured"
	case models.FailureDispatchError:
		return "Failed to send reply"
	default:
		return "internal error"
	}
}

// --- Middleware ---

type requestIDKey struct{}

// RequestID returns the id assigned to the request, if any.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// withRequestID echoes X-Request-ID, generating one when absent.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if id == "" || len(id) > 128 {
			id = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

// withRecover turns a panic into a 500.
func withRecover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				slog.Error("panic in handler",
					"request_id", RequestID(r.Context()),
					"path", r.URL.Path,
					"panic", fmt.Sprint(rec),
				)
				writeError(w, http.StatusInternalServerError, "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// postOnly sets CORS headers, answers preflight requests and rejects
// anything but POST.
func postOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		switch r.Method {
		case http.MethodOptions:
			w.WriteHeader(http.StatusOK)
		case http.MethodPost:
			next.ServeHTTP(w, r)
		default:
			writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Debug("failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// Serve starts the webhook server on the given port. It returns a channel
// that is closed once the listener is bound. The server stops when ctx is
// cancelled, letting in-flight requests finish.
func Serve(ctx context.Context, port int, handler *Handler) (<-chan struct{}, error) {
	server := &http.Server{
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("bind webhook port %d: %w", port, err)
	}

	ready := make(chan struct{})

	go func() {
		<-ctx.Done()
		slog.Info("webhook server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("webhook server shutdown error", "error", err)
		}
	}()

	go func() {
		slog.Info("webhook server listening", "port", port)
		close(ready)
		if err := server.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			slog.Error("webhook server error", "error", err)
		}
	}()

	return ready, nil
}
