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

package triage

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/belphia/autoreply/internal/metrics"
	"github.com/belphia/autoreply/internal/models"
)

// Transport sends one outbound message from the monitored inbox.
type Transport interface {
	SendReply(ctx context.Context, inboxID string, msg models.OutboundMessage) (models.SendResult, error)
}

// Deduper remembers which inbound messages already got a reply.
type Deduper interface {
	// Claim returns true if messageID has not been claimed before.
	Claim(ctx context.Context, messageID string) (bool, error)
	// Release forgets a claim so a redelivery can be answered.
	Release(ctx context.Context, messageID string) error
}

// CoordinatorConfig holds dependencies for the dispatch coordinator.
type CoordinatorConfig struct {
	InboxID    string
	Credential string
	Transport  Transport
	Dedup      Deduper // optional
}

// Coordinator turns an eligible classification and a draft into exactly one
// outbound send.
type Coordinator struct {
	inbox      string
	credential string
	transport  Transport
	dedup      Deduper
}

// NewCoordinator creates a dispatch coordinator.
func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	return &Coordinator{
		inbox:      normalizeAddress(cfg.InboxID),
		credential: strings.TrimSpace(cfg.Credential),
		transport:  cfg.Transport,
		dedup:      cfg.Dedup,
	}
}

// Dispatch sends the draft to the classified sender. It never retries: a
// transport error becomes a dispatch-error failure.
func (c *Coordinator) Dispatch(ctx context.Context, cls Classification, draft models.ReplyDraft) models.Outcome {
	if !cls.Eligible {
		return models.Ignored(cls.Reason)
	}

	if c.credential == "" || c.transport == nil {
		slog.Error("outbound credential not configured, reply not sent",
			"to", cls.SenderEmail,
		)
		return models.Failed(models.FailureMissingCredential)
	}

	messageID := draft.InReplyTo
	if !c.claim(ctx, messageID) {
		slog.Info("skipping duplicate delivery", "message_id", messageID)
		return models.Ignored(models.ReasonDuplicate)
	}

	msg := models.OutboundMessage{
		To:      cls.SenderEmail,
		Subject: draft.Subject,
		Text:    draft.Body,
		Headers: threadingHeaders(draft),
	}

	start := time.Now()
	result, err := c.transport.SendReply(ctx, c.inbox, msg)
	elapsed := time.Since(start)

	if err != nil {
		metrics.RecordDispatch(models.StatusFailed.String(), elapsed)
		slog.Error("reply dispatch failed",
			"to", cls.SenderEmail,
			"message_id", messageID,
			"error", err,
		)
		c.release(ctx, messageID)
		return models.Failed(models.FailureDispatchError)
	}

	metrics.RecordDispatch(models.StatusSent.String(), elapsed)
	slog.Info("reply sent",
		"to", cls.SenderEmail,
		"message_id", messageID,
		"category", draft.Category.String(),
		"provider_message_id", result.MessageID,
	)

	return models.Sent(draft.Category, result.MessageID)
}

// claim reports whether the send should proceed. Messages without an id
// cannot be deduplicated and always proceed, as do dedup backend errors.
func (c *Coordinator) claim(ctx context.Context, messageID string) bool {
	if c.dedup == nil || messageID == "" {
		return true
	}

	isNew, err := c.dedup.Claim(ctx, messageID)
	if err != nil {
		slog.Warn("dedup check failed, proceeding", "message_id", messageID, "error", err)
		return true
	}
	return isNew
}

func (c *Coordinator) release(ctx context.Context, messageID string) {
	if c.dedup == nil || messageID == "" {
		return
	}
	if err := c.dedup.Release(ctx, messageID); err != nil {
		slog.Warn("failed to release dedup claim", "message_id", messageID, "error", err)
	}
}

// threadingHeaders links the reply to the inbound message. Empty values are
// never sent.
func threadingHeaders(draft models.ReplyDraft) map[string]string {
	headers := make(map[string]string, 2)
	if v := strings.TrimSpace(draft.InReplyTo); v != "" {
		headers["In-Reply-To"] = v
	}
	if v := strings.TrimSpace(draft.References); v != "" {
		headers["References"] = v
	}
	if len(headers) == 0 {
		return nil
	}
	return headers
}
