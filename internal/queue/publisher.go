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

// Package queue forwards validated contact-form submissions to a Redis list
// for whoever follows up on leads.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultContactQueue is the Redis list contact submissions are pushed to.
const DefaultContactQueue = "autoreply:contact"

// ContactSubmission is one validated contact-form entry.
type ContactSubmission struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Company string `json:"company,omitempty"`
	Urgency string `json:"urgency,omitempty"`
	Message string `json:"message"`
}

// envelope wraps a submission for transport.
type envelope struct {
	ID         string            `json:"id"`
	Kind       string            `json:"kind"`
	ReceivedAt time.Time         `json:"received_at"`
	RequestID  string            `json:"request_id,omitempty"`
	Submission ContactSubmission `json:"submission"`
}

// Publisher pushes submissions onto a Redis list.
type Publisher struct {
	rdb       redis.Cmdable
	queueName string
	now       func() time.Time
}

// NewPublisher creates a new Redis publisher targeting the specified queue.
func NewPublisher(rdb redis.Cmdable, queueName string) *Publisher {
	if queueName == "" {
		queueName = DefaultContactQueue
	}
	return &Publisher{
		rdb:       rdb,
		queueName: queueName,
		now:       time.Now,
	}
}

// PublishContact serialises the submission and pushes it to the queue.
// It returns the id assigned to the entry.
func (p *Publisher) PublishContact(ctx context.Context, requestID string, sub ContactSubmission) (string, error) {
	id := uuid.New().String()

	msg, err := json.Marshal(envelope{
		ID:         id,
		Kind:       "contact",
		ReceivedAt: p.now().UTC(),
		RequestID:  requestID,
		Submission: sub,
	})
	if err != nil {
		return "", fmt.Errorf("marshal contact submission: %w", err)
	}

	// Consumers BRPOP from the other end.
	if err := p.rdb.LPush(ctx, p.queueName, string(msg)).Err(); err != nil {
		return "", fmt.Errorf("redis LPUSH: %w", err)
	}

	slog.Info("published contact submission",
		"submission_id", id,
		"request_id", requestID,
		"urgency", sub.Urgency,
		"queue", p.queueName,
	)

	return id, nil
}

// Ping checks the Redis connection.
func (p *Publisher) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return p.rdb.Ping(ctx).Err()
}
