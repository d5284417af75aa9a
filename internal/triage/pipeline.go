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

	"github.com/belphia/autoreply/internal/metrics"
	"github.com/belphia/autoreply/internal/models"
)

// Dispatcher is the final stage of the pipeline. *Coordinator implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, cls Classification, draft models.ReplyDraft) models.Outcome
}

// Pipeline chains the four stages for one webhook body. It holds no mutable
// state and is safe for concurrent use.
type Pipeline struct {
	classifier *Classifier
	composer   *Composer
	dispatcher Dispatcher
}

// NewPipeline wires the stages together.
func NewPipeline(classifier *Classifier, composer *Composer, dispatcher Dispatcher) *Pipeline {
	return &Pipeline{
		classifier: classifier,
		composer:   composer,
		dispatcher: dispatcher,
	}
}

// Process runs a raw webhook body through the pipeline.
func (p *Pipeline) Process(ctx context.Context, raw []byte) models.Outcome {
	outcome := p.process(ctx, raw)
	metrics.RecordOutcome(outcome)
	return outcome
}

func (p *Pipeline) process(ctx context.Context, raw []byte) models.Outcome {
	cls, draft, err := p.Preview(raw)
	if err != nil {
		slog.Error("failed to parse webhook payload", "body_len", len(raw), "error", err)
		return models.Failed(models.FailureMalformedPayload)
	}
	if draft == nil {
		slog.Info("webhook event ignored", "reason", cls.Reason.String())
		return models.Ignored(cls.Reason)
	}

	slog.Info("auto-reply composed",
		"to", cls.SenderEmail,
		"message_id", draft.InReplyTo,
		"category", draft.Category.String(),
	)

	return p.dispatcher.Dispatch(ctx, cls, *draft)
}

// Preview runs every stage except dispatch. The draft is nil when the event
// is ignored, in which case the classification carries the reason.
func (p *Pipeline) Preview(raw []byte) (Classification, *models.ReplyDraft, error) {
	event, ok, err := Accept(raw)
	if err != nil {
		return Classification{}, nil, err
	}
	if !ok {
		return ignore(models.ReasonWrongEventType), nil, nil
	}

	cls := p.classifier.Classify(event.Message)
	if !cls.Eligible {
		return cls, nil, nil
	}

	draft := p.composer.Compose(cls.SenderName, event.Message)
	return cls, &draft, nil
}
