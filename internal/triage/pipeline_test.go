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
	"strings"
	"testing"

	"github.com/belphia/autoreply/internal/models"
)

const scenarioA = `{
	"eventType": "message.received",
	"message": {
		"inboxId": "minnie@agentmail.to",
		"from": [{"email": "lead@acme.com", "name": "Lee"}],
		"subject": "Question",
		"text": "what's the cost?",
		"message_id": "m1"
	}
}`

func newTestPipeline(credential string, tr Transport, dd Deduper) *Pipeline {
	return NewPipeline(
		NewClassifier(testInbox, nil),
		NewComposer(DefaultComposerConfig()),
		NewCoordinator(CoordinatorConfig{
			InboxID:    testInbox,
			Credential: credential,
			Transport:  tr,
			Dedup:      dd,
		}),
	)
}

// TestPipeline_ScenarioA verifies an eligible pricing question is answered.
func TestPipeline_ScenarioA(t *testing.T) {
	tr := &mockTransport{}
	p := newTestPipeline("key", tr, nil)

	out := p.Process(context.Background(), []byte(scenarioA))

	if out.Status != models.StatusSent {
		t.Fatalf("outcome = %+v, want sent", out)
	}
	if out.Category != models.CategoryPricing {
		t.Errorf("category = %s, want pricing", out.Category)
	}

	calls := tr.calls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 send, got %d", len(calls))
	}
	msg := calls[0].msg
	if msg.Subject != "Re: Question" {
		t.Errorf("subject = %q, want %q", msg.Subject, "Re: Question")
	}
	if msg.To != "lead@acme.com" {
		t.Errorf("to = %q", msg.To)
	}
	if msg.Headers["In-Reply-To"] != "m1" || msg.Headers["References"] != "m1" {
		t.Errorf("headers = %v", msg.Headers)
	}
	if !strings.HasPrefix(msg.Text, "Hey Lee,") || !strings.Contains(msg.Text, "pricing") {
		t.Errorf("expected pricing template for Lee, got %q", msg.Text)
	}
}

// TestPipeline_ScenarioB verifies the self-loop guard.
func TestPipeline_ScenarioB(t *testing.T) {
	tr := &mockTransport{}
	p := newTestPipeline("key", tr, nil)
	body := strings.Replace(scenarioA, `[{"email": "lead@acme.com", "name": "Lee"}]`, `[{"email": "minnie@agentmail.to"}]`, 1)

	out := p.Process(context.Background(), []byte(body))

	if out.Status != models.StatusIgnored || out.Reason != models.ReasonSelfLoop {
		t.Errorf("outcome = %+v, want ignored(self-loop)", out)
	}
	if n := len(tr.calls()); n != 0 {
		t.Errorf("transport called %d times, want 0", n)
	}
}

// TestPipeline_ScenarioC verifies other event types are ignored.
func TestPipeline_ScenarioC(t *testing.T) {
	tr := &mockTransport{}
	p := newTestPipeline("key", tr, nil)
	body := strings.Replace(scenarioA, "message.received", "other.event", 1)

	out := p.Process(context.Background(), []byte(body))

	if out.Status != models.StatusIgnored || out.Reason != models.ReasonWrongEventType {
		t.Errorf("outcome = %+v, want ignored(wrong-event-type)", out)
	}
	if n := len(tr.calls()); n != 0 {
		t.Errorf("transport called %d times, want 0", n)
	}
}

// TestPipeline_ScenarioD verifies a missing credential fails without sending.
func TestPipeline_ScenarioD(t *testing.T) {
	tr := &mockTransport{}
	p := newTestPipeline("", tr, nil)

	out := p.Process(context.Background(), []byte(scenarioA))

	if out.Status != models.StatusFailed || out.Failure != models.FailureMissingCredential {
		t.Errorf("outcome = %+v, want failed(missing-credential)", out)
	}
	if n := len(tr.calls()); n != 0 {
		t.Errorf("transport called %d times, want 0", n)
	}
}

// TestPipeline_Redelivery verifies the same event delivered twice gets one reply.
func TestPipeline_Redelivery(t *testing.T) {
	tr := &mockTransport{}
	p := newTestPipeline("key", tr, newMockDedup())

	first := p.Process(context.Background(), []byte(scenarioA))
	second := p.Process(context.Background(), []byte(scenarioA))

	if first.Status != models.StatusSent {
		t.Errorf("first = %+v, want sent", first)
	}
	if second.Reason != models.ReasonDuplicate {
		t.Errorf("second = %+v, want ignored(duplicate)", second)
	}
	if n := len(tr.calls()); n != 1 {
		t.Errorf("transport called %d times, want 1", n)
	}
}

// TestPipeline_MalformedPayload verifies bad JSON is a failure, not an ignore.
func TestPipeline_MalformedPayload(t *testing.T) {
	tr := &mockTransport{}
	p := newTestPipeline("key", tr, nil)

	out := p.Process(context.Background(), []byte(`{"eventType": "message.received",`))

	if out.Status != models.StatusFailed || out.Failure != models.FailureMalformedPayload {
		t.Errorf("outcome = %+v, want failed(malformed-payload)", out)
	}
}

// TestPipeline_NonMatchingEventsAlwaysIgnored verifies any non message.received
// type is ignored regardless of the rest of the payload.
func TestPipeline_NonMatchingEventsAlwaysIgnored(t *testing.T) {
	tr := &mockTransport{}
	p := newTestPipeline("", tr, nil)

	for _, typ := range []string{"", "message.sent", "MESSAGE.RECEIVED", "message.received.v2", "message.bounced"} {
		body := strings.Replace(scenarioA, "message.received", typ, 1)
		out := p.Process(context.Background(), []byte(body))
		if out.Status != models.StatusIgnored || out.Reason != models.ReasonWrongEventType {
			t.Errorf("type %q: outcome = %+v, want ignored(wrong-event-type)", typ, out)
		}
	}
	if n := len(tr.calls()); n != 0 {
		t.Errorf("transport called %d times, want 0", n)
	}
}

// TestPipeline_Preview verifies the dry-run path composes without sending.
func TestPipeline_Preview(t *testing.T) {
	tr := &mockTransport{}
	p := newTestPipeline("key", tr, nil)

	cls, draft, err := p.Preview([]byte(scenarioA))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cls.Eligible || draft == nil {
		t.Fatalf("expected eligible draft, got %+v %v", cls, draft)
	}
	if draft.Subject != "Re: Question" {
		t.Errorf("subject = %q", draft.Subject)
	}
	if n := len(tr.calls()); n != 0 {
		t.Errorf("preview sent %d messages", n)
	}
}
