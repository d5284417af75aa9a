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
	"errors"
	"strconv"
	"testing"
)

// TestAccept verifies event gating across body shapes.
func TestAccept(t *testing.T) {
	received := `{"eventType":"message.received","message":{"inboxId":"minnie@agentmail.to"}}`

	tests := []struct {
		name      string
		body      string
		wantOK    bool
		wantError bool
	}{
		{name: "message received", body: received, wantOK: true},
		{name: "snake case type", body: `{"event_type":"message.received"}`, wantOK: true},
		{name: "string wrapped body", body: strconv.Quote(received), wantOK: true},
		{name: "other event", body: `{"eventType":"other.event"}`},
		{name: "missing event type", body: `{"message":{}}`},
		{name: "empty body", body: ""},
		{name: "whitespace body", body: "  \n"},
		{name: "empty string body", body: `""`},
		{name: "json array", body: `[1,2,3]`},
		{name: "json number", body: `42`},
		{name: "malformed", body: `{"eventType":`, wantError: true},
		{name: "not json", body: `eventType=message.received`, wantError: true},
		{name: "string holding garbage", body: `"{not json"`, wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok, err := Accept([]byte(tt.body))
			if tt.wantError {
				if !errors.Is(err, ErrMalformedPayload) {
					t.Fatalf("err = %v, want ErrMalformedPayload", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if ok != tt.wantOK {
				t.Errorf("ok = %v, want %v", ok, tt.wantOK)
			}
		})
	}
}

// TestAccept_PreservesMessage verifies the message block survives unwrapping.
func TestAccept_PreservesMessage(t *testing.T) {
	body := strconv.Quote(`{"eventType":"message.received","message":{"inboxId":"minnie@agentmail.to","message_id":"m1","subject":"Hello"}}`)

	event, ok, err := Accept([]byte(body))
	if err != nil || !ok {
		t.Fatalf("Accept = ok %v, err %v", ok, err)
	}
	if event.Message.MessageID != "m1" {
		t.Errorf("message id = %q, want m1", event.Message.MessageID)
	}
	if event.Message.Subject != "Hello" {
		t.Errorf("subject = %q, want Hello", event.Message.Subject)
	}
}
