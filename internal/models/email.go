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

// Package models defines the data structures shared across the auto-reply service.
package models

import (
	"bytes"
	"encoding/json"
	"net/mail"
	"strings"
)

// EventKind identifies the webhook event types the service understands.
type EventKind int

const (
	EventUnknown EventKind = iota
	EventMessageReceived
)

// eventTypeMessageReceived is the provider's wire name for a new inbound message.
const eventTypeMessageReceived = "message.received"

// ParseEventKind maps a wire event type onto an EventKind.
func ParseEventKind(s string) EventKind {
	if strings.TrimSpace(s) == eventTypeMessageReceived {
		return EventMessageReceived
	}
	return EventUnknown
}

func (k EventKind) String() string {
	if k == EventMessageReceived {
		return eventTypeMessageReceived
	}
	return "unknown"
}

// Sender is a single address from the From list.
type Sender struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// Senders decodes the provider's From field, which arrives either as a list
// of {email, name} objects, a list of strings, a single object, or a single
// RFC 5322 address string. Shapes it cannot read decode to an empty list.
type Senders []Sender

// UnmarshalJSON implements json.Unmarshaler.
func (s *Senders) UnmarshalJSON(data []byte) error {
	*s = nil
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	switch data[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(data, &items); err != nil {
			return nil
		}
		for _, item := range items {
			if sender, ok := decodeSender(item); ok {
				*s = append(*s, sender)
			}
		}
	default:
		if sender, ok := decodeSender(data); ok {
			*s = Senders{sender}
		}
	}
	return nil
}

// First returns the primary sender, if any.
func (s Senders) First() (Sender, bool) {
	if len(s) == 0 {
		return Sender{}, false
	}
	return s[0], true
}

func decodeSender(data json.RawMessage) (Sender, bool) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return Sender{}, false
	}

	switch data[0] {
	case '{':
		var obj struct {
			Email   string `json:"email"`
			Address string `json:"address"`
			Name    string `json:"name"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return Sender{}, false
		}
		return Sender{Email: firstNonEmpty(obj.Email, obj.Address), Name: obj.Name}, true
	case '"':
		var raw string
		if err := json.Unmarshal(data, &raw); err != nil {
			return Sender{}, false
		}
		return parseAddress(raw), true
	}
	return Sender{}, false
}

// parseAddress reads "Name <addr>" or a bare address. Anything net/mail
// rejects is kept verbatim as the email so the classifier can decide.
func parseAddress(raw string) Sender {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Sender{}
	}
	addr, err := mail.ParseAddress(raw)
	if err != nil {
		return Sender{Email: raw}
	}
	return Sender{Email: addr.Address, Name: addr.Name}
}

// InboundMessage is the message block of a webhook event. Every field is
// optional; callers must treat zero values as "absent".
type InboundMessage struct {
	InboxID   string
	From      Senders
	Subject   string
	MessageID string
	Text      string
	HTML      string
	Preview   string
}

// UnmarshalJSON accepts both camelCase and snake_case field names. Fields of
// the wrong JSON type, or a message that is not an object at all, decode as
// absent rather than failing the whole event.
func (m *InboundMessage) UnmarshalJSON(data []byte) error {
	*m = InboundMessage{}
	fields, ok := objectFields(data)
	if !ok {
		return nil
	}

	if raw, ok := fields["from"]; ok {
		_ = m.From.UnmarshalJSON(raw)
	}
	m.InboxID = stringField(fields, "inboxId", "inbox_id")
	m.Subject = stringField(fields, "subject")
	m.MessageID = strings.TrimSpace(stringField(fields, "messageId", "message_id"))
	m.Text = stringField(fields, "text")
	m.HTML = stringField(fields, "html")
	m.Preview = stringField(fields, "preview")
	return nil
}

// InboundEvent is a single webhook delivery. It is built per request from
// untrusted JSON and never persisted.
type InboundEvent struct {
	Type    string
	Message InboundMessage
}

// UnmarshalJSON accepts both eventType and event_type.
func (e *InboundEvent) UnmarshalJSON(data []byte) error {
	*e = InboundEvent{}
	fields, ok := objectFields(data)
	if !ok {
		return nil
	}

	e.Type = stringField(fields, "eventType", "event_type")
	if raw, ok := fields["message"]; ok {
		_ = e.Message.UnmarshalJSON(raw)
	}
	return nil
}

// objectFields splits a JSON object into its raw members.
func objectFields(data []byte) (map[string]json.RawMessage, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil || fields == nil {
		return nil, false
	}
	return fields, true
}

// stringField returns the first key that holds a non-empty JSON string.
func stringField(fields map[string]json.RawMessage, keys ...string) string {
	for _, key := range keys {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		var v string
		if err := json.Unmarshal(raw, &v); err != nil {
			continue
		}
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// Kind returns the typed event kind.
func (e InboundEvent) Kind() EventKind {
	return ParseEventKind(e.Type)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
