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

// Package triage decides whether an inbound email deserves an automated
// reply and sends it. A webhook body flows through four stages:
//
//  1. Accept:   validate the payload and keep only message.received events
//  2. Classify: reject wrong inboxes, self-mail and system senders
//  3. Compose:  pick a canned reply by keyword and normalise the subject
//  4. Dispatch: send exactly once through the outbound transport
//
// Any stage may end the request with an ignored outcome.
package triage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/belphia/autoreply/internal/models"
)

// ErrMalformedPayload is returned when the webhook body is not valid JSON.
var ErrMalformedPayload = errors.New("malformed webhook payload")

// Accept parses a raw webhook body. ok is false when the event is not a
// message.received event; that is a successful no-op, not an error.
//
// An empty body is read as {}. A body that is itself a JSON string holding a
// JSON document (some relays double-encode) is unwrapped first.
func Accept(raw []byte) (event models.InboundEvent, ok bool, err error) {
	body, err := unwrapBody(raw)
	if err != nil {
		return models.InboundEvent{}, false, err
	}

	if err := json.Unmarshal(body, &event); err != nil {
		return models.InboundEvent{}, false, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	return event, event.Kind() == models.EventMessageReceived, nil
}

func unwrapBody(raw []byte) ([]byte, error) {
	body := bytes.TrimSpace(raw)
	if len(body) == 0 {
		return []byte("{}"), nil
	}

	if !json.Valid(body) {
		return nil, fmt.Errorf("%w: invalid JSON (%d bytes)", ErrMalformedPayload, len(body))
	}

	if body[0] != '"' {
		return body, nil
	}

	var inner string
	if err := json.Unmarshal(body, &inner); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return unwrapInner([]byte(inner))
}

// unwrapInner handles the decoded contents of a string body. Only one level
// of string encoding is removed.
func unwrapInner(inner []byte) ([]byte, error) {
	inner = bytes.TrimSpace(inner)
	if len(inner) == 0 {
		return []byte("{}"), nil
	}
	if !json.Valid(inner) {
		return nil, fmt.Errorf("%w: string body is not JSON", ErrMalformedPayload)
	}
	return inner, nil
}
