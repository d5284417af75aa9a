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

package models

import "strings"

// Reason explains why an event was intentionally not answered.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonWrongEventType
	ReasonWrongInbox
	ReasonMissingSender
	ReasonSelfLoop
	ReasonSystemSender
	ReasonDuplicate
)

func (r Reason) String() string {
	switch r {
	case ReasonWrongEventType:
		return "wrong-event-type"
	case ReasonWrongInbox:
		return "wrong-inbox"
	case ReasonMissingSender:
		return "missing-sender"
	case ReasonSelfLoop:
		return "self-loop"
	case ReasonSystemSender:
		return "system-sender"
	case ReasonDuplicate:
		return "duplicate"
	default:
		return ""
	}
}

// FailureKind classifies a request that could not be handled.
type FailureKind int

const (
	FailureNone FailureKind = iota
	FailureMalformedPayload
	FailureMissingCredential
	FailureDispatchError
)

func (f FailureKind) String() string {
	switch f {
	case FailureMalformedPayload:
		return "malformed-payload"
	case FailureMissingCredential:
		return "missing-credential"
	case FailureDispatchError:
		return "dispatch-error"
	default:
		return ""
	}
}

// Category is the reply template chosen for a message.
type Category int

const (
	CategoryDefault Category = iota
	CategoryPricing
	CategoryVertical
	CategoryBudgetCap
)

func (c Category) String() string {
	switch c {
	case CategoryPricing:
		return "pricing"
	case CategoryVertical:
		return "vertical"
	case CategoryBudgetCap:
		return "budget-cap"
	default:
		return "default"
	}
}

// ParseCategory maps a category name to its value. Unknown names return
// false.
func ParseCategory(s string) (Category, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "default":
		return CategoryDefault, true
	case "pricing":
		return CategoryPricing, true
	case "vertical":
		return CategoryVertical, true
	case "budget-cap", "budget_cap", "budgetcap":
		return CategoryBudgetCap, true
	}
	return CategoryDefault, false
}

// ReplyDraft is a composed reply. Subject always starts with a single "Re:".
type ReplyDraft struct {
	Subject    string
	Body       string
	InReplyTo  string
	References string
	Category   Category
}

// OutboundMessage is what the transport sends on behalf of the monitored inbox.
type OutboundMessage struct {
	To      string            `json:"to"`
	Subject string            `json:"subject"`
	Text    string            `json:"text"`
	Headers map[string]string `json:"headers,omitempty"`
}

// SendResult is the provider's acknowledgement of a sent message.
type SendResult struct {
	MessageID string `json:"message_id"`
	ThreadID  string `json:"thread_id,omitempty"`
}

// Status is the terminal state of one webhook invocation.
type Status int

const (
	StatusIgnored Status = iota
	StatusSent
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusSent:
		return "sent"
	case StatusFailed:
		return "failed"
	default:
		return "ignored"
	}
}

// Outcome is created per webhook invocation and returned as the response body.
type Outcome struct {
	Status            Status
	Reason            Reason
	Failure           FailureKind
	Category          Category
	ProviderMessageID string
}

// Ignored builds an ignored outcome.
func Ignored(reason Reason) Outcome {
	return Outcome{Status: StatusIgnored, Reason: reason}
}

// Failed builds a failed outcome.
func Failed(kind FailureKind) Outcome {
	return Outcome{Status: StatusFailed, Failure: kind}
}

// Sent builds a sent outcome.
func Sent(category Category, providerMessageID string) Outcome {
	return Outcome{Status: StatusSent, Category: category, ProviderMessageID: providerMessageID}
}
