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
	"strings"

	"github.com/belphia/autoreply/internal/models"
)

// DefaultSystemSenderMarkers match automated mailboxes that must never get a reply.
var DefaultSystemSenderMarkers = []string{
	"no-reply@",
	"noreply@",
	"donotreply@",
	"do-not-reply@",
	"postmaster@",
	"mailer-daemon@",
}

// fallbackSenderName is used when no usable name can be derived.
const fallbackSenderName = "there"

// Classification is the classifier's verdict. When Eligible is true,
// SenderEmail is non-empty, lowercase and differs from the monitored inbox.
type Classification struct {
	Eligible    bool
	Reason      models.Reason
	SenderEmail string
	SenderName  string
}

func ignore(reason models.Reason) Classification {
	return Classification{Reason: reason}
}

// Classifier decides whether a sender is eligible for an automated reply.
type Classifier struct {
	inbox   string
	markers []string
}

// NewClassifier creates a classifier for the given monitored inbox. A nil
// markers slice selects DefaultSystemSenderMarkers.
func NewClassifier(inboxID string, markers []string) *Classifier {
	if markers == nil {
		markers = DefaultSystemSenderMarkers
	}

	lowered := make([]string, 0, len(markers))
	for _, m := range markers {
		m = strings.ToLower(strings.TrimSpace(m))
		if m != "" {
			lowered = append(lowered, m)
		}
	}

	return &Classifier{
		inbox:   normalizeAddress(inboxID),
		markers: lowered,
	}
}

// Inbox returns the normalised monitored inbox address.
func (c *Classifier) Inbox() string {
	return c.inbox
}

// Classify applies the eligibility rules in order; the first match wins.
func (c *Classifier) Classify(msg models.InboundMessage) Classification {
	if normalizeAddress(msg.InboxID) != c.inbox {
		return ignore(models.ReasonWrongInbox)
	}

	sender, ok := msg.From.First()
	if !ok {
		return ignore(models.ReasonMissingSender)
	}

	email, ok := usableEmail(sender.Email)
	if !ok {
		return ignore(models.ReasonMissingSender)
	}

	if email == c.inbox {
		return ignore(models.ReasonSelfLoop)
	}

	if c.isSystemSender(email) {
		return ignore(models.ReasonSystemSender)
	}

	return Classification{
		Eligible:    true,
		SenderEmail: email,
		SenderName:  SenderName(sender.Name, email),
	}
}

// isSystemSender matches markers anywhere in the address, not only as a prefix,
// so "bounces+no-reply@host" is caught too.
func (c *Classifier) isSystemSender(email string) bool {
	for _, m := range c.markers {
		if strings.Contains(email, m) {
			return true
		}
	}
	return false
}

func normalizeAddress(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// usableEmail returns the lowercased address when it looks like one.
func usableEmail(raw string) (string, bool) {
	email := normalizeAddress(raw)
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return "", false
	}
	return email, true
}

var namePunctuation = strings.NewReplacer(
	" ", "",
	",", "",
	".", "",
	"'", "",
	`"`, "",
	"(", "",
	")", "",
)

// SenderName derives a greeting name: the display name if present, else the
// local part of the address, reduced to its first word without punctuation.
// It never returns an empty string.
func SenderName(displayName, email string) string {
	source := strings.TrimSpace(displayName)
	if source == "" {
		source = localPart(email)
	}

	fields := strings.Fields(source)
	if len(fields) == 0 {
		return fallbackSenderName
	}

	name := namePunctuation.Replace(fields[0])
	if name == "" {
		return fallbackSenderName
	}
	return name
}

func localPart(email string) string {
	email = strings.TrimSpace(email)
	if at := strings.Index(email, "@"); at >= 0 {
		return email[:at]
	}
	return email
}
