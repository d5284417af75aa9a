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
	"testing"

	"github.com/belphia/autoreply/internal/models"
)

// TestComposer_Select verifies first-matching-category selection.
func TestComposer_Select(t *testing.T) {
	c := NewComposer(DefaultComposerConfig())

	tests := []struct {
		text string
		want models.Category
	}{
		{"what's the cost?", models.CategoryPricing},
		{"PRICING please", models.CategoryPricing},
		{"How much would this be", models.CategoryPricing},
		{"can you send a quote", models.CategoryPricing},
		{"we run a used car DEALERSHIP", models.CategoryVertical},
		{"do you support WhatsApp?", models.CategoryVertical},
		{"dealership pricing", models.CategoryPricing}, // pricing outranks vertical
		{"I don't want to spend more than $100/mo", models.CategoryBudgetCap},
		{"budget cap of 200 for our telegram bot", models.CategoryVertical},
		{"hello there, tell me more", models.CategoryDefault},
		{"", models.CategoryDefault},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, _ := c.Body("Lee", tt.text)
			if got != tt.want {
				t.Errorf("category(%q) = %s, want %s", tt.text, got, tt.want)
			}
		})
	}
}

// TestComposer_KeywordOrderIndependent verifies any keyword in a set selects it.
func TestComposer_KeywordOrderIndependent(t *testing.T) {
	c := NewComposer(DefaultComposerConfig())

	for _, rule := range DefaultComposerConfig().Rules {
		for _, k := range rule.Keywords {
			for _, variant := range []string{k, strings.ToUpper(k), "prefix " + k + " suffix"} {
				got, _ := c.Select(strings.ToLower(variant))
				if got != rule.Category {
					t.Errorf("keyword %q (%q) selected %s, want %s", k, variant, got, rule.Category)
				}
			}
		}
	}
}

// TestComposer_BodyOnlyEchoesName verifies no inbound content reaches the body.
func TestComposer_BodyOnlyEchoesName(t *testing.T) {
	c := NewComposer(DefaultComposerConfig())
	injected := "what's the cost?\r\nBcc: victim@example.com {name} {signature}"

	_, body := c.Body("Lee", injected)

	if strings.Contains(body, "victim@example.com") || strings.Contains(body, "Bcc:") {
		t.Errorf("inbound text leaked into body: %q", body)
	}
	if !strings.HasPrefix(body, "Hey Lee,") {
		t.Errorf("body should greet sender, got %q", body[:20])
	}
	if strings.Contains(body, "{name}") || strings.Contains(body, "{signature}") {
		t.Error("placeholders left unrendered")
	}
}

// TestComposer_InboundTextPriority verifies text > html > preview.
func TestComposer_InboundTextPriority(t *testing.T) {
	c := NewComposer(DefaultComposerConfig())

	tests := []struct {
		name string
		msg  models.InboundMessage
		want string
	}{
		{"text wins", models.InboundMessage{Text: "Plain", HTML: "<b>html</b>", Preview: "prev"}, "plain"},
		{"html when text blank", models.InboundMessage{Text: "  ", HTML: "<p>What&#39;s the <b>COST</b>?</p>", Preview: "prev"}, "what's the cost?"},
		{"preview last", models.InboundMessage{Preview: "Preview Only"}, "preview only"},
		{"nothing", models.InboundMessage{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.InboundText(tt.msg); got != tt.want {
				t.Errorf("InboundText = %q, want %q", got, tt.want)
			}
		})
	}
}

// TestComposer_Compose verifies subject and threading on the draft.
func TestComposer_Compose(t *testing.T) {
	c := NewComposer(DefaultComposerConfig())

	draft := c.Compose("Lee", models.InboundMessage{
		Subject:   "Question",
		Text:      "what's the cost?",
		MessageID: "m1",
	})

	if draft.Subject != "Re: Question" {
		t.Errorf("subject = %q, want %q", draft.Subject, "Re: Question")
	}
	if draft.Category != models.CategoryPricing {
		t.Errorf("category = %s, want pricing", draft.Category)
	}
	if draft.InReplyTo != "m1" || draft.References != "m1" {
		t.Errorf("threading = %q/%q, want m1/m1", draft.InReplyTo, draft.References)
	}

	noID := c.Compose("Lee", models.InboundMessage{})
	if noID.InReplyTo != "" || noID.References != "" {
		t.Errorf("threading should be empty without a message id, got %+v", noID)
	}
	if noID.Subject != c.DefaultSubject() {
		t.Errorf("subject = %q, want default %q", noID.Subject, c.DefaultSubject())
	}
}

// TestComposer_CustomConfig verifies injected rules and defaults.
func TestComposer_CustomConfig(t *testing.T) {
	c := NewComposer(ComposerConfig{
		Rules: []Rule{
			{Category: models.CategoryVertical, Keywords: []string{"Boat"}, Template: "Ahoy {name} from {signature}"},
			{Category: models.CategoryPricing, Keywords: []string{" "}, Template: "never used"},
		},
		DefaultSubject: "Thanks for writing",
		Signature:      "Crew",
	})

	cat, body := c.Body("Sam", "selling my BOAT")
	if cat != models.CategoryVertical || body != "Ahoy Sam from Crew" {
		t.Errorf("got %s %q", cat, body)
	}

	if cat, _ := c.Body("Sam", "price?"); cat != models.CategoryDefault {
		t.Errorf("built-in rules should be replaced, got %s", cat)
	}

	if c.DefaultSubject() != "Re: Thanks for writing" {
		t.Errorf("default subject = %q", c.DefaultSubject())
	}
}

// TestNormalizeSubject verifies prefixing rules.
func TestNormalizeSubject(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Question", "Re: Question"},
		{"Re: Question", "Re: Question"},
		{"RE: Question", "RE: Question"},
		{"re:Question", "re:Question"},
		{"  Question  ", "Re: Question"},
		{"Regarding pricing", "Re: Regarding pricing"},
		{"", "Re: Follow-up"},
		{"   ", "Re: Follow-up"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := NormalizeSubject(tt.in, "Follow-up"); got != tt.want {
				t.Errorf("NormalizeSubject(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

// TestNormalizeSubject_Idempotent verifies normalize(normalize(s)) == normalize(s).
func TestNormalizeSubject_Idempotent(t *testing.T) {
	inputs := []string{
		"", " ", "Re:", "re", "Re: Re: x", "Fwd: hi", "RE:", "Ré: accent", "日本語", "\tRe:\t", "r",
	}
	for _, fallback := range []string{"", "Follow-up", "Re: Follow-up"} {
		for _, s := range inputs {
			once := NormalizeSubject(s, fallback)
			twice := NormalizeSubject(once, fallback)
			if once != twice {
				t.Errorf("not idempotent for %q (fallback %q): %q -> %q", s, fallback, once, twice)
			}
			if !hasReplyPrefix(once) {
				t.Errorf("%q -> %q lacks Re: prefix", s, once)
			}
		}
	}
}
