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
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/belphia/autoreply/internal/models"
)

// Placeholders recognised in reply templates. Nothing from the inbound
// message other than the derived sender name is ever substituted.
const (
	placeholderName      = "{name}"
	placeholderSignature = "{signature}"
)

// Rule maps a keyword set onto a reply template.
type Rule struct {
	Category models.Category
	Keywords []string
	Template string
}

// ComposerConfig holds the reply rule set. Rules are evaluated in the order
// given and the first rule with a matching keyword wins.
type ComposerConfig struct {
	Rules           []Rule
	DefaultTemplate string
	DefaultSubject  string
	Signature       string
}

// DefaultComposerConfig returns the built-in rule set.
func DefaultComposerConfig() ComposerConfig {
	return ComposerConfig{
		Rules: []Rule{
			{
				Category: models.CategoryPricing,
				Keywords: []string{"price", "pricing", "cost", "quote", "how much", "fees", "invoice"},
				Template: pricingTemplate,
			},
			{
				Category: models.CategoryVertical,
				Keywords: []string{"dealership", "used car", "car lot", "whatsapp", "telegram", "signal"},
				Template: verticalTemplate,
			},
			{
				Category: models.CategoryBudgetCap,
				Keywords: []string{"don't want to spend more", "spend more than", "cap at $", "cap at £", "cap at €", "budget cap"},
				Template: budgetCapTemplate,
			},
		},
		DefaultTemplate: defaultTemplate,
		DefaultSubject:  "Re: Follow-up",
		Signature:       "Minnie",
	}
}

const pricingTemplate = `Hey {name},

Thanks for asking about pricing. Setup is a fixed one-time fee scoped to the channels and automations you need, and ongoing model usage is metered against a monthly ceiling you choose.

To send you a concrete quote, reply with:
• the channels you want covered (email, WhatsApp, Telegram, …)
• rough message volume per week
• your target monthly budget

– {signature}`

const verticalTemplate = `Hey {name},

Thanks for reaching out. I already run lead intake for dealerships and messaging-first teams: every inquiry from your channels gets an instant acknowledgement, qualified, and handed to the right person with context.

Reply with the channels your leads arrive on and how many you see per week, and I'll map out the setup for your lot.

– {signature}`

const budgetCapTemplate = `Hey {name},

Absolutely. I meter usage in real time and enforce whatever ceiling you set. As spend approaches your cap I flag it and shift non-critical work to cheaper models, while mission-critical tasks keep the premium model.

You'll also get a weekly usage snapshot. Ready for the kickoff checklist?

– {signature}`

const defaultTemplate = `Hey {name},

Thanks for your email, got it. I've logged your note and I'm preparing a direct answer.

To move faster, feel free to include:
• target budget
• timeline
• your top priority (cost, speed, or quality)

You'll get a specific follow-up from me shortly.

– {signature}`

type compiledRule struct {
	category models.Category
	keywords []string
	template string
}

// Composer selects and renders canned replies.
type Composer struct {
	rules           []compiledRule
	defaultTemplate string
	defaultSubject  string
	signature       string
	stripper        *bluemonday.Policy
}

// NewComposer builds a composer. A nil rule list and empty template or
// subject fields fall back to the built-in defaults.
func NewComposer(cfg ComposerConfig) *Composer {
	defaults := DefaultComposerConfig()
	if cfg.Rules == nil {
		cfg.Rules = defaults.Rules
	}

	c := &Composer{
		defaultTemplate: firstNonBlank(cfg.DefaultTemplate, defaults.DefaultTemplate),
		signature:       firstNonBlank(cfg.Signature, defaults.Signature),
		stripper:        bluemonday.StrictPolicy(),
	}
	c.defaultSubject = NormalizeSubject(cfg.DefaultSubject, defaults.DefaultSubject)

	for _, r := range cfg.Rules {
		keywords := make([]string, 0, len(r.Keywords))
		for _, k := range r.Keywords {
			k = strings.ToLower(strings.TrimSpace(k))
			if k != "" {
				keywords = append(keywords, k)
			}
		}
		if len(keywords) == 0 || strings.TrimSpace(r.Template) == "" {
			continue
		}
		c.rules = append(c.rules, compiledRule{
			category: r.Category,
			keywords: keywords,
			template: r.Template,
		})
	}

	return c
}

// InboundText returns the text used for keyword matching, lowercased. The
// plain-text body wins, then the HTML body reduced to text, then the preview.
func (c *Composer) InboundText(msg models.InboundMessage) string {
	switch {
	case strings.TrimSpace(msg.Text) != "":
		return strings.ToLower(msg.Text)
	case strings.TrimSpace(msg.HTML) != "":
		return strings.ToLower(c.htmlToText(msg.HTML))
	case strings.TrimSpace(msg.Preview) != "":
		return strings.ToLower(msg.Preview)
	default:
		return ""
	}
}

// htmlToText drops all markup. The strict policy re-escapes entities, so they
// are decoded afterwards for matching phrases like "what's the cost".
func (c *Composer) htmlToText(body string) string {
	return html.UnescapeString(c.stripper.Sanitize(body))
}

// Select returns the category and template for lowercased inbound text.
func (c *Composer) Select(text string) (models.Category, string) {
	for _, r := range c.rules {
		for _, k := range r.keywords {
			if strings.Contains(text, k) {
				return r.category, r.template
			}
		}
	}
	return models.CategoryDefault, c.defaultTemplate
}

// Body renders the reply body for senderName and the inbound text.
func (c *Composer) Body(senderName, text string) (models.Category, string) {
	category, tmpl := c.Select(strings.ToLower(text))
	return category, c.render(tmpl, senderName)
}

func (c *Composer) render(tmpl, senderName string) string {
	if strings.TrimSpace(senderName) == "" {
		senderName = fallbackSenderName
	}
	r := strings.NewReplacer(
		placeholderName, senderName,
		placeholderSignature, c.signature,
	)
	return r.Replace(tmpl)
}

// Compose builds the full reply draft for an inbound message.
func (c *Composer) Compose(senderName string, msg models.InboundMessage) models.ReplyDraft {
	category, body := c.Body(senderName, c.InboundText(msg))

	draft := models.ReplyDraft{
		Subject:  NormalizeSubject(msg.Subject, c.defaultSubject),
		Body:     body,
		Category: category,
	}
	if msg.MessageID != "" {
		draft.InReplyTo = msg.MessageID
		draft.References = msg.MessageID
	}
	return draft
}

// DefaultSubject returns the subject used when the inbound one is absent.
func (c *Composer) DefaultSubject() string {
	return c.defaultSubject
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
