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

package config

import (
	"fmt"

	"github.com/belphia/autoreply/internal/models"
	"github.com/belphia/autoreply/internal/triage"
)

// ComposerConfig converts the reply section into the composer's rule set.
// With no rules configured the built-in rules are kept.
func (r ReplyConfig) ComposerConfig() (triage.ComposerConfig, error) {
	out := triage.ComposerConfig{
		DefaultTemplate: r.DefaultTemplate,
		DefaultSubject:  r.DefaultSubject,
		Signature:       r.Signature,
	}
	if len(r.Rules) == 0 {
		return out, nil
	}

	out.Rules = make([]triage.Rule, 0, len(r.Rules))
	for i, rule := range r.Rules {
		category, ok := models.ParseCategory(rule.Category)
		if !ok || category == models.CategoryDefault {
			return triage.ComposerConfig{}, fmt.Errorf("reply.rules[%d]: unknown category %q", i, rule.Category)
		}
		out.Rules = append(out.Rules, triage.Rule{
			Category: category,
			Keywords: rule.Keywords,
			Template: rule.Template,
		})
	}
	return out, nil
}
