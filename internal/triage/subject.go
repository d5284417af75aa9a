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

import "strings"

const replyPrefix = "Re:"

// NormalizeSubject returns a reply subject carrying exactly one "Re:" prefix.
// A subject that already starts with "re:" in any case is kept as is; a blank
// subject is replaced by fallback, which gets the same treatment. The result
// is stable: NormalizeSubject(NormalizeSubject(s, f), f) == NormalizeSubject(s, f).
func NormalizeSubject(subject, fallback string) string {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		subject = strings.TrimSpace(fallback)
		if subject == "" {
			return replyPrefix
		}
	}

	if hasReplyPrefix(subject) {
		return subject
	}
	return replyPrefix + " " + subject
}

func hasReplyPrefix(s string) bool {
	return len(s) >= len(replyPrefix) && strings.EqualFold(s[:len(replyPrefix)], replyPrefix)
}
