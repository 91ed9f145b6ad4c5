package resolve

import (
	"regexp"
	"strings"

	"github.com/kakei/kakeibot/internal/model"
)

// matcher evaluates standing rules against raw events. Regex patterns
// are compiled once per matcher; rules with invalid patterns never
// match (creation-time validation should have rejected them).
type matcher struct {
	compiled map[string]*regexp.Regexp
	rules    []model.Rule
}

// newMatcher creates a matcher over rules already ordered for
// precedence: highest specificity first, ties by most recent creation.
func newMatcher(rules []model.Rule) *matcher {
	m := &matcher{
		rules:    rules,
		compiled: make(map[string]*regexp.Regexp),
	}

	for _, rule := range rules {
		if rule.IsRegex && rule.MerchantPattern != "" {
			if re, err := regexp.Compile(rule.MerchantPattern); err == nil {
				m.compiled[rule.ID] = re
			}
		}
	}

	return m
}

// bestMatch returns the winning rule for an event, or nil when no
// active rule matches. The input ordering makes the first match the
// winner.
func (m *matcher) bestMatch(event model.RawEvent) *model.Rule {
	for i := range m.rules {
		rule := &m.rules[i]
		if !rule.Active {
			continue
		}
		if m.matchesRule(event, rule) {
			return rule
		}
	}
	return nil
}

func (m *matcher) matchesRule(event model.RawEvent, rule *model.Rule) bool {
	if !m.matchesMerchant(event, rule) {
		return false
	}
	if rule.CategoryEquals != nil && !strings.EqualFold(event.Category, *rule.CategoryEquals) {
		return false
	}
	return true
}

func (m *matcher) matchesMerchant(event model.RawEvent, rule *model.Rule) bool {
	if rule.MerchantPattern == "" {
		return true // no merchant constraint
	}

	note := strings.ToLower(event.Note)

	if rule.IsRegex {
		if re, ok := m.compiled[rule.ID]; ok {
			return re.MatchString(note)
		}
		return false
	}

	return strings.Contains(note, strings.ToLower(rule.MerchantPattern))
}
