// Package rules evaluates user-defined mute and boost rules against candidate items.
package rules

import (
	"net/url"
	"strings"

	"github.com/JakeFAU/techradar/internal/radar"
)

// Outcome is the combined effect of every matching rule.
type Outcome struct {
	Muted bool
	Delta float64
}

// Target is the item view the rules match against.
type Target struct {
	Title   string
	Snippet string
	URL     string
}

// Engine holds an immutable snapshot of enabled rules.
type Engine struct {
	rules []radar.Rule
}

// New snapshots rules, dropping disabled ones.
func New(rules []radar.Rule) *Engine {
	enabled := make([]radar.Rule, 0, len(rules))
	for _, r := range rules {
		if r.Enabled {
			enabled = append(enabled, r)
		}
	}
	return &Engine{rules: enabled}
}

// Len reports the number of active rules.
func (e *Engine) Len() int {
	return len(e.rules)
}

// Apply evaluates every rule. A matching mute rule mutes the item regardless of boosts; matching
// boost rules add their weights.
func (e *Engine) Apply(item Target, source *radar.Source) Outcome {
	var out Outcome
	if e == nil {
		return out
	}
	for _, r := range e.rules {
		if !matches(r, item, source) {
			continue
		}
		switch r.Action {
		case radar.RuleActionMute:
			out.Muted = true
		case radar.RuleActionBoost:
			out.Delta += r.Weight
		}
	}
	return out
}

func matches(r radar.Rule, item Target, source *radar.Source) bool {
	pattern := strings.ToLower(r.Pattern)
	switch r.Type {
	case radar.RuleTypeKeyword:
		target := strings.ToLower(item.Title + " " + item.Snippet + " " + item.URL)
		return matchAny(pattern, target)
	case radar.RuleTypeDomain:
		u, err := url.Parse(item.URL)
		if err != nil || u.Hostname() == "" {
			return false
		}
		return matchAny(pattern, strings.ToLower(u.Hostname()))
	case radar.RuleTypeSource:
		if source == nil || pattern == "" {
			return false
		}
		return matchAny(pattern, strings.ToLower(source.Name))
	default:
		return false
	}
}

// matchAny splits pattern on "|" and reports whether any trimmed token occurs in target.
func matchAny(pattern, target string) bool {
	for _, token := range strings.Split(pattern, "|") {
		token = strings.TrimSpace(token)
		if token != "" && strings.Contains(target, token) {
			return true
		}
	}
	return false
}
