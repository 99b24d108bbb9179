// Package filter decides which devices are published.
package filter

import (
	"strings"

	"gortlbridge/shared"
)

// Filter applies device whitelist and blacklist patterns. Patterns use '*'
// and '?' wildcards and are matched case-sensitively against the model, the
// cleaned id, and "model_id".
type Filter struct {
	whitelist []string
	blacklist []string
}

func New(whitelist, blacklist []string) *Filter {
	return &Filter{whitelist: compact(whitelist), blacklist: compact(blacklist)}
}

// Admit reports whether readings from this device should be processed. The
// blacklist wins over the whitelist, and an empty whitelist admits everything.
func (f *Filter) Admit(r shared.SensorReading) bool {
	labels := []string{r.Model, r.DeviceID, r.Label()}
	if anyMatch(f.blacklist, labels) {
		return false
	}
	if len(f.whitelist) == 0 {
		return true
	}
	return anyMatch(f.whitelist, labels)
}

func anyMatch(patterns, labels []string) bool {
	for _, p := range patterns {
		for _, l := range labels {
			if Match(p, l) {
				return true
			}
		}
	}
	return false
}

func compact(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Match reports whether name matches the glob pattern. '*' matches any run of
// characters including '/', '?' matches exactly one.
func Match(pattern, name string) bool {
	p, n := []rune(pattern), []rune(name)
	pi, ni := 0, 0
	star, mark := -1, 0
	for ni < len(n) {
		switch {
		case pi < len(p) && (p[pi] == '?' || p[pi] == n[ni]):
			pi++
			ni++
		case pi < len(p) && p[pi] == '*':
			star, mark = pi, ni
			pi++
		case star >= 0:
			pi = star + 1
			mark++
			ni = mark
		default:
			return false
		}
	}
	for pi < len(p) && p[pi] == '*' {
		pi++
	}
	return pi == len(p)
}
