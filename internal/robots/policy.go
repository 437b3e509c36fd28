// Package robots evaluates robots.txt policies for the universal user-agent group.
package robots

import (
	"bufio"
	"io"
	"math"
	"strconv"
	"strings"
)

// Policy is the subset of a robots.txt document that applies to User-agent: *.
type Policy struct {
	// DisallowedPrefixes holds every non-empty Disallow value in source order.
	DisallowedPrefixes []string
	// CrawlDelay is the last valid Crawl-delay value, in seconds.
	CrawlDelay *float64
}

// groupState tracks whether parsed directives belong to the universal group.
type groupState int

const (
	groupClosed groupState = iota
	groupUniversal
)

// next returns the state after a User-agent directive with the given value.
func (s groupState) next(userAgent string) groupState {
	if userAgent == "*" {
		return groupUniversal
	}
	return groupClosed
}

// Parse reads a robots.txt document. Unknown directives, malformed lines and
// directives outside the universal group are ignored. A leading UTF-8 byte
// order mark is skipped. Lines have no length limit; callers bound the input.
func Parse(r io.Reader) Policy {
	var (
		policy Policy
		state  = groupClosed
	)
	reader := bufio.NewReader(r)
	for first := true; ; first = false {
		line, err := reader.ReadString('\n')
		if first {
			line = strings.TrimPrefix(line, byteOrderMark)
		}
		if name, value, ok := splitDirective(line); ok {
			if name == "user-agent" {
				state = state.next(value)
			} else if state == groupUniversal {
				policy.apply(name, value)
			}
		}
		if err != nil {
			return policy
		}
	}
}

const byteOrderMark = "\ufeff"

func (p *Policy) apply(name, value string) {
	switch name {
	case "disallow":
		if value != "" {
			p.DisallowedPrefixes = append(p.DisallowedPrefixes, value)
		}
	case "crawl-delay":
		if delay, ok := parseDelay(value); ok {
			p.CrawlDelay = &delay
		}
	}
}

// ParseString is a convenience wrapper around Parse.
func ParseString(doc string) Policy {
	return Parse(strings.NewReader(doc))
}

// Allowed reports whether path is permitted. A path is denied when any
// disallowed prefix is a literal prefix of it.
func (p Policy) Allowed(path string) bool {
	for _, prefix := range p.DisallowedPrefixes {
		if prefix != "" && strings.HasPrefix(path, prefix) {
			return false
		}
	}
	return true
}

func splitDirective(line string) (string, string, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return "", "", false
	}
	name, value, found := strings.Cut(trimmed, ":")
	if !found {
		return "", "", false
	}
	return strings.ToLower(strings.TrimSpace(name)), strings.TrimSpace(value), true
}

func parseDelay(value string) (float64, bool) {
	delay, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsNaN(delay) || math.IsInf(delay, 0) || delay < 0 {
		return 0, false
	}
	return delay, true
}
