package extract

import (
	"iter"
	"regexp"
	"strings"
)

var (
	titlePattern = regexp.MustCompile(`(?is)<title\b[^>]*>(.*?)</title\s*>`)

	// RE2 has no backreferences, so each level gets its own alternative to
	// keep an opening tag paired with a closing tag of the same level.
	headingPattern = regexp.MustCompile(
		`(?is)<h1\b[^>]*>(.*?)</h1\s*>|<h2\b[^>]*>(.*?)</h2\s*>|<h3\b[^>]*>(.*?)</h3\s*>`,
	)

	anchorPattern = regexp.MustCompile(
		`(?is)<a\s(?:[^>]*?\s)?href\s*=\s*(?:"([^"]*)"|'([^']*)'|([^\s"'>][^\s>]*))[^>]*>(.*?)</a\s*>`,
	)

	tagPattern = regexp.MustCompile(`<[^>]*>`)
)

// Candidate is an anchor found in markup before its href is resolved.
type Candidate struct {
	RawHref string
	Text    string
}

// Title returns the cleaned text of the first title element.
func Title(markup string) (string, bool) {
	groups := titlePattern.FindStringSubmatch(markup)
	if groups == nil {
		return "", false
	}
	return Clean(groups[1]), true
}

// Headings yields the cleaned text of h1-h3 elements in document order,
// stopping after MaxHeadings values.
func Headings(markup string) iter.Seq[string] {
	return take(func(yield func(string) bool) {
		for groups := range scan(headingPattern, markup) {
			if !yield(Clean(firstNonEmpty(groups[1:]))) {
				return
			}
		}
	}, MaxHeadings)
}

// Candidates yields anchors carrying an href attribute in document order,
// stopping after MaxLinkCandidates raw matches.
func Candidates(markup string) iter.Seq[Candidate] {
	return take(func(yield func(Candidate) bool) {
		for groups := range scan(anchorPattern, markup) {
			candidate := Candidate{
				RawHref: firstNonEmpty(groups[1:4]),
				Text:    Clean(groups[4]),
			}
			if !yield(candidate) {
				return
			}
		}
	}, MaxLinkCandidates)
}

// Clean strips tags, collapses whitespace runs to one space and trims.
func Clean(fragment string) string {
	return strings.Join(strings.Fields(tagPattern.ReplaceAllString(fragment, "")), " ")
}

// scan lazily yields the submatches of every non-overlapping match of re.
func scan(re *regexp.Regexp, s string) iter.Seq[[]string] {
	return func(yield func([]string) bool) {
		offset := 0
		for offset <= len(s) {
			loc := re.FindStringSubmatchIndex(s[offset:])
			if loc == nil {
				return
			}
			groups := make([]string, len(loc)/2)
			for i := range groups {
				if loc[2*i] >= 0 {
					groups[i] = s[offset+loc[2*i] : offset+loc[2*i+1]]
				}
			}
			if !yield(groups) {
				return
			}
			if loc[1] == loc[0] {
				offset++
			}
			offset += loc[1]
		}
	}
}

func take[T any](seq iter.Seq[T], n int) iter.Seq[T] {
	return func(yield func(T) bool) {
		if n <= 0 {
			return
		}
		seen := 0
		for v := range seq {
			if !yield(v) {
				return
			}
			seen++
			if seen == n {
				return
			}
		}
	}
}

func firstNonEmpty(values []string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
