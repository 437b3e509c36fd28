// Package extract pulls a bounded structural summary out of untrusted HTML
// without building a DOM. Malformed markup never produces an error; missing
// elements simply yield empty or absent fields.
package extract

import (
	"iter"
	"net/url"
	"slices"
	"strings"
)

const (
	// MaxHeadings bounds the number of h1-h3 values returned.
	MaxHeadings = 5
	// MaxLinkCandidates bounds how many anchors are examined per document.
	MaxLinkCandidates = 50
	// MaxLinks bounds the number of unique links returned.
	MaxLinks = 10
)

// Link is an outbound reference resolved to an absolute URL.
type Link struct {
	Href string `json:"href"`
	Text string `json:"text"`
}

// Result is the summary of one document.
type Result struct {
	Title    *string
	Headings []string
	Links    []Link
}

// Extract summarizes markup, resolving relative links against baseOrigin.
func Extract(markup, baseOrigin string) Result {
	result := Result{
		Headings: []string{},
		Links:    []Link{},
	}
	if title, ok := Title(markup); ok {
		result.Title = &title
	}
	result.Headings = slices.AppendSeq(result.Headings, Headings(markup))

	base, err := url.Parse(baseOrigin)
	if err != nil {
		base = nil
	}
	result.Links = slices.AppendSeq(result.Links, take(unique(resolved(base, Candidates(markup))), MaxLinks))
	return result
}

// Resolve turns a raw href into an absolute URL string. It reports false for
// references that do not parse or do not resolve to an absolute URL.
func Resolve(base *url.URL, rawHref string) (string, bool) {
	ref, err := url.Parse(strings.TrimSpace(rawHref))
	if err != nil {
		return "", false
	}
	abs := ref
	if base != nil {
		abs = base.ResolveReference(ref)
	}
	if !abs.IsAbs() {
		return "", false
	}
	if (abs.Scheme == "http" || abs.Scheme == "https") && abs.Opaque == "" && abs.Path == "" {
		abs.Path = "/"
	}
	return abs.String(), true
}

func resolved(base *url.URL, candidates iter.Seq[Candidate]) iter.Seq[Link] {
	return func(yield func(Link) bool) {
		for c := range candidates {
			href, ok := Resolve(base, c.RawHref)
			if !ok {
				continue
			}
			if !yield(Link{Href: href, Text: c.Text}) {
				return
			}
		}
	}
}

// unique drops links whose Href was already yielded; the first occurrence wins.
func unique(links iter.Seq[Link]) iter.Seq[Link] {
	return func(yield func(Link) bool) {
		seen := make(map[string]struct{})
		for link := range links {
			if _, dup := seen[link.Href]; dup {
				continue
			}
			seen[link.Href] = struct{}{}
			if !yield(link) {
				return
			}
		}
	}
}
