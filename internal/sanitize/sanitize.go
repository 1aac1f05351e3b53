// Package sanitize cleans free-text user input before it is stored.
//
// Every string a client can set (names, titles, descriptions, bios, skills)
// passes through Text. The API returns JSON to a single-page client, so no
// field is meant to carry markup: tags are dropped, not escaped.
package sanitize

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// StrictPolicy removes all HTML tags and attributes.
var StrictPolicy = bluemonday.StrictPolicy()

// maxPasses bounds how many layers of entity encoding Text will peel.
const maxPasses = 10

// Text strips HTML and surrounding whitespace.
//
// bluemonday escapes what it keeps ("Tom & Jerry" becomes "Tom &amp; Jerry").
// The result is plain text headed for JSON, not HTML, so the entities are
// decoded again. Decoding can turn "&lt;b&gt;" into a tag, so the
// sanitize-then-decode step repeats until the text no longer changes. Input
// still changing after maxPasses is returned in its escaped form.
func Text(input string) string {
	s := input
	for range maxPasses {
		next := html.UnescapeString(StrictPolicy.Sanitize(s))
		if next == s {
			return strings.TrimSpace(s)
		}
		s = next
	}
	return strings.TrimSpace(StrictPolicy.Sanitize(s))
}

// TextSlice sanitizes each element and drops the ones left empty.
// A nil input stays nil; an empty input stays empty.
func TextSlice(inputs []string) []string {
	if inputs == nil {
		return nil
	}
	out := make([]string, 0, len(inputs))
	for _, in := range inputs {
		if s := Text(in); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// TextPtr sanitizes through a pointer, preserving nil (field not sent).
func TextPtr(input *string) *string {
	if input == nil {
		return nil
	}
	s := Text(*input)
	return &s
}
