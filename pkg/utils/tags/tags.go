// Package tags normalises the free-form tags users attach to edits.
package tags

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

const (
	// MaxLength is the longest tag kept, in runes.
	MaxLength = 50
	// MaxPerEdit bounds how many tags one edit carries.
	MaxPerEdit = 20
)

var lower = cases.Lower(language.Und)

// Normalize trims, collapses inner whitespace, NFC-normalises and lowercases
// a tag. Leading '#' characters are dropped. The result may be empty.
func Normalize(tag string) string {
	tag = strings.TrimLeft(strings.TrimSpace(tag), "#")
	tag = strings.Join(strings.FieldsFunc(tag, unicode.IsSpace), " ")
	tag = lower.String(norm.NFC.String(tag))
	if utf8.RuneCountInString(tag) > MaxLength {
		tag = strings.TrimSpace(string([]rune(tag)[:MaxLength]))
	}
	return tag
}

// Parse splits a comma separated list and returns the unique normalised tags
// in first-seen order, capped at MaxPerEdit.
func Parse(raw string) []string {
	return Clean(strings.Split(raw, ","))
}

// Clean normalises and deduplicates tags.
func Clean(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, t := range in {
		n := Normalize(t)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
		if len(out) == MaxPerEdit {
			break
		}
	}
	return out
}
