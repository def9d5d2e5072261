// Package filename provides utilities for sanitizing strings into safe filenames.
package filename

import (
	"path"
	"regexp"
	"strings"
)

// invalidCharsRe matches characters not safe for filenames across all major OSes.
var invalidCharsRe = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)

// multiDash collapses runs of dashes/underscores.
var multiDash = regexp.MustCompile(`[-_]{2,}`)

// extRe limits extensions to short alphanumeric suffixes.
var extRe = regexp.MustCompile(`^\.[a-z0-9]{1,8}$`)

// Sanitize converts an arbitrary string into a filename-safe slug.
// Leading/trailing dashes and dots are stripped. The output is truncated
// to maxLen bytes (defaults to 120 when maxLen <= 0).
func Sanitize(name string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = 120
	}

	s := strings.TrimSpace(name)
	if s == "" {
		return ""
	}

	s = invalidCharsRe.ReplaceAllString(s, "-")

	s = strings.Map(func(r rune) rune {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			return '-'
		}
		return r
	}, s)

	// Collapse only repeated separators of mixed kind; a lone underscore survives.
	s = multiDash.ReplaceAllStringFunc(s, func(run string) string {
		if strings.Trim(run, "_") == "" {
			return "_"
		}
		return "-"
	})

	// Strip leading/trailing dashes and dots (avoid hidden files / trailing dots on Windows).
	s = strings.Trim(s, "-.")

	if len(s) > maxLen {
		s = truncateUTF8(s, maxLen)
		s = strings.TrimRight(s, "-.")
	}

	return s
}

// SanitizeKeepExt sanitizes the stem of name and keeps a lowercased extension.
// An empty stem becomes fallback.
func SanitizeKeepExt(name, fallback string, maxLen int) string {
	base := path.Base(strings.ReplaceAll(strings.TrimSpace(name), `\`, "/"))
	stem := base
	ext := strings.ToLower(path.Ext(base))
	if extRe.MatchString(ext) {
		stem = strings.TrimSuffix(base, path.Ext(base))
	} else {
		ext = ""
	}

	limit := maxLen - len(ext)
	if maxLen <= 0 {
		limit = 0
	}
	stem = Sanitize(stem, limit)
	if stem == "" {
		stem = fallback
	}
	return stem + ext
}

// WithSuffix inserts suffix between the stem and the extension of name.
func WithSuffix(name, suffix string) string {
	ext := path.Ext(name)
	return strings.TrimSuffix(name, ext) + "_" + suffix + ext
}

// Stem returns the base name of p without its extension.
func Stem(p string) string {
	base := path.Base(strings.ReplaceAll(p, `\`, "/"))
	return strings.TrimSuffix(base, path.Ext(base))
}

func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && n < len(s) && s[n]&0xC0 == 0x80 {
		n--
	}
	return s[:n]
}
