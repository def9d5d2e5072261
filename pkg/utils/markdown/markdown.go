// Package markdown renders user-written markdown (edit descriptions, bios) to sanitized HTML.
package markdown

import (
	"bytes"
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"github.com/russross/blackfriday/v2"
)

var (
	bfRenderer = blackfriday.NewHTMLRenderer(blackfriday.HTMLRendererParameters{
		Flags: blackfriday.Safelink | blackfriday.NofollowLinks | blackfriday.HrefTargetBlank | blackfriday.Smartypants | blackfriday.SmartypantsDashes,
	})
	bfExtensions = blackfriday.NoIntraEmphasis | blackfriday.Autolink | blackfriday.Strikethrough | blackfriday.SpaceHeadings | blackfriday.NoEmptyLineBeforeBlock | blackfriday.HardLineBreak

	ugc    = bluemonday.UGCPolicy()
	strict = bluemonday.StrictPolicy()
)

func render(source string) []byte {
	return blackfriday.Run([]byte(source),
		blackfriday.WithRenderer(bfRenderer),
		blackfriday.WithExtensions(bfExtensions),
	)
}

// HTML renders source to HTML safe to embed in a page.
func HTML(source string) string {
	if strings.TrimSpace(source) == "" {
		return ""
	}
	return string(bytes.TrimSpace(ugc.SanitizeBytes(render(source))))
}

// Text renders source and strips every tag, leaving unescaped plain text.
func Text(source string) string {
	if strings.TrimSpace(source) == "" {
		return ""
	}
	stripped := strict.SanitizeBytes(render(source))
	return strings.Join(strings.Fields(html.UnescapeString(string(stripped))), " ")
}

// Excerpt is Text cut to at most n runes, ending in an ellipsis when shortened.
func Excerpt(source string, n int) string {
	text := Text(source)
	if n <= 0 || utf8.RuneCountInString(text) <= n {
		return text
	}
	runes := []rune(text)
	return strings.TrimSpace(string(runes[:n])) + "…"
}
