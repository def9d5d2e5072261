package filename

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		maxLen int
		want   string
	}{
		{"empty", "   ", 0, ""},
		{"spaces", "my cool edit", 0, "my-cool-edit"},
		{"invalid chars", `a<b>c:d"e/f\g|h?i*j`, 0, "a-b-c-d-e-f-g-h-i-j"},
		{"collapses dashes", "a - - b", 0, "a-b"},
		{"keeps single underscore", "thumb_clip", 0, "thumb_clip"},
		{"collapses underscores", "a___b", 0, "a_b"},
		{"strips dots", "..hidden.", 0, "hidden"},
		{"truncates", "abcdefghij", 4, "abcd"},
		{"truncates on rune boundary", "ééé", 3, "é"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Sanitize(tt.in, tt.maxLen))
		})
	}
}

func TestSanitizeKeepExt(t *testing.T) {
	assert.Equal(t, "Holiday-Clip.mp4", SanitizeKeepExt("Holiday Clip.MP4", "video", 0))
	assert.Equal(t, "video.webm", SanitizeKeepExt("???.webm", "video", 0))
	assert.Equal(t, "passwd", SanitizeKeepExt("../../etc/passwd", "video", 0))
	assert.Equal(t, "clip.this-is-not-an-ext", SanitizeKeepExt("clip.this-is-not-an-ext", "video", 0))
	assert.Equal(t, "abc.mov", SanitizeKeepExt("abcdefgh.mov", "video", 7))
}

func TestWithSuffixAndStem(t *testing.T) {
	assert.Equal(t, "thumb_clip_1a2b.jpg", WithSuffix("thumb_clip.jpg", "1a2b"))
	assert.Equal(t, "noext_x", WithSuffix("noext", "x"))
	assert.Equal(t, "clip", Stem("edits/videos/2024/01/02/clip.mp4"))
	assert.Equal(t, "clip", Stem(`C:\videos\clip.mov`))
	assert.Equal(t, "clip", Stem("https://cdn.example.com/v/clip.mp4"))
}
