package markdown

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHTML_Empty(t *testing.T) {
	require.Equal(t, "", HTML(""))
	require.Equal(t, "", HTML("   \n"))
	require.Equal(t, "", Text(""))
}

func TestHTML_Sanitizes(t *testing.T) {
	out := HTML("hello <script>alert(1)</script> **world**")
	require.NotContains(t, strings.ToLower(out), "<script")
	require.Contains(t, out, "<strong>world</strong>")
}

func TestHTML_LinksAreNofollow(t *testing.T) {
	out := HTML("[clip](https://example.com/v)")
	require.Contains(t, out, `href="https://example.com/v"`)
	require.Contains(t, out, "nofollow")

	out = HTML("[bad](javascript:alert(1))")
	require.NotContains(t, out, "javascript:")
}

func TestText(t *testing.T) {
	require.Equal(t, "hello world & friends", Text("hello **world**\n\n& friends"))
}

func TestExcerpt(t *testing.T) {
	require.Equal(t, "short", Excerpt("short", 10))
	require.Equal(t, "abcde…", Excerpt("abcdefghij", 5))
	require.Equal(t, "ämvé…", Excerpt("ämvédit", 4))
	require.Equal(t, "abcdefghij", Excerpt("abcdefghij", 0))
}
