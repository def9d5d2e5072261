package thumbnail

import (
	"crypto/md5"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// gradientLUT maps a hash byte to a channel value in [32..224] along a
// smoothstep curve with a small midtone contrast boost.
var gradientLUT = func() [256]byte {
	var lut [256]byte
	for i := range lut {
		t := float64(i) / 255.0
		s := t * t * (3.0 - 2.0*t)
		s = math.Min(1, math.Max(0, (s-0.5)*1.15+0.5))
		lut[i] = byte(math.Round(32.0 + s*(224.0-32.0)))
	}
	return lut
}()

type rgb [3]byte

func (c rgb) hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c[0], c[1], c[2])
}

func (c rgb) chroma() int {
	hi, lo := c[0], c[0]
	for _, v := range c[1:] {
		hi = max(hi, v)
		lo = min(lo, v)
	}
	return int(hi) - int(lo)
}

func (c rgb) near(o rgb, tolerance int) bool {
	for i := range c {
		d := int(c[i]) - int(o[i])
		if d < 0 {
			d = -d
		}
		if d >= tolerance {
			return false
		}
	}
	return true
}

// Gradient is the deterministic fallback artwork shown for an edit without a thumbnail.
type Gradient struct {
	Start string
	End   string
	Angle int
}

// PlaceholderGradient derives a stable two-color gradient from the edit id.
// Grayish colors and near-identical stops are nudged apart.
func PlaceholderGradient(editID int64) Gradient {
	sum := md5.Sum([]byte(strconv.FormatInt(editID, 10)))

	start := rgb{gradientLUT[sum[0]], gradientLUT[sum[1]], gradientLUT[sum[2]]}
	if start.chroma() < 28 {
		start[0] = gradientLUT[sum[0]^0x55]
		start[2] = gradientLUT[sum[2]^0xAA]
	}

	end := rgb{gradientLUT[sum[3]], gradientLUT[sum[4]], gradientLUT[sum[5]]}
	if end.chroma() < 28 {
		end[0] = gradientLUT[sum[3]^0xAA]
		end[1] = gradientLUT[sum[4]^0x55]
	}

	if start.near(end, 24) {
		end = rgb{gradientLUT[sum[3]^0xFF], gradientLUT[sum[4]^0x99], gradientLUT[sum[5]^0x66]}
	}

	return Gradient{Start: start.hex(), End: end.hex(), Angle: 135}
}

// PlaceholderSVG renders the gradient as a 16:9 SVG with the first letter of title centered on it.
func PlaceholderSVG(editID int64, title string) []byte {
	g := PlaceholderGradient(editID)

	initial := ""
	if r := []rune(strings.TrimSpace(title)); len(r) > 0 {
		initial = strings.ToUpper(string(r[0]))
	}

	// Angle 135 runs top-left to bottom-right.
	var b strings.Builder
	b.WriteString(`<svg xmlns="http://www.w3.org/2000/svg" width="1280" height="720" viewBox="0 0 1280 720">`)
	fmt.Fprintf(&b, `<defs><linearGradient id="g" x1="0" y1="0" x2="1" y2="1"><stop offset="0" stop-color="%s"/><stop offset="1" stop-color="%s"/></linearGradient></defs>`, g.Start, g.End)
	b.WriteString(`<rect width="1280" height="720" fill="url(#g)"/>`)
	if initial != "" {
		fmt.Fprintf(&b, `<text x="640" y="360" dominant-baseline="central" text-anchor="middle" font-family="sans-serif" font-size="320" font-weight="700" fill="#ffffff" fill-opacity="0.85">%s</text>`, escapeXML(initial))
	}
	b.WriteString(`</svg>`)
	return []byte(b.String())
}

var xmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;", "'", "&apos;")

func escapeXML(s string) string {
	return xmlEscaper.Replace(s)
}
