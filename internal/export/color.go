package export

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"

	"golang.org/x/image/colornames"
)

// rebeccapurple is CSS Color 4 and missing from the SVG 1.1 names.
var rebeccaPurple = color.NRGBA{102, 51, 153, 255}

func namedColor(name string) (color.NRGBA, bool) {
	if name == "rebeccapurple" {
		return rebeccaPurple, true
	}
	c, ok := colornames.Map[name]
	if !ok {
		return color.NRGBA{}, false
	}
	// Every named color is opaque, so RGBA and NRGBA agree.
	return color.NRGBA{R: c.R, G: c.G, B: c.B, A: c.A}, true
}

// ParseColor parses a CSS-style color: "#rgb", "#rrggbb", "#rrggbbaa",
// "rgb(r, g, b)", "rgba(r, g, b, a)" with a in [0,1], or an SVG/CSS
// color name. ok is false for "", "none" and "transparent", which paint nothing.
func ParseColor(s string) (c color.NRGBA, ok bool, err error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "", "none", "transparent":
		return color.NRGBA{}, false, nil
	}
	if c, found := namedColor(s); found {
		return c, true, nil
	}

	switch {
	case strings.HasPrefix(s, "#"):
		c, err = parseHex(s[1:])
	case strings.HasPrefix(s, "rgba(") && strings.HasSuffix(s, ")"):
		c, err = parseFunc(s[5:len(s)-1], true)
	case strings.HasPrefix(s, "rgb(") && strings.HasSuffix(s, ")"):
		c, err = parseFunc(s[4:len(s)-1], false)
	default:
		err = fmt.Errorf("unrecognized color %q", s)
	}
	if err != nil {
		return color.NRGBA{}, false, err
	}
	return c, c.A > 0, nil
}

func parseHex(h string) (color.NRGBA, error) {
	if len(h) == 3 || len(h) == 4 {
		var b strings.Builder
		for _, r := range h {
			b.WriteRune(r)
			b.WriteRune(r)
		}
		h = b.String()
	}
	if len(h) == 6 {
		h += "ff"
	}
	if len(h) != 8 {
		return color.NRGBA{}, fmt.Errorf("invalid hex color length: #%s", h)
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("invalid hex color #%s: %w", h, err)
	}
	return color.NRGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, nil
}

func parseFunc(args string, withAlpha bool) (color.NRGBA, error) {
	parts := strings.Split(args, ",")
	want := 3
	if withAlpha {
		want = 4
	}
	if len(parts) != want {
		return color.NRGBA{}, fmt.Errorf("expected %d color components, got %d", want, len(parts))
	}

	var rgb [3]uint8
	for i := range rgb {
		n, err := strconv.Atoi(strings.TrimSpace(parts[i]))
		if err != nil || n < 0 || n > 255 {
			return color.NRGBA{}, fmt.Errorf("invalid color component %q", parts[i])
		}
		rgb[i] = uint8(n)
	}

	alpha := uint8(255)
	if withAlpha {
		a, err := strconv.ParseFloat(strings.TrimSpace(parts[3]), 64)
		if err != nil || a < 0 || a > 1 {
			return color.NRGBA{}, fmt.Errorf("invalid alpha %q", parts[3])
		}
		alpha = uint8(a*255 + 0.5)
	}
	return color.NRGBA{R: rgb[0], G: rgb[1], B: rgb[2], A: alpha}, nil
}

// withOpacity scales the alpha of c by opacity in [0,1].
func withOpacity(c color.NRGBA, opacity float64) color.NRGBA {
	c.A = uint8(float64(c.A)*opacity + 0.5)
	return c
}
