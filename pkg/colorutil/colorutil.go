// Package colorutil provides colour parsing shared by the CLI and the HTTP
// service.
package colorutil

import (
	"fmt"
	"image/color"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
)

// ParseHex converts "#RRGGBB" or "RRGGBB" to an opaque RGBA colour.
func ParseHex(s string) (color.RGBA, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "#") {
		s = "#" + s
	}
	if len(s) != 7 {
		return color.RGBA{}, fmt.Errorf("invalid hex colour %q: want #RRGGBB", s)
	}
	c, err := colorful.Hex(s)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid hex colour %q: %w", s, err)
	}
	r, g, b := c.RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 255}, nil
}

// ParseOptionalHex is ParseHex for optional fields: nil or blank input yields
// a nil colour.
func ParseOptionalHex(s *string) (*color.RGBA, error) {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil, nil
	}
	c, err := ParseHex(*s)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Hex formats a colour as "#rrggbb".
func Hex(c color.RGBA) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}
