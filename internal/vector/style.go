/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package vector

// Styles and paint definitions.

import (
	"fmt"
	"image/color"
	"math"
	"strconv"
	"strings"
)

// Color is a non-premultiplied RGBA color.
type Color struct{ R, G, B, A uint8 }

var (
	Black       = Color{0, 0, 0, 255}
	White       = Color{255, 255, 255, 255}
	Transparent = Color{0, 0, 0, 0}
)

// RGBA implements color.Color.
func (c Color) RGBA() (r, g, b, a uint32) {
	return color.NRGBA{R: c.R, G: c.G, B: c.B, A: c.A}.RGBA()
}

// Alpha returns the opacity in [0,1].
func (c Color) Alpha() float64 { return float64(c.A) / 255 }

// ParseColor understands the CSS forms used in style options:
// #rgb, #rrggbb, #rrggbbaa, rgb(r,g,b) and rgba(r,g,b,a) with a in [0,1].
func ParseColor(s string) (Color, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch {
	case strings.HasPrefix(s, "#"):
		return parseHex(s[1:])
	case strings.HasPrefix(s, "rgba(") && strings.HasSuffix(s, ")"):
		return parseFunc(s[5:len(s)-1], true)
	case strings.HasPrefix(s, "rgb(") && strings.HasSuffix(s, ")"):
		return parseFunc(s[4:len(s)-1], false)
	case s == "transparent":
		return Transparent, nil
	case s == "black":
		return Black, nil
	case s == "white":
		return White, nil
	}
	return Color{}, fmt.Errorf("unsupported color %q", s)
}

// MustColor is ParseColor for literals known to be valid.
func MustColor(s string) Color {
	c, err := ParseColor(s)
	if err != nil {
		panic(err)
	}
	return c
}

func parseHex(h string) (Color, error) {
	if len(h) == 3 {
		h = string([]byte{h[0], h[0], h[1], h[1], h[2], h[2]})
	}
	if len(h) == 6 {
		h += "ff"
	}
	if len(h) != 8 {
		return Color{}, fmt.Errorf("bad hex color #%s", h)
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return Color{}, fmt.Errorf("bad hex color #%s: %w", h, err)
	}
	return Color{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, nil
}

func parseFunc(body string, withAlpha bool) (Color, error) {
	parts := strings.Split(body, ",")
	want := 3
	if withAlpha {
		want = 4
	}
	if len(parts) != want {
		return Color{}, fmt.Errorf("want %d components in %q", want, body)
	}
	var ch [3]uint8
	for i := 0; i < 3; i++ {
		n, err := strconv.Atoi(strings.TrimSpace(parts[i]))
		if err != nil || n < 0 || n > 255 {
			return Color{}, fmt.Errorf("bad channel %q", parts[i])
		}
		ch[i] = uint8(n)
	}
	c := Color{R: ch[0], G: ch[1], B: ch[2], A: 255}
	if withAlpha {
		a, err := strconv.ParseFloat(strings.TrimSpace(parts[3]), 64)
		if err != nil || a < 0 || a > 1 {
			return Color{}, fmt.Errorf("bad alpha %q", parts[3])
		}
		c.A = uint8(math.Round(a * 255))
	}
	return c, nil
}

type FillRule uint8

const (
	NonZero FillRule = iota
	EvenOdd
)

type LineCap uint8

const (
	CapButt LineCap = iota
	CapRound
	CapSquare
)

type Stroke struct {
	Color Color
	Width float64
	Cap   LineCap
}
