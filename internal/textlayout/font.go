/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package textlayout measures and places shape labels. Measurement sits
// behind a Provider so tests run against the fixed basicfont face while
// hosts may load OpenType fonts.
package textlayout

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
)

// FontSpec describes a requested font.
type FontSpec struct {
	Family string // logical family name
	SizePx float64
	Weight int // 100..900
	Italic bool
}

// DefaultFont matches the label default "10px sans-serif".
var DefaultFont = FontSpec{Family: "sans-serif", SizePx: 10, Weight: 400}

// ParseFont reads the CSS shorthand used by label styles, e.g.
// "10px sans-serif" or "italic bold 12px Noto Sans". Sizes in pt are
// converted at 96dpi.
func ParseFont(s string) (FontSpec, error) {
	spec := FontSpec{Weight: 400}
	fields := strings.Fields(s)
	for i, f := range fields {
		lf := strings.ToLower(f)
		switch {
		case lf == "italic" || lf == "oblique":
			spec.Italic = true
		case lf == "bold":
			spec.Weight = 700
		case lf == "normal":
		case strings.HasSuffix(lf, "px") || strings.HasSuffix(lf, "pt"):
			v, err := strconv.ParseFloat(lf[:len(lf)-2], 64)
			if err != nil || v <= 0 {
				return FontSpec{}, fmt.Errorf("bad font size %q", f)
			}
			if strings.HasSuffix(lf, "pt") {
				v = v * 96 / 72
			}
			spec.SizePx = v
			spec.Family = strings.Join(fields[i+1:], " ")
			if spec.Family == "" {
				spec.Family = DefaultFont.Family
			}
			return spec, nil
		default:
			if w, err := strconv.Atoi(lf); err == nil && w >= 100 && w <= 900 {
				spec.Weight = w
				continue
			}
			return FontSpec{}, fmt.Errorf("unexpected font token %q in %q", f, s)
		}
	}
	return FontSpec{}, fmt.Errorf("font %q has no size", s)
}

// Metrics provides font metrics in pixels for the resolved face.
type Metrics struct {
	Ascent, Descent, LineGap float64
}

// Provider maps FontSpec to a concrete font.Face.
type Provider interface {
	Resolve(FontSpec) (font.Face, Metrics)
}

// BasicProvider uses x/image/basicfont Face7x13 for deterministic tests.
type BasicProvider struct{}

func (BasicProvider) Resolve(FontSpec) (font.Face, Metrics) {
	return basicfont.Face7x13, faceMetrics(basicfont.Face7x13)
}

// Advance returns the pixel width of s drawn with face.
func Advance(face font.Face, s string) float64 {
	d := &font.Drawer{Face: face}
	return float64(d.MeasureString(s) >> 6) // fixed.Int26_6 to px
}

// Measure returns the single-line width of s.
func Measure(provider Provider, spec FontSpec, s string) float64 {
	if provider == nil {
		provider = BasicProvider{}
	}
	face, _ := provider.Resolve(spec)
	return Advance(face, s)
}
