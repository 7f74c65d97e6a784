/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package textlayout

import "annotator/internal/vector"

// LabelPadding is the gap between the label box edge and its text.
const LabelPadding = 4

// Truncate shortens s to max runes followed by "...". A max <= 0 keeps s.
func Truncate(s string, max int) string {
	if max <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}

// LabelParams describe one label attached to a shape.
type LabelParams struct {
	Text      string
	MaxLen    int
	Font      FontSpec
	LineWidth float64
	// Up prefers placing the label above the anchor when there is room.
	Up bool
	// Anchor is in image space; Natural is the natural image size.
	Anchor  vector.Pt
	Natural vector.Size
	Scale   float64
	Origin  vector.Pt
}

// Placement is a laid out label in screen space.
type Placement struct {
	Text     string
	Box      vector.Rect
	Baseline vector.Pt
	// Left and Above report which way the label was flipped.
	Left, Above bool
}

// PlaceLabel lays the label box next to its anchor. The box flips to the
// left when it would run past the right image edge and above when it would
// run past the bottom edge; with Up it goes above whenever it fits there.
func PlaceLabel(provider Provider, lp LabelParams) Placement {
	scale := lp.Scale
	if scale <= 0 {
		scale = 1
	}
	text := Truncate(lp.Text, lp.MaxLen)
	textW := Measure(provider, lp.Font, text)
	fontH := lp.Font.SizePx - 4
	if fontH < 0 {
		fontH = 0
	}
	labelW := textW + 2*LabelPadding
	labelH := fontH + 2*LabelPadding
	half := lp.LineWidth / 2

	left := (lp.Natural.W - lp.Anchor.X) < labelW/scale
	above := (lp.Natural.H - lp.Anchor.Y) < labelH/scale
	if lp.Up {
		above = lp.Anchor.Y > labelH/scale
	}

	a := lp.Anchor.Mul(scale).Add(lp.Origin)
	pl := Placement{Text: text, Left: left, Above: above}
	pl.Box = vector.R(a.X+half, a.Y+half, labelW, labelH)
	pl.Baseline = vector.Pt{X: a.X + LabelPadding + half, Y: a.Y + fontH + LabelPadding + half}
	if left {
		pl.Box.X = a.X - textW - LabelPadding - half
		pl.Baseline.X = a.X - textW
	}
	if above {
		pl.Box.Y = a.Y - labelH - half
		pl.Baseline.Y = a.Y - labelH + fontH + LabelPadding
	}
	return pl
}
