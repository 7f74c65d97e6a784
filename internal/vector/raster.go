/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package vector

import (
	"image"
	"image/color"
	"math"

	"github.com/srwiley/rasterx"
	"golang.org/x/image/math/fixed"
)

// HitSurface answers "is this pixel covered" for filled rings and stroked
// polylines by rasterizing them into an off-screen alpha buffer. There is a
// single scratch buffer per surface; it is cleared before every query and
// must not be shared between goroutines.
type HitSurface struct {
	img     *image.RGBA
	scanner *rasterx.ScannerGV
	dasher  *rasterx.Dasher
	rule    FillRule
}

// NewHitSurface allocates a surface covering w×h screen pixels.
func NewHitSurface(w, h int) *HitSurface {
	s := &HitSurface{rule: EvenOdd}
	s.Resize(w, h)
	return s
}

// Resize reallocates the scratch buffer when the canvas size changes.
func (s *HitSurface) Resize(w, h int) {
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	if s.img != nil && s.img.Bounds().Dx() == w && s.img.Bounds().Dy() == h {
		return
	}
	s.img = image.NewRGBA(image.Rect(0, 0, w, h))
	s.scanner = rasterx.NewScannerGV(w, h, s.img, s.img.Bounds())
	s.dasher = rasterx.NewDasher(w, h, s.scanner)
}

// SetFillRule selects the winding rule used by FillHit. It must match the
// rule the renderer fills polygons with.
func (s *HitSurface) SetFillRule(r FillRule) { s.rule = r }

// Size returns the buffer dimensions.
func (s *HitSurface) Size() (int, int) {
	b := s.img.Bounds()
	return b.Dx(), b.Dy()
}

// FillHit fills the closed ring pts and samples the pixel under p.
func (s *HitSurface) FillHit(pts []Pt, p Pt) bool {
	if len(pts) < 3 {
		return false
	}
	s.clear()
	f := &s.dasher.Filler
	f.SetWinding(s.rule == NonZero)
	f.SetColor(color.Black)
	f.Start(toFixed(pts[0]))
	for _, q := range pts[1:] {
		f.Line(toFixed(q))
	}
	f.Stop(true)
	f.Draw()
	f.Clear()
	return s.covered(p)
}

// StrokeHit strokes the open polyline pts with the given width (round caps
// and joins) and samples the pixel under p.
func (s *HitSurface) StrokeHit(pts []Pt, width float64, p Pt) bool {
	if len(pts) == 0 {
		return false
	}
	s.clear()
	d := s.dasher
	d.SetStroke(fixed.Int26_6(width*64), 0, rasterx.RoundCap, rasterx.RoundCap, rasterx.RoundGap, rasterx.ArcClip, nil, 0)
	d.SetColor(color.Black)
	d.Start(toFixed(pts[0]))
	if len(pts) == 1 {
		// zero-length segment still gets its round caps
		d.Line(toFixed(pts[0]))
	}
	for _, q := range pts[1:] {
		d.Line(toFixed(q))
	}
	d.Stop(false)
	d.Draw()
	d.Clear()
	return s.covered(p)
}

func (s *HitSurface) clear() { clear(s.img.Pix) }

func (s *HitSurface) covered(p Pt) bool {
	x, y := int(math.Floor(p.X)), int(math.Floor(p.Y))
	if !(image.Point{X: x, Y: y}).In(s.img.Bounds()) {
		return false
	}
	return s.img.RGBAAt(x, y).A > 0
}

func toFixed(p Pt) fixed.Point26_6 { return rasterx.ToFixedP(p.X, p.Y) }
