/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package viewport maps between screen space (pointer coordinates on the
// canvas) and image space (where shapes are stored) and owns pan and zoom.
//
// The displayed image size is derived from the natural size and a discrete
// zoom step: size = natural * (1±ratio)^|step|. Fit-to-view breaks that rule
// once by setting the exact fitted size; the next zoom step snaps back onto
// the step grid.
package viewport

import (
	"math"

	"annotator/internal/vector"
)

// Options bound and shape the zoom behaviour.
type Options struct {
	Ratio         float64 // growth per zoom step
	MinImageSide  float64 // zoom-out stops when the shorter side would drop below this
	MaxZoomFactor float64 // zoom-in stops past this multiple of the longer natural side
}

func DefaultOptions() Options {
	return Options{Ratio: 0.1, MinImageSide: 20, MaxZoomFactor: 100}
}

type Viewport struct {
	opts     Options
	canvas   vector.Size
	natural  vector.Size
	image    vector.Size
	origin   vector.Pt
	step     int
	fitScale float64
}

// New returns a viewport for a w×h canvas with no image loaded.
func New(w, h float64, opts Options) *Viewport {
	d := DefaultOptions()
	if opts.Ratio <= 0 || opts.Ratio >= 1 {
		opts.Ratio = d.Ratio
	}
	if opts.MinImageSide <= 0 {
		opts.MinImageSide = d.MinImageSide
	}
	if opts.MaxZoomFactor <= 0 {
		opts.MaxZoomFactor = d.MaxZoomFactor
	}
	return &Viewport{opts: opts, canvas: vector.Size{W: w, H: h}, fitScale: 1}
}

func (v *Viewport) Options() Options       { return v.opts }
func (v *Viewport) Canvas() vector.Size    { return v.canvas }
func (v *Viewport) Natural() vector.Size   { return v.natural }
func (v *Viewport) Displayed() vector.Size { return v.image }
func (v *Viewport) Origin() vector.Pt      { return v.origin }
func (v *Viewport) Step() int              { return v.step }
func (v *Viewport) FitScale() float64      { return v.fitScale }
func (v *Viewport) HasImage() bool         { return v.natural.W > 0 && v.natural.H > 0 }

// Scale is displayed width over natural width, 1 without an image.
func (v *Viewport) Scale() float64 {
	if !v.HasImage() || v.image.W == 0 {
		return 1
	}
	return v.image.W / v.natural.W
}

// Transform maps image space to screen space.
func (v *Viewport) Transform() vector.Affine2D {
	s := v.Scale()
	return vector.Translate(v.origin.X, v.origin.Y).Mul(vector.Scale(s, s))
}

func (v *Viewport) ToScreen(p vector.Pt) vector.Pt { return p.Mul(v.Scale()).Add(v.origin) }
func (v *Viewport) ToImage(p vector.Pt) vector.Pt  { return p.Sub(v.origin).Div(v.Scale()) }

// ToImagePixel is ToImage snapped to whole image pixels; shapes store these.
func (v *Viewport) ToImagePixel(p vector.Pt) vector.Pt { return v.ToImage(p).Round() }

// InImage reports whether a screen point lies on the displayed image.
func (v *Viewport) InImage(p vector.Pt) bool {
	if !v.HasImage() {
		return false
	}
	s := v.Scale()
	return p.X >= v.origin.X && p.Y >= v.origin.Y &&
		p.X <= v.origin.X+v.natural.W*s && p.Y <= v.origin.Y+v.natural.H*s
}

// SetImage records the natural size of a newly loaded image and fits it.
func (v *Viewport) SetImage(w, h float64) {
	v.natural = vector.Size{W: w, H: h}
	v.image = v.natural
	v.step = 0
	v.origin = vector.Pt{}
	v.Fit()
}

// Resize changes the canvas size and refits a loaded image.
func (v *Viewport) Resize(w, h float64) {
	v.canvas = vector.Size{W: w, H: h}
	v.Fit()
}

// Pan moves the image origin to o.
func (v *Viewport) Pan(o vector.Pt) { v.origin = o }

// ZoomBy applies one zoom step. With an anchor the image point under the
// anchor stays put; without one the canvas center does. Requests past the
// zoom bounds are ignored and report false.
func (v *Viewport) ZoomBy(in bool, anchor *vector.Pt) bool {
	if !v.HasImage() {
		return false
	}
	next := v.step - 1
	if in {
		next = v.step + 1
	}
	size := v.sizeAt(next)
	if in && size.W > v.opts.MaxZoomFactor*math.Max(v.natural.W, v.natural.H) {
		return false
	}
	if !in && math.Min(size.W, size.H) < v.opts.MinImageSide {
		return false
	}
	v.apply(next, size, anchor)
	return true
}

// Zoom applies round(20*factor) zoom-in steps and returns how many took
// effect.
func (v *Viewport) Zoom(factor float64, anchor *vector.Pt) int {
	n := 0
	for i := 0; i < int(math.Round(20*factor)); i++ {
		if !v.ZoomBy(true, anchor) {
			break
		}
		n++
	}
	return n
}

// Fit scales the image to fill the canvas on its constraining axis, centers
// it and remembers the resulting scale.
func (v *Viewport) Fit() {
	if !v.HasImage() || v.canvas.W <= 0 || v.canvas.H <= 0 {
		return
	}
	v.calcStep()
	if v.image.H/v.image.W >= v.canvas.H/v.canvas.W {
		v.image = vector.Size{W: v.natural.W * v.canvas.H / v.natural.H, H: v.canvas.H}
	} else {
		v.image = vector.Size{W: v.canvas.W, H: v.natural.H * v.canvas.W / v.natural.W}
	}
	v.origin = vector.Pt{X: (v.canvas.W - v.image.W) / 2, Y: (v.canvas.H - v.image.H) / 2}
	v.fitScale = v.Scale()
}

// calcStep moves the step counter so the stepped size brackets the canvas:
// up while the image is smaller on both axes, then down while it is larger
// on either.
func (v *Viewport) calcStep() {
	smaller := func() bool { return v.image.W < v.canvas.W && v.image.H < v.canvas.H }
	larger := func() bool { return v.image.W > v.canvas.W || v.image.H > v.canvas.H }
	for smaller() {
		if !v.ZoomBy(true, nil) {
			break
		}
	}
	for larger() {
		if !v.ZoomBy(false, nil) {
			break
		}
	}
}

func (v *Viewport) sizeAt(step int) vector.Size {
	f := 1 + v.opts.Ratio
	if step < 0 {
		f = 1 - v.opts.Ratio
	}
	k := math.Pow(f, math.Abs(float64(step)))
	return vector.Size{W: math.Round(v.natural.W * k), H: math.Round(v.natural.H * k)}
}

func (v *Viewport) apply(step int, size vector.Size, anchor *vector.Pt) {
	before := v.Scale()
	oldW := v.image.W
	v.step = step
	v.image = size
	if anchor != nil {
		at := anchor.Sub(v.origin).Div(before)
		v.origin = anchor.Sub(at.Mul(v.Scale()))
		return
	}
	r := 1.0
	if oldW > 0 {
		r = size.W / oldW
	}
	cx, cy := v.canvas.W/2, v.canvas.H/2
	v.origin = vector.Pt{X: cx - (cx-v.origin.X)*r, Y: cy - (cy-v.origin.Y)*r}
}
