/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package hittest finds the shape or control point under a screen point.
// All tests run in screen space: shape geometry is mapped through the
// viewport first, so tolerances such as the control-point radius stay
// constant in pixels at any zoom level.
package hittest

import (
	"fmt"
	"strings"

	"annotator/internal/registry"
	"annotator/internal/shape"
	"annotator/internal/vector"
	"annotator/internal/viewport"
)

// Mode selects how polygons and polylines are tested.
type Mode int

const (
	// Analytic uses ray casting and point-to-segment distance.
	Analytic Mode = iota
	// Raster fills or strokes the path into an off-screen buffer and samples it.
	Raster
)

func (m Mode) String() string {
	if m == Raster {
		return "raster"
	}
	return "analytic"
}

func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "analytic":
		return Analytic, nil
	case "raster":
		return Raster, nil
	}
	return Analytic, fmt.Errorf("unknown hit mode %q", s)
}

// Options are the pixel tolerances.
type Options struct {
	Mode         Mode
	CtrlRadius   float64 // radius of control points and dots
	LineHitWidth float64 // stroke width used to hit polylines
}

func DefaultOptions() Options {
	return Options{Mode: Analytic, CtrlRadius: 5, LineHitWidth: 5}
}

type Tester struct {
	opts    Options
	surface *vector.HitSurface
}

func New(opts Options) *Tester {
	d := DefaultOptions()
	if opts.CtrlRadius <= 0 {
		opts.CtrlRadius = d.CtrlRadius
	}
	if opts.LineHitWidth <= 0 {
		opts.LineHitWidth = d.LineHitWidth
	}
	return &Tester{opts: opts}
}

func (t *Tester) Options() Options { return t.opts }

// SetMode switches between analytic and raster tests.
func (t *Tester) SetMode(m Mode) { t.opts.Mode = m }

// HitTest walks the registry from top to bottom and returns the position and
// shape of the first visible shape under p. In focus mode only the active
// shape is eligible. It returns -1, nil on a miss.
func (t *Tester) HitTest(reg *registry.Registry, vp *viewport.Viewport, p vector.Pt, focus bool) (int, *shape.Shape) {
	shapes := reg.Shapes()
	for i := len(shapes) - 1; i >= 0; i-- {
		s := shapes[i]
		if s.Hide || (focus && !s.Active) {
			continue
		}
		if t.Contains(s, vp, p) {
			return i, s
		}
	}
	return -1, nil
}

// Contains reports whether p lies on s.
func (t *Tester) Contains(s *shape.Shape, vp *viewport.Viewport, p vector.Pt) bool {
	if len(s.Coor) == 0 {
		return false
	}
	switch s.Kind {
	case shape.Dot:
		return vector.PointInCircle(p, vp.ToScreen(s.Center()), t.opts.CtrlRadius)
	case shape.Circle:
		return vector.PointInCircle(p, vp.ToScreen(s.Center()), s.Radius*vp.Scale())
	case shape.Rect:
		if len(s.Coor) != 2 {
			return false
		}
		return vector.PointInRect(p, vp.ToScreen(s.Coor[0]), vp.ToScreen(s.Coor[1]))
	case shape.Polygon:
		ring := toScreen(vp, s.Coor)
		if t.opts.Mode == Raster {
			return t.raster(vp).FillHit(ring, p)
		}
		return vector.PointInPolygon(p, ring)
	case shape.Line:
		line := toScreen(vp, s.Coor)
		if t.opts.Mode == Raster {
			return t.raster(vp).StrokeHit(line, t.opts.LineHitWidth, p)
		}
		return vector.PointNearPolyline(p, line, t.opts.LineHitWidth)
	}
	return false
}

// ControlPointAt returns the index of the first control point of s within
// CtrlRadius of p, or -1.
func (t *Tester) ControlPointAt(s *shape.Shape, vp *viewport.Viewport, p vector.Pt) int {
	if s == nil || s.Hide {
		return -1
	}
	for i, c := range s.ControlPoints() {
		if vector.PointInCircle(p, vp.ToScreen(c), t.opts.CtrlRadius) {
			return i
		}
	}
	return -1
}

func (t *Tester) raster(vp *viewport.Viewport) *vector.HitSurface {
	c := vp.Canvas()
	w, h := int(c.W), int(c.H)
	if t.surface == nil {
		t.surface = vector.NewHitSurface(w, h)
	} else {
		t.surface.Resize(w, h)
	}
	return t.surface
}

func toScreen(vp *viewport.Viewport, pts []vector.Pt) []vector.Pt {
	out := make([]vector.Pt, len(pts))
	for i, p := range pts {
		out[i] = vp.ToScreen(p)
	}
	return out
}
