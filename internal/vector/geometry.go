/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package vector

// Basic 2D geometry and transforms shared by the viewport, the hit tester and
// the renderers. Values are float64 so image-space coordinates survive
// repeated zoom steps without drift.

import (
	"encoding/json"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// Pt is a 2D point. It has the same layout as r2.Vec and converts freely.
// On the wire a point is a two-element array [x, y].
type Pt struct{ X, Y float64 }

func P(x, y float64) Pt { return Pt{X: x, Y: y} }

func (p Pt) vec() r2.Vec      { return r2.Vec(p) }
func (p Pt) Add(q Pt) Pt      { return Pt(r2.Add(p.vec(), q.vec())) }
func (p Pt) Sub(q Pt) Pt      { return Pt(r2.Sub(p.vec(), q.vec())) }
func (p Pt) Mul(f float64) Pt { return Pt(r2.Scale(f, p.vec())) }
func (p Pt) Div(f float64) Pt { return Pt(r2.Scale(1/f, p.vec())) }

// Dist is the Euclidean distance between p and q.
func (p Pt) Dist(q Pt) float64 { return r2.Norm(r2.Sub(p.vec(), q.vec())) }

// Round snaps both coordinates to whole units.
func (p Pt) Round() Pt { return Pt{X: math.Round(p.X), Y: math.Round(p.Y)} }

func (p Pt) String() string { return fmt.Sprintf("(%g,%g)", p.X, p.Y) }

func (p Pt) MarshalJSON() ([]byte, error) { return json.Marshal([2]float64{p.X, p.Y}) }

func (p *Pt) UnmarshalJSON(b []byte) error {
	var a []float64
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	if len(a) != 2 {
		return fmt.Errorf("point: want 2 coordinates, got %d", len(a))
	}
	p.X, p.Y = a[0], a[1]
	return nil
}

// Size is a width/height pair.
type Size struct{ W, H float64 }

// Rect is an axis-aligned rectangle defined by min corner and size.
type Rect struct {
	X, Y float64
	W, H float64
}

func R(x, y, w, h float64) Rect { return Rect{X: x, Y: y, W: w, H: h} }

// RectFromCorners builds a rect from two arbitrary opposite corners.
func RectFromCorners(a, b Pt) Rect {
	x0, x1 := math.Min(a.X, b.X), math.Max(a.X, b.X)
	y0, y1 := math.Min(a.Y, b.Y), math.Max(a.Y, b.Y)
	return Rect{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}
}

func (r Rect) Min() Pt { return Pt{r.X, r.Y} }
func (r Rect) Max() Pt { return Pt{r.X + r.W, r.Y + r.H} }

func (r Rect) Contains(p Pt) bool {
	return p.X >= r.X && p.Y >= r.Y && p.X <= r.X+r.W && p.Y <= r.Y+r.H
}

// Inset returns a rectangle inset by dx,dy on all sides (negative grows).
func (r Rect) Inset(dx, dy float64) Rect {
	return Rect{X: r.X + dx, Y: r.Y + dy, W: r.W - 2*dx, H: r.H - 2*dy}
}

// Union returns the minimal rect containing both.
func (r Rect) Union(o Rect) Rect {
	minX := math.Min(r.X, o.X)
	minY := math.Min(r.Y, o.Y)
	maxX := math.Max(r.X+r.W, o.X+o.W)
	maxY := math.Max(r.Y+r.H, o.Y+o.H)
	return Rect{X: minX, Y: minY, W: maxX - minX, H: maxY - minY}
}

// Bounds returns the bounding rect of a point list; zero for an empty list.
func Bounds(pts []Pt) Rect {
	if len(pts) == 0 {
		return Rect{}
	}
	r := Rect{X: pts[0].X, Y: pts[0].Y}
	for _, p := range pts[1:] {
		r = r.Union(Rect{X: p.X, Y: p.Y})
	}
	return r
}

// Affine2D represents a 2D affine transform as matrix:
// | a c e |
// | b d f |
// | 0 0 1 |
// stored as [a b c d e f].
type Affine2D struct{ A, B, C, D, E, F float64 }

var Identity = Affine2D{A: 1, D: 1}

func (m Affine2D) Mul(n Affine2D) Affine2D {
	return Affine2D{
		A: m.A*n.A + m.C*n.B,
		B: m.B*n.A + m.D*n.B,
		C: m.A*n.C + m.C*n.D,
		D: m.B*n.C + m.D*n.D,
		E: m.A*n.E + m.C*n.F + m.E,
		F: m.B*n.E + m.D*n.F + m.F,
	}
}

func (m Affine2D) Apply(p Pt) Pt {
	return Pt{
		X: m.A*p.X + m.C*p.Y + m.E,
		Y: m.B*p.X + m.D*p.Y + m.F,
	}
}

// Invert returns the inverse transform. A singular matrix yields Identity.
func (m Affine2D) Invert() Affine2D {
	det := m.A*m.D - m.B*m.C
	if det == 0 {
		return Identity
	}
	inv := 1 / det
	return Affine2D{
		A: m.D * inv,
		B: -m.B * inv,
		C: -m.C * inv,
		D: m.A * inv,
		E: (m.C*m.F - m.D*m.E) * inv,
		F: (m.B*m.E - m.A*m.F) * inv,
	}
}

func Translate(tx, ty float64) Affine2D { return Affine2D{A: 1, D: 1, E: tx, F: ty} }
func Scale(sx, sy float64) Affine2D     { return Affine2D{A: sx, D: sy} }

// FloatRound rounds v to n decimal places deterministically.
func FloatRound(v float64, places int) float64 {
	if places < 0 {
		return v
	}
	pow := math.Pow(10, float64(places))
	return math.Round(v*pow) / pow
}
