/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package shape defines the annotation data model: five shape kinds sharing
// one envelope, their derived control points and their size rules.
//
// Geometry is stored in image space. Kind-specific layout of Coor:
//
//	Rect     [topLeft, bottomRight] (normalized on commit)
//	Polygon  ring vertices, >=3 once committed
//	Dot      [p]
//	Line     polyline vertices, >=2 once committed
//	Circle   [center], plus Radius
package shape

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"annotator/internal/vector"
)

// Kind tags the variant. The numeric values are part of the record format.
type Kind int

const (
	None Kind = iota
	Rect
	Polygon
	Dot
	Line
	Circle
)

var kindNames = [...]string{"none", "rect", "polygon", "dot", "line", "circle"}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// Valid reports whether k names a drawable kind.
func (k Kind) Valid() bool { return k >= Rect && k <= Circle }

// ParseKind accepts a kind name ("rect", "polyline" is an alias of "line").
func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "polyline" {
		return Line, nil
	}
	for i, n := range kindNames {
		if n == s {
			return Kind(i), nil
		}
	}
	return None, fmt.Errorf("unknown shape kind %q", s)
}

// Style holds optional per-shape overrides. Empty values fall back to the
// engine defaults at draw time.
type Style struct {
	StrokeStyle    string  `json:"strokeStyle,omitempty"`
	FillStyle      string  `json:"fillStyle,omitempty"`
	LineWidth      float64 `json:"lineWidth,omitempty"`
	LabelFillStyle string  `json:"labelFillStyle,omitempty"`
	LabelFont      string  `json:"labelFont,omitempty"`
	TextFillStyle  string  `json:"textFillStyle,omitempty"`
	HideLabel      *bool   `json:"hideLabel,omitempty"`
	LabelUp        *bool   `json:"labelUp,omitempty"`
}

// Shape is one annotation. The registry owns every Shape; the state machine
// mutates it in place.
type Shape struct {
	Kind     Kind
	Index    int
	Label    string
	UUID     string
	Active   bool
	Dragging bool
	Creating bool
	Hide     bool
	Style    Style
	Coor     []vector.Pt
	Radius   float64
}

// New starts a shape of kind k at p, the first pointer-down location.
func New(k Kind, p vector.Pt) *Shape {
	s := &Shape{Kind: k}
	switch k {
	case Rect:
		s.Coor = []vector.Pt{p, p}
	case Polygon, Dot, Line, Circle:
		s.Coor = []vector.Pt{p}
	}
	return s
}

// Clone returns a deep copy.
func (s *Shape) Clone() *Shape {
	c := *s
	c.Coor = append([]vector.Pt(nil), s.Coor...)
	if s.Style.HideLabel != nil {
		v := *s.Style.HideLabel
		c.Style.HideLabel = &v
	}
	if s.Style.LabelUp != nil {
		v := *s.Style.LabelUp
		c.Style.LabelUp = &v
	}
	return &c
}

// Center is the anchor of a Dot or Circle.
func (s *Shape) Center() vector.Pt {
	if len(s.Coor) == 0 {
		return vector.Pt{}
	}
	return s.Coor[0]
}

// Last returns the most recent vertex.
func (s *Shape) Last() vector.Pt {
	if len(s.Coor) == 0 {
		return vector.Pt{}
	}
	return s.Coor[len(s.Coor)-1]
}

// ControlPoints derives the drag handles from the current geometry.
// Rect handles run clockwise from the top-left corner:
// 0 top-left, 1 top-mid, 2 top-right, 3 right-mid, 4 bottom-right,
// 5 bottom-mid, 6 bottom-left, 7 left-mid.
func (s *Shape) ControlPoints() []vector.Pt {
	switch s.Kind {
	case Rect:
		if len(s.Coor) != 2 {
			return nil
		}
		x0, y0, x1, y1 := s.Coor[0].X, s.Coor[0].Y, s.Coor[1].X, s.Coor[1].Y
		mx, my := (x0+x1)/2, (y0+y1)/2
		return []vector.Pt{
			{X: x0, Y: y0}, {X: mx, Y: y0}, {X: x1, Y: y0}, {X: x1, Y: my},
			{X: x1, Y: y1}, {X: mx, Y: y1}, {X: x0, Y: y1}, {X: x0, Y: my},
		}
	case Polygon, Line:
		return append([]vector.Pt(nil), s.Coor...)
	case Circle:
		if len(s.Coor) == 0 {
			return nil
		}
		c := s.Coor[0]
		return []vector.Pt{{X: c.X + s.Radius, Y: c.Y}}
	}
	return nil
}

// LabelAnchor is the image-space point a label is attached to.
func (s *Shape) LabelAnchor() vector.Pt {
	if s.Kind == Circle {
		c := s.Center()
		return vector.Pt{X: c.X, Y: c.Y - s.Radius}
	}
	if len(s.Coor) == 0 {
		return vector.Pt{}
	}
	return s.Coor[0]
}

// Region returns the closed area of a Rect or Polygon for nesting queries.
func (s *Shape) Region() (vector.Region, bool) {
	switch s.Kind {
	case Rect:
		if len(s.Coor) == 2 {
			return vector.BoxRegion(s.Coor[0], s.Coor[1]), true
		}
	case Polygon:
		return vector.PolyRegion(s.Coor), true
	}
	return vector.Region{}, false
}

// IsNested reports whether one region shape lies entirely inside the other.
// Only Rect and Polygon take part; any other kind yields false.
func IsNested(a, b *Shape) bool {
	ra, ok := a.Region()
	if !ok {
		return false
	}
	rb, ok := b.Region()
	if !ok {
		return false
	}
	return vector.IsNested(ra, rb)
}

// Normalize orders Rect corners as min/max. Other kinds are untouched.
func (s *Shape) Normalize() {
	if s.Kind != Rect || len(s.Coor) != 2 {
		return
	}
	r := vector.RectFromCorners(s.Coor[0], s.Coor[1])
	s.Coor[0], s.Coor[1] = r.Min(), r.Max()
}

// Limits are the minimum committed sizes.
type Limits struct {
	MinWidth  float64
	MinHeight float64
	MinRadius float64
}

// DefaultLimits mirrors the engine defaults.
var DefaultLimits = Limits{MinWidth: 10, MinHeight: 10, MinRadius: 3}

var (
	ErrTooSmall  = errors.New("shape below minimum size")
	ErrMalformed = errors.New("malformed shape")
)

// CheckSize validates the commit-time size rules of Rect and Circle.
func (s *Shape) CheckSize(l Limits) error {
	switch s.Kind {
	case Rect:
		if len(s.Coor) != 2 {
			return ErrMalformed
		}
		w := math.Abs(s.Coor[1].X - s.Coor[0].X)
		h := math.Abs(s.Coor[1].Y - s.Coor[0].Y)
		if w < l.MinWidth || h < l.MinHeight {
			return fmt.Errorf("%w: width cannot be less than %g, height cannot be less than %g", ErrTooSmall, l.MinWidth, l.MinHeight)
		}
	case Circle:
		if s.Radius < l.MinRadius {
			return fmt.Errorf("%w: radius cannot be less than %g", ErrTooSmall, l.MinRadius)
		}
	}
	return nil
}

// CheckGeometry validates the coordinate layout of a committed shape.
func (s *Shape) CheckGeometry() error {
	n := len(s.Coor)
	switch s.Kind {
	case Rect:
		if n != 2 {
			return fmt.Errorf("%w: rect needs 2 corners, has %d", ErrMalformed, n)
		}
	case Polygon:
		if n < 3 {
			return fmt.Errorf("%w: polygon needs at least 3 vertices, has %d", ErrMalformed, n)
		}
	case Line:
		if n < 2 {
			return fmt.Errorf("%w: line needs at least 2 vertices, has %d", ErrMalformed, n)
		}
	case Dot:
		if n != 1 {
			return fmt.Errorf("%w: dot needs 1 point, has %d", ErrMalformed, n)
		}
	case Circle:
		if n != 1 {
			return fmt.Errorf("%w: circle needs a center", ErrMalformed)
		}
		if s.Radius < 0 || math.IsNaN(s.Radius) {
			return fmt.Errorf("%w: negative radius", ErrMalformed)
		}
	default:
		return fmt.Errorf("%w: unknown kind %d", ErrMalformed, int(s.Kind))
	}
	for _, p := range s.Coor {
		if math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsInf(p.X, 0) || math.IsInf(p.Y, 0) {
			return fmt.Errorf("%w: non-finite coordinate", ErrMalformed)
		}
	}
	return nil
}

// MinVertices is the vertex count a multi-point shape needs to commit.
func MinVertices(k Kind) int {
	switch k {
	case Polygon:
		return 3
	case Line:
		return 2
	}
	return 1
}

// MultiPoint reports whether k is authored click by click.
func MultiPoint(k Kind) bool { return k == Polygon || k == Line }
