/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package vector

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// edgeEps is the distance under which a point counts as lying on an edge.
const edgeEps = 1e-9

// PointInRect reports whether p lies inside the rectangle spanned by the two
// corners a and b, edges included. The corners may be given in any order.
func PointInRect(p, a, b Pt) bool {
	return RectFromCorners(a, b).Contains(p)
}

// PointInCircle reports whether p is within r of c.
func PointInCircle(p, c Pt, r float64) bool {
	return p.Dist(c) <= r
}

// DistToSegment returns the shortest distance from p to the segment ab.
func DistToSegment(p, a, b Pt) float64 {
	ab := r2.Sub(b.vec(), a.vec())
	ap := r2.Sub(p.vec(), a.vec())
	l2 := r2.Dot(ab, ab)
	if l2 == 0 {
		return r2.Norm(ap)
	}
	t := math.Max(0, math.Min(1, r2.Dot(ap, ab)/l2))
	proj := r2.Add(a.vec(), r2.Scale(t, ab))
	return r2.Norm(r2.Sub(p.vec(), proj))
}

// PointInPolygon casts a horizontal ray from p and counts edge crossings
// (even-odd rule), so concave and self-intersecting rings behave like an
// even-odd fill. Points on an edge count as inside. Fewer than three
// vertices never contain anything.
func PointInPolygon(p Pt, pts []Pt) bool {
	n := len(pts)
	if n < 3 {
		return false
	}
	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		a, b := pts[i], pts[j]
		if DistToSegment(p, a, b) <= edgeEps {
			return true
		}
		if (a.Y > p.Y) != (b.Y > p.Y) {
			x := (b.X-a.X)*(p.Y-a.Y)/(b.Y-a.Y) + a.X
			if p.X < x {
				inside = !inside
			}
		}
	}
	return inside
}

// PointNearPolyline reports whether p lies within width/2 of any segment of
// the open polyline. A single vertex behaves like a dot of that diameter.
func PointNearPolyline(p Pt, pts []Pt, width float64) bool {
	half := width / 2
	switch len(pts) {
	case 0:
		return false
	case 1:
		return p.Dist(pts[0]) <= half
	}
	for i := 1; i < len(pts); i++ {
		if DistToSegment(p, pts[i-1], pts[i]) <= half {
			return true
		}
	}
	return false
}

// Region is a closed area used for containment queries: either an
// axis-aligned box given by two corners or a polygon ring.
type Region struct {
	Pts []Pt
	Box bool
}

func BoxRegion(a, b Pt) Region   { return Region{Pts: []Pt{a, b}, Box: true} }
func PolyRegion(pts []Pt) Region { return Region{Pts: pts} }

// Corners returns the boundary vertices: four corners for a box, the ring
// otherwise.
func (r Region) Corners() []Pt {
	if !r.Box {
		return r.Pts
	}
	if len(r.Pts) != 2 {
		return nil
	}
	b := RectFromCorners(r.Pts[0], r.Pts[1])
	return []Pt{b.Min(), {b.X + b.W, b.Y}, b.Max(), {b.X, b.Y + b.H}}
}

// Contains reports whether p lies inside the region, boundary included.
func (r Region) Contains(p Pt) bool {
	if r.Box {
		return len(r.Pts) == 2 && PointInRect(p, r.Pts[0], r.Pts[1])
	}
	return PointInPolygon(p, r.Pts)
}

// IsNested reports whether every corner of a lies inside b, or every corner
// of b lies inside a.
func IsNested(a, b Region) bool {
	return within(a, b) || within(b, a)
}

func within(inner, outer Region) bool {
	cs := inner.Corners()
	if len(cs) == 0 {
		return false
	}
	for _, c := range cs {
		if !outer.Contains(c) {
			return false
		}
	}
	return true
}
