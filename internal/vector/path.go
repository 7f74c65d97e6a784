/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package vector

// Path commands. Only straight segments are needed: every annotation outline
// is a polyline, a ring or a circle, and circles are handled analytically.

type PathOp uint8

const (
	MoveTo PathOp = iota
	LineTo
	Close
)

type PathCmd struct {
	Op PathOp
	Pt Pt
}

type Path struct{ Cmds []PathCmd }

func (p *Path) MoveTo(x, y float64) { p.Cmds = append(p.Cmds, PathCmd{Op: MoveTo, Pt: Pt{x, y}}) }
func (p *Path) LineTo(x, y float64) { p.Cmds = append(p.Cmds, PathCmd{Op: LineTo, Pt: Pt{x, y}}) }
func (p *Path) Close()              { p.Cmds = append(p.Cmds, PathCmd{Op: Close}) }

// PolyPath builds a path through pts, closed when closed is set.
func PolyPath(pts []Pt, closed bool) Path {
	var p Path
	for i, q := range pts {
		if i == 0 {
			p.MoveTo(q.X, q.Y)
		} else {
			p.LineTo(q.X, q.Y)
		}
	}
	if closed && len(pts) > 2 {
		p.Close()
	}
	return p
}

// Transform returns a copy of the path with m applied to every point.
func (p Path) Transform(m Affine2D) Path {
	out := Path{Cmds: make([]PathCmd, len(p.Cmds))}
	for i, c := range p.Cmds {
		if c.Op != Close {
			c.Pt = m.Apply(c.Pt)
		}
		out.Cmds[i] = c
	}
	return out
}

// Bounds returns an axis-aligned bounding box of the path.
func (p Path) Bounds() Rect {
	var pts []Pt
	for _, c := range p.Cmds {
		if c.Op != Close {
			pts = append(pts, c.Pt)
		}
	}
	return Bounds(pts)
}
