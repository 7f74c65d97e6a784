/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package engine

import (
	"fmt"
	"log/slog"
	"math"

	"annotator/internal/input"
	"annotator/internal/shape"
	"annotator/internal/vector"
)

// Dispatch routes a raw host event to the matching handler.
func (e *Engine) Dispatch(ev input.Event) {
	switch ev.Kind {
	case input.KindMouse, input.KindTouch:
		p, ok := input.Normalize(ev)
		if !ok {
			return
		}
		switch ev.Phase {
		case input.Down:
			e.PointerDown(p)
		case input.Move:
			e.PointerMove(p)
		case input.Up:
			e.PointerUp(p)
		}
	case input.KindDoubleClick:
		e.pointer = vector.Pt{X: ev.X, Y: ev.Y}
		e.DoubleClick()
	case input.KindKey:
		e.Key(ev.Key)
	case input.KindWheel:
		e.Wheel(vector.Pt{X: ev.X, Y: ev.Y}, ev.DeltaY)
	case input.KindContextMenu:
		e.ContextMenu(vector.Pt{X: ev.X, Y: ev.Y})
	default:
		e.log.Debug("ignoring event", slog.String("kind", string(ev.Kind)))
	}
}

// PointerDown starts a gesture.
func (e *Engine) PointerDown(p input.Pointer) {
	if e.lock {
		return
	}
	// a previous gesture may have ended without a pointer-up
	e.resetGesture()
	e.pointer = p.Anchor()
	e.g.panOffset = p.Pos.Sub(e.vp.Origin())
	if p.Pinch() {
		e.g.pinch = true
		e.g.spread = p.Spread
		return
	}
	if !p.Touch && p.Button == input.ButtonSecondary {
		e.g.panning = true
		return
	}
	if !p.Primary() {
		return
	}

	active := e.reg.Active()
	if active != nil && !e.readOnly {
		if i := e.hit.ControlPointAt(active, e.vp, p.Pos); i >= 0 {
			e.g.ctrl = i
			e.g.offsets = []vector.Pt{e.vp.ToImage(p.Pos).Sub(active.ControlPoints()[i])}
			e.g.before = e.snapshotBefore("resize")
			return
		}
	}
	if !e.vp.InImage(p.Pos) {
		return
	}
	at := e.vp.ToImagePixel(p.Pos)
	switch {
	case active != nil && active.Creating:
		if shape.MultiPoint(active.Kind) && !e.readOnly && at != active.Last() {
			active.Coor = append(active.Coor, at)
		}
	case e.tool != shape.None && !e.readOnly:
		e.create(at)
	default:
		e.pick(p.Pos)
	}
	e.Request()
}

func (e *Engine) create(at vector.Pt) {
	before, err := e.encode()
	if err != nil {
		e.log.Error("encode before create", slog.String("err", err.Error()))
	}
	s := shape.New(e.tool, at)
	e.reg.Deactivate()
	s.Active = true
	if e.tool == shape.Dot {
		e.reg.Append(s)
		e.push(before)
		e.bus.Emit(Notification{Name: Add, Shape: s})
		return
	}
	s.Creating = true
	e.createBefore = before
	e.reg.Append(s)
}

// snapshotBefore encodes the registry for the undo entry of a gesture.
func (e *Engine) snapshotBefore(op string) []byte {
	b, err := e.encode()
	if err != nil {
		e.log.Error("encode before "+op, slog.String("err", err.Error()))
		return nil
	}
	return b
}

func (e *Engine) pick(at vector.Pt) {
	i, s := e.hit.HitTest(e.reg, e.vp, at, e.focus)
	if s == nil {
		e.reg.Deactivate()
		e.reg.SortByIndex()
		e.bus.Emit(Notification{Name: Select})
		return
	}
	e.reg.Activate(s)
	e.reg.MoveToTop(i)
	if !e.readOnly {
		s.Dragging = true
		p := e.vp.ToImage(at)
		switch s.Kind {
		case shape.Dot, shape.Circle:
			e.g.offsets = []vector.Pt{p.Sub(s.Center())}
		default:
			e.g.offsets = make([]vector.Pt, len(s.Coor))
			for k, c := range s.Coor {
				e.g.offsets[k] = p.Sub(c)
			}
		}
		e.g.before = e.snapshotBefore("drag")
	}
	e.bus.Emit(Notification{Name: Select, Shape: s})
}

// PointerMove advances the gesture in flight.
func (e *Engine) PointerMove(p input.Pointer) {
	if e.lock {
		return
	}
	e.pointer = p.Anchor()
	active := e.reg.Active()
	switch {
	case p.Primary() && active != nil:
		switch {
		case e.g.ctrl >= 0 && (e.vp.InImage(p.Pos) || active.Kind == shape.Circle):
			e.resize(active, p.Pos)
		case active.Dragging && !e.readOnly:
			e.drag(active, p.Pos)
		case active.Creating && e.vp.InImage(p.Pos):
			e.grow(active, p.Pos)
		}
		e.Request()
	case active != nil && active.Creating && shape.MultiPoint(active.Kind):
		// trailing edge follows the pointer
		e.Request()
	case (!p.Touch && p.Button == input.ButtonSecondary) || (p.Touch && p.Touches == 1 && !e.g.pinch):
		e.g.panning = true
		e.vp.Pan(p.Pos.Sub(e.g.panOffset).Round())
		e.Request()
	case p.Pinch():
		if !e.g.pinch {
			e.g.pinch = true
			e.g.spread = p.Spread
			return
		}
		if p.Spread != e.g.spread {
			c := p.Centroid
			e.vp.ZoomBy(p.Spread > e.g.spread, &c)
			e.g.spread = p.Spread
			e.Request()
		}
	}
}

// resize moves control point e.g.ctrl of s so it stays under the pointer.
func (e *Engine) resize(s *shape.Shape, at vector.Pt) {
	h := e.vp.ToImage(at).Sub(e.g.offsets[0]).Round()
	switch s.Kind {
	case shape.Rect:
		x0, y0, x1, y1 := s.Coor[0].X, s.Coor[0].Y, s.Coor[1].X, s.Coor[1].Y
		switch e.g.ctrl {
		case 0:
			x0, y0 = h.X, h.Y
		case 1:
			y0 = h.Y
		case 2:
			y0, x1 = h.Y, h.X
		case 3:
			x1 = h.X
		case 4:
			x1, y1 = h.X, h.Y
		case 5:
			y1 = h.Y
		case 6:
			x0, y1 = h.X, h.Y
		case 7:
			x0 = h.X
		}
		n := e.vp.Natural()
		x0, x1 = clamp(x0, 0, n.W), clamp(x1, 0, n.W)
		y0, y1 = clamp(y0, 0, n.H), clamp(y1, 0, n.H)
		l := e.opts.Limits
		if x1-x0 < l.MinWidth || y1-y0 < l.MinHeight {
			e.warn(fmt.Sprintf("width cannot be less than %g, height cannot be less than %g", l.MinWidth, l.MinHeight))
			return
		}
		s.Coor[0], s.Coor[1] = vector.Pt{X: x0, Y: y0}, vector.Pt{X: x1, Y: y1}
	case shape.Polygon, shape.Line:
		if e.g.ctrl < len(s.Coor) {
			s.Coor[e.g.ctrl] = h
		}
	case shape.Circle:
		r := h.X - s.Center().X
		if r < e.opts.Limits.MinRadius {
			e.warn(fmt.Sprintf("radius cannot be less than %g", e.opts.Limits.MinRadius))
			return
		}
		s.Radius = r
	default:
		return
	}
	e.g.moved = true
}

// drag translates s rigidly. The move is dropped when any coordinate would
// leave the image.
func (e *Engine) drag(s *shape.Shape, at vector.Pt) {
	p := e.vp.ToImage(at)
	n := e.vp.Natural()
	next := make([]vector.Pt, len(e.g.offsets))
	for i, off := range e.g.offsets {
		c := p.Sub(off).Round()
		if c.X < 0 || c.X > n.W || c.Y < 0 || c.Y > n.H {
			return
		}
		next[i] = c
	}
	if len(next) != len(s.Coor) {
		return
	}
	copy(s.Coor, next)
	e.g.moved = true
}

// grow updates a shape being created by dragging.
func (e *Engine) grow(s *shape.Shape, at vector.Pt) {
	p := e.vp.ToImagePixel(at)
	switch s.Kind {
	case shape.Rect:
		s.Coor[1] = p
	case shape.Circle:
		s.Radius = s.Center().Dist(p)
	}
}

// endGesture records the undo entry of a completed move or resize and
// clears the per-gesture state.
func (e *Engine) endGesture() {
	if e.reg.Active() != nil && e.g.moved && e.g.before != nil {
		e.push(e.g.before)
	}
	e.resetGesture()
}

// resetGesture drops the per-gesture state without recording anything.
func (e *Engine) resetGesture() {
	if a := e.reg.Active(); a != nil {
		a.Dragging = false
	}
	e.g.ctrl = -1
	e.g.offsets = nil
	e.g.panning = false
	e.g.before = nil
	e.g.moved = false
}

// PointerUp ends the gesture. A shape created by dragging is validated and
// either committed or rolled back.
func (e *Engine) PointerUp(p input.Pointer) {
	if e.lock {
		return
	}
	if p.Touch {
		wasPinch := e.g.pinch
		if p.Touches == 0 {
			e.g.pinch = false
		}
		switch {
		case wasPinch || p.Touches > 0:
			e.taps.Reset()
		case e.taps.Tap(p.Time):
			e.endGesture()
			e.DoubleClick()
			return
		}
	}
	active := e.reg.Active()
	e.endGesture()
	if active == nil || !active.Creating {
		return
	}
	switch active.Kind {
	case shape.Rect, shape.Circle:
		if err := active.CheckSize(e.opts.Limits); err != nil {
			e.reg.Pop()
			e.createBefore = nil
			e.warn(err.Error())
		} else {
			active.Normalize()
			active.Creating = false
			e.push(e.createBefore)
			e.createBefore = nil
			e.bus.Emit(Notification{Name: Add, Shape: active})
		}
		e.Request()
	}
}

// DoubleClick commits a polygon or polyline that has enough vertices.
func (e *Engine) DoubleClick() {
	if e.lock {
		return
	}
	a := e.reg.Active()
	if a == nil || !a.Creating || !shape.MultiPoint(a.Kind) {
		return
	}
	if len(a.Coor) < shape.MinVertices(a.Kind) {
		return
	}
	a.Creating = false
	e.push(e.createBefore)
	e.createBefore = nil
	e.bus.Emit(Notification{Name: Add, Shape: a})
	e.Request()
}

// Key handles Escape (undo the last vertex of a shape being authored, or
// drop it) and Backspace/Delete (remove the active shape).
func (e *Engine) Key(key string) {
	if e.lock || e.readOnly {
		return
	}
	a := e.reg.Active()
	if a == nil {
		return
	}
	switch key {
	case "Escape", "Esc":
		if !a.Creating || !shape.MultiPoint(a.Kind) {
			return
		}
		if len(a.Coor) > 1 {
			a.Coor = a.Coor[:len(a.Coor)-1]
			e.Request()
			return
		}
		e.createBefore = nil
		e.DeleteByIndex(a.Index)
	case "Backspace", "Delete":
		if a.Creating {
			e.createBefore = nil
		}
		e.DeleteByIndex(a.Index)
	}
}

// Wheel zooms one step about the pointer when scroll zoom is on. A negative
// deltaY zooms in.
func (e *Engine) Wheel(at vector.Pt, deltaY float64) {
	if e.lock || !e.scrollZoom || deltaY == 0 {
		return
	}
	e.pointer = at
	e.zoom(deltaY < 0, &at)
}

// ContextMenu toggles between the fitted view and a 2x zoom about at.
func (e *Engine) ContextMenu(at vector.Pt) {
	if e.lock || !e.vp.HasImage() {
		return
	}
	e.pointer = at
	if math.Abs(e.vp.Scale()-e.vp.FitScale()) > 0.01 {
		e.vp.Fit()
	} else {
		e.vp.Zoom(2, &at)
	}
	e.Request()
}

func (e *Engine) warn(msg string) {
	e.log.Debug("gesture rejected", slog.String("reason", msg))
	e.bus.Emit(Notification{Name: Warn, Message: msg})
}

func clamp(v, lo, hi float64) float64 { return math.Max(lo, math.Min(v, hi)) }
