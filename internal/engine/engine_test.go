/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package engine

import (
	"bytes"
	"log/slog"
	"math"
	"strings"
	"testing"
	"time"

	"gonum.org/v1/gonum/floats/scalar"

	"annotator/internal/input"
	"annotator/internal/shape"
	"annotator/internal/vector"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// newTestEngine returns an engine whose 800×600 image exactly fills the
// canvas, so screen and image coordinates coincide.
func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e := New(DefaultOptions()).WithClock(func() time.Time { return t0 })
	if err := e.ImageLoaded("img.png", 800, 600); err != nil {
		t.Fatalf("ImageLoaded: %v", err)
	}
	if e.Viewport().Scale() != 1 {
		t.Fatalf("expected scale 1, got %v", e.Viewport().Scale())
	}
	e.Tick()
	return e
}

type recorder struct{ got []Notification }

func (r *recorder) names() []Name {
	out := make([]Name, len(r.got))
	for i, n := range r.got {
		out[i] = n.Name
	}
	return out
}

func (r *recorder) count(n Name) int {
	c := 0
	for _, it := range r.got {
		if it.Name == n {
			c++
		}
	}
	return c
}

func record(e *Engine) *recorder {
	r := &recorder{}
	e.SubscribeAll(func(n Notification) {
		if n.Name != Updated {
			r.got = append(r.got, n)
		}
	})
	return r
}

func down(e *Engine, x, y float64) {
	e.Dispatch(input.Mouse(input.Down, x, y, input.ButtonPrimary, t0))
}

func move(e *Engine, x, y float64) {
	e.Dispatch(input.Mouse(input.Move, x, y, input.ButtonPrimary, t0))
}

func up(e *Engine, x, y float64) {
	e.Dispatch(input.Mouse(input.Up, x, y, input.ButtonPrimary, t0))
}

func load(t *testing.T, e *Engine, shapes ...*shape.Shape) {
	t.Helper()
	e.SetData(shapes)
	e.Tick()
	if len(e.Shapes()) != len(shapes) {
		t.Fatalf("loaded %d shapes, want %d", len(e.Shapes()), len(shapes))
	}
}

func rect(x0, y0, x1, y1 float64) *shape.Shape {
	return &shape.Shape{Kind: shape.Rect, Coor: []vector.Pt{{X: x0, Y: y0}, {X: x1, Y: y1}}}
}

func TestCreateRectNormalizesCorners(t *testing.T) {
	e := newTestEngine(t)
	r := record(e)
	e.SetTool(shape.Rect)
	down(e, 50, 50)
	if e.State() != CreatingDrag {
		t.Fatalf("state = %v", e.State())
	}
	move(e, 10, 80)
	up(e, 10, 80)
	if len(e.Shapes()) != 1 {
		t.Fatalf("expected one shape, got %d", len(e.Shapes()))
	}
	s := e.Shapes()[0]
	if s.Coor[0] != (vector.Pt{X: 10, Y: 50}) || s.Coor[1] != (vector.Pt{X: 50, Y: 80}) {
		t.Fatalf("unexpected corners %v", s.Coor)
	}
	if s.Creating || !s.Active || s.Index != 0 {
		t.Fatalf("unexpected flags %+v", s)
	}
	if r.count(Add) != 1 {
		t.Fatalf("notifications %v", r.names())
	}
	if e.State() != Idle {
		t.Fatalf("state after commit = %v", e.State())
	}
}

func TestCreateRectTooSmallIsRolledBack(t *testing.T) {
	e := newTestEngine(t)
	r := record(e)
	e.SetTool(shape.Rect)
	down(e, 100, 100)
	move(e, 105, 105)
	up(e, 105, 105)
	if len(e.Shapes()) != 0 {
		t.Fatalf("expected empty registry, got %d shapes", len(e.Shapes()))
	}
	if r.count(Warn) != 1 || r.count(Add) != 0 {
		t.Fatalf("notifications %v", r.names())
	}
	if e.Undo() {
		t.Fatalf("a rejected creation must not leave an undo step")
	}
}

func TestCreateCircleAndDot(t *testing.T) {
	e := newTestEngine(t)
	r := record(e)
	e.SetTool(shape.Circle)
	down(e, 200, 200)
	move(e, 230, 240)
	up(e, 230, 240)
	c := e.Active()
	if c == nil || c.Kind != shape.Circle || c.Radius != 50 {
		t.Fatalf("unexpected circle %+v", c)
	}
	e.SetTool(shape.Dot)
	down(e, 400, 400)
	if len(e.Shapes()) != 2 || e.Active().Kind != shape.Dot || e.Active().Creating {
		t.Fatalf("dot should commit on pointer-down")
	}
	up(e, 400, 400)
	if r.count(Add) != 2 {
		t.Fatalf("notifications %v", r.names())
	}
}

func TestCreatePolygonNeedsThreeVertices(t *testing.T) {
	e := newTestEngine(t)
	r := record(e)
	e.SetTool(shape.Polygon)
	for _, p := range []vector.Pt{{X: 10, Y: 10}, {X: 100, Y: 10}} {
		down(e, p.X, p.Y)
		up(e, p.X, p.Y)
	}
	if e.State() != CreatingMultiPoint {
		t.Fatalf("state = %v", e.State())
	}
	e.DoubleClick()
	if !e.Active().Creating || r.count(Add) != 0 {
		t.Fatalf("two vertices must not commit")
	}
	down(e, 100, 100)
	up(e, 100, 100)
	// a repeated click on the last vertex adds nothing
	down(e, 100, 100)
	up(e, 100, 100)
	e.Dispatch(input.DoubleClick(100, 100, t0))
	s := e.Active()
	if s.Creating || len(s.Coor) != 3 || r.count(Add) != 1 {
		t.Fatalf("polygon not committed: %+v, %v", s, r.names())
	}
}

func TestEscapeUnwindsVertices(t *testing.T) {
	e := newTestEngine(t)
	r := record(e)
	e.SetTool(shape.Line)
	down(e, 10, 10)
	up(e, 10, 10)
	down(e, 60, 10)
	up(e, 60, 10)
	e.Dispatch(input.Key("Escape", t0))
	if len(e.Active().Coor) != 1 {
		t.Fatalf("expected one vertex left, got %v", e.Active().Coor)
	}
	e.Key("Escape")
	if len(e.Shapes()) != 0 || r.count(Delete) != 1 {
		t.Fatalf("expected the line to be dropped, got %d shapes %v", len(e.Shapes()), r.names())
	}
}

func TestDeleteRedensifiesIndices(t *testing.T) {
	e := newTestEngine(t)
	load(t, e, rect(0, 0, 20, 20), rect(100, 0, 120, 20), rect(200, 0, 220, 20))
	if !e.DeleteByIndex(1) {
		t.Fatalf("DeleteByIndex(1) reported no shape")
	}
	for i, s := range e.Shapes() {
		if s.Index != i {
			t.Fatalf("shape %d has index %d", i, s.Index)
		}
	}
	if e.DeleteByIndex(7) {
		t.Fatalf("unknown index should report false")
	}
	down(e, 210, 10)
	up(e, 210, 10)
	e.Key("Backspace")
	if len(e.Shapes()) != 1 || e.Shapes()[0].Coor[0].X != 0 {
		t.Fatalf("unexpected shapes after key delete: %d", len(e.Shapes()))
	}
}

func TestDragIsAllOrNothing(t *testing.T) {
	e := newTestEngine(t)
	load(t, e, rect(10, 10, 50, 50))
	down(e, 30, 30)
	if e.State() != DraggingWhole {
		t.Fatalf("state = %v", e.State())
	}
	move(e, 15, 30) // left corner would land on x=-5
	s := e.Shapes()[0]
	if s.Coor[0] != (vector.Pt{X: 10, Y: 10}) || s.Coor[1] != (vector.Pt{X: 50, Y: 50}) {
		t.Fatalf("partial move applied: %v", s.Coor)
	}
	move(e, 25, 35)
	if s.Coor[0] != (vector.Pt{X: 5, Y: 15}) || s.Coor[1] != (vector.Pt{X: 45, Y: 55}) {
		t.Fatalf("unexpected drag result %v", s.Coor)
	}
	up(e, 25, 35)
	if s.Dragging {
		t.Fatalf("dragging flag should clear on pointer-up")
	}
	if !e.Undo() {
		t.Fatalf("drag should be undoable")
	}
	if got := e.Shapes()[0].Coor[0]; got != (vector.Pt{X: 10, Y: 10}) {
		t.Fatalf("undo restored %v", got)
	}
	if !e.Redo() || e.Shapes()[0].Coor[0] != (vector.Pt{X: 5, Y: 15}) {
		t.Fatalf("redo did not reapply the drag")
	}
}

func TestResizeRectHandleRespectsMinimum(t *testing.T) {
	e := newTestEngine(t)
	r := record(e)
	a := rect(10, 10, 50, 50)
	a.Active = true
	load(t, e, a)
	down(e, 48, 48) // grabs the bottom-right handle two pixels inside
	if e.State() != ResizingHandle {
		t.Fatalf("state = %v", e.State())
	}
	move(e, 68, 78)
	s := e.Shapes()[0]
	if s.Coor[1] != (vector.Pt{X: 70, Y: 80}) {
		t.Fatalf("unexpected resize %v", s.Coor)
	}
	move(e, 13, 78)
	if s.Coor[1] != (vector.Pt{X: 70, Y: 80}) || r.count(Warn) != 1 {
		t.Fatalf("undersized resize applied: %v %v", s.Coor, r.names())
	}
	move(e, 800, 600)
	if s.Coor[1] != (vector.Pt{X: 800, Y: 600}) {
		t.Fatalf("resize should clamp to the image, got %v", s.Coor)
	}
	up(e, 800, 600)
	if e.State() != Idle {
		t.Fatalf("state after resize = %v", e.State())
	}
}

func TestResizeCircleRadius(t *testing.T) {
	e := newTestEngine(t)
	c := &shape.Shape{Kind: shape.Circle, Coor: []vector.Pt{{X: 100, Y: 100}}, Radius: 20, Active: true}
	load(t, e, c)
	down(e, 120, 100)
	move(e, 140, 100)
	if got := e.Shapes()[0].Radius; got != 40 {
		t.Fatalf("radius = %v", got)
	}
	r := record(e)
	move(e, 101, 100)
	if got := e.Shapes()[0].Radius; got != 40 {
		t.Fatalf("radius below the minimum applied: %v", got)
	}
	if r.count(Warn) != 1 {
		t.Fatalf("undersized radius should warn, got %v", r.names())
	}
	up(e, 101, 100)
}

func TestDoubleTapOnHandleEndsResize(t *testing.T) {
	e := newTestEngine(t)
	load(t, e, rect(100, 100, 300, 300))
	touch := func(ph input.Phase, x, y float64, at time.Time) {
		pt := []input.Touch{{ID: 0, X: x, Y: y}}
		if ph == input.Up {
			e.Dispatch(input.TouchEv(ph, nil, pt, at))
			return
		}
		e.Dispatch(input.TouchEv(ph, pt, pt, at))
	}
	tap := func(x, y float64, at time.Time) {
		touch(input.Down, x, y, at)
		touch(input.Up, x, y, at)
	}
	tap(200, 200, t0)
	if e.Active() == nil {
		t.Fatalf("tap should select the rect")
	}
	tap(300, 300, t0.Add(time.Second))
	tap(300, 300, t0.Add(1100*time.Millisecond))
	if e.State() != Idle || e.Active().Dragging {
		t.Fatalf("state after double-tap on a handle = %v", e.State())
	}

	touch(input.Down, 200, 200, t0.Add(3*time.Second))
	if e.State() != DraggingWhole {
		t.Fatalf("interior touch should drag, state %v", e.State())
	}
	touch(input.Move, 220, 220, t0.Add(3*time.Second))
	want := []vector.Pt{{X: 120, Y: 120}, {X: 320, Y: 320}}
	if got := e.Shapes()[0].Coor; got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("interior drag moved %v, want %v", got, want)
	}
}

func TestDragLogsUnencodableUndoState(t *testing.T) {
	e := newTestEngine(t)
	load(t, e, rect(100, 100, 300, 300))
	var buf bytes.Buffer
	e.log = slog.New(slog.NewTextHandler(&buf, nil))
	e.Shapes()[0].Radius = math.NaN()

	down(e, 200, 200)
	if !strings.Contains(buf.String(), "encode before drag") {
		t.Fatalf("encode failure not logged: %q", buf.String())
	}
	move(e, 210, 210)
	up(e, 210, 210)
	if got := e.Shapes()[0].Coor[0]; got != (vector.Pt{X: 110, Y: 110}) {
		t.Fatalf("drag should still apply, got %v", got)
	}
}

func TestPointerDownClearsGestureCutByLock(t *testing.T) {
	e := newTestEngine(t)
	a := rect(100, 100, 300, 300)
	a.Active = true
	load(t, e, a)
	down(e, 300, 300)
	if e.State() != ResizingHandle {
		t.Fatalf("state = %v", e.State())
	}
	e.SetLock(true)
	up(e, 300, 300)
	e.SetLock(false)

	down(e, 200, 200)
	if e.State() != DraggingWhole {
		t.Fatalf("stale handle survived the next pointer-down: %v", e.State())
	}
	move(e, 210, 190)
	if got := e.Shapes()[0].Coor; got[0] != (vector.Pt{X: 110, Y: 90}) || got[1] != (vector.Pt{X: 310, Y: 290}) {
		t.Fatalf("drag after lock = %v", got)
	}
	up(e, 210, 190)
}

func TestZOrderAndFocus(t *testing.T) {
	e := newTestEngine(t)
	r := record(e)
	load(t, e, rect(0, 0, 100, 100), rect(50, 50, 150, 150))
	down(e, 75, 75)
	up(e, 75, 75)
	if e.Active().Index != 1 {
		t.Fatalf("topmost shape should win, got index %d", e.Active().Index)
	}
	down(e, 25, 25)
	up(e, 25, 25)
	if e.Active().Index != 0 || e.Shapes()[1].Index != 0 {
		t.Fatalf("selected shape should move to the top")
	}
	down(e, 75, 75)
	up(e, 75, 75)
	if e.Active().Index != 0 {
		t.Fatalf("raised shape should now win the overlap")
	}
	e.SetFocus(true)
	down(e, 125, 125)
	up(e, 125, 125)
	if e.Active() != nil {
		t.Fatalf("focus mode must ignore inactive shapes")
	}
	if e.Shapes()[0].Index != 0 || e.Shapes()[1].Index != 1 {
		t.Fatalf("deselect should restore index order")
	}
	last := r.got[len(r.got)-1]
	if last.Name != Select || last.Shape != nil {
		t.Fatalf("expected select(nil), got %+v", last)
	}
}

func TestTickCoalescesRedraws(t *testing.T) {
	e := newTestEngine(t)
	updates := 0
	e.Subscribe(Updated, func(Notification) { updates++ })
	_, before := e.RedrawStats()
	e.Request()
	e.Request()
	e.Request()
	if !e.Tick() || e.Tick() {
		t.Fatalf("expected exactly one frame")
	}
	if _, drawn := e.RedrawStats(); drawn != before+1 || updates != 1 {
		t.Fatalf("drawn %d, updates %d", drawn-before, updates)
	}
}

func TestSetDataIsDeferred(t *testing.T) {
	e := newTestEngine(t)
	e.SetData([]*shape.Shape{rect(0, 0, 20, 20), {Kind: shape.Kind(9)}})
	if len(e.Shapes()) != 0 {
		t.Fatalf("SetData must apply on the next tick")
	}
	e.Tick()
	if len(e.Shapes()) != 1 {
		t.Fatalf("invalid records should be dropped, got %d shapes", len(e.Shapes()))
	}
	rejected, err := e.SetDataJSON([]byte(`[{"type":1,"index":0,"coor":[[1,1],[30,30]]},{"type":2,"index":1,"coor":[[0,0]]}]`))
	if err != nil {
		t.Fatalf("SetDataJSON: %v", err)
	}
	if len(rejected) != 1 {
		t.Fatalf("rejected = %v", rejected)
	}
	e.Tick()
	if !e.Undo() || len(e.Shapes()) != 1 || e.Shapes()[0].Coor[1].X != 20 {
		t.Fatalf("replacing data should be undoable")
	}
	if _, err := e.SetDataJSON([]byte(`{}`)); err == nil {
		t.Fatalf("expected error for a non-array document")
	}
}

func TestUndoRedoCreate(t *testing.T) {
	e := newTestEngine(t)
	e.SetTool(shape.Rect)
	down(e, 10, 10)
	move(e, 60, 60)
	up(e, 60, 60)
	if !e.Undo() || len(e.Shapes()) != 0 {
		t.Fatalf("undo should remove the rect")
	}
	if e.Undo() {
		t.Fatalf("nothing left to undo")
	}
	if !e.Redo() || len(e.Shapes()) != 1 {
		t.Fatalf("redo should bring the rect back")
	}
}

func TestLockAndReadOnly(t *testing.T) {
	e := newTestEngine(t)
	load(t, e, rect(10, 10, 50, 50))
	e.SetLock(true)
	down(e, 30, 30)
	if e.Active() != nil {
		t.Fatalf("lock must ignore pointer input")
	}
	if e.ZoomIn() {
		t.Fatalf("lock must ignore zoom")
	}
	e.SetLock(false)

	e.SetReadOnly(true)
	e.SetTool(shape.Rect)
	down(e, 30, 30)
	move(e, 40, 40)
	up(e, 40, 40)
	if len(e.Shapes()) != 1 || e.Active() == nil {
		t.Fatalf("readonly should select without creating")
	}
	if e.Shapes()[0].Coor[0] != (vector.Pt{X: 10, Y: 10}) {
		t.Fatalf("readonly must not drag")
	}
	e.Key("Delete")
	if len(e.Shapes()) != 1 {
		t.Fatalf("readonly must not delete from the keyboard")
	}
}

func TestPanWithSecondaryButton(t *testing.T) {
	e := newTestEngine(t)
	e.Dispatch(input.Mouse(input.Down, 10, 10, input.ButtonSecondary, t0))
	if e.State() != PanningBackground {
		t.Fatalf("state = %v", e.State())
	}
	e.Dispatch(input.Mouse(input.Move, 30, 40, input.ButtonSecondary, t0))
	if o := e.Viewport().Origin(); o != (vector.Pt{X: 20, Y: 30}) {
		t.Fatalf("origin = %v", o)
	}
	e.Dispatch(input.Mouse(input.Up, 30, 40, input.ButtonSecondary, t0))
	if e.State() != Idle {
		t.Fatalf("state after pan = %v", e.State())
	}
}

func TestPinchZoomsAboutCentroid(t *testing.T) {
	e := newTestEngine(t)
	touches := func(d float64) []input.Touch {
		return []input.Touch{{ID: 0, X: 400 - d, Y: 300}, {ID: 1, X: 400 + d, Y: 300}}
	}
	e.Dispatch(input.TouchEv(input.Down, touches(50), nil, t0))
	if e.State() != PinchZooming {
		t.Fatalf("state = %v", e.State())
	}
	at := vector.Pt{X: 400, Y: 300}
	img := e.Viewport().ToImage(at)
	e.Dispatch(input.TouchEv(input.Move, touches(100), nil, t0))
	if e.Viewport().Scale() <= 1 {
		t.Fatalf("spreading fingers should zoom in, scale %v", e.Viewport().Scale())
	}
	got := e.Viewport().ToImage(at)
	if !scalar.EqualWithinAbs(got.X, img.X, 1e-9) || !scalar.EqualWithinAbs(got.Y, img.Y, 1e-9) {
		t.Fatalf("centroid drifted from %v to %v", img, got)
	}
	zoomed := e.Viewport().Scale()
	e.Dispatch(input.TouchEv(input.Move, touches(60), nil, t0))
	if e.Viewport().Scale() >= zoomed {
		t.Fatalf("pinching should zoom out")
	}
	e.Dispatch(input.TouchEv(input.Up, nil, touches(60), t0))
	if e.State() != Idle {
		t.Fatalf("state after pinch = %v", e.State())
	}
}

func TestDoubleTapCommitsPolygon(t *testing.T) {
	e := newTestEngine(t)
	r := record(e)
	e.SetTool(shape.Polygon)
	tap := func(x, y float64, at time.Time) {
		pt := []input.Touch{{ID: 0, X: x, Y: y}}
		e.Dispatch(input.TouchEv(input.Down, pt, pt, at))
		e.Dispatch(input.TouchEv(input.Up, nil, pt, at))
	}
	tap(10, 10, t0)
	tap(100, 10, t0.Add(time.Second))
	if r.count(Add) != 0 {
		t.Fatalf("slow taps must not commit")
	}
	tap(100, 100, t0.Add(1100*time.Millisecond))
	if r.count(Add) != 1 || len(e.Active().Coor) != 3 {
		t.Fatalf("double-tap should commit the polygon: %v", r.names())
	}
}

func TestWheelAndContextMenu(t *testing.T) {
	e := newTestEngine(t)
	e.Wheel(vector.Pt{X: 400, Y: 300}, -1)
	if e.Viewport().Scale() != 1 {
		t.Fatalf("wheel should be ignored without scroll zoom")
	}
	e.SetScrollZoom(true)
	e.Dispatch(input.Wheel(400, 300, -1, t0))
	if e.Viewport().Scale() <= 1 {
		t.Fatalf("wheel up should zoom in")
	}
	e.Fit()
	e.Dispatch(input.ContextMenu(100, 100, t0))
	if e.Viewport().Scale() <= 1 {
		t.Fatalf("context menu at fit scale should zoom in")
	}
	e.ContextMenu(vector.Pt{X: 100, Y: 100})
	if e.Viewport().Scale() != e.Viewport().FitScale() {
		t.Fatalf("context menu when zoomed should fit")
	}
}

func TestIsNested(t *testing.T) {
	e := newTestEngine(t)
	outer, inner := rect(0, 0, 100, 100), rect(10, 10, 20, 20)
	if !e.IsNested(inner, outer) || e.IsNested(outer, nil) {
		t.Fatalf("unexpected nesting result")
	}
}

func TestFitWithoutImage(t *testing.T) {
	e := New(Options{})
	if err := e.Fit(); err != ErrNoImage {
		t.Fatalf("Fit error = %v", err)
	}
	if err := e.ImageLoaded("x", 0, 10); err == nil {
		t.Fatalf("expected error for empty image")
	}
}
