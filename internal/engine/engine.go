/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package engine is the interaction state machine. It turns canonical
// pointer, key and wheel events into edits of the shape registry and the
// viewport, and reports what happened through notifications.
//
// An Engine is driven from a single goroutine: every event runs to
// completion before the next one. Redraws are coalesced and flushed by the
// host calling Tick once per display refresh.
package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"annotator/internal/hittest"
	"annotator/internal/input"
	applog "annotator/internal/log"
	"annotator/internal/registry"
	"annotator/internal/render"
	"annotator/internal/shape"
	"annotator/internal/textlayout"
	"annotator/internal/undo"
	"annotator/internal/vector"
	"annotator/internal/viewport"
)

// State is the gesture currently in flight.
type State int

const (
	Idle State = iota
	CreatingMultiPoint
	CreatingDrag
	DraggingWhole
	ResizingHandle
	PanningBackground
	PinchZooming
)

var stateNames = [...]string{"idle", "creating-multipoint", "creating-drag", "dragging-whole", "resizing-handle", "panning", "pinch-zooming"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// Options configure an Engine.
type Options struct {
	Width, Height float64
	Limits        shape.Limits
	Hit           hittest.Options
	Zoom          viewport.Options
	DoubleTap     time.Duration
	ReadOnly      bool
	Lock          bool
	Focus         bool
	ScrollZoom    bool
	Styles        render.Styles
	Undo          undo.Config
}

func DefaultOptions() Options {
	return Options{
		Width:     800,
		Height:    600,
		Limits:    shape.DefaultLimits,
		Hit:       hittest.DefaultOptions(),
		Zoom:      viewport.DefaultOptions(),
		DoubleTap: input.DefaultDoubleTap,
		Styles:    render.DefaultStyles(),
	}
}

// ErrNoImage is returned by operations that need a loaded image.
var ErrNoImage = errors.New("no image loaded")

// gesture is the context of the pointer gesture in flight.
type gesture struct {
	ctrl      int         // control point being dragged, -1 for none
	offsets   []vector.Pt // pointer minus grabbed coordinates, image space
	panOffset vector.Pt   // pointer minus origin at the last pointer-down
	panning   bool
	pinch     bool
	spread    float64
	before    []byte // registry state when an edit gesture started
	moved     bool
}

type Engine struct {
	opts   Options
	reg    *registry.Registry
	vp     *viewport.Viewport
	hit    *hittest.Tester
	bus    Bus
	hist   *undo.Manager
	drawer render.Drawer
	fonts  textlayout.Provider
	log    *slog.Logger
	now    func() time.Time

	tool       shape.Kind
	readOnly   bool
	lock       bool
	focus      bool
	scrollZoom bool
	source     string

	g            gesture
	createBefore []byte
	pointer      vector.Pt
	taps         input.TapClock

	pending   bool
	deferred  []func()
	requested int
	drawn     int
}

// New returns an engine for a canvas of opts.Width×opts.Height pixels.
func New(opts Options) *Engine {
	d := DefaultOptions()
	if opts.Width <= 0 {
		opts.Width = d.Width
	}
	if opts.Height <= 0 {
		opts.Height = d.Height
	}
	if opts.Limits == (shape.Limits{}) {
		opts.Limits = d.Limits
	}
	if opts.DoubleTap <= 0 {
		opts.DoubleTap = d.DoubleTap
	}
	if opts.Styles == (render.Styles{}) {
		opts.Styles = d.Styles
	}
	e := &Engine{
		opts:       opts,
		reg:        registry.New(),
		vp:         viewport.New(opts.Width, opts.Height, opts.Zoom),
		hit:        hittest.New(opts.Hit),
		hist:       undo.NewManager(opts.Undo),
		fonts:      textlayout.BasicProvider{},
		log:        applog.WithComponent("engine"),
		now:        time.Now,
		readOnly:   opts.ReadOnly,
		lock:       opts.Lock,
		focus:      opts.Focus,
		scrollZoom: opts.ScrollZoom,
		g:          gesture{ctrl: -1},
		taps:       input.TapClock{Window: opts.DoubleTap},
	}
	return e
}

// WithClock replaces the time source used for undo timestamps.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// SetDrawer installs the surface Tick draws on. A nil drawer only emits
// updated.
func (e *Engine) SetDrawer(d render.Drawer) { e.drawer = d }

// SetFonts installs the label font provider.
func (e *Engine) SetFonts(p textlayout.Provider) {
	if p != nil {
		e.fonts = p
	}
}

func (e *Engine) Options() Options            { return e.opts }
func (e *Engine) Viewport() *viewport.Viewport { return e.vp }
func (e *Engine) Shapes() []*shape.Shape      { return e.reg.Shapes() }
func (e *Engine) Active() *shape.Shape        { return e.reg.Active() }
func (e *Engine) Tool() shape.Kind            { return e.tool }
func (e *Engine) Source() string              { return e.source }
func (e *Engine) Pointer() vector.Pt          { return e.pointer }
func (e *Engine) ReadOnly() bool              { return e.readOnly }
func (e *Engine) Locked() bool                { return e.lock }
func (e *Engine) Focus() bool                 { return e.focus }
func (e *Engine) ScrollZoom() bool            { return e.scrollZoom }

// Subscribe registers fn for notifications named n.
func (e *Engine) Subscribe(n Name, fn Handler) Handle { return e.bus.Subscribe(n, fn) }

// SubscribeAll registers fn for every notification.
func (e *Engine) SubscribeAll(fn Handler) Handle { return e.bus.SubscribeAll(fn) }

// State reports the gesture in flight.
func (e *Engine) State() State {
	switch {
	case e.g.pinch:
		return PinchZooming
	case e.g.ctrl >= 0:
		return ResizingHandle
	case e.g.panning:
		return PanningBackground
	}
	a := e.reg.Active()
	if a == nil {
		return Idle
	}
	switch {
	case a.Dragging:
		return DraggingWhole
	case a.Creating && shape.MultiPoint(a.Kind):
		return CreatingMultiPoint
	case a.Creating:
		return CreatingDrag
	}
	return Idle
}

// SetTool arms creation of kind k; shape.None disarms.
func (e *Engine) SetTool(k shape.Kind) {
	if k != shape.None && !k.Valid() {
		e.log.Warn("ignoring unknown tool", slog.Int("kind", int(k)))
		return
	}
	e.tool = k
}

func (e *Engine) SetReadOnly(v bool) {
	e.readOnly = v
	e.Request()
}

func (e *Engine) SetLock(v bool) { e.lock = v }

func (e *Engine) SetFocus(v bool) {
	e.focus = v
	e.Request()
}

func (e *Engine) SetScrollZoom(v bool) { e.scrollZoom = v }

// SetHitMode switches between analytic and raster hit tests.
func (e *Engine) SetHitMode(m hittest.Mode) { e.hit.SetMode(m) }

// Request asks for a redraw on the next Tick. Repeated requests before the
// Tick collapse into one.
func (e *Engine) Request() {
	e.pending = true
	e.requested++
}

// Defer queues fn to run at the start of the next Tick.
func (e *Engine) Defer(fn func()) { e.deferred = append(e.deferred, fn) }

// Tick runs deferred work, then draws once if a redraw is pending and
// emits updated. It reports whether a frame was drawn.
func (e *Engine) Tick() bool {
	for len(e.deferred) > 0 {
		tasks := e.deferred
		e.deferred = nil
		for _, fn := range tasks {
			fn()
		}
	}
	if !e.pending {
		return false
	}
	e.pending = false
	e.drawn++
	if e.drawer != nil {
		render.Draw(e.drawer, e.Frame())
	}
	e.bus.Emit(Notification{Name: Updated, Shapes: e.reg.Shapes()})
	return true
}

// Frame describes the current state for a renderer.
func (e *Engine) Frame() render.Frame {
	return render.Frame{
		Shapes:   e.reg.Shapes(),
		Viewport: e.vp,
		Focus:    e.focus,
		Pointer:  e.pointer,
		Styles:   e.opts.Styles,
		Fonts:    e.fonts,
	}
}

// Pending reports whether a redraw is waiting for Tick.
func (e *Engine) Pending() bool { return e.pending }

// RedrawStats returns how many redraws were requested and how many frames
// were actually drawn.
func (e *Engine) RedrawStats() (requested, drawn int) { return e.requested, e.drawn }

// SetData replaces the shape collection on the next Tick. Unknown kinds and
// malformed geometry are dropped with a logged diagnostic.
func (e *Engine) SetData(shapes []*shape.Shape) {
	in := make([]*shape.Shape, len(shapes))
	for i, s := range shapes {
		if s != nil {
			in[i] = s.Clone()
		}
	}
	e.Defer(func() {
		e.resetGesture()
		if e.reg.Len() > 0 {
			e.checkpoint()
		}
		if n := e.reg.ReplaceAll(in); n > 0 {
			e.log.Warn("dropped invalid shapes", slog.Int("dropped", n), slog.Int("kept", e.reg.Len()))
		}
		e.Request()
	})
}

// SetDataJSON decodes a record array and hands the accepted records to
// SetData. Rejected records are returned as diagnostics; only a document
// that is not an array fails.
func (e *Engine) SetDataJSON(data []byte) ([]error, error) {
	shapes, rejected, err := shape.DecodeRecords(data)
	if err != nil {
		return nil, err
	}
	for _, r := range rejected {
		e.log.Warn("rejected shape record", slog.String("err", r.Error()))
	}
	e.SetData(shapes)
	return rejected, nil
}

// Data returns a deep copy of the collection in z-order.
func (e *Engine) Data() []*shape.Shape { return e.reg.Snapshot() }

// DataJSON encodes the collection as a record array.
func (e *Engine) DataJSON() ([]byte, error) { return shape.EncodeRecords(e.reg.Shapes()) }

// ImageLoaded records the natural size of the background image identified
// by src, fits it to the canvas and emits load.
func (e *Engine) ImageLoaded(src string, w, h float64) error {
	if w <= 0 || h <= 0 {
		return fmt.Errorf("image %q: invalid size %gx%g", src, w, h)
	}
	e.source = src
	e.vp.SetImage(w, h)
	e.log.Debug("image loaded", slog.String("src", src), slog.Float64("w", w), slog.Float64("h", h), slog.Float64("scale", e.vp.Scale()))
	e.bus.Emit(Notification{Name: Load, Source: src})
	e.Request()
	return nil
}

// Resize changes the canvas size and refits the image.
func (e *Engine) Resize(w, h float64) {
	e.vp.Resize(w, h)
	e.Request()
}

// ZoomIn and ZoomOut step the zoom about the canvas center.
func (e *Engine) ZoomIn() bool  { return e.zoom(true, nil) }
func (e *Engine) ZoomOut() bool { return e.zoom(false, nil) }

func (e *Engine) zoom(in bool, anchor *vector.Pt) bool {
	if e.lock {
		return false
	}
	if !e.vp.ZoomBy(in, anchor) {
		return false
	}
	e.Request()
	return true
}

// Fit scales the image to the canvas.
func (e *Engine) Fit() error {
	if !e.vp.HasImage() {
		return ErrNoImage
	}
	if e.lock {
		return nil
	}
	e.vp.Fit()
	e.Request()
	return nil
}

// DeleteByIndex removes the shape whose index is i, re-densifies the
// remaining indices and emits delete. It reports whether a shape was found.
func (e *Engine) DeleteByIndex(i int) bool {
	pos := e.reg.FindIndex(i)
	if pos < 0 {
		return false
	}
	s := e.reg.At(pos)
	if !s.Creating {
		e.checkpoint()
	}
	e.reg.DeleteByIndex(i)
	e.resetGesture()
	e.bus.Emit(Notification{Name: Delete, Shape: s})
	e.Request()
	return true
}

// IsNested reports whether one region shape lies inside the other.
func (e *Engine) IsNested(a, b *shape.Shape) bool {
	if a == nil || b == nil {
		return false
	}
	return shape.IsNested(a, b)
}

// Undo restores the collection as it was before the last committed change
// to the current image.
func (e *Engine) Undo() bool {
	if e.lock || e.readOnly {
		return false
	}
	cur, err := e.encode()
	if err != nil {
		e.log.Error("encode for undo", slog.String("err", err.Error()))
		return false
	}
	s, ok := e.hist.Undo(e.source, cur)
	if !ok {
		return false
	}
	return e.restore(s.Blob)
}

// Redo reapplies the last undone change.
func (e *Engine) Redo() bool {
	if e.lock || e.readOnly {
		return false
	}
	cur, err := e.encode()
	if err != nil {
		e.log.Error("encode for redo", slog.String("err", err.Error()))
		return false
	}
	s, ok := e.hist.Redo(e.source, cur)
	if !ok {
		return false
	}
	return e.restore(s.Blob)
}

func (e *Engine) encode() ([]byte, error) { return json.Marshal(e.reg.Shapes()) }

func (e *Engine) restore(blob []byte) bool {
	var shapes []*shape.Shape
	if err := json.Unmarshal(blob, &shapes); err != nil {
		e.log.Error("restore history entry", slog.String("err", err.Error()))
		return false
	}
	for _, s := range shapes {
		s.Dragging = false
	}
	e.resetGesture()
	e.reg.Restore(shapes)
	e.bus.Emit(Notification{Name: Select, Shape: e.reg.Active()})
	e.Request()
	return true
}

// checkpoint records the current collection as an undo step.
func (e *Engine) checkpoint() {
	blob, err := e.encode()
	if err != nil {
		e.log.Error("encode checkpoint", slog.String("err", err.Error()))
		return
	}
	e.push(blob)
}

func (e *Engine) push(blob []byte) {
	if blob == nil {
		return
	}
	e.hist.Push(undo.Snapshot{Key: e.source, Blob: blob, TS: e.now()})
}

func (e *Engine) resetGesture() {
	if a := e.reg.Active(); a != nil {
		a.Dragging = false
	}
	e.g = gesture{ctrl: -1, panOffset: e.g.panOffset}
}
