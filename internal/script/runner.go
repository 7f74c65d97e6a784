/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package script

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"annotator/internal/engine"
	"annotator/internal/hittest"
	"annotator/internal/imageio"
	"annotator/internal/input"
	applog "annotator/internal/log"
	"annotator/internal/render"
	"annotator/internal/shape"
	"annotator/internal/textlayout"
)

// ErrEmptyScript is returned by Run for a script without steps.
var ErrEmptyScript = errors.New("script: no steps")

// DefaultStepInterval is how far the runner clock advances per step.
const DefaultStepInterval = 16 * time.Millisecond

// Recorder receives every input event the runner injects.
type Recorder interface {
	Record(ctx context.Context, ev input.Event) error
}

// Output receives the frame of a snapshot step.
type Output func(label, format string, f render.Frame) error

// Runner drives an engine through a script.
type Runner struct {
	// Engine is used as is when set; otherwise one is built from the
	// script's canvas and options.
	Engine   *engine.Engine
	Options  engine.Options
	Recorder Recorder
	Output   Output
	// Fonts draws labels in built engines; nil keeps the fixed face.
	Fonts textlayout.Provider
	// BaseDir resolves relative image paths.
	BaseDir  string
	Start    time.Time
	Interval time.Duration

	clock time.Time
	log   *slog.Logger
}

// Result summarises a run.
type Result struct {
	Engine        *engine.Engine
	Steps         int
	Notifications []engine.Notification
	Failures      []Error
	Snapshots     []string
}

// OK reports whether every expectation held.
func (r Result) OK() bool { return len(r.Failures) == 0 }

// Run executes s. Failed expectations are collected in the result; errors
// that make continuing pointless (bad image, failed output, cancelled
// context) stop the run.
func (r *Runner) Run(ctx context.Context, s Script) (Result, error) {
	if len(s.Steps) == 0 {
		return Result{}, ErrEmptyScript
	}
	r.log = applog.WithComponent("script")
	r.clock = r.Start
	if r.clock.IsZero() {
		r.clock = time.Unix(0, 0).UTC()
	}
	if r.Interval <= 0 {
		r.Interval = DefaultStepInterval
	}
	e, err := r.setup(s)
	if err != nil {
		return Result{}, err
	}
	res := Result{Engine: e}
	h := e.SubscribeAll(func(n engine.Notification) {
		if n.Name != engine.Updated {
			res.Notifications = append(res.Notifications, n)
		}
	})
	defer h.Remove()

	for i, st := range s.Steps {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		r.clock = r.clock.Add(r.Interval)
		sctx := applog.ContextWith(ctx, slog.Int("step", i), slog.String("action", st.Action))
		if err := r.exec(sctx, e, i, st, &res); err != nil {
			r.log.DebugContext(sctx, "step failed", slog.Any("err", err))
			return res, Error{Step: i, Action: st.Action, Message: err.Error()}
		}
		e.Tick()
		res.Steps++
	}
	r.log.Debug("script finished", slog.Int("steps", res.Steps), slog.Int("failures", len(res.Failures)))
	return res, nil
}

func (r *Runner) setup(s Script) (*engine.Engine, error) {
	e := r.Engine
	if e == nil {
		opts := r.Options
		if s.Canvas != nil {
			opts.Width, opts.Height = s.Canvas.Width, s.Canvas.Height
		}
		opts.ReadOnly = opts.ReadOnly || s.Options.ReadOnly
		opts.Lock = opts.Lock || s.Options.Lock
		opts.Focus = opts.Focus || s.Options.Focus
		opts.ScrollZoom = opts.ScrollZoom || s.Options.ScrollZoom
		e = engine.New(opts)
		e.SetFonts(r.Fonts)
		if s.Options.HitMode != "" {
			m, err := hittest.ParseMode(s.Options.HitMode)
			if err != nil {
				return nil, err
			}
			e.SetHitMode(m)
		}
	}
	e.WithClock(func() time.Time { return r.clock })
	if s.Image != nil {
		w, h := s.Image.Width, s.Image.Height
		if w <= 0 || h <= 0 {
			info, err := imageio.Probe(r.resolve(s.Image.Src))
			if err != nil {
				return nil, fmt.Errorf("script: %w", err)
			}
			w, h = info.Size()
		}
		if err := e.ImageLoaded(s.Image.Src, w, h); err != nil {
			return nil, fmt.Errorf("script: %w", err)
		}
	}
	if len(s.Data) > 0 {
		rejected, err := e.SetDataJSON(s.Data)
		if err != nil {
			return nil, fmt.Errorf("script: data: %w", err)
		}
		for _, rj := range rejected {
			r.log.Warn("initial record rejected", slog.String("err", rj.Error()))
		}
	}
	e.Tick()
	return e, nil
}

func (r *Runner) resolve(src string) string {
	if filepath.IsAbs(src) || r.BaseDir == "" {
		return src
	}
	return filepath.Join(r.BaseDir, src)
}

func (r *Runner) send(ctx context.Context, e *engine.Engine, ev input.Event) error {
	if r.Recorder != nil {
		if err := r.Recorder.Record(ctx, ev); err != nil {
			return err
		}
	}
	e.Dispatch(ev)
	return nil
}

func (r *Runner) exec(ctx context.Context, e *engine.Engine, i int, st Step, res *Result) error {
	btn := input.ButtonPrimary
	if st.Button != "" {
		if err := btn.UnmarshalText([]byte(st.Button)); err != nil {
			return err
		}
	}
	mouse := func(ph input.Phase, x, y float64) error {
		return r.send(ctx, e, input.Mouse(ph, x, y, btn, r.clock))
	}
	switch st.Action {
	case "tool":
		k, err := shape.ParseKind(st.Kind)
		if err != nil && st.Kind != "" {
			return err
		}
		e.SetTool(k)
	case "click":
		if err := mouse(input.Down, st.X, st.Y); err != nil {
			return err
		}
		return mouse(input.Up, st.X, st.Y)
	case "drag":
		n := st.Frames
		if n < 2 {
			n = 2
		}
		if err := mouse(input.Down, st.FromX, st.FromY); err != nil {
			return err
		}
		for k := 1; k <= n; k++ {
			t := float64(k) / float64(n)
			if err := mouse(input.Move, st.FromX+(st.ToX-st.FromX)*t, st.FromY+(st.ToY-st.FromY)*t); err != nil {
				return err
			}
			e.Tick()
		}
		return mouse(input.Up, st.ToX, st.ToY)
	case "down":
		return mouse(input.Down, st.X, st.Y)
	case "move":
		return mouse(input.Move, st.X, st.Y)
	case "up":
		return mouse(input.Up, st.X, st.Y)
	case "touch":
		var ph input.Phase
		if err := ph.UnmarshalText([]byte(st.Phase)); err != nil {
			return err
		}
		pts := make([]input.Touch, len(st.Touches))
		for k, tp := range st.Touches {
			pts[k] = input.Touch{ID: tp.ID, X: tp.X, Y: tp.Y}
		}
		var touches, changed []input.Touch
		if ph == input.Up {
			changed = pts
		} else {
			touches, changed = pts, pts
		}
		return r.send(ctx, e, input.TouchEv(ph, touches, changed, r.clock))
	case "dblclick":
		return r.send(ctx, e, input.DoubleClick(st.X, st.Y, r.clock))
	case "key":
		return r.send(ctx, e, input.Key(st.Key, r.clock))
	case "wheel":
		return r.send(ctx, e, input.Wheel(st.X, st.Y, st.DeltaY, r.clock))
	case "contextmenu":
		return r.send(ctx, e, input.ContextMenu(st.X, st.Y, r.clock))
	case "undo":
		e.Undo()
	case "redo":
		e.Redo()
	case "fit":
		return e.Fit()
	case "zoomIn":
		e.ZoomIn()
	case "zoomOut":
		e.ZoomOut()
	case "delete":
		e.DeleteByIndex(st.Index)
	case "readOnly":
		e.SetReadOnly(st.Value)
	case "lock":
		e.SetLock(st.Value)
	case "focus":
		e.SetFocus(st.Value)
	case "scrollZoom":
		e.SetScrollZoom(st.Value)
	case "resize":
		e.Resize(st.Width, st.Height)
	case "wait":
		r.clock = r.clock.Add(time.Duration(st.Ms) * time.Millisecond)
	case "expect":
		e.Tick()
		for _, msg := range expect(e, st, res.Notifications) {
			res.Failures = append(res.Failures, Error{Step: i, Action: st.Action, Message: msg})
		}
	case "snapshot":
		e.Tick()
		if r.Output == nil {
			return nil
		}
		label := st.Label
		if label == "" {
			label = fmt.Sprintf("frame-%03d", i)
		}
		format := st.Format
		if format == "" {
			format = "png"
		}
		if err := r.Output(label, format, e.Frame()); err != nil {
			return err
		}
		res.Snapshots = append(res.Snapshots, label+"."+format)
	default:
		return fmt.Errorf("unknown action %q", st.Action)
	}
	return nil
}

func expect(e *engine.Engine, st Step, seen []engine.Notification) []string {
	var out []string
	if st.Count != nil && len(e.Shapes()) != *st.Count {
		out = append(out, fmt.Sprintf("expected %d shapes, have %d", *st.Count, len(e.Shapes())))
	}
	if st.State != "" && !strings.EqualFold(e.State().String(), st.State) {
		out = append(out, fmt.Sprintf("expected state %s, have %s", st.State, e.State()))
	}
	if st.Active != nil {
		got := -1
		if a := e.Active(); a != nil {
			got = a.Index
		}
		if got != *st.Active {
			out = append(out, fmt.Sprintf("expected active index %d, have %d", *st.Active, got))
		}
	}
	if st.Notify != "" {
		last := ""
		if len(seen) > 0 {
			last = string(seen[len(seen)-1].Name)
		}
		if last != st.Notify {
			out = append(out, fmt.Sprintf("expected last notification %q, have %q", st.Notify, last))
		}
	}
	return out
}

// FileOutput writes snapshots into dir as PNG or PDF, drawing bg as the
// background image when set.
func FileOutput(dir string, bg image.Image) Output {
	return func(label, format string, f render.Frame) error {
		name := filepath.Join(dir, filepath.Base(label)+"."+format)
		c := f.Viewport.Canvas()
		switch format {
		case "png":
			ra := render.NewRaster(int(c.W), int(c.H))
			ra.Background = bg
			ra.Fonts = f.Fonts
			render.Draw(ra, f)
			return ra.WritePNG(name)
		case "pdf":
			p := render.NewPDF(label)
			p.Background = bg
			render.Draw(p, f)
			return p.WriteFile(name)
		}
		return fmt.Errorf("unsupported snapshot format %q", format)
	}
}
