/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package ui hosts the annotation engine in a desktop window.
package ui

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"annotator/internal/engine"
	"annotator/internal/imageio"
	"annotator/internal/input"
	applog "annotator/internal/log"
	"annotator/internal/render"
	"annotator/internal/script"
	"annotator/internal/textlayout"
)

// ErrNoImage is returned by operations that need a loaded background.
var ErrNoImage = errors.New("no image loaded")

// Host owns an engine and the raster it paints on, and turns widget
// callbacks into engine events. It knows nothing about the toolkit.
type Host struct {
	mu   sync.Mutex
	eng  *engine.Engine
	out  *render.Raster
	now  func() time.Time
	held input.Button
	info imageio.Info
	rec  script.Recorder
	log  *slog.Logger

	attached engine.Handle
}

// NewHost builds an engine from opts with a dark canvas.
func NewHost(opts engine.Options) *Host {
	h := &Host{
		eng: engine.New(opts),
		now: time.Now,
		log: applog.WithComponent("ui"),
	}
	o := h.eng.Options()
	h.out = render.NewRaster(int(o.Width), int(o.Height))
	h.out.Canvas = color.RGBA{R: 30, G: 30, B: 34, A: 255}
	h.eng.SetDrawer(h.out)
	if fonts, err := textlayout.GoFonts(); err == nil {
		h.eng.SetFonts(fonts)
		h.out.Fonts = fonts
	} else {
		h.log.Warn("label fonts unavailable, using fixed face", slog.Any("err", err))
	}
	return h
}

func (h *Host) Engine() *engine.Engine { return h.eng }

// Info describes the loaded image; zero when none is.
func (h *Host) Info() imageio.Info {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.info
}

// SetRecorder makes every dispatched event go to r first, e.g. a journal
// session. Nil disables recording.
func (h *Host) SetRecorder(r script.Recorder) {
	h.mu.Lock()
	h.rec = r
	h.mu.Unlock()
}

// Do runs fn against the engine under the host lock and ticks afterwards.
// It reports whether a frame was drawn.
func (h *Host) Do(fn func(e *engine.Engine)) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	fn(h.eng)
	return h.eng.Tick()
}

// Frame returns the last drawn image. The image is reused by the next
// tick; use Snapshot to keep one.
func (h *Host) Frame() *image.RGBA {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.out.Img
}

// Snapshot copies the last drawn image.
func (h *Host) Snapshot() *image.RGBA {
	h.mu.Lock()
	defer h.mu.Unlock()
	dst := image.NewRGBA(h.out.Img.Bounds())
	copy(dst.Pix, h.out.Img.Pix)
	return dst
}

// Resize follows the widget size.
func (h *Host) Resize(w, ht float64) bool {
	if w < 1 || ht < 1 {
		return false
	}
	return h.Do(func(e *engine.Engine) {
		c := e.Viewport().Canvas()
		if c.W != w || c.H != ht {
			e.Resize(w, ht)
		}
	})
}

// OpenImage decodes path and makes it the background.
func (h *Host) OpenImage(path string) error {
	img, info, err := imageio.Load(path)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.eng.ImageLoaded(info.Source, float64(info.Width), float64(info.Height)); err != nil {
		return err
	}
	h.info = info
	h.out.Background = img
	h.eng.Tick()
	return nil
}

// OpenData replaces the annotations with the records in path. Rejected
// records are logged and counted.
func (h *Host) OpenData(path string) (rejected int, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	bad, err := h.eng.SetDataJSON(data)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	h.eng.Tick()
	return len(bad), nil
}

// SaveData writes the annotations as a record array.
func (h *Host) SaveData(path string) error {
	h.mu.Lock()
	data, err := h.eng.DataJSON()
	h.mu.Unlock()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Export writes the current frame as PNG or PDF, picked by extension.
func (h *Host) Export(path string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.eng.Viewport().HasImage() {
		return ErrNoImage
	}
	f := h.eng.Frame()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		d := render.NewPDF(filepath.Base(h.info.Source))
		d.Background = h.out.Background
		render.Draw(d, f)
		return d.WriteFile(path)
	default:
		r := render.NewRaster(1, 1)
		r.Background = h.out.Background
		r.Fonts = h.out.Fonts
		render.Draw(r, f)
		return r.WritePNG(path)
	}
}

func (h *Host) dispatch(ev input.Event) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rec != nil {
		if err := h.rec.Record(context.Background(), ev); err != nil {
			h.log.Warn("record event failed", slog.Any("err", err))
		}
	}
	h.eng.Dispatch(ev)
	return h.eng.Tick()
}

// MouseDown starts a gesture with button b at widget position (x, y).
func (h *Host) MouseDown(x, y float64, b input.Button) bool {
	h.held = b
	return h.dispatch(input.Mouse(input.Down, x, y, b, h.now()))
}

// MouseMove reports the pointer position, with the held button if any.
func (h *Host) MouseMove(x, y float64) bool {
	return h.dispatch(input.Mouse(input.Move, x, y, h.held, h.now()))
}

func (h *Host) MouseUp(x, y float64, b input.Button) bool {
	h.held = input.ButtonNone
	return h.dispatch(input.Mouse(input.Up, x, y, b, h.now()))
}

func (h *Host) DoubleClick(x, y float64) bool {
	return h.dispatch(input.DoubleClick(x, y, h.now()))
}

func (h *Host) ContextMenu(x, y float64) bool {
	return h.dispatch(input.ContextMenu(x, y, h.now()))
}

// Scroll forwards a wheel step. Toolkits report "up" as positive, the
// engine as negative.
func (h *Host) Scroll(x, y, dy float64) bool {
	return h.dispatch(input.Wheel(x, y, -dy, h.now()))
}

// Key forwards a toolkit key name; keys the engine ignores are dropped.
func (h *Host) Key(name string) bool {
	k := KeyName(name)
	if k == "" {
		return false
	}
	return h.dispatch(input.Key(k, h.now()))
}

// KeyName maps toolkit key names onto the names the engine understands.
func KeyName(name string) string {
	switch strings.ToLower(name) {
	case "escape", "esc":
		return "Escape"
	case "backspace":
		return "Backspace"
	case "delete", "del":
		return "Delete"
	}
	return ""
}
