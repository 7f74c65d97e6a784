//go:build fyne

/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package ui

import (
	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/widget"

	"annotator/internal/input"
)

// AnnotCanvas shows the host's frames and forwards pointer, wheel and key
// events to it.
type AnnotCanvas struct {
	widget.BaseWidget
	host *Host
}

var (
	_ desktop.Mouseable      = (*AnnotCanvas)(nil)
	_ desktop.Hoverable      = (*AnnotCanvas)(nil)
	_ fyne.Draggable         = (*AnnotCanvas)(nil)
	_ fyne.Scrollable        = (*AnnotCanvas)(nil)
	_ fyne.DoubleTappable    = (*AnnotCanvas)(nil)
	_ fyne.SecondaryTappable = (*AnnotCanvas)(nil)
	_ fyne.Focusable         = (*AnnotCanvas)(nil)
)

func NewAnnotCanvas(h *Host) *AnnotCanvas {
	c := &AnnotCanvas{host: h}
	c.ExtendBaseWidget(c)
	return c
}

func (c *AnnotCanvas) CreateRenderer() fyne.WidgetRenderer {
	img := canvas.NewImageFromImage(c.host.Snapshot())
	img.FillMode = canvas.ImageFillStretch
	img.ScaleMode = canvas.ImageScaleFastest
	return &annotRenderer{c: c, img: img, objects: []fyne.CanvasObject{img}}
}

// PreferredSize matches the default engine canvas.
func (c *AnnotCanvas) PreferredSize() fyne.Size { return fyne.NewSize(800, 600) }

func (c *AnnotCanvas) redraw(drawn bool) {
	if drawn {
		c.Refresh()
	}
}

func buttonOf(b desktop.MouseButton) input.Button {
	switch b {
	case desktop.MouseButtonPrimary:
		return input.ButtonPrimary
	case desktop.MouseButtonSecondary:
		return input.ButtonSecondary
	case desktop.MouseButtonTertiary:
		return input.ButtonMiddle
	}
	return input.ButtonNone
}

func xy(p fyne.Position) (float64, float64) { return float64(p.X), float64(p.Y) }

func (c *AnnotCanvas) MouseDown(e *desktop.MouseEvent) {
	if a := fyne.CurrentApp(); a != nil {
		if cv := a.Driver().CanvasForObject(c); cv != nil {
			cv.Focus(c)
		}
	}
	x, y := xy(e.Position)
	c.redraw(c.host.MouseDown(x, y, buttonOf(e.Button)))
}

func (c *AnnotCanvas) MouseUp(e *desktop.MouseEvent) {
	x, y := xy(e.Position)
	c.redraw(c.host.MouseUp(x, y, buttonOf(e.Button)))
}

func (c *AnnotCanvas) MouseIn(*desktop.MouseEvent) {}
func (c *AnnotCanvas) MouseOut()                   {}

func (c *AnnotCanvas) MouseMoved(e *desktop.MouseEvent) {
	x, y := xy(e.Position)
	c.redraw(c.host.MouseMove(x, y))
}

// Dragged arrives instead of MouseMoved while a button is held.
func (c *AnnotCanvas) Dragged(e *fyne.DragEvent) {
	x, y := xy(e.Position)
	c.redraw(c.host.MouseMove(x, y))
}

func (c *AnnotCanvas) DragEnd() {}

func (c *AnnotCanvas) Scrolled(e *fyne.ScrollEvent) {
	x, y := xy(e.Position)
	c.redraw(c.host.Scroll(x, y, float64(e.Scrolled.DY)))
}

func (c *AnnotCanvas) DoubleTapped(e *fyne.PointEvent) {
	x, y := xy(e.Position)
	c.redraw(c.host.DoubleClick(x, y))
}

func (c *AnnotCanvas) TappedSecondary(e *fyne.PointEvent) {
	x, y := xy(e.Position)
	c.redraw(c.host.ContextMenu(x, y))
}

func (c *AnnotCanvas) FocusGained()   {}
func (c *AnnotCanvas) FocusLost()     {}
func (c *AnnotCanvas) TypedRune(rune) {}

func (c *AnnotCanvas) TypedKey(e *fyne.KeyEvent) {
	c.redraw(c.host.Key(string(e.Name)))
}

type annotRenderer struct {
	c       *AnnotCanvas
	img     *canvas.Image
	objects []fyne.CanvasObject
}

func (r *annotRenderer) Destroy()                     {}
func (r *annotRenderer) Objects() []fyne.CanvasObject { return r.objects }
func (r *annotRenderer) MinSize() fyne.Size           { return fyne.NewSize(200, 150) }

func (r *annotRenderer) Layout(size fyne.Size) {
	r.c.host.Resize(float64(size.Width), float64(size.Height))
	r.img.Move(fyne.NewPos(0, 0))
	r.img.Resize(size)
	r.update()
}

func (r *annotRenderer) Refresh() {
	r.update()
	canvas.Refresh(r.c)
}

func (r *annotRenderer) update() {
	r.img.Image = r.c.host.Snapshot()
	r.img.Refresh()
}
