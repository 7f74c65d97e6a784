/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package render draws a frame of annotations through a Drawer. Styles are
// resolved per draw call from the shape's overrides and the configured
// defaults; resolved values are never written back to shapes.
package render

import (
	"log/slog"

	applog "annotator/internal/log"
	"annotator/internal/shape"
	"annotator/internal/textlayout"
	"annotator/internal/vector"
	"annotator/internal/viewport"
)

// Styles are the engine-level defaults shapes fall back to.
type Styles struct {
	StrokeStyle       string  `yaml:"strokeStyle" json:"strokeStyle"`
	FillStyle         string  `yaml:"fillStyle" json:"fillStyle"`
	ActiveStrokeStyle string  `yaml:"activeStrokeStyle" json:"activeStrokeStyle"`
	ActiveFillStyle   string  `yaml:"activeFillStyle" json:"activeFillStyle"`
	CtrlStrokeStyle   string  `yaml:"ctrlStrokeStyle" json:"ctrlStrokeStyle"`
	CtrlFillStyle     string  `yaml:"ctrlFillStyle" json:"ctrlFillStyle"`
	LabelFillStyle    string  `yaml:"labelFillStyle" json:"labelFillStyle"`
	TextFillStyle     string  `yaml:"textFillStyle" json:"textFillStyle"`
	LabelFont         string  `yaml:"labelFont" json:"labelFont"`
	LineWidth         float64 `yaml:"lineWidth" json:"lineWidth"`
	HideLabel         bool    `yaml:"hideLabel" json:"hideLabel"`
	LabelUp           bool    `yaml:"labelUp" json:"labelUp"`
	LabelMaxLen       int     `yaml:"labelMaxLen" json:"labelMaxLen"`
	CtrlRadius        float64 `yaml:"ctrlRadius" json:"ctrlRadius"`
}

func DefaultStyles() Styles {
	return Styles{
		StrokeStyle:       "#0f0",
		FillStyle:         "rgba(0, 0, 255, 0.1)",
		ActiveStrokeStyle: "#f00",
		ActiveFillStyle:   "rgba(255, 0, 0, 0.1)",
		CtrlStrokeStyle:   "#000",
		CtrlFillStyle:     "#fff",
		LabelFillStyle:    "#fff",
		TextFillStyle:     "#000",
		LabelFont:         "10px sans-serif",
		LineWidth:         1,
		HideLabel:         true,
		LabelMaxLen:       10,
		CtrlRadius:        5,
	}
}

// Paint is a resolved style for one primitive.
type Paint struct {
	Stroke vector.Color
	Fill   vector.Color
	Width  float64
	// NoFill skips the fill pass.
	NoFill bool
}

// Drawer is the surface a frame is drawn on. Coordinates are screen pixels.
type Drawer interface {
	Clear(canvas vector.Size)
	Image(extent vector.Rect)
	Rect(r vector.Rect, p Paint)
	// Path draws a polyline, closing it when closed is set. The enclosed
	// area is filled unless p.NoFill is set.
	Path(pts []vector.Pt, closed bool, p Paint)
	Circle(c vector.Pt, r float64, p Paint)
	Label(pl textlayout.Placement, box, text vector.Color, font textlayout.FontSpec)
}

// Frame is everything one redraw needs.
type Frame struct {
	Shapes   []*shape.Shape
	Viewport *viewport.Viewport
	Focus    bool
	// Pointer is the live pointer used for the trailing edge of a shape
	// being authored click by click.
	Pointer vector.Pt
	Styles  Styles
	Fonts   textlayout.Provider
}

// Draw renders f onto d: the image extent, every visible shape (only the
// active one in focus mode), then the control points of the active shape.
func Draw(d Drawer, f Frame) {
	vp := f.Viewport
	d.Clear(vp.Canvas())
	if vp.HasImage() {
		o := vp.Origin()
		sz := vp.Displayed()
		d.Image(vector.R(o.X, o.Y, sz.W, sz.H))
	}
	r := newResolver(f.Styles)
	var active *shape.Shape
	for _, s := range f.Shapes {
		if s.Active {
			active = s
		}
	}
	for _, s := range f.Shapes {
		if s.Hide || (f.Focus && !s.Active) {
			continue
		}
		drawShape(d, f, r, s)
	}
	if active != nil && !active.Hide {
		switch active.Kind {
		case shape.Rect, shape.Polygon, shape.Line, shape.Circle:
			cp := r.ctrlPaint()
			rad := f.Styles.CtrlRadius
			if rad <= 0 {
				rad = DefaultStyles().CtrlRadius
			}
			for _, c := range active.ControlPoints() {
				d.Circle(vp.ToScreen(c), rad, cp)
			}
		}
	}
}

func drawShape(d Drawer, f Frame, r *resolver, s *shape.Shape) {
	vp := f.Viewport
	if len(s.Coor) == 0 {
		return
	}
	p := r.paint(s)
	switch s.Kind {
	case shape.Rect:
		if len(s.Coor) != 2 {
			return
		}
		p.NoFill = s.Creating
		d.Rect(vector.RectFromCorners(vp.ToScreen(s.Coor[0]), vp.ToScreen(s.Coor[1])), p)
	case shape.Polygon:
		pts := screen(vp, s.Coor)
		if s.Creating {
			d.Path(append(pts, f.Pointer), false, p)
		} else {
			d.Path(pts, len(pts) > 2, p)
		}
	case shape.Line:
		pts := screen(vp, s.Coor)
		if s.Creating {
			pts = append(pts, f.Pointer)
		}
		p.NoFill = true
		d.Path(pts, false, p)
	case shape.Dot:
		p.Fill = r.color(s.Style.FillStyle, r.styles.CtrlFillStyle)
		rad := f.Styles.CtrlRadius
		if rad <= 0 {
			rad = DefaultStyles().CtrlRadius
		}
		d.Circle(vp.ToScreen(s.Center()), rad, p)
	case shape.Circle:
		d.Circle(vp.ToScreen(s.Center()), s.Radius*vp.Scale(), p)
	}
	drawLabel(d, f, r, s)
}

func drawLabel(d Drawer, f Frame, r *resolver, s *shape.Shape) {
	hide := f.Styles.HideLabel
	if s.Style.HideLabel != nil {
		hide = *s.Style.HideLabel
	}
	if s.Label == "" || hide {
		return
	}
	up := f.Styles.LabelUp
	if s.Style.LabelUp != nil {
		up = *s.Style.LabelUp
	}
	vp := f.Viewport
	font := r.font(s.Style.LabelFont)
	pl := textlayout.PlaceLabel(f.Fonts, textlayout.LabelParams{
		Text:      s.Label,
		MaxLen:    f.Styles.LabelMaxLen,
		Font:      font,
		LineWidth: r.width(s),
		Up:        up,
		Anchor:    s.LabelAnchor(),
		Natural:   vp.Natural(),
		Scale:     vp.Scale(),
		Origin:    vp.Origin(),
	})
	d.Label(pl, r.color(s.Style.LabelFillStyle, r.styles.LabelFillStyle), r.color(s.Style.TextFillStyle, r.styles.TextFillStyle), font)
}

func screen(vp *viewport.Viewport, pts []vector.Pt) []vector.Pt {
	out := make([]vector.Pt, len(pts), len(pts)+1)
	for i, p := range pts {
		out[i] = vp.ToScreen(p)
	}
	return out
}

type resolver struct {
	styles Styles
	cache  map[string]vector.Color
	log    *slog.Logger
}

func newResolver(s Styles) *resolver {
	return &resolver{styles: s, cache: make(map[string]vector.Color), log: applog.WithComponent("render")}
}

// color parses override, falling back to def and then to the built-in
// default when either is unparsable.
func (r *resolver) color(override, def string) vector.Color {
	for _, s := range []string{override, def} {
		if s == "" {
			continue
		}
		if c, ok := r.cache[s]; ok {
			return c
		}
		c, err := vector.ParseColor(s)
		if err != nil {
			r.log.Debug("ignoring bad color", slog.String("value", s), slog.String("err", err.Error()))
			continue
		}
		r.cache[s] = c
		return c
	}
	return vector.Black
}

func (r *resolver) width(s *shape.Shape) float64 {
	if s.Style.LineWidth > 0 {
		return s.Style.LineWidth
	}
	if r.styles.LineWidth > 0 {
		return r.styles.LineWidth
	}
	return 1
}

func (r *resolver) paint(s *shape.Shape) Paint {
	p := Paint{
		Stroke: r.color(s.Style.StrokeStyle, r.styles.StrokeStyle),
		Fill:   r.color(s.Style.FillStyle, r.styles.FillStyle),
		Width:  r.width(s),
	}
	if s.Active || s.Creating {
		p.Stroke = r.color(r.styles.ActiveStrokeStyle, DefaultStyles().ActiveStrokeStyle)
		if r.styles.ActiveFillStyle != "" && s.Style.FillStyle == "" {
			p.Fill = r.color(r.styles.ActiveFillStyle, "")
		}
	}
	return p
}

func (r *resolver) ctrlPaint() Paint {
	return Paint{
		Stroke: r.color(r.styles.CtrlStrokeStyle, DefaultStyles().CtrlStrokeStyle),
		Fill:   r.color(r.styles.CtrlFillStyle, DefaultStyles().CtrlFillStyle),
		Width:  1,
	}
}

func (r *resolver) font(override string) textlayout.FontSpec {
	for _, s := range []string{override, r.styles.LabelFont} {
		if s == "" {
			continue
		}
		f, err := textlayout.ParseFont(s)
		if err == nil {
			return f
		}
		r.log.Debug("ignoring bad font", slog.String("value", s), slog.String("err", err.Error()))
	}
	return textlayout.DefaultFont
}
