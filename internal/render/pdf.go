/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package render

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"

	"github.com/jung-kurt/gofpdf"

	"annotator/internal/textlayout"
	"annotator/internal/vector"
)

// PDF draws vector annotations onto a single page sized to the canvas. One
// screen pixel maps to one point.
type PDF struct {
	Title      string
	Background image.Image

	pdf    *gofpdf.Fpdf
	canvas vector.Size
}

func NewPDF(title string) *PDF { return &PDF{Title: title} }

func (d *PDF) Clear(canvas vector.Size) {
	d.canvas = canvas
	d.pdf = gofpdf.NewCustom(&gofpdf.InitType{
		UnitStr: "pt",
		Size:    gofpdf.SizeType{Wd: canvas.W, Ht: canvas.H},
	})
	if d.Title != "" {
		d.pdf.SetTitle(d.Title, true)
	}
	d.pdf.SetAuthor("annotator", false)
	d.pdf.SetMargins(0, 0, 0)
	d.pdf.SetAutoPageBreak(false, 0)
	d.pdf.AddPageFormat("", gofpdf.SizeType{Wd: canvas.W, Ht: canvas.H})
	d.pdf.SetFont("Helvetica", "", 10)
}

func (d *PDF) Image(extent vector.Rect) {
	if d.Background == nil {
		d.pdf.SetFillColor(0xee, 0xee, 0xee)
		d.pdf.Rect(extent.X, extent.Y, extent.W, extent.H, "F")
		return
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, d.Background); err != nil {
		d.pdf.SetError(fmt.Errorf("encode background: %w", err))
		return
	}
	opts := gofpdf.ImageOptions{ImageType: "PNG"}
	d.pdf.RegisterImageOptionsReader("background", opts, &buf)
	d.pdf.ImageOptions("background", extent.X, extent.Y, extent.W, extent.H, false, opts, 0, "")
}

func (d *PDF) Rect(r vector.Rect, p Paint) {
	// fill and stroke go in separate passes since alpha applies to both
	if !p.NoFill && p.Fill.A > 0 {
		setFill(d.pdf, p.Fill)
		d.pdf.Rect(r.X, r.Y, r.W, r.H, "F")
		d.reset()
	}
	if p.Width > 0 && p.Stroke.A > 0 {
		setStroke(d.pdf, p.Stroke, p.Width)
		d.pdf.Rect(r.X, r.Y, r.W, r.H, "D")
		d.reset()
	}
}

func (d *PDF) Path(pts []vector.Pt, closed bool, p Paint) {
	if len(pts) == 0 {
		return
	}
	if !p.NoFill && len(pts) > 2 && p.Fill.A > 0 {
		setFill(d.pdf, p.Fill)
		d.pdf.MoveTo(pts[0].X, pts[0].Y)
		for _, q := range pts[1:] {
			d.pdf.LineTo(q.X, q.Y)
		}
		d.pdf.ClosePath()
		d.pdf.DrawPath("F")
		d.reset()
	}
	if p.Width <= 0 || p.Stroke.A == 0 {
		return
	}
	setStroke(d.pdf, p.Stroke, p.Width)
	d.pdf.SetLineJoinStyle("round")
	d.pdf.MoveTo(pts[0].X, pts[0].Y)
	for _, q := range pts[1:] {
		d.pdf.LineTo(q.X, q.Y)
	}
	if closed {
		d.pdf.ClosePath()
	}
	d.pdf.DrawPath("D")
	d.reset()
}

func (d *PDF) Circle(c vector.Pt, r float64, p Paint) {
	if r <= 0 {
		return
	}
	if !p.NoFill && p.Fill.A > 0 {
		setFill(d.pdf, p.Fill)
		d.pdf.Circle(c.X, c.Y, r, "F")
		d.reset()
	}
	if p.Width > 0 && p.Stroke.A > 0 {
		setStroke(d.pdf, p.Stroke, p.Width)
		d.pdf.Circle(c.X, c.Y, r, "D")
		d.reset()
	}
}

func (d *PDF) Label(pl textlayout.Placement, box, text vector.Color, spec textlayout.FontSpec) {
	setFill(d.pdf, box)
	d.pdf.Rect(pl.Box.X, pl.Box.Y, pl.Box.W, pl.Box.H, "F")
	d.reset()
	size := spec.SizePx
	if size <= 0 {
		size = textlayout.DefaultFont.SizePx
	}
	style := ""
	if spec.Weight >= 600 {
		style += "B"
	}
	if spec.Italic {
		style += "I"
	}
	d.pdf.SetFont("Helvetica", style, size)
	d.pdf.SetTextColor(int(text.R), int(text.G), int(text.B))
	d.pdf.Text(pl.Baseline.X, pl.Baseline.Y, pl.Text)
}

func (d *PDF) reset() { d.pdf.SetAlpha(1, "Normal") }

// Output writes the document to w.
func (d *PDF) Output(w io.Writer) error {
	if d.pdf == nil {
		return fmt.Errorf("pdf: nothing drawn")
	}
	if err := d.pdf.Output(w); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

// WriteFile writes the document to path, creating parent directories.
func (d *PDF) WriteFile(path string) error {
	if d.pdf == nil {
		return fmt.Errorf("pdf: nothing drawn")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("ensure out dir: %w", err)
	}
	if err := d.pdf.OutputFileAndClose(path); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

func setFill(pdf *gofpdf.Fpdf, c vector.Color) {
	pdf.SetFillColor(int(c.R), int(c.G), int(c.B))
	pdf.SetAlpha(c.Alpha(), "Normal")
}

func setStroke(pdf *gofpdf.Fpdf, c vector.Color, w float64) {
	pdf.SetDrawColor(int(c.R), int(c.G), int(c.B))
	pdf.SetLineWidth(w)
	pdf.SetAlpha(c.Alpha(), "Normal")
}
