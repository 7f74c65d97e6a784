/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package render

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/srwiley/rasterx"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"

	"annotator/internal/textlayout"
	"annotator/internal/vector"
)

// circleSegments approximates circles with a closed polygon.
const circleSegments = 64

// Raster draws into an RGBA image with rasterx. Background, when set, is
// scaled into the image extent.
type Raster struct {
	Img        *image.RGBA
	Background image.Image
	Fonts      textlayout.Provider
	// Canvas color painted by Clear; zero means white.
	Canvas color.Color

	scanner *rasterx.ScannerGV
	dasher  *rasterx.Dasher
}

func NewRaster(w, h int) *Raster {
	r := &Raster{}
	r.resize(w, h)
	return r
}

func (r *Raster) resize(w, h int) {
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	if r.Img != nil && r.Img.Bounds().Dx() == w && r.Img.Bounds().Dy() == h {
		return
	}
	r.Img = image.NewRGBA(image.Rect(0, 0, w, h))
	r.scanner = rasterx.NewScannerGV(w, h, r.Img, r.Img.Bounds())
	r.dasher = rasterx.NewDasher(w, h, r.scanner)
}

func (r *Raster) Clear(canvas vector.Size) {
	r.resize(int(math.Ceil(canvas.W)), int(math.Ceil(canvas.H)))
	bg := r.Canvas
	if bg == nil {
		bg = color.White
	}
	draw.Draw(r.Img, r.Img.Bounds(), &image.Uniform{C: bg}, image.Point{}, draw.Src)
}

func (r *Raster) Image(extent vector.Rect) {
	dst := image.Rect(int(math.Round(extent.X)), int(math.Round(extent.Y)),
		int(math.Round(extent.X+extent.W)), int(math.Round(extent.Y+extent.H)))
	if r.Background == nil {
		// placeholder so the image bounds stay visible
		draw.Draw(r.Img, dst, &image.Uniform{C: color.Gray{Y: 0xee}}, image.Point{}, draw.Src)
		return
	}
	xdraw.ApproxBiLinear.Scale(r.Img, dst, r.Background, r.Background.Bounds(), draw.Over, nil)
}

func (r *Raster) Rect(rc vector.Rect, p Paint) {
	pts := []vector.Pt{rc.Min(), {X: rc.X + rc.W, Y: rc.Y}, rc.Max(), {X: rc.X, Y: rc.Y + rc.H}}
	r.Path(pts, true, p)
}

func (r *Raster) Path(pts []vector.Pt, closed bool, p Paint) {
	if len(pts) == 0 {
		return
	}
	if !p.NoFill && len(pts) > 2 && p.Fill.A > 0 {
		f := &r.dasher.Filler
		f.SetWinding(false)
		f.SetColor(p.Fill)
		f.Start(fx(pts[0]))
		for _, q := range pts[1:] {
			f.Line(fx(q))
		}
		f.Stop(true)
		f.Draw()
		f.Clear()
	}
	if p.Width <= 0 || p.Stroke.A == 0 {
		return
	}
	d := r.dasher
	d.SetStroke(fixed.Int26_6(p.Width*64), 0, rasterx.ButtCap, rasterx.ButtCap, rasterx.RoundGap, rasterx.Round, nil, 0)
	d.SetColor(p.Stroke)
	d.Start(fx(pts[0]))
	for _, q := range pts[1:] {
		d.Line(fx(q))
	}
	d.Stop(closed)
	d.Draw()
	d.Clear()
}

func (r *Raster) Circle(c vector.Pt, rad float64, p Paint) {
	if rad <= 0 {
		return
	}
	pts := make([]vector.Pt, circleSegments)
	for i := range pts {
		a := 2 * math.Pi * float64(i) / circleSegments
		pts[i] = vector.Pt{X: c.X + rad*math.Cos(a), Y: c.Y + rad*math.Sin(a)}
	}
	r.Path(pts, true, p)
}

func (r *Raster) Label(pl textlayout.Placement, box, text vector.Color, spec textlayout.FontSpec) {
	b := pl.Box
	rect := image.Rect(int(math.Round(b.X)), int(math.Round(b.Y)), int(math.Round(b.X+b.W)), int(math.Round(b.Y+b.H)))
	draw.Draw(r.Img, rect, &image.Uniform{C: box}, image.Point{}, draw.Over)
	prov := r.Fonts
	if prov == nil {
		prov = textlayout.BasicProvider{}
	}
	face, _ := prov.Resolve(spec)
	d := &font.Drawer{
		Dst:  r.Img,
		Src:  &image.Uniform{C: text},
		Face: face,
		Dot:  fixed.P(int(math.Round(pl.Baseline.X)), int(math.Round(pl.Baseline.Y))),
	}
	d.DrawString(pl.Text)
}

// Encode writes the current image as PNG.
func (r *Raster) Encode(w io.Writer) error {
	if err := png.Encode(w, r.Img); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	return nil
}

// WritePNG writes the image to path, creating parent directories.
func (r *Raster) WritePNG(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("ensure out dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create png: %w", err)
	}
	if err := r.Encode(f); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close png: %w", err)
	}
	return nil
}

func fx(p vector.Pt) fixed.Point26_6 { return rasterx.ToFixedP(p.X, p.Y) }
