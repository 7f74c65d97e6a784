/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package textlayout

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
)

// Fonts is a Provider backed by parsed OpenType fonts. Faces are created once
// per family, weight, slant and pixel size and reused for every label drawn
// afterwards. Unknown families resolve to Fallback.
type Fonts struct {
	// Fallback resolves specs no loaded font matches; nil means BasicProvider.
	Fallback Provider

	mu    sync.Mutex
	fonts map[fontKey]*opentype.Font
	faces map[faceKey]resolved
}

type fontKey struct {
	family string
	weight int
	italic bool
}

type faceKey struct {
	font fontKey
	size float64
}

type resolved struct {
	face    font.Face
	metrics Metrics
}

// NewFonts returns an empty library.
func NewFonts() *Fonts {
	return &Fonts{fonts: make(map[fontKey]*opentype.Font), faces: make(map[faceKey]resolved)}
}

// GoFonts registers the Go fonts as the default label family.
func GoFonts() (*Fonts, error) {
	f := NewFonts()
	for _, v := range []struct {
		weight int
		italic bool
		data   []byte
	}{
		{400, false, goregular.TTF},
		{700, false, gobold.TTF},
		{400, true, goitalic.TTF},
	} {
		if err := f.Add(DefaultFont.Family, v.weight, v.italic, v.data); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// Add parses an OpenType or TrueType font and registers it.
func (f *Fonts) Add(family string, weight int, italic bool, data []byte) error {
	ot, err := opentype.Parse(data)
	if err != nil {
		return fmt.Errorf("parse font %s: %w", family, err)
	}
	k := fontKey{family: strings.ToLower(family), weight: weight, italic: italic}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fonts[k] = ot
	for fk := range f.faces {
		if fk.font == k {
			delete(f.faces, fk)
		}
	}
	return nil
}

// AddFile registers the font stored at path.
func (f *Fonts) AddFile(family string, weight int, italic bool, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read font %s: %w", path, err)
	}
	return f.Add(family, weight, italic, data)
}

// lookup picks the exact match, then the same family with the requested
// slant, then any face of the family.
func (f *Fonts) lookup(spec FontSpec) (fontKey, *opentype.Font) {
	want := fontKey{family: strings.ToLower(spec.Family), weight: spec.Weight, italic: spec.Italic}
	if want.weight == 0 {
		want.weight = 400
	}
	if ot, ok := f.fonts[want]; ok {
		return want, ot
	}
	var (
		best   fontKey
		bestOT *opentype.Font
		score  = -1
	)
	for k, ot := range f.fonts {
		if k.family != want.family {
			continue
		}
		s := 1000 - abs(k.weight-want.weight)
		if k.italic == want.italic {
			s += 1000
		}
		if s > score || (s == score && k.weight < best.weight) {
			best, bestOT, score = k, ot, s
		}
	}
	return best, bestOT
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// Resolve implements Provider.
func (f *Fonts) Resolve(spec FontSpec) (font.Face, Metrics) {
	if spec.SizePx <= 0 {
		spec.SizePx = DefaultFont.SizePx
	}
	if f != nil {
		f.mu.Lock()
		k, ot := f.lookup(spec)
		if ot != nil {
			fk := faceKey{font: k, size: spec.SizePx}
			r, ok := f.faces[fk]
			if !ok {
				// 72dpi makes the size argument pixels
				face, err := opentype.NewFace(ot, &opentype.FaceOptions{Size: spec.SizePx, DPI: 72, Hinting: font.HintingFull})
				if err == nil {
					r = resolved{face: face, metrics: faceMetrics(face)}
					f.faces[fk] = r
					ok = true
				}
			}
			if ok {
				f.mu.Unlock()
				return r.face, r.metrics
			}
		}
		f.mu.Unlock()
	}
	var fb Provider = BasicProvider{}
	if f != nil && f.Fallback != nil {
		fb = f.Fallback
	}
	return fb.Resolve(spec)
}

func faceMetrics(face font.Face) Metrics {
	m := face.Metrics()
	return Metrics{
		Ascent:  float64(m.Ascent.Round()),
		Descent: float64(m.Descent.Round()),
		LineGap: float64(m.Height.Round() - m.Ascent.Round() - m.Descent.Round()),
	}
}
