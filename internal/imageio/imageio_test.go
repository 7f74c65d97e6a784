/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package imageio

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

func sample(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(1, 1, color.RGBA{R: 200, A: 255})
	return img
}

func TestProbeFormats(t *testing.T) {
	dir := t.TempDir()
	enc := map[string]func(*bytes.Buffer, image.Image) error{
		"png":  func(b *bytes.Buffer, m image.Image) error { return png.Encode(b, m) },
		"bmp":  func(b *bytes.Buffer, m image.Image) error { return bmp.Encode(b, m) },
		"tiff": func(b *bytes.Buffer, m image.Image) error { return tiff.Encode(b, m, nil) },
	}
	for name, fn := range enc {
		var buf bytes.Buffer
		if err := fn(&buf, sample(32, 24)); err != nil {
			t.Fatalf("encode %s: %v", name, err)
		}
		// extension is deliberately wrong: detection goes by content
		path := filepath.Join(dir, name+".img")
		if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
			t.Fatal(err)
		}
		info, err := Probe(path)
		if err != nil {
			t.Fatalf("Probe %s: %v", name, err)
		}
		if info.Format != name || info.Width != 32 || info.Height != 24 || info.Source != path {
			t.Errorf("Probe %s = %+v", name, info)
		}
		if w, h := info.Size(); w != 32 || h != 24 {
			t.Errorf("Size = %vx%v", w, h)
		}
	}
}

func TestLoadDecodesPixels(t *testing.T) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, sample(8, 4)); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "bg.png")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	img, info, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if info.Width != 8 || info.Height != 4 {
		t.Fatalf("info = %+v", info)
	}
	if r, _, _, _ := img.At(1, 1).RGBA(); r>>8 != 200 {
		t.Fatalf("pixel not decoded, r=%d", r>>8)
	}
}

func TestUnsupportedAndEmpty(t *testing.T) {
	if _, _, err := Decode(nil); !errors.Is(err, ErrEmptyData) {
		t.Fatalf("Decode(nil) err = %v", err)
	}
	if _, _, err := Decode([]byte("not an image")); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("Decode(text) err = %v", err)
	}
	if _, err := ProbeReader(bytes.NewReader([]byte("GIF8"))); err == nil {
		t.Fatalf("expected error for a truncated header")
	}
	if _, err := Probe(filepath.Join(t.TempDir(), "missing.png")); err == nil {
		t.Fatalf("expected error for a missing file")
	}
}
