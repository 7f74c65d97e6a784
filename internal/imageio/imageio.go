/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package imageio loads background images and reports their natural size.
// PNG, JPEG, GIF, BMP, TIFF and WebP are recognised by content, not by file
// extension.
package imageio

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	applog "annotator/internal/log"
)

var (
	// ErrUnsupportedFormat is returned for content no registered decoder accepts.
	ErrUnsupportedFormat = errors.New("imageio: unsupported format")
	// ErrEmptyData is returned for a zero-length source.
	ErrEmptyData = errors.New("imageio: empty data")
)

// Info describes a decoded image header.
type Info struct {
	Source string
	Format string
	Width  int
	Height int
}

// Size returns the natural size as floats, the unit the viewport works in.
func (i Info) Size() (w, h float64) { return float64(i.Width), float64(i.Height) }

// Probe reads only the header of the image at path.
func Probe(path string) (Info, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return Info{}, fmt.Errorf("imageio: open: %w", err)
	}
	defer func() { _ = f.Close() }()
	info, err := ProbeReader(f)
	if err != nil {
		return Info{}, fmt.Errorf("%s: %w", path, err)
	}
	info.Source = path
	return info, nil
}

// ProbeReader reads an image header from r.
func ProbeReader(r io.Reader) (Info, error) {
	cfg, format, err := image.DecodeConfig(r)
	if err != nil {
		return Info{}, wrap(err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return Info{}, fmt.Errorf("imageio: %s image has no pixels (%dx%d)", format, cfg.Width, cfg.Height)
	}
	return Info{Format: format, Width: cfg.Width, Height: cfg.Height}, nil
}

// Load decodes the whole image at path.
func Load(path string) (image.Image, Info, error) {
	b, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, Info{}, fmt.Errorf("imageio: read: %w", err)
	}
	img, info, err := Decode(b)
	if err != nil {
		return nil, Info{}, fmt.Errorf("%s: %w", path, err)
	}
	info.Source = path
	applog.WithComponent("imageio").Debug("image decoded",
		slog.String("src", path), slog.String("format", info.Format),
		slog.Int("w", info.Width), slog.Int("h", info.Height))
	return img, info, nil
}

// Decode decodes an in-memory image.
func Decode(data []byte) (image.Image, Info, error) {
	if len(data) == 0 {
		return nil, Info{}, ErrEmptyData
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, Info{}, wrap(err)
	}
	b := img.Bounds()
	if b.Empty() {
		return nil, Info{}, fmt.Errorf("imageio: %s image has no pixels", format)
	}
	return img, Info{Format: format, Width: b.Dx(), Height: b.Dy()}, nil
}

func wrap(err error) error {
	if errors.Is(err, image.ErrFormat) {
		return ErrUnsupportedFormat
	}
	return fmt.Errorf("imageio: decode: %w", err)
}
