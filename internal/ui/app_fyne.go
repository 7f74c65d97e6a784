//go:build fyne && cgo

/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package ui

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	fstorage "fyne.io/fyne/v2/storage"
	"fyne.io/fyne/v2/widget"

	"annotator/internal/crash"
	"annotator/internal/engine"
	"annotator/internal/journal"
	applog "annotator/internal/log"
	"annotator/internal/shape"
	"annotator/internal/version"
)

var imageExts = []string{".png", ".jpg", ".jpeg", ".gif", ".bmp", ".tif", ".tiff", ".webp"}

// Run opens the annotation window and blocks until it is closed.
func Run(opts Options) error {
	l := applog.WithComponent("ui")
	l.Info("starting UI", slog.String("version", version.String()))

	host := NewHost(opts.Config.EngineOptions())
	defer crash.Recover(&crash.Target{Dir: opts.CrashDir, Engine: host.Engine()})

	var jr *journal.Journal
	if opts.Config.Journal.Enabled {
		var err error
		jr, err = journal.Open(context.Background(), opts.Config.JournalStore(opts.Password))
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer func() {
			if err := jr.Close(); err != nil {
				l.Warn("close journal", slog.Any("err", err))
			}
		}()
	}

	fyneApp := app.NewWithID("annotator")
	w := fyneApp.NewWindow("Annotator")
	prefs := fyneApp.Preferences()
	winW := prefs.IntWithFallback("window.width", 1200)
	winH := prefs.IntWithFallback("window.height", 800)
	if winW < 800 {
		winW = 800
	}
	if winH < 600 {
		winH = 600
	}
	w.Resize(fyne.NewSize(float32(winW), float32(winH)))

	status := widget.NewLabel("Open an image to start")
	cv := NewAnnotCanvas(host)

	host.Engine().SubscribeAll(func(n engine.Notification) {
		switch n.Name {
		case engine.Warn:
			status.SetText(n.Message)
		case engine.Select:
			if n.Shape == nil {
				status.SetText("Nothing selected")
			} else {
				status.SetText(fmt.Sprintf("Selected %s #%d", n.Shape.Kind, n.Shape.Index))
			}
		case engine.Add:
			status.SetText(fmt.Sprintf("Added %s #%d", n.Shape.Kind, n.Shape.Index))
		case engine.Delete:
			status.SetText(fmt.Sprintf("Deleted %s #%d", n.Shape.Kind, n.Shape.Index))
		case engine.Load:
			status.SetText("Loaded " + filepath.Base(n.Source))
		}
	})

	startRecording := func() {
		if jr == nil {
			return
		}
		sess, err := host.Record(context.Background(), jr)
		if err != nil {
			l.Error("start journal session", slog.Any("err", err))
			dialog.ShowError(err, w)
			return
		}
		l.Info("journal session started", slog.Int64("session", sess.ID()))
	}

	openImage := func(path string) {
		if err := host.OpenImage(path); err != nil {
			l.Error("open image failed", slog.String("path", path), slog.Any("err", err))
			dialog.ShowError(err, w)
			return
		}
		w.SetTitle("Annotator - " + filepath.Base(path))
		startRecording()
		cv.Refresh()
	}
	openData := func(path string) {
		n, err := host.OpenData(path)
		if err != nil {
			l.Error("open annotations failed", slog.String("path", path), slog.Any("err", err))
			dialog.ShowError(err, w)
			return
		}
		if n > 0 {
			status.SetText(fmt.Sprintf("%d invalid records skipped", n))
		}
		cv.Refresh()
	}

	// Toolbar
	toolNames := []string{"select"}
	for k := shape.Rect; k <= shape.Circle; k++ {
		toolNames = append(toolNames, k.String())
	}
	toolSelect := widget.NewSelect(toolNames, func(s string) {
		k, err := shape.ParseKind(s)
		if err != nil {
			k = shape.None
		}
		host.Do(func(e *engine.Engine) { e.SetTool(k) })
		l.Info("tool selected", slog.String("tool", s))
	})
	toolSelect.SetSelected("select")

	eo := opts.Config.Engine
	toggle := func(label string, on bool, set func(*engine.Engine, bool)) *widget.Check {
		c := widget.NewCheck(label, nil)
		c.SetChecked(on)
		c.OnChanged = func(v bool) {
			if host.Do(func(e *engine.Engine) { set(e, v) }) {
				cv.Refresh()
			}
		}
		return c
	}
	readOnly := toggle("Read-only", eo.ReadOnly, (*engine.Engine).SetReadOnly)
	lock := toggle("Lock", eo.Lock, (*engine.Engine).SetLock)
	focus := toggle("Focus", eo.Focus, (*engine.Engine).SetFocus)
	scroll := toggle("Scroll zoom", eo.ScrollZoom, (*engine.Engine).SetScrollZoom)

	action := func(label string, fn func(*engine.Engine)) *widget.Button {
		return widget.NewButton(label, func() {
			if host.Do(fn) {
				cv.Refresh()
			}
		})
	}
	toolbar := container.NewHBox(
		widget.NewLabel("Tool"), toolSelect,
		widget.NewSeparator(),
		action("Undo", func(e *engine.Engine) { e.Undo() }),
		action("Redo", func(e *engine.Engine) { e.Redo() }),
		action("Zoom +", func(e *engine.Engine) { e.ZoomIn() }),
		action("Zoom -", func(e *engine.Engine) { e.ZoomOut() }),
		action("Fit", func(e *engine.Engine) {
			if err := e.Fit(); err != nil {
				l.Debug("fit", slog.Any("err", err))
			}
		}),
		action("Delete", func(e *engine.Engine) {
			if s := e.Active(); s != nil {
				e.DeleteByIndex(s.Index)
			}
		}),
		widget.NewSeparator(),
		readOnly, lock, focus, scroll,
	)

	// Menus
	openImageItem := fyne.NewMenuItem("Open Image…", func() {
		fd := dialog.NewFileOpen(func(rc fyne.URIReadCloser, err error) {
			if err != nil {
				l.Error("open dialog error", slog.Any("err", err))
				return
			}
			if rc == nil {
				return
			}
			_ = rc.Close()
			openImage(rc.URI().Path())
		}, w)
		fd.SetFilter(fstorage.NewExtensionFileFilter(imageExts))
		fd.Show()
	})
	openDataItem := fyne.NewMenuItem("Open Annotations…", func() {
		fd := dialog.NewFileOpen(func(rc fyne.URIReadCloser, err error) {
			if err != nil || rc == nil {
				return
			}
			_ = rc.Close()
			openData(rc.URI().Path())
		}, w)
		fd.SetFilter(fstorage.NewExtensionFileFilter([]string{".json"}))
		fd.Show()
	})
	saveDataItem := fyne.NewMenuItem("Save Annotations…", func() {
		fd := dialog.NewFileSave(func(wc fyne.URIWriteCloser, err error) {
			if err != nil || wc == nil {
				return
			}
			_ = wc.Close()
			path := wc.URI().Path()
			if err := host.SaveData(path); err != nil {
				l.Error("save annotations failed", slog.Any("err", err))
				dialog.ShowError(err, w)
				return
			}
			status.SetText("Saved " + filepath.Base(path))
		}, w)
		fd.SetFileName("annotations.json")
		fd.Show()
	})
	exportItem := fyne.NewMenuItem("Export…", func() {
		fd := dialog.NewFileSave(func(wc fyne.URIWriteCloser, err error) {
			if err != nil || wc == nil {
				return
			}
			_ = wc.Close()
			path := wc.URI().Path()
			if err := host.Export(path); err != nil {
				l.Error("export failed", slog.Any("err", err))
				dialog.ShowError(err, w)
				return
			}
			status.SetText("Exported " + filepath.Base(path))
		}, w)
		fd.SetFileName("annotated.png")
		fd.Show()
	})
	aboutItem := fyne.NewMenuItem("About", func() {
		dialog.ShowInformation("About", "Annotator "+version.String(), w)
	})
	fileMenu := fyne.NewMenu("File", openImageItem, openDataItem, fyne.NewMenuItemSeparator(), saveDataItem, exportItem)
	helpMenu := fyne.NewMenu("Help", aboutItem)
	w.SetMainMenu(fyne.NewMainMenu(fileMenu, helpMenu))

	w.SetContent(container.NewBorder(toolbar, status, nil, nil, cv))

	if p := strings.TrimSpace(opts.Image); p != "" {
		openImage(p)
	}
	if p := strings.TrimSpace(opts.Data); p != "" {
		openData(p)
	}

	w.SetCloseIntercept(func() {
		sz := w.Canvas().Size()
		prefs.SetInt("window.width", int(sz.Width))
		prefs.SetInt("window.height", int(sz.Height))
		host.StopRecording()
		w.Close()
	})
	w.ShowAndRun()
	return nil
}
