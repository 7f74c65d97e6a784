/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"

	"annotator/internal/config"
	"annotator/internal/crash"
	"annotator/internal/engine"
	"annotator/internal/imageio"
	"annotator/internal/journal"
	applog "annotator/internal/log"
	"annotator/internal/script"
	"annotator/internal/textlayout"
)

var errJournalDisabled = errors.New("journal disabled; enable it in the config or set " + config.EnvJournalDSN)

func runValidate(path string) int {
	s, errs := script.Load(path)
	if len(errs) > 0 {
		for _, e := range errs {
			fmt.Println(e.Error())
		}
		return 1
	}
	fmt.Printf("%s: ok, %d steps\n", path, len(s.Steps))
	return 0
}

func resolve(base, src string) string {
	if filepath.IsAbs(src) {
		return src
	}
	return filepath.Join(base, src)
}

// background loads the image for snapshots; a missing file only costs the
// background.
func background(path string) (image.Image, imageio.Info) {
	img, info, err := imageio.Load(path)
	if err != nil {
		applog.WithComponent("cli").Warn("background image unavailable", slog.String("path", path), slog.Any("err", err))
		return nil, imageio.Info{}
	}
	return img, info
}

func openJournal(ctx context.Context, cfg config.AppConfig, pw string) (*journal.Journal, error) {
	if !cfg.Journal.Enabled {
		return nil, errJournalDisabled
	}
	return journal.Open(ctx, cfg.JournalStore(pw))
}

func runReplay(cfg config.AppConfig, pw string, target *crash.Target, path, outDir string) (int, error) {
	l := applog.WithComponent("cli")
	s, errs := script.Load(path)
	if len(errs) > 0 {
		for _, e := range errs {
			fmt.Println(e.Error())
		}
		return 1, nil
	}
	base := filepath.Dir(path)
	if outDir == "" {
		outDir = base
	}
	var bg image.Image
	if s.Image != nil {
		bg, _ = background(resolve(base, s.Image.Src))
	}

	r := &script.Runner{Options: cfg.EngineOptions(), BaseDir: base, Output: script.FileOutput(outDir, bg), Fonts: labelFonts()}

	ctx := context.Background()
	var sess *journal.Session
	if cfg.Journal.Enabled {
		j, err := openJournal(ctx, cfg, pw)
		if err != nil {
			return 1, err
		}
		defer j.Close()
		st := journal.Start{Data: s.Data}
		if s.Image != nil {
			st.Source = s.Image.Src
			st.Width, st.Height = s.Image.Width, s.Image.Height
			if st.Width <= 0 || st.Height <= 0 {
				if info, err := imageio.Probe(resolve(base, s.Image.Src)); err == nil {
					st.Width, st.Height = info.Size()
				}
			}
		}
		if sess, err = j.Begin(ctx, st); err != nil {
			return 1, err
		}
		r.Recorder = sess
	}

	res, err := r.Run(ctx, s)
	if res.Engine != nil {
		target.Engine = res.Engine
	}
	if sess != nil {
		for _, n := range res.Notifications {
			if nerr := sess.Notify(ctx, n); nerr != nil {
				l.Warn("notification not recorded", slog.Any("err", nerr))
			}
		}
		fmt.Printf("recorded as session %d\n", sess.ID())
	}
	if err != nil {
		return 1, err
	}
	fmt.Printf("%s: %d steps, %d notifications, %d shapes\n", path, res.Steps, len(res.Notifications), len(res.Engine.Shapes()))
	for _, snap := range res.Snapshots {
		fmt.Println("snapshot:", snap)
	}
	for _, f := range res.Failures {
		fmt.Println("FAIL", f.Error())
	}
	if !res.OK() {
		return 1, nil
	}
	return 0, nil
}

// snapshot writes the engine's frame to out, picking the format from the
// extension.
// labelFonts returns the Go fonts, or nil so engines keep the fixed face.
func labelFonts() textlayout.Provider {
	f, err := textlayout.GoFonts()
	if err != nil {
		applog.WithComponent("cli").Warn("label fonts unavailable", slog.Any("err", err))
		return nil
	}
	return f
}

func snapshot(e *engine.Engine, bg image.Image, out string) error {
	ext := filepath.Ext(out)
	format := strings.TrimPrefix(strings.ToLower(ext), ".")
	if format == "" {
		format = "png"
	}
	label := strings.TrimSuffix(filepath.Base(out), ext)
	return script.FileOutput(filepath.Dir(out), bg)(label, format, e.Frame())
}

func runRender(cfg config.AppConfig, target *crash.Target, imgPath, dataPath, out string) error {
	img, info, err := imageio.Load(imgPath)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(dataPath)
	if err != nil {
		return err
	}
	w, h := info.Size()
	opts := cfg.EngineOptions()
	opts.Width, opts.Height = w, h
	e := engine.New(opts)
	e.SetFonts(labelFonts())
	target.Engine = e
	if err := e.ImageLoaded(info.Source, w, h); err != nil {
		return err
	}
	rejected, err := e.SetDataJSON(data)
	if err != nil {
		return err
	}
	e.Tick()
	if err := snapshot(e, img, out); err != nil {
		return err
	}
	fmt.Printf("rendered %d shapes to %s", len(e.Shapes()), out)
	if len(rejected) > 0 {
		fmt.Printf(" (%d records rejected)", len(rejected))
	}
	fmt.Println()
	return nil
}

func runSessions(cfg config.AppConfig, pw string) error {
	ctx := context.Background()
	j, err := openJournal(ctx, cfg, pw)
	if err != nil {
		return err
	}
	defer j.Close()
	list, err := j.Sessions(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tIMAGE\tSIZE\tEVENTS")
	for _, s := range list {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%gx%g\t%d\n", s.ID, s.StartedAt.Format("2006-01-02 15:04:05"), s.Source, s.Width, s.Height, s.Events)
	}
	return tw.Flush()
}

func runSession(cfg config.AppConfig, pw string, target *crash.Target, idArg, out string) error {
	id, err := strconv.ParseInt(idArg, 10, 64)
	if err != nil {
		return fmt.Errorf("session id %q: %w", idArg, err)
	}
	ctx := context.Background()
	j, err := openJournal(ctx, cfg, pw)
	if err != nil {
		return err
	}
	defer j.Close()
	info, err := j.Session(ctx, id)
	if err != nil {
		return err
	}
	e := engine.New(cfg.EngineOptions())
	e.SetFonts(labelFonts())
	target.Engine = e
	n, err := j.Replay(ctx, id, e)
	if err != nil {
		return err
	}
	fmt.Printf("session %d: replayed %d events over %s, %d shapes\n", id, n, info.Source, len(e.Shapes()))
	if out == "" {
		return nil
	}
	bg, _ := background(info.Source)
	return snapshot(e, bg, out)
}

func runConfig(cfg config.AppConfig, sub string) error {
	switch sub {
	case "":
		if p, err := config.ConfigPath(); err == nil {
			fmt.Println("# " + p)
		}
		for _, line := range config.Describe(cfg) {
			fmt.Println(line)
		}
		return nil
	case "path":
		p, err := config.ConfigPath()
		if err != nil {
			return err
		}
		fmt.Println(p)
		return nil
	case "password":
		fmt.Print("Journal password: ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return err
		}
		if err := config.SetPassword(strings.TrimRight(line, "\r\n")); err != nil {
			return err
		}
		fmt.Println("password stored in the OS keyring")
		return nil
	case "forget":
		return config.ForgetPassword()
	}
	return fmt.Errorf("unknown config command %q", sub)
}
