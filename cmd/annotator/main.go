/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"annotator/internal/config"
	"annotator/internal/crash"
	applog "annotator/internal/log"
	"annotator/internal/ui"
	"annotator/internal/version"
)

func usage() {
	fmt.Println("Annotator: image annotation overlay engine")
	fmt.Printf("Version: %s\n", version.String())
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  annotator version|-v|--version              Show version")
	fmt.Println("  annotator validate <script.json>             Check a replay script against its schema")
	fmt.Println("  annotator replay <script.json> [<outDir>]    Run a replay script; snapshots go to <outDir>")
	fmt.Println("  annotator render <image> <shapes.json> <out> Draw records over an image into <out>.png|.pdf")
	fmt.Println("  annotator sessions                           List recorded journal sessions")
	fmt.Println("  annotator session <id> [<out>]               Replay a journal session, optionally rendering it")
	fmt.Println("  annotator config [path|password|forget]      Show effective config, its path, or manage the journal password")
	fmt.Println("  annotator ui [<image> [<shapes.json>]]       Launch desktop UI (build with -tags fyne for full UI)")
}

func crashDir() string {
	if d, err := os.UserCacheDir(); err == nil {
		return filepath.Join(d, "annotator", "crash")
	}
	return ""
}

func fail(l *slog.Logger, msg string, err error) {
	l.Error(msg, slog.Any("err", err))
	fmt.Println("Error:", err)
	os.Exit(1)
}

func main() {
	// logging from env until the config is read
	applog.Init(applog.FromEnv())
	l := applog.WithComponent("cli")
	target := &crash.Target{Dir: crashDir()}
	defer crash.Recover(target)

	cfg, pw, err := config.Load()
	if err != nil {
		fail(l, "load config failed", err)
	}
	applog.Init(applog.Options{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		AddSource: cfg.Logging.Source,
		File:      cfg.Logging.File,
	})
	l = applog.WithComponent("cli")

	args := os.Args
	l.Debug("start", slog.Int("args", len(args)))
	if len(args) < 2 {
		usage()
		return
	}
	switch args[1] {
	case "version", "--version", "-v":
		fmt.Println("Annotator")
		fmt.Println(version.String())
	case "validate":
		if len(args) < 3 {
			fmt.Println("validate requires <script.json>")
			usage()
			os.Exit(2)
		}
		os.Exit(runValidate(args[2]))
	case "replay":
		if len(args) < 3 {
			fmt.Println("replay requires <script.json>")
			usage()
			os.Exit(2)
		}
		out := ""
		if len(args) >= 4 {
			out = args[3]
		}
		code, err := runReplay(cfg, pw, target, args[2], out)
		if err != nil {
			fail(l, "replay failed", err)
		}
		os.Exit(code)
	case "render":
		if len(args) < 5 {
			fmt.Println("render requires <image> <shapes.json> <out>")
			usage()
			os.Exit(2)
		}
		if err := runRender(cfg, target, args[2], args[3], args[4]); err != nil {
			fail(l, "render failed", err)
		}
	case "sessions":
		if err := runSessions(cfg, pw); err != nil {
			fail(l, "list sessions failed", err)
		}
	case "session":
		if len(args) < 3 {
			fmt.Println("session requires <id>")
			usage()
			os.Exit(2)
		}
		out := ""
		if len(args) >= 4 {
			out = args[3]
		}
		if err := runSession(cfg, pw, target, args[2], out); err != nil {
			fail(l, "session replay failed", err)
		}
	case "config":
		sub := ""
		if len(args) >= 3 {
			sub = args[2]
		}
		if err := runConfig(cfg, sub); err != nil {
			fail(l, "config failed", err)
		}
	case "ui":
		o := ui.Options{Config: cfg, Password: pw, CrashDir: target.Dir}
		if len(args) >= 3 {
			o.Image = args[2]
		}
		if len(args) >= 4 {
			o.Data = args[3]
		}
		if err := ui.Run(o); err != nil {
			fmt.Println("Error:", err)
			os.Exit(1)
		}
	default:
		usage()
		os.Exit(2)
	}
}
