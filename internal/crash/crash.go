/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package crash turns a panic into a crash report and, when an engine is
// attached, a last snapshot of its annotations.
package crash

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"time"

	applog "annotator/internal/log"
	"annotator/internal/version"
)

// exitFn is used to allow testing of Recover without terminating the test process.
var exitFn = os.Exit

// Snapshotter is what Recover needs from an engine. *engine.Engine
// satisfies it.
type Snapshotter interface {
	Source() string
	DataJSON() ([]byte, error)
}

// Target says where reports go and which engine to snapshot. Both fields
// are optional; reports default to the temp dir.
type Target struct {
	Dir    string
	Engine Snapshotter
}

// Recover captures a panic, logs an error with stacktrace, writes an error
// report file and attempts a crash-safe dump of the current annotations.
//
// Usage: defer crash.Recover(t)
func Recover(t *Target) {
	if r := recover(); r != nil {
		l := applog.WithComponent("crash")
		stack := debug.Stack()
		l.Error("panic recovered", slog.Any("panic", r), slog.String("stack", string(stack)))

		reportPath, _ := writeReport(t, r, stack)
		if t != nil && t.Engine != nil {
			if path, err := writeSnapshot(t); err != nil {
				l.Error("annotation snapshot failed", slog.Any("err", err))
			} else {
				l.Info("annotation snapshot written", slog.String("path", path))
			}
		}

		if _, err := fmt.Fprintf(os.Stderr, "A fatal error occurred. A crash report was saved to: %s\n", reportPath); err != nil {
			l.Error("failed to write crash message to stderr", slog.Any("err", err))
		}
		if _, err := fmt.Fprintf(os.Stderr, "Version: %s\nOS/Arch: %s/%s\n", version.String(), runtime.GOOS, runtime.GOARCH); err != nil {
			l.Error("failed to write version info to stderr", slog.Any("err", err))
		}
		exitFn(2)
	}
}

func reportDir(t *Target) string {
	if t != nil && t.Dir != "" {
		_ = os.MkdirAll(t.Dir, 0o755)
		return t.Dir
	}
	return os.TempDir()
}

func stamp() string { return time.Now().Format("20060102-150405") }

func writeReport(t *Target, panicVal any, stack []byte) (string, error) {
	path := filepath.Join(reportDir(t), fmt.Sprintf("crash-%s.log", stamp()))

	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return path, err
	}
	defer func() {
		if err := f.Close(); err != nil {
			applog.WithComponent("crash").Error("failed to close crash report file", slog.Any("err", err), slog.String("path", path))
		}
	}()

	var buf bytes.Buffer
	_, _ = fmt.Fprintf(&buf, "Annotator Crash Report\n")
	_, _ = fmt.Fprintf(&buf, "Timestamp: %s\n", time.Now().Format(time.RFC3339))
	_, _ = fmt.Fprintf(&buf, "Version: %s\n", version.String())
	_, _ = fmt.Fprintf(&buf, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	if t != nil && t.Engine != nil {
		_, _ = fmt.Fprintf(&buf, "Image: %s\n", t.Engine.Source())
	}
	_, _ = fmt.Fprintf(&buf, "\nPanic: %v\n\n", panicVal)
	_, _ = fmt.Fprintf(&buf, "Stack:\n%s\n", string(stack))

	if _, err := f.Write(buf.Bytes()); err != nil {
		return path, err
	}
	_ = f.Sync()
	return path, nil
}

// writeSnapshot dumps the engine's shape records next to the report. A
// panic in DataJSON itself is swallowed so the report still gets out.
func writeSnapshot(t *Target) (path string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("snapshot panicked: %v", r)
		}
	}()
	data, err := t.Engine.DataJSON()
	if err != nil {
		return "", err
	}
	path = filepath.Join(reportDir(t), fmt.Sprintf("crash-%s.json", stamp()))
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", err
	}
	return path, os.Rename(tmp, path)
}
