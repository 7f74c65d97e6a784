/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/zalando/go-keyring"

	"annotator/internal/hittest"
)

// memStore keeps secrets in memory for the duration of a test.
type memStore map[string]string

func (m memStore) Get(s, k string) (string, error) {
	v, ok := m[s+"/"+k]
	if !ok {
		return "", keyring.ErrNotFound
	}
	return v, nil
}
func (m memStore) Set(s, k, v string) error { m[s+"/"+k] = v; return nil }
func (m memStore) Delete(s, k string) error { delete(m, s+"/"+k); return nil }

func useMemStore(t *testing.T) memStore {
	t.Helper()
	old := tokenStore
	m := memStore{}
	tokenStore = m
	t.Cleanup(func() { tokenStore = old })
	return m
}

func setenv(t *testing.T, key, val string) {
	t.Helper()
	old, had := os.LookupEnv(key)
	_ = os.Setenv(key, val)
	t.Cleanup(func() {
		if had {
			_ = os.Setenv(key, old)
		} else {
			_ = os.Unsetenv(key)
		}
	})
}

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	useMemStore(t)
	cfg, pw, err := LoadFrom(filepath.Join(t.TempDir(), "none.yaml"))
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if pw != "" {
		t.Fatalf("unexpected password %q", pw)
	}
	d := Defaults()
	if cfg.Engine != d.Engine || cfg.Style != d.Style || cfg.Journal != d.Journal {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}

func TestPartialFileKeepsDefaults(t *testing.T) {
	useMemStore(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := "engine:\n  min_width: 4\n  hit_mode: RASTER\nstyle:\n  strokeStyle: '#00f'\nlogging:\n  level: DEBUG\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, _, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Engine.MinWidth != 4 || cfg.Engine.MinHeight != 10 || cfg.Engine.HitMode != "raster" {
		t.Fatalf("engine section = %+v", cfg.Engine)
	}
	if cfg.Style.StrokeStyle != "#00f" || cfg.Style.ActiveStrokeStyle != "#f00" {
		t.Fatalf("style section = %+v", cfg.Style)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("logging level = %q", cfg.Logging.Level)
	}
	opts := cfg.EngineOptions()
	if opts.Hit.Mode != hittest.Raster || opts.Limits.MinWidth != 4 || opts.DoubleTap != 300*time.Millisecond {
		t.Fatalf("engine options = %+v", opts)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	useMemStore(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("engine:\n  zoom_ratio: 2\n  hit_mode: pixels\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	_, _, err := LoadFrom(path)
	if err == nil || !strings.Contains(err.Error(), "zoom_ratio") || !strings.Contains(err.Error(), "pixels") {
		t.Fatalf("expected both problems reported, got %v", err)
	}
	if err := os.WriteFile(path, []byte("engine: ["), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, _, err := LoadFrom(path); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestEnvOverridesEngineAndJournal(t *testing.T) {
	useMemStore(t)
	setenv(t, EnvReadOnly, "yes")
	setenv(t, EnvHitMode, "Raster")
	setenv(t, EnvJournalDSN, "postgres://db/ann")
	setenv(t, EnvJournalDrv, "pgx")
	cfg, _, err := LoadFrom(filepath.Join(t.TempDir(), "none.yaml"))
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if !cfg.Engine.ReadOnly || cfg.Engine.HitMode != "raster" {
		t.Fatalf("engine overrides not applied: %+v", cfg.Engine)
	}
	if !cfg.Journal.Enabled || cfg.Journal.DSN != "postgres://db/ann" || cfg.Journal.Driver != "pgx" {
		t.Fatalf("journal overrides not applied: %+v", cfg.Journal)
	}
	if name, ok := EnvOverrideFor("journal.dsn"); !ok || name != EnvJournalDSN {
		t.Fatalf("EnvOverrideFor = %q, %v", name, ok)
	}
	if _, ok := EnvOverrideFor("logging.file"); ok {
		t.Fatalf("logging.file is not overridden")
	}
	found := false
	for _, line := range Describe(cfg) {
		if strings.HasPrefix(line, "engine.readonly = true") && strings.HasSuffix(line, "(from "+EnvReadOnly+")") {
			found = true
		}
	}
	if !found {
		t.Fatalf("Describe does not mark the override: %v", Describe(cfg))
	}
}

func TestEnvOverridesLogging(t *testing.T) {
	useMemStore(t)
	setenv(t, EnvLogLevel, "error")
	setenv(t, EnvLogFormat, "json")
	setenv(t, EnvLogSource, "1")
	setenv(t, EnvLogFile, "X:/ann.log")
	cfg, _, err := LoadFrom(filepath.Join(t.TempDir(), "none.yaml"))
	if err != nil {
		t.Fatalf("LoadFrom() error: %v", err)
	}
	if cfg.Logging.Level != "error" || cfg.Logging.Format != "json" || !cfg.Logging.Source || cfg.Logging.File != "X:/ann.log" {
		t.Fatalf("env overrides not applied to logging: %#v", cfg.Logging)
	}
}

func TestSaveRoundTripKeepsPasswordOutOfFile(t *testing.T) {
	store := useMemStore(t)
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	setenv(t, EnvConfig, path)
	cfg := Defaults()
	cfg.Journal = JournalConfig{Enabled: true, Driver: "postgres", DSN: "postgres://db/ann", User: "ann"}
	cfg.Engine.ScrollZoom = true
	if err := Save(cfg, "s3cret"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(raw), "s3cret") {
		t.Fatalf("password leaked into the config file")
	}
	if store[keyringService+"/"+keyringPassword] != "s3cret" {
		t.Fatalf("password not stored in keyring")
	}
	got, pw, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if pw != "s3cret" || !got.Engine.ScrollZoom || got.Journal != cfg.Journal {
		t.Fatalf("round trip mismatch: %+v pw=%q", got, pw)
	}
	if js := got.JournalStore(pw); js.Password != "s3cret" || js.User != "ann" {
		t.Fatalf("journal store = %+v", js)
	}
	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Fatalf("temp files left behind: %v", entries)
	}
	if err := ForgetPassword(); err != nil {
		t.Fatalf("ForgetPassword: %v", err)
	}
	if _, ok := store[keyringService+"/"+keyringPassword]; ok {
		t.Fatalf("password still present")
	}
}

func TestSaveRejectsInvalidConfig(t *testing.T) {
	useMemStore(t)
	cfg := Defaults()
	cfg.Journal.Enabled = true
	if err := SaveTo(filepath.Join(t.TempDir(), "c.yaml"), cfg, ""); err == nil {
		t.Fatalf("expected error for enabled journal without dsn")
	}
}

func TestOSKeyringUsesGoKeyring(t *testing.T) {
	keyring.MockInit()
	k := osKeyring{}
	if err := k.Set("annotator-test", "k", "v"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if v, err := k.Get("annotator-test", "k"); err != nil || v != "v" {
		t.Fatalf("Get = %q, %v", v, err)
	}
	if err := k.Delete("annotator-test", "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
}

func TestSetPassword(t *testing.T) {
	store := useMemStore(t)
	if err := SetPassword(""); err == nil {
		t.Fatalf("empty password must be rejected")
	}
	if err := SetPassword("pw"); err != nil {
		t.Fatalf("SetPassword: %v", err)
	}
	if store[keyringService+"/"+keyringPassword] != "pw" {
		t.Fatalf("password not stored")
	}
}
