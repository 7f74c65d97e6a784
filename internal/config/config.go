/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package config holds the user-editable settings of the annotator: engine
// limits and flags, default styles, the session journal and logging. The
// file lives in the user config directory as YAML; environment variables
// are read-only overrides applied on every Load. The journal password never
// touches the file; it is kept in the OS keyring.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"annotator/internal/engine"
	"annotator/internal/hittest"
	"annotator/internal/journal"
	"annotator/internal/render"
	"annotator/internal/shape"
	"annotator/internal/undo"
	"annotator/internal/viewport"
)

// currentVersion is bumped when the file layout changes incompatibly.
const currentVersion = 1

type EngineConfig struct {
	Width         float64 `yaml:"width"`
	Height        float64 `yaml:"height"`
	MinWidth      float64 `yaml:"min_width"`
	MinHeight     float64 `yaml:"min_height"`
	MinRadius     float64 `yaml:"min_radius"`
	CtrlRadius    float64 `yaml:"ctrl_radius"`
	LineHitWidth  float64 `yaml:"line_hit_width"`
	DoubleTapMs   int     `yaml:"double_tap_ms"`
	ZoomRatio     float64 `yaml:"zoom_ratio"`
	MinImageSide  float64 `yaml:"min_image_side"`
	MaxZoomFactor float64 `yaml:"max_zoom_factor"`
	HitMode       string  `yaml:"hit_mode"` // "analytic" | "raster"
	ReadOnly      bool    `yaml:"readonly"`
	Lock          bool    `yaml:"lock"`
	Focus         bool    `yaml:"focus"`
	ScrollZoom    bool    `yaml:"scroll_zoom"`
	UndoMaxBytes  int     `yaml:"undo_max_bytes"`
	UndoMaxSteps  int     `yaml:"undo_max_steps"`
	UndoCoalesce  int     `yaml:"undo_coalesce_ms"`
}

type JournalConfig struct {
	Enabled bool   `yaml:"enabled"`
	Driver  string `yaml:"driver"` // "sqlite" | "postgres"
	DSN     string `yaml:"dsn"`
	User    string `yaml:"user"`
	// Password is not stored on disk; it lives in the OS keychain.
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Source bool   `yaml:"source"`
	File   string `yaml:"file"`
}

type AppConfig struct {
	ConfigVersion int           `yaml:"config_version"`
	Engine        EngineConfig  `yaml:"engine"`
	Style         render.Styles `yaml:"style"`
	Journal       JournalConfig `yaml:"journal"`
	Logging       LoggingConfig `yaml:"logging"`
}

// Defaults returns the application defaults.
func Defaults() AppConfig {
	l := shape.DefaultLimits
	h := hittest.DefaultOptions()
	z := viewport.DefaultOptions()
	return AppConfig{
		ConfigVersion: currentVersion,
		Engine: EngineConfig{
			Width: 800, Height: 600,
			MinWidth: l.MinWidth, MinHeight: l.MinHeight, MinRadius: l.MinRadius,
			CtrlRadius: h.CtrlRadius, LineHitWidth: h.LineHitWidth,
			DoubleTapMs: 300,
			ZoomRatio:   z.Ratio, MinImageSide: z.MinImageSide, MaxZoomFactor: z.MaxZoomFactor,
			HitMode:      "analytic",
			UndoMaxBytes: 16 << 20,
		},
		Style:   render.DefaultStyles(),
		Journal: JournalConfig{Driver: "sqlite"},
		Logging: LoggingConfig{Level: "info", Format: "console"},
	}
}

// Env var names used as overrides.
const (
	EnvConfig     = "ANN_CONFIG"
	EnvReadOnly   = "ANN_READONLY"
	EnvLock       = "ANN_LOCK"
	EnvFocus      = "ANN_FOCUS"
	EnvScrollZoom = "ANN_SCROLL_ZOOM"
	EnvHitMode    = "ANN_HIT_MODE"
	EnvJournal    = "ANN_JOURNAL"
	EnvJournalDrv = "ANN_JOURNAL_DRIVER"
	EnvJournalDSN = "ANN_JOURNAL_DSN"
	EnvJournalUsr = "ANN_JOURNAL_USER"
	// EnvLogLevel Logging envs
	EnvLogLevel  = "ANN_LOG_LEVEL"
	EnvLogFormat = "ANN_LOG_FORMAT"
	EnvLogSource = "ANN_LOG_SOURCE"
	EnvLogFile   = "ANN_LOG_FILE"
)

// Service/keys for OS keyring.
const (
	keyringService  = "annotator"
	keyringPassword = "journal_password"
)

// tokenStore abstracts keyring, so we can stub in tests.
var tokenStore TokenStore = osKeyring{}

type TokenStore interface {
	Get(service, key string) (string, error)
	Set(service, key, value string) error
	Delete(service, key string) error
}

// osKeyring forwards to the functions installed by keyring_real.go or
// keyring_stub.go depending on build tags.
type osKeyring struct{}

func (osKeyring) Get(service, key string) (string, error) { return keyringGet(service, key) }
func (osKeyring) Set(service, key, value string) error    { return keyringSet(service, key, value) }
func (osKeyring) Delete(service, key string) error        { return keyringDelete(service, key) }

var (
	keyringGet    func(service, key string) (string, error)
	keyringSet    func(service, key, value string) error
	keyringDelete func(service, key string) error
)

// ConfigPath returns the per-user config file path. ANN_CONFIG overrides it.
func ConfigPath() (string, error) {
	if p := strings.TrimSpace(os.Getenv(EnvConfig)); p != "" {
		return p, nil
	}
	base, err := os.UserConfigDir()
	if err != nil || base == "" {
		return "", errors.New("cannot resolve config directory")
	}
	return filepath.Join(base, "annotator", "config.yaml"), nil
}

// Load reads the user config file (if present), applies defaults and merges
// environment overrides. The journal password is read from the keyring and
// returned separately.
func Load() (AppConfig, string, error) {
	path, err := ConfigPath()
	if err != nil {
		return Defaults(), "", err
	}
	return LoadFrom(path)
}

// LoadFrom is Load for an explicit file path. A missing file is not an error.
func LoadFrom(path string) (AppConfig, string, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Defaults(), "", fmt.Errorf("parse %s: %w", path, err)
		}
	case !errors.Is(err, os.ErrNotExist):
		return cfg, "", fmt.Errorf("read %s: %w", path, err)
	}
	normalize(&cfg)
	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, "", fmt.Errorf("%s: %w", path, err)
	}
	pw, _ := tokenStore.Get(keyringService, keyringPassword)
	return cfg, pw, nil
}

// Save writes the user config YAML and persists the password into the OS
// keyring (if non-empty).
func Save(cfg AppConfig, password string) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return SaveTo(path, cfg, password)
}

// SaveTo writes cfg to path atomically: a temp file in the same directory
// is renamed over the old one.
func SaveTo(path string, cfg AppConfig, password string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".config-*.yaml")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if password != "" {
		if err := tokenStore.Set(keyringService, keyringPassword, password); err != nil {
			return err
		}
	}
	return nil
}

// SetPassword stores the journal password in the keyring without touching
// the config file.
func SetPassword(password string) error {
	if password == "" {
		return errors.New("empty password")
	}
	return tokenStore.Set(keyringService, keyringPassword, password)
}

// ForgetPassword removes the journal password from the keyring.
func ForgetPassword() error { return tokenStore.Delete(keyringService, keyringPassword) }

func normalize(cfg *AppConfig) {
	if cfg.ConfigVersion == 0 {
		cfg.ConfigVersion = currentVersion
	}
	cfg.Engine.HitMode = strings.ToLower(strings.TrimSpace(cfg.Engine.HitMode))
	cfg.Journal.Driver = strings.ToLower(strings.TrimSpace(cfg.Journal.Driver))
	cfg.Logging.Level = strings.ToLower(strings.TrimSpace(cfg.Logging.Level))
	cfg.Logging.Format = strings.ToLower(strings.TrimSpace(cfg.Logging.Format))
	cfg.Logging.File = strings.TrimSpace(cfg.Logging.File)
}

// Validate checks values the engine cannot work with.
func (c AppConfig) Validate() error {
	e := c.Engine
	var errs []error
	if e.Width <= 0 || e.Height <= 0 {
		errs = append(errs, fmt.Errorf("engine: canvas size must be positive, got %gx%g", e.Width, e.Height))
	}
	if e.MinWidth < 0 || e.MinHeight < 0 || e.MinRadius < 0 {
		errs = append(errs, errors.New("engine: minimum sizes must not be negative"))
	}
	if e.ZoomRatio <= 0 || e.ZoomRatio >= 1 {
		errs = append(errs, fmt.Errorf("engine: zoom_ratio must be in (0,1), got %g", e.ZoomRatio))
	}
	if _, err := hittest.ParseMode(e.HitMode); err != nil {
		errs = append(errs, fmt.Errorf("engine: %w", err))
	}
	if _, err := journal.ParseDialect(c.Journal.Driver); err != nil {
		errs = append(errs, err)
	}
	if c.Journal.Enabled && strings.TrimSpace(c.Journal.DSN) == "" {
		errs = append(errs, errors.New("journal: dsn is required when enabled"))
	}
	return errors.Join(errs...)
}

// EngineOptions converts the engine and style sections into engine options.
func (c AppConfig) EngineOptions() engine.Options {
	e := c.Engine
	mode, _ := hittest.ParseMode(e.HitMode)
	return engine.Options{
		Width:      e.Width,
		Height:     e.Height,
		Limits:     shape.Limits{MinWidth: e.MinWidth, MinHeight: e.MinHeight, MinRadius: e.MinRadius},
		Hit:        hittest.Options{Mode: mode, CtrlRadius: e.CtrlRadius, LineHitWidth: e.LineHitWidth},
		Zoom:       viewport.Options{Ratio: e.ZoomRatio, MinImageSide: e.MinImageSide, MaxZoomFactor: e.MaxZoomFactor},
		DoubleTap:  time.Duration(e.DoubleTapMs) * time.Millisecond,
		ReadOnly:   e.ReadOnly,
		Lock:       e.Lock,
		Focus:      e.Focus,
		ScrollZoom: e.ScrollZoom,
		Styles:     c.Style,
		Undo: undo.Config{
			MaxBytes:    e.UndoMaxBytes,
			MaxPerKey:   e.UndoMaxSteps,
			MinInterval: time.Duration(e.UndoCoalesce) * time.Millisecond,
		},
	}
}

// JournalStore converts the journal section into store settings.
func (c AppConfig) JournalStore(password string) journal.Config {
	return journal.Config{Driver: c.Journal.Driver, DSN: c.Journal.DSN, User: c.Journal.User, Password: password}
}

func envBool(v string) bool {
	lv := strings.ToLower(v)
	return lv == "1" || lv == "true" || lv == "on" || lv == "yes"
}

func applyEnvOverrides(cfg *AppConfig) {
	if v := strings.TrimSpace(os.Getenv(EnvReadOnly)); v != "" {
		cfg.Engine.ReadOnly = envBool(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLock)); v != "" {
		cfg.Engine.Lock = envBool(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvFocus)); v != "" {
		cfg.Engine.Focus = envBool(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvScrollZoom)); v != "" {
		cfg.Engine.ScrollZoom = envBool(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvHitMode)); v != "" {
		cfg.Engine.HitMode = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvJournal)); v != "" {
		cfg.Journal.Enabled = envBool(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvJournalDrv)); v != "" {
		cfg.Journal.Driver = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvJournalDSN)); v != "" {
		cfg.Journal.DSN = v
		cfg.Journal.Enabled = true
	}
	if v := strings.TrimSpace(os.Getenv(EnvJournalUsr)); v != "" {
		cfg.Journal.User = v
	}
	// logging overrides
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFormat)); v != "" {
		cfg.Logging.Format = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogSource)); v != "" {
		cfg.Logging.Source = envBool(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFile)); v != "" {
		cfg.Logging.File = v
	}
}

var overrides = map[string]string{
	"engine.readonly":    EnvReadOnly,
	"engine.lock":        EnvLock,
	"engine.focus":       EnvFocus,
	"engine.scroll_zoom": EnvScrollZoom,
	"engine.hit_mode":    EnvHitMode,
	"journal.enabled":    EnvJournal,
	"journal.driver":     EnvJournalDrv,
	"journal.dsn":        EnvJournalDSN,
	"journal.user":       EnvJournalUsr,
	"logging.level":      EnvLogLevel,
	"logging.format":     EnvLogFormat,
	"logging.source":     EnvLogSource,
	"logging.file":       EnvLogFile,
}

// EnvOverrideFor returns the env var name if the field is overridden by environment variables.
func EnvOverrideFor(key string) (string, bool) {
	name, ok := overrides[key]
	if !ok || os.Getenv(name) == "" {
		return "", false
	}
	return name, true
}

// Describe renders the effective value of every overridable key, marking
// the ones that come from the environment.
func Describe(cfg AppConfig) []string {
	vals := map[string]string{
		"engine.readonly":    strconv.FormatBool(cfg.Engine.ReadOnly),
		"engine.lock":        strconv.FormatBool(cfg.Engine.Lock),
		"engine.focus":       strconv.FormatBool(cfg.Engine.Focus),
		"engine.scroll_zoom": strconv.FormatBool(cfg.Engine.ScrollZoom),
		"engine.hit_mode":    cfg.Engine.HitMode,
		"journal.enabled":    strconv.FormatBool(cfg.Journal.Enabled),
		"journal.driver":     cfg.Journal.Driver,
		"journal.dsn":        cfg.Journal.DSN,
		"journal.user":       cfg.Journal.User,
		"logging.level":      cfg.Logging.Level,
		"logging.format":     cfg.Logging.Format,
		"logging.source":     strconv.FormatBool(cfg.Logging.Source),
		"logging.file":       cfg.Logging.File,
	}
	keys := make([]string, 0, len(vals))
	for k := range vals {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		line := k + " = " + vals[k]
		if env, ok := EnvOverrideFor(k); ok {
			line += " (from " + env + ")"
		}
		out = append(out, line)
	}
	return out
}
