/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package config loads the user-scope YAML configuration, applies GSL_* environment
// overrides and keeps the Postgres DSN in the OS keychain.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// config_version: bump when the structure changes in a backward-incompatible way.
// Unknown fields are ignored on unmarshal.

type GeneralConfig struct {
	Identity string `yaml:"identity"`
	Theme    string `yaml:"theme"` // "system" | "light" | "dark"
}

type StorageConfig struct {
	// Backend selects the key-value store: "file" | "sqlite" | "postgres" | "memory".
	Backend        string `yaml:"backend"`
	Path           string `yaml:"path"`
	PollIntervalMs int    `yaml:"poll_interval_ms"`
	// The Postgres DSN is not stored on disk; it lives in the OS keychain.
}

type EditorConfig struct {
	FontFamily  string  `yaml:"font_family"`
	FontSize    float32 `yaml:"font_size"`
	BrushColor  string  `yaml:"brush_color"`
	BrushWidth  float32 `yaml:"brush_width"`
	ImageMaxDim int     `yaml:"image_max_dim"`
}

type ExportConfig struct {
	Dir      string `yaml:"dir"`
	SettleMs int    `yaml:"settle_ms"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Source bool   `yaml:"source"`
	File   string `yaml:"file"`
}

type AppConfig struct {
	ConfigVersion int           `yaml:"config_version"`
	General       GeneralConfig `yaml:"general"`
	Storage       StorageConfig `yaml:"storage"`
	Editor        EditorConfig  `yaml:"editor"`
	Export        ExportConfig  `yaml:"export"`
	Logging       LoggingConfig `yaml:"logging"`
}

// Defaults returns the application defaults.
func Defaults() AppConfig {
	return AppConfig{
		ConfigVersion: 1,
		General:       GeneralConfig{Theme: "system"},
		Storage:       StorageConfig{Backend: "file", PollIntervalMs: 1000},
		Editor:        EditorConfig{FontFamily: "Arial", FontSize: 20, BrushColor: "#000000", BrushWidth: 2, ImageMaxDim: 300},
		Export:        ExportConfig{SettleMs: 0},
		Logging:       LoggingConfig{Level: "info", Format: "console"},
	}
}

// Env var names used as overrides.
const (
	EnvIdentity       = "GSL_IDENTITY"
	EnvTheme          = "GSL_THEME"
	EnvStorageBackend = "GSL_STORAGE_BACKEND"
	EnvStoragePath    = "GSL_STORAGE_PATH"
	EnvPollInterval   = "GSL_POLL_INTERVAL_MS"
	EnvPostgresDSN    = "GSL_PG_DSN"
	EnvExportDir      = "GSL_EXPORT_DIR"
	EnvExportSettleMs = "GSL_EXPORT_SETTLE_MS"
	EnvLogLevel       = "GSL_LOG_LEVEL"
	EnvLogFormat      = "GSL_LOG_FORMAT"
	EnvLogSource      = "GSL_LOG_SOURCE"
	EnvLogFile        = "GSL_LOG_FILE"
)

// Service/keys for the OS keyring.
const (
	keyringService = "GoSlides"
	keyringDSN     = "postgres_dsn"
)

// secrets abstracts the keyring so tests can stub it.
var secrets SecretStore = &osKeyring{}

type SecretStore interface {
	Get(service, key string) (string, error)
	Set(service, key, value string) error
	Delete(service, key string) error
}

// SetSecretStore swaps the keyring backend and returns a restore func.
func SetSecretStore(s SecretStore) (restore func()) {
	prev := secrets
	secrets = s
	return func() { secrets = prev }
}

// osKeyring implements SecretStore using the OS keyring via github.com/zalando/go-keyring.
type osKeyring struct{}

func (k *osKeyring) Get(service, key string) (string, error) { return keyringGet(service, key) }
func (k *osKeyring) Set(service, key, value string) error   { return keyringSet(service, key, value) }
func (k *osKeyring) Delete(service, key string) error       { return keyringDelete(service, key) }

// ConfigPath returns the per-user config file path.
func ConfigPath() (string, error) {
	if p := strings.TrimSpace(os.Getenv("GSL_CONFIG")); p != "" {
		return p, nil
	}
	base, err := appDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "config.yaml"), nil
}

// DataDir returns the per-user directory holding presentations and crash reports.
func DataDir() (string, error) {
	base, err := appDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "data"), nil
}

func appDir() (string, error) {
	var base string
	switch runtime.GOOS {
	case "windows":
		base = os.Getenv("AppData")
		if base == "" {
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		base = filepath.Join(base, "GoSlides")
	case "darwin":
		base = filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "GoSlides")
	default:
		if x := os.Getenv("XDG_CONFIG_HOME"); x != "" {
			base = filepath.Join(x, "goslides")
		} else {
			base = filepath.Join(os.Getenv("HOME"), ".config", "goslides")
		}
	}
	if base == "" || base == "goslides" {
		return "", errors.New("cannot resolve config directory")
	}
	return base, nil
}

// Load reads the user config file (if present), applies defaults and env overrides.
// The Postgres DSN comes from GSL_PG_DSN or the keyring and is returned separately.
func Load() (AppConfig, string, error) {
	cfg := Defaults()
	path, err := ConfigPath()
	if err != nil {
		return cfg, "", err
	}
	if data, err := os.ReadFile(path); err == nil {
		var fileCfg AppConfig
		if err := yaml.Unmarshal(data, &fileCfg); err == nil {
			mergeInto(&cfg, &fileCfg)
		}
	}
	applyEnvOverrides(&cfg)
	if dsn := strings.TrimSpace(os.Getenv(EnvPostgresDSN)); dsn != "" {
		return cfg, dsn, nil
	}
	dsn, _ := secrets.Get(keyringService, keyringDSN)
	return cfg, dsn, nil
}

// Save writes the user config YAML and persists the DSN into the OS keyring (if non-empty).
func Save(cfg AppConfig, dsn string) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return err
	}
	if dsn != "" {
		if err := secrets.Set(keyringService, keyringDSN, dsn); err != nil {
			return err
		}
	}
	return nil
}

// ForgetDSN removes the stored Postgres DSN.
func ForgetDSN() error { return secrets.Delete(keyringService, keyringDSN) }

func mergeInto(dst *AppConfig, src *AppConfig) {
	if src.ConfigVersion != 0 {
		dst.ConfigVersion = src.ConfigVersion
	}
	if s := strings.TrimSpace(src.General.Identity); s != "" {
		dst.General.Identity = s
	}
	if src.General.Theme != "" {
		dst.General.Theme = src.General.Theme
	}
	if s := strings.TrimSpace(src.Storage.Backend); s != "" {
		dst.Storage.Backend = strings.ToLower(s)
	}
	if s := strings.TrimSpace(src.Storage.Path); s != "" {
		dst.Storage.Path = s
	}
	if src.Storage.PollIntervalMs > 0 {
		dst.Storage.PollIntervalMs = src.Storage.PollIntervalMs
	}
	if src.Editor.FontFamily != "" {
		dst.Editor.FontFamily = src.Editor.FontFamily
	}
	if src.Editor.FontSize > 0 {
		dst.Editor.FontSize = src.Editor.FontSize
	}
	if src.Editor.BrushColor != "" {
		dst.Editor.BrushColor = src.Editor.BrushColor
	}
	if src.Editor.BrushWidth > 0 {
		dst.Editor.BrushWidth = src.Editor.BrushWidth
	}
	if src.Editor.ImageMaxDim > 0 {
		dst.Editor.ImageMaxDim = src.Editor.ImageMaxDim
	}
	if s := strings.TrimSpace(src.Export.Dir); s != "" {
		dst.Export.Dir = s
	}
	if src.Export.SettleMs > 0 {
		dst.Export.SettleMs = src.Export.SettleMs
	}
	if strings.TrimSpace(src.Logging.Level) != "" {
		dst.Logging.Level = strings.ToLower(strings.TrimSpace(src.Logging.Level))
	}
	if strings.TrimSpace(src.Logging.Format) != "" {
		dst.Logging.Format = strings.ToLower(strings.TrimSpace(src.Logging.Format))
	}
	dst.Logging.Source = src.Logging.Source
	if strings.TrimSpace(src.Logging.File) != "" {
		dst.Logging.File = strings.TrimSpace(src.Logging.File)
	}
}

func truthy(v string) bool {
	lv := strings.ToLower(v)
	return lv == "1" || lv == "true" || lv == "on" || lv == "yes"
}

func applyEnvOverrides(cfg *AppConfig) {
	if v := strings.TrimSpace(os.Getenv(EnvIdentity)); v != "" {
		cfg.General.Identity = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvTheme)); v != "" {
		cfg.General.Theme = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvStorageBackend)); v != "" {
		cfg.Storage.Backend = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvStoragePath)); v != "" {
		cfg.Storage.Path = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvPollInterval)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Storage.PollIntervalMs = n
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvExportDir)); v != "" {
		cfg.Export.Dir = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvExportSettleMs)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.Export.SettleMs = n
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFormat)); v != "" {
		cfg.Logging.Format = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogSource)); v != "" {
		cfg.Logging.Source = truthy(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFile)); v != "" {
		cfg.Logging.File = v
	}
}

// EnvOverrideFor returns the env var name if the field is overridden by environment variables.
func EnvOverrideFor(key string) (string, bool) {
	names := map[string]string{
		"general.identity":         EnvIdentity,
		"general.theme":            EnvTheme,
		"storage.backend":          EnvStorageBackend,
		"storage.path":             EnvStoragePath,
		"storage.poll_interval_ms": EnvPollInterval,
		"export.dir":               EnvExportDir,
		"export.settle_ms":         EnvExportSettleMs,
		"logging.level":            EnvLogLevel,
		"logging.format":           EnvLogFormat,
		"logging.source":           EnvLogSource,
		"logging.file":             EnvLogFile,
	}
	if env, ok := names[key]; ok && os.Getenv(env) != "" {
		return env, true
	}
	return "", false
}

// PollInterval returns the reconciliation interval, falling back to the default.
func (s StorageConfig) PollInterval() time.Duration {
	if s.PollIntervalMs <= 0 {
		return time.Duration(Defaults().Storage.PollIntervalMs) * time.Millisecond
	}
	return time.Duration(s.PollIntervalMs) * time.Millisecond
}

// Settle returns the per-slide export settle delay.
func (e ExportConfig) Settle() time.Duration {
	if e.SettleMs <= 0 {
		return 0
	}
	return time.Duration(e.SettleMs) * time.Millisecond
}
