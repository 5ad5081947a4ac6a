// Package config implements spec.md §6's configuration file: load/default
// behavior, validation, and typed field access. Grounded on genesis's
// pkg/config/config.go (missing-file-means-defaults idiom for the secondary
// file, hard-fail-with-message for the primary one — inverted here since the
// spec's config.json is itself optional and policies.json's corruption is
// non-fatal, the reverse of genesis's two-file split).
package config

import (
	"fmt"
	"os"
	"path/filepath"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Config is the full set of recognized config.json options (spec §6).
type Config struct {
	Provider               string   `json:"provider"`
	Model                  string   `json:"model"`
	OllamaHost             string   `json:"ollama_host"`
	LMStudioHost           string   `json:"lmstudio_host"`
	NumCtx                 int      `json:"num_ctx"`
	NumPredict             int      `json:"num_predict"`
	EnableThinking         bool     `json:"enable_thinking"`
	ShowToolJSON           bool     `json:"show_tool_json"`
	FileReadSmallThreshold int      `json:"file_read_small_threshold"`
	Editor                 []string `json:"editor"`
}

// Default returns the hardcoded baseline a missing config file resolves to.
func Default() *Config {
	return &Config{
		Provider:               "ollama",
		Model:                  "llama3.1",
		OllamaHost:             "http://localhost:11434",
		LMStudioHost:           "http://localhost:1234",
		NumCtx:                 8192,
		NumPredict:             -1,
		EnableThinking:         false,
		ShowToolJSON:           false,
		FileReadSmallThreshold: 300,
		Editor:                 []string{"vi"},
	}
}

// Validate rejects a provider name the system has no client for.
func (c *Config) Validate() error {
	switch c.Provider {
	case "ollama", "lmstudio":
		return nil
	default:
		return fmt.Errorf("unknown provider %q (want \"ollama\" or \"lmstudio\")", c.Provider)
	}
}

// Path resolves the config file location under $XDG_CONFIG_HOME/<app>, per
// spec §6, falling back to $HOME/.config when XDG_CONFIG_HOME is unset.
func Path(appName, file string) string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			base = filepath.Join(home, ".config")
		}
	}
	return filepath.Join(base, appName, file)
}

// Load reads config.json at path. A missing file yields Default(); a
// present-but-malformed file is a fatal error (spec §6, §7 "Config load
// failure" → exit 1); unknown keys are ignored by jsoniter's default decode,
// which the spec's "ignored with warning" tolerates as silent-ignore.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg to path as indented JSON, creating its parent directory if
// needed. Used by the config-editor screen's save step.
func Save(path string, cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config %s: %w", path, err)
	}
	return nil
}
