// Package config provides configuration management for sitepack.
// It uses Viper to load settings from files, environment variables, and CLI flags.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config holds all runtime configuration for sitepack.
type Config struct {
	// ── Build ────────────────────────────────────────────────────────────────
	// Context is the directory entry modules are resolved against.
	Context string `mapstructure:"context"`
	// Entry maps an entry name to the modules it bundles, in order.
	Entry map[string][]string `mapstructure:"entry"`

	Output OutputConfig `mapstructure:"output"`

	// Rules overrides the built-in asset rule table when non-empty.
	Rules []RuleConfig `mapstructure:"rules"`
	// NoParse lists patterns whose imports are never resolved by the bundler.
	NoParse []string `mapstructure:"no_parse"`

	// Minify toggles the two-pass minification policy (production mode).
	Minify bool `mapstructure:"minify"`

	// ElmBinary is the Elm compiler executable used by elm-loader.
	ElmBinary string `mapstructure:"elm_binary"`

	// ── Dev server ───────────────────────────────────────────────────────────
	DevServer DevServerConfig `mapstructure:"devserver"`

	// ── Build history ────────────────────────────────────────────────────────
	DBPath   string `mapstructure:"db_path"`
	DBDriver string `mapstructure:"db_driver"` // only "sqlite"

	// ── Elm data generation ──────────────────────────────────────────────────
	Generate GenerateConfig `mapstructure:"generate"`

	LogLevel string `mapstructure:"log_level"`
}

// OutputConfig controls where and how bundles are written.
type OutputConfig struct {
	Path     string `mapstructure:"path"`
	Filename string `mapstructure:"filename"` // e.g. "[name].js"
	// Gzip writes a precompressed .gz sibling next to every bundle.
	Gzip bool `mapstructure:"gzip"`
}

// RuleConfig is one asset rule as written in the config file.
// Use holds webpack-style loader strings, e.g. "url-loader?limit=10000".
type RuleConfig struct {
	Test    string   `mapstructure:"test"`
	Exclude []string `mapstructure:"exclude"`
	Use     []string `mapstructure:"use"`
}

// DevServerConfig mirrors the dev-server block of the build config.
type DevServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	// Inline injects the live-reload client into served HTML.
	Inline bool `mapstructure:"inline"`
	Colors bool `mapstructure:"colors"`
	// DebounceMillis coalesces bursts of file events into one rebuild.
	DebounceMillis int `mapstructure:"debounce_ms"`
}

// GenerateConfig drives the TableData.elm generator.
type GenerateConfig struct {
	DBPath   string `mapstructure:"db_path"`
	Template string `mapstructure:"template"`
	Output   string `mapstructure:"output"`
}

// DefaultEntry is the entry name used when the config declares none.
const DefaultEntry = "app"

// Load reads config from file (./sitepack.yaml or ~/.sitepack/sitepack.yaml)
// and falls back to the defaults of the site build. Environment
// variables with prefix SITEPACK_ override file values.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	// --- Config file ---
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("sitepack")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.sitepack")
	}
	if err := v.ReadInConfig(); err != nil {
		// config file is optional; ignore "not found" errors
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || configFile != "" {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	if err := checkEntryCase(v.ConfigFileUsed()); err != nil {
		return nil, err
	}

	// --- Environment Variables ---
	v.SetEnvPrefix("SITEPACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	// Viper flattens map defaults into the file's keys, so the default entry
	// is applied only when none was configured.
	if len(cfg.Entry) == 0 {
		cfg.Entry = map[string][]string{DefaultEntry: {"./index.js"}}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// checkEntryCase rejects entry names with capitals in a YAML config file.
// Viper lowercases map keys, so MyApp would silently build myapp.js.
func checkEntryCase(path string) error {
	if ext := filepath.Ext(path); ext != ".yaml" && ext != ".yml" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var raw struct {
		Entry map[string]any `yaml:"entry"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil
	}
	for name := range raw.Entry {
		if err := entryName(name); err != nil {
			return err
		}
	}
	return nil
}

func entryName(name string) error {
	if name == "" {
		return fmt.Errorf("config: entry name must not be empty")
	}
	if name != strings.ToLower(name) {
		return fmt.Errorf("config: entry name %q must be lowercase", name)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("context", ".")
	v.SetDefault("output.path", ".")
	v.SetDefault("output.filename", "[name].js")
	v.SetDefault("output.gzip", false)
	v.SetDefault("no_parse", []string{`\.elm$`})
	v.SetDefault("minify", true)
	v.SetDefault("elm_binary", "elm")

	v.SetDefault("devserver.host", "127.0.0.1")
	v.SetDefault("devserver.port", 8080)
	v.SetDefault("devserver.inline", true)
	v.SetDefault("devserver.colors", true)
	v.SetDefault("devserver.debounce_ms", 150)

	v.SetDefault("db_path", "sitepack.db")
	v.SetDefault("db_driver", "sqlite")

	v.SetDefault("generate.db_path", "../lot.db")
	v.SetDefault("generate.template", "TableData.template.elm")
	v.SetDefault("generate.output", "TableData.elm")

	v.SetDefault("log_level", "info")
}

// Validate checks the invariants the build relies on.
func (c *Config) Validate() error {
	if len(c.Entry) == 0 {
		return fmt.Errorf("config: at least one entry is required")
	}
	for name, modules := range c.Entry {
		if err := entryName(name); err != nil {
			return err
		}
		if len(modules) == 0 {
			return fmt.Errorf("config: entry %q has no modules", name)
		}
	}
	if !strings.Contains(c.Output.Filename, "[name]") {
		return fmt.Errorf("config: output.filename %q must contain [name]", c.Output.Filename)
	}
	for i, r := range c.Rules {
		if r.Test == "" || len(r.Use) == 0 {
			return fmt.Errorf("config: rules[%d] needs both test and use", i)
		}
	}
	return nil
}
