package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := cfg.Entry["app"]; len(got) != 1 || got[0] != "./index.js" {
		t.Errorf("Entry[app] = %v, want [./index.js]", got)
	}
	if cfg.Output.Filename != "[name].js" {
		t.Errorf("Output.Filename = %q", cfg.Output.Filename)
	}
	if !cfg.Minify || !cfg.DevServer.Inline || !cfg.DevServer.Colors {
		t.Errorf("production/devserver defaults not applied: %+v", cfg)
	}
	if len(cfg.NoParse) != 1 || cfg.NoParse[0] != `\.elm$` {
		t.Errorf("NoParse = %v", cfg.NoParse)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sitepack.yaml")
	yaml := `
entry:
  main: ["./a.js", "./b.js"]
output:
  path: dist
  gzip: true
rules:
  - test: '\.txt$'
    use: ["file-loader?name=[name].[ext]"]
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SITEPACK_DEVSERVER_PORT", "9999")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := cfg.Entry["main"]; len(got) != 2 || got[1] != "./b.js" {
		t.Errorf("Entry[main] = %v", got)
	}
	if cfg.Output.Path != "dist" || !cfg.Output.Gzip {
		t.Errorf("Output = %+v", cfg.Output)
	}
	if cfg.DevServer.Port != 9999 {
		t.Errorf("DevServer.Port = %d, want env override 9999", cfg.DevServer.Port)
	}
	if len(cfg.Rules) != 1 || cfg.Rules[0].Use[0] != "file-loader?name=[name].[ext]" {
		t.Errorf("Rules = %+v", cfg.Rules)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func TestLoadRejectsCapitalisedEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sitepack.yaml")
	if err := os.WriteFile(path, []byte("entry:\n  MyApp: [\"./index.js\"]\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "MyApp") {
		t.Fatalf("Load() error = %v, want one naming MyApp", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"no entries", Config{Output: OutputConfig{Filename: "[name].js"}}},
		{"empty entry", Config{Entry: map[string][]string{"app": nil}, Output: OutputConfig{Filename: "[name].js"}}},
		{"capitalised entry", Config{Entry: map[string][]string{"MyApp": {"./i.js"}}, Output: OutputConfig{Filename: "[name].js"}}},
		{"template without name", Config{Entry: map[string][]string{"app": {"./i.js"}}, Output: OutputConfig{Filename: "bundle.js"}}},
		{"rule without use", Config{
			Entry:  map[string][]string{"app": {"./i.js"}},
			Output: OutputConfig{Filename: "[name].js"},
			Rules:  []RuleConfig{{Test: `\.x$`}},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}
