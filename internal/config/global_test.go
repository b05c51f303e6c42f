package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// isolate points every config source at empty temporary locations.
func isolate(t *testing.T) string {
	t.Helper()
	ResetGlobalConfigCache()
	t.Cleanup(ResetGlobalConfigCache)

	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))
	for _, k := range []string{"MODEL_PATH", "CJK_MODEL_PATH", "WORKERS", "LOAD_TIMEOUT", "FORMAT", "CATALOG_PATH", "MATCH_THRESHOLD", "CROSSREF_MAILTO", "S2_API_KEY", "SERVE_ADDR"} {
		t.Setenv(EnvPrefix+k, "")
	}
	t.Setenv("S2_API_KEY", "")
	work := filepath.Join(dir, "work")
	if err := os.MkdirAll(work, 0755); err != nil {
		t.Fatal(err)
	}
	t.Chdir(work)
	return dir
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestGlobalConfigPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")
	want := "/custom/config/citeparse/config.yml"
	if path := GlobalConfigPath(); path != want {
		t.Errorf("GlobalConfigPath() = %q, want %q", path, want)
	}

	t.Setenv("XDG_CONFIG_HOME", "")
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("Cannot get home directory")
	}
	want = filepath.Join(home, ".config", "citeparse", "config.yml")
	if path := GlobalConfigPath(); path != want {
		t.Errorf("GlobalConfigPath() = %q, want %q", path, want)
	}
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if *cfg != Default() {
		t.Errorf("Load() = %+v, want defaults %+v", *cfg, Default())
	}
}

func TestLoad_Layers(t *testing.T) {
	dir := isolate(t)
	writeFile(t, filepath.Join(dir, "xdg", GlobalConfigDir, GlobalConfigFile), `
model_path: /models/global.bin
workers: 2
load_timeout: 5s
format: csv
`)
	writeFile(t, filepath.Join(dir, ProjectConfigFile), `
model_path: models/project.bin
format: yaml
`)
	t.Setenv(EnvPrefix+"FORMAT", "bibtex")
	t.Setenv(EnvPrefix+"MATCH_THRESHOLD", "0.9")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if want := filepath.Join(dir, "models", "project.bin"); cfg.ModelPath != want {
		t.Errorf("ModelPath = %q, want %q", cfg.ModelPath, want)
	}
	if cfg.Workers != 2 || cfg.LoadTimeout != 5*time.Second {
		t.Errorf("Workers, LoadTimeout = %d, %s", cfg.Workers, cfg.LoadTimeout)
	}
	if cfg.Format != "bibtex" || cfg.MatchThreshold != 0.9 {
		t.Errorf("Format, MatchThreshold = %q, %v", cfg.Format, cfg.MatchThreshold)
	}
	if cfg.ServeAddr != Default().ServeAddr {
		t.Errorf("ServeAddr = %q", cfg.ServeAddr)
	}

	// Cached until reset
	t.Setenv(EnvPrefix+"FORMAT", "json")
	again, _ := Load()
	if again != cfg {
		t.Error("Load() should return the cached config")
	}
}

func TestValidate_Message(t *testing.T) {
	c := Default()
	c.Workers = -2
	c.MatchThreshold = 2
	err := c.Validate()
	if err == nil {
		t.Fatal("Validate() should fail")
	}
	for _, want := range []string{"workers must be at least 0", "match_threshold must be at most 1"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Validate() = %q, want it to mention %q", err, want)
		}
	}

	d := Default()
	if err := d.Validate(); err != nil {
		t.Errorf("Default().Validate() = %v", err)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name   string
		global string
		env    map[string]string
	}{
		{"invalid yaml", "workers: [1", nil},
		{"negative workers", "workers: -1", nil},
		{"threshold out of range", "match_threshold: 1.5", nil},
		{"unknown format", "format: xml", nil},
		{"bad mailto", "crossref_mailto: nobody", nil},
		{"bad env duration", "", map[string]string{"LOAD_TIMEOUT": "soon"}},
		{"bad env workers", "", map[string]string{"WORKERS": "many"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := isolate(t)
			if tt.global != "" {
				writeFile(t, filepath.Join(dir, "xdg", GlobalConfigDir, GlobalConfigFile), tt.global)
			}
			for k, v := range tt.env {
				t.Setenv(EnvPrefix+k, v)
			}
			if _, err := Load(); err == nil {
				t.Error("Load() should fail")
			}
		})
	}
}

func TestFindProjectConfig(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}
	if _, ok := FindProjectConfig(nested); ok {
		t.Fatal("found config before creating one")
	}
	writeFile(t, filepath.Join(root, "a", ProjectConfigFile), "workers: 1\n")

	got, ok := FindProjectConfig(nested)
	if !ok || got != filepath.Join(root, "a", ProjectConfigFile) {
		t.Errorf("FindProjectConfig() = %q, %v", got, ok)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	writeFile(t, envFile, "CITEPARSE_TEST_A=from-file\nCITEPARSE_TEST_B=from-file\n")
	t.Setenv("CITEPARSE_TEST_A", "")
	os.Unsetenv("CITEPARSE_TEST_A")
	t.Setenv("CITEPARSE_TEST_B", "from-env")

	if err := LoadDotEnv(envFile, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("LoadDotEnv() error = %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("CITEPARSE_TEST_A") })

	if got := os.Getenv("CITEPARSE_TEST_A"); got != "from-file" {
		t.Errorf("CITEPARSE_TEST_A = %q, want from-file", got)
	}
	if got := os.Getenv("CITEPARSE_TEST_B"); got != "from-env" {
		t.Errorf("CITEPARSE_TEST_B = %q, want from-env (existing values win)", got)
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("Cannot get home directory")
	}
	tests := []struct {
		in   string
		want string
	}{
		{"~/models/a.bin", filepath.Join(home, "models", "a.bin")},
		{"/abs/a.bin", "/abs/a.bin"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := ExpandPath(tt.in); got != tt.want {
			t.Errorf("ExpandPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestConfig_YAML(t *testing.T) {
	cfg := Default()
	out, err := cfg.YAML()
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"load_timeout: 30s", "format: json", "match_threshold: 0.85"} {
		if !strings.Contains(out, want) {
			t.Errorf("YAML() missing %q:\n%s", want, out)
		}
	}
}

func TestHelpfulConfigMessage(t *testing.T) {
	msg := HelpfulConfigMessage()
	if !strings.Contains(msg, ProjectConfigFile) || !strings.Contains(msg, EnvPrefix) {
		t.Errorf("HelpfulConfigMessage() = %q", msg)
	}
}

func TestLoad_S2APIKey(t *testing.T) {
	dir := isolate(t)
	writeFile(t, filepath.Join(dir, "xdg", GlobalConfigDir, GlobalConfigFile), "s2_api_key: from-file\n")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.S2APIKey != "from-file" {
		t.Errorf("S2APIKey = %q, want from-file", cfg.S2APIKey)
	}

	ResetGlobalConfigCache()
	t.Setenv("S2_API_KEY", "from-bare-env")
	if cfg, _ = Load(); cfg.S2APIKey != "from-bare-env" {
		t.Errorf("S2APIKey = %q, want from-bare-env", cfg.S2APIKey)
	}

	ResetGlobalConfigCache()
	t.Setenv(EnvPrefix+"S2_API_KEY", "from-prefixed-env")
	if cfg, _ = Load(); cfg.S2APIKey != "from-prefixed-env" {
		t.Errorf("S2APIKey = %q, want from-prefixed-env", cfg.S2APIKey)
	}

	out, err := cfg.YAML()
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(out, "from-prefixed-env") || !strings.Contains(out, "*************-env") {
		t.Errorf("YAML() does not mask the key:\n%s", out)
	}
}

func TestMaskSecret(t *testing.T) {
	tests := []struct{ in, want string }{
		{"", ""},
		{"abc", "***"},
		{"abcdefgh", "****efgh"},
	}
	for _, tt := range tests {
		if got := MaskSecret(tt.in); got != tt.want {
			t.Errorf("MaskSecret(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
