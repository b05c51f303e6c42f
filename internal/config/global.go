// Package config handles global and project configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the effective configuration. Values are layered: built-in
// defaults, the global file, the nearest project file, then CITEPARSE_*
// environment variables. Command-line flags are applied by the caller.
type Config struct {
	ModelPath      string        `yaml:"model_path,omitempty"`
	CJKModelPath   string        `yaml:"cjk_model_path,omitempty"`
	Workers        int           `yaml:"workers,omitempty" validate:"gte=0"`
	LoadTimeout    time.Duration `yaml:"load_timeout,omitempty" validate:"gte=0s"`
	Format         string        `yaml:"format,omitempty" validate:"omitempty,oneof=json jsonl csv yaml yml bibtex bib"`
	CatalogPath    string        `yaml:"catalog_path,omitempty"`
	MatchThreshold float64       `yaml:"match_threshold,omitempty" validate:"gte=0,lte=1"`
	CrossrefMailto string        `yaml:"crossref_mailto,omitempty" validate:"omitempty,email"`
	S2APIKey       string        `yaml:"s2_api_key,omitempty"`
	ServeAddr      string        `yaml:"serve_addr,omitempty"`
}

const (
	// GlobalConfigDir is the directory name under XDG_CONFIG_HOME.
	GlobalConfigDir = "citeparse"
	// GlobalConfigFile is the config file name.
	GlobalConfigFile = "config.yml"
	// EnvPrefix prefixes environment overrides, e.g. CITEPARSE_WORKERS.
	EnvPrefix = "CITEPARSE_"
)

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Workers:        0, // one per CPU
		LoadTimeout:    30 * time.Second,
		Format:         "json",
		MatchThreshold: 0.85,
		ServeAddr:      "127.0.0.1:8080",
	}
}

// globalConfigCache caches the loaded configuration.
var globalConfigCache *Config

// GlobalConfigPath returns the path to the global config file.
// Respects XDG_CONFIG_HOME, defaults to ~/.config/citeparse/config.yml.
func GlobalConfigPath() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, GlobalConfigDir, GlobalConfigFile)
}

// Load returns the effective configuration for the current directory.
// Missing files are not errors.
func Load() (*Config, error) {
	if globalConfigCache != nil {
		return globalConfigCache, nil
	}

	cfg := Default()
	if err := mergeFile(&cfg, GlobalConfigPath()); err != nil {
		return nil, fmt.Errorf("global config: %w", err)
	}
	if cwd, err := os.Getwd(); err == nil {
		if path, ok := FindProjectConfig(cwd); ok {
			if err := mergeFile(&cfg, path); err != nil {
				return nil, fmt.Errorf("project config: %w", err)
			}
		}
	}
	if err := ApplyEnv(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	globalConfigCache = &cfg
	return &cfg, nil
}

// ResetGlobalConfigCache clears the cached configuration.
// Useful for testing.
func ResetGlobalConfigCache() {
	globalConfigCache = nil
}

// mergeFile overlays the non-zero values of the YAML file at path onto cfg.
func mergeFile(cfg *Config, path string) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading %s: %w", path, err)
	}

	var file Config
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	cfg.merge(file, filepath.Dir(path))
	return nil
}

// merge copies the set fields of o into c. Relative paths in o are taken
// relative to dir.
func (c *Config) merge(o Config, dir string) {
	path := func(p string) string {
		p = ExpandPath(p)
		if p != "" && !filepath.IsAbs(p) && dir != "" {
			return filepath.Join(dir, p)
		}
		return p
	}
	if o.ModelPath != "" {
		c.ModelPath = path(o.ModelPath)
	}
	if o.CJKModelPath != "" {
		c.CJKModelPath = path(o.CJKModelPath)
	}
	if o.CatalogPath != "" {
		c.CatalogPath = path(o.CatalogPath)
	}
	if o.Workers != 0 {
		c.Workers = o.Workers
	}
	if o.LoadTimeout != 0 {
		c.LoadTimeout = o.LoadTimeout
	}
	if o.Format != "" {
		c.Format = o.Format
	}
	if o.MatchThreshold != 0 {
		c.MatchThreshold = o.MatchThreshold
	}
	if o.CrossrefMailto != "" {
		c.CrossrefMailto = o.CrossrefMailto
	}
	if o.S2APIKey != "" {
		c.S2APIKey = o.S2APIKey
	}
	if o.ServeAddr != "" {
		c.ServeAddr = o.ServeAddr
	}
}

// ApplyEnv overrides cfg with CITEPARSE_* environment variables, e.g.
// CITEPARSE_MODEL_PATH or CITEPARSE_LOAD_TIMEOUT=10s.
func ApplyEnv(cfg *Config) error {
	var o Config
	str := func(key string, dst *string) {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			*dst = v
		}
	}
	str("MODEL_PATH", &o.ModelPath)
	str("CJK_MODEL_PATH", &o.CJKModelPath)
	str("CATALOG_PATH", &o.CatalogPath)
	str("FORMAT", &o.Format)
	str("CROSSREF_MAILTO", &o.CrossrefMailto)
	str("S2_API_KEY", &o.S2APIKey)
	if o.S2APIKey == "" {
		o.S2APIKey = os.Getenv("S2_API_KEY")
	}
	str("SERVE_ADDR", &o.ServeAddr)

	if v := os.Getenv(EnvPrefix + "WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sWORKERS: %w", EnvPrefix, err)
		}
		o.Workers = n
	}
	if v := os.Getenv(EnvPrefix + "LOAD_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%sLOAD_TIMEOUT: %w", EnvPrefix, err)
		}
		o.LoadTimeout = d
	}
	if v := os.Getenv(EnvPrefix + "MATCH_THRESHOLD"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%sMATCH_THRESHOLD: %w", EnvPrefix, err)
		}
		o.MatchThreshold = f
	}

	cfg.merge(o, "")
	return nil
}

var validate = newValidator()

// newValidator reports fields by their YAML key.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		return name
	})
	return v
}

// Validate checks value ranges and formats.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	msgs := make([]string, len(fieldErrs))
	for i, e := range fieldErrs {
		msgs[i] = e.Field() + " " + validationMessage(e)
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

func validationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "gte":
		return fmt.Sprintf("must be at least %s, got %v", e.Param(), e.Value())
	case "lte":
		return fmt.Sprintf("must be at most %s, got %v", e.Param(), e.Value())
	case "oneof":
		return fmt.Sprintf("must be one of %s, got %q", e.Param(), e.Value())
	case "email":
		return fmt.Sprintf("must be an email address, got %q", e.Value())
	}
	return fmt.Sprintf("failed validation '%s'", e.Tag())
}

// YAML renders the configuration as it would be written to a config file,
// with the Semantic Scholar key masked.
func (c *Config) YAML() (string, error) {
	shown := *c
	shown.S2APIKey = MaskSecret(c.S2APIKey)
	data, err := yaml.Marshal(&shown)
	if err != nil {
		return "", fmt.Errorf("encoding config: %w", err)
	}
	return string(data), nil
}

// MaskSecret hides all but the last four characters of a key.
func MaskSecret(s string) string {
	if len(s) <= 4 {
		return strings.Repeat("*", len(s))
	}
	return strings.Repeat("*", len(s)-4) + s[len(s)-4:]
}

// ExpandPath expands ~ to the user's home directory.
// Returns the original path unchanged if it doesn't start with ~.
func ExpandPath(path string) string {
	if len(path) == 0 || path[0] != '~' {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return path // Return original if we can't get home directory
	}

	return filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
}

// HelpfulConfigMessage explains where configuration is read from.
func HelpfulConfigMessage() string {
	configPath := GlobalConfigPath()
	return fmt.Sprintf(`Configuration is read from, in increasing priority:
  %s
  %s in the current directory or a parent
  %s* environment variables (a .env file is loaded first)
  command-line flags

Example:
  mkdir -p %s
  echo 'model_path: /path/to/model.bin' > %s`,
		configPath,
		ProjectConfigFile,
		EnvPrefix,
		filepath.Dir(configPath),
		configPath)
}
