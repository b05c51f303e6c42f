package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// ProjectConfigFile is the per-project config file, found by walking up
// from the working directory.
const ProjectConfigFile = ".citeparse.yml"

// FindProjectConfig walks up from start to the nearest directory holding a
// project config file and returns that file's path.
func FindProjectConfig(start string) (string, bool) {
	abs, err := filepath.Abs(start)
	if err != nil {
		return "", false
	}

	for {
		candidate := filepath.Join(abs, ProjectConfigFile)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, true
		}

		parent := filepath.Dir(abs)
		if parent == abs {
			return "", false
		}
		abs = parent
	}
}

// LoadDotEnv loads KEY=value pairs from .env files into the environment
// without overriding variables that are already set. With no arguments it
// reads ./.env. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("checking %s: %w", f, err)
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("loading %s: %w", f, err)
		}
	}
	return nil
}
