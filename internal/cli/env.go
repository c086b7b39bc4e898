package cli

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

// EnvFileVar overrides --env for every command when set.
const EnvFileVar = "THEMEDUP_ENV_FILE"

// EnvLoader loads a .env file chosen by the --env flag.
//
// Lookup order: $THEMEDUP_ENV_FILE, the flag value, the flag value's
// basename in the working directory, then the default path. Values from the
// file overwrite the process environment. A missing default file is not an
// error since production deployments inject variables directly.
type EnvLoader struct {
	value       *string
	defaultPath string
}

// AddEnvFlag registers --env on fs (flag.CommandLine when nil).
func AddEnvFlag(fs *flag.FlagSet, defaultPath, description string) *EnvLoader {
	if fs == nil {
		fs = flag.CommandLine
	}
	defaultPath = strings.TrimSpace(defaultPath)
	if defaultPath == "" {
		defaultPath = ".env"
	}
	if description == "" {
		description = "Path to the .env file"
	}
	return &EnvLoader{
		value:       fs.String("env", defaultPath, description),
		defaultPath: defaultPath,
	}
}

// Load applies the first readable candidate and returns its path. It returns
// "" and no error when only the default was requested and it does not exist.
func (l *EnvLoader) Load() (string, error) {
	if l == nil {
		return "", errors.New("env loader is nil")
	}

	if custom := strings.TrimSpace(os.Getenv(EnvFileVar)); custom != "" {
		if err := godotenv.Overload(custom); err != nil {
			return "", fmt.Errorf("load %s=%s: %w", EnvFileVar, custom, err)
		}
		return custom, nil
	}

	requested := l.requested()
	var firstErr error
	for _, candidate := range l.candidates(requested) {
		err := godotenv.Overload(candidate)
		if err == nil {
			return candidate, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}

	if requested == l.defaultPath && errors.Is(firstErr, fs.ErrNotExist) {
		return "", nil
	}
	return "", fmt.Errorf("load env file %s: %w", requested, firstErr)
}

func (l *EnvLoader) requested() string {
	if l.value != nil {
		if v := strings.TrimSpace(*l.value); v != "" {
			return v
		}
	}
	return l.defaultPath
}

func (l *EnvLoader) candidates(requested string) []string {
	out := []string{requested}
	if base := filepath.Base(requested); base != requested && base != "." && base != string(filepath.Separator) {
		out = append(out, base)
	}
	if requested != l.defaultPath {
		out = append(out, l.defaultPath)
	}
	return out
}
