package utils

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// LoadEnvironment loads environment variables from .env files.
// An explicit file must exist; otherwise it tries the current directory and the directory of the executable.
// Variables already present in the environment win over file values.
// It returns the files that were loaded so the caller can log them once the logger is up.
func LoadEnvironment(explicit string) ([]string, error) {
	if explicit != "" {
		if err := godotenv.Load(explicit); err != nil {
			return nil, err
		}
		return []string{explicit}, nil
	}

	candidates := []string{".env"}
	if execPath, err := os.Executable(); err == nil {
		candidates = append(candidates, filepath.Join(filepath.Dir(execPath), ".env"))
	}

	var loaded []string
	for _, path := range candidates {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return loaded, err
		}
		loaded = append(loaded, path)
	}

	return loaded, nil
}
