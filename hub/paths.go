package hub

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// windows: C:\Users\{user}\AppData\Local\build-llm
// macOS: ~/Library/Caches/build-llm
// linux: ~/.cache/build-llm
func CacheDir() string {
	var cacheDir string

	switch runtime.GOOS {
	case "windows":
		localAppData := os.Getenv("LOCALAPPDATA")
		if localAppData == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				panic(fmt.Sprintf("failed to get user home directory: %v", err))
			}
			localAppData = filepath.Join(home, "AppData", "Local")
		}
		cacheDir = filepath.Join(localAppData, "build-llm")

	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			panic(fmt.Sprintf("failed to get user home directory: %v", err))
		}
		cacheDir = filepath.Join(home, "Library", "Caches", "build-llm")

	default:
		xdgCache := os.Getenv("XDG_CACHE_HOME")
		if xdgCache == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				panic(fmt.Sprintf("failed to get user home directory: %v", err))
			}
			xdgCache = filepath.Join(home, ".cache")
		}
		cacheDir = filepath.Join(xdgCache, "build-llm")
	}

	return cacheDir
}

// ModelDir returns the cache directory for a hub model ID. Repo IDs like
// "org/name" become nested directories.
func ModelDir(cacheDir, modelID string) string {
	parts := strings.Split(modelID, "/")
	return filepath.Join(append([]string{cacheDir, "models"}, parts...)...)
}
