// Package storage keeps named weight blobs in a local BadgerDB database.
package storage

import (
	"os"
	"path/filepath"
	"runtime"

	"k8s.io/klog/v2"
)

const appName = "mix9nnue"

// EnvHome, when set, replaces the platform data directory.
const EnvHome = "MIX9NNUE_HOME"

// GetDataDir returns the data directory shared by the weight store and the
// weight files, creating it if needed. Unless EnvHome is set it is:
// - macOS: ~/Library/Application Support/mix9nnue/
// - Linux: $XDG_DATA_HOME/mix9nnue/ or ~/.local/share/mix9nnue/
// - Windows: %APPDATA%/mix9nnue/
func GetDataDir() (string, error) {
	if dir := os.Getenv(EnvHome); dir != "" {
		return ensureDir(dir)
	}
	base, err := platformDataHome()
	if err != nil {
		return "", err
	}
	return ensureDir(filepath.Join(base, appName))
}

func platformDataHome() (string, error) {
	var env string
	var fallback []string
	switch runtime.GOOS {
	case "darwin":
		fallback = []string{"Library", "Application Support"}
	case "windows":
		env, fallback = "APPDATA", []string{"AppData", "Roaming"}
	default:
		env, fallback = "XDG_DATA_HOME", []string{".local", "share"}
	}
	if env != "" {
		if dir := os.Getenv(env); dir != "" {
			return dir, nil
		}
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(append([]string{home}, fallback...)...), nil
}

// GetDatabaseDir returns the directory of the BadgerDB weight store.
func GetDatabaseDir() (string, error) {
	dir, err := dataSubDir("db")
	if err != nil {
		return "", err
	}
	klog.V(1).Infof("storage: database directory %s", dir)
	return dir, nil
}

// GetWeightsDir returns the directory bare weight file names are looked up in.
func GetWeightsDir() (string, error) {
	return dataSubDir("weights")
}

// ResolveWeightPath returns name unchanged if it exists or contains a
// directory component. A bare name that does not exist in the working
// directory is looked up in GetWeightsDir; if it is not there either, name is
// returned unchanged so that callers report the path the user gave.
func ResolveWeightPath(name string) string {
	if filepath.Base(name) != name {
		return name
	}
	if _, err := os.Stat(name); err == nil {
		return name
	}
	dir, err := GetWeightsDir()
	if err != nil {
		klog.Warningf("storage: no weights directory: %v", err)
		return name
	}
	path := filepath.Join(dir, name)
	if _, err := os.Stat(path); err != nil {
		return name
	}
	klog.V(1).Infof("storage: resolved %s to %s", name, path)
	return path
}

func dataSubDir(name string) (string, error) {
	dataDir, err := GetDataDir()
	if err != nil {
		return "", err
	}
	return ensureDir(filepath.Join(dataDir, name))
}

func ensureDir(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}
