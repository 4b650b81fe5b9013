package platform

import (
	"os"
	"path/filepath"
	"runtime"
)

const (
	osWindows = "windows"
	osDarwin  = "darwin"
	osAndroid = "android"
)

// GetDataDir returns the platform-specific data directory for the player.
func GetDataDir() (string, error) {
	switch runtime.GOOS {
	case osWindows:
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "Ravel"), nil
		}
		return filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming", "Ravel"), nil
	case osDarwin:
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, "Library", "Application Support", "Ravel"), nil
	case osAndroid:
		if androidData := os.Getenv("ANDROID_DATA"); androidData != "" {
			return filepath.Join(androidData, "data", "com.ravel.player", "files"), nil
		}
		return "/data/data/com.ravel.player/files", nil
	default:
		if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
			return filepath.Join(xdgData, "ravel"), nil
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".local", "share", "ravel"), nil
	}
}

// GetCacheDir returns the platform-specific cache directory for the player.
func GetCacheDir() (string, error) {
	switch runtime.GOOS {
	case osWindows:
		if localAppData := os.Getenv("LOCALAPPDATA"); localAppData != "" {
			return filepath.Join(localAppData, "Ravel", "Cache"), nil
		}
		return filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Local", "Ravel", "Cache"), nil
	case osDarwin:
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, "Library", "Caches", "Ravel"), nil
	case osAndroid:
		if androidData := os.Getenv("ANDROID_DATA"); androidData != "" {
			return filepath.Join(androidData, "data", "com.ravel.player", "cache"), nil
		}
		return "/data/data/com.ravel.player/cache", nil
	default:
		if xdgCache := os.Getenv("XDG_CACHE_HOME"); xdgCache != "" {
			return filepath.Join(xdgCache, "ravel"), nil
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".cache", "ravel"), nil
	}
}

// GetConfigDir returns the platform-specific configuration directory for the player.
func GetConfigDir() (string, error) {
	switch runtime.GOOS {
	case osWindows:
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "Ravel"), nil
		}
		return filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming", "Ravel"), nil
	case osDarwin:
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, "Library", "Preferences", "Ravel"), nil
	case osAndroid:
		if androidData := os.Getenv("ANDROID_DATA"); androidData != "" {
			return filepath.Join(androidData, "data", "com.ravel.player", "files"), nil
		}
		return "/data/data/com.ravel.player/files", nil
	default:
		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			return filepath.Join(xdgConfig, "ravel"), nil
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".config", "ravel"), nil
	}
}
