// Package config loads engine settings the teacher's way: viper with
// mapstructure tags, environment override via a RAVEL_ prefix, and
// platform-specific defaults for paths and buffer sizing. Narrowed
// from the teacher's full application config (internal/config/config.go)
// down to the audio/download/resolve/bookmark sections a playback
// engine needs; UI, search, API-sync, and user-account fields belonged
// to its music-library domain and have no home here.
package config

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/viper"

	"github.com/ravel-player/ravel/internal/platform"
)

// Config is the engine's full settings surface.
type Config struct {
	Debug bool `mapstructure:"debug"`

	Audio struct {
		SampleRate      int     `mapstructure:"sample_rate"`
		BufferSize      int     `mapstructure:"buffer_size"`
		DefaultVolume   float64 `mapstructure:"default_volume"`
		PlatformOptimal bool    `mapstructure:"platform_optimal"`
	} `mapstructure:"audio"`

	Download struct {
		ChunkSize int `mapstructure:"chunk_size"`
	} `mapstructure:"download"`

	Resolve struct {
		Retries           int     `mapstructure:"retries"`
		TimeoutSeconds    int     `mapstructure:"timeout_seconds"`
		RequestsPerSecond float64 `mapstructure:"requests_per_second"`
		BurstSize         int     `mapstructure:"burst_size"`
	} `mapstructure:"resolve"`

	Bookmark struct {
		DatabasePath string `mapstructure:"database_path"`
	} `mapstructure:"bookmark"`
}

// Load reads configuration from configPath if set, falling back to the
// platform config directory, ./configs, and the working directory, then
// applies RAVEL_-prefixed environment overrides on top.
func Load(configPath string) (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		configDir, err := platform.GetConfigDir()
		if err != nil {
			return nil, err
		}
		viper.AddConfigPath(configDir)
		viper.AddConfigPath("./configs")
		viper.AddConfigPath(".")
	}

	viper.SetEnvPrefix("RAVEL")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := ensureDirectories(&cfg); err != nil {
		return nil, err
	}

	optimizeForPlatform(&cfg)

	return &cfg, nil
}

// Default returns a Config populated entirely from defaults, for
// callers embedding the engine without a config file (e.g. a library
// consumer or a test harness).
func Default() *Config {
	setDefaults()
	var cfg Config
	_ = viper.Unmarshal(&cfg)
	optimizeForPlatform(&cfg)
	return &cfg
}

func setDefaults() {
	viper.SetDefault("debug", false)

	viper.SetDefault("audio.sample_rate", 44100)
	viper.SetDefault("audio.buffer_size", getDefaultBufferSize())
	viper.SetDefault("audio.default_volume", 0.7)
	viper.SetDefault("audio.platform_optimal", true)

	viper.SetDefault("download.chunk_size", 256*1024)

	viper.SetDefault("resolve.retries", 3)
	viper.SetDefault("resolve.timeout_seconds", 15)
	viper.SetDefault("resolve.requests_per_second", 5.0)
	viper.SetDefault("resolve.burst_size", 5)

	dataDir, _ := platform.GetDataDir()
	viper.SetDefault("bookmark.database_path", filepath.Join(dataDir, "bookmarks.db"))
}

func getDefaultBufferSize() int {
	switch runtime.GOOS {
	case "linux":
		return 16384
	case "windows", "darwin":
		return 8192
	default:
		return 16384
	}
}

func optimizeForPlatform(cfg *Config) {
	if !cfg.Audio.PlatformOptimal {
		return
	}

	switch runtime.GOOS {
	case "linux":
		if cfg.Audio.BufferSize < 8192 {
			cfg.Audio.BufferSize = 16384
		}
	case "android":
		cfg.Audio.BufferSize = 16384
	}
}

func ensureDirectories(cfg *Config) error {
	return os.MkdirAll(filepath.Dir(cfg.Bookmark.DatabasePath), 0o755)
}

// Save writes the current viper-backed configuration to the platform
// config directory.
func (c *Config) Save() error {
	configDir, err := platform.GetConfigDir()
	if err != nil {
		return err
	}
	return viper.WriteConfigAs(filepath.Join(configDir, "config.yaml"))
}
