// Package config loads and saves the mirroring host's process bootstrap
// configuration: the listen port, data directory, logging setup, and the
// default streaming preferences applied before any host-settings document
// has been saved. This is distinct from the mutable runtime state (paired
// devices, host settings, activity log) that internal/store persists —
// this package governs how the process itself starts, not what it
// remembers between connections.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/viper"

	"github.com/kelocube/mirror-host/internal/logging"
)

var log = logging.L("config")

// Config is the process-wide bootstrap configuration, loaded from
// mirror-host.yaml (or an explicit path) and overridable via MIRROR_*
// environment variables.
type Config struct {
	ListenPort int    `mapstructure:"listen_port"`
	DataDir    string `mapstructure:"data_dir"`

	LogLevel      string `mapstructure:"log_level"`
	LogFormat     string `mapstructure:"log_format"`
	LogFile       string `mapstructure:"log_file"`
	LogMaxSizeMB  int    `mapstructure:"log_max_size_mb"`
	LogMaxBackups int    `mapstructure:"log_max_backups"`

	// DefaultCodec is the codec name preferred on first run, before any
	// host-settings document exists. It must name a codec recognised by
	// codec.FromName.
	DefaultCodec     string `mapstructure:"default_codec"`
	KeyframeInterval int    `mapstructure:"keyframe_interval"`
	RefreshCapHz     int    `mapstructure:"refresh_cap_hz"`

	ControlAddr string `mapstructure:"control_addr"`
}

// Default returns the configuration applied when no config file or
// environment override is present.
func Default() *Config {
	return &Config{
		ListenPort:       1445,
		DataDir:          GetDataDir(),
		LogLevel:         "info",
		LogFormat:        "text",
		LogMaxSizeMB:     50,
		LogMaxBackups:    3,
		DefaultCodec:     "H.264 High",
		KeyframeInterval: 120,
		RefreshCapHz:     120,
		ControlAddr:      "127.0.0.1:8787",
	}
}

// Load reads cfgFile (or, if empty, searches configDir() and the working
// directory for mirror-host.yaml), applies MIRROR_-prefixed environment
// overrides, and validates the result. Fatal validation errors block
// startup; warnings are logged and the clamped value is kept.
func Load(cfgFile string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("mirror-host")
		v.SetConfigType("yaml")
		v.AddConfigPath(configDir())
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("MIRROR")
	// Unmarshal only sees environment values for keys viper already knows,
	// so every key is bound explicitly to its MIRROR_ variable.
	for _, key := range []string{
		"listen_port", "data_dir", "log_level", "log_format", "log_file",
		"log_max_size_mb", "log_max_backups", "default_codec",
		"keyframe_interval", "refresh_cap_hz", "control_addr",
	} {
		_ = v.BindEnv(key)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}

	result := cfg.ValidateTiered()
	for _, err := range result.Warnings {
		log.Warn("config validation", logging.KeyError, err.Error())
	}
	if result.HasFatals() {
		for _, err := range result.Fatals {
			log.Error("config validation fatal", logging.KeyError, err.Error())
		}
		return nil, fmt.Errorf("config has fatal validation errors: %v", result.Fatals[0])
	}

	return cfg, nil
}

// Save writes cfg to the default config path.
func Save(cfg *Config) error {
	return SaveTo(cfg, "")
}

// SaveTo writes cfg as YAML to cfgFile, or the default config path when
// cfgFile is empty, then restricts it to owner-only access.
func SaveTo(cfg *Config, cfgFile string) error {
	v := viper.New()
	v.Set("listen_port", cfg.ListenPort)
	v.Set("data_dir", cfg.DataDir)
	v.Set("log_level", cfg.LogLevel)
	v.Set("log_format", cfg.LogFormat)
	v.Set("log_file", cfg.LogFile)
	v.Set("log_max_size_mb", cfg.LogMaxSizeMB)
	v.Set("log_max_backups", cfg.LogMaxBackups)
	v.Set("default_codec", cfg.DefaultCodec)
	v.Set("keyframe_interval", cfg.KeyframeInterval)
	v.Set("refresh_cap_hz", cfg.RefreshCapHz)
	v.Set("control_addr", cfg.ControlAddr)

	var cfgPath string
	if cfgFile != "" {
		cfgPath = cfgFile
		if dir := filepath.Dir(cfgPath); dir != "." {
			if err := os.MkdirAll(dir, 0700); err != nil {
				return err
			}
		}
	} else {
		cfgPath = filepath.Join(configDir(), "mirror-host.yaml")
		if err := os.MkdirAll(configDir(), 0700); err != nil {
			return err
		}
	}

	if err := v.WriteConfigAs(cfgPath); err != nil {
		return err
	}

	return os.Chmod(cfgPath, 0600)
}

// GetDataDir returns the platform-specific runtime-state directory.
func GetDataDir() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("ProgramData"), "MirrorHost", "data")
	case "darwin":
		return "/Library/Application Support/MirrorHost/data"
	default:
		return "/var/lib/mirror-host"
	}
}

func configDir() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("ProgramData"), "MirrorHost")
	case "darwin":
		return "/Library/Application Support/MirrorHost"
	default:
		return "/etc/mirror-host"
	}
}
