package config

import (
	"fmt"
	"net"
	"strings"

	"github.com/kelocube/mirror-host/internal/codec"
)

var validLogLevels = map[string]bool{
	"debug":   true,
	"info":    true,
	"warn":    true,
	"warning": true,
	"error":   true,
}

// ValidationResult splits validation findings into fatal errors, which
// must block startup, and warnings, which are logged while the offending
// field is silently clamped to a safe value.
type ValidationResult struct {
	Fatals   []error
	Warnings []error
}

// HasFatals reports whether any fatal error was found.
func (r ValidationResult) HasFatals() bool {
	return len(r.Fatals) > 0
}

// AllErrors returns fatals followed by warnings, for callers that just
// want to log everything found.
func (r ValidationResult) AllErrors() []error {
	all := make([]error, 0, len(r.Fatals)+len(r.Warnings))
	all = append(all, r.Fatals...)
	all = append(all, r.Warnings...)
	return all
}

// ValidateTiered checks the config for invalid values. A malformed
// listen port or control address is fatal, since the process cannot
// reasonably guess a safe substitute. An out-of-range numeric field that
// has a sane default is clamped and reported as a warning instead, so a
// typo in a YAML file doesn't stop the host from serving at all.
func (c *Config) ValidateTiered() ValidationResult {
	var result ValidationResult

	if c.ListenPort < 1 || c.ListenPort > 65535 {
		result.Fatals = append(result.Fatals, fmt.Errorf("listen_port %d is out of range 1-65535", c.ListenPort))
	}

	if c.ControlAddr != "" {
		if _, _, err := net.SplitHostPort(c.ControlAddr); err != nil {
			result.Fatals = append(result.Fatals, fmt.Errorf("control_addr %q is not a valid host:port: %w", c.ControlAddr, err))
		}
	}

	if c.DataDir == "" {
		result.Warnings = append(result.Warnings, fmt.Errorf("data_dir is empty, using %q", GetDataDir()))
		c.DataDir = GetDataDir()
	}

	if c.DefaultCodec != "" {
		if _, ok := codec.FromName(c.DefaultCodec); !ok {
			result.Warnings = append(result.Warnings, fmt.Errorf("default_codec %q is not recognised, falling back to %q", c.DefaultCodec, "H.264 High"))
			c.DefaultCodec = "H.264 High"
		}
	}

	if c.KeyframeInterval < 1 {
		result.Warnings = append(result.Warnings, fmt.Errorf("keyframe_interval %d is below minimum 1, clamping", c.KeyframeInterval))
		c.KeyframeInterval = 1
	}

	if c.RefreshCapHz < 1 {
		result.Warnings = append(result.Warnings, fmt.Errorf("refresh_cap_hz %d is below minimum 1, clamping", c.RefreshCapHz))
		c.RefreshCapHz = 1
	} else if c.RefreshCapHz > 1000 {
		result.Warnings = append(result.Warnings, fmt.Errorf("refresh_cap_hz %d exceeds maximum 1000, clamping", c.RefreshCapHz))
		c.RefreshCapHz = 1000
	}

	if c.LogLevel != "" && !validLogLevels[strings.ToLower(c.LogLevel)] {
		result.Warnings = append(result.Warnings, fmt.Errorf("log_level %q is not valid (use debug, info, warn, error), falling back to info", c.LogLevel))
		c.LogLevel = "info"
	}

	if c.LogFormat != "" && c.LogFormat != "text" && c.LogFormat != "json" {
		result.Warnings = append(result.Warnings, fmt.Errorf("log_format %q is not valid (use text or json), falling back to text", c.LogFormat))
		c.LogFormat = "text"
	}

	if c.LogMaxSizeMB < 1 {
		result.Warnings = append(result.Warnings, fmt.Errorf("log_max_size_mb %d is below minimum 1, clamping", c.LogMaxSizeMB))
		c.LogMaxSizeMB = 1
	}

	if c.LogMaxBackups < 0 {
		result.Warnings = append(result.Warnings, fmt.Errorf("log_max_backups %d is negative, clamping to 0", c.LogMaxBackups))
		c.LogMaxBackups = 0
	}

	return result
}
