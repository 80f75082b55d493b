package config

import (
	"fmt"
	"strings"
	"testing"
)

func TestValidateTieredInvalidListenPortIsFatal(t *testing.T) {
	cfg := Default()
	cfg.ListenPort = 0
	result := cfg.ValidateTiered()
	if !result.HasFatals() {
		t.Fatal("listen_port out of range should be fatal")
	}
	found := false
	for _, err := range result.Fatals {
		if strings.Contains(err.Error(), "listen_port") {
			found = true
		}
	}
	if !found {
		t.Fatal("expected listen_port error in fatals")
	}
}

func TestValidateTieredListenPortAboveRangeIsFatal(t *testing.T) {
	cfg := Default()
	cfg.ListenPort = 70000
	result := cfg.ValidateTiered()
	if !result.HasFatals() {
		t.Fatal("listen_port above 65535 should be fatal")
	}
}

func TestValidateTieredMalformedControlAddrIsFatal(t *testing.T) {
	cfg := Default()
	cfg.ControlAddr = "not-a-host-port"
	result := cfg.ValidateTiered()
	if !result.HasFatals() {
		t.Fatal("malformed control_addr should be fatal")
	}
}

func TestValidateTieredEmptyDataDirIsWarning(t *testing.T) {
	cfg := Default()
	cfg.DataDir = ""
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatalf("empty data_dir should be warning, not fatal: %v", result.Fatals)
	}
	if len(result.Warnings) == 0 {
		t.Fatal("expected warning for empty data_dir")
	}
	if cfg.DataDir == "" {
		t.Fatal("expected data_dir to be filled in with a default")
	}
}

func TestValidateTieredUnrecognisedCodecIsWarning(t *testing.T) {
	cfg := Default()
	cfg.DefaultCodec = "Betamax"
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatal("unrecognised default_codec should not be fatal")
	}
	if cfg.DefaultCodec != "H.264 High" {
		t.Fatalf("DefaultCodec = %q, want fallback to H.264 High", cfg.DefaultCodec)
	}
}

func TestValidateTieredKeyframeIntervalClamping(t *testing.T) {
	cfg := Default()
	cfg.KeyframeInterval = 0
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatalf("clamped keyframe_interval should be warning: %v", result.Fatals)
	}
	if cfg.KeyframeInterval != 1 {
		t.Fatalf("KeyframeInterval = %d, want 1", cfg.KeyframeInterval)
	}
}

func TestValidateTieredRefreshCapHzClamping(t *testing.T) {
	cfg := Default()
	cfg.RefreshCapHz = 0
	result := cfg.ValidateTiered()
	if cfg.RefreshCapHz != 1 {
		t.Fatalf("RefreshCapHz = %d, want 1 (clamped low)", cfg.RefreshCapHz)
	}

	cfg2 := Default()
	cfg2.RefreshCapHz = 5000
	result2 := cfg2.ValidateTiered()
	if result.HasFatals() || result2.HasFatals() {
		t.Fatal("refresh_cap_hz out of range should be warning, not fatal")
	}
	if cfg2.RefreshCapHz != 1000 {
		t.Fatalf("RefreshCapHz = %d, want 1000 (clamped high)", cfg2.RefreshCapHz)
	}
}

func TestValidateTieredUnknownLogLevelIsWarning(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "verbose"
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatal("unknown log level should not be fatal")
	}
	if len(result.Warnings) == 0 {
		t.Fatal("expected warning for unknown log level")
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("LogLevel = %q, want fallback to info", cfg.LogLevel)
	}
}

func TestValidateTieredInvalidLogFormatIsWarning(t *testing.T) {
	cfg := Default()
	cfg.LogFormat = "xml"
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatal("invalid log format should not be fatal")
	}
	if len(result.Warnings) == 0 {
		t.Fatal("expected warning for invalid log format")
	}
}

func TestValidateTieredLogMaxSizeClamping(t *testing.T) {
	cfg := Default()
	cfg.LogMaxSizeMB = 0
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatal("log_max_size_mb clamping should be a warning")
	}
	if cfg.LogMaxSizeMB != 1 {
		t.Fatalf("LogMaxSizeMB = %d, want 1", cfg.LogMaxSizeMB)
	}
}

func TestHasFatals(t *testing.T) {
	r := ValidationResult{}
	if r.HasFatals() {
		t.Fatal("HasFatals() on empty result should be false")
	}
	r.Fatals = append(r.Fatals, fmt.Errorf("test error"))
	if !r.HasFatals() {
		t.Fatal("HasFatals() should be true with a fatal error")
	}
}

func TestAllErrorsReturnsBoth(t *testing.T) {
	cfg := Default()
	cfg.ListenPort = 0         // fatal
	cfg.LogLevel = "very-loud" // warning
	result := cfg.ValidateTiered()

	all := result.AllErrors()
	if len(all) < 2 {
		t.Fatalf("AllErrors() returned %d errors, expected at least 2 (fatals + warnings)", len(all))
	}
}

func TestValidConfigHasNoErrors(t *testing.T) {
	cfg := Default()
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatalf("default config has fatals: %v", result.Fatals)
	}
	if len(result.Warnings) > 0 {
		t.Fatalf("default config has warnings: %v", result.Warnings)
	}
}
