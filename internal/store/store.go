// Package store persists the desktop-UI-visible mutable runtime state —
// paired devices, host settings, and a bounded activity log — as JSON
// documents under a platform-specific application data directory. Every
// write goes through a temp-file-then-rename so a crash mid-write can
// never leave a truncated document behind, and every read treats a
// missing or unparseable file as empty defaults rather than an error.
package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/kelocube/mirror-host/internal/registry"
)

const (
	devicesFile  = "paired_devices.json"
	settingsFile = "host_settings.json"
	logFile      = "host_log.json"
	logLimit     = 200
)

// Device is one paired tablet client remembered across host restarts.
type Device struct {
	ID               string                     `json:"id"`
	Name             string                     `json:"name"`
	Transport        string                     `json:"transport"`
	Status           string                     `json:"status"`
	LastSeen         string                     `json:"lastSeen,omitempty"`
	Host             string                     `json:"host,omitempty"`
	Port             uint16                     `json:"port,omitempty"`
	InputPermissions registry.InputPermissions  `json:"inputPermissions"`
}

// Settings is the single mutable host-settings document. Fields mirror
// the recognised host-settings options: a canonical codec name, quality
// 0-100, a refresh cap in Hz, a keyframe interval in frames, and a
// free-form input-mode label.
type Settings struct {
	Codec            string `json:"codec"`
	Quality          int    `json:"quality"`
	RefreshCapHz     int    `json:"refreshCapHz"`
	KeyframeInterval int    `json:"keyframeInterval"`
	InputMode        string `json:"inputMode"`
}

// DefaultSettings mirrors the original host's HostSettings::default().
func DefaultSettings() Settings {
	return Settings{
		Codec:            "H.264 High",
		Quality:          80,
		RefreshCapHz:     120,
		KeyframeInterval: 120,
		InputMode:        "Touch + Pen",
	}
}

// LogEntry is one bounded host-activity-log record.
type LogEntry struct {
	Timestamp int64  `json:"timestamp"`
	Message   string `json:"message"`
}

// Store owns the three JSON documents rooted at DataDir. A single mutex
// serialises all reads and writes; the documents are small and accessed
// far less often than once per frame, so no finer-grained locking is
// warranted.
type Store struct {
	mu      sync.Mutex
	dataDir string
}

// New returns a Store rooted at dataDir. dataDir is created lazily on
// first write, not here.
func New(dataDir string) *Store {
	return &Store{dataDir: dataDir}
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dataDir, name)
}

// LoadDevices returns the paired-device list, or an empty slice if the
// file is absent or unparseable.
func (s *Store) LoadDevices() []Device {
	s.mu.Lock()
	defer s.mu.Unlock()
	var devices []Device
	readJSON(s.path(devicesFile), &devices)
	return devices
}

// SaveDevices atomically replaces the paired-device list.
func (s *Store) SaveDevices(devices []Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if devices == nil {
		devices = []Device{}
	}
	return writeJSONAtomic(s.path(devicesFile), devices)
}

// LoadSettings returns the saved host settings, or DefaultSettings if the
// file is absent or unparseable.
func (s *Store) LoadSettings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	settings := DefaultSettings()
	readJSON(s.path(settingsFile), &settings)
	return settings
}

// SaveSettings atomically replaces the host-settings document.
func (s *Store) SaveSettings(settings Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeJSONAtomic(s.path(settingsFile), settings)
}

// LoadLog returns the activity log, oldest entry first.
func (s *Store) LoadLog() []LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLogLocked()
}

func (s *Store) loadLogLocked() []LogEntry {
	var entries []LogEntry
	readJSON(s.path(logFile), &entries)
	return entries
}

// AppendLog appends one entry, evicting from the front once the log
// exceeds logLimit entries (oldest-first eviction, not a periodic sweep).
func (s *Store) AppendLog(timestamp int64, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := s.loadLogLocked()
	entries = append(entries, LogEntry{Timestamp: timestamp, Message: message})
	if len(entries) > logLimit {
		entries = entries[len(entries)-logLimit:]
	}
	return writeJSONAtomic(s.path(logFile), entries)
}

// ClearLog truncates the activity log to empty.
func (s *Store) ClearLog() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeJSONAtomic(s.path(logFile), []LogEntry{})
}

// readJSON decodes path into v, leaving v at its caller-supplied zero
// value (default) when the file is missing or contains invalid JSON.
func readJSON(path string, v any) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	_ = json.Unmarshal(data, v)
}

// writeJSONAtomic marshals v and writes it to path via a temp file in the
// same directory followed by an atomic rename, so a crash mid-write never
// leaves a truncated document in place. The final file is owner-only,
// matching the reference agent's config-save permission pattern.
func writeJSONAtomic(path string, v any) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	payload, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Chmod(tmpPath, 0600); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}
