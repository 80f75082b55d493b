// Package registry is the process-wide, single-instance rollup of session
// state: lifecycle, negotiated codec, encoder backend label, active device,
// input permissions, display target, and rolling session statistics. It is
// the exclusive owner of this state; every other component reads and
// writes it through the accessors here rather than holding its own copy.
package registry

import "sync"

// Lifecycle is the session state machine's current state.
type Lifecycle int

const (
	Idle Lifecycle = iota
	Connecting
	Configured
	Streaming
	Error
)

func (l Lifecycle) String() string {
	switch l {
	case Idle:
		return "Idle"
	case Connecting:
		return "Connecting"
	case Configured:
		return "Configured"
	case Streaming:
		return "Streaming"
	case Error:
		return "Error"
	default:
		return "Unknown"
	}
}

// InputPermissions gates which input categories the session reports as
// allowed. The host never injects input itself; these flags only decide
// whether an incoming touch/pen/keyboard packet is acted on downstream.
type InputPermissions struct {
	EnableInput bool
	Touch       bool
	Pen         bool
	Keyboard    bool
}

// DefaultInputPermissions matches the paired-device default: every category
// allowed once input is enabled.
func DefaultInputPermissions() InputPermissions {
	return InputPermissions{EnableInput: true, Touch: true, Pen: true, Keyboard: true}
}

// SessionStats is the rolling per-second snapshot published by the
// streamer.
type SessionStats struct {
	FPS             float64
	BitrateKbps     float64
	FramesSent      uint64
	FramesAcked     uint64
	LastFrameBytes  int
	QueueDepth      int
	CaptureTimeouts uint64
	CaptureAccessLost uint64
	CaptureOther    uint64
	CapturePath     string
	CaptureScale    string
}

// Snapshot is a point-in-time copy of the full session state.
type Snapshot struct {
	Lifecycle       Lifecycle
	CodecID         int32
	HasCodec        bool
	EncoderBackend  string
	ActiveDeviceID  string
	InputPermissions InputPermissions
	DisplayTargetID int
	HasDisplayTarget bool
	Stats           SessionStats
}

// Manager is the mutex-guarded session state store.
type Manager struct {
	mu sync.RWMutex

	lifecycle        Lifecycle
	codecID          int32
	hasCodec         bool
	encoderBackend   string
	activeDeviceID   string
	inputPermissions InputPermissions
	displayTargetID  int
	hasDisplayTarget bool
	stats            SessionStats
}

// New returns a Manager in the Idle state with default input permissions.
func New() *Manager {
	return &Manager{
		lifecycle:        Idle,
		inputPermissions: DefaultInputPermissions(),
	}
}

// SetLifecycle transitions to l. Leaving Streaming always resets the
// statistics counters; entering Error always zeroes the in-flight queue
// depth, matching the invariant that an error invalidates any queued frame.
func (m *Manager) SetLifecycle(l Lifecycle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lifecycle == Streaming && l != Streaming {
		m.stats = SessionStats{}
	}
	if l == Error {
		m.stats.QueueDepth = 0
	}
	m.lifecycle = l
}

func (m *Manager) Lifecycle() Lifecycle {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lifecycle
}

// SetCodec records the negotiated codec id.
func (m *Manager) SetCodec(id int32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.codecID = id
	m.hasCodec = true
}

func (m *Manager) SetEncoderBackend(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.encoderBackend = name
}

func (m *Manager) SetActiveDevice(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activeDeviceID = id
}

func (m *Manager) SetInputPermissions(p InputPermissions) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inputPermissions = p
}

func (m *Manager) InputPermissions() InputPermissions {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.inputPermissions
}

func (m *Manager) SetDisplayTarget(id int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.displayTargetID = id
	m.hasDisplayTarget = true
}

// SetStats replaces the rolling statistics snapshot, as published by the
// streamer's per-second tick.
func (m *Manager) SetStats(s SessionStats) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats = s
}

// Reset returns the registry to Idle with default permissions and cleared
// stats, used on explicit disconnect.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lifecycle = Idle
	m.codecID = 0
	m.hasCodec = false
	m.encoderBackend = ""
	m.activeDeviceID = ""
	m.displayTargetID = 0
	m.hasDisplayTarget = false
	m.stats = SessionStats{}
}

// Snapshot returns a consistent point-in-time copy of the full session
// state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Snapshot{
		Lifecycle:        m.lifecycle,
		CodecID:          m.codecID,
		HasCodec:         m.hasCodec,
		EncoderBackend:   m.encoderBackend,
		ActiveDeviceID:   m.activeDeviceID,
		InputPermissions: m.inputPermissions,
		DisplayTargetID:  m.displayTargetID,
		HasDisplayTarget: m.hasDisplayTarget,
		Stats:            m.stats,
	}
}
