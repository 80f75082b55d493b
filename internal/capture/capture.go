// Package capture defines the screen capture source contract consumed by
// the streamer. Concrete GPU duplication bindings are an external
// collaborator; this package ships only the interface, an error-class
// taxonomy, a process-wide factory registry, and one deterministic
// reference implementation used when no platform factory registers
// itself.
package capture

import (
	"errors"
	"fmt"
	"math"
	"sync"
)

// Sentinel error classes a Source must distinguish on Capture failure.
var (
	// ErrTimeout indicates no new frame arrived within the short capture
	// wait. Benign; the caller should retry on the next tick.
	ErrTimeout = errors.New("capture: timeout waiting for frame")
	// ErrAccessLost indicates the capture context itself is no longer
	// valid (e.g. the desktop duplication interface was revoked by a
	// mode switch) and must be recreated before the next call.
	ErrAccessLost = errors.New("capture: access lost, context must be rebuilt")
	// ErrNotSupported indicates the platform has no capture backend
	// registered at all.
	ErrNotSupported = errors.New("capture: not supported on this platform")
)

// Frame is a single captured surface: NV12 plane bytes sized for
// width*height*3/2, plus diagnostic labels describing how it was produced.
type Frame struct {
	NV12   []byte
	Width  int
	Height int

	// Path is "GPU" or "CPU", naming the capture path actually used.
	Path string
	// Scale is "1:1" or "Scaled", naming whether downscaling was applied.
	Scale string
}

// Source is the capture contract the streamer drives once per loop
// iteration. Implementations own a single process-wide capture context for
// a given (targetID, width, height) and must reinitialize it whenever any
// of those change or after any non-timeout error.
type Source interface {
	// Capture acquires one frame for the given target display at the
	// given (pre-aligned-to-even) dimensions. Errors should be one of
	// ErrTimeout, ErrAccessLost, or a wrapped opaque failure.
	Capture(targetID int, width, height int) (Frame, error)
	// Close releases any resources held by the capture context.
	Close() error
}

// Factory constructs a Source. Platform packages register a Factory via
// RegisterFactory in an init() function guarded by a build tag, mirroring
// the encoder package's hardware-backend registry.
type Factory func() (Source, error)

var (
	factoryMu sync.Mutex
	factory   Factory
)

// RegisterFactory installs the platform capture factory. Only the last
// registration wins; callers are expected to register at most one factory
// per build (selected via build tags).
func RegisterFactory(f Factory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	factory = f
}

// New constructs a Source using the registered platform factory, falling
// back to the synthetic reference implementation when none is registered.
func New() (Source, error) {
	factoryMu.Lock()
	f := factory
	factoryMu.Unlock()

	if f != nil {
		src, err := f()
		if err == nil {
			return src, nil
		}
		return nil, fmt.Errorf("capture: platform factory failed: %w", err)
	}
	return newSyntheticSource(), nil
}

// AlignEven rounds down w/h to the nearest even value, clamped to a
// minimum of 2, matching the contract's "pre-aligned to even numbers"
// requirement for capture dimensions.
func AlignEven(w, h int) (int, int) {
	if w < 2 {
		w = 2
	}
	if h < 2 {
		h = 2
	}
	return w &^ 1, h &^ 1
}

// FailureCounters is a saturating per-class failure tally, published to
// session stats (spec §3, "capture failure counters").
type FailureCounters struct {
	mu         sync.Mutex
	Timeouts   uint64
	AccessLost uint64
	Other      uint64
}

// Record increments the counter matching err's class.
func (c *FailureCounters) Record(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case errors.Is(err, ErrTimeout):
		if c.Timeouts < math.MaxUint64 {
			c.Timeouts++
		}
	case errors.Is(err, ErrAccessLost):
		if c.AccessLost < math.MaxUint64 {
			c.AccessLost++
		}
	default:
		if c.Other < math.MaxUint64 {
			c.Other++
		}
	}
}

// Snapshot returns a copy of the current counts.
func (c *FailureCounters) Snapshot() (timeouts, accessLost, other uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Timeouts, c.AccessLost, c.Other
}
