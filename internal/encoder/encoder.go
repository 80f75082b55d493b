// Package encoder implements the mirroring host's video encoder contract:
// construction from (codec, dimensions, bitrate, fps, keyframe interval), a
// monotonic 100ns timestamp model, a keyframe-interval policy, and a
// hardware-then-software backend selection mirroring the capture package's
// factory registry.
package encoder

import (
	"errors"
	"fmt"
	"sync"

	"github.com/kelocube/mirror-host/internal/codec"
)

var (
	ErrUnsupportedCodec    = errors.New("encoder: codec requires a hardware backend not available on this build")
	ErrInvalidDimensions   = errors.New("encoder: width and height must be even and >= 2")
	ErrInvalidBitrate      = errors.New("encoder: bitrate_kbps must be > 0")
	ErrInvalidFPS          = errors.New("encoder: fps must be > 0")
	ErrNotInitialized      = errors.New("encoder: not initialized")
)

// Config is the construction contract: (codec_id, width, height,
// bitrate_kbps, fps, keyframe_interval). Only H264 and H265 are required to
// succeed; other codec ids fail construction unless a hardware backend
// claims support.
type Config struct {
	CodecID          codec.ID
	Width            int
	Height           int
	BitrateKbps      int
	FPS              int
	KeyframeInterval int
}

func (c Config) validate() error {
	if c.Width < 2 || c.Height < 2 || c.Width%2 != 0 || c.Height%2 != 0 {
		return ErrInvalidDimensions
	}
	if c.BitrateKbps <= 0 {
		return ErrInvalidBitrate
	}
	if c.FPS <= 0 {
		return ErrInvalidFPS
	}
	return nil
}

// Output is one encoded bitstream plus its presentation timestamp and
// keyframe flag.
type Output struct {
	Bitstream    []byte
	Timestamp100 int64
	Keyframe     bool
}

// backend is the pluggable encode contract. A backend sees every frame
// (frameIndex is 0-based and monotonic for the lifetime of the backend) and
// decides bitstream content and keyframe placement.
type backend interface {
	Encode(input []byte, frameIndex uint64, forceKeyframe bool) (Output, error)
	Close() error
	Name() string
	IsHardware() bool
}

type backendFactory func(cfg Config) (backend, error)

var (
	hardwareFactoriesMu sync.Mutex
	hardwareFactories   []backendFactory
)

// registerHardwareFactory installs a candidate hardware backend
// constructor, tried in registration order before falling back to the
// software degraded-mode backend.
func registerHardwareFactory(factory backendFactory) {
	hardwareFactoriesMu.Lock()
	defer hardwareFactoriesMu.Unlock()
	hardwareFactories = append(hardwareFactories, factory)
}

// Encoder wraps a selected backend with the frame-index/timestamp bookkeeping
// shared by every backend.
type Encoder struct {
	mu         sync.Mutex
	cfg        Config
	be         backend
	frameIndex uint64
	forceNext  bool
}

// New constructs an Encoder for cfg, trying registered hardware backends
// first and falling back to the software degraded-mode backend. Only H264
// and H265 are guaranteed to succeed on the software path; other codecs
// succeed only if a hardware backend accepts them.
func New(cfg Config) (*Encoder, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	be := tryHardware(cfg)
	if be == nil {
		var err error
		be, err = newSoftwareBackend(cfg)
		if err != nil {
			return nil, err
		}
	}

	return &Encoder{cfg: cfg, be: be}, nil
}

func tryHardware(cfg Config) backend {
	hardwareFactoriesMu.Lock()
	factories := append([]backendFactory(nil), hardwareFactories...)
	hardwareFactoriesMu.Unlock()
	for _, factory := range factories {
		be, err := factory(cfg)
		if err == nil && be != nil {
			return be
		}
	}
	return nil
}

// Encode produces one Output for input, advancing the internal frame index.
// The presentation timestamp follows timestamp = frame_index *
// (10_000_000/max(fps,1)) unless the backend supplies its own.
func (e *Encoder) Encode(input []byte) (Output, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.be == nil {
		return Output{}, ErrNotInitialized
	}

	force := e.forceNext
	e.forceNext = false

	out, err := e.be.Encode(input, e.frameIndex, force)
	if err != nil {
		return Output{}, err
	}
	if out.Timestamp100 == 0 && e.frameIndex > 0 {
		out.Timestamp100 = defaultTimestamp(e.frameIndex, e.cfg.FPS)
	}
	e.frameIndex++
	return out, nil
}

func defaultTimestamp(frameIndex uint64, fps int) int64 {
	if fps <= 0 {
		fps = 1
	}
	return int64(frameIndex) * (10_000_000 / int64(fps))
}

// ForceKeyframe requests the next Encode call produce a keyframe, e.g. for
// the first frame after a reconnect. Nothing in the streaming loop calls it.
func (e *Encoder) ForceKeyframe() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.forceNext = true
}

// SetBitrateKbps updates the target bitrate for subsequent frames.
func (e *Encoder) SetBitrateKbps(kbps int) error {
	if kbps <= 0 {
		return ErrInvalidBitrate
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg.BitrateKbps = kbps
	if s, ok := e.be.(interface{ setBitrateKbps(int) }); ok {
		s.setBitrateKbps(kbps)
	}
	return nil
}

func (e *Encoder) BackendName() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.be == nil {
		return ""
	}
	return e.be.Name()
}

func (e *Encoder) BackendIsHardware() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.be != nil && e.be.IsHardware()
}

func (e *Encoder) Close() error {
	e.mu.Lock()
	be := e.be
	e.be = nil
	e.mu.Unlock()
	if be == nil {
		return nil
	}
	return be.Close()
}

func unsupportedCodec(id codec.ID) error {
	return fmt.Errorf("%w: %s", ErrUnsupportedCodec, id)
}
