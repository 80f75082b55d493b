package encoder

import (
	"sync"

	"github.com/kelocube/mirror-host/internal/codec"
)

// softwareBackend is the degraded-mode backend used whenever no hardware
// factory claims the configuration. It never touches the input pixels; it
// emits a well-formed dummy payload whose size follows the canonical
// formula so pacing and bitrate accounting stay realistic without a real
// codec binding.
type softwareBackend struct {
	mu          sync.Mutex
	codecID     codec.ID
	width       int
	height      int
	bitrateKbps int
	fps         int
	keyframeInt int
}

func newSoftwareBackend(cfg Config) (backend, error) {
	switch cfg.CodecID {
	case codec.H264, codec.H265:
	default:
		return nil, unsupportedCodec(cfg.CodecID)
	}
	return &softwareBackend{
		codecID:     cfg.CodecID,
		width:       cfg.Width,
		height:      cfg.Height,
		bitrateKbps: cfg.BitrateKbps,
		fps:         cfg.FPS,
		keyframeInt: cfg.KeyframeInterval,
	}, nil
}

func (s *softwareBackend) Encode(_ []byte, frameIndex uint64, forceKeyframe bool) (Output, error) {
	s.mu.Lock()
	codecID, width, height, bitrateKbps, fps, keyframeInt := s.codecID, s.width, s.height, s.bitrateKbps, s.fps, s.keyframeInt
	s.mu.Unlock()

	isKeyframe := forceKeyframe || frameIndex == 0 || (keyframeInt > 0 && frameIndex%uint64(keyframeInt) == 0)

	n := dummyPayloadSize(dummyPayloadParams{
		BitrateKbps:      bitrateKbps,
		FPS:              fps,
		Width:            width,
		Height:           height,
		HardwareAvailable: false,
		CodecID:          codecID,
		Keyframe:         isKeyframe,
	})

	payload := make([]byte, n)
	fillDummyPayload(payload, frameIndex)

	return Output{
		Bitstream:    payload,
		Timestamp100: defaultTimestamp(frameIndex, fps),
		Keyframe:     isKeyframe,
	}, nil
}

func (s *softwareBackend) setBitrateKbps(kbps int) {
	s.mu.Lock()
	s.bitrateKbps = kbps
	s.mu.Unlock()
}

func (s *softwareBackend) Close() error { return nil }

func (s *softwareBackend) Name() string { return "software" }

func (s *softwareBackend) IsHardware() bool { return false }

// dummyPayloadParams carries the inputs to the canonical degraded-mode size
// formula so it can be reused unchanged by both the software and build-tagged
// hardware-placeholder backends.
type dummyPayloadParams struct {
	BitrateKbps       int
	FPS               int
	Width             int
	Height            int
	HardwareAvailable bool
	CodecID           codec.ID
	Keyframe          bool
}

const (
	minFrameBytes     = 128
	maxFrameBytes     = 512 * 1024
	minResolutionBytes = 256
	maxKeyframeBytes  = 768 * 1024
)

// dummyPayloadSize implements the canonical dummy-payload size formula,
// applied in this exact order: bitrate estimate, resolution floor, halving
// when no hardware is available, H265's 10% discount, then keyframe
// doubling.
func dummyPayloadSize(p dummyPayloadParams) int {
	fps := p.FPS
	if fps <= 0 {
		fps = 1
	}

	bitrateBytes := clampInt(p.BitrateKbps*1000/8/fps, minFrameBytes, maxFrameBytes)
	resolutionBytes := clampInt((p.Width*p.Height)/80, minResolutionBytes, maxFrameBytes)

	bytesPerFrame := bitrateBytes
	if resolutionBytes > bytesPerFrame {
		bytesPerFrame = resolutionBytes
	}

	if !p.HardwareAvailable {
		bytesPerFrame = bytesPerFrame / 2
		if bytesPerFrame < minFrameBytes {
			bytesPerFrame = minFrameBytes
		}
	}
	if p.CodecID == codec.H265 {
		bytesPerFrame = bytesPerFrame * 9 / 10
	}
	if p.Keyframe {
		bytesPerFrame *= 2
		if bytesPerFrame > maxKeyframeBytes {
			bytesPerFrame = maxKeyframeBytes
		}
	}
	return bytesPerFrame
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// fillDummyPayload writes a deterministic, non-constant pattern so two
// consecutive dummy frames are byte-distinguishable without claiming to be
// real compressed video.
func fillDummyPayload(buf []byte, frameIndex uint64) {
	seed := byte(frameIndex)
	for i := range buf {
		buf[i] = seed + byte(i)
	}
}
