//go:build nvenc
// +build nvenc

package encoder

import (
	"sync"

	"github.com/kelocube/mirror-host/internal/codec"
)

// nvencBackend is a placeholder hardware backend compiled only under the
// nvenc build tag, standing in for a real NVENC SDK binding. It follows the
// same canonical dummy-payload formula as the software backend but with
// HardwareAvailable=true, so switching this build tag on is observable in
// session stats (backend label, frame sizes) without requiring the actual
// vendor SDK to be present.
type nvencBackend struct {
	mu          sync.Mutex
	codecID     codec.ID
	width       int
	height      int
	bitrateKbps int
	fps         int
	keyframeInt int
}

func init() {
	registerHardwareFactory(newNVENCBackend)
}

func newNVENCBackend(cfg Config) (backend, error) {
	switch cfg.CodecID {
	case codec.H264, codec.AV1:
	default:
		return nil, unsupportedCodec(cfg.CodecID)
	}
	return &nvencBackend{
		codecID:     cfg.CodecID,
		width:       cfg.Width,
		height:      cfg.Height,
		bitrateKbps: cfg.BitrateKbps,
		fps:         cfg.FPS,
		keyframeInt: cfg.KeyframeInterval,
	}, nil
}

func (n *nvencBackend) Encode(_ []byte, frameIndex uint64, forceKeyframe bool) (Output, error) {
	n.mu.Lock()
	codecID, width, height, bitrateKbps, fps, keyframeInt := n.codecID, n.width, n.height, n.bitrateKbps, n.fps, n.keyframeInt
	n.mu.Unlock()

	isKeyframe := forceKeyframe || frameIndex == 0 || (keyframeInt > 0 && frameIndex%uint64(keyframeInt) == 0)

	size := dummyPayloadSize(dummyPayloadParams{
		BitrateKbps:       bitrateKbps,
		FPS:               fps,
		Width:             width,
		Height:            height,
		HardwareAvailable: true,
		CodecID:           codecID,
		Keyframe:          isKeyframe,
	})

	payload := make([]byte, size)
	fillDummyPayload(payload, frameIndex)

	return Output{
		Bitstream:    payload,
		Timestamp100: defaultTimestamp(frameIndex, fps),
		Keyframe:     isKeyframe,
	}, nil
}

func (n *nvencBackend) setBitrateKbps(kbps int) {
	n.mu.Lock()
	n.bitrateKbps = kbps
	n.mu.Unlock()
}

func (n *nvencBackend) Close() error { return nil }

func (n *nvencBackend) Name() string { return "nvenc" }

func (n *nvencBackend) IsHardware() bool { return true }
