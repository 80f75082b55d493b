// Package streamer runs the single-producer capture→encode→send loop: it
// paces frame emission against both a target fps and the encoder's own
// presentation timestamps, waits for at most one frame's worth of
// client acknowledgement at a time, and publishes a rolling SessionStats
// snapshot to the registry every second.
package streamer

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/kelocube/mirror-host/internal/capture"
	"github.com/kelocube/mirror-host/internal/codec"
	"github.com/kelocube/mirror-host/internal/encoder"
	"github.com/kelocube/mirror-host/internal/registry"
	"github.com/kelocube/mirror-host/internal/transport"
	"github.com/kelocube/mirror-host/internal/wire"
)

// ConnProvider returns the session's current transport connection, or nil
// while disconnected/reconnecting. The streamer re-resolves it on every
// send so a mid-stream reconnect is transparent to the loop.
type ConnProvider interface {
	Conn() *transport.Conn
}

// Config is the fixed-for-the-session-lifetime streaming configuration.
type Config struct {
	TargetID  int
	Width     int
	Height    int
	EncoderID int32
	FPS       int
}

const consecutiveFailureLimit = 3

// Streamer owns the capture source and encoder instance for one streaming
// session. It is not safe for concurrent Start calls; Stop may be called
// from any goroutine.
type Streamer struct {
	reg   *registry.Manager
	conns ConnProvider

	running atomic.Bool
	done    chan struct{}

	mu  sync.Mutex
	src capture.Source
	enc *encoder.Encoder
	cfg Config

	lastCapturePath  string
	lastCaptureScale string

	failures capture.FailureCounters
}

func New(reg *registry.Manager, conns ConnProvider) *Streamer {
	return &Streamer{reg: reg, conns: conns}
}

// Start constructs the capture source and encoder for cfg and codecID and
// launches the streaming loop. A second Start call while already running
// is a no-op, matching the source's swap-on-running-flag idempotency.
func (s *Streamer) Start(codecID int32, bitrateKbps, keyframeInterval int, cfg Config) error {
	if !s.running.CompareAndSwap(false, true) {
		return nil
	}

	src, err := capture.New()
	if err != nil {
		s.running.Store(false)
		return err
	}

	enc, err := encoder.New(encoder.Config{
		CodecID:          codec.ID(codecID),
		Width:            cfg.Width,
		Height:           cfg.Height,
		BitrateKbps:      bitrateKbps,
		FPS:              cfg.FPS,
		KeyframeInterval: keyframeInterval,
	})
	if err != nil {
		src.Close()
		s.running.Store(false)
		return err
	}

	s.mu.Lock()
	s.src, s.enc, s.cfg = src, enc, cfg
	s.mu.Unlock()

	s.done = make(chan struct{})
	s.reg.SetLifecycle(registry.Streaming)
	go s.loop()
	return nil
}

// Stop clears the running flag and waits for the loop to finish its current
// emission cycle and release the capture source and encoder. It does not
// change the registry's lifecycle, so the last published stats stay in
// place until the caller moves the registry off Streaming.
func (s *Streamer) Stop() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}
	<-s.done
}

func (s *Streamer) loop() {
	defer close(s.done)
	defer s.teardown()

	s.mu.Lock()
	fps := s.cfg.FPS
	s.mu.Unlock()
	if fps <= 0 {
		fps = 1
	}
	framePeriod := time.Second / time.Duration(fps)
	maxWait := 2 * framePeriod
	if maxWait < 8*time.Millisecond {
		maxWait = 8 * time.Millisecond
	}

	var (
		awaitingAck      bool
		lastSend         time.Time
		prevTimestamp100 int64
		consecutiveFails int

		windowStart   = time.Now()
		windowFrames  int
		windowBytes   int
		totalFrames   uint64
	)

	for s.running.Load() {
		if awaitingAck {
			if s.pollAck() || time.Since(lastSend) >= maxWait {
				awaitingAck = false
			} else {
				time.Sleep(4 * time.Millisecond)
				continue
			}
		}

		out, ok := s.encodeOneFrame()
		if !ok {
			consecutiveFails++
			if consecutiveFails >= consecutiveFailureLimit {
				s.reg.SetLifecycle(registry.Error)
			}
			time.Sleep(framePeriod)
			continue
		}
		if consecutiveFails > 0 {
			consecutiveFails = 0
			if s.reg.Lifecycle() == registry.Error {
				s.reg.SetLifecycle(registry.Streaming)
			}
		}

		packet := wire.BuildFramePacket(wire.FramePacket{FrameMeta: 0, Bitstream: out.Bitstream})
		if conn := s.conns.Conn(); conn != nil {
			_ = conn.SendFramedPacket(packet)
		}

		awaitingAck = true
		lastSend = time.Now()
		windowFrames++
		windowBytes += len(out.Bitstream)
		totalFrames++

		sleep := framePeriod
		if prevTimestamp100 != 0 && out.Timestamp100 > prevTimestamp100 {
			delta := time.Duration(out.Timestamp100-prevTimestamp100) * 100 * time.Nanosecond
			if delta > 0 {
				sleep = delta
			}
		}
		prevTimestamp100 = out.Timestamp100

		if elapsed := time.Since(windowStart); elapsed >= time.Second {
			s.publishStats(windowFrames, windowBytes, totalFrames, len(out.Bitstream), elapsed)
			windowStart = time.Now()
			windowFrames, windowBytes = 0, 0
		}

		time.Sleep(sleep)
	}
}

func (s *Streamer) encodeOneFrame() (encoder.Output, bool) {
	s.mu.Lock()
	src, enc, cfg := s.src, s.enc, s.cfg
	s.mu.Unlock()

	width, height := capture.AlignEven(cfg.Width, cfg.Height)
	frame, err := src.Capture(cfg.TargetID, width, height)
	if err != nil {
		s.failures.Record(err)
		return encoder.Output{}, false
	}

	out, err := enc.Encode(frame.NV12)
	if err != nil {
		s.failures.Record(err)
		return encoder.Output{}, false
	}
	s.mu.Lock()
	s.lastCapturePath, s.lastCaptureScale = frame.Path, frame.Scale
	s.mu.Unlock()
	return out, true
}

func (s *Streamer) pollAck() bool {
	conn := s.conns.Conn()
	if conn == nil {
		return false
	}
	done, ok := conn.PollFrameDone()
	if !ok {
		return false
	}
	s.mu.Lock()
	encoderID := s.cfg.EncoderID
	s.mu.Unlock()
	return done.EncoderID == encoderID
}

func (s *Streamer) publishStats(frames, bytes int, totalFrames uint64, lastFrameBytes int, elapsed time.Duration) {
	seconds := elapsed.Seconds()
	if seconds <= 0 {
		seconds = 1
	}
	timeouts, accessLost, other := s.failures.Snapshot()
	queueDepth := 0
	if s.running.Load() {
		queueDepth = 1
	}
	s.mu.Lock()
	capturePath, captureScale := s.lastCapturePath, s.lastCaptureScale
	s.mu.Unlock()
	s.reg.SetStats(registry.SessionStats{
		FPS:               float64(frames) / seconds,
		BitrateKbps:       float64(bytes*8) / 1000 / seconds,
		FramesSent:        totalFrames,
		LastFrameBytes:    lastFrameBytes,
		QueueDepth:        queueDepth,
		CaptureTimeouts:   timeouts,
		CaptureAccessLost: accessLost,
		CaptureOther:      other,
		CapturePath:       capturePath,
		CaptureScale:      captureScale,
	})
}

func (s *Streamer) teardown() {
	s.mu.Lock()
	src, enc := s.src, s.enc
	s.src, s.enc = nil, nil
	s.mu.Unlock()
	if src != nil {
		src.Close()
	}
	if enc != nil {
		enc.Close()
	}
}
