// Package session drives the lifecycle state machine described by the
// connect → capabilities exchange → configure → stream → disconnect
// sequence: it negotiates a codec, builds and sends the Configure packet,
// snapshots the bytes needed to replay a session after a transport loss,
// and runs the bounded automatic-reconnect procedure.
package session

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kelocube/mirror-host/internal/codec"
	"github.com/kelocube/mirror-host/internal/registry"
	"github.com/kelocube/mirror-host/internal/transport"
	"github.com/kelocube/mirror-host/internal/wire"
)

// reconnectBackoff is the fixed schedule of three reconnect attempts.
var reconnectBackoff = [3]time.Duration{
	1500 * time.Millisecond,
	3000 * time.Millisecond,
	6000 * time.Millisecond,
}

var (
	ErrNoCompatibleCodec = codec.ErrNoCompatibleCodec
	ErrNotConnected      = errors.New("session: transport not connected")
)

// Config mirrors the immutable-after-Configured session configuration.
type Config struct {
	Width, Height         int
	HostWidth, HostHeight int
	EncoderID             int32
}

func (c Config) validate() error {
	if c.Width < 2 || c.Height < 2 || c.Width%2 != 0 || c.Height%2 != 0 {
		return fmt.Errorf("session: client dimensions must be even and >= 2")
	}
	if c.HostWidth < 2 || c.HostHeight < 2 || c.HostWidth%2 != 0 || c.HostHeight%2 != 0 {
		return fmt.Errorf("session: host dimensions must be even and >= 2")
	}
	if c.EncoderID == 0 {
		return fmt.Errorf("session: encoder_id must be non-zero once configured")
	}
	return nil
}

// InputHandler is re-exported so callers only need to import this package
// to satisfy transport.Connect's input parameter.
type InputHandler = transport.InputHandler

// Manager owns one connection attempt at a time, negotiates the codec, and
// arms/runs the reconnect procedure. It does not itself store lifecycle or
// stats — those live exclusively in the registry.
type Manager struct {
	reg   *registry.Manager
	input InputHandler

	preferredCodec *codec.ID

	mu          sync.Mutex
	conn        *transport.Conn
	host        string
	port        uint16
	cfg         Config
	capsBytes   []byte
	configBytes []byte
	autoReconnect bool

	reconnecting atomic.Bool
}

// New returns a Manager bound to reg for state storage and input for
// dispatching incoming touch/pen/keyboard packets.
func New(reg *registry.Manager, input InputHandler) *Manager {
	return &Manager{reg: reg, input: input}
}

// SetPreferredCodec overrides the fixed priority order used when
// negotiating, per saved host settings.
func (m *Manager) SetPreferredCodec(id *codec.ID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.preferredCodec = id
}

// Connect dials host:port, exchanges capabilities, negotiates a codec
// against clientCodecMask, sends the Configure packet for cfg, and
// snapshots the session for reconnect replay.
func (m *Manager) Connect(host string, port uint16, clientCodecMask uint32, cfg Config) (codec.ID, error) {
	if err := cfg.validate(); err != nil {
		return 0, err
	}

	m.reg.SetLifecycle(registry.Connecting)

	hostMask := codec.HostMask()
	selected, ok := codec.Select(hostMask, clientCodecMask, m.preferredCodecLocked())
	if !ok {
		m.reg.SetLifecycle(registry.Error)
		return 0, ErrNoCompatibleCodec
	}

	conn, err := transport.Connect(host, port, m.input, m.onTransportClosed)
	if err != nil {
		m.reg.SetLifecycle(registry.Error)
		return 0, err
	}

	capsPacket := wire.BuildCapabilitiesPacket(wire.CapabilitiesPacket{CodecMask: hostMask})
	if err := conn.SendFramedPacket(capsPacket); err != nil {
		conn.Close()
		m.reg.SetLifecycle(registry.Error)
		return 0, err
	}

	configPacket := wire.BuildConfigurePacket(wire.ConfigurePacket{
		Width: int32(cfg.Width), Height: int32(cfg.Height),
		HostWidth: int32(cfg.HostWidth), HostHeight: int32(cfg.HostHeight),
		EncoderID: cfg.EncoderID,
	})
	if err := conn.SendFramedPacket(configPacket); err != nil {
		conn.Close()
		m.reg.SetLifecycle(registry.Error)
		return 0, err
	}

	m.mu.Lock()
	m.conn = conn
	m.host, m.port, m.cfg = host, port, cfg
	m.capsBytes, m.configBytes = capsPacket, configPacket
	m.autoReconnect = true
	m.mu.Unlock()

	m.reg.SetCodec(int32(selected))
	m.reg.SetLifecycle(registry.Configured)
	return selected, nil
}

func (m *Manager) preferredCodecLocked() *codec.ID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.preferredCodec
}

// Conn returns the active transport connection, or nil if none.
func (m *Manager) Conn() *transport.Conn {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn
}

// Disconnect tears down the connection, disables auto-reconnect, and
// resets the registry to Idle.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	conn := m.conn
	m.conn = nil
	m.autoReconnect = false
	m.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	m.reg.Reset()
}

// onTransportClosed is transport's onClose callback: triggered by
// end-of-stream or a read error, never by an explicit Disconnect (which
// clears autoReconnect and the stored conn before closing).
func (m *Manager) onTransportClosed(_ error) {
	m.mu.Lock()
	armed := m.autoReconnect
	m.conn = nil
	m.mu.Unlock()

	if armed {
		m.reg.SetLifecycle(registry.Error)
		m.reconnect()
	} else {
		m.reg.SetLifecycle(registry.Idle)
	}
}

// reconnect runs the bounded backoff procedure, enforcing single-flight via
// a compare-and-set guard.
func (m *Manager) reconnect() {
	if !m.reconnecting.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer m.reconnecting.Store(false)
		m.reg.SetLifecycle(registry.Connecting)

		for _, delay := range reconnectBackoff {
			time.Sleep(delay)
			m.mu.Lock()
			host, port, caps, configBytes := m.host, m.port, m.capsBytes, m.configBytes
			armed := m.autoReconnect
			m.mu.Unlock()
			if !armed {
				return
			}

			conn, err := transport.Connect(host, port, m.input, m.onTransportClosed)
			if err == nil {
				if err := conn.SendFramedPacket(caps); err == nil {
					_ = conn.SendFramedPacket(configBytes)
				}
				m.mu.Lock()
				m.conn = conn
				m.mu.Unlock()
				m.reg.SetLifecycle(registry.Configured)
				return
			}
		}
		m.reg.SetLifecycle(registry.Error)
	}()
}
