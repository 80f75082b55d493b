// Package transport owns the TCP byte stream to the tablet client: the
// handshake write, the framed outbound send, and the inbound reader that
// reassembles the two-layer chunk/packet wire format and deposits parsed
// packets without blocking on downstream work.
package transport

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/kelocube/mirror-host/internal/wire"
)

// ErrNotConnected is returned by SendFramedPacket once the connection has
// been closed, matching the source's "TCP stream not connected" failure.
var ErrNotConnected = errors.New("transport: not connected")

// InputHandler receives input packets as the reader parses them. Calls are
// synchronous on the reader goroutine; implementations must not block.
type InputHandler interface {
	HandleTouch(wire.TouchPacket)
	HandlePen(wire.PenPacket)
	HandleKeyboard(wire.KeyboardPacket)
	HandleInputKey(wire.InputKeyPacket)
}

// mailbox is a single-slot overwrite-on-deposit box, matching the source's
// "deposit in a mailbox, read by the session manager" handoff for
// Capabilities and FrameDone packets so the reader never blocks waiting for
// a consumer.
type mailbox[T any] struct {
	mu  sync.Mutex
	val *T
}

func (m *mailbox[T]) deposit(v T) {
	m.mu.Lock()
	m.val = &v
	m.mu.Unlock()
}

// take returns the deposited value and clears the slot, or ok=false if
// nothing has been deposited since the last take.
func (m *mailbox[T]) take() (T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.val == nil {
		var zero T
		return zero, false
	}
	v := *m.val
	m.val = nil
	return v, true
}

// Conn is one connected session's transport. Callers obtain a Conn from
// Connect; it owns the socket and the reader goroutine for its lifetime.
type Conn struct {
	conn net.Conn

	writeMu sync.Mutex

	capsMailbox  mailbox[wire.CapabilitiesPacket]
	doneMailbox  mailbox[wire.FrameDonePacket]

	input InputHandler

	closeOnce sync.Once
	closed    chan struct{}
	onClose   func(error)
}

// Connect opens a TCP connection to addr:port, disables Nagle, writes the
// host handshake, and starts the inbound reader. input receives parsed
// touch/pen/keyboard packets as they arrive; onClose is invoked at most
// once, when the reader loop exits on end-of-stream (nil error) or a read
// error. It is not invoked once Close has been called.
func Connect(addr string, port uint16, input InputHandler, onClose func(error)) (*Conn, error) {
	target := net.JoinHostPort(addr, fmt.Sprint(port))
	nc, err := net.DialTimeout("tcp", target, 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", target, err)
	}
	if tcpConn, ok := nc.(*net.TCPConn); ok {
		_ = tcpConn.SetNoDelay(true)
	}

	handshake, err := wire.BuildHostHandshake(wire.ProtocolVersion)
	if err != nil {
		nc.Close()
		return nil, err
	}
	if _, err := nc.Write(handshake); err != nil {
		nc.Close()
		return nil, fmt.Errorf("transport: write handshake: %w", err)
	}

	c := &Conn{
		conn:    nc,
		input:   input,
		closed:  make(chan struct{}),
		onClose: onClose,
	}
	go c.readLoop()
	return c, nil
}

// SendFramedPacket writes u32 LE len + pkt through the chunk layer on
// stream 0. pkt is a fully built application packet (data_type byte
// followed by its body, as returned by the wire package's BuildXPacket
// helpers).
func (c *Conn) SendFramedPacket(pkt []byte) error {
	if len(pkt) == 0 {
		return fmt.Errorf("transport: empty packet")
	}
	select {
	case <-c.closed:
		return ErrNotConnected
	default:
	}

	inner := wire.EncodeStreamPacket(pkt[0], pkt[1:])
	chunked := wire.WriteStreamChunks(0, inner, nil)

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err := c.conn.Write(chunked)
	if err != nil {
		return fmt.Errorf("transport: write: %w", err)
	}
	return nil
}

// PollCapabilities returns and clears the most recently deposited
// Capabilities packet from the client, if any has arrived since the last
// call.
func (c *Conn) PollCapabilities() (wire.CapabilitiesPacket, bool) {
	return c.capsMailbox.take()
}

// PollFrameDone returns and clears the most recently deposited FrameDone
// packet, if any has arrived since the last call.
func (c *Conn) PollFrameDone() (wire.FrameDonePacket, bool) {
	return c.doneMailbox.take()
}

// Close tears down the socket. Safe to call multiple times and from any
// goroutine; onClose is not invoked for an explicit Close.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.conn.Close()
	})
	return err
}

func (c *Conn) readLoop() {
	reassembler := wire.NewReassembler()
	var pending []byte
	readBuf := make([]byte, 4096)
	var closeErr error

	for {
		n, err := c.conn.Read(readBuf)
		if n > 0 {
			pending = append(pending, readBuf[:n]...)
			for {
				streamID, chunkLen, ok := wire.ReadChunkHeader(pending)
				if !ok || len(pending) < 3+chunkLen {
					break
				}
				reassembler.Feed(streamID, pending[3:3+chunkLen])
				pending = pending[3+chunkLen:]

				for _, body := range reassembler.DrainPackets(streamID) {
					c.dispatch(body)
				}
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				closeErr = err
			}
			break
		}
	}

	select {
	case <-c.closed:
		// explicit Close already in progress; no onClose callback.
	default:
		c.conn.Close()
		if c.onClose != nil {
			c.onClose(closeErr)
		}
	}
}

func (c *Conn) dispatch(body []byte) {
	pkt, err := wire.ParseClientPacket(body)
	if err != nil {
		return
	}
	switch {
	case pkt.Capabilities != nil:
		c.capsMailbox.deposit(*pkt.Capabilities)
	case pkt.FrameDone != nil:
		c.doneMailbox.deposit(*pkt.FrameDone)
	case pkt.Touch != nil:
		if c.input != nil {
			c.input.HandleTouch(*pkt.Touch)
		}
	case pkt.Pen != nil:
		if c.input != nil {
			c.input.HandlePen(*pkt.Pen)
		}
	case pkt.Keyboard != nil:
		if c.input != nil {
			c.input.HandleKeyboard(*pkt.Keyboard)
		}
	case pkt.InputKey != nil:
		if c.input != nil {
			c.input.HandleInputKey(*pkt.InputKey)
		}
	}
}
