// Package probe reports the host's external TCP transport status: whether
// the mirroring port has a bound listener, and how many established
// connections are currently attached to it. It is read-only — it never
// opens or closes sockets itself, only enumerates what the OS already
// holds, the same way the reference agent's connection collector builds
// its per-socket inventory from gopsutil rather than raw syscalls.
package probe

import (
	"github.com/shirou/gopsutil/v3/net"
)

// DefaultPort is the mirroring host's default listen port.
const DefaultPort = 1445

// Status is a point-in-time read of the transport's TCP state.
type Status struct {
	TCPListening   bool
	TCPConnections int
}

// Probe enumerates the host's TCP sockets and reports whether port has a
// bound listener and how many ESTABLISHED connections are attached to it.
func Probe(port uint16) (Status, error) {
	conns, err := net.Connections("tcp")
	if err != nil {
		return Status{}, err
	}

	var status Status
	for _, c := range conns {
		if c.Laddr.Port != uint32(port) {
			continue
		}
		switch c.Status {
		case "LISTEN":
			status.TCPListening = true
		case "ESTABLISHED":
			status.TCPConnections++
		}
	}
	return status, nil
}
