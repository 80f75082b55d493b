// Package wire implements the mirroring host's byte-level wire protocol:
// the handshake prelude, the stream-chunk framing layer, and the typed
// application packet catalogue.
package wire

import (
	"errors"
	"fmt"
)

const (
	handshakeBase       = "KELOCUBE_MIRR_"
	handshakeVersionLen = 3
)

// ErrVersionOutOfRange is returned when a handshake version exceeds the
// three-digit decimal field it is encoded into.
var ErrVersionOutOfRange = errors.New("wire: handshake version must be between 0 and 999")

// BuildHostHandshake returns the ASCII prelude the host writes before any
// other byte on a newly connected transport: "KELOCUBE_MIRR_" followed by a
// zero-padded three digit decimal version and a trailing NUL.
func BuildHostHandshake(version uint16) ([]byte, error) {
	if version > 999 {
		return nil, fmt.Errorf("%w: %d", ErrVersionOutOfRange, version)
	}
	buf := make([]byte, 0, len(handshakeBase)+handshakeVersionLen+1)
	buf = append(buf, handshakeBase...)
	buf = append(buf, fmt.Sprintf("%0*d", handshakeVersionLen, version)...)
	buf = append(buf, 0)
	return buf, nil
}

// ProtocolVersion is the protocol version this implementation speaks.
const ProtocolVersion = 4
