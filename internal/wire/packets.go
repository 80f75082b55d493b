package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Application packet data_type values. 4, 12 and 14 are this
// implementation's fixed assignment for Capabilities, Capabilities-ack and
// FrameDone — see DESIGN.md, Open Question 1.
const (
	DataTypeState           byte = 0
	DataTypeConfigure       byte = 1
	DataTypeFrame           byte = 3
	DataTypeCapabilities    byte = 4
	DataTypeTouch           byte = 8
	DataTypePen             byte = 9
	DataTypeCapabilitiesAck byte = 12
	DataTypeInputKey        byte = 13
	DataTypeFrameDone       byte = 14
	DataTypeKeyboard        byte = 15
)

var (
	ErrPayloadTooShort    = errors.New("wire: packet payload too short")
	ErrTouchLengthMismatch = errors.New("wire: touch packet length mismatch")
	ErrUnsupportedDataType = errors.New("wire: unsupported data type")
)

// ConfigurePacket is the host->client session configuration, sent once
// negotiation has selected a codec.
type ConfigurePacket struct {
	Width       int32
	Height      int32
	HostWidth   int32
	HostHeight  int32
	EncoderID   int32
}

// FramePacket is one compressed bitstream unit, host->client.
type FramePacket struct {
	FrameMeta byte
	Bitstream []byte
}

// CapabilitiesPacket carries a codec bitmask and a reserved flags word, sent
// by both host (data_type Capabilities) and client (Capabilities-ack).
type CapabilitiesPacket struct {
	CodecMask uint32
	Flags     uint32
}

// FrameDonePacket is the client's acknowledgement of a displayed frame,
// carrying the encoder instance id that produced it.
type FrameDonePacket struct {
	EncoderID int32
}

// TouchPoint is one finger/pointer sample within a TouchPacket.
type TouchPoint struct {
	PointerID byte
	Down      bool
	X, Y      int16
	Size      int16
}

// TouchPacket is a client->host multi-touch sample.
type TouchPacket struct {
	Points []TouchPoint
}

// PenPacket is a client->host stylus sample.
type PenPacket struct {
	Flags               byte
	X, Y                int16
	Pressure            int16
	Rotation            int16
	Tilt                int16
}

// KeyboardPacket is a client->host key event addressed by logical key index.
type KeyboardPacket struct {
	Down     bool
	KeyIndex int32
}

// InputKeyPacket is a client->host discrete button/action event (e.g. a
// hardware or virtual control button distinct from the keyboard map).
type InputKeyPacket struct {
	Down         bool
	ButtonIndex  byte
	Action       int32
}

// BuildStatePacket wraps an opaque payload in the State packet shape.
func BuildStatePacket(payload []byte) []byte {
	buf := make([]byte, 0, 1+len(payload))
	buf = append(buf, DataTypeState)
	buf = append(buf, payload...)
	return buf
}

// BuildConfigurePacket serializes a ConfigurePacket to its 21-byte wire body.
func BuildConfigurePacket(p ConfigurePacket) []byte {
	buf := make([]byte, 0, 1+5*4)
	buf = append(buf, DataTypeConfigure)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(p.Width))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(p.Height))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(p.HostWidth))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(p.HostHeight))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(p.EncoderID))
	return buf
}

// BuildFramePacket serializes a FramePacket to the wire.
func BuildFramePacket(p FramePacket) []byte {
	buf := make([]byte, 0, 2+len(p.Bitstream))
	buf = append(buf, DataTypeFrame, p.FrameMeta)
	buf = append(buf, p.Bitstream...)
	return buf
}

// BuildCapabilitiesPacket serializes the host->client Capabilities packet.
func BuildCapabilitiesPacket(p CapabilitiesPacket) []byte {
	return buildCapabilitiesLike(DataTypeCapabilities, p)
}

// BuildCapabilitiesAckPacket serializes the client->host Capabilities-ack packet.
func BuildCapabilitiesAckPacket(p CapabilitiesPacket) []byte {
	return buildCapabilitiesLike(DataTypeCapabilitiesAck, p)
}

func buildCapabilitiesLike(dataType byte, p CapabilitiesPacket) []byte {
	buf := make([]byte, 0, 9)
	buf = append(buf, dataType)
	buf = binary.LittleEndian.AppendUint32(buf, p.CodecMask)
	buf = binary.LittleEndian.AppendUint32(buf, p.Flags)
	return buf
}

// BuildFrameDonePacket serializes the client->host FrameDone ack.
func BuildFrameDonePacket(p FrameDonePacket) []byte {
	buf := make([]byte, 0, 5)
	buf = append(buf, DataTypeFrameDone)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(p.EncoderID))
	return buf
}

// ClientPacket is the union of packet types the client sends to the host.
type ClientPacket struct {
	Touch        *TouchPacket
	Pen          *PenPacket
	Keyboard     *KeyboardPacket
	InputKey     *InputKeyPacket
	Capabilities *CapabilitiesPacket
	FrameDone    *FrameDonePacket
}

// ParseClientPacket dispatches on the leading data_type byte and parses the
// remaining bytes as the matching packet body.
func ParseClientPacket(bytes []byte) (ClientPacket, error) {
	if len(bytes) < 1 {
		return ClientPacket{}, ErrPayloadTooShort
	}
	dataType, payload := bytes[0], bytes[1:]

	switch dataType {
	case DataTypeTouch:
		p, err := parseTouchPacket(payload)
		if err != nil {
			return ClientPacket{}, err
		}
		return ClientPacket{Touch: &p}, nil
	case DataTypePen:
		p, err := parsePenPacket(payload)
		if err != nil {
			return ClientPacket{}, err
		}
		return ClientPacket{Pen: &p}, nil
	case DataTypeInputKey:
		p, err := parseInputKeyPacket(payload)
		if err != nil {
			return ClientPacket{}, err
		}
		return ClientPacket{InputKey: &p}, nil
	case DataTypeKeyboard:
		p, err := parseKeyboardPacket(payload)
		if err != nil {
			return ClientPacket{}, err
		}
		return ClientPacket{Keyboard: &p}, nil
	case DataTypeCapabilitiesAck:
		p, err := parseCapabilitiesPacket(payload)
		if err != nil {
			return ClientPacket{}, err
		}
		return ClientPacket{Capabilities: &p}, nil
	case DataTypeFrameDone:
		p, err := parseFrameDonePacket(payload)
		if err != nil {
			return ClientPacket{}, err
		}
		return ClientPacket{FrameDone: &p}, nil
	default:
		return ClientPacket{}, fmt.Errorf("%w: %d", ErrUnsupportedDataType, dataType)
	}
}

func parseTouchPacket(payload []byte) (TouchPacket, error) {
	if len(payload) < 1 {
		return TouchPacket{}, ErrPayloadTooShort
	}
	count := int(payload[0])
	rest := payload[1:]
	expectedLen := 1 + count*8
	if len(payload) != expectedLen {
		return TouchPacket{}, ErrTouchLengthMismatch
	}

	points := make([]TouchPoint, 0, count)
	for i := 0; i < count; i++ {
		chunk := rest[i*8 : i*8+8]
		points = append(points, TouchPoint{
			PointerID: chunk[0],
			Down:      chunk[1] != 0,
			X:         int16(binary.LittleEndian.Uint16(chunk[2:4])),
			Y:         int16(binary.LittleEndian.Uint16(chunk[4:6])),
			Size:      int16(binary.LittleEndian.Uint16(chunk[6:8])),
		})
	}
	return TouchPacket{Points: points}, nil
}

func parsePenPacket(payload []byte) (PenPacket, error) {
	if len(payload) != 11 {
		return PenPacket{}, ErrPayloadTooShort
	}
	return PenPacket{
		Flags:    payload[0],
		X:        int16(binary.LittleEndian.Uint16(payload[1:3])),
		Y:        int16(binary.LittleEndian.Uint16(payload[3:5])),
		Pressure: int16(binary.LittleEndian.Uint16(payload[5:7])),
		Rotation: int16(binary.LittleEndian.Uint16(payload[7:9])),
		Tilt:     int16(binary.LittleEndian.Uint16(payload[9:11])),
	}, nil
}

func parseKeyboardPacket(payload []byte) (KeyboardPacket, error) {
	if len(payload) != 5 {
		return KeyboardPacket{}, ErrPayloadTooShort
	}
	return KeyboardPacket{
		Down:     payload[0] != 0,
		KeyIndex: int32(binary.LittleEndian.Uint32(payload[1:5])),
	}, nil
}

func parseInputKeyPacket(payload []byte) (InputKeyPacket, error) {
	if len(payload) != 6 {
		return InputKeyPacket{}, ErrPayloadTooShort
	}
	return InputKeyPacket{
		Down:        payload[0] != 0,
		ButtonIndex: payload[1],
		Action:      int32(binary.LittleEndian.Uint32(payload[2:6])),
	}, nil
}

func parseCapabilitiesPacket(payload []byte) (CapabilitiesPacket, error) {
	if len(payload) != 8 {
		return CapabilitiesPacket{}, ErrPayloadTooShort
	}
	return CapabilitiesPacket{
		CodecMask: binary.LittleEndian.Uint32(payload[0:4]),
		Flags:     binary.LittleEndian.Uint32(payload[4:8]),
	}, nil
}

func parseFrameDonePacket(payload []byte) (FrameDonePacket, error) {
	if len(payload) != 4 {
		return FrameDonePacket{}, ErrPayloadTooShort
	}
	return FrameDonePacket{EncoderID: int32(binary.LittleEndian.Uint32(payload[0:4]))}, nil
}
