package wire

import (
	"bytes"
	"errors"
	"testing"
)

func TestBuildConfigurePacket(t *testing.T) {
	got := BuildConfigurePacket(ConfigurePacket{
		Width: 1920, Height: 1080, HostWidth: 2560, HostHeight: 1440, EncoderID: 7,
	})
	want := []byte{
		0x01,
		0x80, 0x07, 0x00, 0x00,
		0x38, 0x04, 0x00, 0x00,
		0x00, 0x0A, 0x00, 0x00,
		0xA0, 0x05, 0x00, 0x00,
		0x07, 0x00, 0x00, 0x00,
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("got % X, want % X", got, want)
	}
}

func TestBuildFramePacket(t *testing.T) {
	got := BuildFramePacket(FramePacket{FrameMeta: 2, Bitstream: []byte{0x01, 0x02}})
	want := []byte{0x03, 0x02, 0x01, 0x02}
	if !bytes.Equal(got, want) {
		t.Fatalf("got % X, want % X", got, want)
	}
}

func TestParseTouchPacketRoundTrip(t *testing.T) {
	body := []byte{
		DataTypeTouch,
		0x02,
		0x01, 0x01, 0x0A, 0x00, 0x14, 0x00, 0x1E, 0x00,
		0x02, 0x00, 0x28, 0x00, 0x32, 0x00, 0x3C, 0x00,
	}
	got, err := ParseClientPacket(body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Touch == nil || len(got.Touch.Points) != 2 {
		t.Fatalf("expected 2 touch points, got %+v", got.Touch)
	}
	p0, p1 := got.Touch.Points[0], got.Touch.Points[1]
	if p0.PointerID != 1 || !p0.Down || p0.X != 10 || p0.Y != 20 || p0.Size != 30 {
		t.Fatalf("unexpected point 0: %+v", p0)
	}
	if p1.PointerID != 2 || p1.Down || p1.X != 40 || p1.Y != 50 || p1.Size != 60 {
		t.Fatalf("unexpected point 1: %+v", p1)
	}
}

func TestParseTouchPacketRejectsLengthMismatch(t *testing.T) {
	for count := byte(0); count < 5; count++ {
		for extra := -2; extra <= 2; extra++ {
			if extra == 0 {
				continue
			}
			bodyLen := 1 + int(count)*8 + extra
			if bodyLen < 0 {
				continue
			}
			payload := make([]byte, bodyLen)
			if bodyLen > 0 {
				payload[0] = count
			}
			bytesIn := append([]byte{DataTypeTouch}, payload...)
			_, err := ParseClientPacket(bytesIn)
			if !errors.Is(err, ErrTouchLengthMismatch) && !errors.Is(err, ErrPayloadTooShort) {
				t.Fatalf("count=%d extra=%d: expected a length error, got %v", count, extra, err)
			}
		}
	}
}

func TestParsePenPacket(t *testing.T) {
	payload := []byte{1, 10, 0, 11, 0, 12, 0, 13, 0, 14, 0}
	got, err := ParseClientPacket(append([]byte{DataTypePen}, payload...))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Pen == nil || got.Pen.Flags != 1 || got.Pen.Pressure != 12 {
		t.Fatalf("unexpected pen packet: %+v", got.Pen)
	}
}

func TestParseKeyboardPacket(t *testing.T) {
	payload := []byte{1, 5, 0, 0, 0}
	got, err := ParseClientPacket(append([]byte{DataTypeKeyboard}, payload...))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Keyboard == nil || !got.Keyboard.Down || got.Keyboard.KeyIndex != 5 {
		t.Fatalf("unexpected keyboard packet: %+v", got.Keyboard)
	}
}

func TestParseInputKeyPacket(t *testing.T) {
	payload := []byte{1, 2, 9, 0, 0, 0}
	got, err := ParseClientPacket(append([]byte{DataTypeInputKey}, payload...))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := InputKeyPacket{Down: true, ButtonIndex: 2, Action: 9}
	if *got.InputKey != want {
		t.Fatalf("got %+v, want %+v", *got.InputKey, want)
	}
}

func TestParseClientPacketRejectsUnsupportedDataType(t *testing.T) {
	_, err := ParseClientPacket([]byte{200, 1, 2, 3})
	if !errors.Is(err, ErrUnsupportedDataType) {
		t.Fatalf("expected ErrUnsupportedDataType, got %v", err)
	}
}

func TestParseClientPacketRejectsEmptyPayload(t *testing.T) {
	_, err := ParseClientPacket(nil)
	if !errors.Is(err, ErrPayloadTooShort) {
		t.Fatalf("expected ErrPayloadTooShort, got %v", err)
	}
}

func TestCapabilitiesAndFrameDoneRoundTrip(t *testing.T) {
	caps := CapabilitiesPacket{CodecMask: 0b10110, Flags: 0}
	wire := BuildCapabilitiesAckPacket(caps)
	got, err := ParseClientPacket(wire)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Capabilities == nil || *got.Capabilities != caps {
		t.Fatalf("got %+v, want %+v", got.Capabilities, caps)
	}

	done := FrameDonePacket{EncoderID: 42}
	wire = BuildFrameDonePacket(done)
	got, err = ParseClientPacket(wire)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.FrameDone == nil || *got.FrameDone != done {
		t.Fatalf("got %+v, want %+v", got.FrameDone, done)
	}
}
