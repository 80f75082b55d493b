package command

import (
	"encoding/json"
	"testing"

	"github.com/kelocube/mirror-host/internal/codec"
	"github.com/kelocube/mirror-host/internal/registry"
	"github.com/kelocube/mirror-host/internal/session"
	"github.com/kelocube/mirror-host/internal/store"
	"github.com/kelocube/mirror-host/internal/streamer"
)

func newTestDispatcher(t *testing.T) *Dispatcher {
	t.Helper()
	reg := registry.New()
	sess := session.New(reg, nil)
	strm := streamer.New(reg, sess)
	st := store.New(t.TempDir())
	return New(reg, sess, strm, st, 0)
}

func rawJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return data
}

func TestAppStatusReturnsDefaultsOnFreshStore(t *testing.T) {
	d := newTestDispatcher(t)
	result, err := d.Dispatch("app_status", nil)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	status := result.(AppStatus)
	if status.Settings != store.DefaultSettings() {
		t.Fatalf("got settings %+v, want defaults", status.Settings)
	}
	if len(status.Devices) != 0 {
		t.Fatalf("got %d devices, want 0", len(status.Devices))
	}
}

func TestUpsertThenListDevice(t *testing.T) {
	d := newTestDispatcher(t)

	result, err := d.Dispatch("upsert_device", rawJSON(t, store.Device{
		Name: "Tablet One", Transport: "tcp", Status: "paired",
	}))
	if err != nil {
		t.Fatalf("upsert_device: %v", err)
	}
	dev := result.(store.Device)
	if dev.ID == "" {
		t.Fatal("expected a generated device id")
	}
	if dev.InputPermissions != registry.DefaultInputPermissions() {
		t.Fatalf("got %+v, want default input permissions applied", dev.InputPermissions)
	}

	listed, err := d.Dispatch("list_devices", nil)
	if err != nil {
		t.Fatalf("list_devices: %v", err)
	}
	devices := listed.([]store.Device)
	if len(devices) != 1 || devices[0].ID != dev.ID {
		t.Fatalf("got %+v, want single device %q", devices, dev.ID)
	}
}

func TestRemoveDeviceDeletesById(t *testing.T) {
	d := newTestDispatcher(t)
	created, _ := d.Dispatch("upsert_device", rawJSON(t, store.Device{Name: "Tab"}))
	dev := created.(store.Device)

	if _, err := d.Dispatch("remove_device", rawJSON(t, deviceIDRequest{ID: dev.ID})); err != nil {
		t.Fatalf("remove_device: %v", err)
	}

	listed, _ := d.Dispatch("list_devices", nil)
	if len(listed.([]store.Device)) != 0 {
		t.Fatal("expected device list to be empty after removal")
	}
}

func TestConnectDeviceRejectsUnknownID(t *testing.T) {
	d := newTestDispatcher(t)
	if _, err := d.Dispatch("connect_device", rawJSON(t, deviceIDRequest{ID: "nope"})); err == nil {
		t.Fatal("expected error connecting to an unpaired device id")
	}
}

func TestUpdateSettingsMergesNonZeroFieldsOnly(t *testing.T) {
	d := newTestDispatcher(t)
	result, err := d.Dispatch("update_settings", rawJSON(t, store.Settings{Quality: 42}))
	if err != nil {
		t.Fatalf("update_settings: %v", err)
	}
	got := result.(store.Settings)
	want := store.DefaultSettings()
	want.Quality = 42
	if got != want {
		t.Fatalf("got %+v, want %+v (only Quality overridden)", got, want)
	}
}

func TestResetSettingsRestoresDefaults(t *testing.T) {
	d := newTestDispatcher(t)
	d.Dispatch("update_settings", rawJSON(t, store.Settings{Quality: 10}))

	result, err := d.Dispatch("reset_settings", nil)
	if err != nil {
		t.Fatalf("reset_settings: %v", err)
	}
	if result.(store.Settings) != store.DefaultSettings() {
		t.Fatalf("got %+v, want defaults", result)
	}
}

func TestNegotiateCodecReturnsIntersection(t *testing.T) {
	d := newTestDispatcher(t)
	result, err := d.Dispatch("negotiate_codec", rawJSON(t, negotiateCodecRequest{ClientMask: codec.MaskH264}))
	if err != nil {
		t.Fatalf("negotiate_codec: %v", err)
	}
	sel := result.(CodecSelection)
	if sel.CodecID != int32(codec.H264) {
		t.Fatalf("got codec %d, want H264 (%d)", sel.CodecID, codec.H264)
	}
}

func TestNegotiateCodecNoOverlapReturnsError(t *testing.T) {
	d := newTestDispatcher(t)
	if _, err := d.Dispatch("negotiate_codec", rawJSON(t, negotiateCodecRequest{ClientMask: 0})); err == nil {
		t.Fatal("expected error for empty client mask")
	}
}

func TestPrepareSessionBuildsConfigureBytes(t *testing.T) {
	d := newTestDispatcher(t)
	result, err := d.Dispatch("prepare_session", rawJSON(t, prepareSessionRequest{
		Width: 800, Height: 480, HostWidth: 1920, HostHeight: 1080, EncoderID: 7, ClientMask: codec.MaskH264,
	}))
	if err != nil {
		t.Fatalf("prepare_session: %v", err)
	}
	out := result.(PrepareSessionResult)
	if len(out.ConfigureBytes) == 0 {
		t.Fatal("expected non-empty configure bytes")
	}
	if out.Selection.CodecID != int32(codec.H264) {
		t.Fatalf("got codec %d, want H264", out.Selection.CodecID)
	}
}

func TestSessionStateSnapshotOmitsStats(t *testing.T) {
	d := newTestDispatcher(t)
	result, err := d.Dispatch("session_state_snapshot", nil)
	if err != nil {
		t.Fatalf("session_state_snapshot: %v", err)
	}
	snap := result.(registry.Snapshot)
	if snap.Lifecycle != registry.Idle {
		t.Fatalf("got lifecycle %v, want Idle", snap.Lifecycle)
	}
}

func TestSetSessionDisplayTarget(t *testing.T) {
	d := newTestDispatcher(t)
	if _, err := d.Dispatch("set_session_display_target", rawJSON(t, setDisplayTargetRequest{TargetID: 3})); err != nil {
		t.Fatalf("set_session_display_target: %v", err)
	}
	snap := d.reg.Snapshot()
	if !snap.HasDisplayTarget || snap.DisplayTargetID != 3 {
		t.Fatalf("got %+v, want display target 3", snap)
	}
}

func TestUnknownVerbReturnsError(t *testing.T) {
	d := newTestDispatcher(t)
	if _, err := d.Dispatch("not_a_verb", nil); err == nil {
		t.Fatal("expected error for unknown verb")
	}
}

func TestDestructiveVerbAppendsHostLog(t *testing.T) {
	d := newTestDispatcher(t)
	if _, err := d.Dispatch("reset_settings", nil); err != nil {
		t.Fatalf("reset_settings: %v", err)
	}
	entries := d.store.LoadLog()
	if len(entries) != 1 || entries[0].Message != "reset_settings" {
		t.Fatalf("got %+v, want one reset_settings entry", entries)
	}
}

func TestBitrateFromQualityFloorsAtMinimum(t *testing.T) {
	if got := bitrateFromQuality(0); got != 500 {
		t.Fatalf("got %d, want floor of 500", got)
	}
	if got := bitrateFromQuality(80); got != 9600 {
		t.Fatalf("got %d, want 9600", got)
	}
}
