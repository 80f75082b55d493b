// Package command implements the closed set of verbs the desktop UI shell
// invokes through internal/control: device pairing, host-settings
// persistence, codec negotiation, the connect/configure/stream lifecycle,
// and session/input introspection. Each verb decodes its own JSON payload,
// calls into the lower-level packages that already own the behavior, and
// returns a plain value or an error — it holds no state of its own beyond
// the components it was built with.
package command

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kelocube/mirror-host/internal/codec"
	"github.com/kelocube/mirror-host/internal/logging"
	"github.com/kelocube/mirror-host/internal/probe"
	"github.com/kelocube/mirror-host/internal/registry"
	"github.com/kelocube/mirror-host/internal/session"
	"github.com/kelocube/mirror-host/internal/store"
	"github.com/kelocube/mirror-host/internal/streamer"
	"github.com/kelocube/mirror-host/internal/wire"
)

var log = logging.L("command")

// destructive names every verb whose effect is recorded to the bounded
// host activity log, mirroring what the reference agent's hash-chained
// audit log would have flagged as state-changing.
var destructive = map[string]bool{
	"upsert_device":            true,
	"remove_device":            true,
	"update_settings":          true,
	"reset_settings":           true,
	"tcp_connect_and_configure": true,
	"tcp_disconnect":           true,
}

// Dispatcher implements control.Dispatcher, routing each verb to the
// registry, session manager, streamer, and persistent store it was built
// with.
type Dispatcher struct {
	reg      *registry.Manager
	sess     *session.Manager
	stream   *streamer.Streamer
	store    *store.Store
	probePort uint16
}

// New returns a Dispatcher wired to the given components.
func New(reg *registry.Manager, sess *session.Manager, stream *streamer.Streamer, st *store.Store, probePort uint16) *Dispatcher {
	return &Dispatcher{reg: reg, sess: sess, stream: stream, store: st, probePort: probePort}
}

// Dispatch executes verb with payload and returns its typed result.
func (d *Dispatcher) Dispatch(verb string, payload json.RawMessage) (result any, err error) {
	l := logging.WithCommand(log, "", verb)
	l.Debug("dispatch")

	handler, ok := handlers[verb]
	if !ok {
		return nil, fmt.Errorf("command: unknown verb %q", verb)
	}

	result, err = handler(d, payload)
	if err != nil {
		l.Warn("command failed", logging.KeyError, err.Error())
		return nil, err
	}

	if destructive[verb] {
		if logErr := d.store.AppendLog(nowUnix(), verb); logErr != nil {
			l.Warn("append host log", logging.KeyError, logErr.Error())
		}
	}
	return result, nil
}

type handlerFunc func(d *Dispatcher, payload json.RawMessage) (any, error)

var handlers = map[string]handlerFunc{
	"app_status":                   (*Dispatcher).appStatus,
	"list_devices":                 (*Dispatcher).listDevices,
	"upsert_device":                (*Dispatcher).upsertDevice,
	"remove_device":                (*Dispatcher).removeDevice,
	"connect_device":               (*Dispatcher).connectDevice,
	"update_settings":              (*Dispatcher).updateSettings,
	"reset_settings":               (*Dispatcher).resetSettings,
	"negotiate_codec":              (*Dispatcher).negotiateCodec,
	"prepare_session":              (*Dispatcher).prepareSession,
	"tcp_connect_and_configure":    (*Dispatcher).tcpConnectAndConfigure,
	"tcp_disconnect":               (*Dispatcher).tcpDisconnect,
	"tcp_poll_status":              (*Dispatcher).tcpPollStatus,
	"start_session":                (*Dispatcher).startSession,
	"stop_session":                 (*Dispatcher).stopSession,
	"session_state_snapshot":       (*Dispatcher).sessionStateSnapshot,
	"session_stats_snapshot":       (*Dispatcher).sessionStatsSnapshot,
	"set_device_input_permissions": (*Dispatcher).setDeviceInputPermissions,
	"set_session_input_permissions": (*Dispatcher).setSessionInputPermissions,
	"set_session_display_target":   (*Dispatcher).setSessionDisplayTarget,
	"diagnostics_snapshot":         (*Dispatcher).diagnosticsSnapshot,
}

func decode[T any](payload json.RawMessage) (T, error) {
	var v T
	if len(payload) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(payload, &v); err != nil {
		return v, fmt.Errorf("command: decode payload: %w", err)
	}
	return v, nil
}

func nowUnix() int64 { return time.Now().Unix() }

func newDeviceID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

// --- app_status / diagnostics --------------------------------------------

type DriverStatus struct {
	Installed bool `json:"installed"`
	Active    bool `json:"active"`
}

type TransportStatus struct {
	TCPListening   bool `json:"tcpListening"`
	TCPConnections int  `json:"tcpConnections"`
}

type AppStatus struct {
	ProtocolVersion uint16          `json:"protocolVersion"`
	Driver          DriverStatus    `json:"driver"`
	Transport       TransportStatus `json:"transport"`
	Settings        store.Settings  `json:"settings"`
	Devices         []store.Device  `json:"devices"`
}

func (d *Dispatcher) appStatus(payload json.RawMessage) (any, error) {
	status, err := probe.Probe(d.probePort)
	if err != nil {
		log.Warn("probe transport status", logging.KeyError, err.Error())
	}

	lifecycle := d.reg.Lifecycle()
	return AppStatus{
		ProtocolVersion: wire.ProtocolVersion,
		Driver: DriverStatus{
			Installed: true,
			Active:    lifecycle == registry.Streaming,
		},
		Transport: TransportStatus{
			TCPListening:   status.TCPListening,
			TCPConnections: status.TCPConnections,
		},
		Settings: d.store.LoadSettings(),
		Devices:  d.store.LoadDevices(),
	}, nil
}

type DiagnosticsReport struct {
	Timestamp int64                      `json:"timestamp"`
	Status    AppStatus                  `json:"appStatus"`
	Stats     registry.SessionStats      `json:"sessionStats"`
	RecentLog []store.LogEntry           `json:"recentLog"`
}

func (d *Dispatcher) diagnosticsSnapshot(payload json.RawMessage) (any, error) {
	statusAny, err := d.appStatus(payload)
	if err != nil {
		return nil, err
	}
	status := statusAny.(AppStatus)

	entries := d.store.LoadLog()
	const tail = 50
	if len(entries) > tail {
		entries = entries[len(entries)-tail:]
	}

	return DiagnosticsReport{
		Timestamp: nowUnix(),
		Status:    status,
		Stats:     d.reg.Snapshot().Stats,
		RecentLog: entries,
	}, nil
}

// --- device registry -------------------------------------------------------

func (d *Dispatcher) listDevices(payload json.RawMessage) (any, error) {
	return d.store.LoadDevices(), nil
}

func (d *Dispatcher) upsertDevice(payload json.RawMessage) (any, error) {
	dev, err := decode[store.Device](payload)
	if err != nil {
		return nil, err
	}
	if dev.ID == "" {
		dev.ID = newDeviceID()
	}
	if dev.InputPermissions == (registry.InputPermissions{}) {
		dev.InputPermissions = registry.DefaultInputPermissions()
	}

	devices := d.store.LoadDevices()
	replaced := false
	for i := range devices {
		if devices[i].ID == dev.ID {
			devices[i] = dev
			replaced = true
			break
		}
	}
	if !replaced {
		devices = append(devices, dev)
	}

	if err := d.store.SaveDevices(devices); err != nil {
		return nil, err
	}
	return dev, nil
}

type deviceIDRequest struct {
	ID string `json:"id"`
}

func (d *Dispatcher) removeDevice(payload json.RawMessage) (any, error) {
	req, err := decode[deviceIDRequest](payload)
	if err != nil {
		return nil, err
	}

	devices := d.store.LoadDevices()
	filtered := devices[:0]
	for _, dev := range devices {
		if dev.ID != req.ID {
			filtered = append(filtered, dev)
		}
	}
	if err := d.store.SaveDevices(filtered); err != nil {
		return nil, err
	}
	return nil, nil
}

func (d *Dispatcher) connectDevice(payload json.RawMessage) (any, error) {
	req, err := decode[deviceIDRequest](payload)
	if err != nil {
		return nil, err
	}

	devices := d.store.LoadDevices()
	found := false
	for _, dev := range devices {
		if dev.ID == req.ID {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("command: unknown device %q", req.ID)
	}

	d.reg.SetActiveDevice(req.ID)
	return nil, nil
}

// --- host settings -----------------------------------------------------

func (d *Dispatcher) updateSettings(payload json.RawMessage) (any, error) {
	patch, err := decode[store.Settings](payload)
	if err != nil {
		return nil, err
	}

	current := d.store.LoadSettings()
	if patch.Codec != "" {
		current.Codec = patch.Codec
	}
	if patch.Quality != 0 {
		current.Quality = patch.Quality
	}
	if patch.RefreshCapHz != 0 {
		current.RefreshCapHz = patch.RefreshCapHz
	}
	if patch.KeyframeInterval != 0 {
		current.KeyframeInterval = patch.KeyframeInterval
	}
	if patch.InputMode != "" {
		current.InputMode = patch.InputMode
	}

	if err := d.store.SaveSettings(current); err != nil {
		return nil, err
	}

	if id, ok := codec.FromName(current.Codec); ok {
		d.sess.SetPreferredCodec(&id)
	}
	return current, nil
}

func (d *Dispatcher) resetSettings(payload json.RawMessage) (any, error) {
	defaults := store.DefaultSettings()
	if err := d.store.SaveSettings(defaults); err != nil {
		return nil, err
	}
	d.sess.SetPreferredCodec(nil)
	return defaults, nil
}

// --- codec negotiation / session prepare --------------------------------

type CodecSelection struct {
	CodecID    int32  `json:"codecId"`
	CodecName  string `json:"codecName"`
	HostMask   uint32 `json:"hostMask"`
	ClientMask uint32 `json:"clientMask"`
}

func selectCodec(clientMask uint32, preferred *codec.ID) (CodecSelection, error) {
	hostMask := codec.HostMask()
	selected, ok := codec.Select(hostMask, clientMask, preferred)
	if !ok {
		return CodecSelection{}, session.ErrNoCompatibleCodec
	}
	return CodecSelection{
		CodecID:    int32(selected),
		CodecName:  selected.String(),
		HostMask:   hostMask,
		ClientMask: clientMask,
	}, nil
}

type negotiateCodecRequest struct {
	ClientMask uint32 `json:"clientMask"`
}

func (d *Dispatcher) negotiateCodec(payload json.RawMessage) (any, error) {
	req, err := decode[negotiateCodecRequest](payload)
	if err != nil {
		return nil, err
	}
	return selectCodec(req.ClientMask, d.preferredCodec())
}

func (d *Dispatcher) preferredCodec() *codec.ID {
	settings := d.store.LoadSettings()
	if id, ok := codec.FromName(settings.Codec); ok {
		return &id
	}
	return nil
}

type prepareSessionRequest struct {
	Width       int32  `json:"width"`
	Height      int32  `json:"height"`
	HostWidth   int32  `json:"hostWidth"`
	HostHeight  int32  `json:"hostHeight"`
	EncoderID   int32  `json:"encoderId"`
	ClientMask  uint32 `json:"clientMask"`
}

type PrepareSessionResult struct {
	Selection      CodecSelection `json:"selection"`
	ConfigureBytes []byte         `json:"configureBytes"`
}

func (d *Dispatcher) prepareSession(payload json.RawMessage) (any, error) {
	req, err := decode[prepareSessionRequest](payload)
	if err != nil {
		return nil, err
	}

	selection, err := selectCodec(req.ClientMask, d.preferredCodec())
	if err != nil {
		return nil, err
	}

	configureBytes := wire.BuildConfigurePacket(wire.ConfigurePacket{
		Width:      req.Width,
		Height:     req.Height,
		HostWidth:  req.HostWidth,
		HostHeight: req.HostHeight,
		EncoderID:  req.EncoderID,
	})

	return PrepareSessionResult{Selection: selection, ConfigureBytes: configureBytes}, nil
}

// --- transport connect / disconnect / poll ------------------------------

type tcpConnectRequest struct {
	Host       string `json:"host"`
	Port       uint16 `json:"port"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	HostWidth  int    `json:"hostWidth"`
	HostHeight int    `json:"hostHeight"`
	EncoderID  int32  `json:"encoderId"`
	ClientMask uint32 `json:"clientMask"`
}

func (d *Dispatcher) tcpConnectAndConfigure(payload json.RawMessage) (any, error) {
	req, err := decode[tcpConnectRequest](payload)
	if err != nil {
		return nil, err
	}

	cfg := session.Config{
		Width: req.Width, Height: req.Height,
		HostWidth: req.HostWidth, HostHeight: req.HostHeight,
		EncoderID: req.EncoderID,
	}

	selected, err := d.sess.Connect(req.Host, req.Port, req.ClientMask, cfg)
	if err != nil {
		return nil, err
	}

	return CodecSelection{
		CodecID:    int32(selected),
		CodecName:  selected.String(),
		HostMask:   codec.HostMask(),
		ClientMask: req.ClientMask,
	}, nil
}

func (d *Dispatcher) tcpDisconnect(payload json.RawMessage) (any, error) {
	d.sess.Disconnect()
	return nil, nil
}

type TCPPollStatusResult struct {
	ClientCodecMask      *uint32 `json:"clientCodecMask,omitempty"`
	LastFrameDoneEncoder *int32  `json:"lastFrameDoneEncoderId,omitempty"`
}

func (d *Dispatcher) tcpPollStatus(payload json.RawMessage) (any, error) {
	conn := d.sess.Conn()
	if conn == nil {
		return TCPPollStatusResult{}, nil
	}

	var result TCPPollStatusResult
	if caps, ok := conn.PollCapabilities(); ok {
		mask := caps.CodecMask
		result.ClientCodecMask = &mask
	}
	if done, ok := conn.PollFrameDone(); ok {
		id := done.EncoderID
		result.LastFrameDoneEncoder = &id
	}
	return result, nil
}

// --- streaming lifecycle -------------------------------------------------

type startSessionRequest struct {
	TargetID         int   `json:"targetId"`
	Width            int   `json:"width"`
	Height           int   `json:"height"`
	EncoderID        int32 `json:"encoderId"`
	CodecID          int32 `json:"codecId"`
	FPS              int   `json:"fps"`
	KeyframeInterval int   `json:"keyframeInterval"`
	Quality          int   `json:"quality"`
}

// bitrateFromQuality maps the saved 0-100 quality slider to an encoder
// bitrate. No source defines this mapping; 120 kbps per quality point
// with a 500 kbps floor keeps low settings usable without starving a
// 1080p stream at the top of the range.
func bitrateFromQuality(quality int) int {
	bitrate := quality * 120
	if bitrate < 500 {
		return 500
	}
	return bitrate
}

func (d *Dispatcher) startSession(payload json.RawMessage) (any, error) {
	req, err := decode[startSessionRequest](payload)
	if err != nil {
		return nil, err
	}

	settings := d.store.LoadSettings()
	keyframeInterval := req.KeyframeInterval
	if keyframeInterval == 0 {
		keyframeInterval = settings.KeyframeInterval
	}
	quality := req.Quality
	if quality == 0 {
		quality = settings.Quality
	}
	fps := req.FPS
	if fps == 0 {
		fps = settings.RefreshCapHz
	}

	cfg := streamer.Config{
		TargetID:  req.TargetID,
		Width:     req.Width,
		Height:    req.Height,
		EncoderID: req.EncoderID,
		FPS:       fps,
	}

	if err := d.stream.Start(req.CodecID, bitrateFromQuality(quality), keyframeInterval, cfg); err != nil {
		return nil, err
	}
	return nil, nil
}

func (d *Dispatcher) stopSession(payload json.RawMessage) (any, error) {
	d.stream.Stop()
	if d.reg.Lifecycle() == registry.Streaming {
		d.reg.SetLifecycle(registry.Configured)
	}
	return nil, nil
}

// --- session / stats introspection --------------------------------------

func (d *Dispatcher) sessionStateSnapshot(payload json.RawMessage) (any, error) {
	snap := d.reg.Snapshot()
	snap.Stats = registry.SessionStats{}
	return snap, nil
}

func (d *Dispatcher) sessionStatsSnapshot(payload json.RawMessage) (any, error) {
	return d.reg.Snapshot().Stats, nil
}

// --- input permissions / display target ---------------------------------

type setDeviceInputPermissionsRequest struct {
	DeviceID    string                      `json:"deviceId"`
	Permissions registry.InputPermissions   `json:"permissions"`
}

func (d *Dispatcher) setDeviceInputPermissions(payload json.RawMessage) (any, error) {
	req, err := decode[setDeviceInputPermissionsRequest](payload)
	if err != nil {
		return nil, err
	}

	devices := d.store.LoadDevices()
	found := false
	for i := range devices {
		if devices[i].ID == req.DeviceID {
			devices[i].InputPermissions = req.Permissions
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("command: unknown device %q", req.DeviceID)
	}
	return nil, d.store.SaveDevices(devices)
}

func (d *Dispatcher) setSessionInputPermissions(payload json.RawMessage) (any, error) {
	perms, err := decode[registry.InputPermissions](payload)
	if err != nil {
		return nil, err
	}
	d.reg.SetInputPermissions(perms)
	return nil, nil
}

type setDisplayTargetRequest struct {
	TargetID int `json:"targetId"`
}

func (d *Dispatcher) setSessionDisplayTarget(payload json.RawMessage) (any, error) {
	req, err := decode[setDisplayTargetRequest](payload)
	if err != nil {
		return nil, err
	}
	d.reg.SetDisplayTarget(req.TargetID)
	return nil, nil
}
