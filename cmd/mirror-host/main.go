package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kelocube/mirror-host/internal/codec"
	"github.com/kelocube/mirror-host/internal/command"
	"github.com/kelocube/mirror-host/internal/config"
	"github.com/kelocube/mirror-host/internal/control"
	"github.com/kelocube/mirror-host/internal/logging"
	"github.com/kelocube/mirror-host/internal/probe"
	"github.com/kelocube/mirror-host/internal/registry"
	"github.com/kelocube/mirror-host/internal/session"
	"github.com/kelocube/mirror-host/internal/store"
	"github.com/kelocube/mirror-host/internal/streamer"
	"github.com/kelocube/mirror-host/internal/wire"
)

var version = "0.1.0"

var cfgFile string

var log = logging.L("main")

var rootCmd = &cobra.Command{
	Use:   "mirror-host",
	Short: "Desktop-to-tablet display mirroring host",
	Long:  "mirror-host captures the desktop, encodes it, and streams it to a paired tablet client over TCP.",
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the mirroring host",
	Run: func(cmd *cobra.Command, args []string) {
		runHost()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("mirror-host v%s\n", version)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the listen-port probe, saved settings and paired device count",
	Run: func(cmd *cobra.Command, args []string) {
		checkStatus()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is /etc/mirror-host/mirror-host.yaml)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// initLogging sets up structured logging from config. Call after config.Load().
func initLogging(cfg *config.Config) {
	var output io.Writer = os.Stdout

	if cfg.LogFile != "" {
		rw, err := logging.NewRotatingWriter(cfg.LogFile, cfg.LogMaxSizeMB, cfg.LogMaxBackups)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open log file %s: %v (logging to stdout)\n", cfg.LogFile, err)
		} else {
			output = logging.TeeWriter(os.Stdout, rw)
		}
	}

	logging.Init(cfg.LogFormat, cfg.LogLevel, output)
	log = logging.L("main")
}

// inputGate is the streaming session's transport.InputHandler: it consults
// the registry's current permissions before acting on an inbound packet.
// The host never injects input itself, so "acting on" a permitted packet
// means making it observable downstream (logged here); a real input
// injection backend would hang off these same gates.
type inputGate struct {
	reg *registry.Manager
}

func (g inputGate) HandleTouch(p wire.TouchPacket) {
	if perm := g.reg.InputPermissions(); perm.EnableInput && perm.Touch {
		log.Debug("touch", "points", len(p.Points))
	}
}

func (g inputGate) HandlePen(p wire.PenPacket) {
	if perm := g.reg.InputPermissions(); perm.EnableInput && perm.Pen {
		log.Debug("pen", "x", p.X, "y", p.Y)
	}
}

func (g inputGate) HandleKeyboard(p wire.KeyboardPacket) {
	if perm := g.reg.InputPermissions(); perm.EnableInput && perm.Keyboard {
		log.Debug("keyboard", "keyIndex", p.KeyIndex, "down", p.Down)
	}
}

func (g inputGate) HandleInputKey(p wire.InputKeyPacket) {
	if g.reg.InputPermissions().EnableInput {
		log.Debug("input key", "button", p.ButtonIndex, "down", p.Down)
	}
}

func runHost() {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	initLogging(cfg)

	log.Info("starting mirror-host", "version", version, "listenPort", cfg.ListenPort, "controlAddr", cfg.ControlAddr)

	st := store.New(cfg.DataDir)
	settings := st.LoadSettings()

	reg := registry.New()
	sess := session.New(reg, inputGate{reg: reg})
	if id, ok := codec.FromName(settings.Codec); ok {
		sess.SetPreferredCodec(&id)
	}
	stream := streamer.New(reg, sess)

	dispatcher := command.New(reg, sess, stream, st, uint16(cfg.ListenPort))

	hub := control.NewHub(dispatcher)
	mux := http.NewServeMux()
	mux.Handle("/control", hub)
	httpServer := &http.Server{Addr: cfg.ControlAddr, Handler: mux}

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("control server", logging.KeyError, err.Error())
		}
	}()

	stopTicker := make(chan struct{})
	go publishEvents(hub, reg, stopTicker)

	log.Info("control channel listening", "addr", cfg.ControlAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down")
	close(stopTicker)
	stream.Stop()
	sess.Disconnect()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Warn("control server shutdown", logging.KeyError, err.Error())
	}
}

// publishEvents pushes a lifecycle/stats tick to every connected UI client
// every second, so the desktop shell never has to poll for state.
func publishEvents(hub *control.Hub, reg *registry.Manager, stop <-chan struct{}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	var lastLifecycle registry.Lifecycle = -1
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			snap := reg.Snapshot()
			if snap.Lifecycle != lastLifecycle {
				hub.Broadcast(control.Event{Type: "lifecycle", Data: snap.Lifecycle.String()})
				lastLifecycle = snap.Lifecycle
			}
			if snap.Lifecycle == registry.Streaming {
				hub.Broadcast(control.Event{Type: "stats", Data: snap.Stats})
			}
		}
	}
}

// checkStatus probes the configured listen port and prints the protocol
// version, TCP listener/connection status, saved host settings and paired
// device count as JSON. It does not dial the control channel, so it reports
// no live session state.
func checkStatus() {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	status, err := probe.Probe(uint16(cfg.ListenPort))
	if err != nil {
		fmt.Fprintf(os.Stderr, "probe failed: %v\n", err)
		os.Exit(1)
	}

	st := store.New(cfg.DataDir)
	settings := st.LoadSettings()
	devices := st.LoadDevices()

	summary := map[string]any{
		"protocolVersion": wire.ProtocolVersion,
		"tcpListening":    status.TCPListening,
		"tcpConnections":  status.TCPConnections,
		"settings":        settings,
		"devices":         len(devices),
	}
	data, _ := json.MarshalIndent(summary, "", "  ")
	fmt.Println(string(data))
}
