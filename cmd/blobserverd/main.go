// Command blobserverd runs the blob-detection server: it loads a YAML
// configuration, wires the source and detector class registries, and
// starts the flow engine's capture thread, processing loop, and
// control-plane listener until a shutdown signal arrives. Grounded on
// References/orion-prototipe/cmd/oriond/main.go's flag/signal/context
// launcher shape, and on
// _examples/original_source/src/blobserver.cpp's App::parseArgs's CLI
// surface (version, hide, verbose, config, mask, tcp flags — spec §6's
// "a small launcher").
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/careorion/blobserver/internal/config"
	"github.com/careorion/blobserver/internal/controlplane"
	"github.com/careorion/blobserver/internal/detector"
	"github.com/careorion/blobserver/internal/flowengine"
	"github.com/careorion/blobserver/internal/registry"
	"github.com/careorion/blobserver/internal/source"
	"github.com/careorion/blobserver/internal/telemetry"
	"github.com/careorion/blobserver/internal/types"
)

const version = "0.1.0"

func main() {
	os.Exit(run())
}

func run() int {
	showVersion := flag.Bool("version", false, "Shows version of this software")
	hide := flag.Bool("hide-preview", false, "Hides any local preview window (no-op: this build has none)")
	verbose := flag.Bool("verbose", false, "If set, outputs values to the std::out")
	configPath := flag.String("config", "", "Specify a configuration file to load at startup")
	maskPath := flag.String("mask", "", "Specifies a mask which will be applied to all detectors")
	tcp := flag.Bool("tcp", false, "Use TCP instead of UDP for message transmission")
	healthPort := flag.String("health-port", "8080", "Port for the health check HTTP server")
	flag.Parse()
	_ = hide

	if *showVersion {
		fmt.Println("blobserverd", version)
		return 0
	}

	logLevel := slog.LevelInfo
	if *verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			slog.Error("failed to load configuration", "error", err)
			return 1
		}
		cfg = loaded
	}
	if *tcp {
		cfg.ControlPlane.Transport = "tcp"
	}

	sourceKinds := registry.New[source.Source]()
	sourceKinds.Register("mock", source.NewMockSource)
	sourceKinds.Register("gst", source.NewGstSource)

	detectorKinds := registry.New[detector.Detector]()
	detectorKinds.Register("threshold-blobs", detector.NewThresholdBlobsDetector)
	detectorKinds.Register("stub-multi", detector.NewStubMultiDetector)

	var transport controlplane.Transport
	var err error
	switch cfg.ControlPlane.Transport {
	case "tcp":
		transport, err = controlplane.NewTCPTransport(cfg.ControlPlane.ListenPort)
	default:
		transport, err = controlplane.NewUDPTransport(cfg.ControlPlane.ListenPort)
	}
	if err != nil {
		slog.Error("failed to bind control plane transport", "error", err)
		return 1
	}
	defer transport.Close()

	publisher := controlplane.NewPublisher(transport)
	engine := flowengine.New(sourceKinds, detectorKinds, publisher, cfg.OutputImage.Width, cfg.OutputImage.Height)

	if *maskPath != "" {
		mask, err := detector.LoadMaskFile(*maskPath)
		if err != nil {
			slog.Error("failed to load global mask", "error", err)
			return 1
		}
		engine.SetGlobalMask(mask)
	} else if cfg.GlobalMask != "" {
		mask, err := detector.LoadMaskFile(cfg.GlobalMask)
		if err != nil {
			slog.Error("failed to load global mask", "error", err)
			return 1
		}
		engine.SetGlobalMask(mask)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	started := time.Now()

	handler := controlplane.NewHandler(engine, transport)
	errChan := make(chan error, 1)
	go func() { errChan <- handler.Run(ctx) }()

	go engine.Run(ctx)

	var emitter *telemetry.Emitter
	if cfg.Telemetry.Enabled {
		emitter = telemetry.NewEmitter(telemetry.Config{
			Broker:   cfg.Telemetry.Broker,
			Topic:    cfg.Telemetry.Topic,
			ClientID: cfg.Telemetry.ClientID,
		})
		if err := emitter.Connect(ctx); err != nil {
			slog.Warn("telemetry connect failed, continuing without it", "error", err)
			emitter = nil
		} else {
			go emitter.Run(ctx, func() telemetry.Snapshot {
				return telemetry.Snapshot{
					FlowCount:   engine.FlowCount(),
					SourceCount: engine.ActiveSourceCount(),
				}
			}, started)
		}
	}

	startHealthServer(*healthPort, started, engine)

	applyAutoConnect(engine, cfg)

	slog.Info("blobserverd started",
		"transport", cfg.ControlPlane.Transport,
		"listen_port", cfg.ControlPlane.ListenPort,
	)

	select {
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	case err := <-errChan:
		if err != nil {
			slog.Error("control plane listener stopped with error", "error", err)
			cancel()
			return 1
		}
	}

	if emitter != nil {
		_ = emitter.Disconnect()
	}

	slog.Info("blobserverd stopped")
	return 0
}

// applyAutoConnect creates the flows listed in the configuration's
// auto_connect section at startup, logging (not failing hard on) any
// that cannot be established — a misconfigured auto-connect entry
// should not prevent the server from accepting live control-plane
// connections.
func applyAutoConnect(engine *flowengine.Engine, cfg *config.Config) {
	for _, ac := range cfg.AutoConnect {
		specs := make([]flowengine.SourceSpec, 0, len(ac.Sources))
		for _, s := range ac.Sources {
			specs = append(specs, flowengine.SourceSpec{Kind: s.Kind, Subsource: s.Subsource})
		}
		flowID, err := engine.Connect(flowengine.ClientAddr(ac.ClientIP), ac.DetectorKind, specs)
		if err != nil {
			slog.Warn("auto_connect entry failed", "detector", ac.DetectorKind, "error", err)
			continue
		}
		if err := engine.SetParameter(flowID, flowengine.TargetStart, 0, "", types.Value{}); err != nil {
			slog.Warn("auto_connect entry failed to start", "flow_id", flowID, "error", err)
		}
	}
}

// startHealthServer serves spec §6's two health endpoints: /healthz
// (a bare liveness probe) and /statusz (engine activity counters), per
// SPEC_FULL.md's "independent of ports 9000/9002" health surface.
func startHealthServer(port string, started time.Time, engine *flowengine.Engine) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"healthy","uptime_s":%d}`, int64(time.Since(started).Seconds()))
	})
	mux.HandleFunc("/statusz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"uptime_s":%d,"flows":%d,"active_sources":%d}`,
			int64(time.Since(started).Seconds()), engine.FlowCount(), engine.ActiveSourceCount())
	})
	srv := &http.Server{Addr: ":" + port, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Warn("health server stopped", "error", err)
		}
	}()
}
