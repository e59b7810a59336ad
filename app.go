package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kwv/gridloc/mcl"
)

// App encapsulates the localization service and its collaborators.
type App struct {
	Config       *mcl.Config
	Tracker      *mcl.StateTracker
	Engine       *mcl.Filter
	Orchestrator *mcl.Orchestrator
	MQTTClient   *mcl.MQTTClient
	Publisher    *mcl.Publisher

	// CLI flags (effectively dependencies)
	ConfigFile string
	HttpPort   int
	MqttMode   bool
	HttpMode   bool
}

// NewApp wires the perception core from a loaded configuration.
func NewApp(cfg *mcl.Config) *App {
	a := &App{
		Config:  cfg,
		Tracker: mcl.NewStateTracker(),
	}
	a.Engine = mcl.NewFilter(cfg.Filter.Particles, cfg.Filter.ConvergeRadius, cfg.Filter.Seed)
	transforms := mcl.NewStaticTransforms(cfg.Transforms)
	a.Orchestrator = mcl.NewOrchestrator(
		a.Engine,
		transforms,
		cfg.OrchestratorConfig(),
		cfg.Scanner,
		cfg.MapFactors,
		a.onEvent,
	)
	if b := cfg.BoundsOverride(); b != nil {
		a.Orchestrator.SetBoundsOverride(b)
	}
	return a
}

// onEvent records degraded-condition reports and forwards them to MQTT
// when a publisher is attached.
func (a *App) onEvent(e mcl.Event) {
	log.Printf("event %s: %s", e.Kind, e.Detail)
	a.Tracker.RecordEvent(e)
	if a.Publisher != nil {
		if err := a.Publisher.PublishEvent(e); err != nil {
			log.Printf("error publishing event: %v", err)
		}
	}
}

// onScan is the MQTT scan handler: one perception-update cycle per payload.
func (a *App) onScan(scan *mcl.RangeScan, err error) {
	if err != nil {
		log.Printf("dropping scan payload: %v", err)
		a.Tracker.RecordScan(false)
		return
	}

	integrated, err := a.Orchestrator.HandleScan(scan)
	a.Tracker.RecordScan(integrated)
	a.Tracker.SetState(a.Orchestrator.State())
	if err != nil {
		log.Printf("scan from %s not integrated: %v", scan.FrameID, err)
		return
	}
	if !integrated {
		return
	}

	est := a.Engine.Estimate()
	a.Tracker.RecordEstimate(est, a.Engine.Samples().Particles)
	if a.Publisher != nil {
		if err := a.Publisher.PublishEstimate(est, a.Orchestrator.State()); err != nil {
			log.Printf("error publishing pose estimate: %v", err)
		}
	}
}

// onMap is the MQTT map handler: rebuild the distance field.
func (a *App) onMap(grid *mcl.OccupancyGrid, err error) {
	if err != nil {
		log.Printf("dropping map payload: %v", err)
		return
	}
	if err := a.Orchestrator.HandleMap(grid); err != nil {
		log.Printf("map update failed: %v", err)
		return
	}
	a.Tracker.SetState(a.Orchestrator.State())
}

// RunService starts the MQTT and/or HTTP service and blocks until a
// termination signal.
func (a *App) RunService() {
	if a.MqttMode {
		client, err := mcl.InitMQTT(&a.Config.MQTT, a.onScan, a.onMap)
		if err != nil {
			log.Fatalf("Error initializing MQTT: %v", err)
		}
		a.MQTTClient = client
		if client != nil {
			a.Publisher = mcl.NewPublisher(client.Client(), a.Config.MQTT.PublishPrefix)
		}
	}

	// Deployments serving the map over HTTP get it once at startup.
	if a.Config.MapURL != "" {
		go a.fetchInitialMap()
	}

	// Stale-scan watchdog.
	watchdogStop := make(chan struct{})
	go a.runWatchdog(watchdogStop)

	if a.HttpMode {
		addr := fmt.Sprintf(":%d", a.HttpPort)
		server := &http.Server{Addr: addr, Handler: newHTTPServer(a)}
		go func() {
			log.Printf("HTTP server listening on %s", addr)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("HTTP server error: %v", err)
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Printf("received signal %v, shutting down", sig)

	close(watchdogStop)
	if a.MQTTClient != nil {
		a.MQTTClient.Disconnect()
	}
}

// fetchInitialMap pulls the occupancy grid from the configured map server.
func (a *App) fetchInitialMap() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	grid, err := mcl.FetchMap(ctx, a.Config.MapURL)
	if err != nil {
		log.Printf("error fetching map from %s: %v", a.Config.MapURL, err)
		return
	}
	a.onMap(grid, nil)
}

// runWatchdog periodically checks for sensor dropout.
func (a *App) runWatchdog(stop <-chan struct{}) {
	interval := time.Duration(a.Config.Cycle.ScannerCheckInterval)
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			a.Orchestrator.CheckScanReceived(now)
		case <-stop:
			return
		}
	}
}

// RunScore is the offline mode: score a candidate pose for a scan file
// against a map file and print the likelihood.
func (a *App) RunScore(mapFile, scanFile string, pose mcl.Pose) error {
	mapBytes, err := os.ReadFile(mapFile)
	if err != nil {
		return fmt.Errorf("reading map file: %w", err)
	}
	jsonBytes, err := mcl.DecodePayload(mapBytes)
	if err != nil {
		return err
	}
	grid, err := mcl.ParseGridJSON(jsonBytes)
	if err != nil {
		return err
	}
	if err := a.Orchestrator.HandleMap(grid); err != nil {
		return err
	}

	scanBytes, err := os.ReadFile(scanFile)
	if err != nil {
		return fmt.Errorf("reading scan file: %w", err)
	}
	jsonBytes, err = mcl.DecodePayload(scanBytes)
	if err != nil {
		return err
	}
	scan, err := mcl.ParseScanJSON(jsonBytes)
	if err != nil {
		return err
	}
	if _, err := a.Orchestrator.HandleScan(scan); err != nil {
		log.Printf("scan integration: %v", err)
	}

	score, err := a.Orchestrator.ScorePose(pose)
	if err != nil {
		return err
	}
	fmt.Printf("pose (%.3f, %.3f, %.3f) likelihood: %g\n", pose.X, pose.Y, pose.Heading, score)
	return nil
}
