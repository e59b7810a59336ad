package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/kwv/gridloc/mcl"
)

// Version is set at build time via -ldflags
var Version = "dev"

var (
	configFile = flag.String("config", "config.yaml", "Path to configuration file")
	mqttMode   = flag.Bool("mqtt", false, "Run MQTT service mode for live scan integration")
	httpMode   = flag.Bool("http", false, "Enable HTTP server for pose and status endpoints")
	httpPort   = flag.Int("http-port", 8080, "HTTP server port (default 8080)")
	writeCfg   = flag.Bool("write-config", false, "Write a default config file and exit")
	// Offline scoring flags
	scoreOnly = flag.Bool("score", false, "Score a pose against a map and scan file, then exit")
	mapFile   = flag.String("map", "", "Occupancy grid file for --score mode (JSON or zlib)")
	scanFile  = flag.String("scan", "", "Range scan file for --score mode (JSON or zlib)")
	poseX     = flag.Float64("x", 0, "Candidate pose X for --score mode (meters)")
	poseY     = flag.Float64("y", 0, "Candidate pose Y for --score mode (meters)")
	poseH     = flag.Float64("heading", 0, "Candidate pose heading for --score mode (radians)")
)

func main() {
	flag.Parse()
	fmt.Printf("gridloc version: %s\n", Version)

	if *writeCfg {
		if err := mcl.SaveConfig(*configFile, mcl.DefaultConfig()); err != nil {
			log.Fatalf("Error writing default config: %v", err)
		}
		fmt.Printf("Wrote default config to %s\n", *configFile)
		return
	}

	config := loadOrDefaultConfig()

	if *scoreOnly {
		if *mapFile == "" || *scanFile == "" {
			log.Fatal("--score requires --map and --scan")
		}
		app := NewApp(config)
		pose := mcl.Pose{X: *poseX, Y: *poseY, Heading: *poseH}
		if err := app.RunScore(*mapFile, *scanFile, pose); err != nil {
			log.Fatalf("Error scoring pose: %v", err)
		}
		return
	}

	if *mqttMode || *httpMode {
		app := NewApp(config)
		app.ConfigFile = *configFile
		app.HttpPort = *httpPort
		app.MqttMode = *mqttMode
		app.HttpMode = *httpMode
		app.RunService()
		return
	}

	fmt.Println("gridloc localization service")
	fmt.Println("Use --mqtt to integrate live scans from the broker")
	fmt.Println("Use --http to serve pose and status endpoints")
	fmt.Println("Use --mqtt --http to run both together")
	fmt.Println("Use --score --map=FILE --scan=FILE --x --y --heading for offline pose scoring")
	fmt.Println("Use --write-config to generate a default config.yaml")
}

// loadOrDefaultConfig loads the config file, falling back to defaults when
// the default path does not exist. An explicitly named missing file is fatal.
func loadOrDefaultConfig() *mcl.Config {
	if _, err := os.Stat(*configFile); os.IsNotExist(err) {
		if *configFile == "config.yaml" {
			log.Printf("No config at %s, using defaults", *configFile)
			return mcl.DefaultConfig()
		}
		log.Fatalf("Config file not found: %s", *configFile)
	}
	config, err := mcl.LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.Printf("Loaded config from %s", *configFile)
	return config
}
