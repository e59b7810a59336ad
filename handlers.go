package main

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/kwv/gridloc/mcl"
)

// newHTTPServer creates an HTTP server with all endpoints
func newHTTPServer(app *App) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		status := struct {
			Status    string     `json:"status"`
			Timestamp time.Time  `json:"timestamp"`
			Version   string     `json:"version"`
			Run       mcl.Status `json:"run"`
		}{
			Status:    "ok",
			Timestamp: time.Now(),
			Version:   Version,
			Run:       app.Tracker.Status(),
		}
		if err := json.NewEncoder(w).Encode(status); err != nil {
			log.Printf("Error encoding health status: %v", err)
		}
	})

	// Latest pose estimate
	mux.HandleFunc("/api/pose", func(w http.ResponseWriter, r *http.Request) {
		est, at, ok := app.Tracker.Estimate()
		if !ok {
			http.Error(w, "No pose estimate yet", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		response := struct {
			mcl.PoseEstimate
			EstimatedAt time.Time `json:"estimatedAt"`
		}{est, at}
		if err := json.NewEncoder(w).Encode(response); err != nil {
			log.Printf("Error encoding pose estimate: %v", err)
		}
	})

	// Snapshot of the particle population behind the latest estimate
	mux.HandleFunc("/api/particles", func(w http.ResponseWriter, r *http.Request) {
		particles := app.Tracker.Particles()
		if len(particles) == 0 {
			http.Error(w, "No particles yet", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(particles); err != nil {
			log.Printf("Error encoding particles: %v", err)
		}
	})

	// Recent degraded-condition events
	mux.HandleFunc("/api/events", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		events := app.Tracker.Events()
		if events == nil {
			events = []mcl.Event{}
		}
		if err := json.NewEncoder(w).Encode(events); err != nil {
			log.Printf("Error encoding events: %v", err)
		}
	})

	// Active sensor-model configuration: GET returns it, PUT replaces it
	mux.HandleFunc("/api/config", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			cfg, factors := app.Orchestrator.ActiveConfig()
			w.Header().Set("Content-Type", "application/json")
			response := struct {
				Scanner    mcl.ScannerConfig `json:"scanner"`
				MapFactors mcl.MapFactors    `json:"mapFactors"`
			}{cfg, factors}
			if err := json.NewEncoder(w).Encode(response); err != nil {
				log.Printf("Error encoding active config: %v", err)
			}
		case http.MethodPut:
			// Start from the active config so partial bodies only touch the
			// fields they name.
			cfg, factors := app.Orchestrator.ActiveConfig()
			request := struct {
				Scanner    *mcl.ScannerConfig `json:"scanner"`
				MapFactors *mcl.MapFactors    `json:"mapFactors"`
			}{&cfg, &factors}
			if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
				http.Error(w, "Invalid config body: "+err.Error(), http.StatusBadRequest)
				return
			}
			if err := app.Orchestrator.Reconfigure(cfg, factors); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			log.Printf("sensor model reconfigured: model=%s", cfg.Model)
			w.WriteHeader(http.StatusNoContent)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	// Operator-triggered global relocalization
	mux.HandleFunc("/api/global-localization", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if err := app.Orchestrator.RequestGlobalLocalization(); err != nil {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	})

	// Score a candidate pose against the latest scan
	mux.HandleFunc("/api/score", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var pose mcl.Pose
		if err := json.NewDecoder(r.Body).Decode(&pose); err != nil {
			http.Error(w, "Invalid pose body: "+err.Error(), http.StatusBadRequest)
			return
		}
		score, err := app.Orchestrator.ScorePose(pose)
		if err != nil {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		response := struct {
			Pose  mcl.Pose `json:"pose"`
			Score float64  `json:"score"`
		}{pose, score}
		if err := json.NewEncoder(w).Encode(response); err != nil {
			log.Printf("Error encoding score: %v", err)
		}
	})

	// Wrap mux with logging middleware
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Printf("[HTTP] %s %s from %s", r.Method, r.URL.Path, r.RemoteAddr)
		mux.ServeHTTP(w, r)
	})
}
