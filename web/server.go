// Package web provides the HTTP API of HamShack: control of the acquisition pipeline, the spot cache,
// live updates via server-sent events and WebSocket, and the static frontend files.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/ftl/hamshack/sdr"
	"github.com/ftl/hamshack/spots"
)

const shutdownTimeout = 2 * time.Second

const fallbackPage = "<h1>HamShack Dashboard</h1><p>Frontend files not found</p>"

type SDR interface {
	Start() error
	Stop() error
	SetFrequency(frequency int) error
	Status() sdr.Status
	SpectrumData() (*sdr.Frame, bool)
}

type SpotCache interface {
	Add(spot spots.Spot)
	Spots() []spots.Spot
}

// Result is the response of the control endpoints.
type Result struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Error     string `json:"error,omitempty"`
	Frequency int    `json:"frequency,omitempty"`
}

// Station describes the station that runs the server.
type Station struct {
	Callsign string `json:"callsign"`
	Locator  string `json:"locator"`
}

type Server struct {
	srv       *http.Server
	sdr       SDR
	spots     SpotCache
	poller    *Poller
	staticDir string
	station   Station
}

func NewServer(address string, staticDir string, sdr SDR, spotCache SpotCache, poller *Poller) *Server {
	result := &Server{
		sdr:       sdr,
		spots:     spotCache,
		poller:    poller,
		staticDir: staticDir,
	}
	result.srv = &http.Server{
		Addr:              address,
		Handler:           result.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return result
}

// SetStation sets the station that is reported by the API. The station callsign is used as spotter
// for posted spots without one. It must be called before the server is started.
func (s *Server) SetStation(callsign string, locator string) {
	s.station = Station{Callsign: callsign, Locator: locator}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/station", s.handleStation)
	mux.HandleFunc("GET /api/sdr/status", s.handleStatus)
	mux.HandleFunc("GET /api/sdr/start", s.handleStart)
	mux.HandleFunc("POST /api/sdr/start", s.handleStart)
	mux.HandleFunc("GET /api/sdr/stop", s.handleStop)
	mux.HandleFunc("POST /api/sdr/stop", s.handleStop)
	mux.HandleFunc("GET /api/sdr/frequency/{freq}", s.handleSetFrequency)
	mux.HandleFunc("POST /api/sdr/frequency/{freq}", s.handleSetFrequency)
	mux.HandleFunc("GET /api/sdr/spectrum", s.handleSpectrum)
	mux.HandleFunc("GET /api/spots", s.handleGetSpots)
	mux.HandleFunc("POST /api/spots", s.handleAddSpot)
	mux.HandleFunc("GET /api/sse", s.handleSSE)
	mux.HandleFunc("GET /api/ws", s.handleWebSocket)
	mux.Handle("GET /assets/", http.StripPrefix("/assets/", http.FileServer(http.Dir(filepath.Join(s.staticDir, "assets")))))
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.Handle("GET /", http.FileServer(http.Dir(s.staticDir)))
	return mux
}

// Start serves HTTP requests until the given context is done.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("[ERROR] web server shutdown: %v", err)
		}
	}()

	log.Printf("[INFO] server listening on http://%s", s.srv.Addr)
	err := s.srv.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("web server failed: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, statusCode int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(value); err != nil {
		log.Printf("[ERROR] cannot write response: %v", err)
	}
}

func writeResult(w http.ResponseWriter, err error, result Result) {
	if err == nil {
		result.Success = true
		writeJSON(w, http.StatusOK, result)
		return
	}

	statusCode := http.StatusInternalServerError
	switch {
	case errors.Is(err, sdr.ErrAlreadyRunning):
		statusCode = http.StatusConflict
		result.Error = "already_running"
	case errors.Is(err, sdr.ErrNotRunning):
		statusCode = http.StatusConflict
		result.Error = "not_running"
	case errors.Is(err, sdr.ErrInvalidConfig):
		statusCode = http.StatusBadRequest
		result.Error = "invalid_config"
	default:
		result.Error = "internal"
	}
	result.Success = false
	result.Message = fmt.Sprintf("%s: %v", result.Message, err)
	writeJSON(w, statusCode, result)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("OK"))
}

func (s *Server) handleStation(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.station)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.sdr.Status())
}

func (s *Server) handleStart(w http.ResponseWriter, _ *http.Request) {
	err := s.sdr.Start()
	if err != nil {
		writeResult(w, err, Result{Message: "Failed to start SDR"})
		return
	}
	log.Printf("[INFO] SDR started")
	writeResult(w, nil, Result{Message: "SDR started"})
}

func (s *Server) handleStop(w http.ResponseWriter, _ *http.Request) {
	err := s.sdr.Stop()
	if err != nil {
		writeResult(w, err, Result{Message: "Failed to stop SDR"})
		return
	}
	log.Printf("[INFO] SDR stopped")
	writeResult(w, nil, Result{Message: "SDR stopped"})
}

func (s *Server) handleSetFrequency(w http.ResponseWriter, r *http.Request) {
	rawFrequency := r.PathValue("freq")
	frequency, err := strconv.Atoi(rawFrequency)
	if err != nil {
		writeResult(w, fmt.Errorf("%w: %q is not a frequency", sdr.ErrInvalidConfig, rawFrequency), Result{Message: "Failed to set frequency"})
		return
	}

	err = s.sdr.SetFrequency(frequency)
	if err != nil {
		writeResult(w, err, Result{Message: "Failed to set frequency", Frequency: frequency})
		return
	}
	log.Printf("[INFO] SDR frequency set to %d Hz", frequency)
	writeResult(w, nil, Result{Message: "Frequency set", Frequency: frequency})
}

func (s *Server) handleSpectrum(w http.ResponseWriter, _ *http.Request) {
	spectrum, ok := s.poller.LatestSpectrum()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, spectrum)
}

func (s *Server) handleGetSpots(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.spots.Spots())
}

func (s *Server) handleAddSpot(w http.ResponseWriter, r *http.Request) {
	var incoming spots.Spot
	if err := json.NewDecoder(r.Body).Decode(&incoming); err != nil {
		http.Error(w, fmt.Sprintf("invalid spot payload: %v", err), http.StatusBadRequest)
		return
	}
	if incoming.Timestamp.IsZero() {
		incoming.Timestamp = time.Now()
	}
	if incoming.Spotter == "" {
		incoming.Spotter = s.station.Callsign
	}

	spot, err := spots.Validate(incoming)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.spots.Add(spot)
	writeJSON(w, http.StatusCreated, spot)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	filename := filepath.Join(s.staticDir, "index.html")
	if _, err := os.Stat(filename); err != nil {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(fallbackPage))
		return
	}
	http.ServeFile(w, r, filename)
}
