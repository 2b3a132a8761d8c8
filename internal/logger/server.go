package logger

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/easyadsb/easyadsb/internal/config"
)

// ErrorResponse is the JSON error envelope for all HTTP error responses.
type ErrorResponse struct {
	Error string `json:"error"`
}

// APIServer serves the dashboard REST API and the live websocket stream.
type APIServer struct {
	store          *Store
	poller         *Poller
	hub            *Hub
	userConfigPath string
}

// APIServerOptions configures an APIServer.
type APIServerOptions struct {
	Store          *Store
	Poller         *Poller
	Hub            *Hub
	UserConfigPath string
}

// NewAPIServer wires the API over the store and poller. Hub may be nil
// when the live stream is disabled.
func NewAPIServer(opts APIServerOptions) *APIServer {
	return &APIServer{
		store:          opts.Store,
		poller:         opts.Poller,
		hub:            opts.Hub,
		userConfigPath: opts.UserConfigPath,
	}
}

// Handler returns the routed HTTP handler with CORS applied.
func (s *APIServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/stats", s.handleStats)
	mux.HandleFunc("/api/settings", s.handleSettings)
	mux.HandleFunc("/api/userconfig", s.handleUserConfig)
	mux.HandleFunc("/api/export", s.handleExportCSV)
	mux.HandleFunc("/api/export/json", s.handleExportJSON)
	mux.HandleFunc("/api/flights", s.handleFlights)
	mux.HandleFunc("/api/trace/", s.handleTrace)
	mux.HandleFunc("/api/recent", s.handleRecent)
	mux.HandleFunc("/api/pause", s.handlePause)
	mux.HandleFunc("/api/resume", s.handleResume)
	mux.HandleFunc("/api/clear", s.handleClear)
	if s.hub != nil {
		mux.HandleFunc("/api/live", s.hub.HandleLive)
	}
	return corsMiddleware(mux)
}

// corsMiddleware opens the API to the dashboard, which is served from a
// different container. OPTIONS preflights short-circuit here.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("[Logger] failed to write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

func (s *APIServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.poller.Health())
}

func (s *APIServer) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	settings := s.poller.Settings()
	health := s.poller.Health()
	writeJSON(w, http.StatusOK, struct {
		Stats
		Paused        bool    `json:"paused"`
		Interval      int     `json:"interval"`
		RetentionDays int     `json:"retention_days"`
		LastPoll      *string `json:"last_poll"`
		LastCount     int     `json:"last_count"`
	}{
		Stats:         stats,
		Paused:        settings.Paused,
		Interval:      settings.Interval,
		RetentionDays: settings.RetentionDays,
		LastPoll:      health.LastPoll,
		LastCount:     health.LastCount,
	})
}

func (s *APIServer) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.poller.Settings())
	case http.MethodPost:
		var body struct {
			Interval      *int `json:"interval"`
			RetentionDays *int `json:"retention_days"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		updated := s.poller.UpdateSettings(body.Interval, body.RetentionDays)
		writeJSON(w, http.StatusOK, struct {
			Success       bool `json:"success"`
			Interval      int  `json:"interval"`
			RetentionDays int  `json:"retention_days"`
		}{true, updated.Interval, updated.RetentionDays})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleUserConfig stores free-form dashboard preferences (for example the
// ADSBExchange short ID) as a JSON document. POST merges keys into the
// existing document.
func (s *APIServer) handleUserConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.loadUserConfig())
	case http.MethodPost:
		var update map[string]any
		if err := json.NewDecoder(r.Body).Decode(&update); err != nil || len(update) == 0 {
			writeError(w, http.StatusBadRequest, "no data provided")
			return
		}
		merged := s.loadUserConfig()
		for k, v := range update {
			merged[k] = v
		}
		data, err := json.MarshalIndent(merged, "", "  ")
		if err == nil {
			err = config.WriteFileAtomic(s.userConfigPath, data, 0o644)
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "could not save config")
			return
		}
		writeJSON(w, http.StatusOK, struct {
			Success bool           `json:"success"`
			Config  map[string]any `json:"config"`
		}{true, merged})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *APIServer) loadUserConfig() map[string]any {
	out := map[string]any{}
	data, err := os.ReadFile(s.userConfigPath)
	if err != nil {
		return out
	}
	if err := json.Unmarshal(data, &out); err != nil {
		log.Printf("[Logger] unreadable user config %s: %v", s.userConfigPath, err)
		return map[string]any{}
	}
	return out
}

func (s *APIServer) handlePause(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.poller.Pause()
	writeJSON(w, http.StatusOK, struct {
		Success bool `json:"success"`
		Paused  bool `json:"paused"`
	}{true, true})
}

func (s *APIServer) handleResume(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.poller.Resume()
	writeJSON(w, http.StatusOK, struct {
		Success bool `json:"success"`
		Paused  bool `json:"paused"`
	}{true, false})
}

func (s *APIServer) handleClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := s.store.Clear(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.poller.ResetTotal()
	log.Printf("[Logger] all logs cleared")
	writeJSON(w, http.StatusOK, struct {
		Success bool `json:"success"`
	}{true})
}

// exportStamp converts a stored timestamp to ISO 8601 with a T separator.
func exportStamp(stored string) string {
	return strings.Replace(stored, " ", "T", 1)
}

var exportColumns = []string{"timestamp", "icao", "callsign", "lat", "lon", "altitude", "speed", "track", "vert_rate", "squawk", "category", "aircraft_type", "rssi"}

func (s *APIServer) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	positions, err := s.store.Export(r.Context(), r.URL.Query().Get("start"), r.URL.Query().Get("end"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	filename := fmt.Sprintf("flights_%s.csv", time.Now().Format("20060102_150405"))
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename="+filename)

	cw := csv.NewWriter(w)
	cw.Write(exportColumns)
	for _, p := range positions {
		cw.Write([]string{
			exportStamp(p.Timestamp),
			p.ICAO,
			strPtr(p.Callsign),
			floatPtr(p.Lat),
			floatPtr(p.Lon),
			intPtr(p.Altitude),
			intPtr(p.Speed),
			intPtr(p.Track),
			intPtr(p.VertRate),
			strPtr(p.Squawk),
			strPtr(p.Category),
			strPtr(p.AircraftType),
			floatPtr(p.RSSI),
		})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		log.Printf("[Logger] csv export failed: %v", err)
	}
}

func (s *APIServer) handleExportJSON(w http.ResponseWriter, r *http.Request) {
	positions, err := s.store.Export(r.Context(), r.URL.Query().Get("start"), r.URL.Query().Get("end"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	for i := range positions {
		positions[i].Timestamp = exportStamp(positions[i].Timestamp)
	}
	filename := fmt.Sprintf("flights_%s.json", time.Now().Format("20060102_150405"))
	w.Header().Set("Content-Disposition", "attachment; filename="+filename)
	writeJSON(w, http.StatusOK, positions)
}

func (s *APIServer) handleFlights(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := FlightQuery{
		ICAO:     q.Get("icao"),
		Callsign: q.Get("callsign"),
		Start:    q.Get("start"),
		End:      q.Get("end"),
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		query.Limit = limit
	}
	flights, err := s.store.Flights(r.Context(), query)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, flights)
}

func (s *APIServer) handleTrace(w http.ResponseWriter, r *http.Request) {
	icao := strings.TrimPrefix(r.URL.Path, "/api/trace/")
	if icao == "" || strings.Contains(icao, "/") {
		writeError(w, http.StatusBadRequest, "aircraft ICAO is required")
		return
	}
	trace, err := s.store.Trace(r.Context(), icao, r.URL.Query().Get("start"), r.URL.Query().Get("end"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, struct {
		ICAO      string       `json:"icao"`
		Positions int          `json:"positions"`
		Trace     []TracePoint `json:"trace"`
	}{strings.ToUpper(icao), len(trace), trace})
}

func (s *APIServer) handleRecent(w http.ResponseWriter, r *http.Request) {
	aircraft, err := s.store.Recent(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, aircraft)
}

func strPtr(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func intPtr(p *int64) string {
	if p == nil {
		return ""
	}
	return strconv.FormatInt(*p, 10)
}

func floatPtr(p *float64) string {
	if p == nil {
		return ""
	}
	return strconv.FormatFloat(*p, 'f', -1, 64)
}
