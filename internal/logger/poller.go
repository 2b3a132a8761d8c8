package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/easyadsb/easyadsb/internal/config"
)

const (
	minInterval = 5
	maxInterval = 60

	cleanupEvery = time.Hour
)

// Settings is the runtime-tunable logger configuration. Changes made
// through the API survive restarts via the settings file; the env file
// only supplies first-boot defaults.
type Settings struct {
	Interval      int  `json:"interval"`
	RetentionDays int  `json:"retention_days"`
	Paused        bool `json:"paused"`
}

// Health is the poller's liveness snapshot.
type Health struct {
	Status      string  `json:"status"`
	Paused      bool    `json:"paused"`
	LastPoll    *string `json:"last_poll"`
	LastCount   int     `json:"last_count"`
	TotalLogged int64   `json:"total_logged"`
}

// PollerOptions configures a Poller.
type PollerOptions struct {
	Store          *Store
	UltrafeederURL string // base URL, e.g. http://ultrafeeder:8080
	SettingsPath   string
	Interval       int // seconds, first-boot default
	RetentionDays  int // first-boot default, <= 0 keeps forever
	OnBatch        func([]Position)
	Client         *http.Client
}

// Poller periodically fetches the live aircraft list from ultrafeeder and
// appends position snapshots to the store.
type Poller struct {
	store        *Store
	client       *http.Client
	url          string
	settingsPath string
	onBatch      func([]Position)

	mu          sync.Mutex
	settings    Settings
	lastPoll    time.Time
	lastCount   int
	totalLogged int64
}

// NewPoller builds a poller. Persisted settings, when present, override
// the option defaults.
func NewPoller(opts PollerOptions) *Poller {
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	interval := opts.Interval
	if interval < minInterval || interval > maxInterval {
		interval = 10
	}
	p := &Poller{
		store:        opts.Store,
		client:       client,
		url:          strings.TrimRight(opts.UltrafeederURL, "/") + "/data/aircraft.json",
		settingsPath: opts.SettingsPath,
		onBatch:      opts.OnBatch,
		settings: Settings{
			Interval:      interval,
			RetentionDays: opts.RetentionDays,
		},
	}
	p.loadSettings()
	return p
}

func (p *Poller) loadSettings() {
	if p.settingsPath == "" {
		return
	}
	data, err := os.ReadFile(p.settingsPath)
	if err != nil {
		return
	}
	var saved Settings
	if err := json.Unmarshal(data, &saved); err != nil {
		log.Printf("[Logger] ignoring unreadable settings file %s: %v", p.settingsPath, err)
		return
	}
	if saved.Interval >= minInterval && saved.Interval <= maxInterval {
		p.settings.Interval = saved.Interval
	}
	if saved.RetentionDays >= 0 {
		p.settings.RetentionDays = saved.RetentionDays
	}
	p.settings.Paused = saved.Paused
	log.Printf("[Logger] loaded settings: interval=%ds retention=%dd paused=%v",
		p.settings.Interval, p.settings.RetentionDays, p.settings.Paused)
}

// saveSettings persists the current settings. Callers hold p.mu.
func (p *Poller) saveSettings() {
	if p.settingsPath == "" {
		return
	}
	data, err := json.Marshal(p.settings)
	if err != nil {
		return
	}
	if err := config.WriteFileAtomic(p.settingsPath, data, 0o644); err != nil {
		log.Printf("[Logger] could not save settings: %v", err)
	}
}

// Settings returns the active configuration.
func (p *Poller) Settings() Settings {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.settings
}

// UpdateSettings applies any provided fields, clamping to the allowed
// ranges, and returns the result. A nil field leaves its value alone.
func (p *Poller) UpdateSettings(interval, retentionDays *int) Settings {
	p.mu.Lock()
	defer p.mu.Unlock()
	if interval != nil && *interval >= minInterval && *interval <= maxInterval {
		p.settings.Interval = *interval
		log.Printf("[Logger] interval updated to %ds", *interval)
	}
	if retentionDays != nil && *retentionDays >= 0 {
		p.settings.RetentionDays = *retentionDays
		log.Printf("[Logger] retention updated to %d days", *retentionDays)
	}
	p.saveSettings()
	return p.settings
}

// Pause suspends polling. Already-stored data is unaffected.
func (p *Poller) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.settings.Paused = true
	p.saveSettings()
	log.Printf("[Logger] logging paused")
}

// Resume re-enables polling.
func (p *Poller) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.settings.Paused = false
	p.saveSettings()
	log.Printf("[Logger] logging resumed")
}

// Paused reports whether polling is suspended.
func (p *Poller) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.settings.Paused
}

// Health returns the liveness snapshot served by /health.
func (p *Poller) Health() Health {
	p.mu.Lock()
	defer p.mu.Unlock()
	h := Health{
		Status:      "ok",
		Paused:      p.settings.Paused,
		LastCount:   p.lastCount,
		TotalLogged: p.totalLogged,
	}
	if !p.lastPoll.IsZero() {
		stamp := p.lastPoll.Format(time.RFC3339)
		h.LastPoll = &stamp
	}
	return h
}

// ResetTotal zeroes the session counter after the log is cleared.
func (p *Poller) ResetTotal() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.totalLogged = 0
}

// Run polls until ctx is cancelled. Retention cleanup piggybacks on the
// poll loop once an hour.
func (p *Poller) Run(ctx context.Context) {
	log.Printf("[Logger] poller started, every %ds against %s", p.Settings().Interval, p.url)
	nextCleanup := time.Now().Add(cleanupEvery)
	for {
		if !p.Paused() {
			p.pollOnce(ctx)
			if time.Now().After(nextCleanup) {
				p.cleanup(ctx)
				nextCleanup = time.Now().Add(cleanupEvery)
			}
		}
		select {
		case <-ctx.Done():
			log.Printf("[Logger] poller stopped")
			return
		case <-time.After(time.Duration(p.Settings().Interval) * time.Second):
		}
	}
}

func (p *Poller) cleanup(ctx context.Context) {
	retention := p.Settings().RetentionDays
	deleted, err := p.store.Cleanup(ctx, retention)
	if err != nil {
		log.Printf("[Logger] cleanup failed: %v", err)
		return
	}
	if deleted > 0 {
		log.Printf("[Logger] cleaned up %d records older than %d days", deleted, retention)
	}
}

// Cleanup runs one retention pass immediately. Called once at startup.
func (p *Poller) Cleanup(ctx context.Context) {
	p.cleanup(ctx)
}

func (p *Poller) pollOnce(ctx context.Context) {
	batch, err := p.fetch(ctx)
	if err != nil {
		log.Printf("[Logger] poll failed: %v", err)
		return
	}
	count, err := p.store.SavePositions(ctx, batch)
	if err != nil {
		log.Printf("[Logger] %v", err)
		return
	}

	p.mu.Lock()
	p.lastPoll = time.Now()
	p.lastCount = count
	p.totalLogged += int64(count)
	p.mu.Unlock()

	if count > 0 && p.onBatch != nil {
		p.onBatch(batch)
	}
}

// wireAircraft mirrors the readsb aircraft.json entry shape. alt_baro is
// the string "ground" while the aircraft is taxiing.
type wireAircraft struct {
	Hex      string          `json:"hex"`
	Flight   string          `json:"flight"`
	Lat      *float64        `json:"lat"`
	Lon      *float64        `json:"lon"`
	AltBaro  json.RawMessage `json:"alt_baro"`
	AltGeom  *int64          `json:"alt_geom"`
	GS       *float64        `json:"gs"`
	Track    *float64        `json:"track"`
	BaroRate *int64          `json:"baro_rate"`
	GeomRate *int64          `json:"geom_rate"`
	Squawk   *string         `json:"squawk"`
	Category *string         `json:"category"`
	Type     *string         `json:"t"`
	RSSI     *float64        `json:"rssi"`
}

func (p *Poller) fetch(ctx context.Context) ([]Position, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("poll ultrafeeder: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("poll ultrafeeder: unexpected status %s", resp.Status)
	}

	var payload struct {
		Aircraft []wireAircraft `json:"aircraft"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode aircraft.json: %w", err)
	}

	batch := make([]Position, 0, len(payload.Aircraft))
	for _, ac := range payload.Aircraft {
		if ac.Lat == nil || ac.Lon == nil {
			continue
		}
		batch = append(batch, ac.toPosition())
	}
	return batch, nil
}

func (ac wireAircraft) toPosition() Position {
	p := Position{
		ICAO:     strings.ToUpper(ac.Hex),
		Lat:      ac.Lat,
		Lon:      ac.Lon,
		Track:    roundToInt(ac.Track),
		Squawk:   ac.Squawk,
		Category: ac.Category,
		RSSI:     ac.RSSI,
	}
	if ac.Type != nil && *ac.Type != "" {
		p.AircraftType = ac.Type
	}
	if callsign := strings.TrimSpace(ac.Flight); callsign != "" {
		p.Callsign = &callsign
	}
	if alt := parseAltitude(ac.AltBaro); alt != nil {
		p.Altitude = alt
	} else {
		p.Altitude = ac.AltGeom
	}
	p.Speed = roundToInt(ac.GS)
	if ac.BaroRate != nil {
		p.VertRate = ac.BaroRate
	} else {
		p.VertRate = ac.GeomRate
	}
	return p
}

func parseAltitude(raw json.RawMessage) *int64 {
	if len(raw) == 0 {
		return nil
	}
	var alt float64
	if err := json.Unmarshal(raw, &alt); err == nil {
		return roundToInt(&alt)
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil && text == "ground" {
		zero := int64(0)
		return &zero
	}
	return nil
}

func roundToInt(f *float64) *int64 {
	if f == nil {
		return nil
	}
	n := int64(*f + 0.5)
	if *f < 0 {
		n = int64(*f - 0.5)
	}
	return &n
}
