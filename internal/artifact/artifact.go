// Package artifact re-renders the files derived from the configuration
// store: the dashboard config consumed read-only by the web UI, the
// compose overlay defining the feeder containers, and the composite
// feed-routing expression for ultrafeeder. Every render is a pure function
// of the snapshot, so regenerating twice without a configuration change
// produces byte-identical output and regeneration is always safe to run
// standalone for repair.
package artifact

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/easyadsb/easyadsb/internal/config"
)

// DashboardConfig is the generated declarative object the dashboard
// reads. Field names are a fixed external contract. Values are copied
// verbatim from the snapshot: a placeholder credential is emitted as-is
// rather than failing, because the artifact may legitimately represent a
// partially configured install.
type DashboardConfig struct {
	StationName     string `json:"stationName"`
	Latitude        string `json:"latitude"`
	Longitude       string `json:"longitude"`
	AltitudeMeters  string `json:"altitudeMeters"`
	Timezone        string `json:"timezone"`
	FR24SharingKey  string `json:"fr24SharingKey"`
	FR24RadarID     string `json:"fr24RadarId"`
	PiawareFeederID string `json:"piawareFeederId"`
	RBSharingKey    string `json:"rbSharingKey"`
	ADSBxUUID       string `json:"adsbxUuid"`
}

// RenderDashboard renders the dashboard config from a snapshot.
func RenderDashboard(snap *config.Snapshot) []byte {
	cfg := DashboardConfig{
		StationName:     snap.Value(config.KeyStation),
		Latitude:        snap.Value(config.KeyLatitude),
		Longitude:       snap.Value(config.KeyLongitude),
		AltitudeMeters:  snap.Value(config.KeyAltitude),
		Timezone:        snap.Value(config.KeyTimezone),
		FR24SharingKey:  snap.Value(config.KeyFR24SharingKey),
		FR24RadarID:     snap.Value(config.KeyFR24RadarID),
		PiawareFeederID: snap.Value(config.KeyPiawareFeederID),
		RBSharingKey:    snap.Value(config.KeyRBSharingKey),
		ADSBxUUID:       snap.Value(config.KeyADSBxUUID),
	}
	data, _ := json.MarshalIndent(cfg, "", "  ")
	return append(data, '\n')
}

// Feeder container images. Pinned tags keep the overlay deterministic.
const (
	ImageFR24     = "ghcr.io/sdr-enthusiasts/docker-flightradar24:latest"
	ImagePiaware  = "ghcr.io/sdr-enthusiasts/docker-piaware:latest"
	ImageRadarBox = "ghcr.io/sdr-enthusiasts/docker-radarbox:latest"
	ImageADSBx    = "ghcr.io/sdr-enthusiasts/docker-adsbexchange:latest"
)

type composeService struct {
	Image         string   `yaml:"image"`
	ContainerName string   `yaml:"container_name"`
	Restart       string   `yaml:"restart"`
	Environment   []string `yaml:"environment"`
}

// composeServices holds the feeder services in a struct (not a map) so
// yaml marshalling order is fixed.
type composeServices struct {
	FR24     composeService `yaml:"fr24"`
	Piaware  composeService `yaml:"piaware"`
	RadarBox composeService `yaml:"rbfeeder"`
	ADSBx    composeService `yaml:"adsbx"`
}

type composeFile struct {
	Services composeServices `yaml:"services"`
}

// RenderCompose renders the feeder compose overlay. Credential values are
// wired into each container's environment verbatim, placeholders included;
// whether a feeder copes with a placeholder is the documented contract of
// the external runtime, not this generator's concern.
func RenderCompose(snap *config.Snapshot) ([]byte, error) {
	tz := snap.Value(config.KeyTimezone)
	lat := snap.Value(config.KeyLatitude)
	lon := snap.Value(config.KeyLongitude)
	alt := snap.Value(config.KeyAltitude)

	file := composeFile{Services: composeServices{
		FR24: composeService{
			Image:         ImageFR24,
			ContainerName: "fr24",
			Restart:       "unless-stopped",
			Environment: []string{
				"TZ=" + tz,
				"FR24KEY=" + snap.Value(config.KeyFR24SharingKey),
				"BEASTHOST=ultrafeeder",
			},
		},
		Piaware: composeService{
			Image:         ImagePiaware,
			ContainerName: "piaware",
			Restart:       "unless-stopped",
			Environment: []string{
				"TZ=" + tz,
				"FEEDER_ID=" + snap.Value(config.KeyPiawareFeederID),
				"BEASTHOST=ultrafeeder",
				"LAT=" + lat,
				"LONG=" + lon,
			},
		},
		RadarBox: composeService{
			Image:         ImageRadarBox,
			ContainerName: "rbfeeder",
			Restart:       "unless-stopped",
			Environment: []string{
				"TZ=" + tz,
				"SHARING_KEY=" + snap.Value(config.KeyRBSharingKey),
				"BEASTHOST=ultrafeeder",
				"LAT=" + lat,
				"LONG=" + lon,
				"ALT=" + alt,
			},
		},
		ADSBx: composeService{
			Image:         ImageADSBx,
			ContainerName: "adsbx",
			Restart:       "unless-stopped",
			Environment: []string{
				"TZ=" + tz,
				"UUID=" + snap.Value(config.KeyADSBxUUID),
				"BEASTHOST=ultrafeeder",
				"LAT=" + lat,
				"LONG=" + lon,
				"ALT=" + alt,
				"SITENAME=" + sitename(snap.Value(config.KeyStation)),
			},
		},
	}}

	data, err := yaml.Marshal(file)
	if err != nil {
		return nil, fmt.Errorf("artifact: marshal compose overlay: %w", err)
	}
	header := "# Generated by the easyadsb console. Do not edit: regenerated on every\n# configuration change.\n"
	return append([]byte(header), data...), nil
}

// sitename converts a free-form station name into the identifier shape the
// ADSBExchange feed client expects.
func sitename(station string) string {
	var b strings.Builder
	for _, r := range station {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_', r == '.':
			b.WriteRune('_')
		}
	}
	return b.String()
}

// BuildUltrafeederConfig assembles the composite feed-routing expression
// from the individual credentials. The ADSBX credential is included
// verbatim even when it is a placeholder.
func BuildUltrafeederConfig(snap *config.Snapshot) string {
	uuid := snap.Value(config.KeyADSBxUUID)
	entries := []string{
		"adsb,feed1.adsbexchange.com,30004,beast_reduce_plus_out,uuid=" + uuid,
		"mlat,feed.adsbexchange.com,31090,39000,uuid=" + uuid,
	}
	return strings.Join(entries, ";")
}

// Generator writes the derived artifacts for an install.
type Generator struct {
	paths config.Paths
}

// NewGenerator creates a generator over the install paths.
func NewGenerator(paths config.Paths) *Generator {
	return &Generator{paths: paths}
}

// Regenerate re-renders every derived artifact from the snapshot. Writes
// are atomic renames: a concurrent reader (the dashboard polls its config)
// never observes a partially written file. Must be called after every
// snapshot mutation that touches a referenced field, and is safe to call
// at any other time.
func (g *Generator) Regenerate(snap *config.Snapshot) error {
	if err := config.WriteFileAtomic(g.paths.DashboardConfig, RenderDashboard(snap), 0o644); err != nil {
		return fmt.Errorf("artifact: write dashboard config: %w", err)
	}
	overlay, err := RenderCompose(snap)
	if err != nil {
		return err
	}
	if err := config.WriteFileAtomic(g.paths.ComposeFeeders, overlay, 0o644); err != nil {
		return fmt.Errorf("artifact: write compose overlay: %w", err)
	}
	return nil
}
