package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/easyadsb/easyadsb/internal/artifact"
	"github.com/easyadsb/easyadsb/internal/config"
	"github.com/easyadsb/easyadsb/internal/discovery"
)

// credentialBinding ties an extraction target name to the env key its
// value lands in.
type credentialBinding struct {
	target string
	spec   config.CredentialSpec
}

var probeBindings = map[string][]credentialBinding{
	config.ServiceFR24.ID: {
		{target: "sharing-key", spec: specFor(config.KeyFR24SharingKey)},
		{target: "radar-id", spec: specFor(config.KeyFR24RadarID)},
	},
	config.ServicePiaware.ID: {
		{target: "feeder-id", spec: specFor(config.KeyPiawareFeederID)},
	},
	config.ServiceRadarBox.ID: {
		{target: "sharing-key", spec: specFor(config.KeyRBSharingKey)},
	},
}

func specFor(key string) config.CredentialSpec {
	for _, spec := range config.CredentialSpecs {
		if spec.Key == key {
			return spec
		}
	}
	panic("console: unknown credential key " + key)
}

// runSetup walks the full configuration flow on snap and persists the
// result. It is shared by first-time setup and reconfigure; the only
// difference is whether snap starts empty or seeded from disk.
func (s *Session) runSetup(ctx context.Context, snap *config.Snapshot) error {
	profile := s.promptProfile(config.ProfileFromSnapshot(snap))
	profile.Apply(snap)
	s.promptSDR(snap)

	for _, svc := range []config.Service{config.ServiceFR24, config.ServicePiaware, config.ServiceRadarBox} {
		if err := s.setupCredentials(ctx, snap, svc, profile); err != nil {
			return err
		}
	}
	s.ensureADSBxUUID(snap)
	s.ensureLoggerDefaults(snap)

	snap.Set(config.KeyUltrafeederConfig, artifact.BuildUltrafeederConfig(snap))
	if err := s.Store.Save(snap); err != nil {
		return err
	}
	if err := s.Generator.Regenerate(snap); err != nil {
		return err
	}
	fmt.Fprintln(s.Out, "Configuration saved and artifacts regenerated.")
	return nil
}

func (s *Session) promptProfile(prior config.FeederProfile) config.FeederProfile {
	fmt.Fprintln(s.Out)
	fmt.Fprintln(s.Out, "Station profile")
	prior.Station = s.prompt("Station name", prior.Station)
	prior.Latitude = s.promptFloat("Latitude (decimal degrees)", prior.Latitude, prior.Latitude != 0)
	prior.Longitude = s.promptFloat("Longitude (decimal degrees)", prior.Longitude, prior.Longitude != 0)
	prior.AltitudeM = s.promptFloat("Antenna altitude (meters AMSL)", prior.AltitudeM, true)
	tz := prior.Timezone
	if tz == "" {
		tz = "UTC"
	}
	prior.Timezone = s.prompt("Timezone", tz)
	return prior
}

func (s *Session) promptSDR(snap *config.Snapshot) {
	fmt.Fprintln(s.Out)
	fmt.Fprintln(s.Out, "SDR receiver")
	serial := s.prompt("SDR serial (empty for first available)", snap.Value(config.KeySDRSerial))
	gain := snap.Value(config.KeySDRGain)
	if gain == "" {
		gain = "autogain"
	}
	gain = s.prompt("Gain", gain)
	ppm := snap.Value(config.KeySDRPPM)
	if ppm == "" {
		ppm = "0"
	}
	ppm = s.prompt("PPM correction", ppm)
	snap.Upsert(map[string]string{
		config.KeySDRSerial: serial,
		config.KeySDRGain:   gain,
		config.KeySDRPPM:    ppm,
	})
}

// setupCredentials resolves every credential slot of one feed service,
// preferring the live signup probe and falling back to manual entry or a
// placeholder sentinel.
func (s *Session) setupCredentials(ctx context.Context, snap *config.Snapshot, svc config.Service, profile config.FeederProfile) error {
	bindings := probeBindings[svc.ID]
	fmt.Fprintln(s.Out)
	fmt.Fprintf(s.Out, "%s credentials\n", svc.Display)

	if s.keepExisting(snap, bindings) {
		return nil
	}

	for {
		fmt.Fprintln(s.Out, "  1) Discover automatically (runs the signup probe)")
		fmt.Fprintln(s.Out, "  2) Enter manually")
		fmt.Fprintln(s.Out, "  3) Skip for now")
		choice, err := s.promptChoice("Select", 1, 3)
		if err != nil {
			choice = 3
		}
		switch choice {
		case 1:
			done, err := s.discoverService(ctx, snap, svc, profile, bindings)
			if err != nil {
				return err
			}
			if done {
				return nil
			}
			// Discovery failed; re-offer the menu.
		case 2:
			s.enterManually(snap, svc, bindings)
			return nil
		case 3:
			for _, b := range bindings {
				config.ApplyCredential(snap, config.Credential{
					Service:    svc.ID,
					Key:        b.spec.Key,
					Format:     b.spec.Format,
					Value:      config.Placeholder(svc),
					Provenance: config.ProvenancePlaceholder,
				})
			}
			fmt.Fprintf(s.Out, "Skipped. %s will run with a placeholder until configured.\n", svc.Display)
			return nil
		}
	}
}

// keepExisting offers previously stored real values as the default. It
// returns true when the operator keeps them untouched.
func (s *Session) keepExisting(snap *config.Snapshot, bindings []credentialBinding) bool {
	creds := make([]config.Credential, 0, len(bindings))
	for _, b := range bindings {
		cred, ok := config.CredentialFromSnapshot(snap, b.spec)
		if !ok || config.IsPlaceholder(cred.Value) {
			return false
		}
		creds = append(creds, cred)
	}
	for _, cred := range creds {
		fmt.Fprintf(s.Out, "  %s = %s (%s, %s)\n", cred.Key, cred.Value, cred.Provenance, cred.Validity())
	}
	return s.confirm("Keep these values?", true)
}

func (s *Session) discoverService(ctx context.Context, snap *config.Snapshot, svc config.Service, profile config.FeederProfile, bindings []credentialBinding) (bool, error) {
	sink, logPath := s.probeLogSink(svc)
	if sink != nil {
		defer sink.Close()
	}
	fmt.Fprintf(s.Out, "Running the %s signup probe, this can take a couple of minutes...\n", svc.Display)
	fmt.Fprintln(s.Out, "Press Ctrl-C to stop the probe and choose another option.")

	probeCtx := ctx
	stop := context.CancelFunc(func() {})
	if s.DiscoverScope != nil {
		probeCtx, stop = s.DiscoverScope(ctx)
	}
	defer stop()

	values, err := s.Engine.Discover(probeCtx, probeSpec(svc, profile, sink))
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	switch {
	case err == nil:
		for _, b := range bindings {
			config.ApplyCredential(snap, config.Credential{
				Service:    svc.ID,
				Key:        b.spec.Key,
				Format:     b.spec.Format,
				Value:      values[b.target],
				Provenance: config.ProvenanceProbe,
			})
			fmt.Fprintf(s.Out, "  %s = %s (confirmed)\n", b.spec.Key, values[b.target])
		}
		return true, nil
	case probeCtx.Err() != nil:
		// The operator interrupted this probe; the console itself goes on.
		fmt.Fprintln(s.Out, "Interrupted; the signup probe was stopped.")
	case errors.Is(err, discovery.ErrExtractionTimeout):
		fmt.Fprintf(s.Out, "The probe did not produce a credential in time: %v\n", err)
	default:
		fmt.Fprintf(s.Out, "Probe failed: %v\n", err)
	}
	if logPath != "" {
		fmt.Fprintf(s.Out, "Full probe transcript: %s\n", logPath)
	}
	return false, nil
}

func (s *Session) enterManually(snap *config.Snapshot, svc config.Service, bindings []credentialBinding) {
	for _, b := range bindings {
		value := s.promptCredentialValue(b.spec)
		config.ApplyCredential(snap, config.Credential{
			Service:    svc.ID,
			Key:        b.spec.Key,
			Format:     b.spec.Format,
			Value:      value,
			Provenance: config.ProvenanceManual,
		})
	}
	fmt.Fprintln(s.Out, "Recorded. Manually entered values stay unverified until a probe confirms them.")
}

func (s *Session) promptCredentialValue(spec config.CredentialSpec) string {
	for {
		value := strings.TrimSpace(s.prompt(spec.Key, ""))
		if value == "" {
			fmt.Fprintln(s.Out, "  a value is required")
			continue
		}
		if config.MatchesFormat(spec.Format, value) {
			return value
		}
		if s.confirm(fmt.Sprintf("%q does not look like a valid %s value. Keep it anyway?", value, spec.Key), false) {
			return value
		}
	}
}

// ensureADSBxUUID issues the self-generated ADSBExchange identity. An
// existing real value survives reconfigure untouched.
func (s *Session) ensureADSBxUUID(snap *config.Snapshot) {
	spec := specFor(config.KeyADSBxUUID)
	if cred, ok := config.CredentialFromSnapshot(snap, spec); ok && !config.IsPlaceholder(cred.Value) {
		return
	}
	id := uuid.NewString()
	if s.NewUUID != nil {
		id = s.NewUUID()
	}
	config.ApplyCredential(snap, config.Credential{
		Service:    config.ServiceADSBx.ID,
		Key:        spec.Key,
		Format:     spec.Format,
		Value:      id,
		Provenance: config.ProvenanceGenerated,
	})
	fmt.Fprintf(s.Out, "Generated ADSBExchange identity %s\n", id)
}

func (s *Session) ensureLoggerDefaults(snap *config.Snapshot) {
	if snap.Value(config.KeyLoggerInterval) == "" {
		snap.Set(config.KeyLoggerInterval, "10")
	}
	if snap.Value(config.KeyLoggerRetention) == "" {
		snap.Set(config.KeyLoggerRetention, "14")
	}
}

// probeLogSink opens the per-service signup transcript file. A sink that
// cannot be opened degrades to no transcript rather than blocking setup.
func (s *Session) probeLogSink(svc config.Service) (io.WriteCloser, string) {
	dir := s.Store.Paths().LogsDir
	if dir == "" {
		return nil, ""
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, ""
	}
	path := filepath.Join(dir, svc.ID+"-signup.log")
	f, err := os.Create(path)
	if err != nil {
		return nil, ""
	}
	return f, path
}
