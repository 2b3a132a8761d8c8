package config

import (
	"regexp"
	"strconv"
	"strings"
)

// Recognized configuration keys. Anything else in the env file is operator
// property and round-trips verbatim.
const (
	KeyTimezone  = "FEEDER_TZ"
	KeyLatitude  = "FEEDER_LAT"
	KeyLongitude = "FEEDER_LONG"
	KeyAltitude  = "FEEDER_ALT_M"
	KeyStation   = "FEEDER_NAME"

	KeySDRSerial = "ADSB_SDR_SERIAL"
	KeySDRGain   = "ADSB_SDR_GAIN"
	KeySDRPPM    = "ADSB_SDR_PPM"

	KeyFR24SharingKey  = "FR24_SHARING_KEY"
	KeyFR24RadarID     = "FR24_RADAR_ID"
	KeyPiawareFeederID = "PIAWARE_FEEDER_ID"
	KeyRBSharingKey    = "RB_SHARING_KEY"
	KeyADSBxUUID       = "ADSBX_UUID"

	KeyUltrafeederConfig = "ULTRAFEEDER_CONFIG"

	KeyLoggerInterval  = "LOGGER_INTERVAL"
	KeyLoggerRetention = "LOGGER_RETENTION_DAYS"
)

// sourceKeySuffix marks the companion key recording a credential's
// provenance (e.g. FR24_SHARING_KEY_SOURCE=probe).
const sourceKeySuffix = "_SOURCE"

// Provenance records how a credential value was obtained.
type Provenance string

const (
	ProvenanceGenerated   Provenance = "local"       // generated locally (ADSBX UUID)
	ProvenanceProbe       Provenance = "probe"       // extracted from probe output
	ProvenanceManual      Provenance = "manual"      // entered by the operator
	ProvenancePlaceholder Provenance = "placeholder" // deferred, not a usable value
)

// Validity classifies whether a credential can be trusted by downstream
// feeders.
type Validity string

const (
	ValidityConfirmed  Validity = "confirmed"
	ValidityUnverified Validity = "unverified"
)

// CredentialFormat names the documented value shape for a service credential.
type CredentialFormat int

const (
	FormatFreeform CredentialFormat = iota
	FormatHex32
	FormatUUID
	FormatRadarSerial
)

var (
	hex32Pattern       = regexp.MustCompile(`^[0-9a-f]{32}$`)
	uuidPattern        = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
	radarSerialPattern = regexp.MustCompile(`^T-[A-Z0-9]{3,10}$`)
)

// MatchesFormat reports whether value satisfies the documented format.
func MatchesFormat(format CredentialFormat, value string) bool {
	switch format {
	case FormatHex32:
		return hex32Pattern.MatchString(value)
	case FormatUUID:
		return uuidPattern.MatchString(value)
	case FormatRadarSerial:
		return radarSerialPattern.MatchString(value)
	default:
		return strings.TrimSpace(value) != ""
	}
}

// Service identifies one managed third-party feed.
type Service struct {
	ID      string // logical name, matches the compose service
	Display string
}

// The managed fleet. Order is the order the console walks during setup.
var (
	ServiceUltrafeeder = Service{ID: "ultrafeeder", Display: "Ultrafeeder (decoder)"}
	ServiceFR24        = Service{ID: "fr24", Display: "FlightRadar24"}
	ServicePiaware     = Service{ID: "piaware", Display: "FlightAware PiAware"}
	ServiceRadarBox    = Service{ID: "rbfeeder", Display: "AirNav RadarBox"}
	ServiceADSBx       = Service{ID: "adsbx", Display: "ADSBExchange"}
	ServiceDashboard   = Service{ID: "dashboard", Display: "Web dashboard"}
	ServiceLogger      = Service{ID: "logger", Display: "Flight logger"}
)

// AllServices lists every compose service the lifecycle controller manages.
var AllServices = []Service{
	ServiceUltrafeeder,
	ServiceFR24,
	ServicePiaware,
	ServiceRadarBox,
	ServiceADSBx,
	ServiceDashboard,
	ServiceLogger,
}

// ServiceIDs returns the compose names of AllServices.
func ServiceIDs() []string {
	ids := make([]string, 0, len(AllServices))
	for _, s := range AllServices {
		ids = append(ids, s.ID)
	}
	return ids
}

// Credential is one stored entry for a managed service.
type Credential struct {
	Service    string
	Key        string // env file key holding the value
	Format     CredentialFormat
	Value      string
	Provenance Provenance
}

// CredentialSpec describes a credential slot before it has a value.
type CredentialSpec struct {
	Service Service
	Key     string
	Format  CredentialFormat
}

// CredentialSpecs lists every credential slot in setup order.
var CredentialSpecs = []CredentialSpec{
	{Service: ServiceFR24, Key: KeyFR24SharingKey, Format: FormatHex32},
	{Service: ServiceFR24, Key: KeyFR24RadarID, Format: FormatRadarSerial},
	{Service: ServicePiaware, Key: KeyPiawareFeederID, Format: FormatUUID},
	{Service: ServiceRadarBox, Key: KeyRBSharingKey, Format: FormatHex32},
	{Service: ServiceADSBx, Key: KeyADSBxUUID, Format: FormatUUID},
}

// Placeholder returns the sentinel stored when a credential was skipped.
func Placeholder(service Service) string {
	return "PLACEHOLDER-" + strings.ToUpper(service.ID)
}

// IsPlaceholder reports whether value is a deferred-credential sentinel.
func IsPlaceholder(value string) bool {
	return strings.HasPrefix(value, "PLACEHOLDER-")
}

// Validity derives the trust level from provenance and format. A
// placeholder is never confirmed; a value claiming probe or local origin
// must actually satisfy the documented format to count as confirmed.
func (c Credential) Validity() Validity {
	if c.Provenance == ProvenancePlaceholder || IsPlaceholder(c.Value) {
		return ValidityUnverified
	}
	if !MatchesFormat(c.Format, c.Value) {
		return ValidityUnverified
	}
	switch c.Provenance {
	case ProvenanceProbe, ProvenanceGenerated:
		return ValidityConfirmed
	default:
		return ValidityUnverified
	}
}

// SourceKey returns the companion env key recording provenance for key.
func SourceKey(key string) string {
	return key + sourceKeySuffix
}

// CredentialFromSnapshot reads the stored credential for spec, or false
// when no value has been recorded yet.
func CredentialFromSnapshot(snap *Snapshot, spec CredentialSpec) (Credential, bool) {
	value, ok := snap.Get(spec.Key)
	if !ok || strings.TrimSpace(value) == "" {
		return Credential{}, false
	}
	cred := Credential{
		Service:    spec.Service.ID,
		Key:        spec.Key,
		Format:     spec.Format,
		Value:      value,
		Provenance: Provenance(snap.Value(SourceKey(spec.Key))),
	}
	if cred.Provenance == "" {
		// Pre-provenance config files: treat existing values as manual.
		cred.Provenance = ProvenanceManual
		if IsPlaceholder(value) {
			cred.Provenance = ProvenancePlaceholder
		}
	}
	return cred, true
}

// ApplyCredential records the credential value and its provenance in the
// snapshot.
func ApplyCredential(snap *Snapshot, cred Credential) {
	snap.Upsert(map[string]string{
		cred.Key:            cred.Value,
		SourceKey(cred.Key): string(cred.Provenance),
	})
}

// FeederProfile holds the geographic and identity facts confirmed during
// setup. Immutable for a session; changed only through the reconfigure
// flow.
type FeederProfile struct {
	Latitude  float64
	Longitude float64
	AltitudeM float64
	Timezone  string
	Station   string
}

// ProfileFromSnapshot reads the feeder profile out of a snapshot. Missing
// or unparseable numeric fields come back zero; the console re-prompts for
// them.
func ProfileFromSnapshot(snap *Snapshot) FeederProfile {
	parse := func(key string) float64 {
		v, err := strconv.ParseFloat(strings.TrimSpace(snap.Value(key)), 64)
		if err != nil {
			return 0
		}
		return v
	}
	return FeederProfile{
		Latitude:  parse(KeyLatitude),
		Longitude: parse(KeyLongitude),
		AltitudeM: parse(KeyAltitude),
		Timezone:  snap.Value(KeyTimezone),
		Station:   snap.Value(KeyStation),
	}
}

// Apply writes the profile fields into the snapshot.
func (p FeederProfile) Apply(snap *Snapshot) {
	snap.Upsert(map[string]string{
		KeyLatitude:  strconv.FormatFloat(p.Latitude, 'f', -1, 64),
		KeyLongitude: strconv.FormatFloat(p.Longitude, 'f', -1, 64),
		KeyAltitude:  strconv.FormatFloat(p.AltitudeM, 'f', -1, 64),
		KeyTimezone:  p.Timezone,
		KeyStation:   p.Station,
	})
}
