package extract

import (
	"strings"
	"testing"
)

const fr24SignupFixture = `2026-08-28 10:14:02 | [feed] connecting
2026-08-28 10:14:05 | Welcome to the FR24 Decoder/Feeder sign up wizard!
2026-08-28 10:14:31 | Submitting form data...OK
2026-08-28 10:14:32 | Congratulations! You are now registered and ready to share data.
2026-08-28 10:14:32 | + Your sharing key (a1b2c3d4e5f60718293a4b5c6d7e8f90) has been configured.
2026-08-28 10:14:33 | + Your radar id is T-KJFK17, please include it in all communications.
`

func TestScanHex32AfterAnchor(t *testing.T) {
	got, ok := Scan([]byte(fr24SignupFixture), FR24Targets[0])
	if !ok {
		t.Fatal("Scan did not find sharing key")
	}
	if want := "a1b2c3d4e5f60718293a4b5c6d7e8f90"; got != want {
		t.Fatalf("Scan = %q, want %q", got, want)
	}
}

func TestScanTruncatedStreamReturnsAbsent(t *testing.T) {
	// Cut the stream before the key token: the anchor is present, the
	// value is not.
	idx := strings.Index(fr24SignupFixture, "a1b2c3d4")
	truncated := fr24SignupFixture[:idx]

	if got, ok := Scan([]byte(truncated), FR24Targets[0]); ok {
		t.Fatalf("Scan on truncated stream = %q, want absent", got)
	}
}

func TestScanMidLineSplitRecoversOnLongerBuffer(t *testing.T) {
	full := []byte("+ Your sharing key (0123456789abcdef0123456789abcdef) saved\n")
	// First poll observes a partial line, second observes the whole thing.
	if _, ok := Scan(full[:30], FR24Targets[0]); ok {
		t.Fatal("partial token should not match")
	}
	got, ok := Scan(full, FR24Targets[0])
	if !ok || got != "0123456789abcdef0123456789abcdef" {
		t.Fatalf("Scan on full buffer = %q, %v", got, ok)
	}
}

func TestScanUsesLastAnchorOccurrence(t *testing.T) {
	buf := []byte(`Your sharing key (deadbeefdeadbeefdeadbeefdeadbeef) was rejected
re-registering...
Your sharing key (00112233445566778899aabbccddeeff) has been configured
`)
	got, ok := Scan(buf, FR24Targets[0])
	if !ok {
		t.Fatal("Scan found nothing")
	}
	if want := "00112233445566778899aabbccddeeff"; got != want {
		t.Fatalf("Scan = %q, want last occurrence %q", got, want)
	}
}

func TestScanFallsBackToEarlierAnchorWhenLastIsMalformed(t *testing.T) {
	buf := []byte(`Your new key is 0123456789abcdef0123456789abcdef. Please save it.
Your new key is REDACTED
`)
	got, ok := Scan(buf, RadarBoxTargets[0])
	if !ok {
		t.Fatal("Scan found nothing")
	}
	if want := "0123456789abcdef0123456789abcdef"; got != want {
		t.Fatalf("Scan = %q, want %q", got, want)
	}
}

func TestScanCaseInsensitiveAnchor(t *testing.T) {
	buf := []byte("MY FEEDER ID IS 12345678-9abc-def0-1234-56789abcdef0\n")
	got, ok := Scan(buf, PiawareTargets[0])
	if !ok || got != "12345678-9abc-def0-1234-56789abcdef0" {
		t.Fatalf("Scan = %q, %v", got, ok)
	}
}

func TestScanRadarSerial(t *testing.T) {
	got, ok := Scan([]byte(fr24SignupFixture), FR24Targets[1])
	if !ok {
		t.Fatal("Scan did not find radar id")
	}
	if want := "T-KJFK17"; got != want {
		t.Fatalf("Scan = %q, want %q", got, want)
	}
}

func TestScanGrammarRejectsWrongShape(t *testing.T) {
	cases := []struct {
		name string
		buf  string
	}{
		{"hex too short", "Your new key is a1b2c3\n"},
		{"hex uppercase", "Your new key is A1B2C3D4E5F60718293A4B5C6D7E8F90\n"},
		{"word instead of key", "Your new key is pending\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got, ok := Scan([]byte(tc.buf), RadarBoxTargets[0]); ok {
				t.Fatalf("Scan = %q, want absent", got)
			}
		})
	}
}
