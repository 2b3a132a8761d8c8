// Package extract locates structured credential values inside the
// unstructured, streaming text output of signup probes. Probe output
// formats are an external contract we cannot control, so the recognized
// anchors live in targets.go as versioned fixtures.
package extract

import (
	"regexp"
	"strings"
)

// Grammar is the value shape expected immediately after an anchor phrase.
type Grammar int

const (
	// GrammarHex32 matches a 32-character lowercase hexadecimal token
	// (FlightRadar24 and RadarBox sharing keys).
	GrammarHex32 Grammar = iota
	// GrammarUUID matches an RFC 4122 textual UUID (PiAware feeder ID).
	GrammarUUID
	// GrammarRadarSerial matches an FR24 radar code such as T-KJFK17.
	GrammarRadarSerial
)

var grammarPatterns = map[Grammar]*regexp.Regexp{
	GrammarHex32:       regexp.MustCompile(`^[0-9a-f]{32}$`),
	GrammarUUID:        regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`),
	GrammarRadarSerial: regexp.MustCompile(`^T-[A-Z0-9]{3,10}$`),
}

// Target describes one value to look for in probe output: an anchor
// phrase, the grammar of the token adjacent to it, and an optional
// prerequisite target that must resolve first. Probes may echo stale or
// partial text before the prerequisite event occurs, so dependent targets
// are never searched early.
type Target struct {
	Name     string
	Anchor   string
	Grammar  Grammar
	Requires string // name of the prerequisite target, empty if none
}

// tokenTrim strips the punctuation probes wrap around values
// ("(abcd...)", "key: abcd.", quotes).
const tokenTrim = "()[]{}<>\"'`,.;:!"

// Scan searches buf for the target's value. It is a pure function of the
// bytes observed so far, so the discovery poll loop can call it repeatedly
// as the probe produces more output. Matching is anchor-first: occurrences
// of the anchor phrase are tried from the last one backwards, and the
// token adjacent to the anchor must satisfy the grammar. A malformed
// adjacent token does not fail the scan: streamed output may be split
// mid-line, so Scan just reports absent and the caller retries on a longer
// buffer.
func Scan(buf []byte, t Target) (string, bool) {
	value, _, ok := ScanIndex(buf, t)
	return value, ok
}

// ScanIndex is Scan plus the byte offset of the matched anchor. The
// discovery engine uses the offset to restrict a dependent target's search
// to output produced after its prerequisite's match, so stale transcript
// echoed before the prerequisite event can never satisfy a dependent
// target.
func ScanIndex(buf []byte, t Target) (string, int, bool) {
	pattern, ok := grammarPatterns[t.Grammar]
	if !ok || t.Anchor == "" {
		return "", 0, false
	}

	haystack := strings.ToLower(string(buf))
	anchor := strings.ToLower(t.Anchor)

	for end := len(haystack); end > 0; {
		idx := strings.LastIndex(haystack[:end], anchor)
		if idx < 0 {
			return "", 0, false
		}
		rest := string(buf[idx+len(anchor):])
		if token, ok := firstToken(rest); ok && pattern.MatchString(token) {
			return token, idx, true
		}
		end = idx
	}
	return "", 0, false
}

// firstToken returns the first whitespace-delimited token after an anchor,
// with wrapping punctuation stripped.
func firstToken(s string) (string, bool) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return "", false
	}
	token := strings.Trim(fields[0], tokenTrim)
	if token == "" {
		return "", false
	}
	return token, true
}
