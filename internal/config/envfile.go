package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ErrNotFound indicates no configuration file exists yet (fresh install).
var ErrNotFound = errors.New("config: configuration file not found")

// MalformedError indicates the on-disk configuration could not be parsed.
// The console surfaces it and offers a fresh reconfiguration.
type MalformedError struct {
	Path string
	Line int
	Text string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("config: %s line %d is not KEY=value: %q", e.Path, e.Line, e.Text)
}

// IsMalformed reports whether err is (or wraps) a MalformedError.
func IsMalformed(err error) bool {
	var target *MalformedError
	return errors.As(err, &target)
}

// envLine is one physical line of the env file. Comments and blank lines
// carry an empty key and round-trip verbatim.
type envLine struct {
	raw string
	key string
}

// Snapshot is the ordered set of KEY=value records persisted to the env
// file. Unrecognized keys, comments and blank lines are preserved across a
// load/modify/save cycle.
type Snapshot struct {
	lines []envLine
}

// NewSnapshot returns an empty snapshot with a generated-file header.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		lines: []envLine{
			{raw: "# EasyADSB feeder configuration. Managed by the easyadsb console."},
			{raw: "# Unrecognized keys are preserved; edit at your own risk."},
		},
	}
}

// ParseSnapshot parses env-file content. Path is used for error reporting
// only.
func ParseSnapshot(path string, data []byte) (*Snapshot, error) {
	snap := &Snapshot{}
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	rawLines := strings.Split(text, "\n")
	// A trailing newline produces one empty trailing element; drop it so
	// Render does not grow the file by one line per cycle.
	if n := len(rawLines); n > 0 && rawLines[n-1] == "" {
		rawLines = rawLines[:n-1]
	}
	for i, raw := range rawLines {
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			snap.lines = append(snap.lines, envLine{raw: raw})
			continue
		}
		eq := strings.IndexByte(raw, '=')
		if eq <= 0 {
			return nil, &MalformedError{Path: path, Line: i + 1, Text: raw}
		}
		key := strings.TrimSpace(raw[:eq])
		if key == "" || strings.ContainsAny(key, " \t") {
			return nil, &MalformedError{Path: path, Line: i + 1, Text: raw}
		}
		snap.lines = append(snap.lines, envLine{raw: raw, key: key})
	}
	return snap, nil
}

// Get returns the value for key. With duplicate keys the last occurrence
// wins, matching how the compose runtime reads env files.
func (s *Snapshot) Get(key string) (string, bool) {
	for i := len(s.lines) - 1; i >= 0; i-- {
		if s.lines[i].key == key {
			return s.lines[i].valueText(), true
		}
	}
	return "", false
}

// Value returns the value for key, or "" when absent.
func (s *Snapshot) Value(key string) string {
	v, _ := s.Get(key)
	return v
}

func (l envLine) valueText() string {
	eq := strings.IndexByte(l.raw, '=')
	if eq < 0 {
		return ""
	}
	return l.raw[eq+1:]
}

// Set upserts a single key. An existing key is rewritten in place (last
// occurrence, the effective one); a new key is appended.
func (s *Snapshot) Set(key, value string) {
	for i := len(s.lines) - 1; i >= 0; i-- {
		if s.lines[i].key == key {
			s.lines[i].raw = key + "=" + value
			return
		}
	}
	s.lines = append(s.lines, envLine{raw: key + "=" + value, key: key})
}

// Upsert applies changes, overwriting recognized keys present in changes
// and appending new ones in sorted order so output stays deterministic.
// Every key not touched by changes keeps its value and position.
func (s *Snapshot) Upsert(changes map[string]string) {
	keys := make([]string, 0, len(changes))
	for k := range changes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		s.Set(k, changes[k])
	}
}

// Values returns a copy of the effective key/value pairs.
func (s *Snapshot) Values() map[string]string {
	out := make(map[string]string)
	for _, l := range s.lines {
		if l.key != "" {
			out[l.key] = l.valueText()
		}
	}
	return out
}

// Keys returns all keys in file order (first occurrence).
func (s *Snapshot) Keys() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, l := range s.lines {
		if l.key == "" {
			continue
		}
		if _, ok := seen[l.key]; ok {
			continue
		}
		seen[l.key] = struct{}{}
		out = append(out, l.key)
	}
	return out
}

// Render serializes the snapshot back to env-file bytes.
func (s *Snapshot) Render() []byte {
	var b strings.Builder
	for _, l := range s.lines {
		b.WriteString(l.raw)
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

// BackupRecord describes one timestamped configuration backup.
type BackupRecord struct {
	Path      string
	CreatedAt time.Time
}

// Store provides durable access to the configuration file. It assumes a
// single local operator: no write arbitration, but every Load re-reads the
// disk so decisions never act on a stale snapshot.
type Store struct {
	paths Paths
	now   func() time.Time
}

// NewStore creates a store over the given install paths.
func NewStore(paths Paths) *Store {
	return &Store{paths: paths, now: time.Now}
}

// Paths exposes the install layout backing the store.
func (st *Store) Paths() Paths {
	return st.paths
}

// Load reads the configuration file from disk. A missing file returns
// ErrNotFound; an unparseable file returns a MalformedError.
func (st *Store) Load() (*Snapshot, error) {
	data, err := os.ReadFile(st.paths.EnvFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("config: read %s: %w", st.paths.EnvFile, err)
	}
	return ParseSnapshot(st.paths.EnvFile, data)
}

// Save writes the snapshot atomically: a temp file in the same directory
// is renamed over the target so a concurrent reader never sees a partial
// file.
func (st *Store) Save(snap *Snapshot) error {
	return writeFileAtomic(st.paths.EnvFile, snap.Render(), 0o644)
}

// Backup copies the current configuration file into the backups directory
// under a creation-time name. Backups are append-only; nothing in the
// console ever deletes one. Destructive operations must call Backup before
// mutating.
func (st *Store) Backup() (BackupRecord, error) {
	data, err := os.ReadFile(st.paths.EnvFile)
	if err != nil {
		if os.IsNotExist(err) {
			return BackupRecord{}, ErrNotFound
		}
		return BackupRecord{}, fmt.Errorf("config: read for backup: %w", err)
	}
	if err := os.MkdirAll(st.paths.BackupsDir, 0o755); err != nil {
		return BackupRecord{}, fmt.Errorf("config: ensure backups dir: %w", err)
	}
	created := st.now()
	name := fmt.Sprintf("easyadsb-%s.env", created.Format("20060102-150405"))
	dest := filepath.Join(st.paths.BackupsDir, name)
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return BackupRecord{}, fmt.Errorf("config: write backup: %w", err)
	}
	return BackupRecord{Path: dest, CreatedAt: created}, nil
}

// writeFileAtomic writes data to a sibling temp file and renames it over
// path.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("config: ensure %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("config: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("config: write temp file: %w", err)
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("config: chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("config: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("config: rename temp file: %w", err)
	}
	return nil
}

// WriteFileAtomic exposes the atomic write used for every generated file.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	return writeFileAtomic(path, data, perm)
}
