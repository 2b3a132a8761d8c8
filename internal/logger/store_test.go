package logger

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func fptr(v float64) *float64 { return &v }
func iptr(v int64) *int64     { return &v }
func sptr(v string) *string   { return &v }

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(Options{DBPath: filepath.Join(t.TempDir(), "flights.db")})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func testBatch() []Position {
	return []Position{
		{ICAO: "A1B2C3", Callsign: sptr("UAL123"), Lat: fptr(40.64), Lon: fptr(-73.78), Altitude: iptr(35000), Speed: iptr(480), Track: iptr(270), Squawk: sptr("2200"), AircraftType: sptr("B738"), RSSI: fptr(-12.3)},
		{ICAO: "A1B2C3", Callsign: sptr("UAL123"), Lat: fptr(40.65), Lon: fptr(-73.80), Altitude: iptr(35100), Speed: iptr(482), Track: iptr(271)},
		{ICAO: "4CA123", Lat: fptr(51.47), Lon: fptr(-0.45), Altitude: iptr(1200)},
	}
}

func TestSaveAndStats(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	count, err := st.SavePositions(ctx, testBatch())
	if err != nil {
		t.Fatalf("SavePositions: %v", err)
	}
	if count != 3 {
		t.Fatalf("saved %d positions, want 3", count)
	}

	stats, err := st.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.TotalPositions != 3 {
		t.Errorf("total positions = %d, want 3", stats.TotalPositions)
	}
	if stats.UniqueAircraft != 2 {
		t.Errorf("unique aircraft = %d, want 2", stats.UniqueAircraft)
	}
	if stats.UniqueFlights != 1 {
		t.Errorf("unique flights = %d, want 1", stats.UniqueFlights)
	}
	if stats.OldestRecord == nil || stats.NewestRecord == nil {
		t.Error("record range missing")
	}
	if stats.StorageBytes == 0 {
		t.Error("storage size not reported")
	}
}

// Timestamps must scan back in the exact stored layout: string range
// filters and the export T-separator rewrite both depend on it.
func TestTimestampsScanBackInStoredLayout(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	st.now = func() time.Time { return time.Date(2026, 8, 28, 10, 30, 0, 0, time.UTC) }

	if _, err := st.SavePositions(ctx, testBatch()); err != nil {
		t.Fatalf("SavePositions: %v", err)
	}

	rows, err := st.Export(ctx, "", "")
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	for _, p := range rows {
		if p.Timestamp != "2026-08-28 10:30:00" {
			t.Fatalf("Timestamp = %q, want \"2026-08-28 10:30:00\"", p.Timestamp)
		}
	}

	stats, err := st.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if *stats.OldestRecord != "2026-08-28 10:30:00" {
		t.Errorf("OldestRecord = %q, want stored layout", *stats.OldestRecord)
	}

	// A returned timestamp must work verbatim as a range bound.
	rows, err = st.Export(ctx, *stats.OldestRecord, *stats.NewestRecord)
	if err != nil {
		t.Fatalf("Export with returned bounds: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("filtered export returned %d rows, want 3", len(rows))
	}
}

func TestSaveEmptyBatchIsNoop(t *testing.T) {
	st := openTestStore(t)
	count, err := st.SavePositions(context.Background(), nil)
	if err != nil || count != 0 {
		t.Fatalf("empty batch: count=%d err=%v", count, err)
	}
}

func TestCleanupRespectsRetention(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	old := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	st.now = func() time.Time { return old }
	if _, err := st.SavePositions(ctx, testBatch()[:1]); err != nil {
		t.Fatalf("save old: %v", err)
	}

	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	st.now = func() time.Time { return now }
	if _, err := st.SavePositions(ctx, testBatch()[2:]); err != nil {
		t.Fatalf("save fresh: %v", err)
	}

	// Retention disabled keeps everything.
	deleted, err := st.Cleanup(ctx, 0)
	if err != nil || deleted != 0 {
		t.Fatalf("disabled cleanup: deleted=%d err=%v", deleted, err)
	}

	deleted, err = st.Cleanup(ctx, 14)
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("deleted %d records, want 1", deleted)
	}
	stats, _ := st.Stats(ctx)
	if stats.TotalPositions != 1 {
		t.Errorf("remaining positions = %d, want 1", stats.TotalPositions)
	}
}

func TestClearRemovesEverything(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	if _, err := st.SavePositions(ctx, testBatch()); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := st.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	stats, _ := st.Stats(ctx)
	if stats.TotalPositions != 0 {
		t.Errorf("positions after clear = %d, want 0", stats.TotalPositions)
	}
}

func TestFlightsFilters(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	if _, err := st.SavePositions(ctx, testBatch()); err != nil {
		t.Fatalf("save: %v", err)
	}

	all, err := st.Flights(ctx, FlightQuery{})
	if err != nil {
		t.Fatalf("Flights: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("unfiltered flights = %d, want 2", len(all))
	}

	byICAO, err := st.Flights(ctx, FlightQuery{ICAO: "4ca1"})
	if err != nil {
		t.Fatalf("Flights by icao: %v", err)
	}
	if len(byICAO) != 1 || byICAO[0].ICAO != "4CA123" {
		t.Fatalf("icao filter returned %+v", byICAO)
	}

	byCallsign, err := st.Flights(ctx, FlightQuery{Callsign: "ual"})
	if err != nil {
		t.Fatalf("Flights by callsign: %v", err)
	}
	if len(byCallsign) != 1 || byCallsign[0].Positions != 2 {
		t.Fatalf("callsign filter returned %+v", byCallsign)
	}

	limited, err := st.Flights(ctx, FlightQuery{Limit: 1})
	if err != nil || len(limited) != 1 {
		t.Fatalf("limit 1 returned %d flights (err %v)", len(limited), err)
	}
}

func TestTraceIsChronological(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	t0 := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		stamp := t0.Add(time.Duration(i) * time.Minute)
		st.now = func() time.Time { return stamp }
		batch := []Position{{ICAO: "A1B2C3", Lat: fptr(40.0 + float64(i)), Lon: fptr(-73.0), Altitude: iptr(int64(1000 * i))}}
		if _, err := st.SavePositions(ctx, batch); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
	}

	trace, err := st.Trace(ctx, "a1b2c3", "", "")
	if err != nil {
		t.Fatalf("Trace: %v", err)
	}
	if len(trace) != 3 {
		t.Fatalf("trace length = %d, want 3", len(trace))
	}
	for i := 1; i < len(trace); i++ {
		if trace[i].Timestamp < trace[i-1].Timestamp {
			t.Fatal("trace is not chronological")
		}
	}

	empty, err := st.Trace(ctx, "FFFFFF", "", "")
	if err != nil {
		t.Fatalf("Trace unknown: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("unknown aircraft trace = %d points, want 0", len(empty))
	}
}

func TestRecentWindowExcludesOldAircraft(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

	st.now = func() time.Time { return now.Add(-2 * time.Hour) }
	if _, err := st.SavePositions(ctx, []Position{{ICAO: "OLD001", Lat: fptr(1), Lon: fptr(1)}}); err != nil {
		t.Fatalf("save old: %v", err)
	}
	st.now = func() time.Time { return now.Add(-10 * time.Minute) }
	if _, err := st.SavePositions(ctx, []Position{{ICAO: "NEW001", Lat: fptr(2), Lon: fptr(2)}}); err != nil {
		t.Fatalf("save new: %v", err)
	}

	st.now = func() time.Time { return now }
	recent, err := st.Recent(ctx)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 1 || recent[0].ICAO != "NEW001" {
		t.Fatalf("recent = %+v, want only NEW001", recent)
	}
}

func TestExportRange(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	stamps := []time.Time{
		time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC),
		time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC),
		time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC),
	}
	for i, stamp := range stamps {
		stamp := stamp
		st.now = func() time.Time { return stamp }
		if _, err := st.SavePositions(ctx, testBatch()[i:i+1]); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
	}

	all, err := st.Export(ctx, "", "")
	if err != nil || len(all) != 3 {
		t.Fatalf("full export = %d rows (err %v), want 3", len(all), err)
	}
	mid, err := st.Export(ctx, "2026-08-27 00:00:00", "2026-08-27 23:59:59")
	if err != nil {
		t.Fatalf("ranged export: %v", err)
	}
	if len(mid) != 1 || mid[0].Timestamp != "2026-08-27 12:00:00" {
		t.Fatalf("ranged export = %+v", mid)
	}
}
