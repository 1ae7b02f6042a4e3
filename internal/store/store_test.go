package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"backscan/pkg/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "bars.db"), time.UTC)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveLoadRoundtrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

	bars := []model.Bar{
		{Symbol: "ES", Time: base, Open: 100, High: 101, Low: 99, Close: 100.5, Volume: 1200},
		{Symbol: "ES", Time: base.Add(time.Minute), Open: 100.5, High: 102, Low: 100, Close: 101, Volume: 900},
		{Symbol: "NQ", Time: base, Open: 15000, High: 15010, Low: 14990, Close: 15005, Volume: 300},
	}
	if err := s.SaveBars(ctx, bars); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := s.LoadBars(ctx, "ES", base, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 ES bars, got %d", len(got))
	}
	if !got[0].Time.Equal(base) || got[0].Close != 100.5 || got[0].Volume != 1200 {
		t.Errorf("first bar mismatch: %+v", got[0])
	}
	if !got[1].Time.After(got[0].Time) {
		t.Error("bars must come back in ascending timestamp order")
	}
}

func TestSaveBarsIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

	bars := []model.Bar{
		{Symbol: "ES", Time: base, Open: 100, High: 101, Low: 99, Close: 100.5, Volume: 1200},
	}
	if err := s.SaveBars(ctx, bars); err != nil {
		t.Fatalf("first save: %v", err)
	}

	// Same key, revised close: should replace, not duplicate.
	bars[0].Close = 101
	if err := s.SaveBars(ctx, bars); err != nil {
		t.Fatalf("second save: %v", err)
	}

	n, err := s.CountBars(ctx, "ES")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 bar after re-import, got %d", n)
	}

	got, err := s.LoadBars(ctx, "ES", base, base.Add(time.Minute))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got[0].Close != 101 {
		t.Errorf("close = %f, want the replaced value 101", got[0].Close)
	}
}

func TestLoadBarsWindowIsHalfOpen(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

	var bars []model.Bar
	for i := 0; i < 5; i++ {
		bars = append(bars, model.Bar{
			Symbol: "ES", Time: base.Add(time.Duration(i) * time.Minute),
			Open: 1, High: 1, Low: 1, Close: 1, Volume: 1,
		})
	}
	if err := s.SaveBars(ctx, bars); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := s.LoadBars(ctx, "ES", base.Add(time.Minute), base.Add(3*time.Minute))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("half-open window returned %d bars, want 2", len(got))
	}
}

func TestImportCSV(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	csv := `time,open,high,low,close,volume
2024-01-15 10:00:00,100,101,99,100.5,1200
2024-01-15 10:01:00,100.5,102,100,101,900
1705312920,101,101.5,100.5,101.2,700
`
	path := filepath.Join(t.TempDir(), "bars.csv")
	if err := os.WriteFile(path, []byte(csv), 0o644); err != nil {
		t.Fatal(err)
	}

	var lastProgress int
	n, err := s.ImportCSV(ctx, path, "ES", func(rows int) { lastProgress = rows })
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if n != 3 {
		t.Errorf("imported %d rows, want 3", n)
	}
	if lastProgress != 3 {
		t.Errorf("final progress = %d, want 3", lastProgress)
	}

	count, err := s.CountBars(ctx, "ES")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 3 {
		t.Errorf("stored %d bars, want 3", count)
	}
}

func TestImportCSVRejectsBadHeader(t *testing.T) {
	s := openTestStore(t)

	path := filepath.Join(t.TempDir(), "bad.csv")
	if err := os.WriteFile(path, []byte("date,o,h,l,c,v\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := s.ImportCSV(context.Background(), path, "ES", nil); err == nil {
		t.Error("unexpected header must be rejected")
	}
}

func TestImportCSVRejectsBadRow(t *testing.T) {
	s := openTestStore(t)

	csv := `time,open,high,low,close,volume
2024-01-15 10:00:00,100,101,99,100.5,not-a-number
`
	path := filepath.Join(t.TempDir(), "bad.csv")
	if err := os.WriteFile(path, []byte(csv), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := s.ImportCSV(context.Background(), path, "ES", nil); err == nil {
		t.Error("unparseable volume must be rejected")
	}
}

func TestParseTimeLayouts(t *testing.T) {
	s := openTestStore(t)

	tests := []string{
		"2024-01-15T10:00:00Z",
		"2024-01-15 10:00:00",
		"2024-01-15 10:00",
		"1705312800",
	}
	want := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	for _, raw := range tests {
		got, err := s.parseTime(raw)
		if err != nil {
			t.Errorf("parseTime(%q): %v", raw, err)
			continue
		}
		if !got.Equal(want) {
			t.Errorf("parseTime(%q) = %v, want %v", raw, got, want)
		}
	}

	if _, err := s.parseTime("15/01/2024"); err == nil {
		t.Error("unknown layout must error")
	}
}
