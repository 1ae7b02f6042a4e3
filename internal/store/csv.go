package store

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"backscan/pkg/model"
)

// importBatch is how many rows are written per transaction.
const importBatch = 5000

// csvTimeLayouts are tried in order for the time column; a bare integer
// is treated as unix seconds.
var csvTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// ImportCSV streams a "time,open,high,low,close,volume" file into the
// store. progress (optional) is called with the running row count.
func (s *Store) ImportCSV(ctx context.Context, path, symbol string, progress func(rows int)) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("opening csv: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = 6

	header, err := r.Read()
	if err != nil {
		return 0, fmt.Errorf("reading csv header: %w", err)
	}
	if !strings.EqualFold(strings.TrimSpace(header[0]), "time") {
		return 0, fmt.Errorf("unexpected csv header %q, want time,open,high,low,close,volume", strings.Join(header, ","))
	}

	total := 0
	batch := make([]model.Bar, 0, importBatch)
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return total, fmt.Errorf("reading csv row %d: %w", total+1, err)
		}

		b, err := s.parseRow(rec, symbol)
		if err != nil {
			return total, fmt.Errorf("csv row %d: %w", total+1, err)
		}
		batch = append(batch, b)
		total++

		if len(batch) == importBatch {
			if err := s.SaveBars(ctx, batch); err != nil {
				return total, err
			}
			batch = batch[:0]
			if progress != nil {
				progress(total)
			}
		}
	}
	if len(batch) > 0 {
		if err := s.SaveBars(ctx, batch); err != nil {
			return total, err
		}
	}
	if progress != nil {
		progress(total)
	}
	return total, nil
}

func (s *Store) parseRow(rec []string, symbol string) (model.Bar, error) {
	t, err := s.parseTime(strings.TrimSpace(rec[0]))
	if err != nil {
		return model.Bar{}, err
	}

	vals := make([]float64, 4)
	for i := 0; i < 4; i++ {
		v, err := strconv.ParseFloat(strings.TrimSpace(rec[i+1]), 64)
		if err != nil {
			return model.Bar{}, fmt.Errorf("parsing %q: %w", rec[i+1], err)
		}
		vals[i] = v
	}
	vol, err := strconv.ParseInt(strings.TrimSpace(rec[5]), 10, 64)
	if err != nil {
		return model.Bar{}, fmt.Errorf("parsing volume %q: %w", rec[5], err)
	}

	return model.Bar{
		Symbol: symbol,
		Time:   t,
		Open:   vals[0],
		High:   vals[1],
		Low:    vals[2],
		Close:  vals[3],
		Volume: vol,
	}, nil
}

func (s *Store) parseTime(raw string) (time.Time, error) {
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(secs, 0).In(s.loc), nil
	}
	for _, layout := range csvTimeLayouts {
		if t, err := time.ParseInLocation(layout, raw, s.loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", raw)
}
