package histdata

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"swingbot/internal/markethours"
	"swingbot/internal/model"
)

// Series files are plain CSV with a header row, timestamps as naive local
// time, rows sorted ascending.
const csvTimeLayout = "2006-01-02 15:04:05"

func readSeriesCSV(path string) (model.Series, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	series := make(model.Series, 0, len(rows)-1)
	for i, row := range rows {
		if i == 0 { // header
			continue
		}
		c, err := parseCandleRow(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		series = append(series, c)
	}
	return series, nil
}

func parseCandleRow(row []string) (model.Candle, error) {
	if len(row) != 6 {
		return model.Candle{}, fmt.Errorf("want 6 fields, got %d", len(row))
	}
	ts, err := time.ParseInLocation(csvTimeLayout, row[0], markethours.IST)
	if err != nil {
		return model.Candle{}, err
	}
	vals := make([]float64, 4)
	for i := 0; i < 4; i++ {
		v, err := strconv.ParseFloat(row[i+1], 64)
		if err != nil {
			return model.Candle{}, err
		}
		vals[i] = v
	}
	vol, err := strconv.ParseInt(row[5], 10, 64)
	if err != nil {
		return model.Candle{}, err
	}
	return model.Candle{
		TS: ts, Open: vals[0], High: vals[1], Low: vals[2], Close: vals[3], Volume: vol,
	}, nil
}

// writeSeriesCSV writes the full series to a temp file in the target
// directory and renames it into place, so a concurrent reader always sees
// either the old or the new complete file.
func writeSeriesCSV(path string, series model.Series) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".series-*.csv")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	if err := w.Write([]string{"timestamp", "open", "high", "low", "close", "volume"}); err != nil {
		tmp.Close()
		return err
	}
	for i := range series {
		c := &series[i]
		row := []string{
			c.TS.In(markethours.IST).Format(csvTimeLayout),
			formatPrice(c.Open),
			formatPrice(c.High),
			formatPrice(c.Low),
			formatPrice(c.Close),
			strconv.FormatInt(c.Volume, 10),
		}
		if err := w.Write(row); err != nil {
			tmp.Close()
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func formatPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
