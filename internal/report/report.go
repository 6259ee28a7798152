// Package report projects terminal records into the two documented
// output shapes: a flat CSV row and a full JSON record carrying the raw
// backend payload.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"voiceguard-batch/internal/models"
)

var csvHeader = []string{"original_filename", "file_id", "stream_id", "status", "conclusion", "probability", "reason"}

// TimestampedPath names one run's artifact: results_YYYYMMDD_HHMMSS.ext.
func TimestampedPath(dir, ext string, t time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("results_%s.%s", t.Format("20060102_150405"), ext))
}

// WriteCSV emits the flat projection, one row per record. A negative
// probability is written as an empty cell.
func WriteCSV(path string, res models.BatchResult) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, r := range res.Records {
		prob := ""
		if r.Probability >= 0 {
			prob = strconv.FormatFloat(r.Probability, 'f', -1, 64)
		}
		row := []string{r.OriginalFilename, r.FileID, r.StreamID, r.Status, r.Conclusion, prob, r.Reason}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

type jsonRecord struct {
	OriginalFilename string          `json:"original_filename"`
	FileID           string          `json:"file_id"`
	StreamID         string          `json:"stream_id"`
	Status           string          `json:"status"`
	Conclusion       string          `json:"conclusion"`
	Probability      *float64        `json:"probability"`
	Reason           string          `json:"reason,omitempty"`
	AnalyzedAt       string          `json:"analyzed_at"`
	StreamData       json.RawMessage `json:"stream_data,omitempty"`
}

// WriteJSON emits the full projection including the raw stream payload.
func WriteJSON(path string, res models.BatchResult, analyzedAt time.Time) error {
	out := make([]jsonRecord, 0, len(res.Records))
	stamp := analyzedAt.Format(time.RFC3339)
	for _, r := range res.Records {
		rec := jsonRecord{
			OriginalFilename: r.OriginalFilename,
			FileID:           r.FileID,
			StreamID:         r.StreamID,
			Status:           r.Status,
			Conclusion:       r.Conclusion,
			Reason:           r.Reason,
			AnalyzedAt:       stamp,
			StreamData:       r.Detail,
		}
		if r.Probability >= 0 {
			p := r.Probability
			rec.Probability = &p
		}
		out = append(out, rec)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}
