package report

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"voiceguard-batch/internal/models"
)

func sampleResult() models.BatchResult {
	return models.BatchResult{Records: []models.AnalysisRecord{
		{
			OriginalFilename: "/audio/a.wav",
			FileID:           "file-1",
			StreamID:         "stream-1",
			Status:           models.StatusCompleted,
			Conclusion:       models.ConclusionAI,
			Probability:      0.97,
			Detail:           json.RawMessage(`{"id":"stream-1"}`),
		},
		{
			OriginalFilename: "/audio/b.wav",
			Status:           models.StatusTimedOut,
			Conclusion:       models.ConclusionInconclusive,
			Probability:      -1,
			Reason:           "TIMEOUT",
		},
	}}
}

func TestWriteCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	if err := WriteCSV(path, sampleResult()); err != nil {
		t.Fatalf("write csv: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header + 2 rows, got %d", len(rows))
	}
	if strings.Join(rows[0], ",") != "original_filename,file_id,stream_id,status,conclusion,probability,reason" {
		t.Fatalf("unexpected header %v", rows[0])
	}
	if rows[1][4] != "AI" || rows[1][5] != "0.97" {
		t.Fatalf("unexpected verdict row %v", rows[1])
	}
	if rows[2][5] != "" {
		t.Fatalf("unknown probability must be empty, got %q", rows[2][5])
	}
	if rows[2][6] != "TIMEOUT" {
		t.Fatalf("unexpected reason %q", rows[2][6])
	}
}

func TestWriteJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	if err := WriteJSON(path, sampleResult(), now); err != nil {
		t.Fatalf("write json: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var out []map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 records, got %d", len(out))
	}
	if out[0]["stream_data"] == nil {
		t.Fatal("expected raw stream payload")
	}
	if out[0]["analyzed_at"] != "2025-06-01T12:00:00Z" {
		t.Fatalf("unexpected timestamp %v", out[0]["analyzed_at"])
	}
	if out[1]["probability"] != nil {
		t.Fatalf("unknown probability must be null, got %v", out[1]["probability"])
	}
}

func TestTimestampedPath(t *testing.T) {
	ts := time.Date(2025, 6, 1, 12, 30, 45, 0, time.UTC)
	got := TimestampedPath("/tmp/out", "csv", ts)
	if got != "/tmp/out/results_20250601_123045.csv" {
		t.Fatalf("unexpected path %q", got)
	}
}
