package locator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path string, content []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestDiscoverFiltersByExtension(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.wav"), []byte("audio-a"))
	writeFile(t, filepath.Join(dir, "notes.txt"), []byte("not audio"))
	writeFile(t, filepath.Join(dir, "sub", "b.WAV"), []byte("audio-b"))

	// Extension without a leading dot, duration probing disabled.
	loc := New([]string{"wav"}, "")
	files, err := loc.Discover(context.Background(), dir)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 files, got %d", len(files))
	}

	sum := sha256.Sum256([]byte("audio-a"))
	if files[0].SHA256 != hex.EncodeToString(sum[:]) {
		t.Fatalf("unexpected hash %s", files[0].SHA256)
	}
	if files[0].Size != int64(len("audio-a")) {
		t.Fatalf("unexpected size %d", files[0].Size)
	}
	if files[0].MIME == "" {
		t.Fatal("expected a MIME type")
	}
	if files[0].Duration != 0 {
		t.Fatalf("expected unknown duration, got %s", files[0].Duration)
	}
	if files[1].Name != "b.WAV" {
		t.Fatalf("expected recursive match, got %q", files[1].Name)
	}
}

func TestDiscoverRejectsBadRoot(t *testing.T) {
	loc := New([]string{".wav"}, "")

	if _, err := loc.Discover(context.Background(), "/does/not/exist"); err == nil {
		t.Fatal("expected error for missing root")
	}

	dir := t.TempDir()
	file := filepath.Join(dir, "plain.wav")
	writeFile(t, file, []byte("x"))
	if _, err := loc.Discover(context.Background(), file); err == nil {
		t.Fatal("expected error for non-directory root")
	}
}

func TestDiscoverSurvivesMissingProbe(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.wav"), []byte("audio"))

	loc := New([]string{".wav"}, "/no/such/ffprobe")
	files, err := loc.Discover(context.Background(), dir)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if len(files) != 1 || files[0].Duration != 0 {
		t.Fatalf("probe failure must yield unknown duration, got %+v", files)
	}
}

func TestSanitizeName(t *testing.T) {
	got := SanitizeName("my call (1) #final.wav")
	if got != "my_call__1___final.wav" {
		t.Fatalf("unexpected sanitized name %q", got)
	}
}
