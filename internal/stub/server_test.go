package stub

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"voiceguard-batch/internal/backend"
	"voiceguard-batch/internal/models"
)

func newTestStub(t *testing.T, delay time.Duration) (*Server, *httptest.Server, string) {
	t.Helper()
	blobDir := t.TempDir()
	srv, err := New(context.Background(), Options{BlobDir: blobDir, ProcessingDelay: delay})
	if err != nil {
		t.Fatalf("new stub: %v", err)
	}
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	srv.baseURL = ts.URL
	return srv, ts, blobDir
}

func testDescriptor(t *testing.T, name string, content []byte) models.FileDescriptor {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write audio: %v", err)
	}
	sum := sha256.Sum256(content)
	return models.FileDescriptor{
		Path:   path,
		Name:   name,
		SHA256: hex.EncodeToString(sum[:]),
		MIME:   "audio/wav",
		Size:   int64(len(content)),
	}
}

func testClient(ts *httptest.Server) *backend.Client {
	policy := backend.RetryPolicy{MaxAttempts: 2, Base: time.Millisecond, Cap: 4 * time.Millisecond}
	return backend.New(ts.URL+"/query", "", policy, 5*time.Second, 5*time.Second)
}

func TestFullCycleAgainstStub(t *testing.T) {
	_, ts, blobDir := newTestStub(t, 0)
	client := testClient(ts)
	ctx := context.Background()

	d := testDescriptor(t, "speech.wav", []byte("riff-pcm-data"))

	blob, err := client.CreateBlob(ctx, d)
	if err != nil {
		t.Fatalf("create blob: %v", err)
	}
	if err := client.UploadBytes(ctx, blob.UploadURL, d); err != nil {
		t.Fatalf("upload: %v", err)
	}
	streamID, err := client.CreateJob(ctx, blob.FileID)
	if err != nil {
		t.Fatalf("create job: %v", err)
	}

	st, err := client.FetchStatus(ctx, streamID)
	if err != nil {
		t.Fatalf("fetch status: %v", err)
	}
	if st.Status != backend.StreamStatusCompleted || st.Result == nil {
		t.Fatalf("expected completed stream, got %+v", st)
	}
	if st.Result.Conclusion != models.ConclusionHuman {
		t.Fatalf("expected HUMAN verdict, got %q", st.Result.Conclusion)
	}

	detail, err := client.FetchDetail(ctx, streamID)
	if err != nil {
		t.Fatalf("fetch detail: %v", err)
	}
	if len(detail) == 0 {
		t.Fatal("expected detail payload")
	}

	entries, err := os.ReadDir(blobDir)
	if err != nil {
		t.Fatalf("read blob dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 stored payload, got %d", len(entries))
	}
}

func TestStubReportsProcessingUntilDelayElapses(t *testing.T) {
	_, ts, _ := newTestStub(t, time.Hour)
	client := testClient(ts)
	ctx := context.Background()

	d := testDescriptor(t, "speech.wav", []byte("riff-pcm-data"))
	blob, err := client.CreateBlob(ctx, d)
	if err != nil {
		t.Fatalf("create blob: %v", err)
	}
	if err := client.UploadBytes(ctx, blob.UploadURL, d); err != nil {
		t.Fatalf("upload: %v", err)
	}
	streamID, err := client.CreateJob(ctx, blob.FileID)
	if err != nil {
		t.Fatalf("create job: %v", err)
	}

	st, err := client.FetchStatus(ctx, streamID)
	if err != nil {
		t.Fatalf("fetch status: %v", err)
	}
	if st.Status != backend.StreamStatusProcessing || st.Result != nil {
		t.Fatalf("expected in-progress stream, got %+v", st)
	}
}

func TestStubRejectsJobForUnuploadedBlob(t *testing.T) {
	_, ts, _ := newTestStub(t, 0)
	client := testClient(ts)
	ctx := context.Background()

	d := testDescriptor(t, "speech.wav", []byte("riff-pcm-data"))
	blob, err := client.CreateBlob(ctx, d)
	if err != nil {
		t.Fatalf("create blob: %v", err)
	}

	if _, err := client.CreateJob(ctx, blob.FileID); err == nil {
		t.Fatal("expected error for blob without payload")
	}
}

func TestScriptedVerdicts(t *testing.T) {
	cases := []struct {
		name       string
		conclusion string
	}{
		{"fake_voice.wav", "AI"},
		{"inconclusive_clip.wav", "INCONCLUSIVE"},
		{"speech.wav", "HUMAN"},
	}
	for _, tc := range cases {
		if got, _, _ := verdictFor(tc.name); got != tc.conclusion {
			t.Fatalf("%s: expected %s, got %s", tc.name, tc.conclusion, got)
		}
	}
}
