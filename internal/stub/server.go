// Package stub is a loopback implementation of the voice-analysis
// contract so the pipeline can be exercised without credentials or a
// real backend. Verdicts are scripted from the uploaded filename:
// names containing "ai" or "fake" come back AI, names containing
// "inconclusive" come back INCONCLUSIVE, everything else HUMAN.
package stub

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// Options configures the stub server.
type Options struct {
	BaseURL         string // external address used in upload URLs
	BlobDir         string
	S3Bucket        string
	S3Region        string
	S3Endpoint      string
	S3PathStyle     bool
	ProcessingDelay time.Duration
}

type blobEntry struct {
	name        string
	contentType string
	size        int64
	sha256      string
	uploaded    bool
}

type streamEntry struct {
	blobID      string
	createdAt   time.Time
	conclusion  string
	probability float64
	reason      string
}

// Server holds stub state. Blobs and streams live in memory; payloads
// go to a local directory or an S3 bucket.
type Server struct {
	store   BlobStore
	baseURL string
	delay   time.Duration
	now     func() time.Time

	mu      sync.Mutex
	blobs   map[string]*blobEntry
	streams map[string]*streamEntry
}

// New picks the blob store (local dir by default, S3 when a bucket is
// configured) and returns a ready server.
func New(ctx context.Context, opts Options) (*Server, error) {
	var store BlobStore
	if opts.S3Bucket != "" {
		client, err := newS3Client(ctx, opts.S3Region, opts.S3Endpoint, opts.S3PathStyle)
		if err != nil {
			return nil, err
		}
		store = &s3Store{client: client, bucket: opts.S3Bucket}
	} else {
		dir := opts.BlobDir
		if dir == "" {
			dir = "./stub-blobs"
		}
		store = &localStore{baseDir: dir}
	}
	return &Server{
		store:   store,
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		delay:   opts.ProcessingDelay,
		now:     time.Now,
		blobs:   map[string]*blobEntry{},
		streams: map[string]*streamEntry{},
	}, nil
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Post("/query", s.handleGraphQL)
	r.Put("/blobs/{id}", s.handleUpload)
	return r
}

type gqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

func (s *Server) handleGraphQL(w http.ResponseWriter, r *http.Request) {
	var req gqlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	switch {
	case strings.Contains(req.Query, "createFileBlob"):
		s.createFileBlob(w, req)
	case strings.Contains(req.Query, "createStream"):
		s.createStream(w, req)
	case strings.Contains(req.Query, "getStream"):
		s.getStream(w, req)
	default:
		writeGQLError(w, "unknown operation")
	}
}

func (s *Server) createFileBlob(w http.ResponseWriter, req gqlRequest) {
	input, _ := req.Variables["input"].(map[string]any)
	if input == nil {
		writeGQLError(w, "input is required")
		return
	}
	entry := &blobEntry{
		name:        asString(input["fileName"]),
		contentType: asString(input["contentType"]),
		sha256:      asString(input["sha256"]),
	}
	if size, ok := input["contentLength"].(float64); ok {
		entry.size = int64(size)
	}
	if entry.name == "" || entry.sha256 == "" {
		writeGQLError(w, "fileName and sha256 are required")
		return
	}

	id := uuid.NewString()
	s.mu.Lock()
	s.blobs[id] = entry
	s.mu.Unlock()

	writeGQLData(w, map[string]any{
		"createFileBlob": map[string]any{
			"id":  id,
			"url": fmt.Sprintf("%s/blobs/%s", s.baseURL, id),
		},
	})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	entry, ok := s.blobs[id]
	s.mu.Unlock()
	if !ok {
		http.Error(w, "unknown blob", http.StatusNotFound)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, entry.size+1))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}
	sum := sha256.Sum256(body)
	if hex.EncodeToString(sum[:]) != entry.sha256 {
		http.Error(w, "sha256 mismatch", http.StatusBadRequest)
		return
	}

	if _, err := s.store.Put(r.Context(), id+"_"+entry.name, body, entry.contentType); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.mu.Lock()
	entry.uploaded = true
	s.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (s *Server) createStream(w http.ResponseWriter, req gqlRequest) {
	input, _ := req.Variables["input"].(map[string]any)
	blobID := asString(input["fileBlobId"])

	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.blobs[blobID]
	if !ok {
		writeGQLError(w, "unknown file blob")
		return
	}
	if !entry.uploaded {
		writeGQLError(w, "blob payload not uploaded")
		return
	}

	stream := &streamEntry{
		blobID:    blobID,
		createdAt: s.now(),
	}
	stream.conclusion, stream.probability, stream.reason = verdictFor(entry.name)

	id := uuid.NewString()
	s.streams[id] = stream
	writeGQLData(w, map[string]any{
		"createStream": map[string]any{"id": id},
	})
}

func (s *Server) getStream(w http.ResponseWriter, req gqlRequest) {
	id := asString(req.Variables["id"])

	s.mu.Lock()
	stream, ok := s.streams[id]
	s.mu.Unlock()
	if !ok {
		writeGQLError(w, "unknown stream")
		return
	}

	if s.now().Before(stream.createdAt.Add(s.delay)) {
		writeGQLData(w, map[string]any{
			"getStream": map[string]any{
				"id":           id,
				"streamStatus": "PROCESSING",
				"streamResult": nil,
				"segments":     []any{},
			},
		})
		return
	}

	var preprocessing any
	if stream.reason != "" {
		preprocessing = map[string]any{"preprocessingConclusion": stream.reason}
	}
	writeGQLData(w, map[string]any{
		"getStream": map[string]any{
			"id":           id,
			"streamStatus": "COMPLETED",
			"streamResult": map[string]any{
				"conclusion":               stream.conclusion,
				"probability":              stream.probability,
				"millisecondsToConclusion": s.delay.Milliseconds(),
			},
			"segments": []any{
				map[string]any{
					"id":                  uuid.NewString(),
					"preprocessingResult": preprocessing,
					"modelResults": []any{
						map[string]any{
							"modelName":    "stub-voice-model",
							"modelVersion": "1",
							"conclusion":   stream.conclusion,
							"probability":  stream.probability,
						},
					},
					"result": map[string]any{
						"conclusion":  stream.conclusion,
						"probability": stream.probability,
					},
				},
			},
		},
	})
}

// verdictFor scripts a verdict from the upload name so demos and tests
// can provoke each conclusion.
func verdictFor(name string) (conclusion string, probability float64, reason string) {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "inconclusive"):
		return "INCONCLUSIVE", -1, "AUDIO_TOO_SHORT"
	case strings.Contains(lower, "ai"), strings.Contains(lower, "fake"):
		return "AI", 0.97, ""
	default:
		return "HUMAN", 0.08, ""
	}
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func writeGQLData(w http.ResponseWriter, data map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
}

func writeGQLError(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"errors": []map[string]any{{"message": msg}},
	})
}
