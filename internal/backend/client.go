// Package backend implements the client side of the voice-analysis
// GraphQL contract: blob registration, payload upload, stream creation,
// and status polling. Every operation runs under the shared RetryPolicy.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"voiceguard-batch/internal/models"
)

const (
	StreamStatusCreated    = "CREATED"
	StreamStatusProcessing = "PROCESSING"
	StreamStatusCompleted  = "COMPLETED"
	StreamStatusFailed     = "FAILED"
)

const createBlobMutation = `
mutation($input: CreateFileBlobInput!) {
    createFileBlob(input: $input) {
        id
        url
    }
}`

const createStreamMutation = `
mutation($input: CreateStreamInput!) {
    createStream(input: $input) {
        id
    }
}`

const getStreamQuery = `
query GetStream($id: SortableID!) {
    getStream(id: $id) {
        id
        streamStatus
        streamResult {
            conclusion
            probability
            millisecondsToConclusion
        }
        segments {
            preprocessingResult {
                preprocessingConclusion
            }
        }
    }
}`

const getStreamDetailQuery = `
query GetStream($id: SortableID!) {
    getStream(id: $id) {
        id
        streamStatus
        createdAt
        updatedAt
        streamResult {
            conclusion
            probability
            millisecondsToConclusion
        }
        segments {
            id
            preprocessingResult {
                preprocessingConclusion
                language
            }
            modelResults {
                modelName
                modelVersion
                conclusion
                probability
            }
            result {
                conclusion
                probability
            }
        }
    }
}`

// Client talks to one backend endpoint. It is safe for concurrent use;
// trackers share its connection pool.
type Client struct {
	endpoint     string
	apiKey       string
	httpClient   *http.Client
	uploadClient *http.Client
	retry        RetryPolicy
}

// New builds a client for the given GraphQL endpoint. apiKey may be
// empty for loopback endpoints.
func New(endpoint, apiKey string, retry RetryPolicy, requestTimeout, uploadTimeout time.Duration) *Client {
	transport := &http.Transport{
		MaxIdleConnsPerHost: 10,
	}
	return &Client{
		endpoint:     strings.TrimRight(endpoint, "/"),
		apiKey:       apiKey,
		httpClient:   &http.Client{Timeout: requestTimeout, Transport: transport},
		uploadClient: &http.Client{Timeout: uploadTimeout, Transport: transport},
		retry:        retry,
	}
}

// Blob is the backend's handle for a registered file.
type Blob struct {
	FileID    string
	UploadURL string
}

// CreateBlob registers file metadata and returns the file id plus the
// URL the payload must be PUT to.
func (c *Client) CreateBlob(ctx context.Context, d models.FileDescriptor) (Blob, error) {
	vars := map[string]any{
		"input": map[string]any{
			"fileName":      d.Name,
			"contentType":   d.MIME,
			"contentLength": d.Size,
			"sha256":        d.SHA256,
		},
	}
	var out struct {
		CreateFileBlob struct {
			ID  string `json:"id"`
			URL string `json:"url"`
		} `json:"createFileBlob"`
	}
	err := c.retry.Do(ctx, "createFileBlob", func(ctx context.Context) error {
		return c.post(ctx, createBlobMutation, vars, &out)
	})
	if err != nil {
		return Blob{}, err
	}
	if out.CreateFileBlob.ID == "" || out.CreateFileBlob.URL == "" {
		return Blob{}, &PermanentError{Err: fmt.Errorf("createFileBlob: incomplete response")}
	}
	return Blob{FileID: out.CreateFileBlob.ID, UploadURL: out.CreateFileBlob.URL}, nil
}

// UploadBytes transfers the raw payload to the blob's upload URL. The
// file is reopened on every attempt so a retry restarts from byte zero.
func (c *Client) UploadBytes(ctx context.Context, uploadURL string, d models.FileDescriptor) error {
	return c.retry.Do(ctx, "uploadBytes", func(ctx context.Context) error {
		f, err := os.Open(d.Path)
		if err != nil {
			return &PermanentError{Err: fmt.Errorf("open %s: %w", d.Path, err)}
		}
		defer f.Close()

		req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, f)
		if err != nil {
			return &PermanentError{Err: fmt.Errorf("build upload request: %w", err)}
		}
		req.ContentLength = d.Size
		req.Header.Set("Content-Type", d.MIME)
		req.Header.Set("X-Amz-Content-Sha256", d.SHA256)

		resp, err := c.uploadClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return &TransientError{Err: fmt.Errorf("upload: %w", err)}
		}
		defer resp.Body.Close()
		if resp.StatusCode >= http.StatusBadRequest {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return classifyStatus("upload", resp.StatusCode, strings.TrimSpace(string(body)))
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	})
}

// CreateJob starts backend-side analysis of an uploaded blob and
// returns the stream id.
func (c *Client) CreateJob(ctx context.Context, fileID string) (string, error) {
	vars := map[string]any{
		"input": map[string]any{
			"fileBlobId":            fileID,
			"processingRequestType": "WITHOUT_CORRUPTION",
		},
	}
	var out struct {
		CreateStream struct {
			ID string `json:"id"`
		} `json:"createStream"`
	}
	err := c.retry.Do(ctx, "createStream", func(ctx context.Context) error {
		return c.post(ctx, createStreamMutation, vars, &out)
	})
	if err != nil {
		return "", err
	}
	if out.CreateStream.ID == "" {
		return "", &PermanentError{Err: fmt.Errorf("createStream: no stream id in response")}
	}
	return out.CreateStream.ID, nil
}

// StreamStatus is one non-blocking poll observation.
type StreamStatus struct {
	Status string
	Result *models.StreamResult
}

// FetchStatus polls the stream once. When the stream has completed, the
// verdict is parsed and, for INCONCLUSIVE conclusions, the unique
// preprocessing conclusions are joined into the reason string.
func (c *Client) FetchStatus(ctx context.Context, streamID string) (StreamStatus, error) {
	vars := map[string]any{"id": streamID}
	var out struct {
		GetStream struct {
			ID           string `json:"id"`
			StreamStatus string `json:"streamStatus"`
			StreamResult *struct {
				Conclusion  string   `json:"conclusion"`
				Probability *float64 `json:"probability"`
			} `json:"streamResult"`
			Segments []struct {
				PreprocessingResult *struct {
					PreprocessingConclusion string `json:"preprocessingConclusion"`
				} `json:"preprocessingResult"`
			} `json:"segments"`
		} `json:"getStream"`
	}
	err := c.retry.Do(ctx, "getStream", func(ctx context.Context) error {
		return c.post(ctx, getStreamQuery, vars, &out)
	})
	if err != nil {
		return StreamStatus{}, err
	}

	st := StreamStatus{Status: out.GetStream.StreamStatus}
	if st.Status != StreamStatusCompleted || out.GetStream.StreamResult == nil {
		return st, nil
	}

	result := &models.StreamResult{
		Conclusion:  out.GetStream.StreamResult.Conclusion,
		Probability: -1,
	}
	if p := out.GetStream.StreamResult.Probability; p != nil {
		result.Probability = *p
	}
	if result.Conclusion == models.ConclusionInconclusive {
		seen := map[string]bool{}
		var reasons []string
		for _, seg := range out.GetStream.Segments {
			pre := seg.PreprocessingResult
			if pre == nil || pre.PreprocessingConclusion == "" || seen[pre.PreprocessingConclusion] {
				continue
			}
			seen[pre.PreprocessingConclusion] = true
			reasons = append(reasons, pre.PreprocessingConclusion)
		}
		result.Reason = strings.Join(reasons, ", ")
	}
	st.Result = result
	return st, nil
}

// FetchDetail retrieves the full per-segment payload for the JSON
// projection. If the detailed query fails it falls back to the basic
// stream shape rather than losing the record.
func (c *Client) FetchDetail(ctx context.Context, streamID string) (json.RawMessage, error) {
	vars := map[string]any{"id": streamID}
	var out struct {
		GetStream json.RawMessage `json:"getStream"`
	}
	err := c.retry.Do(ctx, "getStreamDetail", func(ctx context.Context) error {
		return c.post(ctx, getStreamDetailQuery, vars, &out)
	})
	if err == nil && len(out.GetStream) > 0 {
		return out.GetStream, nil
	}
	fallbackErr := c.retry.Do(ctx, "getStream", func(ctx context.Context) error {
		return c.post(ctx, getStreamQuery, vars, &out)
	})
	if fallbackErr != nil {
		if err == nil {
			err = fallbackErr
		}
		return nil, err
	}
	return out.GetStream, nil
}

type gqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type gqlError struct {
	Message string `json:"message"`
}

// post sends one GraphQL request and decodes the data payload into out.
// GraphQL-level errors are permanent: the backend received and rejected
// the request.
func (c *Client) post(ctx context.Context, query string, vars map[string]any, out any) error {
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(gqlRequest{Query: query, Variables: vars}); err != nil {
		return &PermanentError{Err: fmt.Errorf("encode request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, buf)
	if err != nil {
		return &PermanentError{Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-KEY", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &TransientError{Err: fmt.Errorf("request: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return classifyStatus("graphql", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var envelope struct {
		Data   json.RawMessage `json:"data"`
		Errors []gqlError      `json:"errors"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return &TransientError{Err: fmt.Errorf("decode response: %w", err)}
	}
	if len(envelope.Errors) > 0 {
		msgs := make([]string, 0, len(envelope.Errors))
		for _, e := range envelope.Errors {
			msgs = append(msgs, e.Message)
		}
		return &PermanentError{Err: fmt.Errorf("graphql: %s", strings.Join(msgs, ", "))}
	}
	if out != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return &PermanentError{Err: fmt.Errorf("decode data: %w", err)}
		}
	}
	return nil
}
