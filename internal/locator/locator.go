// Package locator enumerates the input directory tree and builds one
// immutable FileDescriptor per matching file.
package locator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"log"
	"mime"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"voiceguard-batch/internal/models"
)

var unsafeChars = regexp.MustCompile(`[^\w.\-]`)

// Locator filters a directory tree by extension and describes each hit.
type Locator struct {
	extensions map[string]struct{}
	ffprobe    string
}

// New normalizes the allowed extensions (case-insensitive, leading dot
// optional). ffprobePath may be empty to disable duration probing.
func New(extensions []string, ffprobePath string) *Locator {
	exts := make(map[string]struct{}, len(extensions))
	for _, e := range extensions {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		exts[e] = struct{}{}
	}
	return &Locator{extensions: exts, ffprobe: ffprobePath}
}

// Discover walks root recursively and returns descriptors in walk
// order. Unreadable entries are logged and skipped; only a missing or
// non-directory root fails the run.
func (l *Locator) Discover(ctx context.Context, root string) ([]models.FileDescriptor, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("input directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("input path %s is not a directory", root)
	}

	var out []models.FileDescriptor
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			log.Printf("skipping %s: %v", path, err)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if _, ok := l.extensions[strings.ToLower(filepath.Ext(path))]; !ok {
			return nil
		}
		desc, err := l.describe(ctx, path)
		if err != nil {
			log.Printf("skipping %s: %v", path, err)
			return nil
		}
		out = append(out, desc)
		return nil
	})
	if walkErr != nil {
		return nil, walkErr
	}
	return out, nil
}

func (l *Locator) describe(ctx context.Context, path string) (models.FileDescriptor, error) {
	f, err := os.Open(path)
	if err != nil {
		return models.FileDescriptor{}, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return models.FileDescriptor{}, err
	}

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return models.FileDescriptor{}, fmt.Errorf("hash: %w", err)
	}

	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	return models.FileDescriptor{
		Path:     abs,
		Name:     SanitizeName(filepath.Base(path)),
		SHA256:   hex.EncodeToString(h.Sum(nil)),
		MIME:     contentType,
		Size:     info.Size(),
		Duration: l.probeDuration(ctx, path),
	}, nil
}

// SanitizeName replaces characters outside [A-Za-z0-9_.-] so the upload
// name is safe for the backend.
func SanitizeName(name string) string {
	return unsafeChars.ReplaceAllString(name, "_")
}

// probeDuration shells out to ffprobe for the container duration. Any
// failure means unknown, never fatal: downstream falls back to the
// default timeout.
func (l *Locator) probeDuration(ctx context.Context, path string) time.Duration {
	if l.ffprobe == "" {
		return 0
	}
	cmd := exec.CommandContext(ctx, l.ffprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path)
	out, err := cmd.Output()
	if err != nil {
		log.Printf("duration probe failed for %s: %v", path, err)
		return 0
	}
	secs, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs * float64(time.Second))
}
