package config

import (
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds shared runtime configuration for the pipeline and the stub
// backend. CLI flags take their defaults from here, so every knob can be
// set either way.
type Config struct {
	BackendURL     string
	APIKey         string
	Extensions     []string
	Concurrency    int
	MetricsAddr    string
	OutputDir      string
	OutputFormats  []string
	FFprobePath    string
	RequestTimeout time.Duration
	UploadTimeout  time.Duration
	PollInterval   time.Duration
	MaxAttempts    int
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	TimeoutFactor  float64
	TimeoutMin     time.Duration
	TimeoutBuffer  time.Duration
	TimeoutDefault time.Duration

	StubAddr        string
	StubBaseURL     string
	StubBlobDir     string
	StubS3Bucket    string
	StubS3Region    string
	StubS3Endpoint  string
	StubS3PathStyle bool
	StubDelay       time.Duration
}

// Load reads configuration from environment variables with sane defaults for local development.
func Load() Config {
	return Config{
		BackendURL:     getEnv("VG_BACKEND_URL", "http://127.0.0.1:8089/query"),
		APIKey:         getEnv("VG_API_KEY", os.Getenv("API_KEY")),
		Extensions:     getEnvList("VG_EXTENSIONS", []string{".wav"}),
		Concurrency:    getEnvInt("VG_CONCURRENCY", 4),
		MetricsAddr:    getEnv("VG_METRICS_ADDR", ""),
		OutputDir:      getEnv("VG_OUTPUT_DIR", "."),
		OutputFormats:  getEnvList("VG_OUTPUT", []string{"csv"}),
		FFprobePath:    getEnv("VG_FFPROBE", "ffprobe"),
		RequestTimeout: getEnvDuration("VG_REQUEST_TIMEOUT", 30*time.Second),
		UploadTimeout:  getEnvDuration("VG_UPLOAD_TIMEOUT", 10*time.Minute),
		PollInterval:   getEnvDuration("VG_POLL_INTERVAL", 2*time.Second),
		MaxAttempts:    getEnvInt("VG_MAX_ATTEMPTS", 5),
		BackoffInitial: getEnvDuration("VG_BACKOFF_INITIAL", time.Second),
		BackoffMax:     getEnvDuration("VG_BACKOFF_MAX", 30*time.Second),
		TimeoutFactor:  getEnvFloat("VG_TIMEOUT_FACTOR", 1.5),
		TimeoutMin:     getEnvDuration("VG_TIMEOUT_MIN", time.Minute),
		TimeoutBuffer:  getEnvDuration("VG_TIMEOUT_BUFFER", 30*time.Second),
		TimeoutDefault: getEnvDuration("VG_TIMEOUT_DEFAULT", 3*time.Minute),

		StubAddr:        getEnv("VG_STUB_ADDR", ":8089"),
		StubBaseURL:     getEnv("VG_STUB_BASE_URL", "http://127.0.0.1:8089"),
		StubBlobDir:     getEnv("VG_STUB_BLOB_DIR", "./stub-blobs"),
		StubS3Bucket:    getEnv("VG_STUB_S3_BUCKET", ""),
		StubS3Region:    getEnv("VG_STUB_S3_REGION", "us-east-1"),
		StubS3Endpoint:  getEnv("VG_STUB_S3_ENDPOINT", ""),
		StubS3PathStyle: getEnvBool("VG_STUB_S3_PATH_STYLE", true),
		StubDelay:       getEnvDuration("VG_STUB_DELAY", 2*time.Second),
	}
}

// ValidationError marks bad input caught before any network activity.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// IsLoopback reports whether the endpoint points at the local host, in
// which case the credential requirement is waived.
func IsLoopback(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := u.Hostname()
	if host == "localhost" {
		return true
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback()
	}
	return false
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getEnvList(key string, def []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return def
}
