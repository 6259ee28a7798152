package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"voiceguard-batch/internal/backend"
	"voiceguard-batch/internal/batch"
	"voiceguard-batch/internal/config"
	"voiceguard-batch/internal/locator"
	"voiceguard-batch/internal/report"
	"voiceguard-batch/internal/stub"
	"voiceguard-batch/internal/telemetry"
	"voiceguard-batch/internal/tracker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "voiceguard: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "voiceguard",
		Short:        "Batch voice-analysis client",
		Long:         "voiceguard submits local audio files to a voice-analysis backend, tracks each asynchronous job to completion, and writes the verdicts to CSV/JSON artifacts.",
		SilenceUsage: true,
	}
	cmd.AddCommand(
		newRunCmd(),
		newStubCmd(),
	)
	return cmd
}

func newRunCmd() *cobra.Command {
	cfg := config.Load()

	cmd := &cobra.Command{
		Use:   "run <directory>",
		Short: "Submit every matching file under a directory and wait for verdicts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd.Context(), cfg, args[0])
		},
	}

	cmd.Flags().StringSliceVar(&cfg.Extensions, "extensions", cfg.Extensions, "Allowed file extensions (e.g. .wav,.mp3)")
	cmd.Flags().StringVar(&cfg.APIKey, "api-key", cfg.APIKey, "API key (required for non-loopback backends, or set VG_API_KEY)")
	cmd.Flags().StringVar(&cfg.BackendURL, "backend-url", cfg.BackendURL, "Backend GraphQL endpoint")
	cmd.Flags().StringSliceVar(&cfg.OutputFormats, "output", cfg.OutputFormats, "Output formats: csv, json, or both")
	cmd.Flags().StringVar(&cfg.OutputDir, "out-dir", cfg.OutputDir, "Directory for result artifacts")
	cmd.Flags().IntVar(&cfg.Concurrency, "concurrency", cfg.Concurrency, "Number of files tracked concurrently")
	cmd.Flags().StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "Prometheus listen address (empty disables)")
	cmd.Flags().StringVar(&cfg.FFprobePath, "ffprobe", cfg.FFprobePath, "ffprobe binary for duration probing (empty disables)")
	return cmd
}

func runBatch(ctx context.Context, cfg config.Config, dir string) error {
	if err := validate(cfg, dir); err != nil {
		return err
	}

	useCSV, useJSON := outputSelection(cfg.OutputFormats)
	if !useCSV && !useJSON {
		return &config.ValidationError{Msg: fmt.Sprintf("unknown output formats %v (want csv, json, or both)", cfg.OutputFormats)}
	}

	if cfg.MetricsAddr != "" {
		go func() {
			if err := http.ListenAndServe(cfg.MetricsAddr, telemetry.Handler()); err != nil {
				log.Printf("metrics server stopped: %v", err)
			}
		}()
	}

	loc := locator.New(cfg.Extensions, cfg.FFprobePath)
	files, err := loc.Discover(ctx, dir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		log.Printf("no files found with allowed extensions %v", cfg.Extensions)
		return nil
	}
	telemetry.FilesDiscovered.Add(float64(len(files)))
	log.Printf("discovered %d files under %s", len(files), dir)

	client := backend.New(cfg.BackendURL, cfg.APIKey, backend.RetryPolicy{
		MaxAttempts: cfg.MaxAttempts,
		Base:        cfg.BackoffInitial,
		Cap:         cfg.BackoffMax,
	}, cfg.RequestTimeout, cfg.UploadTimeout)

	tr := tracker.New(client, tracker.Config{
		PollInterval:   cfg.PollInterval,
		TimeoutFactor:  cfg.TimeoutFactor,
		TimeoutMin:     cfg.TimeoutMin,
		TimeoutBuffer:  cfg.TimeoutBuffer,
		TimeoutDefault: cfg.TimeoutDefault,
	}, useJSON)

	started := time.Now()
	result := batch.New(tr, cfg.Concurrency).Run(ctx, files)

	if useCSV {
		path := report.TimestampedPath(cfg.OutputDir, "csv", started)
		if err := report.WriteCSV(path, result); err != nil {
			return err
		}
		log.Printf("wrote %s", path)
	}
	if useJSON {
		path := report.TimestampedPath(cfg.OutputDir, "json", started)
		if err := report.WriteJSON(path, result, started); err != nil {
			return err
		}
		log.Printf("wrote %s", path)
	}

	if n := result.Incomplete(); n > 0 {
		return fmt.Errorf("%d of %d files did not complete", n, len(result.Records))
	}
	log.Printf("all %d files completed", len(result.Records))
	return nil
}

// validate enforces the pre-network checks: the root must be a
// directory and non-loopback backends require a credential.
func validate(cfg config.Config, dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return &config.ValidationError{Msg: fmt.Sprintf("input directory %s: %v", dir, err)}
	}
	if !info.IsDir() {
		return &config.ValidationError{Msg: fmt.Sprintf("%s is not a directory", dir)}
	}
	if cfg.APIKey == "" && !config.IsLoopback(cfg.BackendURL) {
		return &config.ValidationError{Msg: "API key is required for non-loopback backends (--api-key or VG_API_KEY)"}
	}
	return nil
}

func outputSelection(formats []string) (useCSV, useJSON bool) {
	for _, f := range formats {
		switch f {
		case "csv":
			useCSV = true
		case "json":
			useJSON = true
		case "both":
			useCSV, useJSON = true, true
		}
	}
	return useCSV, useJSON
}

func newStubCmd() *cobra.Command {
	cfg := config.Load()

	cmd := &cobra.Command{
		Use:   "stub",
		Short: "Run a loopback stub backend for local development",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			srv, err := stub.New(ctx, stub.Options{
				BaseURL:         cfg.StubBaseURL,
				BlobDir:         cfg.StubBlobDir,
				S3Bucket:        cfg.StubS3Bucket,
				S3Region:        cfg.StubS3Region,
				S3Endpoint:      cfg.StubS3Endpoint,
				S3PathStyle:     cfg.StubS3PathStyle,
				ProcessingDelay: cfg.StubDelay,
			})
			if err != nil {
				return err
			}

			httpServer := &http.Server{
				Addr:    cfg.StubAddr,
				Handler: srv.Router(),
			}
			log.Printf("stub backend listening on %s (delay=%s)", cfg.StubAddr, cfg.StubDelay)
			go func() {
				if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatalf("listen: %v", err)
				}
			}()

			<-ctx.Done()
			shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancelShutdown()
			return httpServer.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().StringVar(&cfg.StubAddr, "addr", cfg.StubAddr, "Listen address")
	cmd.Flags().StringVar(&cfg.StubBaseURL, "base-url", cfg.StubBaseURL, "External base URL used in upload URLs")
	cmd.Flags().StringVar(&cfg.StubBlobDir, "blob-dir", cfg.StubBlobDir, "Local directory for uploaded payloads")
	cmd.Flags().StringVar(&cfg.StubS3Bucket, "s3-bucket", cfg.StubS3Bucket, "Store payloads in this S3 bucket instead of a local directory")
	cmd.Flags().StringVar(&cfg.StubS3Region, "s3-region", cfg.StubS3Region, "S3 region")
	cmd.Flags().StringVar(&cfg.StubS3Endpoint, "s3-endpoint", cfg.StubS3Endpoint, "Custom S3 endpoint (e.g. MinIO)")
	cmd.Flags().DurationVar(&cfg.StubDelay, "delay", cfg.StubDelay, "Simulated processing time per stream")
	return cmd
}
