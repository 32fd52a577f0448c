package main

import (
	"context"
	"flag"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kirillkom/document-pipeline/internal/config"
	"github.com/kirillkom/document-pipeline/internal/core/domain"
	"github.com/kirillkom/document-pipeline/internal/infrastructure/queue/nats"
	"github.com/kirillkom/document-pipeline/internal/observability/logging"
)

// ingest publishes files to the worker ingest subject.
func main() {
	var (
		dir        = flag.String("dir", "", "directory whose regular files are published")
		location   = flag.String("location", "", "storage location: local, cloud or both")
		language   = flag.String("language", "", "recognition language, auto when empty")
		localOnly  = flag.Bool("local-only", false, "never send content to the reasoning service")
		shareImage = flag.Bool("share-image", false, "allow the image to be sent with enhancement requests")
		inline     = flag.Bool("inline", false, "embed file bytes instead of sending the path")
	)
	flag.Parse()

	cfg := config.Load()
	logger := logging.New(os.Stdout, "ingest", cfg.LogLevel, cfg.LogFormat)
	if cfg.NATSURL == "" {
		fmt.Fprintln(os.Stderr, "NATS_URL is required")
		os.Exit(1)
	}

	paths, err := collect(*dir, flag.Args())
	if err != nil || len(paths) == 0 {
		fmt.Fprintf(os.Stderr, "usage: ingest [-dir DIR] [files...]: %v\n", err)
		os.Exit(1)
	}

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSIngestSubject, cfg.NATSProcessedSubject, nats.Options{Logger: logger})
	if err != nil {
		logger.Error("nats_connect_failed", "error", err)
		os.Exit(1)
	}
	defer queue.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	failed := 0
	for _, path := range paths {
		msg, err := message(path, *inline)
		if err != nil {
			logger.Error("ingest_read_failed", "path", path, "error", err)
			failed++
			continue
		}
		msg.Location = domain.StorageLocation(*location)
		msg.Language = domain.Language(*language)
		msg.LocalOnly = *localOnly
		msg.ShareImage = *shareImage
		if err := queue.PublishIngest(ctx, msg); err != nil {
			logger.Error("ingest_publish_failed", "path", path, "error", err)
			failed++
			continue
		}
		logger.Info("ingest_published", "path", path, "mime_type", msg.MimeType)
	}
	if failed > 0 {
		os.Exit(1)
	}
}

func collect(dir string, args []string) ([]string, error) {
	paths := append([]string(nil), args...)
	if dir == "" {
		return paths, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.Type().IsRegular() {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	return paths, nil
}

func message(path string, inline bool) (nats.IngestMessage, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nats.IngestMessage{}, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nats.IngestMessage{}, err
	}
	msg := nats.IngestMessage{
		Filename: filepath.Base(abs),
		MimeType: detectMIME(abs, data),
		Path:     abs,
	}
	if inline {
		msg.Data = data
	}
	return msg, nil
}

func detectMIME(path string, data []byte) string {
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); t != "" {
		media, _, _ := mime.ParseMediaType(t)
		return media
	}
	media, _, _ := mime.ParseMediaType(http.DetectContentType(data))
	return media
}
