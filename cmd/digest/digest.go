package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"audiodigest/internal/models"
	"audiodigest/internal/pipeline"
)

var audioExtensions = map[string]bool{
	".mp3": true, ".wav": true, ".m4a": true, ".ogg": true,
	".flac": true, ".webm": true, ".aac": true, ".opus": true,
}

type digester struct {
	pipeline *pipeline.Pipeline
	out      io.Writer
}

// digest runs one local file through the pipeline and writes
// <base>_summary.txt beside it.
func (d *digester) digest(ctx context.Context, path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	job := &models.Job{
		ID:           abs,
		Token:        filepath.Base(abs),
		SourcePath:   abs,
		OriginalName: filepath.Base(abs),
		State:        models.JobCreated,
		CreatedAt:    time.Now().UTC(),
	}
	var failure string
	state := d.pipeline.Run(ctx, job, func(ev models.ProgressEvent) {
		if ev.Error != "" {
			failure = ev.Error
			return
		}
		fmt.Fprintf(d.out, "[%3d%%] %s\n", ev.Percent, ev.Status)
	})
	if state != models.JobDone {
		if job.Error != "" {
			return "", fmt.Errorf("%s: %s", failure, job.Error)
		}
		return "", errors.New(failure)
	}

	fmt.Fprintf(d.out, "\n--- Transcript ---\n%s\n\n--- Summary ---\n%s\n", job.Transcript, job.Summary)
	outPath := summaryPath(abs)
	if err := writeSummary(outPath, job.Transcript, job.Summary); err != nil {
		return "", fmt.Errorf("save digest: %w", err)
	}
	return outPath, nil
}

func summaryPath(audioPath string) string {
	return strings.TrimSuffix(audioPath, filepath.Ext(audioPath)) + "_summary.txt"
}

func writeSummary(path, transcript, summary string) error {
	content := "--- Original Transcript ---\n" + transcript +
		"\n\n--- Summarized Text ---\n" + summary
	return os.WriteFile(path, []byte(content), 0o644)
}

func isAudioFile(path string) bool {
	if strings.HasSuffix(path, "_summary.txt") {
		return false
	}
	return audioExtensions[strings.ToLower(filepath.Ext(path))]
}

func (d *digester) report(ctx context.Context, path string) {
	outPath, err := d.digest(ctx, path)
	if err != nil {
		slog.Error("digest failed", "file", path, "error", err)
		return
	}
	slog.Info("digest saved", "file", path, "output", outPath)
}
