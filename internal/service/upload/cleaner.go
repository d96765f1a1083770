package upload

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"audiodigest/internal/models"
)

const (
	DefaultUploadTTL     = 24 * time.Hour
	DefaultCleanInterval = time.Hour
)

// StartCleaner releases artifacts older than ttl every interval until ctx ends.
// A job still transcribing or summarizing is left alone unless its record
// has not moved for ttl, as happens when the process died mid-job.
func (s *Service) StartCleaner(ctx context.Context, ttl, interval time.Duration) {
	if ttl <= 0 {
		ttl = DefaultUploadTTL
	}
	if interval <= 0 {
		interval = DefaultCleanInterval
	}
	go s.cleanupLoop(ctx, ttl, interval)
}

func (s *Service) cleanupLoop(ctx context.Context, ttl, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := s.CleanupExpired(ctx, ttl); err != nil {
				slog.Error("cleanup expired uploads", "error", err)
			} else if n > 0 {
				slog.Info("released expired uploads", "count", n)
			}
		}
	}
}

// CleanupExpired releases every artifact created more than ttl ago and
// returns how many were released.
func (s *Service) CleanupExpired(ctx context.Context, ttl time.Duration) (int, error) {
	cutoff := s.now().Add(-ttl)
	rows, err := s.db.QueryContext(ctx, `
		SELECT token, stored_path FROM jobs
		WHERE removed_at IS NULL AND created_at <= ?
		  AND (state NOT IN (?, ?) OR updated_at <= ?)`,
		cutoff, models.JobTranscribing, models.JobSummarizing, cutoff)
	if err != nil {
		return 0, err
	}

	var expired []models.Job
	for rows.Next() {
		var job models.Job
		if err := rows.Scan(&job.Token, &job.SourcePath); err != nil {
			rows.Close()
			return 0, err
		}
		expired = append(expired, job)
	}
	if err := rows.Close(); err != nil {
		return 0, err
	}

	released := 0
	for i := range expired {
		if err := s.Remove(ctx, &expired[i]); err != nil {
			slog.Warn("release expired upload failed", "token", expired[i].Token, "error", err)
			continue
		}
		released++
	}
	s.removeOrphans(cutoff)
	return released, nil
}

// removeOrphans drops stale files in the upload dir that no record points at,
// e.g. left behind by a crash between file creation and insert.
func (s *Service) removeOrphans(cutoff time.Time) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		var exists bool
		if err := s.db.QueryRow(`SELECT EXISTS(SELECT 1 FROM jobs WHERE token = ? AND removed_at IS NULL)`, entry.Name()).Scan(&exists); err != nil || exists {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			slog.Warn("remove orphan upload failed", "path", path, "error", err)
		}
	}
}
