package upload

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"audiodigest/internal/models"
)

var (
	ErrNotFound     = errors.New("upload not found")
	ErrInvalidToken = errors.New("invalid upload token")
)

const (
	tokenPrefix = "audio_"
	tokenExt    = ".mp3"
	// attempts per second before giving up on a free token
	maxTokenAttempts = 1000
)

// Service maps upload tokens to stored artifacts and their job records.
type Service struct {
	db  *sql.DB
	dir string
	now func() time.Time
}

// NewService builds the upload store rooted at dir, creating it if needed.
func NewService(db *sql.DB, dir string) (*Service, error) {
	if db == nil {
		return nil, errors.New("database is required")
	}
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("upload dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Service{db: db, dir: dir, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Dir returns the upload directory.
func (s *Service) Dir() string {
	return s.dir
}

// Put copies r into a fresh artifact and inserts its job record.
func (s *Service) Put(ctx context.Context, r io.Reader, originalName, mimeType string) (*models.Job, error) {
	if r == nil {
		return nil, errors.New("upload body is required")
	}
	now := s.now()
	token, f, err := s.createArtifact(now)
	if err != nil {
		return nil, err
	}
	path := f.Name()

	size, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("write upload: %w", err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("job id: %w", err)
	}
	job := &models.Job{
		ID:           id.String(),
		Token:        token,
		SourcePath:   path,
		OriginalName: filepath.Base(originalName),
		MimeType:     mimeType,
		Size:         size,
		State:        models.JobCreated,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, token, stored_path, original_name, mime_type, size, state, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.Token, job.SourcePath, job.OriginalName, job.MimeType, job.Size, job.State, job.CreatedAt, job.UpdatedAt,
	); err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("insert job: %w", err)
	}
	return job, nil
}

// createArtifact reserves audio_<unix>.mp3, falling back to audio_<unix>_<n>.mp3
// when another upload holds the name.
func (s *Service) createArtifact(now time.Time) (string, *os.File, error) {
	base := tokenPrefix + strconv.FormatInt(now.Unix(), 10)
	for n := 0; n < maxTokenAttempts; n++ {
		token := base + tokenExt
		if n > 0 {
			token = base + "_" + strconv.Itoa(n) + tokenExt
		}
		f, err := os.OpenFile(filepath.Join(s.dir, token), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return token, f, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return "", nil, fmt.Errorf("create upload file: %w", err)
		}
	}
	return "", nil, fmt.Errorf("no free upload token for %s", base)
}

// Get resolves a token to a job whose artifact is still on disk.
func (s *Service) Get(ctx context.Context, token string) (*models.Job, error) {
	job, err := s.Lookup(ctx, token)
	if err != nil {
		return nil, err
	}
	if job.RemovedAt != nil {
		return nil, ErrNotFound
	}
	info, err := os.Stat(job.SourcePath)
	if err != nil || !info.Mode().IsRegular() {
		return nil, ErrNotFound
	}
	return job, nil
}

// Lookup returns the job record for token, including released ones.
func (s *Service) Lookup(ctx context.Context, token string) (*models.Job, error) {
	if err := ValidateToken(token); err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT id, token, stored_path, original_name, mime_type, size, state,
		        transcript, summary, error, created_at, updated_at, removed_at
		 FROM jobs WHERE token = ?`, token)

	var (
		job       models.Job
		removedAt sql.NullTime
	)
	if err := row.Scan(&job.ID, &job.Token, &job.SourcePath, &job.OriginalName, &job.MimeType, &job.Size, &job.State,
		&job.Transcript, &job.Summary, &job.Error, &job.CreatedAt, &job.UpdatedAt, &removedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query job: %w", err)
	}
	if removedAt.Valid {
		t := removedAt.Time
		job.RemovedAt = &t
	}
	return &job, nil
}

// Record persists the job's current state and outputs.
func (s *Service) Record(ctx context.Context, job *models.Job) error {
	if job == nil || job.ID == "" {
		return errors.New("job id is required")
	}
	job.UpdatedAt = s.now()
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET state = ?, transcript = ?, summary = ?, error = ?, updated_at = ? WHERE id = ?`,
		job.State, job.Transcript, job.Summary, job.Error, job.UpdatedAt, job.ID,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Remove deletes the job's artifact and marks it released. Removing an
// already released artifact is a no-op.
func (s *Service) Remove(ctx context.Context, job *models.Job) error {
	if job == nil {
		return nil
	}
	if job.SourcePath != "" {
		if err := os.Remove(job.SourcePath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove upload %s: %w", job.Token, err)
		}
	}
	now := s.now()
	if _, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET removed_at = ? WHERE token = ? AND removed_at IS NULL`, now, job.Token,
	); err != nil {
		return fmt.Errorf("mark upload removed: %w", err)
	}
	if job.RemovedAt == nil {
		job.RemovedAt = &now
	}
	return nil
}

// ValidateToken rejects anything that is not a bare file name inside the
// upload directory.
func ValidateToken(token string) error {
	if token == "" || token == "." || token == ".." ||
		strings.ContainsAny(token, `/\`) || strings.Contains(token, "..") ||
		filepath.Base(token) != token {
		return ErrInvalidToken
	}
	return nil
}
