package api

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"audiodigest/internal/models"
	"audiodigest/internal/service/upload"
	"audiodigest/internal/worker"
)

const (
	formField = "audio_file"
	// room for multipart boundaries and headers on top of the file itself
	multipartOverhead = 1 << 20
	maxFormMemory     = 32 << 20
)

//go:embed web/index.html
var indexHTML []byte

type UploadStore interface {
	Put(ctx context.Context, r io.Reader, originalName, mimeType string) (*models.Job, error)
	Get(ctx context.Context, token string) (*models.Job, error)
	Lookup(ctx context.Context, token string) (*models.Job, error)
}

type WorkerManager interface {
	Process(worker.ProcessRequest) (<-chan models.ProgressEvent, error)
	Cancel(token string) error
	Active() int
	IsActive(token string) bool
	Progress(ctx context.Context, token string) (*models.ProgressEvent, bool)
}

// Handler wires HTTP routes to the upload store and the worker manager.
type Handler struct {
	uploads        UploadStore
	workers        WorkerManager
	maxUploadBytes int64
}

// NewHandler constructs a Handler instance.
func NewHandler(uploads UploadStore, workers WorkerManager, maxUploadBytes int64) *Handler {
	return &Handler{
		uploads:        uploads,
		workers:        workers,
		maxUploadBytes: maxUploadBytes,
	}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/", h.index)
	router.GET("/healthz", h.healthz)
	router.POST("/upload", h.uploadAudio)
	router.GET("/process/:filename", h.processAudio)
	router.GET("/status/:filename", h.jobStatus)
	router.POST("/cancel/:filename", h.cancelJob)
}

func (h *Handler) index(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", indexHTML)
}

func (h *Handler) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "active_jobs": h.workers.Active()})
}

func (h *Handler) uploadAudio(c *gin.Context) {
	if h.maxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes+multipartOverhead)
	}
	if err := c.Request.ParseMultipartForm(maxFormMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "File too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file part"})
		return
	}
	file, err := c.FormFile(formField)
	if err != nil {
		// a part sent without a file name is parsed as a plain value
		if _, ok := c.Request.MultipartForm.Value[formField]; ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "No selected file"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file part"})
		return
	}
	if file.Filename == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No selected file"})
		return
	}
	if h.maxUploadBytes > 0 && file.Size > h.maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "File too large"})
		return
	}

	f, err := file.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "File upload failed"})
		return
	}
	defer f.Close()
	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "File upload failed"})
		return
	}
	head = head[:n]
	mimeType := file.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = http.DetectContentType(head)
	}

	job, err := h.uploads.Put(c.Request.Context(), io.MultiReader(bytes.NewReader(head), f), file.Filename, mimeType)
	if err != nil {
		slog.Error("store upload failed", "file", file.Filename, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "File upload failed"})
		return
	}
	slog.Info("audio uploaded", "token", job.Token, "job_id", job.ID, "size", job.Size)
	c.JSON(http.StatusOK, gin.H{"filename": job.Token})
}

func (h *Handler) processAudio(c *gin.Context) {
	token := c.Param("filename")
	job, err := h.uploads.Get(c.Request.Context(), token)
	if err != nil {
		if !errors.Is(err, upload.ErrNotFound) && !errors.Is(err, upload.ErrInvalidToken) {
			slog.Error("resolve upload failed", "token", token, "error", err)
		}
		c.String(http.StatusNotFound, "File not found.")
		return
	}
	if h.workers.IsActive(token) {
		c.String(http.StatusConflict, "File is already being processed.")
		return
	}
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.String(http.StatusInternalServerError, "Streaming not supported.")
		return
	}

	// leaving the handler for any reason cancels the job
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	events, err := h.workers.Process(worker.ProcessRequest{
		Context: ctx,
		Client:  c.ClientIP(),
		Job:     job,
	})
	if err != nil {
		switch {
		case errors.Is(err, worker.ErrJobActive):
			c.String(http.StatusConflict, "File is already being processed.")
		case errors.Is(err, worker.ErrDispatcherBusy):
			c.String(http.StatusTooManyRequests, "Server is busy, please retry.")
		default:
			slog.Error("queue job failed", "token", token, "error", err)
			c.String(http.StatusInternalServerError, "Processing failed.")
		}
		return
	}
	streamEvents(c, flusher, events)
}

func (h *Handler) jobStatus(c *gin.Context) {
	token := c.Param("filename")
	job, err := h.uploads.Lookup(c.Request.Context(), token)
	if err != nil {
		if errors.Is(err, upload.ErrNotFound) || errors.Is(err, upload.ErrInvalidToken) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	payload := gin.H{
		"job":    job,
		"active": h.workers.IsActive(token),
	}
	if ev, ok := h.workers.Progress(c.Request.Context(), token); ok {
		payload["progress"] = ev
	}
	c.JSON(http.StatusOK, payload)
}

func (h *Handler) cancelJob(c *gin.Context) {
	token := c.Param("filename")
	if err := upload.ValidateToken(token); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no active job"})
		return
	}
	if err := h.workers.Cancel(token); err != nil {
		if errors.Is(err, worker.ErrNoActiveJob) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no active job"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	slog.Info("cancel requested", "token", token)
	c.JSON(http.StatusAccepted, gin.H{"cancelled": true})
}
