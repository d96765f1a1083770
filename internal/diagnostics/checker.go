package diagnostics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"audiodigest/internal/config"
)

type Status string

const (
	StatusPass Status = "pass"
	StatusFail Status = "fail"
)

// Item is one line of the preflight report.
type Item struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Status  Status `json:"status"`
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
}

type Report struct {
	HasFailures bool   `json:"has_failures"`
	Items       []Item `json:"items"`
}

// Engine is an adapter whose engine can be built ahead of the first job.
type Engine interface {
	Ready(ctx context.Context) error
}

// Checker validates external tools, model files, credentials and that both
// engines can actually be constructed.
type Checker struct {
	lookPath   func(string) (string, error)
	stat       func(string) (os.FileInfo, error)
	mkdirAll   func(string, os.FileMode) error
	createTemp func(string, string) (*os.File, error)
	remove     func(string) error
}

// NewChecker builds a checker using real OS dependencies.
func NewChecker() *Checker {
	return &Checker{
		lookPath:   exec.LookPath,
		stat:       os.Stat,
		mkdirAll:   os.MkdirAll,
		createTemp: os.CreateTemp,
		remove:     os.Remove,
	}
}

// Run executes every check for cfg. The engine builds run last so their
// failures can be read against the tool and credential items above them.
func (c *Checker) Run(ctx context.Context, cfg *config.Config, transcription, summarization Engine) Report {
	var items []Item
	tc := cfg.Engines.Transcriber
	switch tc.Kind {
	case "gemini":
		items = append(items, checkAPIKey("gemini", cfg.Provider("gemini")))
	default:
		items = append(items, c.checkTool("whisper", tc.BinaryPath))
		if tc.FFmpegPath != "" {
			items = append(items, c.checkTool("ffmpeg", tc.FFmpegPath))
		}
		items = append(items, c.checkModelPath(tc.ModelPath))
	}
	sc := cfg.Engines.Summarizer
	items = append(items,
		checkAPIKey(sc.Provider, cfg.Provider(sc.Provider)),
		c.checkUploadDir(cfg.BasicConfig.UploadDir),
		checkEngine(ctx, "transcriber", "Transcription engine ("+tc.Kind+")", transcription),
		checkEngine(ctx, "summarizer", "Summarization engine ("+sc.Provider+")", summarization),
	)

	report := Report{Items: items}
	for _, item := range items {
		if item.Status == StatusFail {
			report.HasFailures = true
			break
		}
	}
	return report
}

func (c *Checker) checkTool(name, binary string) Item {
	item := Item{ID: "tool_" + name, Name: name}
	if strings.TrimSpace(binary) == "" {
		item.Status = StatusFail
		item.Message = fmt.Sprintf("No %s binary configured.", name)
		item.Hint = "Set the binary path under engines.transcriber."
		return item
	}
	path, err := c.lookPath(binary)
	if err != nil {
		item.Status = StatusFail
		item.Message = fmt.Sprintf("Tool not found: %s", binary)
		item.Hint = "Install it and make sure it is on PATH or configured with an absolute path."
		return item
	}
	item.Status = StatusPass
	item.Message = fmt.Sprintf("Found at %s", path)
	return item
}

func (c *Checker) checkModelPath(modelPath string) Item {
	item := Item{ID: "model_path", Name: "Whisper model"}
	if strings.TrimSpace(modelPath) == "" {
		item.Status = StatusFail
		item.Message = "Model path is empty."
		item.Hint = "Download a whisper.cpp ggml model and set engines.transcriber.model_path."
		return item
	}
	info, err := c.stat(modelPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		item.Status = StatusFail
		item.Message = fmt.Sprintf("Model file does not exist: %s", modelPath)
		item.Hint = "Download a whisper.cpp ggml model and set engines.transcriber.model_path."
	case err != nil:
		item.Status = StatusFail
		item.Message = fmt.Sprintf("Cannot access model file: %s", modelPath)
	case info.IsDir():
		item.Status = StatusFail
		item.Message = fmt.Sprintf("Model path is a directory: %s", modelPath)
		item.Hint = "Point model_path at the .bin model file itself."
	default:
		item.Status = StatusPass
		item.Message = fmt.Sprintf("Model file found: %s", modelPath)
	}
	return item
}

func checkAPIKey(provider string, p config.ProviderConfig) Item {
	item := Item{ID: "api_key_" + provider, Name: provider + " API key"}
	if strings.TrimSpace(p.APIKey) == "" {
		item.Status = StatusFail
		item.Message = fmt.Sprintf("No API key configured for %s.", provider)
		item.Hint = fmt.Sprintf("Set providers.%s.api_key or AUDIODIGEST_%s_API_KEY.", provider, strings.ToUpper(provider))
		return item
	}
	item.Status = StatusPass
	item.Message = "Configured."
	return item
}

func (c *Checker) checkUploadDir(dir string) Item {
	item := Item{ID: "upload_dir", Name: "Upload directory"}
	if strings.TrimSpace(dir) == "" {
		item.Status = StatusFail
		item.Message = "Upload directory is empty."
		return item
	}
	if err := c.mkdirAll(dir, 0o755); err != nil {
		item.Status = StatusFail
		item.Message = fmt.Sprintf("Cannot create upload directory: %s", dir)
		item.Hint = "Choose a writable location for basic_config.upload_dir."
		return item
	}
	f, err := c.createTemp(dir, ".write-check-*")
	if err != nil {
		item.Status = StatusFail
		item.Message = fmt.Sprintf("Upload directory is not writable: %s", dir)
		item.Hint = "Choose a writable location for basic_config.upload_dir."
		return item
	}
	name := f.Name()
	_ = f.Close()
	_ = c.remove(name)
	item.Status = StatusPass
	item.Message = fmt.Sprintf("Writable directory: %s", dir)
	return item
}

func checkEngine(ctx context.Context, id, name string, e Engine) Item {
	item := Item{ID: "engine_" + id, Name: name}
	if e == nil {
		item.Status = StatusFail
		item.Message = "Not configured."
		return item
	}
	if err := e.Ready(ctx); err != nil {
		item.Status = StatusFail
		item.Message = err.Error()
		return item
	}
	item.Status = StatusPass
	item.Message = "Loaded successfully."
	return item
}

// Write prints the report, one item per line with hints indented below.
func (r Report) Write(w io.Writer) {
	for _, item := range r.Items {
		fmt.Fprintf(w, "[%s] %s: %s\n", strings.ToUpper(string(item.Status)), item.Name, item.Message)
		if item.Status == StatusFail && item.Hint != "" {
			fmt.Fprintf(w, "       %s\n", item.Hint)
		}
	}
	if r.HasFailures {
		fmt.Fprintln(w, "\nSome checks failed; fix them before processing audio.")
		return
	}
	fmt.Fprintln(w, "\nInstallation looks good.")
}
