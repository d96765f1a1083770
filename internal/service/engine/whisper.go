package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"audiodigest/internal/config"
)

// CommandRunner abstracts process execution for testability.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

type execRunner struct{}

// Run executes one command and returns its stdout. Stderr is folded into the error.
func (execRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("command '%s' failed: %w\nstderr: %s", name, err, msg)
		}
		return "", fmt.Errorf("command '%s' failed: %w", name, err)
	}
	return stdout.String(), nil
}

// WhisperCLI transcribes through a whisper.cpp binary, optionally
// resampling the input with ffmpeg first.
type WhisperCLI struct {
	binaryPath string
	ffmpegPath string
	modelPath  string
	language   string
	threads    int
	runner     CommandRunner
}

func newWhisperCLI(cfg config.TranscriberConfig, runner CommandRunner) *WhisperCLI {
	if runner == nil {
		runner = execRunner{}
	}
	threads := cfg.Threads
	if threads <= 0 {
		threads = 4
	}
	lang := cfg.Language
	if lang == "" {
		lang = "auto"
	}
	return &WhisperCLI{
		binaryPath: cfg.BinaryPath,
		ffmpegPath: cfg.FFmpegPath,
		modelPath:  cfg.ModelPath,
		language:   lang,
		threads:    threads,
		runner:     runner,
	}
}

// NewWhisperCLI checks that the binary and model weights exist before
// returning the engine.
func NewWhisperCLI(cfg config.TranscriberConfig) (*WhisperCLI, error) {
	if _, err := exec.LookPath(cfg.BinaryPath); err != nil {
		return nil, fmt.Errorf("whisper binary not found: %w", err)
	}
	if cfg.FFmpegPath != "" {
		if _, err := exec.LookPath(cfg.FFmpegPath); err != nil {
			return nil, fmt.Errorf("ffmpeg binary not found: %w", err)
		}
	}
	if cfg.ModelPath == "" {
		return nil, errors.New("whisper model_path is required")
	}
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("whisper model: %w", err)
	}
	return newWhisperCLI(cfg, nil), nil
}

func (w *WhisperCLI) Transcribe(ctx context.Context, audioPath string) (string, error) {
	input := audioPath
	if w.ffmpegPath != "" {
		tempDir, err := os.MkdirTemp("", "audiodigest-*")
		if err != nil {
			return "", fmt.Errorf("create temp dir: %w", err)
		}
		defer os.RemoveAll(tempDir)

		wavPath := filepath.Join(tempDir, "audio.wav")
		if _, err := w.runner.Run(ctx, w.ffmpegPath,
			"-y", "-i", audioPath,
			"-vn", "-ac", "1", "-ar", "16000", "-c:a", "pcm_s16le",
			wavPath,
		); err != nil {
			return "", fmt.Errorf("ffmpeg preprocess: %w", err)
		}
		input = wavPath
	}

	// -nt: no timestamps, -np: no progress prints, leaving only text on stdout
	out, err := w.runner.Run(ctx, w.binaryPath,
		"-m", w.modelPath,
		"-f", input,
		"-l", w.language,
		"-t", strconv.Itoa(w.threads),
		"-nt", "-np",
	)
	if err != nil {
		return "", fmt.Errorf("whisper transcribe: %w", err)
	}
	return cleanWhisperOutput(out), nil
}

// cleanWhisperOutput joins output lines and drops whole-line markers such
// as [BLANK_AUDIO] that whisper emits for silence.
func cleanWhisperOutput(out string) string {
	var parts []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if (strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]")) ||
			(strings.HasPrefix(line, "(") && strings.HasSuffix(line, ")")) {
			continue
		}
		parts = append(parts, line)
	}
	return strings.Join(parts, " ")
}
