package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"audiodigest/internal/pipeline"
	"audiodigest/internal/service/engine"
)

type fakeEngines struct {
	transcript string
	summary    string
	err        error
}

func (f fakeEngines) Transcribe(ctx context.Context, audioPath string) (string, error) {
	return f.transcript, f.err
}

func (f fakeEngines) Summarize(ctx context.Context, text string, bounds engine.LengthBounds) (string, error) {
	return f.summary, nil
}

func newTestDigester(engines fakeEngines, out io.Writer) *digester {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	p := pipeline.New(
		engine.NewTranscriptionAdapter(engine.Eager[engine.Transcriber](engines), engine.AdapterOptions{}),
		engine.NewSummarizationAdapter(engine.Eager[engine.Summarizer](engines), engine.AdapterOptions{}),
		engine.QuarterBounds, nil, logger, pipeline.Options{},
	)
	return &digester{pipeline: p, out: out}
}

func writeInput(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("ID3 audio"), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}
	return path
}

func TestDigestWritesSummaryFile(t *testing.T) {
	var out bytes.Buffer
	d := newTestDigester(fakeEngines{transcript: "the meeting covered budgets", summary: "budgets"}, &out)
	input := writeInput(t, t.TempDir(), "meeting.mp3")

	outPath, err := d.digest(context.Background(), input)
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	if want := strings.TrimSuffix(input, ".mp3") + "_summary.txt"; outPath != want {
		t.Fatalf("unexpected output path %s, want %s", outPath, want)
	}
	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("read digest: %v", err)
	}
	want := "--- Original Transcript ---\nthe meeting covered budgets\n\n--- Summarized Text ---\nbudgets"
	if string(data) != want {
		t.Fatalf("unexpected digest %q", string(data))
	}
	if _, err := os.Stat(input); err != nil {
		t.Fatalf("input must be kept: %v", err)
	}
	if !strings.Contains(out.String(), "[ 25%] Transcribing audio...") || !strings.Contains(out.String(), "[100%] Done") {
		t.Fatalf("unexpected progress output:\n%s", out.String())
	}
}

func TestDigestReportsFailure(t *testing.T) {
	d := newTestDigester(fakeEngines{err: errors.New("decoder crashed")}, io.Discard)
	input := writeInput(t, t.TempDir(), "broken.wav")

	_, err := d.digest(context.Background(), input)
	if err == nil || !strings.Contains(err.Error(), "Failed to transcribe audio.") || !strings.Contains(err.Error(), "decoder crashed") {
		t.Fatalf("unexpected error %v", err)
	}
	if _, err := os.Stat(summaryPath(input)); !os.IsNotExist(err) {
		t.Fatalf("no digest expected after failure")
	}
}

func TestIsAudioFile(t *testing.T) {
	cases := map[string]bool{
		"talk.mp3":         true,
		"TALK.WAV":         true,
		"notes.txt":        false,
		"talk_summary.txt": false,
		"archive.mp3.part": false,
		"voice.m4a":        true,
	}
	for name, want := range cases {
		if got := isAudioFile(name); got != want {
			t.Fatalf("isAudioFile(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestWatchDigestsNewFiles(t *testing.T) {
	dir := t.TempDir()
	d := newTestDigester(fakeEngines{transcript: "hello there", summary: "hello"}, io.Discard)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.watch(ctx, dir, 1) }()

	// give the watcher time to register
	time.Sleep(100 * time.Millisecond)
	input := writeInput(t, dir, "drop.mp3")
	writeInput(t, dir, "ignored.txt")

	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, err := os.Stat(summaryPath(input)); err == nil {
			break
		}
		if time.Now().After(deadline) {
			cancel()
			t.Fatalf("digest for %s not written", input)
		}
		time.Sleep(20 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("watch: %v", err)
	}
	if _, err := os.Stat(summaryPath(filepath.Join(dir, "ignored.txt"))); !os.IsNotExist(err) {
		t.Fatalf("non-audio files must be ignored")
	}
}

func TestWatchRejectsFile(t *testing.T) {
	d := newTestDigester(fakeEngines{}, io.Discard)
	file := writeInput(t, t.TempDir(), "a.mp3")
	if err := d.watch(context.Background(), file, 1); err == nil {
		t.Fatalf("expected error for non-directory")
	}
}

func TestRunUsage(t *testing.T) {
	var stderr bytes.Buffer
	if code := run([]string{"run"}, io.Discard, &stderr); code != 2 {
		t.Fatalf("unexpected exit code %d", code)
	}
	if !strings.Contains(stderr.String(), "usage: digest") {
		t.Fatalf("usage not printed: %s", stderr.String())
	}
}

func TestRunCheckReportsBrokenInstall(t *testing.T) {
	t.Setenv("AUDIODIGEST_OPENAI_API_KEY", "")
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.json")
	cfg := `{
		"basic_config": {"upload_dir": "uploads"},
		"engines": {
			"transcriber": {"kind": "whisper", "binary_path": "/nonexistent/whisper-cli", "model_path": "models/missing.bin"},
			"summarizer": {"provider": "openai"}
		}
	}`
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	var stdout, stderr bytes.Buffer
	if code := run([]string{"-config", cfgPath, "check"}, &stdout, &stderr); code != 1 {
		t.Fatalf("unexpected exit code %d, stderr: %s", code, stderr.String())
	}
	out := stdout.String()
	for _, want := range []string{
		"[FAIL] whisper: Tool not found: /nonexistent/whisper-cli",
		"[FAIL] Whisper model",
		"[FAIL] openai API key",
		"[PASS] Upload directory",
		"[FAIL] Transcription engine (whisper)",
		"[FAIL] Summarization engine (openai)",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("report missing %q:\n%s", want, out)
		}
	}
}
