// Command digest transcribes and summarizes local audio files without the
// HTTP service.
//
//	digest [flags] run <file>...
//	digest [flags] watch <dir>
//	digest [flags] check
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"audiodigest/internal/config"
	"audiodigest/internal/diagnostics"
	"audiodigest/internal/pipeline"
	"audiodigest/internal/service/engine"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("digest", flag.ContinueOnError)
	fs.SetOutput(stderr)
	cfgPath := fs.String("config", os.Getenv("AUDIODIGEST_CONFIG"), "config file (json or yaml)")
	policyName := fs.String("policy", "", "length policy override: proportional or quarter")
	concurrency := fs.Int("concurrency", 1, "files processed at once in watch mode")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: digest [flags] run <file>... | watch <dir> | check")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 || (fs.Arg(0) != "check" && fs.NArg() < 2) {
		fs.Usage()
		return 2
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(stderr, "load config: %v\n", err)
		return 1
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(stderr, nil)))

	name := cfg.Engines.Summarizer.LengthPolicy
	if *policyName != "" {
		name = *policyName
	}
	policy, err := engine.PolicyByName(name)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}
	transcription := engine.NewTranscription(cfg)
	summarization := engine.NewSummarization(cfg)
	// no store: input files stay where they are
	d := &digester{
		pipeline: pipeline.New(transcription, summarization, policy, nil, slog.Default(), pipeline.Options{}),
		out:      stdout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch fs.Arg(0) {
	case "run":
		status := 0
		for _, path := range fs.Args()[1:] {
			outPath, err := d.digest(ctx, path)
			if err != nil {
				fmt.Fprintf(stderr, "%s: %v\n", path, err)
				status = 1
				continue
			}
			fmt.Fprintf(stdout, "\nSummary and full transcript saved to '%s'\n", outPath)
		}
		return status
	case "check":
		report := diagnostics.NewChecker().Run(ctx, cfg, transcription, summarization)
		report.Write(stdout)
		if report.HasFailures {
			return 1
		}
		return 0
	case "watch":
		if err := d.watch(ctx, fs.Arg(1), *concurrency); err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
		return 0
	default:
		fs.Usage()
		return 2
	}
}
