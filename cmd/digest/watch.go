package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// settleDelay gives writers a moment to finish before the file is read.
const settleDelay = 500 * time.Millisecond

// watch digests every audio file created in dir until ctx ends. At most
// maxConcurrent files are processed at once.
func (d *digester) watch(ctx context.Context, dir string, maxConcurrent int) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("stat watch dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("add watch path: %w", err)
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	sem := make(chan struct{}, maxConcurrent)
	var wg sync.WaitGroup
	defer wg.Wait()

	slog.Info("watching for audio files", "dir", dir, "max_concurrent", maxConcurrent)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if !event.Has(fsnotify.Create) || !isAudioFile(event.Name) {
				continue
			}
			slog.Info("new audio detected", "file", event.Name)
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return nil
			}
			wg.Add(1)
			go func(path string) {
				defer wg.Done()
				defer func() { <-sem }()
				select {
				case <-time.After(settleDelay):
				case <-ctx.Done():
					return
				}
				d.report(ctx, path)
			}(event.Name)
		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			slog.Error("watcher error", "error", err)
		}
	}
}
