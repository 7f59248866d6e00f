// Package loader builds an index from directories of metadata files.
package loader

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/frederic-klein/stickler/internal/index"
	"github.com/frederic-klein/stickler/internal/logging"
	"github.com/frederic-klein/stickler/internal/spec"
)

// DefaultWorkers is the number of metadata files parsed concurrently.
const DefaultWorkers = 4

// Loader scans spec directories and parses the metadata files in them.
type Loader struct {
	workers int
	logger  *slog.Logger
}

// NewLoader creates a loader that parses up to workers files at once.
func NewLoader(workers int, logger *slog.Logger) *Loader {
	if workers < 1 {
		workers = DefaultWorkers
	}
	return &Loader{
		workers: workers,
		logger:  logging.Default(logger).With("component", "loader"),
	}
}

// Load builds an index from the metadata files directly beneath each dir.
//
// Files that cannot be read or parsed are skipped and logged. Missing
// directories contribute nothing. Records keep directory order, then file
// name order. The index's modification time is the newest directory mtime.
func (l *Loader) Load(ctx context.Context, dirs []string) (*index.Index, error) {
	start := time.Now()

	if len(dirs) == 0 {
		l.logger.Warn("no spec directories configured")
		return index.Empty(), nil
	}

	files, modified := l.scan(dirs)

	results := make([]*spec.Record, len(files))
	var skipped atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.workers)
	for i, path := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rec, err := ParseFile(path)
			if err != nil {
				l.logger.Warn("skipping spec file", "path", path, "error", err)
				skipped.Add(1)
				return nil
			}
			results[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("loading specs: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("loading specs: %w", err)
	}

	records := make([]*spec.Record, 0, len(results))
	for _, rec := range results {
		if rec != nil {
			records = append(records, rec)
		}
	}

	l.logger.Debug("index loaded",
		"dirs", len(dirs),
		"specs", len(records),
		"skipped", skipped.Load(),
		"duration", time.Since(start))

	return index.New(records, modified, dirs), nil
}

// scan lists the metadata files of every directory and returns the newest
// directory modification time.
func (l *Loader) scan(dirs []string) ([]string, time.Time) {
	var files []string
	var modified time.Time

	for _, dir := range dirs {
		info, err := os.Stat(dir)
		if err != nil {
			l.logger.Warn("spec directory unavailable", "dir", dir, "error", err)
			continue
		}
		if !info.IsDir() {
			l.logger.Warn("spec path is not a directory", "dir", dir)
			continue
		}
		if info.ModTime().After(modified) {
			modified = info.ModTime()
		}

		// ReadDir returns entries sorted by file name.
		entries, err := os.ReadDir(dir)
		if err != nil {
			l.logger.Warn("reading spec directory", "dir", dir, "error", err)
			continue
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), SpecExt) {
				continue
			}
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}

	return files, modified
}
