// Package ingest feeds a directory of saved report images through the
// analysis queue.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joseph-ayodele/labreport/internal/async"
	"github.com/joseph-ayodele/labreport/internal/entity"
)

// FileResult is the outcome of one file in a batch.
type FileResult struct {
	Path   string                 `json:"path"`
	Result *entity.PipelineResult `json:"result,omitempty"`
	Err    string                 `json:"error,omitempty"`
}

// DirStats summarizes a directory batch.
type DirStats struct {
	Scanned   uint32 `json:"scanned"`
	Matched   uint32 `json:"matched"`
	Succeeded uint32 `json:"succeeded"`
	Degraded  uint32 `json:"degraded"`
	Failed    uint32 `json:"failed"`
}

// ScanDirectory walks root and returns the supported files under it in
// lexical order. Unreadable entries are counted as failures and skipped.
func ScanDirectory(root string, skipHidden bool) ([]string, DirStats, error) {
	if strings.TrimSpace(root) == "" {
		return nil, DirStats{}, errors.New("root path is required")
	}

	var (
		paths []string
		stats DirStats
	)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		stats.Scanned++
		if walkErr != nil {
			stats.Failed++
			return nil // continue walking
		}
		if skipHidden && path != root && IsHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !AllowedExt(filepath.Ext(path)) {
			return nil
		}
		stats.Matched++
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, stats, fmt.Errorf("walk: %w", err)
	}
	sort.Strings(paths)
	return paths, stats, nil
}

// AnalyzeDirectory submits every supported file under root to q with the
// same credentials and waits for all results.
func AnalyzeDirectory(ctx context.Context, q async.Queue, root string, creds entity.Credentials, skipHidden bool, logger *slog.Logger) ([]FileResult, DirStats, error) {
	if logger == nil {
		logger = slog.Default()
	}
	paths, stats, err := ScanDirectory(root, skipHidden)
	if err != nil {
		return nil, stats, err
	}
	logger.Info("ingest.dir.scanned", "root", root, "matched", stats.Matched)

	pending := make([]<-chan entity.PipelineResult, len(paths))
	for i, p := range paths {
		pending[i] = q.Submit(ctx, entity.AnalysisRequest{ImagePath: p, Credentials: creds})
	}

	results := make([]FileResult, 0, len(paths))
	for i, ch := range pending {
		res := <-ch
		fr := FileResult{Path: paths[i], Result: &res}
		switch {
		case !res.OK():
			stats.Failed++
			fr.Err = res.Failure.Message
		case res.Degraded:
			stats.Succeeded++
			stats.Degraded++
		default:
			stats.Succeeded++
		}
		results = append(results, fr)
	}

	logger.Info("ingest.dir.done",
		"root", root,
		"succeeded", stats.Succeeded,
		"degraded", stats.Degraded,
		"failed", stats.Failed,
	)
	return results, stats, nil
}
