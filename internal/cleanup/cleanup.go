package cleanup

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/JainamDedhia/Eduthon/internal/logctx"
)

// SweepScratch removes scratch entries older than retention. The pipelines
// clean up after themselves on the happy path; the sweeper reclaims work
// files orphaned by crashes or kills.
func SweepScratch(ctx context.Context, scratchDir string, retention time.Duration) error {
	logger := logctx.LoggerFromContext(ctx)
	now := time.Now()

	entries, err := os.ReadDir(scratchDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}

		return err
	}

	for _, entry := range entries {
		path := filepath.Join(scratchDir, entry.Name())

		info, err := entry.Info()
		if err != nil {
			if os.IsNotExist(err) {
				continue // already deleted
			}

			logger.Error("failed to stat scratch entry", "path", path, "err", err)

			return err
		}

		if now.Sub(info.ModTime()) <= retention {
			continue
		}

		if err := os.RemoveAll(path); err != nil {
			logger.Error("failed to delete expired scratch entry", "path", path, "err", err)

			return err
		}

		logger.Info("deleted expired scratch entry", "path", path)
	}

	return nil
}
