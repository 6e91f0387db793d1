package offline

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/JainamDedhia/Eduthon/internal/logctx"
	"github.com/JainamDedhia/Eduthon/internal/material"
	"github.com/JainamDedhia/Eduthon/internal/viewer"
)

// Open restores a cached material to plain bytes in a scratch location and
// hands it to the platform viewer chain. The scratch copy keeps the original
// material name so viewers can detect the file type from its extension, and
// is deleted after ViewerGrace has elapsed.
func (m *Manager) Open(ctx context.Context, classID, name string) error {
	err := m.open(ctx, classID, name)

	status := "success"
	if err != nil {
		status = "error"
	}

	m.tel.RecordOpen(status)

	return err
}

// Export restores the plain bytes of an offline material, decompressing the
// durable copy when its record says it was stored compressed.
func (m *Manager) Export(ctx context.Context, classID, name string) ([]byte, error) {
	logger := logctx.LoggerFromContext(ctx).With("class_id", classID, "material", name)

	rec, err := m.repo.Get(classID, name)
	if err != nil {
		return nil, err
	}

	stored, err := os.ReadFile(rec.LocalPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &material.NotFoundError{Kind: "file", ClassID: classID, Name: name}
		}

		return nil, &material.IOError{Operation: "read_durable", Path: rec.LocalPath, Err: err}
	}

	// The stored IsCompressed flag decides whether to decompress at all;
	// decode failure on a compressed copy falls back to the raw bytes so a
	// corrupt entry degrades instead of crashing the open flow.
	if !rec.IsCompressed {
		return stored, nil
	}

	restored, err := m.codec.Decompress(stored)
	if err != nil {
		logger.Warn("decompression failed, passing stored bytes through", "err", err)

		return stored, nil
	}

	return restored, nil
}

func (m *Manager) open(ctx context.Context, classID, name string) error {
	logger := logctx.LoggerFromContext(ctx).With("class_id", classID, "material", name)

	plain, err := m.Export(ctx, classID, name)
	if err != nil {
		return err
	}

	scratchParent, err := m.openScratchDir()
	if err != nil {
		return err
	}

	scratchPath := filepath.Join(scratchParent, sanitizeName(name))
	if err := os.WriteFile(scratchPath, plain, filePerm); err != nil {
		_ = os.RemoveAll(scratchParent)

		return &material.IOError{Operation: "write_scratch", Path: scratchPath, Err: err}
	}

	// Scheduled regardless of viewer outcome so the scratch copy never
	// outlives its grace period.
	m.scheduleScratchRemoval(scratchParent, logger)

	if err := m.present(ctx, scratchPath); err != nil {
		return err
	}

	logger.Info("material handed to viewer", "path", scratchPath)

	return nil
}

// present walks the viewer chain: the type-specific platform viewer first,
// then any generic fallback. Only when every viewer is unavailable does the
// open flow surface NoViewerError.
func (m *Manager) present(ctx context.Context, path string) error {
	if len(m.viewers) == 0 {
		return &material.NoViewerError{Path: path}
	}

	var lastErr error

	for _, v := range m.viewers {
		lastErr = v.View(ctx, path)
		if lastErr == nil {
			return nil
		}

		if !errors.Is(lastErr, viewer.ErrUnavailable) {
			return &material.IOError{Operation: "launch_viewer", Path: path, Err: lastErr}
		}
	}

	return &material.NoViewerError{Path: path}
}

func (m *Manager) openScratchDir() (string, error) {
	if err := os.MkdirAll(m.scratchDir, dirPerm); err != nil {
		return "", &material.IOError{Operation: "create_scratch_dir", Path: m.scratchDir, Err: err}
	}

	dir, err := os.MkdirTemp(m.scratchDir, "open-")
	if err != nil {
		return "", &material.IOError{Operation: "create_scratch_dir", Path: m.scratchDir, Err: err}
	}

	return dir, nil
}

func (m *Manager) scheduleScratchRemoval(dir string, logger *slog.Logger) {
	time.AfterFunc(m.ViewerGrace, func() {
		if err := os.RemoveAll(dir); err != nil {
			logger.Warn("failed to clean up viewer scratch dir", "dir", dir, "err", err)
		}
	})
}
