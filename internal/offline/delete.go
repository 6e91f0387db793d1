package offline

import (
	"context"
	"fmt"
	"os"

	"github.com/JainamDedhia/Eduthon/internal/logctx"
	"github.com/JainamDedhia/Eduthon/internal/material"
)

// Delete removes the durable copy and its record. Both halves tolerate
// absence, so deleting twice is safe. The file goes first to avoid a window
// where a live record points at a missing file.
func (m *Manager) Delete(ctx context.Context, classID, name string) error {
	err := m.delete(ctx, classID, name)

	status := "success"
	if err != nil {
		status = "error"
	}

	m.tel.RecordDeletion(status)

	return err
}

func (m *Manager) delete(ctx context.Context, classID, name string) error {
	logger := logctx.LoggerFromContext(ctx).With("class_id", classID, "material", name)

	durablePath := m.durablePath(name)

	if err := os.Remove(durablePath); err != nil && !os.IsNotExist(err) {
		return &material.IOError{Operation: "delete_durable", Path: durablePath, Err: err}
	}

	if err := m.repo.Delete(classID, name); err != nil {
		return fmt.Errorf("failed to delete offline record: %w", err)
	}

	logger.Info("removed offline material", "path", durablePath)

	return nil
}
