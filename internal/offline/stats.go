package offline

import (
	"fmt"

	"github.com/JainamDedhia/Eduthon/internal/material"
)

// Stats folds over every live record to report how much space the offline
// store uses and how much compression is saving. Read-only.
func (m *Manager) Stats() (material.Stats, error) {
	records, err := m.repo.ListAll()
	if err != nil {
		return material.Stats{}, fmt.Errorf("failed to list offline records: %w", err)
	}

	var stats material.Stats

	for i := range records {
		rec := &records[i]

		stats.TotalFiles++
		stats.TotalSpaceUsed += rec.CompressedSizeBytes
		stats.EstimatedSpaceWithoutCompression += rec.OriginalSizeBytes

		if rec.IsCompressed {
			stats.CompressedFiles++
		}

		stats.SpaceSaved += rec.SpaceSaved()
	}

	return stats, nil
}
