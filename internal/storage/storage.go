package storage

import (
	"github.com/JainamDedhia/Eduthon/internal/material"
)

// RecordKey builds the persistence key for a cached material. The naming
// convention is shared with the mobile clients so both sides resolve the
// same entry.
func RecordKey(classID, name string) string {
	return "offline_file_" + classID + "_" + name
}

// RecordReadRepository provides read access to offline material records.
type RecordReadRepository interface {
	Exists(classID, name string) (bool, error)
	Get(classID, name string) (*material.Record, error)
	ListForClass(classID string) ([]material.Record, error)
	ListAll() ([]material.Record, error)
}

// RecordWriteRepository mutates offline material records.
type RecordWriteRepository interface {
	Create(rec material.Record) error
	Delete(classID, name string) error
	UpdateCompressionInfo(classID, name string, compressedSize, originalSize int64) error
}

// RecordRepository is the combined read/write store. It is the single source
// of truth for "does this material exist locally".
type RecordRepository interface {
	RecordReadRepository
	RecordWriteRepository
}
