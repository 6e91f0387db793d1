package material

import (
	"time"
)

// Material is a single remote document shared by a teacher within a class,
// as advertised by the class directory.
type Material struct {
	Name       string `json:"name"`
	URL        string `json:"url"`
	UploadedAt string `json:"uploadedAt,omitempty"`
}

// Record tracks one locally cached copy of a material. The pair
// (ClassID, Name) is the unique key among live records.
type Record struct {
	ClassID             string    `json:"class_id"`
	Name                string    `json:"material_name"`
	LocalPath           string    `json:"local_path"`
	SourceURL           string    `json:"source_url,omitempty"`
	OriginalSizeBytes   int64     `json:"original_size_bytes"`
	CompressedSizeBytes int64     `json:"compressed_size_bytes"`
	IsCompressed        bool      `json:"is_compressed"`
	SavedAt             time.Time `json:"saved_at"`
}

// SpaceSaved returns the bytes saved by compression for this record.
// A record stored uncompressed contributes zero.
func (r *Record) SpaceSaved() int64 {
	if !r.IsCompressed {
		return 0
	}

	saved := r.OriginalSizeBytes - r.CompressedSizeBytes
	if saved < 0 {
		return 0
	}

	return saved
}

// CompressionRatio returns (original - compressed) / original, or 0 for
// empty originals.
func (r *Record) CompressionRatio() float64 {
	if r.OriginalSizeBytes == 0 {
		return 0
	}

	return float64(r.OriginalSizeBytes-r.CompressedSizeBytes) / float64(r.OriginalSizeBytes)
}

// Class is a class document as held by the external directory service.
type Class struct {
	ID          string     `json:"id"`
	ClassName   string     `json:"className"`
	Description string     `json:"description"`
	ClassCode   string     `json:"classCode"`
	TeacherID   string     `json:"teacherId"`
	Students    []string   `json:"students"`
	Materials   []Material `json:"materials"`
}

// HasStudent reports whether userID is already a member of the class.
func (c *Class) HasStudent(userID string) bool {
	for _, id := range c.Students {
		if id == userID {
			return true
		}
	}

	return false
}

// ClassSnapshot is one observation of a class document, produced by the
// directory change subscription.
type ClassSnapshot struct {
	Class      Class
	ObservedAt time.Time
}

// Stats summarizes the offline store.
type Stats struct {
	TotalFiles                       int   `json:"total_files"`
	CompressedFiles                  int   `json:"compressed_files"`
	TotalSpaceUsed                   int64 `json:"total_space_used"`
	EstimatedSpaceWithoutCompression int64 `json:"estimated_space_without_compression"`
	SpaceSaved                       int64 `json:"space_saved"`
}
