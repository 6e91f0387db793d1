package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/JainamDedhia/Eduthon/internal/material"
	"github.com/JainamDedhia/Eduthon/internal/storage"
)

// RecordRepository stores offline material records in SQLite, one row per
// (class, material) key with a JSON payload.
type RecordRepository struct {
	db *sql.DB
}

func NewRecordRepository(dbConn *sql.DB) *RecordRepository {
	return &RecordRepository{db: dbConn}
}

// Exists reports whether a live record matches the key. A row whose payload
// no longer parses counts as absent, same as Get and the listings, so a
// corrupt entry never blocks a fresh download.
func (r *RecordRepository) Exists(classID, name string) (bool, error) {
	_, err := r.Get(classID, name)

	var notFound *material.NotFoundError
	if errors.As(err, &notFound) {
		return false, nil
	}

	if err != nil {
		return false, err
	}

	return true, nil
}

func (r *RecordRepository) Get(classID, name string) (*material.Record, error) {
	var payload string

	err := r.db.QueryRow(
		`SELECT payload FROM offline_files WHERE record_key = ?`,
		storage.RecordKey(classID, name),
	).Scan(&payload)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, &material.NotFoundError{Kind: "record", ClassID: classID, Name: name}
	}

	if err != nil {
		return nil, err
	}

	var rec material.Record
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		// An unreadable payload is treated as absent rather than fatal.
		return nil, &material.NotFoundError{Kind: "record", ClassID: classID, Name: name}
	}

	return &rec, nil
}

// Create persists a new record, silently overwriting any existing row for
// the same key. The duplicate guard lives in the download pipeline's
// existence check, not here.
func (r *RecordRepository) Create(rec material.Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(`
		INSERT INTO offline_files (record_key, class_id, saved_at, payload)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(record_key) DO UPDATE SET
			class_id = excluded.class_id,
			saved_at = excluded.saved_at,
			payload = excluded.payload
	`, storage.RecordKey(rec.ClassID, rec.Name), rec.ClassID, rec.SavedAt.Format(time.RFC3339Nano), string(payload))

	return err
}

func (r *RecordRepository) ListForClass(classID string) ([]material.Record, error) {
	rows, err := r.db.Query(
		`SELECT payload FROM offline_files WHERE class_id = ? ORDER BY saved_at DESC, record_key`,
		classID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRecords(rows)
}

func (r *RecordRepository) ListAll() ([]material.Record, error) {
	rows, err := r.db.Query(`SELECT payload FROM offline_files ORDER BY saved_at DESC, record_key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRecords(rows)
}

// Delete removes the record for the key. Deleting an absent key is a no-op.
func (r *RecordRepository) Delete(classID, name string) error {
	_, err := r.db.Exec(`DELETE FROM offline_files WHERE record_key = ?`, storage.RecordKey(classID, name))

	return err
}

// UpdateCompressionInfo mutates the stored sizes and marks the record
// compressed. Legacy path kept for clients that registered the record before
// compressing.
func (r *RecordRepository) UpdateCompressionInfo(classID, name string, compressedSize, originalSize int64) error {
	rec, err := r.Get(classID, name)
	if err != nil {
		return err
	}

	rec.CompressedSizeBytes = compressedSize
	rec.OriginalSizeBytes = originalSize
	rec.IsCompressed = true

	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(
		`UPDATE offline_files SET payload = ? WHERE record_key = ?`,
		string(payload), storage.RecordKey(classID, name),
	)

	return err
}

// scanRecords decodes payload rows, skipping any row whose payload fails to
// unmarshal so one corrupt entry cannot poison the whole listing.
func scanRecords(rows *sql.Rows) ([]material.Record, error) {
	var records []material.Record

	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}

		var rec material.Record
		if err := json.Unmarshal([]byte(payload), &rec); err != nil {
			continue
		}

		records = append(records, rec)
	}

	return records, rows.Err()
}
