package sqlite

import (
	"context"
	"database/sql"

	"github.com/JainamDedhia/Eduthon/internal/material"
	"github.com/JainamDedhia/Eduthon/internal/telemetry"
)

// InstrumentedRecordRepository wraps RecordRepository with telemetry.
type InstrumentedRecordRepository struct {
	repo      *RecordRepository
	telemetry *telemetry.Telemetry
}

// NewInstrumentedRecordRepository creates a new instrumented record repository.
func NewInstrumentedRecordRepository(dbConn *sql.DB, tel *telemetry.Telemetry) *InstrumentedRecordRepository {
	return &InstrumentedRecordRepository{
		repo:      NewRecordRepository(dbConn),
		telemetry: tel,
	}
}

func (r *InstrumentedRecordRepository) Exists(classID, name string) (bool, error) {
	var result bool

	var err error

	instrumentedErr := r.telemetry.InstrumentDBOperation(context.Background(), "exists", func(ctx context.Context) error {
		result, err = r.repo.Exists(classID, name)

		return err
	})

	if instrumentedErr != nil {
		return false, instrumentedErr
	}

	return result, nil
}

func (r *InstrumentedRecordRepository) Get(classID, name string) (*material.Record, error) {
	var result *material.Record

	var err error

	instrumentedErr := r.telemetry.InstrumentDBOperation(context.Background(), "get", func(ctx context.Context) error {
		result, err = r.repo.Get(classID, name)

		return err
	})

	if instrumentedErr != nil {
		return nil, instrumentedErr
	}

	return result, nil
}

func (r *InstrumentedRecordRepository) ListForClass(classID string) ([]material.Record, error) {
	var result []material.Record

	var err error

	instrumentedErr := r.telemetry.InstrumentDBOperation(context.Background(), "list_for_class", func(ctx context.Context) error {
		result, err = r.repo.ListForClass(classID)

		return err
	})

	if instrumentedErr != nil {
		return nil, instrumentedErr
	}

	return result, nil
}

func (r *InstrumentedRecordRepository) ListAll() ([]material.Record, error) {
	var result []material.Record

	var err error

	instrumentedErr := r.telemetry.InstrumentDBOperation(context.Background(), "list_all", func(ctx context.Context) error {
		result, err = r.repo.ListAll()

		return err
	})

	if instrumentedErr != nil {
		return nil, instrumentedErr
	}

	return result, nil
}

func (r *InstrumentedRecordRepository) Create(rec material.Record) error {
	return r.telemetry.InstrumentDBOperation(context.Background(), "create", func(ctx context.Context) error {
		return r.repo.Create(rec)
	})
}

func (r *InstrumentedRecordRepository) Delete(classID, name string) error {
	return r.telemetry.InstrumentDBOperation(context.Background(), "delete", func(ctx context.Context) error {
		return r.repo.Delete(classID, name)
	})
}

func (r *InstrumentedRecordRepository) UpdateCompressionInfo(classID, name string, compressedSize, originalSize int64) error {
	return r.telemetry.InstrumentDBOperation(context.Background(), "update_compression_info", func(ctx context.Context) error {
		return r.repo.UpdateCompressionInfo(classID, name, compressedSize, originalSize)
	})
}
