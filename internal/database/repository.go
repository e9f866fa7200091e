package database

import (
	"context"

	"arbfee/internal/model"
)

// Repository defines the standard interface for storing scan results.
type Repository interface {
	Migrate(ctx context.Context) error
	SaveScanResult(ctx context.Context, rec model.ScanRecord) error
	ListByRun(ctx context.Context, runID string) ([]model.ScanRecord, error)
}
