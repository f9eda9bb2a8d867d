// Package store persists districts, district-month records and the sync log.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/nregatrack/nrega-sync/internal/model"
)

// ErrRunNotInProgress is returned when a sync run is moved to a terminal
// status but the row does not exist or is already terminal.
var ErrRunNotInProgress = errors.New("store: sync run is not in progress")

// PersistenceError reports a failed store operation.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Store defines the persistence interface for the sync pipeline.
type Store interface {
	// Districts and records
	UpsertDistrict(ctx context.Context, key model.DistrictKey) (*model.District, error)
	UpsertDistrictRecord(ctx context.Context, districtID int64, rec *model.NormalizedRecord) (*model.DistrictRecord, bool, error)
	GetDistrict(ctx context.Context, code string) (*model.District, error)
	GetDistrictRecord(ctx context.Context, districtID int64, finYear, month string) (*model.DistrictRecord, error)
	DistinctStateNames(ctx context.Context) ([]string, error)
	CountDistrictRecords(ctx context.Context) (int64, error)

	SyncLog

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// SyncLog records one row per sync run. A run moves from in_progress to
// exactly one terminal status.
type SyncLog interface {
	StartSyncRun(ctx context.Context, syncType string) (int64, error)
	CompleteSyncRun(ctx context.Context, id int64, result *model.SyncResult) error
	FailSyncRun(ctx context.Context, id int64, errMsg string, result *model.SyncResult) error
	ListSyncRuns(ctx context.Context, limit int) ([]model.SyncRun, error)
	LatestSyncRun(ctx context.Context) (*model.SyncRun, error)
}

// DefaultListLimit caps ListSyncRuns when no limit is given.
const DefaultListLimit = 20

type scannable interface {
	Scan(dest ...any) error
}

// recordColumns lists the district_records columns written by an upsert, in
// argument order.
func recordColumns() []string {
	cols := []string{"district_id", "fin_year", "month"}
	cols = append(cols, model.MetricColumns()...)
	return append(cols, "remarks")
}

func recordArgs(districtID int64, rec *model.NormalizedRecord) []any {
	args := make([]any, 0, len(model.MetricFields)+4)
	args = append(args, districtID, rec.FinYear, rec.Month)
	for _, f := range model.MetricFields {
		args = append(args, f.Value(&rec.Metrics))
	}
	return append(args, rec.Remarks)
}

// recordSelectList is the column list read back by scanRecord.
func recordSelectList() string {
	list := "id, district_id, fin_year, month"
	for _, c := range model.MetricColumns() {
		list += ", " + c
	}
	return list + ", remarks, updated_at"
}

func scanRecord(row scannable) (*model.DistrictRecord, error) {
	var r model.DistrictRecord
	dest := []any{&r.ID, &r.DistrictID, &r.FinYear, &r.Month}
	for _, f := range model.MetricFields {
		dest = append(dest, f.ScanDest(&r.Metrics))
	}
	dest = append(dest, &r.Remarks, &r.UpdatedAt)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	return &r, nil
}

const districtSelectList = "id, district_code, district_name, state_code, state_name, created_at, updated_at"

func scanDistrict(row scannable) (*model.District, error) {
	var d model.District
	if err := row.Scan(&d.ID, &d.Code, &d.Name, &d.StateCode, &d.StateName, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	return &d, nil
}

const syncRunSelectList = "id, sync_type, status, started_at, completed_at, records_added, records_updated, error_message, metadata"

func resultCounts(result *model.SyncResult) (int64, int64) {
	if result == nil {
		return 0, 0
	}
	return result.RecordsAdded, result.RecordsUpdated
}
