package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/nregatrack/nrega-sync/internal/db"
	"github.com/nregatrack/nrega-sync/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32
	MinConns int32
}

var (
	pgUpsertDistrict = mustBuildUpsert(db.UpsertConfig{
		Table:        "mgnrega.districts",
		Columns:      []string{"district_code", "district_name", "state_code", "state_name"},
		ConflictKeys: []string{"district_code"},
		UpdateCols:   []string{"district_name", "state_name"},
		SetExtra:     []string{"updated_at = now()"},
		Returning:    []string{districtSelectList},
	})

	pgUpsertRecord = mustBuildUpsert(db.UpsertConfig{
		Table:        "mgnrega.district_records",
		Columns:      recordColumns(),
		ConflictKeys: []string{"district_id", "fin_year", "month"},
		SetExtra:     []string{"updated_at = now()"},
		Returning:    []string{"id", "updated_at", "(xmax = 0) AS inserted"},
	})
)

func mustBuildUpsert(cfg db.UpsertConfig) string {
	sql, err := db.BuildUpsert(cfg)
	if err != nil {
		panic(err)
	}
	return sql
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresFromPool wraps an existing pool. Close does not close it.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	return MigratePostgres(ctx, s.pool)
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// UpsertDistrict inserts the district or refreshes its names. The stored
// state_code is never changed; callers compare it against key.StateCode.
func (s *PostgresStore) UpsertDistrict(ctx context.Context, key model.DistrictKey) (*model.District, error) {
	row := s.pool.QueryRow(ctx, pgUpsertDistrict, key.Code, key.Name, key.StateCode, key.StateName)
	d, err := scanDistrict(row)
	if err != nil {
		return nil, &PersistenceError{Op: "upsert district " + key.Code, Err: err}
	}
	return d, nil
}

// UpsertDistrictRecord writes one district-month in a single statement and
// reports whether the row was newly created.
func (s *PostgresStore) UpsertDistrictRecord(ctx context.Context, districtID int64, rec *model.NormalizedRecord) (*model.DistrictRecord, bool, error) {
	out := &model.DistrictRecord{
		DistrictID: districtID,
		FinYear:    rec.FinYear,
		Month:      rec.Month,
		Metrics:    rec.Metrics,
		Remarks:    rec.Remarks,
	}
	var inserted bool
	err := s.pool.QueryRow(ctx, pgUpsertRecord, recordArgs(districtID, rec)...).Scan(&out.ID, &out.UpdatedAt, &inserted)
	if err != nil {
		return nil, false, &PersistenceError{Op: "upsert district record", Err: err}
	}
	return out, inserted, nil
}

// GetDistrict returns the district with the given code, or nil if absent.
func (s *PostgresStore) GetDistrict(ctx context.Context, code string) (*model.District, error) {
	d, err := scanDistrict(s.pool.QueryRow(ctx,
		"SELECT "+districtSelectList+" FROM mgnrega.districts WHERE district_code = $1", code))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &PersistenceError{Op: "get district " + code, Err: err}
	}
	return d, nil
}

// GetDistrictRecord returns one district-month, or nil if absent.
func (s *PostgresStore) GetDistrictRecord(ctx context.Context, districtID int64, finYear, month string) (*model.DistrictRecord, error) {
	r, err := scanRecord(s.pool.QueryRow(ctx,
		"SELECT "+recordSelectList()+" FROM mgnrega.district_records WHERE district_id = $1 AND fin_year = $2 AND month = $3",
		districtID, finYear, month))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &PersistenceError{Op: "get district record", Err: err}
	}
	return r, nil
}

// DistinctStateNames returns every known state name in ascending order.
func (s *PostgresStore) DistinctStateNames(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, "SELECT DISTINCT state_name FROM mgnrega.districts ORDER BY state_name")
	if err != nil {
		return nil, &PersistenceError{Op: "list state names", Err: err}
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, &PersistenceError{Op: "scan state name", Err: err}
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, &PersistenceError{Op: "list state names", Err: err}
	}
	return names, nil
}

func (s *PostgresStore) CountDistrictRecords(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, "SELECT count(*) FROM mgnrega.district_records").Scan(&n); err != nil {
		return 0, &PersistenceError{Op: "count district records", Err: err}
	}
	return n, nil
}

// StartSyncRun records the beginning of a sync run and returns its ID.
func (s *PostgresStore) StartSyncRun(ctx context.Context, syncType string) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO mgnrega.sync_log (sync_type, status, started_at)
		 VALUES ($1, 'in_progress', now()) RETURNING id`,
		syncType,
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrapf(err, "synclog: start %s run", syncType)
	}
	return id, nil
}

// CompleteSyncRun marks an in-progress run as successful.
func (s *PostgresStore) CompleteSyncRun(ctx context.Context, id int64, result *model.SyncResult) error {
	metaJSON, err := marshalMetadata(result)
	if err != nil {
		return err
	}
	added, updated := resultCounts(result)

	tag, err := s.pool.Exec(ctx,
		`UPDATE mgnrega.sync_log
		 SET status = 'success', completed_at = now(), records_added = $1, records_updated = $2, metadata = $3
		 WHERE id = $4 AND status = 'in_progress'`,
		added, updated, metaJSON, id,
	)
	if err != nil {
		return eris.Wrapf(err, "synclog: complete run %d", id)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("synclog: complete run %d: %w", id, ErrRunNotInProgress)
	}
	return nil
}

// FailSyncRun marks an in-progress run as failed with an error message.
func (s *PostgresStore) FailSyncRun(ctx context.Context, id int64, errMsg string, result *model.SyncResult) error {
	metaJSON, err := marshalMetadata(result)
	if err != nil {
		return err
	}
	added, updated := resultCounts(result)

	tag, err := s.pool.Exec(ctx,
		`UPDATE mgnrega.sync_log
		 SET status = 'failed', completed_at = now(), records_added = $1, records_updated = $2, error_message = $3, metadata = $4
		 WHERE id = $5 AND status = 'in_progress'`,
		added, updated, errMsg, metaJSON, id,
	)
	if err != nil {
		return eris.Wrapf(err, "synclog: fail run %d", id)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("synclog: fail run %d: %w", id, ErrRunNotInProgress)
	}
	return nil
}

// ListSyncRuns returns the most recent runs first.
func (s *PostgresStore) ListSyncRuns(ctx context.Context, limit int) ([]model.SyncRun, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := s.pool.Query(ctx,
		"SELECT "+syncRunSelectList+" FROM mgnrega.sync_log ORDER BY started_at DESC, id DESC LIMIT $1",
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "synclog: list runs")
	}
	defer rows.Close()

	var runs []model.SyncRun
	for rows.Next() {
		run, err := scanSyncRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "synclog: scan run")
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// LatestSyncRun returns the most recently started run, or nil if none exist.
func (s *PostgresStore) LatestSyncRun(ctx context.Context) (*model.SyncRun, error) {
	run, err := scanSyncRun(s.pool.QueryRow(ctx,
		"SELECT "+syncRunSelectList+" FROM mgnrega.sync_log ORDER BY started_at DESC, id DESC LIMIT 1"))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "synclog: latest run")
	}
	return run, nil
}

func scanSyncRun(row scannable) (*model.SyncRun, error) {
	var (
		r        model.SyncRun
		status   string
		errMsg   *string
		metaJSON []byte
	)
	if err := row.Scan(&r.ID, &r.SyncType, &status, &r.StartedAt, &r.CompletedAt,
		&r.RecordsAdded, &r.RecordsUpdated, &errMsg, &metaJSON); err != nil {
		return nil, err
	}
	r.Status = model.SyncStatus(status)
	if errMsg != nil {
		r.ErrorMessage = *errMsg
	}
	r.Metadata = unmarshalMetadata(metaJSON)
	return &r, nil
}
