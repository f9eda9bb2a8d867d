package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/nregatrack/nrega-sync/internal/db"
	"github.com/nregatrack/nrega-sync/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

var (
	sqliteUpsertDistrict = mustBuildUpsert(db.UpsertConfig{
		Table:        "districts",
		Columns:      []string{"district_code", "district_name", "state_code", "state_name", "created_at", "updated_at"},
		ConflictKeys: []string{"district_code"},
		UpdateCols:   []string{"district_name", "state_name", "updated_at"},
		Returning:    []string{"id"},
		Placeholder:  db.Question,
	})

	sqliteUpsertRecord = mustBuildUpsert(db.UpsertConfig{
		Table:        "district_records",
		Columns:      append(recordColumns(), "updated_at"),
		ConflictKeys: []string{"district_id", "fin_year", "month"},
		Returning:    []string{"id"},
		Placeholder:  db.Question,
	})
)

// NewSQLite opens a SQLite database at the given DSN and configures WAL mode.
// All access goes through a single connection, which serializes writers and
// keeps ":memory:" databases alive for the life of the store.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS districts (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	district_code TEXT NOT NULL UNIQUE,
	district_name TEXT NOT NULL,
	state_code    TEXT NOT NULL,
	state_name    TEXT NOT NULL,
	created_at    DATETIME NOT NULL,
	updated_at    DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS district_records (
	id                           INTEGER PRIMARY KEY AUTOINCREMENT,
	district_id                  INTEGER NOT NULL REFERENCES districts(id) ON DELETE CASCADE,
	fin_year                     TEXT NOT NULL,
	month                        TEXT NOT NULL,
	approved_labour_budget       INTEGER,
	avg_wage_rate                REAL,
	avg_days_employment          INTEGER,
	total_households_worked      INTEGER,
	total_individuals_worked     INTEGER,
	total_active_job_cards       INTEGER,
	total_active_workers         INTEGER,
	total_job_cards_issued       INTEGER,
	total_workers                INTEGER,
	hhs_completed_100_days       INTEGER,
	sc_persondays                INTEGER,
	sc_workers                   INTEGER,
	st_persondays                INTEGER,
	st_workers                   INTEGER,
	women_persondays             INTEGER,
	differently_abled_worked     INTEGER,
	total_works_completed        INTEGER,
	total_works_ongoing          INTEGER,
	total_works_takenup          INTEGER,
	gps_with_nil_exp             INTEGER,
	total_expenditure            REAL,
	wages                        REAL,
	material_wages               REAL,
	admin_expenditure            REAL,
	persondays_central_liability INTEGER,
	percent_category_b_works     INTEGER,
	percent_agri_expenditure     REAL,
	percent_nrm_expenditure      REAL,
	percent_payments_15_days     REAL,
	remarks                      TEXT,
	updated_at                   DATETIME NOT NULL,
	UNIQUE (district_id, fin_year, month)
);

CREATE TABLE IF NOT EXISTS sync_log (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	sync_type       TEXT NOT NULL,
	status          TEXT NOT NULL,
	started_at      DATETIME NOT NULL,
	completed_at    DATETIME,
	records_added   INTEGER NOT NULL DEFAULT 0,
	records_updated INTEGER NOT NULL DEFAULT 0,
	error_message   TEXT,
	metadata        TEXT
);

CREATE INDEX IF NOT EXISTS idx_districts_state_name ON districts(state_name);
CREATE INDEX IF NOT EXISTS idx_sync_log_started_at ON sync_log(started_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// UpsertDistrict upserts the district and reads the stored row back so that
// timestamps come through the DATETIME column conversion.
func (s *SQLiteStore) UpsertDistrict(ctx context.Context, key model.DistrictKey) (*model.District, error) {
	op := "upsert district " + key.Code
	now := time.Now().UTC()

	var id int64
	if err := s.db.QueryRowContext(ctx, sqliteUpsertDistrict,
		key.Code, key.Name, key.StateCode, key.StateName, now, now).Scan(&id); err != nil {
		return nil, &PersistenceError{Op: op, Err: err}
	}
	d, err := scanDistrict(s.db.QueryRowContext(ctx,
		"SELECT "+districtSelectList+" FROM districts WHERE id = ?", id))
	if err != nil {
		return nil, &PersistenceError{Op: op, Err: err}
	}
	return d, nil
}

// UpsertDistrictRecord checks for the row and upserts it in one transaction.
// The single connection makes the check and the write atomic.
func (s *SQLiteStore) UpsertDistrictRecord(ctx context.Context, districtID int64, rec *model.NormalizedRecord) (*model.DistrictRecord, bool, error) {
	fail := func(err error) (*model.DistrictRecord, bool, error) {
		return nil, false, &PersistenceError{Op: "upsert district record", Err: err}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fail(err)
	}
	defer tx.Rollback() //nolint:errcheck

	var exists int
	err = tx.QueryRowContext(ctx,
		`SELECT 1 FROM district_records WHERE district_id = ? AND fin_year = ? AND month = ?`,
		districtID, rec.FinYear, rec.Month,
	).Scan(&exists)
	created := errors.Is(err, sql.ErrNoRows)
	if err != nil && !created {
		return fail(err)
	}

	now := time.Now().UTC()
	out := &model.DistrictRecord{
		DistrictID: districtID,
		FinYear:    rec.FinYear,
		Month:      rec.Month,
		Metrics:    rec.Metrics,
		Remarks:    rec.Remarks,
		UpdatedAt:  now,
	}
	args := append(recordArgs(districtID, rec), now)
	if err := tx.QueryRowContext(ctx, sqliteUpsertRecord, args...).Scan(&out.ID); err != nil {
		return fail(err)
	}
	if err := tx.Commit(); err != nil {
		return fail(err)
	}
	return out, created, nil
}

func (s *SQLiteStore) GetDistrict(ctx context.Context, code string) (*model.District, error) {
	d, err := scanDistrict(s.db.QueryRowContext(ctx,
		"SELECT "+districtSelectList+" FROM districts WHERE district_code = ?", code))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &PersistenceError{Op: "get district " + code, Err: err}
	}
	return d, nil
}

func (s *SQLiteStore) GetDistrictRecord(ctx context.Context, districtID int64, finYear, month string) (*model.DistrictRecord, error) {
	r, err := scanRecord(s.db.QueryRowContext(ctx,
		"SELECT "+recordSelectList()+" FROM district_records WHERE district_id = ? AND fin_year = ? AND month = ?",
		districtID, finYear, month))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &PersistenceError{Op: "get district record", Err: err}
	}
	return r, nil
}

func (s *SQLiteStore) DistinctStateNames(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT state_name FROM districts ORDER BY state_name")
	if err != nil {
		return nil, &PersistenceError{Op: "list state names", Err: err}
	}
	defer rows.Close() //nolint:errcheck

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

func (s *SQLiteStore) CountDistrictRecords(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT count(*) FROM district_records").Scan(&n); err != nil {
		return 0, &PersistenceError{Op: "count district records", Err: err}
	}
	return n, nil
}

func (s *SQLiteStore) StartSyncRun(ctx context.Context, syncType string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_log (sync_type, status, started_at) VALUES (?, ?, ?)`,
		syncType, string(model.SyncInProgress), time.Now().UTC(),
	)
	if err != nil {
		return 0, eris.Wrapf(err, "synclog: start %s run", syncType)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, eris.Wrap(err, "synclog: last insert id")
	}
	return id, nil
}

func (s *SQLiteStore) CompleteSyncRun(ctx context.Context, id int64, result *model.SyncResult) error {
	metaJSON, err := marshalMetadata(result)
	if err != nil {
		return err
	}
	added, updated := resultCounts(result)

	res, err := s.db.ExecContext(ctx,
		`UPDATE sync_log SET status = ?, completed_at = ?, records_added = ?, records_updated = ?, metadata = ?
		 WHERE id = ? AND status = ?`,
		string(model.SyncSuccess), time.Now().UTC(), added, updated, nullableText(metaJSON), id, string(model.SyncInProgress),
	)
	if err != nil {
		return eris.Wrapf(err, "synclog: complete run %d", id)
	}
	return checkTransition(res, "complete", id)
}

func (s *SQLiteStore) FailSyncRun(ctx context.Context, id int64, errMsg string, result *model.SyncResult) error {
	metaJSON, err := marshalMetadata(result)
	if err != nil {
		return err
	}
	added, updated := resultCounts(result)

	res, err := s.db.ExecContext(ctx,
		`UPDATE sync_log SET status = ?, completed_at = ?, records_added = ?, records_updated = ?, error_message = ?, metadata = ?
		 WHERE id = ? AND status = ?`,
		string(model.SyncFailed), time.Now().UTC(), added, updated, errMsg, nullableText(metaJSON), id, string(model.SyncInProgress),
	)
	if err != nil {
		return eris.Wrapf(err, "synclog: fail run %d", id)
	}
	return checkTransition(res, "fail", id)
}

func (s *SQLiteStore) ListSyncRuns(ctx context.Context, limit int) ([]model.SyncRun, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+syncRunSelectList+" FROM sync_log ORDER BY started_at DESC, id DESC LIMIT ?", limit)
	if err != nil {
		return nil, eris.Wrap(err, "synclog: list runs")
	}
	defer rows.Close() //nolint:errcheck

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

func (s *SQLiteStore) LatestSyncRun(ctx context.Context) (*model.SyncRun, error) {
	run, err := scanSyncRun(s.db.QueryRowContext(ctx,
		"SELECT "+syncRunSelectList+" FROM sync_log ORDER BY started_at DESC, id DESC LIMIT 1"))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "synclog: latest run")
	}
	return run, nil
}

func checkTransition(res sql.Result, action string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "synclog: rows affected")
	}
	if n == 0 {
		return fmt.Errorf("synclog: %s run %d: %w", action, id, ErrRunNotInProgress)
	}
	return nil
}

// nullableText stores JSON as TEXT, or NULL when empty.
func nullableText(b []byte) any {
	if b == nil {
		return nil
	}
	return string(b)
}
