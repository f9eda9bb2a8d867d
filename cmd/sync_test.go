//go:build !integration

package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nregatrack/nrega-sync/internal/config"
	"github.com/nregatrack/nrega-sync/internal/model"
	"github.com/nregatrack/nrega-sync/internal/store"
	"github.com/nregatrack/nrega-sync/internal/syncer"
)

func TestBuildRunOpts(t *testing.T) {
	tests := []struct {
		name       string
		args       []string
		states     string
		years      string
		wantStates []string
		wantYears  []string
	}{
		{name: "nothing"},
		{name: "positional", args: []string{"GOA,BIHAR", "2024-2025"}, wantStates: []string{"GOA", "BIHAR"}, wantYears: []string{"2024-2025"}},
		{name: "flags", states: "GOA", years: "2023-2024, 2024-2025", wantStates: []string{"GOA"}, wantYears: []string{"2023-2024", "2024-2025"}},
		{name: "merged and deduped", args: []string{"GOA"}, states: "GOA,KERALA", wantStates: []string{"GOA", "KERALA"}},
		{name: "years only", args: []string{"", "2022-2023"}, wantYears: []string{"2022-2023"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := buildRunOpts(tt.args, tt.states, tt.years)
			assert.ElementsMatch(t, tt.wantStates, opts.States)
			assert.ElementsMatch(t, tt.wantYears, opts.FinYears)
			assert.Empty(t, opts.SyncType)
		})
	}
}

func sampleSummary() *syncer.Summary {
	return &syncer.Summary{
		RunID:    7,
		TraceID:  "trace-1",
		SyncType: syncer.SyncTypePartial,
		FinYears: []string{"2024-2025"},
		States:   []string{"BIHAR", "GOA"},
		Pairs:    2,
		Added:    10,
		Updated:  3,
		FailedPairs: []syncer.PairFailure{
			{Pair: syncer.Pair{State: "BIHAR", FinYear: "2024-2025"}, Error: "http 502"},
		},
		Duration: 1500 * time.Millisecond,
	}
}

func TestReportRun_Success(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, reportRun(&buf, sampleSummary(), nil))

	out := buf.String()
	assert.Contains(t, out, "run 7 (partial)")
	assert.Contains(t, out, "added:   10")
	assert.Contains(t, out, "FAILED BIHAR 2024-2025: http 502")
}

func TestReportRun_SyncLogWriteFailureIsWarning(t *testing.T) {
	var buf bytes.Buffer
	err := reportRun(&buf, sampleSummary(), &syncer.RunLogError{RunID: 7, Status: model.SyncSuccess, Err: errors.New("conn reset")})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "run 7")
}

func TestReportRun_Failure(t *testing.T) {
	var buf bytes.Buffer
	err := reportRun(&buf, sampleSummary(), errors.New("discover states: http 503"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sync")
	assert.Contains(t, err.Error(), "http 503")
	assert.NotEmpty(t, buf.String())
}

func TestReportRun_NoSummary(t *testing.T) {
	var buf bytes.Buffer
	err := reportRun(&buf, nil, errors.New("start sync run"))
	require.Error(t, err)
	assert.Empty(t, buf.String())
}

func TestRunSync_SQLiteEndToEnd(t *testing.T) {
	var requests atomic.Int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		assert.Equal(t, "MAHARASHTRA", r.URL.Query().Get("filters[state_name]"))
		assert.Equal(t, "2024-2025", r.URL.Query().Get("filters[fin_year]"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"total":2,"records":[
			{"district_code":"1819","district_name":"PUNE","state_code":"18","state_name":"MAHARASHTRA","fin_year":"2024-2025","month":"Dec","Approved_Labour_Budget":"1000"},
			{"district_code":"1819","district_name":"PUNE","state_code":"18","state_name":"MAHARASHTRA","fin_year":"2024-2025","month":"Nov","Approved_Labour_Budget":"NA"}
		]}`)
	}))
	defer upstream.Close()

	dbPath := filepath.Join(t.TempDir(), "nrega.db")
	prevCfg, prevMigrate := cfg, syncMigrate
	t.Cleanup(func() { cfg, syncMigrate = prevCfg, prevMigrate })
	cfg = &config.Config{
		Store:  config.StoreConfig{Driver: "sqlite", DatabaseURL: dbPath},
		Source: config.SourceConfig{BaseURL: upstream.URL, APIKey: "test", PageSize: 100, TimeoutSecs: 5},
		Sync:   config.SyncConfig{Workers: 1},
	}
	syncMigrate = true

	opts := syncer.RunOpts{States: []string{"MAHARASHTRA"}, FinYears: []string{"2024-2025"}}

	var buf bytes.Buffer
	require.NoError(t, runSync(context.Background(), &buf, opts))
	assert.Contains(t, buf.String(), "added:   2")

	// A second identical run only updates.
	buf.Reset()
	require.NoError(t, runSync(context.Background(), &buf, opts))
	assert.Contains(t, buf.String(), "added:   0   updated: 2")
	assert.Equal(t, int32(2), requests.Load())

	st, err := store.NewSQLite(dbPath)
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	n, err := st.CountDistrictRecords(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	runs, err := st.ListSyncRuns(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	for _, r := range runs {
		assert.Equal(t, model.SyncSuccess, r.Status)
		assert.Equal(t, syncer.SyncTypePartial, r.SyncType)
	}
}

func TestInitStore_UnknownDriver(t *testing.T) {
	prev := cfg
	t.Cleanup(func() { cfg = prev })
	cfg = &config.Config{Store: config.StoreConfig{Driver: "mongo"}}

	_, err := initStore(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store driver")
}

func TestInitStore_PostgresRequiresURL(t *testing.T) {
	prev := cfg
	t.Cleanup(func() { cfg = prev })
	cfg = &config.Config{Store: config.StoreConfig{Driver: "postgres"}}

	_, err := initStore(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database URL is required")
}
