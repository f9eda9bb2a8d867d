//go:build !integration

package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nregatrack/nrega-sync/internal/model"
)

func TestFormatStatusEntries_Empty(t *testing.T) {
	var buf bytes.Buffer
	formatStatusEntries(&buf, nil)

	output := buf.String()
	assert.Contains(t, output, "TYPE")
	assert.Contains(t, output, "STATUS")
	assert.Contains(t, output, "STARTED")
}

func TestFormatStatusEntries_Completed(t *testing.T) {
	started := time.Date(2025, 1, 15, 2, 0, 0, 0, time.UTC)
	completed := started.Add(5 * time.Minute)

	var buf bytes.Buffer
	formatStatusEntries(&buf, []model.SyncRun{{
		ID:             1,
		SyncType:       "scheduled",
		Status:         model.SyncSuccess,
		StartedAt:      started,
		CompletedAt:    &completed,
		RecordsAdded:   1200,
		RecordsUpdated: 34,
	}})

	output := buf.String()
	assert.Contains(t, output, "scheduled")
	assert.Contains(t, output, "success")
	assert.Contains(t, output, "2025-01-15 02:00")
	assert.Contains(t, output, "5m0s")
	assert.Contains(t, output, "1200")
	assert.Contains(t, output, "34")
}

func TestFormatStatusEntries_InProgress(t *testing.T) {
	var buf bytes.Buffer
	formatStatusEntries(&buf, []model.SyncRun{{
		ID:        2,
		SyncType:  "full",
		Status:    model.SyncInProgress,
		StartedAt: time.Date(2025, 1, 15, 10, 30, 0, 0, time.UTC),
	}})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 3)
	assert.Contains(t, lines[2], "in_progress")
	assert.Contains(t, lines[2], " - ")
}

func TestFormatStatusEntries_LongError(t *testing.T) {
	var buf bytes.Buffer
	formatStatusEntries(&buf, []model.SyncRun{{
		ID:           3,
		SyncType:     "partial",
		Status:       model.SyncFailed,
		StartedAt:    time.Now(),
		ErrorMessage: strings.Repeat("x", 100),
	}})

	output := buf.String()
	assert.Contains(t, output, strings.Repeat("x", 57)+"...")
	assert.NotContains(t, output, strings.Repeat("x", 61))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "exactly10!", truncate("exactly10!", 10))
	assert.Equal(t, "this is...", truncate("this is too long", 10))
	assert.Equal(t, "", truncate("", 5))
}

func TestWriteStatus_Formats(t *testing.T) {
	started := time.Date(2025, 1, 15, 2, 0, 0, 0, time.UTC)
	runs := []model.SyncRun{{ID: 4, SyncType: "full", Status: model.SyncFailed, StartedAt: started, ErrorMessage: "discover states"}}

	var buf bytes.Buffer
	require.NoError(t, writeStatus(&buf, "json", runs))
	assert.Contains(t, buf.String(), `"sync_type": "full"`)
	assert.Contains(t, buf.String(), `"error_message": "discover states"`)

	buf.Reset()
	require.NoError(t, writeStatus(&buf, "yaml", runs))
	assert.Contains(t, buf.String(), "sync_type: full")
	assert.Contains(t, buf.String(), "status: failed")
	assert.NotContains(t, buf.String(), "completed_at")

	buf.Reset()
	require.NoError(t, writeStatus(&buf, "", runs))
	assert.Contains(t, buf.String(), "TYPE")

	err := writeStatus(&buf, "xml", runs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown output format")
}
