package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRawRecord_Get(t *testing.T) {
	r := RawRecord{
		"district_code":            "123",
		"Total_households_worked":  "4500",
		"Total_Exp":                json.Number("12.5"),
		"Approved_Labour_Budget":   float64(1000),
		"Remarks":                  nil,
	}

	v, ok := r.Get("district_code")
	assert.True(t, ok)
	assert.Equal(t, "123", v)

	v, ok = r.Get("Total_Households_Worked")
	assert.True(t, ok, "case-insensitive fallback")
	assert.Equal(t, "4500", v)

	v, ok = r.Get("Total_Exp")
	assert.True(t, ok)
	assert.Equal(t, "12.5", v)

	v, ok = r.Get("Approved_Labour_Budget")
	assert.True(t, ok)
	assert.Equal(t, "1000", v)

	_, ok = r.Get("Remarks")
	assert.False(t, ok)

	_, ok = r.Get("missing")
	assert.False(t, ok)
}

func TestMetricFields_CoverEveryMetric(t *testing.T) {
	var m Metrics
	seen := make(map[string]bool)
	for _, f := range MetricFields {
		require.False(t, seen[f.Column], "duplicate column %s", f.Column)
		seen[f.Column] = true

		switch f.Kind {
		case IntMetric:
			require.NotNil(t, f.Int, f.Column)
			v := int64(7)
			*f.Int(&m) = &v
		case FloatMetric:
			require.NotNil(t, f.Float, f.Column)
			v := 7.5
			*f.Float(&m) = &v
		}
	}
	assert.Len(t, MetricFields, 29)

	// every struct field must have been set through the table
	data, err := json.Marshal(m)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	for col, v := range out {
		assert.NotNil(t, v, "metric %s not reachable from MetricFields", col)
	}
	assert.Len(t, out, len(MetricFields))
}

func TestMetricField_ValueTypedNil(t *testing.T) {
	var m Metrics
	f := MetricFields[0]
	v := f.Value(&m)
	p, ok := v.(*int64)
	require.True(t, ok)
	assert.Nil(t, p)
}

func TestMetricColumns(t *testing.T) {
	cols := MetricColumns()
	assert.Equal(t, "approved_labour_budget", cols[0])
	assert.Equal(t, "percent_payments_15_days", cols[len(cols)-1])
}

func TestSyncStatus_Terminal(t *testing.T) {
	assert.False(t, SyncInProgress.Terminal())
	assert.True(t, SyncSuccess.Terminal())
	assert.True(t, SyncFailed.Terminal())
}

func TestSyncRun_Duration(t *testing.T) {
	start := time.Date(2025, 1, 15, 2, 0, 0, 0, time.UTC)
	r := SyncRun{StartedAt: start}
	assert.Zero(t, r.Duration())

	end := start.Add(90 * time.Second)
	r.CompletedAt = &end
	assert.Equal(t, 90*time.Second, r.Duration())
}
