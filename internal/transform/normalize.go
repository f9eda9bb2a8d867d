// Package transform maps raw data.gov.in MGNREGA records onto the local schema.
package transform

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/nregatrack/nrega-sync/internal/model"
)

// Upstream field names of the identifying and key columns.
const (
	FieldDistrictCode = "district_code"
	FieldDistrictName = "district_name"
	FieldStateCode    = "state_code"
	FieldStateName    = "state_name"
	FieldFinYear      = "fin_year"
	FieldMonth        = "month"
	FieldRemarks      = "Remarks"
)

// sentinel is the upstream placeholder for "no data".
const sentinel = "NA"

// MalformedRecordError reports a raw record missing a required field.
type MalformedRecordError struct {
	Field string
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("transform: malformed record: missing %s", e.Field)
}

// Normalize converts one raw record. Metric fields that are absent, blank,
// "NA" or unparseable become nil independently of each other; only missing
// identifying fields reject the record.
func Normalize(raw model.RawRecord) (*model.NormalizedRecord, error) {
	key, err := districtKey(raw)
	if err != nil {
		return nil, err
	}

	finYear, err := required(raw, FieldFinYear)
	if err != nil {
		return nil, err
	}
	month, err := required(raw, FieldMonth)
	if err != nil {
		return nil, err
	}

	rec := &model.NormalizedRecord{
		District: key,
		FinYear:  finYear,
		Month:    month,
	}

	for _, f := range model.MetricFields {
		v, _ := raw.Get(f.Source)
		switch f.Kind {
		case model.IntMetric:
			*f.Int(&rec.Metrics) = ParseInt(v)
		case model.FloatMetric:
			*f.Float(&rec.Metrics) = ParseFloat(v)
		}
	}

	if remarks, ok := raw.Get(FieldRemarks); ok {
		rec.Remarks = &remarks
	}

	return rec, nil
}

// districtKey extracts the four identifying district fields.
func districtKey(raw model.RawRecord) (model.DistrictKey, error) {
	var key model.DistrictKey
	var err error
	if key.Code, err = required(raw, FieldDistrictCode); err != nil {
		return key, err
	}
	if key.Name, err = required(raw, FieldDistrictName); err != nil {
		return key, err
	}
	if key.StateCode, err = required(raw, FieldStateCode); err != nil {
		return key, err
	}
	if key.StateName, err = required(raw, FieldStateName); err != nil {
		return key, err
	}
	return key, nil
}

func required(raw model.RawRecord, field string) (string, error) {
	v, ok := raw.Get(field)
	v = strings.TrimSpace(v)
	if !ok || v == "" {
		return "", &MalformedRecordError{Field: field}
	}
	return v, nil
}

// isNull reports whether s carries no value.
func isNull(s string) bool {
	return s == "" || strings.EqualFold(s, sentinel)
}

// ParseInt parses an integer metric. Decimal input is truncated toward zero,
// matching how the upstream mixes "12" and "12.0" for counts.
func ParseInt(s string) *int64 {
	s = strings.TrimSpace(s)
	if isNull(s) {
		return nil
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return &v
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	if f >= math.MaxInt64 || f <= math.MinInt64 {
		return nil
	}
	v := int64(f)
	return &v
}

// ParseFloat parses a float metric. NaN and infinities are treated as absent.
func ParseFloat(s string) *float64 {
	s = strings.TrimSpace(s)
	if isNull(s) {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
