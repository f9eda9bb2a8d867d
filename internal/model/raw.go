package model

import (
	"encoding/json"
	"strconv"
	"strings"
)

// RawRecord is one flat record as returned by the data.gov.in API. Values are
// usually strings but may be JSON numbers or null.
type RawRecord map[string]any

// Get returns the field value as a string. Lookup is exact first and falls
// back to a case-insensitive match. ok is false when the field is absent or null.
func (r RawRecord) Get(name string) (string, bool) {
	if v, found := r[name]; found {
		return stringify(v)
	}
	for k, v := range r {
		if strings.EqualFold(k, name) {
			return stringify(v)
		}
	}
	return "", false
}

func stringify(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case int:
		return strconv.Itoa(t), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		return "", false
	}
}
