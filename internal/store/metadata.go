package store

import (
	"github.com/goccy/go-json"
	"github.com/rotisserie/eris"

	"github.com/nregatrack/nrega-sync/internal/model"
)

// marshalMetadata encodes run metadata; nil metadata is stored as NULL.
func marshalMetadata(result *model.SyncResult) ([]byte, error) {
	if result == nil || result.Metadata == nil {
		return nil, nil
	}
	b, err := json.Marshal(result.Metadata)
	if err != nil {
		return nil, eris.Wrap(err, "store: marshal sync metadata")
	}
	return b, nil
}

func unmarshalMetadata(b []byte) map[string]any {
	if len(b) == 0 {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil
	}
	return m
}
