package store

import (
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"
)

// NormalizeMetadata decodes a metadata column into a mapping. The column is
// loosely typed in practice: older writers stored a JSON object, others a
// JSON string holding serialized JSON. Every caller goes through here so the
// mapping-or-string branch exists exactly once.
//
// The returned map is never nil. A decode failure is reported through the
// error while the empty map stands in, so callers log and keep going.
func NormalizeMetadata(raw datatypes.JSON) (map[string]any, error) {
	out := map[string]any{}
	if len(raw) == 0 {
		return out, nil
	}

	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return out, fmt.Errorf("metadata is not valid JSON: %w", err)
	}

	switch v := value.(type) {
	case nil:
		return out, nil
	case map[string]any:
		return v, nil
	case string:
		var m map[string]any
		if err := json.Unmarshal([]byte(v), &m); err != nil {
			return out, fmt.Errorf("metadata string is not a JSON mapping: %w", err)
		}
		if m == nil {
			return out, nil
		}
		return m, nil
	default:
		return out, fmt.Errorf("metadata has unexpected type %T", value)
	}
}

// MetadataJSON encodes a mapping for storage in a metadata column.
func MetadataJSON(m map[string]any) (datatypes.JSON, error) {
	if m == nil {
		m = map[string]any{}
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode metadata: %w", err)
	}
	return datatypes.JSON(data), nil
}
