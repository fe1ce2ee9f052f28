package settings

import (
	"encoding/json"
	"fmt"
)

// schemaEntry is one preference definition from an extension's settings
// schema (settings.json inside the package).
type schemaEntry struct {
	Key     string          `json:"key"`
	Type    string          `json:"type"`
	Default json.RawMessage `json:"default"`
	// Grouped preferences nest their items.
	Items []schemaEntry `json:"items,omitempty"`
}

// ParseSchema extracts the declared defaults from a settings schema.
// Entries without a key or default are skipped; a malformed document is
// an error.
func ParseSchema(data []byte) (map[string]Value, error) {
	var entries []schemaEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse settings schema: %w", err)
	}

	defaults := make(map[string]Value)
	var walk func([]schemaEntry)
	walk = func(es []schemaEntry) {
		for _, e := range es {
			if len(e.Items) > 0 {
				walk(e.Items)
			}
			if e.Key == "" || len(e.Default) == 0 {
				continue
			}
			if v, ok := defaultValue(e.Type, e.Default); ok {
				defaults[e.Key] = v
			}
		}
	}
	walk(entries)
	return defaults, nil
}

func defaultValue(typ string, raw json.RawMessage) (Value, bool) {
	switch typ {
	case "switch", "bool":
		var b bool
		if json.Unmarshal(raw, &b) == nil {
			return Value{Kind: KindBool, Bool: b}, true
		}
	case "stepper", "int":
		var n int64
		if json.Unmarshal(raw, &n) == nil {
			return Value{Kind: KindInt, Int: n}, true
		}
	case "float":
		var f float64
		if json.Unmarshal(raw, &f) == nil {
			return Value{Kind: KindFloat, Float: f}, true
		}
	case "select", "text", "string":
		var s string
		if json.Unmarshal(raw, &s) == nil {
			return Value{Kind: KindString, String: s}, true
		}
	case "multi-select", "string-list":
		var list []string
		if json.Unmarshal(raw, &list) == nil {
			return Value{Kind: KindStringList, StringList: list}, true
		}
	}
	return Null(), false
}
