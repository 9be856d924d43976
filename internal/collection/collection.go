// Package collection canonicalizes the loosely-shaped header, query-parameter
// and path-parameter inputs that cross the sandbox boundary. Whatever shape a
// caller or a user script hands over, the output is always a flat list of
// KVEntry records with trimmed, non-empty keys.
package collection

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// KVEntry is one normalized header/query/path parameter.
type KVEntry struct {
	Key     string `json:"key"`
	Value   string `json:"value"`
	Enabled bool   `json:"enabled"`
}

// UnmarshalJSON preserves the "enabled defaults to true" rule when the field
// is absent from the wire form.
func (e *KVEntry) UnmarshalJSON(data []byte) error {
	var raw struct {
		Key     string `json:"key"`
		Value   string `json:"value"`
		Enabled *bool  `json:"enabled"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	e.Key = raw.Key
	e.Value = raw.Value
	e.Enabled = raw.Enabled == nil || *raw.Enabled
	return nil
}

// Normalize decodes any of the accepted collection shapes into the canonical
// entry list:
//
//  1. a list of {key, value, enabled?} objects,
//  2. a single {key, value} object,
//  3. a plain key->value map (expanded in sorted key order).
//
// Entries whose trimmed key is empty are dropped. Normalizing an
// already-canonical list is a no-op.
func Normalize(input interface{}) []KVEntry {
	switch v := input.(type) {
	case nil:
		return []KVEntry{}
	case []KVEntry:
		return NormalizeEntries(v)
	case KVEntry:
		return NormalizeEntries([]KVEntry{v})
	case []interface{}:
		out := make([]KVEntry, 0, len(v))
		for _, item := range v {
			if e, ok := entryFromValue(item); ok {
				out = append(out, e)
			}
		}
		return out
	case []map[string]interface{}:
		out := make([]KVEntry, 0, len(v))
		for _, item := range v {
			if e, ok := entryFromMap(item); ok {
				out = append(out, e)
			}
		}
		return out
	case map[string]interface{}:
		if isSingleEntry(v) {
			if e, ok := entryFromMap(v); ok {
				return []KVEntry{e}
			}
			return []KVEntry{}
		}
		return entriesFromStringMap(v)
	case map[string]string:
		m := make(map[string]interface{}, len(v))
		for k, val := range v {
			m[k] = val
		}
		return entriesFromStringMap(m)
	default:
		return []KVEntry{}
	}
}

// NormalizeEntries filters and trims an already-typed entry list. It is the
// fixed point of Normalize: applying it twice changes nothing.
func NormalizeEntries(entries []KVEntry) []KVEntry {
	out := make([]KVEntry, 0, len(entries))
	for _, e := range entries {
		key := strings.TrimSpace(e.Key)
		if key == "" {
			continue
		}
		out = append(out, KVEntry{Key: key, Value: e.Value, Enabled: e.Enabled})
	}
	return out
}

// Entry builds a single normalized entry, reporting false when the trimmed
// key is empty. Script-facing push helpers route through this.
func Entry(key string, value interface{}, enabled bool) (KVEntry, bool) {
	k := strings.TrimSpace(key)
	if k == "" {
		return KVEntry{}, false
	}
	return KVEntry{Key: k, Value: Stringify(value), Enabled: enabled}, true
}

// Stringify renders a parameter value the way the sandbox does: strings pass
// through, nil becomes empty, numbers drop a trailing ".0", everything else
// is JSON-ish.
func Stringify(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case map[string]interface{}, []interface{}:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func entryFromValue(item interface{}) (KVEntry, bool) {
	switch v := item.(type) {
	case KVEntry:
		return Entry(v.Key, v.Value, v.Enabled)
	case map[string]interface{}:
		return entryFromMap(v)
	default:
		return KVEntry{}, false
	}
}

func entryFromMap(m map[string]interface{}) (KVEntry, bool) {
	key := ""
	if raw, ok := m["key"]; ok {
		key = Stringify(raw)
	}
	enabled := true
	if raw, ok := m["enabled"]; ok {
		if b, ok := raw.(bool); ok {
			enabled = b
		}
	}
	return Entry(key, m["value"], enabled)
}

// isSingleEntry distinguishes the one-object form {key: "...", value: "..."}
// from a plain key->value map that merely happens to be an object.
func isSingleEntry(m map[string]interface{}) bool {
	_, hasKey := m["key"]
	_, hasValue := m["value"]
	return hasKey && hasValue
}

func entriesFromStringMap(m map[string]interface{}) []KVEntry {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]KVEntry, 0, len(keys))
	for _, k := range keys {
		if e, ok := Entry(k, m[k], true); ok {
			out = append(out, e)
		}
	}
	return out
}
