package crypto

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// CanonicalJSON renders payload with sorted object keys, no HTML escaping and
// no insignificant whitespace. Numbers keep their original literal form.
// Raw JSON ([]byte, json.RawMessage) is re-encoded; other values are marshalled first.
func CanonicalJSON(payload interface{}) ([]byte, error) {
	var raw []byte
	switch v := payload.(type) {
	case nil:
		raw = []byte("{}")
	case []byte:
		raw = v
	case json.RawMessage:
		raw = v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal payload: %w", err)
		}
		raw = b
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = []byte("{}")
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var tree interface{}
	if err := dec.Decode(&tree); err != nil {
		return nil, fmt.Errorf("invalid json payload: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("invalid json payload: trailing data")
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(tree); err != nil {
		return nil, fmt.Errorf("failed to encode canonical payload: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
