package provider

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Notes is free-form gateway metadata. Only string values are kept.
type Notes map[string]string

// UnmarshalJSON accepts an object, null, or the empty array the gateway sends for no notes
func (n *Notes) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) || bytes.Equal(trimmed, []byte("[]")) {
		*n = Notes{}
		return nil
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return fmt.Errorf("invalid notes: %w", err)
	}

	out := make(Notes, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case string:
			out[k] = val
		case nil:
		default:
			out[k] = fmt.Sprint(val)
		}
	}
	*n = out
	return nil
}

// Get returns the value for key or an empty string
func (n Notes) Get(key string) string {
	if n == nil {
		return ""
	}
	return n[key]
}
