package provider

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotesUnmarshal(t *testing.T) {
	var body struct {
		Notes Notes `json:"notes"`
	}

	require.NoError(t, json.Unmarshal([]byte(`{"notes":[]}`), &body))
	assert.Empty(t, body.Notes)

	require.NoError(t, json.Unmarshal([]byte(`{"notes":{"user_id":"u1","count":3}}`), &body))
	assert.Equal(t, "u1", body.Notes.Get(NoteUserID))
	assert.Equal(t, "3", body.Notes.Get("count"))

	assert.Error(t, json.Unmarshal([]byte(`{"notes":"x"}`), &body))
}

func TestProviderErrorRetryable(t *testing.T) {
	assert.True(t, (&ProviderError{StatusCode: 503}).Retryable())
	assert.True(t, (&ProviderError{}).Retryable())
	assert.False(t, (&ProviderError{StatusCode: 400}).Retryable())
	assert.Equal(t, "bad: detail", (&ProviderError{Message: "bad", Details: "detail"}).Error())
}
