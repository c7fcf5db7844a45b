package db

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDecodeJSON verifies numbers decode as json.Number and trailing data is rejected.
func TestDecodeJSON(t *testing.T) {
	var m map[string]interface{}
	require.NoError(t, DecodeJSON([]byte(`{"n":9007199254740993,"f":0.5,"s":"x"}`), &m))
	assert.Equal(t, json.Number("9007199254740993"), m["n"])
	assert.Equal(t, json.Number("0.5"), m["f"])
	assert.Equal(t, "x", m["s"])

	assert.Error(t, DecodeJSON([]byte(`{"n":1} {}`), &m))
	assert.Error(t, DecodeJSON([]byte(`{"n":`), &m))
	assert.Error(t, DecodeJSON([]byte(``), &m))
}
