package ingest

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMappingSchema(t *testing.T) {
	schema, err := MappingSchema()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(schema), &decoded))

	properties, ok := decoded["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, properties, "instrument_column")
	assert.Contains(t, properties, "time_layouts")
	assert.Contains(t, properties, "buy_labels")
}
