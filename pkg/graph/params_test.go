package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyedgreen/cqlite-sub000/pkg/value"
)

func TestParamsConvertsNativeTypes(t *testing.T) {
	props, err := Params(map[string]any{
		"name":   "Alice",
		"age":    30,
		"score":  3.5,
		"active": true,
		"tag":    nil,
		"raw":    []byte{1, 2, 3},
	})
	require.NoError(t, err)

	assert.True(t, props["name"].Equal(value.Text("Alice")))
	assert.True(t, props["age"].Equal(value.Integer(30)))
	assert.True(t, props["score"].Equal(value.Real(3.5)))
	assert.True(t, props["active"].Equal(value.Boolean(true)))
	assert.True(t, props["tag"].Kind() == value.KindNull)
	assert.True(t, props["raw"].Equal(value.Blob([]byte{1, 2, 3})))
}

func TestParamsRejectsUnsupportedType(t *testing.T) {
	_, err := Params(map[string]any{"bad": struct{}{}})
	assert.Error(t, err)
}
