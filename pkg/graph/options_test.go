package graph

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveEncryptionKeyDeterministic(t *testing.T) {
	a, err := deriveEncryptionKey("correct horse battery staple")
	require.NoError(t, err)
	b, err := deriveEncryptionKey("correct horse battery staple")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 32)

	c, err := deriveEncryptionKey("a different passphrase")
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestWriteDefaultYAMLRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "cqlite.yaml")
	dataDir := filepath.Join(dir, "data")

	require.NoError(t, WriteDefaultYAML(cfgPath, dataDir))

	opts, err := OptionsFromYAML(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, dataDir, opts.DataDir)
	assert.False(t, opts.InMemory)
	assert.Equal(t, 1000, opts.QueryCacheSize)
}
