package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunFailsOnMissingSources(t *testing.T) {
	err := run([]string{"-sources", filepath.Join(t.TempDir(), "missing.json")})
	assert.Error(t, err, "run should fail without a sources file")
}

func TestRunFailsOnInvalidSources(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"sources":[{"name":"a","url":"ws://x","type":"mystery"}]}`), 0o600))
	assert.Error(t, run([]string{"-sources", path}), "run should fail on an unknown source type")
}

func TestRunFailsOnBadFlags(t *testing.T) {
	assert.Error(t, run([]string{"-no-such-flag"}))
}
