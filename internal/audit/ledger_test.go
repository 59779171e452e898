package audit_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eykd/dmearchive/internal/audit"
)

func TestLedger_PersistsAcrossOpens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registered_pis.txt")

	l, err := audit.OpenLedger(path)
	require.NoError(t, err)
	assert.False(t, l.Has("Smith Jane"))
	require.NoError(t, l.Add("Smith Jane"))
	require.NoError(t, l.Add("Smith Jane"))
	assert.True(t, l.Has("Smith Jane"))
	require.NoError(t, l.Close())
	require.NoError(t, l.Close())

	l, err = audit.OpenLedger(path)
	require.NoError(t, err)
	defer l.Close()
	assert.True(t, l.Has("Smith Jane"))
	assert.Equal(t, 1, l.Len())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Smith Jane\n", string(data))
}

func TestLedger_MatchesWholeLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registered_experiments.txt")
	require.NoError(t, os.WriteFile(path, []byte("plate 10\r\n\nplate 2\n"), 0o644))

	l, err := audit.OpenLedger(path)
	require.NoError(t, err)
	defer l.Close()
	assert.True(t, l.Has("plate 10"))
	assert.True(t, l.Has("plate 2"))
	assert.False(t, l.Has("plate 1"), "a prefix of a recorded item must not match")
}
