package db

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemaChainHasNoSeedData(t *testing.T) {
	files, err := fs.Glob(Migrations, "migrations/*.sql")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, f := range files {
		b, err := fs.ReadFile(Migrations, f)
		require.NoError(t, err)
		assert.NotContains(t, strings.ToUpper(string(b)), "INSERT INTO", f)
	}
}

func TestSeedsCarryDevPuzzles(t *testing.T) {
	files, err := fs.Glob(Seeds, "seeds/*.sql")
	require.NoError(t, err)
	require.Len(t, files, 1)

	b, err := fs.ReadFile(Seeds, files[0])
	require.NoError(t, err)
	assert.Contains(t, string(b), "INSERT INTO puzzles")
	assert.Contains(t, string(b), "ON CONFLICT (id) DO NOTHING")
}
