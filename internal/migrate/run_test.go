package migrate

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFiles_Embedded(t *testing.T) {
	files, err := Files(migrationsFS)
	require.NoError(t, err)
	require.NotEmpty(t, files)
	assert.Equal(t, "0001_analysis_jobs.sql", files[0])
}

func TestFiles_SortsAndFilters(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/0002_b.sql":   {Data: []byte("SELECT 2")},
		"migrations/0001_a.sql":   {Data: []byte("SELECT 1")},
		"migrations/README.md":    {Data: []byte("notes")},
		"migrations/sub/0003.sql": {Data: []byte("SELECT 3")},
	}
	files, err := Files(fsys)
	require.NoError(t, err)
	assert.Equal(t, []string{"0001_a.sql", "0002_b.sql"}, files)
}

func TestFiles_MissingDir(t *testing.T) {
	_, err := Files(fstest.MapFS{})
	require.Error(t, err)
}
