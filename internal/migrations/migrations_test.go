package migrations

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMigrationFiles_ArePaired(t *testing.T) {
	entries, err := fs.ReadDir(MigrationFiles, ".")
	require.NoError(t, err)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		}
	}

	require.NotEmpty(t, ups)
	require.Equal(t, ups, downs)
}

func TestMigrationFiles_CreateRequiredTables(t *testing.T) {
	var all strings.Builder
	entries, err := fs.ReadDir(MigrationFiles, ".")
	require.NoError(t, err)
	for _, e := range entries {
		if !strings.HasSuffix(e.Name(), ".up.sql") {
			continue
		}
		b, err := fs.ReadFile(MigrationFiles, e.Name())
		require.NoError(t, err)
		all.Write(b)
	}

	for _, table := range []string{"campaigns", "banners", "impressions"} {
		require.Contains(t, all.String(), "CREATE TABLE IF NOT EXISTS "+table)
	}
}

func TestLatest(t *testing.T) {
	v, err := Latest()
	require.NoError(t, err)
	require.Equal(t, uint(2), v)
}
