package migration

import (
	"context"
	"database/sql"
	"io/fs"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestParseDialect(t *testing.T) {
	tests := []struct {
		input   string
		want    Dialect
		wantErr bool
	}{
		{"sqlite", DialectSQLite, false},
		{"postgres", DialectPostgres, false},
		{"mysql", DialectMySQL, false},
		{" MySQL ", DialectMySQL, false},
		{"oracle", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDialect(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNew_Errors(t *testing.T) {
	_, err := New("oracle", "dsn", nil)
	assert.Error(t, err)

	_, err = New("sqlite", "", nil)
	assert.EqualError(t, err, "database dsn is required")
}

// 每个方言目录都必须有成对的 up/down 文件.
func TestEmbeddedMigrations_Paired(t *testing.T) {
	for _, d := range []Dialect{DialectSQLite, DialectPostgres, DialectMySQL} {
		up, err := fs.Glob(migrationsFS, "migrations/"+string(d)+"/*.up.sql")
		require.NoError(t, err)
		down, err := fs.Glob(migrationsFS, "migrations/"+string(d)+"/*.down.sql")
		require.NoError(t, err)
		assert.NotEmpty(t, up, string(d))
		assert.Len(t, down, len(up), string(d))
	}
}

func tableExists(t *testing.T, path, table string) bool {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()
	var n int
	require.NoError(t, db.QueryRow(
		"SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = ?", table,
	).Scan(&n))
	return n == 1
}

func TestMigrator_SQLiteUpDown(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "runs.db")

	m, err := New("sqlite", path, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer func() { assert.NoError(t, m.Close()) }()

	v, dirty, err := m.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(0), v)
	assert.False(t, dirty)

	require.NoError(t, m.Up(ctx))
	v, dirty, err = m.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(1), v)
	assert.False(t, dirty)
	assert.True(t, tableExists(t, path, "run_records"))

	// 重复 Up 无变更
	require.NoError(t, m.Up(ctx))

	require.NoError(t, m.Down(ctx))
	v, _, err = m.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(0), v)
	assert.False(t, tableExists(t, path, "run_records"))
}

func TestRun_Idempotent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "runs.db")

	require.NoError(t, Run(ctx, "sqlite", path, nil))
	require.NoError(t, Run(ctx, "sqlite", path, nil))
	assert.True(t, tableExists(t, path, "run_records"))
	assert.True(t, tableExists(t, path, VersionTable))

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()
	_, err = db.Exec(`INSERT INTO run_records (run_id, session_id, status) VALUES ('r1', 's1', 'completed')`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO run_records (run_id, session_id, status) VALUES ('r1', 's2', 'failed')`)
	assert.Error(t, err, "run_id is unique")
}
