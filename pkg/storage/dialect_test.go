package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDialect(t *testing.T) {
	tests := []struct {
		driver  string
		want    Dialect
		wantErr bool
	}{
		{"postgres", Postgres, false},
		{"PostgreSQL", Postgres, false},
		{"sqlite3", SQLite, false},
		{" sqlite ", SQLite, false},
		{"mysql", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			got, err := ParseDialect(tt.driver)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRebind(t *testing.T) {
	query := "UPDATE t SET a = ?, b = ? WHERE c = ?"

	assert.Equal(t, "UPDATE t SET a = $1, b = $2 WHERE c = $3", Postgres.Rebind(query))
	assert.Equal(t, query, SQLite.Rebind(query))
}

func TestTimestampParam(t *testing.T) {
	assert.Equal(t, "CAST($2 AS TIMESTAMPTZ)", Postgres.TimestampParam(2))
	assert.Equal(t, "?2", SQLite.TimestampParam(2))
}

func TestTruncateStatement(t *testing.T) {
	assert.Equal(t, "TRUNCATE TABLE analytics_usercount", Postgres.TruncateStatement("analytics_usercount"))
	assert.Equal(t, "DELETE FROM analytics_usercount", SQLite.TruncateStatement("analytics_usercount"))
}

func TestOpen(t *testing.T) {
	t.Run("sqlite in memory", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Driver = "sqlite3"
		cfg.URL = ":memory:"

		db, err := Open(context.Background(), cfg)
		require.NoError(t, err)
		defer db.Close()

		assert.Equal(t, SQLite, db.Dialect)
		assert.Equal(t, 1, db.Stats().MaxOpenConnections)
	})

	t.Run("missing url", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.URL = ""

		_, err := Open(context.Background(), cfg)
		assert.Error(t, err)
	})

	t.Run("unknown driver", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Driver = "oracle"
		cfg.URL = "oracle://nowhere"

		_, err := Open(context.Background(), cfg)
		assert.Error(t, err)
	})
}
