//go:build integration

package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTestDB_AppliesMigrations(t *testing.T) {
	db := NewTestDB(t)

	var result int
	err := db.DB().QueryRow("SELECT 1").Scan(&result)
	require.NoError(t, err)
	assert.Equal(t, 1, result)

	for _, table := range []string{
		"access_log",
		"client_reputation",
		"behavioral_baseline",
		"violations",
		"anomaly_records",
		"rate_limit_config",
		"volume_tracking",
		"audit_events",
	} {
		var count int
		err := db.DB().QueryRow(`
			SELECT COUNT(*)
			FROM information_schema.tables
			WHERE table_schema = 'public' AND table_name = $1
		`, table).Scan(&count)
		require.NoError(t, err)
		assert.Equal(t, 1, count, "table %s missing", table)
	}
}

func TestTruncateTables(t *testing.T) {
	db := NewTestDB(t)

	_, err := db.DB().Exec(`
		INSERT INTO access_log (id, tenant_id, client_id, actor_id, data_category,
			byte_size, succeeded, occurred_at)
		VALUES (gen_random_uuid(), gen_random_uuid(), gen_random_uuid(),
			gen_random_uuid(), 'profile', 1024, true, NOW())
	`)
	require.NoError(t, err)
	db.AssertRowCount("access_log", 1)

	db.TruncateTables()
	db.AssertRowCount("access_log", 0)
}
