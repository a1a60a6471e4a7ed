//go:build integration

package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/platinummonkey/countstat/pkg/storage"
)

func newPostgresFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("countstat_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
		postgres.BasicWaitStrategies(),
	)
	require.NoError(t, err, "failed to start PostgreSQL container")
	t.Cleanup(func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := container.Terminate(cleanupCtx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	cfg := storage.DefaultConfig()
	cfg.URL = connStr
	db, err := storage.Open(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return setupFixture(t, db)
}

func TestPostgres_HourlyMessagesByBot(t *testing.T) {
	f := newPostgresFixture(t)
	f.seedRealmWithAliceAndBot()
	seedS1Messages(f)

	a := f.aggregator(utc(2023, 1, 2, 1, 30), utc(2023, 1, 2, 0, 0))
	require.NoError(t, a.ProcessCountStat(f.ctx, mustGet(t, a, hourlyMessages), utc(2023, 1, 2, 1, 0)))
	assertS1Counts(t, f, a)

	// Replaying after a simulated crash converges on the same rows.
	require.NoError(t, a.setFillState(f.ctx, hourlyMessages, utc(2023, 1, 2, 1, 0), Started))
	require.NoError(t, a.ProcessCountStat(f.ctx, mustGet(t, a, hourlyMessages), utc(2023, 1, 2, 1, 0)))
	assertS1Counts(t, f, a)
}

func TestPostgres_UpdateAllAndLogging(t *testing.T) {
	f := newPostgresFixture(t)
	f.seedRealmWithAliceAndBot()
	seedS1Messages(f)
	f.stream(1, realmR, utc(2023, 1, 1, 0, 0), true)
	f.message(10, alice, 201, utc(2023, 1, 2, 9, 0))
	f.audit(1, alice, realmR, utc(2023, 1, 1, 0, 0), auditUserCreated)
	f.interval(alice, utc(2023, 1, 2, 9, 0), utc(2023, 1, 2, 9, 30))

	a := f.aggregator(utc(2023, 1, 3, 0, 30), utc(2023, 1, 2, 0, 0))
	stat := mustGet(t, a, "active_users_log:is_bot:day")
	for i := 0; i < 3; i++ {
		require.NoError(t, a.IncrementLoggingStat(f.ctx, RealmKey{RealmID: realmR}, stat, "false", utc(2023, 1, 2, 10, 0), 1))
	}

	_, err := a.UpdateAll(f.ctx, utc(2023, 1, 3, 0, 0), UpdateOptions{Workers: 4})
	require.NoError(t, err)

	end := utc(2023, 1, 3, 0, 0)
	assert.Equal(t, []Count{
		{Property: "active_users_log:is_bot:day", Subgroup: "false", EndTime: end, Value: 3},
	}, f.counts(a, InstallationScope, "active_users_log:is_bot:day"))
	assert.Equal(t, []Count{
		{RealmID: realmR, Property: "realm_active_humans::day", Subgroup: NoSubgroup, EndTime: end, Value: 1},
	}, f.counts(a, RealmScope, "realm_active_humans::day"))
	assert.Equal(t, []Count{
		{UserID: alice, RealmID: realmR, Property: "minutes_active::day", Subgroup: NoSubgroup, EndTime: end, Value: 30},
	}, f.counts(a, UserScope, "minutes_active::day"))

	byType := f.counts(a, UserScope, "messages_sent:message_type:day")
	subgroups := make(map[string]int64)
	for _, c := range byType {
		subgroups[c.Subgroup] += c.Value
	}
	assert.Equal(t, map[string]int64{"private_message": 3, "private_stream": 1}, subgroups)

	require.NoError(t, a.DropAllAnalytics(f.ctx))
	assert.Empty(t, f.counts(a, RealmScope, ""))
}

func TestPostgres_ConcurrentLoggingIncrements(t *testing.T) {
	f := newPostgresFixture(t)
	f.seedRealmWithAliceAndBot()
	f.db.SetMaxOpenConns(20)
	f.db.SetMaxIdleConns(20)

	a := f.aggregator(utc(2023, 1, 2, 12, 0), utc(2023, 1, 2, 0, 0))
	userStat := mustGet(t, a, "messages_read::hour")
	realmStat := mustGet(t, a, "active_users_log:is_bot:day")

	// Every key starts absent, so the goroutines race on the first insert.
	for hour := 1; hour <= 3; hour++ {
		raceIncrements(t, a, f.ctx, UserKey{UserID: alice, RealmID: realmR}, userStat, NoSubgroup, utc(2023, 1, 2, hour, 30), 16, 10)
	}
	raceIncrements(t, a, f.ctx, RealmKey{RealmID: realmR}, realmStat, "false", utc(2023, 1, 2, 7, 0), 16, 10)
	raceIncrements(t, a, f.ctx, RealmKey{RealmID: realmR}, realmStat, "true", utc(2023, 1, 2, 7, 0), 16, 10)

	users := f.counts(a, UserScope, "messages_read::hour")
	require.Len(t, users, 3)
	for i, c := range users {
		assert.Equal(t, utc(2023, 1, 2, i+2, 0), c.EndTime.UTC())
		assert.Equal(t, int64(160), c.Value)
	}
	assert.Equal(t, []Count{
		{RealmID: realmR, Property: "active_users_log:is_bot:day", Subgroup: "false", EndTime: utc(2023, 1, 3, 0, 0), Value: 160},
		{RealmID: realmR, Property: "active_users_log:is_bot:day", Subgroup: "true", EndTime: utc(2023, 1, 3, 0, 0), Value: 160},
	}, f.counts(a, RealmScope, "active_users_log:is_bot:day"))
}
