package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/countstat/pkg/storage"
)

const simpleTemplate = `INSERT INTO analytics_usercount (user_id, realm_id, property, subgroup, end_time, value)
SELECT users.id, users.realm_id, '{{.Property}}', {{.Subgroup}}, {{timeEnd}}, COUNT(*)
FROM users WHERE users.date_joined >= {{timeStart}} AND users.date_joined < {{timeEnd}}
GROUP BY users.id, users.realm_id{{.GroupByClause}}`

func TestNewPullStat_RendersPerDialect(t *testing.T) {
	stat, err := NewPullStat("joined:is_bot:hour", UserScope, simpleTemplate,
		&GroupBy{Table: "users", Column: "is_bot", Type: BoolSubgroup}, Hour)
	require.NoError(t, err)

	pg, err := stat.pullQuery(storage.Postgres)
	require.NoError(t, err)
	assert.Contains(t, pg.sql, "'joined:is_bot:hour', CASE WHEN users.is_bot THEN 'true' ELSE 'false' END, CAST($1 AS TIMESTAMPTZ)")
	assert.Contains(t, pg.sql, "users.date_joined >= CAST($2 AS TIMESTAMPTZ) AND users.date_joined < CAST($1 AS TIMESTAMPTZ)")
	assert.Contains(t, pg.sql, "GROUP BY users.id, users.realm_id, users.is_bot")
	assert.Equal(t, []timeParam{paramEnd, paramStart}, pg.params)

	lite, err := stat.pullQuery(storage.SQLite)
	require.NoError(t, err)
	assert.Contains(t, lite.sql, "users.date_joined >= ?2 AND users.date_joined < ?1")

	start, end := utc(2023, 1, 2, 0, 0), utc(2023, 1, 2, 1, 0)
	assert.Equal(t, []interface{}{end, start}, lite.args(start, end))
}

func TestSubgroupExpr(t *testing.T) {
	tests := []struct {
		name    string
		groupBy *GroupBy
		want    string
	}{
		{"none", nil, "''"},
		{"bool", &GroupBy{Table: "users", Column: "is_bot", Type: BoolSubgroup}, "CASE WHEN users.is_bot THEN 'true' ELSE 'false' END"},
		{"int", &GroupBy{Table: "messages", Column: "sending_client_id", Type: IntSubgroup}, "CAST(messages.sending_client_id AS TEXT)"},
		{"text", &GroupBy{Table: "clients", Column: "name"}, "clients.name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, subgroupExpr(tt.groupBy))
		})
	}
}

func TestNewPullStat_ConfigurationErrors(t *testing.T) {
	tests := []struct {
		name     string
		property string
		output   Scope
		query    string
		groupBy  *GroupBy
		freq     Frequency
		opts     []StatOption
	}{
		{"bad property", "Messages Sent", UserScope, simpleTemplate, nil, Hour, nil},
		{"quote in property", "x'; DROP TABLE users; --", UserScope, simpleTemplate, nil, Hour, nil},
		{"unknown scope", "p::hour", Scope(9), simpleTemplate, nil, Hour, nil},
		{"unknown frequency", "p::hour", UserScope, simpleTemplate, nil, Frequency(0), nil},
		{"empty query", "p::hour", UserScope, "  ", nil, Hour, nil},
		{"unknown key", "p::hour", UserScope, "SELECT {{.TimeZone}} {{timeEnd}}", nil, Hour, nil},
		{"unknown function", "p::hour", UserScope, "SELECT {{now}}", nil, Hour, nil},
		{"malformed template", "p::hour", UserScope, "SELECT {{timeEnd}", nil, Hour, nil},
		{"no end time", "p::hour", UserScope, "SELECT {{timeStart}}", nil, Hour, nil},
		{"group by injection", "p::hour", UserScope, simpleTemplate, &GroupBy{Table: "users", Column: "id; --"}, Hour, nil},
		{"zero interval", "p::hour", UserScope, simpleTemplate, nil, Hour, []StatOption{WithInterval(0)}},
		{"self dependency", "p::hour", UserScope, simpleTemplate, nil, Hour, []StatOption{WithDependencies("p::hour")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPullStat(tt.property, tt.output, tt.query, tt.groupBy, tt.freq, tt.opts...)
			assert.ErrorIs(t, err, ErrInvalidStat)
		})
	}
}

func TestNewCustomPullStat(t *testing.T) {
	_, err := NewCustomPullStat("custom::day", UserScope, nil, Day)
	assert.ErrorIs(t, err, ErrInvalidStat)

	pull := func(ctx context.Context, tx Tx, stat *CountStat, start, end time.Time) (int64, error) { return 0, nil }
	stat, err := NewCustomPullStat("custom::day", StreamScope, pull, Day)
	require.NoError(t, err)
	assert.Equal(t, CustomPull, stat.Kind)
	assert.Equal(t, 24*time.Hour, stat.Interval)
	assert.Equal(t, StreamScope, stat.Collector.Output)
}

func TestStartTime(t *testing.T) {
	end := utc(2023, 1, 3, 0, 0)

	day, err := NewLoggingStat("d::day", RealmScope, Day)
	require.NoError(t, err)
	assert.Equal(t, utc(2023, 1, 2, 0, 0), day.StartTime(end))

	fifteen, err := NewLoggingStat("f::day", RealmScope, Day, WithInterval(15*24*time.Hour-15*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2022, 12, 19, 0, 15, 0, 0, time.UTC), fifteen.StartTime(end))

	gauge, err := NewLoggingStat("g::day", RealmScope, Day, WithInterval(Gauge))
	require.NoError(t, err)
	assert.True(t, gauge.IsGauge())
	assert.Equal(t, MinTime, gauge.StartTime(end))
}

func TestFrequencyCeil(t *testing.T) {
	event := time.Date(2023, 1, 2, 10, 0, 1, 0, time.UTC)
	assert.Equal(t, utc(2023, 1, 2, 11, 0), Hour.ceil(event))
	assert.Equal(t, utc(2023, 1, 3, 0, 0), Day.ceil(event))
	assert.Equal(t, utc(2023, 1, 2, 10, 0), Hour.ceil(utc(2023, 1, 2, 10, 0)))
}

func TestUpsertIncrementQuery(t *testing.T) {
	assert.Equal(t,
		"INSERT INTO analytics_realmcount (realm_id, property, subgroup, end_time, value) VALUES (?, ?, ?, ?, ?) "+
			"ON CONFLICT (realm_id, property, subgroup, end_time) DO UPDATE SET value = analytics_realmcount.value + excluded.value",
		upsertIncrementQuery(RealmScope))
	assert.Equal(t,
		"INSERT INTO analytics_installationcount (property, subgroup, end_time, value) VALUES (?, ?, ?, ?) "+
			"ON CONFLICT (property, subgroup, end_time) DO UPDATE SET value = analytics_installationcount.value + excluded.value",
		upsertIncrementQuery(InstallationScope))
}
