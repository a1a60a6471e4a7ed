package analytics

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/countstat/pkg/storage"
)

func utc(year int, month time.Month, day, hour, min int) time.Time {
	return time.Date(year, month, day, hour, min, 0, 0, time.UTC)
}

func fixedClock(t time.Time) clockwork.Clock {
	return clockwork.NewFakeClockAt(t)
}

// sourceSchema creates the operational tables the pull queries read.
func sourceSchema(dialect storage.Dialect) []string {
	ts := dialect.TimestampType()
	return []string{
		fmt.Sprintf(`CREATE TABLE realms (id BIGINT PRIMARY KEY, date_created %s NOT NULL)`, ts),
		fmt.Sprintf(`CREATE TABLE users (
			id BIGINT PRIMARY KEY,
			realm_id BIGINT NOT NULL,
			date_joined %s NOT NULL,
			is_bot BOOLEAN NOT NULL,
			is_active BOOLEAN NOT NULL)`, ts),
		fmt.Sprintf(`CREATE TABLE streams (
			id BIGINT PRIMARY KEY,
			realm_id BIGINT NOT NULL,
			date_created %s NOT NULL,
			invite_only BOOLEAN NOT NULL)`, ts),
		`CREATE TABLE recipients (id BIGINT PRIMARY KEY, type INTEGER NOT NULL, type_id BIGINT NOT NULL)`,
		fmt.Sprintf(`CREATE TABLE messages (
			id BIGINT PRIMARY KEY,
			sender_id BIGINT NOT NULL,
			recipient_id BIGINT NOT NULL,
			sent_at %s NOT NULL,
			sending_client_id BIGINT NOT NULL)`, ts),
		fmt.Sprintf(`CREATE TABLE activity_intervals (
			user_id BIGINT NOT NULL,
			start_time %s NOT NULL,
			end_time %s NOT NULL)`, ts, ts),
		fmt.Sprintf(`CREATE TABLE audit_log (
			id BIGINT PRIMARY KEY,
			modified_user_id BIGINT NOT NULL,
			realm_id BIGINT NOT NULL,
			event_time %s NOT NULL,
			event_type INTEGER NOT NULL)`, ts),
	}
}

// fixture seeds source rows. Personal recipients use id 100+user,
// stream recipients 200+stream, huddles 300+n.
type fixture struct {
	t   *testing.T
	db  *storage.DB
	ctx context.Context
}

func newSQLiteFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := storage.DefaultConfig()
	cfg.Driver = "sqlite3"
	cfg.URL = ":memory:"
	db, err := storage.Open(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return setupFixture(t, db)
}

func setupFixture(t *testing.T, db *storage.DB) *fixture {
	t.Helper()
	f := &fixture{t: t, db: db, ctx: context.Background()}
	for _, stmt := range sourceSchema(db.Dialect) {
		f.exec(stmt)
	}
	require.NoError(t, NewAggregator(db.DB, db.Dialect).EnsureSchema(f.ctx))
	return f
}

func (f *fixture) exec(query string, args ...interface{}) {
	f.t.Helper()
	_, err := f.db.ExecContext(f.ctx, f.db.Dialect.Rebind(query), args...)
	require.NoError(f.t, err)
}

func (f *fixture) aggregator(now time.Time, epoch time.Time, opts ...Option) *Aggregator {
	opts = append([]Option{WithClock(fixedClock(now)), WithInstallationEpoch(epoch)}, opts...)
	return NewAggregator(f.db.DB, f.db.Dialect, opts...)
}

func (f *fixture) realm(id int64, created time.Time) {
	f.exec("INSERT INTO realms (id, date_created) VALUES (?, ?)", id, created)
}

func (f *fixture) user(id, realmID int64, joined time.Time, isBot bool) {
	f.exec("INSERT INTO users (id, realm_id, date_joined, is_bot, is_active) VALUES (?, ?, ?, ?, ?)",
		id, realmID, joined, isBot, true)
	f.exec("INSERT INTO recipients (id, type, type_id) VALUES (?, ?, ?)", 100+id, recipientPersonal, id)
}

func (f *fixture) stream(id, realmID int64, created time.Time, inviteOnly bool) {
	f.exec("INSERT INTO streams (id, realm_id, date_created, invite_only) VALUES (?, ?, ?, ?)",
		id, realmID, created, inviteOnly)
	f.exec("INSERT INTO recipients (id, type, type_id) VALUES (?, ?, ?)", 200+id, recipientStream, id)
}

func (f *fixture) huddle(n int64) {
	f.exec("INSERT INTO recipients (id, type, type_id) VALUES (?, ?, ?)", 300+n, recipientHuddle, n)
}

func (f *fixture) message(id, senderID, recipientID int64, sentAt time.Time) {
	f.exec("INSERT INTO messages (id, sender_id, recipient_id, sent_at, sending_client_id) VALUES (?, ?, ?, ?, ?)",
		id, senderID, recipientID, sentAt, 1)
}

func (f *fixture) messageFromClient(id, senderID, recipientID int64, sentAt time.Time, clientID int64) {
	f.exec("INSERT INTO messages (id, sender_id, recipient_id, sent_at, sending_client_id) VALUES (?, ?, ?, ?, ?)",
		id, senderID, recipientID, sentAt, clientID)
}

func (f *fixture) interval(userID int64, start, end time.Time) {
	f.exec("INSERT INTO activity_intervals (user_id, start_time, end_time) VALUES (?, ?, ?)", userID, start, end)
}

func (f *fixture) audit(id, userID, realmID int64, at time.Time, eventType int) {
	f.exec("INSERT INTO audit_log (id, modified_user_id, realm_id, event_time, event_type) VALUES (?, ?, ?, ?, ?)",
		id, userID, realmID, at, eventType)
}

func (f *fixture) counts(a *Aggregator, scope Scope, property string) []Count {
	f.t.Helper()
	counts, err := a.Counts(f.ctx, scope, CountFilter{Property: property})
	require.NoError(f.t, err)
	return counts
}

const (
	auditUserCreated     = 101
	auditUserActivated   = 102
	auditUserDeactivated = 103
	auditUserReactivated = 104
)

// S1 fixture: realm 1, alice (id 1) and bot1 (id 2).
const (
	realmR = int64(1)
	alice  = int64(1)
	bot1   = int64(2)
)

func (f *fixture) seedRealmWithAliceAndBot() {
	f.realm(realmR, utc(2023, 1, 1, 0, 0))
	f.user(alice, realmR, utc(2023, 1, 1, 0, 0), false)
	f.user(bot1, realmR, utc(2023, 1, 1, 0, 0), true)
}
