package analytics

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/countstat/pkg/observability"
	"github.com/platinummonkey/countstat/pkg/storage"
)

const tracerName = "github.com/platinummonkey/countstat/pkg/analytics"

// Aggregator fills the count tables from the source tables.
type Aggregator struct {
	db       *sql.DB
	dialect  storage.Dialect
	registry *Registry
	clock    clockwork.Clock
	epoch    time.Time
	logger   *observability.Logger
	metrics  *observability.Metrics
	tracer   trace.Tracer
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithClock replaces the wall clock. The clock decides which hour is still open.
func WithClock(clock clockwork.Clock) Option {
	return func(a *Aggregator) {
		a.clock = clock
	}
}

// WithInstallationEpoch pins the first bucket new stats are initialized to.
func WithInstallationEpoch(epoch time.Time) Option {
	return func(a *Aggregator) {
		a.epoch = epoch.UTC()
	}
}

func WithLogger(logger *observability.Logger) Option {
	return func(a *Aggregator) {
		a.logger = logger
	}
}

func WithMetrics(metrics *observability.Metrics) Option {
	return func(a *Aggregator) {
		a.metrics = metrics
	}
}

// WithRegistry replaces the default stat catalog.
func WithRegistry(registry *Registry) Option {
	return func(a *Aggregator) {
		a.registry = registry
	}
}

// NewAggregator creates a new aggregator
func NewAggregator(db *sql.DB, dialect storage.Dialect, opts ...Option) *Aggregator {
	a := &Aggregator{
		db:      db,
		dialect: dialect,
		clock:   clockwork.NewRealClock(),
		tracer:  otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.registry == nil {
		a.registry = DefaultRegistry()
	}
	if a.logger == nil {
		a.logger = observability.NopLogger()
	}
	return a
}

// Registry returns the stat catalog this aggregator fills.
func (a *Aggregator) Registry() *Registry {
	return a.registry
}

// Dialect returns the SQL dialect of the analytics database.
func (a *Aggregator) Dialect() storage.Dialect {
	return a.dialect
}

func (a *Aggregator) now() time.Time {
	return a.clock.Now()
}

func (a *Aggregator) log(ctx context.Context) *observability.Logger {
	return observability.FromContext(ctx, a.logger)
}

// Tx is a transaction on the analytics database. Queries written with '?'
// placeholders must go through Rebind.
type Tx struct {
	*sql.Tx
	Dialect storage.Dialect
}

// Rebind rewrites '?' placeholders for the transaction's dialect.
func (tx Tx) Rebind(query string) string {
	return tx.Dialect.Rebind(query)
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func (a *Aggregator) inTx(ctx context.Context, fn func(tx Tx) error) error {
	sqlTx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(Tx{Tx: sqlTx, Dialect: a.dialect}); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// InstallationEpoch is the end time new stats are initialized to. Unless
// pinned, it is the UTC day the first realm was created; an empty
// installation falls back to the day of fillTo.
func (a *Aggregator) InstallationEpoch(ctx context.Context, fillTo time.Time) (time.Time, error) {
	if !a.epoch.IsZero() {
		return a.epoch, nil
	}
	var first time.Time
	err := a.db.QueryRowContext(ctx, "SELECT date_created FROM realms ORDER BY date_created LIMIT 1").Scan(&first)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return FloorDay(fillTo), nil
	case err != nil:
		return time.Time{}, fmt.Errorf("find first realm: %w", err)
	}
	return FloorDay(first), nil
}
