package analytics

import (
	"context"
	"fmt"
	"strings"

	"github.com/platinummonkey/countstat/pkg/storage"
)

// SchemaStatements returns the DDL for the count and fill state tables.
// Every statement is safe to run against an existing schema.
func SchemaStatements(dialect storage.Dialect) []string {
	ts := dialect.TimestampType()
	var stmts []string
	for _, scope := range AllScopes() {
		table := scope.Table()
		cols := []string{"id " + dialect.SerialPrimaryKey()}
		for _, key := range scope.KeyColumns() {
			cols = append(cols, key+" BIGINT NOT NULL")
		}
		cols = append(cols,
			"property VARCHAR(64) NOT NULL",
			"subgroup VARCHAR(32) NOT NULL DEFAULT ''",
			"end_time "+ts+" NOT NULL",
			"value BIGINT NOT NULL",
			"UNIQUE ("+strings.Join(scope.uniqueColumns(), ", ")+")",
		)
		stmts = append(stmts,
			fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n)", table, strings.Join(cols, ",\n  ")),
			fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_property_end_time ON %s (property, end_time)", table, table),
		)
	}
	stmts = append(stmts, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS analytics_fillstate (
  property VARCHAR(64) PRIMARY KEY,
  end_time %s NOT NULL,
  state INTEGER NOT NULL,
  last_modified %s NOT NULL
)`, ts, ts))
	return stmts
}

// EnsureSchema creates any missing analytics tables.
func (a *Aggregator) EnsureSchema(ctx context.Context) error {
	return a.inTx(ctx, func(tx Tx) error {
		for _, stmt := range SchemaStatements(a.dialect) {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("ensure schema: %w", err)
			}
		}
		return nil
	})
}
