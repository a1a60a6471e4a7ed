// Package config loads countstat settings from COUNTSTAT_* environment
// variables. The binaries load a .env file first when one is present.
//
//	COUNTSTAT_DATABASE_DRIVER=postgres      # postgres or sqlite3
//	COUNTSTAT_DATABASE_URL=postgres://localhost/zulip?sslmode=disable
//	COUNTSTAT_ANALYTICS_LOG_PATH=/var/log/countstat/analytics.log
//	COUNTSTAT_SAFETY_LAG=0h                 # whole hours behind the current hour
//	COUNTSTAT_INSTALLATION_EPOCH=           # RFC3339, hour aligned; empty derives it
//	COUNTSTAT_WORKERS=4
//	COUNTSTAT_SCHEDULE="5 * * * *"          # serve only
//	COUNTSTAT_LOCK_BACKEND=file             # file, redis or none
//	COUNTSTAT_REDIS_URL=redis://localhost:6379/0
//	COUNTSTAT_OTEL_ENABLED=false
//
// LoadConfig validates the result; an invalid value is an error rather than
// a silent default, except for unparsable numbers which fall back.
package config
