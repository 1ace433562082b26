package app

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/riskibarqy/manager-sync/internal/config"
	"github.com/riskibarqy/manager-sync/internal/platform/logging"
	"github.com/uptrace/opentelemetry-go-extra/otelsql"
	"github.com/uptrace/opentelemetry-go-extra/otelsqlx"
)

const (
	dbPingTimeout        = 5 * time.Second
	maxTracedQueryLength = 512
)

// dbTarget is the connection string handed to the driver plus the parts we
// put on spans and logs.
type dbTarget struct {
	DSN  string
	Name string
	Host string
}

func resolveDBTarget(raw string, disablePreparedBinary bool) dbTarget {
	raw = strings.TrimSpace(raw)
	target := dbTarget{DSN: raw}

	parsed, err := url.Parse(raw)
	if err != nil || parsed == nil || parsed.Scheme == "" {
		target.Name = keywordValue(raw, "dbname")
		target.Host = keywordValue(raw, "host")
		return target
	}

	target.Name = strings.TrimPrefix(parsed.Path, "/")
	target.Host = parsed.Host
	if disablePreparedBinary {
		query := parsed.Query()
		if query.Get("disable_prepared_binary_result") == "" {
			query.Set("disable_prepared_binary_result", "yes")
			parsed.RawQuery = query.Encode()
		}
		target.DSN = parsed.String()
	}
	return target
}

// keywordValue reads one key from a libpq "key=value key=value" DSN.
func keywordValue(dsn, key string) string {
	prefix := key + "="
	for _, token := range strings.Fields(dsn) {
		if value, ok := strings.CutPrefix(token, prefix); ok {
			return strings.Trim(value, `"'`)
		}
	}
	return ""
}

// formatDBQueryForTrace collapses whitespace and caps the statement length
// without splitting a multi-byte rune.
func formatDBQueryForTrace(query string) string {
	normalized := strings.Join(strings.Fields(query), " ")
	if len(normalized) <= maxTracedQueryLength {
		return normalized
	}

	cut := maxTracedQueryLength
	for cut > 0 && !utf8.RuneStart(normalized[cut]) {
		cut--
	}
	return normalized[:cut] + "..."
}

// openDB opens a traced Postgres pool and verifies it is reachable.
func openDB(ctx context.Context, cfg config.Config, logger *logging.Logger) (*sqlx.DB, error) {
	target := resolveDBTarget(cfg.DBURL, cfg.DBDisablePreparedBinary)

	db, err := otelsqlx.Open("postgres", target.DSN,
		otelsql.WithDBSystem("postgresql"),
		otelsql.WithDBName(target.Name),
		otelsql.WithQueryFormatter(formatDBQueryForTrace),
	)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, dbPingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres host=%s db=%s: %w", target.Host, target.Name, err)
	}

	otelsql.ReportDBStatsMetrics(db.DB)
	logger.Info("postgres connected", "host", target.Host, "db", target.Name)
	return db, nil
}
