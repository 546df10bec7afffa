package state

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/JakeFAU/ema-monitor/internal/monitor"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// DefaultTable holds one row per monitor namespace.
const DefaultTable = "monitor_state"

// PostgresConfig controls the connection pool used for state rows.
type PostgresConfig struct {
	DSN             string
	Table           string
	Namespace       string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

type querier interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// PostgresStore keeps state in a single upserted row per namespace.
type PostgresStore struct {
	pool      querier
	table     string
	namespace string
	logger    *zap.Logger
}

// NewPostgresStore connects to Postgres using cfg.
func NewPostgresStore(ctx context.Context, cfg PostgresConfig, logger *zap.Logger) (*PostgresStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("state.postgres.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewPostgresStoreWithPool(pool, cfg.Table, cfg.Namespace, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// NewPostgresStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewPostgresStoreWithPool(pool querier, table, namespace string, logger *zap.Logger) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = DefaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	if namespace == "" {
		return nil, fmt.Errorf("namespace is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgresStore{pool: pool, table: table, namespace: namespace, logger: logger}, nil
}

// Close releases the underlying pool resources.
func (s *PostgresStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the state table when it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	namespace        TEXT PRIMARY KEY,
	last_status      TEXT NOT NULL DEFAULT 'not_found',
	execution_count  BIGINT NOT NULL DEFAULT 0,
	last_report_date TEXT,
	last_item_id     TEXT,
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create state table: %w", err)
	}
	return nil
}

// Load reads the namespace row. A missing row yields the default state.
func (s *PostgresStore) Load(ctx context.Context) (monitor.RunState, error) {
	query := fmt.Sprintf(`
SELECT last_status, execution_count, COALESCE(last_report_date, ''), COALESCE(last_item_id, '')
FROM %s
WHERE namespace = $1`, s.table)

	var (
		rawStatus string
		count     int64
		rawDate   string
		itemID    string
	)
	err := s.pool.QueryRow(ctx, query, s.namespace).Scan(&rawStatus, &count, &rawDate, &itemID)
	if errors.Is(err, pgx.ErrNoRows) {
		return monitor.DefaultRunState(), nil
	}
	if err != nil {
		return monitor.DefaultRunState(), fmt.Errorf("load state: %w", err)
	}

	st := monitor.DefaultRunState()
	status, err := monitor.ParseStatus(rawStatus)
	if err != nil {
		s.logger.Warn("invalid status, assuming not_found", zap.Error(err))
	}
	st.LastStatus = status
	if count >= 0 {
		st.ExecutionCount = int(count)
	}
	if rawDate != "" {
		d, err := parseDate(rawDate)
		if err != nil {
			s.logger.Warn("invalid last report date, ignoring", zap.String("value", rawDate))
		} else {
			st.LastReportDate = d
		}
	}
	st.LastItemID = itemID
	return st, nil
}

// Save upserts the namespace row.
func (s *PostgresStore) Save(ctx context.Context, st monitor.RunState) error {
	query := fmt.Sprintf(`
INSERT INTO %s (namespace, last_status, execution_count, last_report_date, last_item_id, updated_at)
VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), now())
ON CONFLICT (namespace) DO UPDATE SET
	last_status = EXCLUDED.last_status,
	execution_count = EXCLUDED.execution_count,
	last_report_date = COALESCE(EXCLUDED.last_report_date, %s.last_report_date),
	last_item_id = COALESCE(EXCLUDED.last_item_id, %s.last_item_id),
	updated_at = now()`, s.table, s.table, s.table)

	_, err := s.pool.Exec(ctx, query,
		s.namespace,
		string(st.LastStatus),
		int64(st.ExecutionCount),
		formatDate(st.LastReportDate),
		st.LastItemID,
	)
	if err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}
