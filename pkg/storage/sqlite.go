package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"adwarden/pkg/config"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS queries (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp INTEGER NOT NULL,
	client_ip TEXT NOT NULL,
	domain TEXT NOT NULL,
	query_type TEXT NOT NULL,
	probability REAL NOT NULL DEFAULT 0,
	blocked INTEGER NOT NULL DEFAULT 0,
	cached INTEGER NOT NULL DEFAULT 0,
	failed INTEGER NOT NULL DEFAULT 0,
	response_time_ms REAL NOT NULL DEFAULT 0,
	upstream TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_queries_timestamp ON queries(timestamp);
CREATE INDEX IF NOT EXISTS idx_queries_domain ON queries(domain);
CREATE INDEX IF NOT EXISTS idx_queries_blocked ON queries(blocked, timestamp);
`

// flushBatchSize caps how many buffered entries go into one transaction.
const flushBatchSize = 200

// SQLiteStorage implements Storage using SQLite via modernc.org/sqlite.
// Writes are buffered on a channel and flushed in batched transactions by a
// background worker, so LogQuery never blocks the relay.
type SQLiteStorage struct {
	db         *sql.DB
	cfg        *config.StorageConfig
	buffer     chan *QueryLog
	stmtInsert *sql.Stmt
	wg         sync.WaitGroup
	mu         sync.RWMutex
	closed     bool
}

// NewSQLite opens (or creates) the query-log database and starts the flush
// worker.
func NewSQLite(cfg *config.StorageConfig) (Storage, error) {
	if cfg == nil {
		return nil, ErrInvalidConfig
	}

	db, err := sql.Open("sqlite", cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	// SQLite works best with a single writer connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	pragmas := []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	stmtInsert, err := db.Prepare(`
		INSERT INTO queries
		(timestamp, client_ip, domain, query_type, probability, blocked, cached, failed, response_time_ms, upstream)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to prepare insert statement: %w", err)
	}

	s := &SQLiteStorage{
		db:         db,
		cfg:        cfg,
		buffer:     make(chan *QueryLog, cfg.BufferSize),
		stmtInsert: stmtInsert,
	}

	s.wg.Add(1)
	go s.flushWorker()

	return s, nil
}

// LogQuery enqueues one entry; it drops the entry (ErrBufferFull) rather
// than block when the buffer is saturated.
func (s *SQLiteStorage) LogQuery(ctx context.Context, query *QueryLog) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrClosed
	}

	if query.Timestamp.IsZero() {
		query.Timestamp = time.Now()
	}

	select {
	case s.buffer <- query:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrBufferFull
	}
}

// flushWorker drains the buffer into batched transactions, flushing when a
// batch fills or the flush interval elapses, and once more on shutdown.
func (s *SQLiteStorage) flushWorker() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]*QueryLog, 0, flushBatchSize)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := s.flushBatch(batch); err != nil {
			slog.Default().Error("Failed to flush query batch",
				"error", err,
				"batch_size", len(batch),
			)
		}
		batch = batch[:0]
	}

	for {
		select {
		case query, ok := <-s.buffer:
			if !ok {
				flush()
				return
			}
			batch = append(batch, query)
			if len(batch) >= flushBatchSize {
				flush()
			}

		case <-ticker.C:
			flush()
		}
	}
}

func (s *SQLiteStorage) flushBatch(queries []*QueryLog) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrQueryFailed, err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt := tx.Stmt(s.stmtInsert)
	for _, q := range queries {
		if _, err := stmt.Exec(
			q.Timestamp.UnixMilli(),
			q.ClientIP,
			q.Domain,
			q.QueryType,
			q.Probability,
			boolInt(q.Blocked),
			boolInt(q.Cached),
			boolInt(q.Failed),
			q.ResponseTimeMs,
			q.Upstream,
		); err != nil {
			return fmt.Errorf("%w: %v", ErrQueryFailed, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", ErrQueryFailed, err)
	}
	return nil
}

// GetRecentQueries returns the newest entries, most recent first.
func (s *SQLiteStorage) GetRecentQueries(ctx context.Context, limit int) ([]*QueryLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, timestamp, client_ip, domain, query_type, probability,
		       blocked, cached, failed, response_time_ms, upstream
		FROM queries
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQueryFailed, err)
	}
	defer rows.Close()

	var result []*QueryLog
	for rows.Next() {
		var q QueryLog
		var ts int64
		var blocked, cached, failed int
		if err := rows.Scan(&q.ID, &ts, &q.ClientIP, &q.Domain, &q.QueryType,
			&q.Probability, &blocked, &cached, &failed, &q.ResponseTimeMs, &q.Upstream); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrQueryFailed, err)
		}
		q.Timestamp = time.UnixMilli(ts)
		q.Blocked = blocked != 0
		q.Cached = cached != 0
		q.Failed = failed != 0
		result = append(result, &q)
	}
	return result, rows.Err()
}

// GetStatistics aggregates counters over entries at or after since.
func (s *SQLiteStorage) GetStatistics(ctx context.Context, since time.Time) (*Statistics, error) {
	stats := &Statistics{
		Since: since,
		Until: time.Now(),
	}

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(blocked), 0),
		       COALESCE(SUM(cached), 0),
		       COALESCE(SUM(failed), 0),
		       COUNT(DISTINCT domain),
		       COALESCE(AVG(response_time_ms), 0)
		FROM queries
		WHERE timestamp >= ?
	`, since.UnixMilli()).Scan(
		&stats.TotalQueries,
		&stats.BlockedQueries,
		&stats.CachedQueries,
		&stats.FailedQueries,
		&stats.UniqueDomains,
		&stats.AvgResponseTimeMs,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQueryFailed, err)
	}

	if stats.TotalQueries > 0 {
		stats.BlockRate = float64(stats.BlockedQueries) / float64(stats.TotalQueries)
		stats.CacheHitRate = float64(stats.CachedQueries) / float64(stats.TotalQueries)
	}
	return stats, nil
}

// GetTopBlockedDomains returns the most frequently blocked domains.
func (s *SQLiteStorage) GetTopBlockedDomains(ctx context.Context, limit int) ([]*DomainStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT domain, COUNT(*) AS hits, MAX(timestamp)
		FROM queries
		WHERE blocked = 1
		GROUP BY domain
		ORDER BY hits DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQueryFailed, err)
	}
	defer rows.Close()

	var result []*DomainStats
	for rows.Next() {
		var d DomainStats
		var ts int64
		if err := rows.Scan(&d.Domain, &d.QueryCount, &ts); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrQueryFailed, err)
		}
		d.LastQueried = time.UnixMilli(ts)
		result = append(result, &d)
	}
	return result, rows.Err()
}

// Cleanup deletes entries older than the given time.
func (s *SQLiteStorage) Cleanup(ctx context.Context, olderThan time.Time) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM queries WHERE timestamp < ?`, olderThan.UnixMilli()); err != nil {
		return fmt.Errorf("%w: %v", ErrQueryFailed, err)
	}
	return nil
}

// Ping checks the database connection.
func (s *SQLiteStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close flushes buffered entries and closes the database.
func (s *SQLiteStorage) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.buffer)
	s.wg.Wait()

	_ = s.stmtInsert.Close()
	return s.db.Close()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
