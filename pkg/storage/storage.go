// Package storage persists the per-query log and serves aggregate
// statistics over it.
package storage

import (
	"context"
	"time"
)

// Storage is the query-log backend. Implementations must be safe for
// concurrent use.
type Storage interface {
	// LogQuery records one handled query. It must not block query handling;
	// implementations buffer and flush in the background.
	LogQuery(ctx context.Context, query *QueryLog) error

	// GetRecentQueries returns the newest entries, most recent first.
	GetRecentQueries(ctx context.Context, limit int) ([]*QueryLog, error)

	// GetStatistics aggregates counters over entries at or after since.
	GetStatistics(ctx context.Context, since time.Time) (*Statistics, error)

	// GetTopBlockedDomains returns the most frequently blocked domains.
	GetTopBlockedDomains(ctx context.Context, limit int) ([]*DomainStats, error)

	// Cleanup deletes entries older than the given time.
	Cleanup(ctx context.Context, olderThan time.Time) error

	Ping(ctx context.Context) error
	Close() error
}

// QueryLog is one handled DNS query.
type QueryLog struct {
	Timestamp      time.Time `json:"timestamp"`
	ClientIP       string    `json:"client_ip"`
	Domain         string    `json:"domain"`
	QueryType      string    `json:"query_type"`
	Upstream       string    `json:"upstream,omitempty"`
	ID             int64     `json:"id"`
	Probability    float64   `json:"probability"`
	ResponseTimeMs float64   `json:"response_time_ms"`
	Blocked        bool      `json:"blocked"`
	Cached         bool      `json:"cached"`
	Failed         bool      `json:"failed"`
}

// Statistics aggregates query counters over a time window.
type Statistics struct {
	Since             time.Time `json:"since"`
	Until             time.Time `json:"until"`
	TotalQueries      int64     `json:"total_queries"`
	BlockedQueries    int64     `json:"blocked_queries"`
	CachedQueries     int64     `json:"cached_queries"`
	FailedQueries     int64     `json:"failed_queries"`
	UniqueDomains     int64     `json:"unique_domains"`
	AvgResponseTimeMs float64   `json:"avg_response_time_ms"`
	BlockRate         float64   `json:"block_rate"`
	CacheHitRate      float64   `json:"cache_hit_rate"`
}

// DomainStats summarizes one domain's query history.
type DomainStats struct {
	LastQueried time.Time `json:"last_queried"`
	Domain      string    `json:"domain"`
	QueryCount  int64     `json:"query_count"`
}
