package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"adwarden/pkg/config"

	"github.com/stretchr/testify/require"
)

func testStorage(t *testing.T) Storage {
	t.Helper()
	cfg := &config.StorageConfig{
		Enabled:       true,
		DatabasePath:  filepath.Join(t.TempDir(), "test.db"),
		BufferSize:    100,
		FlushInterval: 20 * time.Millisecond,
		RetentionDays: 30,
	}
	s, err := NewSQLite(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func logEntry(domain string, blocked bool, probability float64) *QueryLog {
	return &QueryLog{
		Timestamp:   time.Now(),
		ClientIP:    "127.0.0.1",
		Domain:      domain,
		QueryType:   "A",
		Probability: probability,
		Blocked:     blocked,
	}
}

func waitForRows(t *testing.T, s Storage, want int) []*QueryLog {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		rows, err := s.GetRecentQueries(context.Background(), want+10)
		require.NoError(t, err)
		if len(rows) >= want {
			return rows
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d rows to flush", want)
	return nil
}

func TestNewSQLiteNilConfig(t *testing.T) {
	_, err := NewSQLite(nil)
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLogAndQuery(t *testing.T) {
	s := testStorage(t)
	ctx := context.Background()

	require.NoError(t, s.LogQuery(ctx, logEntry("ads.example.com", true, 0.92)))
	require.NoError(t, s.LogQuery(ctx, logEntry("wikipedia.org", false, 0.03)))

	rows := waitForRows(t, s, 2)
	require.Len(t, rows, 2)

	byDomain := map[string]*QueryLog{}
	for _, r := range rows {
		byDomain[r.Domain] = r
	}
	blockedRow, ok := byDomain["ads.example.com"]
	require.True(t, ok, "blocked row missing")
	require.True(t, blockedRow.Blocked)
	require.Equal(t, 0.92, blockedRow.Probability)
	require.Equal(t, "127.0.0.1", blockedRow.ClientIP)
	require.Equal(t, "A", blockedRow.QueryType)
}

func TestGetStatistics(t *testing.T) {
	s := testStorage(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, s.LogQuery(ctx, logEntry("ads.example.com", true, 0.9)))
	}
	require.NoError(t, s.LogQuery(ctx, logEntry("wikipedia.org", false, 0.1)))
	waitForRows(t, s, 4)

	stats, err := s.GetStatistics(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.EqualValues(t, 4, stats.TotalQueries)
	require.EqualValues(t, 3, stats.BlockedQueries)
	require.EqualValues(t, 2, stats.UniqueDomains)
	require.Equal(t, 0.75, stats.BlockRate)
}

func TestGetTopBlockedDomains(t *testing.T) {
	s := testStorage(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.LogQuery(ctx, logEntry("tracker.example.com", true, 0.9)))
	}
	for i := 0; i < 2; i++ {
		require.NoError(t, s.LogQuery(ctx, logEntry("ads.example.com", true, 0.8)))
	}
	require.NoError(t, s.LogQuery(ctx, logEntry("wikipedia.org", false, 0.1)))
	waitForRows(t, s, 8)

	top, err := s.GetTopBlockedDomains(ctx, 10)
	require.NoError(t, err)
	require.Len(t, top, 2)
	require.Equal(t, "tracker.example.com", top[0].Domain)
	require.EqualValues(t, 5, top[0].QueryCount)
	require.Equal(t, "ads.example.com", top[1].Domain)
	require.EqualValues(t, 2, top[1].QueryCount)
}

func TestCleanup(t *testing.T) {
	s := testStorage(t)
	ctx := context.Background()

	old := logEntry("old.example.com", false, 0.1)
	old.Timestamp = time.Now().Add(-48 * time.Hour)
	require.NoError(t, s.LogQuery(ctx, old))
	require.NoError(t, s.LogQuery(ctx, logEntry("new.example.com", false, 0.1)))
	waitForRows(t, s, 2)

	require.NoError(t, s.Cleanup(ctx, time.Now().Add(-24*time.Hour)))

	rows, err := s.GetRecentQueries(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "new.example.com", rows[0].Domain)
}

func TestLogAfterClose(t *testing.T) {
	cfg := &config.StorageConfig{
		Enabled:       true,
		DatabasePath:  filepath.Join(t.TempDir(), "test.db"),
		BufferSize:    10,
		FlushInterval: time.Second,
	}
	s, err := NewSQLite(cfg)
	require.NoError(t, err)

	require.NoError(t, s.Close())
	require.ErrorIs(t, s.LogQuery(context.Background(), logEntry("a.com", false, 0)), ErrClosed)
	// Closing twice is a no-op.
	require.NoError(t, s.Close())
}

func TestPing(t *testing.T) {
	s := testStorage(t)
	require.NoError(t, s.Ping(context.Background()))
}
