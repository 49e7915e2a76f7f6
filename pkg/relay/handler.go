package relay

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"adwarden/pkg/cache"
	"adwarden/pkg/classifier"
	"adwarden/pkg/config"
	"adwarden/pkg/features"
	"adwarden/pkg/forwarder"
	"adwarden/pkg/logging"
	"adwarden/pkg/storage"
	"adwarden/pkg/telemetry"
	"adwarden/pkg/wire"

	"github.com/miekg/dns"
)

// Handler processes one raw DNS packet end to end: decode, cache lookups,
// classification, then block or forward. Every per-query error is contained
// here; HandlePacket never panics on hostile input.
type Handler struct {
	Extractor     *features.Extractor
	Classifier    *classifier.Adapter
	Forwarder     *forwarder.Forwarder
	ResponseCache *cache.Cache[[]byte]
	BlockCache    *cache.Cache[bool]
	Storage       storage.Storage
	Metrics       *telemetry.Metrics
	Logger        *logging.Logger
	Watcher       *config.Watcher

	cfg   *config.Config
	stats Stats
}

// NewHandler creates a handler bound to a static configuration. Runtime
// tunables come from the config watcher when one is attached.
func NewHandler(cfg *config.Config, logger *logging.Logger) *Handler {
	return &Handler{
		cfg:    cfg,
		Logger: logger,
	}
}

// Stats returns a snapshot of the handler's counters.
func (h *Handler) Stats() Snapshot {
	return h.stats.Snapshot()
}

// config returns the live configuration, preferring the hot-reload watcher.
func (h *Handler) config() *config.Config {
	if h.Watcher != nil {
		return h.Watcher.Config()
	}
	return h.cfg
}

// HandlePacket processes one inbound packet and returns the response bytes
// to send back, or nil when the packet should be dropped.
func (h *Handler) HandlePacket(ctx context.Context, raw []byte, clientIP string) []byte {
	start := time.Now()
	h.stats.RecordQuery()

	if h.Metrics != nil {
		h.Metrics.QueriesTotal.Add(ctx, 1)
		h.Metrics.ActiveQueries.Add(ctx, 1)
		defer h.Metrics.ActiveQueries.Add(ctx, -1)
	}

	query, err := wire.DecodeQuery(raw)
	if err != nil {
		return h.handleMalformed(ctx, raw, clientIP, err)
	}

	cfg := h.config()
	domain := strings.ToLower(strings.TrimSuffix(query.Name, "."))
	qtype := dns.TypeToString[query.Qtype]

	if cfg.Cache.Enabled {
		if resp := h.lookupResponseCache(ctx, query, domain, qtype, clientIP, start); resp != nil {
			return resp
		}
		if blocked, ok := h.BlockCache.Get(domain); ok {
			h.stats.RecordCacheHit()
			if h.Metrics != nil {
				h.Metrics.BlockCacheHits.Add(ctx, 1)
			}
			if blocked {
				return h.respondBlocked(ctx, raw, domain, qtype, clientIP, 0, start, true)
			}
			return h.forward(ctx, raw, query, domain, qtype, clientIP, 0, start)
		}
	}

	probability, verdict := h.classify(ctx, cfg, domain)

	if verdict == classifier.Block {
		return h.respondBlocked(ctx, raw, domain, qtype, clientIP, probability, start, false)
	}
	return h.forward(ctx, raw, query, domain, qtype, clientIP, probability, start)
}

// handleMalformed forwards undecodable packets upstream unmodified so clients
// with exotic but valid queries still get an answer. If the upstream cannot
// help either, the packet is dropped.
func (h *Handler) handleMalformed(ctx context.Context, raw []byte, clientIP string, decodeErr error) []byte {
	h.stats.RecordError()
	if h.Metrics != nil {
		h.Metrics.DecodeErrors.Add(ctx, 1)
	}
	h.Logger.Warn("Failed to decode query, forwarding raw bytes",
		"client", clientIP,
		"size", len(raw),
		"error", decodeErr,
	)

	resp, upstream, err := h.Forwarder.Forward(ctx, raw)
	if err != nil {
		h.Logger.Warn("Raw forward of malformed packet failed, dropping",
			"client", clientIP,
			"upstream", upstream,
			"error", err,
		)
		return nil
	}
	return resp
}

// lookupResponseCache replies from cached response bytes, patching in the
// current transaction id so the client accepts the stale-id cached copy.
func (h *Handler) lookupResponseCache(ctx context.Context, query wire.Query, domain, qtype, clientIP string, start time.Time) []byte {
	key := responseCacheKey(domain, query.Qtype)
	cached, ok := h.ResponseCache.Get(key)
	if !ok {
		return nil
	}

	h.stats.RecordCacheHit()
	if h.Metrics != nil {
		h.Metrics.ResponseCacheHits.Add(ctx, 1)
	}

	resp := make([]byte, len(cached))
	copy(resp, cached)
	patchTransactionID(resp, query.ID)

	h.Logger.Debug("Response cache hit",
		"domain", domain,
		"type", qtype,
		"client", clientIP,
	)
	h.logQuery(ctx, &storage.QueryLog{
		ClientIP:       clientIP,
		Domain:         domain,
		QueryType:      qtype,
		Cached:         true,
		ResponseTimeMs: msSince(start),
	})
	return resp
}

// classify runs the extractor and classifier for a cache-missed domain.
// Scoring failures fail open to Allow and leave the block-decision cache
// untouched so the domain is re-evaluated next time.
func (h *Handler) classify(ctx context.Context, cfg *config.Config, domain string) (float64, classifier.Verdict) {
	classifyStart := time.Now()
	vector := h.Extractor.Extract(domain)
	probability, verdict, err := h.Classifier.Classify(vector)
	if h.Metrics != nil {
		h.Metrics.ClassifyDuration.Record(ctx, msSince(classifyStart))
	}

	if err != nil {
		if h.Metrics != nil {
			h.Metrics.ClassifierFailures.Add(ctx, 1)
		}
		h.Logger.Error("Classifier failed, allowing query",
			"domain", domain,
			"error", err,
		)
		return probability, classifier.Allow
	}

	if cfg.Cache.Enabled {
		h.BlockCache.Set(domain, verdict == classifier.Block, cfg.Cache.BlockTTL)
	}
	return probability, verdict
}

// respondBlocked builds the configured blocked response (NXDOMAIN or
// sinkhole A record).
func (h *Handler) respondBlocked(ctx context.Context, raw []byte, domain, qtype, clientIP string, probability float64, start time.Time, fromCache bool) []byte {
	h.stats.RecordBlock()
	if h.Metrics != nil {
		h.Metrics.QueriesBlocked.Add(ctx, 1)
	}

	cfg := h.config()
	var resp []byte
	if cfg.Blocking.Mode == config.BlockModeSinkhole {
		sinkhole := net.ParseIP(cfg.Blocking.SinkholeAddress)
		resp = wire.SinkholeResponse(raw, sinkhole, cfg.Blocking.SinkholeTTL)
	} else {
		resp = wire.NXDomainResponse(raw)
	}

	h.Logger.Info("Query blocked",
		"domain", domain,
		"type", qtype,
		"client", clientIP,
		"probability", probability,
		"mode", cfg.Blocking.Mode,
		"cached_decision", fromCache,
	)
	h.logQuery(ctx, &storage.QueryLog{
		ClientIP:       clientIP,
		Domain:         domain,
		QueryType:      qtype,
		Probability:    probability,
		Blocked:        true,
		Cached:         fromCache,
		ResponseTimeMs: msSince(start),
	})
	return resp
}

// forward relays the original raw bytes upstream and caches the response.
// Upstream failure is the one per-query error the client sees, as SERVFAIL.
func (h *Handler) forward(ctx context.Context, raw []byte, query wire.Query, domain, qtype, clientIP string, probability float64, start time.Time) []byte {
	upstreamStart := time.Now()
	resp, upstream, err := h.Forwarder.Forward(ctx, raw)
	if h.Metrics != nil {
		h.Metrics.UpstreamDuration.Record(ctx, msSince(upstreamStart))
	}

	if err != nil {
		h.stats.RecordError()
		if h.Metrics != nil {
			h.Metrics.UpstreamFailures.Add(ctx, 1)
		}
		if errors.Is(err, forwarder.ErrUpstreamTimeout) {
			h.Logger.Warn("Upstream timed out",
				"domain", domain,
				"upstream", upstream,
			)
		} else {
			h.Logger.Error("Upstream forward failed",
				"domain", domain,
				"upstream", upstream,
				"error", err,
			)
		}
		h.logQuery(ctx, &storage.QueryLog{
			ClientIP:       clientIP,
			Domain:         domain,
			QueryType:      qtype,
			Probability:    probability,
			Failed:         true,
			Upstream:       upstream,
			ResponseTimeMs: msSince(start),
		})
		return wire.ServfailResponse(raw)
	}

	h.stats.RecordForward()
	if h.Metrics != nil {
		h.Metrics.QueriesForwarded.Add(ctx, 1)
	}

	cfg := h.config()
	if cfg.Cache.Enabled {
		stored := make([]byte, len(resp))
		copy(stored, resp)
		h.ResponseCache.Set(responseCacheKey(domain, query.Qtype), stored, cfg.Cache.ResponseTTL)
	}

	h.Logger.Debug("Query forwarded",
		"domain", domain,
		"type", qtype,
		"upstream", upstream,
		"duration_ms", msSince(upstreamStart),
	)
	h.logQuery(ctx, &storage.QueryLog{
		ClientIP:       clientIP,
		Domain:         domain,
		QueryType:      qtype,
		Probability:    probability,
		Upstream:       upstream,
		ResponseTimeMs: msSince(start),
	})
	return resp
}

// logQuery records the query in storage when enabled. The storage buffer is
// non-blocking; a full buffer drops the entry rather than stall the relay.
func (h *Handler) logQuery(ctx context.Context, entry *storage.QueryLog) {
	if h.Storage == nil {
		return
	}
	entry.Timestamp = time.Now()
	if err := h.Storage.LogQuery(ctx, entry); err != nil {
		if errors.Is(err, storage.ErrBufferFull) {
			h.Logger.Debug("Query log buffer full, entry dropped", "domain", entry.Domain)
			return
		}
		h.Logger.Warn("Failed to log query", "domain", entry.Domain, "error", err)
	}
}

func responseCacheKey(domain string, qtype uint16) string {
	return fmt.Sprintf("%s:%d", domain, qtype)
}

// patchTransactionID rewrites the transaction id of an encoded response so a
// cached copy matches the query that is being answered.
func patchTransactionID(resp []byte, id uint16) {
	if len(resp) >= 2 {
		binary.BigEndian.PutUint16(resp[:2], id)
	}
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t).Microseconds()) / 1000.0
}
