// Package forwarder relays raw query bytes to the upstream resolvers over
// UDP.
package forwarder

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"adwarden/pkg/config"
	"adwarden/pkg/logging"
)

// ErrUpstreamTimeout reports that the upstream resolver did not answer
// within the configured socket timeout.
var ErrUpstreamTimeout = errors.New("upstream timeout")

// Upstream responses can exceed the 512-byte inbound limit; size the receive
// buffer generously.
const responseBufferSize = 4096

// Forwarder sends query bytes to an upstream resolver on a fresh outbound
// socket per call. When several upstreams are configured they are rotated
// round-robin across queries; a single query is never retried (clients
// retry on SERVFAIL themselves).
type Forwarder struct {
	upstreams []string
	index     atomic.Uint32
	timeout   time.Duration
	logger    *logging.Logger
}

// New creates a forwarder from upstream configuration.
func New(cfg *config.UpstreamConfig, logger *logging.Logger) *Forwarder {
	f := &Forwarder{
		upstreams: cfg.Servers,
		timeout:   cfg.Timeout,
		logger:    logger,
	}

	logger.Info("Forwarder initialized",
		"upstreams", f.upstreams,
		"timeout", f.timeout,
	)

	return f
}

// Forward sends the raw query to the next upstream and returns the raw
// response bytes plus the upstream address used. The exchange is bounded by
// the configured timeout and by ctx, whichever ends first.
func (f *Forwarder) Forward(ctx context.Context, payload []byte) ([]byte, string, error) {
	if len(f.upstreams) == 0 {
		return nil, "", fmt.Errorf("no upstream resolvers configured")
	}

	upstream := f.selectUpstream()

	dialer := net.Dialer{Timeout: f.timeout}
	conn, err := dialer.DialContext(ctx, "udp", upstream)
	if err != nil {
		return nil, upstream, fmt.Errorf("upstream dial %s: %w", upstream, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(f.timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, upstream, fmt.Errorf("upstream deadline: %w", err)
	}

	if _, err := conn.Write(payload); err != nil {
		return nil, upstream, wrapNetErr("upstream write", upstream, err)
	}

	buf := make([]byte, responseBufferSize)
	n, err := conn.Read(buf)
	if err != nil {
		return nil, upstream, wrapNetErr("upstream read", upstream, err)
	}

	f.logger.Debug("Upstream exchange succeeded",
		"upstream", upstream,
		"response_bytes", n,
	)

	return buf[:n], upstream, nil
}

// Upstreams returns the configured upstream resolvers.
func (f *Forwarder) Upstreams() []string {
	return f.upstreams
}

// selectUpstream picks the next upstream round-robin.
func (f *Forwarder) selectUpstream() string {
	idx := f.index.Add(1) % uint32(len(f.upstreams))
	return f.upstreams[idx]
}

// wrapNetErr folds timeout errors into ErrUpstreamTimeout so callers can
// distinguish them from plain socket failures.
func wrapNetErr(op, upstream string, err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%s %s: %w", op, upstream, ErrUpstreamTimeout)
	}
	return fmt.Errorf("%s %s: %w", op, upstream, err)
}
