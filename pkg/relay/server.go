package relay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"adwarden/pkg/config"
	"adwarden/pkg/logging"
)

// inboundBufferSize bounds inbound packets at the classic non-EDNS UDP limit.
const inboundBufferSize = 512

// Server owns the listening UDP socket and dispatches one goroutine per
// inbound packet. The read loop itself never blocks on query handling.
type Server struct {
	cfg     *config.Config
	handler *Handler
	logger  *logging.Logger
	conn    net.PacketConn
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.RWMutex
}

// NewServer creates a new relay server.
func NewServer(cfg *config.Config, handler *Handler, logger *logging.Logger) *Server {
	return &Server{
		cfg:     cfg,
		handler: handler,
		logger:  logger,
	}
}

// Start binds the listen address and serves until the context is cancelled.
// A failed bind is returned immediately so startup can abort.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}

	conn, err := net.ListenPacket("udp", s.cfg.Server.ListenAddress)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to bind %s: %w", s.cfg.Server.ListenAddress, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	s.conn = conn
	s.cancel = cancel
	s.running = true
	s.mu.Unlock()

	s.logger.Info("DNS relay listening",
		"address", conn.LocalAddr().String(),
		"upstreams", s.handler.Forwarder.Upstreams(),
	)

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	buf := make([]byte, inboundBufferSize)
	for {
		n, addr, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				s.wg.Wait()
				return nil
			}
			s.logger.Error("Read error on listen socket", "error", err)
			continue
		}

		packet := make([]byte, n)
		copy(packet, buf[:n])

		s.wg.Add(1)
		go s.serve(ctx, packet, addr)
	}
}

func (s *Server) serve(ctx context.Context, packet []byte, addr net.Addr) {
	defer s.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Panic while handling query",
				"client", addr.String(),
				"panic", r,
			)
		}
	}()

	resp := s.handler.HandlePacket(ctx, packet, clientIP(addr))
	if resp == nil {
		return
	}
	if _, err := s.conn.WriteTo(resp, addr); err != nil {
		s.logger.Warn("Failed to send response", "client", addr.String(), "error", err)
	}
}

// Shutdown stops the listener and waits for in-flight queries, bounded by
// the provided context.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	s.logger.Info("Shutting down DNS relay")
	s.cancel()
	_ = s.conn.Close()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	s.running = false

	select {
	case <-done:
		s.logger.Info("DNS relay shut down", "stats", s.handler.Stats())
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// LocalAddr returns the bound listen address, nil before Start.
func (s *Server) LocalAddr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

// IsRunning returns whether the server is currently serving.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func clientIP(addr net.Addr) string {
	if addr == nil {
		return "unknown"
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
