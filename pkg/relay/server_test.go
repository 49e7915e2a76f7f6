package relay

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/miekg/dns"
)

func startServer(t *testing.T, h *Handler) *Server {
	t.Helper()

	cfg := h.cfg
	cfg.Server.ListenAddress = "127.0.0.1:0"
	srv := NewServer(cfg, h, h.Logger)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = srv.Start(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for srv.LocalAddr() == nil {
		if time.Now().After(deadline) {
			t.Fatal("server did not bind in time")
		}
		time.Sleep(10 * time.Millisecond)
	}

	t.Cleanup(func() {
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	})
	return srv
}

func exchange(t *testing.T, addr net.Addr, raw []byte) []byte {
	t.Helper()

	conn, err := net.Dial("udp", addr.String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatal(err)
	}
	if _, err := conn.Write(raw); err != nil {
		t.Fatalf("write: %v", err)
	}

	buf := make([]byte, 4096)
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return buf[:n]
}

func TestServerEndToEnd(t *testing.T) {
	upstream, _ := stubUpstream(t, net.IPv4(192, 0, 2, 10))
	cfg := testConfig(upstream)

	h := testHandler(t, cfg, &stubScorer{probability: 0.9})
	srv := startServer(t, h)

	if !srv.IsRunning() {
		t.Error("IsRunning = false after Start")
	}

	raw := packQuery(t, "ads.example.com", 0x5151)
	resp := unpack(t, exchange(t, srv.LocalAddr(), raw))

	if resp.Id != 0x5151 {
		t.Errorf("Id = %#x, want 0x5151", resp.Id)
	}
	if resp.Rcode != dns.RcodeNameError {
		t.Errorf("Rcode = %d, want NXDOMAIN", resp.Rcode)
	}
}

func TestServerDoubleStart(t *testing.T) {
	upstream, _ := stubUpstream(t, nil)
	cfg := testConfig(upstream)

	h := testHandler(t, cfg, &stubScorer{probability: 0.5})
	srv := startServer(t, h)

	if err := srv.Start(context.Background()); err == nil {
		t.Error("second Start should fail while running")
	}
}

func TestServerBindFailure(t *testing.T) {
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	upstream, _ := stubUpstream(t, nil)
	cfg := testConfig(upstream)
	cfg.Server.ListenAddress = conn.LocalAddr().String()

	h := testHandler(t, cfg, &stubScorer{probability: 0.5})
	srv := NewServer(cfg, h, h.Logger)

	if err := srv.Start(context.Background()); err == nil {
		t.Error("expected bind failure on an occupied port")
	}
}

func TestServerShutdownIdempotent(t *testing.T) {
	upstream, _ := stubUpstream(t, nil)
	cfg := testConfig(upstream)

	h := testHandler(t, cfg, &stubScorer{probability: 0.5})
	srv := startServer(t, h)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
	if srv.IsRunning() {
		t.Error("IsRunning = true after Shutdown")
	}
	if err := srv.Shutdown(ctx); err != nil {
		t.Errorf("second Shutdown: %v", err)
	}
}
