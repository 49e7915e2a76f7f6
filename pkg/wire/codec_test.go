package wire

import (
	"bytes"
	"errors"
	"net"
	"testing"

	"github.com/miekg/dns"
)

func packQuery(t *testing.T, domain string, qtype uint16, id uint16) []byte {
	t.Helper()
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(domain), qtype)
	m.Id = id
	raw, err := m.Pack()
	if err != nil {
		t.Fatalf("failed to pack query: %v", err)
	}
	return raw
}

func TestDecodeQuery(t *testing.T) {
	raw := packQuery(t, "example.com", dns.TypeA, 0xBEEF)

	q, err := DecodeQuery(raw)
	if err != nil {
		t.Fatalf("DecodeQuery: %v", err)
	}
	if q.ID != 0xBEEF {
		t.Errorf("ID = %#x, want 0xBEEF", q.ID)
	}
	if q.Name != "example.com." {
		t.Errorf("Name = %q, want example.com.", q.Name)
	}
	if q.Qtype != dns.TypeA {
		t.Errorf("Qtype = %d, want A", q.Qtype)
	}
}

func TestDecodeQueryMalformed(t *testing.T) {
	cases := [][]byte{
		nil,
		{0x01},
		{0xAB, 0xCD, 0x01},                    // 3-byte packet
		bytes.Repeat([]byte{0xFF}, 11),        // short of a full header
	}
	for _, raw := range cases {
		if _, err := DecodeQuery(raw); err == nil {
			t.Errorf("DecodeQuery(% x): expected error", raw)
		}
	}

	// A bare header with no question is also a format error.
	header := make([]byte, 12)
	if _, err := DecodeQuery(header); err == nil {
		t.Error("expected error for empty question section")
	}
}

func TestDecodeQueryErrorIsFormat(t *testing.T) {
	_, err := DecodeQuery([]byte{0xAB, 0xCD, 0x01})
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, ErrFormat) {
		t.Errorf("error %v should wrap ErrFormat", err)
	}
}

func TestQuestionRoundTrip(t *testing.T) {
	raw := packQuery(t, "www.example.com", dns.TypeAAAA, 42)

	var m dns.Msg
	if err := m.Unpack(raw); err != nil {
		t.Fatalf("Unpack: %v", err)
	}
	repacked, err := m.Pack()
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	if !bytes.Equal(raw, repacked) {
		t.Errorf("round trip changed the message:\n  in:  % x\n  out: % x", raw, repacked)
	}
}

func TestNXDomainResponse(t *testing.T) {
	raw := packQuery(t, "ads.example.com", dns.TypeA, 0x1234)

	respBytes := NXDomainResponse(raw)
	var resp dns.Msg
	if err := resp.Unpack(respBytes); err != nil {
		t.Fatalf("Unpack response: %v", err)
	}

	if resp.Id != 0x1234 {
		t.Errorf("Id = %#x, want 0x1234", resp.Id)
	}
	if !resp.Response {
		t.Error("QR bit not set")
	}
	if resp.Rcode != dns.RcodeNameError {
		t.Errorf("Rcode = %d, want NXDOMAIN", resp.Rcode)
	}
	if !resp.Authoritative {
		t.Error("AA bit not set")
	}
	if len(resp.Answer) != 0 {
		t.Errorf("answer count = %d, want 0", len(resp.Answer))
	}
	if len(resp.Question) != 1 || resp.Question[0].Name != "ads.example.com." {
		t.Errorf("question not echoed: %+v", resp.Question)
	}
}

func TestSinkholeResponse(t *testing.T) {
	raw := packQuery(t, "tracker.example.com", dns.TypeA, 0x4242)

	respBytes := SinkholeResponse(raw, net.ParseIP("0.0.0.0"), 60)
	var resp dns.Msg
	if err := resp.Unpack(respBytes); err != nil {
		t.Fatalf("Unpack response: %v", err)
	}

	if resp.Id != 0x4242 {
		t.Errorf("Id = %#x, want 0x4242", resp.Id)
	}
	if resp.Rcode != dns.RcodeSuccess {
		t.Errorf("Rcode = %d, want NOERROR", resp.Rcode)
	}
	if len(resp.Answer) != 1 {
		t.Fatalf("answer count = %d, want 1", len(resp.Answer))
	}

	a, ok := resp.Answer[0].(*dns.A)
	if !ok {
		t.Fatalf("answer is %T, want *dns.A", resp.Answer[0])
	}
	if !a.A.Equal(net.IPv4zero) {
		t.Errorf("A = %v, want 0.0.0.0", a.A)
	}
	if a.Hdr.Ttl != 60 {
		t.Errorf("TTL = %d, want 60", a.Hdr.Ttl)
	}
	if a.Hdr.Name != "tracker.example.com." {
		t.Errorf("answer name = %q", a.Hdr.Name)
	}

	// The answer name should be a compression pointer back to the question
	// (0xC00C), keeping the packet small.
	idx := bytes.Index(respBytes, []byte{0xC0, 0x0C})
	if idx < 0 {
		t.Error("expected a compression pointer to offset 12 in the answer")
	}
}

func TestServfailResponse(t *testing.T) {
	raw := packQuery(t, "slow.example.com", dns.TypeA, 0x7777)

	respBytes := ServfailResponse(raw)
	var resp dns.Msg
	if err := resp.Unpack(respBytes); err != nil {
		t.Fatalf("Unpack response: %v", err)
	}

	if resp.Id != 0x7777 {
		t.Errorf("Id = %#x, want 0x7777", resp.Id)
	}
	if resp.Rcode != dns.RcodeServerFailure {
		t.Errorf("Rcode = %d, want SERVFAIL", resp.Rcode)
	}
}

func TestMinimalFailureFallback(t *testing.T) {
	// Undecodable input still yields a parseable 12-byte header echoing the
	// transaction id.
	raw := []byte{0xDE, 0xAD, 0x01}
	respBytes := ServfailResponse(raw)

	if len(respBytes) != 12 {
		t.Fatalf("response length = %d, want 12", len(respBytes))
	}
	if respBytes[0] != 0xDE || respBytes[1] != 0xAD {
		t.Errorf("transaction id not echoed: % x", respBytes[:2])
	}

	var resp dns.Msg
	if err := resp.Unpack(respBytes); err != nil {
		t.Fatalf("fallback header does not parse: %v", err)
	}
	if resp.Rcode != dns.RcodeServerFailure {
		t.Errorf("Rcode = %d, want SERVFAIL", resp.Rcode)
	}
	if !resp.Response {
		t.Error("QR bit not set")
	}
}
