// Package wire encodes and decodes raw DNS messages. Parsing rides on
// miekg/dns; the relay itself only ever moves opaque byte slices, so every
// function here accepts and returns []byte.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"

	"github.com/miekg/dns"
)

// ErrFormat reports an inbound packet that could not be parsed as a DNS
// query. Callers must treat it as a per-packet condition, never a fatal one.
var ErrFormat = errors.New("malformed DNS message")

// Query is the decoded question of an inbound packet.
type Query struct {
	// ID is the transaction id echoed back in every response.
	ID uint16

	// Name is the question name as it appears on the wire (fully qualified,
	// trailing dot).
	Name string

	// Qtype is the question type (dns.TypeA etc).
	Qtype uint16
}

// DecodeQuery parses the question section out of raw query bytes. Truncated
// input, overlong labels, and unterminated names all surface as ErrFormat.
func DecodeQuery(raw []byte) (Query, error) {
	var msg dns.Msg
	if err := msg.Unpack(raw); err != nil {
		return Query{}, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	if len(msg.Question) == 0 {
		return Query{}, fmt.Errorf("%w: empty question section", ErrFormat)
	}

	q := msg.Question[0]
	return Query{
		ID:    msg.Id,
		Name:  q.Name,
		Qtype: q.Qtype,
	}, nil
}

// NXDomainResponse builds an authoritative NXDOMAIN answer to the original
// query bytes: transaction id and question echoed, QR and RA set, RCODE 3,
// no records.
func NXDomainResponse(raw []byte) []byte {
	var req dns.Msg
	if err := req.Unpack(raw); err != nil {
		return minimalFailure(raw, dns.RcodeNameError)
	}

	resp := new(dns.Msg)
	resp.SetRcode(&req, dns.RcodeNameError)
	resp.Authoritative = true
	resp.RecursionAvailable = true

	packed, err := resp.Pack()
	if err != nil {
		return minimalFailure(raw, dns.RcodeNameError)
	}
	return packed
}

// SinkholeResponse builds a successful answer pointing the queried name at
// the sinkhole address: QR and RA set, RCODE 0, the original question echoed,
// and a single A record (compressed name pointer to the question) with a
// short TTL.
func SinkholeResponse(raw []byte, sinkhole net.IP, ttl uint32) []byte {
	var req dns.Msg
	if err := req.Unpack(raw); err != nil || len(req.Question) == 0 {
		return minimalFailure(raw, dns.RcodeServerFailure)
	}

	resp := new(dns.Msg)
	resp.SetReply(&req)
	resp.RecursionAvailable = true
	resp.Compress = true

	q := req.Question[0]
	resp.Answer = append(resp.Answer, &dns.A{
		Hdr: dns.RR_Header{
			Name:   q.Name,
			Rrtype: dns.TypeA,
			Class:  dns.ClassINET,
			Ttl:    ttl,
		},
		A: sinkhole.To4(),
	})

	packed, err := resp.Pack()
	if err != nil {
		return minimalFailure(raw, dns.RcodeServerFailure)
	}
	return packed
}

// ServfailResponse builds a SERVFAIL answer to the original query bytes,
// used when the upstream resolver could not be reached.
func ServfailResponse(raw []byte) []byte {
	var req dns.Msg
	if err := req.Unpack(raw); err != nil {
		return minimalFailure(raw, dns.RcodeServerFailure)
	}

	resp := new(dns.Msg)
	resp.SetRcode(&req, dns.RcodeServerFailure)
	resp.RecursionAvailable = true

	packed, err := resp.Pack()
	if err != nil {
		return minimalFailure(raw, dns.RcodeServerFailure)
	}
	return packed
}

// minimalFailure is the last-resort reply when the original question section
// cannot be located: a bare 12-byte header reusing whatever transaction id
// and question count the original carried, so the client gets an answer
// instead of a timeout.
func minimalFailure(raw []byte, rcode int) []byte {
	header := make([]byte, 12)

	if len(raw) >= 2 {
		copy(header[0:2], raw[0:2])
	}

	// QR=1, RD=1, RA=1 plus the rcode in the low nibble.
	binary.BigEndian.PutUint16(header[2:4], 0x8180|uint16(rcode&0xF))

	if len(raw) >= 6 {
		copy(header[4:6], raw[4:6])
	}

	return header
}
