package dnsresolver

import (
	"encoding/binary"
	"strings"

	"github.com/nvr-core/resolve/internal/domain"
)

const (
	maxHostnameLen = 253
	maxLabelLen    = 63
	udpPacketSize  = 512 // RFC 1035 limits a DNS request UDP packet to 512 bytes.

	flagsStandardQuery = 0x0100 // standard query, recursion desired
	qtypeA             = 1
	qclassIN           = 1
)

// validateHostname enforces the facade-level length limits (spec
// §4.3): a label over 63 bytes or a hostname over 253 bytes fails
// DomainNameTooLong before a record is ever created.
func validateHostname(hostname string) error {
	if len(hostname) == 0 || len(hostname) > maxHostnameLen {
		return domain.ErrDomainNameTooLong
	}
	for _, label := range strings.Split(hostname, ".") {
		if len(label) == 0 || len(label) > maxLabelLen {
			return domain.ErrDomainNameTooLong
		}
	}
	return nil
}

// buildQuery encodes a DNS A-record query for hostname with the given
// transaction id into buf, grounded byte-for-byte on
// _examples/original_source/branches/async_dns/src/ting/Socket.cpp's
// Resolver::SendRequestToDNS. Returns the slice of buf actually used.
func buildQuery(buf []byte, id uint16, hostname string) []byte {
	p := buf[:0]

	var hdr [12]byte
	binary.BigEndian.PutUint16(hdr[0:2], id)
	binary.BigEndian.PutUint16(hdr[2:4], flagsStandardQuery)
	binary.BigEndian.PutUint16(hdr[4:6], 1)   // qdcount
	binary.BigEndian.PutUint16(hdr[6:8], 0)   // ancount
	binary.BigEndian.PutUint16(hdr[8:10], 0)  // nscount
	binary.BigEndian.PutUint16(hdr[10:12], 0) // arcount
	p = append(p, hdr[:]...)

	p = appendQName(p, hostname)

	var tail [4]byte
	binary.BigEndian.PutUint16(tail[0:2], qtypeA)
	binary.BigEndian.PutUint16(tail[2:4], qclassIN)
	p = append(p, tail[:]...)

	return p
}

// appendQName encodes hostname as length-prefixed labels terminated
// by a zero length byte.
func appendQName(p []byte, hostname string) []byte {
	for _, label := range strings.Split(hostname, ".") {
		p = append(p, byte(len(label)))
		p = append(p, label...)
	}
	return append(p, 0)
}

// parsedReply is the outcome of walking a reply datagram: either a
// resolved IPv4 address, or an error outcome for the given id.
type parsedReply struct {
	id     uint16
	result domain.Result
	ipv4   uint32
}

// parseReply decodes a single reply datagram (spec §4.3). On any
// malformed packet it returns result=ERROR for the extracted id; the
// caller is responsible for looking the id up in the registry and
// removing the record atomically with this parse. A packet too short
// to even contain an id returns ok=false and must be dropped silently
// (it cannot be attributed to any record).
func parseReply(buf []byte) (reply parsedReply, ok bool) {
	if len(buf) < 12 {
		return parsedReply{}, false
	}

	id := binary.BigEndian.Uint16(buf[0:2])
	flags := binary.BigEndian.Uint16(buf[2:4])
	qdcount := binary.BigEndian.Uint16(buf[4:6])
	ancount := binary.BigEndian.Uint16(buf[6:8])

	reply.id = id

	const qrBit = 1 << 15
	const rcodeMask = 0x000F
	if flags&qrBit == 0 || flags&rcodeMask != 0 {
		reply.result = domain.ErrorResult
		return reply, true
	}

	off := 12
	for i := uint16(0); i < qdcount; i++ {
		var n int
		off, n = skipQName(buf, off)
		if n < 0 {
			reply.result = domain.ErrorResult
			return reply, true
		}
		off += 4 // qtype + qclass
		if off > len(buf) {
			reply.result = domain.ErrorResult
			return reply, true
		}
	}

	if ancount == 0 {
		reply.result = domain.ErrorResult
		return reply, true
	}

	for i := uint16(0); i < ancount; i++ {
		var n int
		off, n = skipQName(buf, off)
		if n < 0 || off+10 > len(buf) {
			reply.result = domain.ErrorResult
			return reply, true
		}
		rtype := binary.BigEndian.Uint16(buf[off : off+2])
		rclass := binary.BigEndian.Uint16(buf[off+2 : off+4])
		rdlength := binary.BigEndian.Uint16(buf[off+8 : off+10])
		off += 10
		if off+int(rdlength) > len(buf) {
			reply.result = domain.ErrorResult
			return reply, true
		}
		if rtype == qtypeA && rclass == qclassIN && rdlength == 4 {
			reply.ipv4 = binary.BigEndian.Uint32(buf[off : off+4])
			reply.result = domain.OK
			return reply, true
		}
		off += int(rdlength)
	}

	// ancount > 0 but no A record found.
	reply.result = domain.ErrorResult
	return reply, true
}

// skipQName advances past one QNAME starting at off, honoring
// compression pointers (the top two bits of a length byte set),
// returning the offset immediately after the name (at the original
// nesting level) and the number of label bytes examined, or n=-1 on a
// malformed name.
func skipQName(buf []byte, off int) (next int, n int) {
	start := off
	for {
		if off >= len(buf) {
			return 0, -1
		}
		l := buf[off]
		switch {
		case l == 0:
			return off + 1, off + 1 - start
		case l&0xC0 == 0xC0:
			if off+1 >= len(buf) {
				return 0, -1
			}
			return off + 2, off + 2 - start
		default:
			off++
			off += int(l)
		}
	}
}
