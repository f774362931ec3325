// Package reporting implements the report scheduler: a periodic scan
// of a persisted, range-ordered key space of DMARC/TLS report events,
// distributed-lock-guarded dispatch, and a bounded inbound command channel.
package reporting

import (
	"encoding/binary"
	"fmt"
)

// Kind discriminates a ReportEvent's report family. The persisted layout's
// trailing kind byte (0=Dmarc, 1=Tls) is the scan discriminator.
type Kind uint8

const (
	KindDmarc Kind = 0
	KindTls   Kind = 1
)

func (k Kind) String() string {
	if k == KindTls {
		return "tls"
	}
	return "dmarc"
}

// ReportEvent is the scheduler-domain record: due (unix seconds),
// policy_hash, seq_id, domain, kind. Ordering within the persisted key
// space is (kind, due, policy_hash, seq_id, domain).
type ReportEvent struct {
	Due        int64
	PolicyHash uint64
	SeqID      uint64
	Domain     string
	Kind       Kind
}

// LockName derives the distributed-lock key for a single event: DMARC
// reports lock per (policy_hash, seq_id) since each header is its own
// report; TLS reports lock per domain since multiple header rows get
// aggregated into one report for the same domain.
func (e ReportEvent) LockName() string {
	switch e.Kind {
	case KindTls:
		return fmt.Sprintf("tls:%s", e.Domain)
	default:
		return fmt.Sprintf("dmarc:%d:%d", e.PolicyHash, e.SeqID)
	}
}

// ValueClassPrefix and QueueClassPrefix are the fixed byte prefixes
// prepended ahead of the kind/due/policy fields - kept as single-byte tags
// here since this subsystem owns its own keyspace rather than sharing one
// with an unrelated store schema.
const (
	ValueClassPrefix byte = 0x10
	QueueClassPrefix byte = 0x01
)

// EncodeKey renders e into its persisted layout: value_class_prefix ||
// queue_class_prefix || kind_byte || be_u64(due) || be_u64(policy_hash) ||
// be_u64(seq_id) || domain_utf8 || kind_byte_trailer. The leading kind_byte
// groups DMARC and TLS into separate contiguous ranges so a scan can
// request just one kind; the trailing kind_byte_trailer is redundant with
// the leading byte but kept for layout symmetry.
func EncodeKey(e ReportEvent) []byte {
	buf := make([]byte, 0, 2+1+8+8+8+len(e.Domain)+1)
	buf = append(buf, ValueClassPrefix, QueueClassPrefix, byte(e.Kind))
	buf = binary.BigEndian.AppendUint64(buf, uint64(e.Due))
	buf = binary.BigEndian.AppendUint64(buf, e.PolicyHash)
	buf = binary.BigEndian.AppendUint64(buf, e.SeqID)
	buf = append(buf, []byte(e.Domain)...)
	buf = append(buf, byte(e.Kind))
	return buf
}

// DecodeKey reverses EncodeKey. Returns an error if buf is shorter than
// the fixed-width prefix.
func DecodeKey(buf []byte) (ReportEvent, error) {
	const fixed = 2 + 1 + 8 + 8 + 8 + 1
	if len(buf) < fixed {
		return ReportEvent{}, fmt.Errorf("reporting: key too short: %d bytes", len(buf))
	}
	kind := Kind(buf[2])
	due := int64(binary.BigEndian.Uint64(buf[3:11]))
	policyHash := binary.BigEndian.Uint64(buf[11:19])
	seqID := binary.BigEndian.Uint64(buf[19:27])
	domain := string(buf[27 : len(buf)-1])
	return ReportEvent{
		Due:        due,
		PolicyHash: policyHash,
		SeqID:      seqID,
		Domain:     domain,
		Kind:       kind,
	}, nil
}

// ReportingCommand is the bounded inbound command union: { Dmarc(e) |
// Tls(e) | Stop }. An external caller (the AMQP command handler) schedules
// new report events or asks the scheduler to stop by sending one of these.
type ReportingCommand struct {
	Dmarc *ReportEvent
	Tls   *ReportEvent
	Stop  bool
}

// LockExpiry is the distributed-lock TTL - long enough to cover one
// aggregate-report send, short enough that a crashed holder's lock
// self-heals quickly.
const LockExpiry = 90 // seconds

// ReportRefresh is the fallback wake-up interval when nothing is due.
const ReportRefresh = 86400 // seconds
