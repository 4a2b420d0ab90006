// Package core defines shared pipeline types with zero external dependencies.
package core

import (
	"fmt"
	"net/netip"
	"time"
)

// FlowKey identifies a single TCP connection by its address/port pairs.
type FlowKey struct {
	SrcIP   netip.Addr
	DstIP   netip.Addr
	SrcPort uint16
	DstPort uint16
}

func (k FlowKey) String() string {
	return fmt.Sprintf("%s:%d->%s:%d", k.SrcIP, k.SrcPort, k.DstIP, k.DstPort)
}

// TCP flag bits carried on a Segment. Only the flags the reassembler
// cares about are extracted.
const (
	FlagSYN uint8 = 1 << iota
	FlagFIN
	FlagRST
)

// Segment is one raw TCP segment as observed on the wire, in arrival
// order. Arrival order may differ from sequence order; deduplication and
// reordering belong to the stream package.
type Segment struct {
	Flow      FlowKey
	Seq       uint32
	Ack       uint32
	Flags     uint8
	Payload   []byte
	Timestamp time.Time
}
