package capture

import (
	"net/netip"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/akzios/bpsr-tools-sub001/internal/core"
)

// SegmentDecoder turns raw link-layer packets into core.Segments. One
// decoder per pipeline; the layer structs are reused across packets so
// decoding allocates only the payload copy.
type SegmentDecoder struct {
	parser  *gopacket.DecodingLayerParser
	decoded []gopacket.LayerType

	eth     layers.Ethernet
	dot1q   layers.Dot1Q
	ipv4    layers.IPv4
	tcp     layers.TCP
	payload gopacket.Payload
}

// NewSegmentDecoder creates a decoder for the given link type.
func NewSegmentDecoder(linkType layers.LinkType) *SegmentDecoder {
	d := &SegmentDecoder{
		decoded: make([]gopacket.LayerType, 0, 6),
	}
	first := layers.LayerTypeEthernet
	if linkType == layers.LinkTypeRaw || linkType == layers.LinkTypeIPv4 {
		first = layers.LayerTypeIPv4
	}
	d.parser = gopacket.NewDecodingLayerParser(first,
		&d.eth, &d.dot1q, &d.ipv4, &d.tcp, &d.payload)
	// Packets with layers we do not model (IPv6, UDP, tunnels) are not
	// errors; Decode reports them as not-a-segment.
	d.parser.IgnoreUnsupported = true
	return d
}

// Decode extracts a TCP segment from raw packet bytes. ok is false for
// non-TCP or non-IPv4 packets.
func (d *SegmentDecoder) Decode(data []byte, ci *gopacket.CaptureInfo) (seg core.Segment, ok bool) {
	d.decoded = d.decoded[:0]
	if err := d.parser.DecodeLayers(data, &d.decoded); err != nil {
		return core.Segment{}, false
	}

	var sawIP, sawTCP bool
	for _, layerType := range d.decoded {
		switch layerType {
		case layers.LayerTypeIPv4:
			sawIP = true
		case layers.LayerTypeTCP:
			sawTCP = true
		}
	}
	if !sawIP || !sawTCP {
		return core.Segment{}, false
	}

	srcIP, okSrc := netip.AddrFromSlice(d.ipv4.SrcIP)
	dstIP, okDst := netip.AddrFromSlice(d.ipv4.DstIP)
	if !okSrc || !okDst {
		return core.Segment{}, false
	}

	var flags uint8
	if d.tcp.SYN {
		flags |= core.FlagSYN
	}
	if d.tcp.FIN {
		flags |= core.FlagFIN
	}
	if d.tcp.RST {
		flags |= core.FlagRST
	}

	payload := make([]byte, len(d.tcp.Payload))
	copy(payload, d.tcp.Payload)

	return core.Segment{
		Flow: core.FlowKey{
			SrcIP:   srcIP.Unmap(),
			DstIP:   dstIP.Unmap(),
			SrcPort: uint16(d.tcp.SrcPort),
			DstPort: uint16(d.tcp.DstPort),
		},
		Seq:       d.tcp.Seq,
		Ack:       d.tcp.Ack,
		Flags:     flags,
		Payload:   payload,
		Timestamp: ci.Timestamp,
	}, true
}
