// Package capture taps the network interface for the TCP flow of
// interest and extracts raw segments for the reassembler.
package capture

import (
	"errors"
	"fmt"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// ErrReadTimeout reports that a poll interval elapsed with no packet.
// Callers should recheck their context and read again.
var ErrReadTimeout = errors.New("meter: capture read timeout")

// Source is a raw packet provider. Implementations: live pcap,
// AF_PACKET, and offline pcap file playback.
type Source interface {
	// Open acquires the capture handle. Failure to open the device is
	// the pipeline's one fatal error class and wraps
	// core.ErrCaptureUnavailable.
	Open() error

	// ReadPacket returns the next raw packet. Returns io.EOF when an
	// offline source is exhausted.
	ReadPacket() (data []byte, ci gopacket.CaptureInfo, err error)

	LinkType() layers.LinkType

	Close() error
}

// Config selects and tunes a capture source.
type Config struct {
	Type         string // "pcap" | "afpacket" | "file"
	Device       string
	File         string
	SnapLen      int
	BufferSizeMB int
	TimeoutMs    int

	// ServerHost/ServerPort identify the game-server side of the flow.
	ServerHost string
	ServerPort uint16
}

// NewSource builds the source named by cfg.Type.
func NewSource(cfg Config) (Source, error) {
	switch cfg.Type {
	case "pcap":
		return newPcapSource(cfg), nil
	case "afpacket":
		return newAFPacketSource(cfg), nil
	case "file":
		return newFileSource(cfg), nil
	default:
		return nil, fmt.Errorf("unknown capture source type %q", cfg.Type)
	}
}

// FlowFilter builds the BPF expression matching the configured flow.
// With no host, any TCP traffic on the port matches.
func FlowFilter(host string, port uint16) string {
	if port == 0 {
		return "tcp"
	}
	if host == "" {
		return fmt.Sprintf("tcp port %d", port)
	}
	return fmt.Sprintf("tcp and host %s and port %d", host, port)
}
