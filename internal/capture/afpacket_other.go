//go:build !linux

package capture

import (
	"fmt"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/akzios/bpsr-tools-sub001/internal/core"
)

// AF_PACKET is a Linux socket family. Elsewhere the source still
// constructs, so config validation and the CLI behave uniformly, but
// Open reports the fatal capture error and the pcap source is the
// live-capture path.
type afpacketSource struct {
	cfg Config
}

func newAFPacketSource(cfg Config) Source {
	return &afpacketSource{cfg: cfg}
}

func (s *afpacketSource) Open() error {
	return fmt.Errorf("%w: afpacket capture requires linux", core.ErrCaptureUnavailable)
}

func (s *afpacketSource) ReadPacket() ([]byte, gopacket.CaptureInfo, error) {
	return nil, gopacket.CaptureInfo{}, core.ErrCaptureUnavailable
}

func (s *afpacketSource) LinkType() layers.LinkType {
	return layers.LinkTypeEthernet
}

func (s *afpacketSource) Close() error { return nil }
