package capture

import (
	"fmt"
	"io"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"

	"github.com/akzios/bpsr-tools-sub001/internal/core"
)

type pcapSource struct {
	cfg    Config
	handle *pcap.Handle
}

func newPcapSource(cfg Config) Source {
	return &pcapSource{cfg: cfg}
}

func (s *pcapSource) Open() error {
	handle, err := pcap.OpenLive(
		s.cfg.Device,
		int32(s.cfg.SnapLen),
		true, // promiscuous
		time.Duration(s.cfg.TimeoutMs)*time.Millisecond,
	)
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", core.ErrCaptureUnavailable, s.cfg.Device, err)
	}
	filter := FlowFilter(s.cfg.ServerHost, s.cfg.ServerPort)
	if err := handle.SetBPFFilter(filter); err != nil {
		handle.Close()
		return fmt.Errorf("%w: set filter %q: %v", core.ErrCaptureUnavailable, filter, err)
	}
	s.handle = handle
	return nil
}

func (s *pcapSource) ReadPacket() ([]byte, gopacket.CaptureInfo, error) {
	if s.handle == nil {
		return nil, gopacket.CaptureInfo{}, core.ErrCaptureUnavailable
	}
	data, ci, err := s.handle.ReadPacketData()
	if err == pcap.NextErrorTimeoutExpired {
		// Poll timeout, not a failure; the caller rechecks its context
		// and retries.
		return nil, ci, ErrReadTimeout
	}
	return data, ci, err
}

func (s *pcapSource) LinkType() layers.LinkType {
	if s.handle == nil {
		return layers.LinkTypeEthernet
	}
	return s.handle.LinkType()
}

func (s *pcapSource) Close() error {
	if s.handle != nil {
		s.handle.Close()
		s.handle = nil
	}
	return nil
}

type fileSource struct {
	cfg    Config
	handle *pcap.Handle
}

func newFileSource(cfg Config) Source {
	return &fileSource{cfg: cfg}
}

func (s *fileSource) Open() error {
	handle, err := pcap.OpenOffline(s.cfg.File)
	if err != nil {
		return fmt.Errorf("%w: open pcap file %s: %v", core.ErrCaptureUnavailable, s.cfg.File, err)
	}
	s.handle = handle
	return nil
}

func (s *fileSource) ReadPacket() ([]byte, gopacket.CaptureInfo, error) {
	if s.handle == nil {
		return nil, gopacket.CaptureInfo{}, core.ErrCaptureUnavailable
	}
	data, ci, err := s.handle.ReadPacketData()
	if err == io.EOF {
		return nil, gopacket.CaptureInfo{}, io.EOF
	}
	return data, ci, err
}

func (s *fileSource) LinkType() layers.LinkType {
	if s.handle == nil {
		return layers.LinkTypeEthernet
	}
	return s.handle.LinkType()
}

func (s *fileSource) Close() error {
	if s.handle != nil {
		s.handle.Close()
		s.handle = nil
	}
	return nil
}

// Devices lists interfaces available for live capture.
func Devices() ([]pcap.Interface, error) {
	return pcap.FindAllDevs()
}
