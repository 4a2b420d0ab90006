//go:build linux

package capture

import (
	"fmt"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/afpacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"golang.org/x/net/bpf"

	"github.com/akzios/bpsr-tools-sub001/internal/core"
)

type afpacketSource struct {
	cfg     Config
	tpacket *afpacket.TPacket
}

func newAFPacketSource(cfg Config) Source {
	return &afpacketSource{cfg: cfg}
}

func (s *afpacketSource) Open() error {
	frameSize, blockSize, numBlocks, err := computeBlocks(s.cfg.BufferSizeMB<<20, s.cfg.SnapLen)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrCaptureUnavailable, err)
	}

	tpacket, err := afpacket.NewTPacket(
		afpacket.OptInterface(s.cfg.Device),
		afpacket.OptFrameSize(frameSize),
		afpacket.OptBlockSize(blockSize),
		afpacket.OptNumBlocks(numBlocks),
		afpacket.OptPollTimeout(time.Duration(s.cfg.TimeoutMs)*time.Millisecond),
		afpacket.SocketRaw,
		afpacket.TPacketVersion3,
	)
	if err != nil {
		return fmt.Errorf("%w: create TPacket on %s: %v", core.ErrCaptureUnavailable, s.cfg.Device, err)
	}

	filter := FlowFilter(s.cfg.ServerHost, s.cfg.ServerPort)
	rawBpf, err := compileBpf(filter, s.cfg.SnapLen)
	if err != nil {
		tpacket.Close()
		return fmt.Errorf("%w: %v", core.ErrCaptureUnavailable, err)
	}
	if err := tpacket.SetBPF(rawBpf); err != nil {
		tpacket.Close()
		return fmt.Errorf("%w: set BPF: %v", core.ErrCaptureUnavailable, err)
	}

	s.tpacket = tpacket
	return nil
}

func (s *afpacketSource) ReadPacket() ([]byte, gopacket.CaptureInfo, error) {
	if s.tpacket == nil {
		return nil, gopacket.CaptureInfo{}, core.ErrCaptureUnavailable
	}
	data, ci, err := s.tpacket.ReadPacketData()
	if err == afpacket.ErrTimeout {
		return nil, ci, ErrReadTimeout
	}
	return data, ci, err
}

func (s *afpacketSource) LinkType() layers.LinkType {
	return layers.LinkTypeEthernet
}

func (s *afpacketSource) Close() error {
	if s.tpacket != nil {
		s.tpacket.Close()
		s.tpacket = nil
	}
	return nil
}

func computeBlocks(bufferSize, snapLen int) (frameSize, blockSize, numBlocks int, err error) {
	pageSize := os.Getpagesize()
	if snapLen < pageSize {
		frameSize = pageSize / (pageSize / snapLen)
	} else {
		frameSize = (snapLen/pageSize + 1) * pageSize
	}
	blockSize = frameSize * 128
	numBlocks = bufferSize / blockSize
	if numBlocks < 1 {
		return 0, 0, 0, fmt.Errorf("buffer size too small for frame size %d", frameSize)
	}
	return frameSize, blockSize, numBlocks, nil
}

func compileBpf(filter string, snapLen int) ([]bpf.RawInstruction, error) {
	pcapBpf, err := pcap.CompileBPFFilter(layers.LinkTypeEthernet, snapLen, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to compile BPF filter: %w", err)
	}
	rawBpf := make([]bpf.RawInstruction, len(pcapBpf))
	for i, ins := range pcapBpf {
		rawBpf[i] = bpf.RawInstruction{Op: ins.Code, Jt: ins.Jt, Jf: ins.Jf, K: ins.K}
	}
	return rawBpf, nil
}
