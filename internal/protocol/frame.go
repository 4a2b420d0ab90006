// Package protocol extracts length-prefixed frames from the reassembled
// byte stream and parses them into typed combat events.
//
// Wire layout (reverse-engineered, big-endian throughout):
//
//	frame  := u32 total_length | u16 message_type | body
//	          total_length counts the 6-byte header
//	          message_type bit 15 set -> body is zstd-compressed
//	body   := record*
//	record := u16 record_type | u16 record_length | payload
//
// Unknown record types are skipped by length so new message kinds added
// by the game do not break decoding.
package protocol

import (
	"encoding/binary"

	"github.com/klauspost/compress/zstd"

	"github.com/akzios/bpsr-tools-sub001/internal/core"
	"github.com/akzios/bpsr-tools-sub001/internal/log"
	"github.com/akzios/bpsr-tools-sub001/internal/metrics"
)

const (
	headerSize = 6

	// compressedBit flags a zstd-compressed frame body.
	compressedBit = 0x8000

	// DefaultMaxFrameBytes bounds a single frame. Anything larger is
	// treated as a corrupt header and triggers a forward scan.
	DefaultMaxFrameBytes = 4 << 20
)

// Known top-level message types. Only notify frames carry combat
// records; everything else is skipped whole.
const (
	msgTypeNotify uint16 = 0x0002
	msgTypeReturn uint16 = 0x0003
	msgTypeFrame  uint16 = 0x0006
)

// EventSink consumes decoded events in stream order.
type EventSink func(ev core.Event)

// FrameScanner accumulates ordered stream bytes, cuts complete frames,
// decompresses flagged bodies and forwards parsed events to the sink.
// It implements stream.Output so it can sit directly behind a
// reassembler. Not safe for concurrent use; each flow owns one scanner.
type FrameScanner struct {
	buf      []byte
	maxFrame uint32
	sink     EventSink
	dec      *zstd.Decoder
	log      log.Logger
}

// NewFrameScanner creates a scanner delivering events to sink.
func NewFrameScanner(sink EventSink, maxFrame uint32) *FrameScanner {
	if maxFrame == 0 {
		maxFrame = DefaultMaxFrameBytes
	}
	// Concurrency 1: DecodeAll only, single goroutine per flow. The
	// memory cap bounds the speculative allocation for the declared
	// content size: a corrupt header can claim gigabytes while the
	// compressed body fits in one frame.
	dec, err := zstd.NewReader(nil,
		zstd.WithDecoderConcurrency(1),
		zstd.WithDecoderMaxMemory(uint64(maxFrame)*4),
	)
	if err != nil {
		// Only reachable with invalid options.
		panic(err)
	}
	return &FrameScanner{
		maxFrame: maxFrame,
		sink:     sink,
		dec:      dec,
		log:      log.GetLogger().WithField("component", "frame_scanner"),
	}
}

// Write consumes the next in-order chunk of stream bytes.
func (s *FrameScanner) Write(p []byte) {
	s.buf = append(s.buf, p...)
	s.extract()
}

// Reset discards the partially accumulated frame. Called by the
// reassembler when a forced resync dropped stream content: whatever is
// buffered can no longer be trusted to start on a frame boundary, so the
// scanner re-locks onto the next plausible header.
func (s *FrameScanner) Reset() {
	if len(s.buf) == 0 {
		return
	}
	s.buf = s.buf[:0]
}

// Close releases the decompressor.
func (s *FrameScanner) Close() {
	s.dec.Close()
}

func (s *FrameScanner) extract() {
	for {
		if len(s.buf) < headerSize {
			return
		}
		frameLen := binary.BigEndian.Uint32(s.buf[0:4])
		if !plausibleLength(frameLen, s.maxFrame) {
			metrics.FramesTotal.WithLabelValues("corrupt").Inc()
			s.log.WithField("length", frameLen).Warn("implausible frame length, scanning forward")
			s.resync()
			continue
		}
		if uint32(len(s.buf)) < frameLen {
			return // partial frame, wait for more stream data
		}

		msgType := binary.BigEndian.Uint16(s.buf[4:6])
		body := s.buf[headerSize:frameLen]
		s.buf = s.buf[frameLen:]

		compressed := msgType&compressedBit != 0
		msgType &^= compressedBit

		if compressed {
			plain, err := s.dec.DecodeAll(body, nil)
			if err != nil {
				// Corrupt or truncated after a resync upstream. Drop
				// the frame; framing itself is still aligned.
				metrics.FramesTotal.WithLabelValues("corrupt").Inc()
				s.log.WithError(err).Warn("frame decompression failed, dropping frame")
				continue
			}
			metrics.FramesTotal.WithLabelValues("compressed").Inc()
			body = plain
		}

		metrics.FramesTotal.WithLabelValues("decoded").Inc()
		if msgType == msgTypeNotify {
			parseRecords(body, s.sink, s.log)
		}
	}
}

// resync drops one byte and scans forward for the next offset whose
// first six bytes look like a frame header. It deliberately errs on the
// side of resuming quickly; a false lock-on surfaces as one more corrupt
// frame and another scan.
func (s *FrameScanner) resync() {
	for i := 1; i+headerSize <= len(s.buf); i++ {
		frameLen := binary.BigEndian.Uint32(s.buf[i : i+4])
		if plausibleLength(frameLen, s.maxFrame) && knownType(binary.BigEndian.Uint16(s.buf[i+4:i+6])) {
			s.buf = s.buf[i:]
			return
		}
	}
	// No plausible header in the buffer. Drop everything except the
	// last few bytes, in case a header straddles the chunk boundary,
	// but always advance by at least one byte.
	drop := len(s.buf) - (headerSize - 1)
	if drop < 1 {
		drop = 1
	}
	s.buf = s.buf[drop:]
}

func plausibleLength(frameLen, maxFrame uint32) bool {
	return frameLen >= headerSize && frameLen <= maxFrame
}

func knownType(msgType uint16) bool {
	switch msgType &^ compressedBit {
	case msgTypeNotify, msgTypeReturn, msgTypeFrame:
		return true
	default:
		return false
	}
}
