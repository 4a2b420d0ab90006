// Package stream reconstructs an ordered byte stream from raw TCP
// segments, one reassembler per tracked connection.
package stream

import (
	"sort"
	"sync"
	"time"

	"github.com/akzios/bpsr-tools-sub001/internal/clock"
	"github.com/akzios/bpsr-tools-sub001/internal/core"
	"github.com/akzios/bpsr-tools-sub001/internal/log"
	"github.com/akzios/bpsr-tools-sub001/internal/metrics"
)

// DefaultGapTimeout is how long a gap may stall in-order delivery before
// the reassembler gives up waiting and resyncs. The value is part of the
// tool's observable behavior and must stay at 2000 ms.
const DefaultGapTimeout = 2000 * time.Millisecond

// State of a single connection's reassembler.
type State uint8

const (
	// AwaitingBaseline means no segment has been accepted yet; the
	// first one observed establishes the expected sequence.
	AwaitingBaseline State = iota
	// InOrder means segments are being accepted at the expected
	// sequence and appended to the logical stream.
	InOrder
	// GapPending means at least one segment arrived ahead of the
	// expected sequence and the gap timer is running.
	GapPending
)

func (s State) String() string {
	switch s {
	case InOrder:
		return "in_order"
	case GapPending:
		return "gap_pending"
	default:
		return "awaiting_baseline"
	}
}

// Config tunes a Reassembler. The zero value selects the defaults.
type Config struct {
	GapTimeout time.Duration
	Clock      clock.Clock
}

// Reassembler converts arrival-ordered TCP segments into a strictly
// sequence-ordered byte stream. Ordered bytes are handed to the output
// callback; Reset on the output is invoked when a forced resync discards
// stream content, so the downstream frame decoder can drop its partial
// frame.
//
// The reassembler never interprets message boundaries; framing belongs
// to the protocol package.
type Reassembler struct {
	mu sync.Mutex

	flow     core.FlowKey
	state    State
	expected uint32

	// pending holds segments that arrived ahead of expected, keyed by
	// sequence number.
	pending map[uint32][]byte

	gapTimer     clock.Timer
	gapStartedAt time.Time

	out   Output
	cfg   Config
	clk   clock.Clock
	log   log.Logger
	epoch uint64 // bumped on every resync so stale timers are ignored
}

// Output receives the ordered byte stream.
type Output interface {
	// Write is called with the next in-order chunk of stream bytes.
	Write(p []byte)
	// Reset is called when stream content was discarded; any partially
	// accumulated frame downstream is now invalid.
	Reset()
}

// NewReassembler creates a reassembler for one TCP flow.
func NewReassembler(flow core.FlowKey, out Output, cfg Config) *Reassembler {
	if cfg.GapTimeout <= 0 {
		cfg.GapTimeout = DefaultGapTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.System
	}
	return &Reassembler{
		flow:    flow,
		state:   AwaitingBaseline,
		pending: make(map[uint32][]byte),
		out:     out,
		cfg:     cfg,
		clk:     cfg.Clock,
		log:     log.GetLogger().WithField("flow", flow.String()),
	}
}

// State returns the current state. Exposed for tests and diagnostics.
func (r *Reassembler) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Expected returns the next stream sequence number to accept.
func (r *Reassembler) Expected() uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.expected
}

// Push feeds one observed segment into the reassembler.
func (r *Reassembler) Push(seg core.Segment) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if seg.Flags&core.FlagSYN != 0 {
		// SYN consumes one sequence number; payload starts after it.
		r.baselineLocked(seg.Seq + 1)
		return
	}
	if len(seg.Payload) == 0 {
		return
	}

	if r.state == AwaitingBaseline {
		r.baselineLocked(seg.Seq)
	}

	switch {
	case seg.Seq == r.expected:
		metrics.StreamSegmentsTotal.WithLabelValues("in_order").Inc()
		r.deliverLocked(seg.Payload)
		r.flushPendingLocked()

	case seqAfter(seg.Seq, r.expected):
		metrics.StreamSegmentsTotal.WithLabelValues("buffered").Inc()
		if _, dup := r.pending[seg.Seq]; !dup {
			buf := make([]byte, len(seg.Payload))
			copy(buf, seg.Payload)
			r.pending[seg.Seq] = buf
		}
		r.enterGapLocked()

	default:
		// Retransmission of already-delivered data.
		metrics.StreamSegmentsTotal.WithLabelValues("duplicate").Inc()
	}
}

// Close tears down the flow's state. No ordering guarantees apply to a
// closed connection.
func (r *Reassembler) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopGapTimerLocked()
	r.pending = make(map[uint32][]byte)
	r.state = AwaitingBaseline
}

func (r *Reassembler) baselineLocked(seq uint32) {
	r.stopGapTimerLocked()
	r.expected = seq
	r.pending = make(map[uint32][]byte)
	r.state = InOrder
}

func (r *Reassembler) deliverLocked(p []byte) {
	r.out.Write(p)
	r.expected += uint32(len(p))
}

// flushPendingLocked drains buffered segments that became contiguous.
// If nothing remains pending the gap (if any) is over.
func (r *Reassembler) flushPendingLocked() {
	for {
		p, ok := r.pending[r.expected]
		if !ok {
			break
		}
		delete(r.pending, r.expected)
		r.deliverLocked(p)
	}
	if len(r.pending) == 0 {
		r.stopGapTimerLocked()
		r.state = InOrder
	}
}

func (r *Reassembler) enterGapLocked() {
	if r.state == GapPending {
		return
	}
	r.state = GapPending
	r.gapStartedAt = r.clk.Now()
	epoch := r.epoch
	r.gapTimer = r.clk.AfterFunc(r.cfg.GapTimeout, func() {
		r.onGapTimeout(epoch)
	})
}

func (r *Reassembler) stopGapTimerLocked() {
	if r.gapTimer != nil {
		r.gapTimer.Stop()
		r.gapTimer = nil
	}
	r.epoch++
}

// onGapTimeout resolves a gap that outlived the timeout. The bytes in
// the gap are written off: the downstream partial frame is dropped and
// the stream restarts at the oldest still-pending segment, which loses
// the least data of the available baselines. Buffered segments that are
// contiguous from there are delivered immediately.
func (r *Reassembler) onGapTimeout(epoch uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if epoch != r.epoch || r.state != GapPending {
		// The gap resolved or the flow reset before the timer fired.
		return
	}

	oldest, ok := r.oldestPendingLocked()
	if !ok {
		// Nothing buffered; wait for whatever arrives next.
		r.stopGapTimerLocked()
		r.state = AwaitingBaseline
		return
	}

	metrics.StreamResyncsTotal.Inc()
	r.log.WithFields(map[string]interface{}{
		"expected": r.expected,
		"resync":   oldest,
		"waited":   r.clk.Now().Sub(r.gapStartedAt).String(),
	}).Warn("gap timeout, resyncing stream")

	r.stopGapTimerLocked()
	r.out.Reset()
	r.expected = oldest
	r.state = InOrder
	r.flushPendingLocked()
	if len(r.pending) > 0 {
		// Still not contiguous past the new baseline; arm a new gap.
		r.state = InOrder
		r.enterGapLocked()
	}
}

func (r *Reassembler) oldestPendingLocked() (uint32, bool) {
	if len(r.pending) == 0 {
		return 0, false
	}
	seqs := make([]uint32, 0, len(r.pending))
	for s := range r.pending {
		seqs = append(seqs, s)
	}
	// Oldest in sequence space relative to expected, not numerically:
	// the 32-bit sequence wraps.
	sort.Slice(seqs, func(i, j int) bool {
		return seqs[i]-r.expected < seqs[j]-r.expected
	})
	return seqs[0], true
}

// seqAfter reports whether a comes after b in 32-bit sequence space.
func seqAfter(a, b uint32) bool {
	return int32(a-b) > 0
}
