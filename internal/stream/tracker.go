package stream

import (
	"sync"
	"time"

	"github.com/akzios/bpsr-tools-sub001/internal/clock"
	"github.com/akzios/bpsr-tools-sub001/internal/core"
	"github.com/akzios/bpsr-tools-sub001/internal/log"
	"github.com/akzios/bpsr-tools-sub001/internal/metrics"
)

// DefaultFlowIdle is how long a flow may stay silent before its state is
// destroyed.
const DefaultFlowIdle = 90 * time.Second

// OutputFactory builds the downstream byte-stream consumer for a newly
// observed flow.
type OutputFactory func(flow core.FlowKey) Output

// TrackerConfig tunes the Tracker.
type TrackerConfig struct {
	Reassembler Config
	FlowIdle    time.Duration
}

// Tracker routes segments to per-flow reassemblers. Flow state is
// created when a new connection is first observed and destroyed when the
// connection resets, closes, or goes idle past the timeout. Flows are
// independent of each other.
type Tracker struct {
	mu       sync.Mutex
	flows    map[core.FlowKey]*trackedFlow
	factory  OutputFactory
	cfg      TrackerConfig
	lastScan time.Time
}

type trackedFlow struct {
	r        *Reassembler
	lastSeen time.Time
}

// NewTracker creates a Tracker producing per-flow outputs via factory.
func NewTracker(factory OutputFactory, cfg TrackerConfig) *Tracker {
	if cfg.FlowIdle <= 0 {
		cfg.FlowIdle = DefaultFlowIdle
	}
	if cfg.Reassembler.Clock == nil {
		cfg.Reassembler.Clock = clock.System
	}
	return &Tracker{
		flows:   make(map[core.FlowKey]*trackedFlow),
		factory: factory,
		cfg:     cfg,
	}
}

// Push routes one segment to its flow, creating the flow on first sight.
func (t *Tracker) Push(seg core.Segment) {
	t.mu.Lock()
	now := t.cfg.Reassembler.Clock.Now()

	if seg.Flags&(core.FlagRST|core.FlagFIN) != 0 {
		if f, ok := t.flows[seg.Flow]; ok {
			f.r.Close()
			delete(t.flows, seg.Flow)
			metrics.StreamActiveFlows.Dec()
			log.GetLogger().WithField("flow", seg.Flow.String()).Debug("flow closed")
		}
		t.sweepLocked(now)
		t.mu.Unlock()
		return
	}

	f, ok := t.flows[seg.Flow]
	if !ok {
		f = &trackedFlow{
			r: NewReassembler(seg.Flow, t.factory(seg.Flow), t.cfg.Reassembler),
		}
		t.flows[seg.Flow] = f
		metrics.StreamActiveFlows.Inc()
		log.GetLogger().WithField("flow", seg.Flow.String()).Info("tracking new flow")
	}
	f.lastSeen = now
	t.sweepLocked(now)
	r := f.r
	t.mu.Unlock()

	r.Push(seg)
}

// Flows returns the number of currently tracked flows.
func (t *Tracker) Flows() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.flows)
}

// Close destroys all flow state.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for k, f := range t.flows {
		f.r.Close()
		delete(t.flows, k)
		metrics.StreamActiveFlows.Dec()
	}
}

// sweepLocked reaps idle flows. It runs at most once per idle interval
// so the scan cost stays off the per-segment path.
func (t *Tracker) sweepLocked(now time.Time) {
	if now.Sub(t.lastScan) < t.cfg.FlowIdle {
		return
	}
	t.lastScan = now
	for k, f := range t.flows {
		if now.Sub(f.lastSeen) >= t.cfg.FlowIdle {
			f.r.Close()
			delete(t.flows, k)
			metrics.StreamActiveFlows.Dec()
			log.GetLogger().WithField("flow", k.String()).Info("flow idle, dropping state")
		}
	}
}
