package combat

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/akzios/bpsr-tools-sub001/internal/clock"
	"github.com/akzios/bpsr-tools-sub001/internal/core"
	"github.com/akzios/bpsr-tools-sub001/internal/log"
	"github.com/akzios/bpsr-tools-sub001/internal/metrics"
)

// DefaultTickInterval is the snapshot emission period.
const DefaultTickInterval = 100 * time.Millisecond

// DefaultWindowSize is the DPS/HPS ring-buffer capacity: the 60 most
// recent per-tick rate samples.
const DefaultWindowSize = 60

// Config tunes an Aggregator. The zero value selects the defaults.
type Config struct {
	TickInterval time.Duration
	WindowSize   int
	Clock        clock.Clock
	EventBuffer  int
}

// Aggregator consumes decoded events and maintains per-player combat
// records. All record mutation is confined to the single run goroutine;
// decoders feed it over a channel, so multiple flows may ingest
// concurrently without sharing mutable state.
type Aggregator struct {
	cfg Config
	clk clock.Clock
	log log.Logger

	events   chan core.Event
	control  chan controlReq
	done     chan struct{}
	stopped  chan struct{}
	started  atomic.Bool
	stopOnce sync.Once

	// Aggregation state, owned by the run goroutine.
	players     map[uint64]*playerRecord
	paused      bool
	elapsed     time.Duration
	combatBegan bool

	subMu sync.Mutex
	subs  map[uint64]chan *Snapshot
	subID uint64
}

type controlOp uint8

const (
	opPause controlOp = iota
	opResume
	opClear
	opQuery
)

type controlReq struct {
	op    controlOp
	reply chan *Snapshot
}

// NewAggregator creates a stopped aggregator; call Start to run it.
func NewAggregator(cfg Config) *Aggregator {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = DefaultWindowSize
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.System
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 1024
	}
	return &Aggregator{
		cfg:     cfg,
		clk:     cfg.Clock,
		log:     log.GetLogger().WithField("component", "aggregator"),
		events:  make(chan core.Event, cfg.EventBuffer),
		control: make(chan controlReq),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
		players: make(map[uint64]*playerRecord),
		subs:    make(map[uint64]chan *Snapshot),
	}
}

// Start launches the aggregation loop.
func (a *Aggregator) Start() {
	if !a.started.CompareAndSwap(false, true) {
		return
	}
	go a.run()
}

// Stop terminates the loop and waits for it to drain.
func (a *Aggregator) Stop() {
	if !a.started.Load() {
		return
	}
	a.stopOnce.Do(func() { close(a.done) })
	<-a.stopped
}

// Ingest feeds one decoded event. Safe for concurrent use by multiple
// decoders. Events arriving while the aggregator is stopped are dropped.
func (a *Aggregator) Ingest(ev core.Event) {
	if !a.started.Load() {
		return
	}
	select {
	case a.events <- ev:
	case <-a.done:
	}
}

// SetPaused suspends or resumes event ingestion and returns the state
// after the change. Synchronous: when it returns, the change has taken
// effect between ticks, never mid-tick. Idempotent; returns nil before
// Start.
func (a *Aggregator) SetPaused(paused bool) *Snapshot {
	op := opPause
	if !paused {
		op = opResume
	}
	return a.roundTrip(op)
}

// Clear resets every player record and ring buffer and returns the
// emptied state. Atomic with respect to ticker emission: no snapshot
// observes a half-cleared state. Idempotent; returns nil before Start.
func (a *Aggregator) Clear() *Snapshot {
	return a.roundTrip(opClear)
}

// Query returns a snapshot of the current state on demand, outside the
// tick cadence. Returns nil before Start.
func (a *Aggregator) Query() *Snapshot {
	return a.roundTrip(opQuery)
}

func (a *Aggregator) roundTrip(op controlOp) *Snapshot {
	if !a.started.Load() {
		return nil
	}
	req := controlReq{op: op, reply: make(chan *Snapshot, 1)}
	select {
	case a.control <- req:
		select {
		case snap := <-req.reply:
			return snap
		case <-a.stopped:
			return nil
		}
	case <-a.done:
		return nil
	}
}

// Subscribe registers a snapshot consumer. Delivery is best-effort,
// latest-value-wins: a slow consumer misses intermediate ticks but
// never blocks the pipeline.
func (a *Aggregator) Subscribe() (uint64, <-chan *Snapshot) {
	a.subMu.Lock()
	defer a.subMu.Unlock()
	a.subID++
	ch := make(chan *Snapshot, 1)
	a.subs[a.subID] = ch
	return a.subID, ch
}

// Unsubscribe removes a consumer registered by Subscribe.
func (a *Aggregator) Unsubscribe(id uint64) {
	a.subMu.Lock()
	defer a.subMu.Unlock()
	delete(a.subs, id)
}

func (a *Aggregator) run() {
	defer close(a.stopped)
	ticker := a.clk.NewTicker(a.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-a.done:
			return
		case ev := <-a.events:
			if a.paused {
				// Ingestion suspended: consume and discard so the
				// channel never backs up into the pipeline.
				continue
			}
			a.apply(ev)
		case <-ticker.C():
			a.tick()
		case req := <-a.control:
			a.handleControl(req)
		}
	}
}

func (a *Aggregator) apply(ev core.Event) {
	switch ev.Kind {
	case core.KindDamage:
		a.markCombat()
		a.player(ev.AttackerUID).applyDamage(ev)
		// Damage taken is tracked only for targets that are themselves
		// players we have seen; monsters get no records of their own.
		if victim, ok := a.players[ev.TargetUID]; ok {
			victim.taken += ev.Amount
		}
	case core.KindHeal:
		a.markCombat()
		a.player(ev.AttackerUID).applyHeal(ev)
	case core.KindPlayerAttr:
		a.player(ev.UID).mergeAttrs(ev)
	case core.KindEntityDeath:
		if p, ok := a.players[ev.UID]; ok {
			p.deaths++
		}
	default:
		// Unrecognized kinds are skippable by contract.
	}
}

func (a *Aggregator) player(uid uint64) *playerRecord {
	p, ok := a.players[uid]
	if !ok {
		p = newPlayerRecord(uid, a.cfg.WindowSize)
		a.players[uid] = p
	}
	return p
}

func (a *Aggregator) markCombat() {
	if !a.combatBegan {
		a.combatBegan = true
		a.log.Debug("combat started")
	}
}

// tick advances combat time, samples per-player rates into the ring
// buffers, and fans a fresh snapshot out to all subscribers. While
// paused the rings freeze but the snapshot still goes out, so consumers
// keep seeing the last known state.
func (a *Aggregator) tick() {
	if !a.paused {
		if a.combatBegan {
			a.elapsed += a.cfg.TickInterval
		}
		secs := a.cfg.TickInterval.Seconds()
		for _, p := range a.players {
			p.dps.Push(float64(p.tickDamage) / secs)
			p.hps.Push(float64(p.tickHealing) / secs)
			p.tickDamage = 0
			p.tickHealing = 0
		}
	}

	a.emit(a.buildSnapshot())
}

func (a *Aggregator) buildSnapshot() *Snapshot {
	snap := &Snapshot{
		Time:     a.clk.Now(),
		Duration: a.elapsed,
		Paused:   a.paused,
		Players:  make(map[uint64]*PlayerSnapshot, len(a.players)),
	}
	for uid, p := range a.players {
		snap.Players[uid] = p.snapshot()
	}
	return snap
}

func (a *Aggregator) emit(snap *Snapshot) {
	a.subMu.Lock()
	defer a.subMu.Unlock()
	for _, ch := range a.subs {
		select {
		case ch <- snap:
		default:
			// Latest value wins: displace the stale snapshot.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
				metrics.SnapshotDropsTotal.Inc()
			}
		}
	}
}

func (a *Aggregator) handleControl(req controlReq) {
	switch req.op {
	case opPause:
		if !a.paused {
			a.paused = true
			a.log.Info("aggregation paused")
		}
	case opResume:
		if a.paused {
			a.paused = false
			a.log.Info("aggregation resumed")
		}
	case opClear:
		for _, p := range a.players {
			p.clearStats()
		}
		a.elapsed = 0
		a.combatBegan = false
		a.log.Info("combat statistics cleared")
	case opQuery:
	}
	req.reply <- a.buildSnapshot()
}
