package stream

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akzios/bpsr-tools-sub001/internal/clock"
	"github.com/akzios/bpsr-tools-sub001/internal/core"
)

type recordingOutput struct {
	data   []byte
	resets int
}

func (o *recordingOutput) Write(p []byte) { o.data = append(o.data, p...) }
func (o *recordingOutput) Reset()         { o.resets++ }

func testFlow() core.FlowKey {
	return core.FlowKey{
		SrcIP:   netip.MustParseAddr("10.0.0.2"),
		DstIP:   netip.MustParseAddr("10.0.0.1"),
		SrcPort: 34567,
		DstPort: 21000,
	}
}

func seg(seq uint32, payload string) core.Segment {
	return core.Segment{Flow: testFlow(), Seq: seq, Payload: []byte(payload)}
}

func newTestReassembler(t *testing.T) (*Reassembler, *recordingOutput, *clock.Fake) {
	t.Helper()
	out := &recordingOutput{}
	fc := clock.NewFake()
	r := NewReassembler(testFlow(), out, Config{Clock: fc})
	return r, out, fc
}

func TestInOrderDelivery(t *testing.T) {
	r, out, _ := newTestReassembler(t)

	r.Push(seg(100, "hello"))
	r.Push(seg(105, ", "))
	r.Push(seg(107, "world"))

	assert.Equal(t, "hello, world", string(out.data))
	assert.Equal(t, InOrder, r.State())
	assert.Equal(t, uint32(112), r.Expected())
}

func TestFirstSegmentEstablishesBaseline(t *testing.T) {
	r, out, _ := newTestReassembler(t)
	require.Equal(t, AwaitingBaseline, r.State())

	r.Push(seg(99999, "abc"))
	assert.Equal(t, "abc", string(out.data))
	assert.Equal(t, InOrder, r.State())
}

func TestSynSetsBaseline(t *testing.T) {
	r, out, _ := newTestReassembler(t)

	r.Push(core.Segment{Flow: testFlow(), Seq: 500, Flags: core.FlagSYN})
	r.Push(seg(501, "payload"))

	assert.Equal(t, "payload", string(out.data))
}

func TestDuplicateDiscarded(t *testing.T) {
	r, out, _ := newTestReassembler(t)

	r.Push(seg(100, "abcde"))
	r.Push(seg(100, "abcde"))
	r.Push(seg(102, "cde"))

	assert.Equal(t, "abcde", string(out.data))
	assert.Equal(t, uint32(105), r.Expected())
}

func TestOutOfOrderBufferedAndFlushed(t *testing.T) {
	r, out, _ := newTestReassembler(t)

	r.Push(seg(100, "aa"))
	r.Push(seg(104, "cc")) // ahead: gap at 102
	assert.Equal(t, GapPending, r.State())
	assert.Equal(t, "aa", string(out.data))

	r.Push(seg(102, "bb")) // fills the gap
	assert.Equal(t, "aabbcc", string(out.data))
	assert.Equal(t, InOrder, r.State())
	assert.Zero(t, out.resets)
}

func TestGapTimeoutResyncsAtOldestPending(t *testing.T) {
	r, out, fc := newTestReassembler(t)

	r.Push(seg(100, "aa"))
	r.Push(seg(110, "late"))
	r.Push(seg(120, "later"))
	require.Equal(t, GapPending, r.State())

	// Just under the timeout: still waiting.
	fc.Advance(1999 * time.Millisecond)
	assert.Equal(t, GapPending, r.State())
	assert.Equal(t, "aa", string(out.data))

	fc.Advance(1 * time.Millisecond)

	// Resynced at the oldest pending segment (seq 110); its buffered
	// payload was delivered, the decoder was told to drop its partial
	// frame, and the remaining discontiguous segment re-arms a gap.
	assert.Equal(t, 1, out.resets)
	assert.Equal(t, "aalate", string(out.data))
	assert.Equal(t, uint32(114), r.Expected())
	assert.Equal(t, GapPending, r.State())

	// The second gap resolves the same way.
	fc.Advance(2000 * time.Millisecond)
	assert.Equal(t, 2, out.resets)
	assert.Equal(t, "aalatelater", string(out.data))
	assert.Equal(t, InOrder, r.State())
}

func TestGapResolvedBeforeTimeoutDoesNotResync(t *testing.T) {
	r, out, fc := newTestReassembler(t)

	r.Push(seg(100, "aa"))
	r.Push(seg(104, "cc"))
	fc.Advance(1500 * time.Millisecond)
	r.Push(seg(102, "bb"))

	// Timer must be dead: advancing past the deadline changes nothing.
	fc.Advance(5 * time.Second)
	assert.Equal(t, "aabbcc", string(out.data))
	assert.Zero(t, out.resets)
	assert.Equal(t, InOrder, r.State())
}

func TestSequenceWraparound(t *testing.T) {
	r, out, _ := newTestReassembler(t)

	r.Push(seg(0xFFFFFFFE, "ab"))
	r.Push(seg(0, "cd"))

	assert.Equal(t, "abcd", string(out.data))
	assert.Equal(t, uint32(2), r.Expected())
}

func TestWraparoundGapBuffering(t *testing.T) {
	r, out, _ := newTestReassembler(t)

	r.Push(seg(0xFFFFFFFE, "ab"))
	r.Push(seg(2, "ef")) // ahead across the wrap
	assert.Equal(t, GapPending, r.State())
	r.Push(seg(0, "cd"))

	assert.Equal(t, "abcdef", string(out.data))
	assert.Equal(t, InOrder, r.State())
}

func TestCloseDropsState(t *testing.T) {
	r, out, fc := newTestReassembler(t)

	r.Push(seg(100, "aa"))
	r.Push(seg(110, "zz"))
	r.Close()

	// The armed gap timer must not fire after teardown.
	fc.Advance(5 * time.Second)
	assert.Equal(t, "aa", string(out.data))
	assert.Zero(t, out.resets)
	assert.Equal(t, AwaitingBaseline, r.State())
}

func TestTrackerLifecycle(t *testing.T) {
	fc := clock.NewFake()
	outs := map[core.FlowKey]*recordingOutput{}
	tr := NewTracker(func(flow core.FlowKey) Output {
		o := &recordingOutput{}
		outs[flow] = o
		return o
	}, TrackerConfig{Reassembler: Config{Clock: fc}, FlowIdle: 10 * time.Second})

	tr.Push(seg(100, "data"))
	require.Equal(t, 1, tr.Flows())
	assert.Equal(t, "data", string(outs[testFlow()].data))

	tr.Push(core.Segment{Flow: testFlow(), Flags: core.FlagRST})
	assert.Equal(t, 0, tr.Flows())
}

func TestTrackerIdleSweep(t *testing.T) {
	fc := clock.NewFake()
	tr := NewTracker(func(core.FlowKey) Output {
		return &recordingOutput{}
	}, TrackerConfig{Reassembler: Config{Clock: fc}, FlowIdle: 10 * time.Second})

	tr.Push(seg(100, "data"))
	require.Equal(t, 1, tr.Flows())

	fc.Advance(11 * time.Second)
	other := testFlow()
	other.SrcPort = 40000
	tr.Push(core.Segment{Flow: other, Seq: 1, Payload: []byte("x")})

	assert.Equal(t, 1, tr.Flows(), "idle flow should be reaped, fresh flow kept")
}
