package combat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akzios/bpsr-tools-sub001/internal/clock"
	"github.com/akzios/bpsr-tools-sub001/internal/core"
)

func damage(attacker, target uint64, skill uint32, amount int64, crit, lucky bool) core.Event {
	return core.Event{
		Kind:        core.KindDamage,
		AttackerUID: attacker,
		TargetUID:   target,
		SkillID:     skill,
		Amount:      amount,
		IsCritical:  crit,
		IsLucky:     lucky,
	}
}

func heal(healer, target uint64, skill uint32, amount int64, crit, lucky bool) core.Event {
	return core.Event{
		Kind:        core.KindHeal,
		AttackerUID: healer,
		TargetUID:   target,
		SkillID:     skill,
		Amount:      amount,
		IsCritical:  crit,
		IsLucky:     lucky,
	}
}

// newIdle returns an aggregator whose loop is not running; tests drive
// apply/tick/handleControl directly for determinism.
func newIdle() *Aggregator {
	return NewAggregator(Config{Clock: clock.NewFake()})
}

func (a *Aggregator) controlSync(op controlOp) *Snapshot {
	req := controlReq{op: op, reply: make(chan *Snapshot, 1)}
	a.handleControl(req)
	return <-req.reply
}

func TestExampleScenario(t *testing.T) {
	a := newIdle()
	a.apply(damage(1, 100, 50, 1000, true, false))

	snap := a.buildSnapshot()
	p := snap.Players[1]
	require.NotNil(t, p)
	assert.Equal(t, int64(1000), p.TotalDamage)
	assert.Equal(t, int64(1000), p.Damage.Critical.Total)
	assert.Zero(t, p.Damage.Normal.Total)

	sk, ok := p.Skills[50]
	require.True(t, ok)
	assert.Equal(t, int64(1), sk.Hits())
	assert.Equal(t, int64(1000), sk.Critical.Max)
}

func TestAccountingIdentity(t *testing.T) {
	a := newIdle()
	events := []core.Event{
		damage(1, 100, 50, 1000, true, false),
		damage(1, 100, 50, 150, false, false),
		damage(1, 101, 51, 320, false, true),
		damage(1, 102, 52, 77, true, true),
		damage(2, 100, 50, 9999, false, false),
	}
	for _, ev := range events {
		a.apply(ev)
	}

	snap := a.buildSnapshot()
	for _, p := range snap.Players {
		var skillSum int64
		for _, sk := range p.Skills {
			skillSum += sk.Total()
		}
		assert.Equal(t, p.TotalDamage, skillSum, "player %d skill sum", p.UID)
	}
	assert.Equal(t, int64(1547), snap.Players[1].TotalDamage)
	assert.Equal(t, int64(9999), snap.Players[2].TotalDamage)
}

func TestBucketSelection(t *testing.T) {
	a := newIdle()
	a.apply(damage(1, 100, 50, 10, false, false))
	a.apply(damage(1, 100, 50, 20, true, false))
	a.apply(damage(1, 100, 50, 30, false, true))
	// Critical takes precedence when both flags are set.
	a.apply(damage(1, 100, 50, 40, true, true))

	p := a.buildSnapshot().Players[1]
	assert.Equal(t, int64(10), p.Damage.Normal.Total)
	assert.Equal(t, int64(60), p.Damage.Critical.Total)
	assert.Equal(t, int64(30), p.Damage.Lucky.Total)
	assert.Equal(t, int64(100), p.TotalDamage)
	assert.Equal(t, int64(4), p.Hits)

	sk := p.Skills[50]
	assert.Equal(t, int64(20), sk.Critical.Min)
	assert.Equal(t, int64(40), sk.Critical.Max)
}

func TestTakenDamageOnlyForTrackedPlayers(t *testing.T) {
	a := newIdle()
	// Player 2 becomes tracked by dealing damage first.
	a.apply(damage(2, 200, 50, 1, false, false))
	a.apply(damage(1, 2, 50, 500, false, false))
	// Target 999 is an untracked monster; no record appears for it.
	a.apply(damage(1, 999, 50, 700, false, false))

	snap := a.buildSnapshot()
	assert.Equal(t, int64(500), snap.Players[2].TakenDamage)
	_, exists := snap.Players[999]
	assert.False(t, exists)
}

func TestTargetBreakdownAndClassification(t *testing.T) {
	a := newIdle()
	ev := damage(1, 500, 50, 100, false, false)
	ev.MonsterType = 2
	ev.Classification = "World Boss"
	a.apply(ev)
	ev.Amount = 150
	a.apply(ev)

	p := a.buildSnapshot().Players[1]
	tgt, ok := p.Targets[500]
	require.True(t, ok)
	assert.Equal(t, int64(250), tgt.Damage)
	assert.Equal(t, int64(2), tgt.Hits)
	assert.Equal(t, core.MonsterBoss, tgt.Class)
	assert.Equal(t, int64(250), p.TargetsByClass()[core.MonsterBoss])
}

func TestHealingTracked(t *testing.T) {
	a := newIdle()
	a.apply(heal(3, 1, 90, 450, false, true))
	a.apply(heal(3, 2, 90, 550, false, false))

	p := a.buildSnapshot().Players[3]
	assert.Equal(t, int64(1000), p.TotalHealing)
	assert.Equal(t, int64(450), p.Healing.Lucky.Total)
	assert.Zero(t, p.TotalDamage)

	// Healing skills live in their own map; the damage map stays empty.
	healSkill := p.HealingSkills[90]
	assert.Equal(t, int64(1000), healSkill.Total())
	assert.Empty(t, p.Skills)
}

func TestMixedDamageHealSkillsStaySeparate(t *testing.T) {
	a := newIdle()
	// Same skill id used for both damage and healing must not bleed
	// between the maps or break the damage accounting identity.
	a.apply(damage(1, 100, 50, 800, false, false))
	a.apply(heal(1, 2, 50, 300, false, false))
	a.apply(damage(1, 100, 51, 200, true, false))

	p := a.buildSnapshot().Players[1]
	var skillSum int64
	for _, sk := range p.Skills {
		skillSum += sk.Total()
	}
	assert.Equal(t, p.TotalDamage, skillSum)
	assert.Equal(t, int64(1000), p.TotalDamage)
	dmgSkill := p.Skills[50]
	assert.Equal(t, int64(800), dmgSkill.Total())
	healSkill := p.HealingSkills[50]
	assert.Equal(t, int64(300), healSkill.Total())
	assert.Equal(t, int64(300), p.TotalHealing)
}

func TestAttrMergeNeverDowngrades(t *testing.T) {
	a := newIdle()
	name := "Riven"
	prof := uint32(7)
	fp := int64(120000)
	hp := int64(500000)
	lv := uint32(55)
	a.apply(core.Event{Kind: core.KindPlayerAttr, UID: 1,
		Name: &name, ProfessionID: &prof, FightPoint: &fp, MaxHP: &hp, Level: &lv})

	// Later event with placeholder/lower values must not erase state.
	empty := ""
	lowFP := int64(80000)
	lowHP := int64(10)
	a.apply(core.Event{Kind: core.KindPlayerAttr, UID: 1,
		Name: &empty, FightPoint: &lowFP, MaxHP: &lowHP})

	p := a.buildSnapshot().Players[1]
	assert.Equal(t, "Riven", p.Name)
	assert.Equal(t, int64(120000), p.FightPoint)
	assert.Equal(t, int64(500000), p.MaxHP)
	assert.Equal(t, uint32(55), p.Level)

	// Higher values do move up.
	highFP := int64(130000)
	a.apply(core.Event{Kind: core.KindPlayerAttr, UID: 1, FightPoint: &highFP})
	assert.Equal(t, int64(130000), a.buildSnapshot().Players[1].FightPoint)
}

func TestDeathCounter(t *testing.T) {
	a := newIdle()
	a.apply(damage(1, 100, 50, 10, false, false))
	a.apply(core.Event{Kind: core.KindEntityDeath, UID: 1})
	a.apply(core.Event{Kind: core.KindEntityDeath, UID: 1})
	// Deaths of entities without records are ignored.
	a.apply(core.Event{Kind: core.KindEntityDeath, UID: 424242})

	snap := a.buildSnapshot()
	assert.Equal(t, int64(2), snap.Players[1].Deaths)
	_, exists := snap.Players[424242]
	assert.False(t, exists)
}

func TestPauseSuppressesIngestion(t *testing.T) {
	a := newIdle()
	a.apply(damage(1, 100, 50, 1000, false, false))

	a.controlSync(opPause)
	snap := a.controlSync(opQuery)
	assert.True(t, snap.Paused)

	// The run loop discards events while paused; emulate that here.
	a.tick()
	before := a.buildSnapshot().Players[1].TotalDamage

	a.controlSync(opResume)
	a.apply(damage(1, 100, 50, 500, false, false))

	p := a.buildSnapshot().Players[1]
	assert.Equal(t, before+500, p.TotalDamage)
}

func TestPausedTickFreezesRingsAndDuration(t *testing.T) {
	a := newIdle()
	a.apply(damage(1, 100, 50, 1000, false, false))
	a.tick()
	require.Equal(t, 1, len(a.buildSnapshot().Players[1].DPS))
	require.Equal(t, a.cfg.TickInterval, a.buildSnapshot().Duration)

	a.controlSync(opPause)
	a.tick()
	a.tick()

	snap := a.buildSnapshot()
	assert.Equal(t, 1, len(snap.Players[1].DPS), "rings frozen while paused")
	assert.Equal(t, a.cfg.TickInterval, snap.Duration, "duration frozen while paused")
}

func TestClearResetsEverything(t *testing.T) {
	a := newIdle()
	a.apply(damage(1, 100, 50, 1000, true, false))
	a.apply(heal(1, 2, 90, 300, false, false))
	name := "Kael"
	a.apply(core.Event{Kind: core.KindPlayerAttr, UID: 1, Name: &name})
	a.tick()

	a.controlSync(opClear)

	snap := a.buildSnapshot()
	p := snap.Players[1]
	assert.Zero(t, p.TotalDamage)
	assert.Zero(t, p.TotalHealing)
	assert.Empty(t, p.Skills)
	assert.Empty(t, p.HealingSkills)
	assert.Empty(t, p.Targets)
	assert.Empty(t, p.DPS)
	assert.Empty(t, p.HPS)
	assert.Zero(t, snap.Duration)
	// Identity survives a clear; stats do not.
	assert.Equal(t, "Kael", p.Name)
}

func TestTickComputesRates(t *testing.T) {
	a := newIdle()
	a.apply(damage(1, 100, 50, 250, false, false))
	a.tick()

	p := a.buildSnapshot().Players[1]
	require.Len(t, p.DPS, 1)
	// 250 damage over a 100 ms tick is 2500/s.
	assert.InDelta(t, 2500, p.DPS[0], 0.001)

	// Next tick with no damage samples zero.
	a.tick()
	p = a.buildSnapshot().Players[1]
	require.Len(t, p.DPS, 2)
	assert.Zero(t, p.DPS[1])
}

func TestRingEviction(t *testing.T) {
	r := newRing(3)
	for i := 1; i <= 5; i++ {
		r.Push(float64(i))
	}
	assert.Equal(t, 3, r.Len())
	assert.Equal(t, []float64{3, 4, 5}, r.Samples())

	r.Reset()
	assert.Zero(t, r.Len())
	assert.Empty(t, r.Samples())
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	a := newIdle()
	a.apply(damage(1, 100, 50, 1000, false, false))
	snap := a.buildSnapshot()

	a.apply(damage(1, 100, 50, 9000, false, false))
	a.apply(damage(1, 777, 50, 1, false, false))

	p := snap.Players[1]
	assert.Equal(t, int64(1000), p.TotalDamage)
	assert.Equal(t, int64(1000), p.Skills[50].Normal.Total)
	_, leaked := p.Targets[777]
	assert.False(t, leaked, "snapshot must not see later mutations")
}

func TestFanOutLatestWins(t *testing.T) {
	a := newIdle()
	_, ch := a.Subscribe()

	a.emit(&Snapshot{Duration: 1})
	a.emit(&Snapshot{Duration: 2})
	a.emit(&Snapshot{Duration: 3})

	snap := <-ch
	assert.Equal(t, time.Duration(3), snap.Duration, "slow consumer sees the newest snapshot")
	select {
	case <-ch:
		t.Fatal("no further snapshot should be buffered")
	default:
	}
}

func TestControlBeforeStartIsNoop(t *testing.T) {
	a := newIdle()
	// Must not block or panic on an unstarted aggregator.
	a.SetPaused(true)
	a.Clear()
	assert.Nil(t, a.Query())
	a.Stop()
}

func TestRunLoopEndToEnd(t *testing.T) {
	a := NewAggregator(Config{Clock: clock.NewFake()})
	a.Start()
	defer a.Stop()

	a.Ingest(damage(1, 100, 50, 1000, true, false))
	require.Eventually(t, func() bool {
		snap := a.Query()
		return snap != nil && snap.Players[1] != nil && snap.Players[1].TotalDamage == 1000
	}, time.Second, 5*time.Millisecond)

	a.SetPaused(true)
	a.Ingest(damage(1, 100, 50, 777, false, false))
	snap := a.Query()
	assert.True(t, snap.Paused)
	assert.Equal(t, int64(1000), snap.Players[1].TotalDamage)

	a.SetPaused(false)
	a.Ingest(damage(1, 100, 50, 500, false, false))
	require.Eventually(t, func() bool {
		return a.Query().Players[1].TotalDamage == 1500
	}, time.Second, 5*time.Millisecond)

	a.Clear()
	assert.Zero(t, a.Query().Players[1].TotalDamage)
}
