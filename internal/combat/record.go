// Package combat aggregates decoded events into per-player statistics
// and emits immutable snapshots on a fixed tick.
package combat

import (
	"github.com/akzios/bpsr-tools-sub001/internal/core"
)

// BucketStat accumulates one hit-type bucket: total amount, hit count
// and the min/max single hit. Min/Max are meaningful only when Count is
// non-zero.
type BucketStat struct {
	Total int64 `json:"total"`
	Count int64 `json:"count"`
	Min   int64 `json:"min"`
	Max   int64 `json:"max"`
}

func (s *BucketStat) add(v int64) {
	s.Total += v
	s.Count++
	if s.Count == 1 || v < s.Min {
		s.Min = v
	}
	if v > s.Max {
		s.Max = v
	}
}

// SkillAccumulator tracks one skill's contribution, split by hit type.
// The critical bucket takes precedence when a hit is both critical and
// lucky.
type SkillAccumulator struct {
	Normal   BucketStat `json:"normal"`
	Critical BucketStat `json:"critical"`
	Lucky    BucketStat `json:"lucky"`
}

func (a *SkillAccumulator) add(amount int64, critical, lucky bool) {
	switch {
	case critical:
		a.Critical.add(amount)
	case lucky:
		a.Lucky.add(amount)
	default:
		a.Normal.add(amount)
	}
}

// Total returns the skill's summed amount across buckets.
func (a *SkillAccumulator) Total() int64 {
	return a.Normal.Total + a.Critical.Total + a.Lucky.Total
}

// Hits returns the skill's summed hit count across buckets.
func (a *SkillAccumulator) Hits() int64 {
	return a.Normal.Count + a.Critical.Count + a.Lucky.Count
}

// TargetAccumulator tracks damage dealt to one target identity. The
// monster class tag is captured on first sight and kept.
type TargetAccumulator struct {
	Damage         int64             `json:"damage"`
	Hits           int64             `json:"hits"`
	MonsterType    int32             `json:"monsterType"`
	Classification string            `json:"classification"`
	Class          core.MonsterClass `json:"class"`
}

// playerRecord is the live mutable per-player aggregate. It is owned
// exclusively by the aggregator goroutine and never escapes by
// reference; consumers get snapshot copies.
type playerRecord struct {
	uid uint64

	// Best-known identity attributes. Merge rules: a known name is
	// never erased by an empty one; numeric fields only move up.
	name         string
	professionID uint32
	fightPoint   int64
	maxHP        int64
	level        uint32

	damage  SkillAccumulator // player-level totals, same bucket logic
	healing SkillAccumulator
	taken   int64
	deaths  int64

	// Damage and healing keep separate per-skill maps so the damage
	// skill sums always equal the player's damage total, even for
	// players who both heal and deal damage.
	skills     map[uint32]*SkillAccumulator
	healSkills map[uint32]*SkillAccumulator
	targets    map[uint64]*TargetAccumulator

	dps *Ring
	hps *Ring

	// Amounts accrued since the last tick, consumed by the sampler.
	tickDamage  int64
	tickHealing int64
}

func newPlayerRecord(uid uint64, window int) *playerRecord {
	return &playerRecord{
		uid:        uid,
		skills:     make(map[uint32]*SkillAccumulator),
		healSkills: make(map[uint32]*SkillAccumulator),
		targets:    make(map[uint64]*TargetAccumulator),
		dps:        newRing(window),
		hps:        newRing(window),
	}
}

func (p *playerRecord) skill(id uint32) *SkillAccumulator {
	s, ok := p.skills[id]
	if !ok {
		s = &SkillAccumulator{}
		p.skills[id] = s
	}
	return s
}

func (p *playerRecord) healSkill(id uint32) *SkillAccumulator {
	s, ok := p.healSkills[id]
	if !ok {
		s = &SkillAccumulator{}
		p.healSkills[id] = s
	}
	return s
}

func (p *playerRecord) target(uid uint64, monsterType int32, classification string) *TargetAccumulator {
	t, ok := p.targets[uid]
	if !ok {
		t = &TargetAccumulator{
			MonsterType:    monsterType,
			Classification: classification,
			Class:          core.Classify(monsterType, classification),
		}
		p.targets[uid] = t
	}
	return t
}

func (p *playerRecord) applyDamage(ev core.Event) {
	p.damage.add(ev.Amount, ev.IsCritical, ev.IsLucky)
	p.skill(ev.SkillID).add(ev.Amount, ev.IsCritical, ev.IsLucky)
	if ev.TargetUID != 0 {
		t := p.target(ev.TargetUID, ev.MonsterType, ev.Classification)
		t.Damage += ev.Amount
		t.Hits++
	}
	p.tickDamage += ev.Amount
}

func (p *playerRecord) applyHeal(ev core.Event) {
	p.healing.add(ev.Amount, ev.IsCritical, ev.IsLucky)
	p.healSkill(ev.SkillID).add(ev.Amount, ev.IsCritical, ev.IsLucky)
	p.tickHealing += ev.Amount
}

func (p *playerRecord) mergeAttrs(ev core.Event) {
	if ev.Name != nil && *ev.Name != "" {
		p.name = *ev.Name
	}
	if ev.ProfessionID != nil && *ev.ProfessionID != 0 {
		p.professionID = *ev.ProfessionID
	}
	if ev.FightPoint != nil && *ev.FightPoint > p.fightPoint {
		p.fightPoint = *ev.FightPoint
	}
	if ev.MaxHP != nil && *ev.MaxHP > p.maxHP {
		p.maxHP = *ev.MaxHP
	}
	if ev.Level != nil && *ev.Level > p.level {
		p.level = *ev.Level
	}
}

// clearStats zeroes all combat accumulators while keeping the player's
// identity attributes, so names survive a meter reset.
func (p *playerRecord) clearStats() {
	p.damage = SkillAccumulator{}
	p.healing = SkillAccumulator{}
	p.taken = 0
	p.deaths = 0
	p.skills = make(map[uint32]*SkillAccumulator)
	p.healSkills = make(map[uint32]*SkillAccumulator)
	p.targets = make(map[uint64]*TargetAccumulator)
	p.dps.Reset()
	p.hps.Reset()
	p.tickDamage = 0
	p.tickHealing = 0
}
