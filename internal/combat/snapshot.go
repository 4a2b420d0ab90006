package combat

import (
	"time"

	"github.com/akzios/bpsr-tools-sub001/internal/core"
)

// Snapshot is an immutable point-in-time copy of all aggregated combat
// state. It shares no memory with the live records; consumers may hold
// it indefinitely.
type Snapshot struct {
	Time     time.Time                  `json:"time"`
	Duration time.Duration              `json:"duration"`
	Paused   bool                       `json:"paused"`
	Players  map[uint64]*PlayerSnapshot `json:"players"`
}

// PlayerSnapshot is the frozen view of one player's record.
type PlayerSnapshot struct {
	UID          uint64 `json:"uid"`
	Name         string `json:"name,omitempty"`
	ProfessionID uint32 `json:"professionId,omitempty"`
	FightPoint   int64  `json:"fightPoint,omitempty"`
	MaxHP        int64  `json:"maxHp,omitempty"`
	Level        uint32 `json:"level,omitempty"`

	Damage      SkillAccumulator `json:"damage"`
	Healing     SkillAccumulator `json:"healing"`
	TakenDamage int64            `json:"takenDamage"`
	Deaths      int64            `json:"deaths"`

	TotalDamage  int64 `json:"totalDamage"`
	TotalHealing int64 `json:"totalHealing"`
	Hits         int64 `json:"hits"`

	// Skills holds damage skills only; healing skills are separate so
	// damage skill sums always reconcile against TotalDamage.
	Skills        map[uint32]SkillAccumulator  `json:"skills"`
	HealingSkills map[uint32]SkillAccumulator  `json:"healingSkills"`
	Targets       map[uint64]TargetAccumulator `json:"targets"`

	// DPS/HPS are the ring-buffer samples, oldest first.
	DPS []float64 `json:"dps"`
	HPS []float64 `json:"hps"`
}

// TargetsByClass sums target damage per monster class.
func (p *PlayerSnapshot) TargetsByClass() map[core.MonsterClass]int64 {
	out := make(map[core.MonsterClass]int64)
	for _, t := range p.Targets {
		out[t.Class] += t.Damage
	}
	return out
}

func (p *playerRecord) snapshot() *PlayerSnapshot {
	s := &PlayerSnapshot{
		UID:           p.uid,
		Name:          p.name,
		ProfessionID:  p.professionID,
		FightPoint:    p.fightPoint,
		MaxHP:         p.maxHP,
		Level:         p.level,
		Damage:        p.damage,
		Healing:       p.healing,
		TakenDamage:   p.taken,
		Deaths:        p.deaths,
		TotalDamage:   p.damage.Total(),
		TotalHealing:  p.healing.Total(),
		Hits:          p.damage.Hits(),
		Skills:        make(map[uint32]SkillAccumulator, len(p.skills)),
		HealingSkills: make(map[uint32]SkillAccumulator, len(p.healSkills)),
		Targets:       make(map[uint64]TargetAccumulator, len(p.targets)),
		DPS:           p.dps.Samples(),
		HPS:           p.hps.Samples(),
	}
	for id, sk := range p.skills {
		s.Skills[id] = *sk
	}
	for id, sk := range p.healSkills {
		s.HealingSkills[id] = *sk
	}
	for uid, t := range p.targets {
		s.Targets[uid] = *t
	}
	return s
}
