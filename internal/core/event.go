package core

// EventKind discriminates the decoded-event union. Unknown wire message
// kinds decode to KindUnrecognized and are skipped downstream.
type EventKind uint8

const (
	KindUnrecognized EventKind = iota
	KindDamage
	KindHeal
	KindPlayerAttr
	KindEntityDeath
)

func (k EventKind) String() string {
	switch k {
	case KindDamage:
		return "damage"
	case KindHeal:
		return "heal"
	case KindPlayerAttr:
		return "player_attr"
	case KindEntityDeath:
		return "entity_death"
	default:
		return "unrecognized"
	}
}

// Event is one decoded combat/game event. It is a closed tagged union:
// Kind selects which field group is meaningful. Events are immutable
// after construction and consumed exactly once by the aggregator.
type Event struct {
	Kind EventKind

	// Damage / Heal
	AttackerUID uint64 // healer UID for KindHeal
	TargetUID   uint64
	SkillID     uint32
	Amount      int64
	IsCritical  bool
	IsLucky     bool

	// Damage only
	MonsterType    int32
	Classification string

	// PlayerAttr / EntityDeath subject
	UID uint64

	// PlayerAttr optional fields; nil means not present in the wire
	// message, which must never overwrite a previously known value.
	Name         *string
	ProfessionID *uint32
	FightPoint   *int64
	MaxHP        *int64
	Level        *uint32
}
