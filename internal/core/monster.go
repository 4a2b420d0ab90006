package core

import "strings"

// MonsterClass buckets a damage target for downstream filtering.
type MonsterClass uint8

const (
	MonsterNormal MonsterClass = iota
	MonsterDummy
	MonsterElite
	MonsterBoss
)

func (c MonsterClass) String() string {
	switch c {
	case MonsterDummy:
		return "dummy"
	case MonsterElite:
		return "elite"
	case MonsterBoss:
		return "boss"
	default:
		return "normal"
	}
}

// Classify maps the wire monster type and classification text to a
// MonsterClass. The rules mirror the game's own bucketing and must not
// be changed: downstream filtering depends on them exactly.
//
//	type 0                       -> normal
//	type 1                       -> training dummy
//	type 2, text contains "elite" -> elite
//	text contains "boss"          -> boss
//	type >= 3                     -> boss
//	type 2 with empty text        -> boss
func Classify(monsterType int32, classification string) MonsterClass {
	lower := strings.ToLower(classification)
	if strings.Contains(lower, "boss") {
		return MonsterBoss
	}
	switch {
	case monsterType == 0:
		return MonsterNormal
	case monsterType == 1:
		return MonsterDummy
	case monsterType == 2 && strings.Contains(lower, "elite"):
		return MonsterElite
	case monsterType == 2 && classification == "":
		return MonsterBoss
	case monsterType >= 3:
		return MonsterBoss
	default:
		return MonsterNormal
	}
}
