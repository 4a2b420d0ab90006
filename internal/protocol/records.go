package protocol

import (
	"encoding/binary"

	"github.com/akzios/bpsr-tools-sub001/internal/core"
	"github.com/akzios/bpsr-tools-sub001/internal/log"
	"github.com/akzios/bpsr-tools-sub001/internal/metrics"
)

// Record types carried inside notify frames.
const (
	recTypeDamage     uint16 = 0x0101
	recTypeHeal       uint16 = 0x0102
	recTypePlayerAttr uint16 = 0x0201
	recTypeDeath      uint16 = 0x0202
)

// Damage/heal flag bits.
const (
	flagCritical = 1 << 0
	flagLucky    = 1 << 1
)

// PlayerAttr field-mask bits.
const (
	attrName = 1 << iota
	attrProfession
	attrFightPoint
	attrMaxHP
	attrLevel
)

// parseRecords walks a decompressed frame body and emits one event per
// recognized record. Unknown record types are skipped by length; a
// truncated record ends the frame.
func parseRecords(body []byte, sink EventSink, logger log.Logger) {
	for len(body) > 0 {
		if len(body) < 4 {
			logger.WithField("trailing", len(body)).Warn("truncated record header, dropping rest of frame")
			return
		}
		recType := binary.BigEndian.Uint16(body[0:2])
		recLen := int(binary.BigEndian.Uint16(body[2:4]))
		body = body[4:]
		if recLen > len(body) {
			logger.WithFields(map[string]interface{}{
				"record_type": recType,
				"record_len":  recLen,
				"available":   len(body),
			}).Warn("truncated record payload, dropping rest of frame")
			return
		}
		payload := body[:recLen]
		body = body[recLen:]

		ev, ok := parseRecord(recType, payload)
		if ev.Kind == core.KindUnrecognized {
			continue
		}
		if !ok || !validate(ev) {
			metrics.EventsDroppedTotal.Inc()
			logger.WithField("kind", ev.Kind.String()).Warn("event missing required fields, dropped")
			continue
		}
		metrics.EventsTotal.WithLabelValues(ev.Kind.String()).Inc()
		sink(ev)
	}
}

func parseRecord(recType uint16, payload []byte) (core.Event, bool) {
	switch recType {
	case recTypeDamage:
		return parseDamage(payload)
	case recTypeHeal:
		return parseHeal(payload)
	case recTypePlayerAttr:
		return parsePlayerAttr(payload)
	case recTypeDeath:
		return parseDeath(payload)
	default:
		// Forward compatibility: the schema is externally controlled
		// and grows new record kinds between game patches.
		return core.Event{Kind: core.KindUnrecognized}, false
	}
}

// reader is a bounds-checked big-endian cursor. Failed reads latch the
// error state so parsers can read a full layout and check once.
type reader struct {
	buf []byte
	bad bool
}

func (r *reader) take(n int) []byte {
	if r.bad || len(r.buf) < n {
		r.bad = true
		return nil
	}
	b := r.buf[:n]
	r.buf = r.buf[n:]
	return b
}

func (r *reader) u8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) u16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint16(b)
}

func (r *reader) u32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

func (r *reader) u64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

func (r *reader) i32() int32 { return int32(r.u32()) }
func (r *reader) i64() int64 { return int64(r.u64()) }

func (r *reader) str() string {
	n := int(r.u16())
	b := r.take(n)
	if b == nil {
		return ""
	}
	return string(b)
}

func parseDamage(payload []byte) (core.Event, bool) {
	r := &reader{buf: payload}
	ev := core.Event{Kind: core.KindDamage}
	ev.AttackerUID = r.u64()
	ev.TargetUID = r.u64()
	ev.SkillID = r.u32()
	ev.Amount = r.i64()
	flags := r.u8()
	ev.IsCritical = flags&flagCritical != 0
	ev.IsLucky = flags&flagLucky != 0
	ev.MonsterType = r.i32()
	ev.Classification = r.str()
	return ev, !r.bad
}

func parseHeal(payload []byte) (core.Event, bool) {
	r := &reader{buf: payload}
	ev := core.Event{Kind: core.KindHeal}
	ev.AttackerUID = r.u64()
	ev.TargetUID = r.u64()
	ev.SkillID = r.u32()
	ev.Amount = r.i64()
	flags := r.u8()
	ev.IsCritical = flags&flagCritical != 0
	ev.IsLucky = flags&flagLucky != 0
	return ev, !r.bad
}

func parsePlayerAttr(payload []byte) (core.Event, bool) {
	r := &reader{buf: payload}
	ev := core.Event{Kind: core.KindPlayerAttr}
	ev.UID = r.u64()
	mask := r.u8()
	if mask&attrName != 0 {
		name := r.str()
		ev.Name = &name
	}
	if mask&attrProfession != 0 {
		p := r.u32()
		ev.ProfessionID = &p
	}
	if mask&attrFightPoint != 0 {
		fp := r.i64()
		ev.FightPoint = &fp
	}
	if mask&attrMaxHP != 0 {
		hp := r.i64()
		ev.MaxHP = &hp
	}
	if mask&attrLevel != 0 {
		lv := r.u32()
		ev.Level = &lv
	}
	return ev, !r.bad
}

func parseDeath(payload []byte) (core.Event, bool) {
	r := &reader{buf: payload}
	ev := core.Event{Kind: core.KindEntityDeath}
	ev.UID = r.u64()
	return ev, !r.bad
}

// validate enforces the required identifiers per event kind. An event
// failing validation is dropped with a warning, never fatal.
func validate(ev core.Event) bool {
	switch ev.Kind {
	case core.KindDamage, core.KindHeal:
		return ev.AttackerUID != 0 && ev.Amount >= 0
	case core.KindPlayerAttr, core.KindEntityDeath:
		return ev.UID != 0
	default:
		return false
	}
}
