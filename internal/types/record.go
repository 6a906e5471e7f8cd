package types

import (
	"fmt"
	"slices"

	"fortio.org/safecast"

	"cabi/internal/source"
)

// Field is one member of a struct or union.
type Field struct {
	Name string
	Type TypeID
	Decl source.Span
}

// RecordInfo stores metadata for a struct or union type. A record stays
// incomplete until SetRecordFields is called, which mirrors a forward
// declaration followed by a definition.
type RecordInfo struct {
	Tag      string
	Decl     source.Span
	Fields   []Field
	Complete bool
}

// RegisterRecord allocates a new nominal struct or union type.
func (in *Interner) RegisterRecord(kind Kind, tag string, decl source.Span) TypeID {
	if !kind.IsRecord() {
		panic(fmt.Sprintf("types: RegisterRecord with %s", kind))
	}
	in.records = append(in.records, RecordInfo{Tag: tag, Decl: decl})
	slot := in.lastSlot(len(in.records))
	return in.internRaw(Type{Kind: kind, Payload: slot})
}

// SetRecordFields completes the record with its members in declaration order.
func (in *Interner) SetRecordFields(typeID TypeID, fields []Field) {
	info := in.recordInfo(typeID)
	if info == nil {
		return
	}
	info.Fields = slices.Clone(fields)
	info.Complete = true
}

// RecordInfo returns metadata for the provided struct/union TypeID.
func (in *Interner) RecordInfo(typeID TypeID) (*RecordInfo, bool) {
	info := in.recordInfo(typeID)
	if info == nil {
		return nil, false
	}
	return info, true
}

// RecordFields returns a copy of the record members.
func (in *Interner) RecordFields(typeID TypeID) []Field {
	info := in.recordInfo(typeID)
	if info == nil || len(info.Fields) == 0 {
		return nil
	}
	return slices.Clone(info.Fields)
}

func (in *Interner) recordInfo(typeID TypeID) *RecordInfo {
	tt, ok := in.Lookup(typeID)
	if !ok || !tt.Kind.IsRecord() {
		return nil
	}
	if tt.Payload == 0 || int(tt.Payload) >= len(in.records) {
		return nil
	}
	return &in.records[tt.Payload]
}

func (in *Interner) lastSlot(n int) uint32 {
	slot, err := safecast.Conv[uint32](n - 1)
	if err != nil {
		panic(fmt.Errorf("info slot overflow: %w", err))
	}
	return slot
}
