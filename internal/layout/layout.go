package layout

import (
	"slices"

	"cabi/internal/target"
	"cabi/internal/trace"
	"cabi/internal/types"
)

// FieldLayout places one struct or union member.
type FieldLayout struct {
	Name   string
	Type   types.TypeID
	Offset int64
	Size   int64
	Align  int64
}

// TypeLayout is the ABI layout of a type for a specific target.
// Size is always a multiple of Align.
type TypeLayout struct {
	Size  int64
	Align int64

	// Struct/union members in declaration order.
	Fields []FieldLayout
}

// Field returns the member called name.
func (l TypeLayout) Field(name string) (FieldLayout, bool) {
	for _, f := range l.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldLayout{}, false
}

// LayoutEngine computes memory layout for types. It is not safe for
// concurrent use; give every goroutine its own engine.
type LayoutEngine struct {
	Target target.Descriptor
	Types  *types.Interner

	// Span receives a node-level event per cache miss. Optional.
	Span *trace.Span

	cache *cache
}

// New creates a new LayoutEngine for the specified target.
func New(desc target.Descriptor, typesIn *types.Interner) *LayoutEngine {
	return &LayoutEngine{
		Target: desc,
		Types:  typesIn,
		cache:  newCache(),
	}
}

type layoutState struct {
	stack []types.TypeID
	index map[types.TypeID]int
}

func newLayoutState() *layoutState {
	return &layoutState{
		stack: nil,
		index: make(map[types.TypeID]int, 32),
	}
}

// LayoutOf computes and caches the layout of a type. Errors are
// *LayoutError values.
func (e *LayoutEngine) LayoutOf(t types.TypeID) (TypeLayout, error) {
	if e.cache == nil {
		e.cache = newCache()
	}
	layout, err := e.layoutOf(t, newLayoutState())
	if err != nil {
		return TypeLayout{}, err
	}
	layout.Fields = slices.Clone(layout.Fields)
	return layout, nil
}

func (e *LayoutEngine) layoutOf(t types.TypeID, state *layoutState) (TypeLayout, *LayoutError) {
	key := cacheKey{Type: t, Target: e.Target.ID()}
	if cached, ok := e.cache.get(key); ok {
		return cached, nil
	}

	if idx, ok := state.index[t]; ok {
		cycle := append([]types.TypeID(nil), state.stack[idx:]...)
		cycle = append(cycle, t)
		return TypeLayout{}, e.errorf(LayoutErrIncompleteType, t, func(le *LayoutError) {
			le.Cycle = cycle
		})
	}

	state.index[t] = len(state.stack)
	state.stack = append(state.stack, t)
	layout, err := e.computeLayout(t, state)
	state.stack = state.stack[:len(state.stack)-1]
	delete(state.index, t)

	if err != nil {
		// Failures are not cached: an incomplete record may be completed
		// by a later definition.
		return TypeLayout{}, err
	}
	if e.Span.Enabled(trace.ScopeNode) {
		e.Span.Point(trace.ScopeNode, "layout", e.Types.TypeString(t))
	}
	e.cache.put(key, layout)
	return layout, nil
}

// SizeOf returns the size of a type in bytes.
func (e *LayoutEngine) SizeOf(t types.TypeID) (int64, error) {
	l, err := e.LayoutOf(t)
	return l.Size, err
}

// AlignOf returns the alignment requirement of a type in bytes.
func (e *LayoutEngine) AlignOf(t types.TypeID) (int64, error) {
	l, err := e.LayoutOf(t)
	return l.Align, err
}

// FieldOffset returns the byte offset of a struct or union member.
func (e *LayoutEngine) FieldOffset(record types.TypeID, name string) (int64, bool, error) {
	l, err := e.LayoutOf(record)
	if err != nil {
		return 0, false, err
	}
	f, ok := l.Field(name)
	return f.Offset, ok, nil
}

// CacheLen reports how many layouts are cached.
func (e *LayoutEngine) CacheLen() int {
	return e.cache.len()
}
