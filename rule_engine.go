// rule_engine.go - Trigger/action evaluation and flag ticks
//
// The engine re-evaluates the rule graph on every MMIO event (spec.md
// S4.3.1) and ticks the flag list on a timer/exception-exit cadence
// (spec.md S4.3.3). Rule and flag slices are walked in file order; each
// UpdateGraph pass allocates a small chain-tracking map and the candidate
// slice, and a full-scope pass also builds a combined rule slice.

package nlpmodel

import (
	"fmt"
	"math/rand"
)

// EventKind is the access kind that triggered a rule evaluation.
type EventKind int

const (
	EventUnknown EventKind = iota
	EventRead
	EventWrite
)

// MemReader/MemWriter let a MemMapped field indirect through CPU memory
// (spec.md S4.3.2, design note "Cross-field references"). The engine takes
// a capability, not a raw pointer, so a test can supply a fake.
type MemReader interface {
	ReadCPUWord(addr uint32) uint32
}

type MemWriter interface {
	WriteCPUWord(addr uint32, value uint32)
}

type MemAccessor interface {
	MemReader
	MemWriter
}

// IRQCandidate is one action's interrupt request surfaced by a rule firing,
// awaiting arbitration (spec.md S4.3.1 step 3).
type IRQCandidate struct {
	IRQ     int
	SrcAddr uint32 // phaddr of the rule whose action carried the interrupt
}

// Engine evaluates rules and flags against a PeripheralState.
type Engine struct {
	Spec *SpecFile
	Mem  MemAccessor
	Rand *rand.Rand

	// Stats, if set, receives firing counts (spec.md S4.7). Optional so
	// the engine can be exercised standalone in tests.
	Stats *Statistics
}

// NewEngine builds an engine over a parsed spec. rng is the single shared
// PRNG the whole model uses (spec.md S9 "RNG").
func NewEngine(spec *SpecFile, mem MemAccessor, rng *rand.Rand) *Engine {
	return &Engine{Spec: spec, Mem: mem, Rand: rng}
}

// getField reads the numeric value of a field's bit slice, MSB-first
// (spec.md S4.3.2, I3).
func (e *Engine) getField(st *PeripheralState, f Field) uint32 {
	var word uint32
	if f.Kind == KindMemMapped {
		reg := st.Store.Get(f.PhAddr)
		base := f.PhAddr
		if reg != nil {
			base = reg.CurValue
		}
		word = e.Mem.ReadCPUWord(base)
	} else {
		word = st.Store.ReadPh(f.PhAddr)
	}
	if f.Bits.isWholeWord() {
		return word
	}
	return extractBits(word, f.Bits)
}

// setField writes v into a field's bit slice, MSB-first (spec.md S4.3.2).
func (e *Engine) setField(st *PeripheralState, f Field, v uint32) {
	if f.Kind == KindMemMapped {
		reg := st.Store.Get(f.PhAddr)
		base := f.PhAddr
		if reg != nil {
			base = reg.CurValue
		}
		if f.Bits.isWholeWord() {
			e.Mem.WriteCPUWord(base, v)
			return
		}
		cur := e.Mem.ReadCPUWord(base)
		e.Mem.WriteCPUWord(base, injectBits(cur, f.Bits, v))
		return
	}
	if f.Bits.isWholeWord() {
		st.Store.WritePh(f.PhAddr, v)
		return
	}
	cur := st.Store.ReadPh(f.PhAddr)
	st.Store.WritePh(f.PhAddr, injectBits(cur, f.Bits, v))
}

// extractBits reads len(bits) bits out of word, MSB-first, and packs them
// into the low bits of the result in the same order.
func extractBits(word uint32, bits Bits) uint32 {
	var out uint32
	for _, b := range bits {
		bit := (word >> uint(b)) & 1
		out = (out << 1) | bit
	}
	return out
}

// injectBits writes the low len(bits) bits of v into word at the given bit
// positions, MSB-first (spec.md S4.3.2 "for each bit b_i (MSB first), write
// bit i of v into position b_i").
func injectBits(word uint32, bits Bits, v uint32) uint32 {
	n := len(bits)
	for i, b := range bits {
		shift := uint(n - 1 - i)
		bit := (v >> shift) & 1
		if bit == 1 {
			word |= 1 << uint(b)
		} else {
			word &^= 1 << uint(b)
		}
	}
	return word
}

// compare applies op to (a, b); OpWildcard is always false (original
// source's `compare(*)` behavior, spec.md design notes).
func compare(a uint32, op Op, b uint32) bool {
	switch op {
	case OpEQ:
		return a == b
	case OpGT:
		return a > b
	case OpLT:
		return a < b
	case OpGE:
		return a >= b
	case OpLE:
		return a <= b
	case OpWildcard:
		return false
	default:
		return false
	}
}

// resolveA2 computes the right-hand side of an equation for comparison or
// for an action's assignment.
func (e *Engine) resolveA2(st *PeripheralState, eq Equation) uint32 {
	switch eq.A2Kind {
	case A2Literal:
		return eq.A2Value
	case A2Field:
		if eq.A2Field == nil {
			return 0
		}
		return e.getField(st, *eq.A2Field)
	case A2RXSize:
		if r := st.Store.Get(eq.Field.PhAddr); r != nil {
			return r.RSize
		}
		return 0
	case A2TXSize:
		if r := st.Store.Get(eq.Field.PhAddr); r != nil {
			return r.TSize
		}
		return 0
	default:
		return 0
	}
}

// evalTrigger reports whether a single trigger equation holds for the
// given access (spec.md S4.3.1 step 1).
func (e *Engine) evalTrigger(st *PeripheralState, eq Equation, kind EventKind, phaddr uint32) bool {
	switch eq.TriggerType {
	case TriggerWildcard:
		return true
	case TriggerRead:
		if kind != EventRead || (eq.Field.PhAddr != 0 && eq.Field.PhAddr != phaddr) {
			return false
		}
		if eq.Op == OpWildcard {
			return true
		}
		return compare(e.getField(st, eq.Field), eq.Op, e.resolveA2(st, eq))
	case TriggerWrite:
		if kind != EventWrite || (eq.Field.PhAddr != 0 && eq.Field.PhAddr != phaddr) {
			return false
		}
		if eq.Op == OpWildcard {
			return true
		}
		return compare(e.getField(st, eq.Field), eq.Op, e.resolveA2(st, eq))
	default: // TriggerCondition
		if eq.Op == OpWildcard {
			return true
		}
		return compare(e.getField(st, eq.Field), eq.Op, e.resolveA2(st, eq))
	}
}

func (e *Engine) evalRule(st *PeripheralState, r Rule, kind EventKind, phaddr uint32) bool {
	switch r.TriggerOp {
	case CombinatorOR:
		for _, eq := range r.Triggers {
			if e.evalTrigger(st, eq, kind, phaddr) {
				return true
			}
		}
		return len(r.Triggers) == 0
	default: // AND
		for _, eq := range r.Triggers {
			if !e.evalTrigger(st, eq, kind, phaddr) {
				return false
			}
		}
		return true
	}
}

// UpdateGraph is the core rule-evaluation entry point (spec.md S4.3.1).
// phaddr == 0 with kind == EventUnknown means "evaluate every rule across
// every block." Returns the IRQ candidates collected from firing actions,
// ready for the IRQ Arbiter.
func (e *Engine) UpdateGraph(st *PeripheralState, kind EventKind, phaddr uint32) []IRQCandidate {
	var rules []Rule
	if phaddr != 0 {
		if b := e.Spec.BlockFor(phaddr); b != nil {
			rules = b.Rules
		}
	} else {
		rules = e.Spec.AllRules()
	}

	var candidates []IRQCandidate
	// prevAction tracks the last value written to each register address
	// this pass, used to detect chain firings: rule A fires on state rule B
	// just set (spec.md S4.7). Tracking is per address, not per bit.
	prevAction := make(map[uint32]uint32)

	for _, r := range rules {
		if !e.evalRule(st, r, kind, phaddr) {
			continue
		}

		chained := false
		for _, eq := range r.Triggers {
			if eq.TriggerType == TriggerCondition {
				if _, ok := prevAction[eq.Field.PhAddr]; ok {
					chained = true
				}
			}
		}

		if e.Stats != nil {
			e.Stats.RecordRuleFire(r.ID, chained)
		}

		for _, eq := range r.Actions {
			e.applyAction(st, eq)
			prevAction[eq.Field.PhAddr] = e.getField(st, eq.Field)

			if eq.Interrupt >= 0 && withinMMIO(eq.Field.PhAddr) {
				if st.ExitInterrupt[eq.Interrupt] == 0 {
					candidates = append(candidates, IRQCandidate{IRQ: eq.Interrupt, SrcAddr: eq.Field.PhAddr})
				} else if e.Stats != nil {
					e.Stats.RecordMissedEnable(eq.Interrupt, eq.Field.PhAddr)
				}
			}
		}
	}

	if len(candidates) > 1 {
		e.Rand.Shuffle(len(candidates), func(i, j int) {
			candidates[i], candidates[j] = candidates[j], candidates[i]
		})
	}
	return candidates
}

func withinMMIO(addr uint32) bool {
	return addr >= PeripheralSpaceStart && addr <= PeripheralSpaceEnd
}

// applyAction applies one action equation (spec.md S4.3.1 step 3).
func (e *Engine) applyAction(st *PeripheralState, eq Equation) {
	v := e.resolveA2(st, eq)
	switch eq.A2Kind {
	case A2RXSize:
		if r := st.Store.Get(eq.Field.PhAddr); r != nil {
			r.RSize = v
		}
		return
	case A2TXSize:
		if r := st.Store.Get(eq.Field.PhAddr); r != nil {
			r.TSize = v
		}
		return
	}
	e.setField(st, eq.Field, v)
}

// UpdateFlags ticks the flag list for one block (scope > 1, an MMIO access
// at that address) or every flag (scope 0 or 1), per spec.md S4.3.3. Scope
// 0 is a plain full-scope tick (fork point, input feeder); scope 1 is
// reserved for the exception-exit callback and additionally clears
// Specific flags (the "timer" flip back to disabled).
func (e *Engine) UpdateFlags(st *PeripheralState, scope uint32) {
	var flags []Flag
	if scope <= 1 {
		flags = e.Spec.AllFlags()
	} else {
		// Rule lines and flag lines form separate blocks, so take the first
		// block covering scope that actually carries flags.
		for _, b := range e.Spec.Blocks {
			if len(b.Flags) > 0 && b.Contains(scope) {
				flags = b.Flags
				break
			}
		}
	}

	for _, fl := range flags {
		switch fl.Kind {
		case FlagSpecific:
			switch scope {
			case 0:
				if len(fl.Values) > 0 {
					e.setField(st, fl.Field, fl.Values[0])
				}
			case 1:
				e.setField(st, fl.Field, 0)
			}
		case FlagValue:
			if len(fl.Values) == 0 {
				continue
			}
			old := e.getField(st, fl.Field)
			next := fl.Values[e.Rand.Intn(len(fl.Values))]
			if next != old {
				e.setField(st, fl.Field, next)
				if e.Stats != nil {
					e.Stats.RecordFlagFire(fl.ID)
				}
			}
		case FlagCounter:
			if len(fl.Values) == 0 {
				continue
			}
			old := e.getField(st, fl.Field)
			next := (old << 1) + 1
			if next > fl.Values[0] || next == old {
				next = 0
			}
			e.setField(st, fl.Field, next)
		}
	}
}

// fieldKey is a stable map key for a (phaddr, bit-list) pair; used by
// callers that need to dedupe fields (statistics, compliance).
func fieldKey(f Field) string {
	return fmt.Sprintf("%d:%08x:%v", f.Kind, f.PhAddr, []int(f.Bits))
}
