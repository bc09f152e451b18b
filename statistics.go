// statistics.go - Firing counts and diagnosis report (spec.md S4.7)
//
// Statistics is shared across every symbolic state of a run (the
// cmd/nlpfuzz driver replays its trace files one after another on a single
// errgroup goroutine), unlike PeripheralState which is cloned per state.
// Its methods take a mutex, in the same spirit as the teacher's
// audio_chip.go per-channel locking around a shared resource.

package nlpmodel

import (
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
)

// DiagnosisType is one of the six violation classes spec.md S4.7 defines.
type DiagnosisType int

const (
	DiagUnenabledFlag     DiagnosisType = 1
	DiagUntriggeredIRQ    DiagnosisType = 2
	DiagUnauthorizedRead  DiagnosisType = 3
	DiagUnauthorizedWrite DiagnosisType = 4
	DiagForbiddenRead     DiagnosisType = 5
	DiagForbiddenWrite    DiagnosisType = 6
)

func (t DiagnosisType) String() string {
	switch t {
	case DiagUnenabledFlag:
		return "un-enabled flag"
	case DiagUntriggeredIRQ:
		return "untriggered IRQ"
	case DiagUnauthorizedRead:
		return "unauthorized read"
	case DiagUnauthorizedWrite:
		return "unauthorized write"
	case DiagForbiddenRead:
		return "forbidden bit read"
	case DiagForbiddenWrite:
		return "forbidden bit write"
	default:
		return "unknown"
	}
}

// DiagnosisEntry is one violation record, with enough detail for scenario
// 4/5's "report must contain exactly one entry listing both PCs".
type DiagnosisEntry struct {
	Type        DiagnosisType
	IRQ         int
	PhAddr      uint32
	PCs         []uint32
	EnableAddrs []uint32
}

// Statistics accumulates rule/flag firing counts and diagnosis entries
// over the lifetime of a run (spec.md S4.7, S6.5 "NLPStatistics.dat").
type Statistics struct {
	mu sync.Mutex

	ruleFires  map[int]int
	chainFires map[int]int
	flagFires  map[int]int

	unenabledAddrs map[int][]uint32 // irq -> enable-side trigger addresses

	unauthorizedReads  map[uint32][]uint32 // phaddr -> PCs
	unauthorizedWrites map[uint32][]uint32
	forbiddenReads     map[uint32][]uint32
	forbiddenWrites    map[uint32][]uint32
}

func NewStatistics() *Statistics {
	return &Statistics{
		ruleFires:          make(map[int]int),
		chainFires:         make(map[int]int),
		flagFires:          make(map[int]int),
		unenabledAddrs:     make(map[int][]uint32),
		unauthorizedReads:  make(map[uint32][]uint32),
		unauthorizedWrites: make(map[uint32][]uint32),
		forbiddenReads:     make(map[uint32][]uint32),
		forbiddenWrites:    make(map[uint32][]uint32),
	}
}

func (s *Statistics) RecordRuleFire(id int, chained bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ruleFires[id]++
	if chained {
		s.chainFires[id]++
	}
}

func (s *Statistics) RecordFlagFire(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flagFires[id]++
}

// RecordMissedEnable notes that a rule tried to raise irq while it was
// already pending (spec.md S4.4 "dropped but counted in the missed-enable
// set for diagnosis").
func (s *Statistics) RecordMissedEnable(irq int, srcAddr uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unenabledAddrs[irq] = appendUnique(s.unenabledAddrs[irq], srcAddr)
}

func (s *Statistics) RecordUnauthorizedRead(phaddr, pc uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unauthorizedReads[phaddr] = append(s.unauthorizedReads[phaddr], pc)
}

func (s *Statistics) RecordUnauthorizedWrite(phaddr, pc uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unauthorizedWrites[phaddr] = append(s.unauthorizedWrites[phaddr], pc)
}

func (s *Statistics) RecordForbiddenRead(phaddr, pc uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forbiddenReads[phaddr] = append(s.forbiddenReads[phaddr], pc)
}

func (s *Statistics) RecordForbiddenWrite(phaddr, pc uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forbiddenWrites[phaddr] = append(s.forbiddenWrites[phaddr], pc)
}

func appendUnique(s []uint32, v uint32) []uint32 {
	for _, x := range s {
		if x == v {
			return s
		}
	}
	return append(s, v)
}

// CheckEnable cross-references every rule's IRQ-carrying action against
// the CPU's currently-enabled interrupt set (spec.md S4.7 type 1): an IRQ
// that some rule can raise, which has never actually fired and which the
// firmware has not enabled, is recorded with its rule's trigger-side
// addresses (the bits firmware would need to set to "enable" it).
func (s *Statistics) CheckEnable(spec *SpecFile, st *PeripheralState, enabledISER []int) {
	enabled := make(map[int]bool, len(enabledISER))
	for _, irq := range enabledISER {
		enabled[irq] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range spec.AllRules() {
		for _, act := range r.Actions {
			if act.Interrupt < 0 || !withinMMIO(act.Field.PhAddr) {
				continue
			}
			if st.InterruptFreq[act.Interrupt] > 0 || enabled[act.Interrupt] {
				continue
			}
			var addrs []uint32
			for _, trig := range r.Triggers {
				addrs = append(addrs, trig.Field.PhAddr)
			}
			for _, a := range addrs {
				s.unenabledAddrs[act.Interrupt] = appendUnique(s.unenabledAddrs[act.Interrupt], a)
			}
		}
	}
}

// diagnosis builds the final sorted report: type 1/2 entries from the IRQ
// bookkeeping plus every state's fork-accumulated InterruptFreq, and
// types 3-6 from the recorded access violations.
func (s *Statistics) diagnosis(spec *SpecFile, states []*PeripheralState) []DiagnosisEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	freq := make(map[int]int)
	for _, st := range states {
		for irq, n := range st.InterruptFreq {
			freq[irq] += n
		}
	}

	declared := make(map[int]bool)
	for _, r := range spec.AllRules() {
		for _, act := range r.Actions {
			if act.Interrupt >= 0 {
				declared[act.Interrupt] = true
			}
		}
	}

	var out []DiagnosisEntry
	for irq, addrs := range s.unenabledAddrs {
		out = append(out, DiagnosisEntry{Type: DiagUnenabledFlag, IRQ: irq, EnableAddrs: addrs})
	}
	for irq := range declared {
		if freq[irq] == 0 {
			out = append(out, DiagnosisEntry{Type: DiagUntriggeredIRQ, IRQ: irq})
		}
	}
	for addr, pcs := range s.unauthorizedReads {
		out = append(out, DiagnosisEntry{Type: DiagUnauthorizedRead, PhAddr: addr, PCs: pcs})
	}
	for addr, pcs := range s.unauthorizedWrites {
		out = append(out, DiagnosisEntry{Type: DiagUnauthorizedWrite, PhAddr: addr, PCs: pcs})
	}
	for addr, pcs := range s.forbiddenReads {
		out = append(out, DiagnosisEntry{Type: DiagForbiddenRead, PhAddr: addr, PCs: pcs})
	}
	for addr, pcs := range s.forbiddenWrites {
		out = append(out, DiagnosisEntry{Type: DiagForbiddenWrite, PhAddr: addr, PCs: pcs})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		if out[i].IRQ != out[j].IRQ {
			return out[i].IRQ < out[j].IRQ
		}
		return out[i].PhAddr < out[j].PhAddr
	})
	return out
}

// WriteReport writes NLPStatistics.dat (spec.md S6.5).
func (s *Statistics) WriteReport(path string, spec *SpecFile, states []*PeripheralState) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("statistics report: %w", err)
	}
	defer f.Close()
	return s.writeReportTo(f, spec, states)
}

func (s *Statistics) writeReportTo(w io.Writer, spec *SpecFile, states []*PeripheralState) error {
	s.mu.Lock()
	ruleIDs := make([]int, 0, len(s.ruleFires))
	for id := range s.ruleFires {
		ruleIDs = append(ruleIDs, id)
	}
	sort.Ints(ruleIDs)
	for _, id := range ruleIDs {
		fmt.Fprintf(w, "rule %d fired %d times (chained %d)\n", id, s.ruleFires[id], s.chainFires[id])
	}

	flagIDs := make([]int, 0, len(s.flagFires))
	for id := range s.flagFires {
		flagIDs = append(flagIDs, id)
	}
	sort.Ints(flagIDs)
	for _, id := range flagIDs {
		fmt.Fprintf(w, "flag %d fired %d times\n", id, s.flagFires[id])
	}
	s.mu.Unlock()

	freq := make(map[int]int)
	for _, st := range states {
		for irq, n := range st.InterruptFreq {
			freq[irq] += n
		}
	}
	irqs := make([]int, 0, len(freq))
	for irq := range freq {
		irqs = append(irqs, irq)
	}
	sort.Ints(irqs)
	for _, irq := range irqs {
		fmt.Fprintf(w, "irq %d emitted %d times\n", irq, freq[irq])
	}

	for _, d := range s.diagnosis(spec, states) {
		switch d.Type {
		case DiagUnenabledFlag:
			fmt.Fprintf(w, "type %d (%s): irq %d enable-addrs=%s\n", d.Type, d.Type, d.IRQ, formatAddrs(d.EnableAddrs))
		case DiagUntriggeredIRQ:
			fmt.Fprintf(w, "type %d (%s): irq %d\n", d.Type, d.Type, d.IRQ)
		default:
			fmt.Fprintf(w, "type %d (%s): phaddr=0x%08x pcs=%s\n", d.Type, d.Type, d.PhAddr, formatAddrs(d.PCs))
		}
	}
	return nil
}

func formatAddrs(addrs []uint32) string {
	out := "["
	for i, a := range addrs {
		if i > 0 {
			out += ","
		}
		out += fmt.Sprintf("0x%08x", a)
	}
	return out + "]"
}
