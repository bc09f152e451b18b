package nlpmodel

import (
	"math/rand"
	"testing"
)

type fakeMem struct {
	words map[uint32]uint32
}

func newFakeMem() *fakeMem { return &fakeMem{words: make(map[uint32]uint32)} }

func (m *fakeMem) ReadCPUWord(addr uint32) uint32 { return m.words[addr] }

func (m *fakeMem) WriteCPUWord(addr uint32, v uint32) { m.words[addr] = v }

func TestExtractInjectBits(t *testing.T) {
	word := uint32(0b1011_0000)
	bits := Bits{7, 6, 5, 4}
	if got := extractBits(word, bits); got != 0b1011 {
		t.Errorf("extractBits = 0b%b, want 0b1011", got)
	}
	next := injectBits(0, bits, 0b0110)
	if next != 0b0110_0000 {
		t.Errorf("injectBits = 0b%b, want 0b01100000", next)
	}
}

func TestCompare(t *testing.T) {
	if !compare(5, OpGT, 3) || compare(3, OpGT, 5) {
		t.Error("OpGT broken")
	}
	if compare(5, OpWildcard, 5) {
		t.Error("OpWildcard should never match")
	}
}

func TestUpdateGraphWriteTriggersAction(t *testing.T) {
	spec := parseSpec(t, "S_40000000_0\n==\nW,40000004,*,*,*:S,40000000,0,=,1:3\n==\n==\n==\n")
	st := NewPeripheralState()
	st.Store.Insert(newRegister(KindStatus, 0x40000000, 0, 32))
	st.Store.Insert(newRegister(KindTransmit, 0x40000004, 0, 32))

	eng := NewEngine(spec, newFakeMem(), rand.New(rand.NewSource(1)))
	candidates := eng.UpdateGraph(st, EventWrite, 0x40000004)

	if got := st.Store.ReadPh(0x40000000); extractBits(got, Bits{0}) != 1 {
		t.Errorf("status bit 0 not set: 0x%x", got)
	}
	if len(candidates) != 1 || candidates[0].IRQ != 3 {
		t.Fatalf("got %+v, want one candidate for irq 3", candidates)
	}
}

func TestUpdateGraphSkipsAlreadyPendingIRQ(t *testing.T) {
	spec := parseSpec(t, "S_40000000_0\n==\nW,40000004,*,*,*:S,40000000,0,=,1:3\n==\n==\n==\n")
	st := NewPeripheralState()
	st.Store.Insert(newRegister(KindStatus, 0x40000000, 0, 32))
	st.Store.Insert(newRegister(KindTransmit, 0x40000004, 0, 32))
	st.ExitInterrupt[3] = 1

	stats := NewStatistics()
	eng := NewEngine(spec, newFakeMem(), rand.New(rand.NewSource(1)))
	eng.Stats = stats
	candidates := eng.UpdateGraph(st, EventWrite, 0x40000004)
	if len(candidates) != 0 {
		t.Fatalf("expected no new candidates while irq 3 is pending, got %+v", candidates)
	}
}

func TestUpdateFlagsSpecificScopes(t *testing.T) {
	spec := parseSpec(t, "S_40000000_0\n==\n==\nS,40000000,0,10,1\n==\n==\n")
	st := NewPeripheralState()
	st.Store.Insert(newRegister(KindStatus, 0x40000000, 0, 32))
	eng := NewEngine(spec, newFakeMem(), rand.New(rand.NewSource(1)))

	eng.UpdateFlags(st, 0)
	if extractBits(st.Store.ReadPh(0x40000000), Bits{0}) != 1 {
		t.Fatal("scope 0 should set the Specific flag")
	}

	eng.UpdateFlags(st, 1)
	if extractBits(st.Store.ReadPh(0x40000000), Bits{0}) != 0 {
		t.Fatal("scope 1 should clear the Specific flag")
	}
}

func TestUpdateFlagsCounterSaturates(t *testing.T) {
	spec := parseSpec(t, "O_40000000_0\n==\n==\nF,40000000,*,10,3\n==\n==\n")
	st := NewPeripheralState()
	st.Store.Insert(newRegister(KindOther, 0x40000000, 0, 32))
	eng := NewEngine(spec, newFakeMem(), rand.New(rand.NewSource(1)))

	eng.UpdateFlags(st, 0) // 0 -> 1
	eng.UpdateFlags(st, 0) // 1 -> 3
	if v := st.Store.ReadPh(0x40000000); v != 3 {
		t.Fatalf("got %d, want 3", v)
	}
	eng.UpdateFlags(st, 0) // 3 -> 7 > max(3) -> reset to 0
	if v := st.Store.ReadPh(0x40000000); v != 0 {
		t.Fatalf("counter should reset to 0 past its max, got %d", v)
	}
}
