package nlpmodel

import (
	"strings"
	"testing"
)

func TestStatisticsRuleAndFlagFires(t *testing.T) {
	s := NewStatistics()
	s.RecordRuleFire(1, false)
	s.RecordRuleFire(1, true)
	s.RecordFlagFire(2)

	if s.ruleFires[1] != 2 || s.chainFires[1] != 1 {
		t.Fatalf("got ruleFires=%d chainFires=%d, want 2,1", s.ruleFires[1], s.chainFires[1])
	}
	if s.flagFires[2] != 1 {
		t.Fatalf("got flagFires=%d, want 1", s.flagFires[2])
	}
}

func TestStatisticsCheckEnable(t *testing.T) {
	spec := parseSpec(t, "S_40000000_0\n==\nW,40000004,*,*,*:S,40000000,0,=,1:3\n==\n==\n==\n")
	s := NewStatistics()
	st := NewPeripheralState()

	s.CheckEnable(spec, st, nil)
	if len(s.unenabledAddrs[3]) != 1 || s.unenabledAddrs[3][0] != 0x40000004 {
		t.Fatalf("got %v, want [0x40000004]", s.unenabledAddrs[3])
	}

	s2 := NewStatistics()
	s2.CheckEnable(spec, st, []int{3})
	if len(s2.unenabledAddrs[3]) != 0 {
		t.Fatal("an ISER-enabled irq should not be flagged")
	}
}

func TestStatisticsWriteReport(t *testing.T) {
	spec := parseSpec(t, "S_40000000_0\n==\n==\n==\n==\n")
	s := NewStatistics()
	s.RecordRuleFire(0, false)
	st := NewPeripheralState()
	st.InterruptFreq[1] = 4

	var sb strings.Builder
	if err := s.writeReportTo(&sb, spec, []*PeripheralState{st}); err != nil {
		t.Fatalf("writeReportTo: %v", err)
	}
	out := sb.String()
	if !strings.Contains(out, "rule 0 fired 1 times") {
		t.Errorf("report missing rule fire line: %q", out)
	}
	if !strings.Contains(out, "irq 1 emitted 4 times") {
		t.Errorf("report missing irq emission line: %q", out)
	}
}
