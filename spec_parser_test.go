package nlpmodel

import (
	"strings"
	"testing"
)

func parseSpec(t *testing.T, text string) *SpecFile {
	t.Helper()
	spec, err := parseSpecFile(strings.NewReader(text))
	if err != nil {
		t.Fatalf("parseSpecFile: %v", err)
	}
	return spec
}

func TestParseRegisterSection(t *testing.T) {
	spec := parseSpec(t, "S_40000000_0\nT_40000004_0\nR_40000008_0_8\n==\n==\n==\n==\n")
	if len(spec.Registers) != 3 {
		t.Fatalf("got %d registers, want 3", len(spec.Registers))
	}
	if spec.Registers[2].Width != 8 {
		t.Errorf("explicit width not parsed, got %d", spec.Registers[2].Width)
	}
	if spec.DR2SR[0x40000004] != 0x40000000 {
		t.Errorf("DR2SR[0x40000004] = 0x%x, want 0x40000000", spec.DR2SR[0x40000004])
	}
}

func TestParseRuleLine(t *testing.T) {
	spec := parseSpec(t, "S_40000000_0\nT_40000004_0\n==\nW,40000004,*,*,*:S,40000000,0,=,1:3\n==\n==\n==\n")
	rules := spec.AllRules()
	if len(rules) != 1 {
		t.Fatalf("got %d rules, want 1", len(rules))
	}
	r := rules[0]
	if r.Triggers[0].TriggerType != TriggerWrite {
		t.Errorf("trigger type = %v, want write", r.Triggers[0].TriggerType)
	}
	if r.Actions[0].Interrupt != 3 {
		t.Errorf("action irq = %d, want 3", r.Actions[0].Interrupt)
	}
}

func TestParseRuleLineCombinators(t *testing.T) {
	spec := parseSpec(t, "S_40000000_0\n==\nR,40000000,0,=,1|R,40000000,1,=,1:S,40000000,2,=,1\n==\n==\n==\n")
	r := spec.AllRules()[0]
	if r.TriggerOp != CombinatorOR {
		t.Errorf("got combinator %c, want |", r.TriggerOp)
	}
	if len(r.Triggers) != 2 {
		t.Fatalf("got %d triggers, want 2", len(r.Triggers))
	}
}

func TestParseFlagLine(t *testing.T) {
	spec := parseSpec(t, "S_40000000_0\n==\n==\nV,40000000,3,10,1/2/3\n==\n==\n")
	flags := spec.AllFlags()
	if len(flags) != 1 {
		t.Fatalf("got %d flags, want 1", len(flags))
	}
	f := flags[0]
	if f.Kind != FlagValue || f.Freq != 10 || len(f.Values) != 3 {
		t.Errorf("got %+v", f)
	}
}

func TestParseConstraintLine(t *testing.T) {
	spec := parseSpec(t, "S_40000000_0\n==\n==\n==\n==\nR,40000000,*\n")
	if len(spec.Constraints) != 1 || spec.Constraints[0].Kind != ConstraintReadOnly {
		t.Fatalf("got %+v", spec.Constraints)
	}
}

func TestParseEquationFieldA2(t *testing.T) {
	eq, err := parseEquation("S,40000000,0,=,T,40000004,*", true)
	if err != nil {
		t.Fatalf("parseEquation: %v", err)
	}
	if eq.A2Kind != A2Field || eq.A2Field == nil || eq.A2Field.PhAddr != 0x40000004 {
		t.Errorf("got %+v", eq)
	}
}

func TestParseEquationSizeA2(t *testing.T) {
	eq, err := parseEquation("R,40000000,*,=,R", false)
	if err != nil {
		t.Fatalf("parseEquation: %v", err)
	}
	if eq.A2Kind != A2RXSize {
		t.Errorf("got %v, want A2RXSize", eq.A2Kind)
	}
}

func TestParseBitsWholeWord(t *testing.T) {
	bits, err := parseBits("*")
	if err != nil || !bits.isWholeWord() {
		t.Fatalf("got %v,%v", bits, err)
	}
	bits, err = parseBits("3/2/1")
	if err != nil || len(bits) != 3 {
		t.Fatalf("got %v,%v", bits, err)
	}
}

func TestParseErrorReportsLine(t *testing.T) {
	_, err := parseSpecFile(strings.NewReader("S_40000000_0\nbadline\n"))
	if err == nil {
		t.Fatal("expected a parse error")
	}
	pe, ok := err.(*ParseError)
	if !ok {
		t.Fatalf("got %T, want *ParseError", err)
	}
	if pe.Line != 2 {
		t.Errorf("got line %d, want 2", pe.Line)
	}
}
