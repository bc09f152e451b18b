// spec_parser.go - NLP file loader
//
// The NLP file is a single text document with five sections separated by
// four `==` lines (register declarations, rule lines, flag lines, a
// reserved section, then constraint lines) and, within the rule/flag sections, `--`-separated
// blocks grouping lines by peripheral (spec.md S4.1/S6.3). Parsing is a
// single forward pass with no backtracking, in the line-oriented style of
// the teacher's chiptune-format parsers (sap_parser.go, ay_parser.go):
// read a line, classify it, append to the in-progress structure, advance.

package nlpmodel

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// ParseError reports a malformed NLP file line, with enough context to
// point a spec author at the offending line (spec.md S7: "Parse error in
// the NLP file -> abort process on first load").
type ParseError struct {
	Line    int
	Section string
	Text    string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("nlp file: line %d (%s) %q: %v", e.Line, e.Section, e.Text, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Op is a rule/flag comparison operator.
type Op byte

const (
	OpEQ       Op = '='
	OpGT       Op = '>'
	OpLT       Op = '<'
	OpGE       Op = 'G' // ">="
	OpLE       Op = 'L' // "<="
	OpWildcard Op = '*'
)

func parseOp(s string) (Op, error) {
	switch s {
	case "=":
		return OpEQ, nil
	case ">":
		return OpGT, nil
	case "<":
		return OpLT, nil
	case ">=":
		return OpGE, nil
	case "<=":
		return OpLE, nil
	case "*":
		return OpWildcard, nil
	default:
		return 0, fmt.Errorf("unknown operator %q", s)
	}
}

// Bits is the MSB-first bit-position list of a Field. A single -1 entry
// means "whole word" (spec.md I3).
type Bits []int

func (b Bits) isWholeWord() bool { return len(b) == 1 && b[0] == -1 }

func parseBits(s string) (Bits, error) {
	if s == "*" {
		return Bits{-1}, nil
	}
	parts := strings.Split(s, "/")
	out := make(Bits, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("bad bit index %q: %w", p, err)
		}
		out = append(out, n)
	}
	return out, nil
}

func parseHexAddr(s string) (uint32, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("bad address %q: %w", s, err)
	}
	return uint32(v), nil
}

// Field is a reference to a bit slice of a register (spec.md S3).
type Field struct {
	Kind   RegisterKind
	PhAddr uint32
	Bits   Bits
}

// TriggerKind distinguishes a wildcard/read/write trigger from a plain
// field-comparison ("condition") trigger.
type TriggerKind byte

const (
	TriggerWildcard  TriggerKind = '*'
	TriggerRead      TriggerKind = 'R'
	TriggerWrite     TriggerKind = 'W'
	TriggerCondition TriggerKind = 0
)

// A2Kind tags what the right-hand side of an Equation is.
type A2Kind int

const (
	A2Literal A2Kind = iota
	A2Wildcard
	A2Field
	A2RXSize // right-hand side is the field's r_size
	A2TXSize // right-hand side is the field's t_size
)

// Equation is one side of a Rule: a trigger condition or an action
// (spec.md S3). Triggers use TriggerType to mean "match this access kind";
// actions always carry TriggerCondition and describe "write this field".
type Equation struct {
	TriggerType TriggerKind
	Field       Field
	Op          Op
	A2Kind      A2Kind
	A2Value     uint32
	A2Field     *Field
	Interrupt   int // -1 if this equation carries no IRQ
}

// parseEquation parses one TYPE,ADDR,BITS,OP,A2 token (spec.md S4.1).
// trigger selects whether TYPE is read in trigger context (where '*', 'R',
// 'W' are meaningful) or action context (TYPE is always a register-kind
// letter naming the field being written).
func parseEquation(tok string, trigger bool) (Equation, error) {
	toks := strings.Split(tok, ",")
	if len(toks) < 5 {
		return Equation{}, fmt.Errorf("equation %q: want TYPE,ADDR,BITS,OP,A2", tok)
	}
	typeTok, addrTok, bitsTok, opTok := toks[0], toks[1], toks[2], toks[3]
	a2Toks := toks[4:]

	eq := Equation{Interrupt: -1}

	if trigger && (typeTok == "*" || typeTok == "R" || typeTok == "W") {
		eq.TriggerType = TriggerKind(typeTok[0])
	} else {
		eq.TriggerType = TriggerCondition
		kind, ok := kindFromLetter(typeTok)
		if !ok {
			return Equation{}, fmt.Errorf("equation %q: bad field kind %q", tok, typeTok)
		}
		eq.Field.Kind = kind
	}

	if addrTok != "*" {
		addr, err := parseHexAddr(addrTok)
		if err != nil {
			return Equation{}, fmt.Errorf("equation %q: %w", tok, err)
		}
		eq.Field.PhAddr = addr
	}

	bits, err := parseBits(bitsTok)
	if err != nil {
		return Equation{}, fmt.Errorf("equation %q: %w", tok, err)
	}
	eq.Field.Bits = bits

	op, err := parseOp(opTok)
	if err != nil {
		return Equation{}, fmt.Errorf("equation %q: %w", tok, err)
	}
	eq.Op = op

	if err := parseA2(&eq, a2Toks); err != nil {
		return Equation{}, fmt.Errorf("equation %q: %w", tok, err)
	}
	return eq, nil
}

func parseA2(eq *Equation, toks []string) error {
	switch len(toks) {
	case 1:
		tok := toks[0]
		switch {
		case tok == "*":
			eq.A2Kind = A2Wildcard
		case tok == "R":
			eq.A2Kind = A2RXSize
		case tok == "T":
			eq.A2Kind = A2TXSize
		case strings.HasPrefix(tok, "*") && len(tok) > 1:
			// "*KindAddr" shorthand field reference, whole word.
			kind, ok := kindFromLetter(tok[1:2])
			if !ok {
				return fmt.Errorf("bad a2 field kind in %q", tok)
			}
			addr, err := parseHexAddr(tok[2:])
			if err != nil {
				return fmt.Errorf("bad a2 address in %q: %w", tok, err)
			}
			eq.A2Kind = A2Field
			eq.A2Field = &Field{Kind: kind, PhAddr: addr, Bits: Bits{-1}}
		default:
			v, err := strconv.ParseUint(strings.TrimPrefix(tok, "0x"), 16, 32)
			if err != nil {
				return fmt.Errorf("bad a2 literal %q: %w", tok, err)
			}
			eq.A2Kind = A2Literal
			eq.A2Value = uint32(v)
		}
	case 3:
		kind, ok := kindFromLetter(toks[0])
		if !ok {
			return fmt.Errorf("bad a2 field kind %q", toks[0])
		}
		addr, err := parseHexAddr(toks[1])
		if err != nil {
			return fmt.Errorf("bad a2 address %q: %w", toks[1], err)
		}
		bits, err := parseBits(toks[2])
		if err != nil {
			return fmt.Errorf("bad a2 bits %q: %w", toks[2], err)
		}
		eq.A2Kind = A2Field
		eq.A2Field = &Field{Kind: kind, PhAddr: addr, Bits: bits}
	default:
		return fmt.Errorf("bad a2 %q", strings.Join(toks, ","))
	}
	return nil
}

// Combinator is the trigger-list (or action-list) join operator.
type Combinator byte

const (
	CombinatorAND Combinator = '&'
	CombinatorOR  Combinator = '|'
)

// Rule is a trigger/action pair (spec.md S3, "TA").
type Rule struct {
	ID        int
	Triggers  []Equation
	TriggerOp Combinator
	Actions   []Equation
}

// splitCombined splits a trigger or action side on whichever combinator
// (& or |) the line actually uses, per spec.md S4.1. A side with a single
// equation has no combinator and defaults to AND (vacuously all-of-one).
func splitCombined(s string) ([]string, Combinator) {
	if strings.Contains(s, "|") {
		return strings.Split(s, "|"), CombinatorOR
	}
	return strings.Split(s, "&"), CombinatorAND
}

func parseRuleLine(line string, id int) (Rule, error) {
	parts := strings.Split(line, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return Rule{}, fmt.Errorf("rule line %q: want TRIGGERS:ACTIONS[:IRQ]", line)
	}

	triggerToks, triggerOp := splitCombined(parts[0])
	triggers := make([]Equation, 0, len(triggerToks))
	for _, t := range triggerToks {
		eq, err := parseEquation(t, true)
		if err != nil {
			return Rule{}, err
		}
		triggers = append(triggers, eq)
	}

	actionToks, _ := splitCombined(parts[1])
	actions := make([]Equation, 0, len(actionToks))
	for _, t := range actionToks {
		eq, err := parseEquation(t, false)
		if err != nil {
			return Rule{}, err
		}
		actions = append(actions, eq)
	}

	if len(parts) == 3 && parts[2] != "" && parts[2] != "*" {
		irq, err := strconv.Atoi(parts[2])
		if err != nil {
			return Rule{}, fmt.Errorf("rule line %q: bad irq %q: %w", line, parts[2], err)
		}
		if len(actions) > 0 {
			actions[len(actions)-1].Interrupt = irq
		}
	}

	return Rule{ID: id, Triggers: triggers, TriggerOp: triggerOp, Actions: actions}, nil
}

// FlagKind tags a Flag's update behavior (spec.md S3/S4.3.3).
type FlagKind byte

const (
	FlagSpecific FlagKind = 'S' // timer flip
	FlagValue    FlagKind = 'V' // random pick from a value set
	FlagCounter  FlagKind = 'F' // saturating counter
)

// Flag is an asynchronous hardware-state update (spec.md S3).
type Flag struct {
	ID     int
	Field  Field
	Kind   FlagKind
	Freq   int
	Values []uint32
}

func parseFlagLine(line string, id int) (Flag, error) {
	toks := strings.Split(line, ",")
	if len(toks) < 5 {
		return Flag{}, fmt.Errorf("flag line %q: want TYPE,ADDR,BITS,FREQ,VALUES", line)
	}
	kindByte := toks[0]
	if len(kindByte) != 1 {
		return Flag{}, fmt.Errorf("flag line %q: bad kind %q", line, kindByte)
	}
	kind := FlagKind(kindByte[0])
	if kind != FlagSpecific && kind != FlagValue && kind != FlagCounter {
		return Flag{}, fmt.Errorf("flag line %q: unknown flag kind %q", line, kindByte)
	}

	addr, err := parseHexAddr(toks[1])
	if err != nil {
		return Flag{}, fmt.Errorf("flag line %q: %w", line, err)
	}
	bits, err := parseBits(toks[2])
	if err != nil {
		return Flag{}, fmt.Errorf("flag line %q: %w", line, err)
	}
	freq, err := strconv.Atoi(toks[3])
	if err != nil {
		return Flag{}, fmt.Errorf("flag line %q: bad freq %q: %w", line, toks[3], err)
	}

	values := make([]uint32, 0, len(toks)-4)
	for _, v := range strings.Split(strings.Join(toks[4:], ","), "/") {
		n, err := strconv.ParseUint(strings.TrimPrefix(v, "0x"), 16, 32)
		if err != nil {
			return Flag{}, fmt.Errorf("flag line %q: bad value %q: %w", line, v, err)
		}
		values = append(values, uint32(n))
	}

	return Flag{ID: id, Field: Field{PhAddr: addr, Bits: bits}, Kind: kind, Freq: freq, Values: values}, nil
}

// ConstraintKind is the access direction a Constraint forbids.
type ConstraintKind byte

const (
	ConstraintReadOnly  ConstraintKind = 'R'
	ConstraintWriteOnly ConstraintKind = 'W'
)

// Constraint records a read-only or write-only bit slice (spec.md S3).
type Constraint struct {
	Kind  ConstraintKind
	Field Field
}

func parseConstraintLine(line string) (Constraint, error) {
	toks := strings.Split(line, ",")
	if len(toks) < 3 {
		return Constraint{}, fmt.Errorf("constraint line %q: want KIND,ADDR,BITS", line)
	}
	if len(toks[0]) != 1 {
		return Constraint{}, fmt.Errorf("constraint line %q: bad kind %q", line, toks[0])
	}
	kind := ConstraintKind(toks[0][0])
	if kind != ConstraintReadOnly && kind != ConstraintWriteOnly {
		return Constraint{}, fmt.Errorf("constraint line %q: unknown kind %q", line, toks[0])
	}
	addr, err := parseHexAddr(toks[1])
	if err != nil {
		return Constraint{}, fmt.Errorf("constraint line %q: %w", line, err)
	}
	bits, err := parseBits(toks[2])
	if err != nil {
		return Constraint{}, fmt.Errorf("constraint line %q: %w", line, err)
	}
	return Constraint{Kind: kind, Field: Field{PhAddr: addr, Bits: bits}}, nil
}

// Block is a peripheral grouping (spec.md I4, GLOSSARY "Peripheral
// block"): the run of rule lines, or of flag lines, between two `--`/`==`
// delimiters. Rule lines and flag lines always form separate blocks. Its
// span runs from the lowest to the highest address its lines touch, and
// Contains accepts addresses up to PeripheralBlockStride past the highest.
type Block struct {
	Rules    []Rule
	Flags    []Flag
	MinAddr  uint32
	MaxAddr  uint32
	anyAddr  bool
}

func (b *Block) touch(addr uint32) {
	if !b.anyAddr {
		b.MinAddr, b.MaxAddr, b.anyAddr = addr, addr, true
		return
	}
	if addr < b.MinAddr {
		b.MinAddr = addr
	}
	if addr > b.MaxAddr {
		b.MaxAddr = addr
	}
}

// Contains reports whether phaddr falls within this block's touched span.
func (b *Block) Contains(phaddr uint32) bool {
	return b.anyAddr && phaddr >= b.MinAddr && phaddr <= b.MaxAddr+PeripheralBlockStride
}

// SpecFile is the fully parsed NLP file: the register declarations plus
// the rule/flag blocks and the flat constraint list.
type SpecFile struct {
	Registers   []*Register
	Blocks      []*Block
	Constraints []Constraint

	// DR2SR maps a Receive/Transmit register's address to the address of
	// the nearest preceding Status register in the same declaration run
	// (spec.md S4.1 "Populates the DR-to-SR index").
	DR2SR map[uint32]uint32
}

// AllRules returns every rule across every block, in file order.
func (s *SpecFile) AllRules() []Rule {
	var out []Rule
	for _, b := range s.Blocks {
		out = append(out, b.Rules...)
	}
	return out
}

// AllFlags returns every flag across every block, in file order.
func (s *SpecFile) AllFlags() []Flag {
	var out []Flag
	for _, b := range s.Blocks {
		out = append(out, b.Flags...)
	}
	return out
}

// BlockFor returns the first block whose address span contains phaddr, or
// nil if none does (spec.md S4.3.1 rule-selection policy).
func (s *SpecFile) BlockFor(phaddr uint32) *Block {
	for _, b := range s.Blocks {
		if b.Contains(phaddr) {
			return b
		}
	}
	return nil
}

// LoadSpecFile reads and parses an NLP file from disk.
func LoadSpecFile(path string) (*SpecFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("nlp file: %w", err)
	}
	defer f.Close()
	return parseSpecFile(f)
}

const (
	sectionRegisters = iota
	sectionRules
	sectionFlags
	sectionReserved
	sectionConstraints
)

func parseSpecFile(r io.Reader) (*SpecFile, error) {
	spec := &SpecFile{DR2SR: make(map[uint32]uint32)}

	section := sectionRegisters
	lineNo := 0
	ruleID := 0
	flagID := 0

	var curBlock *Block
	ensureBlock := func() *Block {
		if curBlock == nil {
			curBlock = &Block{}
			spec.Blocks = append(spec.Blocks, curBlock)
		}
		return curBlock
	}

	// DR2SR bookkeeping, mirroring the original's "reset the run when the
	// address jumps more than one block stride" behavior (spec.md S4.1).
	var blockStart uint32
	var haveStart bool
	var curSR uint32
	var haveSR bool

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if line == "==" {
			section++
			curBlock = nil
			haveStart, haveSR = false, false
			continue
		}
		if line == "--" {
			curBlock = nil
			continue
		}

		switch section {
		case sectionRegisters:
			reg, kind, err := parseRegisterLine(line)
			if err != nil {
				return nil, &ParseError{Line: lineNo, Section: "registers", Text: line, Err: err}
			}
			spec.Registers = append(spec.Registers, reg)

			if !haveStart || reg.PhAddr >= blockStart+PeripheralBlockStride ||
				(haveStart && blockStart > reg.PhAddr && blockStart-reg.PhAddr >= PeripheralBlockStride) {
				blockStart = reg.PhAddr
				haveStart = true
				haveSR = false
			}
			if kind == KindStatus {
				curSR = reg.PhAddr
				haveSR = true
			} else if (kind == KindReceive || kind == KindTransmit) && haveSR {
				if absDiff(curSR, reg.PhAddr) <= PeripheralBlockStride {
					spec.DR2SR[reg.PhAddr] = curSR
				}
			}

		case sectionRules:
			rule, err := parseRuleLine(line, ruleID)
			if err != nil {
				return nil, &ParseError{Line: lineNo, Section: "rules", Text: line, Err: err}
			}
			ruleID++
			b := ensureBlock()
			b.Rules = append(b.Rules, rule)
			for _, eq := range rule.Triggers {
				b.touch(eq.Field.PhAddr)
			}
			for _, eq := range rule.Actions {
				b.touch(eq.Field.PhAddr)
			}

		case sectionFlags:
			flag, err := parseFlagLine(line, flagID)
			if err != nil {
				return nil, &ParseError{Line: lineNo, Section: "flags", Text: line, Err: err}
			}
			flagID++
			b := ensureBlock()
			b.Flags = append(b.Flags, flag)
			b.touch(flag.Field.PhAddr)

		case sectionReserved:
			// Reserved section: present in the file format, ignored by
			// the model (spec.md S4.1 grammar).

		case sectionConstraints:
			c, err := parseConstraintLine(line)
			if err != nil {
				return nil, &ParseError{Line: lineNo, Section: "constraints", Text: line, Err: err}
			}
			spec.Constraints = append(spec.Constraints, c)

		default:
			return nil, &ParseError{Line: lineNo, Section: "trailing", Text: line, Err: fmt.Errorf("unexpected content after constraint section")}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("nlp file: %w", err)
	}
	return spec, nil
}

// parseRegisterLine parses a `KIND_ADDRESS_RESET[_WIDTH]` declaration.
func parseRegisterLine(line string) (*Register, RegisterKind, error) {
	toks := strings.Split(line, "_")
	if len(toks) < 3 || len(toks) > 4 {
		return nil, 0, fmt.Errorf("register line %q: want KIND_ADDRESS_RESET[_WIDTH]", line)
	}
	kind, ok := kindFromLetter(toks[0])
	if !ok {
		return nil, 0, fmt.Errorf("register line %q: unknown kind %q", line, toks[0])
	}
	addr, err := parseHexAddr(toks[1])
	if err != nil {
		return nil, 0, fmt.Errorf("register line %q: %w", line, err)
	}
	reset, err := parseHexAddr(toks[2])
	if err != nil {
		return nil, 0, fmt.Errorf("register line %q: bad reset: %w", line, err)
	}
	width := uint8(32)
	if len(toks) == 4 {
		w, err := strconv.Atoi(toks[3])
		if err != nil {
			return nil, 0, fmt.Errorf("register line %q: bad width: %w", line, err)
		}
		width = uint8(w)
	}
	return newRegister(kind, addr, reset, width), kind, nil
}

func absDiff(a, b uint32) uint32 {
	if a > b {
		return a - b
	}
	return b - a
}
