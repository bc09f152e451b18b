// model.go - Top-level wiring (spec.md S6.1)
//
// Model owns every component's concrete instance and exposes the handful
// of entry points the CPU driver calls on each MMIO access, translate-block
// boundary, and exception exit. It plays the same role as the teacher's
// machine.go: a thin struct gluing independently-testable pieces together,
// with no logic of its own beyond sequencing the calls spec.md S6.1 and
// S4.8 require alongside each other.

package nlpmodel

import (
	"fmt"
	"math/rand"
)

// Model is the whole NLP Peripheral Model for one run.
type Model struct {
	Spec       *SpecFile
	Engine     *Engine
	Arbiter    *Arbiter
	Gateway    *Gateway
	Feeder     *Feeder
	Stats      *Statistics
	Compliance *Compliance

	hooks HostHooks
}

// NewModel loads the NLP file (and, if configured, the compliance sequence
// file) and wires every component together over a single shared PRNG
// (spec.md S9 "RNG").
func NewModel(cfg *Config, hooks HostHooks, rng *rand.Rand) (*Model, error) {
	spec, err := LoadSpecFile(cfg.NLPFileName)
	if err != nil {
		return nil, err
	}

	stats := NewStatistics()
	engine := NewEngine(spec, hooks, rng)
	engine.Stats = stats
	arbiter := NewArbiter(hooks)
	gateway := NewGateway(spec, engine, arbiter, stats, hooks)
	feeder := NewFeeder(spec, engine, hooks, cfg.ForkPoint)

	var compliance *Compliance
	if cfg.CCFileName != "" {
		seqs, err := LoadComplianceFile(cfg.CCFileName)
		if err != nil {
			return nil, err
		}
		compliance = NewCompliance(seqs, cfg.ComplianceBudget)
	}

	return &Model{
		Spec:       spec,
		Engine:     engine,
		Arbiter:    arbiter,
		Gateway:    gateway,
		Feeder:     feeder,
		Stats:      stats,
		Compliance: compliance,
		hooks:      hooks,
	}, nil
}

// NewState builds a fresh per-symbolic-state record with every declared
// register at its reset value (spec.md S3 lifecycle "creation"). The driver
// calls this once per initial state; later states arise by cloning an
// existing one at a symbolic fork.
func (m *Model) NewState() *PeripheralState {
	st := NewPeripheralState()
	for _, reg := range m.Spec.Registers {
		st.Store.Insert(newRegister(reg.Kind, reg.PhAddr, reg.Reset, reg.Width))
	}
	return st
}

// irqContext picks the IRQ the compliance recorder should stamp an access
// with: whichever IRQ is currently pending for this state, or -1 if none
// (spec.md S4.8 "IRQ context" is the CPU's current interrupt, approximated
// here from the pending set since the model has no direct view of NVIC
// active-exception state).
func irqContext(st *PeripheralState) int {
	for irq, count := range st.ExitInterrupt {
		if count > 0 {
			return irq
		}
	}
	return -1
}

// OnRead services a firmware MMIO read and feeds the compliance recorder
// alongside the gateway (spec.md S4.5, S4.8).
func (m *Model) OnRead(st *PeripheralState, phaddr uint32, size int, pc uint32) uint32 {
	value, _ := m.Gateway.Read(st, phaddr, size, pc)
	if m.Compliance != nil {
		m.Compliance.OnPeripheralRead(phaddr, value, irqContext(st), pc)
	}
	return value
}

// OnWrite services a firmware MMIO write.
func (m *Model) OnWrite(st *PeripheralState, phaddr uint32, value uint32, size int, pc uint32) {
	m.Gateway.Write(st, phaddr, value, size, pc)
	if m.Compliance != nil {
		m.Compliance.OnPeripheralWrite(phaddr, value, irqContext(st), pc)
	}
}

// OnCondition records a firmware condition test (an `if (REG & mask)` read
// that does not flow through OnRead, e.g. a branch predicate already
// resolved by the symbolic executor) for the compliance checker only.
func (m *Model) OnCondition(st *PeripheralState, phaddr, value uint32, pc uint32) {
	if m.Compliance != nil {
		m.Compliance.OnPeripheralCondition(phaddr, value, irqContext(st), pc)
	}
}

// OnExceptionExit handles the CPU's exception-return callback.
func (m *Model) OnExceptionExit(st *PeripheralState, vector int) {
	m.Arbiter.ExceptionExit(st, m.Engine, vector)
}

// OnTranslateBlockStart handles a new-block callback: the periodic
// re-evaluation tick once the fork point has been crossed, fork-point
// detection, and, when the fork point declares the run complete, the
// un-enabled-IRQ diagnosis pass (spec.md S4.6, S4.7).
func (m *Model) OnTranslateBlockStart(st *PeripheralState, pc uint32) (shouldExit bool) {
	if st.ForkPointCount > 0 {
		m.Feeder.Tick(st)
	}
	shouldExit = m.Feeder.OnForkPoint(st, pc)
	if shouldExit {
		m.Stats.CheckEnable(m.Spec, st, m.hooks.EnableISER())
	}
	return shouldExit
}

// OnTranslateBlockEnd handles the matching block-end callback.
func (m *Model) OnTranslateBlockEnd(st *PeripheralState, inInterrupt bool) {
	m.Feeder.OnBlockEnd(st, inInterrupt)
}

// OnEngineShutdown flushes the two persisted reports (spec.md S6.5).
func (m *Model) OnEngineShutdown(states []*PeripheralState, statsPath, compliancePath string) error {
	if err := m.Stats.WriteReport(statsPath, m.Spec, states); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if m.Compliance != nil {
		m.Compliance.RunChecks()
		if err := m.Compliance.WriteReport(compliancePath); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
	}
	return nil
}
