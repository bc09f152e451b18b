// irq_arbiter.go - Pending/in-service IRQ bookkeeping
//
// One outstanding request per IRQ until the CPU's exception-exit callback
// observes it (spec.md S4.4). The arbiter itself holds no state beyond the
// HostHooks capability; all pending/frequency counters live in
// PeripheralState so they clone correctly on a symbolic fork.

package nlpmodel

import (
	"log"
	"os"
)

var arbiterLog = log.New(os.Stderr, "irq_arbiter: ", log.LstdFlags)

// Arbiter emits IRQ candidates produced by the Rule Engine and tracks
// acceptance against the host CPU.
type Arbiter struct {
	Hooks HostHooks
}

func NewArbiter(hooks HostHooks) *Arbiter {
	return &Arbiter{Hooks: hooks}
}

// Emit offers each candidate to the CPU in order (the Rule Engine has
// already shuffled them). A candidate whose IRQ is already pending is
// dropped silently on the accept side; callers that need the missed-enable
// diagnosis record it themselves at evaluation time (spec.md S4.4 "dropped
// but counted in the missed-enable set").
func (a *Arbiter) Emit(st *PeripheralState, candidates []IRQCandidate) {
	for _, c := range candidates {
		if st.ExitInterrupt[c.IRQ] > 0 {
			continue
		}
		if a.Hooks.ExternalInterrupt(c.IRQ) {
			st.ExitInterrupt[c.IRQ]++
			st.InterruptFreq[c.IRQ]++
		} else {
			arbiterLog.Printf("Warning: irq %d masked by host, dropped (src=0x%08X)", c.IRQ, c.SrcAddr)
		}
	}
}

// ExceptionExit handles the CPU's exception-exit callback for a raw vector
// number (IRQ + ExceptionVectorOffset). Vectors below the offset are CPU
// exceptions unrelated to any NLP IRQ and are ignored (spec.md S4.4).
func (a *Arbiter) ExceptionExit(st *PeripheralState, engine *Engine, vector int) {
	if vector < ExceptionVectorOffset {
		return
	}
	irq := vector - ExceptionVectorOffset
	if st.ExitInterrupt[irq] > 0 {
		st.ExitInterrupt[irq]--
	}
	engine.UpdateFlags(st, 1)
}
