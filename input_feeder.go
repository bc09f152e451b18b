// input_feeder.go - RX priming from the fuzzer harness and fork-point handling
//
// Feeder owns the "prime RX" latch and the fork-point crossing counter
// described in spec.md S4.6. The latch itself is process-wide (it
// mirrors the original source's plugin-level init_dr_flag), while the
// per-state fork counter lives on PeripheralState so it survives a
// symbolic fork correctly.

package nlpmodel

// Feeder bridges the fuzzer harness's byte stream into the Register
// Store's RX queues at translation-block boundaries.
type Feeder struct {
	Spec      *SpecFile
	Engine    *Engine
	Hooks     HostHooks
	ForkPoint uint32

	primeRX    bool
	blockCount int
}

// tickInterval is the number of translation blocks between periodic
// full-graph re-evaluations once past the fork point, preserving the
// original's "re-check every 500 blocks" cadence for hardware-Flag-driven
// state changes firmware never directly reads (spec.md S9 supplemented
// feature).
const tickInterval = 500

func NewFeeder(spec *SpecFile, engine *Engine, hooks HostHooks, forkPoint uint32) *Feeder {
	return &Feeder{Spec: spec, Engine: engine, Hooks: hooks, ForkPoint: forkPoint}
}

// OnForkPoint handles a translate-block-start callback at the configured
// fork PC (spec.md S4.6, GLOSSARY "Fork point"). It reports whether the
// run should now be declared complete: after the third crossing, with no
// IRQ pending, the caller should flush statistics and exit 0 (spec.md B3).
func (f *Feeder) OnForkPoint(st *PeripheralState, pc uint32) (shouldExit bool) {
	if pc != f.ForkPoint {
		return false
	}

	f.primeRX = true
	for irq := range st.ExitInterrupt {
		st.ExitInterrupt[irq] = 0
	}
	st.ForkPointCount++

	if st.ForkPointCount < 3 {
		return false
	}

	f.Engine.UpdateFlags(st, 0)
	f.Engine.UpdateGraph(st, EventUnknown, 0)
	return !st.PendingInterrupt()
}

// OnBlockEnd handles a translate-block-end callback (spec.md S4.6 steps
// 1-4). It is a no-op unless the prime-RX latch is set and the CPU is not
// currently servicing an interrupt.
func (f *Feeder) OnBlockEnd(st *PeripheralState, inInterrupt bool) {
	if !f.primeRX || inInterrupt {
		return
	}
	defer func() { f.primeRX = false }()

	firstDR, ok := f.firstDataRegister()
	if !ok {
		return
	}

	bytes := f.Hooks.BufferInput(firstDR)
	for _, reg := range f.Spec.Registers {
		if isDataRegisterKind(reg.Kind) {
			st.Store.PushRx(reg.PhAddr, bytes, uint32(len(bytes))*8)
		}
	}

	f.Engine.UpdateFlags(st, 0)
	f.Engine.UpdateGraph(st, EventUnknown, 0)
}

// Tick runs the periodic full-graph re-evaluation once every tickInterval
// translation blocks, independent of any MMIO access (spec.md S9
// supplemented feature, "periodic mid-block re-evaluation"). Call it once
// per translate-block-start callback after the fork point has been crossed.
func (f *Feeder) Tick(st *PeripheralState) {
	f.blockCount++
	if f.blockCount%tickInterval != 0 {
		return
	}
	f.Engine.UpdateGraph(st, EventUnknown, 0)
}

func (f *Feeder) firstDataRegister() (uint32, bool) {
	for _, reg := range f.Spec.Registers {
		if isDataRegisterKind(reg.Kind) {
			return reg.PhAddr, true
		}
	}
	return 0, false
}
