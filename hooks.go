// hooks.go - Host-CPU boundary (spec.md S6.1)
//
// One small interface delimits the model from its symbolic-CPU host: the
// model consumes HostHooks (queries it can make of the CPU); the entry
// points the CPU driver calls into are the On* methods of Model (model.go).
// Keeping the host side an interface, rather than a concrete CPU type, is
// what let the engine
// and gateway be tested with a fake in *_test.go without a real symbolic
// executor (same separation as the teacher's Bus32 interface decoupling
// CPU cores from machine_bus.go).

package nlpmodel

// HostHooks is everything the model needs to ask of the host CPU/executor.
type HostHooks interface {
	MemAccessor

	// IsMMIOSymbolic reports whether an address/size pair is inside the
	// host's symbolic-memory gate (spec.md S6.1). The NPM itself is a
	// trivial range filter consumer here, never the decision-maker.
	IsMMIOSymbolic(addr uint32, size int) bool

	// ExternalInterrupt asks the CPU to take irq; returns whether masking
	// allowed it (spec.md S4.4, S6.1 on_external_interrupt).
	ExternalInterrupt(irq int) bool

	// EnableISER returns the currently-enabled IRQ numbers, for the
	// un-enabled-flag diagnosis (spec.md S4.7, S6.1 on_enable_iser).
	EnableISER() []int

	// BufferInput asks the fuzzer harness for up to N bytes of input
	// destined for phaddr (spec.md S4.6, S6.1 on_buffer_input).
	BufferInput(phaddr uint32) []byte

	// InvalidAccess reports a read or write to an address outside the
	// peripheral space and the private bus (spec.md S6.2, S7): the host's
	// invalid-state detector, not the model, decides what happens to the
	// symbolic state from here.
	InvalidAccess(phaddr uint32, pc uint32)
}
