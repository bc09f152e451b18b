// host.go - Trace-backed HostHooks implementation
//
// Stands in for the real symbolic CPU (spec.md S6.1) when replaying an
// access trace offline: CPU memory is a flat map for MemMapped field
// indirection, every IRQ is accepted unmasked, and RX input either comes
// from a fixed deterministic test vector or the shared PRNG, depending on
// the -useFuzzer flag.

package main

import (
	"log"
	"math/rand"
	"os"
)

var hostLog = log.New(os.Stderr, "trace_host: ", log.LstdFlags)

// TraceHost implements nlpmodel.HostHooks against an in-memory CPU image.
type TraceHost struct {
	mem       map[uint32]uint32
	useFuzzer bool
	rng       *rand.Rand

	invalidAccesses int
}

func NewTraceHost(useFuzzer bool, rng *rand.Rand) *TraceHost {
	return &TraceHost{mem: make(map[uint32]uint32), useFuzzer: useFuzzer, rng: rng}
}

func (h *TraceHost) ReadCPUWord(addr uint32) uint32 { return h.mem[addr] }

func (h *TraceHost) WriteCPUWord(addr uint32, value uint32) { h.mem[addr] = value }

// IsMMIOSymbolic reports true for every address; the trace harness has no
// separate notion of "symbolic" memory, so every access it replays is
// treated as belonging to the model.
func (h *TraceHost) IsMMIOSymbolic(addr uint32, size int) bool { return true }

// ExternalInterrupt always accepts: a trace replay has no NVIC masking
// model of its own.
func (h *TraceHost) ExternalInterrupt(irq int) bool { return true }

// EnableISER reports no enabled interrupts, so every IRQ a rule can raise
// is a candidate for the un-enabled-flag diagnosis (spec.md S4.7 type 1)
// unless the trace itself later shows it firing.
func (h *TraceHost) EnableISER() []int { return nil }

// InvalidAccess has no real symbolic state to terminate here, so it just
// counts and logs; a real S2E/KLEE host would kill the state instead.
func (h *TraceHost) InvalidAccess(phaddr uint32, pc uint32) {
	h.invalidAccesses++
	hostLog.Printf("Warning: access to invalid address 0x%08X at pc=0x%08X (state not terminated in offline replay)", phaddr, pc)
}

var fixedTestVector = []byte{0x55, 0xAA, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06}

// BufferInput returns either a fixed test vector or fuzzer-style random
// bytes, per spec.md S6.4's useFuzzer key.
func (h *TraceHost) BufferInput(phaddr uint32) []byte {
	if !h.useFuzzer {
		return fixedTestVector
	}
	buf := make([]byte, 8)
	h.rng.Read(buf)
	return buf
}
