// registers.go - Address space and register-kind constants for the NLP peripheral model
//
// This file centralizes the MMIO memory map assumed by the model: the
// peripheral space, the private/NVIC bus, and the ARM Cortex-M bit-band
// alias window. Individual components (store.go, mmio_gateway.go) refer to
// these constants rather than hard-coding addresses.

package nlpmodel

import "fmt"

// RegisterKind tags the semantics of a Register. The rule engine dispatches
// on this tag instead of using separate Go types per kind (spec's
// polymorphism-over-register-kinds design note): a tagged variant keeps the
// register store a single flat map, which is what makes cheap per-state
// cloning on a symbolic fork possible.
type RegisterKind int

const (
	KindStatus RegisterKind = iota
	KindTransmit
	KindReceive
	KindOther
	KindDmaChannel
	KindMemMapped
)

func (k RegisterKind) String() string {
	switch k {
	case KindStatus:
		return "Status"
	case KindTransmit:
		return "Transmit"
	case KindReceive:
		return "Receive"
	case KindOther:
		return "Other"
	case KindDmaChannel:
		return "DmaChannel"
	case KindMemMapped:
		return "MemMapped"
	default:
		return fmt.Sprintf("RegisterKind(%d)", int(k))
	}
}

// kindFromLetter maps the single-letter NLP file register-kind code to a
// RegisterKind. L is MemMapped: the original source calls it "L" for a
// register whose cur_value is itself a pointer into CPU memory.
func kindFromLetter(letter string) (RegisterKind, bool) {
	switch letter {
	case "S":
		return KindStatus, true
	case "T":
		return KindTransmit, true
	case "R":
		return KindReceive, true
	case "O":
		return KindOther, true
	case "D":
		return KindDmaChannel, true
	case "L":
		return KindMemMapped, true
	default:
		return 0, false
	}
}

// Address space boundaries (spec.md S6.2).
const (
	PeripheralSpaceStart = 0x40000000
	PeripheralSpaceEnd   = 0x5FFFFFFF
	PrivateBusStart      = 0xE0000000
	PrivateBusEnd        = 0xE00FFFFF
)

// Bit-band alias window (spec.md S4.2 / S6.2). Each 32-bit alias word maps
// to exactly one bit of one word in the bit-band region.
const (
	BitBandAliasStart = 0x42000000
	BitBandAliasEnd   = 0x43FFFFFC
	BitBandRegionBase = 0x40000000
)

// IsBitBandAlias reports whether addr falls in the bit-band alias window.
func IsBitBandAlias(addr uint32) bool {
	return addr >= BitBandAliasStart && addr <= BitBandAliasEnd
}

// InMMIOSurface reports whether addr falls inside either address range the
// model is prepared to service: the peripheral space or the private bus /
// NVIC window (spec.md S6.2, S7 "invalid MMIO access"). An address outside
// both is not a sub-word or undeclared-register access to correct; it is an
// access to memory this model has no business answering for at all.
func InMMIOSurface(addr uint32) bool {
	if addr >= PeripheralSpaceStart && addr <= PeripheralSpaceEnd {
		return true
	}
	return addr >= PrivateBusStart && addr <= PrivateBusEnd
}

// BitBandTarget resolves a bit-band alias address to the word address it
// aliases and the bit index within that word, per spec.md S4.2:
//
//	word = (addr - 0x42000000)/32 + 0x40000000
//	bit  = ((addr - 0x42000000) % 32) / 4
func BitBandTarget(addr uint32) (word uint32, bit uint32) {
	offset := addr - BitBandAliasStart
	word = offset/32 + BitBandRegionBase
	bit = (offset % 32) / 4
	return word, bit
}

// PeripheralBlockStride is the maximum address gap (spec.md I4) within
// which consecutive declared registers are considered part of the same
// peripheral block.
const PeripheralBlockStride = 0x100

// ExceptionVectorOffset is the ARM Cortex-M constant added to an NLP IRQ
// number to obtain the CPU exception vector number (spec.md S3, Equation).
const ExceptionVectorOffset = 16
