package vm

import "fmt"

// SimulationFault is raised by executors and the memory system, caught by
// the Simulator driver, and reported to the host.
type SimulationFault struct {
	Kind FaultKind
	Addr uint32 // valid for InvalidAddress
	Read bool   // valid for InvalidAddress: true if the faulting access was a load
	Code uint32 // valid for Halt: the process exit code
}

// FaultKind enumerates the ways a step can stop.
type FaultKind int

const (
	FaultBreakpoint FaultKind = iota
	FaultHalt
	FaultInvalidAddress
	FaultIllegalInstruction
)

func (f *SimulationFault) Error() string {
	switch f.Kind {
	case FaultBreakpoint:
		return "breakpoint"
	case FaultHalt:
		return fmt.Sprintf("halt(code=%d)", f.Code)
	case FaultInvalidAddress:
		verb := "write"
		if f.Read {
			verb = "read"
		}
		return fmt.Sprintf("invalid address: %s 0x%08x", verb, f.Addr)
	case FaultIllegalInstruction:
		return "illegal instruction"
	default:
		return "unknown simulation fault"
	}
}

func breakpointFault() *SimulationFault { return &SimulationFault{Kind: FaultBreakpoint} }

func haltFault(code uint32) *SimulationFault {
	return &SimulationFault{Kind: FaultHalt, Code: code}
}

func addressFault(addr uint32, read bool) *SimulationFault {
	return &SimulationFault{Kind: FaultInvalidAddress, Addr: addr, Read: read}
}

func illegalInstructionFault() *SimulationFault {
	return &SimulationFault{Kind: FaultIllegalInstruction}
}
