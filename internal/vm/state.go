package vm

import "math"

// Core is the architectural state an executor operates over: the integer
// and float register files, the program counter, and the memory (with its
// cache) behind them. All writes flow through Core's methods so that
// change-sink notification and history-diff recording happen in exactly
// one place.
type Core struct {
	Int   IntRegisterFile
	Float FloatRegisterFile
	PC    uint32

	Mem *Memory

	// Syscall, when set by the driver, handles ecall. Executors
	// stay ignorant of the syscall table itself.
	Syscall func(c *Core) error

	sinks    []ChangeSink
	recorder diffRecorder
}

// NewCore wires a fresh Core around the given memory.
func NewCore(mem *Memory) *Core {
	return &Core{Mem: mem}
}

// AddSink registers a change-sink observer for both register files and
// memory.
func (c *Core) AddSink(s ChangeSink) {
	c.sinks = append(c.sinks, s)
	c.Mem.AddSink(s)
}

// attachRecorder installs (or clears) the active history diff recorder.
func (c *Core) attachRecorder(r diffRecorder) {
	c.recorder = r
	c.Mem.attachRecorder(r)
}

func (c *Core) GetInt(idx int) uint32 { return c.Int.Get(idx) }

// SetInt writes an integer register, recording the prior value for history
// and notifying sinks. Writes to x0 are silently discarded here, before any
// history record or sink event, so executors need not check for x0.
func (c *Core) SetInt(idx int, v uint32) {
	if idx == 0 {
		return
	}
	if c.recorder != nil {
		c.recorder.recordReg(IntRegisterFileKind, idx, c.Int.Get(idx))
	}
	c.Int.Set(idx, v)
	for _, s := range c.sinks {
		s.RegisterChanged(IntRegisterFileKind, idx, v)
	}
}

func (c *Core) GetFloatBits(idx int) uint32 { return c.Float.GetBits(idx) }
func (c *Core) GetFloat(idx int) float32    { return math.Float32frombits(c.Float.GetBits(idx)) }

// SetFloatBits writes a float register's raw bit pattern (used so NaN
// payloads and signed zero survive moves between integer and float files).
func (c *Core) SetFloatBits(idx int, bits uint32) {
	if c.recorder != nil {
		c.recorder.recordReg(FloatRegisterFileKind, idx, c.Float.GetBits(idx))
	}
	c.Float.SetBits(idx, bits)
	for _, s := range c.sinks {
		s.RegisterChanged(FloatRegisterFileKind, idx, bits)
	}
}

func (c *Core) SetFloat(idx int, v float32) { c.SetFloatBits(idx, math.Float32bits(v)) }
