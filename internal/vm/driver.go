package vm

import "fmt"

// Syscall selectors, keyed on a7.
const (
	SyscallPrintInt    = 1
	SyscallPrintFloat  = 2
	SyscallPrintString = 4
	SyscallReadInt     = 5
	SyscallReadFloat   = 6
	SyscallPrintChar   = 11
	SyscallReadChar    = 12
	SyscallReadString  = 8
	SyscallSbrk        = 9
	SyscallExit0       = 10
	SyscallOpen        = 13
	SyscallRead        = 14
	SyscallWrite       = 15
	SyscallClose       = 16
	SyscallExit        = 17
	SyscallTimeMs      = 30
	SyscallPrintHex    = 34
	SyscallPrintBin    = 35
	SyscallPrintUns    = 36
)

// Console is the host-provided I/O surface the syscall table reads from and
// writes to. A CLI host wires this to stdin/stdout; a GUI host
// wires it to its own console widget.
type Console interface {
	PrintString(s string)
	ReadLine() (string, error)
}

// FileSystem backs the open/read/write/close syscalls (13-16). A CLI host
// typically wires this to the real filesystem; tests can fake it.
type FileSystem interface {
	Open(path string, flags int32) (fd int32, err error)
	Read(fd int32, buf []byte) (n int32, err error)
	Write(fd int32, buf []byte) (n int32, err error)
	Close(fd int32) error
}

// Clock supplies the wall-clock time backing syscall 30. Tests can pin it
// for reproducible traces.
type Clock func() int64

// Simulator is the simulation driver: it owns a linked Program,
// steps/runs it against the instruction registry, dispatches syscalls, and
// maintains the back-step history.
type Simulator struct {
	core    *Core
	history *History
	prog    *Program

	heapPtr uint32

	breakpoints map[uint32]bool
	armed       bool // re-armed after each successful step/backstep/reset

	console Console
	fs      FileSystem
	clock   Clock

	cancel bool

	exited    bool
	exitCode  uint32
	fileTable map[int32]int32 // simulated fd -> host fd, stdin/stdout/stderr preopened
	nextFD    int32
}

// NewSimulator wires a driver around a freshly linked program. historySize
// must be a positive integer; console/fs/clock may be nil. With a nil
// console the print syscalls write nothing and the read syscalls fault;
// with a nil fs open/read/write return -1 in a0 (writes to fd 1/2 still go
// to the console); with a nil clock the time syscall returns 0.
func NewSimulator(prog *Program, historySize int, console Console, fs FileSystem, clock Clock) *Simulator {
	s := &Simulator{
		core:        NewCore(prog.Mem),
		history:     NewHistory(historySize),
		prog:        prog,
		heapPtr:     prog.InitialHeapPtr,
		breakpoints: make(map[uint32]bool),
		armed:       true,
		console:     console,
		fs:          fs,
		clock:       clock,
		fileTable:   map[int32]int32{0: 0, 1: 1, 2: 2},
		nextFD:      3,
	}
	s.core.PC = prog.EntryAddress
	s.core.Int.Set(2, StackTop)            // sp
	s.core.Int.Set(3, prog.InitialHeapPtr) // gp
	s.core.Syscall = s.dispatchSyscall
	return s
}

func (s *Simulator) Core() *Core       { return s.core }
func (s *Simulator) History() *History { return s.history }
func (s *Simulator) Exited() bool      { return s.exited }
func (s *Simulator) ExitCode() uint32  { return s.exitCode }
func (s *Simulator) HeapPtr() uint32   { return s.heapPtr }

// AddSink registers a change-sink observer fed from the core and its memory.
func (s *Simulator) AddSink(sink ChangeSink) { s.core.AddSink(sink) }

// SetBreakpoint arms a breakpoint at addr.
func (s *Simulator) SetBreakpoint(addr uint32) {
	if s.breakpoints == nil {
		s.breakpoints = make(map[uint32]bool)
	}
	s.breakpoints[addr] = true
}

// ClearBreakpoints removes every armed breakpoint.
func (s *Simulator) ClearBreakpoints() { s.breakpoints = make(map[uint32]bool) }

// Cancel requests that an in-progress Run stop cleanly before its next
// instruction.
func (s *Simulator) Cancel() { s.cancel = true }

// Step fetches, decodes, and executes exactly one instruction, committing a
// history diff on success. Returns the fault that stopped execution, if
// any — breakpoints and halts are reported the same way as hard faults,
// since the host decides what to do with each.
func (s *Simulator) Step() error {
	if s.exited {
		return haltFault(s.exitCode)
	}
	if s.breakpoints[s.core.PC] && s.armed {
		s.armed = false
		return breakpointFault()
	}
	s.armed = true

	// The diff opens before the fetch so the cache backup predates the
	// fetch's own accesses; a back-step then restores the counters exactly.
	s.history.Begin(s.core, s.heapPtr)
	rollback := func() { s.history.Rollback(s.core, func(hp uint32) { s.heapPtr = hp }) }

	word, err := s.core.Mem.LoadWord(s.core.PC)
	if err != nil {
		rollback()
		return err
	}
	d, ok := Decode(word)
	if !ok {
		rollback()
		return illegalInstructionFault()
	}
	def, ok := Lookup(d.Mnemonic)
	if !ok {
		rollback()
		return illegalInstructionFault()
	}

	instrAddr := s.core.PC
	s.core.PC = instrAddr + InstructionBytes

	if err := def.Execute(s.core, d, instrAddr); err != nil {
		// A faulting instruction must not leave partial effects behind: the
		// open diff already knows every write made so far, so replay it in
		// reverse and leave PC on the faulting instruction.
		rollback()
		if sf, ok := err.(*SimulationFault); ok && sf.Kind == FaultHalt {
			s.exited = true
			s.exitCode = sf.Code
		}
		return err
	}

	s.history.Commit(s.core)
	return nil
}

// Run steps until a fault (halt, breakpoint, illegal instruction, invalid
// address) or a cancellation request, whichever comes first.
// Between instructions it checks the cancel flag so a host running this on
// a background worker can stop it cleanly.
func (s *Simulator) Run() error {
	s.cancel = false
	for {
		if s.cancel {
			s.cancel = false
			return nil
		}
		if err := s.Step(); err != nil {
			return err
		}
	}
}

// Backstep pops the most recent history diff and restores PC, registers,
// memory, and cache to their pre-step state.
func (s *Simulator) Backstep() bool {
	s.exited = false
	s.exitCode = 0
	s.armed = true
	return s.history.Backstep(s.core, func(hp uint32) { s.heapPtr = hp })
}

// Reset drops all history, reloads the program image, and restores initial
// register and cache state, so a subsequent Run retraces the first one
// exactly.
func (s *Simulator) Reset() {
	s.history.Reset()
	if s.prog.InitialImage != nil {
		s.core.Mem.RestoreImage(s.prog.InitialImage)
	}
	s.core.PC = s.prog.EntryAddress
	s.core.Int = IntRegisterFile{}
	s.core.Float = FloatRegisterFile{}
	s.core.Int.Set(2, StackTop)
	s.core.Int.Set(3, s.prog.InitialHeapPtr)
	s.heapPtr = s.prog.InitialHeapPtr
	s.exited = false
	s.exitCode = 0
	s.armed = true
	if s.core.Mem.Cache() != nil {
		s.core.Mem.Cache().Reset()
	}
}

// ConfigureCache swaps the cache in front of memory for a new shape.
// Reconfiguration is refused while any back-step diffs are retained,
// since old diffs carry snapshots of the previous geometry.
func (s *Simulator) ConfigureCache(cfg CacheConfig, seed uint64) error {
	if s.history.Len() > 0 {
		return fmt.Errorf("cannot reconfigure cache while history is non-empty")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.core.Mem.AttachCache(NewCache(cfg, seed))
	return nil
}

// dispatchSyscall fans an ecall out by its a7 selector.
func (s *Simulator) dispatchSyscall(c *Core) error {
	a7 := c.GetInt(17)
	switch a7 {
	case SyscallPrintInt:
		s.writeConsole(fmt.Sprintf("%d", int32(c.GetInt(10))))
	case SyscallPrintFloat:
		s.writeConsole(fmt.Sprintf("%g", c.GetFloat(10)))
	case SyscallPrintString:
		s.writeConsole(s.readCString(c.GetInt(10)))
	case SyscallReadInt:
		v, err := s.readLineAs(func(line string) (uint32, error) {
			var n int32
			_, err := fmt.Sscanf(line, "%d", &n)
			return uint32(n), err
		})
		if err != nil {
			return illegalInstructionFault()
		}
		c.SetInt(10, v)
	case SyscallReadFloat:
		if s.console == nil {
			return illegalInstructionFault()
		}
		line, err := s.console.ReadLine()
		if err != nil {
			return illegalInstructionFault()
		}
		var f float32
		if _, err := fmt.Sscanf(line, "%g", &f); err != nil {
			return illegalInstructionFault()
		}
		c.SetFloat(10, f)
	case SyscallPrintChar:
		s.writeConsole(string(rune(byte(c.GetInt(10)))))
	case SyscallReadChar:
		if s.console == nil {
			return illegalInstructionFault()
		}
		line, err := s.console.ReadLine()
		if err != nil || len(line) == 0 {
			return illegalInstructionFault()
		}
		c.SetInt(10, uint32(line[0]))
	case SyscallReadString:
		return s.sysReadString(c)
	case SyscallSbrk:
		return s.sysSbrk(c)
	case SyscallExit0:
		return haltFault(0)
	case SyscallOpen:
		return s.sysOpen(c)
	case SyscallRead:
		return s.sysRead(c)
	case SyscallWrite:
		return s.sysWrite(c)
	case SyscallClose:
		return s.sysClose(c)
	case SyscallExit:
		return haltFault(c.GetInt(10))
	case SyscallTimeMs:
		return s.sysTimeMs(c)
	case SyscallPrintHex:
		s.writeConsole(fmt.Sprintf("0x%08x", c.GetInt(10)))
	case SyscallPrintBin:
		s.writeConsole(fmt.Sprintf("%032b", c.GetInt(10)))
	case SyscallPrintUns:
		s.writeConsole(fmt.Sprintf("%d", c.GetInt(10)))
	default:
		return illegalInstructionFault()
	}
	return nil
}

func (s *Simulator) writeConsole(str string) {
	if s.console != nil {
		s.console.PrintString(str)
	}
}

func (s *Simulator) readCString(addr uint32) string {
	var b []byte
	for {
		v, err := s.core.Mem.LoadByte(addr)
		if err != nil || v == 0 {
			break
		}
		b = append(b, v)
		addr++
	}
	return string(b)
}

func (s *Simulator) readLineAs(parse func(string) (uint32, error)) (uint32, error) {
	if s.console == nil {
		return 0, fmt.Errorf("no console attached")
	}
	line, err := s.console.ReadLine()
	if err != nil {
		return 0, err
	}
	return parse(line)
}

func (s *Simulator) sysReadString(c *Core) error {
	if s.console == nil {
		return illegalInstructionFault()
	}
	buf := c.GetInt(10)
	maxLen := c.GetInt(11)
	line, err := s.console.ReadLine()
	if err != nil {
		return illegalInstructionFault()
	}
	if maxLen == 0 {
		return nil
	}
	n := uint32(len(line))
	if n > maxLen-1 {
		n = maxLen - 1
	}
	for i := uint32(0); i < n; i++ {
		if err := c.Mem.StoreByte(buf+i, line[i]); err != nil {
			return err
		}
	}
	return c.Mem.StoreByte(buf+n, 0)
}

// sysSbrk grows the heap by a0 bytes (may be negative-as-unsigned to shrink;
// Jupiter treats it the same as MARS does: a0 is interpreted as a signed
// request) and returns the pre-growth pointer in a0, or -1 on an out-of-
// bounds request.
func (s *Simulator) sysSbrk(c *Core) error {
	req := int32(c.GetInt(10))
	old := s.heapPtr
	next := uint32(int64(old) + int64(req))
	if req < 0 && next > old {
		c.SetInt(10, 0xFFFFFFFF)
		return nil
	}
	if next >= StackTop || next < StaticBegin {
		c.SetInt(10, 0xFFFFFFFF)
		return nil
	}
	s.heapPtr = next
	c.SetInt(10, old)
	return nil
}

func (s *Simulator) sysOpen(c *Core) error {
	if s.fs == nil {
		c.SetInt(10, 0xFFFFFFFF)
		return nil
	}
	path := s.readCString(c.GetInt(10))
	flags := int32(c.GetInt(11))
	hostFD, err := s.fs.Open(path, flags)
	if err != nil {
		c.SetInt(10, 0xFFFFFFFF)
		return nil
	}
	fd := s.nextFD
	s.nextFD++
	s.fileTable[fd] = hostFD
	c.SetInt(10, uint32(fd))
	return nil
}

func (s *Simulator) sysRead(c *Core) error {
	fd, buf, length := int32(c.GetInt(10)), c.GetInt(11), c.GetInt(12)
	hostFD, ok := s.fileTable[fd]
	if !ok || s.fs == nil {
		c.SetInt(10, 0xFFFFFFFF)
		return nil
	}
	data := make([]byte, length)
	n, err := s.fs.Read(hostFD, data)
	if err != nil {
		c.SetInt(10, 0xFFFFFFFF)
		return nil
	}
	for i := int32(0); i < n; i++ {
		if err := c.Mem.StoreByte(buf+uint32(i), data[i]); err != nil {
			return err
		}
	}
	c.SetInt(10, uint32(n))
	return nil
}

func (s *Simulator) sysWrite(c *Core) error {
	fd, buf, length := int32(c.GetInt(10)), c.GetInt(11), c.GetInt(12)
	hostFD, ok := s.fileTable[fd]
	if !ok {
		c.SetInt(10, 0xFFFFFFFF)
		return nil
	}
	data := make([]byte, length)
	for i := uint32(0); i < length; i++ {
		b, err := c.Mem.LoadByte(buf + i)
		if err != nil {
			return err
		}
		data[i] = b
	}
	if fd == 1 || fd == 2 {
		s.writeConsole(string(data))
		c.SetInt(10, length)
		return nil
	}
	if s.fs == nil {
		c.SetInt(10, 0xFFFFFFFF)
		return nil
	}
	n, err := s.fs.Write(hostFD, data)
	if err != nil {
		c.SetInt(10, 0xFFFFFFFF)
		return nil
	}
	c.SetInt(10, uint32(n))
	return nil
}

func (s *Simulator) sysClose(c *Core) error {
	fd := int32(c.GetInt(10))
	hostFD, ok := s.fileTable[fd]
	if !ok || fd < 3 {
		return nil
	}
	delete(s.fileTable, fd)
	if s.fs != nil {
		_ = s.fs.Close(hostFD)
	}
	return nil
}

func (s *Simulator) sysTimeMs(c *Core) error {
	if s.clock == nil {
		c.SetInt(10, 0)
		c.SetInt(11, 0)
		return nil
	}
	ms := s.clock()
	c.SetInt(10, uint32(ms))
	c.SetInt(11, uint32(ms>>32))
	return nil
}
