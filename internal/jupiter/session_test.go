package jupiter

import (
	"fmt"
	"strings"
	"testing"

	"jupiter/internal/asm"
	"jupiter/internal/config"
	"jupiter/internal/vm"
)

func assert(t *testing.T, cond bool, format string, args ...any) {
	t.Helper()
	if !cond {
		t.Fatalf(fmt.Sprintf("%v %s", cond, format), args...)
	}
}

type testConsole struct {
	out   strings.Builder
	lines []string
}

func (c *testConsole) PrintString(s string) { c.out.WriteString(s) }

func (c *testConsole) ReadLine() (string, error) {
	if len(c.lines) == 0 {
		return "", fmt.Errorf("no more input")
	}
	line := c.lines[0]
	c.lines = c.lines[1:]
	return line, nil
}

func startSession(t *testing.T, sources ...string) (*Session, *vm.Simulator, *testConsole) {
	t.Helper()
	sess := NewSession(config.Defaults())
	in := make([]asm.Source, len(sources))
	for i, s := range sources {
		in[i] = asm.Source{File: fmt.Sprintf("prog%d.s", i), Text: s}
	}
	assert(t, sess.AssembleSources(in) == nil, "assembly failed: %v", sess.Diags.Error())
	assert(t, sess.Link() == nil, "link failed: %v", sess.Diags.Error())

	console := &testConsole{}
	sim, err := sess.NewSimulator(console, nil, func() int64 { return 0 }, 1)
	assert(t, err == nil, "simulator setup failed: %v", err)
	return sess, sim, console
}

func runToHalt(t *testing.T, sim *vm.Simulator) uint32 {
	t.Helper()
	err := sim.Run()
	sf, ok := err.(*vm.SimulationFault)
	assert(t, ok && sf.Kind == vm.FaultHalt, "program must halt cleanly, got %v", err)
	return sf.Code
}

func TestArithmeticProgram(t *testing.T) {
	_, sim, _ := startSession(t, `
__start:
	addi x1, x0, 7
	addi x2, x0, 5
	add x3, x1, x2
	li a7, 10
	ecall
`)
	code := runToHalt(t, sim)
	assert(t, code == 0, "exit code %d", code)
	assert(t, sim.Core().GetInt(3) == 12, "x3 = %d, want 12", sim.Core().GetInt(3))
}

func TestLogicalShiftProgram(t *testing.T) {
	_, sim, _ := startSession(t, `
__start:
	li x1, -1
	srli x2, x1, 28
	li a7, 10
	ecall
`)
	runToHalt(t, sim)
	assert(t, sim.Core().GetInt(2) == 0x0000000F, "x2 = %08x, want 0000000f", sim.Core().GetInt(2))
}

func TestSignedDivisionOverflow(t *testing.T) {
	_, sim, _ := startSession(t, `
__start:
	li x1, 0x80000000
	li x2, -1
	div x3, x1, x2
	rem x4, x1, x2
	li a7, 10
	ecall
`)
	runToHalt(t, sim)
	assert(t, sim.Core().GetInt(3) == 0x80000000, "x3 = %08x", sim.Core().GetInt(3))
	assert(t, sim.Core().GetInt(4) == 0, "x4 = %08x", sim.Core().GetInt(4))
}

func TestLuiAddiComposition(t *testing.T) {
	_, sim, _ := startSession(t, `
__start:
	lui x1, 0x12345
	addi x1, x1, 0x678
	li a7, 10
	ecall
`)
	runToHalt(t, sim)
	assert(t, sim.Core().GetInt(1) == 0x12345678, "x1 = %08x", sim.Core().GetInt(1))
}

func TestTwoFileLoadAddress(t *testing.T) {
	sess, sim, _ := startSession(t,
		".globl foo\n.data\nfoo: .word 99\n",
		`
__start:
	la x5, foo
	lw x6, 0(x5)
	li a7, 10
	ecall
`)
	runToHalt(t, sim)
	foo, ok := sess.Program.Lookup("foo")
	assert(t, ok, "foo must be in the global table")
	assert(t, sim.Core().GetInt(5) == foo.Address, "x5 = %08x, want &foo = %08x", sim.Core().GetInt(5), foo.Address)
	assert(t, sim.Core().GetInt(6) == 99, "x6 = %d, want foo's value", sim.Core().GetInt(6))
}

func TestConsoleSyscalls(t *testing.T) {
	_, sim, console := startSession(t, `
.rodata
msg: .asciiz "sum="
.text
__start:
	li a7, 5
	ecall
	mv x5, a0
	li a7, 5
	ecall
	add x6, x5, a0
	la a0, msg
	li a7, 4
	ecall
	mv a0, x6
	li a7, 1
	ecall
	li a7, 17
	mv a0, x0
	ecall
`)
	console.lines = []string{"30", "12"}
	code := runToHalt(t, sim)
	assert(t, code == 0, "exit code %d", code)
	assert(t, console.out.String() == "sum=42", "output %q", console.out.String())
}

func TestStepBackstepThroughPipeline(t *testing.T) {
	_, sim, _ := startSession(t, `
.data
slot: .word 0
.text
__start:
	li x1, 5
	la x2, slot
	sw x1, 0(x2)
`)
	// Bootstrap pair plus li+la before the store.
	for i := 0; i < 5; i++ {
		assert(t, sim.Step() == nil, "step %d failed", i)
	}
	pc := sim.Core().PC
	regs := sim.Core().Int.Snapshot()
	accesses := sim.Core().Mem.Cache().Accesses()

	assert(t, sim.Step() == nil, "store step failed")
	assert(t, sim.Backstep(), "backstep failed")

	assert(t, sim.Core().PC == pc, "PC restored")
	assert(t, sim.Core().Int.Snapshot() == regs, "registers restored")
	assert(t, sim.Core().Mem.Cache().Accesses() == accesses, "cache counters restored")
}

func TestRodataIsWriteProtected(t *testing.T) {
	_, sim, _ := startSession(t, `
.rodata
k: .word 1
.text
__start:
	la x1, k
	sw x0, 0(x1)
`)
	err := sim.Run()
	sf, ok := err.(*vm.SimulationFault)
	assert(t, ok && sf.Kind == vm.FaultInvalidAddress, "rodata store must fault, got %v", err)
	assert(t, !sf.Read, "the fault is a write fault")
}

func TestDumpSingleFile(t *testing.T) {
	sess, _, _ := startSession(t, "__start:\n\taddi x1, x0, 7\n\tadd x2, x1, x1\n")
	var sb strings.Builder
	assert(t, sess.DumpCode(&sb) == nil, "dump failed")

	lines := strings.Split(strings.TrimSpace(sb.String()), "\n")
	assert(t, len(lines) == 2, "one line per instruction, got %d", len(lines))
	assert(t, lines[0] == "00700093", "first word %q", lines[0])
	for _, l := range lines {
		assert(t, len(l) == 8, "each line is 8 hex digits, got %q", l)
	}
}

func TestDumpMultiFileHeaders(t *testing.T) {
	sess, _, _ := startSession(t,
		"__start:\n\tnop\n",
		"helper:\n\tret\n",
	)
	var sb strings.Builder
	assert(t, sess.DumpCode(&sb) == nil, "dump failed")
	lines := strings.Split(strings.TrimSpace(sb.String()), "\n")
	assert(t, lines[0] == "prog0.s:", "unit header %q", lines[0])
	assert(t, len(lines) == 4, "two headers and two words, got %d: %q", len(lines), lines)
	assert(t, lines[2] == "prog1.s:", "second unit header %q", lines[2])
}

func TestPipelineStopsOnAssemblyErrors(t *testing.T) {
	sess := NewSession(config.Defaults())
	err := sess.AssembleSources([]asm.Source{{File: "bad.s", Text: "bogus"}})
	assert(t, err != nil, "assembly errors must surface")
	assert(t, sess.Link() != nil, "linking after errors must refuse")
}

func TestExtrictConfigFlowsThrough(t *testing.T) {
	cfg := config.Defaults()
	assert(t, cfg.Extrict, "extrict defaults on")
	sess := NewSession(cfg)
	sess.Diags.Warnf(asm.KindSemantic, asm.DebugInfo{}, "nit")
	assert(t, sess.Diags.HasErrors(), "extrict sessions treat warnings as errors")
}

func TestSelfModifyingConfig(t *testing.T) {
	cfg := config.Defaults()
	cfg.SelfModifying = true
	sess := NewSession(cfg)
	err := sess.AssembleSources([]asm.Source{{File: "p.s", Text: `
.globl __start
__start:
	la x1, __start
	li x2, 0x13
	sw x2, 0(x1)
`}})
	assert(t, err == nil, "assemble: %v", err)
	assert(t, sess.Link() == nil, "link: %v", sess.Diags.Error())
	sim, err := sess.NewSimulator(&testConsole{}, nil, nil, 1)
	assert(t, err == nil, "simulator: %v", err)

	// Bootstrap pair, la pair, li, then the store into text.
	for i := 0; i < 6; i++ {
		assert(t, sim.Step() == nil, "step %d failed", i)
	}
	entry, _ := sess.Program.Lookup("__start")
	w := sim.Core().Mem.PrivilegedLoadWord(entry.Address)
	assert(t, w == 0x13, "the program overwrote its own first word, got %08x", w)
}
