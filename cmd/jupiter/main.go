package main

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"jupiter/internal/config"
	"jupiter/internal/jupiter"
	"jupiter/internal/vm"
)

func main() {
	cfg := config.FromEnvironment()

	var bare, extrict, selfModifying, debug bool
	var entry string
	var historySize int
	var cacheBlock, cacheBlocks, cacheAssoc int
	var cachePolicy string

	rootCmd := &cobra.Command{
		Use:   "jupiter",
		Short: "RISC-V (RV32IMF) assembler, linker and simulator",
	}

	pf := rootCmd.PersistentFlags()
	// Flags given explicitly override the environment, which already
	// overrode the compiled-in defaults.
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if pf.Changed("bare") {
			cfg.BareMachine = bare
		}
		if pf.Changed("extrict") {
			cfg.Extrict = extrict
		}
		if pf.Changed("self-modifying") {
			cfg.SelfModifying = selfModifying
		}
		if pf.Changed("debug") {
			cfg.Debug = debug
		}
		if pf.Changed("entry") {
			cfg.EntrySymbol = entry
		}
		if pf.Changed("history") {
			cfg.HistorySize = historySize
		}
		if pf.Changed("cache-block-size") {
			cfg.Cache.BlockSize = uint32(cacheBlock)
		}
		if pf.Changed("cache-blocks") {
			cfg.Cache.NumBlocks = uint32(cacheBlocks)
		}
		if pf.Changed("cache-assoc") {
			cfg.Cache.Associativity = uint32(cacheAssoc)
		}
		if pf.Changed("cache-policy") {
			cfg.Cache.Policy = strings.ToLower(cachePolicy)
		}
	}
	pf.BoolVar(&bare, "bare", cfg.BareMachine, "disable pseudo-instruction expansion")
	pf.BoolVar(&extrict, "extrict", cfg.Extrict, "promote warnings to errors")
	pf.BoolVar(&selfModifying, "self-modifying", cfg.SelfModifying, "allow stores into the text segment")
	pf.BoolVar(&debug, "debug", cfg.Debug, "debug mode flag (stored in the configuration; produces no trace output)")
	pf.StringVar(&entry, "entry", cfg.EntrySymbol, "program entry symbol")
	pf.IntVar(&historySize, "history", cfg.HistorySize, "maximum back-step history depth")
	pf.IntVar(&cacheBlock, "cache-block-size", int(cfg.Cache.BlockSize), "cache block size in bytes (power of two)")
	pf.IntVar(&cacheBlocks, "cache-blocks", int(cfg.Cache.NumBlocks), "total cache blocks (power of two)")
	pf.IntVar(&cacheAssoc, "cache-assoc", int(cfg.Cache.Associativity), "cache associativity (power of two)")
	pf.StringVar(&cachePolicy, "cache-policy", cfg.Cache.Policy, "cache replacement policy: lru, fifo or rand")

	asmCmd := &cobra.Command{
		Use:   "asm <file>...",
		Short: "Assemble source files and report diagnostics",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess := jupiter.NewSession(cfg)
			if err := sess.AssembleFiles(args); err != nil {
				return err
			}
			for _, d := range sess.Diags.Entries() {
				fmt.Fprintln(os.Stderr, d.Error())
			}
			return nil
		},
	}

	linkCmd := &cobra.Command{
		Use:   "link <file>...",
		Short: "Assemble and link, then print the resolved symbol map",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess := jupiter.NewSession(cfg)
			if err := sess.AssembleFiles(args); err != nil {
				return err
			}
			if err := sess.Link(); err != nil {
				return err
			}
			names := make([]string, 0, len(sess.Program.Globals))
			for name := range sess.Program.Globals {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Printf("%08x %s\n", sess.Program.Globals[name].Address, name)
			}
			fmt.Printf("text: %08x-%08x, heap base: %08x\n",
				vm.TextBegin, sess.Program.TextEnd, sess.Program.InitialHeapPtr)
			return nil
		},
	}

	dumpCmd := &cobra.Command{
		Use:   "dump <file>...",
		Short: "Assemble, link and print the machine code as hex",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess := jupiter.NewSession(cfg)
			if err := sess.AssembleFiles(args); err != nil {
				return err
			}
			if err := sess.Link(); err != nil {
				return err
			}
			out := bufio.NewWriter(os.Stdout)
			defer out.Flush()
			return sess.DumpCode(out)
		},
	}

	runCmd := &cobra.Command{
		Use:   "run <file>...",
		Short: "Assemble, link and execute a program",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess := jupiter.NewSession(cfg)
			if err := sess.AssembleFiles(args); err != nil {
				return err
			}
			if err := sess.Link(); err != nil {
				return err
			}
			sim, err := sess.NewSimulator(newStdConsole(), newHostFS(), func() int64 {
				return time.Now().UnixMilli()
			}, uint64(time.Now().UnixNano()))
			if err != nil {
				return err
			}
			return runToHalt(sim)
		},
	}

	rootCmd.AddCommand(asmCmd, linkCmd, dumpCmd, runCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// runToHalt drives the simulator until the program exits or a hard fault
// stops it. A clean exit's code becomes the process exit code.
func runToHalt(sim *vm.Simulator) error {
	err := sim.Run()
	if err == nil {
		return nil
	}
	if sf, ok := err.(*vm.SimulationFault); ok && sf.Kind == vm.FaultHalt {
		if sf.Code != 0 {
			os.Exit(int(sf.Code))
		}
		return nil
	}
	return err
}

// stdConsole wires the simulated console syscalls to the process's own
// stdin/stdout.
type stdConsole struct {
	in  *bufio.Reader
	out *bufio.Writer
}

func newStdConsole() *stdConsole {
	return &stdConsole{in: bufio.NewReader(os.Stdin), out: bufio.NewWriter(os.Stdout)}
}

func (c *stdConsole) PrintString(s string) {
	c.out.WriteString(s)
	c.out.Flush()
}

func (c *stdConsole) ReadLine() (string, error) {
	line, err := c.in.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// hostFS backs the open/read/write/close syscalls with the real
// filesystem.
type hostFS struct {
	files  map[int32]*os.File
	nextFD int32
}

func newHostFS() *hostFS {
	return &hostFS{files: make(map[int32]*os.File), nextFD: 3}
}

func (h *hostFS) Open(path string, flags int32) (int32, error) {
	var mode int
	switch flags {
	case 1:
		mode = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	case 9:
		mode = os.O_WRONLY | os.O_CREATE | os.O_APPEND
	default:
		mode = os.O_RDONLY
	}
	f, err := os.OpenFile(path, mode, 0o644)
	if err != nil {
		return -1, err
	}
	fd := h.nextFD
	h.nextFD++
	h.files[fd] = f
	return fd, nil
}

func (h *hostFS) Read(fd int32, buf []byte) (int32, error) {
	f, ok := h.files[fd]
	if !ok {
		return -1, fmt.Errorf("bad file descriptor %d", fd)
	}
	n, err := f.Read(buf)
	if err != nil && n == 0 {
		return -1, err
	}
	return int32(n), nil
}

func (h *hostFS) Write(fd int32, buf []byte) (int32, error) {
	f, ok := h.files[fd]
	if !ok {
		return -1, fmt.Errorf("bad file descriptor %d", fd)
	}
	n, err := f.Write(buf)
	if err != nil {
		return -1, err
	}
	return int32(n), nil
}

func (h *hostFS) Close(fd int32) error {
	f, ok := h.files[fd]
	if !ok {
		return nil
	}
	delete(h.files, fd)
	return f.Close()
}
