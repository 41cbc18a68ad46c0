// Package jupiter is the narrow front door hosts drive the toolchain
// through: assemble these source files, link the units, construct a
// simulator, dump the built code. A Session owns every piece of otherwise
// process-wide state (diagnostics, translation units, the linked program),
// so two sessions never share anything.
package jupiter

import (
	"fmt"
	"io"
	"os"

	"jupiter/internal/asm"
	"jupiter/internal/config"
	"jupiter/internal/link"
	"jupiter/internal/vm"
)

// Session is one assemble-link-simulate pipeline run.
type Session struct {
	Config config.Config

	Diags   *asm.Diagnostics
	Units   []*asm.TranslationUnit
	Program *vm.Program
}

// NewSession starts a pipeline with the given configuration.
func NewSession(cfg config.Config) *Session {
	return &Session{
		Config: cfg,
		Diags:  &asm.Diagnostics{Extrict: cfg.Extrict},
	}
}

// AssembleFiles reads and assembles each path in order. Every file is
// assembled even when an earlier one has errors; the returned error is the
// combined diagnostic report, nil when the phase is clean.
func (s *Session) AssembleFiles(paths []string) error {
	sources := make([]asm.Source, 0, len(paths))
	for _, p := range paths {
		text, err := os.ReadFile(p)
		if err != nil {
			s.Diags.Errorf(asm.KindLex, asm.DebugInfo{File: p}, "cannot read source: %v", err)
			continue
		}
		sources = append(sources, asm.Source{File: p, Text: string(text)})
	}
	return s.AssembleSources(sources)
}

// AssembleSources assembles in-memory sources, the entry point tests and
// embedded hosts use.
func (s *Session) AssembleSources(sources []asm.Source) error {
	for _, src := range sources {
		s.Units = append(s.Units, asm.Assemble(src.File, src.Text, s.Diags, s.Config.BareMachine))
	}
	return s.Diags.Error()
}

// Link resolves the assembled units into a runnable program. The pipeline
// refuses to link when assembly left errors behind.
func (s *Session) Link() error {
	if s.Diags.HasErrors() {
		return s.Diags.Error()
	}
	if len(s.Units) == 0 {
		return fmt.Errorf("nothing to link")
	}
	s.Program = link.New(s.Config.EntrySymbol).Link(s.Units, s.Diags)
	if s.Program == nil {
		return s.Diags.Error()
	}
	return nil
}

// NewSimulator wires a driver around the linked program, applying the
// session's cache and protection configuration. cacheSeed pins the RAND
// replacement stream; hosts that don't care pass 0.
func (s *Session) NewSimulator(console vm.Console, fs vm.FileSystem, clock vm.Clock, cacheSeed uint64) (*vm.Simulator, error) {
	if s.Program == nil {
		return nil, fmt.Errorf("program is not linked")
	}
	cacheCfg := s.Config.Cache.ToVM()
	if err := cacheCfg.Validate(); err != nil {
		return nil, err
	}
	s.Program.Mem.SetSelfModifying(s.Config.SelfModifying)
	s.Program.Mem.AttachCache(vm.NewCache(cacheCfg, cacheSeed))
	return vm.NewSimulator(s.Program, s.Config.HistorySize, console, fs, clock), nil
}

// DumpCode writes the built machine words, one 8-hex-digit word per line.
// When more than one unit was linked, each unit's block is preceded by a
// `<path>:` line.
func (s *Session) DumpCode(w io.Writer) error {
	if s.Program == nil {
		return fmt.Errorf("program is not linked")
	}
	multi := len(s.Program.Units) > 1
	for _, u := range s.Program.Units {
		if multi {
			if _, err := fmt.Fprintf(w, "%s:\n", u.File); err != nil {
				return err
			}
		}
		for _, word := range u.Words {
			if _, err := fmt.Fprintf(w, "%08x\n", word); err != nil {
				return err
			}
		}
	}
	return nil
}
