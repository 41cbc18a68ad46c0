// Package asm implements Jupiter's two-pass RISC-V assembler:
// lexing, directive/statement parsing, pseudo-instruction expansion, local
// symbol collection, and relocation recording. Its output is a
// TranslationUnit the linker consumes.
package asm

import "fmt"

// DebugInfo locates a diagnostic or a statement in its originating
// source, carried through to the linker and the simulator for error
// reporting.
type DebugInfo struct {
	File   string
	Line   int
	Source string
}

func (d DebugInfo) String() string {
	if d.File == "" {
		return ""
	}
	return fmt.Sprintf("%s:%d: %s", d.File, d.Line, d.Source)
}

// Severity distinguishes a warning (ignorable unless extrict mode is on)
// from an error (always aborts the pipeline between phases).
type Severity int

const (
	SeverityWarning Severity = iota
	SeverityError
)

// Kind classifies an assembler or linker diagnostic.
type Kind int

const (
	KindLex Kind = iota
	KindParse
	KindSemantic
	KindLink
)

func (k Kind) String() string {
	switch k {
	case KindLex:
		return "lex error"
	case KindParse:
		return "parse error"
	case KindSemantic:
		return "semantic error"
	case KindLink:
		return "link error"
	default:
		return "error"
	}
}

// Diagnostic is one collected problem, with enough context to render a
// compiler-style message.
type Diagnostic struct {
	Kind     Kind
	Severity Severity
	Message  string
	Debug    DebugInfo
}

func (d Diagnostic) Error() string {
	loc := d.Debug.String()
	if loc == "" {
		return fmt.Sprintf("%s: %s", d.Kind, d.Message)
	}
	return fmt.Sprintf("%s: %s: %s", loc, d.Kind, d.Message)
}

// Diagnostics accumulates every problem found during a phase, so a build
// reports them all instead of stopping at the first. Extrict mode promotes
// every warning to an error at HasErrors-check time.
type Diagnostics struct {
	Extrict bool
	entries []Diagnostic
}

func (d *Diagnostics) add(kind Kind, sev Severity, dbg DebugInfo, format string, args ...any) {
	d.entries = append(d.entries, Diagnostic{
		Kind:     kind,
		Severity: sev,
		Message:  fmt.Sprintf(format, args...),
		Debug:    dbg,
	})
}

func (d *Diagnostics) Errorf(kind Kind, dbg DebugInfo, format string, args ...any) {
	d.add(kind, SeverityError, dbg, format, args...)
}

func (d *Diagnostics) Warnf(kind Kind, dbg DebugInfo, format string, args ...any) {
	d.add(kind, SeverityWarning, dbg, format, args...)
}

// Entries returns every collected diagnostic, in the order encountered.
func (d *Diagnostics) Entries() []Diagnostic { return d.entries }

// HasErrors reports whether any entry is an error, or — under extrict mode
// — whether any entry (including warnings) exists at all.
func (d *Diagnostics) HasErrors() bool {
	for _, e := range d.entries {
		if e.Severity == SeverityError {
			return true
		}
		if d.Extrict && e.Severity == SeverityWarning {
			return true
		}
	}
	return false
}

// Error renders every collected diagnostic as a single multi-line error, or
// nil if HasErrors is false.
func (d *Diagnostics) Error() error {
	if !d.HasErrors() {
		return nil
	}
	msg := ""
	for i, e := range d.entries {
		if i > 0 {
			msg += "\n"
		}
		msg += e.Error()
	}
	return fmt.Errorf("%s", msg)
}
