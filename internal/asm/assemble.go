package asm

// Assemble runs one file's source through the lexer and parser, returning
// its TranslationUnit. Diagnostics are accumulated into diag rather than
// returned, so callers can keep assembling subsequent files after one
// fails and report every problem at once.
func Assemble(file, src string, diag *Diagnostics, bareMachine bool) *TranslationUnit {
	p := NewParser(file, src, diag, bareMachine)
	return p.Parse()
}

// Source pairs a file name with its text, the input shape AssembleAll
// takes for a whole program's worth of translation units.
type Source struct {
	File string
	Text string
}

// AssembleAll assembles every source in order, collecting diagnostics from
// all of them before the caller decides whether to proceed to linking.
func AssembleAll(sources []Source, extrict, bareMachine bool) ([]*TranslationUnit, *Diagnostics) {
	diag := &Diagnostics{Extrict: extrict}
	units := make([]*TranslationUnit, 0, len(sources))
	for _, s := range sources {
		units = append(units, Assemble(s.File, s.Text, diag, bareMachine))
	}
	return units, diag
}
