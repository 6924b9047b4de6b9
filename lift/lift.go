// Package lift converts simple line-oriented coverage logs into traces.
//
// Three line grammars are understood:
//
//	boombox+3a06        module name and hex offset
//	0x14000419c         hex absolute address
//	14000419c 24        hex absolute address and decimal hit count
//
// Module names and bases come from name@hexbase definitions. Absolute
// addresses are resolved against those bases, each module extending up to
// the next higher base. Every lifted block has size 1.
package lift

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/redthing1/covtool/canon"
	"github.com/redthing1/covtool/errs"
	"github.com/redthing1/covtool/format"
	"github.com/redthing1/covtool/resolve"
	"github.com/redthing1/covtool/trace"
)

// ModuleDef names a module and its load base.
type ModuleDef struct {
	Name string
	Base uint64
}

func (d ModuleDef) String() string {
	return fmt.Sprintf("%s@0x%x", d.Name, d.Base)
}

// ParseModuleDefs parses name@hexbase definitions. A bare name gets base 0.
// Redefining a name updates its base and keeps its original position.
func ParseModuleDefs(defs []string) ([]ModuleDef, error) {
	out := make([]ModuleDef, 0, len(defs))
	pos := make(map[string]int, len(defs))

	for _, def := range defs {
		name, baseText, hasBase := strings.Cut(strings.TrimSpace(def), "@")
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("%w: module definition %q has no name", errs.ErrMalformedLine, def)
		}

		var base uint64
		if hasBase {
			v, err := parseHex(strings.TrimSpace(baseText))
			if err != nil {
				return nil, fmt.Errorf("%w: module definition %q: invalid base", errs.ErrMalformedLine, def)
			}
			base = v
		}

		if i, seen := pos[name]; seen {
			out[i].Base = base
			continue
		}
		pos[name] = len(out)
		out = append(out, ModuleDef{Name: name, Base: base})
	}

	return out, nil
}

// Diagnostic is a skipped input line.
type Diagnostic struct {
	Line int
	Text string
	Err  error
}

func (d Diagnostic) Error() string {
	return fmt.Sprintf("line %d %q: %v", d.Line, d.Text, d.Err)
}

func (d Diagnostic) Unwrap() error {
	return d.Err
}

// Result is a lifted trace plus the lines that could not be lifted.
type Result struct {
	Trace       *trace.Trace
	Diagnostics []Diagnostic
}

// record is one parsed line.
type record struct {
	module  int
	offset  uint32
	hits    uint32
	counted bool
}

type location struct {
	module int
	offset uint32
}

// Lift reads one record per line from r. Blank lines and lines starting
// with '#' are ignored.
//
// Returns:
//   - *Result: the lifted trace and per-line diagnostics
//   - error: ErrModuleNotFound without module definitions, ErrTooManyModules,
//     ErrMixedHitCountPresence when counted and uncounted lines are mixed,
//     or a read error
func Lift(r io.Reader, mods []ModuleDef, opts ...Option) (*Result, error) {
	cfg, err := newConfig(opts...)
	if err != nil {
		return nil, err
	}
	if len(mods) == 0 {
		return nil, fmt.Errorf("%w: no module definitions", errs.ErrModuleNotFound)
	}
	if len(mods) > math.MaxUint16+1 {
		return nil, fmt.Errorf("%w: %d module definitions", errs.ErrTooManyModules, len(mods))
	}

	l := newLifter(mods, cfg.grammar)

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), maxLineBytes)
	for sc.Scan() {
		if err := l.line(sc.Text()); err != nil {
			return nil, err
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read lift input: %w", err)
	}

	t, err := l.build(cfg.flavor)
	if err != nil {
		return nil, err
	}

	return &Result{Trace: t, Diagnostics: l.diags}, nil
}

type lifter struct {
	mods     []ModuleDef
	byName   map[string]int
	resolver *resolve.Resolver
	grammar  format.Grammar

	lineNo  int
	counted int // first line with a hit count
	plain   int // first line without one

	order []location
	seen  map[location]int // location → index into order/hits
	hits  []uint32
	diags []Diagnostic
}

func newLifter(mods []ModuleDef, g format.Grammar) *lifter {
	l := &lifter{
		mods:     mods,
		byName:   make(map[string]int, len(mods)),
		resolver: resolve.New(spans(mods)),
		grammar:  g,
		seen:     make(map[location]int),
	}
	for i, m := range mods {
		if _, dup := l.byName[m.Name]; !dup {
			l.byName[m.Name] = i
		}
	}

	return l
}

// spans gives each definition the range [base, next higher base).
func spans(mods []ModuleDef) []trace.Module {
	bases := make([]uint64, 0, len(mods))
	for _, m := range mods {
		bases = append(bases, m.Base)
	}
	slices.Sort(bases)
	bases = slices.Compact(bases)

	out := make([]trace.Module, len(mods))
	for i, m := range mods {
		end := uint64(math.MaxUint64)
		k, _ := slices.BinarySearch(bases, m.Base)
		if k+1 < len(bases) {
			end = bases[k+1]
		}
		out[i] = trace.Module{ID: uint16(i), Base: m.Base, End: end, Path: m.Name, ContainingID: trace.NoContainingID} //nolint: gosec
	}

	return out
}

func (l *lifter) line(raw string) error {
	l.lineNo++
	text := strings.TrimSpace(raw)
	if text == "" || strings.HasPrefix(text, "#") {
		return nil
	}

	g := classify(text)
	if l.grammar != format.GrammarAuto && g != l.grammar {
		l.diag(text, fmt.Errorf("%w: expected %s grammar", errs.ErrMalformedLine, l.grammar))
		return nil
	}

	var (
		rec record
		err error
	)
	switch g {
	case format.GrammarModuleOffset:
		rec, err = l.moduleOffset(text)
	case format.GrammarAddress:
		rec, err = l.address(text)
	case format.GrammarAddressHits:
		rec, err = l.addressHits(text)
	default:
		err = errs.ErrMalformedLine
	}
	if err != nil {
		l.diag(text, err)
		return nil
	}

	if rec.counted {
		if l.counted == 0 {
			l.counted = l.lineNo
		}
	} else if l.plain == 0 {
		l.plain = l.lineNo
	}
	if l.counted != 0 && l.plain != 0 {
		return fmt.Errorf("%w: line %d has a hit count, line %d does not",
			errs.ErrMixedHitCountPresence, l.counted, l.plain)
	}

	l.add(rec)

	return nil
}

func (l *lifter) diag(text string, err error) {
	l.diags = append(l.diags, Diagnostic{Line: l.lineNo, Text: text, Err: err})
}

func (l *lifter) add(rec record) {
	loc := location{module: rec.module, offset: rec.offset}
	if i, ok := l.seen[loc]; ok {
		l.hits[i] = canon.SaturatingAdd(l.hits[i], rec.hits)
		return
	}

	l.seen[loc] = len(l.order)
	l.order = append(l.order, loc)
	l.hits = append(l.hits, rec.hits)
}

func (l *lifter) moduleOffset(text string) (record, error) {
	i := strings.LastIndexByte(text, '+')
	name, offText := text[:i], text[i+1:]

	m, ok := l.byName[name]
	if !ok {
		return record{}, fmt.Errorf("%w: unknown module %q", errs.ErrUnresolvedAddress, name)
	}
	off, err := parseHex(offText)
	if err != nil {
		return record{}, fmt.Errorf("%w: invalid offset %q", errs.ErrMalformedLine, offText)
	}
	if off > math.MaxUint32 {
		return record{}, fmt.Errorf("%w: offset 0x%x exceeds 32 bits", errs.ErrUnresolvedAddress, off)
	}
	if l.mods[m].Base > math.MaxUint64-off {
		return record{}, fmt.Errorf("%w: %s+0x%x", errs.ErrAddressOverflow, name, off)
	}

	return record{module: m, offset: uint32(off), hits: 1}, nil
}

func (l *lifter) address(text string) (record, error) {
	addr, err := parseHex(text)
	if err != nil {
		return record{}, fmt.Errorf("%w: invalid address %q", errs.ErrMalformedLine, text)
	}

	return l.resolve(addr, 1, false)
}

func (l *lifter) addressHits(text string) (record, error) {
	fields := strings.Fields(text)
	addr, err := parseHex(fields[0])
	if err != nil {
		return record{}, fmt.Errorf("%w: invalid address %q", errs.ErrMalformedLine, fields[0])
	}
	hits, err := strconv.ParseUint(fields[1], 10, 32)
	if err != nil {
		return record{}, fmt.Errorf("%w: invalid hit count %q", errs.ErrMalformedLine, fields[1])
	}

	return l.resolve(addr, uint32(hits), true)
}

func (l *lifter) resolve(addr uint64, hits uint32, counted bool) (record, error) {
	res, ok := l.resolver.Resolve(addr)
	if !ok {
		return record{}, fmt.Errorf("%w: 0x%x is below every module base", errs.ErrUnresolvedAddress, addr)
	}
	if res.Offset > math.MaxUint32 {
		return record{}, fmt.Errorf("%w: 0x%x is 0x%x past %s",
			errs.ErrUnresolvedAddress, addr, res.Offset, l.mods[res.ModuleID].Name)
	}

	return record{module: int(res.ModuleID), offset: uint32(res.Offset), hits: hits, counted: counted}, nil
}

// build emits modules in definition order. Each module ends one byte past
// its highest lifted offset.
func (l *lifter) build(flavor string) (*trace.Trace, error) {
	maxOff := make([]int64, len(l.mods))
	for i := range maxOff {
		maxOff[i] = -1
	}
	for _, loc := range l.order {
		maxOff[loc.module] = max(maxOff[loc.module], int64(loc.offset))
	}

	b := trace.NewBuilder().SetFlavor(flavor)
	for i, m := range l.mods {
		end := m.Base
		if maxOff[i] >= 0 {
			end = m.Base + uint64(maxOff[i])
			if end < math.MaxUint64 {
				end++
			}
		}
		b.AddModule(m.Name, m.Base, end)
	}

	// only "address hitcount" lines carry counts; repeats without one collapse
	withHits := l.counted != 0
	for i, loc := range l.order {
		if withHits {
			b.AddBlockWithHits(uint16(loc.module), loc.offset, 1, l.hits[i]) //nolint: gosec
		} else {
			b.AddBlock(uint16(loc.module), loc.offset, 1) //nolint: gosec
		}
	}

	return b.Build()
}

// classify guesses the grammar of a single trimmed, non-empty line.
func classify(text string) format.Grammar {
	if i := strings.LastIndexByte(text, '+'); i > 0 && i < len(text)-1 && !strings.ContainsAny(text, " \t") {
		return format.GrammarModuleOffset
	}

	switch fields := strings.Fields(text); {
	case len(fields) == 1 && isHexToken(fields[0]):
		return format.GrammarAddress
	case len(fields) == 2 && isHexToken(fields[0]) && isDecimal(fields[1]):
		return format.GrammarAddressHits
	default:
		return format.GrammarAuto
	}
}

// DetectGrammar returns the grammar of the first classifiable line among the
// first ten non-empty, non-comment lines.
func DetectGrammar(lines []string) (format.Grammar, bool) {
	checked := 0
	for _, raw := range lines {
		text := strings.TrimSpace(raw)
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		if g := classify(text); g != format.GrammarAuto {
			return g, true
		}
		if checked++; checked >= 10 {
			break
		}
	}

	return format.GrammarAuto, false
}

func parseHex(s string) (uint64, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if s == "" {
		return 0, strconv.ErrSyntax
	}

	return strconv.ParseUint(s, 16, 64)
}

func isHexToken(s string) bool {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !('0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F') {
			return false
		}
	}

	return true
}

func isDecimal(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}

	return true
}
