package asm

// A SourceMap records, for every line of the expanded source text, the
// file and line it originally came from. The include expander appends
// one entry per output line as a side effect of expansion.
type SourceMap struct {
	lines []SourceLine
}

// A SourceLine is a single mapping from an expanded line to its
// original location.
type SourceLine struct {
	File string // original file path
	Line int    // 1-based line within File
}

// NewSourceMap creates an empty source map.
func NewSourceMap() *SourceMap {
	return &SourceMap{}
}

// Add appends a mapping for the next expanded output line.
func (m *SourceMap) Add(file string, line int) {
	m.lines = append(m.lines, SourceLine{File: file, Line: line})
}

// Len returns the number of expanded lines mapped so far.
func (m *SourceMap) Len() int {
	return len(m.lines)
}

// Lookup returns the original location of the 1-based expanded line.
// An out-of-range line is returned unchanged with an empty file name.
func (m *SourceMap) Lookup(line int) (string, int) {
	if line < 1 || line > len(m.lines) {
		return "", line
	}
	entry := m.lines[line-1]
	return entry.File, entry.Line
}
