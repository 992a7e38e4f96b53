// Copyright 2025 the NB65C02 authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asm

import "fmt"

// An Error describes a failure encountered while lexing, expanding or
// assembling source code. File and Line refer to the original source
// location recovered through the source map, not the expanded text.
type Error struct {
	Message string
	File    string
	Line    int // 1-based original line
	Col     int // 1-based column
}

func (e *Error) Error() string {
	if e.File != "" {
		return fmt.Sprintf("%s(%d,%d): %s", e.File, e.Line, e.Col, e.Message)
	}
	return fmt.Sprintf("%d:%d: %s", e.Line, e.Col, e.Message)
}

// errorAt builds an Error for a token location, mapping the expanded
// line back through the source map when one is available.
func errorAt(sm *SourceMap, file string, line, col int, format string, args ...any) *Error {
	if sm != nil {
		if f, l := sm.Lookup(line); f != "" {
			file, line = f, l
		}
	}
	return &Error{
		Message: fmt.Sprintf(format, args...),
		File:    file,
		Line:    line,
		Col:     col,
	}
}
