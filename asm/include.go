// Copyright 2025 the NB65C02 authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asm

import (
	"os"
	"path/filepath"
	"strings"
)

// ExpandIncludes reads the file at path and returns its text with every
// `.include "file"` line replaced by the contents of the referenced
// file, recursively. Include paths resolve relative to the directory of
// the including file. The returned source map carries one entry per
// output line so later errors can be reported against original
// locations.
//
// The caller may pass a pre-populated source map when concatenating
// multiple top-level files; entries are appended to it. A nil map
// allocates a fresh one.
func ExpandIncludes(path string, sm *SourceMap) (string, *SourceMap, error) {
	if sm == nil {
		sm = NewSourceMap()
	}

	var out strings.Builder
	inflight := make(map[string]bool)
	if err := expandFile(path, sm, inflight, &out); err != nil {
		return "", sm, err
	}
	return out.String(), sm, nil
}

// ExpandSource expands include directives within already-loaded source
// text. The file name is used for source map entries and to resolve
// relative include paths.
func ExpandSource(src, file string, sm *SourceMap) (string, *SourceMap, error) {
	if sm == nil {
		sm = NewSourceMap()
	}

	var out strings.Builder
	inflight := make(map[string]bool)
	if abs, err := filepath.Abs(file); err == nil {
		inflight[abs] = true
	}
	if err := expandText(src, file, sm, inflight, &out); err != nil {
		return "", sm, err
	}
	return out.String(), sm, nil
}

func expandFile(path string, sm *SourceMap, inflight map[string]bool, out *strings.Builder) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	if inflight[abs] {
		return &Error{Message: "Circular .include: " + path, File: path, Line: 1, Col: 1}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return &Error{Message: "unable to open '" + path + "'", File: path, Line: 1, Col: 1}
	}

	inflight[abs] = true
	defer delete(inflight, abs)

	return expandText(string(data), path, sm, inflight, out)
}

func expandText(src, file string, sm *SourceMap, inflight map[string]bool, out *strings.Builder) error {
	lines := strings.Split(src, "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}

	for i, line := range lines {
		target, ok, err := parseIncludeLine(line)
		if err != nil {
			return &Error{Message: err.Error(), File: file, Line: i + 1, Col: 1}
		}
		if !ok {
			out.WriteString(line)
			out.WriteByte('\n')
			sm.Add(file, i+1)
			continue
		}

		inc := filepath.Join(filepath.Dir(file), target)
		if err := expandFile(inc, sm, inflight, out); err != nil {
			return err
		}
	}
	return nil
}

// includeError is a plain-string error used internally by the include
// line parser before location information is attached.
type includeError string

func (e includeError) Error() string { return string(e) }

// parseIncludeLine reports whether the line is a `.include "path"`
// directive, allowing leading whitespace and an optional trailing
// comment, and returns the include path.
func parseIncludeLine(line string) (string, bool, error) {
	s := strings.TrimLeft(line, " \t")
	const directive = ".include"
	if len(s) < len(directive) || !strings.EqualFold(s[:len(directive)], directive) {
		return "", false, nil
	}
	s = s[len(directive):]
	if s == "" || (s[0] != ' ' && s[0] != '\t') {
		return "", false, nil
	}

	s = strings.TrimLeft(s, " \t")
	if s == "" || s[0] != '"' {
		return "", true, includeError("invalid .include: expected quoted path")
	}
	end := strings.IndexByte(s[1:], '"')
	if end < 0 {
		return "", true, includeError("invalid .include: unterminated path")
	}
	target := s[1 : 1+end]

	rest := strings.TrimLeft(s[end+2:], " \t\r")
	if rest != "" && rest[0] != ';' {
		return "", true, includeError("invalid .include: unexpected trailing text")
	}
	if target == "" {
		return "", true, includeError("invalid .include: empty path")
	}
	return target, true, nil
}
