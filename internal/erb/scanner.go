// Package erb extracts the embedded code of ERB templates.
//
// Scan produces two projections of a template: Code holds only the embedded
// code and Literal only the surrounding markup. Every other character is
// replaced by a space, and line breaks are copied into both, so a line and
// column in either projection addresses the same character in the original
// template. Lengths are counted in characters, not bytes.
package erb

import (
	"strings"
	"unicode/utf8"
)

// Result is the outcome of scanning one template
type Result struct {
	Code    string
	Literal string

	// Unterminated is set when the template ends inside a code tag
	Unterminated bool
}

// Scanner is a single pass lexer over one template
type Scanner struct {
	src      []rune
	pos      int
	inCode   bool
	code     strings.Builder
	literal  strings.Builder
	finished bool
}

// NewScanner creates a scanner for src
func NewScanner(src string) *Scanner {
	s := &Scanner{src: []rune(src)}
	s.code.Grow(len(src))
	s.literal.Grow(len(src))
	return s
}

// Scan projects src. It never fails: a code tag left open at the end of the
// input turns the rest of the template into code.
func Scan(src string) Result {
	return NewScanner(src).Scan()
}

// Scan runs the scanner to the end of its input. Calling it again returns
// the same result.
func (s *Scanner) Scan() Result {
	if !s.finished {
		for s.pos < len(s.src) {
			s.step()
		}
		s.finished = true
	}
	return Result{
		Code:         s.code.String(),
		Literal:      s.literal.String(),
		Unterminated: s.inCode,
	}
}

func (s *Scanner) step() {
	c := s.src[s.pos]
	switch {
	case c == '<' && s.peek(1) == '%':
		s.inCode = true
		s.pad(2)
		switch {
		case s.peek(0) == '=' && s.peek(1) == '=':
			s.pad(2)
		case s.peek(0) == '=' || s.peek(0) == '-':
			s.pad(1)
		}
	case c == '-' && s.inCode && s.peek(1) == '%' && s.peek(2) == '>':
		s.pad(3)
		s.inCode = false
	case c == '%' && s.inCode && s.peek(1) == '>':
		s.pad(2)
		s.inCode = false
	case c == '\r':
		s.newline(c)
		if s.peek(0) == '\n' {
			s.newline('\n')
		}
	case c == '\n':
		s.newline(c)
	default:
		s.emit(c)
	}
}

// peek returns the rune at offset from the current position, or 0 past
// the end of input
func (s *Scanner) peek(offset int) rune {
	if i := s.pos + offset; i < len(s.src) {
		return s.src[i]
	}
	return 0
}

// pad consumes n delimiter characters, writing a space for each to both
// projections
func (s *Scanner) pad(n int) {
	for i := 0; i < n && s.pos < len(s.src); i++ {
		s.code.WriteByte(' ')
		s.literal.WriteByte(' ')
		s.pos++
	}
}

func (s *Scanner) newline(c rune) {
	s.code.WriteRune(c)
	s.literal.WriteRune(c)
	s.pos++
}

func (s *Scanner) emit(c rune) {
	if s.inCode {
		s.code.WriteRune(c)
		s.literal.WriteByte(' ')
	} else {
		s.code.WriteByte(' ')
		s.literal.WriteRune(c)
	}
	s.pos++
}

// Len returns the length of text in characters, the unit both projections
// are measured in.
func Len(text string) int {
	return utf8.RuneCountInString(text)
}
