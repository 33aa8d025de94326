package types

import "errors"

// Location is a half-open text range inside a file.
// Lines are 1-based, columns are 0-based.
type Location struct {
	StartLine   int `json:"start_line"`
	EndLine     int `json:"end_line"`
	StartColumn int `json:"start_column"`
	EndColumn   int `json:"end_column"`
}

// NewLocation creates a Location from its four coordinates
func NewLocation(startLine, endLine, startCol, endCol int) Location {
	return Location{
		StartLine:   startLine,
		EndLine:     endLine,
		StartColumn: startCol,
		EndColumn:   endCol,
	}
}

// Validate checks that the range is well formed
func (l Location) Validate() error {
	if l.StartLine <= 0 || l.EndLine <= 0 {
		return errors.New("invalid location: line numbers must be positive")
	}

	if l.StartColumn < 0 || l.EndColumn < 0 {
		return errors.New("invalid location: columns must not be negative")
	}

	if l.StartLine > l.EndLine {
		return errors.New("invalid location: start line must be before or equal to end line")
	}

	if l.StartLine == l.EndLine && l.StartColumn > l.EndColumn {
		return errors.New("invalid location: start column must be before or equal to end column")
	}

	return nil
}

// Contains reports whether the given line and column fall inside the range
func (l Location) Contains(line, col int) bool {
	if line < l.StartLine || line > l.EndLine {
		return false
	}
	if line == l.StartLine && col < l.StartColumn {
		return false
	}
	if line == l.EndLine && col >= l.EndColumn {
		return false
	}
	return true
}
