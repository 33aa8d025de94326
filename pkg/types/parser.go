package types

// ParseResult represents the output of parsing one source file
type ParseResult struct {
	// Top-level declarations in source order
	Declarations []Declaration

	// Errors encountered during parsing
	Errors []ParseError
}

// ParseError represents an error that occurred during parsing
type ParseError struct {
	File    string
	Line    int
	Column  int
	Message string
}

// Error implements the error interface
func (pe *ParseError) Error() string {
	return pe.Message
}

// HasErrors returns true if any parsing errors occurred
func (pr *ParseResult) HasErrors() bool {
	return len(pr.Errors) > 0
}

// AddError adds a parsing error to the result
func (pr *ParseResult) AddError(file string, line, col int, msg string) {
	pr.Errors = append(pr.Errors, ParseError{
		File:    file,
		Line:    line,
		Column:  col,
		Message: msg,
	})
}

// CountDeclarations returns the number of nodes in the tree, members included
func (pr *ParseResult) CountDeclarations() int {
	var count func(decls []Declaration) int
	count = func(decls []Declaration) int {
		n := len(decls)
		for i := range decls {
			n += count(decls[i].Members)
		}
		return n
	}
	return count(pr.Declarations)
}
