// Package parser extracts declaration outlines from Ruby sources and ERB
// templates.
//
// The parser works line by line. It tracks the keywords that open a body
// closed by end, so it can attribute methods to the class or module that
// encloses them, but it does not build a syntax tree and never evaluates
// code.
//
// # Basic Usage
//
//	p := parser.New()
//	result, err := p.ParseFile("/path/to/app/models/user.rb")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	for _, decl := range result.Declarations {
//	    fmt.Printf("%s %s\n", decl.Kind, decl.Name)
//	}
//
// # Recognized Constructs
//
//   - class, module and class << self bodies, including qualified names
//     such as Foo::Bar and constant superclasses
//   - def, def self., endless and one-line definitions with their parameters
//   - include, prepend and extend with constant arguments
//   - attr_reader, attr_writer and attr_accessor
//   - private, protected, public and module_function, both as sections and
//     applied to named or inline definitions
//   - comment blocks directly above a declaration
//
// String and percent literals, heredoc bodies and =begin/=end blocks are
// skipped so keywords inside them do not affect nesting.
//
// # ERB Templates
//
// Files ending in .erb are first reduced to their embedded code with
// erb.Scan. Lines and columns in the result therefore point into the
// original template.
//
// # Error Handling
//
// Unbalanced end keywords and unterminated template tags are recorded in
// ParseResult.Errors. The declarations found so far are still returned.
package parser
