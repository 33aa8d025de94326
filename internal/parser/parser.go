package parser

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/swanson/ruby-lsp/internal/erb"
	"github.com/swanson/ruby-lsp/pkg/types"
)

var (
	reClass       = regexp.MustCompile(`^class\s+((?:::)?[A-Z]\w*(?:::[A-Z]\w*)*)\s*(.*)$`)
	reSingleton   = regexp.MustCompile(`^class\s*<<\s*(\S+)`)
	reModule      = regexp.MustCompile(`^module\s+((?:::)?[A-Z]\w*(?:::[A-Z]\w*)*)`)
	reConstant    = regexp.MustCompile(`^(?:::)?[A-Z]\w*(?:::[A-Z]\w*)*$`)
	reDef         = regexp.MustCompile(`^def\s+(?:(\w+|[A-Z][\w:]*)\s*\.\s*)?([A-Za-z_]\w*[?!=]?|\[\]=?|===?|=~|<=>|<=|>=|<<|>>|!=|!~|\*\*|[+\-]@|[+\-*/%<>!~^&|])`)
	reMixin       = regexp.MustCompile(`^(include|prepend|extend)\s*\(?\s*(.+?)\)?$`)
	reAttr        = regexp.MustCompile(`^attr_(reader|writer|accessor)\s*\(?\s*(.*?)\)?$`)
	reVisibility  = regexp.MustCompile(`^(private|protected|public|module_function)(\s*\(\s*|\s+|$)(.*)$`)
	reClassMethod = regexp.MustCompile(`^(private|public)_class_method\s*\(?\s*(.*?)\)?$`)
	reSymbol      = regexp.MustCompile(`:(\w+[?!=]?)`)
	reBlockStart  = regexp.MustCompile(`^(if|unless|while|until|case|begin|for)\b`)
	reBlockValue  = regexp.MustCompile(`[=(,]\s*(if|unless|case|begin|while|until)\b`)
	reDo          = regexp.MustCompile(`\bdo(\s*\|[^|]*\|)?$`)
	reEnd         = regexp.MustCompile(`^end(?:$|[\s.)\],])`)
	reTrailingEnd = regexp.MustCompile(`[\s)}\]]end$`)
)

// Extensions lists the file extensions the parser understands
var Extensions = []string{".rb", ".rake", ".gemspec", ".ru", ".erb"}

// fileNames are extensionless files holding Ruby code
var fileNames = []string{"Gemfile", "Rakefile", "Guardfile"}

// Supported reports whether path is a file the parser can outline
func Supported(path string) bool {
	base := filepath.Base(path)
	if slices.Contains(fileNames, base) {
		return true
	}
	return slices.Contains(Extensions, filepath.Ext(base))
}

// Parser extracts declaration outlines from Ruby sources and ERB templates.
// It recognizes namespaces, methods, mixins, attribute macros and
// visibility sections line by line; it does not build a full syntax tree.
type Parser struct{}

// New creates a new Parser instance
func New() *Parser {
	return &Parser{}
}

// ParseFile reads and outlines a source file. Templates are reduced to
// their embedded code first, so positions still refer to the template.
func (p *Parser) ParseFile(filePath string) (*types.ParseResult, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return p.Parse(filePath, content), nil
}

// Parse outlines src. Syntax problems are recorded in the result's Errors
// and never abort parsing.
func (p *Parser) Parse(filePath string, src []byte) *types.ParseResult {
	text := string(src)
	if filepath.Ext(filePath) == ".erb" {
		scanned := erb.Scan(text)
		text = scanned.Code
		if scanned.Unterminated {
			result := p.parseCode(filePath, text)
			result.AddError(filePath, strings.Count(text, "\n")+1, 0, "unterminated ERB tag")
			return result
		}
	}
	return p.parseCode(filePath, text)
}

type frameKind int

const (
	frameRoot frameKind = iota
	frameNamespace
	frameSingleton
	frameMethod
	frameBlock
)

// node is a declaration under construction
type node struct {
	decl     types.Declaration
	children []*node
}

type frame struct {
	kind           frameKind
	node           *node
	twin           *node // singleton copy made by module_function
	visibility     types.Visibility
	moduleFunction bool
}

type outliner struct {
	file     string
	result   *types.ParseResult
	root     *node
	stack    []*frame
	comments []string
	lastLine int
	lastLen  int
}

func (p *Parser) parseCode(filePath, text string) *types.ParseResult {
	o := &outliner{
		file:   filePath,
		result: &types.ParseResult{},
		root:   &node{},
	}
	o.stack = []*frame{{kind: frameRoot, node: o.root}}

	lines := strings.Split(text, "\n")
	o.lastLine = len(lines)
	o.lastLen = len(lines[len(lines)-1])

	for _, l := range splitLines(text) {
		switch {
		case l.blank:
			o.comments = nil
		case l.comment != "" || l.code == "":
			if isMagicComment(l.comment) {
				continue
			}
			o.comments = append(o.comments, l.comment)
		default:
			for _, st := range statements(l.code) {
				o.statement(st, l.line)
			}
		}
	}

	for len(o.stack) > 1 {
		f := o.stack[len(o.stack)-1]
		if f.node != nil {
			o.result.AddError(filePath, f.node.decl.Location.StartLine, f.node.decl.Location.StartColumn,
				fmt.Sprintf("missing 'end' for %s %s", f.node.decl.Kind, f.node.decl.Name))
		} else {
			o.result.AddError(filePath, o.lastLine, 0, "missing 'end' for block")
		}
		o.pop(o.lastLine, o.lastLen)
	}

	o.result.Declarations = materialize(o.root.children)
	return o.result
}

func isMagicComment(c string) bool {
	for _, prefix := range []string{"frozen_string_literal:", "typed:", "encoding:", "rubocop:"} {
		if strings.HasPrefix(c, prefix) {
			return true
		}
	}
	return false
}

func (o *outliner) statement(st statement, line int) {
	text := st.text
	comments := o.comments
	o.comments = nil

	switch {
	case reEnd.MatchString(text):
		o.end(line, st.column)
		return
	case strings.HasPrefix(text, "class"):
		if m := reSingleton.FindStringSubmatch(text); m != nil {
			o.openSingleton(m[1], line, st.column, comments)
			return
		}
		if m := reClass.FindStringSubmatch(text); m != nil {
			superclass, rest := parseSuperclass(m[2])
			o.openNamespace(types.DeclClass, m[1], superclass, line, st.column, comments)
			o.trailing(rest)
			return
		}
	case strings.HasPrefix(text, "module"):
		if m := reModule.FindStringSubmatch(text); m != nil {
			o.openNamespace(types.DeclModule, m[1], "", line, st.column, comments)
			return
		}
	case strings.HasPrefix(text, "def"):
		if reDef.MatchString(text) {
			o.def(text, "", line, st.column, comments)
			return
		}
	}

	if m := reVisibility.FindStringSubmatchIndex(text); m != nil {
		keyword, args := text[m[2]:m[3]], text[m[6]:m[7]]
		if strings.Contains(text[m[4]:m[5]], "(") {
			args = strings.TrimSuffix(strings.TrimSpace(args), ")")
		}
		o.visibility(keyword, args, line, st.column+m[6], comments)
		return
	}
	if m := reClassMethod.FindStringSubmatch(text); m != nil {
		o.classMethodVisibility(types.Visibility(m[1]), m[2])
		return
	}
	if m := reMixin.FindStringSubmatch(text); m != nil {
		o.mixin(types.MixinKind(m[1]), m[2])
		return
	}
	if m := reAttr.FindStringSubmatch(text); m != nil {
		o.attr(m[1], m[2], "", line, st.column, len(text), comments)
		return
	}

	o.block(text, line, st.column)
}

// parseSuperclass splits the text after a class name into a constant
// superclass and whatever follows it on the line
func parseSuperclass(rest string) (superclass, trailing string) {
	rest = strings.TrimSpace(rest)
	if !strings.HasPrefix(rest, "<") || strings.HasPrefix(rest, "<<") {
		return "", rest
	}
	rest = strings.TrimSpace(rest[1:])
	if reConstant.MatchString(rest) {
		return rest, ""
	}
	return "", rest
}

// trailing handles a block opened after a non-constant superclass, such
// as "class Foo < Struct.new(:a) do"
func (o *outliner) trailing(rest string) {
	if rest != "" && reDo.MatchString(rest) {
		o.push(&frame{kind: frameBlock})
	}
}

// container returns the frame new declarations are added to, or nil when
// the innermost definition is a method body
func (o *outliner) container() *frame {
	for i := len(o.stack) - 1; i >= 0; i-- {
		switch f := o.stack[i]; f.kind {
		case frameBlock:
			continue
		case frameMethod:
			return nil
		default:
			return f
		}
	}
	return nil
}

func (o *outliner) push(f *frame) {
	o.stack = append(o.stack, f)
}

func (o *outliner) add(decl types.Declaration) *node {
	n := &node{decl: decl}
	if c := o.container(); c != nil {
		c.node.children = append(c.node.children, n)
		return n
	}
	return nil
}

func (o *outliner) openNamespace(kind types.DeclKind, name, superclass string, line, col int, comments []string) {
	decl := types.Declaration{
		Kind:       kind,
		Name:       name,
		Superclass: superclass,
		Comments:   comments,
		Location:   types.Location{StartLine: line, StartColumn: col},
	}
	n := o.add(decl)
	if n == nil {
		// namespaces cannot be declared in method bodies
		o.push(&frame{kind: frameBlock})
		return
	}
	o.push(&frame{kind: frameNamespace, node: n})
}

func (o *outliner) openSingleton(target string, line, col int, comments []string) {
	if target != "self" {
		o.push(&frame{kind: frameBlock})
		return
	}
	n := o.add(types.Declaration{
		Kind:     types.DeclSingleton,
		Comments: comments,
		Location: types.Location{StartLine: line, StartColumn: col},
	})
	if n == nil {
		o.push(&frame{kind: frameBlock})
		return
	}
	o.push(&frame{kind: frameSingleton, node: n})
}

func (o *outliner) def(text string, visibility types.Visibility, line, col int, comments []string) {
	m := reDef.FindStringSubmatchIndex(text)
	receiver := ""
	if m[2] >= 0 {
		receiver = text[m[2]:m[3]]
	}
	name := text[m[4]:m[5]]
	rest := text[m[1]:]

	var params string
	if strings.HasPrefix(rest, "(") {
		if end := matchingParen(rest); end >= 0 {
			params = rest[1:end]
			rest = rest[end+1:]
		}
	} else if strings.HasPrefix(rest, " ") {
		trimmed := strings.TrimSpace(rest)
		if !strings.HasPrefix(trimmed, "=") {
			params = trimmed
			rest = ""
		}
	}

	trimmed := strings.TrimSpace(rest)
	endless := strings.HasPrefix(trimmed, "=") && !strings.HasPrefix(trimmed, "==") && !strings.HasPrefix(trimmed, "=~")
	oneLine := endless || reTrailingEnd.MatchString(" "+trimmed)

	decl := types.Declaration{
		Kind:       types.DeclMethod,
		Name:       name,
		Comments:   comments,
		Parameters: parseParameters(params),
		Location:   types.Location{StartLine: line, StartColumn: col},
	}

	var n, twin *node
	switch receiver {
	case "":
		c := o.container()
		if visibility == "" && c != nil {
			visibility = c.visibility
		}
		if c != nil && c.moduleFunction {
			singleton := decl
			singleton.Singleton = true
			decl.Visibility = types.VisibilityPrivate
			n = o.add(decl)
			twin = o.add(singleton)
		} else {
			decl.Visibility = visibility
			n = o.add(decl)
		}
	case "self":
		decl.Singleton = true
		n = o.add(decl)
	}

	f := &frame{kind: frameMethod, node: n, twin: twin}
	if oneLine {
		closeFrame(f, line, col+len(text))
		return
	}
	o.push(f)
}

// visibility handles private, protected, public and module_function.
// argsCol is the column of the first argument.
func (o *outliner) visibility(keyword, args string, line, argsCol int, comments []string) {
	c := o.container()
	if c == nil {
		return
	}
	args = strings.TrimSpace(args)

	if keyword == "module_function" {
		if args == "" {
			c.moduleFunction = true
			return
		}
		for _, name := range symbols(args) {
			for _, child := range slices.Clone(c.node.children) {
				if child.decl.Kind == types.DeclMethod && !child.decl.Singleton && child.decl.Name == name {
					singleton := child.decl
					singleton.Singleton = true
					singleton.Visibility = ""
					child.decl.Visibility = types.VisibilityPrivate
					c.node.children = append(c.node.children, &node{decl: singleton})
				}
			}
		}
		return
	}

	vis := types.Visibility(keyword)
	switch {
	case args == "":
		c.visibility = vis
		c.moduleFunction = false
	case strings.HasPrefix(args, "def"):
		if reDef.MatchString(args) {
			o.def(args, vis, line, argsCol, comments)
		}
	case strings.HasPrefix(args, "attr_"):
		if m := reAttr.FindStringSubmatch(args); m != nil {
			o.attr(m[1], m[2], vis, line, argsCol, len(args), comments)
		}
	default:
		for _, name := range symbols(args) {
			for _, child := range c.node.children {
				if child.decl.Kind == types.DeclMethod && !child.decl.Singleton && child.decl.Name == name {
					child.decl.Visibility = vis
				}
			}
		}
	}
}

func (o *outliner) classMethodVisibility(vis types.Visibility, args string) {
	c := o.container()
	if c == nil {
		return
	}
	for _, name := range symbols(args) {
		for _, child := range c.node.children {
			if child.decl.Kind == types.DeclMethod && child.decl.Singleton && child.decl.Name == name {
				child.decl.Visibility = vis
			}
		}
	}
}

func symbols(args string) []string {
	var out []string
	for _, m := range reSymbol.FindAllStringSubmatch(args, -1) {
		out = append(out, m[1])
	}
	return out
}

func (o *outliner) mixin(kind types.MixinKind, args string) {
	c := o.container()
	if c == nil || c.kind == frameRoot {
		return
	}

	var names []string
	for _, arg := range splitTopLevel(args) {
		arg = strings.TrimSpace(arg)
		switch {
		case arg == "self" && kind == types.MixinExtend && c.kind == frameNamespace:
			names = append(names, simpleName(c.node.decl.Name))
		case reConstant.MatchString(arg):
			names = append(names, arg)
		}
	}
	// include A, B inserts B first so A ends up nearer the namespace
	for i := len(names) - 1; i >= 0; i-- {
		c.node.decl.Mixins = append(c.node.decl.Mixins, types.MixinDirective{Kind: kind, Name: names[i]})
	}
}

func simpleName(name string) string {
	if i := strings.LastIndex(name, "::"); i >= 0 {
		return name[i+2:]
	}
	return name
}

func (o *outliner) attr(kind, args string, visibility types.Visibility, line, col, length int, comments []string) {
	c := o.container()
	if c == nil {
		return
	}
	if visibility == "" {
		visibility = c.visibility
	}

	loc := types.Location{StartLine: line, EndLine: line, StartColumn: col, EndColumn: col + length}
	for _, name := range symbols(args) {
		if kind != "writer" {
			o.add(types.Declaration{
				Kind: types.DeclMethod, Name: name, Comments: comments, Location: loc, Visibility: visibility,
			})
		}
		if kind != "reader" {
			o.add(types.Declaration{
				Kind: types.DeclMethod, Name: name + "=", Comments: comments, Location: loc, Visibility: visibility,
				Parameters: []types.Parameter{{Name: "value", Kind: types.ParamRequired}},
			})
		}
	}
}

// block tracks keywords that are closed by end
func (o *outliner) block(text string, line, col int) {
	opened := false
	if reBlockStart.MatchString(text) || reBlockValue.MatchString(text) {
		o.push(&frame{kind: frameBlock})
		opened = true
	}
	if !opened && reDo.MatchString(text) {
		o.push(&frame{kind: frameBlock})
		opened = true
	}
	if opened && reTrailingEnd.MatchString(text) {
		o.pop(line, col+len(text))
	}
}

func (o *outliner) end(line, col int) {
	if len(o.stack) == 1 {
		o.result.AddError(o.file, line, col, "unexpected 'end'")
		return
	}
	o.pop(line, col+len("end"))
}

func (o *outliner) pop(line, endCol int) {
	f := o.stack[len(o.stack)-1]
	o.stack = o.stack[:len(o.stack)-1]
	closeFrame(f, line, endCol)
}

// closeFrame completes the location of the declarations a frame opened
func closeFrame(f *frame, line, endCol int) {
	for _, n := range []*node{f.node, f.twin} {
		if n == nil {
			continue
		}
		loc := &n.decl.Location
		loc.EndLine = line
		loc.EndColumn = endCol
		if loc.EndLine == loc.StartLine && loc.EndColumn < loc.StartColumn {
			loc.EndColumn = loc.StartColumn
		}
	}
}

func materialize(nodes []*node) []types.Declaration {
	if len(nodes) == 0 {
		return nil
	}
	out := make([]types.Declaration, 0, len(nodes))
	for _, n := range nodes {
		d := n.decl
		d.Members = materialize(n.children)
		out = append(out, d)
	}
	return out
}
