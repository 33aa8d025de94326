package parser

import (
	"regexp"
	"strings"
)

// logicalLine is one source line, or several joined by an open bracket or
// a trailing comma. String contents are blanked and trailing comments cut,
// so byte offsets still match the first physical line.
type logicalLine struct {
	code    string
	line    int    // 1-based line of the first physical line
	comment string // text of a line that holds only a comment
	blank   bool
}

var heredocPattern = regexp.MustCompile("<<([~-]?)([\"'`]?)([A-Za-z_]\\w*)([\"'`]?)")

// heredoc is a pending heredoc body terminated by id
type heredoc struct {
	id       string
	indented bool
}

// scanState carries literal state across physical lines
type scanState struct {
	quote   byte // closing delimiter of the open literal, 0 outside
	open    byte // opening delimiter for nesting percent literals
	depth   int
	interp  bool
	inBlock bool // inside =begin/=end
	pending []heredoc
}

// splitLines turns source text into logical lines
func splitLines(src string) []logicalLine {
	var (
		out   []logicalLine
		st    scanState
		cur   *logicalLine
		depth int
	)

	physical := strings.Split(strings.ReplaceAll(src, "\r\n", "\n"), "\n")
	for i, raw := range physical {
		lineNo := i + 1

		if len(st.pending) > 0 {
			h := st.pending[0]
			candidate := raw
			if h.indented {
				candidate = strings.TrimSpace(raw)
			}
			if candidate == h.id {
				st.pending = st.pending[1:]
			}
			continue
		}
		if st.inBlock {
			if strings.HasPrefix(raw, "=end") {
				st.inBlock = false
			}
			continue
		}
		if strings.HasPrefix(raw, "=begin") {
			st.inBlock = true
			continue
		}
		if raw == "__END__" {
			break
		}

		startedInLiteral := st.quote != 0
		code := st.sanitize(raw)
		trimmed := strings.TrimSpace(code)

		if cur == nil {
			if trimmed == "" {
				l := logicalLine{line: lineNo, blank: true}
				if t := strings.TrimSpace(raw); !startedInLiteral && strings.HasPrefix(t, "#") {
					l.blank = false
					l.comment = strings.TrimSpace(strings.TrimPrefix(t, "#"))
				}
				out = append(out, l)
				continue
			}
			cur = &logicalLine{code: code, line: lineNo}
		} else {
			cur.code += " " + strings.TrimSpace(code)
		}

		depth += bracketDepth(code)
		if depth > 0 || st.quote != 0 || continues(trimmed) {
			continue
		}
		out = append(out, *cur)
		cur = nil
		depth = 0
	}

	if cur != nil {
		out = append(out, *cur)
	}
	return out
}

func continues(trimmed string) bool {
	return strings.HasSuffix(trimmed, ",") || strings.HasSuffix(trimmed, "\\") ||
		strings.HasSuffix(trimmed, "&&") || strings.HasSuffix(trimmed, "||")
}

func bracketDepth(code string) int {
	d := 0
	for i := 0; i < len(code); i++ {
		switch code[i] {
		case '(', '[':
			d++
		case ')', ']':
			d--
		}
	}
	return d
}

// sanitize blanks literal contents and cuts the trailing comment of one
// physical line. Heredocs opened on the line are queued.
func (st *scanState) sanitize(raw string) string {
	b := []byte(raw)
	for i := 0; i < len(b); i++ {
		c := b[i]

		if st.quote != 0 {
			switch {
			case c == '\\':
				b[i] = ' '
				if i+1 < len(b) {
					i++
					b[i] = ' '
				}
			case st.interp && c == '#' && i+1 < len(b) && b[i+1] == '{':
				n := 1
				b[i], b[i+1] = ' ', ' '
				for i += 2; i < len(b) && n > 0; i++ {
					if b[i] == '{' {
						n++
					} else if b[i] == '}' {
						n--
					}
					b[i] = ' '
				}
				i--
			case st.open != 0 && c == st.open:
				st.depth++
				b[i] = ' '
			case c == st.quote:
				if st.depth > 0 {
					st.depth--
					b[i] = ' '
					continue
				}
				st.quote, st.open, st.interp = 0, 0, false
			default:
				b[i] = ' '
			}
			continue
		}

		switch c {
		case '#':
			return string(b[:i])
		case '"', '`':
			st.quote, st.interp = c, true
		case '\'':
			st.quote, st.interp = c, false
		case '%':
			if n := st.percentLiteral(b, i); n > 0 {
				i += n - 1
			}
		case '<':
			if m := heredocPattern.FindSubmatchIndex(b[i:]); m != nil && m[0] == 0 {
				id := string(b[i+m[6] : i+m[7]])
				squiggly := m[3] > m[2]
				quoted := m[5] > m[4]
				if squiggly || quoted || isUpper(id[0]) {
					st.pending = append(st.pending, heredoc{id: id, indented: squiggly})
					for j := i + m[4]; j < i+m[1]; j++ {
						b[j] = ' '
					}
					i += m[1] - 1
				}
			}
		case '?':
			// character literal such as ?" or ?#
			if i+1 < len(b) && i > 0 && (b[i-1] == ' ' || b[i-1] == '(') && (i+2 == len(b) || !isWord(b[i+2])) {
				if b[i+1] != ' ' {
					b[i+1] = ' '
					i++
				}
			}
		}
	}
	return string(b)
}

// percentLiteral opens a %w[] style literal starting at b[i] and returns
// the number of bytes consumed, or 0 when b[i] is an operator.
func (st *scanState) percentLiteral(b []byte, i int) int {
	j := i + 1
	interp := true
	if j < len(b) && strings.IndexByte("qwisQWIr", b[j]) >= 0 {
		interp = b[j] >= 'A' && b[j] <= 'Z' || b[j] == 'r'
		j++
	}
	if j >= len(b) {
		return 0
	}
	var closer byte
	switch b[j] {
	case '(':
		closer = ')'
	case '[':
		closer = ']'
	case '{':
		closer = '}'
	case '<':
		closer = '>'
	case '|', '!', '/':
		closer = b[j]
	default:
		return 0
	}
	if j == i+1 && i > 0 && isWord(b[i-1]) {
		return 0
	}
	st.quote, st.interp, st.depth = closer, interp, 0
	if closer != b[j] {
		st.open = b[j]
	}
	return j - i + 1
}

func isUpper(c byte) bool { return c >= 'A' && c <= 'Z' }

func isWord(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || isUpper(c) || c >= '0' && c <= '9'
}

// statement is one ;-separated piece of a logical line
type statement struct {
	text   string
	column int
}

// statements splits a logical line on semicolons
func statements(code string) []statement {
	var out []statement
	start := 0
	for i := 0; i <= len(code); i++ {
		if i < len(code) && code[i] != ';' {
			continue
		}
		piece := code[start:i]
		if t := strings.TrimSpace(piece); t != "" {
			out = append(out, statement{
				text:   t,
				column: start + strings.Index(piece, t),
			})
		}
		start = i + 1
	}
	return out
}
