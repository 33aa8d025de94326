package parser

import (
	"strings"

	"github.com/swanson/ruby-lsp/pkg/types"
)

// parseParameters classifies a method's parameter list
func parseParameters(list string) []types.Parameter {
	var params []types.Parameter
	for _, raw := range splitTopLevel(list) {
		p := strings.TrimSpace(raw)
		if p == "" {
			continue
		}
		switch {
		case p == "...":
			params = append(params, types.Parameter{Name: "...", Kind: types.ParamRest})
		case strings.HasPrefix(p, "&"):
			params = append(params, types.Parameter{Name: strings.TrimSpace(p[1:]), Kind: types.ParamBlock})
		case strings.HasPrefix(p, "**"):
			params = append(params, types.Parameter{Name: strings.TrimSpace(p[2:]), Kind: types.ParamKeywordRest})
		case strings.HasPrefix(p, "*"):
			params = append(params, types.Parameter{Name: strings.TrimSpace(p[1:]), Kind: types.ParamRest})
		default:
			name, isKeyword, hasDefault := splitDefault(p)
			kind := types.ParamRequired
			switch {
			case isKeyword && hasDefault:
				kind = types.ParamOptionalKey
			case isKeyword:
				kind = types.ParamKeyword
			case hasDefault:
				kind = types.ParamOptional
			}
			params = append(params, types.Parameter{Name: name, Kind: kind})
		}
	}
	return params
}

// splitDefault splits "name = value" and "name: value"
func splitDefault(p string) (name string, keyword, hasDefault bool) {
	for i := 0; i < len(p); i++ {
		switch p[i] {
		case ':':
			return strings.TrimSpace(p[:i]), true, strings.TrimSpace(p[i+1:]) != ""
		case '=':
			return strings.TrimSpace(p[:i]), false, true
		}
		if !isWord(p[i]) && p[i] != ' ' {
			return strings.TrimSpace(p[:i]), false, false
		}
	}
	return p, false, false
}

// splitTopLevel splits on commas outside brackets
func splitTopLevel(list string) []string {
	var (
		out   []string
		depth int
		start int
	)
	for i := 0; i < len(list); i++ {
		switch list[i] {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, list[start:i])
				start = i + 1
			}
		}
	}
	return append(out, list[start:])
}

// matchingParen returns the index of the parenthesis closing s[0]
func matchingParen(s string) int {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
