package erb

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sp(n int) string { return strings.Repeat(" ", n) }

func TestScan_PreservesCoordinates(t *testing.T) {
	src := "a<%= 1 %>b\nc"
	res := Scan(src)

	require.Equal(t, 12, Len(src))
	assert.Equal(t, 12, Len(res.Code))
	assert.Equal(t, 12, Len(res.Literal))

	nl := strings.IndexByte(src, '\n')
	assert.Equal(t, byte('\n'), res.Code[nl])
	assert.Equal(t, byte('\n'), res.Literal[nl])

	assert.Equal(t, byte('1'), src[5])
	assert.Equal(t, sp(5)+"1"+sp(4)+"\n ", res.Code)
	assert.Equal(t, "a"+sp(8)+"b\nc", res.Literal)
	assert.False(t, res.Unterminated)
}

func TestScan_UnterminatedTag(t *testing.T) {
	res := Scan("x<%= y")

	assert.True(t, res.Unterminated)
	assert.Equal(t, sp(5)+"y", res.Code)
	assert.Equal(t, "x"+sp(5), res.Literal)
	assert.True(t, strings.HasSuffix(strings.TrimSpace(res.Code), "y"))
}

func TestScan_Delimiters(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		code    string
		literal string
	}{
		{
			name:    "statement tag",
			src:     "<% x %>",
			code:    sp(3) + "x" + sp(3),
			literal: sp(7),
		},
		{
			name:    "raw output tag",
			src:     "<%== x %>",
			code:    sp(5) + "x" + sp(3),
			literal: sp(9),
		},
		{
			name:    "trim tags",
			src:     "<%- x -%>y",
			code:    sp(4) + "x" + sp(5),
			literal: sp(9) + "y",
		},
		{
			name:    "percent outside code",
			src:     "100% <%= a %>",
			code:    sp(9) + "a" + sp(3),
			literal: "100%" + sp(9),
		},
		{
			name:    "close delimiter outside code",
			src:     "a %> b",
			code:    sp(6),
			literal: "a %> b",
		},
		{
			name:    "minus inside code",
			src:     "<%= a - b %>",
			code:    sp(4) + "a - b" + sp(3),
			literal: sp(12),
		},
		{
			name:    "crlf copied to both",
			src:     "<% a %>\r\nb",
			code:    sp(3) + "a" + sp(3) + "\r\n ",
			literal: sp(7) + "\r\nb",
		},
		{
			name:    "newline inside code",
			src:     "<% if x\n  y\nend %>",
			code:    sp(3) + "if x\n  y\nend" + sp(3),
			literal: sp(7) + "\n" + sp(3) + "\n" + sp(6),
		},
		{
			name:    "lone open bracket",
			src:     "<p><%= t %></p>",
			code:    sp(7) + "t" + sp(7),
			literal: "<p>" + sp(8) + "</p>",
		},
		{
			name:    "empty",
			src:     "",
			code:    "",
			literal: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Scan(tt.src)
			assert.Equal(t, tt.code, res.Code)
			assert.Equal(t, tt.literal, res.Literal)
			assert.Equal(t, Len(tt.src), Len(res.Code))
			assert.Equal(t, Len(tt.src), Len(res.Literal))
		})
	}
}

func TestScan_MultibyteCharactersArePaddedOnce(t *testing.T) {
	src := "é<%= \"ü\" %>ñ"
	res := Scan(src)

	assert.Equal(t, Len(src), Len(res.Code))
	assert.Equal(t, Len(src), Len(res.Literal))
	assert.Equal(t, sp(5)+"\"ü\""+sp(4), res.Code)
	assert.Equal(t, "é"+sp(10)+"ñ", res.Literal)
}

func TestScanner_ScanIsIdempotent(t *testing.T) {
	s := NewScanner("<%= a %>")
	first := s.Scan()
	second := s.Scan()
	assert.Equal(t, first, second)
}
