package generator

import (
	"bytes"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

const previewLimit = 100

var (
	markdownOnce   sync.Once
	markdownParser goldmark.Markdown
)

func getMarkdownParser() goldmark.Markdown {
	markdownOnce.Do(func() {
		markdownParser = goldmark.New(goldmark.WithExtensions(extension.GFM))
	})
	return markdownParser
}

func parseMarkdown(src []byte) ast.Node {
	return getMarkdownParser().Parser().Parse(text.NewReader(src))
}

// PlainText strips Markdown syntax, keeping the readable text of headings,
// paragraphs, lists and tables. Code blocks are dropped.
func PlainText(markdown string) string {
	if strings.TrimSpace(markdown) == "" {
		return ""
	}
	src := []byte(markdown)
	var out strings.Builder
	ast.Walk(parseMarkdown(src), func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch n.Kind() {
		case ast.KindFencedCodeBlock, ast.KindCodeBlock, ast.KindHTMLBlock, ast.KindRawHTML:
			return ast.WalkSkipChildren, nil
		case ast.KindText:
			if entering {
				t := n.(*ast.Text)
				out.Write(t.Segment.Value(src))
				if t.SoftLineBreak() || t.HardLineBreak() {
					out.WriteByte(' ')
				}
			}
		case ast.KindString:
			if entering {
				out.Write(n.(*ast.String).Value)
			}
		default:
			if !entering && n.Type() == ast.TypeBlock {
				out.WriteByte(' ')
			}
		}
		return ast.WalkContinue, nil
	})
	return strings.Join(strings.Fields(out.String()), " ")
}

// Preview collapses whitespace and cuts s to 100 characters plus an ellipsis.
func Preview(s string) string {
	flat := strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(flat) <= previewLimit {
		return flat
	}
	runes := []rune(flat)
	return strings.TrimRight(string(runes[:previewLimit]), " ") + "..."
}

// MarkdownPreview is Preview over the plain text of a Markdown document.
func MarkdownPreview(markdown string) string {
	return Preview(PlainText(markdown))
}

// SplitSections cuts a Markdown document at its top-level headings. Text
// before the first heading, if any, is its own section.
func SplitSections(markdown string) []string {
	src := []byte(markdown)
	var starts []int
	for n := parseMarkdown(src).FirstChild(); n != nil; n = n.NextSibling() {
		if n.Kind() != ast.KindHeading || n.Lines().Len() == 0 {
			continue
		}
		seg := n.Lines().At(0)
		starts = append(starts, bytes.LastIndexByte(src[:seg.Start], '\n')+1)
	}
	if len(starts) == 0 || starts[0] != 0 {
		starts = append([]int{0}, starts...)
	}

	sections := make([]string, 0, len(starts))
	for i, start := range starts {
		end := len(src)
		if i+1 < len(starts) {
			end = starts[i+1]
		}
		if s := strings.TrimSpace(string(src[start:end])); s != "" {
			sections = append(sections, s)
		}
	}
	return sections
}

// JoinSections is the inverse of SplitSections.
func JoinSections(sections []string) string {
	return strings.Join(sections, "\n\n")
}

// FirstHeading returns the text of the first heading, or "".
func FirstHeading(markdown string) string {
	src := []byte(markdown)
	for n := parseMarkdown(src).FirstChild(); n != nil; n = n.NextSibling() {
		if n.Kind() != ast.KindHeading {
			continue
		}
		var b strings.Builder
		_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
			if entering && c.Kind() == ast.KindText {
				b.Write(c.(*ast.Text).Segment.Value(src))
			}
			return ast.WalkContinue, nil
		})
		return strings.TrimSpace(b.String())
	}
	return ""
}
