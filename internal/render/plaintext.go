// ABOUTME: Markdown to plain terminal text via a goldmark AST walk
// ABOUTME: Strips emphasis, bullets lists, uppercases headings and indents code

package render

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

const (
	bullet        = "• "
	codeIndent    = "    "
	listIndent    = "  "
	quotePrefix   = "> "
	thematicBreak = "────────"
)

var markdown = goldmark.New()

// PlainText renders markdown as plain text suitable for a terminal.
// Text that is not markdown comes back unchanged apart from trailing
// newlines.
func PlainText(src string) string {
	source := []byte(src)
	doc := markdown.Parser().Parse(text.NewReader(source))

	r := &textRenderer{source: source}
	_ = ast.Walk(doc, r.walk)

	return strings.TrimRight(string(r.out), "\n")
}

type listState struct {
	ordered bool
	next    int
}

type textRenderer struct {
	source      []byte
	out         []byte
	lists       []listState
	marks       []int
	afterBullet bool
}

func (r *textRenderer) walk(n ast.Node, entering bool) (ast.WalkStatus, error) {
	switch n := n.(type) {
	case *ast.Heading:
		if entering {
			r.blankLine()
			r.mark()
		} else {
			start := r.unmark()
			upper := bytes.ToUpper(r.out[start:])
			r.out = append(r.out[:start], upper...)
			r.newline()
		}

	case *ast.Paragraph:
		if entering {
			r.blockStart()
		} else {
			r.newline()
		}

	case *ast.TextBlock:
		if entering {
			r.afterBullet = false
		} else {
			r.newline()
		}

	case *ast.Text:
		if entering {
			r.out = append(r.out, n.Segment.Value(r.source)...)
			if n.HardLineBreak() || n.SoftLineBreak() {
				r.out = append(r.out, '\n')
			}
		}

	case *ast.String:
		if entering {
			r.out = append(r.out, n.Value...)
		}

	case *ast.CodeSpan:
		r.out = append(r.out, '`')

	case *ast.FencedCodeBlock, *ast.CodeBlock:
		if entering {
			r.blockStart()
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				r.out = append(r.out, codeIndent...)
				r.out = append(r.out, seg.Value(r.source)...)
			}
			r.newline()
		}
		return ast.WalkSkipChildren, nil

	case *ast.Link:
		r.linkTarget(entering, n.Destination)

	case *ast.Image:
		r.linkTarget(entering, n.Destination)

	case *ast.AutoLink:
		if entering {
			r.out = append(r.out, n.URL(r.source)...)
		}
		return ast.WalkSkipChildren, nil

	case *ast.List:
		if entering {
			if len(r.lists) == 0 {
				r.blockStart()
			} else {
				r.newline()
			}
			r.lists = append(r.lists, listState{ordered: n.IsOrdered(), next: n.Start})
		} else {
			r.lists = r.lists[:len(r.lists)-1]
		}

	case *ast.ListItem:
		if entering {
			r.newline()
			r.out = append(r.out, strings.Repeat(listIndent, len(r.lists)-1)...)
			top := &r.lists[len(r.lists)-1]
			if top.ordered {
				r.out = append(r.out, strconv.Itoa(top.next)+". "...)
				top.next++
			} else {
				r.out = append(r.out, bullet...)
			}
			r.afterBullet = true
		} else {
			r.newline()
		}

	case *ast.Blockquote:
		if entering {
			r.blockStart()
			r.mark()
		} else {
			r.quote(r.unmark())
		}

	case *ast.ThematicBreak:
		if entering {
			r.blockStart()
			r.out = append(r.out, thematicBreak...)
			r.newline()
		}

	case *ast.HTMLBlock, *ast.RawHTML:
		return ast.WalkSkipChildren, nil
	}

	return ast.WalkContinue, nil
}

// linkTarget appends the destination after the link text unless the
// text already is the destination.
func (r *textRenderer) linkTarget(entering bool, dest []byte) {
	if entering {
		r.mark()
		return
	}
	start := r.unmark()
	if len(dest) == 0 || bytes.Equal(r.out[start:], dest) {
		return
	}
	r.out = append(r.out, " ("...)
	r.out = append(r.out, dest...)
	r.out = append(r.out, ')')
}

func (r *textRenderer) quote(start int) {
	body := strings.TrimRight(string(r.out[start:]), "\n")
	r.out = r.out[:start]
	for i, line := range strings.Split(body, "\n") {
		if i > 0 {
			r.out = append(r.out, '\n')
		}
		r.out = append(r.out, quotePrefix...)
		r.out = append(r.out, line...)
	}
	r.out = append(r.out, '\n')
}

func (r *textRenderer) mark() {
	r.marks = append(r.marks, len(r.out))
}

func (r *textRenderer) unmark() int {
	start := r.marks[len(r.marks)-1]
	r.marks = r.marks[:len(r.marks)-1]
	return start
}

// blockStart separates a block from what precedes it: a blank line at the
// top level, a line break inside lists, nothing right after a bullet.
func (r *textRenderer) blockStart() {
	if r.afterBullet {
		r.afterBullet = false
		return
	}
	if len(r.lists) > 0 {
		r.newline()
		return
	}
	r.blankLine()
}

func (r *textRenderer) newline() {
	if len(r.out) > 0 && r.out[len(r.out)-1] != '\n' {
		r.out = append(r.out, '\n')
	}
}

func (r *textRenderer) blankLine() {
	if len(r.out) == 0 {
		return
	}
	r.newline()
	if !bytes.HasSuffix(r.out, []byte("\n\n")) {
		r.out = append(r.out, '\n')
	}
}
