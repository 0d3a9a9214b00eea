// Package mdbb converts Markdown into markup tags by walking the
// goldmark AST. It covers the constructs federated Markdown posts
// actually use: emphasis, links, images, code, quotes, lists, headings
// and tables.
package mdbb

import (
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

var standardOptions = []goldmark.Option{
	goldmark.WithExtensions(
		extension.GFM,
	),
}

// Convert renders markdown as markup tag text.
func Convert(markdown string) string {
	source := []byte(markdown)
	md := goldmark.New(standardOptions...)
	node := md.Parser().Parse(text.NewReader(source))

	w := &walker{source: source}
	_ = ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		return w.walk(n, entering)
	})
	return strings.TrimSpace(w.buf.String())
}

type walker struct {
	buf    strings.Builder
	source []byte

	// List state, one entry per nesting level. An ordered list carries
	// its tag so the close matches the open.
	listTags []string
}

func (w *walker) walk(node ast.Node, entering bool) (ast.WalkStatus, error) {
	switch n := node.(type) {
	case *ast.Text:
		if entering {
			w.buf.Write(n.Segment.Value(w.source))
			if n.HardLineBreak() || n.SoftLineBreak() {
				w.buf.WriteString("\n")
			}
		}

	case *ast.String:
		if entering {
			w.buf.Write(n.Value)
		}

	case *ast.Emphasis:
		tag := "i"
		if n.Level == 2 {
			tag = "b"
		}
		if entering {
			w.buf.WriteString("[" + tag + "]")
		} else {
			w.buf.WriteString("[/" + tag + "]")
		}

	case *east.Strikethrough:
		if entering {
			w.buf.WriteString("[s]")
		} else {
			w.buf.WriteString("[/s]")
		}

	case *ast.CodeSpan:
		if entering {
			w.buf.WriteString("[code]")
			w.buf.WriteString(inlineText(n, w.source))
			w.buf.WriteString("[/code]")
			return ast.WalkSkipChildren, nil
		}

	case *ast.Link:
		if entering {
			w.buf.WriteString("[url=" + string(n.Destination) + "]")
		} else {
			w.buf.WriteString("[/url]")
		}

	case *ast.AutoLink:
		if entering {
			url := string(n.URL(w.source))
			w.buf.WriteString("[url]" + url + "[/url]")
		}

	case *ast.Image:
		if entering {
			alt := inlineText(n, w.source)
			if alt != "" {
				w.buf.WriteString("[img=" + string(n.Destination) + "]" + alt + "[/img]")
			} else {
				w.buf.WriteString("[img]" + string(n.Destination) + "[/img]")
			}
			return ast.WalkSkipChildren, nil
		}

	case *ast.Heading:
		level := strconv.Itoa(n.Level)
		if entering {
			w.buf.WriteString("[h" + level + "]")
		} else {
			w.buf.WriteString("[/h" + level + "]\n\n")
		}

	case *ast.Paragraph:
		if !entering {
			if len(w.listTags) > 0 {
				break
			}
			w.buf.WriteString("\n\n")
		}

	case *ast.Blockquote:
		if entering {
			w.buf.WriteString("[quote]")
		} else {
			w.buf.WriteString("[/quote]\n\n")
		}

	case *ast.FencedCodeBlock:
		if entering {
			lang := string(n.Language(w.source))
			if lang != "" {
				w.buf.WriteString("[code=" + lang + "]\n")
			} else {
				w.buf.WriteString("[code]\n")
			}
			w.writeLines(n)
			w.buf.WriteString("[/code]\n\n")
			return ast.WalkSkipChildren, nil
		}

	case *ast.CodeBlock:
		if entering {
			w.buf.WriteString("[code]\n")
			w.writeLines(n)
			w.buf.WriteString("[/code]\n\n")
			return ast.WalkSkipChildren, nil
		}

	case *ast.ThematicBreak:
		if entering {
			w.buf.WriteString("[hr]\n")
		}

	case *ast.List:
		tag := "ul"
		if n.IsOrdered() {
			tag = "ol"
		}
		if entering {
			w.listTags = append(w.listTags, tag)
			w.buf.WriteString("[" + tag + "]\n")
		} else {
			w.listTags = w.listTags[:len(w.listTags)-1]
			w.buf.WriteString("[/" + tag + "]\n")
			if len(w.listTags) == 0 {
				w.buf.WriteString("\n")
			}
		}

	case *ast.ListItem:
		if entering {
			w.buf.WriteString("[li]")
		} else {
			w.buf.WriteString("[/li]\n")
		}

	case *east.Table:
		if entering {
			w.buf.WriteString("[table]\n")
		} else {
			w.buf.WriteString("[/table]\n\n")
		}

	case *east.TableHeader:
		if entering {
			w.buf.WriteString("[tr]")
		} else {
			w.buf.WriteString("[/tr]\n")
		}

	case *east.TableRow:
		if entering {
			w.buf.WriteString("[tr]")
		} else {
			w.buf.WriteString("[/tr]\n")
		}

	case *east.TableCell:
		tag := "td"
		if _, ok := n.Parent().(*east.TableHeader); ok {
			tag = "th"
		}
		if entering {
			w.buf.WriteString("[" + tag + "]")
		} else {
			w.buf.WriteString("[/" + tag + "]")
		}
	}
	return ast.WalkContinue, nil
}

func (w *walker) writeLines(n ast.Node) {
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		line := lines.At(i)
		w.buf.Write(line.Value(w.source))
	}
}

func inlineText(n ast.Node, source []byte) string {
	var buf strings.Builder
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*ast.Text); ok {
			buf.Write(t.Segment.Value(source))
		}
	}
	return buf.String()
}
