// Package htmlutil bundles the DOM-level helpers of the conversion
// pipeline: fragment cleanup, plaintext flattening and CSS value
// sanitizing.
package htmlutil

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/aymerick/douceur/parser"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// CleanupFragment parses text as a body fragment and reserializes it.
// Badly structured HTML can break a whole page; the round trip closes
// dangling elements. Returns the input unchanged when parsing fails.
func CleanupFragment(text string) string {
	ctx := &html.Node{
		Type:     html.ElementNode,
		Data:     "body",
		DataAtom: atom.Body,
	}

	nodes, err := html.ParseFragment(strings.NewReader(text), ctx)
	if err != nil {
		return text
	}

	var buf bytes.Buffer
	for _, n := range nodes {
		if err := html.Render(&buf, n); err != nil {
			return text
		}
	}

	out := buf.String()
	out = strings.ReplaceAll(out, "<br/></li>", "</li>")
	return out
}

var (
	brRe        = regexp.MustCompile(`(?i)<br\s*/?>`)
	blockCloseRe = regexp.MustCompile(`(?i)</(p|div|blockquote|h[1-6]|li|tr|table|ul|pre)>`)
)

// ToPlaintext flattens rendered HTML to plain text. Line structure is
// kept for block elements and <br>. With keepLinks false, anchor targets
// are dropped and only the link text remains; otherwise the href is
// appended when it differs from the text.
func ToPlaintext(fragment string, keepLinks bool) string {
	fragment = brRe.ReplaceAllString(fragment, "\n")
	fragment = blockCloseRe.ReplaceAllString(fragment, "</${1}>\n")

	ctx := &html.Node{
		Type:     html.ElementNode,
		Data:     "body",
		DataAtom: atom.Body,
	}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), ctx)
	if err != nil {
		return StripTags(fragment)
	}

	var buf strings.Builder
	for _, n := range nodes {
		flattenNode(&buf, n, keepLinks)
	}

	out := buf.String()
	out = regexp.MustCompile(`\n{3,}`).ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out)
}

func flattenNode(buf *strings.Builder, n *html.Node, keepLinks bool) {
	switch n.Type {
	case html.TextNode:
		buf.WriteString(n.Data)
		return
	case html.ElementNode:
		if n.DataAtom == atom.A {
			text := textContent(n)
			buf.WriteString(text)
			if keepLinks {
				href := attrValue(n, "href")
				if href != "" && href != text && !strings.Contains(text, href) {
					buf.WriteString(" [" + href + "]")
				}
			}
			return
		}
		if n.DataAtom == atom.Img {
			if alt := attrValue(n, "alt"); alt != "" {
				buf.WriteString(alt)
			}
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		flattenNode(buf, c, keepLinks)
	}
}

func textContent(n *html.Node) string {
	var buf strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return buf.String()
}

func attrValue(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

var tagRe = regexp.MustCompile(`(?s)<[^>]*>`)

// StripTags removes every HTML tag from the fragment.
func StripTags(fragment string) string {
	return tagRe.ReplaceAllString(fragment, "")
}

var cssDangerRe = regexp.MustCompile(`[<>"'\\]`)

var cssValueBlocklist = []string{"url(", "expression(", "javascript:", "behavior:"}

// SanitizeCSS cleans a user-supplied style or class value. Parseable
// declaration lists are rebuilt property by property with active content
// dropped; anything else is reduced to its harmless characters.
func SanitizeCSS(value string) string {
	value = cssDangerRe.ReplaceAllString(value, "")

	if !strings.Contains(value, ":") {
		return value
	}

	// The parser only captures a value once its declaration is
	// ;-terminated, so the final one must be closed before parsing.
	decls, err := parser.ParseDeclarations(strings.TrimRight(value, "; \t") + ";")
	if err != nil {
		return value
	}

	var parts []string
	for _, decl := range decls {
		lower := strings.ToLower(decl.Value)
		blocked := false
		for _, bad := range cssValueBlocklist {
			if strings.Contains(lower, bad) {
				blocked = true
				break
			}
		}
		if blocked {
			continue
		}
		parts = append(parts, decl.Property+": "+decl.Value)
	}
	return strings.Join(parts, "; ")
}

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#039;",
)

// EscapeXML escapes the five XML special characters.
func EscapeXML(text string) string {
	return xmlEscaper.Replace(text)
}
