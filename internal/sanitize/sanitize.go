// Package sanitize strips dangerous markup from raw message HTML and
// flattens element subtrees into plain text. It never truncates content
// and never fails: the worst case for malformed input is an empty or
// stripped string.
package sanitize

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"goldbox/internal/logging"
)

// Pre-compile regex patterns to avoid recompilation overhead
var (
	multiSpacePattern   = regexp.MustCompile(`[ \t]{2,}`)
	multiNewlinePattern = regexp.MustCompile(`\n{3,}`)
)

// Elements whose entire subtree is dropped during text extraction.
var droppedElements = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"iframe":   true,
	"object":   true,
	"embed":    true,
	"svg":      true,
}

// Parse parses an HTML fragment into a DOM tree. html.Parse tolerates
// arbitrarily broken markup, so a non-nil error only occurs on reader
// failure, which cannot happen for a string input; callers still get a
// usable (possibly empty) document for garbage input.
func Parse(raw string) (*html.Node, error) {
	return html.Parse(strings.NewReader(raw))
}

// Text extracts the visible text of a raw HTML string with dangerous
// elements removed and whitespace collapsed.
func Text(raw string) string {
	doc, err := Parse(raw)
	if err != nil {
		logging.SanitizeDebug("parse failed, returning stripped input: %v", err)
		return ""
	}
	return NodeText(doc)
}

// NodeText extracts the visible text of a parsed subtree.
func NodeText(n *html.Node) string {
	var sb strings.Builder
	walkText(n, &sb, 0)
	return Collapse(sb.String())
}

func walkText(n *html.Node, sb *strings.Builder, depth int) {
	if n == nil || depth > 64 {
		return
	}

	switch n.Type {
	case html.TextNode:
		text := strings.TrimSpace(n.Data)
		if text != "" {
			sb.WriteString(text)
			sb.WriteString(" ")
		}
	case html.ElementNode:
		if droppedElements[n.Data] {
			return
		}
		switch n.Data {
		case "br", "p", "div", "li", "tr":
			sb.WriteString("\n")
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkText(c, sb, depth+1)
	}
}

// Collapse normalizes runs of whitespace while preserving paragraph
// breaks.
func Collapse(s string) string {
	s = multiSpacePattern.ReplaceAllString(s, " ")
	s = multiNewlinePattern.ReplaceAllString(s, "\n\n")

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// Attr returns the value of the named attribute on an element node.
func Attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

// HasClass reports whether an element node carries the given CSS class.
func HasClass(n *html.Node, class string) bool {
	if n.Type != html.ElementNode {
		return false
	}
	for _, c := range strings.Fields(Attr(n, "class")) {
		if strings.EqualFold(c, class) {
			return true
		}
	}
	return false
}

// FindByClass returns the first element in the subtree carrying the given
// CSS class, depth-first.
func FindByClass(n *html.Node, class string) *html.Node {
	if HasClass(n, class) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := FindByClass(c, class); found != nil {
			return found
		}
	}
	return nil
}

// FindAllByClass returns every element in the subtree carrying the given
// CSS class, in document order.
func FindAllByClass(n *html.Node, class string) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if HasClass(node, class) {
			out = append(out, node)
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

// FindByTag returns the first element with the given tag name, depth-first.
func FindByTag(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := FindByTag(c, tag); found != nil {
			return found
		}
	}
	return nil
}

// FindAllByTag returns every element with the given tag name, in document
// order.
func FindAllByTag(n *html.Node, tag string) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.ElementNode && node.Data == tag {
			out = append(out, node)
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

// InsideClass reports whether the node has an ancestor carrying the given
// CSS class.
func InsideClass(n *html.Node, class string) bool {
	for p := n.Parent; p != nil; p = p.Parent {
		if HasClass(p, class) {
			return true
		}
	}
	return false
}
