// Package htmldoc provides small helpers over golang.org/x/net/html for the
// handful of document lookups the portal client needs: locating forms,
// collecting their input fields, and finding elements by class or attribute.
package htmldoc

import (
	"io"
	"strings"

	"golang.org/x/net/html"
)

// Document wraps a parsed HTML tree.
type Document struct {
	root *html.Node
}

// Parse reads and parses an HTML document. x/net/html is error-tolerant the
// same way browsers are, so this only fails on reader errors.
func Parse(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, err
	}
	return &Document{root: root}, nil
}

// ParseString parses an HTML document held in memory.
func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

// Form is a located <form> element.
type Form struct {
	node *html.Node
}

// FormByID returns the form with the given id attribute, or nil.
func (d *Document) FormByID(id string) *Form {
	n := d.find(func(n *html.Node) bool {
		return n.Data == "form" && attr(n, "id") == id
	})
	if n == nil {
		return nil
	}
	return &Form{node: n}
}

// FirstForm returns the first form in the document, or nil.
func (d *Document) FirstForm() *Form {
	n := d.find(func(n *html.Node) bool { return n.Data == "form" })
	if n == nil {
		return nil
	}
	return &Form{node: n}
}

// Action returns the form's action attribute ("" if absent).
func (f *Form) Action() string {
	return attr(f.node, "action")
}

// Inputs collects the name/value pairs of every named <input> in the form.
// Inputs without a name attribute are skipped; a missing value becomes "".
func (f *Form) Inputs() map[string]string {
	fields := make(map[string]string)
	walk(f.node, func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.Data == "input" {
			if name := attr(n, "name"); name != "" {
				fields[name] = attr(n, "value")
			}
		}
		return false
	})
	return fields
}

// TextByClass returns the concatenated text of the first element carrying the
// given class, with surrounding whitespace trimmed. ok is false if no such
// element exists.
func (d *Document) TextByClass(class string) (text string, ok bool) {
	n := d.find(func(n *html.Node) bool {
		return hasClass(n, class)
	})
	if n == nil {
		return "", false
	}
	var b strings.Builder
	collectText(n, &b)
	return strings.TrimSpace(b.String()), true
}

// HiddenInputs returns the name/value pairs of all hidden inputs in the
// document, in document order.
func (d *Document) HiddenInputs() []Input {
	var inputs []Input
	walk(d.root, func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.Data == "input" && attr(n, "type") == "hidden" {
			inputs = append(inputs, Input{Name: attr(n, "name"), Value: attr(n, "value")})
		}
		return false
	})
	return inputs
}

// Input is a name/value pair from an <input> element.
type Input struct {
	Name  string
	Value string
}

// AttrValue returns the value of the given attribute on the first element
// that carries it. ok is false if no element does.
func (d *Document) AttrValue(key string) (value string, ok bool) {
	var found bool
	var val string
	walk(d.root, func(n *html.Node) bool {
		if n.Type != html.ElementNode {
			return false
		}
		for _, a := range n.Attr {
			if a.Key == key {
				val = a.Val
				found = true
				return true
			}
		}
		return false
	})
	return val, found
}

// ScriptText returns the concatenated contents of every <script> element.
func (d *Document) ScriptText() string {
	var b strings.Builder
	walk(d.root, func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.Data == "script" {
			collectText(n, &b)
			b.WriteByte('\n')
		}
		return false
	})
	return b.String()
}

// find returns the first element node matching pred, depth-first.
func (d *Document) find(pred func(*html.Node) bool) *html.Node {
	var found *html.Node
	walk(d.root, func(n *html.Node) bool {
		if n.Type == html.ElementNode && pred(n) {
			found = n
			return true
		}
		return false
	})
	return found
}

// walk visits nodes depth-first until visit returns true.
func walk(n *html.Node, visit func(*html.Node) bool) bool {
	if visit(n) {
		return true
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if walk(c, visit) {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func collectText(n *html.Node, b *strings.Builder) {
	if n.Type == html.TextNode {
		b.WriteString(n.Data)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, b)
	}
}
