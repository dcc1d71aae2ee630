// Package dialplan compiles typed routing records into the canonical
// dialplan XML the switch executes, and reconstructs typed rows from
// existing XML for the editor.
package dialplan

import (
	"bytes"
	"encoding/xml"
	"strings"
)

// Node is one element of the dialplan document tree. Attributes render in
// slice order, which the compiler keeps fixed so regeneration is bytewise
// idempotent.
type Node struct {
	Tag      string
	Attrs    []Attr
	Children []*Node
}

// Attr is one rendered attribute.
type Attr struct {
	Name  string
	Value string
}

// NewNode creates an element with alternating attribute name/value pairs.
func NewNode(tag string, attrs ...string) *Node {
	n := &Node{Tag: tag}
	for i := 0; i+1 < len(attrs); i += 2 {
		n.Attrs = append(n.Attrs, Attr{Name: attrs[i], Value: attrs[i+1]})
	}
	return n
}

// SetAttr appends or replaces an attribute, keeping existing order.
func (n *Node) SetAttr(name, value string) *Node {
	for i := range n.Attrs {
		if n.Attrs[i].Name == name {
			n.Attrs[i].Value = value
			return n
		}
	}
	n.Attrs = append(n.Attrs, Attr{Name: name, Value: value})
	return n
}

// Add appends a child and returns it.
func (n *Node) Add(child *Node) *Node {
	n.Children = append(n.Children, child)
	return child
}

// Action appends an <action> child.
func (n *Node) Action(application, data string, inline bool) *Node {
	a := NewNode("action", "application", application)
	if data != "" {
		a.SetAttr("data", data)
	}
	if inline {
		a.SetAttr("inline", "true")
	}
	return n.Add(a)
}

// AntiAction appends an <anti-action> child.
func (n *Node) AntiAction(application, data string) *Node {
	a := NewNode("anti-action", "application", application)
	if data != "" {
		a.SetAttr("data", data)
	}
	return n.Add(a)
}

// Render serialises the tree with tab indentation. Empty elements
// self-close.
func Render(root *Node) string {
	var b strings.Builder
	renderNode(&b, root, 0)
	return b.String()
}

func renderNode(b *strings.Builder, n *Node, depth int) {
	indent := strings.Repeat("\t", depth)
	b.WriteString(indent)
	b.WriteByte('<')
	b.WriteString(n.Tag)
	for _, a := range n.Attrs {
		b.WriteByte(' ')
		b.WriteString(a.Name)
		b.WriteString(`="`)
		b.WriteString(escapeAttr(a.Value))
		b.WriteByte('"')
	}
	if len(n.Children) == 0 {
		b.WriteString("/>\n")
		return
	}
	b.WriteString(">\n")
	for _, c := range n.Children {
		renderNode(b, c, depth+1)
	}
	b.WriteString(indent)
	b.WriteString("</")
	b.WriteString(n.Tag)
	b.WriteString(">\n")
}

// escapeAttr entity-encodes an attribute value.
func escapeAttr(v string) string {
	var buf bytes.Buffer
	xml.EscapeText(&buf, []byte(v))
	return strings.ReplaceAll(buf.String(), "&#34;", "&quot;")
}
