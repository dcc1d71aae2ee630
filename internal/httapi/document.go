// Package httapi answers the per-call XML dialogs the switch runs mid-call.
package httapi

import "github.com/tappbx/tappbx/internal/dialplan"

// Document builds one httapi response. Work items render in the order they
// were added.
type Document struct {
	root   *dialplan.Node
	params *dialplan.Node
	work   *dialplan.Node
}

// NewDocument creates an empty response document.
func NewDocument() *Document {
	root := dialplan.NewNode("document", "type", "freeswitch/xml-httapi")
	return &Document{
		root:   root,
		params: root.Add(dialplan.NewNode("params")),
		work:   root.Add(dialplan.NewNode("work")),
	}
}

// Param adds a dialog parameter.
func (d *Document) Param(name, value string) *Document {
	d.params.Add(dialplan.NewNode("param", "name", name, "value", value))
	return d
}

// Execute adds an application invocation to the work list.
func (d *Document) Execute(application, data string) *Document {
	node := dialplan.NewNode("execute", "application", application)
	if data != "" {
		node.SetAttr("data", data)
	}
	d.work.Add(node)
	return d
}

// Playback adds a file playback to the work list.
func (d *Document) Playback(file string) *Document {
	d.work.Add(dialplan.NewNode("playback", "file", file))
	return d
}

// Hangup ends the call.
func (d *Document) Hangup() *Document {
	d.work.Add(dialplan.NewNode("hangup"))
	return d
}

// Render serialises the document.
func (d *Document) Render() string {
	return dialplan.Render(d.root)
}

// HangupDocument is the terminal response for any error path.
func HangupDocument() string {
	return NewDocument().Hangup().Render()
}
