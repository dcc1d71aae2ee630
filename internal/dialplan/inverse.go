package dialplan

import (
	"encoding/xml"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/tappbx/tappbx/internal/database/models"
)

// ErrInvalidXML reports that an extension document could not be parsed
// back into detail rows.
var ErrInvalidXML = errors.New("invalid dialplan xml")

var (
	commentRe    = regexp.MustCompile(`(?s)<!--.*?-->`)
	expressionRe = regexp.MustCompile(`expression="[^"]*"`)
)

type xmlAction struct {
	Application string `xml:"application,attr"`
	Data        string `xml:"data,attr"`
	Inline      string `xml:"inline,attr"`
}

type xmlCondition struct {
	Attrs       []xml.Attr  `xml:",any,attr"`
	Actions     []xmlAction `xml:"action"`
	AntiActions []xmlAction `xml:"anti-action"`
}

type xmlExtension struct {
	XMLName    xml.Name       `xml:"extension"`
	Conditions []xmlCondition `xml:"condition"`
}

// preEscape entity-encodes raw angle brackets inside expression
// attributes so hand-edited documents still parse.
func preEscape(doc string) string {
	return expressionRe.ReplaceAllStringFunc(doc, func(m string) string {
		body := m[len(`expression="`) : len(m)-1]
		body = strings.ReplaceAll(body, "<", "&lt;")
		body = strings.ReplaceAll(body, ">", "&gt;")
		return `expression="` + body + `"`
	})
}

// Decompile reconstructs the ordered detail rows of an extension document.
// Grouping follows the containing condition; sequence numbers are assigned
// in increments of step starting at step. Comments are discarded.
func Decompile(doc string, step int) ([]models.DialplanDetail, error) {
	if step <= 0 {
		step = 10
	}
	cleaned := preEscape(commentRe.ReplaceAllString(doc, ""))

	var ext xmlExtension
	if err := xml.Unmarshal([]byte(strings.TrimSpace(cleaned)), &ext); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidXML, err)
	}

	var rows []models.DialplanDetail
	seq := 0
	next := func() int {
		seq += step
		return seq
	}

	for group, cond := range ext.Conditions {
		var field, expression, brk string
		timed := false
		for _, a := range cond.Attrs {
			switch {
			case a.Name.Local == "field":
				field = a.Value
			case a.Name.Local == "expression":
				expression = a.Value
			case a.Name.Local == "break":
				brk = a.Value
			case isTimeAttr(a.Name.Local):
				timed = true
			}
		}

		if timed {
			for _, a := range cond.Attrs {
				if !isTimeAttr(a.Name.Local) {
					continue
				}
				rows = append(rows, models.DialplanDetail{
					Group:    group,
					Tag:      "condition",
					Type:     a.Name.Local,
					Data:     a.Value,
					Break:    brk,
					Sequence: next(),
				})
			}
		} else {
			rows = append(rows, models.DialplanDetail{
				Group:    group,
				Tag:      "condition",
				Type:     field,
				Data:     expression,
				Break:    brk,
				Sequence: next(),
			})
		}

		for _, a := range cond.Actions {
			rows = append(rows, models.DialplanDetail{
				Group:    group,
				Tag:      "action",
				Type:     a.Application,
				Data:     a.Data,
				Inline:   a.Inline == "true",
				Sequence: next(),
			})
		}
		for _, a := range cond.AntiActions {
			rows = append(rows, models.DialplanDetail{
				Group:    group,
				Tag:      "anti-action",
				Type:     a.Application,
				Data:     a.Data,
				Sequence: next(),
			})
		}
	}

	return rows, nil
}
