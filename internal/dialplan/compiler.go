package dialplan

import (
	"context"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/tappbx/tappbx/internal/database/models"
	"github.com/tappbx/tappbx/internal/settings"
)

// timeAttrs is the time-condition attribute set in its published render
// order.
var timeAttrs = []string{
	"year", "mon", "mday", "wday", "week", "mweek", "hour",
	"minute-of-day", "date-time",
}

func isTimeAttr(name string) bool {
	for _, a := range timeAttrs {
		if a == name {
			return true
		}
	}
	return false
}

// Tenant names the record owner during compilation.
type Tenant struct {
	ID   string
	Name string
}

// ExtensionLookup resolves ring-group legs against local extensions.
type ExtensionLookup interface {
	GetByNumber(ctx context.Context, domainID, number string) (*models.Extension, error)
	ListFollowMe(ctx context.Context, extensionID string) ([]models.FollowMeDestination, error)
}

// GatewayLookup resolves outbound-route gateway references.
type GatewayLookup interface {
	GetByID(ctx context.Context, id string) (*models.Gateway, error)
}

// Compiler turns typed routing records into canonical extension XML. The
// forward path is total and deterministic; only the inverse pass can fail.
type Compiler struct {
	resolver   *settings.Resolver
	extensions ExtensionLookup
	gateways   GatewayLookup
	logger     *slog.Logger
}

// NewCompiler creates a Compiler.
func NewCompiler(resolver *settings.Resolver, extensions ExtensionLookup, gateways GatewayLookup, logger *slog.Logger) *Compiler {
	return &Compiler{
		resolver:   resolver,
		extensions: extensions,
		gateways:   gateways,
		logger:     logger.With("subsystem", "dialplan"),
	}
}

// extensionRoot builds the document root with the fixed leading attribute
// order name, continue, uuid.
func extensionRoot(name string, cont bool, uuid string) *Node {
	return NewNode("extension",
		"name", name,
		"continue", strconv.FormatBool(cont),
		"uuid", uuid,
	)
}

// isPublicContext reports whether a context name selects inbound routing:
// public itself, a public@realm variant, or a dotted .public suffix.
func isPublicContext(ctx string) bool {
	return ctx == "public" ||
		strings.HasPrefix(ctx, "public@") ||
		strings.HasSuffix(ctx, ".public")
}

// publicPrelude emits the inline setters inbound routing requires before
// the first action of a group.
func publicPrelude(cond *Node, tenant Tenant) {
	cond.Action("set", "call_direction=inbound", true)
	cond.Action("set", "domain_uuid="+tenant.ID, true)
	cond.Action("set", "domain_name="+tenant.Name, true)
}

func tagOrder(tag string) int {
	switch tag {
	case "condition":
		return 0
	case "action":
		return 1
	default:
		return 2
	}
}

// sortDetails orders rows by group, then condition before action before
// anti-action, then sequence.
func sortDetails(details []models.DialplanDetail) {
	sort.SliceStable(details, func(i, j int) bool {
		if details[i].Group != details[j].Group {
			return details[i].Group < details[j].Group
		}
		if a, b := tagOrder(details[i].Tag), tagOrder(details[j].Tag); a != b {
			return a < b
		}
		return details[i].Sequence < details[j].Sequence
	})
}

// CompileGeneric builds extension XML from typed detail rows. Consecutive
// condition rows whose type belongs to the time attribute set merge into
// one condition element; the public-context prelude is inserted before the
// first action of each group.
func (c *Compiler) CompileGeneric(rec *models.DialplanRecord, details []models.DialplanDetail, tenant Tenant) string {
	rows := make([]models.DialplanDetail, len(details))
	copy(rows, details)
	sortDetails(rows)

	root := extensionRoot(rec.Name, rec.Continue, rec.ID)
	public := isPublicContext(rec.Context)

	var (
		cur        *Node
		curIsTime  bool
		timeValues map[string]string
		timeBreak  string
		started    = false
		preluded   = false
		group      = 0
	)

	flushTime := func() {
		if !curIsTime {
			return
		}
		for _, a := range timeAttrs {
			if v, ok := timeValues[a]; ok {
				cur.SetAttr(a, v)
			}
		}
		if timeBreak != "" {
			cur.SetAttr("break", timeBreak)
		}
		curIsTime = false
	}

	for _, d := range rows {
		if started && d.Group != group {
			flushTime()
			cur = nil
			preluded = false
		}
		group = d.Group
		started = true

		switch d.Tag {
		case "condition":
			if isTimeAttr(d.Type) {
				if !curIsTime {
					flushTime()
					cur = root.Add(NewNode("condition"))
					curIsTime = true
					timeValues = map[string]string{}
					timeBreak = ""
				}
				timeValues[d.Type] = d.Data
				if d.Break != "" {
					timeBreak = d.Break
				}
				continue
			}
			flushTime()
			cur = root.Add(NewNode("condition", "field", d.Type, "expression", d.Data))
			if d.Break != "" {
				cur.SetAttr("break", d.Break)
			}
		case "action", "anti-action":
			flushTime()
			if cur == nil {
				cur = root.Add(NewNode("condition"))
			}
			if d.Tag == "action" {
				if public && !preluded {
					preluded = true
					if !(d.Type == "set" && d.Data == "call_direction=inbound" && d.Inline) {
						publicPrelude(cur, tenant)
					}
				}
				cur.Action(d.Type, d.Data, d.Inline)
			} else {
				cur.AntiAction(d.Type, d.Data)
			}
		}
	}
	flushTime()

	return Render(root)
}
