package dialplan

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/tappbx/tappbx/internal/database/models"
	"github.com/tappbx/tappbx/internal/settings"
)

var emergencyPatterns = map[string]bool{
	`(^911$|^933$)`: true,
	`(^999$|^112$)`: true,
}

// CompileInbound builds the extension for an inbound route. The dialed
// pattern is normalised through Str2Regex before it becomes the match
// expression.
func (c *Compiler) CompileInbound(r *models.InboundRoute, tenant Tenant) string {
	root := extensionRoot(r.Name, true, r.DialplanID)
	cond := root.Add(NewNode("condition",
		"field", "destination_number",
		"expression", Str2Regex(r.Number, r.Prefix),
	))

	if isPublicContext(r.Context) {
		publicPrelude(cond, tenant)
	}
	if r.CIDNamePrefix != "" {
		cond.Action("set", "effective_caller_id_name="+r.CIDNamePrefix+"#${caller_id_name}", false)
	}
	if r.AccountCode != "" {
		cond.Action("set", "accountcode="+r.AccountCode, true)
	}
	if r.Record {
		cond.Action("set", "record_path=${recordings_dir}/${domain_name}/archive/${strftime(%Y)}/${strftime(%b)}/${strftime(%d)}", true)
		cond.Action("set", "record_name=${uuid}.${record_ext}", true)
		cond.Action("set", "record_append=true", true)
		cond.Action("set", "record_in_progress=true", true)
		cond.Action("set", "recording_follow_transfer=true", true)
		cond.Action("record_session", "${record_path}/${record_name}", false)
	}
	cond.Action(r.App, r.Data, false)

	return Render(root)
}

// CompileOutbound builds the extension for an outbound route. Gateway
// references are resolved to bridge strings; the first reachable gateway
// supplies the primary dial action and the rest become bridge fallbacks.
func (c *Compiler) CompileOutbound(ctx context.Context, r *models.OutboundRoute, tenant Tenant) (string, error) {
	root := extensionRoot(r.Name, false, r.DialplanID)

	root.Add(NewNode("condition", "field", "${user_exists}", "expression", "^false$"))
	if r.TollAllow != "" {
		root.Add(NewNode("condition", "field", "${toll_allow}", "expression", r.TollAllow))
	}

	cond := root.Add(NewNode("condition",
		"field", "destination_number",
		"expression", r.Number,
	))
	cond.Action("export", "call_direction=outbound", true)
	cond.Action("unset", "call_timeout", false)
	if r.PINRequired {
		cond.Action("set", "pin_number=database", false)
		cond.Action("lua", "pin.lua", false)
	}
	if r.AccountCode != "" {
		cond.Action("set", "accountcode="+r.AccountCode, false)
	} else {
		cond.Action("set", "accountcode=${accountcode}", false)
	}
	if emergencyPatterns[r.Number] {
		cond.Action("set", "effective_caller_id_name=${emergency_caller_id_name}", false)
		cond.Action("set", "effective_caller_id_number=${emergency_caller_id_number}", false)
	} else {
		cond.Action("set", "effective_caller_id_name=${outbound_caller_id_name}", false)
		cond.Action("set", "effective_caller_id_number=${outbound_caller_id_number}", false)
	}
	if r.Limit > 0 {
		cond.Action("limit", fmt.Sprintf("hash ${domain_name} outbound %d !USER_BUSY", r.Limit), false)
	}
	cond.Action("set", "hangup_after_bridge=true", false)

	ids := []*string{r.Gateway1ID, r.Gateway2ID, r.Gateway3ID}
	dialled := 0
	for i, id := range ids {
		if id == nil || *id == "" {
			continue
		}
		gw, err := c.gateways.GetByID(ctx, *id)
		if err != nil {
			return "", fmt.Errorf("resolve gateway %d: %w", i+1, err)
		}
		if gw == nil {
			c.logger.Warn("outbound route references missing gateway", "route", r.ID, "gateway", *id)
			continue
		}
		primary := dialled == 0
		dialled++
		switch gw.Type {
		case "transfer":
			if !primary {
				c.logger.Warn("transfer gateway ignored as fallback", "route", r.ID, "gateway", gw.ID)
				dialled--
				continue
			}
			cond.Action("transfer", gw.Prefix+"$1 XML ${domain_name}", false)
		case "enum":
			cond.Action("bridge", "${enum("+gw.Prefix+"$1)}", false)
		default:
			cond.Action("bridge", "sofia/gateway/"+gw.ID+"/"+gw.Prefix+"$1", false)
		}
	}
	if dialled == 0 {
		return "", fmt.Errorf("outbound route %s has no usable gateway", r.ID)
	}

	return Render(root), nil
}

// leg is one entry of a ring-group bridge string.
type leg struct {
	vars     []string
	endpoint string
}

func (l leg) String() string {
	if len(l.vars) == 0 {
		return l.endpoint
	}
	return "[" + strings.Join(l.vars, ",") + "]" + l.endpoint
}

func strategySeparator(strategy string) string {
	switch strategy {
	case models.StrategySequence, models.StrategyRollover:
		return "|"
	case models.StrategyEnterprise:
		return "_"
	default:
		return ","
	}
}

// BridgeString assembles the dial string for a ring group. The HTTAPI
// responder uses this directly; CompileRingGroup wraps it in extension XML.
func (c *Compiler) BridgeString(ctx context.Context, rg *models.RingGroup, dests []models.RingGroupDestination, tenant Tenant) (string, error) {
	var legs []leg
	for _, d := range dests {
		expanded, err := c.resolveLeg(ctx, rg, d, tenant)
		if err != nil {
			return "", err
		}
		legs = append(legs, expanded...)
	}
	if len(legs) == 0 {
		return "", fmt.Errorf("ring group %s has no destinations", rg.ID)
	}
	parts := make([]string, len(legs))
	for i, l := range legs {
		parts[i] = l.String()
	}
	return strings.Join(parts, strategySeparator(rg.Strategy)), nil
}

// resolveLeg turns one destination row into one or more bridge legs. A
// local extension with follow-me enabled expands into its follow-me list
// when the group itself allows it; expansion does not recurse.
func (c *Compiler) resolveLeg(ctx context.Context, rg *models.RingGroup, d models.RingGroupDestination, tenant Tenant) ([]leg, error) {
	ext, err := c.extensions.GetByNumber(ctx, rg.DomainID, d.Number)
	if err != nil {
		return nil, fmt.Errorf("resolve destination %s: %w", d.Number, err)
	}

	if ext != nil && rg.FollowMe && ext.FollowMe {
		fm, err := c.extensions.ListFollowMe(ctx, ext.ID)
		if err != nil {
			return nil, fmt.Errorf("follow-me for %s: %w", d.Number, err)
		}
		if len(fm) > 0 {
			var legs []leg
			for _, f := range fm {
				sub, err := c.extensions.GetByNumber(ctx, rg.DomainID, f.Destination)
				if err != nil {
					return nil, fmt.Errorf("resolve follow-me %s: %w", f.Destination, err)
				}
				legs = append(legs, buildLeg(models.RingGroupDestination{
					Number:  f.Destination,
					Delay:   f.Delay,
					Timeout: f.Timeout,
					Prompt:  f.Prompt,
				}, sub, tenant))
			}
			return legs, nil
		}
	}

	return []leg{buildLeg(d, ext, tenant)}, nil
}

func buildLeg(d models.RingGroupDestination, ext *models.Extension, tenant Tenant) leg {
	l := leg{vars: []string{"dialed_extension=" + d.Number}}
	if ext != nil {
		l.vars = append(l.vars, "extension_uuid="+ext.ID)
	}
	l.vars = append(l.vars, "sip_invite_domain="+tenant.Name)
	if d.Prompt {
		l.vars = append(l.vars, "confirm=true")
		if d.PromptFile != "" {
			l.vars = append(l.vars, "group_confirm_file="+d.PromptFile)
		}
		if d.PromptKey != "" {
			l.vars = append(l.vars, "group_confirm_key="+d.PromptKey)
		}
	}
	if d.Timeout > 0 {
		l.vars = append(l.vars, "leg_timeout="+strconv.Itoa(d.Timeout))
	}
	if d.Delay > 0 {
		l.vars = append(l.vars, "leg_delay_start="+strconv.Itoa(d.Delay))
	}
	if ext != nil {
		l.endpoint = "user/" + d.Number + "@" + tenant.Name
	} else {
		l.endpoint = "loopback/" + d.Number
	}
	return l
}

// CompileRingGroup builds the extension for a ring group.
func (c *Compiler) CompileRingGroup(ctx context.Context, rg *models.RingGroup, dests []models.RingGroupDestination, tenant Tenant) (string, error) {
	root := extensionRoot(rg.Name, false, rg.DialplanID)
	cond := root.Add(NewNode("condition",
		"field", "destination_number",
		"expression", "^"+rg.Extension+"$",
	))
	cond.Action("set", "ring_group_uuid="+rg.ID, true)

	if rg.Forward && rg.ForwardTarget != "" {
		cond.Action("transfer", rg.ForwardTarget+" XML "+tenant.Name, false)
		return Render(root), nil
	}

	if rg.CIDNamePrefix != "" {
		cond.Action("set", "effective_caller_id_name="+rg.CIDNamePrefix+"#${caller_id_name}", false)
	}
	if rg.Ringback != "" {
		cond.Action("set", "ringback="+rg.Ringback, false)
		cond.Action("set", "transfer_ringback="+rg.Ringback, false)
	}
	if rg.Greeting != "" {
		cond.Action("playback", rg.Greeting, false)
	}
	if rg.CallTimeout > 0 {
		cond.Action("set", "call_timeout="+strconv.Itoa(rg.CallTimeout), false)
	}

	bridge, err := c.BridgeString(ctx, rg, dests, tenant)
	if err != nil {
		return "", err
	}
	cond.Action("bridge", bridge, false)
	if rg.TimeoutApp != "" {
		cond.Action(rg.TimeoutApp, rg.TimeoutData, false)
	}

	return Render(root), nil
}

// CompileIVR builds the extension that hands a call to an IVR menu.
func (c *Compiler) CompileIVR(ctx context.Context, m *models.IVRMenu, tenant Tenant) string {
	scope := settings.ForDomain(m.DomainID)
	root := extensionRoot(m.Name, false, m.DialplanID)
	cond := root.Add(NewNode("condition",
		"field", "destination_number",
		"expression", "^"+m.Extension+"$",
	))
	cond.Action("answer", "", false)
	cond.Action("sleep", "1000", false)
	cond.Action("set", "presence_id="+m.Extension+"@"+tenant.Name, true)
	cond.Action("set", "default_language="+c.resolver.DefaultLanguage(ctx, scope), true)
	cond.Action("set", "default_dialect="+c.resolver.DefaultDialect(ctx, scope), true)
	cond.Action("set", "default_voice="+c.resolver.DefaultVoice(ctx, scope), true)
	if m.Ringback != "" {
		cond.Action("set", "ringback="+m.Ringback, true)
		cond.Action("set", "transfer_ringback="+m.Ringback, true)
	}
	cond.Action("ivr", m.ID, false)

	return Render(root)
}

// CompileIVRConfig builds the ivr.conf menu definition the switch loads
// when the ivr application runs. The menu name is the record id, matching
// what CompileIVR hands to the ivr action.
func (c *Compiler) CompileIVRConfig(ctx context.Context, m *models.IVRMenu, opts []models.IVRMenuOption, tenant Tenant) string {
	scope := settings.ForDomain(m.DomainID)

	root := NewNode("configuration", "name", "ivr.conf", "description", "IVR menus")
	menus := root.Add(NewNode("menus"))
	menu := menus.Add(NewNode("menu", "name", m.ID))
	if m.GreetLong != "" {
		menu.SetAttr("greet-long", m.GreetLong)
	}
	if m.GreetShort != "" {
		menu.SetAttr("greet-short", m.GreetShort)
	}
	if m.InvalidSound != "" {
		menu.SetAttr("invalid-sound", m.InvalidSound)
	}
	if m.ExitSound != "" {
		menu.SetAttr("exit-sound", m.ExitSound)
	}
	menu.SetAttr("timeout", strconv.Itoa(m.Timeout))
	menu.SetAttr("inter-digit-timeout", strconv.Itoa(m.InterDigitTimeout))
	menu.SetAttr("max-failures", strconv.Itoa(m.MaxFailures))
	menu.SetAttr("max-timeouts", strconv.Itoa(m.MaxTimeouts))
	menu.SetAttr("digit-len", strconv.Itoa(m.DigitLen))
	if m.TTSEngine != "" {
		menu.SetAttr("tts-engine", m.TTSEngine)
		voice := m.TTSVoice
		if voice == "" {
			voice = c.resolver.DefaultVoice(ctx, scope)
		}
		menu.SetAttr("tts-voice", voice)
	}

	for _, o := range opts {
		param := o.App
		if o.Data != "" {
			param += " " + o.Data
		}
		menu.Add(NewNode("entry",
			"action", "menu-exec-app",
			"digits", o.Digits,
			"param", param,
		))
	}
	if m.DirectDial {
		menu.Add(NewNode("entry",
			"action", "menu-exec-app",
			"digits", `/^(\d{2,`+strconv.Itoa(m.DigitLen)+`})$/`,
			"param", "transfer $1 XML "+menuContext(m, tenant),
		))
	}
	if m.ExitApp != "" {
		menu.Add(NewNode("entry",
			"action", "menu-exec-app",
			"digits", "*",
			"param", strings.TrimSpace(m.ExitApp+" "+m.ExitData),
		))
	}

	return Render(root)
}

func menuContext(m *models.IVRMenu, tenant Tenant) string {
	if m.Context != "" {
		return m.Context
	}
	return tenant.Name
}

// timeBlock is one match block of a time condition. Matches is keyed by
// time attribute name; Preset names a stored match template that replaces
// Matches entirely.
type timeBlock struct {
	Preset  string            `json:"preset,omitempty"`
	Matches map[string]string `json:"matches,omitempty"`
	App     string            `json:"app"`
	Data    string            `json:"data"`
}

func (c *Compiler) presetMatches(ctx context.Context, domainID, name string) map[string]string {
	raw, err := c.resolver.Text(ctx, settings.ForDomain(domainID), "time_conditions", name)
	if err != nil {
		c.logger.Warn("time condition preset missing", "preset", name, "err", err)
		return nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		c.logger.Warn("time condition preset malformed", "preset", name, "err", err)
		return nil
	}
	return m
}

// CompileTimeCondition builds the extension for a time condition. Every
// block renders as a destination anchor followed by a break=never match
// condition; the document closes with the default action under a final
// anchor.
func (c *Compiler) CompileTimeCondition(ctx context.Context, tc *models.TimeCondition, tenant Tenant) string {
	root := extensionRoot(tc.Name, true, tc.DialplanID)
	anchor := "^" + tc.Extension + "$"

	var blocks []timeBlock
	if tc.Settings != "" {
		if err := json.Unmarshal([]byte(tc.Settings), &blocks); err != nil {
			c.logger.Warn("time condition settings malformed", "record", tc.ID, "err", err)
			blocks = nil
		}
	}

	for _, b := range blocks {
		matches := b.Matches
		if b.Preset != "" {
			if m := c.presetMatches(ctx, tc.DomainID, b.Preset); m != nil {
				matches = m
			}
		}
		empty := true
		for _, a := range timeAttrs {
			if matches[a] != "" {
				empty = false
				break
			}
		}
		if empty {
			continue
		}

		root.Add(NewNode("condition", "field", "destination_number", "expression", anchor))
		match := root.Add(NewNode("condition"))
		for _, a := range timeAttrs {
			if v := matches[a]; v != "" {
				match.SetAttr(a, v)
			}
		}
		match.SetAttr("break", "never")
		match.Action(b.App, b.Data, false)
	}

	final := root.Add(NewNode("condition", "field", "destination_number", "expression", anchor))
	final.Action(tc.DefaultApp, tc.DefaultData, false)

	return Render(root)
}

// CompileConference builds the extension for a conference centre. The call
// is handed to the HTTAPI responder which drives room and PIN collection.
func (c *Compiler) CompileConference(ctx context.Context, cc *models.ConferenceCentre, tenant Tenant) string {
	root := extensionRoot(cc.Name, false, cc.DialplanID)
	cond := root.Add(NewNode("condition",
		"field", "destination_number",
		"expression", "^"+cc.Extension+"$",
	))
	cond.Action("answer", "", false)
	cond.Action("sleep", "1000", false)
	cond.Action("set", "conference_centre_uuid="+cc.ID, true)
	if cc.Record {
		cond.Action("set", "conference_record=true", true)
	}
	cond.Action("httapi", "{url="+c.resolver.HTTAPIURL(ctx)+"/conference}", false)

	return Render(root)
}

// CompileQueue builds the extension that places a call into a call-centre
// queue.
func (c *Compiler) CompileQueue(q *models.Queue, tenant Tenant) string {
	root := extensionRoot(q.Name, false, q.DialplanID)
	cond := root.Add(NewNode("condition",
		"field", "destination_number",
		"expression", "^"+q.Extension+"$",
	))
	cond.Action("answer", "", false)
	cond.Action("sleep", "1000", false)
	if q.MOHSound != "" {
		cond.Action("set", "cc_moh_override="+q.MOHSound, true)
	}
	cond.Action("callcenter", q.ID, false)

	return Render(root)
}

// CompileCallFlow builds the extension for a call flow. The destination
// number routes to the side selected by the current status; the feature
// code hands the call to the HTTAPI responder, which flips the status and
// recompiles.
func (c *Compiler) CompileCallFlow(ctx context.Context, cf *models.CallFlow, tenant Tenant) string {
	root := extensionRoot(cf.Name, false, cf.DialplanID)

	route := root.Add(NewNode("condition",
		"field", "destination_number",
		"expression", "^"+cf.Extension+"$",
	))
	if cf.Status == "true" {
		route.Action(cf.AppA, cf.DataA, false)
	} else {
		route.Action(cf.AppB, cf.DataB, false)
	}

	toggle := root.Add(NewNode("condition",
		"field", "destination_number",
		"expression", "^"+regexp.QuoteMeta(cf.FeatureCode)+"$",
	))
	toggle.Action("answer", "", false)
	toggle.Action("set", "call_flow_uuid="+cf.ID, true)
	toggle.Action("httapi", "{url="+c.resolver.HTTAPIURL(ctx)+"/callflow}", false)

	return Render(root)
}
