package switchrpc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
)

// Fabric wraps a transport with the command vocabulary the rest of the
// control plane speaks.
type Fabric struct {
	rpc    SwitchRPC
	hosts  []string
	logger *slog.Logger
}

// NewFabric creates a Fabric over the given transport. hosts lists every
// switch node an all-nodes command should reach.
func NewFabric(rpc SwitchRPC, hosts []string, logger *slog.Logger) *Fabric {
	return &Fabric{rpc: rpc, hosts: hosts, logger: logger.With("subsystem", "switchrpc")}
}

// expect returns how many replies a command addressed to host produces.
func (f *Fabric) expect(host string) int {
	if host != "" || len(f.hosts) == 0 {
		return 1
	}
	return len(f.hosts)
}

// Command sends one api command and collects the replies.
func (f *Fabric) Command(ctx context.Context, command, host string) ([]Response, error) {
	if err := f.rpc.Send(ctx, command, host); err != nil {
		return nil, err
	}
	return f.rpc.Receive(ctx, f.expect(host))
}

// commandOK runs a command and fails unless every reply begins +OK.
func (f *Fabric) commandOK(ctx context.Context, command, host string) error {
	replies, err := f.Command(ctx, command, host)
	if err != nil {
		return err
	}
	for _, r := range replies {
		if !r.OK() {
			return fmt.Errorf("%s failed on %s: %s", command, r.Host, strings.TrimSpace(r.Body))
		}
	}
	return nil
}

// ReloadXML asks the switch to re-fetch its XML configuration.
func (f *Fabric) ReloadXML(ctx context.Context, host string) error {
	return f.commandOK(ctx, "reloadxml", host)
}

// ReloadACL asks the switch to re-fetch its access lists.
func (f *Fabric) ReloadACL(ctx context.Context, host string) error {
	return f.commandOK(ctx, "reloadacl", host)
}

// Registration is one row of a registrations listing.
type Registration struct {
	RegUser     string `json:"reg_user"`
	Realm       string `json:"realm"`
	Token       string `json:"token"`
	URL         string `json:"url"`
	NetworkIP   string `json:"network_ip"`
	NetworkPort string `json:"network_port"`
	Hostname    string `json:"hostname"`
	MetaData    string `json:"metadata"`
}

type registrationsEnvelope struct {
	Rows []Registration `json:"rows"`
}

// ShowRegistrations lists live registrations across the addressed nodes.
func (f *Fabric) ShowRegistrations(ctx context.Context, host string) ([]Registration, error) {
	replies, err := f.Command(ctx, "show registrations as json", host)
	if err != nil {
		return nil, err
	}
	var out []Registration
	for _, r := range replies {
		var env registrationsEnvelope
		if err := json.Unmarshal([]byte(r.Body), &env); err != nil {
			f.logger.Warn("unparseable registrations reply", "host", r.Host, "error", err)
			continue
		}
		for i := range env.Rows {
			if env.Rows[i].Hostname == "" {
				env.Rows[i].Hostname = r.Host
			}
		}
		out = append(out, env.Rows...)
	}
	return out, nil
}

// Channel is one row of a channels listing.
type Channel struct {
	UUID         string `json:"uuid"`
	Direction    string `json:"direction"`
	CreatedEpoch string `json:"created_epoch"`
	Name         string `json:"name"`
	State        string `json:"state"`
	CIDName      string `json:"cid_name"`
	CIDNum       string `json:"cid_num"`
	Dest         string `json:"dest"`
	Application  string `json:"application"`
	Hostname     string `json:"hostname"`
}

type channelsEnvelope struct {
	Rows []Channel `json:"rows"`
}

// ShowChannels lists live channels across the addressed nodes.
func (f *Fabric) ShowChannels(ctx context.Context, host string) ([]Channel, error) {
	replies, err := f.Command(ctx, "show channels as json", host)
	if err != nil {
		return nil, err
	}
	var out []Channel
	for _, r := range replies {
		var env channelsEnvelope
		if err := json.Unmarshal([]byte(r.Body), &env); err != nil {
			f.logger.Warn("unparseable channels reply", "host", r.Host, "error", err)
			continue
		}
		for i := range env.Rows {
			if env.Rows[i].Hostname == "" {
				env.Rows[i].Hostname = r.Host
			}
		}
		out = append(out, env.Rows...)
	}
	return out, nil
}

// SofiaStatusUser queries one registration on a sofia profile.
func (f *Fabric) SofiaStatusUser(ctx context.Context, profile, user, realm, host string) ([]Response, error) {
	return f.Command(ctx, fmt.Sprintf("sofia status profile %s user %s@%s", profile, user, realm), host)
}

// FlushInboundReg drops a registration and tells the endpoint to reboot.
func (f *Fabric) FlushInboundReg(ctx context.Context, profile, user, realm, host string) error {
	return f.commandOK(ctx,
		fmt.Sprintf("sofia profile %s flush_inbound_reg %s@%s reboot", profile, user, realm), host)
}

// UUIDKill hangs up one channel.
func (f *Fabric) UUIDKill(ctx context.Context, uuid, host string) error {
	return f.commandOK(ctx, "uuid_kill "+uuid, host)
}

// QueueCommand manages a call-centre queue: action is load, reload or
// unload.
func (f *Fabric) QueueCommand(ctx context.Context, action, queue, host string) error {
	return f.commandOK(ctx,
		fmt.Sprintf("callcenter_config queue %s %s", action, queue), host)
}

// TierCommand manages a call-centre tier. For add, args are level and
// position; for set, args are the key and value; del takes none.
func (f *Fabric) TierCommand(ctx context.Context, action, queue, agent, host string, args ...string) error {
	cmd := fmt.Sprintf("callcenter_config tier %s %s %s", action, queue, agent)
	if len(args) > 0 {
		cmd += " " + strings.Join(args, " ")
	}
	return f.commandOK(ctx, cmd, host)
}

// AgentCommand manages a call-centre agent. For add, args carry the type;
// for set, the key and value; del takes none.
func (f *Fabric) AgentCommand(ctx context.Context, action, agent, host string, args ...string) error {
	cmd := fmt.Sprintf("callcenter_config agent %s %s", action, agent)
	if len(args) > 0 {
		cmd += " " + strings.Join(args, " ")
	}
	return f.commandOK(ctx, cmd, host)
}

// Notify pushes a NOTIFY event at a registered endpoint, typically
// check-sync or resync for phone reboots.
func (f *Fabric) Notify(ctx context.Context, profile, eventString, user, realm, contentType, host string) error {
	payload := BuildNotify(profile, eventString, user, realm, contentType)
	if err := f.rpc.Send(ctx, payload, host); err != nil {
		return err
	}
	replies, err := f.rpc.Receive(ctx, f.expect(host))
	if err != nil {
		return err
	}
	for _, r := range replies {
		if !r.OK() {
			return fmt.Errorf("notify failed on %s: %s", r.Host, strings.TrimSpace(r.Body))
		}
	}
	return nil
}

// BuildNotify frames a sendevent NOTIFY block.
func BuildNotify(profile, eventString, user, realm, contentType string) string {
	var b strings.Builder
	b.WriteString("sendevent NOTIFY\n")
	fmt.Fprintf(&b, "profile: %s\n", profile)
	fmt.Fprintf(&b, "event-string: %s\n", eventString)
	fmt.Fprintf(&b, "user: %s\n", user)
	fmt.Fprintf(&b, "host: %s\n", realm)
	fmt.Fprintf(&b, "content-type: %s", contentType)
	return b.String()
}
