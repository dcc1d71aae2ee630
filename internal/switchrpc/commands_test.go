package switchrpc

import (
	"context"
	"io"
	"log/slog"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockRPC records sent payloads and serves scripted replies.
type mockRPC struct {
	sent    []string
	replies []Response
}

func (m *mockRPC) Connect(ctx context.Context) error { return nil }

func (m *mockRPC) Send(ctx context.Context, payload, host string) error {
	m.sent = append(m.sent, payload)
	return nil
}

func (m *mockRPC) Receive(ctx context.Context, n int) ([]Response, error) {
	if n > len(m.replies) {
		n = len(m.replies)
	}
	out := m.replies[:n]
	m.replies = m.replies[n:]
	return out, nil
}

func (m *mockRPC) Close() error { return nil }

func okReplies(n int) []Response {
	out := make([]Response, n)
	for i := range out {
		out[i] = Response{Body: "+OK"}
	}
	return out
}

func TestCommandFormatting(t *testing.T) {
	tests := []struct {
		name string
		run  func(f *Fabric) error
		want string
	}{
		{"reloadxml", func(f *Fabric) error { return f.ReloadXML(context.Background(), "") }, "reloadxml"},
		{"reloadacl", func(f *Fabric) error { return f.ReloadACL(context.Background(), "switch1") }, "reloadacl"},
		{"uuid_kill", func(f *Fabric) error { return f.UUIDKill(context.Background(), "abc-123", "") }, "uuid_kill abc-123"},
		{"flush inbound reg", func(f *Fabric) error {
			return f.FlushInboundReg(context.Background(), "internal", "1001", "tenant.example.com", "")
		}, "sofia profile internal flush_inbound_reg 1001@tenant.example.com reboot"},
		{"queue reload", func(f *Fabric) error {
			return f.QueueCommand(context.Background(), "reload", "support@tenant.example.com", "")
		}, "callcenter_config queue reload support@tenant.example.com"},
		{"tier add", func(f *Fabric) error {
			return f.TierCommand(context.Background(), "add", "support@tenant.example.com", "agent1", "", "1", "1")
		}, "callcenter_config tier add support@tenant.example.com agent1 1 1"},
		{"agent set", func(f *Fabric) error {
			return f.AgentCommand(context.Background(), "set", "agent1", "", "status", "'Available'")
		}, "callcenter_config agent set agent1 status 'Available'"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rpc := &mockRPC{replies: okReplies(1)}
			f := NewFabric(rpc, []string{"switch1"}, testLogger())
			if err := tt.run(f); err != nil {
				t.Fatalf("command error: %v", err)
			}
			if len(rpc.sent) != 1 || rpc.sent[0] != tt.want {
				t.Errorf("sent %q, want %q", rpc.sent, tt.want)
			}
		})
	}
}

func TestCommandOKFailsOnErrReply(t *testing.T) {
	rpc := &mockRPC{replies: []Response{{Host: "switch1", Body: "-ERR no such acl"}}}
	f := NewFabric(rpc, []string{"switch1"}, testLogger())

	if err := f.ReloadACL(context.Background(), "switch1"); err == nil {
		t.Fatal("ReloadACL() with -ERR reply succeeded")
	}
}

func TestShowRegistrationsParsesRows(t *testing.T) {
	body := `{"row_count":1,"rows":[{"reg_user":"1001","realm":"tenant.example.com","network_ip":"203.0.113.7","network_port":"5060"}]}`
	rpc := &mockRPC{replies: []Response{{Host: "switch1", Body: body}}}
	f := NewFabric(rpc, []string{"switch1"}, testLogger())

	regs, err := f.ShowRegistrations(context.Background(), "switch1")
	if err != nil {
		t.Fatalf("ShowRegistrations() error: %v", err)
	}
	if len(regs) != 1 {
		t.Fatalf("got %d registrations, want 1", len(regs))
	}
	if regs[0].RegUser != "1001" || regs[0].NetworkIP != "203.0.113.7" {
		t.Errorf("registration = %+v", regs[0])
	}
	if regs[0].Hostname != "switch1" {
		t.Errorf("hostname = %q, want switch1", regs[0].Hostname)
	}
	if rpc.sent[0] != "show registrations as json" {
		t.Errorf("sent %q", rpc.sent[0])
	}
}

func TestBuildNotify(t *testing.T) {
	got := BuildNotify("internal", "check-sync;reboot=true", "1001", "tenant.example.com", "application/simple-message-summary")
	want := "sendevent NOTIFY\n" +
		"profile: internal\n" +
		"event-string: check-sync;reboot=true\n" +
		"user: 1001\n" +
		"host: tenant.example.com\n" +
		"content-type: application/simple-message-summary"
	if got != want {
		t.Errorf("BuildNotify() = %q, want %q", got, want)
	}
}

func TestFabricFansOutToAllHosts(t *testing.T) {
	rpc := &mockRPC{replies: okReplies(2)}
	f := NewFabric(rpc, []string{"switch1", "switch2"}, testLogger())

	replies, err := f.Command(context.Background(), "status", "")
	if err != nil {
		t.Fatalf("Command() error: %v", err)
	}
	if len(replies) != 2 {
		t.Fatalf("got %d replies, want 2", len(replies))
	}
}
