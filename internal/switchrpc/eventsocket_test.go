package switchrpc

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"testing"
)

// fakeSwitch answers the event-socket handshake and one api command per
// connection.
func fakeSwitch(t *testing.T, password string, handle func(cmd string) string) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(conn net.Conn) {
				defer conn.Close()
				reader := bufio.NewReader(conn)

				fmt.Fprint(conn, "Content-Type: auth/request\n\n")

				cmd, err := readBlock(reader)
				if err != nil {
					return
				}
				if cmd != "auth "+password {
					fmt.Fprint(conn, "Content-Type: command/reply\nReply-Text: -ERR invalid\n\n")
					return
				}
				fmt.Fprint(conn, "Content-Type: command/reply\nReply-Text: +OK accepted\n\n")

				for {
					cmd, err := readBlock(reader)
					if err != nil {
						return
					}
					body := handle(strings.TrimPrefix(cmd, "api "))
					fmt.Fprintf(conn, "Content-Type: api/response\nContent-Length: %d\n\n%s", len(body), body)
				}
			}(conn)
		}
	}()
	return ln.Addr().String()
}

func readBlock(r *bufio.Reader) (string, error) {
	var lines []string
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return "", err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if len(lines) > 0 {
				return strings.Join(lines, "\n"), nil
			}
			continue
		}
		lines = append(lines, line)
	}
}

func TestDialAuthenticates(t *testing.T) {
	addr := fakeSwitch(t, "ClueCon", func(cmd string) string { return "+OK" })

	c, err := Dial(context.Background(), SocketConfig{Addr: addr, Password: "ClueCon", Host: "switch1"})
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	defer c.Close()
}

func TestDialRejectsBadPassword(t *testing.T) {
	addr := fakeSwitch(t, "ClueCon", func(cmd string) string { return "+OK" })

	_, err := Dial(context.Background(), SocketConfig{Addr: addr, Password: "wrong"})
	if err == nil {
		t.Fatal("Dial() with bad password succeeded")
	}
}

func TestApiRoundTrip(t *testing.T) {
	addr := fakeSwitch(t, "ClueCon", func(cmd string) string {
		if cmd == "reloadxml" {
			return "+OK [Success]"
		}
		return "-ERR unknown command"
	})

	c, err := Dial(context.Background(), SocketConfig{Addr: addr, Password: "ClueCon", Host: "switch1"})
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	defer c.Close()

	resp, err := c.Api("reloadxml")
	if err != nil {
		t.Fatalf("Api() error: %v", err)
	}
	if !resp.OK() {
		t.Errorf("reply not OK: %q", resp.Body)
	}
	if resp.Host != "switch1" {
		t.Errorf("reply host = %q", resp.Host)
	}

	resp, err = c.Api("bogus")
	if err != nil {
		t.Fatalf("Api() error: %v", err)
	}
	if resp.OK() {
		t.Errorf("failure reply reported OK: %q", resp.Body)
	}
}

func TestSocketRPCSendReceive(t *testing.T) {
	addr := fakeSwitch(t, "ClueCon", func(cmd string) string { return "+OK " + cmd })
	rpc := NewSocketRPC(SocketConfig{Addr: addr, Password: "ClueCon", Host: "switch1"}, testLogger())
	defer rpc.Close()

	ctx := context.Background()
	if err := rpc.Connect(ctx); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	if err := rpc.Send(ctx, "status", ""); err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	replies, err := rpc.Receive(ctx, 1)
	if err != nil {
		t.Fatalf("Receive() error: %v", err)
	}
	if len(replies) != 1 || !strings.Contains(replies[0].Body, "status") {
		t.Fatalf("Receive() = %+v", replies)
	}
}

func TestResponseOK(t *testing.T) {
	tests := []struct {
		name string
		resp Response
		want bool
	}{
		{"body ok", Response{Body: "+OK [Success]"}, true},
		{"body err", Response{Body: "-ERR no reply"}, false},
		{"header ok", Response{Headers: map[string]string{"Reply-Text": "+OK accepted"}}, true},
		{"empty", Response{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.resp.OK(); got != tt.want {
				t.Errorf("OK() = %v, want %v", got, tt.want)
			}
		})
	}
}
