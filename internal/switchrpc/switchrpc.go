// Package switchrpc carries api commands to the switch nodes and collects
// their replies, over either a direct event-socket connection or the
// message broker.
package switchrpc

import (
	"context"
	"errors"
	"strings"
)

// ErrUnavailable is returned when the transport is not connected.
var ErrUnavailable = errors.New("switch transport unavailable")

// ErrTimeout is returned when replies do not arrive within the window.
var ErrTimeout = errors.New("switch reply timed out")

// Response is one switch reply.
type Response struct {
	Host    string
	Headers map[string]string
	Body    string
}

// OK reports whether the reply signals success. Switch api replies begin
// +OK on success and -ERR on failure.
func (r Response) OK() bool {
	body := strings.TrimSpace(r.Body)
	if body == "" {
		body = strings.TrimSpace(r.Headers["Reply-Text"])
	}
	return strings.HasPrefix(body, "+OK")
}

// SwitchRPC moves one command and its replies across a transport. Send with
// an empty host addresses every switch node. Receive blocks until n replies
// have arrived, the per-call timeout lapses, or ctx is cancelled.
type SwitchRPC interface {
	Connect(ctx context.Context) error
	Send(ctx context.Context, payload, host string) error
	Receive(ctx context.Context, n int) ([]Response, error)
	Close() error
}
