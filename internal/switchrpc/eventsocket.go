package switchrpc

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	// Read pacing on a reply body without a Content-Length: once bytes have
	// arrived keep reading on a short deadline, give up entirely after the
	// longer one with nothing received.
	dataTimeout   = 10 * time.Millisecond
	noDataTimeout = 100 * time.Millisecond

	dialTimeout = 5 * time.Second
)

// SocketConfig configures the direct event-socket transport.
type SocketConfig struct {
	Addr     string
	Password string
	Host     string // hostname label attached to replies
}

// Conn is a single authenticated event-socket connection. It is not safe
// for concurrent use; callers borrow one from a Pool.
type Conn struct {
	cfg    SocketConfig
	conn   net.Conn
	reader *bufio.Reader
}

// Dial opens and authenticates one event-socket connection.
func Dial(ctx context.Context, cfg SocketConfig) (*Conn, error) {
	d := net.Dialer{Timeout: dialTimeout}
	nc, err := d.DialContext(ctx, "tcp", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("%w: dialing %s: %v", ErrUnavailable, cfg.Addr, err)
	}
	c := &Conn{cfg: cfg, conn: nc, reader: bufio.NewReader(nc)}

	headers, _, err := c.readFrame(noDataTimeout)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("reading greeting: %w", err)
	}
	if headers["Content-Type"] != "auth/request" {
		nc.Close()
		return nil, fmt.Errorf("unexpected greeting content type %q", headers["Content-Type"])
	}

	if err := c.write("auth " + cfg.Password); err != nil {
		nc.Close()
		return nil, err
	}
	reply, err := c.readReply()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("reading auth reply: %w", err)
	}
	if !reply.OK() {
		nc.Close()
		return nil, fmt.Errorf("authentication rejected: %s", reply.Headers["Reply-Text"])
	}
	return c, nil
}

// Api runs one api command and returns its reply.
func (c *Conn) Api(command string) (Response, error) {
	if err := c.write("api " + command); err != nil {
		return Response{}, err
	}
	return c.readReply()
}

// Raw sends an already-framed payload, such as a sendevent block, and
// returns the reply.
func (c *Conn) Raw(payload string) (Response, error) {
	if err := c.write(payload); err != nil {
		return Response{}, err
	}
	return c.readReply()
}

// Close tears down the connection.
func (c *Conn) Close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// write sends one command block; the protocol terminates commands with a
// blank line.
func (c *Conn) write(payload string) error {
	if c.conn == nil {
		return ErrUnavailable
	}
	if _, err := c.conn.Write([]byte(payload + "\n\n")); err != nil {
		return fmt.Errorf("%w: writing command: %v", ErrUnavailable, err)
	}
	return nil
}

// readReply consumes frames until it finds the command reply, skipping
// interleaved event frames.
func (c *Conn) readReply() (Response, error) {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		headers, body, err := c.readFrame(noDataTimeout)
		if err != nil {
			return Response{}, err
		}
		switch headers["Content-Type"] {
		case "command/reply", "api/response":
			return Response{Host: c.cfg.Host, Headers: headers, Body: body}, nil
		}
	}
	return Response{}, ErrTimeout
}

// readFrame reads one header block plus its body. A Content-Length header
// sizes the body exactly; otherwise the body is read until the data runs
// dry under the short deadline.
func (c *Conn) readFrame(wait time.Duration) (map[string]string, string, error) {
	if c.conn == nil {
		return nil, "", ErrUnavailable
	}
	c.conn.SetReadDeadline(time.Now().Add(wait))

	headers := make(map[string]string)
	for {
		line, err := c.reader.ReadString('\n')
		if err != nil {
			if isTimeout(err) && len(headers) == 0 {
				return nil, "", ErrTimeout
			}
			return nil, "", fmt.Errorf("%w: reading headers: %v", ErrUnavailable, err)
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		if k, v, ok := strings.Cut(line, ":"); ok {
			headers[k] = strings.TrimSpace(v)
		}
		// Bytes are flowing; tighten the deadline.
		c.conn.SetReadDeadline(time.Now().Add(dataTimeout))
	}

	if cl := headers["Content-Length"]; cl != "" {
		n, err := strconv.Atoi(cl)
		if err != nil {
			return nil, "", fmt.Errorf("bad content length %q", cl)
		}
		buf := make([]byte, n)
		c.conn.SetReadDeadline(time.Now().Add(noDataTimeout))
		if _, err := io.ReadFull(c.reader, buf); err != nil {
			return nil, "", fmt.Errorf("%w: reading body: %v", ErrUnavailable, err)
		}
		return headers, string(buf), nil
	}
	return headers, "", nil
}

func isTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}

// Pool hands out authenticated connections. One connection serves one
// caller at a time.
type Pool struct {
	cfg    SocketConfig
	logger *slog.Logger

	mu   sync.Mutex
	idle []*Conn
}

// NewPool creates a connection pool.
func NewPool(cfg SocketConfig, logger *slog.Logger) *Pool {
	return &Pool{cfg: cfg, logger: logger.With("subsystem", "eventsocket")}
}

// Get returns an idle connection or dials a new one.
func (p *Pool) Get(ctx context.Context) (*Conn, error) {
	p.mu.Lock()
	if n := len(p.idle); n > 0 {
		c := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.mu.Unlock()
		return c, nil
	}
	p.mu.Unlock()
	return Dial(ctx, p.cfg)
}

// Put returns a connection to the pool.
func (p *Pool) Put(c *Conn) {
	if c == nil || c.conn == nil {
		return
	}
	p.mu.Lock()
	p.idle = append(p.idle, c)
	p.mu.Unlock()
}

// Close discards all idle connections.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.idle {
		c.Close()
	}
	p.idle = nil
	return nil
}

// SocketRPC adapts the connection pool to the SwitchRPC interface. The
// socket transport reaches a single switch node.
type SocketRPC struct {
	pool *Pool

	mu      sync.Mutex
	pending []Response
}

// NewSocketRPC creates the socket-backed fabric transport.
func NewSocketRPC(cfg SocketConfig, logger *slog.Logger) *SocketRPC {
	return &SocketRPC{pool: NewPool(cfg, logger)}
}

// Connect verifies the switch is reachable by dialing once.
func (s *SocketRPC) Connect(ctx context.Context) error {
	c, err := s.pool.Get(ctx)
	if err != nil {
		return err
	}
	s.pool.Put(c)
	return nil
}

// Send runs the command immediately and stashes the reply for Receive.
// A sendevent payload passes through unframed; anything else is an api
// command.
func (s *SocketRPC) Send(ctx context.Context, payload, host string) error {
	c, err := s.pool.Get(ctx)
	if err != nil {
		return err
	}

	var resp Response
	if strings.HasPrefix(payload, "sendevent ") {
		resp, err = c.Raw(payload)
	} else {
		resp, err = c.Api(payload)
	}
	if err != nil {
		c.Close()
		return err
	}
	s.pool.Put(c)

	s.mu.Lock()
	s.pending = append(s.pending, resp)
	s.mu.Unlock()
	return nil
}

// Receive drains up to n stashed replies.
func (s *SocketRPC) Receive(ctx context.Context, n int) ([]Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n > len(s.pending) {
		n = len(s.pending)
	}
	out := s.pending[:n]
	s.pending = s.pending[n:]
	return out, nil
}

// Close shuts the pool down.
func (s *SocketRPC) Close() error {
	return s.pool.Close()
}
