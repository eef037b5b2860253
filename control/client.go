// Package control talks to the controller's plain-text command port.
//
// Every call opens a fresh TCP connection, writes one CRLF-terminated
// command and closes the connection. Query commands additionally collect
// the reply until a chunk containing the '>' prompt arrives, the peer closes
// the connection, or the read timeout elapses.
package control

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/charmbracelet/x/ansi"

	"github.com/benkokes/elite-EI65-robot-controller/errors"
)

// Default timings of the control exchange.
const (
	DefaultDialTimeout = 2 * time.Second
	DefaultSettleDelay = 250 * time.Millisecond
	DefaultReadTimeout = 500 * time.Millisecond
	DefaultReadChunk   = 1024
)

// ClientConfig configures a Client.
type ClientConfig struct {
	// Addr is the host:port of the control port.
	Addr        string
	DialTimeout time.Duration
	// SettleDelay is waited between sending a query and reading its reply.
	SettleDelay time.Duration
	// ReadTimeout bounds how long a reply is collected once reading began.
	ReadTimeout time.Duration
	ReadChunk   int
}

// DefaultClientConfig returns the timings used by the controller's own tooling.
func DefaultClientConfig(addr string) ClientConfig {
	return ClientConfig{
		Addr:        addr,
		DialTimeout: DefaultDialTimeout,
		SettleDelay: DefaultSettleDelay,
		ReadTimeout: DefaultReadTimeout,
		ReadChunk:   DefaultReadChunk,
	}
}

// Client sends commands to the control port. It is safe for concurrent use;
// calls share nothing but configuration.
type Client struct {
	cfg    ClientConfig
	dialer *net.Dialer
	logger *slog.Logger
}

// NewClient creates a control client. Zero timings fall back to defaults.
func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	if cfg.SettleDelay < 0 {
		cfg.SettleDelay = 0
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.ReadChunk <= 0 {
		cfg.ReadChunk = DefaultReadChunk
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:    cfg,
		dialer: &net.Dialer{Timeout: cfg.DialTimeout},
		logger: logger.With("component", "control", "addr", cfg.Addr),
	}
}

// Addr returns the control port address.
func (c *Client) Addr() string {
	return c.cfg.Addr
}

// Send issues a query command and interprets the reply. Connection failures
// never escape as errors: they produce a Response whose Value is ErrorValue.
func (c *Client) Send(ctx context.Context, command string) Response {
	raw, err := c.exchange(ctx, command, true)
	if err != nil {
		c.logger.Warn("Error sending/receiving control command", "command", command, "error", err)
		return Response{Command: command, Value: ErrorValue, Err: err}
	}
	c.logger.Debug("Control reply received", "command", command, "raw", raw)
	return Interpret(command, raw)
}

// exchange performs one connect/send/[read]/close cycle.
func (c *Client) exchange(ctx context.Context, command string, wantReply bool) (string, error) {
	conn, err := c.dialer.DialContext(ctx, "tcp", c.cfg.Addr)
	if err != nil {
		return "", errors.WrapTransient(fmt.Errorf("%w: %v", errors.ErrNoConnection, err),
			"Client", "exchange", fmt.Sprintf("dial %s", c.cfg.Addr))
	}
	defer conn.Close()

	// Unblock any pending I/O as soon as the caller gives up.
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	if err := conn.SetWriteDeadline(time.Now().Add(c.cfg.DialTimeout)); err != nil {
		return "", errors.WrapTransient(err, "Client", "exchange", "set write deadline")
	}
	if _, err := io.WriteString(conn, command+"\r\n"); err != nil {
		return "", errors.WrapTransient(c.ctxErr(ctx, err), "Client", "exchange", fmt.Sprintf("write %q", command))
	}
	if !wantReply {
		return "", nil
	}

	if c.cfg.SettleDelay > 0 {
		timer := time.NewTimer(c.cfg.SettleDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", errors.WrapTransient(ctx.Err(), "Client", "exchange", "wait for reply")
		case <-timer.C:
		}
	}

	reply, err := c.readReply(ctx, conn)
	if err != nil {
		return "", err
	}
	return clean(reply), nil
}

// readReply accumulates chunks until one contains the prompt, EOF, or the
// read timeout has elapsed since reading began. Every read shares that
// deadline, so a reply trickling in without a prompt cannot extend it.
func (c *Client) readReply(ctx context.Context, conn net.Conn) ([]byte, error) {
	var (
		reply    []byte
		buf      = make([]byte, c.cfg.ReadChunk)
		start    = time.Now()
		deadline = start.Add(c.cfg.ReadTimeout)
	)
	for {
		if err := conn.SetReadDeadline(deadline); err != nil {
			return nil, errors.WrapTransient(err, "Client", "readReply", "set read deadline")
		}
		n, err := conn.Read(buf)
		if n > 0 {
			reply = append(reply, buf[:n]...)
			if bytes.IndexByte(buf[:n], '>') >= 0 {
				return reply, nil
			}
			if time.Since(start) >= c.cfg.ReadTimeout {
				return reply, nil
			}
		}
		if err == nil {
			continue
		}
		if stderrors.Is(err, io.EOF) {
			return reply, nil
		}
		if ctx.Err() != nil {
			return nil, errors.WrapTransient(ctx.Err(), "Client", "readReply", "read reply")
		}
		var netErr net.Error
		if stderrors.As(err, &netErr) && netErr.Timeout() {
			return reply, nil
		}
		return nil, errors.WrapTransient(fmt.Errorf("%w: %v", errors.ErrConnectionLost, err),
			"Client", "readReply", "read reply")
	}
}

func (c *Client) ctxErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// clean decodes a reply, dropping invalid UTF-8 and terminal escape sequences.
func clean(reply []byte) string {
	text := strings.ToValidUTF8(string(reply), "")
	return strings.TrimSpace(ansi.Strip(text))
}
