package testutil

import (
	"bufio"
	"net"
	"strings"
	"sync"
	"testing"
	"time"
)

// ControlReply scripts how the fake control port answers one command.
type ControlReply struct {
	// Chunks are written in order with Gap between them.
	Chunks []string
	Gap    time.Duration
	// Hold keeps the connection open after the last chunk instead of closing it.
	Hold time.Duration
}

// ControlServer is a line-oriented TCP server standing in for the controller's
// command port. Each connection reads one CRLF-terminated command, records it,
// and answers according to the registered script.
type ControlServer struct {
	listener net.Listener

	mu       sync.Mutex
	replies  map[string]ControlReply
	fallback ControlReply
	commands []string

	wg     sync.WaitGroup
	closed chan struct{}
}

// NewControlServer starts a server on a loopback port and stops it when the test ends.
func NewControlServer(t testing.TB) *ControlServer {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	s := &ControlServer{
		listener: ln,
		replies:  make(map[string]ControlReply),
		closed:   make(chan struct{}),
	}
	s.wg.Add(1)
	go s.serve()

	t.Cleanup(s.Close)
	return s
}

// Addr returns the host:port the server listens on.
func (s *ControlServer) Addr() string {
	return s.listener.Addr().String()
}

// Reply answers command with a single chunk.
func (s *ControlServer) Reply(command, text string) *ControlServer {
	return s.Script(command, ControlReply{Chunks: []string{text}})
}

// Script registers a full reply script for command.
func (s *ControlServer) Script(command string, reply ControlReply) *ControlServer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies[command] = reply
	return s
}

// Fallback sets the reply for commands without a script.
func (s *ControlServer) Fallback(reply ControlReply) *ControlServer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fallback = reply
	return s
}

// Commands returns a copy of every command received so far.
func (s *ControlServer) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.commands))
	copy(out, s.commands)
	return out
}

// WaitForCommands polls until at least n commands arrived or timeout elapses.
func (s *ControlServer) WaitForCommands(t testing.TB, n int, timeout time.Duration) []string {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cmds := s.Commands(); len(cmds) >= n {
			return cmds
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d commands, got %v", n, s.Commands())
	return nil
}

// Close stops accepting connections and waits for open ones to finish.
func (s *ControlServer) Close() {
	select {
	case <-s.closed:
		return
	default:
		close(s.closed)
	}
	_ = s.listener.Close()
	s.wg.Wait()
}

func (s *ControlServer) serve() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		s.wg.Add(1)
		go s.handle(conn)
	}
}

func (s *ControlServer) handle(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil && line == "" {
		return
	}
	command := strings.TrimRight(line, "\r\n")

	s.mu.Lock()
	s.commands = append(s.commands, command)
	reply, ok := s.replies[command]
	if !ok {
		reply = s.fallback
	}
	s.mu.Unlock()

	for i, chunk := range reply.Chunks {
		if i > 0 && reply.Gap > 0 {
			if !s.sleep(reply.Gap) {
				return
			}
		}
		if _, err := conn.Write([]byte(chunk)); err != nil {
			return
		}
	}
	if reply.Hold > 0 {
		s.sleep(reply.Hold)
	}
}

func (s *ControlServer) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-s.closed:
		return false
	case <-timer.C:
		return true
	}
}
