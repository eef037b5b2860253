package testutil

import (
	"bufio"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// PtyRequest records the terminal a client asked for.
type PtyRequest struct {
	Term string
	Cols int
	Rows int
}

// ConsoleServer is an in-process SSH server that imitates the controller's
// console: it accepts password or keyboard-interactive logins, grants a PTY
// and shell, records typed lines and answers them with scripted output.
type ConsoleServer struct {
	listener net.Listener
	config   *ssh.ServerConfig
	hostKey  ssh.PublicKey

	mu       sync.Mutex
	conns    []*ssh.ServerConn
	channels []ssh.Channel
	lines    []string
	ptys     []PtyRequest
	scripts  map[string]string
	logins   int
	failures int

	wg     sync.WaitGroup
	closed chan struct{}
}

// NewConsoleServer starts a console server accepting username/password and
// shuts it down when the test ends.
func NewConsoleServer(t testing.TB, username, password string) *ConsoleServer {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate host key: %v", err)
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		t.Fatalf("host key signer: %v", err)
	}

	s := &ConsoleServer{
		hostKey: signer.PublicKey(),
		scripts: make(map[string]string),
		closed:  make(chan struct{}),
	}

	check := func(user, pass string) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		if user == username && pass == password {
			s.logins++
			return nil
		}
		s.failures++
		return fmt.Errorf("invalid credentials for %q", user)
	}

	s.config = &ssh.ServerConfig{
		PasswordCallback: func(c ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			return nil, check(c.User(), string(pass))
		},
		KeyboardInteractiveCallback: func(c ssh.ConnMetadata, challenge ssh.KeyboardInteractiveChallenge) (*ssh.Permissions, error) {
			answers, err := challenge(c.User(), "", []string{"Password: "}, []bool{false})
			if err != nil {
				return nil, err
			}
			if len(answers) != 1 {
				return nil, fmt.Errorf("expected one answer, got %d", len(answers))
			}
			return nil, check(c.User(), answers[0])
		},
	}
	s.config.AddHostKey(signer)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s.listener = ln

	s.wg.Add(1)
	go s.serve()

	t.Cleanup(s.Close)
	return s
}

// Addr returns host:port of the server.
func (s *ConsoleServer) Addr() string {
	return s.listener.Addr().String()
}

// HostPort splits Addr for configs that take host and port separately.
func (s *ConsoleServer) HostPort() (string, int) {
	host, port, _ := net.SplitHostPort(s.Addr())
	n, _ := strconv.Atoi(port)
	return host, n
}

// HostKey returns the server's public host key.
func (s *ConsoleServer) HostKey() ssh.PublicKey {
	return s.hostKey
}

// WriteKnownHosts writes a known_hosts file trusting this server.
func (s *ConsoleServer) WriteKnownHosts(t testing.TB) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "known_hosts")
	line := knownhosts.Line([]string{s.Addr()}, s.hostKey) + "\n"
	if err := os.WriteFile(path, []byte(line), 0o600); err != nil {
		t.Fatalf("write known_hosts: %v", err)
	}
	return path
}

// OnLine makes the server answer a typed line with output.
func (s *ConsoleServer) OnLine(line, output string) *ConsoleServer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripts[line] = output
	return s
}

// Send writes output to every open shell.
func (s *ConsoleServer) Send(output string) {
	s.mu.Lock()
	channels := append([]ssh.Channel(nil), s.channels...)
	s.mu.Unlock()

	for _, ch := range channels {
		_, _ = ch.Write([]byte(output))
	}
}

// Lines returns every line typed into any shell so far.
func (s *ConsoleServer) Lines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.lines...)
}

// Ptys returns every PTY request received.
func (s *ConsoleServer) Ptys() []PtyRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]PtyRequest(nil), s.ptys...)
}

// Logins returns successful and failed authentication counts.
func (s *ConsoleServer) Logins() (ok, failed int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logins, s.failures
}

// Shells returns the number of shells currently open.
func (s *ConsoleServer) Shells() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.channels)
}

// WaitForShells polls until n shells are open.
func (s *ConsoleServer) WaitForShells(t testing.TB, n int, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if s.Shells() >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d shells, have %d", n, s.Shells())
}

// DropConnections closes every client connection, simulating a lost link.
func (s *ConsoleServer) DropConnections() {
	s.mu.Lock()
	conns := s.conns
	s.conns = nil
	s.channels = nil
	s.mu.Unlock()

	for _, c := range conns {
		_ = c.Close()
	}
}

// Close stops the server and drops all connections.
func (s *ConsoleServer) Close() {
	select {
	case <-s.closed:
		return
	default:
		close(s.closed)
	}
	_ = s.listener.Close()
	s.DropConnections()
	s.wg.Wait()
}

func (s *ConsoleServer) serve() {
	defer s.wg.Done()
	for {
		nc, err := s.listener.Accept()
		if err != nil {
			return
		}
		s.wg.Add(1)
		go s.handleConn(nc)
	}
}

func (s *ConsoleServer) handleConn(nc net.Conn) {
	defer s.wg.Done()

	sconn, chans, reqs, err := ssh.NewServerConn(nc, s.config)
	if err != nil {
		_ = nc.Close()
		return
	}
	s.mu.Lock()
	s.conns = append(s.conns, sconn)
	s.mu.Unlock()

	go ssh.DiscardRequests(reqs)

	for newCh := range chans {
		if newCh.ChannelType() != "session" {
			_ = newCh.Reject(ssh.UnknownChannelType, "only session channels are supported")
			continue
		}
		ch, requests, err := newCh.Accept()
		if err != nil {
			continue
		}
		s.wg.Add(1)
		go s.handleSession(ch, requests)
	}
}

func (s *ConsoleServer) handleSession(ch ssh.Channel, requests <-chan *ssh.Request) {
	defer s.wg.Done()
	defer ch.Close()

	for req := range requests {
		switch req.Type {
		case "pty-req":
			var pty struct {
				Term   string
				Cols   uint32
				Rows   uint32
				Width  uint32
				Height uint32
				Modes  string
			}
			if err := ssh.Unmarshal(req.Payload, &pty); err != nil {
				_ = req.Reply(false, nil)
				continue
			}
			s.mu.Lock()
			s.ptys = append(s.ptys, PtyRequest{Term: pty.Term, Cols: int(pty.Cols), Rows: int(pty.Rows)})
			s.mu.Unlock()
			_ = req.Reply(true, nil)
		case "shell":
			_ = req.Reply(true, nil)
			s.mu.Lock()
			s.channels = append(s.channels, ch)
			s.mu.Unlock()
			s.wg.Add(1)
			go s.readLines(ch)
		default:
			_ = req.Reply(false, nil)
		}
	}
	s.removeChannel(ch)
}

func (s *ConsoleServer) readLines(ch ssh.Channel) {
	defer s.wg.Done()

	reader := bufio.NewReader(ch)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")

		s.mu.Lock()
		s.lines = append(s.lines, line)
		output, ok := s.scripts[line]
		s.mu.Unlock()

		if ok {
			if _, err := ch.Write([]byte(output)); err != nil {
				return
			}
		}
	}
}

func (s *ConsoleServer) removeChannel(ch ssh.Channel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range s.channels {
		if c == ch {
			s.channels = append(s.channels[:i], s.channels[i+1:]...)
			return
		}
	}
}
