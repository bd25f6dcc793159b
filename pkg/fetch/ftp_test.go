package fetch

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sriram-PR/crawl-loader/pkg/utils"
)

// scriptedFTPServer answers control commands from a fixed reply table
// Verbs missing from the table are read but never answered
type scriptedFTPServer struct {
	t       *testing.T
	ln      net.Listener
	replies map[string]string
	files   map[string]string

	mu       sync.Mutex
	commands []string
	conns    []net.Conn
}

func newScriptedFTPServer(t *testing.T, replies, files map[string]string) *scriptedFTPServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := &scriptedFTPServer{t: t, ln: ln, replies: replies, files: files}
	t.Cleanup(func() {
		_ = ln.Close()
		s.mu.Lock()
		defer s.mu.Unlock()
		for _, c := range s.conns {
			_ = c.Close()
		}
	})
	go s.accept()
	return s
}

func (s *scriptedFTPServer) url(p string) string {
	return "ftp://" + s.ln.Addr().String() + p
}

func (s *scriptedFTPServer) received() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

func (s *scriptedFTPServer) track(c net.Conn) {
	s.mu.Lock()
	s.conns = append(s.conns, c)
	s.mu.Unlock()
}

func (s *scriptedFTPServer) accept() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.track(conn)
		go s.serveControl(conn)
	}
}

func (s *scriptedFTPServer) serveControl(conn net.Conn) {
	defer conn.Close()
	reply := func(line string) {
		_, _ = fmt.Fprintf(conn, "%s\r\n", line)
	}
	reply("220 scripted server ready")

	var data net.Listener
	defer func() {
		if data != nil {
			_ = data.Close()
		}
	}()

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		s.mu.Lock()
		s.commands = append(s.commands, line)
		s.mu.Unlock()

		verb, arg, _ := strings.Cut(line, " ")
		switch strings.ToUpper(verb) {
		case "EPSV":
			ln, err := net.Listen("tcp", "127.0.0.1:0")
			if err != nil {
				reply("425 no data port")
				continue
			}
			data = ln
			reply(fmt.Sprintf("229 Entering Extended Passive Mode (|||%d|)", ln.Addr().(*net.TCPAddr).Port))
		case "RETR":
			body, ok := s.files[arg]
			if !ok || data == nil {
				reply("550 " + arg + ": No such file or directory")
				continue
			}
			dc, err := data.Accept()
			if err != nil {
				reply("425 cannot open data connection")
				continue
			}
			reply("150 opening data connection")
			_, _ = dc.Write([]byte(body))
			_ = dc.Close()
			reply("226 transfer complete")
		case "QUIT":
			reply("221 bye")
			return
		default:
			if r, ok := s.replies[strings.ToUpper(verb)]; ok {
				reply(r)
			}
		}
	}
}

func newFTPTestAdapter(timeout time.Duration) (*FTPAdapter, *journalRecorder) {
	cfg := testConfig()
	cfg.FTP.Timeout = timeout
	deps, journal, _ := newTestDeps()
	return NewFTPAdapter(cfg, deps), journal
}

func TestFTPAdapter_StalledServerTimesOut(t *testing.T) {
	// Login succeeds, then FEAT is never answered
	srv := newScriptedFTPServer(t, map[string]string{
		"USER": "331 password required",
		"PASS": "230 logged in",
	}, nil)
	adapter, journal := newFTPTestAdapter(300 * time.Millisecond)

	type result struct {
		err     error
		elapsed time.Duration
	}
	done := make(chan result, 1)
	go func() {
		start := time.Now()
		_, err := adapter.Fetch(context.Background(), newTestRequest(t, srv.url("/pub/readme.txt")), FetchOptions{MaxFileSize: 1024})
		done <- result{err: err, elapsed: time.Since(start)}
	}()

	select {
	case r := <-done:
		require.Error(t, r.err)
		assert.ErrorIs(t, r.err, utils.ErrTransport)
		assert.Less(t, r.elapsed, 3*time.Second)
		require.Len(t, journal.all(), 1)
	case <-time.After(5 * time.Second):
		t.Fatal("fetch from a stalled server did not return")
	}
	assert.Contains(t, srv.received(), "FEAT")
}

// sizeUnsupported is a server without the SIZE extension
func sizeUnsupported() map[string]string {
	return map[string]string{
		"USER": "331 password required",
		"PASS": "230 logged in",
		"FEAT": "502 command not implemented",
		"TYPE": "200 type set to I",
		"SIZE": "502 command not implemented",
		"CWD":  "550 not a directory",
	}
}

func TestFTPAdapter_WithoutSizeRetrieves(t *testing.T) {
	srv := newScriptedFTPServer(t, sizeUnsupported(), map[string]string{
		"/pub/readme.txt": "hello world",
	})
	adapter, journal := newFTPTestAdapter(5 * time.Second)

	resp, err := adapter.Fetch(context.Background(), newTestRequest(t, srv.url("/pub/readme.txt")), FetchOptions{MaxFileSize: 1024})

	require.NoError(t, err)
	assert.Equal(t, "hello world", string(resp.Content))
	assert.Equal(t, "text/plain", resp.MimeType())
	assert.Empty(t, journal.all())
	assert.Contains(t, srv.received(), "RETR /pub/readme.txt")
}

func TestFTPAdapter_WithoutSizeMissingFile(t *testing.T) {
	srv := newScriptedFTPServer(t, sizeUnsupported(), nil)
	adapter, _ := newFTPTestAdapter(5 * time.Second)

	_, err := adapter.Fetch(context.Background(), newTestRequest(t, srv.url("/pub/gone.txt")), FetchOptions{MaxFileSize: 1024})

	require.Error(t, err)
	assert.ErrorIs(t, err, utils.ErrUnexpectedStatus)
	assert.Contains(t, err.Error(), "not found")
	assert.Contains(t, srv.received(), "RETR /pub/gone.txt")
}

func TestFTPAdapter_UnavailableFileSkipsRetrieve(t *testing.T) {
	replies := sizeUnsupported()
	replies["SIZE"] = "550 no such file"
	srv := newScriptedFTPServer(t, replies, map[string]string{
		"/pub/gone.txt": "stale",
	})
	adapter, _ := newFTPTestAdapter(5 * time.Second)

	_, err := adapter.Fetch(context.Background(), newTestRequest(t, srv.url("/pub/gone.txt")), FetchOptions{MaxFileSize: 1024})

	require.Error(t, err)
	assert.ErrorIs(t, err, utils.ErrUnexpectedStatus)
	for _, cmd := range srv.received() {
		assert.False(t, strings.HasPrefix(cmd, "RETR"), "unexpected %q", cmd)
	}
}
