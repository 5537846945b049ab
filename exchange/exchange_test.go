package exchange

import (
	"bufio"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/sebastien/thor/loop"
	"github.com/sebastien/thor/pool"
	"github.com/sebastien/thor/tcp"
	"github.com/sebastien/thor/wire"
)

type recordedEvent struct {
	kind string
	arg  interface{}
}

type testSink struct {
	mu     sync.Mutex
	events []recordedEvent
	done   chan struct{}
}

func newTestSink() *testSink {
	return &testSink{done: make(chan struct{}, 1)}
}

func (s *testSink) record(kind string, arg interface{}) {
	s.mu.Lock()
	s.events = append(s.events, recordedEvent{kind, arg})
	s.mu.Unlock()
}

func (s *testSink) ResponseStart(code int, phrase string, hdrs []wire.Header) {
	s.record("start", code)
}
func (s *testSink) ResponseBody(chunk []byte) {
	s.record("body", append([]byte(nil), chunk...))
}
func (s *testSink) ResponseDone(trailers []wire.Header) {
	s.record("done", nil)
	select {
	case s.done <- struct{}{}:
	default:
	}
}
func (s *testSink) Error(err error) {
	s.record("error", err)
	select {
	case s.done <- struct{}{}:
	default:
	}
}
func (s *testSink) Pause(paused bool) { s.record("pause", paused) }

func (s *testSink) waitDone(t *testing.T) {
	t.Helper()
	select {
	case <-s.done:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for terminal event")
	}
}

func (s *testSink) kinds() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, e := range s.events {
		out = append(out, e.kind)
	}
	return out
}

func newHarness(t *testing.T) (*loop.Loop, *pool.Pool) {
	l := loop.New()
	p := pool.New(l, tcp.NewClient(l), pool.Config{IdleTimeout: time.Minute})
	t.Cleanup(l.Stop)
	return l, p
}

// respondingServer accepts exactly one connection, reads a request up to
// the blank line, and writes raw back to the caller's handler.
func respondingServer(t *testing.T, handle func(conn net.Conn, req []string)) (string, uint16, func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		r := bufio.NewReader(conn)
		var lines []string
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				conn.Close()
				return
			}
			if line == "\r\n" {
				break
			}
			lines = append(lines, line)
		}
		handle(conn, lines)
	}()
	addr := ln.Addr().(*net.TCPAddr)
	return "127.0.0.1", uint16(addr.Port), func() { ln.Close() }
}

func TestExchangeGetWithContentLength(t *testing.T) {
	host, port, stop := respondingServer(t, func(conn net.Conn, req []string) {
		defer conn.Close()
		conn.Write([]byte("HTTP/1.1 200 OK\r\nContent-Length: 5\r\nConnection: keep-alive\r\n\r\nhello"))
		time.Sleep(100 * time.Millisecond)
	})
	defer stop()

	l, p := newHarness(t)
	sink := newTestSink()
	e := New(l, p, Config{ConnectTimeout: time.Second}, sink, nil)

	e.RequestStart("GET", fmt.Sprintf("http://%s:%d/", host, port), nil)
	e.RequestDone(nil)

	sink.waitDone(t)

	kinds := sink.kinds()
	if len(kinds) < 3 || kinds[0] != "start" || kinds[len(kinds)-1] != "done" {
		t.Fatalf("unexpected event sequence: %v", kinds)
	}
}

func TestExchangeHeadHasNoBody(t *testing.T) {
	host, port, stop := respondingServer(t, func(conn net.Conn, req []string) {
		defer conn.Close()
		conn.Write([]byte("HTTP/1.1 200 OK\r\nContent-Length: 42\r\n\r\n"))
		time.Sleep(100 * time.Millisecond)
	})
	defer stop()

	l, p := newHarness(t)
	sink := newTestSink()
	e := New(l, p, Config{ConnectTimeout: time.Second}, sink, nil)

	e.RequestStart("HEAD", fmt.Sprintf("http://%s:%d/", host, port), nil)
	e.RequestDone(nil)

	sink.waitDone(t)

	for _, k := range sink.kinds() {
		if k == "body" {
			t.Fatal("HEAD response should never emit a body event")
		}
	}
}

func TestExchangeNonIdempotentNoRetry(t *testing.T) {
	host, port, stop := respondingServer(t, func(conn net.Conn, req []string) {
		conn.Close() // premature close, no response byte
	})
	defer stop()

	l, p := newHarness(t)
	sink := newTestSink()
	e := New(l, p, Config{ConnectTimeout: time.Second, RetryLimit: 2}, sink, nil)

	e.RequestStart("POST", fmt.Sprintf("http://%s:%d/", host, port), []wire.Header{{Name: "Content-Length", Value: "0"}})
	e.RequestDone(nil)

	sink.waitDone(t)

	kinds := sink.kinds()
	if len(kinds) != 1 || kinds[0] != "error" {
		t.Fatalf("expected a single error event, got %v", kinds)
	}
}

func TestExchangeURLError(t *testing.T) {
	l, p := newHarness(t)
	sink := newTestSink()
	e := New(l, p, Config{}, sink, nil)

	e.RequestStart("GET", "ftp://example.com/", nil)

	sink.waitDone(t)
	kinds := sink.kinds()
	if len(kinds) != 1 || kinds[0] != "error" {
		t.Fatalf("expected a single error event for a non-HTTP URL, got %v", kinds)
	}
}

func TestExchangePrematureCloseMidHeaders(t *testing.T) {
	host, port, stop := respondingServer(t, func(conn net.Conn, req []string) {
		defer conn.Close()
		conn.Write([]byte("HTTP/1.1 200 OK\r\n"))
	})
	defer stop()

	l, p := newHarness(t)
	sink := newTestSink()
	e := New(l, p, Config{ConnectTimeout: time.Second}, sink, nil)

	e.RequestStart("GET", fmt.Sprintf("http://%s:%d/", host, port), nil)
	e.RequestDone(nil)

	sink.waitDone(t)
	kinds := sink.kinds()
	if kinds[len(kinds)-1] != "error" {
		t.Fatalf("expected a close mid-headers to error, got %v", kinds)
	}
}
