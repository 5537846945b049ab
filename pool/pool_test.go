package pool

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/sebastien/thor/loop"
	"github.com/sebastien/thor/tcp"
)

func startServer(t *testing.T) (string, uint16, func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go func(conn net.Conn) {
				buf := make([]byte, 1024)
				for {
					n, err := conn.Read(buf)
					if n > 0 {
						conn.Write(buf[:n])
					}
					if err != nil {
						conn.Close()
						return
					}
				}
			}(c)
		}
	}()
	addr := ln.Addr().(*net.TCPAddr)
	return "127.0.0.1", uint16(addr.Port), func() { ln.Close() }
}

func TestAttachDialsWhenIdleEmpty(t *testing.T) {
	host, port, stop := startServer(t)
	defer stop()

	l := loop.New()
	defer l.Stop()
	p := New(l, tcp.NewClient(l), Config{})

	connected := make(chan *tcp.Conn, 1)
	p.Attach(context.Background(), host, port, time.Second, func(c *tcp.Conn) {
		connected <- c
	}, func(err error) {
		t.Errorf("unexpected error: %v", err)
	})

	select {
	case c := <-connected:
		c.Close()
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting to connect")
	}
}

func TestReleaseThenAttachReusesConnection(t *testing.T) {
	host, port, stop := startServer(t)
	defer stop()

	l := loop.New()
	defer l.Stop()
	p := New(l, tcp.NewClient(l), Config{IdleTimeout: time.Minute})

	first := make(chan *tcp.Conn, 1)
	p.Attach(context.Background(), host, port, time.Second, func(c *tcp.Conn) {
		first <- c
	}, func(err error) { t.Fatalf("unexpected error: %v", err) })

	c1 := <-first
	p.Release(host, port, c1)

	if got := p.IdleCount(host, port); got != 1 {
		t.Fatalf("expected 1 idle connection, got %d", got)
	}

	second := make(chan *tcp.Conn, 1)
	p.Attach(context.Background(), host, port, time.Second, func(c *tcp.Conn) {
		second <- c
	}, func(err error) { t.Fatalf("unexpected error: %v", err) })

	c2 := <-second
	if c2 != c1 {
		t.Error("expected attach to reuse the released connection")
	}
	if got := p.IdleCount(host, port); got != 0 {
		t.Errorf("expected 0 idle connections after reuse, got %d", got)
	}
	c2.Close()
}

func TestCircuitBreakerOpensAfterFailures(t *testing.T) {
	l := loop.New()
	defer l.Stop()
	p := New(l, tcp.NewClient(l), Config{CircuitThreshold: 2, CircuitResetAfter: time.Hour})

	host, port := "127.0.0.1", uint16(1) // reserved port, refuses immediately

	errCh := make(chan error, 4)
	for i := 0; i < 2; i++ {
		p.Attach(context.Background(), host, port, 200*time.Millisecond, func(c *tcp.Conn) {
			t.Error("unexpected successful connect")
		}, func(err error) {
			errCh <- err
		})
		<-errCh
		// the pool no longer reports dial outcomes itself (that's the
		// calling exchange's job); simulate it here.
		p.ReportConnectFailure(host, port)
	}

	// breaker should now be open; Attach should fail fast without dialing.
	done := make(chan error, 1)
	p.Attach(context.Background(), host, port, 200*time.Millisecond, func(c *tcp.Conn) {
		t.Error("unexpected successful connect")
	}, func(err error) {
		done <- err
	})

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected circuit breaker error")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for fast-fail")
	}
}

func TestAttachDiscardsDeadIdleConnection(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	accepted := make(chan net.Conn, 2)
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			accepted <- c
		}
	}()
	addr := ln.Addr().(*net.TCPAddr)
	host, port := "127.0.0.1", uint16(addr.Port)

	l := loop.New()
	defer l.Stop()
	p := New(l, tcp.NewClient(l), Config{IdleTimeout: time.Minute})

	first := make(chan *tcp.Conn, 1)
	p.Attach(context.Background(), host, port, time.Second, func(c *tcp.Conn) {
		first <- c
	}, func(err error) { t.Fatalf("unexpected error: %v", err) })
	c1 := <-first

	server1 := <-accepted
	p.Release(host, port, c1)

	if got := p.IdleCount(host, port); got != 1 {
		t.Fatalf("expected 1 idle connection, got %d", got)
	}

	// kill the pooled connection from the server side while it's idle.
	server1.Close()
	time.Sleep(100 * time.Millisecond)

	second := make(chan *tcp.Conn, 1)
	p.Attach(context.Background(), host, port, time.Second, func(c *tcp.Conn) {
		second <- c
	}, func(err error) { t.Fatalf("unexpected error: %v", err) })

	c2 := <-second
	if c2 == c1 {
		t.Error("expected attach to discard the dead idle connection and dial a new one")
	}
	if !c2.Connected() {
		t.Error("expected the freshly dialed connection to be live")
	}
	c2.Close()
}

func TestCloseAllEmptiesPool(t *testing.T) {
	host, port, stop := startServer(t)
	defer stop()

	l := loop.New()
	p := New(l, tcp.NewClient(l), Config{IdleTimeout: time.Minute})

	connected := make(chan *tcp.Conn, 1)
	p.Attach(context.Background(), host, port, time.Second, func(c *tcp.Conn) {
		connected <- c
	}, func(err error) { t.Fatalf("unexpected error: %v", err) })

	c := <-connected
	p.Release(host, port, c)

	l.Stop()

	if got := p.IdleCount(host, port); got != 0 {
		t.Errorf("expected pool to be drained after loop stop, got %d idle", got)
	}
}
