package tcp

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/sebastien/thor/loop"
)

func startEchoServer(t *testing.T) (host string, port uint16, stop func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				buf := make([]byte, 4096)
				for {
					n, err := c.Read(buf)
					if n > 0 {
						c.Write(buf[:n])
					}
					if err != nil {
						return
					}
				}
			}(conn)
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	p, _ := strconv.Atoi(strconv.Itoa(addr.Port))
	return "127.0.0.1", uint16(p), func() { ln.Close() }
}

func TestConnectAndEcho(t *testing.T) {
	host, port, stop := startEchoServer(t)
	defer stop()

	l := loop.New()
	defer l.Stop()
	client := NewClient(l)

	connected := make(chan *Conn, 1)
	client.Connect(context.Background(), host, port, time.Second, func(c *Conn) {
		connected <- c
	}, func(err error) {
		t.Errorf("unexpected connect error: %v", err)
	})

	var conn *Conn
	select {
	case conn = <-connected:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting to connect")
	}

	received := make(chan []byte, 1)
	conn.OnData(func(b []byte) { received <- b })

	if _, err := conn.Write([]byte("ping")); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case data := <-received:
		if string(data) != "ping" {
			t.Errorf("expected echo of 'ping', got %q", data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for echo")
	}

	conn.Close()
}

func TestConnectRefused(t *testing.T) {
	l := loop.New()
	defer l.Stop()
	client := NewClient(l)

	errCh := make(chan error, 1)
	// Port 1 is reserved and should refuse immediately on loopback.
	client.Connect(context.Background(), "127.0.0.1", 1, time.Second, func(c *Conn) {
		t.Error("unexpected successful connect")
	}, func(err error) {
		errCh <- err
	})

	select {
	case err := <-errCh:
		if err == nil {
			t.Error("expected non-nil error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for connect error")
	}
}

func TestPauseWithholdsDelivery(t *testing.T) {
	host, port, stop := startEchoServer(t)
	defer stop()

	l := loop.New()
	defer l.Stop()
	client := NewClient(l)

	connected := make(chan *Conn, 1)
	client.Connect(context.Background(), host, port, time.Second, func(c *Conn) {
		connected <- c
	}, func(err error) {
		t.Errorf("unexpected connect error: %v", err)
	})

	conn := <-connected
	defer conn.Close()

	received := make(chan []byte, 4)
	conn.OnData(func(b []byte) { received <- b })
	conn.Pause(true)

	conn.Write([]byte("hello"))

	select {
	case <-received:
		t.Error("data should not be delivered while paused")
	case <-time.After(200 * time.Millisecond):
	}

	conn.Pause(false)

	select {
	case data := <-received:
		if string(data) != "hello" {
			t.Errorf("expected 'hello', got %q", data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery after resume")
	}
}
