// Package tcp provides the callback-style TCP transport the connection pool
// dials through. It wraps net.Dial with the event-driven shape
// (OnData/OnClose/OnError) the rest of the engine expects, and tunes new
// connections the way a long-lived streaming proxy would: Nagle's algorithm
// disabled so small writes aren't delayed waiting for a full segment.
package tcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/sebastien/thor/loop"
	"github.com/sebastien/thor/pkg/pool"
)

const readBufferSize = 16 * 1024

// readBuffers recycles the scratch buffer each connection's readLoop reads
// into, so a busy pool of short-lived connections doesn't allocate a fresh
// 16KB buffer per dial.
var readBuffers = pool.NewLitePool(func() []byte {
	return make([]byte, readBufferSize)
})

// Client dials outbound connections on behalf of the connection pool.
type Client struct {
	loop *loop.Loop
}

func NewClient(l *loop.Loop) *Client {
	return &Client{loop: l}
}

// Connect dials host:port with the given timeout. On success onConnect is
// invoked on the loop goroutine with a ready Conn; on failure
// onConnectError is invoked instead. Connect itself may be called from any
// goroutine.
func (c *Client) Connect(ctx context.Context, host string, port uint16, timeout time.Duration, onConnect func(*Conn), onConnectError func(error)) {
	dialer := &net.Dialer{Timeout: timeout}
	addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))

	go func() {
		rawConn, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			c.loop.Post(func() { onConnectError(err) })
			return
		}

		if tcpConn, ok := rawConn.(*net.TCPConn); ok {
			_ = tcpConn.SetNoDelay(true)
		}

		conn := newConn(c.loop, rawConn)
		c.loop.Post(func() { onConnect(conn) })
	}()
}

// Conn is a single TCP connection driven by a background reader goroutine
// that delivers data, close and error events onto the owning Loop.
type Conn struct {
	raw  net.Conn
	loop *loop.Loop

	mu       sync.Mutex
	onData   func([]byte)
	onClose  func()
	onError  func(error)
	paused   bool
	resumeCh chan struct{}
	closed   bool
	dead     bool
}

func newConn(l *loop.Loop, raw net.Conn) *Conn {
	c := &Conn{
		raw:      raw,
		loop:     l,
		resumeCh: make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// OnData registers the callback invoked, on the loop goroutine, for every
// chunk of data read from the socket.
func (c *Conn) OnData(fn func([]byte)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onData = fn
}

// OnClose registers the callback invoked when the peer closes the
// connection or Close is called locally.
func (c *Conn) OnClose(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onClose = fn
}

// OnError registers the callback invoked on an unexpected read error other
// than a clean close.
func (c *Conn) OnError(fn func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = fn
}

// readLoop runs on its own goroutine for the connection's lifetime. Go
// offers no portable way to pause an in-flight Read syscall, so a paused
// connection keeps reading into a buffer but blocks before delivering it,
// gated on resumeCh; the kernel's own receive buffer bounds how far this
// can get ahead of the application before backpressure reaches the peer.
func (c *Conn) readLoop() {
	buf := readBuffers.Get()
	defer readBuffers.Put(buf)
	for {
		n, err := c.raw.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			c.waitIfPaused()
			c.deliverData(chunk)
		}
		if err != nil {
			c.deliverClosed(err)
			return
		}
	}
}

func (c *Conn) waitIfPaused() {
	c.mu.Lock()
	paused := c.paused
	ch := c.resumeCh
	c.mu.Unlock()
	if !paused {
		return
	}
	<-ch
}

func (c *Conn) deliverData(chunk []byte) {
	c.mu.Lock()
	fn := c.onData
	c.mu.Unlock()
	if fn == nil {
		return
	}
	c.loop.Post(func() { fn(chunk) })
}

func (c *Conn) deliverClosed(err error) {
	c.mu.Lock()
	c.dead = true
	closeFn := c.onClose
	errFn := c.onError
	c.mu.Unlock()

	clean := errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed)
	if err != nil && !clean && errFn != nil {
		c.loop.Post(func() { errFn(err) })
		return
	}
	if closeFn != nil {
		c.loop.Post(func() { closeFn() })
	}
}

// Pause withholds delivery of further data to OnData until Pause(false) is
// called. It does not stop the underlying socket read.
func (c *Conn) Pause(paused bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if paused == c.paused {
		return
	}
	c.paused = paused
	if !paused {
		close(c.resumeCh)
		c.resumeCh = make(chan struct{})
	}
}

// Write sends b on the connection. It may be called from any goroutine.
func (c *Conn) Write(b []byte) (int, error) {
	return c.raw.Write(b)
}

// Close closes the underlying socket. Safe to call more than once.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.dead = true
	c.mu.Unlock()
	return c.raw.Close()
}

// Connected reports whether the connection is still open: neither Close
// has been called locally nor has the read side observed EOF or an error.
// A pooled connection whose peer closed it is reported dead here before
// its queued OnClose callback ever reaches the loop.
func (c *Conn) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed && !c.dead
}

// RemoteAddr returns the address of the connection's peer.
func (c *Conn) RemoteAddr() net.Addr {
	return c.raw.RemoteAddr()
}
