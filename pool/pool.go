// Package pool implements the connection pool: a per-(host,port) list of
// idle, reusable TCP connections, plus a circuit breaker that gates new
// connects to an endpoint that has been failing.
package pool

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sebastien/thor/errs"
	"github.com/sebastien/thor/loop"
	"github.com/sebastien/thor/tcp"
)

// Endpoint identifies a pool bucket. Host comparison is case-insensitive.
type Endpoint struct {
	Host string
	Port uint16
}

func (e Endpoint) String() string {
	return fmt.Sprintf("%s:%d", e.Host, e.Port)
}

func normalizeHost(h string) string {
	return strings.ToLower(h)
}

// conn wraps a pooled *tcp.Conn with its idle bookkeeping.
type conn struct {
	key       Endpoint
	tcp       *tcp.Conn
	idleTimer *loop.TimerHandle
}

// Pool maintains idle connections per Endpoint, in LIFO order, and a
// circuit breaker per Endpoint that short-circuits Attach once an endpoint
// has failed too many consecutive connects.
type Pool struct {
	loop *loop.Loop
	tcp  *tcp.Client

	idleTimeout time.Duration

	idle    map[Endpoint][]*conn
	breaker *circuitBreaker
}

// Config holds the pool's tunables. Zero values fall back to the same
// defaults as the original client: a 60s idle timeout and a 5-failure
// circuit breaker threshold with a 30s reset window.
type Config struct {
	IdleTimeout       time.Duration
	CircuitThreshold  int
	CircuitResetAfter time.Duration
}

// New creates a Pool bound to l and dialing through tcpClient. It registers
// a loop stop hook that drains every idle connection.
func New(l *loop.Loop, tcpClient *tcp.Client, cfg Config) *Pool {
	idleTimeout := cfg.IdleTimeout
	if idleTimeout == 0 {
		idleTimeout = 60 * time.Second
	}
	p := &Pool{
		loop:        l,
		tcp:         tcpClient,
		idleTimeout: idleTimeout,
		idle:        make(map[Endpoint][]*conn),
		breaker:     newCircuitBreaker(cfg.CircuitThreshold, cfg.CircuitResetAfter),
	}
	l.OnStop(p.CloseAll)
	return p
}

func key(host string, port uint16) Endpoint {
	return Endpoint{Host: normalizeHost(host), Port: port}
}

// Attach yields a usable connection for (host,port) via onConnect, reusing
// an idle one when available and live, or dialing a new one. It fails fast
// via onConnectError if the endpoint's circuit breaker is open.
func (p *Pool) Attach(ctx context.Context, host string, port uint16, connectTimeout time.Duration, onConnect func(*tcp.Conn), onConnectError func(error)) {
	k := key(host, port)

	if p.breaker.Open(k) {
		onConnectError(errs.New(errs.KindConnect, fmt.Sprintf("circuit breaker open for %s", k)))
		return
	}

	for {
		c := p.popIdle(k)
		if c == nil {
			break
		}
		if c.idleTimer != nil {
			c.idleTimer.Cancel()
		}
		if !c.tcp.Connected() {
			// peer closed this one while it sat idle; discard and keep
			// looking rather than hand out a stale socket.
			_ = c.tcp.Close()
			continue
		}
		p.loop.Post(func() { onConnect(c.tcp) })
		return
	}

	// Dial success/failure is reported to the circuit breaker by the
	// exchange itself via ReportConnectSuccess/ReportConnectFailure, not
	// here, so a single connect attempt is counted exactly once even when
	// it's followed by a premature-close retry that redials.
	p.tcp.Connect(ctx, host, port, connectTimeout, onConnect, onConnectError)
}

func (p *Pool) popIdle(k Endpoint) *conn {
	list := p.idle[k]
	if len(list) == 0 {
		return nil
	}
	last := list[len(list)-1]
	p.idle[k] = list[:len(list)-1]
	return last
}

// Release hands a connection back to the pool for key (host,port). The
// caller must have already detached its own OnData/OnClose/OnError
// listeners. The connection is paused and, if idleTimeout > 0, closed
// automatically after that long if not reclaimed.
func (p *Pool) Release(host string, port uint16, c *tcp.Conn) {
	k := key(host, port)
	c.Pause(true)

	entry := &conn{key: k, tcp: c}

	c.OnClose(func() {
		p.removeIdle(k, entry)
	})
	c.OnError(func(error) {
		p.removeIdle(k, entry)
	})

	if p.idleTimeout > 0 {
		entry.idleTimer = p.loop.Schedule(p.idleTimeout, func() {
			p.removeIdle(k, entry)
			c.Close()
		})
	}

	p.idle[k] = append(p.idle[k], entry)
}

func (p *Pool) removeIdle(k Endpoint, target *conn) {
	list := p.idle[k]
	for i, c := range list {
		if c == target {
			p.idle[k] = append(list[:i], list[i+1:]...)
			if c.idleTimer != nil {
				c.idleTimer.Cancel()
			}
			return
		}
	}
}

// CloseAll closes every idle connection and empties the pool. Safe to call
// more than once.
func (p *Pool) CloseAll() {
	for k, list := range p.idle {
		for _, c := range list {
			if c.idleTimer != nil {
				c.idleTimer.Cancel()
			}
			_ = c.tcp.Close()
		}
		delete(p.idle, k)
	}
}

// ReportConnectFailure records a connect failure against key's circuit
// breaker. Attach never reports dial outcomes itself; the exchange calls
// this for every failed dial and once its premature-close retries end.
func (p *Pool) ReportConnectFailure(host string, port uint16) {
	p.breaker.ReportFailure(key(host, port))
}

// ReportConnectSuccess clears key's circuit breaker state.
func (p *Pool) ReportConnectSuccess(host string, port uint16) {
	p.breaker.ReportSuccess(key(host, port))
}

// IdleCount returns the number of idle connections currently pooled for
// (host,port), for diagnostics and tests.
func (p *Pool) IdleCount(host string, port uint16) int {
	return len(p.idle[key(host, port)])
}
