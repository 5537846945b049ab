// Package client is the public entry point for the engine: a configuration
// holder and exchange factory that owns the connection pool and the event
// loop's stop subscription.
package client

import (
	"time"

	"github.com/sebastien/thor/exchange"
	"github.com/sebastien/thor/loop"
	"github.com/sebastien/thor/pkg/eventbus"
	"github.com/sebastien/thor/pool"
	"github.com/sebastien/thor/tcp"
)

// Config holds the tunables of a Client, carried through to every Exchange
// it produces.
type Config struct {
	IdleTimeout       time.Duration
	ConnectTimeout    time.Duration
	ReadTimeout       time.Duration
	RetryLimit        int
	RetryDelay        time.Duration
	CircuitThreshold  int
	CircuitResetAfter time.Duration
}

// EventKind identifies the lifecycle moment a client Event describes.
type EventKind string

const (
	EventAttach  EventKind = "attach"
	EventRetry   EventKind = "retry"
	EventRelease EventKind = "release"
	EventClose   EventKind = "close"
	EventError   EventKind = "error"
)

// Event is published, best-effort and non-blocking, when an exchange
// attaches, schedules a retry, releases or closes its connection, or fails.
// It exists purely for metrics/tracing observers and carries no ordering
// guarantee of its own.
type Event struct {
	Kind   EventKind
	Host   string
	Port   uint16
	Detail string
}

// Client owns a connection Pool and the Loop it runs on, and is the
// factory every Exchange is created through.
type Client struct {
	cfg  Config
	loop *loop.Loop
	pool *pool.Pool
	tcp  *tcp.Client

	events *eventbus.EventBus[Event]
}

// New constructs a Client bound to l, with its own connection pool and TCP
// transport. If events is non-nil, every exchange's lifecycle publishes a
// best-effort Event to it.
func New(l *loop.Loop, cfg Config, events *eventbus.EventBus[Event]) *Client {
	tcpClient := tcp.NewClient(l)
	p := pool.New(l, tcpClient, pool.Config{
		IdleTimeout:       cfg.IdleTimeout,
		CircuitThreshold:  cfg.CircuitThreshold,
		CircuitResetAfter: cfg.CircuitResetAfter,
	})
	return &Client{cfg: cfg, loop: l, pool: p, tcp: tcpClient, events: events}
}

// Exchange returns a fresh exchange.Exchange bound to this client's pool
// and policy, reporting application-visible events to sink.
func (c *Client) Exchange(sink exchange.Sink) *exchange.Exchange {
	return exchange.New(c.loop, c.pool, exchange.Config{
		ConnectTimeout: c.cfg.ConnectTimeout,
		ReadTimeout:    c.cfg.ReadTimeout,
		RetryLimit:     c.cfg.RetryLimit,
		RetryDelay:     c.cfg.RetryDelay,
	}, sink, c.publish)
}

func (c *Client) publish(kind, host string, port uint16, detail string) {
	if c.events == nil {
		return
	}
	c.events.PublishAsync(Event{Kind: EventKind(kind), Host: host, Port: port, Detail: detail})
}

// Pool exposes the underlying connection pool, primarily for diagnostics.
func (c *Client) Pool() *pool.Pool {
	return c.pool
}

// Loop exposes the event loop this client runs on.
func (c *Client) Loop() *loop.Loop {
	return c.loop
}
