// Package exchange implements the one-shot state machine that binds a
// single HTTP request/response pair to a pooled TCP connection: request
// framing, response parsing hookup, timeouts, idempotent-method retry on
// premature close, the reuse decision, and pausing of response delivery at
// the application's request (ResBodyPause). Upstream backpressure is not
// forwarded: the tcp transport reports no pause events, so Sink.Pause is
// never called.
package exchange

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sebastien/thor/errs"
	"github.com/sebastien/thor/loop"
	"github.com/sebastien/thor/pool"
	"github.com/sebastien/thor/tcp"
	"github.com/sebastien/thor/wire"
)

// Sink receives the application-visible events of a single exchange, in
// the order guaranteed by spec: at most one ResponseStart, zero or more
// ResponseBody, then exactly one of ResponseDone or Error. Pause is part of
// the interface but this package never calls it.
type Sink interface {
	ResponseStart(code int, phrase string, hdrs []wire.Header)
	ResponseBody(chunk []byte)
	ResponseDone(trailers []wire.Header)
	Error(err error)
	Pause(paused bool)
}

// Config holds the per-exchange policy inherited from the owning Client.
type Config struct {
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	RetryLimit     int
	RetryDelay     time.Duration
}

type state int

const (
	stateInit state = iota
	stateConnecting
	stateWaiting
	stateReadingHeaders
	stateReadingBody
	stateDone
	stateError
)

// readTimeoutKind labels which milestone a read timeout was armed for, so
// the errs.KindReadTimeout error carries a useful detail string.
type readTimeoutKind string

const (
	timeoutConnect readTimeoutKind = "connect"
	timeoutStart   readTimeoutKind = "start"
	timeoutBody    readTimeoutKind = "body"
)

// Exchange is a one-shot object: create one via client.Client.Exchange,
// drive it through RequestStart/RequestBody/RequestDone, and discard it
// once its Sink has received a terminal event.
type Exchange struct {
	l    *loop.Loop
	pool *pool.Pool
	cfg  Config
	sink Sink

	publish func(kind, host string, port uint16, detail string)

	method string
	host   string
	port   uint16

	outputBuffer []byte
	tcpConn      *tcp.Conn
	connected    bool

	retries      int
	connReusable bool

	readTimeout     *loop.TimerHandle
	readTimeoutKind readTimeoutKind

	state   state
	handler *wire.Handler

	requireBody bool
	isHead      bool
}

// New creates an Exchange bound to l and p, reporting to sink. publish, if
// non-nil, is called with a short event kind and detail string on attach,
// retry, release, close and error, for optional metrics/tracing fan-out; it
// must never block.
func New(l *loop.Loop, p *pool.Pool, cfg Config, sink Sink, publish func(kind, host string, port uint16, detail string)) *Exchange {
	if cfg.RetryLimit == 0 {
		cfg.RetryLimit = 2
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 500 * time.Millisecond
	}
	e := &Exchange{
		l:       l,
		pool:    p,
		cfg:     cfg,
		sink:    sink,
		publish: publish,
		state:   stateInit,
	}
	e.handler = wire.NewHandler(e.output, e)
	return e
}

var reqRemoveHeaders = func() map[string]bool {
	m := map[string]bool{"host": true}
	for k := range wire.HopByHopHeaders {
		m[k] = true
	}
	return m
}()

// RequestStart begins the exchange: it strips hop-by-hop headers, validates
// and parses rawURL, serializes the request line and headers, and asks the
// pool for a connection.
func (e *Exchange) RequestStart(method, rawURL string, hdrs []wire.Header) {
	e.method = strings.ToUpper(method)
	e.isHead = e.method == "HEAD"

	u, err := url.Parse(rawURL)
	if err != nil || !strings.EqualFold(u.Scheme, "http") {
		e.emitError(errs.New(errs.KindURL, "Only HTTP URLs are supported"))
		return
	}

	host := u.Hostname()
	if host == "" {
		e.emitError(errs.New(errs.KindURL, "Missing host in URL"))
		return
	}

	port := uint16(80)
	if p := u.Port(); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > 65535 {
			e.emitError(errs.New(errs.KindURL, "Non-integer port in URL"))
			return
		}
		port = uint16(n)
	}
	e.host = host
	e.port = port

	target := u.EscapedPath()
	if target == "" {
		target = "/"
	}
	if u.RawQuery != "" {
		target += "?" + u.RawQuery
	}

	var outHdrs []wire.Header
	for _, h := range hdrs {
		if reqRemoveHeaders[strings.ToLower(h.Name)] {
			continue
		}
		outHdrs = append(outHdrs, h)
	}
	outHdrs = append(outHdrs, wire.Header{Name: "Host", Value: u.Host})
	outHdrs = append(outHdrs, wire.Header{Name: "Connection", Value: "keep-alive"})

	delimit := wire.Delimit{Kind: wire.DelimitNone}
	if cl, ok := wire.Get(hdrs, "Content-Length"); ok {
		if n, err := strconv.ParseInt(cl, 10, 63); err == nil && n >= 0 {
			delimit = wire.Delimit{Kind: wire.DelimitCounted, N: n}
		}
	}

	topLine := fmt.Sprintf("%s %s HTTP/1.1", e.method, target)
	e.handler.OutputStart(topLine, outHdrs, delimit)

	e.state = stateConnecting
	e.attach()
}

// RequestBody forwards a chunk of outgoing body to the message handler.
func (e *Exchange) RequestBody(chunk []byte) {
	e.handler.OutputBody(chunk)
}

// RequestDone signals end of the outgoing body.
func (e *Exchange) RequestDone(trailers []wire.Header) {
	e.handler.OutputEnd(trailers)
}

// ResBodyPause lets the application pause or resume delivery of response
// body bytes by pausing the underlying socket's reads.
func (e *Exchange) ResBodyPause(paused bool) {
	if e.tcpConn != nil {
		e.tcpConn.Pause(paused)
	}
}

func (e *Exchange) attach() {
	e.pool.Attach(context.Background(), e.host, e.port, e.cfg.ConnectTimeout, e.handleConnect, e.handleConnectError)
}

func (e *Exchange) handleConnect(c *tcp.Conn) {
	e.pool.ReportConnectSuccess(e.host, e.port)

	e.tcpConn = c
	e.connected = true
	e.state = stateWaiting

	c.OnData(e.handleData)
	c.OnClose(e.handleClose)
	c.OnError(e.handleConnError)

	e.armReadTimeout(timeoutConnect)
	e.output(nil) // kick any buffered output now that we're connected
	c.Pause(false)

	e.event("attach", e.host)
}

func (e *Exchange) handleConnectError(err error) {
	e.pool.ReportConnectFailure(e.host, e.port)
	e.emitError(errs.New(errs.KindConnect, err.Error()))
}

func (e *Exchange) handleData(b []byte) {
	if e.state == stateWaiting {
		e.state = stateReadingHeaders
	}
	e.handler.HandleInput(b)
}

func (e *Exchange) handleConnError(err error) {
	e.handleClose()
}

func (e *Exchange) handleClose() {
	if e.state == stateDone || e.state == stateError {
		return
	}

	if e.handler.AwaitingCloseBody() {
		e.handler.Closed()
		return
	}

	switch e.state {
	case stateWaiting:
		e.retryOrFail()
	default:
		e.emitError(errs.New(errs.KindConnect, "Server dropped connection before the response was complete."))
	}
}

func (e *Exchange) retryOrFail() {
	if wire.IdempotentMethods[e.method] && e.retries < e.cfg.RetryLimit {
		e.retries++
		e.tcpConn = nil
		e.connected = false
		e.event("retry", strconv.Itoa(e.retries))
		e.l.Schedule(e.cfg.RetryDelay, func() {
			e.state = stateConnecting
			e.attach()
		})
		return
	}
	e.pool.ReportConnectFailure(e.host, e.port)
	if !wire.IdempotentMethods[e.method] {
		e.emitError(errs.New(errs.KindConnect, fmt.Sprintf("Can't retry %s method", e.method)))
		return
	}
	e.emitError(errs.New(errs.KindConnect, fmt.Sprintf("Tried to connect %d times.", e.retries+1)))
}

// output appends to the internal output buffer and flushes it in one write
// once the connection is attached and connected.
func (e *Exchange) output(chunk []byte) {
	e.outputBuffer = append(e.outputBuffer, chunk...)
	if e.tcpConn == nil || !e.connected {
		return
	}
	if len(e.outputBuffer) == 0 {
		return
	}
	buf := e.outputBuffer
	e.outputBuffer = nil
	_, _ = e.tcpConn.Write(buf)
}

// --- wire.Sink ---

func (e *Exchange) InputStart(topLine string, hdrs []wire.Header, connTokens, transferCodes []string, contentLength int64, hasCL bool) bool {
	e.clearReadTimeout()

	parts := strings.SplitN(topLine, " ", 3)
	if len(parts) < 2 || !strings.HasPrefix(parts[0], "HTTP/") {
		e.emitError(errs.New(errs.KindHTTPVersion, topLine))
		return false
	}
	version := strings.TrimPrefix(parts[0], "HTTP/")
	if version != "1.0" && version != "1.1" {
		e.emitError(errs.New(errs.KindHTTPVersion, version))
		return false
	}
	code, err := strconv.Atoi(parts[1])
	if err != nil {
		e.emitError(errs.New(errs.KindHTTPVersion, topLine))
		return false
	}
	phrase := ""
	if len(parts) == 3 {
		phrase = parts[2]
	}

	closeToken := hasToken(connTokens, "close")
	keepAliveToken := hasToken(connTokens, "keep-alive")
	e.connReusable = !closeToken && (version == "1.1" || keepAliveToken)

	e.state = stateReadingBody
	e.armReadTimeout(timeoutStart)

	e.sink.ResponseStart(code, phrase, hdrs)

	return !wire.NoBodyStatus(code) && !e.isHead
}

func (e *Exchange) InputBody(chunk []byte) {
	e.clearReadTimeout()
	e.sink.ResponseBody(chunk)
	e.armReadTimeout(timeoutBody)
}

func (e *Exchange) InputEnd(trailers []wire.Header) {
	if e.state == stateDone || e.state == stateError {
		return
	}
	e.clearReadTimeout()
	e.state = stateDone

	if e.tcpConn != nil && e.connected && e.connReusable {
		c := e.tcpConn
		host, port := e.host, e.port
		e.tcpConn = nil
		c.OnData(nil)
		c.OnClose(nil)
		c.OnError(nil)
		e.pool.Release(host, port, c)
		e.event("release", "")
	} else if e.tcpConn != nil {
		_ = e.tcpConn.Close()
		e.tcpConn = nil
		e.event("close", "")
	}

	e.sink.ResponseDone(trailers)
}

func (e *Exchange) InputError(err error) {
	if e.Inspecting() {
		e.connReusable = false
		return
	}
	e.emitError(err)
}

// Inspecting mirrors the parser's "inspecting" flag: this exchange never
// asks the parser to keep going after an error, so it is always false.
func (e *Exchange) Inspecting() bool {
	return false
}

func (e *Exchange) emitError(err error) {
	if e.state == stateDone || e.state == stateError {
		return
	}
	e.clearReadTimeout()
	e.state = stateError
	if e.tcpConn != nil {
		_ = e.tcpConn.Close()
		e.tcpConn = nil
	}
	e.sink.Error(err)
	e.event("error", err.Error())
}

func (e *Exchange) armReadTimeout(kind readTimeoutKind) {
	if e.cfg.ReadTimeout <= 0 {
		return
	}
	e.clearReadTimeout()
	e.readTimeoutKind = kind
	e.readTimeout = e.l.Schedule(e.cfg.ReadTimeout, func() {
		e.InputError(errs.New(errs.KindReadTimeout, string(e.readTimeoutKind)))
	})
}

func (e *Exchange) clearReadTimeout() {
	if e.readTimeout != nil {
		e.readTimeout.Cancel()
		e.readTimeout = nil
	}
}

func (e *Exchange) event(kind, detail string) {
	if e.publish != nil {
		e.publish(kind, e.host, e.port, detail)
	}
}

func hasToken(tokens []string, want string) bool {
	for _, t := range tokens {
		if t == want {
			return true
		}
	}
	return false
}
