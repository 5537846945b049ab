package wire

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/sebastien/thor/errs"
)

type parseState int

const (
	stateTopLine parseState = iota
	stateHeaders
	stateBodyCounted
	stateBodyChunkSize
	stateBodyChunkData
	stateBodyChunkCRLF
	stateBodyChunkTrailer
	stateBodyClose
	stateDone
	stateError
)

// Handler serializes outgoing messages and incrementally parses incoming
// ones for a single exchange. It is not safe for concurrent use; the
// exchange that owns it drives it exclusively from the event loop
// goroutine.
type Handler struct {
	output func([]byte)
	sink   Sink

	outDelimit Delimit

	buf   []byte
	state parseState

	remaining int64
	trailers  []Header

	curTopLine       string
	curHeaders       []Header
	curConnTokens    []string
	curTransferCodes []string
}

// NewHandler returns a Handler that writes serialized bytes to output and
// delivers parsed input to sink.
func NewHandler(output func([]byte), sink Sink) *Handler {
	return &Handler{output: output, sink: sink, state: stateTopLine}
}

// --- output side ---

// OutputStart serializes a request (or response) start line and headers.
// delimit governs how OutputBody/OutputEnd frame the body that follows.
func (h *Handler) OutputStart(topLine string, hdrs []Header, delimit Delimit) {
	h.outDelimit = delimit
	var b bytes.Buffer
	b.WriteString(topLine)
	b.WriteString("\r\n")
	for _, hdr := range hdrs {
		b.WriteString(hdr.Name)
		b.WriteString(": ")
		b.WriteString(hdr.Value)
		b.WriteString("\r\n")
	}
	b.WriteString("\r\n")
	h.output(b.Bytes())
}

// OutputBody writes one chunk of request body, applying chunked framing if
// that is the chosen delimiter.
func (h *Handler) OutputBody(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	if h.outDelimit.Kind == DelimitChunked {
		h.output(encodeChunkHeader(len(chunk)))
		h.output(chunk)
		h.output([]byte("\r\n"))
		return
	}
	h.output(chunk)
}

// OutputEnd finalizes the body, writing the terminating chunk and any
// trailers when chunked framing was used. It is a no-op otherwise.
func (h *Handler) OutputEnd(trailers []Header) {
	if h.outDelimit.Kind != DelimitChunked {
		return
	}
	var b bytes.Buffer
	b.WriteString("0\r\n")
	for _, t := range trailers {
		b.WriteString(t.Name)
		b.WriteString(": ")
		b.WriteString(t.Value)
		b.WriteString("\r\n")
	}
	b.WriteString("\r\n")
	h.output(b.Bytes())
}

// --- input side ---

// Inspecting delegates to the sink's Inspecting flag.
func (h *Handler) Inspecting() bool {
	return h.sink.Inspecting()
}

// HandleInput feeds freshly-received bytes into the parser, which calls
// back into the sink as milestones complete. It may be called repeatedly
// with however the transport happens to chunk reads.
func (h *Handler) HandleInput(data []byte) {
	if h.state == stateDone || h.state == stateError {
		return
	}
	h.buf = append(h.buf, data...)
	for h.step() {
	}
}

// step processes as much of h.buf as a complete grammar unit allows,
// returning true if it made progress and should be called again.
func (h *Handler) step() bool {
	switch h.state {
	case stateTopLine:
		return h.stepTopLine()
	case stateHeaders:
		return h.stepHeaders()
	case stateBodyCounted:
		return h.stepBodyCounted()
	case stateBodyClose:
		return h.stepBodyClose()
	case stateBodyChunkSize:
		return h.stepChunkSize()
	case stateBodyChunkData:
		return h.stepChunkData()
	case stateBodyChunkCRLF:
		return h.stepChunkCRLF()
	case stateBodyChunkTrailer:
		return h.stepTrailer()
	default:
		return false
	}
}

func (h *Handler) findCRLF() int {
	return bytes.Index(h.buf, []byte("\r\n"))
}

func (h *Handler) stepTopLine() bool {
	idx := h.findCRLF()
	if idx < 0 {
		return false
	}
	line := string(h.buf[:idx])
	h.buf = h.buf[idx+2:]

	if strings.TrimSpace(line) == "" {
		// tolerate a leading blank line some servers send
		return true
	}

	h.curTopLine = line
	h.curHeaders = nil
	h.curConnTokens = nil
	h.curTransferCodes = nil
	h.state = stateHeaders
	return true
}

func (h *Handler) stepHeaders() bool {
	idx := h.findCRLF()
	if idx < 0 {
		return false
	}
	line := h.buf[:idx]
	h.buf = h.buf[idx+2:]

	if len(line) == 0 {
		h.finishHeaders()
		return true
	}

	if line[0] == ' ' || line[0] == '\t' {
		h.fail(errs.New(errs.KindTopLineSpace, ""))
		return false
	}

	colon := bytes.IndexByte(line, ':')
	if colon < 0 {
		h.fail(errs.New(errs.KindHeaderSpace, string(line)))
		return false
	}
	name := string(line[:colon])
	if strings.TrimRight(name, " \t") != name {
		h.fail(errs.New(errs.KindHeaderSpace, name))
		return false
	}
	value := strings.TrimSpace(string(line[colon+1:]))

	h.curHeaders = append(h.curHeaders, Header{Name: name, Value: value})

	switch strings.ToLower(name) {
	case "connection":
		h.curConnTokens = append(h.curConnTokens, ParseTokens(value)...)
	case "transfer-encoding":
		h.curTransferCodes = append(h.curTransferCodes, ParseTokens(value)...)
	}
	return true
}

func (h *Handler) finishHeaders() {
	contentLengthValue, hasCL := Get(h.curHeaders, "Content-Length")
	var contentLength int64
	if hasCL {
		n, err := strconv.ParseInt(strings.TrimSpace(contentLengthValue), 10, 63)
		if err != nil || n < 0 {
			h.fail(errs.New(errs.KindContentLength, contentLengthValue))
			return
		}
		contentLength = n
	}

	if len(h.curTransferCodes) > 0 {
		last := h.curTransferCodes[len(h.curTransferCodes)-1]
		if last != "chunked" {
			h.fail(errs.New(errs.KindTransferCode, strings.Join(h.curTransferCodes, ",")))
			return
		}
	}

	allowsBody := h.sink.InputStart(h.curTopLine, h.curHeaders, h.curConnTokens, h.curTransferCodes, contentLength, hasCL)

	switch {
	case !allowsBody:
		h.state = stateDone
		h.sink.InputEnd(nil)
	case hasToken(h.curTransferCodes, "chunked"):
		h.state = stateBodyChunkSize
	case hasCL:
		h.remaining = contentLength
		if h.remaining == 0 {
			h.state = stateDone
			h.sink.InputEnd(nil)
		} else {
			h.state = stateBodyCounted
		}
	default:
		h.state = stateBodyClose
	}
}

func (h *Handler) stepBodyCounted() bool {
	if len(h.buf) == 0 {
		return false
	}
	n := int64(len(h.buf))
	if n > h.remaining {
		n = h.remaining
	}
	chunk := h.buf[:n]
	h.buf = h.buf[n:]
	h.remaining -= n
	if len(chunk) > 0 {
		h.sink.InputBody(chunk)
	}
	if h.remaining == 0 {
		h.state = stateDone
		h.sink.InputEnd(nil)
		return false
	}
	return len(h.buf) > 0
}

func (h *Handler) stepBodyClose() bool {
	if len(h.buf) == 0 {
		return false
	}
	h.sink.InputBody(h.buf)
	h.buf = nil
	return false
}

// AwaitingCloseBody reports whether the parser is mid-body with a
// connection-close delimiter, i.e. a TCP close at this point is the
// legitimate end of the message rather than a premature one.
func (h *Handler) AwaitingCloseBody() bool {
	return h.state == stateBodyClose
}

// Done reports whether the parser has reached a terminal state, either
// having delivered InputEnd or InputError without Inspecting continuing.
func (h *Handler) Done() bool {
	return h.state == stateDone || h.state == stateError
}

// Closed tells the handler the underlying connection has closed, which for
// a DelimitClose body is the legitimate end-of-message signal.
func (h *Handler) Closed() {
	if h.state == stateBodyClose {
		h.state = stateDone
		h.sink.InputEnd(nil)
	}
}

func (h *Handler) stepChunkSize() bool {
	idx := h.findCRLF()
	if idx < 0 {
		return false
	}
	line := h.buf[:idx]
	h.buf = h.buf[idx+2:]

	size, err := parseChunkSizeLine(line)
	if err != nil {
		h.fail(errs.New(errs.KindChunk, err.Error()))
		return false
	}
	if size == 0 {
		h.state = stateBodyChunkTrailer
		h.trailers = nil
		return true
	}
	h.remaining = size
	h.state = stateBodyChunkData
	return true
}

func (h *Handler) stepChunkData() bool {
	if len(h.buf) == 0 {
		return false
	}
	n := int64(len(h.buf))
	if n > h.remaining {
		n = h.remaining
	}
	chunk := h.buf[:n]
	h.buf = h.buf[n:]
	h.remaining -= n
	if len(chunk) > 0 {
		h.sink.InputBody(chunk)
	}
	if h.remaining == 0 {
		h.state = stateBodyChunkCRLF
	}
	return len(h.buf) > 0
}

func (h *Handler) stepChunkCRLF() bool {
	if len(h.buf) < 2 {
		return false
	}
	if h.buf[0] != '\r' || h.buf[1] != '\n' {
		h.fail(errs.New(errs.KindChunk, "missing chunk terminator"))
		return false
	}
	h.buf = h.buf[2:]
	h.state = stateBodyChunkSize
	return true
}

func (h *Handler) stepTrailer() bool {
	idx := h.findCRLF()
	if idx < 0 {
		return false
	}
	line := h.buf[:idx]
	h.buf = h.buf[idx+2:]

	if len(line) == 0 {
		h.state = stateDone
		h.sink.InputEnd(h.trailers)
		return false
	}

	colon := bytes.IndexByte(line, ':')
	if colon < 0 {
		h.fail(errs.New(errs.KindHeaderSpace, string(line)))
		return false
	}
	name := string(line[:colon])
	value := strings.TrimSpace(string(line[colon+1:]))
	h.trailers = append(h.trailers, Header{Name: name, Value: value})
	return true
}

func (h *Handler) fail(err error) {
	h.sink.InputError(err)
	if h.sink.Inspecting() {
		return
	}
	h.state = stateError
}
