// Package errs defines the error taxonomy shared by the wire decoder, the
// connection pool and the exchange state machine.
package errs

import "fmt"

// Kind identifies the category of an Error, mirroring the exception
// hierarchy of the original HTTP message parser this engine is based on.
type Kind int

const (
	KindUnknown Kind = iota
	KindURL
	KindConnect
	KindReadTimeout
	KindHTTPVersion
	KindChunk
	KindContentLength
	KindHeaderSpace
	KindTopLineSpace
	KindTransferCode
	KindTooManyMsgs
	KindBodyForbidden
	KindLengthRequired
)

var descriptions = map[Kind]string{
	KindUnknown:        "Unknown Error",
	KindURL:            "Unsupported or invalid URI",
	KindConnect:        "Connection closed",
	KindReadTimeout:    "Read Timeout",
	KindHTTPVersion:    "Unrecognised HTTP version",
	KindChunk:          "Chunked encoding error",
	KindContentLength:  "Duplicate or malformed Content-Length header",
	KindHeaderSpace:    "Whitespace at the end of a header field name",
	KindTopLineSpace:   "Whitespace after top line, before first header",
	KindTransferCode:   "Unknown transfer coding",
	KindTooManyMsgs:    "Too many messages to parse",
	KindBodyForbidden:  "This message does not allow a body",
	KindLengthRequired: "Content-Length required",
}

// Status is the HTTP status a server would plausibly return if this error
// occurred while it was acting as the far end of the exchange. It has no
// bearing on client behaviour; it exists so diagnostics can classify an
// error the way a status code would.
type Status struct {
	Code   int
	Phrase string
}

var serverStatus = map[Kind]Status{
	KindURL:            {400, "Bad Request"},
	KindHTTPVersion:    {505, "HTTP Version Not Supported"},
	KindTransferCode:   {501, "Not Implemented"},
	KindHeaderSpace:    {400, "Bad Request"},
	KindTopLineSpace:   {400, "Bad Request"},
	KindTooManyMsgs:    {400, "Bad Request"},
	KindConnect:        {504, "Gateway Timeout"},
	KindLengthRequired: {411, "Length Required"},
	KindContentLength:  {400, "Bad Request"},
}

// Error is the concrete error type produced anywhere in the engine. Detail
// carries the offending bytes or a short clarifying fragment and may be
// empty.
type Error struct {
	Kind   Kind
	Detail string
}

func New(kind Kind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return e.Desc()
	}
	return fmt.Sprintf("%s: %s", e.Desc(), e.Detail)
}

// Desc returns the static, human description for the error's Kind.
func (e *Error) Desc() string {
	if d, ok := descriptions[e.Kind]; ok {
		return d
	}
	return descriptions[KindUnknown]
}

// ServerStatus reports the status a server would have returned for this
// condition, and whether one is defined at all.
func (e *Error) ServerStatus() (Status, bool) {
	s, ok := serverStatus[e.Kind]
	return s, ok
}

// Idempotent reports whether an error of this kind is classed as
// retryable on a fresh connection: connect failures and read timeouts (for
// any milestone) are, every other kind is not. The exchange does not
// consult it; its own retry decision rests on the request method and on no
// response bytes having arrived.
func (e *Error) Idempotent() bool {
	switch e.Kind {
	case KindConnect, KindReadTimeout:
		return true
	default:
		return false
	}
}
