package errs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"
	"time"
)

// Describe converts any error encountered during an exchange into an
// actionable, human-facing message. It recognises the engine's own *Error
// values as well as the usual net/context failures a dial or read can
// surface, and falls through to a generic message with duration context.
func Describe(err error, duration time.Duration) string {
	if err == nil {
		return ""
	}

	var e *Error
	if errors.As(err, &e) {
		if e.Detail != "" {
			return fmt.Sprintf("%s after %.1fs: %s", e.Desc(), duration.Seconds(), e.Detail)
		}
		return fmt.Sprintf("%s after %.1fs", e.Desc(), duration.Seconds())
	}

	switch {
	case errors.Is(err, context.Canceled):
		return fmt.Sprintf("exchange cancelled after %.1fs", duration.Seconds())
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Sprintf("exchange timed out after %.1fs waiting on the server", duration.Seconds())
	case errors.Is(err, io.EOF):
		return fmt.Sprintf("server closed the connection after %.1fs before the response completed", duration.Seconds())
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Sprintf("network timeout after %.1fs connecting to the server", duration.Seconds())
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		switch opErr.Op {
		case "dial":
			return fmt.Sprintf("could not connect after %.1fs to %s", duration.Seconds(), opErr.Addr)
		case "read":
			return fmt.Sprintf("connection lost after %.1fs while reading the response", duration.Seconds())
		case "write":
			return fmt.Sprintf("connection lost after %.1fs while sending the request", duration.Seconds())
		}
	}

	if errors.Is(err, syscall.ECONNREFUSED) {
		return fmt.Sprintf("connection refused after %.1fs, the server is not accepting connections", duration.Seconds())
	}
	if errors.Is(err, syscall.ECONNRESET) {
		return fmt.Sprintf("connection reset after %.1fs, the server closed it unexpectedly", duration.Seconds())
	}
	if netErr != nil {
		return fmt.Sprintf("network error after %.1fs: %s", duration.Seconds(), netErr)
	}

	errStr := err.Error()
	switch {
	case strings.Contains(errStr, "no such host"):
		return fmt.Sprintf("DNS lookup failed after %.1fs", duration.Seconds())
	case strings.Contains(errStr, "connection refused"):
		return fmt.Sprintf("connection refused after %.1fs", duration.Seconds())
	case strings.Contains(errStr, "connection reset"):
		return fmt.Sprintf("connection reset after %.1fs", duration.Seconds())
	}

	return fmt.Sprintf("exchange failed after %.1fs: %s", duration.Seconds(), errStr)
}
