package wire

import (
	"reflect"
	"testing"
)

type recordingSink struct {
	allowBody     bool
	started       bool
	body          [][]byte
	ended         bool
	trailers      []Header
	err           error
	inspecting    bool
	connTokensGot []string
}

func (s *recordingSink) InputStart(topLine string, hdrs []Header, connTokens, transferCodes []string, contentLength int64, hasCL bool) bool {
	s.started = true
	s.connTokensGot = connTokens
	return s.allowBody
}
func (s *recordingSink) InputBody(chunk []byte) {
	cp := append([]byte(nil), chunk...)
	s.body = append(s.body, cp)
}
func (s *recordingSink) InputEnd(trailers []Header) {
	s.ended = true
	s.trailers = trailers
}
func (s *recordingSink) InputError(err error) { s.err = err }
func (s *recordingSink) Inspecting() bool     { return s.inspecting }

func TestHandleInputCountedBody(t *testing.T) {
	sink := &recordingSink{allowBody: true}
	h := NewHandler(func([]byte) {}, sink)

	h.HandleInput([]byte("HTTP/1.1 200 OK\r\nContent-Length: 5\r\nConnection: keep-alive\r\n\r\nhello"))

	if !sink.started || !sink.ended {
		t.Fatalf("expected start and end, got started=%v ended=%v", sink.started, sink.ended)
	}
	if len(sink.body) != 1 || string(sink.body[0]) != "hello" {
		t.Errorf("expected body 'hello', got %v", sink.body)
	}
}

func TestHandleInputSplitAcrossReads(t *testing.T) {
	sink := &recordingSink{allowBody: true}
	h := NewHandler(func([]byte) {}, sink)

	h.HandleInput([]byte("HTTP/1.1 200 OK\r\nContent-Len"))
	h.HandleInput([]byte("gth: 5\r\n\r\nhe"))
	h.HandleInput([]byte("llo"))

	if !sink.ended {
		t.Fatal("expected response to complete across fragmented reads")
	}
	var got []byte
	for _, c := range sink.body {
		got = append(got, c...)
	}
	if string(got) != "hello" {
		t.Errorf("expected 'hello', got %q", got)
	}
}

func TestHandleInputChunked(t *testing.T) {
	sink := &recordingSink{allowBody: true}
	h := NewHandler(func([]byte) {}, sink)

	raw := "HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n" +
		"4\r\nWiki\r\n5\r\npedia\r\n0\r\n\r\n"
	h.HandleInput([]byte(raw))

	if !sink.ended {
		t.Fatal("expected chunked response to complete")
	}
	var got []byte
	for _, c := range sink.body {
		got = append(got, c...)
	}
	if string(got) != "Wikipedia" {
		t.Errorf("expected 'Wikipedia', got %q", got)
	}
}

func TestHandleInputNoBodyAllowed(t *testing.T) {
	sink := &recordingSink{allowBody: false}
	h := NewHandler(func([]byte) {}, sink)

	h.HandleInput([]byte("HTTP/1.1 204 No Content\r\nContent-Length: 42\r\n\r\n"))

	if !sink.ended {
		t.Fatal("expected end immediately when body disallowed")
	}
	if len(sink.body) != 0 {
		t.Errorf("expected no body events, got %v", sink.body)
	}
}

func TestHandleInputCloseDelimited(t *testing.T) {
	sink := &recordingSink{allowBody: true}
	h := NewHandler(func([]byte) {}, sink)

	h.HandleInput([]byte("HTTP/1.1 200 OK\r\n\r\npartial-body"))
	if sink.ended {
		t.Fatal("close-delimited body should not end until Closed()")
	}
	h.Closed()
	if !sink.ended {
		t.Fatal("expected Closed() to finalize a close-delimited body")
	}
}

func TestHandleInputBadContentLength(t *testing.T) {
	sink := &recordingSink{allowBody: true}
	h := NewHandler(func([]byte) {}, sink)

	h.HandleInput([]byte("HTTP/1.1 200 OK\r\nContent-Length: notanumber\r\n\r\n"))

	if sink.err == nil {
		t.Fatal("expected a content-length parse error")
	}
}

func TestOutputStartSerializesHeaders(t *testing.T) {
	var got []byte
	h := NewHandler(func(b []byte) { got = append(got, b...) }, &recordingSink{})

	h.OutputStart("GET / HTTP/1.1", []Header{{Name: "Host", Value: "example.com"}}, Delimit{Kind: DelimitNone})

	want := "GET / HTTP/1.1\r\nHost: example.com\r\n\r\n"
	if string(got) != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestOutputChunkedBody(t *testing.T) {
	var got []byte
	h := NewHandler(func(b []byte) { got = append(got, b...) }, &recordingSink{})

	h.OutputStart("POST / HTTP/1.1", nil, Delimit{Kind: DelimitChunked})
	h.OutputBody([]byte("abc"))
	h.OutputEnd(nil)

	want := "POST / HTTP/1.1\r\n\r\n3\r\nabc\r\n0\r\n\r\n"
	if string(got) != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestParseTokens(t *testing.T) {
	got := ParseTokens("Close, Keep-Alive , ")
	want := []string{"close", "keep-alive"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestNoBodyStatus(t *testing.T) {
	for _, code := range []int{100, 101, 204, 304} {
		if !NoBodyStatus(code) {
			t.Errorf("expected %d to be a no-body status", code)
		}
	}
	if NoBodyStatus(200) {
		t.Error("200 should not be a no-body status")
	}
}
