package wire

import (
	"fmt"
	"strconv"
)

const maxChunkLineLength = 4096

// parseChunkSizeLine extracts the hex chunk size from a chunk-size line,
// discarding any chunk-extension after a ';' the way a conforming parser
// must (extensions are opaque and never interpreted here).
func parseChunkSizeLine(line []byte) (int64, error) {
	if len(line) > maxChunkLineLength {
		return 0, fmt.Errorf("chunk size line too long")
	}
	if semi := indexByte(line, ';'); semi >= 0 {
		line = line[:semi]
	}
	line = trimCRLF(line)
	if len(line) == 0 {
		return 0, fmt.Errorf("empty chunk size")
	}
	n, err := strconv.ParseUint(string(line), 16, 63)
	if err != nil {
		return 0, fmt.Errorf("invalid chunk size %q: %w", line, err)
	}
	return int64(n), nil
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}

func trimCRLF(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\r' || b[len(b)-1] == '\n' || b[len(b)-1] == ' ' || b[len(b)-1] == '\t') {
		b = b[:len(b)-1]
	}
	return b
}

// encodeChunkHeader renders a chunk-size line for n bytes of chunk data.
func encodeChunkHeader(n int) []byte {
	return []byte(fmt.Sprintf("%x\r\n", n))
}
