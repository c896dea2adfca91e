// Package frame implements the length-prefixed framing used on relay
// connections. Every frame is a 16-byte ASCII decimal header, left-justified
// and padded with spaces, followed by exactly that many payload bytes.
package frame

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// HeaderSize is the fixed width of the length header in bytes.
const HeaderSize = 16

var (
	// ErrProtocol is wrapped by every error caused by malformed input:
	// a non-numeric header, a frame cut short by end of stream or a
	// declared length above the reader limit.
	ErrProtocol = errors.New("frame: protocol error")

	// ErrWouldBlock is returned when a read deadline expired before a
	// complete frame arrived. It is not a failure; the caller retries later.
	ErrWouldBlock = errors.New("frame: no data available yet")
)

// IOError reports a failure of the underlying stream.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string {
	return "frame: " + e.Op + ": " + e.Err.Error()
}

// Unwrap returns the underlying stream error.
func (e *IOError) Unwrap() error {
	return e.Err
}

// Header returns the 16-byte header announcing a payload of n bytes.
func Header(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("frame: negative payload length %d", n)
	}
	digits := strconv.Itoa(n)
	if len(digits) > HeaderSize {
		return nil, fmt.Errorf("frame: payload length %d does not fit the header", n)
	}
	header := make([]byte, HeaderSize)
	copy(header, digits)
	for i := len(digits); i < HeaderSize; i++ {
		header[i] = ' '
	}
	return header, nil
}

// Encode returns the wire form of payload: header followed by the bytes.
func Encode(payload []byte) ([]byte, error) {
	header, err := Header(len(payload))
	if err != nil {
		return nil, err
	}
	return append(header, payload...), nil
}

// WriteFrame writes payload as a single frame with one call to w.Write,
// so frames written by one goroutine are never split by another writer.
func WriteFrame(w io.Writer, payload []byte) error {
	buf, err := Encode(payload)
	if err != nil {
		return err
	}
	if _, err := w.Write(buf); err != nil {
		return &IOError{Op: "write", Err: err}
	}
	return nil
}

// ReadFrame reads one complete frame from r. A stream that ends before the
// first header byte yields io.EOF. Limit bounds the accepted payload length;
// zero or less means unlimited.
//
// ReadFrame keeps no state between calls, so on a stream with read
// deadlines a partially received frame is lost when ErrWouldBlock is
// returned. Use Reader for such streams.
func ReadFrame(r io.Reader, limit int64) ([]byte, error) {
	return NewReader(r, limit).ReadFrame()
}

func parseHeader(header []byte, limit int64) (int, error) {
	text := strings.TrimSpace(string(header))
	if text == "" {
		return 0, fmt.Errorf("%w: empty length header", ErrProtocol)
	}
	n, err := strconv.ParseUint(text, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid length header %q", ErrProtocol, text)
	}
	if n > math.MaxInt {
		return 0, fmt.Errorf("%w: frame of %d bytes is too large", ErrProtocol, n)
	}
	if limit > 0 && n > uint64(limit) {
		return 0, fmt.Errorf("%w: frame of %d bytes exceeds limit of %d bytes", ErrProtocol, n, limit)
	}
	return int(n), nil
}
