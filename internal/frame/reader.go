package frame

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"
)

// Reader decodes frames from a stream that may report "no data yet", such
// as a net.Conn with a read deadline. Progress on a partially received frame
// survives ErrWouldBlock, so the next ReadFrame call resumes where the
// previous one stopped.
//
// A Reader is not safe for concurrent use.
type Reader struct {
	r     io.Reader
	limit int64

	header [HeaderSize]byte
	hn     int

	body    bool
	size    int
	payload bytes.Buffer
}

// unboundedPrealloc caps the up-front allocation when no limit is set, so a
// peer cannot claim a huge frame without sending it.
const unboundedPrealloc = 64 * 1024

// NewReader returns a Reader on r. Limit bounds the accepted payload length;
// zero or less means unlimited.
func NewReader(r io.Reader, limit int64) *Reader {
	return &Reader{r: r, limit: limit}
}

// Pending reports whether part of a frame has been received but not yet
// returned.
func (fr *Reader) Pending() bool {
	return fr.hn > 0 || fr.body
}

// ReadFrame returns the next complete payload.
//
// It returns io.EOF when the stream ends on a frame boundary, ErrWouldBlock
// when the stream timed out (partial progress is kept), an error wrapping
// ErrProtocol for malformed or truncated frames, and *IOError for any other
// stream failure.
func (fr *Reader) ReadFrame() ([]byte, error) {
	if !fr.body {
		for fr.hn < HeaderSize {
			n, err := fr.r.Read(fr.header[fr.hn:])
			fr.hn += n
			if err != nil && fr.hn < HeaderSize {
				return nil, fr.readError(err)
			}
		}

		size, err := parseHeader(fr.header[:], fr.limit)
		if err != nil {
			fr.reset()
			return nil, err
		}
		fr.body = true
		fr.size = size
		if fr.limit > 0 {
			fr.payload.Grow(size)
		} else {
			fr.payload.Grow(min(size, unboundedPrealloc))
		}
	}

	for fr.payload.Len() < fr.size {
		_, err := io.CopyN(&fr.payload, fr.r, int64(fr.size-fr.payload.Len()))
		if err != nil && fr.payload.Len() < fr.size {
			return nil, fr.readError(err)
		}
	}

	payload := fr.payload.Bytes()
	if payload == nil {
		payload = []byte{}
	}
	fr.reset()
	return payload, nil
}

func (fr *Reader) reset() {
	fr.hn = 0
	fr.body = false
	fr.size = 0
	fr.payload = bytes.Buffer{}
}

func (fr *Reader) readError(err error) error {
	if isWouldBlock(err) {
		return ErrWouldBlock
	}

	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		switch {
		case !fr.Pending():
			return io.EOF
		case !fr.body:
			received := fr.hn
			fr.reset()
			return fmt.Errorf("%w: stream closed after %d of %d header bytes", ErrProtocol, received, HeaderSize)
		default:
			received, size := fr.payload.Len(), fr.size
			fr.reset()
			return fmt.Errorf("%w: stream closed after %d of %d payload bytes", ErrProtocol, received, size)
		}
	}

	return &IOError{Op: "read", Err: err}
}

func isWouldBlock(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, syscall.EAGAIN) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
