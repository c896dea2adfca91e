package integration

import (
	"time"

	"github.com/Tyrowin/gochat-relay/internal/frame"
	"github.com/Tyrowin/gochat-relay/test/testhelpers"
)

// writeFrame sends one frame and reports failure instead of failing the
// test, so it can be used from helper goroutines.
func writeFrame(c *testhelpers.TCPClient, payload string) error {
	_ = c.Conn.SetWriteDeadline(time.Now().Add(testhelpers.Timeout))
	return frame.WriteFrame(c.Conn, []byte(payload))
}
