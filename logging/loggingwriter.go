package logging

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
)

// LoggingWriter wraps a response writer, and records the status code and
// the size of the response for the access log.
type LoggingWriter struct {
	writer http.ResponseWriter
	code   int
	bytes  int64
}

func NewLoggingWriter(w http.ResponseWriter) *LoggingWriter {
	return &LoggingWriter{writer: w}
}

func (lw *LoggingWriter) Write(data []byte) (count int, err error) {
	if lw.code == 0 {
		lw.code = http.StatusOK
	}

	count, err = lw.writer.Write(data)
	lw.bytes += int64(count)
	return
}

func (lw *LoggingWriter) WriteHeader(code int) {
	if code == 0 {
		code = http.StatusOK
	}

	lw.writer.WriteHeader(code)
	lw.code = code
}

func (lw *LoggingWriter) Header() http.Header {
	return lw.writer.Header()
}

func (lw *LoggingWriter) Flush() {
	if f, ok := lw.writer.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack takes over the connection of upgrade requests. The status code is
// recorded as 101.
func (lw *LoggingWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hij, ok := lw.writer.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("could not hijack connection")
	}

	lw.code = http.StatusSwitchingProtocols
	return hij.Hijack()
}

// GetCode returns the status code of the response, or zero when nothing
// was written.
func (lw *LoggingWriter) GetCode() int { return lw.code }

// GetBytes returns the number of bytes written to the response body.
func (lw *LoggingWriter) GetBytes() int64 { return lw.bytes }
