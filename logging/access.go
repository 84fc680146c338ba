package logging

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	dateFormat = "02/Jan/2006:15:04:05 -0700"

	// remote_host - - [date] "method uri protocol" status response_size "referer" "user_agent"
	combinedLogFormat = `%s - - [%s] "%s %s %s" %d %d "%s" "%s"`

	// followed by: duration_ms requested_host route request_id downstream_urls
	accessLogFormat = combinedLogFormat + " %d %s %s %s %s\n"
)

// the order of the values in accessLogFormat
var accessLogKeys = []string{
	"host", "timestamp", "method", "uri", "proto",
	"status", "response-size", "referer", "user-agent",
	"duration", "requested-host", "route", "request-id", "downstream",
}

type accessLogFormatter struct {
	format string
}

// AccessEntry describes a request served by the gateway.
type AccessEntry struct {
	// The client request.
	Request *http.Request

	StatusCode   int
	ResponseSize int64

	// RequestTime is the time when the request was received, and Duration
	// the time spent serving it.
	RequestTime time.Time
	Duration    time.Duration

	// The upstream path template of the matched route, if any.
	Route     string
	RequestID string

	// Downstream holds the URLs called for the request, in call order.
	// Aggregate routes have more than one.
	Downstream []string
}

var accessLog *logrus.Logger

func dash(s string) string {
	if s == "" {
		return "-"
	}

	return s
}

// clientHost returns the host of the client, preferring the
// X-Forwarded-For header over the remote address, without the port.
func clientHost(r *http.Request) string {
	a := r.Header.Get("X-Forwarded-For")
	if a == "" {
		a = r.RemoteAddr
	}

	if h, _, err := net.SplitHostPort(a); err == nil {
		a = h
	}

	return dash(a)
}

func (e *AccessEntry) fields() logrus.Fields {
	f := logrus.Fields{
		"host":           "-",
		"timestamp":      e.RequestTime.Format(dateFormat),
		"method":         "",
		"uri":            "",
		"proto":          "",
		"status":         e.StatusCode,
		"response-size":  e.ResponseSize,
		"referer":        "",
		"user-agent":     "",
		"duration":       e.Duration.Milliseconds(),
		"requested-host": "-",
		"route":          dash(e.Route),
		"request-id":     dash(e.RequestID),
		"downstream":     dash(strings.Join(e.Downstream, ",")),
	}

	if r := e.Request; r != nil {
		f["host"] = clientHost(r)
		f["method"] = r.Method
		f["uri"] = r.RequestURI
		f["proto"] = r.Proto
		f["referer"] = r.Referer()
		f["user-agent"] = r.UserAgent()
		f["requested-host"] = dash(r.Host)
	}

	return f
}

func (f *accessLogFormatter) Format(e *logrus.Entry) ([]byte, error) {
	values := make([]any, len(accessLogKeys))
	for i, key := range accessLogKeys {
		values[i] = e.Data[key]
	}

	return fmt.Appendf(nil, f.format, values...), nil
}

// LogAccess logs a served request in the Apache combined log format,
// extended with the duration, the requested host, the route, the request id
// and the downstream URLs.
func LogAccess(entry *AccessEntry) {
	if accessLog == nil || entry == nil {
		return
	}

	accessLog.WithFields(entry.fields()).Infoln()
}
