/*
Package logging initializes the application log and implements the access
log of the gateway.

Application Log

The application log uses the logrus package. To send messages to the
application log, import logrus and use its methods:

	import log "github.com/sirupsen/logrus"

	func doSomething() {
		log.Errorf("nothing to do")
	}

During startup, the level and the format of the application log can be
set, the output can be redirected from the default /dev/stderr, and a
common prefix can be set for each entry. Setting the prefix helps to split
the access log and the application log when they share the same output.

Access Log

The access log prints HTTP access information in the Apache combined
access log format, extended with the duration of the request in
milliseconds, the requested host, the matched upstream route and the id
of the request. The proxy logs an entry for every request, unless the
access log is disabled. Alternatively, the entries can be logged in JSON
format.
*/
package logging
