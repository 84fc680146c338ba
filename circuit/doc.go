/*
Package circuit implements the quality of service protection of the downstream calls: a timeout and a
circuit breaker per route.

Timeout

The downstream call receives a context with the configured timeout. When the deadline is exceeded, the call
fails with ErrTimeout. The timeout strategy decides whether the guard waits for the call to return after the
deadline (optimistic, the default), or returns immediately and drains the result of the call in the background
(pessimistic).

A timeout of zero or less disables the timeout.

Circuit Breaker

The breaker opens when the calls of a route failed N times in a row, where N is the configured
ExceptionsAllowedBeforeBreaking. A call fails when it returns an error, times out, or receives a response with
a status code >=500. When open, the guard returns ErrCircuitOpen without making the call, for the configured
duration of the break. After the break, the breaker goes into half-open state, and lets a single trial call
through. If the trial succeeds, the breaker closes, otherwise it opens again.

The duration of the break defaults to 5s when set below 500ms, and it is capped at 24h. A failure count of zero
or less disables the breaker.

The proxy responds to ErrCircuitOpen with 503 - Service Unavailable, and appends a header to the response:

	X-Circuit-Open: true

Guard House

The guard house holds one guard per route, creates it on the first call of the route, and replaces it when the
QoS options of the route change. Guards that were not used for the idle TTL are recycled.
*/
package circuit
