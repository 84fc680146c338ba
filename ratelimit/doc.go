/*
Package ratelimit limits the requests that the clients can send to a
route.

The clients are identified by the value of a request header, ClientId by
default. Every client gets its own token bucket per route, holding Limit
tokens and refilled at the rate of Limit tokens per Period. A request
consumes one token, and when the bucket is empty the request is rejected
with a QuotaExceededError, carrying the status code, the message and the
Retry-After value of the response.

Requests without the client header are rejected, unless the rate limit of
the route is disabled. The clients listed in the whitelist of a route are
never limited.

The buckets of the clients that haven't sent a request for a while are
dropped.
*/
package ratelimit
