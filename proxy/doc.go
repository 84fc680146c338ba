/*
Package proxy implements the HTTP handler of the gateway: it matches the
incoming requests to the configured routes, executes the downstream calls
of the matched route, and writes the response.

# Proxy Mechanism

1. route matching:

The incoming request is resolved to a route by the resolver, using the
configured routes, or, when service discovery is enabled, a route created
from the first path segment naming the downstream service. The
placeholders of the upstream path template are bound to the values found
in the request path.

2. multiplexing:

Routes with a single downstream route are executed directly. Aggregate
routes fan out: every downstream route is executed concurrently with its
own clone of the request context, and the responses are merged into a
single JSON object keyed by the route keys.

Aggregate routes can declare dependencies: the first downstream route is
executed first, and the values selected from its response with a JSON path
are bound to a placeholder of the dependent routes. A dependent route is
executed once for every distinct value.

3. downstream call:

The requester leases an instance of the downstream route from its load
balancer, builds the downstream URL from the downstream path template and
the bindings, and sends the request through the QoS guard of the route.
The response body is read into memory, and the lease is released.

Upgrade requests, e.g. WebSocket, are tunneled to the leased instance of
the first downstream route.

4. response:

The errors of the execution are mapped to status codes:

	route not found                        404
	no instances                           503
	unknown load balancer or QoS settings  404
	circuit open                           503, X-Circuit-Open: true
	timeout                                503
	unknown aggregator                     404
	downstream call failed                 502
*/
package proxy
