/*
Package loadbalancer implements the load balancing algorithms of the
downstream routes.

A load balancer leases one instance of a route per request, and the
instance is released when the downstream call is done. The instances are
fetched on every lease, so the balancers follow the changes of the
service discovery.

The supported algorithms:

	NoLoadBalancer        always the first instance
	RoundRobin            the instances in turn
	LeastConnection       the instance with the fewest active leases
	CookieStickySessions  the same instance for the requests carrying the
	                      same session cookie, round robin otherwise

The House holds one load balancer per route, keyed by the load balancer
key of the route, and replaces it when the options of the route change.
*/
package loadbalancer
