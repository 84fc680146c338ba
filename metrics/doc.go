/*
Package metrics implements the prometheus metrics of the gateway.

The metrics are registered in a private registry, and served by the
*Metrics http.Handler, typically on a separate listener:

	m := metrics.New(metrics.Options{})
	go http.ListenAndServe(":9911", m)

All methods are safe to call on a nil *Metrics, which disables the
collection.
*/
package metrics
