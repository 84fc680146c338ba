/*
Package routing implements matching of upstream http requests to the
configured routes of the gateway.

# Templates

The upstream path of a route is a template, where the {name} placeholders
match a single path segment, and a final placeholder matches the rest of
the path:

	/orders/{id}          matches /orders/42 and /orders/42/
	/files/{everything}   matches /files/a/b/c

The values of the placeholders are returned as bindings, in the order of
the template, and they are substituted into the downstream path template
of the route. Header templates match the value of a request header the
same way.

Matching is case-insensitive, unless a route is configured as case
sensitive.

# Request Evaluation

The Finder filters the routes by method, host and header templates, and
matches the path against the templates of the remaining routes, from the
most to the least specific one. Templates with more literal segments win
over templates with placeholders:

	/products/active   wins over   /products/{id}

When more routes match, a route with an explicit upstream host wins.

# Dynamic Routes

With service discovery enabled and no routes configured, the first segment
of the request path names the downstream service, and the rest is
forwarded as the downstream path. The DynamicProvider creates these routes
from the global configuration, and caches them. The Resolver combines the
two modes.
*/
package routing
