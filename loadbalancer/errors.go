package loadbalancer

import "fmt"

type errorKind string

func (e errorKind) Error() string { return string(e) }

const (
	ErrServicesNull             errorKind = "services were null"
	ErrServicesEmpty            errorKind = "services were empty"
	ErrUnableToFindLoadBalancer errorKind = "unable to find load balancer"
)

// Error is returned by the load balancers when no instance can be leased.
// It matches the error kinds with errors.Is.
type Error struct {
	Kind errorKind

	// Service names the service or the route of the failed lease.
	Service string
}

func (e *Error) Error() string {
	if e.Service == "" {
		return string(e.Kind)
	}

	return fmt.Sprintf("%s for %s", e.Kind, e.Service)
}

func (e *Error) Unwrap() error {
	return e.Kind
}

func servicesError(kind errorKind, service string) error {
	return &Error{Kind: kind, Service: service}
}
