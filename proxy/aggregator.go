package proxy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/zalando/gateway/routing"
)

type aggregatorError string

func (e aggregatorError) Error() string { return string(e) }

const ErrCouldNotFindAggregator aggregatorError = "could not find aggregator"

// Aggregator merges the responses of the downstream calls of an aggregate
// route into a single response. The calls are passed in execution order,
// none of them failed.
type Aggregator interface {
	Aggregate(route *routing.Route, legs []*RequestContext) (*DownstreamResponse, error)
}

// AggregatorFunc adapts a function to the Aggregator interface.
type AggregatorFunc func(*routing.Route, []*RequestContext) (*DownstreamResponse, error)

func (f AggregatorFunc) Aggregate(route *routing.Route, legs []*RequestContext) (*DownstreamResponse, error) {
	return f(route, legs)
}

// AggregatorRegistry holds the custom aggregators, referenced by name from
// the aggregate routes.
type AggregatorRegistry struct {
	mx          sync.RWMutex
	aggregators map[string]Aggregator
}

func NewAggregatorRegistry() *AggregatorRegistry {
	return &AggregatorRegistry{aggregators: make(map[string]Aggregator)}
}

// Register adds an aggregator, replacing the one with the same name.
func (r *AggregatorRegistry) Register(name string, a Aggregator) {
	r.mx.Lock()
	defer r.mx.Unlock()
	r.aggregators[name] = a
}

// Get returns the aggregator with the given name.
func (r *AggregatorRegistry) Get(name string) (Aggregator, error) {
	if r != nil {
		r.mx.RLock()
		a, ok := r.aggregators[name]
		r.mx.RUnlock()
		if ok {
			return a, nil
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrCouldNotFindAggregator, name)
}

// SimpleJSONAggregator creates a JSON object from the response bodies, keyed
// by the key of the downstream routes. The bodies of the routes called more
// than once are collected into an array.
type SimpleJSONAggregator struct{}

func blank(b []byte) bool {
	return len(bytes.TrimSpace(b)) == 0
}

func (SimpleJSONAggregator) Aggregate(_ *routing.Route, legs []*RequestContext) (*DownstreamResponse, error) {
	var (
		keys   []string
		bodies = make(map[string][][]byte)
	)

	for _, leg := range legs {
		var key string
		if leg.Route != nil {
			key = leg.Route.Key
		}

		if _, ok := bodies[key]; !ok {
			keys = append(keys, key)
		}

		var body []byte
		if leg.Response != nil {
			body = leg.Response.Body
		}

		bodies[key] = append(bodies[key], body)
	}

	var b bytes.Buffer
	b.WriteByte('{')
	for i, key := range keys {
		if i > 0 {
			b.WriteByte(',')
		}

		k, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}

		b.Write(k)
		b.WriteByte(':')

		values := bodies[key]
		if len(values) == 1 {
			if blank(values[0]) {
				b.WriteString("null")
			} else {
				b.Write(values[0])
			}

			continue
		}

		b.WriteByte('[')
		var written int
		for _, v := range values {
			if blank(v) {
				continue
			}

			if written > 0 {
				b.WriteByte(',')
			}

			b.Write(v)
			written++
		}

		b.WriteByte(']')
	}

	b.WriteByte('}')

	return &DownstreamResponse{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"application/json; charset=utf-8"}},
		Body:       b.Bytes(),
	}, nil
}
