package proxy

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zalando/gateway/routing"
)

func leg(key, body string) *RequestContext {
	return &RequestContext{
		Route:    &routing.DownstreamRoute{Key: key},
		Response: &DownstreamResponse{StatusCode: http.StatusOK, Body: []byte(body)},
	}
}

func TestSimpleJSONAggregator(t *testing.T) {
	for _, test := range []struct {
		title    string
		legs     []*RequestContext
		expected string
	}{{
		title:    "single legs",
		legs:     []*RequestContext{leg("laura", `{"name":"Laura"}`), leg("tom", `{"name":"Tom"}`)},
		expected: `{"laura":{"name":"Laura"},"tom":{"name":"Tom"}}`,
	}, {
		title: "same key grouped into an array",
		legs: []*RequestContext{
			leg("comments", `[{"userId":1}]`),
			leg("users", `{"id":1}`),
			leg("users", `{"id":2}`),
		},
		expected: `{"comments":[{"userId":1}],"users":[{"id":1},{"id":2}]}`,
	}, {
		title: "keys in first seen order",
		legs: []*RequestContext{
			leg("b", `1`),
			leg("a", `2`),
			leg("b", `3`),
		},
		expected: `{"b":[1,3],"a":2}`,
	}, {
		title: "blank bodies skipped in arrays",
		legs: []*RequestContext{
			leg("users", `{"id":1}`),
			leg("users", "  \n"),
			leg("users", `{"id":3}`),
		},
		expected: `{"users":[{"id":1},{"id":3}]}`,
	}, {
		title:    "blank single body",
		legs:     []*RequestContext{leg("laura", ""), leg("tom", `{"name":"Tom"}`)},
		expected: `{"laura":null,"tom":{"name":"Tom"}}`,
	}} {
		t.Run(test.title, func(t *testing.T) {
			rsp, err := SimpleJSONAggregator{}.Aggregate(&routing.Route{}, test.legs)
			require.NoError(t, err)

			assert.Equal(t, http.StatusOK, rsp.StatusCode)
			assert.Equal(t, "application/json; charset=utf-8", rsp.Header.Get("Content-Type"))
			assert.Equal(t, test.expected, string(rsp.Body))
			assert.True(t, json.Valid(rsp.Body))
		})
	}
}

func TestAggregatorRegistry(t *testing.T) {
	r := NewAggregatorRegistry()

	_, err := r.Get("FakeAggregator")
	assert.ErrorIs(t, err, ErrCouldNotFindAggregator)

	expected := &DownstreamResponse{StatusCode: http.StatusAccepted}
	r.Register("FakeAggregator", AggregatorFunc(func(*routing.Route, []*RequestContext) (*DownstreamResponse, error) {
		return expected, nil
	}))

	a, err := r.Get("FakeAggregator")
	require.NoError(t, err)

	rsp, err := a.Aggregate(&routing.Route{}, nil)
	require.NoError(t, err)
	assert.Same(t, expected, rsp)

	var nilRegistry *AggregatorRegistry
	_, err = nilRegistry.Get("FakeAggregator")
	assert.ErrorIs(t, err, ErrCouldNotFindAggregator)
}
