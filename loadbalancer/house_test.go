package loadbalancer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHouse(t *testing.T) {
	h := NewHouse()
	defer h.Close()

	s := &serviceList{instances: instances(8081, 8082)}
	route := testRoute("RoundRobin")

	first, err := h.Get(route, s.get)
	require.NoError(t, err)
	assert.IsType(t, &roundRobin{}, first)

	t.Run("same options", func(t *testing.T) {
		lb, err := h.Get(testRoute("roundrobin"), s.get)
		require.NoError(t, err)
		assert.Same(t, first, lb)
	})

	t.Run("changed type", func(t *testing.T) {
		lb, err := h.Get(testRoute("LeastConnection"), s.get)
		require.NoError(t, err)
		assert.IsType(t, &leastConnection{}, lb)
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := h.Get(testRoute("Random"), s.get)
		assert.ErrorIs(t, err, ErrUnableToFindLoadBalancer)

		// the previous one is kept
		lb, err := h.Get(testRoute("LeastConnection"), s.get)
		require.NoError(t, err)
		assert.IsType(t, &leastConnection{}, lb)
	})
}

func TestHouseClosesReplacedStickySessions(t *testing.T) {
	h := NewHouse()
	s := &serviceList{instances: instances(8081)}

	lb, err := h.Get(stickyRoute(time.Minute), s.get)
	require.NoError(t, err)

	sticky := lb.(*cookieStickySessions)
	_, err = sticky.Lease(requestWithCookie("abc"))
	require.NoError(t, err)
	require.Equal(t, 1, sticky.sessionCount())

	// same type, different expiry
	next, err := h.Get(stickyRoute(2*time.Minute), s.get)
	require.NoError(t, err)
	assert.NotSame(t, lb, next)
	assert.Equal(t, 0, sticky.sessionCount())

	h.Close()
	assert.Equal(t, 0, next.(*cookieStickySessions).sessionCount())
}
