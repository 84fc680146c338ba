package routing

import (
	"errors"
	"math/rand"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testRoute struct {
	key      string
	template string
	methods  []string
	host     string
	headers  map[string]string
}

func newTestRoute(t *testing.T, tr testRoute) *Route {
	t.Helper()

	tpl, err := NewTemplate(tr.template, false)
	require.NoError(t, err)

	headers, err := NewHeaderTemplates(tr.headers)
	require.NoError(t, err)

	return &Route{
		UpstreamPathTemplate:    tpl,
		UpstreamHeaderTemplates: headers,
		UpstreamHTTPMethod:      tr.methods,
		UpstreamHost:            tr.host,
		Downstream: []*DownstreamRoute{{
			Key:                    tr.key,
			LoadBalancerKey:        LoadBalancerKey(tr.template, tr.methods, tr.host),
			DownstreamPathTemplate: tr.template,
		}},
	}
}

func newTestRoutes(t *testing.T, trs ...testRoute) []*Route {
	var routes []*Route
	for _, tr := range trs {
		routes = append(routes, newTestRoute(t, tr))
	}

	return routes
}

func foundKey(t *testing.T, m *Match, err error) string {
	t.Helper()
	require.NoError(t, err)
	return m.Route.Downstream[0].Key
}

func TestFindLiteralOverPlaceholder(t *testing.T) {
	routes := newTestRoutes(t,
		testRoute{key: "byID", template: "/products/{id}"},
		testRoute{key: "active", template: "/products/active"},
		testRoute{key: "all", template: "/{everything}"},
	)

	f := NewFinder(routes)

	m, err := f.Find("/products/active", "GET", "", nil)
	assert.Equal(t, "active", foundKey(t, m, err))

	m, err = f.Find("/products/42", "GET", "", nil)
	assert.Equal(t, "byID", foundKey(t, m, err))
	assert.Equal(t, []Binding{{Name: "id", Value: "42"}}, m.Bindings)

	m, err = f.Find("/orders/42", "GET", "", nil)
	assert.Equal(t, "all", foundKey(t, m, err))
}

func TestFindIsDeterministic(t *testing.T) {
	routes := newTestRoutes(t,
		testRoute{key: "byID", template: "/products/{id}"},
		testRoute{key: "byNo", template: "/products/{no}"},
		testRoute{key: "active", template: "/products/active"},
		testRoute{key: "reviews", template: "/products/{id}/reviews"},
		testRoute{key: "all", template: "/{everything}"},
		testRoute{key: "duplicate-b", template: "/duplicate"},
		testRoute{key: "duplicate-a", template: "/duplicate"},
	)

	expected := map[string]string{
		"/products/active":     "active",
		"/products/1":          "byID",
		"/products/1/reviews":  "reviews",
		"/products/1/comments": "byID",
		"/duplicate":           "duplicate-a",
		"/other":               "all",
	}

	rnd := rand.New(rand.NewSource(42))
	for i := 0; i < 50; i++ {
		shuffled := make([]*Route, len(routes))
		copy(shuffled, routes)
		rnd.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})

		f := NewFinder(shuffled)
		for path, key := range expected {
			m, err := f.Find(path, "GET", "", nil)
			assert.Equal(t, key, foundKey(t, m, err), path)
		}
	}
}

func TestFindByMethod(t *testing.T) {
	f := NewFinder(newTestRoutes(t,
		testRoute{key: "post", template: "/orders", methods: []string{"POST"}},
		testRoute{key: "get", template: "/orders", methods: []string{"Get", "Head"}},
		testRoute{key: "any", template: "/payments"},
	))

	m, err := f.Find("/orders", "POST", "", nil)
	assert.Equal(t, "post", foundKey(t, m, err))

	m, err = f.Find("/orders", "GET", "", nil)
	assert.Equal(t, "get", foundKey(t, m, err))

	m, err = f.Find("/payments", "DELETE", "", nil)
	assert.Equal(t, "any", foundKey(t, m, err))

	_, err = f.Find("/orders", "DELETE", "", nil)
	var notFound *RouteNotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, "/orders", notFound.Path)
	assert.Equal(t, "DELETE", notFound.Method)
}

func TestFindPrefersUpstreamHost(t *testing.T) {
	f := NewFinder(newTestRoutes(t,
		testRoute{key: "specific", template: "/products/active"},
		testRoute{key: "hosted", template: "/products/{id}", host: "shop.example.org"},
		testRoute{key: "port", template: "/products/{id}", host: "api.example.org:9090"},
	))

	m, err := f.Find("/products/active", "GET", "shop.example.org:8080", nil)
	assert.Equal(t, "hosted", foundKey(t, m, err))

	m, err = f.Find("/products/active", "GET", "SHOP.example.org", nil)
	assert.Equal(t, "hosted", foundKey(t, m, err))

	m, err = f.Find("/products/active", "GET", "api.example.org:9090", nil)
	assert.Equal(t, "port", foundKey(t, m, err))

	m, err = f.Find("/products/active", "GET", "api.example.org", nil)
	assert.Equal(t, "specific", foundKey(t, m, err))

	_, err = f.Find("/products/1", "GET", "www.example.org", nil)
	assert.Error(t, err)
}

func TestFindByHeaders(t *testing.T) {
	f := NewFinder(newTestRoutes(t,
		testRoute{
			key:      "tenant",
			template: "/orders/{id}",
			headers:  map[string]string{"X-Tenant": "{tenant}", "X-Version": "v2"},
		},
		testRoute{key: "default", template: "/{everything}"},
	))

	h := http.Header{}
	h.Set("X-Tenant", "acme")
	m, err := f.Find("/orders/1", "GET", "", h)
	assert.Equal(t, "default", foundKey(t, m, err))

	h.Set("X-Version", "V2")
	m, err = f.Find("/orders/1", "GET", "", h)
	assert.Equal(t, "tenant", foundKey(t, m, err))
	assert.Equal(t, []Binding{{Name: "id", Value: "1"}, {Name: "tenant", Value: "acme"}}, m.Bindings)
}

func TestFindCleansPath(t *testing.T) {
	f := NewFinder(newTestRoutes(t, testRoute{key: "orders", template: "/orders/{id}/items"}))

	m, err := f.Find("/orders/1/../2//items", "GET", "", nil)
	assert.Equal(t, "orders", foundKey(t, m, err))
	assert.Equal(t, []Binding{{Name: "id", Value: "2"}}, m.Bindings)
}

func TestFinderSkipsRoutesWithoutTemplate(t *testing.T) {
	f := NewFinder([]*Route{{Downstream: []*DownstreamRoute{{ServiceName: "orders"}}}})
	assert.True(t, f.Empty())

	_, err := f.Find("/orders", "GET", "", nil)
	assert.Error(t, err)
}
