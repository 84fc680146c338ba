package routing

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplateMatch(t *testing.T) {
	for _, tc := range []struct {
		title         string
		template      string
		caseSensitive bool
		path          string
		match         bool
		bindings      []Binding
	}{{
		title:    "literal",
		template: "/products/active",
		path:     "/products/active",
		match:    true,
		bindings: []Binding{},
	}, {
		title:    "literal, trailing slash in the request",
		template: "/products/active",
		path:     "/products/active/",
		match:    true,
		bindings: []Binding{},
	}, {
		title:    "literal, trailing slash in the template",
		template: "/products/active/",
		path:     "/products/active",
		match:    true,
		bindings: []Binding{},
	}, {
		title:    "literal, case insensitive",
		template: "/products/active",
		path:     "/Products/ACTIVE",
		match:    true,
		bindings: []Binding{},
	}, {
		title:         "literal, case sensitive",
		template:      "/products/active",
		caseSensitive: true,
		path:          "/Products/active",
	}, {
		title:    "literal, longer path",
		template: "/products/active",
		path:     "/products/active/1",
	}, {
		title:    "root",
		template: "/",
		path:     "/",
		match:    true,
		bindings: []Binding{},
	}, {
		title:    "root does not match other paths",
		template: "/",
		path:     "/products",
	}, {
		title:    "placeholder in the middle",
		template: "/products/{id}/reviews",
		path:     "/products/42/reviews",
		match:    true,
		bindings: []Binding{{Name: "id", Value: "42"}},
	}, {
		title:    "placeholder in the middle takes a single segment",
		template: "/products/{id}/reviews",
		path:     "/products/42/43/reviews",
	}, {
		title:    "multiple placeholders",
		template: "/shops/{shop}/products/{id}/reviews",
		path:     "/shops/berlin/products/42/reviews/",
		match:    true,
		bindings: []Binding{{Name: "shop", Value: "berlin"}, {Name: "id", Value: "42"}},
	}, {
		title:    "mixed segment",
		template: "/api/v{version}/status",
		path:     "/api/v2/status",
		match:    true,
		bindings: []Binding{{Name: "version", Value: "2"}},
	}, {
		title:    "catch-all",
		template: "/api/{everything}",
		path:     "/api/a/b/c",
		match:    true,
		bindings: []Binding{{Name: "everything", Value: "a/b/c"}},
	}, {
		title:    "catch-all, empty rest",
		template: "/api/{everything}",
		path:     "/api",
		match:    true,
		bindings: []Binding{{Name: "everything", Value: ""}},
	}, {
		title:    "catch-all, other prefix",
		template: "/api/{everything}",
		path:     "/apis/a",
	}, {
		title:    "catch-all only",
		template: "/{url}",
		path:     "/any/path",
		match:    true,
		bindings: []Binding{{Name: "url", Value: "any/path"}},
	}, {
		title:    "placeholder followed by slash is not a catch-all",
		template: "/products/{id}/",
		path:     "/products/1/2",
	}, {
		title:    "quoted literal",
		template: "/files/a.json",
		path:     "/files/aXjson",
	}} {
		t.Run(tc.title, func(t *testing.T) {
			tpl, err := NewTemplate(tc.template, tc.caseSensitive)
			require.NoError(t, err)

			bindings, ok := tpl.Match(tc.path)
			assert.Equal(t, tc.match, ok)
			if !tc.match {
				return
			}

			if d := cmp.Diff(tc.bindings, bindings); d != "" {
				t.Errorf("unexpected bindings: %s", d)
			}
		})
	}
}

func TestTemplatePriority(t *testing.T) {
	for template, priority := range map[string]int{
		"/products/active":       10,
		"/products/{id}":         5,
		"/products/{id}/reviews": 11,
		"/api/v{version}/status": 13,
		"/{url}":                 0,
		"/":                      5,
	} {
		t.Run(template, func(t *testing.T) {
			assert.Equal(t, priority, MustTemplate(template).Priority())
		})
	}
}

func TestTemplateCatchAll(t *testing.T) {
	assert.True(t, MustTemplate("/api/{rest}").CatchAll())
	assert.False(t, MustTemplate("/api/{id}/").CatchAll())
	assert.False(t, MustTemplate("/api/v{version}").CatchAll())
	assert.False(t, MustTemplate("/api").CatchAll())
}

func TestTemplateOrderIsTotal(t *testing.T) {
	a := MustTemplate("/products/{id}")
	b := MustTemplate("/orders/{id}")
	c := MustTemplate("/orders/{no}")

	// same priority, the longer wins
	assert.True(t, a.less(b))
	assert.False(t, b.less(a))

	// same priority and length, lexical order
	assert.True(t, b.less(c))
	assert.False(t, c.less(b))
}

func TestInvalidTemplate(t *testing.T) {
	for _, template := range []string{
		"",
		"products",
		"/products/{id",
		"/products/{}",
		"/products/id}",
		"/products/{a{b}",
	} {
		t.Run(template, func(t *testing.T) {
			_, err := NewTemplate(template, false)
			assert.Error(t, err)
		})
	}
}

func TestSubstitute(t *testing.T) {
	for _, tc := range []struct {
		template string
		bindings []Binding
		expected string
	}{{
		template: "/api/products/{id}",
		bindings: []Binding{{Name: "id", Value: "42"}},
		expected: "/api/products/42",
	}, {
		template: "/{everything}",
		bindings: []Binding{{Name: "everything", Value: "a/b"}},
		expected: "/a/b",
	}, {
		template: "/{everything}",
		bindings: []Binding{{Name: "everything", Value: ""}},
		expected: "/",
	}, {
		template: "/users/{userId}/comments/{commentId}",
		bindings: []Binding{{Name: "userId", Value: "1"}},
		expected: "/users/1/comments/{commentId}",
	}, {
		template: "/static",
		expected: "/static",
	}} {
		t.Run(tc.template, func(t *testing.T) {
			assert.Equal(t, tc.expected, Substitute(tc.template, tc.bindings))
		})
	}
}
