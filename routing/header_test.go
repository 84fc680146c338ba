package routing

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderTemplate(t *testing.T) {
	for _, tc := range []struct {
		title    string
		header   string
		template string
		values   []string
		match    bool
		bindings []Binding
	}{{
		title:    "literal",
		header:   "x-client",
		template: "mobile",
		values:   []string{"Mobile"},
		match:    true,
		bindings: []Binding{},
	}, {
		title:    "literal mismatch",
		header:   "X-Client",
		template: "mobile",
		values:   []string{"mobile-app"},
	}, {
		title:    "missing header",
		header:   "X-Client",
		template: "{client}",
	}, {
		title:    "single placeholder",
		header:   "X-Client",
		template: "{client}",
		values:   []string{"web"},
		match:    true,
		bindings: []Binding{{Name: "client", Value: "web"}},
	}, {
		title:    "multiple placeholders",
		header:   "X-Locale",
		template: "{country}-{lang}",
		values:   []string{"de-at-x"},
		match:    true,
		bindings: []Binding{{Name: "country", Value: "de"}, {Name: "lang", Value: "at-x"}},
	}, {
		title:    "any of multiple values",
		header:   "X-Tenant",
		template: "tenant-{id}",
		values:   []string{"other", "tenant-7"},
		match:    true,
		bindings: []Binding{{Name: "id", Value: "7"}},
	}} {
		t.Run(tc.title, func(t *testing.T) {
			h, err := NewHeaderTemplate(tc.header, tc.template)
			require.NoError(t, err)

			hdr := make(http.Header)
			for _, v := range tc.values {
				hdr.Add(tc.header, v)
			}

			bindings, ok := h.Match(hdr)
			assert.Equal(t, tc.match, ok)
			if tc.match {
				assert.Equal(t, tc.bindings, bindings)
			}
		})
	}
}

func TestHeaderTemplatesAllMustMatch(t *testing.T) {
	templates, err := NewHeaderTemplates(map[string]string{
		"x-version": "v{version}",
		"X-Client":  "{client}",
	})
	require.NoError(t, err)
	require.Len(t, templates, 2)
	assert.Equal(t, "X-Client", templates[0].Header())
	assert.Equal(t, "X-Version", templates[1].Header())

	hdr := http.Header{}
	hdr.Set("X-Client", "web")
	_, ok := matchHeaders(templates, hdr)
	assert.False(t, ok)

	hdr.Set("X-Version", "v3")
	bindings, ok := matchHeaders(templates, hdr)
	require.True(t, ok)
	assert.Equal(t, []Binding{{Name: "client", Value: "web"}, {Name: "version", Value: "3"}}, bindings)
}

func TestInvalidHeaderTemplate(t *testing.T) {
	_, err := NewHeaderTemplates(map[string]string{"X-Client": "{client"})
	assert.Error(t, err)
}
