package routing

import (
	"net/http"
	"regexp"
	"sort"
	"strings"
)

// HeaderTemplate matches the value of a request header, e.g. the template
// {country}-{lang} for the header X-Locale.
type HeaderTemplate struct {
	header string
	value  string
	rx     *regexp.Regexp
	names  []string
}

// NewHeaderTemplate compiles the value template of a header. The header
// value has to match the template as a whole. Header values are matched
// case-insensitive.
func NewHeaderTemplate(header, template string) (*HeaderTemplate, error) {
	pieces, err := parsePieces(template)
	if err != nil {
		return nil, templateError(template, err)
	}

	lastPlaceholder := -1
	for i, p := range pieces {
		if p.isPlaceholder() {
			lastPlaceholder = i
		}
	}

	h := &HeaderTemplate{
		header: http.CanonicalHeaderKey(header),
		value:  template,
	}

	var rx strings.Builder
	rx.WriteString("(?i)^")
	for i, p := range pieces {
		if !p.isPlaceholder() {
			rx.WriteString(regexp.QuoteMeta(p.literal))
			continue
		}

		if i == lastPlaceholder {
			rx.WriteString("(.*)")
		} else {
			rx.WriteString("(.*?)")
		}

		h.names = append(h.names, p.placeholder)
	}

	rx.WriteByte('$')
	h.rx = regexp.MustCompile(rx.String())
	return h, nil
}

// NewHeaderTemplates compiles the header templates of a route, ordered by
// the header names.
func NewHeaderTemplates(templates map[string]string) ([]*HeaderTemplate, error) {
	if len(templates) == 0 {
		return nil, nil
	}

	headers := make([]*HeaderTemplate, 0, len(templates))
	for name, value := range templates {
		h, err := NewHeaderTemplate(name, value)
		if err != nil {
			return nil, err
		}

		headers = append(headers, h)
	}

	sort.Slice(headers, func(i, j int) bool {
		return headers[i].header < headers[j].header
	})

	return headers, nil
}

// Header returns the canonical name of the header.
func (h *HeaderTemplate) Header() string { return h.header }

func (h *HeaderTemplate) String() string { return h.header + ": " + h.value }

// Match matches the values of the header. When the header has multiple
// values, the first matching value is used.
func (h *HeaderTemplate) Match(header http.Header) ([]Binding, bool) {
	for _, v := range header.Values(h.header) {
		m := h.rx.FindStringSubmatch(v)
		if m == nil {
			continue
		}

		bindings := make([]Binding, len(h.names))
		for i, name := range h.names {
			bindings[i] = Binding{Name: name, Value: m[i+1]}
		}

		return bindings, true
	}

	return nil, false
}

// matchHeaders requires all the templates to match.
func matchHeaders(templates []*HeaderTemplate, header http.Header) ([]Binding, bool) {
	var bindings []Binding
	for _, t := range templates {
		b, ok := t.Match(header)
		if !ok {
			return nil, false
		}

		bindings = append(bindings, b...)
	}

	return bindings, true
}
