package routing

import (
	"regexp"
	"strings"
)

// segment weights used for calculating the priority of a template
const (
	literalSegmentWeight     = 5
	mixedSegmentWeight       = 3
	placeholderSegmentWeight = 1
)

// Binding is a named value extracted from a request by a template
// placeholder.
type Binding struct {
	Name  string
	Value string
}

type piece struct {
	literal     string
	placeholder string
}

func (p piece) isPlaceholder() bool { return p.placeholder != "" }

// Template is a compiled upstream path template, e.g. /products/{id}.
//
// Literal segments are matched verbatim, case-insensitive unless the
// template was created as case sensitive. A placeholder takes a single
// path segment, except when it is the whole last segment of the template:
// then it takes the rest of the path including slashes, and it also
// matches an empty rest. A trailing slash in the request path is ignored.
type Template struct {
	value    string
	rx       *regexp.Regexp
	names    []string
	priority int
	catchAll bool
}

// splits a template into literals and {placeholders}
func parsePieces(s string) ([]piece, error) {
	var pieces []piece
	for len(s) > 0 {
		open := strings.IndexByte(s, '{')
		if open < 0 {
			if strings.IndexByte(s, '}') >= 0 {
				return nil, errInvalidPlaceholder
			}

			pieces = append(pieces, piece{literal: s})
			break
		}

		if open > 0 {
			if strings.IndexByte(s[:open], '}') >= 0 {
				return nil, errInvalidPlaceholder
			}

			pieces = append(pieces, piece{literal: s[:open]})
		}

		end := strings.IndexByte(s[open:], '}')
		if end < 0 {
			return nil, errUnclosedPlaceholder
		}

		name := s[open+1 : open+end]
		if name == "" || strings.ContainsAny(name, "{/") {
			return nil, errInvalidPlaceholder
		}

		pieces = append(pieces, piece{placeholder: name})
		s = s[open+end+1:]
	}

	return pieces, nil
}

// NewTemplate compiles an upstream path template.
func NewTemplate(value string, caseSensitive bool) (*Template, error) {
	if value == "" {
		return nil, templateError(value, errEmptyTemplate)
	}

	if value[0] != '/' {
		return nil, templateError(value, errMissingLeadingSlash)
	}

	body := value
	explicitSlash := len(body) > 1 && body[len(body)-1] == '/'
	if explicitSlash {
		body = body[:len(body)-1]
	}

	var segments [][]piece
	if body != "/" {
		for _, s := range strings.Split(body[1:], "/") {
			pieces, err := parsePieces(s)
			if err != nil {
				return nil, templateError(value, err)
			}

			segments = append(segments, pieces)
		}
	}

	t := &Template{value: value}

	var rx strings.Builder
	if !caseSensitive {
		rx.WriteString("(?i)")
	}

	rx.WriteByte('^')
	if len(segments) == 0 {
		rx.WriteString("/$")
		t.priority = literalSegmentWeight
		t.rx = regexp.MustCompile(rx.String())
		return t, nil
	}

	last := segments[len(segments)-1]
	t.catchAll = !explicitSlash && len(last) == 1 && last[0].isPlaceholder()

	for i, pieces := range segments {
		if t.catchAll && i == len(segments)-1 {
			rx.WriteString("(?:/(.*))?")
			t.names = append(t.names, pieces[0].placeholder)
			continue
		}

		rx.WriteByte('/')

		placeholders := 0
		for _, p := range pieces {
			if p.isPlaceholder() {
				rx.WriteString("([^/]+)")
				t.names = append(t.names, p.placeholder)
				placeholders++
				continue
			}

			rx.WriteString(regexp.QuoteMeta(p.literal))
		}

		switch {
		case placeholders == 0:
			t.priority += literalSegmentWeight
		case placeholders == len(pieces):
			t.priority += placeholderSegmentWeight
		default:
			t.priority += mixedSegmentWeight
		}
	}

	if !t.catchAll {
		rx.WriteString("/?")
	}

	rx.WriteByte('$')
	t.rx = regexp.MustCompile(rx.String())
	return t, nil
}

// MustTemplate is like NewTemplate but panics on invalid input.
func MustTemplate(value string) *Template {
	t, err := NewTemplate(value, false)
	if err != nil {
		panic(err)
	}

	return t
}

// Match matches a path against the template. It returns the values of the
// placeholders in left to right order.
func (t *Template) Match(candidate string) ([]Binding, bool) {
	m := t.rx.FindStringSubmatch(candidate)
	if m == nil {
		return nil, false
	}

	bindings := make([]Binding, len(t.names))
	for i, name := range t.names {
		bindings[i] = Binding{Name: name, Value: m[i+1]}
	}

	return bindings, true
}

// Priority is higher for more specific templates: literal segments count
// more than mixed ones, and those more than segments taken by a single
// placeholder. A final catch-all placeholder does not count.
func (t *Template) Priority() int { return t.priority }

// CatchAll returns true when the last placeholder of the template takes the
// rest of the path.
func (t *Template) CatchAll() bool { return t.catchAll }

func (t *Template) String() string { return t.value }

// less gives a total order of the templates: higher priority first, then
// the longer template, then lexical order.
func (t *Template) less(u *Template) bool {
	if t.priority != u.priority {
		return t.priority > u.priority
	}

	if len(t.value) != len(u.value) {
		return len(t.value) > len(u.value)
	}

	return t.value < u.value
}

// Substitute replaces the placeholders of a downstream path template with
// the bound values. Placeholders without a binding are left as they are.
func Substitute(template string, bindings []Binding) string {
	if len(bindings) == 0 || strings.IndexByte(template, '{') < 0 {
		return template
	}

	oldnew := make([]string, 0, 2*len(bindings))
	for _, b := range bindings {
		oldnew = append(oldnew, "{"+b.Name+"}", b.Value)
	}

	return strings.NewReplacer(oldnew...).Replace(template)
}
