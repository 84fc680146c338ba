package routing

import "fmt"

type invalidTemplateError string

func (e invalidTemplateError) Error() string { return string(e) }

var (
	errEmptyTemplate       = invalidTemplateError("empty template")
	errMissingLeadingSlash = invalidTemplateError("template must start with /")
	errUnclosedPlaceholder = invalidTemplateError("unclosed placeholder")
	errInvalidPlaceholder  = invalidTemplateError("invalid placeholder")
)

func templateError(template string, err error) error {
	return fmt.Errorf("invalid template %q: %w", template, err)
}

// RouteNotFoundError is returned when no route accepts a request.
type RouteNotFoundError struct {
	Path   string
	Method string
}

func (e *RouteNotFoundError) Error() string {
	return fmt.Sprintf("unable to find downstream route for path: %s, verb: %s", e.Path, e.Method)
}
