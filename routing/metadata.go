package routing

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// MetadataSeparator separates the items of list metadata values.
const MetadataSeparator = ","

var (
	truthy = map[string]bool{"true": true, "yes": true, "on": true, "ok": true, "enable": true, "enabled": true, "1": true}
	falsy  = map[string]bool{"false": true, "no": true, "off": true, "disable": true, "disabled": true, "0": true}
)

func (r *DownstreamRoute) metadata(key string) (string, bool) {
	if r == nil || r.Metadata == nil {
		return "", false
	}

	v, ok := r.Metadata[key]
	return v, ok
}

// MetadataString returns the metadata value of key, or def when the
// route has no such metadata.
func (r *DownstreamRoute) MetadataString(key, def string) string {
	if v, ok := r.metadata(key); ok {
		return v
	}

	return def
}

// MetadataBool returns true when the metadata value of key is one of
// true, yes, on, ok, enable, enabled or 1, case insensitive.
func (r *DownstreamRoute) MetadataBool(key string) bool {
	v, _ := r.MetadataOptionalBool(key)
	return v
}

// MetadataOptionalBool is like MetadataBool, but ok is false when the value
// is missing or neither truthy nor one of false, no, off, disable,
// disabled or 0.
func (r *DownstreamRoute) MetadataOptionalBool(key string) (value, ok bool) {
	v, found := r.metadata(key)
	if !found {
		return false, false
	}

	v = strings.ToLower(strings.TrimSpace(v))
	switch {
	case truthy[v]:
		return true, true
	case falsy[v]:
		return false, true
	default:
		return false, false
	}
}

// MetadataValues splits the metadata value of key on commas, and returns
// the trimmed, non-empty items.
func (r *DownstreamRoute) MetadataValues(key string) []string {
	v, ok := r.metadata(key)
	if !ok {
		return nil
	}

	var values []string
	for _, s := range strings.Split(v, MetadataSeparator) {
		if s = strings.TrimSpace(s); s != "" {
			values = append(values, s)
		}
	}

	return values
}

// MetadataInt parses the metadata value of key as an integer. It returns
// def when the route has no such metadata.
func (r *DownstreamRoute) MetadataInt(key string, def int) (int, error) {
	v, ok := r.metadata(key)
	if !ok {
		return def, nil
	}

	i, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def, fmt.Errorf("invalid metadata %s of route %s: %w", key, r.Key, err)
	}

	return i, nil
}

// MetadataFloat parses the metadata value of key as a float. It returns
// def when the route has no such metadata.
func (r *DownstreamRoute) MetadataFloat(key string, def float64) (float64, error) {
	v, ok := r.metadata(key)
	if !ok {
		return def, nil
	}

	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return def, fmt.Errorf("invalid metadata %s of route %s: %w", key, r.Key, err)
	}

	return f, nil
}

// MetadataJSON decodes the metadata value of key into v. It returns false
// when the route has no such metadata, leaving v untouched.
func (r *DownstreamRoute) MetadataJSON(key string, v any) (bool, error) {
	s, ok := r.metadata(key)
	if !ok {
		return false, nil
	}

	if err := json.Unmarshal([]byte(s), v); err != nil {
		return true, fmt.Errorf("invalid metadata %s of route %s: %w", key, r.Key, err)
	}

	return true, nil
}
