package cache

import (
	"sort"
	"strings"
)

// Cache is the contract the pricing pipeline expects from a response cache.
// The default implementation is process-local (see Memory); the interface
// exists so tests can swap in instrumented fakes.
type Cache interface {
	Get(key string) (any, bool)
	Set(key string, value any)
	Delete(key string)
	Len() int
}

// Key builds the canonical cache key for an action and its query parameters.
// Parameters are sorted by name so that logically identical requests map to
// the same entry regardless of argument order.
func Key(action string, params map[string]string) string {
	if len(params) == 0 {
		return action
	}
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(action)
	for _, name := range names {
		b.WriteByte('|')
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(params[name])
	}
	return b.String()
}
