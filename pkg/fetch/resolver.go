package fetch

import "strings"

// NameResolver maps alternate host names to the host actually contacted
type NameResolver interface {
	Resolve(host string) (string, bool)
}

// StaticResolver resolves aliases from a fixed table, typically the name_aliases config section
type StaticResolver map[string]string

// Resolve implements NameResolver
func (r StaticResolver) Resolve(host string) (string, bool) {
	target, ok := r[strings.ToLower(host)]
	if !ok || target == "" {
		return "", false
	}
	return target, true
}
