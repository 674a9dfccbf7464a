package backend

import (
	"errors"
	"fmt"
	"strings"
)

// ResolveOrder maps a configured priority list of backend names onto the
// registered implementations. Unknown and duplicate names are dropped with a
// warning rather than failing startup; an empty resolved order is an error
// because no generation could ever succeed.
func ResolveOrder(configured []string, registered []Backend) ([]Backend, []string, error) {
	byName := make(map[string]Backend, len(registered))
	for _, b := range registered {
		byName[b.Name()] = b
	}

	var (
		order    []Backend
		warnings []string
		seen     = make(map[string]bool, len(configured))
	)
	for _, raw := range configured {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "" {
			continue
		}
		if seen[name] {
			warnings = append(warnings, fmt.Sprintf("backend %q listed more than once; keeping first position", name))
			continue
		}
		seen[name] = true
		b, ok := byName[name]
		if !ok {
			warnings = append(warnings, fmt.Sprintf("unknown backend %q in priority order; skipping", name))
			continue
		}
		order = append(order, b)
	}

	if len(order) == 0 {
		return nil, warnings, errors.New("no usable backends in configured priority order")
	}
	return order, warnings, nil
}

// Describe summarizes an ordered backend list for health and capability
// reporting.
func Describe(order []Backend) []Descriptor {
	descriptors := make([]Descriptor, 0, len(order))
	for i, b := range order {
		descriptors = append(descriptors, Descriptor{
			Name:           b.Name(),
			Priority:       i + 1,
			SupportsReview: b.SupportsReview(),
			Available:      b.Available(),
		})
	}
	return descriptors
}
