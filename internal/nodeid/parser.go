package nodeid

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	// addressRegex splits `job[bindings]` into its parts.
	addressRegex = regexp.MustCompile(`^([a-zA-Z_][a-zA-Z0-9_-]*)(?:\[(.*)\])?$`)
	axisRegex    = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_-]*$`)
	labelRegex   = regexp.MustCompile(`^[^,=\[\]\s]+$`)
)

// ValidLabel reports whether s can be used as a binding label.
func ValidLabel(s string) bool {
	return labelRegex.MatchString(s)
}

// Parse creates a new Address by parsing its canonical string representation.
func Parse(rawID string) (*Address, error) {
	if rawID == "" {
		return nil, fmt.Errorf("identifier cannot be empty")
	}

	matches := addressRegex.FindStringSubmatch(rawID)
	if matches == nil {
		return nil, fmt.Errorf("invalid instance identifier: %q", rawID)
	}

	addr := &Address{Job: matches[1]}
	if !strings.HasSuffix(rawID, "]") {
		return addr, nil
	}
	if matches[2] == "" {
		return nil, fmt.Errorf("identifier %q has an empty binding list", rawID)
	}

	seen := make(map[string]struct{})
	for _, pair := range strings.Split(matches[2], ",") {
		axis, label, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("invalid binding %q in %q", pair, rawID)
		}
		if !axisRegex.MatchString(axis) {
			return nil, fmt.Errorf("invalid axis name %q in %q", axis, rawID)
		}
		if !ValidLabel(label) {
			return nil, fmt.Errorf("invalid label %q in %q", label, rawID)
		}
		if _, dup := seen[axis]; dup {
			return nil, fmt.Errorf("duplicate axis %q in %q", axis, rawID)
		}
		seen[axis] = struct{}{}
		addr.Bindings = append(addr.Bindings, Binding{Axis: axis, Label: label})
	}

	return addr, nil
}
