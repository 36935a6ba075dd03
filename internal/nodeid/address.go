package nodeid

import (
	"slices"
	"strings"
)

// String serializes the Address into its canonical representation.
func (a Address) String() string {
	if len(a.Bindings) == 0 {
		return a.Job
	}

	var sb strings.Builder
	sb.WriteString(a.Job)
	sb.WriteRune('[')
	for i, b := range a.Bindings {
		if i > 0 {
			sb.WriteRune(',')
		}
		sb.WriteString(b.Axis)
		sb.WriteRune('=')
		sb.WriteString(b.Label)
	}
	sb.WriteRune(']')
	return sb.String()
}

// Equal checks for deep equality between two addresses.
func (a Address) Equal(other Address) bool {
	return a.Job == other.Job && slices.Equal(a.Bindings, other.Bindings)
}

// IsZero reports whether the address is unset.
func (a Address) IsZero() bool {
	return a.Job == "" && len(a.Bindings) == 0
}

// Label returns the label bound to axis, if any.
func (a Address) Label(axis string) (string, bool) {
	for _, b := range a.Bindings {
		if b.Axis == axis {
			return b.Label, true
		}
	}
	return "", false
}

// Labels returns the bindings as a map, e.g. for reports.
func (a Address) Labels() map[string]string {
	if len(a.Bindings) == 0 {
		return nil
	}
	out := make(map[string]string, len(a.Bindings))
	for _, b := range a.Bindings {
		out[b.Axis] = b.Label
	}
	return out
}
