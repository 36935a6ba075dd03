package expr

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/hcl/v2"
)

// EvaluationError reports a malformed expression, a reference to an
// undefined value, or a value of the wrong type. It is always fatal for
// the enclosing template.
type EvaluationError struct {
	// Subject names what was being evaluated, e.g. `job "build": condition`.
	Subject string
	Range   hcl.Range
	Detail  string
}

// Error implements the error interface.
func (e *EvaluationError) Error() string {
	var sb strings.Builder
	sb.WriteString("evaluation error")
	if e.Subject != "" {
		sb.WriteString(" in ")
		sb.WriteString(e.Subject)
	}
	if e.Range.Filename != "" {
		sb.WriteString(" (")
		sb.WriteString(e.Range.String())
		sb.WriteString(")")
	}
	sb.WriteString(": ")
	sb.WriteString(e.Detail)
	return sb.String()
}

// WithSubject fills in the Subject of an *EvaluationError found in err's
// chain, if it has none yet, and returns err.
func WithSubject(err error, subject string) error {
	var evalErr *EvaluationError
	if errors.As(err, &evalErr) && evalErr.Subject == "" {
		evalErr.Subject = subject
	}
	return err
}

func errorf(rng hcl.Range, format string, args ...any) *EvaluationError {
	return &EvaluationError{Range: rng, Detail: fmt.Sprintf(format, args...)}
}

func fromDiagnostics(rng hcl.Range, diags hcl.Diagnostics) *EvaluationError {
	var parts []string
	for _, d := range diags.Errs() {
		var diag *hcl.Diagnostic
		if errors.As(d, &diag) {
			if diag.Subject != nil && rng.Filename == "" {
				rng = *diag.Subject
			}
			if diag.Detail != "" {
				parts = append(parts, diag.Summary+"; "+diag.Detail)
				continue
			}
			parts = append(parts, diag.Summary)
			continue
		}
		parts = append(parts, d.Error())
	}
	return &EvaluationError{Range: rng, Detail: strings.Join(parts, "; ")}
}
