package config

import (
	"fmt"
	"regexp"
)

var identRegex = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_-]*$`)

// Job returns the job template with the given ID, or nil.
func (d *Definition) Job(id string) *JobTemplate {
	for _, j := range d.Jobs {
		if j.ID == id {
			return j
		}
	}
	return nil
}

// Validate checks structural rules that do not require evaluation: job,
// parameter and step identifiers are well-formed and unique, and every
// template step names a template.
func (d *Definition) Validate() error {
	if err := validateParameters(d.Parameters, "pipeline"); err != nil {
		return err
	}

	seenJobs := make(map[string]struct{}, len(d.Jobs))
	for _, j := range d.Jobs {
		if !identRegex.MatchString(j.ID) {
			return fmt.Errorf("invalid job identifier %q", j.ID)
		}
		if _, dup := seenJobs[j.ID]; dup {
			return fmt.Errorf("duplicate job identifier %q", j.ID)
		}
		seenJobs[j.ID] = struct{}{}

		if err := validateSteps(j.Steps, fmt.Sprintf("job %q", j.ID)); err != nil {
			return err
		}
		if j.Matrix != nil {
			for i, set := range j.Matrix.Sets {
				seenAxes := make(map[string]struct{}, len(set.Axes))
				for _, axis := range set.Axes {
					if !identRegex.MatchString(axis.Name) {
						return fmt.Errorf("job %q: matrix set %d: invalid axis name %q", j.ID, i, axis.Name)
					}
					if _, dup := seenAxes[axis.Name]; dup {
						return fmt.Errorf("job %q: matrix set %d: duplicate axis %q", j.ID, i, axis.Name)
					}
					seenAxes[axis.Name] = struct{}{}
				}
			}
		}
	}

	for name, tpl := range d.Templates {
		if err := validateParameters(tpl.Parameters, fmt.Sprintf("template %q", name)); err != nil {
			return err
		}
		if err := validateSteps(tpl.Steps, fmt.Sprintf("template %q", name)); err != nil {
			return err
		}
	}
	return nil
}

func validateParameters(params []*Parameter, owner string) error {
	seen := make(map[string]struct{}, len(params))
	for _, p := range params {
		if !identRegex.MatchString(p.Name) {
			return fmt.Errorf("%s: invalid parameter name %q", owner, p.Name)
		}
		if _, dup := seen[p.Name]; dup {
			return fmt.Errorf("%s: duplicate parameter %q", owner, p.Name)
		}
		seen[p.Name] = struct{}{}
	}
	return nil
}

func validateSteps(steps []*StepTemplate, owner string) error {
	seen := make(map[string]struct{}, len(steps))
	for i, s := range steps {
		switch s.Kind {
		case StepKindScript:
			if s.Command == nil {
				return fmt.Errorf("%s: step %d has no command", owner, i)
			}
		case StepKindTemplate:
			if s.Reference == "" {
				return fmt.Errorf("%s: step %d has an empty template reference", owner, i)
			}
		default:
			return fmt.Errorf("%s: step %d has unknown kind %q", owner, i, s.Kind)
		}
		if s.ID == "" {
			continue
		}
		if !identRegex.MatchString(s.ID) {
			return fmt.Errorf("%s: invalid step id %q", owner, s.ID)
		}
		if _, dup := seen[s.ID]; dup {
			return fmt.Errorf("%s: duplicate step id %q", owner, s.ID)
		}
		seen[s.ID] = struct{}{}
	}
	return nil
}
