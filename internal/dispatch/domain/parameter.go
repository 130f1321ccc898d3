package dispatch

import (
	"fmt"
	"strconv"
	"strings"
)

// Assignment pairs a settable parameter with its value.
type Assignment struct {
	Name  string `json:"name" validate:"required"`
	Value int    `json:"value" validate:"min=0"`
}

// FormatAssignments joins assignments as "k=v,k=v" keeping the given order.
func FormatAssignments(assignments []Assignment) string {
	parts := make([]string, 0, len(assignments))
	for _, a := range assignments {
		parts = append(parts, a.Name+"="+strconv.Itoa(a.Value))
	}
	return strings.Join(parts, ",")
}

// ParseAssignment parses a "name=value" token.
func ParseAssignment(token string) (Assignment, error) {
	name, raw, ok := strings.Cut(strings.TrimSpace(token), "=")
	if !ok || strings.TrimSpace(name) == "" {
		return Assignment{}, fmt.Errorf("dispatch: invalid assignment %q", token)
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return Assignment{}, fmt.Errorf("dispatch: invalid value in %q", token)
	}
	return Assignment{Name: strings.TrimSpace(name), Value: value}, nil
}

// CheckAssignments verifies names, uniqueness and non-negative values.
func (c *Catalog) CheckAssignments(assignments []Assignment) error {
	seen := make(map[string]struct{}, len(assignments))
	for _, a := range assignments {
		if !c.HasParameter(a.Name) {
			return fmt.Errorf("%w: %q", ErrUnknownParameter, a.Name)
		}
		if _, ok := seen[a.Name]; ok {
			return fmt.Errorf("%w: %q", ErrDuplicateParameter, a.Name)
		}
		seen[a.Name] = struct{}{}
		if a.Value < 0 {
			return fmt.Errorf("%w: %s=%d", ErrNegativeValue, a.Name, a.Value)
		}
	}
	return nil
}
