package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConfiguration marks load-time content or config defects. Never retried.
	ErrConfiguration = errors.New("configuration error")
	// ErrEmptyCategory means a category has no candidate templates.
	ErrEmptyCategory = errors.New("empty category")
	// ErrMissingVariable means a template placeholder had no binding at render time.
	ErrMissingVariable = errors.New("missing variable")
)

// ConfigurationError lists every problem found while loading configuration or content.
type ConfigurationError struct {
	Problems []string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrConfiguration, strings.Join(e.Problems, "; "))
}

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// NewConfigurationError formats a single-problem ConfigurationError.
func NewConfigurationError(format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Problems: []string{fmt.Sprintf(format, args...)}}
}

// EmptyCategoryError names the category that had no templates.
type EmptyCategoryError struct {
	Category Category
}

func (e *EmptyCategoryError) Error() string {
	return fmt.Sprintf("%s: no templates registered for %q", ErrEmptyCategory, e.Category)
}

func (e *EmptyCategoryError) Is(target error) bool { return target == ErrEmptyCategory }

// MissingVariableError names the unbound placeholder.
type MissingVariableError struct {
	Name       string
	TemplateID string
}

func (e *MissingVariableError) Error() string {
	if e.TemplateID == "" {
		return fmt.Sprintf("%s: {%s}", ErrMissingVariable, e.Name)
	}
	return fmt.Sprintf("%s: {%s} in template %s", ErrMissingVariable, e.Name, e.TemplateID)
}

func (e *MissingVariableError) Is(target error) bool { return target == ErrMissingVariable }

// IsContentDefect reports whether err comes from a content pack gap rather than infrastructure.
func IsContentDefect(err error) bool {
	return errors.Is(err, ErrEmptyCategory) || errors.Is(err, ErrMissingVariable)
}
