package template

import (
	"errors"
	"fmt"
)

var (
	// ErrTemplateNotFound indicates no template file matched the requested name
	ErrTemplateNotFound = errors.New("template not found")

	// ErrNoHostnameMatch indicates no hostname mapping matched and no default template is set
	ErrNoHostnameMatch = errors.New("no template mapping matches this hostname")

	// ErrAmbiguousHostname indicates several hostname mappings matched
	ErrAmbiguousHostname = errors.New("several template mappings match this hostname")

	// ErrInvalidValue indicates a setting value could not be parsed
	ErrInvalidValue = errors.New("invalid setting value")
)

// TemplateError represents a template that could not be loaded or is invalid
type TemplateError struct {
	Name string // Template name
	Path string // Template file, empty if not found
	Err  error  // Underlying error
}

func (e *TemplateError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("template %s (%s): %v", e.Name, e.Path, e.Err)
	}
	return fmt.Sprintf("template %s: %v", e.Name, e.Err)
}

func (e *TemplateError) Unwrap() error {
	return e.Err
}

// NewTemplateError creates a new TemplateError
func NewTemplateError(name, path string, err error) *TemplateError {
	return &TemplateError{Name: name, Path: path, Err: err}
}

// IsTemplateError checks if an error is a TemplateError
func IsTemplateError(err error) bool {
	var te *TemplateError
	return errors.As(err, &te)
}

// IsConfigError reports whether err comes from template selection or settings.
func IsConfigError(err error) bool {
	return IsTemplateError(err) ||
		errors.Is(err, ErrNoHostnameMatch) ||
		errors.Is(err, ErrAmbiguousHostname) ||
		errors.Is(err, ErrInvalidValue)
}
