package entities

// ValidationResult is the outcome of validating a configuration.
type ValidationResult struct {
	Valid  bool
	Errors []ValidationError
}

// ValidationError describes one invalid field.
type ValidationError struct {
	Field   string
	Message string
}
