package entities

// ValidationResult lists every problem found in a manifest. Valid is true
// only when Errors is empty.
type ValidationResult struct {
	Valid  bool
	Errors []ValidationError
}

// ValidationError is one manifest problem. Field is a JSON path such as
// "capabilities[1].command" or "slash_commands[cargo-doc].description".
type ValidationError struct {
	Field   string
	Message string
}
