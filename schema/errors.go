package schema

import "fmt"

// ConfigurationError reports a record type that cannot be resolved, such as
// one without a primary key. It is raised when the type is defined and is
// never recovered from at query time.
type ConfigurationError struct {
	Type    string
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("schema: type %s: %s", e.Type, e.Message)
	}
	return fmt.Sprintf("schema: type %s field %q: %s", e.Type, e.Field, e.Message)
}
