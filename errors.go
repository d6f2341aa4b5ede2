package hasura

import (
	"fmt"
	"strings"
)

// Error codes carried in the "code" entry of an Error's extensions.
const (
	ErrRequestError     = "request_error"
	ErrJsonDecode       = "json_decode_error"
	ErrGraphQLDecode    = "graphql_decode_error"
	ErrInvalidOperation = "invalid_operation_error"
)

// Errors represents the "errors" array in a response from a GraphQL server.
// If returned via the error interface, the slice contains at least 1 element.
//
// Specification: https://facebook.github.io/graphql/#sec-Errors.
type Errors []Error

type Error struct {
	Message    string         `json:"message"`
	Extensions map[string]any `json:"extensions,omitempty"`
	Locations  []struct {
		Line   int `json:"line"`
		Column int `json:"column"`
	} `json:"locations,omitempty"`
	Path []any `json:"path,omitempty"`
}

// Error implements the error interface.
func (e Error) Error() string {
	return fmt.Sprintf("Message: %s, Locations: %+v", e.Message, e.Locations)
}

// Error implements the error interface.
func (e Errors) Error() string {
	b := strings.Builder{}
	for _, err := range e {
		b.WriteString(err.Error())
	}
	return b.String()
}

// GetCode returns the error code from the extensions, or an empty string if
// not present.
func (e Error) GetCode() string {
	if e.Extensions == nil {
		return ""
	}
	code, ok := e.Extensions["code"].(string)
	if !ok {
		return ""
	}
	return code
}

// newError creates a new Error with the given code and underlying error.
func newError(code string, err error) Error {
	return Error{
		Message: err.Error(),
		Extensions: map[string]any{
			"code": code,
		},
	}
}

// newSimpleErrors creates an Errors slice with a single error, wrapping the
// given error with the specified code.
func newSimpleErrors(code string, err error) Errors {
	return Errors{newError(code, err)}
}

// InvalidConfigurationError is returned synchronously during client
// construction when the resolved connection type does not match any
// recognized case. It should only occur when the connection-type derivation
// is bypassed with a custom value; URL-based derivation always produces a
// recognized type.
type InvalidConfigurationError struct {
	// Kind is the unrecognized connection type, as a string.
	Kind string
}

func (e *InvalidConfigurationError) Error() string {
	return fmt.Sprintf("hasura: invalid configuration: unrecognized connection type %q", e.Kind)
}
