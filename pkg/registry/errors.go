package registry

import (
	"errors"
	"strings"
)

// ErrNotFound is returned when no server matches an id.
var ErrNotFound = errors.New("server not found")

// Code classifies a field error.
type Code string

const (
	// CodeMissing means a required field was absent or blank.
	CodeMissing Code = "MISSING"
	// CodeInvalid means the value failed the remote identity probe.
	CodeInvalid Code = "INVALID"
	// CodeAlreadyExists means the value collides with a registered server.
	CodeAlreadyExists Code = "ALREADY_EXISTS"
)

// CreateFailedMessage is the top-level message of a rejected create.
const CreateFailedMessage = "Failed to create GitHub server"

// FieldError describes one problem with one request field.
type FieldError struct {
	Field   string `json:"field"`
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

// ValidationError is returned when a create request is rejected. Errors keeps
// the order in which the checks fired.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Errors))

	for _, fe := range e.Errors {
		msgs = append(msgs, fe.Message)
	}

	return CreateFailedMessage + ": " + strings.Join(msgs, "; ")
}

// HasCode reports whether any field error carries code.
func (e *ValidationError) HasCode(code Code) bool {
	for _, fe := range e.Errors {
		if fe.Code == code {
			return true
		}
	}

	return false
}
