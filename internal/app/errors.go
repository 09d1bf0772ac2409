package app

import (
	"fmt"
	"net/http"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func errForbidden() *DomainError {
	return domainError(http.StatusForbidden, "FORBIDDEN", "You do not have permission to perform this action", nil)
}

func errNotFound(what string) *DomainError {
	return domainError(http.StatusNotFound, "NOT_FOUND", what+" not found", nil)
}

func errConflict(message string) *DomainError {
	return domainError(http.StatusConflict, "CONFLICT", message, nil)
}

// errValidation reports field-level problems, keyed by JSON field name.
func errValidation(fields map[string]string) *DomainError {
	return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Invalid input", fields)
}

func errField(field, message string) *DomainError {
	return errValidation(map[string]string{field: message})
}
