package app

import (
	"fmt"
	"net/http"

	"spaces/api/internal/ops"
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

func validationError(message string) *DomainError {
	return domainError(http.StatusUnprocessableEntity, ops.CodeValidation, message, nil)
}

func forbidden(message string) *DomainError {
	return domainError(http.StatusForbidden, ops.CodeForbidden, message, nil)
}

func notFound(what string) *DomainError {
	return domainError(http.StatusNotFound, ops.CodeNotFound, what+" not found", nil)
}

func preconditionFailed(message string) *DomainError {
	return domainError(http.StatusPreconditionFailed, ops.CodePrecondition, message, nil)
}

func unauthorized() *DomainError {
	return domainError(http.StatusUnauthorized, ops.CodeUnauthorized, "Unauthorized", nil)
}
