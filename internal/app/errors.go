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

func errAccessDenied() *DomainError {
	return domainError(http.StatusForbidden, "ACCESS_DENIED", "Access denied", nil)
}

// errNotFound is also the answer for resources the viewer may not know
// exist; denied and absent are indistinguishable to them.
func errNotFound() *DomainError {
	return domainError(http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func errValidation(message string) *DomainError {
	return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", message, nil)
}

func errInviteExpired() *DomainError {
	return domainError(http.StatusGone, "INVITE_EXPIRED", "Invite has expired", nil)
}

func errInviteConsumed() *DomainError {
	return domainError(http.StatusConflict, "INVITE_ALREADY_CONSUMED", "Invite has already been used", nil)
}
