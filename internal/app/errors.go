package app

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"localeforge/api/internal/access"
	"localeforge/api/internal/auth"
	"localeforge/api/internal/failure"
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

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if fe, ok := failure.As(err); ok {
		switch fe.Kind {
		case failure.KindValidation:
			var details any
			if fe.Field != "" {
				details = map[string]string{"field": fe.Field}
			}
			return http.StatusBadRequest, "VALIDATION_ERROR", fe.Message, details
		case failure.KindNotFound:
			return http.StatusNotFound, "NOT_FOUND", "Not found", map[string]string{"entity": fe.Field}
		}
	}
	if errors.Is(err, access.ErrForbidden) {
		return http.StatusForbidden, "FORBIDDEN", "Forbidden", nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
