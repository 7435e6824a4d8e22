package api

import (
	"errors"
	"net/http"

	"lakehouse/internal/domain"
)

// httpStatusFromDomainError maps domain errors to HTTP status codes.
func httpStatusFromDomainError(err error) int {
	var notFound *domain.NotFoundError
	var validation *domain.ValidationError
	var invalidEnv *domain.InvalidEnvironmentError
	var conflict *domain.ConflictError

	switch {
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &validation), errors.As(err, &invalidEnv):
		return http.StatusBadRequest
	case errors.As(err, &conflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
