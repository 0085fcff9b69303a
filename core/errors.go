package core

import (
	"errors"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	SyndicationErrorBadInput       = "SYNDICATION_BAD_INPUT"
	SyndicationErrorNotFound       = "SYNDICATION_NOT_FOUND"
	SyndicationErrorConfigInvalid  = "SYNDICATION_CONFIG_INVALID"
	SyndicationErrorDeliveryFailed = "SYNDICATION_DELIVERY_FAILED"
	SyndicationErrorConflict       = "SYNDICATION_CONFLICT"
	SyndicationErrorUnauthorized   = "SYNDICATION_UNAUTHORIZED"
	SyndicationErrorInternal       = "SYNDICATION_INTERNAL_ERROR"
)

// MapError converts any pipeline error into a categorized rich error with a
// stable text code and an HTTP status.
func MapError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureErrorEnvelope(richErr)
	}

	switch {
	case errors.Is(err, ErrDistributionNotFound),
		errors.Is(err, ErrSiteNotFound),
		errors.Is(err, ErrWebhookEventNotFound):
		return newSyndicationError(err.Error(), goerrors.CategoryNotFound, SyndicationErrorNotFound)
	case errors.Is(err, ErrInvalidDistributionTransition):
		return newSyndicationError(err.Error(), goerrors.CategoryConflict, SyndicationErrorConflict)
	case errors.Is(err, ErrInvalidEventType):
		return newSyndicationError(err.Error(), goerrors.CategoryBadInput, SyndicationErrorBadInput)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "signing") && strings.Contains(msg, "secret"):
		return newSyndicationError(err.Error(), goerrors.CategoryValidation, SyndicationErrorConfigInvalid)
	case strings.Contains(msg, "not found"):
		return newSyndicationError(err.Error(), goerrors.CategoryNotFound, SyndicationErrorNotFound)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "must"):
		return newSyndicationError(err.Error(), goerrors.CategoryBadInput, SyndicationErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureErrorEnvelope(mapped)
}

func newSyndicationError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = syndicationHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput:
		return SyndicationErrorBadInput
	case goerrors.CategoryValidation:
		return SyndicationErrorConfigInvalid
	case goerrors.CategoryNotFound:
		return SyndicationErrorNotFound
	case goerrors.CategoryConflict:
		return SyndicationErrorConflict
	case goerrors.CategoryAuth:
		return SyndicationErrorUnauthorized
	case goerrors.CategoryExternal, goerrors.CategoryOperation:
		return SyndicationErrorDeliveryFailed
	default:
		return SyndicationErrorInternal
	}
}

func syndicationHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}
