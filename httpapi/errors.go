package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-syndication/core"
)

type apiErrorBody struct {
	Code     string         `json:"code" example:"SYNDICATION_NOT_FOUND"`
	Message  string         `json:"message" example:"webhook event not found"`
	Category string         `json:"category,omitempty" example:"not_found"`
	Details  map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError is the error envelope for every endpoint.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	rich := core.MapError(err)
	status := rich.Code
	if status < 400 || status > 599 {
		status = http.StatusInternalServerError
	}
	message := rich.Message
	if status >= http.StatusInternalServerError {
		message = "internal error"
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:     rich.TextCode,
			Message:  message,
			Category: string(rich.Category),
			Details:  errorDetails(rich),
		},
	}
}

func errorDetails(rich *goerrors.Error) map[string]any {
	if rich == nil {
		return nil
	}
	details := map[string]any{}
	for key, value := range rich.Metadata {
		details[key] = value
	}
	if fields := rich.AllValidationErrors(); len(fields) > 0 {
		out := make([]map[string]string, 0, len(fields))
		for _, field := range fields {
			out = append(out, map[string]string{"field": field.Field, "message": field.Message})
		}
		details["fields"] = out
	}
	if len(details) == 0 {
		return nil
	}
	return details
}

func newAPIError(status int, code, message string) *apiError {
	if strings.TrimSpace(code) == "" {
		code = core.SyndicationErrorInternal
	}
	return &apiError{status: status, Body: apiErrorBody{Code: code, Message: message}}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err huma.StatusError) {
	writeJSON(w, err.GetStatus(), err)
}
