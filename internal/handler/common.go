package handler

import (
	"errors"
	"io"
	"net/http"
	"reflect"

	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

var validate = validator.New()

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, r *http.Request, statusCode int, data interface{}) {
	render.Status(r, statusCode)
	render.JSON(w, r, data)
}

// writeError writes an error response
func writeError(w http.ResponseWriter, r *http.Request, statusCode int, message string) {
	writeJSON(w, r, statusCode, ErrorResponse{
		Success: false,
		Error:   http.StatusText(statusCode),
		Message: message,
	})
}

// decodeOptionalJSON decodes a JSON body into v; an empty body leaves v untouched
func decodeOptionalJSON(r *http.Request, v interface{}) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := render.DecodeJSON(r.Body, v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// validationMessage renders validator errors as one readable line
func validationMessage(err error) string {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) || len(errs) == 0 {
		return err.Error()
	}

	fe := errs[0]
	switch fe.Tag() {
	case "max":
		if fe.Kind() == reflect.Slice {
			return fe.Field() + " must contain at most " + fe.Param() + " entries"
		}
		return fe.Field() + " entries must be at most " + fe.Param() + " characters"
	case "min", "required":
		return fe.Field() + " entries must not be empty"
	default:
		return fe.Field() + " is invalid"
	}
}
