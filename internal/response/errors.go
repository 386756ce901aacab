package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// HTTPError carries a status code and a client-facing description. The
// wrapped error is logged, never sent.
type HTTPError struct {
	Code        int
	Name        string
	Description string
	Err         error
}

func (e *HTTPError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%d %s: %s: %v", e.Code, e.Name, e.Description, e.Err)
	}
	return fmt.Sprintf("%d %s: %s", e.Code, e.Name, e.Description)
}

func (e *HTTPError) Unwrap() error { return e.Err }

// NewHTTPError builds an HTTPError named after the status code.
func NewHTTPError(code int, description string, err error) *HTTPError {
	return &HTTPError{Code: code, Name: http.StatusText(code), Description: description, Err: err}
}

// BadRequest is a 400 HTTPError.
func BadRequest(description string, err error) *HTTPError {
	return NewHTTPError(http.StatusBadRequest, description, err)
}

// NotFound is a 404 HTTPError.
func NotFound(description string, err error) *HTTPError {
	return NewHTTPError(http.StatusNotFound, description, err)
}

// AsHTTPError unwraps an HTTPError from err. Anything else becomes a 500
// with a generic description.
func AsHTTPError(err error) *HTTPError {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr
	}
	if errors.Is(err, ErrInvalidFormat) {
		return BadRequest(err.Error(), err)
	}
	return NewHTTPError(http.StatusInternalServerError,
		"The server encountered an internal error and was unable to complete your request.", err)
}

// ErrorDetail is the "error" member of the failure envelope.
type ErrorDetail struct {
	Code        int    `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ErrorEnvelope is the JSON failure body.
type ErrorEnvelope struct {
	Status string      `json:"status"`
	Error  ErrorDetail `json:"error"`
}

// NewErrorEnvelope converts err into the failure body and its status code.
func NewErrorEnvelope(err error) (int, ErrorEnvelope) {
	httpErr := AsHTTPError(err)
	return httpErr.Code, ErrorEnvelope{
		Status: StatusFailure,
		Error: ErrorDetail{
			Code:        httpErr.Code,
			Name:        httpErr.Name,
			Description: httpErr.Description,
		},
	}
}

// WriteError writes the failure envelope for err.
func WriteError(w http.ResponseWriter, err error) {
	code, body := NewErrorEnvelope(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

// WriteStatus writes the failure envelope for a bare status code.
func WriteStatus(w http.ResponseWriter, code int, description string) {
	WriteError(w, NewHTTPError(code, description, nil))
}
