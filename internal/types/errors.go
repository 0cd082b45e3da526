package types

import "net/http"

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// NewErrorResponse builds a consistent API error payload.
// details can be string, map, struct, etc.
func NewErrorResponse(code, message string, details any) ErrorResponse {
	return ErrorResponse{
		Error: ErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

// ErrorCode builds the stable code for an API area, e.g. ("RUDDER", 409)
// gives "RUDDER_409". Unmapped statuses collapse to 500.
func ErrorCode(area string, status int) string {
	switch status {
	case http.StatusBadRequest:
		return area + "_400"
	case http.StatusNotFound:
		return area + "_404"
	case http.StatusConflict:
		return area + "_409"
	case http.StatusServiceUnavailable:
		return area + "_503"
	default:
		return area + "_500"
	}
}
