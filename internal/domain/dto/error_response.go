package dto

import "time"

// ErrorResponse is the JSON body of every non-2xx API response.
type ErrorResponse struct {
	Message      string    `json:"message" example:"ticker is required"`
	ErrorDetails string    `json:"error_details,omitempty" example:"parsing time \"2026/01/01\""`
	Timestamp    time.Time `json:"timestamp"`
}

// Error implements error so handlers can push an ErrorResponse through c.Error.
func (e ErrorResponse) Error() string {
	if e.ErrorDetails == "" {
		return e.Message
	}
	return e.Message + ": " + e.ErrorDetails
}

// NewErrorResponse builds an ErrorResponse stamped with the current UTC time.
// err is optional; its text becomes ErrorDetails.
func NewErrorResponse(message string, err error) ErrorResponse {
	resp := ErrorResponse{Message: message, Timestamp: time.Now().UTC()}
	if err != nil {
		resp.ErrorDetails = err.Error()
	}
	return resp
}
