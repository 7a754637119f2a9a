package dto

import "time"

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Error      string    `json:"error" example:"Invalid Argument"`
	Message    string    `json:"message" example:"unknown queue id 7"`
	ResultCode int       `json:"result_code" example:"-7"`
	Timestamp  time.Time `json:"timestamp" example:"2025-01-18T12:34:56Z"`
}
