package types

// SuccessEnvelope wraps every successful response body.
type SuccessEnvelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Details   any    `json:"details,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
	// RequestID echoes X-Request-Id so support can find the log entry.
	RequestID string `json:"requestId,omitempty"`
}

// ErrorEnvelope mirrors SuccessEnvelope with success=false; Message repeats
// Error.Message for clients that only read the top level.
type ErrorEnvelope struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	Error   APIError `json:"error"`
}
