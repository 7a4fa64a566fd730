package types

// SuccessEnvelope is the body of every 2xx JSON response.
type SuccessEnvelope struct {
	Success bool   `json:"success"`
	Status  int    `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data"`
	Meta    any    `json:"meta,omitempty"`
}

type APIError struct {
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

// ErrorEnvelope is the body of every non-2xx JSON response.
type ErrorEnvelope struct {
	Success bool     `json:"success"`
	Status  int      `json:"status"`
	Message string   `json:"message"`
	Error   APIError `json:"error"`
}
