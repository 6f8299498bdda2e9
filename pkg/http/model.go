package http

// APIResponse is the envelope every endpoint writes.
type APIResponse struct {
	Status  int    `json:"status" example:"200"`
	Message string `json:"message" example:"OK"`
	Data    any    `json:"data,omitempty"`
}

// ValidationError describes a single failed request field.
type ValidationError struct {
	Code    string         `json:"code,omitempty" example:"ERR_REQUIRED"`
	Field   string         `json:"field,omitempty" example:"room_id"`
	Message string         `json:"message,omitempty" example:"room_id is required"`
	Params  map[string]any `json:"params,omitempty"`
}
