package types

// InferenceRequest is the POST /inference payload.
type InferenceRequest struct {
	// Prompt text to generate a completion for. Required.
	// example: Hello
	Prompt string `json:"prompt" example:"Hello"`
}

// InferenceResponse is returned by POST /inference on success.
type InferenceResponse struct {
	// Generated text.
	// example: Hi there!
	Response string `json:"response" example:"Hi there!"`
}

// ErrorResponse is the single failure shape of the API.
type ErrorResponse struct {
	// Error message.
	// example: Model is downloading or not ready yet
	Error string `json:"error" example:"Model is downloading or not ready yet"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	// example: ok
	Status string `json:"status" example:"ok"`
}

// StatusResponse is returned by GET /status.
//
// Available is a string ("true"/"false") to stay wire-compatible with existing clients.
type StatusResponse struct {
	// Whether the model can serve requests right now.
	// example: false
	Available string `json:"available" example:"false"`
	// Human-readable availability diagnostic.
	// example: Model is downloading or not ready yet
	Message string `json:"message" example:"Model is downloading or not ready yet"`
}
