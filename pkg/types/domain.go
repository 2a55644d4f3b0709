package types

// Model represents a model file discovered on disk.
type Model struct {
	// Stable identifier for the model (file name).
	// example: tinyllama-q4.gguf
	ID string `json:"id" example:"tinyllama-q4.gguf"`
	// Absolute path to the model file on disk.
	// example: /home/user/models/tinyllama-q4.gguf
	Path string `json:"path" example:"/home/user/models/tinyllama-q4.gguf"`
}
