package api

// SubmitData keeps structure for submit method
type SubmitData struct {
	AudioURL string
	Language string
	// Key overrides the configured API key if not empty
	Key string
}

// StatusData keeps structure for status method
type StatusData struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Text   string `json:"text,omitempty"`
	Error  string `json:"error,omitempty"`
}
