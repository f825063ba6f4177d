package model

// Turn is one transcript entry attributed to an audio source.
type Turn struct {
	Source string `json:"source"`
	Text   string `json:"text"`
}

// AIRequest is one client request for an AI generation. For the WebSocket
// transport at most one AIRequest is current per connection; a newer request
// supersedes the prior one.
type AIRequest struct {
	RequestID    string
	Mode         Mode
	Turns        []Turn
	Question     string
	SystemPrompt string
	Model        string
	ImagePNG     string // base64-encoded PNG payload, optional
	SessionID    string
}

// AIResult is the outcome of a completed unary generation.
type AIResult struct {
	Text  string
	Model string
	Usage *TokenUsage
}
