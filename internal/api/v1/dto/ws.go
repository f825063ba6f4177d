package dto

// Client messages on the transcription relay socket.
type RelayClientMessage struct {
	Type   string `json:"type"` // "start", "audio", "stop"
	Source string `json:"source,omitempty"`
	Audio  string `json:"audio,omitempty"` // base64-encoded PCM
}

// RelayStatusMessage reports relay lifecycle transitions to the client.
type RelayStatusMessage struct {
	Type    string `json:"type"` // always "status"
	Message string `json:"message"`
}

// RelayTranscriptMessage carries one recognizer result, tagged with the
// source stream it came from.
type RelayTranscriptMessage struct {
	Type       string  `json:"type"` // always "transcript"
	Source     string  `json:"source"`
	Text       string  `json:"text"`
	IsFinal    bool    `json:"is_final"`
	IsInterim  bool    `json:"is_interim"`
	Confidence float64 `json:"confidence"`
}

// RelayErrorMessage reports a recognizer error for one source stream.
type RelayErrorMessage struct {
	Type    string `json:"type"` // always "error"
	Source  string `json:"source"`
	Message string `json:"message"`
}

// AIStreamClientMessage is a client message on the streaming AI socket.
// Type "ai_request" starts a generation; "ai_cancel" cancels the current one.
type AIStreamClientMessage struct {
	Type         string    `json:"type"`
	RequestID    string    `json:"requestId,omitempty"`
	Turns        []TurnDTO `json:"turns,omitempty"`
	Mode         string    `json:"mode,omitempty"`
	Question     string    `json:"question,omitempty"`
	SystemPrompt string    `json:"systemPrompt,omitempty"`
	Model        string    `json:"model,omitempty"`
	ImagePNG     string    `json:"imagePngBase64,omitempty"`
	SessionID    string    `json:"sessionId,omitempty"`
}

// AIStartMessage opens the server-side event stream for one request.
type AIStartMessage struct {
	Type      string `json:"type"` // always "ai_start"
	RequestID string `json:"requestId"`
}

// AIDeltaMessage carries one chunk of generated text.
type AIDeltaMessage struct {
	Type      string `json:"type"` // always "ai_delta"
	RequestID string `json:"requestId"`
	Delta     string `json:"delta"`
}

// AIDoneMessage terminates the event stream for one request. Cancelled
// generations still get a Done carrying the text produced so far.
type AIDoneMessage struct {
	Type      string `json:"type"` // always "ai_done"
	RequestID string `json:"requestId"`
	Cancelled bool   `json:"cancelled"`
	Text      string `json:"text"`
}

// AIErrorMessage reports a failed generation with its HTTP-equivalent status.
type AIErrorMessage struct {
	Type      string `json:"type"` // always "ai_error"
	RequestID string `json:"requestId,omitempty"`
	Status    int    `json:"status"`
	Message   string `json:"message"`
}
