package dto

// TurnDTO is one transcript turn in an incoming AI request.
type TurnDTO struct {
	Source string `json:"source" validate:"required,oneof=mic system"`
	Text   string `json:"text" validate:"required"`
}

// AIRequestDTO is the body of a unary AI generation request.
type AIRequestDTO struct {
	Turns        []TurnDTO `json:"turns" validate:"omitempty,dive"`
	Mode         string    `json:"mode" validate:"omitempty,oneof=reply summary insights questions"`
	Question     string    `json:"question,omitempty"`
	SystemPrompt string    `json:"systemPrompt,omitempty"`
	Model        string    `json:"model,omitempty"`
	ImagePNG     string    `json:"imagePngBase64,omitempty"`
	SessionID    string    `json:"sessionId,omitempty"`
}

// AIResponseDTO is returned for a successful unary generation.
type AIResponseDTO struct {
	Text  string `json:"text"`
	Model string `json:"model"`
}

// ErrorResponseDTO is the uniform error body for all API errors.
type ErrorResponseDTO struct {
	Status int    `json:"status"`
	Error  string `json:"error"`
}
