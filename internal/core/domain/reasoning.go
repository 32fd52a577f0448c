package domain

type ReasoningRequest struct {
	SystemPrompt string
	UserPrompt   string
	Image        []byte
	ImageMIME    string
}

type ReasoningResponse struct {
	Content      string `json:"content"`
	Model        string `json:"model"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
}

// Enhancement is what the reasoning service suggests for a low-confidence document.
type Enhancement struct {
	Type       DocumentType    `json:"type"`
	Confidence float64         `json:"confidence"`
	Fields     ExtractedFields `json:"fields"`
	FromCache  bool            `json:"-"`
}
