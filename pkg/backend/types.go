package backend

// DocumentStatus ответ GET /status
type DocumentStatus struct {
	DocumentLoaded bool   `json:"document_loaded"`
	Filename       string `json:"filename,omitempty"`
	ProcessedAt    string `json:"processed_at,omitempty"`
	SummaryPreview string `json:"summary_preview,omitempty"`
	DocumentLength int    `json:"document_length,omitempty"`
	Message        string `json:"message,omitempty"`
}

// UploadResponse ответ POST /upload-document
type UploadResponse struct {
	Message     string `json:"message"`
	Filename    string `json:"filename"`
	ProcessedAt string `json:"processed_at"`
}

// AskRequest голосовой вопрос к документу
type AskRequest struct {
	AudioBase64 string `json:"audio_base64"`
	Language    string `json:"language"`
}

// AskResponse синтезированный ответ бэкенда
type AskResponse struct {
	AudioResponseBase64 string  `json:"audio_response_base64"`
	OriginalQuery       string  `json:"original_query"`
	ResponseLanguage    string  `json:"response_language"`
	DocumentFilename    *string `json:"document_filename"`
}

// ErrorBody форма тела ошибки бэкенда
type ErrorBody struct {
	Detail     string `json:"detail,omitempty"`
	Error      string `json:"error,omitempty"`
	StatusCode int    `json:"status_code,omitempty"`
}
