package main

import (
	"legal-voice/pkg/account"
	"legal-voice/pkg/backend"
	"legal-voice/pkg/consult"
	"legal-voice/pkg/session"
)

type APIResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// Пункты списка возможностей на главной
var features = []string{"PDF Analysis", "AI Powered", "Multi-language", "Secure"}

type HomePage struct {
	Error    string
	Features []string
	Document *session.UploadedDocument
}

type ProcessingPage struct {
	Message     string
	Filename    string
	PollSeconds int
}

type Step2Page struct {
	Status      *backend.DocumentStatus
	Document    *session.UploadedDocument
	Error       string
	Cleared     bool
	PollSeconds int
}

type AskPage struct {
	View      consult.View
	Languages []consult.Language
	Document  *session.UploadedDocument
}

type LoginPage struct {
	Error string
	Email string
}

type SignupPage struct {
	Error     string
	Form      account.SignupForm
	UserTypes []account.UserType
}

// RecordStart ответ на начало записи: что произнести перед записью
type RecordStart struct {
	Prompt string `json:"prompt"`
	Locale string `json:"locale"`
}

// QueryRequest записанный вопрос из браузера
type QueryRequest struct {
	AudioBase64 string `json:"audio_base64" binding:"required"`
}

// ConsultationState состояние консультации для скриптов
type ConsultationState struct {
	Step          consult.Step               `json:"step"`
	Language      string                     `json:"language"`
	LastQuery     string                     `json:"last_query,omitempty"`
	AudioURL      string                     `json:"audio_url,omitempty"`
	AudioDuration float64                    `json:"audio_duration_sec,omitempty"`
	Error         string                     `json:"error,omitempty"`
	Conversation  []consult.ConversationItem `json:"conversation"`
}

func newConsultationState(view consult.View) ConsultationState {
	return ConsultationState{
		Step:          view.Step,
		Language:      view.Language.Code,
		LastQuery:     view.LastQuery,
		AudioURL:      view.AudioURL,
		AudioDuration: view.AudioDuration.Seconds(),
		Error:         view.Error,
		Conversation:  view.Conversation,
	}
}

// StatusEvent сообщение websocket /ws/status
type StatusEvent struct {
	Loaded   bool                    `json:"loaded"`
	Message  string                  `json:"message"`
	Status   *backend.DocumentStatus `json:"status,omitempty"`
	Redirect string                  `json:"redirect,omitempty"`
}
