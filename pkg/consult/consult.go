// Package consult ведет голосовую консультацию по загруженному документу:
// выбор языка, запись вопроса, ответ бэкенда и история разговора.
package consult

import (
	"context"
	"errors"
	"sync"
	"time"

	"legal-voice/pkg/backend"

	"github.com/google/uuid"
)

// Step шаг консультации
type Step string

const (
	StepLanguage Step = "language"
	StepQuestion Step = "question"
	StepResponse Step = "response"
)

// Сообщения для пользователя
const (
	MessageMicrophoneDenied = "Microphone access denied. Please check permissions."
	MessageQueryFailed      = "Failed to process query"
)

var (
	ErrBusy                = errors.New("recording or query already in progress")
	ErrNotRecording        = errors.New("no recording in progress")
	ErrUnsupportedLanguage = errors.New("unsupported language")
)

// Language поддерживаемый язык консультации
type Language struct {
	Code   string
	Name   string
	Prompt string // фраза перед записью ("Now speak")
	Locale string // язык для SpeechSynthesis в браузере
}

var Languages = []Language{
	{Code: "en", Name: "English", Prompt: "Now speak", Locale: "en-US"},
	{Code: "hi", Name: "Hindi (हिन्दी)", Prompt: "अब बोलें", Locale: "hi-IN"},
	{Code: "gu", Name: "Gujarati (ગુજરાતી)", Prompt: "હવે બોલો", Locale: "gu-IN"},
}

// LookupLanguage ищет язык по коду
func LookupLanguage(code string) (Language, bool) {
	for _, lang := range Languages {
		if lang.Code == code {
			return lang, true
		}
	}
	return Language{}, false
}

// ItemType автор реплики
type ItemType string

const (
	ItemUser ItemType = "user"
	ItemAI   ItemType = "ai"
)

// ConversationItem реплика в истории; только в памяти
type ConversationItem struct {
	ID        string    `json:"id"`
	Type      ItemType  `json:"type"`
	Text      string    `json:"text"`
	AudioURL  string    `json:"audio_url,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Asker отправляет вопрос бэкенду (обычно *backend.Client)
type Asker interface {
	Ask(ctx context.Context, ask backend.AskRequest) (*backend.AskResponse, error)
}

// View снимок состояния для рендеринга
type View struct {
	Step          Step
	Language      Language
	Recording     bool
	Loading       bool
	LastQuery     string
	AudioURL      string
	AudioDuration time.Duration
	Error         string
	Conversation  []ConversationItem
}

// CanRecord кнопка записи активна только вне записи и ожидания ответа
func (v View) CanRecord() bool {
	return !v.Recording && !v.Loading
}

// Consultation состояние одной консультации
type Consultation struct {
	mu           sync.Mutex
	audio        *AudioStore
	step         Step
	language     Language
	recording    bool
	loading      bool
	lastQuery    string
	clip         *Clip
	err          string
	conversation []ConversationItem
	closed       bool
}

// New создает консультацию на шаге выбора языка (английский по умолчанию)
func New(audio *AudioStore) *Consultation {
	return &Consultation{
		audio:    audio,
		step:     StepLanguage,
		language: Languages[0],
	}
}

// View возвращает копию состояния
func (c *Consultation) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()

	view := View{
		Step:         c.step,
		Language:     c.language,
		Recording:    c.recording,
		Loading:      c.loading,
		LastQuery:    c.lastQuery,
		Error:        c.err,
		Conversation: append([]ConversationItem(nil), c.conversation...),
	}
	if c.clip != nil {
		view.AudioURL = c.clip.URL()
		view.AudioDuration = c.clip.Duration
	}
	return view
}

// SelectLanguage выбирает язык и переходит к вопросу
func (c *Consultation) SelectLanguage(code string) error {
	lang, ok := LookupLanguage(code)
	if !ok {
		return ErrUnsupportedLanguage
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.language = lang
	c.step = StepQuestion
	return nil
}

// BeginRecording начинает запись; повторный старт отклоняется до Submit/Cancel
func (c *Consultation) BeginRecording() (Language, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.recording || c.loading {
		return c.language, ErrBusy
	}

	c.revokeLocked()
	c.err = ""
	c.recording = true
	if c.step == StepLanguage {
		c.step = StepQuestion
	}
	return c.language, nil
}

// CancelRecording прерывает запись (например, нет доступа к микрофону)
func (c *Consultation) CancelRecording(message string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.recording = false
	c.err = message
}

// Submit отправляет записанный вопрос. Во время запроса консультация
// находится в состоянии loading и новые записи отклоняются.
func (c *Consultation) Submit(ctx context.Context, audioBase64 string, asker Asker) (View, error) {
	c.mu.Lock()
	if !c.recording {
		c.mu.Unlock()
		return c.View(), ErrNotRecording
	}
	c.recording = false
	c.loading = true
	lang := c.language
	c.mu.Unlock()

	resp, askErr := asker.Ask(ctx, backend.AskRequest{
		AudioBase64: audioBase64,
		Language:    lang.Code,
	})

	var clip *Clip
	err := askErr
	if err == nil && resp.AudioResponseBase64 != "" {
		clip, err = DecodeAudio(resp.AudioResponseBase64)
	}

	c.mu.Lock()
	c.loading = false
	if err != nil {
		c.err = userMessage(err)
		c.mu.Unlock()
		return c.View(), err
	}

	now := time.Now()
	c.lastQuery = resp.OriginalQuery
	c.conversation = append(c.conversation, ConversationItem{
		ID:        uuid.New().String(),
		Type:      ItemUser,
		Text:      resp.OriginalQuery,
		Timestamp: now,
	})

	// закрытая консультация новых клипов не хранит
	if clip != nil && !c.closed {
		c.revokeLocked()
		c.clip = c.audio.Put(clip)
		c.step = StepResponse

		replyLang := lang.Name
		if l, ok := LookupLanguage(resp.ResponseLanguage); ok {
			replyLang = l.Name
		}
		c.conversation = append(c.conversation, ConversationItem{
			ID:        uuid.New().String(),
			Type:      ItemAI,
			Text:      "Response in " + replyLang,
			AudioURL:  c.clip.URL(),
			Timestamp: now,
		})
	}
	c.mu.Unlock()

	return c.View(), nil
}

// NewQuestion возвращает к шагу вопроса и освобождает прошлый ответ
func (c *Consultation) NewQuestion() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.step = StepQuestion
	c.lastQuery = ""
	c.err = ""
	c.revokeLocked()
}

// Close освобождает аудио консультации
func (c *Consultation) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.revokeLocked()
}

// revokeLocked отзывает текущий клип; реплики истории теряют ссылку на него,
// текст остается
func (c *Consultation) revokeLocked() {
	if c.clip == nil {
		return
	}

	url := c.clip.URL()
	for i := range c.conversation {
		if c.conversation[i].AudioURL == url {
			c.conversation[i].AudioURL = ""
		}
	}

	c.audio.Revoke(c.clip.ID)
	c.clip = nil
}

func userMessage(err error) string {
	var apiErr *backend.APIError
	switch {
	case errors.As(err, &apiErr):
		return apiErr.Message
	case errors.Is(err, ErrInvalidAudio):
		return MessageInvalidAudio
	default:
		return MessageQueryFailed
	}
}

// Manager консультации по ID сессии. Консультации без обращений дольше
// TTL удаляются через Expire.
type Manager struct {
	mu            sync.Mutex
	audio         *AudioStore
	consultations map[string]*entry
}

type entry struct {
	consultation *Consultation
	lastSeen     time.Time
}

func NewManager(audio *AudioStore) *Manager {
	return &Manager{
		audio:         audio,
		consultations: make(map[string]*entry),
	}
}

// Audio общее хранилище клипов
func (m *Manager) Audio() *AudioStore {
	return m.audio
}

// Get возвращает консультацию сессии, создавая ее при первом обращении
func (m *Manager) Get(sessionID string) *Consultation {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.consultations[sessionID]
	if !ok {
		e = &entry{consultation: New(m.audio)}
		m.consultations[sessionID] = e
	}
	e.lastSeen = time.Now()
	return e.consultation
}

// Drop завершает консультацию сессии
func (m *Manager) Drop(sessionID string) {
	m.mu.Lock()
	e, ok := m.consultations[sessionID]
	delete(m.consultations, sessionID)
	m.mu.Unlock()

	if ok {
		e.consultation.Close()
	}
}

// Expire закрывает консультации, к которым не обращались после cutoff.
// Возвращает количество удаленных.
func (m *Manager) Expire(cutoff time.Time) int {
	var expired []*Consultation

	m.mu.Lock()
	for id, e := range m.consultations {
		if e.lastSeen.Before(cutoff) {
			expired = append(expired, e.consultation)
			delete(m.consultations, id)
		}
	}
	m.mu.Unlock()

	for _, c := range expired {
		c.Close()
	}
	return len(expired)
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.consultations)
}
