package consult

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"

	"legal-voice/pkg/backend"
)

// fakeAsker возвращает заданный ответ и запоминает запрос
type fakeAsker struct {
	resp *backend.AskResponse
	err  error
	got  backend.AskRequest
}

func (f *fakeAsker) Ask(ctx context.Context, ask backend.AskRequest) (*backend.AskResponse, error) {
	f.got = ask
	return f.resp, f.err
}

func audioResponse(query, lang string) *backend.AskResponse {
	return &backend.AskResponse{
		AudioResponseBase64: base64.StdEncoding.EncodeToString([]byte("fake mpeg bytes")),
		OriginalQuery:       query,
		ResponseLanguage:    lang,
	}
}

func TestNewConsultationStartsAtLanguage(t *testing.T) {
	view := New(NewAudioStore()).View()

	if view.Step != StepLanguage {
		t.Errorf("Начальный шаг должен быть language, получен %s", view.Step)
	}
	if view.Language.Code != "en" {
		t.Errorf("Язык по умолчанию должен быть en, получен %s", view.Language.Code)
	}
	if !view.CanRecord() {
		t.Error("Запись должна быть доступна в начальном состоянии")
	}
}

func TestSelectLanguage(t *testing.T) {
	c := New(NewAudioStore())

	if err := c.SelectLanguage("gu"); err != nil {
		t.Fatalf("SelectLanguage вернул ошибку: %v", err)
	}

	view := c.View()
	if view.Step != StepQuestion || view.Language.Locale != "gu-IN" {
		t.Errorf("Неожиданное состояние: %+v", view)
	}

	if err := c.SelectLanguage("fr"); !errors.Is(err, ErrUnsupportedLanguage) {
		t.Errorf("Ожидалась ErrUnsupportedLanguage, получено %v", err)
	}
}

// Пока идет запись, повторный старт отклоняется, пока запись не завершится
func TestBeginRecordingDisablesStartUntilComplete(t *testing.T) {
	c := New(NewAudioStore())
	c.SelectLanguage("en")

	lang, err := c.BeginRecording()
	if err != nil {
		t.Fatalf("BeginRecording вернул ошибку: %v", err)
	}
	if lang.Prompt != "Now speak" {
		t.Errorf("Неожиданная подсказка: %s", lang.Prompt)
	}

	if c.View().CanRecord() {
		t.Error("Кнопка записи должна быть недоступна во время записи")
	}

	if _, err := c.BeginRecording(); !errors.Is(err, ErrBusy) {
		t.Errorf("Ожидалась ErrBusy, получено %v", err)
	}

	if _, err := c.Submit(context.Background(), "UklGRg==", &fakeAsker{resp: audioResponse("q", "en")}); err != nil {
		t.Fatalf("Submit вернул ошибку: %v", err)
	}

	if !c.View().CanRecord() {
		t.Error("После ответа запись снова должна быть доступна")
	}
}

func TestSubmitRequiresRecording(t *testing.T) {
	c := New(NewAudioStore())
	asker := &fakeAsker{resp: audioResponse("q", "en")}

	if _, err := c.Submit(context.Background(), "UklGRg==", asker); !errors.Is(err, ErrNotRecording) {
		t.Errorf("Ожидалась ErrNotRecording, получено %v", err)
	}
}

func TestSubmitSuccess(t *testing.T) {
	store := NewAudioStore()
	c := New(store)
	c.SelectLanguage("hi")
	c.BeginRecording()

	asker := &fakeAsker{resp: audioResponse("किराया कितना है", "hi")}
	view, err := c.Submit(context.Background(), "UklGRg==", asker)
	if err != nil {
		t.Fatalf("Submit вернул ошибку: %v", err)
	}

	if asker.got.Language != "hi" || asker.got.AudioBase64 != "UklGRg==" {
		t.Errorf("Неожиданный запрос к бэкенду: %+v", asker.got)
	}

	if view.Step != StepResponse {
		t.Errorf("Ожидался шаг response, получен %s", view.Step)
	}
	if view.LastQuery != "किराया कितना है" {
		t.Errorf("LastQuery не совпадает: %s", view.LastQuery)
	}
	if !strings.HasPrefix(view.AudioURL, AudioPathPrefix) {
		t.Errorf("AudioURL должен начинаться с %s, получен %s", AudioPathPrefix, view.AudioURL)
	}

	if len(view.Conversation) != 2 {
		t.Fatalf("Ожидалось 2 реплики, получено %d", len(view.Conversation))
	}
	if view.Conversation[0].Type != ItemUser || view.Conversation[1].Type != ItemAI {
		t.Errorf("Неожиданный порядок реплик: %+v", view.Conversation)
	}
	if view.Conversation[1].AudioURL != view.AudioURL {
		t.Errorf("Реплика AI должна ссылаться на аудио ответа")
	}

	if store.Len() != 1 {
		t.Errorf("В хранилище должен быть 1 клип, получено %d", store.Len())
	}
}

// Новый ответ отзывает предыдущий клип
func TestSubmitRevokesSupersededAudio(t *testing.T) {
	store := NewAudioStore()
	c := New(store)
	c.SelectLanguage("en")

	c.BeginRecording()
	first, _ := c.Submit(context.Background(), "a", &fakeAsker{resp: audioResponse("first", "en")})
	firstID := strings.TrimPrefix(first.AudioURL, AudioPathPrefix)

	c.NewQuestion()
	if _, ok := store.Get(firstID); ok {
		t.Error("NewQuestion должен отзывать текущий клип")
	}

	c.BeginRecording()
	second, _ := c.Submit(context.Background(), "b", &fakeAsker{resp: audioResponse("second", "en")})
	c.BeginRecording()
	if _, ok := store.Get(strings.TrimPrefix(second.AudioURL, AudioPathPrefix)); ok {
		t.Error("Начало новой записи должно отзывать прошлый клип")
	}

	if store.Len() != 0 {
		t.Errorf("Хранилище должно быть пустым, получено %d", store.Len())
	}
}

// История не ссылается на отозванные клипы, текст реплик сохраняется
func TestConversationDropsRevokedAudio(t *testing.T) {
	store := NewAudioStore()
	c := New(store)
	c.SelectLanguage("en")

	for _, query := range []string{"first", "second"} {
		c.BeginRecording()
		if _, err := c.Submit(context.Background(), "a", &fakeAsker{resp: audioResponse(query, "en")}); err != nil {
			t.Fatalf("Submit вернул ошибку: %v", err)
		}
	}

	view := c.View()
	if len(view.Conversation) != 4 {
		t.Fatalf("Ожидалось 4 реплики, получено %d", len(view.Conversation))
	}

	live := 0
	for _, item := range view.Conversation {
		if item.AudioURL == "" {
			continue
		}
		if _, ok := store.Get(strings.TrimPrefix(item.AudioURL, AudioPathPrefix)); !ok {
			t.Errorf("Реплика %q ссылается на отозванный клип %s", item.Text, item.AudioURL)
		}
		live++
	}
	if live != 1 || view.Conversation[3].AudioURL != view.AudioURL {
		t.Errorf("Аудио должно остаться только у последнего ответа: %+v", view.Conversation)
	}
	if view.Conversation[1].Text != "Response in English" {
		t.Errorf("Текст прошлого ответа должен сохраниться, получено %q", view.Conversation[1].Text)
	}

	c.NewQuestion()
	for _, item := range c.View().Conversation {
		if item.AudioURL != "" {
			t.Errorf("После NewQuestion реплика %q не должна ссылаться на аудио", item.Text)
		}
	}
}

// Сообщение бэкенда показывается без изменений
func TestSubmitBackendError(t *testing.T) {
	c := New(NewAudioStore())
	c.SelectLanguage("en")
	c.BeginRecording()

	asker := &fakeAsker{err: &backend.APIError{StatusCode: 400, Message: "No document loaded"}}
	view, err := c.Submit(context.Background(), "a", asker)
	if err == nil {
		t.Fatal("Ожидалась ошибка")
	}

	if view.Error != "No document loaded" {
		t.Errorf("Ожидалось сообщение бэкенда, получено %q", view.Error)
	}
	if view.Loading || view.Recording {
		t.Error("После ошибки флаги должны быть сброшены")
	}
	if view.Step != StepQuestion {
		t.Errorf("Шаг должен остаться question, получен %s", view.Step)
	}
}

func TestSubmitErrorMessages(t *testing.T) {
	testCases := []struct {
		name     string
		asker    *fakeAsker
		expected string
	}{
		{"сеть", &fakeAsker{err: errors.New("dial tcp: connection refused")}, MessageQueryFailed},
		{"битый base64", &fakeAsker{resp: &backend.AskResponse{AudioResponseBase64: "%%%"}}, MessageInvalidAudio},
	}

	for _, tc := range testCases {
		c := New(NewAudioStore())
		c.BeginRecording()
		view, _ := c.Submit(context.Background(), "a", tc.asker)
		if view.Error != tc.expected {
			t.Errorf("%s: ожидалось %q, получено %q", tc.name, tc.expected, view.Error)
		}
	}
}

// Ответ без аудио сохраняет вопрос, но не переводит на шаг response
func TestSubmitWithoutAudio(t *testing.T) {
	c := New(NewAudioStore())
	c.SelectLanguage("en")
	c.BeginRecording()

	view, err := c.Submit(context.Background(), "a", &fakeAsker{resp: &backend.AskResponse{OriginalQuery: "hello"}})
	if err != nil {
		t.Fatalf("Submit вернул ошибку: %v", err)
	}

	if view.Step != StepQuestion || view.LastQuery != "hello" || view.AudioURL != "" {
		t.Errorf("Неожиданное состояние: %+v", view)
	}
}

func TestCancelRecording(t *testing.T) {
	c := New(NewAudioStore())
	c.BeginRecording()
	c.CancelRecording(MessageMicrophoneDenied)

	view := c.View()
	if view.Recording {
		t.Error("Запись должна быть остановлена")
	}
	if view.Error != MessageMicrophoneDenied {
		t.Errorf("Неожиданная ошибка: %q", view.Error)
	}
}

func TestManager(t *testing.T) {
	manager := NewManager(NewAudioStore())

	a := manager.Get("session-a")
	if manager.Get("session-a") != a {
		t.Error("Get должен возвращать ту же консультацию для той же сессии")
	}

	a.BeginRecording()
	a.Submit(context.Background(), "x", &fakeAsker{resp: audioResponse("q", "en")})
	if manager.Audio().Len() != 1 {
		t.Fatalf("Ожидался 1 клип, получено %d", manager.Audio().Len())
	}

	manager.Drop("session-a")
	if manager.Len() != 0 {
		t.Errorf("После Drop консультаций быть не должно, получено %d", manager.Len())
	}
	if manager.Audio().Len() != 0 {
		t.Errorf("Drop должен отзывать аудио, осталось %d", manager.Audio().Len())
	}

	manager.Drop("unknown")
}

// Expire удаляет простаивающие консультации вместе с их аудио
func TestManagerExpire(t *testing.T) {
	manager := NewManager(NewAudioStore())

	idle := manager.Get("idle")
	idle.BeginRecording()
	idle.Submit(context.Background(), "x", &fakeAsker{resp: audioResponse("q", "en")})
	url := idle.View().AudioURL

	cutoff := time.Now()
	time.Sleep(5 * time.Millisecond)
	manager.Get("active")

	if n := manager.Expire(cutoff.Add(-time.Minute)); n != 0 {
		t.Errorf("Свежие консультации не должны удаляться, удалено %d", n)
	}

	if n := manager.Expire(cutoff); n != 1 {
		t.Fatalf("Ожидалось удаление 1 консультации, удалено %d", n)
	}
	if manager.Len() != 1 {
		t.Errorf("Должна остаться 1 консультация, получено %d", manager.Len())
	}
	if _, ok := manager.Audio().Get(strings.TrimPrefix(url, AudioPathPrefix)); ok {
		t.Error("Клип просроченной консультации должен быть отозван")
	}
	if manager.Audio().Len() != 0 {
		t.Errorf("Хранилище должно быть пустым, получено %d", manager.Audio().Len())
	}

	if manager.Get("idle") == idle {
		t.Error("После Expire сессия должна получить новую консультацию")
	}
}

// Ответ, пришедший после закрытия консультации, не попадает в хранилище
func TestSubmitAfterClose(t *testing.T) {
	store := NewAudioStore()
	c := New(store)
	c.BeginRecording()

	asker := &closingAsker{c: c, resp: audioResponse("q", "en")}
	if _, err := c.Submit(context.Background(), "x", asker); err != nil {
		t.Fatalf("Submit вернул ошибку: %v", err)
	}
	if store.Len() != 0 {
		t.Errorf("Закрытая консультация не должна хранить клипы, получено %d", store.Len())
	}
}

// closingAsker закрывает консультацию, пока запрос в полете
type closingAsker struct {
	c    *Consultation
	resp *backend.AskResponse
}

func (a *closingAsker) Ask(ctx context.Context, ask backend.AskRequest) (*backend.AskResponse, error) {
	a.c.Close()
	return a.resp, nil
}

func BenchmarkLookupLanguage(b *testing.B) {
	for i := 0; i < b.N; i++ {
		LookupLanguage("gu")
	}
}
