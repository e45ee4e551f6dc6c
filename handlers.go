package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"legal-voice/pkg/account"
	"legal-voice/pkg/backend"
	"legal-voice/pkg/consult"
	"legal-voice/pkg/session"

	"github.com/gin-gonic/gin"
	"github.com/go-kit/log/level"
	"github.com/gorilla/websocket"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
)

// Сообщения для пользователя
const (
	MessageSelectFile   = "Please select a PDF file first"
	MessagePDFOnly      = "Please select a PDF file only"
	MessageUploadFailed = "Upload failed. Please try again."
	MessageStatusFailed = "Failed to fetch status"
	MessageClearFailed  = "Failed to clear session"
	MessageLoginFailed  = "Login failed. Please try again."
	MessageSignupFailed = "Signup failed. Please try again."
)

const version = "1.0.0"

// Главная страница: форма загрузки
func (app *application) handleHome(c *gin.Context) {
	app.renderHome(c, http.StatusOK, "")
}

func (app *application) renderHome(c *gin.Context, status int, message string) {
	c.HTML(status, "index.html", HomePage{
		Error:    message,
		Features: features,
		Document: app.loadDocument(sessionID(c)),
	})
}

// Загрузка PDF: проверка, отправка на бэкенд, запись в сессию
func (app *application) handleFileUpload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, app.config.MaxFileSize+1<<20)

	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			app.renderHome(c, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("File is too large (max %d MB)", app.config.MaxFileSize>>20))
			return
		}
		app.renderHome(c, http.StatusBadRequest, MessageSelectFile)
		return
	}

	if header.Size > app.config.MaxFileSize {
		app.renderHome(c, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("File is too large (max %d MB)", app.config.MaxFileSize>>20))
		return
	}

	file, err := header.Open()
	if err != nil {
		level.Error(logger).Log("msg", "Не удалось открыть файл", "file", header.Filename, "err", err)
		app.renderHome(c, http.StatusBadRequest, MessageSelectFile)
		return
	}
	defer file.Close()

	if !isPDF(header, file) {
		level.Info(logger).Log("msg", "Отклонен не-PDF файл", "file", header.Filename, "content_type", header.Header.Get("Content-Type"))
		app.renderHome(c, http.StatusBadRequest, MessagePDFOnly)
		return
	}

	level.Info(logger).Log("msg", "Получен файл", "file", header.Filename, "size", header.Size)

	resp, err := app.backend.UploadDocument(c.Request.Context(), header.Filename, file)
	if err != nil {
		level.Error(logger).Log("msg", "Ошибка отправки документа на бэкенд", "file", header.Filename, "err", err)
		app.renderHome(c, http.StatusBadGateway, backendMessage(err, MessageUploadFailed))
		return
	}

	doc := session.UploadedDocument{
		Filename:    header.Filename,
		UploadedAt:  time.Now().UTC(),
		Message:     resp.Message,
		ProcessedAt: resp.ProcessedAt,
	}
	if err := app.sessions.Set(sessionID(c), session.KeyUploadedDocument, doc); err != nil {
		level.Error(logger).Log("msg", "Не удалось сохранить документ в сессии", "err", err)
	}

	level.Info(logger).Log("msg", "Документ отправлен на обработку", "file", header.Filename)
	c.Redirect(http.StatusSeeOther, "/processing")
}

// Страница ожидания: один опрос сразу, дальше websocket или meta refresh
func (app *application) handleProcessing(c *gin.Context) {
	sid := sessionID(c)

	update := app.poller.Check(c.Request.Context())
	if update.Status != nil && update.Status.DocumentLoaded {
		app.markProcessed(sid, update.Status)
		c.Redirect(http.StatusFound, "/ask")
		return
	}
	if update.Err != nil {
		level.Warn(logger).Log("msg", "Ошибка опроса статуса", "err", update.Err)
	}

	page := ProcessingPage{
		Message:     update.Message,
		PollSeconds: app.pollSeconds(),
	}
	if doc := app.loadDocument(sid); doc != nil {
		page.Filename = doc.Filename
	}

	c.HTML(http.StatusOK, "processing.html", page)
}

// Websocket: сервер сам опрашивает /status и отправляет каждое наблюдение
func (app *application) handleStatusSocket(c *gin.Context) {
	conn, err := app.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		level.Warn(logger).Log("msg", "Не удалось открыть websocket", "err", err)
		return
	}
	defer conn.Close()

	// дедлайны http.Server остаются на соединении после hijack
	conn.SetReadDeadline(time.Time{})

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// чтение нужно, чтобы заметить закрытие вкладки
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	status, err := app.poller.Wait(ctx, func(u backend.Update) {
		event := StatusEvent{Message: u.Message, Status: u.Status}
		if u.Status != nil && u.Status.DocumentLoaded {
			event.Loaded = true
			event.Redirect = "/ask"
		}

		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(event); err != nil {
			cancel()
		}
	})
	if err != nil {
		return
	}

	app.markProcessed(sessionID(c), status)
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
}

// JSON статус документа для скриптов
func (app *application) handleStatus(c *gin.Context) {
	status, err := app.backend.Status(c.Request.Context())
	if err != nil {
		level.Warn(logger).Log("msg", "Ошибка проверки статуса", "err", err)
		sendJSONError(c.Writer, backendMessage(err, MessageStatusFailed), http.StatusBadGateway)
		return
	}

	sendJSONResponse(c.Writer, APIResponse{
		Status: "success",
		Data:   status,
	})
}

// Сводка по документу
func (app *application) handleStep2(c *gin.Context) {
	page := Step2Page{
		Document:    app.loadDocument(sessionID(c)),
		PollSeconds: app.pollSeconds(),
	}

	status, err := app.backend.Status(c.Request.Context())
	if err != nil {
		level.Warn(logger).Log("msg", "Ошибка проверки статуса", "err", err)
		page.Error = backendMessage(err, MessageStatusFailed)
	}
	page.Status = status

	c.HTML(http.StatusOK, "step2.html", page)
}

// Очистка сессии на бэкенде; при ошибке остаемся на странице
func (app *application) handleStep2Clear(c *gin.Context) {
	sid := sessionID(c)

	if err := app.backend.Clear(c.Request.Context()); err != nil {
		level.Error(logger).Log("msg", "Ошибка очистки сессии на бэкенде", "err", err)
		c.HTML(http.StatusBadGateway, "step2.html", Step2Page{
			Document: app.loadDocument(sid),
			Error:    backendMessage(err, MessageClearFailed),
		})
		return
	}

	app.dropSession(sid)
	c.HTML(http.StatusOK, "step2.html", Step2Page{Cleared: true})
}

// Страница консультации; пока документ не загружен, отправляем на ожидание
func (app *application) handleAsk(c *gin.Context) {
	status, err := app.backend.Status(c.Request.Context())
	if err != nil || !status.DocumentLoaded {
		if err != nil {
			level.Warn(logger).Log("msg", "Ошибка проверки статуса", "err", err)
		}
		c.Redirect(http.StatusFound, "/processing")
		return
	}

	sid := sessionID(c)
	cons := app.consults.Get(sid)

	// перезагрузка страницы обрывает запись в браузере
	if cons.View().Recording {
		cons.CancelRecording("")
	}

	c.HTML(http.StatusOK, "ask.html", AskPage{
		View:      cons.View(),
		Languages: consult.Languages,
		Document:  app.loadDocument(sid),
	})
}

func (app *application) handleSelectLanguage(c *gin.Context) {
	sid := sessionID(c)
	cons := app.consults.Get(sid)

	code := c.PostForm("language")
	if err := cons.SelectLanguage(code); err != nil {
		view := cons.View()
		view.Error = "Unsupported language: " + code
		c.HTML(http.StatusBadRequest, "ask.html", AskPage{
			View:      view,
			Languages: consult.Languages,
			Document:  app.loadDocument(sid),
		})
		return
	}
	c.Redirect(http.StatusSeeOther, "/ask")
}

// Начало записи; второй старт до завершения отклоняется
func (app *application) handleBeginRecording(c *gin.Context) {
	lang, err := app.consults.Get(sessionID(c)).BeginRecording()
	if errors.Is(err, consult.ErrBusy) {
		sendJSONError(c.Writer, "Recording already in progress", http.StatusConflict)
		return
	}

	sendJSONResponse(c.Writer, APIResponse{
		Status: "success",
		Data:   RecordStart{Prompt: lang.Prompt, Locale: lang.Locale},
	})
}

// Браузер не получил доступ к микрофону
func (app *application) handleCancelRecording(c *gin.Context) {
	cons := app.consults.Get(sessionID(c))
	cons.CancelRecording(consult.MessageMicrophoneDenied)

	sendJSONResponse(c.Writer, APIResponse{
		Status: "success",
		Data:   newConsultationState(cons.View()),
	})
}

// Записанный вопрос: отправка на бэкенд и сохранение аудиоответа
func (app *application) handleQuery(c *gin.Context) {
	cons := app.consults.Get(sessionID(c))

	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		cons.CancelRecording(consult.MessageQueryFailed)
		sendJSONError(c.Writer, consult.MessageQueryFailed, http.StatusBadRequest)
		return
	}

	view, err := cons.Submit(c.Request.Context(), req.AudioBase64, app.backend)
	switch {
	case errors.Is(err, consult.ErrNotRecording):
		sendJSONError(c.Writer, "No recording in progress", http.StatusConflict)
		return
	case err != nil:
		level.Error(logger).Log("msg", "Ошибка голосового запроса", "language", view.Language.Code, "err", err)
		sendJSONError(c.Writer, view.Error, http.StatusBadGateway)
		return
	}

	level.Info(logger).Log("msg", "Получен ответ на вопрос", "language", view.Language.Code, "audio_sec", view.AudioDuration.Seconds())
	sendJSONResponse(c.Writer, APIResponse{
		Status: "success",
		Data:   newConsultationState(view),
	})
}

func (app *application) handleNewQuestion(c *gin.Context) {
	app.consults.Get(sessionID(c)).NewQuestion()
	c.Redirect(http.StatusSeeOther, "/ask")
}

// Отдает сохраненный аудиоответ
func (app *application) handleAudio(c *gin.Context) {
	clip, ok := app.consults.Audio().Get(c.Param("id"))
	if !ok {
		sendJSONError(c.Writer, "Audio not found", http.StatusNotFound)
		return
	}

	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, clip.MIMEType, clip.Data)
}

// Start Over: очистка на бэкенде без ожидания, всегда на главную
func (app *application) handleStartOver(c *gin.Context) {
	app.background.Add(1)
	go func() {
		defer app.background.Done()
		if err := app.backend.ClearDocument(context.Background()); err != nil {
			level.Warn(logger).Log("msg", "Не удалось очистить документ на бэкенде", "err", err)
		}
	}()

	app.dropSession(sessionID(c))
	c.Redirect(http.StatusSeeOther, "/")
}

func (app *application) handleLoginPage(c *gin.Context) {
	c.HTML(http.StatusOK, "login.html", LoginPage{})
}

func (app *application) handleLogin(c *gin.Context) {
	var form account.LoginForm
	if err := c.ShouldBind(&form); err != nil {
		c.HTML(http.StatusBadRequest, "login.html", LoginPage{Error: account.MessageInvalidForm, Email: form.Email})
		return
	}

	if err := app.accounts.Login(c.Request.Context(), form); err != nil {
		c.HTML(http.StatusInternalServerError, "login.html", LoginPage{Error: MessageLoginFailed, Email: form.Email})
		return
	}
	c.Redirect(http.StatusSeeOther, "/")
}

func (app *application) handleSignupPage(c *gin.Context) {
	c.HTML(http.StatusOK, "signup.html", SignupPage{
		Form:      account.SignupForm{UserType: account.UserIndividual},
		UserTypes: account.UserTypes,
	})
}

func (app *application) handleSignup(c *gin.Context) {
	var form account.SignupForm

	message := ""
	if err := c.ShouldBind(&form); err != nil {
		message = account.MessageInvalidForm
	} else if err := app.accounts.Signup(c.Request.Context(), form); err != nil {
		message = MessageSignupFailed
		if errors.Is(err, account.ErrPasswordMismatch) || errors.Is(err, account.ErrTermsRequired) {
			message = err.Error()
		}
	}

	if message != "" {
		form.Password, form.ConfirmPassword = "", ""
		c.HTML(http.StatusBadRequest, "signup.html", SignupPage{
			Error:     message,
			Form:      form,
			UserTypes: account.UserTypes,
		})
		return
	}
	c.Redirect(http.StatusSeeOther, "/")
}

// Проверка здоровья сервиса и доступности бэкенда
func (app *application) handleHealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	backendState := "reachable"
	if err := app.backend.Ping(ctx); err != nil {
		level.Warn(logger).Log("msg", "Бэкенд недоступен", "err", err)
		status = "degraded"
		backendState = "unreachable"
	}

	sessions, err := app.sessions.Count()
	if err != nil {
		level.Error(logger).Log("msg", "Не удалось посчитать сессии", "err", err)
	}

	osName, cpuName := hostInfo()
	health := map[string]interface{}{
		"status":    status,
		"message":   "NyaySetu работает",
		"timestamp": time.Now().Format(time.RFC3339),
		"version":   version,
		"backend": map[string]interface{}{
			"url":    app.config.BackendURL,
			"status": backendState,
		},
		"host": map[string]interface{}{
			"os":  osName,
			"cpu": cpuName,
		},
		"sessions":      sessions,
		"consultations": app.consults.Len(),
		"audio_clips":   app.consults.Audio().Len(),
	}

	sendJSONResponse(c.Writer, APIResponse{
		Status: "success",
		Data:   health,
	})
}

func hostInfo() (string, string) {
	hostStat, _ := host.Info()
	cpuStat, _ := cpu.Info()

	osName := "Unknown OS"
	if hostStat != nil {
		osName = hostStat.OS + " " + hostStat.Platform
	}

	cpuName := "Unknown CPU"
	if len(cpuStat) > 0 {
		cpuName = cpuStat[0].ModelName
	}

	return osName, cpuName
}

// pollSeconds интервал meta refresh, не меньше секунды
func (app *application) pollSeconds() int {
	seconds := int(app.poller.Interval / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	return seconds
}

func (app *application) loadDocument(sid string) *session.UploadedDocument {
	var doc session.UploadedDocument
	err := app.sessions.Get(sid, session.KeyUploadedDocument, &doc)
	if errors.Is(err, session.ErrNotFound) {
		return nil
	}
	if err != nil {
		level.Error(logger).Log("msg", "Ошибка чтения сессии", "err", err)
		return nil
	}
	return &doc
}

// markProcessed дописывает в сессию время обработки документа
func (app *application) markProcessed(sid string, status *backend.DocumentStatus) {
	doc := app.loadDocument(sid)
	if doc == nil {
		doc = &session.UploadedDocument{Filename: status.Filename, UploadedAt: time.Now().UTC()}
	}
	if status.ProcessedAt != "" {
		doc.ProcessedAt = status.ProcessedAt
	}

	if err := app.sessions.Set(sid, session.KeyUploadedDocument, doc); err != nil {
		level.Error(logger).Log("msg", "Не удалось сохранить документ в сессии", "err", err)
	}
}

func (app *application) dropSession(sid string) {
	if err := app.sessions.Drop(sid); err != nil {
		level.Error(logger).Log("msg", "Не удалось удалить сессию", "err", err)
	}
	app.consults.Drop(sid)
}

// backendMessage текст ошибки бэкенда как есть, иначе fallback
func backendMessage(err error, fallback string) string {
	var apiErr *backend.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallback
}

// isPDF принимает файл по типу, расширению или сигнатуре %PDF-
func isPDF(header *multipart.FileHeader, file multipart.File) bool {
	if header.Header.Get("Content-Type") == "application/pdf" || isValidFileType(header.Filename) {
		return true
	}

	magic := make([]byte, 5)
	n, _ := io.ReadFull(file, magic)
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return false
	}
	return bytes.Equal(magic[:n], []byte("%PDF-"))
}

func isValidFileType(filename string) bool {
	return strings.ToLower(filepath.Ext(filename)) == ".pdf"
}

func sendJSONResponse(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		level.Error(logger).Log("msg", "Ошибка кодирования JSON", "err", err)
	}
}

func sendJSONError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := APIResponse{
		Status:  "error",
		Message: message,
	}

	json.NewEncoder(w).Encode(response)
}
