package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// Client клиент внешнего бэкенда (разбор документов и синтез речи)
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// Config настройки подключения к бэкенду
type Config struct {
	BaseURL string
	Timeout int // в секундах
}

// APIError ответ бэкенда с кодом вне 2xx
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return e.Message
}

// NewClient создает клиент бэкенда
func NewClient(config Config) *Client {
	timeout := 30
	if config.Timeout > 0 {
		timeout = config.Timeout
	}

	return &Client{
		BaseURL: strings.TrimRight(config.BaseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: time.Duration(timeout) * time.Second,
		},
	}
}

// UploadDocument отправляет PDF на обработку (multipart, поле file)
func (c *Client) UploadDocument(ctx context.Context, fileName string, file io.Reader) (*UploadResponse, error) {
	var buffer bytes.Buffer
	writer := multipart.NewWriter(&buffer)

	part, err := writer.CreateFormFile("file", fileName)
	if err != nil {
		return nil, fmt.Errorf("не удалось создать поле для файла: %w", err)
	}

	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("не удалось скопировать файл: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("ошибка закрытия writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/upload-document", &buffer)
	if err != nil {
		return nil, fmt.Errorf("не удалось создать запрос: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var result UploadResponse
	if err := c.do(req, "Upload failed: %d", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Status возвращает состояние обработки документа
func (c *Client) Status(ctx context.Context) (*DocumentStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/status", nil)
	if err != nil {
		return nil, fmt.Errorf("не удалось создать запрос: %w", err)
	}

	var status DocumentStatus
	if err := c.do(req, "Status check failed: %d", &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Ask отправляет записанный вопрос и получает аудиоответ
func (c *Client) Ask(ctx context.Context, ask AskRequest) (*AskResponse, error) {
	jsonData, err := json.Marshal(ask)
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации запроса: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/ask", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("не удалось создать запрос: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	var result AskResponse
	if err := c.do(req, "Error: %d", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ClearDocument сбрасывает загруженный документ (кнопка Start Over)
func (c *Client) ClearDocument(ctx context.Context) error {
	return c.post(ctx, "/clear-document", "Clear failed: %d")
}

// Clear сбрасывает сессию бэкенда (страница статуса)
func (c *Client) Clear(ctx context.Context) error {
	return c.post(ctx, "/clear", "Clear failed: %d")
}

// Ping проверяет доступность бэкенда
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Status(ctx)
	return err
}

func (c *Client) post(ctx context.Context, path, failure string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("не удалось создать запрос: %w", err)
	}
	return c.do(req, failure, nil)
}

// do выполняет запрос; failure - формат сообщения для ответа без detail/error,
// out == nil означает, что тело ответа не нужно
func (c *Client) do(req *http.Request, failure string, out interface{}) error {
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("ошибка отправки запроса: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("ошибка чтения ответа: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    ErrorMessage(body, fmt.Sprintf(failure, resp.StatusCode)),
		}
	}

	if out == nil {
		return nil
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("ошибка парсинга ответа бэкенда: %w", err)
	}
	return nil
}

// ErrorMessage достает текст ошибки из тела ответа: detail, затем error
func ErrorMessage(body []byte, fallback string) string {
	var data ErrorBody
	if err := json.Unmarshal(body, &data); err != nil {
		return fallback
	}

	if data.Detail != "" {
		return data.Detail
	}
	if data.Error != "" {
		return data.Error
	}
	return fallback
}
