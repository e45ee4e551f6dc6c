// Package relay пробрасывает запросы браузера на фиксированный адрес бэкенда.
package relay

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// ErrorBody тело ответа при любой ошибке проксирования
type ErrorBody struct {
	Error string `json:"error"`
}

// Relay перенаправляет метод, authorization и JSON тело на BaseURL + путь
type Relay struct {
	BaseURL    string
	HTTPClient *http.Client
	logger     log.Logger
}

// New создает релей; client == nil означает http.DefaultClient
func New(baseURL string, client *http.Client, logger log.Logger) *Relay {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Relay{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: client,
		logger:     logger,
	}
}

// Handle обработчик для маршрута вида /api/proxy/*path
func (rl *Relay) Handle(c *gin.Context) {
	rl.Forward(c.Writer, c.Request, c.Param("path"))
}

// TargetURL склеивает адрес бэкенда и захваченный путь
func (rl *Relay) TargetURL(path, rawQuery string) string {
	target := rl.BaseURL + "/" + strings.TrimLeft(path, "/")
	if rawQuery != "" {
		target += "?" + rawQuery
	}
	return target
}

// Forward выполняет один проброс. Повторов нет: любая ошибка дает 500.
func (rl *Relay) Forward(w http.ResponseWriter, r *http.Request, path string) {
	targetURL := rl.TargetURL(path, r.URL.RawQuery)
	level.Info(rl.logger).Log("msg", "проксируем запрос", "method", r.Method, "target", targetURL)

	if err := rl.forward(w, r, targetURL); err != nil {
		level.Error(rl.logger).Log("msg", "ошибка проксирования", "target", targetURL, "err", err)
		writeJSON(w, http.StatusInternalServerError, ErrorBody{Error: "Proxy failed"})
	}
}

func (rl *Relay) forward(w http.ResponseWriter, r *http.Request, targetURL string) error {
	var body io.Reader
	if hasBody(r.Method) {
		payload, err := encodeBody(r.Body)
		if err != nil {
			return err
		}
		if payload != nil {
			body = bytes.NewReader(payload)
		}
	}

	req, err := http.NewRequestWithContext(r.Context(), r.Method, targetURL, body)
	if err != nil {
		return fmt.Errorf("не удалось создать запрос: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if auth := r.Header.Get("Authorization"); auth != "" {
		req.Header.Set("Authorization", auth)
	}

	resp, err := rl.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("бэкенд недоступен: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("ошибка чтения ответа: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	if strings.Contains(contentType, "application/json") {
		var parsed interface{}
		if err := json.Unmarshal(data, &parsed); err != nil {
			return fmt.Errorf("бэкенд вернул некорректный JSON: %w", err)
		}
		writeJSON(w, resp.StatusCode, parsed)
		return nil
	}

	if contentType == "" {
		contentType = "text/plain; charset=utf-8"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(resp.StatusCode)
	w.Write(data)
	return nil
}

func hasBody(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	}
	return false
}

// encodeBody сериализует входящее тело в JSON: JSON остается JSON,
// прочий текст уходит строкой, пустое тело не отправляется
func encodeBody(r io.Reader) ([]byte, error) {
	if r == nil {
		return nil, nil
	}

	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("не удалось прочитать тело запроса: %w", err)
	}

	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}

	if json.Valid(raw) {
		var compact bytes.Buffer
		if err := json.Compact(&compact, raw); err != nil {
			return nil, err
		}
		return compact.Bytes(), nil
	}

	return json.Marshal(string(raw))
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
