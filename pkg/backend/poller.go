package backend

import (
	"context"
	"time"
)

// Сообщения страницы ожидания
const (
	MessageAnalyzing = "Analyzing your document..."
	MessageWaiting   = "Waiting for upload to complete..."
	MessageLoaded    = "Document uploaded successfully. Redirecting..."
)

// StatusSource источник статуса документа (обычно *Client)
type StatusSource interface {
	Status(ctx context.Context) (*DocumentStatus, error)
}

// Update одно наблюдение поллера
type Update struct {
	Status  *DocumentStatus `json:"status,omitempty"`
	Message string          `json:"message"`
	Err     error           `json:"-"`
}

// Poller опрашивает /status с фиксированным интервалом, пока документ не загрузится
type Poller struct {
	Source   StatusSource
	Interval time.Duration
}

// NewPoller создает поллер; интервал по умолчанию 3 секунды
func NewPoller(source StatusSource, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	return &Poller{Source: source, Interval: interval}
}

// Check выполняет один опрос
func (p *Poller) Check(ctx context.Context) Update {
	status, err := p.Source.Status(ctx)
	if err != nil {
		return Update{Message: MessageWaiting, Err: err}
	}
	if status.DocumentLoaded {
		return Update{Status: status, Message: MessageLoaded}
	}
	return Update{Status: status, Message: MessageAnalyzing}
}

// Wait опрашивает статус, пока document_loaded не станет true или не отменится ctx.
// Первый опрос происходит через Interval, как у setInterval в браузере.
// Ошибка опроса не прерывает ожидание.
func (p *Poller) Wait(ctx context.Context, onUpdate func(Update)) (*DocumentStatus, error) {
	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			update := p.Check(ctx)
			if onUpdate != nil {
				onUpdate(update)
			}
			if update.Status != nil && update.Status.DocumentLoaded {
				return update.Status, nil
			}
		}
	}
}
