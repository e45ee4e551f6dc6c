package main

import (
	"context"
	"time"

	"github.com/go-kit/log/level"
)

const sweepInterval = time.Minute

// runSweeper периодически удаляет простаивающие сессии до отмены ctx
func (app *application) runSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	level.Info(logger).Log("msg", "Уборка сессий запущена", "interval", interval, "ttl", app.config.SessionTTL)

	for {
		select {
		case <-ctx.Done():
			level.Info(logger).Log("msg", "Уборка сессий остановлена")
			return
		case now := <-ticker.C:
			app.sweepIdle(now)
		}
	}
}

// sweepIdle закрывает консультации и удаляет сессии без обращений дольше TTL
func (app *application) sweepIdle(now time.Time) {
	cutoff := now.Add(-app.config.SessionTTL)

	consultations := app.consults.Expire(cutoff)

	sessions, err := app.sessions.Expire(cutoff)
	if err != nil {
		level.Error(logger).Log("msg", "Ошибка удаления просроченных сессий", "err", err)
	}

	if consultations > 0 || sessions > 0 {
		level.Info(logger).Log("msg", "Удалены простаивающие сессии", "consultations", consultations, "sessions", sessions)
	}
}
