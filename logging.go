package main

import (
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// Общий логгер приложения; main заменяет его на logfmt
var logger = log.NewNopLogger()

func newLogger() log.Logger {
	var l log.Logger
	{
		l = log.NewLogfmtLogger(os.Stderr)
		l = log.NewSyncLogger(l)
		l = level.NewFilter(l, level.AllowInfo())
		l = log.With(l,
			"svc", "legal-voice",
			"ts", log.DefaultTimestampUTC,
			"caller", log.DefaultCaller,
		)
	}
	return l
}

// requestLogger пишет в лог каждый запрос
func requestLogger(l log.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		logf := level.Info
		if status >= 500 {
			logf = level.Error
		}

		logf(l).Log(
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"latency", time.Since(start),
			"ip", c.ClientIP(),
		)
	}
}
