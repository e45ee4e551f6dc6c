package main

import (
	"net/http"
	"path/filepath"

	"legal-voice/pkg/session"

	"github.com/gin-gonic/gin"
	"github.com/go-kit/log/level"
)

// Настраиваем все роуты
func setupRoutes(app *application) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))
	router.MaxMultipartMemory = app.config.MaxFileSize

	router.LoadHTMLGlob(filepath.Join(app.config.TemplatesDir, "*.html"))
	router.Static("/static", app.config.StaticDir)

	// прокси к бэкенду, без cookie сессии
	router.Any("/api/proxy/*path", app.relay.Handle)
	router.GET("/health", app.handleHealthCheck)

	pages := router.Group("/", app.sessionMiddleware())
	{
		pages.GET("/", app.handleHome)
		pages.POST("/upload", app.handleFileUpload)
		pages.GET("/processing", app.handleProcessing)
		pages.GET("/ws/status", app.handleStatusSocket)
		pages.GET("/api/status", app.handleStatus)

		pages.GET("/step2", app.handleStep2)
		pages.POST("/step2/clear", app.handleStep2Clear)

		pages.GET("/ask", app.handleAsk)
		pages.POST("/ask/language", app.handleSelectLanguage)
		pages.POST("/ask/record", app.handleBeginRecording)
		pages.POST("/ask/cancel", app.handleCancelRecording)
		pages.POST("/ask/query", app.handleQuery)
		pages.POST("/ask/new", app.handleNewQuestion)
		pages.GET("/audio/:id", app.handleAudio)

		pages.POST("/start-over", app.handleStartOver)

		pages.GET("/login", app.handleLoginPage)
		pages.POST("/login", app.handleLogin)
		pages.GET("/signup", app.handleSignupPage)
		pages.POST("/signup", app.handleSignup)
	}

	return router
}

const sessionKey = "session_id"

// sessionMiddleware выдает cookie сессии, если ее еще нет,
// и продлевает существующую
func (app *application) sessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := c.Cookie(session.CookieName)
		if err == nil && id != "" {
			if err := app.sessions.Touch(id); err != nil {
				level.Warn(logger).Log("msg", "Не удалось продлить сессию", "err", err)
			}
		} else {
			id = session.NewID()
			http.SetCookie(c.Writer, &http.Cookie{
				Name:     session.CookieName,
				Value:    id,
				Path:     "/",
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			})
		}
		c.Set(sessionKey, id)
		c.Next()
	}
}

func sessionID(c *gin.Context) string {
	return c.GetString(sessionKey)
}
