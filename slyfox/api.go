package slyfox

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/lmittmann/tint"
)

// API is a small, read-only status server for the bot.
type API struct {
	server *http.Server
	engine *gin.Engine
	logger *slog.Logger
	bot    *SlyFox
	config *APIConfig
}

type botStatus struct {
	Version             string `json:"version"`
	UptimeSeconds       int64  `json:"uptime_seconds"`
	DiscordConnected    bool   `json:"discord_connected"`
	MessagesHandled     int64  `json:"messages_handled"`
	CompletionsResolved int64  `json:"completions_resolved"`
	CompletionsFailed   int64  `json:"completions_failed"`
}

func newAPI(bot *SlyFox, config *APIConfig) *API {
	logger := slog.New(
		tint.NewHandler(
			defaultLogWriter, &tint.Options{
				Level:     config.LogLevel,
				AddSource: true,
			},
		),
	).With(loggerNameKey, "api")

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	if len(config.CORS.AllowOrigins) > 0 {
		corsConfig := cors.DefaultConfig()
		corsConfig.AllowOrigins = config.CORS.AllowOrigins
		corsConfig.MaxAge = config.CORS.MaxAge
		engine.Use(cors.New(corsConfig))
	}

	a := &API{
		engine: engine,
		logger: logger,
		bot:    bot,
		config: config,
	}

	api := engine.Group("/api")
	api.GET("/health", a.getHealth)
	api.GET("/status", a.getStatus)

	a.server = &http.Server{
		Addr:              config.Listen,
		Handler:           engine,
		ReadTimeout:       config.ReadTimeout,
		ReadHeaderTimeout: config.ReadHeaderTimeout,
		WriteTimeout:      config.WriteTimeout,
		IdleTimeout:       config.IdleTimeout,
	}

	return a
}

func (a *API) getHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (a *API) getStatus(c *gin.Context) {
	bot := a.bot
	var uptime time.Duration
	if !bot.startedAt.IsZero() {
		uptime = time.Since(bot.startedAt)
	}
	c.JSON(
		http.StatusOK, botStatus{
			Version:             Version,
			UptimeSeconds:       int64(uptime.Seconds()),
			DiscordConnected:    bot.discord.connected.Load(),
			MessagesHandled:     bot.metricMessagesHandled.Load(),
			CompletionsResolved: bot.metricCompletionsResolved.Load(),
			CompletionsFailed:   bot.metricCompletionsFailed.Load(),
		},
	)
}

// Serve starts the API server, blocking until it stops.
func (a *API) Serve() error {
	a.logger.Info("starting api server", "listen", a.config.Listen)
	return a.server.ListenAndServe()
}

// Shutdown gracefully shuts down the API server.
func (a *API) Shutdown(ctx context.Context) error {
	return a.server.Shutdown(ctx)
}
