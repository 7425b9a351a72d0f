package slyfox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
	"gorm.io/gorm"
)

var (
	// When building, set these like:
	// -ldflags "-X github.com/slyfoxbot/slyfox/slyfox.Version=$$(date +'%Y%m%d')"

	Version   = "dev"
	CommitSHA = "unknown"
	BuildTime = "unknown"
)

var defaultLogWriter io.Writer = os.Stdout

// SlyFox wires the bot together: the Discord connection, the
// classifier and handler registry, the completion client, the
// conversation store and the status API.
type SlyFox struct {
	config *Config

	logger     *slog.Logger
	logHandler slog.Handler

	db            *gorm.DB
	conversations *ConversationStore
	identities    *IdentityRegistry
	classifier    *Classifier
	discord       *Discord
	openai        *OpenAI
	api           *API

	handlers map[CommandKind]commandHandler

	startedAt time.Time

	metricMessagesHandled     atomic.Int64
	metricCompletionsResolved atomic.Int64
	metricCompletionsFailed   atomic.Int64
}

// New validates the config and wires up a SlyFox instance. The
// database connection and gateway session are only established
// in Run.
func New(config *Config) (*SlyFox, error) {
	var errs []error

	switch config.DatabaseType {
	case dbTypeSQLite, dbTypePostgres:
		//
	default:
		errs = append(
			errs,
			errors.New("invalid database type (must be 'sqlite' or 'postgres')"),
		)
	}

	if config.HTTPClient == nil {
		config.HTTPClient = http.DefaultClient
	}

	b := &SlyFox{config: config}

	b.logHandler = tint.NewHandler(
		defaultLogWriter, &tint.Options{
			Level:     config.LogLevel,
			AddSource: true,
		},
	)
	b.logger = slog.New(b.logHandler)
	slog.SetDefault(b.logger)

	b.identities = NewIdentityRegistry(config.Bot)
	b.classifier = NewClassifier(config.Bot.CommandPrefix)

	config.Discord.httpClient = config.HTTPClient
	disc, err := newDiscord(config.Discord)
	if err != nil {
		errs = append(errs, err)
	}

	discordgo.Logger = discordgoLoggerFunc(
		context.Background(),
		tint.NewHandler(
			defaultLogWriter, &tint.Options{
				Level:     config.Discord.DiscordGoLogLevel,
				AddSource: true,
			},
		).WithAttrs([]slog.Attr{slog.String(loggerNameKey, "discordgo")}),
	)

	if disc != nil {
		disc.logger = slog.New(
			tint.NewHandler(
				defaultLogWriter, &tint.Options{
					Level:     config.Discord.LogLevel,
					AddSource: true,
				},
			),
		).With(loggerNameKey, "discord")
		disc.bot = b
		b.discord = disc
	}

	b.api = newAPI(b, config.API)

	return b, errors.Join(errs...)
}

// Run opens the database and the gateway connection, starts the status
// API, and blocks until the given context is canceled or the API
// server stops.
func (b *SlyFox) Run(ctx context.Context) error {
	setupCtx, setupCancel := context.WithTimeout(ctx, b.config.StartupTimeout)
	defer setupCancel()

	db, err := CreateDB(setupCtx, b.config.DatabaseType, b.config.Database)
	if err != nil {
		return fmt.Errorf("error initializing database: %w", err)
	}
	b.db = db
	b.conversations = NewConversationStore(db, b.logger)
	b.openai = newOpenAI(b.config, db, b.config.HTTPClient)
	b.handlers = b.commandHandlers()

	if b.discord.session == nil {
		session, e := b.discord.newSession()
		if e != nil {
			return e
		}
		b.discord.session = session
	}
	session := b.discord.session
	b.discord.removeHandlerFuncs = append(
		b.discord.removeHandlerFuncs,
		session.AddHandler(b.discord.handlerReady()),
		session.AddHandler(b.discord.handlerConnect()),
		session.AddHandler(b.discord.handlerDisconnect()),
		session.AddHandler(b.handlerMessageCreate()),
	)

	if err = session.Open(); err != nil {
		return fmt.Errorf("error opening discord session: %w", err)
	}
	b.startedAt = time.Now()

	apiErrCh := make(chan error, 1)
	go func() {
		apiErrCh <- b.api.Serve()
	}()

	b.logger.Info("slyfox is running", "version", Version)

	select {
	case <-ctx.Done():
	case apiErr := <-apiErrCh:
		if apiErr != nil && !errors.Is(apiErr, http.ErrServerClosed) {
			b.logger.Error("api server stopped", tint.Err(apiErr))
		}
	}

	return b.shutdown()
}

func (b *SlyFox) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		b.config.ShutdownTimeout,
	)
	defer cancel()

	b.logger.Info(
		"shutting down",
		"shutdown_timeout", b.config.ShutdownTimeout,
	)

	for _, remove := range b.discord.removeHandlerFuncs {
		remove()
	}
	b.discord.removeHandlerFuncs = nil

	var errs []error
	if b.discord.session != nil {
		errs = append(errs, b.discord.session.Close())
	}
	if b.api != nil {
		errs = append(errs, b.api.Shutdown(shutdownCtx))
	}

	b.logger.Info("shutdown complete")
	return errors.Join(errs...)
}

// handlerMessageCreate returns the discordgo MessageCreate handler.
// Each inbound message is handled on its own goroutine; messages for
// different channels proceed with no ordering guarantee between them.
func (b *SlyFox) handlerMessageCreate() func(
	s *discordgo.Session,
	m *discordgo.MessageCreate,
) {
	return func(s *discordgo.Session, m *discordgo.MessageCreate) {
		go b.handleMessage(context.Background(), m)
	}
}

// handleMessage classifies one inbound message and dispatches it to
// its handler. Bot-authored messages are discarded before
// classification. The routine always completes: handlers surface
// user-facing errors as normal replies and never propagate them here.
func (b *SlyFox) handleMessage(
	ctx context.Context,
	m *discordgo.MessageCreate,
) {
	if m.Author == nil {
		return
	}
	cmd, ok := b.classifier.Parse(m.Content, m.Author.Bot)
	if !ok {
		return
	}
	b.metricMessagesHandled.Add(1)

	logger := b.logger.With(
		"command", cmd,
		"channel_id", m.ChannelID,
		"user_id", m.Author.ID,
	)
	ctx = WithLogger(ctx, logger)
	logger.InfoContext(ctx, "handling command")

	if b.db != nil {
		rec := NewDiscordMessage(m.Message, cmd.Kind)
		if err := b.db.WithContext(ctx).Create(&rec).Error; err != nil {
			logger.ErrorContext(
				ctx, "error recording discord message", tint.Err(err),
			)
		}
	}

	handler := b.handlers[cmd.Kind]
	if handler == nil {
		logger.WarnContext(ctx, "no handler registered", "kind", cmd.Kind)
		return
	}
	handler(ctx, newInboundMessage(m), cmd)
}
