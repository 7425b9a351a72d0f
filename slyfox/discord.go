package slyfox

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
)

// ChannelMessenger defines the methods used from `discordgo.Session`
// for channel message I/O, to enable testing/mocking.
type ChannelMessenger interface {
	// Open creates a websocket connection to Discord
	Open() error

	// Close closes the websocket connection to Discord
	Close() error

	// AddHandler adds a discord gateway event handler
	AddHandler(handler any) func()

	// ChannelMessageSend sends a plain-text message to the given channel
	ChannelMessageSend(
		channelID string,
		content string,
		options ...discordgo.RequestOption,
	) (*discordgo.Message, error)

	// ChannelMessageSendComplex sends a message payload (text and/or
	// embeds) to the given channel
	ChannelMessageSendComplex(
		channelID string,
		data *discordgo.MessageSend,
		options ...discordgo.RequestOption,
	) (*discordgo.Message, error)

	// ChannelMessageEditComplex edits an existing message
	ChannelMessageEditComplex(
		m *discordgo.MessageEdit,
		options ...discordgo.RequestOption,
	) (*discordgo.Message, error)

	// UpdateCustomStatus sets the bot's user status to the given string
	UpdateCustomStatus(status string) error

	// SetLogLevel modifies the session's log level
	SetLogLevel(lvl slog.Level) error
}

// Discord manages the Discord gateway connection and provides the
// outbound message operations used by command handlers.
type Discord struct {
	session            ChannelMessenger
	config             *DiscordConfig
	logger             *slog.Logger
	metricConnects     atomic.Int64
	metricDisconnects  atomic.Int64
	connected          atomic.Bool
	removeHandlerFuncs []func()
	bot                *SlyFox
}

func newDiscord(config *DiscordConfig) (*Discord, error) {
	if config.Token == "" {
		return nil, fmt.Errorf("discord token not set")
	}
	return &Discord{
		config:             config,
		removeHandlerFuncs: []func(){},
	}, nil
}

// newSession initializes a new Discord session for the Discord struct.
func (d *Discord) newSession() (ChannelMessenger, error) {
	session := DiscordSession{
		logger: d.logger.With(loggerNameKey, "discord_session"),
	}
	disc, err := discordgo.New("Bot " + d.config.Token)
	if err != nil {
		return session, fmt.Errorf("error creating discord session: %w", err)
	}
	disc.Identify.Intents = d.config.GatewayIntents
	disc.SyncEvents = false
	disc.StateEnabled = false
	session.session = disc
	if d.config.httpClient != nil {
		disc.Client = d.config.httpClient
	}

	if err = session.SetLogLevel(d.config.DiscordGoLogLevel.Level()); err != nil {
		return session, err
	}

	return session, nil
}

// sendMessage sends the given payload and returns the created message ID.
func (d *Discord) sendMessage(
	ctx context.Context,
	channelID string,
	data *discordgo.MessageSend,
) (string, error) {
	msg, err := d.session.ChannelMessageSendComplex(
		channelID, data, discordgo.WithContext(ctx),
	)
	if err != nil {
		d.logger.ErrorContext(
			ctx,
			"error sending message",
			tint.Err(err),
			"channel_id", channelID,
		)
		return "", err
	}
	return msg.ID, nil
}

// sendText sends a plain-text message to the given channel.
func (d *Discord) sendText(
	ctx context.Context,
	channelID string,
	content string,
) error {
	_, err := d.session.ChannelMessageSend(
		channelID, content, discordgo.WithContext(ctx),
	)
	if err != nil {
		d.logger.ErrorContext(
			ctx,
			"error sending message",
			tint.Err(err),
			"channel_id", channelID,
		)
	}
	return err
}

// sendEmbed sends a single embed to the given channel and returns the
// created message ID.
func (d *Discord) sendEmbed(
	ctx context.Context,
	channelID string,
	embed *discordgo.MessageEmbed,
) (string, error) {
	return d.sendMessage(
		ctx,
		channelID,
		&discordgo.MessageSend{Embeds: []*discordgo.MessageEmbed{embed}},
	)
}

// editEmbed replaces the given message's content with a single embed.
func (d *Discord) editEmbed(
	ctx context.Context,
	channelID string,
	messageID string,
	embed *discordgo.MessageEmbed,
) error {
	edit := discordgo.NewMessageEdit(channelID, messageID).SetEmbeds(
		[]*discordgo.MessageEmbed{embed},
	)
	empty := ""
	edit.Content = &empty
	_, err := d.session.ChannelMessageEditComplex(
		edit, discordgo.WithContext(ctx),
	)
	if err != nil {
		d.logger.ErrorContext(
			ctx,
			"error editing message",
			tint.Err(err),
			"channel_id", channelID,
			"message_id", messageID,
		)
	}
	return err
}

func (d *Discord) handlerReady() func(
	s *discordgo.Session,
	r *discordgo.Ready,
) {
	return func(s *discordgo.Session, r *discordgo.Ready) {
		d.logger.Info(
			"Ready",
			"session_id", r.SessionID,
			"user_id", r.User.ID,
			"username", r.User.Username,
		)
	}
}

func (d *Discord) handlerConnect() func(
	s *discordgo.Session,
	r *discordgo.Connect,
) {
	return func(s *discordgo.Session, r *discordgo.Connect) {
		d.metricConnects.Add(1)
		d.connected.Store(true)
		d.logger.Info("Connected")

		if d.config.CustomStatus != "" {
			if err := d.session.UpdateCustomStatus(d.config.CustomStatus); err != nil {
				d.logger.Error("unable to set custom status", tint.Err(err))
			}
		}

		if d.config.NotificationChannelID != "" && d.config.StartupMessage != "" {
			if err := d.sendText(
				context.Background(),
				d.config.NotificationChannelID,
				d.config.StartupMessage,
			); err == nil {
				d.logger.Info("sent startup notification")
			}
		}
	}
}

func (d *Discord) handlerDisconnect() func(
	s *discordgo.Session,
	r *discordgo.Disconnect,
) {
	return func(s *discordgo.Session, r *discordgo.Disconnect) {
		d.connected.Store(false)
		d.metricDisconnects.Add(1)
		d.logger.Info("disconnected")
	}
}

// DiscordSession implements ChannelMessenger, wrapping a
// [discordgo.Session](https://pkg.go.dev/github.com/bwmarrin/discordgo#Session)
type DiscordSession struct {
	session *discordgo.Session
	logger  *slog.Logger
}

func (d DiscordSession) Open() error {
	return d.session.Open()
}

func (d DiscordSession) Close() error {
	return d.session.Close()
}

func (d DiscordSession) AddHandler(handler any) func() {
	return d.session.AddHandler(handler)
}

func (d DiscordSession) ChannelMessageSend(
	channelID string,
	content string,
	options ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	return d.session.ChannelMessageSend(channelID, content, options...)
}

func (d DiscordSession) ChannelMessageSendComplex(
	channelID string,
	data *discordgo.MessageSend,
	options ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	return d.session.ChannelMessageSendComplex(channelID, data, options...)
}

func (d DiscordSession) ChannelMessageEditComplex(
	m *discordgo.MessageEdit,
	options ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	return d.session.ChannelMessageEditComplex(m, options...)
}

func (d DiscordSession) UpdateCustomStatus(status string) error {
	return d.session.UpdateCustomStatus(status)
}

func (d DiscordSession) SetLogLevel(lvl slog.Level) error {
	switch lvl.Level() {
	case slog.LevelInfo:
		d.session.LogLevel = discordgo.LogInformational
	case slog.LevelWarn:
		d.session.LogLevel = discordgo.LogWarning
	case slog.LevelDebug:
		d.session.LogLevel = discordgo.LogDebug
	case slog.LevelError:
		d.session.LogLevel = discordgo.LogError
	default:
		return fmt.Errorf("invalid log level: %s", lvl)
	}
	return nil
}
