//nolint:lll // struct tags can't be split
package slyfox

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
	openai "github.com/sashabaranov/go-openai"
)

const (
	EnvvarSetEnvPrefix = "SLYFOX_ENV_PREFIX"
	DefaultEnvPrefix   = "SF"

	DefaultDatabaseType          = "sqlite"
	DefaultDatabase              = "slyfox.sqlite3"
	DefaultDatabaseSlowThreshold = 200 * time.Millisecond
	DefaultDatabaseLogLevel      = slog.LevelInfo

	DefaultLogLevel        = slog.LevelInfo
	DefaultStartupTimeout  = 30 * time.Second
	DefaultShutdownTimeout = 60 * time.Second

	DefaultOpenAILogLevel             = slog.LevelInfo
	DefaultOpenAIModel                = openai.GPT4oMini
	DefaultOpenAIMaxAttempts          = 3
	DefaultOpenAIMaxRequestsPerSecond = 1

	DefaultDiscordLogLevel      = slog.LevelWarn
	DefaultDiscordgoLogLevel    = slog.LevelWarn
	DefaultDiscordGatewayIntent = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentMessageContent
	DefaultStartupMessage = "I'm here!"
	DefaultCustomStatus   = "!commands for help"

	DefaultCommandPrefix   = "!"
	DefaultPlaceholderText = "*Generating a response...*"
	DefaultSystemPrompt    = "You are a helpful assistant answering questions in Discord."
	DefaultErrorMessage    = "Sorry, something went wrong. Please try again later."

	DefaultAPIListen         = "127.0.0.1:5000"
	DefaultAPILogLevel       = slog.LevelInfo
	DefaultReadTimeout       = 5 * time.Second
	DefaultReadHeaderTimeout = 5 * time.Second
	DefaultWriteTimeout      = 10 * time.Second
	DefaultIdleTimeout       = 30 * time.Second
	DefaultCORSMaxAge        = 12 * time.Hour

	discordMaxMessageLength = 2000
)

type Config struct {
	// Database connection string
	Database string `yaml:"database" mapstructure:"database" json:"database"`

	// DatabaseType specifies the type of database, either 'sqlite' or 'postgres'
	DatabaseType string `yaml:"database_type" mapstructure:"database_type" json:"database_type" binding:"oneof=sqlite postgres"`

	// DatabaseLogLevel sets the log level for database operations
	DatabaseLogLevel *slog.LevelVar `yaml:"database_log_level" mapstructure:"database_log_level" json:"database_log_level"`

	// DatabaseSlowThreshold is the duration threshold for identifying slow database queries
	DatabaseSlowThreshold time.Duration `yaml:"database_slow_threshold" mapstructure:"database_slow_threshold" json:"database_slow_threshold"`

	// OpenAI holds the configuration for OpenAI integration
	OpenAI *OpenAIConfig `yaml:"openai" mapstructure:"openai" json:"openai"`

	// Discord configures aspects of the Discord bot itself
	Discord *DiscordConfig `yaml:"discord" mapstructure:"discord" json:"discord"`

	// Bot configures command handling and completion behavior
	Bot *BotConfig `yaml:"bot" mapstructure:"bot" json:"bot"`

	// API configures the status API server
	API *APIConfig `yaml:"api" mapstructure:"api" json:"api"`

	// LogLevel is the base log level, for the default logger
	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`

	// StartupTimeout sets a limit on the amount of time the bot has to
	// initialize. If this is passed, the bot will abort startup.
	StartupTimeout time.Duration `yaml:"startup_timeout" mapstructure:"startup_timeout" json:"startup_timeout"`

	// ShutdownTimeout is the time to allow for a graceful shutdown. After this
	// elapses, the bot will force close all connections and exit.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout" json:"shutdown_timeout"`

	HTTPClient *http.Client `log:"[redacted]"`
}

func (c Config) LogValue() slog.Value {
	return structToSlogValue(c)
}

// DiscordConfig configures the discord connection itself.
//
//nolint:lll // can't break tags
type DiscordConfig struct {
	// Discord bot token (from the 'Bot' tab in the discord dev portal)
	Token string `yaml:"token" mapstructure:"token" json:"token" log:"[redacted]" binding:"required"`

	// Base discord logging level
	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`

	// Log level for the `discordgo` library's logger
	DiscordGoLogLevel *slog.LevelVar `yaml:"discordgo_log_level" mapstructure:"discordgo_log_level" json:"discordgo_log_level"`

	// If NotificationChannelID is set, the bot sends StartupMessage to
	// that channel whenever it connects to the discord gateway.
	StartupMessage string `yaml:"startup_message" mapstructure:"startup_message" json:"startup_message"`

	// NotificationChannelID is the channel the startup message is sent to
	NotificationChannelID string `yaml:"notification_channel_id" mapstructure:"notification_channel_id" json:"notification_channel_id"`

	// CustomStatus is set as the bot user's custom status after connecting
	CustomStatus string `yaml:"custom_status" mapstructure:"custom_status" json:"custom_status"`

	// Discord gateway intents. See: https://discord.com/developers/docs/topics/gateway#gateway-intents
	GatewayIntents discordgo.Intent `yaml:"gateway_intents" mapstructure:"gateway_intents" json:"gateway_intents"`

	httpClient *http.Client
}

// OpenAIConfig configures OpenAI API integration
type OpenAIConfig struct {
	// OpenAI API token
	Token string `yaml:"token" mapstructure:"token" json:"token" log:"[redacted]" binding:"required"`

	// OpenAI base log level
	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`

	// Model is the chat completion model to use
	Model string `yaml:"model" mapstructure:"model" json:"model"`

	// MaxAttempts is the number of attempts made per completion call
	// before giving up
	MaxAttempts int `yaml:"max_attempts" mapstructure:"max_attempts" json:"max_attempts"`

	// MaxRequestsPerSecond limits the rate of completion API calls
	MaxRequestsPerSecond int `yaml:"max_requests_per_second" mapstructure:"max_requests_per_second" json:"max_requests_per_second"`
}

// IdentityConfig statically maps a Discord user ID to a reply prefix,
// a human-readable label, and (optionally) the owner tier.
type IdentityConfig struct {
	UserID string `yaml:"user_id" mapstructure:"user_id" json:"user_id"`
	Prefix string `yaml:"prefix" mapstructure:"prefix" json:"prefix"`
	Label  string `yaml:"label" mapstructure:"label" json:"label"`
	Owner  bool   `yaml:"owner" mapstructure:"owner" json:"owner"`
}

// BotConfig configures command classification, completion behavior and
// the broadcast fanout.
type BotConfig struct {
	// CommandPrefix is the sigil messages must start with to be handled
	CommandPrefix string `yaml:"command_prefix" mapstructure:"command_prefix" json:"command_prefix"`

	// PlaceholderText is shown while a completion is in flight
	PlaceholderText string `yaml:"placeholder_text" mapstructure:"placeholder_text" json:"placeholder_text"`

	// SystemPrompt is sent with every completion call
	SystemPrompt string `yaml:"system_prompt" mapstructure:"system_prompt" json:"system_prompt"`

	// ErrorMessage replaces the placeholder when a completion fails
	ErrorMessage string `yaml:"error_message" mapstructure:"error_message" json:"error_message"`

	// OwnerID is the Discord user ID allowed to use !broadcast
	OwnerID string `yaml:"owner_id" mapstructure:"owner_id" json:"owner_id"`

	// BroadcastChannelIDs are the destinations for !broadcast
	BroadcastChannelIDs []string `yaml:"broadcast_channel_ids" mapstructure:"broadcast_channel_ids" json:"broadcast_channel_ids"`

	// Identities maps user IDs to reply prefixes, in display order
	Identities []IdentityConfig `yaml:"identities" mapstructure:"identities" json:"identities"`
}

// APIConfig configures the status API server
type APIConfig struct {
	// The address and port on which the server should listen (e.g., "127.0.0.1:5000").
	Listen string `yaml:"listen" mapstructure:"listen" json:"listen"`

	// The logging level for the API server.
	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`

	// Cross-origin configuration
	CORS CORSConfig `yaml:"cors" mapstructure:"cors" json:"cors"`

	// Maximum duration for reading the entire request, including the body.
	ReadTimeout time.Duration `yaml:"read_timeout" mapstructure:"read_timeout" json:"read_timeout"`

	// Amount of time allowed to read request headers.
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" mapstructure:"read_header_timeout" json:"read_header_timeout"`

	// Maximum duration before timing out writes of the response.
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout" json:"write_timeout"`

	// Maximum amount of time to wait for the next request when keep-alives are enabled.
	IdleTimeout time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout" json:"idle_timeout"`
}

// CORSConfig specifies cross-origin resource sharing settings
type CORSConfig struct {
	AllowOrigins []string      `yaml:"allow_origins" mapstructure:"allow_origins" json:"allow_origins"`
	MaxAge       time.Duration `yaml:"max_age" mapstructure:"max_age" json:"max_age"`
}

// DefaultConfig returns a Config with all default settings populated
func DefaultConfig() *Config {
	mainLogLevel := &slog.LevelVar{}
	openaiLogLevel := &slog.LevelVar{}
	discordLogLevel := &slog.LevelVar{}
	discordgoLogLevel := &slog.LevelVar{}
	dbLogLevel := &slog.LevelVar{}
	apiLogLevel := &slog.LevelVar{}

	mainLogLevel.Set(DefaultLogLevel)
	openaiLogLevel.Set(DefaultOpenAILogLevel)
	discordLogLevel.Set(DefaultDiscordLogLevel)
	discordgoLogLevel.Set(DefaultDiscordgoLogLevel)
	dbLogLevel.Set(DefaultDatabaseLogLevel)
	apiLogLevel.Set(DefaultAPILogLevel)

	return &Config{
		DatabaseType:          DefaultDatabaseType,
		Database:              DefaultDatabase,
		DatabaseLogLevel:      dbLogLevel,
		DatabaseSlowThreshold: DefaultDatabaseSlowThreshold,
		LogLevel:              mainLogLevel,
		StartupTimeout:        DefaultStartupTimeout,
		ShutdownTimeout:       DefaultShutdownTimeout,
		OpenAI: &OpenAIConfig{
			LogLevel:             openaiLogLevel,
			Model:                DefaultOpenAIModel,
			MaxAttempts:          DefaultOpenAIMaxAttempts,
			MaxRequestsPerSecond: DefaultOpenAIMaxRequestsPerSecond,
		},
		Discord: &DiscordConfig{
			GatewayIntents:    DefaultDiscordGatewayIntent,
			LogLevel:          discordLogLevel,
			DiscordGoLogLevel: discordgoLogLevel,
			StartupMessage:    DefaultStartupMessage,
			CustomStatus:      DefaultCustomStatus,
		},
		Bot: &BotConfig{
			CommandPrefix:   DefaultCommandPrefix,
			PlaceholderText: DefaultPlaceholderText,
			SystemPrompt:    DefaultSystemPrompt,
			ErrorMessage:    DefaultErrorMessage,
		},
		API: &APIConfig{
			Listen:            DefaultAPIListen,
			LogLevel:          apiLogLevel,
			ReadHeaderTimeout: DefaultReadHeaderTimeout,
			ReadTimeout:       DefaultReadTimeout,
			WriteTimeout:      DefaultWriteTimeout,
			IdleTimeout:       DefaultIdleTimeout,
			CORS: CORSConfig{
				AllowOrigins: []string{},
				MaxAge:       DefaultCORSMaxAge,
			},
		},
	}
}
