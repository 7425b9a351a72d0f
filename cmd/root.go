package cmd

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"reflect"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/slyfoxbot/slyfox/slyfox"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfg        = slyfox.DefaultConfig()
	configFile string
)

var rootCmd = &cobra.Command{
	Use: "slyfox [flags]",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		err := viper.Unmarshal(
			cfg,
			viper.DecodeHook(
				mapstructure.ComposeDecodeHookFunc(
					mapstructure.StringToTimeDurationHookFunc(),
					mapstructure.StringToSliceHookFunc(","),
					LevelToStringHookFunc(),
				),
			),
		)
		if err != nil {
			log.Fatalln(err)
		}
	},
}

func getLogLevel(level string) (slog.Level, error) {
	switch level {
	case slog.LevelDebug.String():
		return slog.LevelDebug, nil
	case slog.LevelInfo.String():
		return slog.LevelInfo, nil
	case slog.LevelWarn.String():
		return slog.LevelWarn, nil
	case slog.LevelError.String():
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level: %s", level)
	}
}

// LevelToStringHookFunc decodes a log level string (ex: "INFO") into
// a *slog.LevelVar when unmarshaling the config.
func LevelToStringHookFunc() mapstructure.DecodeHookFuncType {
	return func(
		f reflect.Type,
		t reflect.Type,
		data any,
	) (any, error) {
		if f.Kind() != reflect.String {
			return data, nil
		}
		if t.Kind() != reflect.Ptr {
			return data, nil
		}

		typ := t.Elem()

		if typ != reflect.TypeOf(slog.LevelVar{}) {
			return data, nil
		}
		lvl, err := getLogLevel(data.(string))
		if err != nil {
			return nil, fmt.Errorf("invalid log level: %s", data)
		}
		lvlVar := &slog.LevelVar{}
		lvlVar.Set(lvl)
		return lvlVar, nil
	}
}

func Execute() {
	ctx, cancel := context.WithCancel(context.Background())
	rootCmd.SetContext(ctx)
	signals := make(chan os.Signal, 1)
	signal.Notify(
		signals,
		os.Interrupt,
		syscall.SIGHUP,
		syscall.SIGTERM,
		syscall.SIGINT,
	)
	defer func() {
		signal.Stop(signals)
		cancel()
	}()
	go func() {
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
			//
		}
	}()
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func initConfig() {
	if configFile == "" {
		if err := godotenv.Load(); err != nil {
			log.Println("No .env file found")
		}
	} else {
		fmt.Println("loading env from file", configFile)
		if err := godotenv.Load(configFile); err != nil {
			log.Println("No .env file found")
		}
	}

	viper.SetDefault("database", slyfox.DefaultDatabase)
	viper.SetDefault("database_type", slyfox.DefaultDatabaseType)
	viper.SetDefault(
		"database_slow_threshold",
		slyfox.DefaultDatabaseSlowThreshold,
	)
	viper.SetDefault(
		"database_log_level",
		slyfox.DefaultDatabaseLogLevel.String(),
	)

	viper.SetDefault("log_level", slyfox.DefaultLogLevel.String())
	viper.SetDefault("startup_timeout", slyfox.DefaultStartupTimeout)
	viper.SetDefault("shutdown_timeout", slyfox.DefaultShutdownTimeout)

	// OpenAI config
	viper.SetDefault("openai.log_level", slyfox.DefaultOpenAILogLevel.String())
	viper.SetDefault("openai.token", "")
	viper.SetDefault("openai.model", slyfox.DefaultOpenAIModel)
	viper.SetDefault("openai.max_attempts", slyfox.DefaultOpenAIMaxAttempts)
	viper.SetDefault(
		"openai.max_requests_per_second",
		slyfox.DefaultOpenAIMaxRequestsPerSecond,
	)

	// Discord config
	viper.SetDefault("discord.token", "")
	viper.SetDefault(
		"discord.log_level",
		slyfox.DefaultDiscordLogLevel.String(),
	)
	viper.SetDefault(
		"discord.discordgo_log_level",
		slyfox.DefaultDiscordgoLogLevel.String(),
	)
	viper.SetDefault(
		"discord.gateway_intents",
		slyfox.DefaultDiscordGatewayIntent,
	)
	viper.SetDefault("discord.startup_message", slyfox.DefaultStartupMessage)
	viper.SetDefault("discord.notification_channel_id", "")
	viper.SetDefault("discord.custom_status", slyfox.DefaultCustomStatus)

	// Bot config
	viper.SetDefault("bot.command_prefix", slyfox.DefaultCommandPrefix)
	viper.SetDefault("bot.placeholder_text", slyfox.DefaultPlaceholderText)
	viper.SetDefault("bot.system_prompt", slyfox.DefaultSystemPrompt)
	viper.SetDefault("bot.error_message", slyfox.DefaultErrorMessage)
	viper.SetDefault("bot.owner_id", "")
	viper.SetDefault("bot.broadcast_channel_ids", []string{})

	// API config
	viper.SetDefault("api.listen", slyfox.DefaultAPIListen)
	viper.SetDefault("api.log_level", slyfox.DefaultAPILogLevel.String())
	viper.SetDefault("api.read_timeout", slyfox.DefaultReadTimeout)
	viper.SetDefault(
		"api.read_header_timeout",
		slyfox.DefaultReadHeaderTimeout,
	)
	viper.SetDefault("api.write_timeout", slyfox.DefaultWriteTimeout)
	viper.SetDefault("api.idle_timeout", slyfox.DefaultIdleTimeout)
	viper.SetDefault("api.cors.allow_origins", []string{})
	viper.SetDefault("api.cors.max_age", slyfox.DefaultCORSMaxAge)

	envPrefix := os.Getenv(slyfox.EnvvarSetEnvPrefix)
	if envPrefix == "" {
		envPrefix = slyfox.DefaultEnvPrefix
	}
	viper.SetEnvPrefix(envPrefix)

	replacer := strings.NewReplacer(".", "_")
	viper.SetEnvKeyReplacer(replacer)
	viper.AutomaticEnv()

	// Convert values to correct types
	viper.Set(
		"bot.broadcast_channel_ids",
		viper.GetStringSlice("bot.broadcast_channel_ids"),
	)
	viper.Set(
		"api.cors.allow_origins",
		viper.GetStringSlice("api.cors.allow_origins"),
	)

	for _, key := range []string{
		"log_level",
		"database_log_level",
		"discord.log_level",
		"discord.discordgo_log_level",
		"openai.log_level",
		"api.log_level",
	} {
		logLevelVar, err := levelStringToLevelVar(viper.GetString(key))
		if err != nil {
			log.Fatalf("error parsing %s: %v", key, err)
		}
		viper.Set(key, logLevelVar)
	}
}

func levelStringToLevelVar(lvl string) (*slog.LevelVar, error) {
	level := &slog.LevelVar{}
	err := level.UnmarshalText([]byte(lvl))
	return level, err
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(
		&configFile,
		"config",
		"",
		"Config file to use",
	)
}
