package slyfox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const (
	dbTypeSQLite   = "sqlite"
	dbTypePostgres = "postgres"
)

var (
	sqliteMaxOpenConns    = 1
	sqliteMaxIdleConns    = 1
	sqliteMaxConnLifetime = 5 * time.Minute
	sqliteExecPragma      = []string{
		"pragma journal_mode=WAL;",
		"pragma synchronous = normal;",
		"pragma temp_store = memory;",
		"pragma foreign_keys = ON;",
	}
)

// ModelUnixTime is an embeddable model with Unix timestamps for
// creation, update, and deletion.
type ModelUnixTime struct {
	CreatedAt int64          `gorm:"autoCreateTime:milli" json:"created_at,omitempty"`
	UpdatedAt int64          `gorm:"autoUpdateTime:milli" json:"updated_at,omitempty"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

type ModelUintID struct {
	ID uint `gorm:"primaryKey" json:"id"`
}

// DiscordMessage is a DB model which logs details about an incoming
// discord message that was classified as a command or prompt.
type DiscordMessage struct {
	ModelUintID
	ModelUnixTime
	MessageID string `json:"message_id"`
	Content   string `json:"content"`
	ChannelID string `json:"channel_id"`
	GuildID   string `json:"guild_id"`
	UserID    string `json:"user_id"`
	Username  string `json:"username"`
	Command   string `json:"command"`
}

func NewDiscordMessage(m *discordgo.Message, kind CommandKind) DiscordMessage {
	dm := DiscordMessage{
		MessageID: m.ID,
		Content:   m.Content,
		ChannelID: m.ChannelID,
		GuildID:   m.GuildID,
		Command:   string(kind),
	}
	if m.Author != nil {
		dm.UserID = m.Author.ID
		dm.Username = m.Author.Username
	}
	return dm
}

func (m DiscordMessage) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("message_id", m.MessageID),
		slog.String("channel_id", m.ChannelID),
		slog.String("guild_id", m.GuildID),
		slog.String("user_id", m.UserID),
		slog.String("username", m.Username),
		slog.String("command", m.Command),
		slog.String("content", m.Content),
	)
}

// CreateDB opens (or creates) the database for the given type and
// connection string, and runs migrations.
func CreateDB(ctx context.Context, databaseType string, database string) (*gorm.DB, error) {
	handler := tint.NewHandler(
		os.Stdout,
		&tint.Options{
			Level:     slog.LevelWarn,
			AddSource: true,
		},
	)

	gormLogger := newGORMLogger(handler, 500*time.Millisecond)
	dbLogger := slog.New(handler)

	dbLogger.InfoContext(
		ctx,
		"Initializing database",
		"database_type", databaseType,
		"database", database,
	)
	db, err := getDB(databaseType, database, gormLogger)
	if err != nil {
		return db, err
	}

	if databaseType == dbTypeSQLite {
		sqlDB, e := db.DB()
		if e != nil {
			return db, e
		}
		sqlDB.SetMaxOpenConns(sqliteMaxOpenConns)
		sqlDB.SetMaxIdleConns(sqliteMaxIdleConns)
		sqlDB.SetConnMaxLifetime(sqliteMaxConnLifetime)
		for _, pragma := range sqliteExecPragma {
			if e = db.Exec(pragma).Error; e != nil {
				return db, e
			}
		}
	}

	txn := db.WithContext(ctx).Begin()

	mg := txn.Migrator()
	err = mg.AutoMigrate(
		&Conversation{},
		&DiscordMessage{},
		&CompletionLog{},
	)
	if err != nil {
		return db, err
	}

	if commitErr := txn.Commit().Error; commitErr != nil {
		return db, commitErr
	}

	return db, nil
}

func getDB(
	databaseType string,
	database string,
	gormLogger *gormStructuredLogger,
) (*gorm.DB, error) {
	switch databaseType {
	case dbTypeSQLite:
		parentDir := filepath.Dir(database)
		if parentDir != "" {
			if err := os.MkdirAll(parentDir, 0755); err != nil {
				if !errors.Is(err, os.ErrExist) {
					return nil, err
				}
			}
		}
		return gorm.Open(
			sqlite.Open(database),
			&gorm.Config{
				Logger: gormLogger,
				NowFunc: func() time.Time {
					return time.Now().UTC()
				},
			},
		)
	case dbTypePostgres:
		return gorm.Open(
			postgres.Open(database), &gorm.Config{
				Logger: gormLogger,
				NowFunc: func() time.Time {
					return time.Now().UTC()
				},
			},
		)
	default:
		return nil, fmt.Errorf(
			"unsupported database type: %s (must be %q or %q)",
			databaseType, dbTypeSQLite, dbTypePostgres,
		)
	}
}
