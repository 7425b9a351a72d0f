package slyfox

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/lmittmann/tint"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var columnConversationRestart = "restart"

// Conversation tracks per-channel state for the completion provider.
// Rows are created on first use and never deleted.
type Conversation struct {
	// ChannelID is the Discord channel the conversation lives in
	ChannelID string `json:"channel_id" gorm:"primaryKey;type:string"`

	// Restart indicates the next completion call for this channel
	// should discard prior context
	Restart bool `json:"restart" gorm:"type:bool;default:false"`

	ModelUnixTime
}

func (c Conversation) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("channel_id", c.ChannelID),
		slog.Bool("restart", c.Restart),
	)
}

// ConversationStore is the single source of truth for per-channel
// restart flags. All read-modify-write access is serialized through a
// single mutex, so a restart requested while a completion for the same
// channel is in flight is neither dropped nor applied twice.
type ConversationStore struct {
	db     *gorm.DB
	mu     sync.Mutex
	logger *slog.Logger
}

func NewConversationStore(db *gorm.DB, logger *slog.Logger) *ConversationStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConversationStore{
		db:     db,
		logger: logger.With(loggerNameKey, "conversation_store"),
	}
}

// GetAndClearRestart atomically reads the channel's restart flag and
// resets it to false. A missing row reads as false. Storage errors are
// logged and read as false, since a dropped restart only means the
// provider keeps its prior context.
func (s *ConversationStore) GetAndClearRestart(
	ctx context.Context,
	channelID string,
) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	var conv Conversation
	err := s.db.WithContext(ctx).First(
		&conv, "channel_id = ?", channelID,
	).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.ErrorContext(
				ctx,
				"error reading conversation",
				tint.Err(err),
				"channel_id", channelID,
			)
		}
		return false
	}
	if !conv.Restart {
		return false
	}
	err = s.db.WithContext(ctx).Model(&conv).Update(
		columnConversationRestart, false,
	).Error
	if err != nil {
		s.logger.ErrorContext(
			ctx,
			"error clearing restart flag",
			tint.Err(err),
			"channel_id", channelID,
		)
	}
	return true
}

// SetRestart unconditionally sets the channel's restart flag, creating
// the conversation row if it doesn't exist yet.
func (s *ConversationStore) SetRestart(
	ctx context.Context,
	channelID string,
	value bool,
) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := Conversation{ChannelID: channelID, Restart: value}
	err := s.db.WithContext(ctx).Clauses(
		clause.OnConflict{
			Columns: []clause.Column{{Name: "channel_id"}},
			DoUpdates: clause.Assignments(
				map[string]any{columnConversationRestart: value},
			),
		},
	).Create(&conv).Error
	if err != nil {
		s.logger.ErrorContext(
			ctx,
			"error setting restart flag",
			tint.Err(err),
			"channel_id", channelID,
			"restart", value,
		)
	}
}
