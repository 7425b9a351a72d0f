package slyfox

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

type sentMessage struct {
	ChannelID string
	Message   *discordgo.MessageSend
}

type sentText struct {
	ChannelID string
	Content   string
}

type editedMessage struct {
	ChannelID string
	MessageID string
	Edit      *discordgo.MessageEdit
}

// stubMessenger implements ChannelMessenger in memory, recording
// everything sent through it.
type stubMessenger struct {
	mu sync.Mutex

	sent     []sentMessage
	sentText []sentText
	edits    []editedMessage

	// failNextComplex makes the next N ChannelMessageSendComplex calls
	// fail.
	failNextComplex int

	// failTextChannels makes ChannelMessageSend fail for these channels.
	failTextChannels map[string]bool

	nextID int
}

func (s *stubMessenger) Open() error  { return nil }
func (s *stubMessenger) Close() error { return nil }

func (s *stubMessenger) AddHandler(_ any) func() {
	return func() {}
}

func (s *stubMessenger) ChannelMessageSend(
	channelID string,
	content string,
	_ ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failTextChannels[channelID] {
		return nil, fmt.Errorf("cannot send to channel %s", channelID)
	}
	s.sentText = append(s.sentText, sentText{ChannelID: channelID, Content: content})
	s.nextID++
	return &discordgo.Message{ID: fmt.Sprintf("msg-%d", s.nextID)}, nil
}

func (s *stubMessenger) ChannelMessageSendComplex(
	channelID string,
	data *discordgo.MessageSend,
	_ ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNextComplex > 0 {
		s.failNextComplex--
		return nil, fmt.Errorf("cannot send to channel %s", channelID)
	}
	s.sent = append(s.sent, sentMessage{ChannelID: channelID, Message: data})
	s.nextID++
	return &discordgo.Message{ID: fmt.Sprintf("msg-%d", s.nextID)}, nil
}

func (s *stubMessenger) ChannelMessageEditComplex(
	m *discordgo.MessageEdit,
	_ ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.edits = append(
		s.edits,
		editedMessage{ChannelID: m.Channel, MessageID: m.ID, Edit: m},
	)
	return &discordgo.Message{ID: m.ID}, nil
}

func (s *stubMessenger) UpdateCustomStatus(_ string) error { return nil }

func (s *stubMessenger) SetLogLevel(_ slog.Level) error { return nil }

func (s *stubMessenger) sentMessages() []sentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]sentMessage, len(s.sent))
	copy(out, s.sent)
	return out
}

func (s *stubMessenger) sentTexts() []sentText {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]sentText, len(s.sentText))
	copy(out, s.sentText)
	return out
}

func (s *stubMessenger) editedMessages() []editedMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]editedMessage, len(s.edits))
	copy(out, s.edits)
	return out
}

// stubCompletionClient implements OpenAIClient, returning canned
// replies or a fixed error.
type stubCompletionClient struct {
	mu sync.Mutex

	replies  []string
	err      error
	calls    int
	requests []openai.ChatCompletionRequest
}

func (s *stubCompletionClient) CreateChatCompletion(
	_ context.Context,
	request openai.ChatCompletionRequest,
) (openai.ChatCompletionResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.requests = append(s.requests, request)
	if s.err != nil {
		return openai.ChatCompletionResponse{}, s.err
	}
	reply := "pong"
	if len(s.replies) > 0 {
		reply = s.replies[0]
		if len(s.replies) > 1 {
			s.replies = s.replies[1:]
		}
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{
				Message: openai.ChatCompletionMessage{
					Role:    openai.ChatMessageRoleAssistant,
					Content: reply,
				},
			},
		},
	}, nil
}

func (s *stubCompletionClient) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *stubCompletionClient) lastRequest() openai.ChatCompletionRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[len(s.requests)-1]
}

func testLogger() *slog.Logger {
	return slog.New(
		tint.NewHandler(io.Discard, &tint.Options{Level: slog.LevelError}),
	)
}

// newTestBot returns a SlyFox wired to a temp sqlite database, a
// stubMessenger and a stubCompletionClient.
func newTestBot(t *testing.T) (*SlyFox, *stubMessenger, *stubCompletionClient) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)

	cfg := DefaultConfig()
	cfg.Database = filepath.Join(t.TempDir(), "test.sqlite3")
	cfg.Discord.Token = "test-token"
	cfg.OpenAI.Token = "test-token"

	db, err := CreateDB(ctx, dbTypeSQLite, cfg.Database)
	require.NoError(t, err)

	logger := testLogger()
	messenger := &stubMessenger{failTextChannels: map[string]bool{}}
	client := &stubCompletionClient{}

	b := &SlyFox{config: cfg}
	b.logger = logger
	b.db = db
	b.conversations = NewConversationStore(db, logger)
	b.identities = NewIdentityRegistry(cfg.Bot)
	b.classifier = NewClassifier(cfg.Bot.CommandPrefix)
	b.discord = &Discord{
		session: messenger,
		config:  cfg.Discord,
		logger:  logger,
		bot:     b,
	}
	b.openai = &OpenAI{
		client:         client,
		config:         cfg.OpenAI,
		systemPrompt:   cfg.Bot.SystemPrompt,
		logger:         logger,
		requestLimiter: rate.NewLimiter(rate.Inf, 1),
		db:             db,
		history:        map[string][]openai.ChatCompletionMessage{},
	}
	b.handlers = b.commandHandlers()

	return b, messenger, client
}

func newMessageCreate(
	channelID string,
	userID string,
	username string,
	content string,
) *discordgo.MessageCreate {
	return &discordgo.MessageCreate{
		Message: &discordgo.Message{
			ID:        "incoming-1",
			ChannelID: channelID,
			Content:   content,
			Author: &discordgo.User{
				ID:       userID,
				Username: username,
			},
		},
	}
}

func TestHandleMessageDispatch(t *testing.T) {
	t.Parallel()
	bot, messenger, _ := newTestBot(t)
	ctx := context.Background()

	bot.handleMessage(ctx, newMessageCreate("chan1", "user1", "foo", "!furry"))

	sent := messenger.sentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "chan1", sent[0].ChannelID)
	require.Len(t, sent[0].Message.Embeds, 1)
	assert.Contains(t, sent[0].Message.Embeds[0].Description, "% furry!")

	assert.Equal(t, int64(1), bot.metricMessagesHandled.Load())

	var rec DiscordMessage
	err := bot.db.Last(&rec).Error
	require.NoError(t, err)
	assert.Equal(t, "chan1", rec.ChannelID)
	assert.Equal(t, "user1", rec.UserID)
	assert.Equal(t, string(CommandFurryRoll), rec.Command)
}

func TestHandleMessageIgnoresBots(t *testing.T) {
	t.Parallel()
	bot, messenger, _ := newTestBot(t)

	m := newMessageCreate("chan1", "bot1", "beep", "!furry")
	m.Author.Bot = true
	bot.handleMessage(context.Background(), m)

	assert.Empty(t, messenger.sentMessages())
	assert.Equal(t, int64(0), bot.metricMessagesHandled.Load())
}

func TestHandleMessageIgnoresNonCommands(t *testing.T) {
	t.Parallel()
	bot, messenger, _ := newTestBot(t)

	bot.handleMessage(
		context.Background(),
		newMessageCreate("chan1", "user1", "foo", "just chatting"),
	)

	assert.Empty(t, messenger.sentMessages())
	assert.Equal(t, int64(0), bot.metricMessagesHandled.Load())
}
