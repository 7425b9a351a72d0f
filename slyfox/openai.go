package slyfox

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/lmittmann/tint"
	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

var (
	// openaiRetryBaseWait is the wait between completion attempts,
	// multiplied by the attempt number.
	openaiRetryBaseWait = time.Second

	// maxHistoryMessages caps the per-channel message history sent to
	// the completion API (not counting the system prompt).
	maxHistoryMessages = 50

	errEmptyCompletion = errors.New("completion response contained no choices")
)

// OpenAIClient defines the methods used from the go-openai client, to
// enable testing/mocking.
type OpenAIClient interface {
	CreateChatCompletion(
		ctx context.Context,
		request openai.ChatCompletionRequest,
	) (openai.ChatCompletionResponse, error)
}

// CompletionLog is a DB record of a single completion provider call,
// including failed ones.
type CompletionLog struct {
	ModelUintID
	ModelUnixTime
	ChannelID        string `json:"channel_id"`
	UserID           string `json:"user_id"`
	Model            string `json:"model"`
	Prompt           string `json:"prompt"`
	Response         string `json:"response"`
	Error            string `json:"error"`
	DiscardedContext bool   `json:"discarded_context"`
	Attempts         int    `json:"attempts"`
	RequestStarted   int64  `json:"request_started"`
	RequestEnded     int64  `json:"request_ended"`
}

// OpenAI manages interactions with the OpenAI chat completion API.
//
// It keeps an in-memory, per-channel message history so the provider
// sees prior context; a completion call with discardContext=true drops
// that history first. Each provider call is retried up to the
// configured attempt bound on failure, rate limited, and recorded as a
// CompletionLog row.
type OpenAI struct {
	client         OpenAIClient
	config         *OpenAIConfig
	systemPrompt   string
	logger         *slog.Logger
	requestLimiter *rate.Limiter
	db             *gorm.DB

	mu      sync.Mutex
	history map[string][]openai.ChatCompletionMessage
}

func newOpenAI(
	config *Config,
	db *gorm.DB,
	httpClient *http.Client,
) *OpenAI {
	o := &OpenAI{
		config:       config.OpenAI,
		systemPrompt: config.Bot.SystemPrompt,
		db:           db,
		history:      map[string][]openai.ChatCompletionMessage{},
	}
	o.logger = slog.New(
		tint.NewHandler(
			defaultLogWriter, &tint.Options{
				Level:     config.OpenAI.LogLevel,
				AddSource: true,
			},
		),
	).With(loggerNameKey, "openai")

	limit := rate.Inf
	if config.OpenAI.MaxRequestsPerSecond > 0 {
		limit = rate.Limit(config.OpenAI.MaxRequestsPerSecond)
	}
	o.requestLimiter = rate.NewLimiter(limit, 1)

	clientCfg := openai.DefaultConfig(config.OpenAI.Token)
	if httpClient != nil {
		clientCfg.HTTPClient = httpClient
	}
	o.client = openai.NewClientWithConfig(clientCfg)

	return o
}

func (o *OpenAI) maxAttempts() int {
	if o.config.MaxAttempts > 0 {
		return o.config.MaxAttempts
	}
	return DefaultOpenAIMaxAttempts
}

// Complete sends the given prompt to the completion API for the given
// channel. When discardContext is true, the channel's prior message
// history is dropped before the call. The call is attempted up to the
// configured bound; the last error is returned if all attempts fail.
func (o *OpenAI) Complete(
	ctx context.Context,
	channelID string,
	userID string,
	prompt string,
	discardContext bool,
) (string, error) {
	logger, ok := ContextLogger(ctx)
	if logger == nil || !ok {
		logger = o.logger
	}

	o.mu.Lock()
	if discardContext {
		delete(o.history, channelID)
	}
	prior := make(
		[]openai.ChatCompletionMessage,
		len(o.history[channelID]),
	)
	copy(prior, o.history[channelID])
	o.mu.Unlock()

	messages := make([]openai.ChatCompletionMessage, 0, len(prior)+2)
	messages = append(
		messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: o.systemPrompt,
		},
	)
	messages = append(messages, prior...)
	userMessage := openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	}
	messages = append(messages, userMessage)

	request := openai.ChatCompletionRequest{
		Model:    o.config.Model,
		Messages: messages,
		User:     userID,
	}

	rec := &CompletionLog{
		ChannelID:        channelID,
		UserID:           userID,
		Model:            o.config.Model,
		Prompt:           prompt,
		DiscardedContext: discardContext,
		RequestStarted:   time.Now().UnixMilli(),
	}

	var response openai.ChatCompletionResponse
	var err error
	maxAttempts := o.maxAttempts()
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		rec.Attempts = attempt
		if err = o.requestLimiter.Wait(ctx); err != nil {
			break
		}
		response, err = o.client.CreateChatCompletion(ctx, request)
		if err == nil {
			break
		}
		logger.WarnContext(
			ctx,
			"completion attempt failed",
			tint.Err(err),
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"channel_id", channelID,
		)
		if attempt == maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
		case <-time.After(openaiRetryBaseWait * time.Duration(attempt)):
		}
		if ctx.Err() != nil {
			err = ctx.Err()
			break
		}
	}
	rec.RequestEnded = time.Now().UnixMilli()

	var reply string
	switch {
	case err != nil:
		rec.Error = err.Error()
	case len(response.Choices) == 0:
		err = errEmptyCompletion
		rec.Error = err.Error()
	default:
		reply = response.Choices[0].Message.Content
		rec.Response = reply
	}

	if o.db != nil {
		if e := o.db.WithContext(ctx).Create(rec).Error; e != nil {
			logger.ErrorContext(ctx, "error recording completion", tint.Err(e))
		}
	}

	if err != nil {
		return "", err
	}

	o.mu.Lock()
	history := append(
		o.history[channelID],
		userMessage,
		openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleAssistant,
			Content: reply,
		},
	)
	if len(history) > maxHistoryMessages {
		history = history[len(history)-maxHistoryMessages:]
	}
	o.history[channelID] = history
	o.mu.Unlock()

	return reply, nil
}
