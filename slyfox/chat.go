package slyfox

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
)

const (
	ChatStateInit               ChatState = "init"
	ChatStatePlaceholderSent    ChatState = "placeholder_sent"
	ChatStateAwaitingCompletion ChatState = "awaiting_completion"
	ChatStateResolved           ChatState = "resolved"
	ChatStateFailed             ChatState = "failed"
)

// embedDescriptionMaxLength is Discord's limit on embed descriptions.
const embedDescriptionMaxLength = 4096

type ChatState string

// ChatRequest tracks one free-form prompt through the completion
// lifecycle:
//
//	Init → PlaceholderSent → AwaitingCompletion → {Resolved | Failed}
//
// A placeholder message is sent before the provider call and edited
// exactly once afterwards, into either the final reply or a generic
// error message. It's never left showing the placeholder text after
// execute returns.
type ChatRequest struct {
	ChannelID   string
	UserID      string
	DisplayName string
	Prompt      string

	State ChatState

	// PlaceholderID is the transient status message's ID, retained so
	// it can be edited once the completion resolves. Empty if sending
	// the placeholder failed.
	PlaceholderID string

	logger *slog.Logger
}

func (b *SlyFox) newChatRequest(m inboundMessage, prompt string) *ChatRequest {
	req := &ChatRequest{
		ChannelID:   m.ChannelID,
		UserID:      m.UserID,
		DisplayName: m.DisplayName,
		Prompt:      prompt,
		State:       ChatStateInit,
	}
	req.logger = b.logger.With("chat_request", req)
	return req
}

func (c *ChatRequest) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("channel_id", c.ChannelID),
		slog.String("user_id", c.UserID),
		slog.String("prompt", truncate(c.Prompt, 100)),
		slog.String("state", string(c.State)),
	)
}

// execute runs the completion state machine for this request. All
// failures are handled here: provider errors become a user-visible
// error reply, transport errors are logged and swallowed. It never
// returns an error to its caller.
func (c *ChatRequest) execute(ctx context.Context, b *SlyFox) {
	logger := c.logger
	if logger == nil {
		logger = slog.Default()
	}
	ctx = WithLogger(ctx, logger)

	// The restart flag is consumed here, atomically, so a !restart
	// issued while another completion for this channel is in flight is
	// applied exactly once.
	discardContext := b.conversations.GetAndClearRestart(ctx, c.ChannelID)

	placeholderID, err := b.discord.sendEmbed(
		ctx,
		c.ChannelID,
		newReplyEmbed(b.config.Bot.PlaceholderText, ""),
	)
	if err == nil {
		c.PlaceholderID = placeholderID
		c.State = ChatStatePlaceholderSent
	} else {
		// Best-effort: the reply is sent as a fresh message instead.
		logger.WarnContext(ctx, "placeholder send failed", tint.Err(err))
	}

	c.State = ChatStateAwaitingCompletion
	reply, err := b.openai.Complete(
		ctx, c.ChannelID, c.UserID, c.Prompt, discardContext,
	)
	if err != nil {
		c.State = ChatStateFailed
		b.metricCompletionsFailed.Add(1)
		logger.ErrorContext(ctx, "completion failed", tint.Err(err))
		c.resolve(ctx, b, newReplyEmbed(b.config.Bot.ErrorMessage, ""))
		return
	}

	final := b.identities.Prefix(c.UserID) + reply
	description := truncate(
		fmt.Sprintf("```%s\n```", final),
		embedDescriptionMaxLength,
	)
	c.State = ChatStateResolved
	b.metricCompletionsResolved.Add(1)
	c.resolve(ctx, b, newReplyEmbed(description, ""))
}

// resolve terminally mutates the placeholder message with the given
// embed, or sends it as a new message if the placeholder was never
// created. Transport failures are logged and swallowed.
func (c *ChatRequest) resolve(
	ctx context.Context,
	b *SlyFox,
	embed *discordgo.MessageEmbed,
) {
	if c.PlaceholderID == "" {
		_, _ = b.discord.sendEmbed(ctx, c.ChannelID, embed)
		return
	}
	_ = b.discord.editEmbed(ctx, c.ChannelID, c.PlaceholderID, embed)
}
