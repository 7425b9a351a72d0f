package slyfox

import (
	"context"
	"fmt"
	"math/rand"
	"strings"

	"github.com/bwmarrin/discordgo"
)

var (
	// furryRoll* bound the inclusive range of the !furry roll.
	furryRollMin = 50
	furryRollMax = 100

	restartReply           = "Okay, I'm starting a new conversation."
	hugUsageReply          = "Usage: %shug <name>"
	broadcastUsageReply    = "Usage: %sbroadcast <message>"
	broadcastNotOwnerReply = "Sorry, only my owner can use this command."
)

// inboundMessage carries the fields of a discord message that command
// handlers care about.
type inboundMessage struct {
	MessageID   string
	ChannelID   string
	GuildID     string
	UserID      string
	Username    string
	DisplayName string
	Content     string
}

func newInboundMessage(m *discordgo.MessageCreate) inboundMessage {
	im := inboundMessage{
		MessageID: m.ID,
		ChannelID: m.ChannelID,
		GuildID:   m.GuildID,
		Content:   m.Content,
	}
	if m.Author != nil {
		im.UserID = m.Author.ID
		im.Username = m.Author.Username
		im.DisplayName = m.Author.GlobalName
		if im.DisplayName == "" {
			im.DisplayName = m.Author.Username
		}
	}
	return im
}

type commandHandler func(ctx context.Context, m inboundMessage, cmd Command)

// commandHandlers returns the handler registry dispatching each
// Command variant to its handler.
func (b *SlyFox) commandHandlers() map[CommandKind]commandHandler {
	return map[CommandKind]commandHandler{
		CommandRestart:      b.handleRestart,
		CommandListPrefixes: b.handleListPrefixes,
		CommandListCommands: b.handleListCommands,
		CommandFurryRoll:    b.handleFurryRoll,
		CommandHug:          b.handleHug,
		CommandBroadcast:    b.handleBroadcast,
		CommandChat:         b.handleChat,
	}
}

// handleRestart flags the channel's conversation so the next
// completion call discards prior context, and confirms to the user.
func (b *SlyFox) handleRestart(
	ctx context.Context,
	m inboundMessage,
	_ Command,
) {
	b.conversations.SetRestart(ctx, m.ChannelID, true)
	_, _ = b.discord.sendEmbed(
		ctx, m.ChannelID, newReplyEmbed(restartReply, ""),
	)
}

// handleListPrefixes lists every configured identity's reply prefix,
// in configuration order.
func (b *SlyFox) handleListPrefixes(
	ctx context.Context,
	m inboundMessage,
	_ Command,
) {
	identities := b.identities.All()
	lines := make([]string, 0, len(identities))
	for _, identity := range identities {
		lines = append(
			lines,
			fmt.Sprintf("%s: %s", identity.Prefix, identity.Label),
		)
	}
	description := "No prefixes configured."
	if len(lines) > 0 {
		description = strings.Join(lines, "\n")
	}
	_, _ = b.discord.sendEmbed(
		ctx, m.ChannelID, newReplyEmbed(description, "Prefixes"),
	)
}

// handleListCommands shows static help text.
func (b *SlyFox) handleListCommands(
	ctx context.Context,
	m inboundMessage,
	_ Command,
) {
	sigil := b.config.Bot.CommandPrefix
	embed := newReplyEmbed(
		"Here's what I can do:",
		"Commands",
		&discordgo.MessageEmbedField{
			Name:  sigil + "restart",
			Value: "Restart the current conversation, starting fresh.",
		},
		&discordgo.MessageEmbedField{
			Name:  sigil + "prefixes",
			Value: "Show the configured reply prefixes and their owners.",
		},
		&discordgo.MessageEmbedField{
			Name:  sigil + "furry",
			Value: "Find out how furry you are.",
		},
		&discordgo.MessageEmbedField{
			Name:  sigil + "hug <name>",
			Value: "Hug someone.",
		},
		&discordgo.MessageEmbedField{
			Name:  sigil + "commands",
			Value: "Show this message.",
		},
		&discordgo.MessageEmbedField{
			Name:  "Anything else",
			Value: "Any other " + sigil + "-prefixed message is answered by the assistant.",
		},
	)
	_, _ = b.discord.sendEmbed(ctx, m.ChannelID, embed)
}

// rollFurryPercent draws a pseudo-random percentage in
// [furryRollMin, furryRollMax], inclusive.
func rollFurryPercent() int {
	return furryRollMin + rand.Intn(furryRollMax-furryRollMin+1)
}

func (b *SlyFox) handleFurryRoll(
	ctx context.Context,
	m inboundMessage,
	_ Command,
) {
	description := fmt.Sprintf(
		"%s, you are %d%% furry!", m.DisplayName, rollFurryPercent(),
	)
	_, _ = b.discord.sendEmbed(
		ctx, m.ChannelID, newReplyEmbed(description, ""),
	)
}

// handleHug hugs the given target. An empty target gets a usage reply.
func (b *SlyFox) handleHug(
	ctx context.Context,
	m inboundMessage,
	cmd Command,
) {
	if cmd.Arg == "" {
		_, _ = b.discord.sendEmbed(
			ctx,
			m.ChannelID,
			newReplyEmbed(
				fmt.Sprintf(hugUsageReply, b.config.Bot.CommandPrefix), "",
			),
		)
		return
	}
	_, _ = b.discord.sendEmbed(
		ctx,
		m.ChannelID,
		newReplyEmbed(
			fmt.Sprintf("%s hugged %s.", m.DisplayName, cmd.Arg), "",
		),
	)
}

// handleBroadcast replicates the given message across the configured
// broadcast channels. Owner-only: the authorization check happens
// before any channel I/O. A failed send to one destination doesn't
// prevent attempts to the rest.
func (b *SlyFox) handleBroadcast(
	ctx context.Context,
	m inboundMessage,
	cmd Command,
) {
	if !b.identities.IsOwner(m.UserID) {
		b.logger.WarnContext(
			ctx,
			"unauthorized broadcast attempt",
			"user_id", m.UserID,
			"username", m.Username,
		)
		_, _ = b.discord.sendEmbed(
			ctx, m.ChannelID, newReplyEmbed(broadcastNotOwnerReply, ""),
		)
		return
	}
	if cmd.Arg == "" {
		_, _ = b.discord.sendEmbed(
			ctx,
			m.ChannelID,
			newReplyEmbed(
				fmt.Sprintf(broadcastUsageReply, b.config.Bot.CommandPrefix),
				"",
			),
		)
		return
	}

	content := truncate(cmd.Arg, discordMaxMessageLength)
	sent := 0
	for _, channelID := range b.config.Bot.BroadcastChannelIDs {
		if err := b.discord.sendText(ctx, channelID, content); err == nil {
			sent++
		}
	}
	b.logger.InfoContext(
		ctx,
		"broadcast complete",
		"destinations", len(b.config.Bot.BroadcastChannelIDs),
		"sent", sent,
	)
}

// handleChat forwards the prompt to the completion provider, wrapped
// in the placeholder lifecycle.
func (b *SlyFox) handleChat(
	ctx context.Context,
	m inboundMessage,
	cmd Command,
) {
	req := b.newChatRequest(m, cmd.Prompt)
	req.execute(ctx, b)
}
