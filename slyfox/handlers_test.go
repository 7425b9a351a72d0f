package slyfox

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleRestart(t *testing.T) {
	t.Parallel()
	bot, messenger, _ := newTestBot(t)
	ctx := context.Background()

	bot.handleRestart(
		ctx,
		inboundMessage{ChannelID: "chan1", UserID: "user1"},
		Command{Kind: CommandRestart},
	)

	assert.True(t, bot.conversations.GetAndClearRestart(ctx, "chan1"))

	sent := messenger.sentMessages()
	require.Len(t, sent, 1)
	require.Len(t, sent[0].Message.Embeds, 1)
	assert.Equal(t, restartReply, sent[0].Message.Embeds[0].Description)
}

func TestHandleListPrefixes(t *testing.T) {
	t.Parallel()
	bot, messenger, _ := newTestBot(t)
	bot.config.Bot.Identities = []IdentityConfig{
		{UserID: "user-1", Prefix: "F", Label: "Fox"},
		{UserID: "user-2", Prefix: "W", Label: "Wolf"},
	}
	bot.identities = NewIdentityRegistry(bot.config.Bot)

	bot.handleListPrefixes(
		context.Background(),
		inboundMessage{ChannelID: "chan1"},
		Command{Kind: CommandListPrefixes},
	)

	sent := messenger.sentMessages()
	require.Len(t, sent, 1)
	require.Len(t, sent[0].Message.Embeds, 1)
	embed := sent[0].Message.Embeds[0]
	assert.Equal(t, "Prefixes", embed.Title)
	assert.Equal(t, "F: Fox\nW: Wolf", embed.Description)
}

func TestHandleListPrefixesEmpty(t *testing.T) {
	t.Parallel()
	bot, messenger, _ := newTestBot(t)

	bot.handleListPrefixes(
		context.Background(),
		inboundMessage{ChannelID: "chan1"},
		Command{Kind: CommandListPrefixes},
	)

	sent := messenger.sentMessages()
	require.Len(t, sent, 1)
	assert.Equal(
		t,
		"No prefixes configured.",
		sent[0].Message.Embeds[0].Description,
	)
}

func TestHandleListCommands(t *testing.T) {
	t.Parallel()
	bot, messenger, _ := newTestBot(t)

	bot.handleListCommands(
		context.Background(),
		inboundMessage{ChannelID: "chan1"},
		Command{Kind: CommandListCommands},
	)

	sent := messenger.sentMessages()
	require.Len(t, sent, 1)
	embed := sent[0].Message.Embeds[0]
	assert.Equal(t, "Commands", embed.Title)
	require.NotEmpty(t, embed.Fields)
	assert.Equal(t, "!restart", embed.Fields[0].Name)
}

func TestRollFurryPercentBounds(t *testing.T) {
	t.Parallel()
	for i := 0; i < 1000; i++ {
		roll := rollFurryPercent()
		require.GreaterOrEqual(t, roll, furryRollMin)
		require.LessOrEqual(t, roll, furryRollMax)
	}
}

func TestHandleFurryRoll(t *testing.T) {
	t.Parallel()
	bot, messenger, _ := newTestBot(t)

	bot.handleFurryRoll(
		context.Background(),
		inboundMessage{ChannelID: "chan1", DisplayName: "Bob"},
		Command{Kind: CommandFurryRoll},
	)

	sent := messenger.sentMessages()
	require.Len(t, sent, 1)
	description := sent[0].Message.Embeds[0].Description
	assert.Regexp(t, `^Bob, you are \d+% furry!$`, description)
}

func TestHandleHug(t *testing.T) {
	t.Parallel()
	bot, messenger, _ := newTestBot(t)

	bot.handleHug(
		context.Background(),
		inboundMessage{ChannelID: "chan1", DisplayName: "Bob"},
		Command{Kind: CommandHug, Arg: "Alice"},
	)

	sent := messenger.sentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "Bob hugged Alice.", sent[0].Message.Embeds[0].Description)
}

func TestHandleHugNoTarget(t *testing.T) {
	t.Parallel()
	bot, messenger, _ := newTestBot(t)

	bot.handleHug(
		context.Background(),
		inboundMessage{ChannelID: "chan1", DisplayName: "Bob"},
		Command{Kind: CommandHug},
	)

	sent := messenger.sentMessages()
	require.Len(t, sent, 1)
	assert.Equal(
		t,
		fmt.Sprintf(hugUsageReply, "!"),
		sent[0].Message.Embeds[0].Description,
	)
}

func TestHandleBroadcast(t *testing.T) {
	t.Parallel()
	bot, messenger, _ := newTestBot(t)
	bot.config.Bot.OwnerID = "owner-1"
	bot.config.Bot.BroadcastChannelIDs = []string{"dest1", "dest2", "dest3"}
	bot.identities = NewIdentityRegistry(bot.config.Bot)

	bot.handleBroadcast(
		context.Background(),
		inboundMessage{ChannelID: "chan1", UserID: "owner-1"},
		Command{Kind: CommandBroadcast, Arg: "hello everyone"},
	)

	texts := messenger.sentTexts()
	require.Len(t, texts, 3)
	for i, dest := range bot.config.Bot.BroadcastChannelIDs {
		assert.Equal(t, dest, texts[i].ChannelID)
		assert.Equal(t, "hello everyone", texts[i].Content)
	}
	// No acknowledgement reply in the origin channel.
	assert.Empty(t, messenger.sentMessages())
}

func TestHandleBroadcastPartialFailure(t *testing.T) {
	t.Parallel()
	bot, messenger, _ := newTestBot(t)
	bot.config.Bot.OwnerID = "owner-1"
	bot.config.Bot.BroadcastChannelIDs = []string{"dest1", "dest2", "dest3"}
	bot.identities = NewIdentityRegistry(bot.config.Bot)
	messenger.failTextChannels["dest2"] = true

	bot.handleBroadcast(
		context.Background(),
		inboundMessage{ChannelID: "chan1", UserID: "owner-1"},
		Command{Kind: CommandBroadcast, Arg: "hello"},
	)

	// A failed destination doesn't stop the rest.
	texts := messenger.sentTexts()
	require.Len(t, texts, 2)
	assert.Equal(t, "dest1", texts[0].ChannelID)
	assert.Equal(t, "dest3", texts[1].ChannelID)
}

func TestHandleBroadcastNotOwner(t *testing.T) {
	t.Parallel()
	bot, messenger, _ := newTestBot(t)
	bot.config.Bot.OwnerID = "owner-1"
	bot.config.Bot.BroadcastChannelIDs = []string{"dest1"}
	bot.identities = NewIdentityRegistry(bot.config.Bot)

	bot.handleBroadcast(
		context.Background(),
		inboundMessage{ChannelID: "chan1", UserID: "user-2"},
		Command{Kind: CommandBroadcast, Arg: "hello"},
	)

	// The authorization check happens before any channel I/O.
	assert.Empty(t, messenger.sentTexts())
	sent := messenger.sentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "chan1", sent[0].ChannelID)
	assert.Equal(
		t, broadcastNotOwnerReply, sent[0].Message.Embeds[0].Description,
	)
}

func TestHandleBroadcastNoMessage(t *testing.T) {
	t.Parallel()
	bot, messenger, _ := newTestBot(t)
	bot.config.Bot.OwnerID = "owner-1"
	bot.config.Bot.BroadcastChannelIDs = []string{"dest1"}
	bot.identities = NewIdentityRegistry(bot.config.Bot)

	bot.handleBroadcast(
		context.Background(),
		inboundMessage{ChannelID: "chan1", UserID: "owner-1"},
		Command{Kind: CommandBroadcast},
	)

	assert.Empty(t, messenger.sentTexts())
	sent := messenger.sentMessages()
	require.Len(t, sent, 1)
	assert.Equal(
		t,
		fmt.Sprintf(broadcastUsageReply, "!"),
		sent[0].Message.Embeds[0].Description,
	)
}
