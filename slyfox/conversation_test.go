package slyfox

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversationStoreRestartFlag(t *testing.T) {
	t.Parallel()
	bot, _, _ := newTestBot(t)
	store := bot.conversations
	ctx := context.Background()

	// A channel with no conversation row reads as false.
	assert.False(t, store.GetAndClearRestart(ctx, "chan1"))

	store.SetRestart(ctx, "chan1", true)

	// The flag is consumed by the first read.
	assert.True(t, store.GetAndClearRestart(ctx, "chan1"))
	assert.False(t, store.GetAndClearRestart(ctx, "chan1"))

	// Channels are independent.
	store.SetRestart(ctx, "chan2", true)
	assert.False(t, store.GetAndClearRestart(ctx, "chan1"))
	assert.True(t, store.GetAndClearRestart(ctx, "chan2"))
}

func TestConversationStoreSetRestartUpserts(t *testing.T) {
	t.Parallel()
	bot, _, _ := newTestBot(t)
	store := bot.conversations
	ctx := context.Background()

	store.SetRestart(ctx, "chan1", true)
	store.SetRestart(ctx, "chan1", true)
	store.SetRestart(ctx, "chan1", false)

	var count int64
	require.NoError(
		t,
		bot.db.Model(&Conversation{}).Where(
			"channel_id = ?", "chan1",
		).Count(&count).Error,
	)
	assert.Equal(t, int64(1), count)
	assert.False(t, store.GetAndClearRestart(ctx, "chan1"))
}

func TestConversationStoreConcurrentClear(t *testing.T) {
	t.Parallel()
	bot, _, _ := newTestBot(t)
	store := bot.conversations
	ctx := context.Background()

	store.SetRestart(ctx, "chan1", true)

	const workers = 16
	results := make(chan bool, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- store.GetAndClearRestart(ctx, "chan1")
		}()
	}
	wg.Wait()
	close(results)

	// Exactly one reader observes the flag.
	observed := 0
	for r := range results {
		if r {
			observed++
		}
	}
	assert.Equal(t, 1, observed)
}
