//go:build integration

package integration

import (
	"context"
	"testing"
	"time"

	"github.com/bissquit/incident-console/internal/console"
	"github.com/bissquit/incident-console/internal/domain"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisDraftStore(t *testing.T, ttl time.Duration) (*console.RedisDraftStore, redis.UniversalClient) {
	t.Helper()

	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{redisService.Endpoint}})
	t.Cleanup(func() { _ = client.Close() })

	store := console.NewRedisDraftStore(client, console.RedisDraftConfig{
		KeyPrefix: "test-" + uuid.NewString()[:8],
		TTL:       ttl,
	})
	return store, client
}

func TestRedisDraftStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store, client := newRedisDraftStore(t, time.Hour)

	_, err := store.Load(ctx)
	require.ErrorIs(t, err, console.ErrDraftNotFound)

	draft := domain.IncidentDraft{
		Title:             "Cached",
		Level:             domain.LevelL5,
		Scope:             domain.ScopeHigh,
		StartedAt:         time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		ImpactedLocations: []string{"Berlin"},
		Confirmations:     domain.Confirmations{L5Confirmation: true},
	}
	require.NoError(t, store.Save(ctx, draft))

	ttl, err := client.TTL(ctx, store.Key()).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 59*time.Minute)

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, draft.Title, got.Title)
	assert.True(t, draft.StartedAt.Equal(got.StartedAt))
	assert.Equal(t, draft.ImpactedLocations, got.ImpactedLocations)
	assert.True(t, got.L5Confirmation)

	require.NoError(t, store.Clear(ctx))
	_, err = store.Load(ctx)
	require.ErrorIs(t, err, console.ErrDraftNotFound)
}

func TestRedisDraftStore_FormRestore(t *testing.T) {
	ctx := context.Background()
	store, _ := newRedisDraftStore(t, time.Hour)

	first := console.NewForm(newConsoleClient(), store)
	require.NoError(t, first.Dispatch(ctx, console.FieldChanged{Field: "title", Value: "Half done"}))
	require.NoError(t, first.Dispatch(ctx, console.FieldChanged{Field: "level", Value: "L4"}))

	second := console.NewForm(newConsoleClient(), store)
	require.True(t, second.Restore(ctx))
	assert.Equal(t, "Half done", second.State().Draft.Title)
	assert.Equal(t, domain.LevelL4, second.State().Draft.Level)
}
