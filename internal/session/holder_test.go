package session_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omochice/chatsync/internal/session"
	"github.com/omochice/chatsync/internal/storage"
)

func TestHolder_SurvivesRestart(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemory()

	h := session.New(ctx, kv, nil)
	assert.False(t, h.CanResume())

	h.SetCurrentUser("alice")
	assert.False(t, h.CanResume())
	h.SetReconnectToken("nlu_abc")
	assert.True(t, h.CanResume())

	h = session.New(ctx, kv, nil)
	assert.Equal(t, "alice", h.CurrentUser())
	assert.Equal(t, "nlu_abc", h.ReconnectToken())
}

func TestHolder_Clear(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemory()
	h := session.New(ctx, kv, nil)
	h.SetCurrentUser("alice")
	h.SetReconnectToken("nlu_abc")

	h.Clear()

	assert.Empty(t, h.CurrentUser())
	assert.Empty(t, h.ReconnectToken())
	_, err := kv.Get(ctx, session.KeyUser)
	require.True(t, errors.Is(err, storage.ErrNotFound))
	_, err = kv.Get(ctx, session.KeyToken)
	require.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestHolder_WithoutStorage(t *testing.T) {
	h := session.New(context.Background(), nil, nil)
	h.SetCurrentUser("alice")
	assert.Equal(t, "alice", h.CurrentUser())
}
