package service

import (
	"context"
	"sync"
	"testing"

	"stash-api/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthBroker_PublishReachesOnlyThatVisitor(t *testing.T) {
	broker := NewAuthBroker(logger.NewNop())

	var mu sync.Mutex
	got := map[string][]bool{}
	record := func(id string) func(bool) {
		return func(v bool) {
			mu.Lock()
			defer mu.Unlock()
			got[id] = append(got[id], v)
		}
	}

	broker.Subscribe("a", record("a1"))
	broker.Subscribe("a", record("a2"))
	broker.Subscribe("b", record("b1"))

	assert.Equal(t, 2, broker.Publish("a", true))
	assert.Equal(t, []bool{true}, got["a1"])
	assert.Equal(t, []bool{true}, got["a2"])
	assert.Empty(t, got["b1"])
}

func TestAuthBroker_Unsubscribe(t *testing.T) {
	broker := NewAuthBroker(logger.NewNop())

	calls := 0
	unsubscribe := broker.Subscribe("a", func(bool) { calls++ })
	assert.Equal(t, 1, broker.Subscribers("a"))

	unsubscribe()
	unsubscribe()
	assert.Equal(t, 0, broker.Subscribers("a"))
	assert.Equal(t, 0, broker.Publish("a", true))
	assert.Equal(t, 0, calls)
}

func TestAuthBroker_SourceTracksPublishedState(t *testing.T) {
	ctx := context.Background()
	broker := NewAuthBroker(logger.NewNop())

	source := broker.Source("a", false)
	signedIn, err := source.Session(ctx)
	require.NoError(t, err)
	assert.False(t, signedIn)

	var seen []bool
	unsubscribe := source.Subscribe(func(v bool) { seen = append(seen, v) })
	defer unsubscribe()

	broker.Publish("a", true)
	signedIn, err = source.Session(ctx)
	require.NoError(t, err)
	assert.True(t, signedIn)

	broker.Publish("a", false)
	signedIn, _ = source.Session(ctx)
	assert.False(t, signedIn)
	assert.Equal(t, []bool{true, false}, seen)
}

func TestAuthBroker_SourceSeesEarlierSignIn(t *testing.T) {
	broker := NewAuthBroker(logger.NewNop())
	broker.Publish("a", true)

	signedIn, err := broker.Source("a", false).Session(context.Background())
	require.NoError(t, err)
	assert.True(t, signedIn)

	broker.Publish("a", false)
	signedIn, _ = broker.Source("a", false).Session(context.Background())
	assert.False(t, signedIn)
}

func TestAuthBroker_SessionHonoursCancelledContext(t *testing.T) {
	broker := NewAuthBroker(logger.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := broker.Source("a", true).Session(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
