package tracker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalBus_PublishReachesSubscribers(t *testing.T) {
	bus := NewLocalBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := bus.Subscribe(ctx, "listings")
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, "listings", []byte(`{"type":"listed"}`)))
	require.NoError(t, bus.Publish(ctx, "sales", []byte(`{"type":"sold"}`)))

	select {
	case msg := <-ch:
		assert.JSONEq(t, `{"type":"listed"}`, string(msg))
	case <-time.After(time.Second):
		t.Fatal("expected a message on the listings channel")
	}

	// The sales publish must not have leaked onto the listings subscription.
	select {
	case msg := <-ch:
		t.Fatalf("unexpected message: %s", msg)
	default:
	}
}

func TestLocalBus_SubscriptionClosesOnCancel(t *testing.T) {
	bus := NewLocalBus()
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := bus.Subscribe(ctx, "deals")
	require.NoError(t, err)

	cancel()

	select {
	case _, open := <-ch:
		assert.False(t, open)
	case <-time.After(time.Second):
		t.Fatal("expected the channel to close")
	}
}
