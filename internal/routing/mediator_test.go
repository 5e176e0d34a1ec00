// Copyright 2024 BrokerRouter Authors. Licensed under Apache-2.0.

package routing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChangeMediatorOnDataResourceOnlineBypassesThrottle(t *testing.T) {
	m := NewManager(newFakeCoordinator(), time.Minute)
	mediator := NewChangeMediator(m, time.Hour) // a throttle long enough to fail the test if hit

	ev := offlineEV(1)
	mediator.OnDataResourceOnline(context.Background(), ev.Table, ev, []InstanceConfig{enabledIC("s1")})

	result, err := m.FindServers(FindServersRequest{Table: ev.Table})
	require.NoError(t, err)
	assert.Contains(t, result, ServerID("s1"), "online notifications must apply immediately, not wait on the throttle")
}

func TestChangeMediatorOnDataResourceOfflineBypassesThrottle(t *testing.T) {
	m := NewManager(newFakeCoordinator(), time.Minute)
	mediator := NewChangeMediator(m, time.Hour)

	ev := offlineEV(1)
	require.NoError(t, m.BuildRoutingTable(context.Background(), ev.Table, ev, []InstanceConfig{enabledIC("s1")}))

	mediator.OnDataResourceOffline(context.Background(), ev.Table)

	assert.False(t, m.RoutingTableExists(ev.Table))
}

func TestChangeMediatorThrottlesExternalViewChangeBursts(t *testing.T) {
	coord := newFakeCoordinator()
	m := NewManager(coord, time.Minute)
	mediator := NewChangeMediator(m, 50*time.Millisecond)

	start := time.Now()
	for i := 0; i < 3; i++ {
		mediator.NotifyExternalViewChange(context.Background())
	}
	elapsed := time.Since(start)

	// A burst of 3 calls against a limiter with burst size 1 costs two
	// extra waits of the configured interval beyond the first free call.
	assert.GreaterOrEqual(t, elapsed, 90*time.Millisecond, "a notification burst must coalesce through the rate limiter, not run unthrottled")
}

func TestChangeMediatorThrottlesInstanceConfigChangeBursts(t *testing.T) {
	coord := newFakeCoordinator()
	m := NewManager(coord, time.Minute)
	mediator := NewChangeMediator(m, 50*time.Millisecond)

	start := time.Now()
	for i := 0; i < 2; i++ {
		mediator.OnInstanceConfigChange(context.Background())
	}
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 40*time.Millisecond, "the second instance-config pass in a burst must wait out the throttle")
}

func TestChangeMediatorOnLiveInstanceChangeIsNoop(t *testing.T) {
	m := NewManager(newFakeCoordinator(), time.Minute)
	mediator := NewChangeMediator(m, time.Hour)

	ev := offlineEV(1)
	require.NoError(t, m.BuildRoutingTable(context.Background(), ev.Table, ev, []InstanceConfig{enabledIC("s1")}))

	// Must return immediately (no throttle wait) and must not mutate any
	// published state: it is a documented no-op, not a deferred rebuild.
	done := make(chan struct{})
	go func() {
		mediator.OnLiveInstanceChange(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("OnLiveInstanceChange did not return promptly")
	}

	assert.True(t, m.RoutingTableExists(ev.Table))
}

func TestChangeMediatorStopsWaitingWhenContextCancelled(t *testing.T) {
	m := NewManager(newFakeCoordinator(), time.Minute)
	mediator := NewChangeMediator(m, time.Hour)

	// Drain the single burst token so the next call would otherwise block
	// for the full hour-long interval.
	mediator.NotifyExternalViewChange(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		mediator.NotifyExternalViewChange(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("NotifyExternalViewChange did not return promptly when its context was cancelled")
	}
}
