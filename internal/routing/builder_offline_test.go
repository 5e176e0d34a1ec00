// Copyright 2024 BrokerRouter Authors. Licensed under Apache-2.0.

package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func enabledIC(instance ServerID) InstanceConfig {
	return InstanceConfig{Instance: instance, Enabled: true}
}

func TestOfflineBuilderAssignsOnlyEligibleServers(t *testing.T) {
	ev := &ExternalView{
		Table:   "t_OFFLINE",
		Version: 1,
		Segments: map[SegmentID]map[ServerID]SegmentState{
			"seg1": {"s1": SegmentOnline, "s2": SegmentOnline, "s3": SegmentOnline},
		},
	}
	ics := map[ServerID]InstanceConfig{
		"s1": enabledIC("s1"),
		"s2": {Instance: "s2", Enabled: false},
		"s3": enabledIC("s3"),
	}

	b := NewOfflineBuilder()
	plans, err := b.Compute(ev.Table, ev, ics)
	require.NoError(t, err)
	require.NotEmpty(t, plans)

	for _, plan := range plans {
		for _, server := range plan.ServerSet() {
			assert.NotEqual(t, ServerID("s2"), server, "disabled instance must never be assigned")
		}
	}
}

func TestOfflineBuilderEmptyEVYieldsEmptyPlans(t *testing.T) {
	ev := &ExternalView{Table: "t_OFFLINE", Version: 1, Segments: map[SegmentID]map[ServerID]SegmentState{}}
	b := NewOfflineBuilder()
	plans, err := b.Compute(ev.Table, ev, map[ServerID]InstanceConfig{})
	require.NoError(t, err)
	assert.Empty(t, plans)
}

func TestOfflineBuilderBalancesLoadAcrossServers(t *testing.T) {
	segments := map[SegmentID]map[ServerID]SegmentState{}
	for i := 0; i < 12; i++ {
		seg := SegmentID(string(rune('a' + i)))
		segments[seg] = map[ServerID]SegmentState{"s1": SegmentOnline, "s2": SegmentOnline}
	}
	ev := &ExternalView{Table: "t_OFFLINE", Version: 1, Segments: segments}
	ics := map[ServerID]InstanceConfig{"s1": enabledIC("s1"), "s2": enabledIC("s2")}

	b := NewOfflineBuilder()
	plans, err := b.Compute(ev.Table, ev, ics)
	require.NoError(t, err)
	require.NotEmpty(t, plans)

	for _, plan := range plans {
		counts := map[ServerID]int{}
		for _, server := range plan.ServerSet() {
			counts[server] = len(plan.SegmentsFor(server))
		}
		assert.InDelta(t, counts["s1"], counts["s2"], 1, "balanced-random must keep per-server load within one segment")
	}
}

func TestOfflineBuilderSegmentWithNoEligibleServerIsUnassigned(t *testing.T) {
	ev := &ExternalView{
		Table:   "t_OFFLINE",
		Version: 1,
		Segments: map[SegmentID]map[ServerID]SegmentState{
			"seg1": {"s1": SegmentOffline},
		},
	}
	ics := map[ServerID]InstanceConfig{"s1": enabledIC("s1")}

	b := NewOfflineBuilder()
	plans, err := b.Compute(ev.Table, ev, ics)
	require.NoError(t, err)
	for _, plan := range plans {
		assert.True(t, plan.Empty())
	}
}
